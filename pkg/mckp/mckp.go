// Package mckp solves the multiple-choice knapsack problem: given groups of
// mutually exclusive candidates, pick exactly one candidate per group so that
// the total profit is maximal and the total weight stays within a budget.
//
// The solver fills a (elements+1) x (budget+1) dynamic-programming table once
// for the largest budget of interest. Any budget up to that maximum can then
// be answered by backtracking through the same table.
package mckp

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSolution means no combination of one candidate per group fits the budget.
	ErrNoSolution = errors.New("mckp: no combination fits the budget")

	// ErrInvalidElements is returned when elements are not grouped and ordered as required.
	ErrInvalidElements = errors.New("mckp: invalid elements")

	// ErrBudgetOutOfRange is returned when Solve is asked for a budget the table does not cover.
	ErrBudgetOutOfRange = errors.New("mckp: budget out of range")
)

// Element is one candidate. Elements sharing a Group are mutually exclusive.
type Element struct {
	Weight int
	Profit int
	Group  int
}

// placeholder heads the element list so that row 0 of the table is the
// "nothing chosen yet" row.
var placeholder = Element{Weight: 0, Profit: 0, Group: -1}

// cell is a table entry. ok is false when no valid partial choice reaches it.
type cell struct {
	value int
	ok    bool
}

// Solver holds the dynamic-programming table for one problem instance.
type Solver struct {
	maxBudget int
	elements  []Element
	table     [][]cell
	// boundaries[g] is the last row of the group preceding group g.
	boundaries []int
}

// New validates the elements and fills the table for budgets up to maxBudget.
//
// Elements must be contiguous per group, groups in increasing order, and
// weights non-decreasing within a group.
func New(maxBudget int, elements []Element) (*Solver, error) {
	if maxBudget < 0 {
		return nil, fmt.Errorf("%w: negative budget %d", ErrBudgetOutOfRange, maxBudget)
	}
	if err := validate(elements); err != nil {
		return nil, err
	}

	s := &Solver{
		maxBudget: maxBudget,
		elements:  append([]Element{placeholder}, elements...),
	}
	s.process()
	return s, nil
}

func validate(elements []Element) error {
	for i, e := range elements {
		if e.Weight < 0 {
			return fmt.Errorf("%w: element %d has negative weight %d", ErrInvalidElements, i, e.Weight)
		}
		if e.Group < 0 {
			return fmt.Errorf("%w: element %d has negative group %d", ErrInvalidElements, i, e.Group)
		}
		if i == 0 {
			continue
		}
		prev := elements[i-1]
		if e.Group < prev.Group {
			return fmt.Errorf("%w: group %d follows group %d", ErrInvalidElements, e.Group, prev.Group)
		}
		if e.Group == prev.Group && e.Weight < prev.Weight {
			return fmt.Errorf("%w: group %d is not sorted by weight", ErrInvalidElements, e.Group)
		}
	}
	return nil
}

// process fills the table. Row i holds, for every budget w, the best profit
// reachable with one element from each group up to the group of element i,
// restricted to elements up to i within its own group.
func (s *Solver) process() {
	rows := len(s.elements)
	s.table = make([][]cell, rows)
	for i := range s.table {
		s.table[i] = make([]cell, s.maxBudget+1)
	}
	for w := 0; w <= s.maxBudget; w++ {
		s.table[0][w] = cell{value: 0, ok: true}
	}

	previousGroup := placeholder.Group
	boundary := 0
	minWeight := 0

	for i := 1; i < rows; i++ {
		e := s.elements[i]

		newGroup := e.Group != previousGroup
		if newGroup {
			// every group pays at least its cheapest option, which comes first
			minWeight += e.Weight
			previousGroup = e.Group
			boundary = i - 1
			s.boundaries = append(s.boundaries, boundary)
		}

		for w := minWeight; w <= s.maxBudget; w++ {
			var best cell
			if w >= e.Weight {
				if diag := s.table[boundary][w-e.Weight]; diag.ok {
					best = cell{value: diag.value + e.Profit, ok: true}
				}
			}
			if !newGroup {
				if above := s.table[i-1][w]; above.ok && (!best.ok || above.value > best.value) {
					best = above
				}
			}
			s.table[i][w] = best
		}
	}
}

// Solve returns the indices, in the caller's element slice, of the chosen
// candidates, one per group in group order. It returns ErrNoSolution when the
// cheapest combination exceeds the budget or when there are no elements.
func (s *Solver) Solve(budget int) ([]int, error) {
	if budget < 0 || budget > s.maxBudget {
		return nil, fmt.Errorf("%w: %d not in [0,%d]", ErrBudgetOutOfRange, budget, s.maxBudget)
	}
	chosen := s.backtrack(budget)
	if len(chosen) == 0 {
		return nil, ErrNoSolution
	}
	return chosen, nil
}

// Value returns the best total profit for the budget, if any.
func (s *Solver) Value(budget int) (int, bool) {
	if budget < 0 || budget > s.maxBudget || len(s.elements) <= 1 {
		return 0, false
	}
	c := s.table[len(s.table)-1][budget]
	return c.value, c.ok
}

// backtrack walks the table from the bottom-right cell back to the top,
// collecting one row per group.
func (s *Solver) backtrack(budget int) []int {
	if len(s.elements) <= 1 {
		return nil
	}

	y := len(s.table) - 1
	x := budget
	if !s.table[y][x].ok {
		return nil
	}

	chosen := make([]int, 0, len(s.boundaries))
	for g := len(s.boundaries) - 1; y > 0; g-- {
		// same value with less budget: the extra budget was not used
		for x > 0 && s.table[y][x] == s.table[y][x-1] {
			x--
		}
		// same value without this element: it was not the chosen one
		b := s.boundaries[g]
		for y > b+1 && s.table[y][x] == s.table[y-1][x] {
			y--
		}

		chosen = append(chosen, y-1)
		x -= s.elements[y].Weight
		y = b
	}

	for i, j := 0, len(chosen)-1; i < j; i, j = i+1, j-1 {
		chosen[i], chosen[j] = chosen[j], chosen[i]
	}
	return chosen
}
