// Package interval implements arithmetic over sets of closed numeric ranges.
//
// A Set is a normalized union of disjoint closed ranges [lo, hi], sorted in
// ascending order. Services use sets to describe the costs they can achieve:
// each range is a band of costs reachable by one execution path. Combining
// the sets of two services (Minkowski sum) yields the costs reachable by
// running both.
//
// Sets are immutable values; every operation returns a new Set.
package interval

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned by lookups on an empty set.
	ErrNotFound = errors.New("interval: not found")

	// ErrMalformed is returned when ranges received from outside cannot form a valid set.
	ErrMalformed = errors.New("interval: malformed range")
)

// Range is a closed range [Lo, Hi].
type Range struct {
	Lo float64
	Hi float64
}

// Span returns the width of the range.
func (r Range) Span() float64 {
	return r.Hi - r.Lo
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Lo && v <= r.Hi
}

func (r Range) String() string {
	return fmt.Sprintf("[%g,%g]", r.Lo, r.Hi)
}

// Set is an ordered set of mutually disjoint closed ranges.
// The zero value is the empty set.
type Set struct {
	ranges []Range
}

// New builds a normalized set from arbitrary ranges. Ranges with Lo > Hi are
// swapped rather than rejected; use Parse at trust boundaries.
func New(ranges ...Range) Set {
	if len(ranges) == 0 {
		return Set{}
	}
	rs := make([]Range, len(ranges))
	for i, r := range ranges {
		if r.Lo > r.Hi {
			r.Lo, r.Hi = r.Hi, r.Lo
		}
		rs[i] = r
	}
	return Set{ranges: normalize(rs)}
}

// Parse validates [lo, hi] pairs received from another service and builds a set.
func Parse(pairs [][2]float64) (Set, error) {
	rs := make([]Range, 0, len(pairs))
	for i, p := range pairs {
		lo, hi := p[0], p[1]
		if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
			return Set{}, fmt.Errorf("%w: pair %d is not finite", ErrMalformed, i)
		}
		if lo > hi {
			return Set{}, fmt.Errorf("%w: pair %d has lo %g > hi %g", ErrMalformed, i, lo, hi)
		}
		rs = append(rs, Range{Lo: lo, Hi: hi})
	}
	if len(rs) == 0 {
		return Set{}, nil
	}
	return Set{ranges: normalize(rs)}, nil
}

// normalize sorts ranges and merges every pair that overlaps or touches.
func normalize(rs []Range) []Range {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Lo == rs[j].Lo {
			return rs[i].Hi < rs[j].Hi
		}
		return rs[i].Lo < rs[j].Lo
	})

	out := rs[:1]
	for _, r := range rs[1:] {
		last := &out[len(out)-1]
		if r.Lo <= last.Hi {
			if r.Hi > last.Hi {
				last.Hi = r.Hi
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// Ranges returns a copy of the ranges in ascending order.
func (s Set) Ranges() []Range {
	if len(s.ranges) == 0 {
		return nil
	}
	out := make([]Range, len(s.ranges))
	copy(out, s.ranges)
	return out
}

// Len returns the number of disjoint ranges.
func (s Set) Len() int {
	return len(s.ranges)
}

// IsEmpty reports whether the set holds no range.
func (s Set) IsEmpty() bool {
	return len(s.ranges) == 0
}

// Min returns the smallest value of the set.
func (s Set) Min() (float64, bool) {
	if s.IsEmpty() {
		return 0, false
	}
	return s.ranges[0].Lo, true
}

// Max returns the largest value of the set.
func (s Set) Max() (float64, bool) {
	if s.IsEmpty() {
		return 0, false
	}
	return s.ranges[len(s.ranges)-1].Hi, true
}

// Add returns a new set with r inserted.
func (s Set) Add(r Range) Set {
	return New(append(s.Ranges(), r)...)
}

// Union returns the normalized union of a and b.
func Union(a, b Set) Set {
	return New(append(a.Ranges(), b.ranges...)...)
}

// Contains reports whether v belongs to one of the ranges.
func (s Set) Contains(v float64) bool {
	i := sort.Search(len(s.ranges), func(i int) bool { return s.ranges[i].Hi >= v })
	return i < len(s.ranges) && s.ranges[i].Contains(v)
}

// Equal reports whether both sets hold exactly the same ranges.
func (s Set) Equal(o Set) bool {
	if len(s.ranges) != len(o.ranges) {
		return false
	}
	for i := range s.ranges {
		if s.ranges[i] != o.ranges[i] {
			return false
		}
	}
	return true
}

func (s Set) String() string {
	parts := make([]string, len(s.ranges))
	for i, r := range s.ranges {
		parts[i] = r.String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Combine returns the Minkowski sum of a and b. The empty set is the identity.
//
// The cost is quadratic in the number of ranges.
func Combine(a, b Set) Set {
	if a.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return a
	}

	sums := make([]Range, 0, len(a.ranges)*len(b.ranges))
	for _, r1 := range a.ranges {
		for _, r2 := range b.ranges {
			sums = append(sums, Range{Lo: r1.Lo + r2.Lo, Hi: r1.Hi + r2.Hi})
		}
	}
	return Set{ranges: normalize(sums)}
}

// NearestRange returns the range whose lower bound is closest to v.
// Ties go to the lowest range.
func NearestRange(s Set, v float64) (Range, error) {
	if s.IsEmpty() {
		return Range{}, ErrNotFound
	}

	best := s.ranges[0]
	distance := math.Abs(best.Lo - v)
	for _, r := range s.ranges[1:] {
		if d := math.Abs(r.Lo - v); d < distance {
			best, distance = r, d
		}
	}
	return best, nil
}

// Pairs returns the wire form of the set: ordered [lo, hi] pairs.
func (s Set) Pairs() [][2]float64 {
	out := make([][2]float64, len(s.ranges))
	for i, r := range s.ranges {
		out[i] = [2]float64{r.Lo, r.Hi}
	}
	return out
}

// MarshalJSON encodes the set as [[lo,hi],...].
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Pairs())
}

// UnmarshalJSON decodes [[lo,hi],...] and rejects malformed pairs.
func (s *Set) UnmarshalJSON(data []byte) error {
	var pairs [][2]float64
	if err := json.Unmarshal(data, &pairs); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	parsed, err := Parse(pairs)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalYAML encodes the set as a sequence of [lo, hi] pairs.
func (s Set) MarshalYAML() (any, error) {
	return s.Pairs(), nil
}
