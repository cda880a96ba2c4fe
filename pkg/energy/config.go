package energy

import (
	"errors"
	"fmt"
	"time"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultCapacity    = 10
	DefaultThreshold   = 14
	DefaultFilterWidth = 1024
	DefaultFilterDepth = 3
	DefaultScale       = 100

	// MaxScale bounds Scale: every allocation fills a table with one row per
	// option and Scale+1 columns.
	MaxScale = 10_000
)

// Config holds the tunables of one Awareness instance.
type Config struct {
	// Name is the local service name; it keys the local entry of every Objectives map.
	Name string

	// Capacity bounds the number of local samples kept (oldest evicted first).
	Capacity int

	// MergeGap merges local sample costs closer than the gap into one range.
	// Zero keeps every distinct cost as its own degenerate range.
	MergeGap float64

	// Threshold is how many times an argument vector must be seen before
	// NewFunctionCall pays for an allocation.
	Threshold int

	// FilterWidth and FilterDepth size the count-min sketch of the ArgsFilter.
	FilterWidth int
	FilterDepth int

	// Scale is the integer knapsack budget the objective is mapped onto.
	// Larger values give finer allocations at a linear cost in time and memory.
	Scale int

	// Fairness in [0,1] weighs closeness to an equal share against total
	// spending when choosing among discrete options. Zero disables it.
	Fairness float64

	// StaleAfter treats remote reports older than this as missing. Zero keeps
	// reports valid until overwritten.
	StaleAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.FilterWidth <= 0 {
		c.FilterWidth = DefaultFilterWidth
	}
	if c.FilterDepth <= 0 {
		c.FilterDepth = DefaultFilterDepth
	}
	if c.Scale <= 0 {
		c.Scale = DefaultScale
	}
	if c.MergeGap < 0 {
		c.MergeGap = 0
	}
	return c
}

// Validate reports configuration values that cannot be defaulted.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.New("energy: service name cannot be empty")
	}
	if c.Fairness < 0 || c.Fairness > 1 {
		return fmt.Errorf("energy: fairness %g must be within [0,1]", c.Fairness)
	}
	if c.Scale > MaxScale {
		return fmt.Errorf("energy: scale %d exceeds %d", c.Scale, MaxScale)
	}
	if c.StaleAfter < 0 {
		return fmt.Errorf("energy: staleAfter %v cannot be negative", c.StaleAfter)
	}
	return nil
}
