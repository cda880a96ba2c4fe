package energy

import (
	"math"

	"github.com/HatiCode/enerbox/pkg/interval"
)

// Sample is one observed local execution.
type Sample struct {
	Args []float64
	Cost float64
}

// LocalData is a bounded store of local cost samples. It is not safe for
// concurrent use; Awareness serializes access.
type LocalData struct {
	capacity int
	mergeGap float64
	samples  []Sample
}

// NewLocalData creates a store keeping at most capacity samples.
func NewLocalData(capacity int, mergeGap float64) *LocalData {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if mergeGap < 0 {
		mergeGap = 0
	}
	return &LocalData{
		capacity: capacity,
		mergeGap: mergeGap,
		samples:  make([]Sample, 0, capacity),
	}
}

// Add records a sample, evicting the oldest one when full. Costs that are
// negative or not finite are dropped and Add returns false.
func (d *LocalData) Add(args []float64, cost float64) bool {
	if cost < 0 || math.IsNaN(cost) || math.IsInf(cost, 0) {
		return false
	}
	if len(d.samples) == d.capacity {
		copy(d.samples, d.samples[1:])
		d.samples = d.samples[:len(d.samples)-1]
	}
	d.samples = append(d.samples, Sample{Args: cloneArgs(args), Cost: cost})
	return true
}

// Len returns the number of samples held.
func (d *LocalData) Len() int {
	return len(d.samples)
}

// Samples returns a copy of the samples, oldest first.
func (d *LocalData) Samples() []Sample {
	out := make([]Sample, len(d.samples))
	for i, s := range d.samples {
		out[i] = Sample{Args: cloneArgs(s.Args), Cost: s.Cost}
	}
	return out
}

// Intervals derives the achievable local costs. An empty store yields the
// empty set, which callers read as "no data yet".
func (d *LocalData) Intervals() interval.Set {
	if len(d.samples) == 0 {
		return interval.Set{}
	}

	ranges := make([]interval.Range, len(d.samples))
	for i, s := range d.samples {
		ranges[i] = interval.Range{Lo: s.Cost, Hi: s.Cost}
	}
	set := interval.New(ranges...)
	if d.mergeGap == 0 || set.Len() < 2 {
		return set
	}

	merged := set.Ranges()[:1]
	for _, r := range set.Ranges()[1:] {
		last := &merged[len(merged)-1]
		if r.Lo-last.Hi <= d.mergeGap {
			last.Hi = r.Hi
			continue
		}
		merged = append(merged, r)
	}
	return interval.New(merged...)
}

// Closest returns the arguments whose recorded cost is nearest to objective.
// ok is false when objective is negative or the store is empty.
func (d *LocalData) Closest(objective float64) (args []float64, ok bool) {
	if objective < 0 || len(d.samples) == 0 {
		return nil, false
	}

	best := 0
	distance := math.Abs(d.samples[0].Cost - objective)
	for i, s := range d.samples[1:] {
		if dd := math.Abs(s.Cost - objective); dd < distance {
			best, distance = i+1, dd
		}
	}
	return cloneArgs(d.samples[best].Args), true
}

func cloneArgs(args []float64) []float64 {
	if args == nil {
		return []float64{}
	}
	out := make([]float64, len(args))
	copy(out, args)
	return out
}
