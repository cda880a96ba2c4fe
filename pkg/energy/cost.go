package energy

import (
	"math"
	"time"
)

// CostModel is the linear cost of the local work of a box, in milliseconds:
// c0 + c1*args[0] + c2*args[1] + ...
//
// Coefficients beyond the length of args are ignored, as are arguments
// beyond the coefficients.
type CostModel struct {
	Coefficients []float64
}

// Cost returns the modelled cost of args in milliseconds, never negative.
func (m CostModel) Cost(args []float64) float64 {
	if len(m.Coefficients) == 0 {
		return 0
	}

	cost := m.Coefficients[0]
	for i, c := range m.Coefficients[1:] {
		if i >= len(args) {
			break
		}
		cost += c * args[i]
	}
	if math.IsNaN(cost) || cost < 0 {
		return 0
	}
	return cost
}

// Duration is Cost as a time.Duration.
func (m CostModel) Duration(args []float64) time.Duration {
	cost := m.Cost(args)
	if math.IsInf(cost, 1) || cost > float64(math.MaxInt64/int64(time.Millisecond)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(cost * float64(time.Millisecond))
}
