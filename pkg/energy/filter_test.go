package energy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgsFilter_Threshold(t *testing.T) {
	f := NewArgsFilter(4, 0, 0)
	args := []float64{1, 2.5}

	require.False(t, f.IsTriedEnough(args), "before any try")
	assert.Zero(t, f.Count(args))

	for i := 1; i <= 3; i++ {
		f.TryArgs(args)
		require.False(t, f.IsTriedEnough(args), "after %d tries", i)
	}

	f.TryArgs(args)
	assert.True(t, f.IsTriedEnough(args), "after 4 tries")
	assert.Equal(t, 4, f.Count(args))
}

func TestArgsFilter_Defaults(t *testing.T) {
	f := NewArgsFilter(0, 0, 0)
	assert.Equal(t, DefaultThreshold, f.Threshold())
	assert.Len(t, f.counters, DefaultFilterDepth)
	assert.EqualValues(t, DefaultFilterWidth, f.width)
}

func TestArgsFilter_NeverUndercounts(t *testing.T) {
	f := NewArgsFilter(10, 16, 3)
	seen := map[float64]int{}

	for i := 0; i < 200; i++ {
		v := float64(i % 37)
		f.TryArgs([]float64{v})
		seen[v]++
	}

	for v, n := range seen {
		assert.GreaterOrEqual(t, f.Count([]float64{v}), n, "Count(%g)", v)
	}
}

func TestArgsFilter_DistinguishesArgs(t *testing.T) {
	f := NewArgsFilter(2, 0, 0)
	f.TryArgs([]float64{1, 2})
	f.TryArgs([]float64{1, 2})

	assert.True(t, f.IsTriedEnough([]float64{1, 2}))
	assert.False(t, f.IsTriedEnough([]float64{2, 1}))
}

func TestArgsFilter_EmptyArgs(t *testing.T) {
	f := NewArgsFilter(1, 0, 0)
	f.TryArgs(nil)
	assert.True(t, f.IsTriedEnough([]float64{}), "nil and empty args share a counter")
}
