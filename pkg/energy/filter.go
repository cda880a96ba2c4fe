package energy

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// ArgsFilter counts how often argument vectors are seen, approximately.
//
// It is a count-min sketch: depth rows of width counters, each row indexed by
// a different hash of the key. The estimate is the minimum over rows, so it
// can overcount on collisions but never undercounts.
type ArgsFilter struct {
	threshold int
	width     uint64
	counters  [][]uint32
}

// NewArgsFilter creates a filter; zero values select the defaults.
func NewArgsFilter(threshold, width, depth int) *ArgsFilter {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if width <= 0 {
		width = DefaultFilterWidth
	}
	if depth <= 0 {
		depth = DefaultFilterDepth
	}

	counters := make([][]uint32, depth)
	for i := range counters {
		counters[i] = make([]uint32, width)
	}
	return &ArgsFilter{
		threshold: threshold,
		width:     uint64(width),
		counters:  counters,
	}
}

// Threshold returns the count at which IsTriedEnough turns true.
func (f *ArgsFilter) Threshold() int {
	return f.threshold
}

// TryArgs records one more occurrence of args.
func (f *ArgsFilter) TryArgs(args []float64) {
	h1, h2 := f.hashes(args)
	for i, row := range f.counters {
		idx := f.index(h1, h2, i)
		if row[idx] < math.MaxUint32 {
			row[idx]++
		}
	}
}

// Count returns the estimated number of occurrences of args.
func (f *ArgsFilter) Count(args []float64) int {
	h1, h2 := f.hashes(args)
	count := uint32(math.MaxUint32)
	for i, row := range f.counters {
		if c := row[f.index(h1, h2, i)]; c < count {
			count = c
		}
	}
	return int(count)
}

// IsTriedEnough reports whether args has been seen at least Threshold times.
func (f *ArgsFilter) IsTriedEnough(args []float64) bool {
	return f.Count(args) >= f.threshold
}

// hashes splits one 64-bit digest into the two halves used for double hashing.
func (f *ArgsFilter) hashes(args []float64) (uint64, uint64) {
	sum := xxhash.Sum64(argsKey(args))
	h1 := sum & 0xffffffff
	h2 := sum >> 32
	if h2 == 0 {
		h2 = 1
	}
	return h1, h2
}

func (f *ArgsFilter) index(h1, h2 uint64, row int) uint64 {
	return (h1 + uint64(row)*h2) % f.width
}

// argsKey encodes args as concatenated big-endian IEEE-754 doubles.
func argsKey(args []float64) []byte {
	key := make([]byte, 8*len(args))
	for i, a := range args {
		binary.BigEndian.PutUint64(key[8*i:], math.Float64bits(a))
	}
	return key
}
