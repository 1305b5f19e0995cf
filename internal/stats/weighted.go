// Package stats computes weighted-value statistics over spans parsed from a
// benchmarking run's log, and joins those statistics across runs sharing a
// call-path key (spec.md §4.8).
package stats

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"
)

// WeightedValue is one observation: value contributes as if it were
// weight identical copies (used for EVOBENCH_SCOPE_EVERY sampling, spec.md
// §4.8).
type WeightedValue struct {
	Value  uint64
	Weight uint32
}

// Sentinel errors, named after spec.md §4.8's error kinds.
var (
	ErrNoInputs               = errors.New("stats: no input values")
	ErrZeroWeight             = errors.New("stats: weighted value has zero weight")
	ErrSaturated              = errors.New("stats: arithmetic saturated")
	ErrVirtualCountOverflow   = errors.New("stats: virtual count does not fit in a uint64")
	ErrVirtualSumOverflow     = errors.New("stats: virtual sum does not fit in a uint64")
)

// Stats is the weighted-value statistical summary of one set of
// observations.
type Stats struct {
	NumValues uint64
	Sum       uint64
	Average   uint64
	Median    uint64
	Variance  float64
	SD        uint64
	Tiles     []uint64
}

// indexedNumbers answers "what is the value at virtual position i" without
// materializing weight copies of each value, by binary-searching a
// cumulative-weight prefix array over the values sorted ascending.
type indexedNumbers struct {
	sortedValues []uint64
	cumWeight    []uint64
}

func buildIndexedNumbers(values []WeightedValue) indexedNumbers {
	sorted := make([]WeightedValue, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Value < sorted[j].Value })

	sortedValues := make([]uint64, len(sorted))
	cumWeight := make([]uint64, len(sorted))

	var running uint64

	for i, wv := range sorted {
		running += uint64(wv.Weight)
		sortedValues[i] = wv.Value
		cumWeight[i] = running
	}

	return indexedNumbers{sortedValues: sortedValues, cumWeight: cumWeight}
}

// at returns the value occupying virtual index i (0-based, 0 <= i <
// total weight).
func (n indexedNumbers) at(i uint64) uint64 {
	k := sort.Search(len(n.cumWeight), func(k int) bool { return n.cumWeight[k] > i })

	return n.sortedValues[k]
}

// FromValues computes the full Stats summary of values, sampling tileCount
// tiles (spec.md §4.8). tileCount must be >= 2.
func FromValues(values []WeightedValue, tileCount int) (Stats, error) {
	if len(values) == 0 {
		return Stats{}, ErrNoInputs
	}

	if tileCount < 2 {
		return Stats{}, fmt.Errorf("stats: tileCount must be >= 2, got %d", tileCount)
	}

	virtualCount := new(big.Int)
	virtualSum := new(big.Int)

	for _, wv := range values {
		if wv.Weight == 0 {
			return Stats{}, ErrZeroWeight
		}

		weight := big.NewInt(int64(wv.Weight))
		virtualCount.Add(virtualCount, weight)

		contribution := new(big.Int).Mul(big.NewInt(0).SetUint64(wv.Value), weight)
		virtualSum.Add(virtualSum, contribution)
	}

	if !virtualCount.IsUint64() {
		return Stats{}, ErrVirtualCountOverflow
	}

	if !virtualSum.IsUint64() {
		return Stats{}, ErrVirtualSumOverflow
	}

	count := virtualCount.Uint64()
	sum := virtualSum.Uint64()

	average := halfUpDivide(virtualSum, virtualCount)

	indexed := buildIndexedNumbers(values)
	median := medianOf(indexed, count)

	variance := varianceOf(values, count, average)
	sd := uint64(math.Round(math.Sqrt(variance)))

	tiles := make([]uint64, tileCount)
	for i := 0; i < tileCount; i++ {
		pos := tilePosition(i, tileCount, count)
		tiles[i] = indexed.at(pos)
	}

	return Stats{
		NumValues: count,
		Sum:       sum,
		Average:   average,
		Median:    median,
		Variance:  variance,
		SD:        sd,
		Tiles:     tiles,
	}, nil
}

// halfUpDivide computes round-half-up(sum / count) as a uint64, matching
// average = (sum + count/2) / count (spec.md §4.8).
func halfUpDivide(sum, count *big.Int) uint64 {
	halfCount := new(big.Int).Rsh(count, 1)
	numerator := new(big.Int).Add(sum, halfCount)
	result := new(big.Int).Div(numerator, count)

	return result.Uint64()
}

func medianOf(indexed indexedNumbers, count uint64) uint64 {
	if count%2 == 1 {
		return indexed.at(count / 2)
	}

	lower := indexed.at(count/2 - 1)
	upper := indexed.at(count / 2)

	return (lower + upper + 1) / 2
}

func varianceOf(values []WeightedValue, virtualCount uint64, average uint64) float64 {
	var sumSquaredDiff float64

	avg := float64(average)

	for _, wv := range values {
		diff := float64(wv.Value) - avg
		sumSquaredDiff += float64(wv.Weight) * diff * diff
	}

	return sumSquaredDiff / float64(virtualCount)
}

// tilePosition computes round(i*(virtualCount-1)/(tileCount-1)), the
// virtual index sampled for tile i (spec.md §4.8).
func tilePosition(i, tileCount int, virtualCount uint64) uint64 {
	if virtualCount == 0 {
		return 0
	}

	numerator := float64(i) * float64(virtualCount-1)
	denominator := float64(tileCount - 1)

	return uint64(math.Round(numerator / denominator))
}
