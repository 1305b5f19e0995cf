package stats

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// StatsFieldKind selects one scalar out of a Stats value.
type StatsFieldKind int

// Supported StatsFieldKind values.
const (
	FieldKindN StatsFieldKind = iota
	FieldKindSum
	FieldKindAverage
	FieldKindMedian
	FieldKindSD
	FieldKindTile
)

// StatsField is a fully resolved scalar selector: Kind plus, for
// FieldKindTile, which tile index.
type StatsField struct {
	Kind      StatsFieldKind
	TileIndex int
}

// ParseStatsField accepts either a field name (n, sum, average, median,
// sd) or a fraction in [0, 1], which is mapped onto the nearest tile index
// for the given tileCount (spec.md §4.8).
func ParseStatsField(s string, tileCount int) (StatsField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "n":
		return StatsField{Kind: FieldKindN}, nil
	case "sum":
		return StatsField{Kind: FieldKindSum}, nil
	case "average", "avg", "mean":
		return StatsField{Kind: FieldKindAverage}, nil
	case "median":
		return StatsField{Kind: FieldKindMedian}, nil
	case "sd", "stddev":
		return StatsField{Kind: FieldKindSD}, nil
	}

	frac, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return StatsField{}, fmt.Errorf("stats: invalid field selector %q", s)
	}

	if frac < 0 || frac > 1 {
		return StatsField{}, fmt.Errorf("stats: field fraction %v out of [0,1]", frac)
	}

	index := int(math.Round(frac * float64(tileCount-1)))

	return StatsField{Kind: FieldKindTile, TileIndex: index}, nil
}

// Select extracts the field's scalar value from s.
func (f StatsField) Select(s Stats) (uint64, error) {
	switch f.Kind {
	case FieldKindN:
		return s.NumValues, nil
	case FieldKindSum:
		return s.Sum, nil
	case FieldKindAverage:
		return s.Average, nil
	case FieldKindMedian:
		return s.Median, nil
	case FieldKindSD:
		return s.SD, nil
	case FieldKindTile:
		if f.TileIndex < 0 || f.TileIndex >= len(s.Tiles) {
			return 0, fmt.Errorf("stats: tile index %d out of range (have %d)", f.TileIndex, len(s.Tiles))
		}

		return s.Tiles[f.TileIndex], nil
	default:
		return 0, fmt.Errorf("stats: unknown field kind %d", f.Kind)
	}
}

// Field is one of the four measured quantities a timing record carries.
// Values dispatch statically (spec.md §9's "polymorphism over the four
// statistical fields" design note).
type Field int

// Supported Field values.
const (
	FieldRealTime Field = iota
	FieldCPUTime
	FieldSysTime
	FieldContextSwitches
)

// AllFields lists every Field, in the order the all-fields table presents
// them.
var AllFields = []Field{FieldRealTime, FieldCPUTime, FieldSysTime, FieldContextSwitches}

// DisplayName is the human-facing label for the field.
func (f Field) DisplayName() string {
	switch f {
	case FieldRealTime:
		return "real time"
	case FieldCPUTime:
		return "CPU time"
	case FieldSysTime:
		return "sys time"
	case FieldContextSwitches:
		return "context switches"
	default:
		return "unknown field"
	}
}

// Unit is the short unit string for the field's values.
func (f Field) Unit() string {
	switch f {
	case FieldRealTime, FieldCPUTime, FieldSysTime:
		return "ns"
	case FieldContextSwitches:
		return "count"
	default:
		return ""
	}
}
