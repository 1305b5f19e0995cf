package stats

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/GenSpectrum/evobench-sub000/internal/logtree"
)

// KeyVariant selects how a Table's rows are keyed (spec.md §4.8).
type KeyVariant int

// Supported KeyVariant values.
const (
	KeyVariantProbeName KeyVariant = iota
	KeyVariantPathShownForward
	KeyVariantPathShownReversed
	KeyVariantPathHiddenForward
	KeyVariantPathHiddenReversed
)

func (v KeyVariant) pathOptions() logtree.PathStringOptions {
	switch v {
	case KeyVariantPathShownForward:
		return logtree.PathStringOptions{ShowKindMarkers: true, ShowThreadNumber: true}
	case KeyVariantPathShownReversed:
		return logtree.PathStringOptions{ShowKindMarkers: true, ShowThreadNumber: true, Reverse: true}
	case KeyVariantPathHiddenForward:
		return logtree.PathStringOptions{ShowKindMarkers: true, ShowThreadNumber: false}
	case KeyVariantPathHiddenReversed:
		return logtree.PathStringOptions{ShowKindMarkers: true, ShowThreadNumber: false, Reverse: true}
	default:
		return logtree.PathStringOptions{}
	}
}

func rowKey(tree *logtree.Tree, span *logtree.Span, variant KeyVariant) string {
	if variant == KeyVariantProbeName {
		return span.ProbeName
	}

	prefix, main := tree.PathString(span.ID, variant.pathOptions())
	if prefix == "" {
		return main
	}

	return prefix + "/" + main
}

// RowValue is either a computed Stats or, when every observation of that
// row's probe was filtered out, a bare occurrence Count (spec.md §4.8).
type RowValue struct {
	Stats *Stats
	Count *uint64
}

// Table is one field's per-row statistics for a single run.
type Table struct {
	Field   Field
	Variant KeyVariant
	Rows    map[string]RowValue
}

// WeightFunc assigns a sampling weight to one closed Scope span.
type WeightFunc func(span *logtree.Span) uint32

// FilterFunc reports whether a closed Scope span's observation should be
// included in its row's Stats. Excluded spans still count toward a
// Count-only fallback row if every observation for that key is excluded.
type FilterFunc func(span *logtree.Span) bool

// ComputeTable builds one field's table from tree, grouping closed Scope
// spans by variant.
func ComputeTable(tree *logtree.Tree, field Field, variant KeyVariant, tileCount int, weight WeightFunc, filter FilterFunc) (*Table, error) {
	grouped := make(map[string][]WeightedValue)
	observed := make(map[string]uint64)

	for i := 0; i < tree.Len(); i++ {
		span := tree.Span(logtree.SpanID(i))
		if span.Variant != logtree.VariantScope {
			continue
		}

		_, end, ok := span.StartAndEnd()
		if !ok {
			continue
		}

		key := rowKey(tree, span, variant)
		observed[key]++

		if filter != nil && !filter(span) {
			continue
		}

		w := uint32(1)
		if weight != nil {
			w = weight(span)
		}

		grouped[key] = append(grouped[key], WeightedValue{Value: field.ExtractValue(end), Weight: w})
	}

	rows := make(map[string]RowValue, len(observed))

	for key, count := range observed {
		values, ok := grouped[key]
		if !ok || len(values) == 0 {
			n := count
			rows[key] = RowValue{Count: &n}

			continue
		}

		s, err := FromValues(values, tileCount)
		if err != nil {
			return nil, fmt.Errorf("stats: row %q: %w", key, err)
		}

		rows[key] = RowValue{Stats: &s}
	}

	return &Table{Field: field, Variant: variant, Rows: rows}, nil
}

// AllFieldsTables holds the four per-field tables computed for one run.
type AllFieldsTables struct {
	RealTime        *Table
	CPUTime         *Table
	SysTime         *Table
	ContextSwitches *Table
}

// ForField returns the table for the given field.
func (a *AllFieldsTables) ForField(f Field) *Table {
	switch f {
	case FieldRealTime:
		return a.RealTime
	case FieldCPUTime:
		return a.CPUTime
	case FieldSysTime:
		return a.SysTime
	case FieldContextSwitches:
		return a.ContextSwitches
	default:
		return nil
	}
}

// ComputeAllFieldsTables computes the four per-field tables concurrently
// (spec.md §5: "the four per-field tables are computed in parallel").
func ComputeAllFieldsTables(tree *logtree.Tree, variant KeyVariant, tileCount int, weight WeightFunc, filter FilterFunc) (*AllFieldsTables, error) {
	g, _ := errgroup.WithContext(context.Background())

	result := &AllFieldsTables{}

	assign := func(field Field, dst **Table) {
		g.Go(func() error {
			t, err := ComputeTable(tree, field, variant, tileCount, weight, filter)
			if err != nil {
				return err
			}

			*dst = t

			return nil
		})
	}

	assign(FieldRealTime, &result.RealTime)
	assign(FieldCPUTime, &result.CPUTime)
	assign(FieldSysTime, &result.SysTime)
	assign(FieldContextSwitches, &result.ContextSwitches)

	err := g.Wait()
	if err != nil {
		return nil, err
	}

	return result, nil
}
