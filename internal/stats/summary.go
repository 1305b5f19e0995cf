package stats

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// SummarizeAcrossRuns inner-joins rows by key across same-shape per-run
// tables, then computes Stats of the selected field across the per-run
// values for each jointly present key. Rows that reduce to a Count in any
// run are dropped from the summary (spec.md §4.8).
func SummarizeAcrossRuns(tables []*Table, field StatsField, tileCount int) (*Table, error) {
	if len(tables) == 0 {
		return nil, ErrNoInputs
	}

	keys := commonKeys(tables)
	rows := make(map[string]RowValue, len(keys))

	for _, key := range keys {
		values, ok, err := perRunScalars(tables, key, field)
		if err != nil {
			return nil, err
		}

		if !ok {
			continue
		}

		s, err := FromValues(values, tileCount)
		if err != nil {
			return nil, fmt.Errorf("stats: summary row %q: %w", key, err)
		}

		rows[key] = RowValue{Stats: &s}
	}

	return &Table{Field: tables[0].Field, Variant: tables[0].Variant, Rows: rows}, nil
}

func perRunScalars(tables []*Table, key string, field StatsField) ([]WeightedValue, bool, error) {
	values := make([]WeightedValue, 0, len(tables))

	for _, t := range tables {
		row, present := t.Rows[key]
		if !present || row.Stats == nil {
			return nil, false, nil
		}

		scalar, err := field.Select(*row.Stats)
		if err != nil {
			return nil, false, err
		}

		values = append(values, WeightedValue{Value: scalar, Weight: 1})
	}

	return values, true, nil
}

func commonKeys(tables []*Table) []string {
	if len(tables) == 0 {
		return nil
	}

	counts := make(map[string]int)

	for _, t := range tables {
		for key := range t.Rows {
			counts[key]++
		}
	}

	keys := make([]string, 0, len(counts))

	for key, n := range counts {
		if n == len(tables) {
			keys = append(keys, key)
		}
	}

	return keys
}

// SummaryGrid is the per-run-set, per-field set of cross-run summary
// tables — one row-Stats table per Field.
type SummaryGrid struct {
	RealTime        *Table
	CPUTime         *Table
	SysTime         *Table
	ContextSwitches *Table
}

// PerRunTablesByField groups each run's AllFieldsTables by field, the shape
// ComputeSummaryGrid consumes.
type PerRunTablesByField struct {
	RealTime        []*Table
	CPUTime         []*Table
	SysTime         []*Table
	ContextSwitches []*Table
}

// ComputeSummaryGrid computes the four cross-run summary tables
// concurrently (spec.md §5: "the per-run × per-field grid is computed in
// parallel").
func ComputeSummaryGrid(perRun PerRunTablesByField, field StatsField, tileCount int) (*SummaryGrid, error) {
	g, _ := errgroup.WithContext(context.Background())

	result := &SummaryGrid{}

	assign := func(tables []*Table, dst **Table) {
		g.Go(func() error {
			t, err := SummarizeAcrossRuns(tables, field, tileCount)
			if err != nil {
				return err
			}

			*dst = t

			return nil
		})
	}

	assign(perRun.RealTime, &result.RealTime)
	assign(perRun.CPUTime, &result.CPUTime)
	assign(perRun.SysTime, &result.SysTime)
	assign(perRun.ContextSwitches, &result.ContextSwitches)

	err := g.Wait()
	if err != nil {
		return nil, err
	}

	return result, nil
}
