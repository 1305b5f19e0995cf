package stats_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GenSpectrum/evobench-sub000/internal/logtree"
	"github.com/GenSpectrum/evobench-sub000/internal/stats"
)

func scopeMessages(pn string, realTimeNanos uint64) []logtree.Message {
	return []logtree.Message{
		{Timing: &logtree.TimingMessage{Kind: logtree.TS, ThreadID: 1, ProbeName: pn}},
		{Timing: &logtree.TimingMessage{Kind: logtree.TE, ThreadID: 1, ProbeName: pn, RealTimeNanos: realTimeNanos}},
	}
}

func buildRunTree(t *testing.T, samples map[string][]uint64) *logtree.Tree {
	t.Helper()

	messages := []logtree.Message{
		{Timing: &logtree.TimingMessage{Kind: logtree.TThreadStart, ThreadID: 1, ProbeName: "T"}},
	}

	for pn, values := range samples {
		for _, v := range values {
			messages = append(messages, scopeMessages(pn, v)...)
		}
	}

	messages = append(messages, logtree.Message{Timing: &logtree.TimingMessage{Kind: logtree.TThreadEnd, ThreadID: 1, ProbeName: "T"}})

	tree, err := logtree.Parse(messages)
	require.NoError(t, err)

	return tree
}

func TestComputeTableGroupsByProbeName(t *testing.T) {
	tree := buildRunTree(t, map[string][]uint64{"A": {10, 20, 30}})

	table, err := stats.ComputeTable(tree, stats.FieldRealTime, stats.KeyVariantProbeName, 4, nil, nil)
	require.NoError(t, err)

	row, ok := table.Rows["A"]
	require.True(t, ok)
	require.NotNil(t, row.Stats)
	assert.Equal(t, uint64(3), row.Stats.NumValues)
}

func TestComputeTableFilteredRowFallsBackToCount(t *testing.T) {
	tree := buildRunTree(t, map[string][]uint64{"A": {10, 20}})

	alwaysExclude := func(*logtree.Span) bool { return false }

	table, err := stats.ComputeTable(tree, stats.FieldRealTime, stats.KeyVariantProbeName, 4, nil, alwaysExclude)
	require.NoError(t, err)

	row, ok := table.Rows["A"]
	require.True(t, ok)
	require.Nil(t, row.Stats)
	require.NotNil(t, row.Count)
	assert.Equal(t, uint64(2), *row.Count)
}

func TestComputeAllFieldsTablesCoversAllFourFields(t *testing.T) {
	tree := buildRunTree(t, map[string][]uint64{"A": {10}})

	tables, err := stats.ComputeAllFieldsTables(tree, stats.KeyVariantProbeName, 4, nil, nil)
	require.NoError(t, err)

	assert.NotNil(t, tables.RealTime)
	assert.NotNil(t, tables.CPUTime)
	assert.NotNil(t, tables.SysTime)
	assert.NotNil(t, tables.ContextSwitches)
}

func TestSummarizeAcrossRunsInnerJoinsAndDropsCountRows(t *testing.T) {
	runA := buildRunTree(t, map[string][]uint64{"A": {10}, "B": {1}})
	runB := buildRunTree(t, map[string][]uint64{"A": {20}})

	tableA, err := stats.ComputeTable(runA, stats.FieldRealTime, stats.KeyVariantProbeName, 4, nil, nil)
	require.NoError(t, err)

	tableB, err := stats.ComputeTable(runB, stats.FieldRealTime, stats.KeyVariantProbeName, 4, nil, nil)
	require.NoError(t, err)

	field, err := stats.ParseStatsField("average", 4)
	require.NoError(t, err)

	summary, err := stats.SummarizeAcrossRuns([]*stats.Table{tableA, tableB}, field, 4)
	require.NoError(t, err)

	_, hasB := summary.Rows["B"]
	assert.False(t, hasB, "a key absent from one run's table must be dropped by the inner join")

	rowA, ok := summary.Rows["A"]
	require.True(t, ok)
	require.NotNil(t, rowA.Stats)
	assert.Equal(t, uint64(2), rowA.Stats.NumValues)
}
