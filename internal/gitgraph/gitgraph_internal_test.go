package gitgraph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GenSpectrum/evobench-sub000/internal/model"
)

func mustHash(t *testing.T, s string) model.GitHash {
	t.Helper()

	h, err := model.ParseGitHash(s)
	require.NoError(t, err)

	return h
}

// buildLinearGraph constructs a -> b -> c -> d (d oldest, a newest) with one
// second between each commit's time, for exercising closest-ancestor search
// without needing a real on-disk repository.
func buildLinearGraph(t *testing.T) (*Data, map[string]model.GitHash) {
	t.Helper()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	hashes := map[string]model.GitHash{
		"a": mustHash(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		"b": mustHash(t, "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		"c": mustHash(t, "cccccccccccccccccccccccccccccccccccccccc"[:40]),
		"d": mustHash(t, "dddddddddddddddddddddddddddddddddddddddd"),
	}

	commits := map[model.GitHash]*EnrichedGitCommit{
		hashes["a"]: {Hash: hashes["a"], CommitterTime: base.Add(3 * time.Second), ParentHashes: []model.GitHash{hashes["b"]}},
		hashes["b"]: {Hash: hashes["b"], CommitterTime: base.Add(2 * time.Second), ParentHashes: []model.GitHash{hashes["c"]}},
		hashes["c"]: {Hash: hashes["c"], CommitterTime: base.Add(1 * time.Second), ParentHashes: []model.GitHash{hashes["d"]}},
		hashes["d"]: {Hash: hashes["d"], CommitterTime: base, ParentHashes: nil},
	}

	return &Data{commits: commits}, hashes
}

func TestClosestMatchingAncestorOfFindsSelf(t *testing.T) {
	graph, hashes := buildLinearGraph(t)

	found, ok, err := graph.ClosestMatchingAncestorOf(hashes["a"], func(h model.GitHash) bool { return h == hashes["a"] })
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, hashes["a"], found)
}

func TestClosestMatchingAncestorOfWalksBackThroughParents(t *testing.T) {
	graph, hashes := buildLinearGraph(t)

	found, ok, err := graph.ClosestMatchingAncestorOf(hashes["a"], func(h model.GitHash) bool { return h == hashes["c"] })
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, hashes["c"], found)
}

func TestClosestMatchingAncestorOfNoMatch(t *testing.T) {
	graph, hashes := buildLinearGraph(t)

	_, ok, err := graph.ClosestMatchingAncestorOf(hashes["a"], func(model.GitHash) bool { return false })
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClosestMatchingAncestorOfUnknownStart(t *testing.T) {
	graph, _ := buildLinearGraph(t)

	unknown := mustHash(t, "eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")

	_, _, err := graph.ClosestMatchingAncestorOf(unknown, func(model.GitHash) bool { return true })
	assert.Error(t, err)
}

// buildForkingGraph constructs S -> {A, B}, B -> C, with committer times
// S=t100, B=t95, C=t92, A=t90, so the frontier after expanding S holds a
// matching-but-older A alongside a non-matching-but-newer B. The search
// must return A without first expanding B down to C.
func buildForkingGraph(t *testing.T) (*Data, map[string]model.GitHash) {
	t.Helper()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	hashes := map[string]model.GitHash{
		"s": mustHash(t, "eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"[:40]),
		"a": mustHash(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		"b": mustHash(t, "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		"c": mustHash(t, "cccccccccccccccccccccccccccccccccccccccc"[:40]),
	}

	commits := map[model.GitHash]*EnrichedGitCommit{
		hashes["s"]: {Hash: hashes["s"], CommitterTime: base.Add(100 * time.Second), ParentHashes: []model.GitHash{hashes["a"], hashes["b"]}},
		hashes["a"]: {Hash: hashes["a"], CommitterTime: base.Add(90 * time.Second), ParentHashes: nil},
		hashes["b"]: {Hash: hashes["b"], CommitterTime: base.Add(95 * time.Second), ParentHashes: []model.GitHash{hashes["c"]}},
		hashes["c"]: {Hash: hashes["c"], CommitterTime: base.Add(92 * time.Second), ParentHashes: nil},
	}

	return &Data{commits: commits}, hashes
}

func TestClosestMatchingAncestorOfPrefersFrontierMatchOverExpandingNewerNonMatch(t *testing.T) {
	graph, hashes := buildForkingGraph(t)

	match := func(h model.GitHash) bool { return h == hashes["a"] || h == hashes["c"] }

	found, ok, err := graph.ClosestMatchingAncestorOf(hashes["s"], match)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, hashes["a"], found, "must return the matching A already on the frontier, not fall through to C")
}

func TestTagsOfUnknownCommit(t *testing.T) {
	graph, _ := buildLinearGraph(t)

	unknown := mustHash(t, "eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
	assert.Nil(t, graph.TagsOf(unknown))
}
