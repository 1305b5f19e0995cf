package workdirpool_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GenSpectrum/evobench-sub000/internal/model"
	"github.com/GenSpectrum/evobench-sub000/internal/workdir"
	"github.com/GenSpectrum/evobench-sub000/internal/workdirpool"
)

// fakeGit is a minimal in-memory GitWorkingDir: Clone/ResetHard just create
// the directory, no real git state is needed for pool bookkeeping tests.
type fakeGit struct {
	cloneErr  error
	resetErr  error
	fetchErr  error
	heads     map[string]model.GitHash
}

func (g *fakeGit) Clone(_ context.Context, _ string, dir string) error {
	if g.cloneErr != nil {
		return g.cloneErr
	}

	return os.MkdirAll(dir, 0o750)
}

func (g *fakeGit) FetchTags(_ context.Context, _ string) error { return g.fetchErr }

func (g *fakeGit) ResetHard(_ context.Context, dir string, commit model.GitHash) error {
	if g.resetErr != nil {
		return g.resetErr
	}

	if g.heads == nil {
		g.heads = map[string]model.GitHash{}
	}

	g.heads[dir] = commit

	return nil
}

func (g *fakeGit) ResolveTags(_ context.Context, _ string, _ model.GitHash) ([]string, error) {
	return nil, nil
}

func (g *fakeGit) HeadCommit(_ context.Context, dir string) (model.GitHash, error) {
	return g.heads[dir], nil
}

type fakeQueueState struct {
	live map[model.GitHash]bool
}

func (f fakeQueueState) HasJobForCommit(c model.GitHash) bool { return f.live[c] }

func mustHash(t *testing.T, hexDigit byte) model.GitHash {
	t.Helper()

	raw := make([]byte, 40)
	for i := range raw {
		raw[i] = hexDigit
	}

	h, err := model.ParseGitHash(string(raw))
	require.NoError(t, err)

	return h
}

func newTestPool(t *testing.T, capacity int, git *fakeGit) *workdirpool.Pool {
	t.Helper()

	dir := t.TempDir()

	pool, err := workdirpool.Open(workdirpool.Config{
		BaseDir:   dir,
		Capacity:  capacity,
		RemoteURL: "https://example.invalid/repo.git",
		Git:       git,
	})
	require.NoError(t, err)

	err = pool.Lock()
	require.NoError(t, err)

	t.Cleanup(func() { _ = pool.Unlock() })

	return pool
}

func TestAssignmentAllocatesNewWhenCapacityAvailable(t *testing.T) {
	pool := newTestPool(t, 2, &fakeGit{})
	commitA := mustHash(t, 'a')

	wd, err := pool.GetAWorkingDirectoryFor(context.Background(), commitA, fakeQueueState{})
	require.NoError(t, err)
	assert.Equal(t, commitA, wd.Record.CommitID)
	assert.Equal(t, workdir.StatusCheckedOut, wd.Record.Status)

	_, err = os.Stat(wd.Path)
	assert.NoError(t, err)
}

func TestAssignmentReusesEntryAtSameCommit(t *testing.T) {
	pool := newTestPool(t, 2, &fakeGit{})
	commitA := mustHash(t, 'a')

	first, err := pool.GetAWorkingDirectoryFor(context.Background(), commitA, fakeQueueState{})
	require.NoError(t, err)

	second, err := pool.GetAWorkingDirectoryFor(context.Background(), commitA, fakeQueueState{})
	require.NoError(t, err)

	assert.Equal(t, first.Record.ID, second.Record.ID)
}

func TestAssignmentReusesObsoleteEntryOverCloning(t *testing.T) {
	pool := newTestPool(t, 1, &fakeGit{})
	commitA := mustHash(t, 'a')
	commitB := mustHash(t, 'b')

	first, err := pool.GetAWorkingDirectoryFor(context.Background(), commitA, fakeQueueState{})
	require.NoError(t, err)

	second, err := pool.GetAWorkingDirectoryFor(context.Background(), commitB, fakeQueueState{live: map[model.GitHash]bool{}})
	require.NoError(t, err)

	assert.Equal(t, first.Record.ID, second.Record.ID, "commit A has no pending job so its entry is obsolete and reused")
	assert.Equal(t, commitB, second.Record.CommitID)
}

func TestAssignmentFallsBackToLRUWhenNothingObsolete(t *testing.T) {
	pool := newTestPool(t, 1, &fakeGit{})
	commitA := mustHash(t, 'a')
	commitB := mustHash(t, 'b')

	_, err := pool.GetAWorkingDirectoryFor(context.Background(), commitA, fakeQueueState{live: map[model.GitHash]bool{commitA: true}})
	require.NoError(t, err)

	wd, err := pool.GetAWorkingDirectoryFor(context.Background(), commitB, fakeQueueState{live: map[model.GitHash]bool{commitA: true}})
	require.NoError(t, err)
	assert.Equal(t, commitB, wd.Record.CommitID)
}

func TestProcessInWorkingDirectoryMarksFinishedOnSuccess(t *testing.T) {
	pool := newTestPool(t, 1, &fakeGit{})
	commitA := mustHash(t, 'a')

	wd, err := pool.GetAWorkingDirectoryFor(context.Background(), commitA, fakeQueueState{})
	require.NoError(t, err)

	runParams := model.RunParameters{CommitID: commitA}

	err = pool.ProcessInWorkingDirectory(time.Now(), *wd, &runParams, "test run", func(workdir.WorkingDirectory) error { return nil })
	require.NoError(t, err)

	all, err := pool.List()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, workdir.StatusFinished, all[0].Record.Status)
	assert.Equal(t, uint64(1), all[0].Record.NumRuns)
}

func TestProcessInWorkingDirectoryIncrementsNumRunsBeforeActionRuns(t *testing.T) {
	pool := newTestPool(t, 1, &fakeGit{})
	commitA := mustHash(t, 'a')

	wd, err := pool.GetAWorkingDirectoryFor(context.Background(), commitA, fakeQueueState{})
	require.NoError(t, err)

	runParams := model.RunParameters{CommitID: commitA}
	boom := errors.New("boom")

	var sawNumRuns uint64

	err = pool.ProcessInWorkingDirectory(time.Now(), *wd, &runParams, "test run", func(inner workdir.WorkingDirectory) error {
		sawNumRuns = inner.Record.NumRuns
		return boom
	})
	require.Error(t, err)
	assert.Equal(t, uint64(1), sawNumRuns, "num_runs must count this attempt even though it goes on to error")
}

func TestProcessInWorkingDirectoryArchivesOnError(t *testing.T) {
	pool := newTestPool(t, 1, &fakeGit{})
	commitA := mustHash(t, 'a')

	wd, err := pool.GetAWorkingDirectoryFor(context.Background(), commitA, fakeQueueState{})
	require.NoError(t, err)

	runParams := model.RunParameters{CommitID: commitA}
	boom := errors.New("boom")

	err = pool.ProcessInWorkingDirectory(time.Now(), *wd, &runParams, "test run", func(workdir.WorkingDirectory) error { return boom })
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	all, err := pool.List()
	require.NoError(t, err)
	assert.Len(t, all, 0, "an errored entry leaves the live set")

	archived, err := pool.ListArchivedErrors()
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, wd.Record.ID, archived[0].ID)
	assert.Equal(t, "test run", archived[0].Error.Context)
	assert.Equal(t, "boom", archived[0].Error.ErrorString)
	require.NotNil(t, archived[0].Error.RunParameters)
	assert.Equal(t, commitA, archived[0].Error.RunParameters.CommitID)

	_, statErr := os.Stat(archived[0].DirPath)
	assert.NoError(t, statErr, "the clone directory must be renamed aside, not deleted")
}

func TestRecycleRestoresCheckedOut(t *testing.T) {
	pool := newTestPool(t, 1, &fakeGit{})
	commitA := mustHash(t, 'a')

	wd, err := pool.GetAWorkingDirectoryFor(context.Background(), commitA, fakeQueueState{})
	require.NoError(t, err)

	err = pool.SetStatus(uint64(wd.Record.ID), workdir.StatusExamination, time.Now())
	require.NoError(t, err)

	err = pool.Recycle(uint64(wd.Record.ID), time.Now())
	require.NoError(t, err)

	all, err := pool.List()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, workdir.StatusCheckedOut, all[0].Record.Status)
}

func TestSignalFileBumpsOnMutation(t *testing.T) {
	pool := newTestPool(t, 1, &fakeGit{})
	commitA := mustHash(t, 'a')

	before, err := pool.SignalFile().Poll()
	require.NoError(t, err)

	_, err = pool.GetAWorkingDirectoryFor(context.Background(), commitA, fakeQueueState{})
	require.NoError(t, err)

	after, err := pool.SignalFile().Poll()
	require.NoError(t, err)

	assert.Greater(t, after, before)
}

func TestCleanupRemovesStaleTerminalEntries(t *testing.T) {
	pool := newTestPool(t, 1, &fakeGit{})
	commitA := mustHash(t, 'a')

	wd, err := pool.GetAWorkingDirectoryFor(context.Background(), commitA, fakeQueueState{})
	require.NoError(t, err)

	stale := time.Now().Add(-48 * time.Hour)

	err = pool.SetStatus(uint64(wd.Record.ID), workdir.StatusExamination, stale)
	require.NoError(t, err)

	removed, err := pool.Cleanup(time.Now(), workdirpool.CleanupThresholds{StaleAfter: time.Hour, MinNumRuns: 0})
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, wd.Record.ID, removed[0].Record.ID)

	all, err := pool.List()
	require.NoError(t, err)
	assert.Len(t, all, 0)
}

func TestCleanupSkipsKeptEntries(t *testing.T) {
	pool := newTestPool(t, 1, &fakeGit{})
	commitA := mustHash(t, 'a')

	wd, err := pool.GetAWorkingDirectoryFor(context.Background(), commitA, fakeQueueState{})
	require.NoError(t, err)

	stale := time.Now().Add(-48 * time.Hour)

	err = pool.SetStatus(uint64(wd.Record.ID), workdir.StatusExamination, stale)
	require.NoError(t, err)

	err = pool.Mark(uint64(wd.Record.ID), true)
	require.NoError(t, err)

	removed, err := pool.Cleanup(time.Now(), workdirpool.CleanupThresholds{StaleAfter: time.Hour, MinNumRuns: 0})
	require.NoError(t, err)
	assert.Len(t, removed, 0, "kept entries are never evicted regardless of thresholds")
}
