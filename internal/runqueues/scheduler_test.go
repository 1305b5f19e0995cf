package runqueues_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GenSpectrum/evobench-sub000/internal/keyval"
	"github.com/GenSpectrum/evobench-sub000/internal/model"
	"github.com/GenSpectrum/evobench-sub000/internal/queue"
	"github.com/GenSpectrum/evobench-sub000/internal/runqueues"
)

func queueItemOptions() queue.ItemOptions { return queue.ItemOptions{} }

type recordingRunContext struct {
	ran       []model.BenchmarkingJob
	stopStart []string
	outcome   runqueues.Outcome
}

func (r *recordingRunContext) RunStopStart(_ context.Context, cmd model.StopStart, arg string) error {
	r.stopStart = append(r.stopStart, cmd.Command+":"+arg)
	return nil
}

func (r *recordingRunContext) RunJob(_ context.Context, job model.BenchmarkingJob, _ model.ScheduleCondition) runqueues.Outcome {
	r.ran = append(r.ran, job)
	return r.outcome
}

func hashFor(t *testing.T, b byte) model.GitHash {
	t.Helper()

	raw := make([]byte, 40)
	for i := range raw {
		raw[i] = b
	}

	h, err := model.ParseGitHash(string(raw))
	require.NoError(t, err)

	return h
}

func jobFor(t *testing.T, commit byte, priority float64, remainingCount, remainingErrorBudget uint8) model.BenchmarkingJob {
	t.Helper()

	return model.BenchmarkingJob{
		Public: model.BenchmarkingJobPublic{
			RunParameters: model.RunParameters{CommitID: hashFor(t, commit)},
			Command:       model.BenchmarkingCommand{TargetName: "bench", Command: "true"},
		},
		State: model.BenchmarkingJobState{
			RemainingCount:       remainingCount,
			RemainingErrorBudget: remainingErrorBudget,
		},
		Priority: priority,
	}
}

func immediatePipeline(names ...string) model.Pipeline {
	entries := make([]model.PipelineEntry, len(names))
	for i, n := range names {
		entries[i] = model.PipelineEntry{QueueName: n, Condition: model.ScheduleCondition{Kind: model.ScheduleImmediately}}
	}

	return model.Pipeline{Entries: entries, DoneJobsQueue: "done", ErroneousJobsQueue: "erroneous"}
}

func TestRunNextJobPicksHighestPriorityAcrossQueues(t *testing.T) {
	pipeline := immediatePipeline("first", "second")
	rq, err := runqueues.Open(t.TempDir(), pipeline, keyval.SyncNone)
	require.NoError(t, err)

	_, err = rq.Queue("first").Queue.Push(jobFor(t, 'a', 1.0, 1, 3))
	require.NoError(t, err)

	_, err = rq.Queue("second").Queue.Push(jobFor(t, 'b', 5.0, 1, 3))
	require.NoError(t, err)

	sched := runqueues.NewScheduler(rq)
	rc := &recordingRunContext{}

	err = sched.RunNextJob(context.Background(), rc, time.Now())
	require.NoError(t, err)
	require.Len(t, rc.ran, 1)
	assert.Equal(t, hashFor(t, 'b'), rc.ran[0].Public.RunParameters.CommitID)
}

func TestRunNextJobReturnsErrNoRunnableJobWhenEmpty(t *testing.T) {
	pipeline := immediatePipeline("only")
	rq, err := runqueues.Open(t.TempDir(), pipeline, keyval.SyncNone)
	require.NoError(t, err)

	sched := runqueues.NewScheduler(rq)
	rc := &recordingRunContext{}

	err = sched.RunNextJob(context.Background(), rc, time.Now())
	assert.True(t, errors.Is(err, runqueues.ErrNoRunnableJob))
}

func TestRunNextJobPushesToDoneQueueOnFinalSuccess(t *testing.T) {
	pipeline := immediatePipeline("only")
	rq, err := runqueues.Open(t.TempDir(), pipeline, keyval.SyncNone)
	require.NoError(t, err)

	_, err = rq.Queue("only").Queue.Push(jobFor(t, 'a', 1.0, 1, 3))
	require.NoError(t, err)

	sched := runqueues.NewScheduler(rq)
	rc := &recordingRunContext{outcome: runqueues.Outcome{}}

	err = sched.RunNextJob(context.Background(), rc, time.Now())
	require.NoError(t, err)

	items, err := rq.Done().Items(context.Background(), queueItemOptions())
	require.NoError(t, err)
	assert.Len(t, items, 1)

	items, err = rq.Queue("only").Queue.Items(context.Background(), queueItemOptions())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRunNextJobAdvancesToNextQueueOnSuccessWithRepeatsRemaining(t *testing.T) {
	pipeline := immediatePipeline("first", "second")
	rq, err := runqueues.Open(t.TempDir(), pipeline, keyval.SyncNone)
	require.NoError(t, err)

	_, err = rq.Queue("first").Queue.Push(jobFor(t, 'a', 1.0, 2, 3))
	require.NoError(t, err)

	sched := runqueues.NewScheduler(rq)
	rc := &recordingRunContext{}

	err = sched.RunNextJob(context.Background(), rc, time.Now())
	require.NoError(t, err)

	items, err := rq.Queue("second").Queue.Items(context.Background(), queueItemOptions())
	require.NoError(t, err)
	require.Len(t, items, 1)

	job, loadErr := items[0].Entry.Load()
	require.NoError(t, loadErr)
	assert.Equal(t, uint8(1), job.State.RemainingCount)
}

func TestRunNextJobRePushesOnErrorWithBudgetRemaining(t *testing.T) {
	pipeline := immediatePipeline("only")
	rq, err := runqueues.Open(t.TempDir(), pipeline, keyval.SyncNone)
	require.NoError(t, err)

	_, err = rq.Queue("only").Queue.Push(jobFor(t, 'a', 1.0, 1, 2))
	require.NoError(t, err)

	sched := runqueues.NewScheduler(rq)
	rc := &recordingRunContext{outcome: runqueues.Outcome{Err: errors.New("boom")}}

	err = sched.RunNextJob(context.Background(), rc, time.Now())
	require.NoError(t, err)

	items, err := rq.Queue("only").Queue.Items(context.Background(), queueItemOptions())
	require.NoError(t, err)
	require.Len(t, items, 1)

	job, loadErr := items[0].Entry.Load()
	require.NoError(t, loadErr)
	assert.Equal(t, uint8(1), job.State.RemainingErrorBudget)
}

func TestRunNextJobPushesToErroneousQueueWhenBudgetExhausted(t *testing.T) {
	pipeline := immediatePipeline("only")
	rq, err := runqueues.Open(t.TempDir(), pipeline, keyval.SyncNone)
	require.NoError(t, err)

	_, err = rq.Queue("only").Queue.Push(jobFor(t, 'a', 1.0, 1, 1))
	require.NoError(t, err)

	sched := runqueues.NewScheduler(rq)
	rc := &recordingRunContext{outcome: runqueues.Outcome{Err: errors.New("boom")}}

	err = sched.RunNextJob(context.Background(), rc, time.Now())
	require.NoError(t, err)

	items, err := rq.Erroneous().Items(context.Background(), queueItemOptions())
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestHasJobForCommitScansAllQueues(t *testing.T) {
	pipeline := immediatePipeline("first", "second")
	rq, err := runqueues.Open(t.TempDir(), pipeline, keyval.SyncNone)
	require.NoError(t, err)

	_, err = rq.Queue("second").Queue.Push(jobFor(t, 'c', 1.0, 1, 1))
	require.NoError(t, err)

	assert.True(t, rq.HasJobForCommit(hashFor(t, 'c')))
	assert.False(t, rq.HasJobForCommit(hashFor(t, 'd')))
}

func TestDrainExpiredWindowMovesRemainingEntries(t *testing.T) {
	windowed := model.ScheduleCondition{Kind: model.ScheduleLocalNaiveTimeWindow, MoveWhenTimeWindowEnds: true}
	pipeline := model.Pipeline{
		Entries: []model.PipelineEntry{
			{QueueName: "window", Condition: windowed},
			{QueueName: "after", Condition: model.ScheduleCondition{Kind: model.ScheduleImmediately}},
		},
	}

	rq, err := runqueues.Open(t.TempDir(), pipeline, keyval.SyncNone)
	require.NoError(t, err)

	_, err = rq.Queue("window").Queue.Push(jobFor(t, 'a', 1.0, 1, 1))
	require.NoError(t, err)

	sched := runqueues.NewScheduler(rq)

	err = sched.DrainExpiredWindow(context.Background(), rq.Queue("window"))
	require.NoError(t, err)

	items, err := rq.Queue("after").Queue.Items(context.Background(), queueItemOptions())
	require.NoError(t, err)
	assert.Len(t, items, 1)

	items, err = rq.Queue("window").Queue.Items(context.Background(), queueItemOptions())
	require.NoError(t, err)
	assert.Empty(t, items)
}
