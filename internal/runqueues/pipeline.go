// Package runqueues composes a configured Pipeline into runtime Queues and
// implements the scheduling core that repeatedly picks the
// highest-priority runnable job across them (spec.md §4.4).
package runqueues

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/GenSpectrum/evobench-sub000/internal/keyval"
	"github.com/GenSpectrum/evobench-sub000/internal/model"
	"github.com/GenSpectrum/evobench-sub000/internal/queue"
)

// RunnableWindow describes why a queue is currently eligible to run a job:
// either an open-ended "immediate" signal, or a concrete time window the
// queue must stay within.
type RunnableWindow struct {
	Immediate bool
	Window    *time.Time // End of the current window, for LocalNaiveTimeWindow conditions; nil when Immediate.
}

// IsRunnableAt reports whether c currently permits running a job, given the
// reference instant now. For LocalNaiveTimeWindow it resolves the window
// via internal/timerange and checks containment; an ambiguous (DST)
// resolution is treated as not runnable.
func IsRunnableAt(c model.ScheduleCondition, now time.Time) (RunnableWindow, bool) {
	switch c.Kind {
	case model.ScheduleImmediately:
		return RunnableWindow{Immediate: true}, true

	case model.ScheduleLocalNaiveTimeWindow:
		concrete, ok := c.Window().AfterDatetime(now, true)
		if !ok {
			return RunnableWindow{}, false
		}

		if !concrete.Contains(now) {
			return RunnableWindow{}, false
		}

		end := concrete.End

		return RunnableWindow{Window: &end}, true

	case model.ScheduleInactive:
		return RunnableWindow{}, false

	default:
		return RunnableWindow{}, false
	}
}

// RuntimeQueue pairs a configured pipeline entry with its backing Queue.
type RuntimeQueue struct {
	Name      string
	Condition model.ScheduleCondition
	Queue     *queue.Queue[model.BenchmarkingJob]
}

// RunQueues is a validated Pipeline composed into live Queues rooted under
// one base directory (one subdirectory per queue name).
type RunQueues struct {
	pipeline model.Pipeline
	byName   map[string]*RuntimeQueue
	order    []*RuntimeQueue

	done      *queue.Queue[model.BenchmarkingJob]
	erroneous *queue.Queue[model.BenchmarkingJob]
}

// Open validates pipeline and opens one Queue per entry (plus the optional
// terminal queues) under baseDir/<queue_name>.
func Open(baseDir string, pipeline model.Pipeline, sync keyval.SyncPolicy) (*RunQueues, error) {
	err := pipeline.Validate()
	if err != nil {
		return nil, fmt.Errorf("runqueues: invalid pipeline: %w", err)
	}

	rq := &RunQueues{
		pipeline: pipeline,
		byName:   make(map[string]*RuntimeQueue, len(pipeline.Entries)),
	}

	for _, entry := range pipeline.Entries {
		q, openErr := queue.Open[model.BenchmarkingJob](filepath.Join(baseDir, entry.QueueName), sync)
		if openErr != nil {
			return nil, fmt.Errorf("runqueues: open queue %q: %w", entry.QueueName, openErr)
		}

		rt := &RuntimeQueue{Name: entry.QueueName, Condition: entry.Condition, Queue: q}
		rq.byName[entry.QueueName] = rt
		rq.order = append(rq.order, rt)
	}

	if pipeline.DoneJobsQueue != "" {
		q, openErr := queue.Open[model.BenchmarkingJob](filepath.Join(baseDir, pipeline.DoneJobsQueue), sync)
		if openErr != nil {
			return nil, fmt.Errorf("runqueues: open done queue: %w", openErr)
		}

		rq.done = q
	}

	if pipeline.ErroneousJobsQueue != "" {
		q, openErr := queue.Open[model.BenchmarkingJob](filepath.Join(baseDir, pipeline.ErroneousJobsQueue), sync)
		if openErr != nil {
			return nil, fmt.Errorf("runqueues: open erroneous queue: %w", openErr)
		}

		rq.erroneous = q
	}

	return rq, nil
}

// Queue returns the runtime queue by name, or nil if unknown.
func (rq *RunQueues) Queue(name string) *RuntimeQueue {
	return rq.byName[name]
}

// NextQueueName returns the pipeline successor of fromName, or "" if it is
// the pipeline's last entry.
func (rq *RunQueues) NextQueueName(fromName string) string {
	return rq.pipeline.NextQueueName(fromName)
}

// Done returns the terminal done-jobs queue, or nil if not configured.
func (rq *RunQueues) Done() *queue.Queue[model.BenchmarkingJob] { return rq.done }

// Erroneous returns the terminal erroneous-jobs queue, or nil if not
// configured.
func (rq *RunQueues) Erroneous() *queue.Queue[model.BenchmarkingJob] { return rq.erroneous }

// All returns the runtime queues in pipeline order.
func (rq *RunQueues) All() []*RuntimeQueue { return rq.order }

// HasJobForCommit implements workdirpool.QueueState by scanning every
// pipeline queue for a job still targeting commit. Used by the pool's
// assignment policy to decide whether a checked-out clone is obsolete
// (spec.md §4.3 step 2). Errors while listing a queue are treated as "no
// match found" in that queue rather than aborting the scan.
func (rq *RunQueues) HasJobForCommit(commit model.GitHash) bool {
	ctx := context.Background()

	for _, rt := range rq.order {
		items, err := rt.Queue.Items(ctx, queue.ItemOptions{})
		if err != nil {
			continue
		}

		for _, item := range items {
			job, loadErr := item.Entry.Load()
			if loadErr != nil {
				continue
			}

			if job.Public.RunParameters.CommitID == commit {
				return true
			}
		}
	}

	return false
}
