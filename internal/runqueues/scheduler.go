package runqueues

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GenSpectrum/evobench-sub000/internal/model"
	"github.com/GenSpectrum/evobench-sub000/internal/queue"
)

// ErrNoRunnableJob is returned by RunNextJob when no queue is currently
// runnable or every runnable queue is empty.
var ErrNoRunnableJob = errors.New("runqueues: no runnable job")

// RunContext is the collaborator RunNextJob drives: it executes one job and
// issues stop/start side effects for LocalNaiveTimeWindow conditions that
// require them (spec.md §4.4 step 4).
type RunContext interface {
	// RunStopStart runs cmd with the given argument ("stop" or "start").
	RunStopStart(ctx context.Context, cmd model.StopStart, arg string) error
	// RunJob executes job, picked from the queue governed by condition (so
	// the runner can archive the condition that selected it alongside the
	// run's other outputs per spec.md §4.5 step 7), and reports its
	// outcome.
	RunJob(ctx context.Context, job model.BenchmarkingJob, condition model.ScheduleCondition) Outcome
}

// Outcome is what JobRunner reports back about one execution.
type Outcome struct {
	Err error
}

type candidate struct {
	rt       *RuntimeQueue
	window   RunnableWindow
	key      model.TimeKey
	item     queue.Item[model.BenchmarkingJob]
	job      model.BenchmarkingJob
	priority float64
}

// activeStopStart tracks which queue's required stop command is currently
// "stopped", so transitioning away from it (or to one that doesn't require
// it) issues "start".
type activeStopStart struct {
	queueName string
	cmd       model.StopStart
}

// Scheduler drives RunNextJob across successive calls, remembering which
// stop_start command is currently active.
type Scheduler struct {
	rq     *RunQueues
	active *activeStopStart
}

// NewScheduler wraps rq for repeated RunNextJob calls.
func NewScheduler(rq *RunQueues) *Scheduler {
	return &Scheduler{rq: rq}
}

func (s *Scheduler) bestInQueue(ctx context.Context, rt *RuntimeQueue, now time.Time) (candidate, bool, error) {
	window, runnable := IsRunnableAt(rt.Condition, now)
	if !runnable {
		return candidate{}, false, nil
	}

	items, err := rt.Queue.Items(ctx, queue.ItemOptions{})
	if err != nil {
		return candidate{}, false, fmt.Errorf("runqueues: list queue %q: %w", rt.Name, err)
	}

	var best candidate

	found := false

	for _, item := range items {
		job, loadErr := item.Entry.Load()
		if loadErr != nil {
			continue
		}

		priority := job.TotalPriority(rt.Condition.EffectivePriority())

		if !found || priority > best.priority {
			best = candidate{rt: rt, window: window, key: item.Key, item: item, job: job, priority: priority}
			found = true
		}
	}

	return best, found, nil
}

// RunNextJob implements the scheduling core of spec.md §4.4: it picks the
// single highest-priority job across every currently runnable queue, issues
// any required stop_start transition, executes it via rc, and re-files it
// per §4.5.
func (s *Scheduler) RunNextJob(ctx context.Context, rc RunContext, now time.Time) error {
	var overall candidate

	found := false

	for _, rt := range s.rq.order {
		best, ok, err := s.bestInQueue(ctx, rt, now)
		if err != nil {
			return err
		}

		if !ok {
			continue
		}

		if !found || best.priority > overall.priority || (best.priority == overall.priority && best.key.Less(overall.key)) {
			overall = best
			found = true
		}
	}

	if !found {
		return ErrNoRunnableJob
	}

	err := s.applyStopStart(ctx, rc, overall.rt)
	if err != nil {
		return err
	}

	_, err = overall.rt.Queue.Remove(overall.key)
	if err != nil {
		return fmt.Errorf("runqueues: remove picked job from %q: %w", overall.rt.Name, err)
	}

	outcome := rc.RunJob(ctx, overall.job, overall.rt.Condition)

	return s.refile(ctx, overall, outcome)
}

// applyStopStart issues "stop" when entering a window that requires it and
// "start" when leaving one (or moving to one that does not require it).
func (s *Scheduler) applyStopStart(ctx context.Context, rc RunContext, next *RuntimeQueue) error {
	nextRequires := next.Condition.Kind == model.ScheduleLocalNaiveTimeWindow && next.Condition.StopStart != nil

	if s.active != nil && s.active.queueName != next.Name {
		err := rc.RunStopStart(ctx, s.active.cmd, "start")
		if err != nil {
			return fmt.Errorf("runqueues: stop_start start for %q: %w", s.active.queueName, err)
		}

		s.active = nil
	}

	if nextRequires && s.active == nil {
		err := rc.RunStopStart(ctx, *next.Condition.StopStart, "stop")
		if err != nil {
			return fmt.Errorf("runqueues: stop_start stop for %q: %w", next.Name, err)
		}

		s.active = &activeStopStart{queueName: next.Name, cmd: *next.Condition.StopStart}
	}

	return nil
}

// refile re-files a job per spec.md §4.5 step 8 based on its outcome and
// the queue it ran from.
func (s *Scheduler) refile(ctx context.Context, c candidate, outcome Outcome) error {
	if outcome.Err != nil {
		return s.refileError(ctx, c)
	}

	return s.refileSuccess(ctx, c)
}

func (s *Scheduler) refileError(ctx context.Context, c candidate) error {
	job := c.job

	if job.State.RemainingErrorBudget > 1 {
		job.State.RemainingErrorBudget--
		job.ResetBoost()

		_, err := c.rt.Queue.Push(job)
		if err != nil {
			return fmt.Errorf("runqueues: re-push after error to %q: %w", c.rt.Name, err)
		}

		return nil
	}

	if s.rq.Erroneous() != nil {
		_, err := s.rq.Erroneous().Push(job)
		if err != nil {
			return fmt.Errorf("runqueues: push to erroneous queue: %w", err)
		}
	}

	return nil
}

func (s *Scheduler) refileSuccess(ctx context.Context, c candidate) error {
	job := c.job
	job.ResetBoost()

	if job.State.RemainingCount > 1 {
		job.State.RemainingCount--

		return s.refileRepeat(ctx, c, job)
	}

	if s.rq.Done() != nil {
		_, err := s.rq.Done().Push(job)
		if err != nil {
			return fmt.Errorf("runqueues: push to done queue: %w", err)
		}
	}

	return nil
}

func (s *Scheduler) refileRepeat(ctx context.Context, c candidate, job model.BenchmarkingJob) error {
	switch c.rt.Condition.Kind {
	case model.ScheduleImmediately:
		return s.pushToNextOrDrop(c.rt.Name, job)

	case model.ScheduleLocalNaiveTimeWindow:
		if c.rt.Condition.Repeatedly {
			_, err := c.rt.Queue.Push(job)
			if err != nil {
				return fmt.Errorf("runqueues: re-push to repeating window queue %q: %w", c.rt.Name, err)
			}

			return nil
		}

		return s.pushToNextOrDrop(c.rt.Name, job)

	default:
		return s.pushToNextOrDrop(c.rt.Name, job)
	}
}

func (s *Scheduler) pushToNextOrDrop(fromName string, job model.BenchmarkingJob) error {
	nextName := s.rq.NextQueueName(fromName)
	if nextName == "" {
		return nil
	}

	next := s.rq.Queue(nextName)
	if next == nil {
		return nil
	}

	_, err := next.Queue.Push(job)
	if err != nil {
		return fmt.Errorf("runqueues: push to next queue %q: %w", nextName, err)
	}

	return nil
}

// DrainExpiredWindow implements spec.md §4.4 step 6: for a
// LocalNaiveTimeWindow queue with MoveWhenTimeWindowEnds, push every
// remaining entry into the next queue. It does not itself check the clock;
// cmd/evobench-run calls it when it sees the queue's window close.
func (s *Scheduler) DrainExpiredWindow(ctx context.Context, rt *RuntimeQueue) error {
	if rt.Condition.Kind != model.ScheduleLocalNaiveTimeWindow || !rt.Condition.MoveWhenTimeWindowEnds {
		return nil
	}

	nextName := s.rq.NextQueueName(rt.Name)
	if nextName == "" {
		return nil
	}

	next := s.rq.Queue(nextName)
	if next == nil {
		return nil
	}

	items, err := rt.Queue.Items(ctx, queue.ItemOptions{})
	if err != nil {
		return fmt.Errorf("runqueues: list %q for drain: %w", rt.Name, err)
	}

	for _, item := range items {
		job, loadErr := item.Entry.Load()
		if loadErr != nil {
			continue
		}

		_, err = next.Queue.Push(job)
		if err != nil {
			return fmt.Errorf("runqueues: drain push to %q: %w", nextName, err)
		}

		_, err = rt.Queue.Remove(item.Key)
		if err != nil {
			return fmt.Errorf("runqueues: drain remove from %q: %w", rt.Name, err)
		}
	}

	return nil
}
