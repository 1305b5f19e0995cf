package config

import (
	"fmt"
	"regexp"

	"github.com/GenSpectrum/evobench-sub000/internal/model"
	"github.com/GenSpectrum/evobench-sub000/internal/timerange"
)

// Sentinel errors for pipeline translation.
var (
	ErrUnknownQueueKind = fmt.Errorf("config: unknown queue kind")
)

// BuildPipeline translates the on-disk PipelineConfig into a model.Pipeline,
// resolving naive time-of-day strings and schedule kinds.
func (p PipelineConfig) BuildPipeline() (model.Pipeline, error) {
	entries := make([]model.PipelineEntry, 0, len(p.Entries))

	for _, q := range p.Entries {
		condition, err := q.buildCondition()
		if err != nil {
			return model.Pipeline{}, fmt.Errorf("config: queue %q: %w", q.Name, err)
		}

		entries = append(entries, model.PipelineEntry{QueueName: q.Name, Condition: condition})
	}

	return model.Pipeline{
		Entries:            entries,
		DoneJobsQueue:      p.DoneJobsQueue,
		ErroneousJobsQueue: p.ErroneousJobsQueue,
	}, nil
}

func (q QueueConfig) buildCondition() (model.ScheduleCondition, error) {
	switch q.Kind {
	case "immediately", "":
		return model.ScheduleCondition{Kind: model.ScheduleImmediately, Priority: q.Priority}, nil

	case "local_naive_time_window":
		from, err := timerange.ParseNaiveTime(q.From)
		if err != nil {
			return model.ScheduleCondition{}, err
		}

		to, err := timerange.ParseNaiveTime(q.To)
		if err != nil {
			return model.ScheduleCondition{}, err
		}

		cond := model.ScheduleCondition{
			Kind:                   model.ScheduleLocalNaiveTimeWindow,
			Priority:               q.Priority,
			From:                   from,
			To:                     to,
			Repeatedly:             q.Repeatedly,
			MoveWhenTimeWindowEnds: q.MoveWhenTimeWindowEnds,
		}

		if q.StopStartCommand != "" {
			cond.StopStart = &model.StopStart{Command: q.StopStartCommand}
		}

		return cond, nil

	case "inactive":
		return model.ScheduleCondition{Kind: model.ScheduleInactive}, nil

	default:
		return model.ScheduleCondition{}, fmt.Errorf("%w: %q", ErrUnknownQueueKind, q.Kind)
	}
}

// BuildTagFilter compiles the configured tag_filter regex, returning nil if
// unset (meaning: no filtering).
func (j JobRunnerConfig) BuildTagFilter() (*regexp.Regexp, error) {
	if j.TagFilter == "" {
		return nil, nil
	}

	re, err := regexp.Compile(j.TagFilter)
	if err != nil {
		return nil, fmt.Errorf("config: compile tag_filter: %w", err)
	}

	return re, nil
}
