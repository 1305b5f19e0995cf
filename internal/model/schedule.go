package model

import (
	"errors"
	"fmt"

	"github.com/GenSpectrum/evobench-sub000/internal/timerange"
)

// ScheduleConditionKind discriminates the ScheduleCondition variant.
type ScheduleConditionKind int

// Supported ScheduleConditionKind values.
const (
	ScheduleImmediately ScheduleConditionKind = iota
	ScheduleLocalNaiveTimeWindow
	ScheduleInactive
)

func (k ScheduleConditionKind) String() string {
	switch k {
	case ScheduleImmediately:
		return "immediately"
	case ScheduleLocalNaiveTimeWindow:
		return "local_naive_time_window"
	case ScheduleInactive:
		return "inactive"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// MarshalYAML implements yaml.Marshaler, encoding the kind the same way as
// String so archived schedule conditions are human-readable.
func (k ScheduleConditionKind) MarshalYAML() (interface{}, error) {
	return k.String(), nil
}

// StopStart, if set on a LocalNaiveTimeWindow condition, names an external
// command run with argument "stop" on entry into the window and "start" on
// exit (spec.md §4.4 step 4).
type StopStart struct {
	Command string `json:"command" yaml:"command"`
}

// ScheduleCondition governs when a Queue is eligible to run jobs
// (spec.md §3).
type ScheduleCondition struct {
	Kind ScheduleConditionKind `json:"kind" yaml:"kind"`

	// Situation is an operator-facing label, present for Immediately and
	// LocalNaiveTimeWindow.
	Situation string `json:"situation,omitempty" yaml:"situation,omitempty"`

	// Priority is the queue's contribution to a job's total priority; the
	// zero value means "use the kind's default" (1.0 immediate, 1.5
	// windowed) via EffectivePriority.
	Priority *float64 `json:"priority,omitempty" yaml:"priority,omitempty"`

	// The following fields apply only to LocalNaiveTimeWindow.
	StopStart              *StopStart        `json:"stop_start,omitempty" yaml:"stop_start,omitempty"`
	Repeatedly             bool              `json:"repeatedly" yaml:"repeatedly"`
	MoveWhenTimeWindowEnds bool              `json:"move_when_time_window_ends" yaml:"move_when_time_window_ends"`
	From                   timerange.NaiveTime `json:"from" yaml:"from"`
	To                     timerange.NaiveTime `json:"to" yaml:"to"`
}

// Window returns the timerange.Range this condition describes. Only valid
// for Kind == ScheduleLocalNaiveTimeWindow.
func (c ScheduleCondition) Window() timerange.Range {
	return timerange.Range{From: c.From, To: c.To}
}

// EffectivePriority returns Priority if set, else the kind's default.
func (c ScheduleCondition) EffectivePriority() float64 {
	if c.Priority != nil {
		return *c.Priority
	}

	if c.Kind == ScheduleLocalNaiveTimeWindow {
		return 1.5
	}

	return 1.0
}

// PipelineEntry is one (queue name, schedule) pair in a Pipeline.
type PipelineEntry struct {
	QueueName string
	Condition ScheduleCondition
}

// Pipeline is the ordered sequence of queues a job moves through
// (spec.md §3).
type Pipeline struct {
	Entries            []PipelineEntry
	DoneJobsQueue      string
	ErroneousJobsQueue string
}

// Sentinel errors for Pipeline validation.
var (
	ErrPipelineEmpty              = errors.New("pipeline must have at least one entry")
	ErrPipelineMultipleInactive   = errors.New("pipeline may have at most one Inactive entry")
	ErrPipelineInactiveNotLast    = errors.New("an Inactive pipeline entry must be last")
	ErrPipelineDuplicateQueueName = errors.New("duplicate queue name in pipeline")
)

// Validate checks the structural invariants spec.md §3 requires of a
// Pipeline.
func (p Pipeline) Validate() error {
	if len(p.Entries) == 0 {
		return ErrPipelineEmpty
	}

	seen := make(map[string]struct{}, len(p.Entries)+2)
	inactiveCount := 0

	for i, e := range p.Entries {
		if _, dup := seen[e.QueueName]; dup {
			return fmt.Errorf("%w: %q", ErrPipelineDuplicateQueueName, e.QueueName)
		}

		seen[e.QueueName] = struct{}{}

		if e.Condition.Kind == ScheduleInactive {
			inactiveCount++
			if i != len(p.Entries)-1 {
				return fmt.Errorf("%w: %q at position %d", ErrPipelineInactiveNotLast, e.QueueName, i)
			}
		}
	}

	if inactiveCount > 1 {
		return ErrPipelineMultipleInactive
	}

	for _, name := range []string{p.DoneJobsQueue, p.ErroneousJobsQueue} {
		if name == "" {
			continue
		}

		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: %q", ErrPipelineDuplicateQueueName, name)
		}

		seen[name] = struct{}{}
	}

	return nil
}

// NextQueueName returns the queue name following fromName in the pipeline
// order, or "" if fromName is the last entry.
func (p Pipeline) NextQueueName(fromName string) string {
	for i, e := range p.Entries {
		if e.QueueName == fromName && i+1 < len(p.Entries) {
			return p.Entries[i+1].QueueName
		}
	}

	return ""
}
