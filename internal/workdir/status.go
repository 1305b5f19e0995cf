// Package workdir defines one checked-out clone's lifecycle status, shared
// between the pool that owns the clone's physical directory and the job
// runner that uses it (spec.md §4.3).
package workdir

import (
	"encoding/json"
	"fmt"

	"github.com/GenSpectrum/evobench-sub000/internal/model"
)

// Status is the lifecycle state of one WorkingDirectory entry. The zero
// value is not a valid status; use the named constants.
type Status int

// Status values, in the order spec.md §4.3 lists them. CheckedOut is the
// state right after cloning/resetting and before a job starts using it;
// Examination is a terminal-but-inspectable state an operator has flagged
// for manual review.
const (
	StatusCheckedOut Status = iota
	StatusProcessing
	StatusError
	StatusFinished
	StatusExamination
)

func (s Status) String() string {
	switch s {
	case StatusCheckedOut:
		return "checked_out"
	case StatusProcessing:
		return "processing"
	case StatusError:
		return "error"
	case StatusFinished:
		return "finished"
	case StatusExamination:
		return "examination"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(s.String())
	if err != nil {
		return nil, fmt.Errorf("marshal working directory status: %w", err)
	}

	return b, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string

	err := json.Unmarshal(data, &str)
	if err != nil {
		return fmt.Errorf("unmarshal working directory status: %w", err)
	}

	switch str {
	case "checked_out":
		*s = StatusCheckedOut
	case "processing":
		*s = StatusProcessing
	case "error":
		*s = StatusError
	case "finished":
		*s = StatusFinished
	case "examination":
		*s = StatusExamination
	default:
		return fmt.Errorf("unmarshal working directory status: unknown value %q", str)
	}

	return nil
}

// MarshalYAML implements yaml.Marshaler, encoding the status the same way
// as MarshalJSON so status files are human-readable.
func (s Status) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Status) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string

	err := unmarshal(&str)
	if err != nil {
		return fmt.Errorf("unmarshal working directory status: %w", err)
	}

	switch str {
	case "checked_out":
		*s = StatusCheckedOut
	case "processing":
		*s = StatusProcessing
	case "error":
		*s = StatusError
	case "finished":
		*s = StatusFinished
	case "examination":
		*s = StatusExamination
	default:
		return fmt.Errorf("unmarshal working directory status: unknown value %q", str)
	}

	return nil
}

// CanBeUsedForJobs reports whether an entry in this status may be assigned
// to a new job: CheckedOut, Processing and Finished are eligible; Error and
// Examination are not (spec.md §4.3).
func (s Status) CanBeUsedForJobs() bool {
	return s == StatusCheckedOut || s == StatusProcessing || s == StatusFinished
}

// IsTerminalUserError reports whether this status requires operator
// attention before the entry can be reused (spec.md §4.3 Cleanup
// predicate).
func (s Status) IsTerminalUserError() bool {
	return s == StatusError || s == StatusExamination
}

// Record is the persisted state of one pool entry: its status plus the
// bookkeeping Cleanup, Mark, and run accounting need.
type Record struct {
	ID               model.WorkingDirectoryID `json:"id" yaml:"id"`
	Status           Status                   `json:"status" yaml:"status"`
	CommitID         model.GitHash            `json:"commit_id" yaml:"commit_id"`
	NumRuns          uint64                   `json:"num_runs" yaml:"num_runs"`
	Kept             bool                     `json:"kept" yaml:"kept"`
	LastActivityUnix int64                    `json:"last_activity_unix" yaml:"last_activity_unix"`
	ErrorReason      string                   `json:"error_reason,omitempty" yaml:"error_reason,omitempty"`
}

// WorkingDirectory pairs a Record with the physical clone path it
// describes.
type WorkingDirectory struct {
	Record Record
	Path   string
}

// ProcessingError is what a failed ProcessInWorkingDirectory run leaves
// behind in "<id>.error_at_<ts>", alongside the archived directory
// (spec.md §4.3, §6). RunParameters is nil when the failing action ran
// without one (e.g. a manually triggered action).
type ProcessingError struct {
	RunParameters *model.RunParameters `json:"run_parameters,omitempty" yaml:"run_parameters,omitempty"`
	Context       string                `json:"context" yaml:"context"`
	ErrorString   string                `json:"error_string" yaml:"error_string"`
}

// Touch refreshes LastActivityUnix to now and sets the given status.
func (w *WorkingDirectory) Touch(status Status, nowUnix int64) {
	w.Record.Status = status
	w.Record.LastActivityUnix = nowUnix
}
