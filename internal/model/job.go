package model

// BenchmarkingCommand describes one target program invocation. Immutable
// once constructed.
type BenchmarkingCommand struct {
	// TargetName must be safe to use as a directory name component.
	TargetName string `json:"target_name"`
	// Subdir is a path relative to the working directory root where the
	// command is run.
	Subdir string `json:"subdir"`
	// Command is the program to execute.
	Command string `json:"command"`
	// Arguments are passed to Command in order.
	Arguments []string `json:"arguments"`
	// PreExecBashCode, if set, wraps the invocation in a bash snippet run
	// before exec'ing Command.
	PreExecBashCode *string `json:"pre_exec_bash_code,omitempty"`
}

// RunParameters is the identity of one measurement input: a commit plus the
// custom parameters that vary the environment the target sees.
type RunParameters struct {
	CommitID         GitHash          `json:"commit_id"`
	CustomParameters CustomParameters `json:"custom_parameters"`
}

// BenchmarkingJobParameters is the deduplication key used at job insertion
// time: two jobs with equal BenchmarkingJobParameters may not coexist live in
// the pipeline (spec.md §3 invariants).
type BenchmarkingJobParameters struct {
	RunParameters RunParameters        `json:"run_parameters"`
	Command       BenchmarkingCommand  `json:"command"`
}

// BenchmarkingJobPublic is the caller-visible description of a job.
type BenchmarkingJobPublic struct {
	Reason        *string             `json:"reason,omitempty"`
	RunParameters RunParameters       `json:"run_parameters"`
	Command       BenchmarkingCommand `json:"command"`
}

// Parameters extracts the BenchmarkingJobParameters dedup key from a public
// job description.
func (p BenchmarkingJobPublic) Parameters() BenchmarkingJobParameters {
	return BenchmarkingJobParameters{
		RunParameters: p.RunParameters,
		Command:       p.Command,
	}
}

// WorkingDirectoryID identifies one entry in a WorkingDirectoryPool.
type WorkingDirectoryID uint64

// BenchmarkingJobState is the mutable run-accounting portion of a job.
type BenchmarkingJobState struct {
	RemainingCount          uint8                `json:"remaining_count"`
	RemainingErrorBudget    uint8                `json:"remaining_error_budget"`
	LastWorkingDirectoryID  *WorkingDirectoryID  `json:"last_working_directory_id,omitempty"`
}

// NormalBoost is the current_boost value a job is reset to on each
// re-insertion into a queue after a run (spec.md §3).
const NormalBoost = 0.0

// BenchmarkingJob is one unit of scheduled work.
type BenchmarkingJob struct {
	Public       BenchmarkingJobPublic `json:"public"`
	State        BenchmarkingJobState  `json:"state"`
	Priority     float64               `json:"priority"`
	CurrentBoost float64               `json:"current_boost"`
}

// TotalPriority computes priority + current_boost + the given queue priority
// (spec.md §3, §4.4 step 2).
func (j BenchmarkingJob) TotalPriority(queuePriority float64) float64 {
	return j.Priority + j.CurrentBoost + queuePriority
}

// ResetBoost resets CurrentBoost to NormalBoost, as done on every
// re-insertion into a queue after a run.
func (j *BenchmarkingJob) ResetBoost() {
	j.CurrentBoost = NormalBoost
}

// Parameters extracts the dedup key of the job.
func (j BenchmarkingJob) Parameters() BenchmarkingJobParameters {
	return j.Public.Parameters()
}
