// Package jobrunner executes one scheduled BenchmarkingJob: it acquires a
// WorkingDirectory from the pool, checks it out at the job's commit,
// resolves tags and an optional dataset directory, spawns the target
// command with the reserved and custom environment variables, captures its
// combined output, and archives the result (spec.md §4.5).
package jobrunner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GenSpectrum/evobench-sub000/internal/archive"
	"github.com/GenSpectrum/evobench-sub000/internal/gitgraph"
	"github.com/GenSpectrum/evobench-sub000/internal/gitwd"
	"github.com/GenSpectrum/evobench-sub000/internal/model"
	"github.com/GenSpectrum/evobench-sub000/internal/runqueues"
	"github.com/GenSpectrum/evobench-sub000/internal/workdir"
	"github.com/GenSpectrum/evobench-sub000/internal/workdirpool"
)

// Config holds the parts of a JobRunner that are fixed across runs.
type Config struct {
	Pool *workdirpool.Pool
	Git  gitwd.GitWorkingDir

	// Queue reports whether a commit still has work pending elsewhere in
	// the pipeline, feeding the pool's obsolete-clone eviction policy
	// (spec.md §4.3 step 2). Nil disables that check.
	Queue workdirpool.QueueState

	// OutputBaseDir is the root under which one subdirectory per completed
	// run is written (spec.md §4.5 step 7).
	OutputBaseDir string

	// TagFilter, if non-nil, restricts COMMIT_TAGS to tags matching it.
	TagFilter *regexp.Regexp

	// VersionedDatasetsBaseDir enables DATASET_DIR resolution when set and
	// the job's custom parameters include a DATASET value.
	VersionedDatasetsBaseDir string

	Logger *slog.Logger
}

// Runner implements runqueues.RunContext by executing jobs via Config's
// collaborators.
type Runner struct {
	cfg Config
}

// New returns a Runner wrapping cfg. A nil Logger is replaced with
// slog.Default().
func New(cfg Config) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Runner{cfg: cfg}
}

// RunStopStart implements runqueues.RunContext: it runs cmd.Command with
// arg ("stop" or "start") and waits for it to exit.
func (r *Runner) RunStopStart(ctx context.Context, cmd model.StopStart, arg string) error {
	c := exec.CommandContext(ctx, cmd.Command, arg)
	c.Stdout = os.Stderr
	c.Stderr = os.Stderr

	r.cfg.Logger.InfoContext(ctx, "running stop_start command", "command", cmd.Command, "arg", arg)

	err := c.Run()
	if err != nil {
		return fmt.Errorf("jobrunner: stop_start %s %s: %w", cmd.Command, arg, err)
	}

	return nil
}

// RunJob implements runqueues.RunContext: it runs the full job lifecycle of
// spec.md §4.5 and reports the outcome. condition is the ScheduleCondition
// of the queue job was picked from, archived alongside the run's other
// outputs (§4.5 step 7, §6).
func (r *Runner) RunJob(ctx context.Context, job model.BenchmarkingJob, condition model.ScheduleCondition) runqueues.Outcome {
	err := r.run(ctx, job, condition)
	if err != nil {
		r.cfg.Logger.ErrorContext(ctx, "job run failed", "commit", job.Public.RunParameters.CommitID, "error", err)

		return runqueues.Outcome{Err: err}
	}

	return runqueues.Outcome{}
}

func (r *Runner) run(ctx context.Context, job model.BenchmarkingJob, condition model.ScheduleCondition) error {
	commit := job.Public.RunParameters.CommitID

	err := r.cfg.Pool.Lock()
	if err != nil {
		return fmt.Errorf("jobrunner: lock pool: %w", err)
	}
	defer r.cfg.Pool.Unlock() //nolint:errcheck

	wd, err := r.cfg.Pool.GetAWorkingDirectoryFor(ctx, commit, r.cfg.Queue)
	if err != nil {
		return fmt.Errorf("jobrunner: acquire working directory: %w", err)
	}

	now := time.Now()

	runParams := job.Public.RunParameters

	return r.cfg.Pool.ProcessInWorkingDirectory(now, *wd, &runParams, "run benchmarking job", func(wd workdir.WorkingDirectory) error {
		return r.runInWorkingDirectory(ctx, wd, job, condition)
	})
}

func (r *Runner) runInWorkingDirectory(
	ctx context.Context,
	wd workdir.WorkingDirectory,
	job model.BenchmarkingJob,
	condition model.ScheduleCondition,
) error {
	commit := job.Public.RunParameters.CommitID

	tags, err := r.resolveTags(ctx, wd.Path, commit)
	if err != nil {
		return err
	}

	datasetDir, err := r.resolveDatasetDir(wd.Path, commit, job.Public.Command, job.Public.RunParameters.CustomParameters)
	if err != nil {
		return err
	}

	runDir, err := r.prepareOutputDir(job.Public.Command.TargetName, commit, job.Public.RunParameters.CustomParameters, time.Now())
	if err != nil {
		return err
	}

	evobenchLog := filepath.Join(runDir, "evobench.log")
	benchOutputLog := filepath.Join(runDir, "bench_output.log")
	standardLog := filepath.Join(runDir, "standard.log")

	env := buildEnv(commit, tags, datasetDir, evobenchLog, benchOutputLog, job.Public.RunParameters.CustomParameters)

	exitErr := r.spawn(ctx, wd, job.Public.Command, env, standardLog)

	if exitErr != nil {
		tail, readErr := tailFile(standardLog, 3*1024)
		if readErr == nil && tail != "" {
			return fmt.Errorf("jobrunner: command failed: %w\n--- last output ---\n%s", exitErr, tail)
		}

		return fmt.Errorf("jobrunner: command failed: %w", exitErr)
	}

	return r.archiveOutputs(runDir, evobenchLog, benchOutputLog, standardLog, condition, job.Public.Reason)
}

func (r *Runner) resolveTags(ctx context.Context, dir string, commit model.GitHash) (string, error) {
	err := r.cfg.Git.FetchTags(ctx, dir)
	if err != nil {
		return "", fmt.Errorf("jobrunner: fetch tags: %w", err)
	}

	tags, err := r.cfg.Git.ResolveTags(ctx, dir, commit)
	if err != nil {
		return "", fmt.Errorf("jobrunner: resolve tags: %w", err)
	}

	filtered := tags[:0]

	for _, tag := range tags {
		if r.cfg.TagFilter == nil || r.cfg.TagFilter.MatchString(tag) {
			filtered = append(filtered, tag)
		}
	}

	return strings.Join(filtered, ","), nil
}

// resolveDatasetDir implements spec.md §4.5 step 4: if a versioned datasets
// base dir is configured and the job declares a DATASET custom parameter,
// find the closest committer-time ancestor whose name (tag or commit id)
// exists as a subdirectory under that base.
func (r *Runner) resolveDatasetDir(dir string, commit model.GitHash, cmd model.BenchmarkingCommand, params model.CustomParameters) (string, error) {
	if r.cfg.VersionedDatasetsBaseDir == "" {
		return "", nil
	}

	dataset, ok := params.Get("DATASET")
	if !ok {
		return "", nil
	}

	datasetBase := filepath.Join(r.cfg.VersionedDatasetsBaseDir, dataset)

	graph, err := gitgraph.Build(dir)
	if err != nil {
		return "", fmt.Errorf("jobrunner: build git graph: %w", err)
	}

	match := func(candidate model.GitHash) bool {
		if dirExists(filepath.Join(datasetBase, candidate.String())) {
			return true
		}

		for _, tag := range graph.TagsOf(candidate) {
			if dirExists(filepath.Join(datasetBase, tag)) {
				return true
			}
		}

		return false
	}

	ancestor, found, err := graph.ClosestMatchingAncestorOf(commit, match)
	if err != nil {
		return "", fmt.Errorf("jobrunner: closest matching ancestor: %w", err)
	}

	if !found {
		return "", nil
	}

	if dirExists(filepath.Join(datasetBase, ancestor.String())) {
		return filepath.Join(datasetBase, ancestor.String()), nil
	}

	for _, tag := range graph.TagsOf(ancestor) {
		candidate := filepath.Join(datasetBase, tag)
		if dirExists(candidate) {
			return candidate, nil
		}
	}

	return "", nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// prepareOutputDir builds <OutputBaseDir>/<target_name>/<K=V>/.../<commit_id>/
// <rfc3339-timestamp>/ (spec.md §4.5 step 7, §6): one path segment per custom
// parameter, in the same sorted "KEY=VALUE" order as EnvPairs, followed by
// the commit and an RFC3339 run timestamp.
func (r *Runner) prepareOutputDir(targetName string, commit model.GitHash, params model.CustomParameters, now time.Time) (string, error) {
	segments := make([]string, 0, 3+params.Len())
	segments = append(segments, r.cfg.OutputBaseDir, targetName)
	segments = append(segments, params.EnvPairs()...)
	segments = append(segments, commit.String(), now.UTC().Format(time.RFC3339Nano))

	dir := filepath.Join(segments...)

	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return "", fmt.Errorf("jobrunner: create output dir: %w", err)
	}

	return dir, nil
}

func buildEnv(commit model.GitHash, tags, datasetDir, evobenchLog, benchOutputLog string, params model.CustomParameters) []string {
	env := os.Environ()
	env = append(env, params.EnvPairs()...)
	env = append(env,
		"EVOBENCH_LOG="+evobenchLog,
		"BENCH_OUTPUT_LOG="+benchOutputLog,
		"COMMIT_ID="+commit.String(),
		"COMMIT_TAGS="+tags,
	)

	if datasetDir != "" {
		env = append(env, "DATASET_DIR="+datasetDir)
	}

	return env
}

// spawn launches cmd in wd.Path/cmd.Subdir, capturing combined
// timestamped, source-prefixed stdout/stderr into logPath.
func (r *Runner) spawn(ctx context.Context, wd workdir.WorkingDirectory, cmd model.BenchmarkingCommand, env []string, logPath string) error {
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("jobrunner: create run log: %w", err)
	}
	defer logFile.Close() //nolint:errcheck

	command, args := cmd.Command, cmd.Arguments
	if cmd.PreExecBashCode != nil {
		script := *cmd.PreExecBashCode + "\nexec " + shellQuote(cmd.Command, cmd.Arguments...)
		command, args = "bash", []string{"-c", script}
	}

	c := exec.CommandContext(ctx, command, args...)
	c.Dir = filepath.Join(wd.Path, cmd.Subdir)
	c.Env = env

	stdout, err := c.StdoutPipe()
	if err != nil {
		return fmt.Errorf("jobrunner: stdout pipe: %w", err)
	}

	stderr, err := c.StderrPipe()
	if err != nil {
		return fmt.Errorf("jobrunner: stderr pipe: %w", err)
	}

	err = c.Start()
	if err != nil {
		return fmt.Errorf("jobrunner: start: %w", err)
	}

	done := make(chan struct{}, 2)

	go streamLines(logFile, "OUT", stdout, done)
	go streamLines(logFile, "ERR", stderr, done)

	<-done
	<-done

	err = c.Wait()
	if err != nil {
		return fmt.Errorf("jobrunner: %s: %w", command, err)
	}

	return nil
}

func streamLines(w io.Writer, source string, r io.Reader, done chan<- struct{}) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		fmt.Fprintf(w, "%s %s %s\n", time.Now().UTC().Format(time.RFC3339Nano), source, scanner.Text())
	}

	done <- struct{}{}
}

func shellQuote(command string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, "'"+strings.ReplaceAll(command, "'", `'\''`)+"'")

	for _, a := range args {
		parts = append(parts, "'"+strings.ReplaceAll(a, "'", `'\''`)+"'")
	}

	return strings.Join(parts, " ")
}

func tailFile(path string, maxBytes int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("jobrunner: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("jobrunner: stat %s: %w", path, err)
	}

	size := info.Size()

	offset := int64(0)
	if size > maxBytes {
		offset = size - maxBytes
	}

	_, err = f.Seek(offset, io.SeekStart)
	if err != nil {
		return "", fmt.Errorf("jobrunner: seek %s: %w", path, err)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("jobrunner: read %s: %w", path, err)
	}

	return string(data), nil
}

// archiveOutputs writes runDir's remaining artifacts per spec.md §4.5 step 7
// and the §6 layout: evobench.log and bench_output.log are compressed with
// zstd if the target process produced them (it writes them itself via the
// EVOBENCH_LOG/BENCH_OUTPUT_LOG env vars and may skip one or both);
// standardLog, the runner's own captured stdout/stderr, is always present
// and always compressed; schedule_condition.ron and reason.ron record the
// condition that selected this run and the job's operator-facing reason.
func (r *Runner) archiveOutputs(
	runDir, evobenchLog, benchOutputLog, standardLog string,
	condition model.ScheduleCondition,
	reason *string,
) error {
	for _, path := range []string{evobenchLog, benchOutputLog} {
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}

		_, err := archive.CompressFile(path)
		if err != nil {
			return fmt.Errorf("jobrunner: compress %s: %w", path, err)
		}
	}

	_, err := archive.CompressFile(standardLog)
	if err != nil {
		return fmt.Errorf("jobrunner: compress %s: %w", standardLog, err)
	}

	err = writeYAML(filepath.Join(runDir, "schedule_condition.ron"), condition)
	if err != nil {
		return fmt.Errorf("jobrunner: write schedule_condition.ron: %w", err)
	}

	err = writeYAML(filepath.Join(runDir, "reason.ron"), reason)
	if err != nil {
		return fmt.Errorf("jobrunner: write reason.ron: %w", err)
	}

	return nil
}

// writeYAML serializes v as YAML to path. The .ron extension matches the
// on-disk layout; the content is YAML, not RON.
func writeYAML(path string, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	err = os.WriteFile(path, data, 0o644)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}
