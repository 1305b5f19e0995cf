package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GenSpectrum/evobench-sub000/internal/config"
	"github.com/GenSpectrum/evobench-sub000/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "evobench-run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	return path
}

const validConfig = `
pool:
  base_dir: /tmp/pool
  remote_url: https://example.invalid/repo.git
  capacity: 2
pipeline:
  base_dir: /tmp/queues
  entries:
    - name: staging
      kind: immediately
    - name: nightly
      kind: local_naive_time_window
      from: "22:00"
      to: "06:00"
      move_when_time_window_ends: true
  done_jobs_queue: done
  erroneous_jobs_queue: erroneous
`

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, _, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Pool.Capacity)
	assert.Equal(t, "git", cfg.Pool.GitBinary)
	assert.Len(t, cfg.Pipeline.Entries, 2)
}

func TestLoadRejectsMissingRemoteURL(t *testing.T) {
	path := writeConfig(t, `
pool:
  base_dir: /tmp/pool
  capacity: 2
pipeline:
  base_dir: /tmp/queues
  entries:
    - name: staging
      kind: immediately
`)

	_, _, err := config.Load(path)
	assert.ErrorIs(t, err, config.ErrMissingRemoteURL)
}

func TestLoadRejectsEmptyPipeline(t *testing.T) {
	path := writeConfig(t, `
pool:
  base_dir: /tmp/pool
  remote_url: https://example.invalid/repo.git
  capacity: 2
pipeline:
  base_dir: /tmp/queues
`)

	_, _, err := config.Load(path)
	assert.ErrorIs(t, err, config.ErrPipelineHasNoEntries)
}

func TestBuildPipelineTranslatesWindowedQueue(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, _, err := config.Load(path)
	require.NoError(t, err)

	pipeline, err := cfg.Pipeline.BuildPipeline()
	require.NoError(t, err)
	require.NoError(t, pipeline.Validate())

	assert.Equal(t, "staging", pipeline.Entries[0].QueueName)
	assert.Equal(t, model.ScheduleImmediately, pipeline.Entries[0].Condition.Kind)
	assert.Equal(t, model.ScheduleLocalNaiveTimeWindow, pipeline.Entries[1].Condition.Kind)
	assert.True(t, pipeline.Entries[1].Condition.MoveWhenTimeWindowEnds)
}

func TestBuildTagFilterCompilesRegex(t *testing.T) {
	jr := config.JobRunnerConfig{TagFilter: "^release-"}

	re, err := jr.BuildTagFilter()
	require.NoError(t, err)
	assert.True(t, re.MatchString("release-1.0"))
	assert.False(t, re.MatchString("snapshot-1.0"))
}
