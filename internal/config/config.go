// Package config loads and hot-reloads the resolved configuration value
// for an evobench-run process, modeled on
// github.com/Sumatoshi-tech/codefang's pkg/config/config.go: viper-backed,
// mapstructure-tagged sections with defaults, validated once on load.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidPoolCapacity  = errors.New("pool capacity must be positive")
	ErrMissingRemoteURL     = errors.New("pool remote_url is required")
	ErrMissingBaseDir       = errors.New("base_dir is required")
	ErrInvalidTagFilter     = errors.New("invalid tag_filter regular expression")
	ErrPipelineHasNoEntries = errors.New("pipeline must have at least one queue entry")
)

// Config is the fully resolved configuration for one evobench-run process.
type Config struct {
	Pool      PoolConfig      `mapstructure:"pool"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	JobRunner JobRunnerConfig `mapstructure:"job_runner"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// PoolConfig configures the WorkingDirectoryPool.
type PoolConfig struct {
	BaseDir   string `mapstructure:"base_dir"`
	RemoteURL string `mapstructure:"remote_url"`
	Capacity  int    `mapstructure:"capacity"`
	GitBinary string `mapstructure:"git_binary"`

	CleanupStaleAfter time.Duration `mapstructure:"cleanup_stale_after"`
	CleanupMinNumRuns uint64        `mapstructure:"cleanup_min_num_runs"`
}

// QueueConfig is one configured pipeline entry, the on-disk shape that
// resolves into a model.PipelineEntry.
type QueueConfig struct {
	Name                   string   `mapstructure:"name"`
	Kind                   string   `mapstructure:"kind"` // "immediately" | "local_naive_time_window" | "inactive"
	Priority               *float64 `mapstructure:"priority"`
	From                   string   `mapstructure:"from"` // "HH:MM[:SS]"
	To                     string   `mapstructure:"to"`
	Repeatedly             bool     `mapstructure:"repeatedly"`
	MoveWhenTimeWindowEnds bool     `mapstructure:"move_when_time_window_ends"`
	StopStartCommand       string   `mapstructure:"stop_start_command"`
}

// PipelineConfig is the on-disk pipeline shape.
type PipelineConfig struct {
	BaseDir            string        `mapstructure:"base_dir"`
	Entries            []QueueConfig `mapstructure:"entries"`
	DoneJobsQueue      string        `mapstructure:"done_jobs_queue"`
	ErroneousJobsQueue string        `mapstructure:"erroneous_jobs_queue"`
}

// JobRunnerConfig configures per-run execution.
type JobRunnerConfig struct {
	OutputBaseDir            string `mapstructure:"output_base_dir"`
	TagFilter                string `mapstructure:"tag_filter"`
	VersionedDatasetsBaseDir string `mapstructure:"versioned_datasets_base_dir"`
}

// LoggingConfig controls slog construction.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// Load reads configuration from configPath (or the default search path if
// empty), applies defaults, and validates the result.
func Load(configPath string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("evobench-run")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/evobench-run")
	}

	v.SetEnvPrefix("EVOBENCH_RUN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("config: read: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}

	return cfg, v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config

	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	err = validate(&cfg)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pool.capacity", 4)
	v.SetDefault("pool.git_binary", "git")
	v.SetDefault("pool.cleanup_stale_after", "168h")
	v.SetDefault("pool.cleanup_min_num_runs", 1)

	v.SetDefault("pipeline.base_dir", "queues")

	v.SetDefault("job_runner.output_base_dir", "runs")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen", ":9090")
}

func validate(cfg *Config) error {
	if cfg.Pool.Capacity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPoolCapacity, cfg.Pool.Capacity)
	}

	if cfg.Pool.RemoteURL == "" {
		return ErrMissingRemoteURL
	}

	if cfg.Pool.BaseDir == "" {
		return fmt.Errorf("%w: pool.base_dir", ErrMissingBaseDir)
	}

	if len(cfg.Pipeline.Entries) == 0 {
		return ErrPipelineHasNoEntries
	}

	if cfg.Pipeline.BaseDir == "" {
		return fmt.Errorf("%w: pipeline.base_dir", ErrMissingBaseDir)
	}

	_, err := cfg.JobRunner.BuildTagFilter()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTagFilter, err)
	}

	return nil
}
