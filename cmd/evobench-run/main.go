// Command evobench-run is the scheduling daemon: it loads an
// evobench-run.yaml configuration, opens the working-directory pool and
// the pipeline's run queues, and repeatedly picks and executes the
// highest-priority runnable job (spec.md §4.4). It is deliberately thin —
// spec.md §1 scopes a full operator CLI (queue inspection, manual
// requeue, pool recycling) as a non-goal.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GenSpectrum/evobench-sub000/internal/config"
	"github.com/GenSpectrum/evobench-sub000/internal/gitwd"
	"github.com/GenSpectrum/evobench-sub000/internal/jobrunner"
	"github.com/GenSpectrum/evobench-sub000/internal/keyval"
	"github.com/GenSpectrum/evobench-sub000/internal/observability"
	"github.com/GenSpectrum/evobench-sub000/internal/queue"
	"github.com/GenSpectrum/evobench-sub000/internal/runqueues"
	"github.com/GenSpectrum/evobench-sub000/internal/workdirpool"
)

const (
	pollInterval      = 5 * time.Second
	cleanupInterval   = 10 * time.Minute
	metricsReadHeader = 5 * time.Second
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "evobench-run",
		Short:         "Schedule and run reproducible benchmark jobs across commits",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var configPath string
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to evobench-run.yaml (default: search path)")

	rootCmd.AddCommand(newServeCommand(&configPath))
	rootCmd.AddCommand(newVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintln(os.Stdout, "evobench-run (development build)")
		},
	}
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduling loop until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *configPath)
		},
	}
}

func serve(ctx context.Context, configPath string) error {
	cfg, v, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("evobench-run: load config: %w", err)
	}

	logger := observability.NewLogger(observability.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, "evobench-run")

	watcher := config.NewWatcher(v, cfg, logger)

	_, shutdownTracing, err := observability.NewTracerProvider("evobench-run")
	if err != nil {
		return fmt.Errorf("evobench-run: init tracing: %w", err)
	}
	defer shutdownTracing(context.Background()) //nolint:errcheck

	metrics := observability.NewMetrics()
	if cfg.Metrics.Enabled {
		server := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: metricsReadHeader,
		}

		go func() {
			err := server.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", "error", err)
			}
		}()

		defer server.Close() //nolint:errcheck
	}

	pool, err := workdirpool.Open(workdirpool.Config{
		BaseDir:   cfg.Pool.BaseDir,
		Capacity:  cfg.Pool.Capacity,
		RemoteURL: cfg.Pool.RemoteURL,
		Git:       gitwd.Exec{GitBinary: cfg.Pool.GitBinary},
	})
	if err != nil {
		return fmt.Errorf("evobench-run: open pool: %w", err)
	}

	pipeline, err := cfg.Pipeline.BuildPipeline()
	if err != nil {
		return fmt.Errorf("evobench-run: build pipeline: %w", err)
	}

	rq, err := runqueues.Open(cfg.Pipeline.BaseDir, pipeline, keyval.SyncAll)
	if err != nil {
		return fmt.Errorf("evobench-run: open run queues: %w", err)
	}

	tagFilter, err := cfg.JobRunner.BuildTagFilter()
	if err != nil {
		return fmt.Errorf("evobench-run: build tag filter: %w", err)
	}

	runner := jobrunner.New(jobrunner.Config{
		Pool:                     pool,
		Git:                      gitwd.Exec{GitBinary: cfg.Pool.GitBinary},
		Queue:                    rq,
		OutputBaseDir:            cfg.JobRunner.OutputBaseDir,
		TagFilter:                tagFilter,
		VersionedDatasetsBaseDir: cfg.JobRunner.VersionedDatasetsBaseDir,
		Logger:                   logger,
	})

	scheduler := runqueues.NewScheduler(rq)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("evobench-run starting", "pool_capacity", cfg.Pool.Capacity)

	runLoop(ctx, scheduler, runner, rq, pool, watcher, metrics, logger)

	logger.Info("evobench-run shutting down")

	return nil
}

func runLoop(
	ctx context.Context,
	scheduler *runqueues.Scheduler,
	runner *jobrunner.Runner,
	rq *runqueues.RunQueues,
	pool *workdirpool.Pool,
	watcher *config.Watcher,
	metrics *observability.Metrics,
	logger *slog.Logger,
) {
	lastCleanup := time.Time{}
	windowOpen := map[string]bool{}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := time.Now()

		for _, rt := range rq.All() {
			_, open := runqueues.IsRunnableAt(rt.Condition, now)
			if windowOpen[rt.Name] && !open {
				err := scheduler.DrainExpiredWindow(ctx, rt)
				if err != nil {
					logger.Error("drain expired window failed", "queue", rt.Name, "error", err)
				}
			}

			windowOpen[rt.Name] = open
		}

		reportQueueDepths(ctx, rq, metrics)

		err := scheduler.RunNextJob(ctx, runner, now)
		switch {
		case err == nil:
			continue
		case errors.Is(err, runqueues.ErrNoRunnableJob):
			if now.Sub(lastCleanup) >= cleanupInterval {
				runCleanup(pool, rq, watcher, logger, now)
				lastCleanup = now
			}

			sleep(ctx, pollInterval)
		default:
			logger.Error("run next job failed", "error", err)
			sleep(ctx, pollInterval)
		}
	}
}

func runCleanup(pool *workdirpool.Pool, rq *runqueues.RunQueues, watcher *config.Watcher, logger *slog.Logger, now time.Time) {
	cfg := watcher.Current()

	err := pool.Lock()
	if err != nil {
		logger.Error("cleanup: lock pool failed", "error", err)
		return
	}
	defer pool.Unlock() //nolint:errcheck

	_, err = pool.Cleanup(now, workdirpool.CleanupThresholds{
		StaleAfter: cfg.Pool.CleanupStaleAfter,
		MinNumRuns: cfg.Pool.CleanupMinNumRuns,
		Queue:      rq,
	})
	if err != nil {
		logger.Error("cleanup failed", "error", err)
	}

	_, err = pool.CleanupArchived(now, cfg.Pool.CleanupStaleAfter)
	if err != nil {
		logger.Error("cleanup archived failed", "error", err)
	}
}

func reportQueueDepths(ctx context.Context, rq *runqueues.RunQueues, metrics *observability.Metrics) {
	for _, rt := range rq.All() {
		items, err := rt.Queue.Items(ctx, queue.ItemOptions{})
		if err != nil {
			continue
		}

		metrics.QueueDepth.WithLabelValues(rt.Name).Set(float64(len(items)))
	}
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
