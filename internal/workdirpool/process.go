package workdirpool

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/GenSpectrum/evobench-sub000/internal/model"
	"github.com/GenSpectrum/evobench-sub000/internal/workdir"
)

// Action is the caller-supplied unit of work ProcessInWorkingDirectory runs
// against an already-checked-out entry.
type Action func(wd workdir.WorkingDirectory) error

// ProcessInWorkingDirectory marks wd Processing, runs action, and records
// the outcome: Finished on success, or on failure the entry's directory is
// renamed to "<id>.dir_at_<unix>" and a sibling "<id>.error_at_<unix>"
// status file records the failure, moving the live entry out of
// circulation until an operator clears it (spec.md §4.3, §4.5 error path).
// runParams and actionContext identify the work being attempted, for the
// ProcessingError written on failure; runParams may be nil when action runs
// without a job (e.g. an operator-triggered check). The caller must hold
// the pool lock.
func (p *Pool) ProcessInWorkingDirectory(
	now time.Time,
	wd workdir.WorkingDirectory,
	runParams *model.RunParameters,
	actionContext string,
	action Action,
) error {
	err := p.requireLock()
	if err != nil {
		return err
	}

	wd.Record.Status = workdir.StatusProcessing
	wd.Record.NumRuns++
	wd.Record.LastActivityUnix = now.Unix()

	err = p.saveRecord(wd.Record)
	if err != nil {
		return err
	}

	runErr := action(wd)

	if runErr != nil {
		return p.markErrored(now, wd, runParams, actionContext, runErr)
	}

	wd.Record.Status = workdir.StatusFinished
	wd.Record.LastActivityUnix = now.Unix()

	return p.saveRecord(wd.Record)
}

func (p *Pool) markErrored(
	now time.Time,
	wd workdir.WorkingDirectory,
	runParams *model.RunParameters,
	actionContext string,
	cause error,
) error {
	ts := strconv.FormatInt(now.Unix(), 10)
	idStr := strconv.FormatUint(uint64(wd.Record.ID), 10)

	archivedDir := p.dirPath(wd.Record.ID) + ".dir_at_" + ts

	err := os.Rename(wd.Path, archivedDir)
	if err != nil {
		return fmt.Errorf("workdirpool: archive failed entry %d: %w (original error: %v)", wd.Record.ID, err, cause)
	}

	wd.Record.Status = workdir.StatusError
	wd.Record.LastActivityUnix = now.Unix()
	wd.Record.ErrorReason = cause.Error()

	errStatusPath := p.dirPath(wd.Record.ID) + ".error_at_" + ts

	processingErr := workdir.ProcessingError{
		RunParameters: runParams,
		Context:       actionContext,
		ErrorString:   cause.Error(),
	}

	err = writeYAMLAtomic(errStatusPath, processingErr)
	if err != nil {
		return fmt.Errorf("workdirpool: write error status for entry %s: %w (original error: %v)", idStr, err, cause)
	}

	err = os.Remove(p.statusPath(wd.Record.ID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("workdirpool: remove live status for errored entry %d: %w", wd.Record.ID, err)
	}

	err = p.SignalFile().Bump()
	if err != nil {
		return fmt.Errorf("workdirpool: entry %d failed and was archived at %s, but signal bump failed: %w (original error: %v)", wd.Record.ID, archivedDir, err, cause)
	}

	return fmt.Errorf("workdirpool: entry %d failed and was archived at %s: %w", wd.Record.ID, archivedDir, cause)
}

// SetStatus directly transitions an entry to status, for operator-driven
// transitions that don't fit ProcessInWorkingDirectory's run/outcome shape
// (e.g. flagging a Finished entry for Examination).
func (p *Pool) SetStatus(id uint64, status workdir.Status, now time.Time) error {
	err := p.requireLock()
	if err != nil {
		return err
	}

	rec, err := p.loadRecord(idFromUint(id))
	if err != nil {
		return err
	}

	rec.Status = status
	rec.LastActivityUnix = now.Unix()

	return p.saveRecord(rec)
}

// Mark sets or clears an entry's Kept flag; a Kept entry is skipped by
// Cleanup until Mark is called again with kept=false (a SPEC_FULL.md-supplemented
// operator affordance, spec.md §3's Kept field).
func (p *Pool) Mark(id uint64, kept bool) error {
	err := p.requireLock()
	if err != nil {
		return err
	}

	rec, err := p.loadRecord(idFromUint(id))
	if err != nil {
		return err
	}

	rec.Kept = kept

	return p.saveRecord(rec)
}

// CleanupThresholds bounds which terminal-status entries Cleanup may
// remove (spec.md §4.3: "stale-days threshold reached" and "num_runs
// threshold reached", both required, plus an optional commit-still-queued
// veto).
type CleanupThresholds struct {
	StaleAfter time.Duration
	MinNumRuns uint64
	Queue      QueueState
}

// Cleanup deletes (directory and status file) every entry in a terminal
// user status that also clears the stale-days and num_runs thresholds and,
// if a QueueState is given, has no job still queued for its commit. Kept
// entries are always skipped. The caller must hold the pool lock.
func (p *Pool) Cleanup(now time.Time, thresholds CleanupThresholds) ([]workdir.WorkingDirectory, error) {
	err := p.requireLock()
	if err != nil {
		return nil, err
	}

	all, err := p.List()
	if err != nil {
		return nil, err
	}

	removed := make([]workdir.WorkingDirectory, 0)

	for _, wd := range all {
		if wd.Record.Kept || !wd.Record.Status.IsTerminalUserError() {
			continue
		}

		stale := now.Sub(time.Unix(wd.Record.LastActivityUnix, 0)) >= thresholds.StaleAfter
		if !stale || wd.Record.NumRuns < thresholds.MinNumRuns {
			continue
		}

		if thresholds.Queue != nil && thresholds.Queue.HasJobForCommit(wd.Record.CommitID) {
			continue
		}

		err = os.RemoveAll(wd.Path)
		if err != nil {
			return removed, fmt.Errorf("workdirpool: cleanup remove dir %d: %w", wd.Record.ID, err)
		}

		err = os.Remove(p.statusPath(wd.Record.ID))
		if err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("workdirpool: cleanup remove status %d: %w", wd.Record.ID, err)
		}

		removed = append(removed, wd)
	}

	if len(removed) > 0 {
		err = p.SignalFile().Bump()
		if err != nil {
			return removed, err
		}
	}

	return removed, nil
}

// Recycle forces an entry back to CheckedOut without a fresh clone, for
// operator-driven reuse of a directory after manual inspection (the
// original tooling's "wd recycle" subcommand). The caller must hold the
// pool lock.
func (p *Pool) Recycle(id uint64, now time.Time) error {
	err := p.requireLock()
	if err != nil {
		return err
	}

	rec, err := p.loadRecord(idFromUint(id))
	if err != nil {
		return err
	}

	rec.Status = workdir.StatusCheckedOut
	rec.LastActivityUnix = now.Unix()
	rec.ErrorReason = ""

	return p.saveRecord(rec)
}
