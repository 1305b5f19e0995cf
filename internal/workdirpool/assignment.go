package workdirpool

import (
	"context"
	"fmt"

	"github.com/GenSpectrum/evobench-sub000/internal/model"
	"github.com/GenSpectrum/evobench-sub000/internal/workdir"
)

// QueueState lets the assignment policy ask whether a commit still has live
// work pending elsewhere in the pipeline, which decides whether a clone
// currently checked out at that commit counts as "obsolete" (spec.md §4.3
// step 2).
type QueueState interface {
	HasJobForCommit(commit model.GitHash) bool
}

func highestStatus(candidates []workdir.WorkingDirectory) *workdir.WorkingDirectory {
	var best *workdir.WorkingDirectory

	for i := range candidates {
		c := &candidates[i]
		if best == nil || c.Record.Status > best.Record.Status {
			best = c
		}
	}

	return best
}

func leastRecentlyUsed(candidates []workdir.WorkingDirectory) *workdir.WorkingDirectory {
	var lru *workdir.WorkingDirectory

	for i := range candidates {
		c := &candidates[i]
		if lru == nil || c.Record.LastActivityUnix < lru.Record.LastActivityUnix {
			lru = c
		}
	}

	return lru
}

// GetAWorkingDirectoryFor implements the four-step assignment policy
// (spec.md §4.3):
//
//  1. reuse an entry already checked out at commit, preferring the one with
//     the highest Status;
//  2. else reuse the highest-Status entry whose current commit has no job
//     left in the pipeline ("obsolete");
//  3. else, if there is spare capacity, clone a fresh entry;
//  4. else evict the least-recently-used entry and reset it to commit.
//
// The caller must hold the pool lock.
func (p *Pool) GetAWorkingDirectoryFor(ctx context.Context, commit model.GitHash, queue QueueState) (*workdir.WorkingDirectory, error) {
	err := p.requireLock()
	if err != nil {
		return nil, err
	}

	all, err := p.List()
	if err != nil {
		return nil, err
	}

	usable := make([]workdir.WorkingDirectory, 0, len(all))

	for _, wd := range all {
		if wd.Record.Status.CanBeUsedForJobs() {
			usable = append(usable, wd)
		}
	}

	sameCommit := make([]workdir.WorkingDirectory, 0)

	for _, wd := range usable {
		if wd.Record.CommitID == commit {
			sameCommit = append(sameCommit, wd)
		}
	}

	if best := highestStatus(sameCommit); best != nil {
		return best, nil
	}

	obsolete := make([]workdir.WorkingDirectory, 0)

	for _, wd := range usable {
		if queue == nil || !queue.HasJobForCommit(wd.Record.CommitID) {
			obsolete = append(obsolete, wd)
		}
	}

	if best := highestStatus(obsolete); best != nil {
		return p.resetTo(ctx, *best, commit)
	}

	if len(all) < p.cfg.Capacity {
		return p.allocateNew(ctx, commit)
	}

	if lru := leastRecentlyUsed(usable); lru != nil {
		return p.resetTo(ctx, *lru, commit)
	}

	return nil, fmt.Errorf("workdirpool: no usable entry and no capacity for commit %s", commit)
}

func (p *Pool) allocateNew(ctx context.Context, commit model.GitHash) (*workdir.WorkingDirectory, error) {
	all, err := p.List()
	if err != nil {
		return nil, err
	}

	id := nextFreeID(all)
	path := p.dirPath(id)

	err = p.cfg.Git.Clone(ctx, p.cfg.RemoteURL, path)
	if err != nil {
		return nil, fmt.Errorf("workdirpool: clone for new entry %d: %w", id, err)
	}

	err = p.cfg.Git.ResetHard(ctx, path, commit)
	if err != nil {
		return nil, fmt.Errorf("workdirpool: reset new entry %d to %s: %w", id, commit, err)
	}

	rec := workdir.Record{ID: id, Status: workdir.StatusCheckedOut, CommitID: commit}

	err = p.saveRecord(rec)
	if err != nil {
		return nil, err
	}

	return &workdir.WorkingDirectory{Record: rec, Path: path}, nil
}

func (p *Pool) resetTo(ctx context.Context, wd workdir.WorkingDirectory, commit model.GitHash) (*workdir.WorkingDirectory, error) {
	if wd.Record.CommitID == commit {
		return &wd, nil
	}

	err := p.cfg.Git.FetchTags(ctx, wd.Path)
	if err != nil {
		return nil, fmt.Errorf("workdirpool: fetch for entry %d: %w", wd.Record.ID, err)
	}

	err = p.cfg.Git.ResetHard(ctx, wd.Path, commit)
	if err != nil {
		return nil, fmt.Errorf("workdirpool: reset entry %d to %s: %w", wd.Record.ID, commit, err)
	}

	wd.Record.CommitID = commit
	wd.Record.Status = workdir.StatusCheckedOut

	err = p.saveRecord(wd.Record)
	if err != nil {
		return nil, err
	}

	return &wd, nil
}
