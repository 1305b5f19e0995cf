// Package workdirpool manages a bounded set of checked-out clones of the
// target repository, assigning them to jobs and isolating failed runs for
// forensic inspection (spec.md §4.3).
package workdirpool

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/GenSpectrum/evobench-sub000/internal/filelock"
	"github.com/GenSpectrum/evobench-sub000/internal/gitwd"
	"github.com/GenSpectrum/evobench-sub000/internal/model"
	"github.com/GenSpectrum/evobench-sub000/internal/workdir"
)

// ErrCapacityMustBePositive is returned by Open when Capacity < 1.
var ErrCapacityMustBePositive = errors.New("workdirpool: capacity must be >= 1")

// ErrNotLocked is returned by mutating methods called without holding the
// pool's advisory lock.
var ErrNotLocked = errors.New("workdirpool: pool lock not held")

const statusSuffix = ".status"

// Config configures a Pool.
type Config struct {
	BaseDir   string
	Capacity  int
	RemoteURL string
	Git       gitwd.GitWorkingDir
}

// Pool is the guarded set of WorkingDirectory entries rooted at
// Config.BaseDir. Mutation is only valid while the caller holds the lock
// returned by Lock (spec.md §4.3: "this *is* the 'only one runner at a
// time' invariant").
type Pool struct {
	cfg  Config
	lock *filelock.Lock
}

// Open validates cfg and ensures BaseDir exists, without acquiring the
// pool lock.
func Open(cfg Config) (*Pool, error) {
	if cfg.Capacity < 1 {
		return nil, ErrCapacityMustBePositive
	}

	err := os.MkdirAll(cfg.BaseDir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("workdirpool: mkdir %s: %w", cfg.BaseDir, err)
	}

	return &Pool{cfg: cfg}, nil
}

// Lock blocks until the pool-wide advisory lock is acquired.
func (p *Pool) Lock() error {
	f, err := filelock.OpenDir(p.cfg.BaseDir)
	if err != nil {
		return err
	}

	lock, err := filelock.LockExclusive(f)
	if err != nil {
		_ = f.Close()

		return fmt.Errorf("workdirpool: lock %s: %w", p.cfg.BaseDir, err)
	}

	p.lock = lock

	return nil
}

// TryLock attempts to acquire the pool lock without blocking.
func (p *Pool) TryLock() error {
	f, err := filelock.OpenDir(p.cfg.BaseDir)
	if err != nil {
		return err
	}

	lock, err := filelock.TryLockExclusive(f)
	if err != nil {
		_ = f.Close()

		return err
	}

	p.lock = lock

	return nil
}

// Unlock releases the pool lock.
func (p *Pool) Unlock() error {
	if p.lock == nil {
		return nil
	}

	err := p.lock.Unlock()
	p.lock = nil

	if err != nil {
		return fmt.Errorf("workdirpool: unlock: %w", err)
	}

	return nil
}

func (p *Pool) requireLock() error {
	if p.lock == nil {
		return ErrNotLocked
	}

	return nil
}

func (p *Pool) statusPath(id model.WorkingDirectoryID) string {
	return filepath.Join(p.cfg.BaseDir, strconv.FormatUint(uint64(id), 10)+statusSuffix)
}

func (p *Pool) dirPath(id model.WorkingDirectoryID) string {
	return filepath.Join(p.cfg.BaseDir, strconv.FormatUint(uint64(id), 10))
}

func (p *Pool) saveRecord(rec workdir.Record) error {
	return p.saveRecordAt(p.statusPath(rec.ID), rec)
}

func (p *Pool) saveRecordAt(path string, rec workdir.Record) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("workdirpool: marshal status for %d: %w", rec.ID, err)
	}

	tmpPath := path + ".tmp"

	err = os.WriteFile(tmpPath, data, 0o640)
	if err != nil {
		return fmt.Errorf("workdirpool: write status %s: %w", tmpPath, err)
	}

	err = os.Rename(tmpPath, path)
	if err != nil {
		return fmt.Errorf("workdirpool: rename status into place %s: %w", path, err)
	}

	err = p.SignalFile().Bump()
	if err != nil {
		return err
	}

	return nil
}

// writeYAMLAtomic marshals v as YAML and writes it to path via a
// write-then-rename, the same durability pattern saveRecordAt uses for
// status files.
func writeYAMLAtomic(path string, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("workdirpool: marshal %s: %w", path, err)
	}

	tmpPath := path + ".tmp"

	err = os.WriteFile(tmpPath, data, 0o640)
	if err != nil {
		return fmt.Errorf("workdirpool: write %s: %w", tmpPath, err)
	}

	err = os.Rename(tmpPath, path)
	if err != nil {
		return fmt.Errorf("workdirpool: rename into place %s: %w", path, err)
	}

	return nil
}

func idFromUint(id uint64) model.WorkingDirectoryID {
	return model.WorkingDirectoryID(id)
}

func (p *Pool) loadRecord(id model.WorkingDirectoryID) (workdir.Record, error) {
	data, err := os.ReadFile(p.statusPath(id))
	if err != nil {
		return workdir.Record{}, fmt.Errorf("workdirpool: read status %d: %w", id, err)
	}

	var rec workdir.Record

	err = yaml.Unmarshal(data, &rec)
	if err != nil {
		return workdir.Record{}, fmt.Errorf("workdirpool: decode status %d: %w", id, err)
	}

	return rec, nil
}

// List returns every live entry (id plus record), sorted by id. Entries
// whose status file vanished between listing and reading are skipped
// silently (spec.md §5: "deletion races are tolerated").
func (p *Pool) List() ([]workdir.WorkingDirectory, error) {
	entries, err := os.ReadDir(p.cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("workdirpool: readdir %s: %w", p.cfg.BaseDir, err)
	}

	ids := make([]model.WorkingDirectoryID, 0, len(entries))

	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, statusSuffix) {
			continue
		}

		idStr := strings.TrimSuffix(name, statusSuffix)
		if strings.Contains(idStr, "_at_") {
			continue
		}

		n, parseErr := strconv.ParseUint(idStr, 10, 64)
		if parseErr != nil {
			continue
		}

		ids = append(ids, model.WorkingDirectoryID(n))
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	result := make([]workdir.WorkingDirectory, 0, len(ids))

	for _, id := range ids {
		rec, loadErr := p.loadRecord(id)
		if loadErr != nil {
			if os.IsNotExist(errors.Unwrap(loadErr)) {
				continue
			}

			continue
		}

		result = append(result, workdir.WorkingDirectory{Record: rec, Path: p.dirPath(id)})
	}

	return result, nil
}

func nextFreeID(existing []workdir.WorkingDirectory) model.WorkingDirectoryID {
	var max model.WorkingDirectoryID

	found := false

	for _, wd := range existing {
		if !found || wd.Record.ID > max {
			max = wd.Record.ID
			found = true
		}
	}

	if !found {
		return 0
	}

	return max + 1
}
