// Package jobstore implements the "no two live jobs with identical
// parameters" invariant (spec.md §3) as a KeyValStore keyed by the
// canonicalized BenchmarkingJobParameters hash, named but not designed in
// the distillation ("already_inserted" in the on-disk layout, spec.md §6).
package jobstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/GenSpectrum/evobench-sub000/internal/keyval"
	"github.com/GenSpectrum/evobench-sub000/internal/model"
)

// ErrAlreadyInserted is returned by Insert when a live job with identical
// parameters is already tracked.
var ErrAlreadyInserted = errors.New("jobstore: a job with identical parameters is already live")

// record is the value stored per dedup key: insertion time plus enough of
// the original parameters to explain a collision to an operator.
type record struct {
	InsertedAtUnix int64                           `json:"inserted_at_unix"`
	Parameters     model.BenchmarkingJobParameters `json:"parameters"`
}

func hashCodec() keyval.KeyCodec[string] {
	return keyval.KeyCodec[string]{
		ToFilename:   func(k string) string { return k },
		FromFilename: func(s string) (string, error) { return s, nil },
		Less:         func(a, b string) bool { return a < b },
	}
}

// DedupIndex is the already_inserted index: one file per live job,
// named by the hex SHA-256 of its canonicalized parameters.
type DedupIndex struct {
	store *keyval.Store[string, record]
}

// Open creates baseDir if needed and returns a DedupIndex rooted there.
func Open(baseDir string, sync keyval.SyncPolicy) (*DedupIndex, error) {
	store, err := keyval.Open[string, record](baseDir, hashCodec(), sync)
	if err != nil {
		return nil, fmt.Errorf("jobstore: open: %w", err)
	}

	return &DedupIndex{store: store}, nil
}

// Insert records params as live at now, failing with ErrAlreadyInserted if
// a job with identical parameters is already tracked.
func (d *DedupIndex) Insert(params model.BenchmarkingJobParameters, now time.Time) error {
	key, err := params.Hash()
	if err != nil {
		return fmt.Errorf("jobstore: hash parameters: %w", err)
	}

	err = d.store.Insert(key, record{InsertedAtUnix: now.Unix(), Parameters: params}, true)
	if err != nil {
		if errors.Is(err, keyval.ErrKeyExists) {
			return fmt.Errorf("%w: %s", ErrAlreadyInserted, key)
		}

		return fmt.Errorf("jobstore: insert: %w", err)
	}

	return nil
}

// Contains reports whether params is currently tracked as live.
func (d *DedupIndex) Contains(params model.BenchmarkingJobParameters) (bool, error) {
	key, err := params.Hash()
	if err != nil {
		return false, fmt.Errorf("jobstore: hash parameters: %w", err)
	}

	_, ok, err := d.store.Get(key)
	if err != nil {
		return false, fmt.Errorf("jobstore: get: %w", err)
	}

	return ok, nil
}

// Remove un-tracks params, e.g. once the job it guarded has left the
// pipeline for a terminal queue or been dropped. Idempotent.
func (d *DedupIndex) Remove(params model.BenchmarkingJobParameters) error {
	key, err := params.Hash()
	if err != nil {
		return fmt.Errorf("jobstore: hash parameters: %w", err)
	}

	_, err = d.store.Delete(key)
	if err != nil {
		return fmt.Errorf("jobstore: remove: %w", err)
	}

	return nil
}
