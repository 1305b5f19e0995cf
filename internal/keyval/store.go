package keyval

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// SyncPolicy controls how aggressively Store fsyncs to make inserts durable
// before returning (spec.md §4.1, §5 "A completed insert is durable before
// the inserter returns when sync policy is All").
type SyncPolicy int

// Supported SyncPolicy values. Open takes the policy explicitly; the zero
// value is SyncNone, and cmd/evobench-run opens its queues with SyncAll.
const (
	// SyncNone performs no explicit fsync calls.
	SyncNone SyncPolicy = iota
	// SyncFiles fsyncs each value file before the rename that publishes it.
	SyncFiles
	// SyncAll additionally fsyncs the containing directory after the
	// rename, so the directory entry itself is durable.
	SyncAll
)

// KeyCodec describes how a Store's key type round-trips to and from a
// filename. ToFilename/FromFilename must be exact inverses for any key the
// store will ever hold (spec.md §8 round-trip invariant).
type KeyCodec[K any] struct {
	ToFilename   func(K) string
	FromFilename func(string) (K, error)
	Less         func(a, b K) bool
}

// Store is a directory-backed map from K to JSON-encoded V. Each entry is
// one regular file named ToFilename(k); temp files (leading '.') are
// in-flight writes and are skipped by readers.
type Store[K any, V any] struct {
	baseDir string
	codec   KeyCodec[K]
	sync    SyncPolicy
	mu      sync.Mutex
}

// Open creates baseDir if needed and returns a Store rooted there.
func Open[K any, V any](baseDir string, codec KeyCodec[K], sync SyncPolicy) (*Store[K, V], error) {
	err := os.MkdirAll(baseDir, 0o750)
	if err != nil {
		return nil, newIOError(baseDir, baseDir, "mkdir", err)
	}

	return &Store[K, V]{baseDir: baseDir, codec: codec, sync: sync}, nil
}

// BaseDir returns the store's root directory.
func (s *Store[K, V]) BaseDir() string {
	return s.baseDir
}

// PathFor returns the on-disk path an entry for k would occupy.
func (s *Store[K, V]) PathFor(k K) string {
	return filepath.Join(s.baseDir, s.codec.ToFilename(k))
}

// Insert writes v under k. If exclusive is true and an entry for k already
// exists, ErrKeyExists is returned and nothing is modified.
func (s *Store[K, V]) Insert(k K, v V, exclusive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.PathFor(k)

	if exclusive {
		_, statErr := os.Stat(target)
		if statErr == nil {
			return fmt.Errorf("%w: %s", ErrKeyExists, target)
		}
	}

	tmpPath, err := s.writeTemp(v)
	if err != nil {
		return err
	}

	err = os.Rename(tmpPath, target)
	if err != nil {
		_ = os.Remove(tmpPath)

		return newIOError(s.baseDir, target, "rename", err)
	}

	if s.sync == SyncAll {
		syncErr := syncDir(s.baseDir)
		if syncErr != nil {
			return newIOError(s.baseDir, s.baseDir, "fsync-dir", syncErr)
		}
	}

	return nil
}

func (s *Store[K, V]) writeTemp(v V) (string, error) {
	suffix := make([]byte, 8)

	_, err := rand.Read(suffix)
	if err != nil {
		return "", fmt.Errorf("keyval: generate temp suffix: %w", err)
	}

	tmpName := "." + hex.EncodeToString(suffix) + ".tmp"
	tmpPath := filepath.Join(s.baseDir, tmpName)

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", newIOError(s.baseDir, tmpPath, "create-temp", err)
	}

	encodeErr := json.NewEncoder(f).Encode(v)
	if encodeErr != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)

		return "", fmt.Errorf("keyval: encode value: %w", encodeErr)
	}

	if s.sync == SyncFiles || s.sync == SyncAll {
		syncErr := f.Sync()
		if syncErr != nil {
			_ = f.Close()
			_ = os.Remove(tmpPath)

			return "", newIOError(s.baseDir, tmpPath, "fsync-file", syncErr)
		}
	}

	closeErr := f.Close()
	if closeErr != nil {
		_ = os.Remove(tmpPath)

		return "", newIOError(s.baseDir, tmpPath, "close-temp", closeErr)
	}

	return tmpPath, nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir for fsync: %w", err)
	}
	defer func() { _ = d.Close() }()

	err = d.Sync()
	if err != nil {
		return fmt.Errorf("fsync dir: %w", err)
	}

	return nil
}

// Delete removes the entry for k, if any, and reports whether one existed.
// Idempotent: deleting an absent key returns (false, nil).
func (s *Store[K, V]) Delete(k K) (bool, error) {
	target := s.PathFor(k)

	err := os.Remove(target)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, newIOError(s.baseDir, target, "remove", err)
	}

	return true, nil
}

// Get reads and decodes the entry for k, if present.
func (s *Store[K, V]) Get(k K) (V, bool, error) {
	var zero V

	target := s.PathFor(k)

	data, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return zero, false, nil
		}

		return zero, false, newIOError(s.baseDir, target, "read", err)
	}

	var v V

	decodeErr := json.Unmarshal(data, &v)
	if decodeErr != nil {
		return zero, false, fmt.Errorf("keyval: decode %s: %w", target, decodeErr)
	}

	return v, true, nil
}

// Entry opens a lazy, lockable handle to the entry for k without reading it
// yet (spec.md §4.1).
func (s *Store[K, V]) Entry(k K) *Entry[K, V] {
	return &Entry[K, V]{store: s, key: k, path: s.PathFor(k)}
}

// KeyResult pairs a decoded key with an error encountered decoding or
// listing it, so one bad filename does not abort the whole enumeration
// (spec.md §7: "Enumeration errors during queue listing do not poison the
// whole iteration").
type KeyResult[K any] struct {
	Key K
	Err error
}

// ListOptions configures Keys/SortedKeys.
type ListOptions struct {
	// WaitForEntries blocks, polling with exponential backoff, until at
	// least one entry exists or Deadline passes.
	WaitForEntries bool
	// Deadline bounds WaitForEntries; the zero Time means no deadline.
	Deadline time.Time
}

const (
	initialBackoff = 10 * time.Millisecond
	maxBackoff     = 1 * time.Second
)

// Keys lists the decodable entries, in directory order, optionally blocking
// until at least one exists.
func (s *Store[K, V]) Keys(ctx context.Context, opts ListOptions) ([]KeyResult[K], error) {
	backoff := initialBackoff

	for {
		results, err := s.listOnce()
		if err != nil {
			return nil, err
		}

		if len(results) > 0 || !opts.WaitForEntries {
			return results, nil
		}

		if !opts.Deadline.IsZero() && !time.Now().Before(opts.Deadline) {
			return nil, ErrDeadlineExceeded
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("keyval: wait for entries: %w", ctx.Err())
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// SortedKeys is Keys followed by a sort using the KeyCodec's Less function
// (or its reverse).
func (s *Store[K, V]) SortedKeys(ctx context.Context, opts ListOptions, reverse bool) ([]KeyResult[K], error) {
	results, err := s.Keys(ctx, opts)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Err != nil || results[j].Err != nil {
			return false
		}

		if reverse {
			return s.codec.Less(results[j].Key, results[i].Key)
		}

		return s.codec.Less(results[i].Key, results[j].Key)
	})

	return results, nil
}

func (s *Store[K, V]) listOnce() ([]KeyResult[K], error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, newIOError(s.baseDir, s.baseDir, "readdir", err)
	}

	results := make([]KeyResult[K], 0, len(entries))

	for _, de := range entries {
		if de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}

		k, parseErr := s.codec.FromFilename(de.Name())
		if parseErr != nil {
			results = append(results, KeyResult[K]{Err: fmt.Errorf("%w: %s: %w", ErrInvalidFileNameInStorage, de.Name(), parseErr)})

			continue
		}

		results = append(results, KeyResult[K]{Key: k})
	}

	return results, nil
}
