// Package queue specializes internal/keyval to model.TimeKey-ordered entries
// persisted to disk, and layers the locking/iteration semantics a scheduling
// pipeline stage needs (spec.md §4.2): front-insertion, range iteration, and
// exclusive claiming of the item at the front.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/GenSpectrum/evobench-sub000/internal/keyval"
	"github.com/GenSpectrum/evobench-sub000/internal/model"
)

func timeKeyCodec() keyval.KeyCodec[model.TimeKey] {
	return keyval.KeyCodec[model.TimeKey]{
		ToFilename:   model.TimeKey.ToFilename,
		FromFilename: model.TimeKeyFromFilename,
		Less:         model.TimeKey.Less,
	}
}

// Queue is a time-ordered, file-backed sequence of V. Lower TimeKey values
// sort first; iteration in natural order visits insertion order except for
// entries pushed to the front via PushFront.
type Queue[V any] struct {
	store *keyval.Store[model.TimeKey, V]
}

// Open opens or creates a Queue rooted at baseDir.
func Open[V any](baseDir string, sync keyval.SyncPolicy) (*Queue[V], error) {
	store, err := keyval.Open[model.TimeKey, V](baseDir, timeKeyCodec(), sync)
	if err != nil {
		return nil, fmt.Errorf("queue: open %s: %w", baseDir, err)
	}

	return &Queue[V]{store: store}, nil
}

// BaseDir returns the queue's root directory.
func (q *Queue[V]) BaseDir() string { return q.store.BaseDir() }

// Push appends v with a freshly minted TimeKey, placing it after every
// entry currently in the queue.
func (q *Queue[V]) Push(v V) (model.TimeKey, error) {
	k := model.Now()

	err := q.store.Insert(k, v, true)
	if err != nil {
		return model.TimeKey{}, fmt.Errorf("queue: push: %w", err)
	}

	return k, nil
}

// PushFront inserts v with a TimeKey guaranteed to sort before every entry
// currently present, for re-filing a job that must be retried before
// anything else in the queue (spec.md §4.4, §4.5 step 8).
func (q *Queue[V]) PushFront(ctx context.Context, v V) (model.TimeKey, error) {
	results, err := q.store.SortedKeys(ctx, keyval.ListOptions{}, false)
	if err != nil {
		return model.TimeKey{}, fmt.Errorf("queue: push front: %w", err)
	}

	k := model.Now()

	for _, r := range results {
		if r.Err != nil {
			continue
		}

		if !k.Less(r.Key) {
			k = model.TimeKey{NanosSinceEpoch: r.Key.NanosSinceEpoch - 1, PID: r.Key.PID, ID: r.Key.ID}
		}
	}

	err = q.store.Insert(k, v, true)
	if err != nil {
		return model.TimeKey{}, fmt.Errorf("queue: push front: %w", err)
	}

	return k, nil
}

// ItemOptions configures Items.
type ItemOptions struct {
	// Wait blocks until at least one entry is present.
	Wait bool
	// Deadline bounds Wait; the zero Time means no deadline.
	Deadline time.Time
	// Reverse visits entries from newest to oldest instead of oldest to
	// newest.
	Reverse bool
	// StopAt, if non-nil, ends the iteration at the first entry whose TimeKey
	// satisfies it; that entry and every later one are excluded.
	StopAt func(model.TimeKey) bool
}

// Item is one queue entry as seen by an iterator: its key and a lazy,
// lockable handle to its value.
type Item[V any] struct {
	Key   model.TimeKey
	Entry *keyval.Entry[model.TimeKey, V]
}

// Items lists the queue's current entries in TimeKey order (or reverse),
// optionally blocking until at least one exists.
func (q *Queue[V]) Items(ctx context.Context, opts ItemOptions) ([]Item[V], error) {
	results, err := q.store.SortedKeys(ctx, keyval.ListOptions{WaitForEntries: opts.Wait, Deadline: opts.Deadline}, opts.Reverse)
	if err != nil {
		return nil, fmt.Errorf("queue: items: %w", err)
	}

	items := make([]Item[V], 0, len(results))

	for _, r := range results {
		if r.Err != nil {
			continue
		}

		if opts.StopAt != nil && opts.StopAt(r.Key) {
			break
		}

		items = append(items, Item[V]{Key: r.Key, Entry: q.store.Entry(r.Key)})
	}

	return items, nil
}

// Front returns the oldest (or, if reverse is true, newest) item currently
// in the queue, or ok=false if it is empty.
func (q *Queue[V]) Front(ctx context.Context, reverse bool) (Item[V], bool, error) {
	items, err := q.Items(ctx, ItemOptions{Reverse: reverse})
	if err != nil {
		return Item[V]{}, false, err
	}

	if len(items) == 0 {
		return Item[V]{}, false, nil
	}

	return items[0], true, nil
}

// Remove deletes the entry for k.
func (q *Queue[V]) Remove(k model.TimeKey) (bool, error) {
	existed, err := q.store.Delete(k)
	if err != nil {
		return false, fmt.Errorf("queue: remove: %w", err)
	}

	return existed, nil
}

// Len reports the number of entries currently in the queue. It does not
// block, and ignores unparsable filenames.
func (q *Queue[V]) Len(ctx context.Context) (int, error) {
	results, err := q.store.Keys(ctx, keyval.ListOptions{})
	if err != nil {
		return 0, fmt.Errorf("queue: len: %w", err)
	}

	n := 0

	for _, r := range results {
		if r.Err == nil {
			n++
		}
	}

	return n, nil
}
