package model

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// ErrInvalidTimeKeyFilename is returned when a filename cannot be parsed back
// into a TimeKey.
var ErrInvalidTimeKeyFilename = errors.New("invalid time key filename")

// idCounter is a process-local monotonic counter, used to break ties between
// TimeKeys minted within the same nanosecond by the same process.
var idCounter atomic.Uint64

// TimeKey is a total-ordered, filename-safe key: lexicographic over
// (nanos_since_epoch, pid, id). Used as the on-disk filename of one queue
// entry (spec.md §3).
//
// The source types nanos_since_epoch as u128; Go's standard library exposes
// wall-clock nanoseconds since the Unix epoch as int64 (valid until the year
// 2262), which this type stores as uint64 — ample range for a benchmarking
// scheduler and exact enough to preserve total ordering and round-trip.
type TimeKey struct {
	NanosSinceEpoch uint64
	PID             uint32
	ID              uint64
}

// Field widths chosen so the decimal string form is itself lexicographically
// ordered the same way as the numeric triple — convenient for humans browsing
// the queue directory, though Queue never relies on string sort order itself
// (it always decodes filenames back to TimeKey before comparing).
const (
	nanosWidth = 20
	pidWidth   = 10
	idWidth    = 20
)

// Now constructs a TimeKey for the current instant, the running process's
// pid, and the next value of the process-local counter.
func Now() TimeKey {
	return TimeKey{
		NanosSinceEpoch: uint64(time.Now().UnixNano()),
		PID:             uint32(os.Getpid()),
		ID:              idCounter.Add(1),
	}
}

// Less implements the total order: lexicographic over (nanos, pid, id).
func (k TimeKey) Less(other TimeKey) bool {
	if k.NanosSinceEpoch != other.NanosSinceEpoch {
		return k.NanosSinceEpoch < other.NanosSinceEpoch
	}

	if k.PID != other.PID {
		return k.PID < other.PID
	}

	return k.ID < other.ID
}

// ToFilename renders the canonical filename form, matching spec.md §6's
// "<nanos>-<pid>-<counter>" layout.
func (k TimeKey) ToFilename() string {
	return fmt.Sprintf("%0*d-%0*d-%0*d", nanosWidth, k.NanosSinceEpoch, pidWidth, k.PID, idWidth, k.ID)
}

// TimeKeyFromFilename parses the inverse of ToFilename. Filenames beginning
// with '.' are temp files and must be filtered out by the caller before
// calling this (spec.md §3, §4.1).
func TimeKeyFromFilename(name string) (TimeKey, error) {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsRune(name, '/') {
		return TimeKey{}, fmt.Errorf("%w: %q", ErrInvalidTimeKeyFilename, name)
	}

	parts := strings.Split(name, "-")
	if len(parts) != 3 {
		return TimeKey{}, fmt.Errorf("%w: %q", ErrInvalidTimeKeyFilename, name)
	}

	nanos, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return TimeKey{}, fmt.Errorf("%w: %q: %w", ErrInvalidTimeKeyFilename, name, err)
	}

	pid, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return TimeKey{}, fmt.Errorf("%w: %q: %w", ErrInvalidTimeKeyFilename, name, err)
	}

	id, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return TimeKey{}, fmt.Errorf("%w: %q: %w", ErrInvalidTimeKeyFilename, name, err)
	}

	return TimeKey{NanosSinceEpoch: nanos, PID: uint32(pid), ID: id}, nil
}
