package workdirpool

import (
	"fmt"
	"os"
	"path/filepath"
)

// signalFileName matches the on-disk layout (spec.md §6):
// "working_directory_change.signals".
const signalFileName = "working_directory_change.signals"

// SignalFile is the append-only change-notification counter beside the
// pool: every pool mutation appends one byte, and a separate process can
// Poll its length to detect that the pool changed since it last looked,
// without taking the pool lock itself (spec.md §5: "a signals file
// (append-only counter) is the out-of-band mechanism by which `wd`
// mutations signal the runner to reload the pool without breaking its
// lock discipline").
type SignalFile struct {
	path string
}

// SignalFile returns the pool's signal file handle.
func (p *Pool) SignalFile() *SignalFile {
	return &SignalFile{path: filepath.Join(p.cfg.BaseDir, signalFileName)}
}

// Bump appends one byte, advancing the counter observable by Poll. Callers
// holding the pool lock should call this after any mutation.
func (s *SignalFile) Bump() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("workdirpool: open signal file %s: %w", s.path, err)
	}
	defer func() { _ = f.Close() }()

	_, err = f.Write([]byte{0})
	if err != nil {
		return fmt.Errorf("workdirpool: write signal file %s: %w", s.path, err)
	}

	return nil
}

// Poll returns the current byte length of the signal file (0 if it does
// not exist yet). A caller remembers the last value it saw and treats any
// increase as "the pool changed".
func (s *SignalFile) Poll() (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, fmt.Errorf("workdirpool: stat signal file %s: %w", s.path, err)
	}

	return info.Size(), nil
}
