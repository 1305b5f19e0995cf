package workdirpool

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GenSpectrum/evobench-sub000/internal/model"
	"github.com/GenSpectrum/evobench-sub000/internal/workdir"
)

// ArchivedError describes one failed run preserved outside the live set by
// markErrored: the renamed directory plus the error status sitting beside
// it.
type ArchivedError struct {
	ID         model.WorkingDirectoryID
	Unix       int64
	DirPath    string
	StatusPath string
	Error      workdir.ProcessingError
}

// ListArchivedErrors scans the base directory for "<id>.dir_at_<ts>" /
// "<id>.error_at_<ts>" pairs left behind by a failed
// ProcessInWorkingDirectory call.
func (p *Pool) ListArchivedErrors() ([]ArchivedError, error) {
	entries, err := os.ReadDir(p.cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("workdirpool: readdir %s: %w", p.cfg.BaseDir, err)
	}

	result := make([]ArchivedError, 0)

	for _, de := range entries {
		name := de.Name()

		const marker = ".error_at_"

		idx := strings.Index(name, marker)
		if idx < 0 {
			continue
		}

		idStr := name[:idx]
		tsStr := name[idx+len(marker):]

		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			continue
		}

		ts, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			continue
		}

		statusPath := filepath.Join(p.cfg.BaseDir, name)

		data, err := os.ReadFile(statusPath)
		if err != nil {
			continue
		}

		var procErr workdir.ProcessingError

		err = yaml.Unmarshal(data, &procErr)
		if err != nil {
			continue
		}

		dirPath := p.dirPath(model.WorkingDirectoryID(id)) + ".dir_at_" + tsStr

		result = append(result, ArchivedError{
			ID:         model.WorkingDirectoryID(id),
			Unix:       ts,
			DirPath:    dirPath,
			StatusPath: statusPath,
			Error:      procErr,
		})
	}

	return result, nil
}

// CleanupArchived removes archived error directories and their status
// files older than staleAfter relative to now. The caller must hold the
// pool lock.
func (p *Pool) CleanupArchived(now time.Time, staleAfter time.Duration) ([]ArchivedError, error) {
	err := p.requireLock()
	if err != nil {
		return nil, err
	}

	archived, err := p.ListArchivedErrors()
	if err != nil {
		return nil, err
	}

	removed := make([]ArchivedError, 0)

	for _, a := range archived {
		if now.Sub(time.Unix(a.Unix, 0)) < staleAfter {
			continue
		}

		err = os.RemoveAll(a.DirPath)
		if err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("workdirpool: cleanup archived dir %s: %w", a.DirPath, err)
		}

		err = os.Remove(a.StatusPath)
		if err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("workdirpool: cleanup archived status %s: %w", a.StatusPath, err)
		}

		removed = append(removed, a)
	}

	if len(removed) > 0 {
		err = p.SignalFile().Bump()
		if err != nil {
			return removed, err
		}
	}

	return removed, nil
}
