// Package model holds the data types shared across the scheduling, working
// directory, and evaluation subsystems: commit identifiers, job parameters,
// job state, and the time-ordered keys used by the queue storage layer.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidGitHash is returned when a string does not look like a 40-hex-digit
// commit id.
var ErrInvalidGitHash = errors.New("invalid git hash")

var hexRe = regexp.MustCompile(`^[0-9a-f]{40}$`)

// GitHash is the canonical 40-hex-digit identifier of a commit. Equality and
// ordering follow the string form.
type GitHash string

// ParseGitHash validates s as a 40-hex-digit commit id.
func ParseGitHash(s string) (GitHash, error) {
	if !hexRe.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidGitHash, s)
	}

	return GitHash(s), nil
}

// String implements fmt.Stringer.
func (h GitHash) String() string {
	return string(h)
}

// Less reports whether h sorts before other (string ordering).
func (h GitHash) Less(other GitHash) bool {
	return h < other
}

// MarshalJSON implements json.Marshaler, re-validating on the way out so a
// corrupted in-memory value never reaches disk.
func (h GitHash) MarshalJSON() ([]byte, error) {
	if !hexRe.MatchString(string(h)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidGitHash, string(h))
	}

	b, err := json.Marshal(string(h))
	if err != nil {
		return nil, fmt.Errorf("marshal git hash: %w", err)
	}

	return b, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *GitHash) UnmarshalJSON(data []byte) error {
	var s string

	err := json.Unmarshal(data, &s)
	if err != nil {
		return fmt.Errorf("unmarshal git hash: %w", err)
	}

	parsed, err := ParseGitHash(s)
	if err != nil {
		return err
	}

	*h = parsed

	return nil
}
