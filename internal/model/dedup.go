package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalKey renders a stable, deterministic JSON encoding of p suitable
// for hashing. Go's encoding/json already emits map keys in sorted order and
// struct fields in declaration order, so repeated calls for equal values
// always produce byte-identical output.
func (p BenchmarkingJobParameters) CanonicalKey() ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("canonicalize job parameters: %w", err)
	}

	return b, nil
}

// Hash returns the hex-encoded SHA-256 digest of the canonical encoding, used
// as the filename under the already_inserted KeyValStore (spec.md §6).
func (p BenchmarkingJobParameters) Hash() (string, error) {
	canonical, err := p.CanonicalKey()
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canonical)

	return hex.EncodeToString(sum[:]), nil
}
