package gitwd_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GenSpectrum/evobench-sub000/internal/gitwd"
	"github.com/GenSpectrum/evobench-sub000/internal/model"
)

func TestExecMissingBinaryReturnsWrappedError(t *testing.T) {
	e := gitwd.Exec{GitBinary: "definitely-not-a-real-git-binary"}

	err := e.Clone(context.Background(), "https://example.invalid/repo.git", t.TempDir())
	assert.Error(t, err)
}

func TestExecDefaultsToGitBinary(t *testing.T) {
	e := gitwd.Exec{}

	_, err := e.HeadCommit(context.Background(), t.TempDir())
	assert.Error(t, err, "an empty directory is not a git repository")
}

func TestParseGitHashRejectsAbbreviatedHashBeforeResetHard(t *testing.T) {
	e := gitwd.Exec{}

	hash, err := model.ParseGitHash("deadbeef")
	assert.Error(t, err, "ResetHard callers must pass a validated GitHash")
	assert.Empty(t, hash)
}
