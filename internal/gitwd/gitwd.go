// Package gitwd abstracts the mutating Git command-line invocations a
// working directory needs: clone, fetch, and hard reset. Read-only history
// queries live in internal/gitgraph instead, built on go-git rather than
// shelling out (spec.md §1 draws this boundary explicitly: "the Git
// command-line invocations themselves" are what gets abstracted here).
package gitwd

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/GenSpectrum/evobench-sub000/internal/model"
)

// GitWorkingDir is the collaborator a WorkingDirectoryPool entry uses to
// mutate its clone. Implementations must be safe to call from one goroutine
// at a time per working directory; the pool serializes access.
type GitWorkingDir interface {
	// Clone creates a fresh clone of remoteURL at dir.
	Clone(ctx context.Context, remoteURL, dir string) error
	// FetchTags updates dir's remote-tracking refs and tags.
	FetchTags(ctx context.Context, dir string) error
	// ResetHard discards local modifications and checks out commit.
	ResetHard(ctx context.Context, dir string, commit model.GitHash) error
	// ResolveTags returns the tag names pointing at commit, if any.
	ResolveTags(ctx context.Context, dir string, commit model.GitHash) ([]string, error)
	// HeadCommit returns the commit currently checked out in dir.
	HeadCommit(ctx context.Context, dir string) (model.GitHash, error)
}

// Exec is a GitWorkingDir implementation that shells out to the system git
// binary, mirroring how the original tooling drives git (spec.md §1, §6).
type Exec struct {
	// GitBinary overrides the binary name/path; empty means "git" from
	// PATH.
	GitBinary string
}

func (e Exec) binary() string {
	if e.GitBinary == "" {
		return "git"
	}

	return e.GitBinary
}

func (e Exec) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, e.binary(), args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		return "", fmt.Errorf("gitwd: git %s (dir=%s): %w: %s", strings.Join(args, " "), dir, err, stderr.String())
	}

	return stdout.String(), nil
}

// Clone implements GitWorkingDir.
func (e Exec) Clone(ctx context.Context, remoteURL, dir string) error {
	_, err := e.run(ctx, "", "clone", "--no-checkout", remoteURL, dir)
	if err != nil {
		return err
	}

	return nil
}

// FetchTags implements GitWorkingDir.
func (e Exec) FetchTags(ctx context.Context, dir string) error {
	_, err := e.run(ctx, dir, "fetch", "--tags", "--force", "origin")
	if err != nil {
		return err
	}

	return nil
}

// ResetHard implements GitWorkingDir.
func (e Exec) ResetHard(ctx context.Context, dir string, commit model.GitHash) error {
	_, err := e.run(ctx, dir, "reset", "--hard", commit.String())
	if err != nil {
		return err
	}

	_, err = e.run(ctx, dir, "clean", "-fdx")
	if err != nil {
		return err
	}

	return nil
}

// ResolveTags implements GitWorkingDir.
func (e Exec) ResolveTags(ctx context.Context, dir string, commit model.GitHash) ([]string, error) {
	out, err := e.run(ctx, dir, "tag", "--points-at", commit.String())
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	tags := make([]string, 0, len(lines))

	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			tags = append(tags, l)
		}
	}

	return tags, nil
}

// HeadCommit implements GitWorkingDir.
func (e Exec) HeadCommit(ctx context.Context, dir string) (model.GitHash, error) {
	out, err := e.run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}

	hash, err := model.ParseGitHash(strings.TrimSpace(out))
	if err != nil {
		return "", fmt.Errorf("gitwd: head commit: %w", err)
	}

	return hash, nil
}
