// Package gitgraph builds an in-memory, enriched commit graph for read-only
// history queries — tag resolution and closest-ancestor search — using
// go-git's pure-Go object walking instead of shelling out (spec.md §4.6).
// Mutating operations stay in internal/gitwd.
package gitgraph

import (
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/GenSpectrum/evobench-sub000/internal/model"
)

// EnrichedGitCommit is one commit plus the metadata closest-ancestor search
// and tag resolution need.
type EnrichedGitCommit struct {
	Hash          model.GitHash
	CommitterTime time.Time
	ParentHashes  []model.GitHash
	Tags          []string
}

// Data is the in-memory enriched commit DAG for one repository checkout.
type Data struct {
	commits map[model.GitHash]*EnrichedGitCommit
}

// Build walks every commit reachable from HEAD and every tag in the
// repository at repoPath, returning the enriched graph.
func Build(repoPath string) (*Data, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("gitgraph: open %s: %w", repoPath, err)
	}

	commits := make(map[model.GitHash]*EnrichedGitCommit)

	commitIter, err := repo.CommitObjects()
	if err != nil {
		return nil, fmt.Errorf("gitgraph: list commits: %w", err)
	}
	defer commitIter.Close()

	err = commitIter.ForEach(func(c *object.Commit) error {
		hash, parseErr := model.ParseGitHash(c.Hash.String())
		if parseErr != nil {
			return fmt.Errorf("gitgraph: commit hash %s: %w", c.Hash.String(), parseErr)
		}

		parents := make([]model.GitHash, 0, c.NumParents())

		for _, ph := range c.ParentHashes {
			parentHash, parentErr := model.ParseGitHash(ph.String())
			if parentErr != nil {
				return fmt.Errorf("gitgraph: parent hash %s: %w", ph.String(), parentErr)
			}

			parents = append(parents, parentHash)
		}

		commits[hash] = &EnrichedGitCommit{
			Hash:          hash,
			CommitterTime: c.Committer.When,
			ParentHashes:  parents,
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	tagErr := attachTags(repo, commits)
	if tagErr != nil {
		return nil, tagErr
	}

	return &Data{commits: commits}, nil
}

func attachTags(repo *git.Repository, commits map[model.GitHash]*EnrichedGitCommit) error {
	tagIter, err := repo.Tags()
	if err != nil {
		return fmt.Errorf("gitgraph: list tags: %w", err)
	}
	defer tagIter.Close()

	return tagIter.ForEach(func(ref *plumbing.Reference) error {
		commitHash, resolveErr := resolveTagCommit(repo, ref)
		if resolveErr != nil {
			// A tag pointing at a blob/tree rather than a commit is
			// not something closest-ancestor search can use; skip it.
			return nil
		}

		hash, parseErr := model.ParseGitHash(commitHash.String())
		if parseErr != nil {
			return nil
		}

		entry, ok := commits[hash]
		if !ok {
			return nil
		}

		entry.Tags = append(entry.Tags, ref.Name().Short())

		return nil
	})
}

func resolveTagCommit(repo *git.Repository, ref *plumbing.Reference) (plumbing.Hash, error) {
	obj, err := repo.TagObject(ref.Hash())
	if err == nil {
		commit, commitErr := obj.Commit()
		if commitErr != nil {
			return plumbing.ZeroHash, fmt.Errorf("gitgraph: annotated tag target: %w", commitErr)
		}

		return commit.Hash, nil
	}

	_, err = repo.CommitObject(ref.Hash())
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("gitgraph: tag %s does not resolve to a commit: %w", ref.Name(), err)
	}

	return ref.Hash(), nil
}

// Commit looks up one commit's enriched record.
func (d *Data) Commit(hash model.GitHash) (*EnrichedGitCommit, bool) {
	c, ok := d.commits[hash]

	return c, ok
}

// TagsOf returns the tags pointing directly at hash.
func (d *Data) TagsOf(hash model.GitHash) []string {
	c, ok := d.commits[hash]
	if !ok {
		return nil
	}

	return c.Tags
}

// ClosestMatchingAncestorOf searches start's ancestry (start included) for
// the commit satisfying match that is "closest": least steps along a
// branch, and when multiple branches meet at a merge, the one with the
// newer committer time. Each iteration checks every commit currently on the
// frontier for a match — not just the newest one — before following the
// newest non-matching frontier commit back to its parents, matching
// _examples/original_source/evobench-tools/src/git.rs's
// closest_matching_ancestor_of exactly: a frontier holding both a matching
// older commit and a non-matching newer one must return the matching one
// immediately, rather than expanding the newer one first (spec.md §4.5 step
// 4, §4.6).
func (d *Data) ClosestMatchingAncestorOf(start model.GitHash, match func(model.GitHash) bool) (model.GitHash, bool, error) {
	if _, ok := d.commits[start]; !ok {
		return "", false, fmt.Errorf("gitgraph: unknown start commit %s", start)
	}

	seen := map[model.GitHash]struct{}{start: {}}
	current := map[model.GitHash]struct{}{start: {}}

	for len(current) > 0 {
		var (
			bestMatch     model.GitHash
			bestMatchWhen time.Time
			haveMatch     bool

			toFollow     model.GitHash
			toFollowWhen time.Time
			haveToFollow bool
		)

		for hash := range current {
			commit, ok := d.commits[hash]
			if !ok {
				continue
			}

			if match(hash) && (!haveMatch || commit.CommitterTime.After(bestMatchWhen)) {
				bestMatch, bestMatchWhen, haveMatch = hash, commit.CommitterTime, true
			}

			if !haveToFollow || commit.CommitterTime.After(toFollowWhen) {
				toFollow, toFollowWhen, haveToFollow = hash, commit.CommitterTime, true
			}
		}

		if haveMatch {
			return bestMatch, true, nil
		}

		if !haveToFollow {
			break
		}

		delete(current, toFollow)

		commit, ok := d.commits[toFollow]
		if !ok {
			continue
		}

		for _, parent := range commit.ParentHashes {
			if _, already := seen[parent]; already {
				continue
			}

			seen[parent] = struct{}{}
			current[parent] = struct{}{}
		}
	}

	return "", false, nil
}
