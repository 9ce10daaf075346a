// Package gitver derives the default build identifier and the stamped
// version string from the project's git state. Detection is best effort:
// outside a git repository both fall back to deterministic defaults so the
// variant resolver's flag map stays total.
package gitver

import (
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

const shortSHALen = 7

// DetectBuildID returns the short HEAD SHA, suffixed with "-dirty" when
// the worktree has uncommitted changes. Returns "" when rootDir is not a
// git repository, leaving the resolver's documented default in force.
func DetectBuildID(rootDir string) string {
	repo, err := git.PlainOpen(rootDir)
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}

	id := head.Hash().String()[:shortSHALen]

	wt, err := repo.Worktree()
	if err != nil {
		return id
	}
	status, err := wt.Status()
	if err != nil {
		return id
	}
	if !status.IsClean() {
		id += "-dirty"
	}
	return id
}

// DetectVersion derives the version stamped into the composed image: the
// highest semver tag, with a dev suffix when HEAD is not exactly at that
// tag. Without tags (or a repository) it is "0.0.0-dev+<buildID>".
func DetectVersion(rootDir, buildID string) string {
	fallback := "0.0.0-dev+" + buildID

	repo, err := git.PlainOpen(rootDir)
	if err != nil {
		return fallback
	}

	type taggedVersion struct {
		version *semver.Version
		target  plumbing.Hash
	}
	var versions []taggedVersion

	iter, err := repo.Tags()
	if err != nil {
		return fallback
	}
	_ = iter.ForEach(func(ref *plumbing.Reference) error {
		v, parseErr := semver.NewVersion(ref.Name().Short())
		if parseErr != nil {
			return nil // non-semver tag
		}
		target := ref.Hash()
		// Annotated tags point at a tag object; peel to the commit.
		if obj, tagErr := repo.TagObject(ref.Hash()); tagErr == nil {
			target = obj.Target
		}
		versions = append(versions, taggedVersion{version: v, target: target})
		return nil
	})

	if len(versions) == 0 {
		return fallback
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].version.LessThan(versions[j].version)
	})
	latest := versions[len(versions)-1]

	head, err := repo.Head()
	if err == nil && head.Hash() == latest.target {
		return latest.version.String()
	}
	return latest.version.String() + "-dev+" + buildID
}
