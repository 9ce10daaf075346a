// Package build contains the variant-driven multi-stage orchestrator: the
// fixed stage dependency graph, the conditional provisioning executor, and
// the scheduler that runs independent stages concurrently with per-stage
// artifact caching.
package build

import "time"

// Canonical stage names of the minimal topology.
const (
	StageAssetBuild      = "asset-build"
	StageDependencyBuild = "dependency-build"
	StageRuntimeAssembly = "runtime-assembly"
)

// DependencyInstallRoot is where the dependency-build artifact lands inside
// the composed tree. The produced-artifact path is a declared contract of
// the stage, not something downstream consumers infer per variant.
const DependencyInstallRoot = "deps"

// AssetBundleRoot is where the asset-build artifact lands inside the
// composed tree.
const AssetBundleRoot = "app/static"

// Stage is an immutable node in the build DAG.
type Stage struct {
	Name string

	// Needs lists the stages whose output artifacts this stage consumes.
	// The graph derives its edges from these references.
	Needs []string

	// Inputs are source paths (files or directories) whose content is
	// fingerprinted into the stage's cache key.
	Inputs []string

	// Actions run strictly in declaration order; later actions may rely on
	// earlier actions' side effects being visible in the staging area.
	Actions []Action

	// ActionsVersion is folded into the cache key and bumped whenever the
	// action list changes shape.
	ActionsVersion string
}

// keyFields returns the descriptor field names this stage's output may
// legitimately depend on: the union of every action's condition fields and
// parameter fields. Anything else stays out of the cache key.
func (s *Stage) keyFields() []string {
	seen := map[string]bool{}
	var fields []string
	add := func(names []string) {
		for _, name := range names {
			if !seen[name] {
				seen[name] = true
				fields = append(fields, name)
			}
		}
	}
	for _, a := range s.Actions {
		add(a.When.Fields())
		add(a.Uses)
	}
	return fields
}

// Status is the lifecycle state of one stage execution.
type Status int

const (
	StatusPending Status = iota
	StatusCached
	StatusRunning
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCached:
		return "cached"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// ArtifactRef identifies the output tree produced by one stage. It is
// produced by exactly that stage and only ever read downstream.
type ArtifactRef struct {
	Stage string
	Path  string
}

// StageRun is the mutable execution record for one stage within a run.
type StageRun struct {
	Stage      string
	Status     Status
	CacheKey   string
	Artifact   ArtifactRef
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}
