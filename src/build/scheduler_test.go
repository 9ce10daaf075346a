package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/atelierhq/stagecraft/src/cache"
	"github.com/atelierhq/stagecraft/src/variant"
)

// testTopology builds the minimal three-stage graph with cheap shell
// actions. sourceDir fingerprints the roots; failAsset injects a failing
// action into asset-build.
func testTopology(t *testing.T, sourceDir string, failAsset bool) *Graph {
	t.Helper()

	assetActions := []Action{
		{Name: "bundle", Exec: []string{"sh", "-c", "echo bundle > bundle.txt"}},
	}
	if failAsset {
		assetActions = []Action{
			{Name: "bundle", Exec: []string{"sh", "-c", "exit 7"}},
		}
	}

	g, err := NewGraph([]*Stage{
		{
			Name:           StageAssetBuild,
			Inputs:         []string{sourceDir},
			ActionsVersion: "t1",
			Actions:        assetActions,
		},
		{
			Name:           StageDependencyBuild,
			Inputs:         []string{sourceDir},
			ActionsVersion: "t1",
			Actions: []Action{
				{Name: "install", Exec: []string{"sh", "-c", "echo deps > deps.txt"}},
				{
					Name:  "extras",
					When:  Condition{Accelerator: boolPtr(true)},
					Uses:  []string{variant.FieldAcceleratorVariant},
					Write: &WriteSpec{Path: "extras.txt", Content: "{accelerator-variant}"},
				},
			},
		},
		{
			Name:           StageRuntimeAssembly,
			Needs:          []string{StageAssetBuild, StageDependencyBuild},
			Inputs:         []string{sourceDir},
			ActionsVersion: "t1",
			Actions: []Action{
				{Name: "copy", Write: &WriteSpec{Path: "app.txt", Content: "app"}},
				{
					Name:  "prefetch-model",
					When:  Condition{ModelPrefetch: true},
					Write: &WriteSpec{Path: "models/weights.bin", Content: "w"},
				},
				{
					Name:  "stamp",
					Uses:  []string{variant.FieldBuildID},
					Write: &WriteSpec{Path: ".buildinfo", Content: "build_id={build-id}\n"},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("building test graph: %v", err)
	}
	return g
}

func newTestScheduler(t *testing.T, g *Graph) *Scheduler {
	t.Helper()
	return &Scheduler{
		Graph: g,
		Cache: cache.New(t.TempDir(), true),
		Exec: &Executor{
			WorkDir: t.TempDir(),
			Stdout:  os.Stderr,
			Stderr:  os.Stderr,
		},
	}
}

func writeSource(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "input.txt"), []byte("v1"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return dir
}

// Scenario A: minimal non-accelerated build runs zero model prefetches.
func TestRunMinimalFootprintSkipsPrefetch(t *testing.T) {
	source := writeSource(t)
	s := newTestScheduler(t, testTopology(t, source, false))

	d := variant.Resolve(map[string]string{variant.FlagMinimal: "true"})
	result, err := s.Run(context.Background(), d)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != StatusSucceeded {
		t.Fatalf("status = %v", result.Status)
	}

	runtime := result.Stages[StageRuntimeAssembly]
	if _, statErr := os.Stat(filepath.Join(runtime.Artifact.Path, "models")); !os.IsNotExist(statErr) {
		t.Error("minimal build must not prefetch model weights")
	}
	if _, statErr := os.Stat(filepath.Join(runtime.Artifact.Path, ".buildinfo")); statErr != nil {
		t.Error("build metadata stamp missing")
	}
}

// Scenario B: a failed root stage does not stop its independent sibling,
// and the dependent stage never starts.
func TestRunFailureIsolation(t *testing.T) {
	source := writeSource(t)
	s := newTestScheduler(t, testTopology(t, source, true))

	d := variant.Resolve(nil)
	result, err := s.Run(context.Background(), d)
	if err == nil {
		t.Fatal("run must report failure")
	}
	if result.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", result.Status)
	}

	var provErr *ProvisioningError
	if !errors.As(result.Err, &provErr) || provErr.Stage != StageAssetBuild {
		t.Errorf("root cause = %v, want asset-build provisioning error", result.Err)
	}

	dep := result.Stages[StageDependencyBuild]
	if dep.Status != StatusSucceeded {
		t.Errorf("independent sibling status = %v, want succeeded", dep.Status)
	}
	if _, ok := s.Cache.Lookup(StageDependencyBuild, dep.CacheKey); !ok {
		t.Error("independent sibling result must land in the cache")
	}

	runtime := result.Stages[StageRuntimeAssembly]
	if runtime.Status != StatusFailed {
		t.Errorf("dependent stage status = %v, want failed", runtime.Status)
	}
	if runtime.Artifact.Path != "" {
		t.Error("dependent stage must never produce an artifact")
	}
}

// Scenario C: an unchanged second run reports every stage as cached.
func TestRunFullyCachedSecondRun(t *testing.T) {
	source := writeSource(t)
	s := newTestScheduler(t, testTopology(t, source, false))
	d := variant.Resolve(nil)

	if _, err := s.Run(context.Background(), d); err != nil {
		t.Fatalf("first run: %v", err)
	}

	second, err := s.Run(context.Background(), d)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	for name, run := range second.Stages {
		if run.Status != StatusCached {
			t.Errorf("stage %s status = %v, want cached", name, run.Status)
		}
	}
}

// Differing build identifiers must not invalidate the root stages, only
// runtime-assembly (the stage that stamps the identifier).
func TestRunBuildIdentifierKeysOnlyRuntimeAssembly(t *testing.T) {
	source := writeSource(t)
	s := newTestScheduler(t, testTopology(t, source, false))

	first, err := s.Run(context.Background(), variant.Resolve(map[string]string{variant.FlagBuildID: "aaa0001"}))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := s.Run(context.Background(), variant.Resolve(map[string]string{variant.FlagBuildID: "bbb0002"}))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	for _, name := range []string{StageAssetBuild, StageDependencyBuild} {
		if second.Stages[name].Status != StatusCached {
			t.Errorf("stage %s should be cached across build ids", name)
		}
		if first.Stages[name].CacheKey != second.Stages[name].CacheKey {
			t.Errorf("stage %s cache key changed with build id", name)
		}
	}

	runtime := second.Stages[StageRuntimeAssembly]
	if runtime.Status == StatusCached {
		t.Error("runtime-assembly must re-run for a new build id")
	}
	if first.Stages[StageRuntimeAssembly].CacheKey == runtime.CacheKey {
		t.Error("runtime-assembly cache key must include the build id")
	}
}

// Changing an irrelevant flag must not invalidate stages that never read
// it, while a relevant flag re-keys only the stages conditioned on it.
func TestRunKeyRelevance(t *testing.T) {
	source := writeSource(t)
	s := newTestScheduler(t, testTopology(t, source, false))
	buildID := map[string]string{variant.FlagBuildID: "fixed01"}

	if _, err := s.Run(context.Background(), variant.Resolve(buildID)); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Accelerator flips: dependency-build re-keys, asset-build does not.
	flags := map[string]string{variant.FlagBuildID: "fixed01", variant.FlagAccelerator: "true"}
	second, err := s.Run(context.Background(), variant.Resolve(flags))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if second.Stages[StageAssetBuild].Status != StatusCached {
		t.Error("asset-build must not re-key on the accelerator flag")
	}
	if second.Stages[StageDependencyBuild].Status == StatusCached {
		t.Error("dependency-build must re-key when the accelerator flag flips")
	}
}

func TestRunReleasesWorkTreesAfterCaching(t *testing.T) {
	source := writeSource(t)
	s := newTestScheduler(t, testTopology(t, source, false))

	result, err := s.Run(context.Background(), variant.Resolve(nil))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// Once stored, artifacts are served from the cache and the workspace
	// copies are gone, so repeated builds don't accumulate output trees.
	entries, _ := os.ReadDir(filepath.Join(s.Exec.WorkDir, "out"))
	if len(entries) != 0 {
		t.Errorf("workspace retains %d output trees after caching", len(entries))
	}
	for name, run := range result.Stages {
		if _, statErr := os.Stat(run.Artifact.Path); statErr != nil {
			t.Errorf("stage %s artifact unreadable after release: %v", name, statErr)
		}
	}
}

func TestRunForcedRebuildBypassesLookup(t *testing.T) {
	source := writeSource(t)
	s := newTestScheduler(t, testTopology(t, source, false))
	d := variant.Resolve(nil)

	if _, err := s.Run(context.Background(), d); err != nil {
		t.Fatalf("first run: %v", err)
	}

	s.ForceRebuild = true
	second, err := s.Run(context.Background(), d)
	if err != nil {
		t.Fatalf("forced rebuild: %v", err)
	}
	for name, run := range second.Stages {
		if run.Status != StatusSucceeded {
			t.Errorf("stage %s status = %v, want re-executed", name, run.Status)
		}
	}
}
