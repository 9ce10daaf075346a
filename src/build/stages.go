package build

import (
	"fmt"
	"path/filepath"

	"github.com/atelierhq/stagecraft/src/config"
	"github.com/atelierhq/stagecraft/src/variant"
)

// Per-stage action list versions, folded into cache keys. Bump whenever
// the corresponding action list changes shape.
const (
	assetActionsVersion      = "1"
	dependencyActionsVersion = "1"
	runtimeActionsVersion    = "1"
)

// DefaultGraph builds the fixed minimal topology from the project
// configuration: asset-build and dependency-build as independent roots,
// runtime-assembly consuming both.
func DefaultGraph(cfg config.StagesConfig) (*Graph, error) {
	return NewGraph([]*Stage{
		assetStage(cfg.Asset),
		dependencyStage(cfg.Dependency),
		runtimeStage(cfg.Runtime),
	})
}

// StageVars exposes configured collaborator paths to action templates.
func StageVars(cfg config.StagesConfig) map[string]string {
	return map[string]string{
		"source":       cfg.Asset.Source,
		"manifest":     cfg.Dependency.Manifest,
		"manifest-dir": filepath.Dir(cfg.Dependency.Manifest),
	}
}

// assetStage invokes the frontend's own build tool against its source tree.
// The collaborator contract is "produce a static asset bundle in {staging}".
// The build identifier reaches the tool through the environment but is
// declared as not affecting the bundle, so it stays out of the cache key.
func assetStage(cfg config.AssetStageConfig) *Stage {
	return &Stage{
		Name:           StageAssetBuild,
		Inputs:         []string{cfg.Source},
		ActionsVersion: assetActionsVersion,
		Actions: []Action{
			{
				Name: "build-asset-bundle",
				Exec: cfg.Command,
				Dir:  "{source}",
			},
		},
	}
}

// dependencyStage installs the declared dependency set. The produced tree
// is promoted under the stage's declared install-root contract at
// composition time; nothing downstream infers the path from the variant.
func dependencyStage(cfg config.DependencyStageConfig) *Stage {
	actions := []Action{
		{
			Name: "install-base-requirements",
			Exec: cfg.InstallCommand,
		},
		{
			Name: "install-accelerator-extras",
			When: Condition{Accelerator: boolPtr(true)},
			Uses: []string{variant.FieldAcceleratorVariant},
			Exec: cfg.ExtrasCommand,
			Dir:  "{manifest-dir}",
		},
	}

	if cfg.RuntimeURL != "" {
		actions = append(actions, Action{
			Name:  "fetch-bundled-runtime",
			When:  Condition{BundledRuntime: boolPtr(true)},
			Fetch: &FetchSpec{URL: cfg.RuntimeURL, Dest: "runtime/runtime.tar.gz"},
		})
	}

	return &Stage{
		Name:           StageDependencyBuild,
		Inputs:         []string{cfg.Manifest},
		ActionsVersion: dependencyActionsVersion,
		Actions:        actions,
	}
}

// runtimeStage copies the backend runtime files, prefetches optional model
// weights, and stamps the build metadata that makes this the only stage
// keyed on the build identifier.
func runtimeStage(cfg config.RuntimeStageConfig) *Stage {
	actions := []Action{
		{
			Name: "copy-runtime-files",
			Copy: &CopySpec{From: cfg.Source},
		},
	}

	for _, model := range cfg.Models {
		actions = append(actions, Action{
			Name:  "prefetch-model-" + model.Name,
			When:  Condition{ModelPrefetch: true},
			Fetch: &FetchSpec{URL: model.URL, Dest: fmt.Sprintf("models/%s", model.Name)},
		})
	}

	actions = append(actions, Action{
		Name:  "stamp-build-metadata",
		Uses:  []string{variant.FieldBuildID},
		Write: &WriteSpec{Path: ".buildinfo", Content: "build_id={build-id}\n"},
	})

	return &Stage{
		Name:           StageRuntimeAssembly,
		Needs:          []string{StageAssetBuild, StageDependencyBuild},
		Inputs:         []string{cfg.Source},
		ActionsVersion: runtimeActionsVersion,
		Actions:        actions,
	}
}
