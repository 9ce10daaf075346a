// Package compose merges the cached or freshly-produced stage artifacts
// into the final output tree and stamps its runtime contract: build
// metadata, entry command, and liveness probe.
package compose

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/atelierhq/stagecraft/src/build"
	"github.com/atelierhq/stagecraft/src/config"
	"github.com/atelierhq/stagecraft/src/fsutil"
	"github.com/atelierhq/stagecraft/src/variant"
)

// manifestFile is the declared-environment manifest written at the root of
// the composed tree.
const manifestFile = "image.yaml"

// CompositionError reports a missing stage output at merge time. The
// scheduler's failure short-circuit already prevents composing a failed
// run, so hitting this is a defensive invariant violation and fatal.
type CompositionError struct {
	Missing []string
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("composition: missing stage outputs: %v", e.Missing)
}

// Manifest is the composed image's declared environment and runtime
// contract. The probe's semantics ("exit success and emit a boolean-true
// signal") are owned by the application, not by the orchestrator.
type Manifest struct {
	BuildID    string            `yaml:"buildId"`
	Version    string            `yaml:"version"`
	Env        map[string]string `yaml:"env"`
	Entrypoint []string          `yaml:"entrypoint"`
	Probe      []string          `yaml:"probe"`
}

// Compose merges the three stage outputs into dst and writes the image
// manifest. The asset bundle and dependency set land under their declared
// roots; the runtime-assembly tree forms the base of the image.
func Compose(outputs map[string]build.ArtifactRef, d variant.Descriptor, img config.ImageConfig, version, dst string) (*Manifest, error) {
	var missing []string
	for _, stage := range []string{build.StageAssetBuild, build.StageDependencyBuild, build.StageRuntimeAssembly} {
		ref, ok := outputs[stage]
		if !ok || ref.Path == "" {
			missing = append(missing, stage)
		}
	}
	if len(missing) > 0 {
		return nil, &CompositionError{Missing: missing}
	}

	// A previous composition at dst must not leak into this one: the final
	// tree is exactly the merged stage outputs, nothing more.
	if err := os.RemoveAll(dst); err != nil {
		return nil, fmt.Errorf("composition: clearing %s: %w", dst, err)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, fmt.Errorf("composition: %w", err)
	}

	merges := []struct {
		stage string
		root  string
	}{
		{build.StageRuntimeAssembly, "."},
		{build.StageAssetBuild, build.AssetBundleRoot},
		{build.StageDependencyBuild, build.DependencyInstallRoot},
	}
	for _, m := range merges {
		target := filepath.Join(dst, filepath.FromSlash(m.root))
		if err := fsutil.CopyTree(outputs[m.stage].Path, target); err != nil {
			return nil, fmt.Errorf("composition: merging %s: %w", m.stage, err)
		}
	}

	manifest := &Manifest{
		BuildID: d.BuildIdentifier,
		Version: version,
		Env: map[string]string{
			"BUILD_ID": d.BuildIdentifier,
			"VERSION":  version,
		},
		Entrypoint: img.Entrypoint,
		Probe:      img.Probe,
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("composition: encoding manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dst, manifestFile), data, 0o644); err != nil {
		return nil, fmt.Errorf("composition: writing manifest: %w", err)
	}

	return manifest, nil
}
