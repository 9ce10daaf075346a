package config

import "time"

// CacheConfig controls the on-disk artifact cache.
type CacheConfig struct {
	Dir     string `yaml:"dir"`
	Enabled *bool  `yaml:"enabled"`
}

// On reports whether caching is enabled (default true).
func (c CacheConfig) On() bool {
	return c.Enabled == nil || *c.Enabled
}

// DefaultCacheConfig returns cache defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{Dir: ".stagecraft/cache/artifacts"}
}

// FetchConfig bounds external fetches and tool invocations.
type FetchConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultFetchConfig returns fetch defaults.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{Timeout: 10 * time.Minute}
}

// StagesConfig declares the external collaborators of the three stages.
type StagesConfig struct {
	Asset      AssetStageConfig      `yaml:"asset"`
	Dependency DependencyStageConfig `yaml:"dependency"`
	Runtime    RuntimeStageConfig    `yaml:"runtime"`
}

// AssetStageConfig configures the asset-build stage: a source tree handed
// to an external build tool that must produce a static bundle in {staging}.
type AssetStageConfig struct {
	Source  string   `yaml:"source"`
	Command []string `yaml:"command"`
}

// DependencyStageConfig configures the dependency-build stage.
type DependencyStageConfig struct {
	// Manifest is the declared dependency manifest (TOML or flat
	// requirements list). Its content fingerprints the stage.
	Manifest string `yaml:"manifest"`

	// InstallCommand installs the base requirement set into {staging}.
	InstallCommand []string `yaml:"installCommand"`

	// ExtrasCommand installs the accelerator extras group; it receives the
	// resolved {accelerator-variant} and only runs on accelerator builds.
	ExtrasCommand []string `yaml:"extrasCommand"`

	// RuntimeURL is the bundled inference runtime archive, fetched only
	// when the bundled-runtime variant is selected.
	RuntimeURL string `yaml:"runtimeURL"`
}

// RuntimeStageConfig configures the runtime-assembly stage.
type RuntimeStageConfig struct {
	// Source is the backend runtime file tree copied into the stage.
	Source string `yaml:"source"`

	// Models are optional model-weight prefetch endpoints, skipped
	// entirely on minimal-footprint builds.
	Models []ModelEndpoint `yaml:"models"`
}

// ModelEndpoint is one prefetched model artifact.
type ModelEndpoint struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// ImageConfig declares the composed image's runtime contract.
type ImageConfig struct {
	// Entrypoint is the process entry command of the composed image.
	Entrypoint []string `yaml:"entrypoint"`

	// Probe is the liveness-probe command; its contract is "exit success
	// and emit a boolean-true signal". Semantics are owned externally.
	Probe []string `yaml:"probe"`

	// Version overrides the git-derived version string when set.
	Version string `yaml:"version"`
}

// DefaultStagesConfig returns stage collaborator defaults.
func DefaultStagesConfig() StagesConfig {
	return StagesConfig{
		Asset: AssetStageConfig{
			Source:  "web",
			Command: []string{"npm", "run", "build", "--", "--outDir", "{staging}"},
		},
		Dependency: DependencyStageConfig{
			Manifest:       "backend/pyproject.toml",
			InstallCommand: []string{"pip", "install", "--target", "{staging}", "-r", "{manifest}"},
			ExtrasCommand:  []string{"pip", "install", "--target", "{staging}", ".[{accelerator-variant}]"},
		},
		Runtime: RuntimeStageConfig{
			Source: "backend",
		},
	}
}

// DefaultImageConfig returns image contract defaults.
func DefaultImageConfig() ImageConfig {
	return ImageConfig{
		Entrypoint: []string{"bash", "start.sh"},
		Probe:      []string{"curl", "--silent", "--fail", "http://localhost:8080/health"},
	}
}
