package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/atelierhq/stagecraft/src/build"
	"github.com/atelierhq/stagecraft/src/cache"
	"github.com/atelierhq/stagecraft/src/compose"
	"github.com/atelierhq/stagecraft/src/gitver"
	"github.com/atelierhq/stagecraft/src/normalize"
	"github.com/atelierhq/stagecraft/src/output"
	"github.com/atelierhq/stagecraft/src/variant"
)

var (
	bNoCache bool
	bOutput  string
)

var buildCmd = &cobra.Command{
	Use:   "build [root-dir]",
	Short: "Assemble the image for the selected variant",
	Long: `Assemble the final image tree from the build-variant flags.

Resolves the variant, schedules the stage graph (independent stages run
concurrently, cached stages are skipped), composes the stage artifacts
into one tree, and normalizes ownership and permissions.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	addVariantFlags(buildCmd)
	buildCmd.Flags().BoolVar(&bNoCache, "no-cache", false, "bypass cache lookups, force full re-execution")
	buildCmd.Flags().StringVar(&bOutput, "output", "dist/image", "composed output tree destination")

	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	rootDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}
	if len(args) > 0 {
		rootDir = args[0]
	}

	ctx := context.Background()
	color := output.UseColor()
	w := os.Stdout

	flags := variantFlagMap(cmd, rootDir)
	desc := variant.Resolve(flags)

	output.ContextBlock(w, []output.KV{
		{Key: "build-id", Value: desc.BuildIdentifier},
		{Key: "owner", Value: desc.Field(variant.FieldOwner)},
		{Key: "accelerator", Value: desc.Field(variant.FieldAccelerator)},
		{Key: "minimal", Value: desc.Field(variant.FieldMinimal)},
		{Key: "bundled-runtime", Value: desc.Field(variant.FieldBundledRuntime)},
		{Key: "hardening", Value: desc.Field(variant.FieldHarden)},
	})

	graph, err := build.DefaultGraph(cfg.Stages)
	if err != nil {
		return err
	}

	// Surface a missing accelerator extras group before any stage runs.
	if desc.AcceleratorEnabled {
		if manifest, mErr := build.LoadDependencyManifest(cfg.Stages.Dependency.Manifest); mErr != nil {
			slog.Warn("dependency manifest unreadable", "path", cfg.Stages.Dependency.Manifest, "error", mErr)
		} else if !manifest.HasExtras(desc.AcceleratorVariant) {
			slog.Warn("manifest declares no extras group for accelerator variant",
				"manifest", cfg.Stages.Dependency.Manifest, "variant", desc.AcceleratorVariant)
		}
	}

	sched := &build.Scheduler{
		Graph: graph,
		Cache: cache.New(cfg.Cache.Dir, cfg.Cache.On()),
		Exec: &build.Executor{
			WorkDir:        cfg.Workspace,
			Vars:           build.StageVars(cfg.Stages),
			DefaultTimeout: cfg.Fetch.Timeout,
			Stdout:         os.Stdout,
			Stderr:         os.Stderr,
		},
		Workers:      cfg.Workers,
		ForceRebuild: bNoCache,
	}

	result, runErr := sched.Run(ctx, desc)

	stageOrder := []string{build.StageAssetBuild, build.StageDependencyBuild, build.StageRuntimeAssembly}
	output.RunReport(w, result, stageOrder, color)

	if runErr != nil {
		return runErr
	}

	imageVersion := cfg.Image.Version
	if imageVersion == "" {
		imageVersion = gitver.DetectVersion(rootDir, desc.BuildIdentifier)
	}

	manifest, err := compose.Compose(result.Artifacts(), desc, cfg.Image, imageVersion, bOutput)
	if err != nil {
		return err
	}

	if err := normalize.Normalize(bOutput, desc); err != nil {
		return fmt.Errorf("normalizing composed tree: %w", err)
	}

	fmt.Fprintf(w, "\n    composed %s (version %s, build %s)\n", bOutput, manifest.Version, manifest.BuildID)
	return nil
}
