package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/atelierhq/stagecraft/src/variant"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the resolved variant descriptor",
	Long: `Resolve the variant flags without building anything.

Useful for checking what a flag combination actually selects: defaulting,
truthy normalization, and the minimal-footprint dominance rule all apply
exactly as they would in a build.`,
	RunE: runResolve,
}

func init() {
	addVariantFlags(resolveCmd)
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	rootDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	desc := variant.Resolve(variantFlagMap(cmd, rootDir))

	out := map[string]any{
		"accelerator":        desc.AcceleratorEnabled,
		"acceleratorVariant": desc.AcceleratorVariant,
		"bundledRuntime":     desc.BundledRuntimeEnabled,
		"minimalFootprint":   desc.MinimalFootprint,
		"modelPrefetch":      desc.ModelPrefetchEnabled(),
		"hardenPermissions":  desc.PermissionHardening,
		"buildId":            desc.BuildIdentifier,
		"owner":              fmt.Sprintf("%d:%d", desc.OwnerUID, desc.OwnerGID),
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
