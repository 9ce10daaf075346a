package cmd

import (
	"github.com/spf13/cobra"

	"github.com/atelierhq/stagecraft/src/gitver"
	"github.com/atelierhq/stagecraft/src/variant"
)

// variantFlagNames is the documented variant flag surface, shared by the
// build and resolve commands.
var variantFlagNames = []string{
	variant.FlagAccelerator,
	variant.FlagAcceleratorVariant,
	variant.FlagBundledRuntime,
	variant.FlagMinimal,
	variant.FlagHardenPermissions,
	variant.FlagBuildID,
	variant.FlagOwnerUID,
	variant.FlagOwnerGID,
}

// addVariantFlags registers the variant flag surface on a command.
func addVariantFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Bool(variant.FlagAccelerator, false, "enable accelerator support")
	f.String(variant.FlagAcceleratorVariant, variant.DefaultAcceleratorVariant, "accelerator variant selection (ignored unless accelerator is enabled)")
	f.Bool(variant.FlagBundledRuntime, false, "bundle the inference runtime")
	f.Bool(variant.FlagMinimal, false, "minimal footprint: skip all model prefetches")
	f.Bool(variant.FlagHardenPermissions, false, "widen group access for arbitrary-UID platforms")
	f.String(variant.FlagBuildID, "", "build identifier (default: git short SHA)")
	f.Int(variant.FlagOwnerUID, variant.DefaultOwnerUID, "owning UID of the composed tree")
	f.Int(variant.FlagOwnerGID, variant.DefaultOwnerGID, "owning GID of the composed tree")
}

// variantFlagMap collects only the flags the user actually set, so the
// resolver's documented defaulting (including the harden-permissions
// owner-sensitive default) stays in force for the rest.
func variantFlagMap(cmd *cobra.Command, rootDir string) map[string]string {
	flags := make(map[string]string)
	for _, name := range variantFlagNames {
		if cmd.Flags().Changed(name) {
			flags[name] = cmd.Flags().Lookup(name).Value.String()
		}
	}

	// Detection happens here, not in the resolver: Resolve stays a pure
	// function of its flag map.
	if _, ok := flags[variant.FlagBuildID]; !ok {
		if id := gitver.DetectBuildID(rootDir); id != "" {
			flags[variant.FlagBuildID] = id
		}
	}
	return flags
}
