// Package variant resolves the flat build-flag map into a fully-resolved
// variant descriptor. Resolution is a pure function of the flag map: no
// filesystem or network state is consulted, which is what makes descriptor
// fields safe to fold into stage cache keys.
package variant

import (
	"strconv"
	"strings"
)

// Documented flag names. The flag map is the sole configuration surface
// for variant selection; anything not listed here is ignored.
const (
	FlagAccelerator        = "accelerator"
	FlagAcceleratorVariant = "accelerator-variant"
	FlagBundledRuntime     = "bundled-runtime"
	FlagMinimal            = "minimal"
	FlagHardenPermissions  = "harden-permissions"
	FlagBuildID            = "build-id"
	FlagOwnerUID           = "owner-uid"
	FlagOwnerGID           = "owner-gid"
)

// Defaults applied for unset flags.
const (
	DefaultAcceleratorVariant = "cu128"
	DefaultBuildID            = "dev-build"
	DefaultOwnerUID           = 0
	DefaultOwnerGID           = 0
)

// Descriptor field names, as used by stage cache keys and action conditions.
const (
	FieldAccelerator        = "accelerator"
	FieldAcceleratorVariant = "accelerator-variant"
	FieldBundledRuntime     = "bundled-runtime"
	FieldMinimal            = "minimal"
	FieldHarden             = "harden-permissions"
	FieldBuildID            = "build-id"
	FieldOwner              = "owner"
)

// Descriptor is the resolved, immutable build variant.
type Descriptor struct {
	AcceleratorEnabled    bool
	AcceleratorVariant    string // empty unless AcceleratorEnabled
	BundledRuntimeEnabled bool
	MinimalFootprint      bool
	PermissionHardening   bool
	BuildIdentifier       string
	OwnerUID              int
	OwnerGID              int
}

// Resolve turns a raw flag map into a Descriptor. It is total: every input
// yields a descriptor, with unparseable values falling back to documented
// defaults rather than erroring.
//
// Resolution order:
//  1. defaults for unset flags
//  2. truthy normalization ("true"/"1"/"yes"/"on", case-insensitive)
//  3. minimal-footprint dominance (model prefetch triggers cleared)
//  4. owner identity fallback to DefaultOwnerUID:DefaultOwnerGID
//  5. harden-permissions, when absent, defaults to true for non-root
//     owners (arbitrary-UID platforms) and false for root-owned output
func Resolve(flags map[string]string) Descriptor {
	d := Descriptor{
		AcceleratorEnabled:    truthy(flags[FlagAccelerator], false),
		BundledRuntimeEnabled: truthy(flags[FlagBundledRuntime], false),
		MinimalFootprint:      truthy(flags[FlagMinimal], false),
		BuildIdentifier:       stringOr(flags[FlagBuildID], DefaultBuildID),
		OwnerUID:              intOr(flags[FlagOwnerUID], DefaultOwnerUID),
		OwnerGID:              intOr(flags[FlagOwnerGID], DefaultOwnerGID),
	}

	// acceleratorVariant is meaningless when the accelerator is off; keep it
	// empty so no action or cache key can accidentally branch on it.
	if d.AcceleratorEnabled {
		d.AcceleratorVariant = stringOr(flags[FlagAcceleratorVariant], DefaultAcceleratorVariant)
	}

	if raw, ok := flags[FlagHardenPermissions]; ok {
		d.PermissionHardening = truthy(raw, false)
	} else {
		d.PermissionHardening = d.OwnerUID != DefaultOwnerUID
	}

	return d
}

// ModelPrefetchEnabled reports whether optional model prefetch actions may
// run. MinimalFootprint dominates every other flag here.
func (d Descriptor) ModelPrefetchEnabled() bool {
	return !d.MinimalFootprint
}

// Field returns the canonical string encoding of one descriptor field.
// Stage cache keys are computed over the subset of fields a stage's actions
// actually condition on, so the encoding must be stable across releases.
func (d Descriptor) Field(name string) string {
	switch name {
	case FieldAccelerator:
		return strconv.FormatBool(d.AcceleratorEnabled)
	case FieldAcceleratorVariant:
		return d.AcceleratorVariant
	case FieldBundledRuntime:
		return strconv.FormatBool(d.BundledRuntimeEnabled)
	case FieldMinimal:
		return strconv.FormatBool(d.MinimalFootprint)
	case FieldHarden:
		return strconv.FormatBool(d.PermissionHardening)
	case FieldBuildID:
		return d.BuildIdentifier
	case FieldOwner:
		return strconv.Itoa(d.OwnerUID) + ":" + strconv.Itoa(d.OwnerGID)
	}
	return ""
}

// truthy normalizes raw string encodings of booleans.
func truthy(raw string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	case "":
		return fallback
	}
	return fallback
}

func stringOr(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	return raw
}

func intOr(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
