package variant

import (
	"reflect"
	"testing"
)

func TestResolveDefaults(t *testing.T) {
	d := Resolve(map[string]string{})

	if d.AcceleratorEnabled || d.BundledRuntimeEnabled || d.MinimalFootprint {
		t.Errorf("feature flags should default off: %+v", d)
	}
	if d.AcceleratorVariant != "" {
		t.Errorf("accelerator variant should be empty when accelerator is off, got %q", d.AcceleratorVariant)
	}
	if d.BuildIdentifier != DefaultBuildID {
		t.Errorf("build id = %q, want %q", d.BuildIdentifier, DefaultBuildID)
	}
	if d.OwnerUID != DefaultOwnerUID || d.OwnerGID != DefaultOwnerGID {
		t.Errorf("owner = %d:%d, want %d:%d", d.OwnerUID, d.OwnerGID, DefaultOwnerUID, DefaultOwnerGID)
	}
	if d.PermissionHardening {
		t.Error("hardening should default off for root-owned output")
	}
}

func TestResolveDeterministic(t *testing.T) {
	flags := map[string]string{
		FlagAccelerator: "TRUE",
		FlagMinimal:     "1",
		FlagOwnerUID:    "1000",
	}

	first := Resolve(flags)
	second := Resolve(flags)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("resolve not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestResolveTruthyEncodings(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{"on", true},
		{"false", false},
		{"0", false},
		{"no", false},
		{"off", false},
		{"", false},
		{"garbage", false}, // unknown values default, never fail
	}

	for _, tt := range tests {
		d := Resolve(map[string]string{FlagAccelerator: tt.raw})
		if d.AcceleratorEnabled != tt.want {
			t.Errorf("accelerator=%q resolved to %v, want %v", tt.raw, d.AcceleratorEnabled, tt.want)
		}
	}
}

func TestMinimalFootprintDominates(t *testing.T) {
	// Every other flag enabled: minimal still excludes model prefetch.
	d := Resolve(map[string]string{
		FlagAccelerator:    "true",
		FlagBundledRuntime: "true",
		FlagMinimal:        "true",
	})

	if !d.MinimalFootprint {
		t.Fatal("minimal not resolved")
	}
	if d.ModelPrefetchEnabled() {
		t.Error("model prefetch must be excluded under minimal footprint")
	}
}

func TestAcceleratorVariantIgnoredWhenDisabled(t *testing.T) {
	d := Resolve(map[string]string{
		FlagAccelerator:        "false",
		FlagAcceleratorVariant: "cu118",
	})
	if d.AcceleratorVariant != "" {
		t.Errorf("accelerator variant should be cleared when disabled, got %q", d.AcceleratorVariant)
	}
	if d.Field(FieldAcceleratorVariant) != "" {
		t.Error("field encoding should be empty when accelerator disabled")
	}

	d = Resolve(map[string]string{
		FlagAccelerator:        "true",
		FlagAcceleratorVariant: "cu118",
	})
	if d.AcceleratorVariant != "cu118" {
		t.Errorf("accelerator variant = %q, want cu118", d.AcceleratorVariant)
	}
}

func TestHardeningDefaultsFollowOwner(t *testing.T) {
	// Non-root owner without an explicit flag: hardened.
	d := Resolve(map[string]string{FlagOwnerUID: "1000", FlagOwnerGID: "1000"})
	if !d.PermissionHardening {
		t.Error("non-root owner should default to hardened permissions")
	}

	// Explicit flag always wins.
	d = Resolve(map[string]string{FlagOwnerUID: "1000", FlagHardenPermissions: "false"})
	if d.PermissionHardening {
		t.Error("explicit harden-permissions=false must override the owner default")
	}
}

func TestResolveBadOwnerFallsBack(t *testing.T) {
	d := Resolve(map[string]string{FlagOwnerUID: "not-a-number", FlagOwnerGID: "-5"})
	if d.OwnerUID != DefaultOwnerUID || d.OwnerGID != DefaultOwnerGID {
		t.Errorf("owner = %d:%d, want defaults", d.OwnerUID, d.OwnerGID)
	}
}
