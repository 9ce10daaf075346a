package build

import (
	"reflect"
	"testing"

	"github.com/atelierhq/stagecraft/src/variant"
)

func TestConditionMatches(t *testing.T) {
	cases := []struct {
		name  string
		cond  Condition
		flags map[string]string
		want  bool
	}{
		{
			name: "zero value matches everything",
			cond: Condition{},
			want: true,
		},
		{
			name:  "accelerator required and present",
			cond:  Condition{Accelerator: boolPtr(true)},
			flags: map[string]string{variant.FlagAccelerator: "true"},
			want:  true,
		},
		{
			name: "accelerator required and absent",
			cond: Condition{Accelerator: boolPtr(true)},
			want: false,
		},
		{
			name:  "accelerator excluded",
			cond:  Condition{Accelerator: boolPtr(false)},
			flags: map[string]string{variant.FlagAccelerator: "true"},
			want:  false,
		},
		{
			name:  "all set fields must match",
			cond:  Condition{Accelerator: boolPtr(true), BundledRuntime: boolPtr(true)},
			flags: map[string]string{variant.FlagAccelerator: "true"},
			want:  false,
		},
		{
			name:  "model prefetch allowed on full footprint",
			cond:  Condition{ModelPrefetch: true},
			flags: map[string]string{variant.FlagAccelerator: "true"},
			want:  true,
		},
		{
			name: "minimal footprint excludes prefetch regardless of other flags",
			cond: Condition{ModelPrefetch: true, Accelerator: boolPtr(true)},
			flags: map[string]string{
				variant.FlagAccelerator: "true",
				variant.FlagMinimal:     "true",
			},
			want: false,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.cond.Matches(variant.Resolve(c.flags)); got != c.want {
				t.Errorf("Matches() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestConditionFields(t *testing.T) {
	cases := []struct {
		name string
		cond Condition
		want []string
	}{
		{"zero value consults nothing", Condition{}, nil},
		{"accelerator gate", Condition{Accelerator: boolPtr(true)}, []string{variant.FieldAccelerator}},
		{"prefetch consults the footprint", Condition{ModelPrefetch: true}, []string{variant.FieldMinimal}},
		{
			"combined",
			Condition{ModelPrefetch: true, Accelerator: boolPtr(false), BundledRuntime: boolPtr(true)},
			[]string{variant.FieldMinimal, variant.FieldAccelerator, variant.FieldBundledRuntime},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.cond.Fields(); !reflect.DeepEqual(got, c.want) {
				t.Errorf("Fields() = %v, want %v", got, c.want)
			}
		})
	}
}
