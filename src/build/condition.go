package build

import "github.com/atelierhq/stagecraft/src/variant"

// Condition is the declarative predicate gating a provisioning action on the
// resolved variant. Keeping conditions data rather than code lets the action
// list be inspected and tested without executing anything, and lets the
// cache key include exactly the descriptor fields a stage reads.
//
// Matching logic:
//   - Nil pointer fields are not evaluated.
//   - Multiple set fields: AND — all must match.
//   - ModelPrefetch marks the action as an optional model prefetch; such
//     actions are excluded outright under the minimal footprint, regardless
//     of every other flag.
//   - Zero value: catch-all, always matches.
type Condition struct {
	Accelerator    *bool
	BundledRuntime *bool
	ModelPrefetch  bool
}

// Matches evaluates the condition against a resolved descriptor.
func (c Condition) Matches(d variant.Descriptor) bool {
	if c.ModelPrefetch && !d.ModelPrefetchEnabled() {
		return false
	}
	if c.Accelerator != nil && *c.Accelerator != d.AcceleratorEnabled {
		return false
	}
	if c.BundledRuntime != nil && *c.BundledRuntime != d.BundledRuntimeEnabled {
		return false
	}
	return true
}

// Fields enumerates the descriptor fields this condition consults.
func (c Condition) Fields() []string {
	var fields []string
	if c.ModelPrefetch {
		fields = append(fields, variant.FieldMinimal)
	}
	if c.Accelerator != nil {
		fields = append(fields, variant.FieldAccelerator)
	}
	if c.BundledRuntime != nil {
		fields = append(fields, variant.FieldBundledRuntime)
	}
	return fields
}

// boolPtr is a convenience for literal condition construction.
func boolPtr(b bool) *bool { return &b }
