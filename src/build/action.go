package build

import (
	"strings"
	"time"
)

// Action is one idempotent, ordered unit of provisioning work within a
// stage. Exactly one of Exec, Fetch, Copy, or Write is set; the zero remainder
// keeps the action list a plain data structure the executor interprets.
type Action struct {
	Name string

	// When gates the action on the resolved variant. Evaluated immediately
	// before execution, not pre-filtered at plan time.
	When Condition

	// Uses lists descriptor fields whose values parameterize the side
	// effect (template expansion below). They join the stage's cache key
	// even when no condition reads them.
	Uses []string

	// Exec invokes an external tool. Placeholders of the form {name} are
	// expanded against the execution environment before invocation; a
	// nonzero exit is a ProvisioningError.
	Exec []string

	// Dir is the working directory for Exec, after expansion. Empty means
	// the staging area.
	Dir string

	// Fetch downloads a remote artifact into the staging area.
	Fetch *FetchSpec

	// Copy copies files from the source tree into the staging area.
	Copy *CopySpec

	// Write stamps a small metadata file into the staging area.
	Write *WriteSpec

	// Timeout overrides the configured default deadline for Exec and
	// Fetch side effects. Zero means use the default.
	Timeout time.Duration
}

// FetchSpec describes a remote artifact download. The fetch lands in a
// stage-local temp file first and is only moved to Dest once complete, so a
// mid-fetch failure never leaves a partial file in the staging area.
type FetchSpec struct {
	URL  string // may contain {name} placeholders
	Dest string // staging-relative destination path
}

// CopySpec copies a file or directory tree into the staging area.
type CopySpec struct {
	From string // source path, may contain {name} placeholders
	To   string // staging-relative destination; empty means staging root
}

// WriteSpec writes templated content to a staging-relative path.
type WriteSpec struct {
	Path    string
	Content string // may contain {name} placeholders
}

// expand substitutes {name} placeholders from vars. Unknown placeholders
// are left verbatim so mistakes surface in logs rather than vanishing.
func expand(s string, vars map[string]string) string {
	for name, value := range vars {
		s = strings.ReplaceAll(s, "{"+name+"}", value)
	}
	return s
}

func expandAll(args []string, vars map[string]string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = expand(a, vars)
	}
	return out
}
