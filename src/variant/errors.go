package variant

import "fmt"

// ResolutionError reports a malformed or contradictory flag combination.
//
// Resolve currently defaults every unparseable value, so nothing returns
// this yet; it is reserved for a future strict-validation mode so callers
// can already branch on the type.
type ResolutionError struct {
	Flag   string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving flag %q: %s", e.Flag, e.Reason)
}
