package build

import "fmt"

// ProvisioningError reports a failed action side effect. It aborts the
// owning stage and every stage depending on it; independent stages keep
// running.
type ProvisioningError struct {
	Stage     string
	Action    string
	Retryable bool // deadline and transient network failures
	Err       error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("stage %s, action %s: %v", e.Stage, e.Action, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// upstreamError marks a stage that never started because a dependency
// failed. It is a symptom, not a root cause, and is filtered out when the
// run picks the error to surface.
type upstreamError struct {
	dependency string
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("skipped: upstream stage %s failed", e.dependency)
}
