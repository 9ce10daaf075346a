package build

import "time"

// RunResult is the outcome of driving the full stage DAG once.
type RunResult struct {
	Stages  map[string]*StageRun
	Status  Status
	Err     error // root-cause stage error when Status is Failed
	Elapsed time.Duration
}

// Artifacts returns the stage output map expected by the composer. Only
// populated entries are included, so a failed run yields a partial map the
// composer will reject.
func (r *RunResult) Artifacts() map[string]ArtifactRef {
	out := make(map[string]ArtifactRef, len(r.Stages))
	for name, run := range r.Stages {
		if run.Artifact.Path != "" {
			out[name] = run.Artifact
		}
	}
	return out
}
