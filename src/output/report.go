// Package output renders human-facing run reports. Structured logs go
// through slog; this package owns the framed terminal summary.
package output

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/atelierhq/stagecraft/src/build"
)

// UseColor returns true if colored output should be used.
func UseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// RunReport prints the per-stage summary of a build run: status, cache
// key prefix, and duration per stage, then the overall verdict. A failed
// run names the failing stage and action.
func RunReport(w io.Writer, result *build.RunResult, stageOrder []string, color bool) {
	s := NewSection(w, "Stages", result.Elapsed, color)
	for _, name := range stageOrder {
		run, ok := result.Stages[name]
		if !ok {
			continue
		}

		detail := Dimmed(keyPrefix(run.CacheKey), color)
		if run.Status == build.StatusFailed {
			detail = failDetail(run)
		}

		icon := StatusIcon(run.Status.String(), color)
		s.Row("%-20s %s %-10s %-14s %s", name, icon, run.Status, elapsedOrDash(run), detail)
	}
	s.Separator()
	s.Row("%-20s %s %s", "total", StatusIcon(result.Status.String(), color), result.Status)
	s.Close()
}

func keyPrefix(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

func failDetail(run *build.StageRun) string {
	var provErr *build.ProvisioningError
	if errors.As(run.Err, &provErr) {
		return "action " + provErr.Action + ": " + provErr.Err.Error()
	}
	if run.Err != nil {
		return run.Err.Error()
	}
	return ""
}

func elapsedOrDash(run *build.StageRun) string {
	if run.StartedAt.IsZero() || run.FinishedAt.IsZero() {
		return "-"
	}
	d := run.FinishedAt.Sub(run.StartedAt)
	if d < 0 {
		d = time.Duration(0)
	}
	return formatElapsed(d)
}
