package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/stagecraft/src/fsutil"
	"github.com/atelierhq/stagecraft/src/variant"
)

// Executor runs one stage's provisioning actions against a fresh staging
// area and promotes the result atomically.
type Executor struct {
	// WorkDir holds staging and output trees for this run.
	WorkDir string

	// Vars are extra template variables exposed to actions (source tree
	// and manifest locations, configured endpoints).
	Vars map[string]string

	// DefaultTimeout bounds each Exec/Fetch side effect unless the action
	// overrides it. Zero disables the deadline.
	DefaultTimeout time.Duration

	// Client performs Fetch side effects. Defaults to http.DefaultClient.
	Client *http.Client

	Stdout io.Writer
	Stderr io.Writer
}

// Run executes the stage's actions strictly in declaration order. Each
// action's condition is evaluated against the descriptor immediately before
// it runs, so later actions can rely on earlier side effects. All work
// happens in a per-run staging directory that is renamed into the output
// area only after every action succeeds; a failure never leaves a partial
// artifact visible to downstream consumers.
//
// Re-running an unchanged stage with an unchanged descriptor is safe and
// yields an output tree with identical effective content, which is what
// lets forced rebuilds bypass the cache.
func (e *Executor) Run(ctx context.Context, stage *Stage, d variant.Descriptor, upstream map[string]ArtifactRef) (ArtifactRef, error) {
	runID := uuid.NewString()
	staging := filepath.Join(e.WorkDir, "staging", stage.Name+"-"+runID)
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return ArtifactRef{}, &ProvisioningError{Stage: stage.Name, Action: "staging", Err: err}
	}

	vars := e.templateVars(staging, d, upstream)

	for _, action := range stage.Actions {
		if !action.When.Matches(d) {
			slog.Debug("action skipped by condition", "stage", stage.Name, "action", action.Name)
			continue
		}

		slog.Debug("running action", "stage", stage.Name, "action", action.Name)
		if err := e.runAction(ctx, stage, action, staging, vars); err != nil {
			os.RemoveAll(staging)
			return ArtifactRef{}, err
		}
	}

	// Atomic promote: rename to a unique output path so downstream readers
	// only ever observe a complete tree.
	out := filepath.Join(e.WorkDir, "out", stage.Name+"-"+runID)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		os.RemoveAll(staging)
		return ArtifactRef{}, &ProvisioningError{Stage: stage.Name, Action: "promote", Err: err}
	}
	if err := os.Rename(staging, out); err != nil {
		os.RemoveAll(staging)
		return ArtifactRef{}, &ProvisioningError{Stage: stage.Name, Action: "promote", Err: err}
	}

	return ArtifactRef{Stage: stage.Name, Path: out}, nil
}

// runAction dispatches one action's side effect.
func (e *Executor) runAction(ctx context.Context, stage *Stage, action Action, staging string, vars map[string]string) error {
	timeout := action.Timeout
	if timeout == 0 {
		timeout = e.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var err error
	switch {
	case len(action.Exec) > 0:
		err = e.execTool(ctx, action, staging, vars)
	case action.Fetch != nil:
		err = e.fetch(ctx, action, staging, vars)
	case action.Copy != nil:
		err = e.copyIn(action, staging, vars)
	case action.Write != nil:
		err = writeStamp(action, staging, vars)
	default:
		err = fmt.Errorf("action declares no side effect")
	}

	if err != nil {
		return &ProvisioningError{
			Stage:     stage.Name,
			Action:    action.Name,
			Retryable: retryable(err),
			Err:       err,
		}
	}
	return nil
}

// execTool invokes an external build tool with expanded arguments.
func (e *Executor) execTool(ctx context.Context, action Action, staging string, vars map[string]string) error {
	argv := expandAll(action.Exec, vars)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = staging
	if action.Dir != "" {
		cmd.Dir = expand(action.Dir, vars)
	}
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	cmd.Env = append(os.Environ(), "BUILD_ID="+vars[variant.FieldBuildID])

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", argv[0], ctx.Err())
		}
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}

// fetch downloads a remote artifact into the staging area. The body lands
// in a temp file and is renamed to its destination only once fully read.
func (e *Executor) fetch(ctx context.Context, action Action, staging string, vars map[string]string) error {
	url := expand(action.Fetch.URL, vars)
	dest := filepath.Join(staging, filepath.FromSlash(action.Fetch.Dest))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &httpStatusError{url: url, status: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(staging, ".fetch-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

// copyIn copies declared files from the source tree into staging.
func (e *Executor) copyIn(action Action, staging string, vars map[string]string) error {
	from := expand(action.Copy.From, vars)
	to := filepath.Join(staging, filepath.FromSlash(action.Copy.To))

	fi, err := os.Stat(from)
	if err != nil {
		return fmt.Errorf("copy source: %w", err)
	}
	if fi.IsDir() {
		return fsutil.CopyTree(from, to)
	}
	if err := os.MkdirAll(to, 0o755); err != nil {
		return err
	}
	return fsutil.CopyFile(from, filepath.Join(to, filepath.Base(from)), fi.Mode().Perm())
}

// templateVars builds the expansion environment for one stage run.
func (e *Executor) templateVars(staging string, d variant.Descriptor, upstream map[string]ArtifactRef) map[string]string {
	vars := map[string]string{
		"staging":                       staging,
		variant.FieldBuildID:            d.BuildIdentifier,
		variant.FieldAcceleratorVariant: d.AcceleratorVariant,
	}
	for name, value := range e.Vars {
		vars[name] = value
	}
	for name, ref := range upstream {
		vars["artifact:"+name] = ref.Path
	}
	return vars
}

// writeStamp writes a small templated metadata file into staging.
func writeStamp(action Action, staging string, vars map[string]string) error {
	path := filepath.Join(staging, filepath.FromSlash(action.Write.Path))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(expand(action.Write.Content, vars)), 0o644)
}

type httpStatusError struct {
	url    string
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("fetching %s: unexpected status %d", e.url, e.status)
}

// retryable classifies deadline and transient network failures so callers
// can distinguish them from deterministic tool errors.
func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var statusErr *httpStatusError
	return errors.As(err, &statusErr) && statusErr.status >= 500
}
