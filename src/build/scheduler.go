package build

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/atelierhq/stagecraft/src/cache"
	"github.com/atelierhq/stagecraft/src/variant"
)

// Scheduler executes the stage DAG. Independent stages run concurrently on
// a bounded worker pool; a stage is dispatched the moment every stage it
// consumes reports Succeeded or Cached.
//
// Failure policy: a failed stage poisons its dependents, which are marked
// failed without starting. Stages already dispatched keep running to
// completion so their results land in the cache for future runs, but no
// further stage is dispatched once any failure is recorded.
type Scheduler struct {
	Graph *Graph
	Exec  *Executor
	Cache *cache.Cache

	// Workers bounds concurrently running stages. Zero means one worker
	// per stage.
	Workers int

	// ForceRebuild bypasses cache lookups (stores still happen), forcing
	// full re-execution without inputs changing.
	ForceRebuild bool
}

// node is the scheduler's per-stage bookkeeping.
type node struct {
	stage    *Stage
	run      *StageRun
	depCount atomic.Int32
	skipOnce sync.Once
}

// Run drives the whole DAG and returns the per-stage records. The error
// mirrors result.Err: non-nil when any stage failed.
func (s *Scheduler) Run(ctx context.Context, d variant.Descriptor) (*RunResult, error) {
	start := time.Now()
	stages := s.Graph.Stages()

	workers := s.Workers
	if workers <= 0 {
		workers = len(stages)
	}
	sem := semaphore.NewWeighted(int64(workers))

	nodes := make(map[string]*node, len(stages))
	for _, st := range stages {
		n := &node{stage: st, run: &StageRun{Stage: st.Name, Status: StatusPending}}
		n.depCount.Store(int32(len(st.Needs)))
		nodes[st.Name] = n
	}

	var (
		wg     sync.WaitGroup
		failed atomic.Bool
	)
	wg.Add(len(stages))

	var dispatch func(n *node)
	dispatch = func(n *node) {
		go func() {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				n.markFailed(&ProvisioningError{Stage: n.stage.Name, Action: "dispatch", Err: err})
				failed.Store(true)
				s.poisonDependents(n, nodes, &wg)
				return
			}
			s.runStage(ctx, n, d, nodes)
			sem.Release(1)

			if n.run.Status == StatusFailed {
				failed.Store(true)
				s.poisonDependents(n, nodes, &wg)
				return
			}

			for _, dep := range s.Graph.dependents(n.stage.Name) {
				dn := nodes[dep.Name]
				if dn.depCount.Add(-1) != 0 {
					continue
				}
				if failed.Load() {
					// Drain policy: a run that has already failed
					// dispatches nothing new.
					dn.skipOnce.Do(func() {
						dn.markFailed(&upstreamError{dependency: n.stage.Name})
						wg.Done()
					})
					continue
				}
				// A failure recorded between the check above and this
				// dispatch lets one extra stage start. It runs to completion
				// and caches like any other in-flight stage, so the window
				// only widens the drain, never the failure surface.
				dispatch(dn)
			}
		}()
	}

	for _, st := range stages {
		if len(st.Needs) == 0 {
			dispatch(nodes[st.Name])
		}
	}

	wg.Wait()

	result := &RunResult{Stages: make(map[string]*StageRun, len(nodes)), Elapsed: time.Since(start)}
	result.Status = StatusSucceeded
	for name, n := range nodes {
		result.Stages[name] = n.run
		if n.run.Status != StatusFailed {
			continue
		}
		result.Status = StatusFailed
		// Prefer the root cause over downstream skip symptoms.
		if _, skipped := n.run.Err.(*upstreamError); !skipped && result.Err == nil {
			result.Err = n.run.Err
		}
	}
	if result.Status == StatusFailed {
		return result, result.Err
	}
	return result, nil
}

// runStage performs cache lookup, execution on miss, and cache store.
func (s *Scheduler) runStage(ctx context.Context, n *node, d variant.Descriptor, nodes map[string]*node) {
	st := n.stage
	run := n.run
	run.StartedAt = time.Now()
	run.Status = StatusRunning

	fields := make(map[string]string)
	for _, name := range st.keyFields() {
		fields[name] = d.Field(name)
	}
	key, err := cache.Key(cache.KeyInput{
		Files:          st.Inputs,
		Fields:         fields,
		ActionsVersion: st.ActionsVersion,
	})
	if err != nil {
		n.markFailed(&ProvisioningError{Stage: st.Name, Action: "cache-key", Err: err})
		return
	}
	run.CacheKey = key

	if !s.ForceRebuild {
		if path, ok := s.Cache.Lookup(st.Name, key); ok {
			slog.Info("stage cached", "stage", st.Name, "key", key[:12])
			run.Artifact = ArtifactRef{Stage: st.Name, Path: path}
			run.Status = StatusCached
			run.FinishedAt = time.Now()
			return
		}
	}

	upstream := make(map[string]ArtifactRef, len(st.Needs))
	for _, need := range st.Needs {
		upstream[need] = nodes[need].run.Artifact
	}

	slog.Info("stage running", "stage", st.Name, "actions", len(st.Actions))
	ref, err := s.Exec.Run(ctx, st, d, upstream)
	if err != nil {
		n.markFailed(err)
		return
	}

	if _, err := s.Cache.Store(st.Name, key, ref.Path); err != nil {
		// Cache population is best effort; the artifact itself is intact.
		slog.Warn("cache store failed", "stage", st.Name, "error", err)
	} else if tree, ok := s.Cache.Lookup(st.Name, key); ok {
		// The cached copy becomes the canonical artifact so the workspace
		// tree can be released instead of accumulating across runs.
		os.RemoveAll(ref.Path)
		ref = ArtifactRef{Stage: st.Name, Path: tree}
	}

	run.Artifact = ref
	run.Status = StatusSucceeded
	run.FinishedAt = time.Now()
	slog.Info("stage succeeded", "stage", st.Name, "elapsed", run.FinishedAt.Sub(run.StartedAt))
}

// poisonDependents marks every transitive dependent of a failed stage as
// failed without starting it.
func (s *Scheduler) poisonDependents(n *node, nodes map[string]*node, wg *sync.WaitGroup) {
	for _, dep := range s.Graph.dependents(n.stage.Name) {
		dn := nodes[dep.Name]
		dn.skipOnce.Do(func() {
			dn.markFailed(&upstreamError{dependency: n.stage.Name})
			wg.Done()
			s.poisonDependents(dn, nodes, wg)
		})
	}
}

func (n *node) markFailed(err error) {
	n.run.Status = StatusFailed
	n.run.Err = err
	n.run.FinishedAt = time.Now()
}
