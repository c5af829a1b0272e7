// Package pipeline drives one verification run end to end and keeps the
// watch loop alive across failing runs.
package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aether-platform/aether-lens/internal/backend"
	"github.com/aether-platform/aether-lens/internal/diff"
	"github.com/aether-platform/aether-lens/internal/insight"
	"github.com/aether-platform/aether-lens/internal/runner"
	"github.com/aether-platform/aether-lens/internal/strategy"
	"github.com/aether-platform/aether-lens/internal/watcher"
)

// Phase is the observable position of the pipeline.
type Phase string

const (
	PhaseIdle              Phase = "IDLE"
	PhaseCollectingDiff    Phase = "COLLECTING_DIFF"
	PhaseResolvingStrategy Phase = "RESOLVING_STRATEGY"
	PhaseAcquiringSession  Phase = "ACQUIRING_SESSION"
	PhaseExecuting         Phase = "EXECUTING"
	PhaseReleasing         Phase = "RELEASING"
	PhaseAssembling        Phase = "ASSEMBLING"
)

// Hooks let the caller observe the pipeline without coupling it to any
// output format. Nil hooks are skipped.
type Hooks struct {
	OnPhase   func(runID string, phase Phase)
	OnTrigger func(trig watcher.Trigger)
	OnInsight func(in insight.Insight, historyPath string)
	OnSkip    func(runID string, reason error)
}

// Deps are the pipeline's collaborators, built once by the caller.
type Deps struct {
	Diff        *diff.Collector
	Resolver    *strategy.Resolver
	Backend     *backend.Manager
	Harness     *runner.Harness
	Sink        insight.Sink
	PlanNames   []string
	Instruction string
	Clock       clock.Clock
	Log         *zap.SugaredLogger
	Hooks       Hooks
}

// Orchestrator sequences collect, resolve, acquire, execute, release and
// assemble for every run.
type Orchestrator struct {
	deps  Deps
	phase atomic.Value
}

func New(deps Deps) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop().Sugar()
	}
	if deps.Sink == nil {
		deps.Sink = insight.Discard{}
	}
	o := &Orchestrator{deps: deps}
	o.phase.Store(PhaseIdle)
	return o
}

// Phase returns the pipeline's current position.
func (o *Orchestrator) Phase() Phase {
	return o.phase.Load().(Phase)
}

func (o *Orchestrator) setPhase(runID string, phase Phase) {
	o.phase.Store(phase)
	if o.deps.Hooks.OnPhase != nil {
		o.deps.Hooks.OnPhase(runID, phase)
	}
}

// RunOnce performs a single run against an ephemeral session. The session
// is retired even when the run fails.
func (o *Orchestrator) RunOnce(ctx context.Context) (insight.Insight, error) {
	defer func() {
		if err := o.deps.Backend.Shutdown(); err != nil {
			o.deps.Log.Warnw("session shutdown failed", "error", err)
		}
	}()
	return o.run(ctx, backend.ModeEphemeral)
}

// Watch serves triggers until the context ends or the channel closes. It
// performs one initial run immediately so the loop never waits for a first
// edit to report current state. Failing runs are logged and skipped; only
// cancellation stops the loop.
func (o *Orchestrator) Watch(ctx context.Context, triggers <-chan watcher.Trigger) error {
	defer func() {
		if err := o.deps.Backend.Shutdown(); err != nil {
			o.deps.Log.Warnw("session shutdown failed", "error", err)
		}
	}()

	o.runGuarded(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case trig, ok := <-triggers:
			if !ok {
				return nil
			}
			if o.deps.Hooks.OnTrigger != nil {
				o.deps.Hooks.OnTrigger(trig)
			}
			o.deps.Log.Infow("change detected", "paths", len(trig.Paths))
			o.runGuarded(ctx)
		}
	}
}

// runGuarded is one watch-loop iteration: any run error is reported and
// swallowed so the watch survives.
func (o *Orchestrator) runGuarded(ctx context.Context) {
	_, err := o.run(ctx, backend.ModePersistent)
	if err == nil || ctx.Err() != nil {
		return
	}
	switch {
	case diff.IsUnavailable(err):
		o.deps.Log.Infow("run skipped", "reason", err.Error())
	default:
		o.deps.Log.Errorw("run aborted", "error", err)
	}
}

func (o *Orchestrator) run(ctx context.Context, mode backend.Mode) (insight.Insight, error) {
	runID := uuid.NewString()
	started := o.deps.Clock.Now()
	defer o.setPhase("", PhaseIdle)

	o.setPhase(runID, PhaseCollectingDiff)
	payload, err := o.deps.Diff.Collect(ctx)
	if err != nil {
		o.skip(runID, err)
		return insight.Insight{}, err
	}

	o.setPhase(runID, PhaseResolvingStrategy)
	plan, rec, err := o.deps.Resolver.Resolve(ctx, o.deps.PlanNames, payload, o.deps.Instruction)
	if err != nil {
		o.skip(runID, err)
		return insight.Insight{}, err
	}

	o.setPhase(runID, PhaseAcquiringSession)
	sess, err := o.deps.Backend.Acquire(ctx, mode)
	if err != nil {
		o.skip(runID, err)
		return insight.Insight{}, err
	}

	o.setPhase(runID, PhaseExecuting)
	results := o.deps.Harness.Execute(ctx, sess, plan)

	o.setPhase(runID, PhaseReleasing)
	if err := o.deps.Backend.Release(mode); err != nil {
		// Results are already in hand; a release failure must not void them.
		o.deps.Log.Warnw("session release failed", "error", err)
	}

	o.setPhase(runID, PhaseAssembling)
	info := insight.RunInfo{
		RunID:   runID,
		DiffRef: payload.BaseRef,
		Backend: insight.Backend{
			Kind:      string(sess.Descriptor.Kind),
			Endpoint:  sess.Endpoint(),
			SessionID: sess.ID,
		},
		PlanSource: plan.Source,
		StartedAt:  started,
	}
	if plan.Source == strategy.SourceAI {
		info.Recommendation = &rec
	}

	in := insight.Assemble(info, results, o.deps.Clock.Now())
	path, err := o.deps.Sink.Write(in)
	if err != nil {
		o.deps.Log.Warnw("insight not persisted", "error", err)
		path = ""
	}
	if o.deps.Hooks.OnInsight != nil {
		o.deps.Hooks.OnInsight(in, path)
	}
	return in, nil
}

func (o *Orchestrator) skip(runID string, reason error) {
	if o.deps.Hooks.OnSkip != nil {
		o.deps.Hooks.OnSkip(runID, reason)
	}
}
