package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aether-platform/aether-lens/internal/backend"
	"github.com/aether-platform/aether-lens/internal/diff"
	"github.com/aether-platform/aether-lens/internal/pipeline"
	"github.com/aether-platform/aether-lens/internal/strategy"
)

// RunCmd verifies the current working tree once and exits with the verdict.
type RunCmd struct {
	sharedFlags `embed:""`
}

func (c *RunCmd) Run(globals *Globals) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := validateFlags(globals, &c.sharedFlags); err != nil {
		return err
	}
	if err := globals.Config.Validate(); err != nil {
		return configError(globals, "CONFIG_INVALID", err.Error(), "run 'aether-lens check' for a full diagnosis")
	}
	s, err := resolveSettings(globals, &c.sharedFlags)
	if err != nil {
		return err
	}

	r := newRenderer(globals)
	orch, err := buildPipeline(globals, s, pipeline.Hooks{
		OnPhase:   r.phase,
		OnSkip:    r.skip,
		OnInsight: r.insight,
	})
	if err != nil {
		return err
	}

	in, err := orch.RunOnce(ctx)
	if err != nil {
		return mapRunError(globals, r, err)
	}
	if in.Failed() {
		return verdictError()
	}
	return nil
}

// mapRunError turns pipeline errors into exit codes and user-facing
// messages. A clean tree is a success, not a failure.
func mapRunError(globals *Globals, r *renderer, err error) error {
	switch {
	case errors.Is(err, diff.ErrNoChanges):
		if r.ndjson() {
			r.event(map[string]any{"type": "info", "message": "no changes since the last analyzed state"})
		} else if !globals.Quiet {
			fmt.Fprintln(globals.Stderr, "Nothing to verify: no changes since the last analyzed state")
		}
		return nil

	case errors.Is(err, diff.ErrNoRepository):
		return runError(globals, "NO_REPOSITORY", err.Error(),
			"run inside a git repository or inject a diff via AETHER_DIFF")

	case errors.Is(err, strategy.ErrUnknownStrategy):
		return configError(globals, "UNKNOWN_STRATEGY", err.Error(),
			"list known strategies with 'aether-lens check'")

	case errors.Is(err, strategy.ErrAIUnavailable):
		return runError(globals, "RECOMMENDER_UNAVAILABLE", err.Error())

	case errors.Is(err, backend.ErrSessionTimeout):
		return runError(globals, "SESSION_TIMEOUT", err.Error(),
			"check that the browser image can start on this machine")

	case errors.Is(err, backend.ErrUnavailable):
		return runError(globals, "BACKEND_UNAVAILABLE", err.Error(),
			"start a browser backend or pass --launch-browser")

	case errors.Is(err, context.Canceled):
		return &exitError{code: ExitRunFailure, message: "interrupted"}
	}
	return runError(globals, "RUN_FAILED", err.Error())
}
