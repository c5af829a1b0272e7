package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/aether-platform/aether-lens/internal/pipeline"
	"github.com/aether-platform/aether-lens/internal/watcher"
)

// WatchCmd keeps a persistent session alive and re-verifies the tree after
// every quiet gap in filesystem activity.
type WatchCmd struct {
	sharedFlags `embed:""`

	Debounce time.Duration `help:"Quiet window after a change burst before a run starts" default:"0s"`
}

func (c *WatchCmd) Run(globals *Globals) error {
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

	window := c.Debounce
	if window <= 0 {
		window = globals.Config.Debounce()
	}

	w, err := watcher.New(globals.Dir, globals.Config.DevLoop.Ignore, globals.Logger)
	if err != nil {
		return runError(globals, "WATCH_FAILED", err.Error())
	}
	defer w.Close()

	r := newRenderer(globals)
	orch, err := buildPipeline(globals, s, pipeline.Hooks{
		OnPhase:   r.phase,
		OnTrigger: r.trigger,
		OnSkip:    r.skip,
		OnInsight: r.insight,
	})
	if err != nil {
		return err
	}

	deb := watcher.NewDebouncer(clock.New(), window, w.Events())
	go w.Run(ctx)
	go deb.Run(ctx)

	if r.ndjson() {
		r.event(map[string]any{
			"type":        "watching",
			"dir":         globals.Dir,
			"debounce_ms": window.Milliseconds(),
		})
	} else if !globals.Quiet {
		fmt.Fprintf(globals.Stderr, "Watching %s (debounce %s)\n", globals.Dir, window)
		fmt.Fprintln(globals.Stderr, "Press Ctrl+C to stop")
	}

	started := time.Now()
	if err := orch.Watch(ctx, deb.Triggers()); err != nil {
		return runError(globals, "WATCH_FAILED", err.Error())
	}
	r.watchSummary(started)
	return nil
}
