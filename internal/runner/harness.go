package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aether-platform/aether-lens/internal/backend"
	"github.com/aether-platform/aether-lens/internal/strategy"
)

// DefaultStrategyTimeout bounds a single strategy execution.
const DefaultStrategyTimeout = 2 * time.Minute

// Harness runs a whole plan. Visual strategies run concurrently since they
// only hold independent browser tabs; command strategies run sequentially in
// plan order so their output stays readable and builds do not race.
type Harness struct {
	Commands *CommandRunner
	Visuals  *VisualRunner
	Timeout  time.Duration
	Log      *zap.SugaredLogger
}

// Execute runs every strategy in the plan and returns one result per
// strategy, index-aligned with the plan. A strategy failure or panic never
// aborts the others.
func (h *Harness) Execute(ctx context.Context, sess *backend.Session, plan strategy.Plan) []Result {
	results := make([]Result, len(plan.Strategies))

	var wg sync.WaitGroup
	for i, strat := range plan.Strategies {
		if strat.Kind != strategy.KindVisual {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = h.runOne(ctx, sess, strat)
		}()
	}

	for i, strat := range plan.Strategies {
		if strat.Kind == strategy.KindVisual {
			continue
		}
		results[i] = h.runOne(ctx, sess, strat)
	}

	wg.Wait()
	return results
}

func (h *Harness) runOne(ctx context.Context, sess *backend.Session, strat strategy.Strategy) (res Result) {
	started := time.Now()
	defer func() {
		if p := recover(); p != nil {
			h.Log.Errorw("strategy panicked", "strategy", strat.Name, "panic", p)
			res = Result{
				Strategy:  strat.Name,
				Kind:      string(strat.Kind),
				Status:    StatusErrored,
				Detail:    fmt.Sprintf("panic: %v", p),
				StartedAt: started,
				Duration:  time.Since(started),
			}
		}
	}()

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultStrategyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch strat.Kind {
	case strategy.KindCommand:
		return h.Commands.Run(ctx, strat)
	case strategy.KindVisual:
		return h.Visuals.Run(ctx, sess, strat)
	}
	return Result{
		Strategy:  strat.Name,
		Kind:      string(strat.Kind),
		Status:    StatusErrored,
		Detail:    fmt.Sprintf("no runner for strategy kind %q", strat.Kind),
		StartedAt: started,
	}
}
