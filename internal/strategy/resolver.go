package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aether-platform/aether-lens/internal/diff"
)

// ErrAIUnavailable marks recommender outages. The resolver absorbs it into
// the fallback path; it never aborts a run.
var ErrAIUnavailable = errors.New("recommender unavailable")

// Recommender proposes strategy names for a change. Implementations return
// identifiers known to the registry, not strategy definitions.
type Recommender interface {
	Recommend(ctx context.Context, payload diff.Payload, instruction string) (Recommendation, error)
}

// Recommendation is the collaborator's verdict on a change.
type Recommendation struct {
	ChangeType string   `json:"change_type,omitempty"`
	Analysis   string   `json:"analysis,omitempty"`
	Strategies []string `json:"strategies,omitempty"`
	Reasoning  string   `json:"reasoning,omitempty"`
}

// Resolver turns the configured selection plus a change payload into a Plan.
type Resolver struct {
	registry *Registry
	rec      Recommender
	fallback []string
	timeout  time.Duration
	log      *zap.SugaredLogger
}

func NewResolver(registry *Registry, rec Recommender, fallback []string, timeout time.Duration, log *zap.SugaredLogger) *Resolver {
	if len(fallback) == 0 {
		fallback = []string{"visual:desktop"}
	}
	return &Resolver{
		registry: registry,
		rec:      rec,
		fallback: fallback,
		timeout:  timeout,
		log:      log,
	}
}

// Resolve builds the run plan. names is the configured selection: explicit
// strategy names returned verbatim in order, or the single element "auto" to
// consult the recommender. The Recommendation is zero unless the
// recommender answered. Resolution is deterministic given the configuration
// and the recommender's response.
func (r *Resolver) Resolve(ctx context.Context, names []string, payload diff.Payload, instruction string) (Plan, Recommendation, error) {
	if len(names) == 1 && strings.EqualFold(strings.TrimSpace(names[0]), Auto) {
		return r.resolveAuto(ctx, payload, instruction)
	}
	plan, err := r.lookupAll(SourceConfig, names)
	return plan, Recommendation{}, err
}

func (r *Resolver) resolveAuto(ctx context.Context, payload diff.Payload, instruction string) (Plan, Recommendation, error) {
	rctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rec, err := r.rec.Recommend(rctx, payload, instruction)
	if err == nil && len(rec.Strategies) == 0 {
		err = fmt.Errorf("%w: empty recommendation", ErrAIUnavailable)
	}
	if err != nil {
		r.log.Warnw("recommender unavailable, using fallback plan",
			"error", err, "fallback", r.fallback)
		plan, lerr := r.lookupAll(SourceFallback, r.fallback)
		return plan, Recommendation{}, lerr
	}

	// Unknown names are a configuration-integrity error, not an outage:
	// surfaced, never silently dropped.
	plan, err := r.lookupAll(SourceAI, rec.Strategies)
	if err != nil {
		return Plan{}, rec, err
	}
	return plan, rec, nil
}

func (r *Resolver) lookupAll(src Source, names []string) (Plan, error) {
	strategies := make([]Strategy, 0, len(names))
	for _, name := range names {
		s, err := r.registry.Lookup(name)
		if err != nil {
			return Plan{}, err
		}
		strategies = append(strategies, s)
	}
	return Plan{Source: src, Strategies: strategies}, nil
}
