// Package insight assembles the outcome of one verification run.
package insight

import (
	"time"

	"github.com/aether-platform/aether-lens/internal/runner"
	"github.com/aether-platform/aether-lens/internal/strategy"
)

// SchemaVersion identifies the persisted insight layout.
const SchemaVersion = 1

// Status is the run-level verdict.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// Backend describes the session a run executed against.
type Backend struct {
	Kind      string `json:"kind"`
	Endpoint  string `json:"endpoint,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Insight is the assembled report of one run. Results keep plan order.
type Insight struct {
	SchemaVersion  int                      `json:"schemaVersion"`
	RunID          string                   `json:"run_id"`
	Status         Status                   `json:"status"`
	DiffRef        string                   `json:"diff_ref,omitempty"`
	Backend        Backend                  `json:"backend"`
	PlanSource     strategy.Source          `json:"plan_source"`
	Recommendation *strategy.Recommendation `json:"recommendation,omitempty"`
	Results        []runner.Result          `json:"results"`
	StartedAt      time.Time                `json:"started_at"`
	Duration       time.Duration            `json:"duration"`
	GeneratedAt    time.Time                `json:"generated_at"`
}

// RunInfo carries everything Assemble needs besides the results.
type RunInfo struct {
	RunID          string
	DiffRef        string
	Backend        Backend
	PlanSource     strategy.Source
	Recommendation *strategy.Recommendation
	StartedAt      time.Time
}

// Assemble builds an Insight from run results. The run fails when any
// strategy failed or could not execute; results pass through untouched.
func Assemble(info RunInfo, results []runner.Result, now time.Time) Insight {
	status := StatusPassed
	for _, res := range results {
		if res.Status != runner.StatusPassed {
			status = StatusFailed
			break
		}
	}

	return Insight{
		SchemaVersion:  SchemaVersion,
		RunID:          info.RunID,
		Status:         status,
		DiffRef:        info.DiffRef,
		Backend:        info.Backend,
		PlanSource:     info.PlanSource,
		Recommendation: info.Recommendation,
		Results:        results,
		StartedAt:      info.StartedAt,
		Duration:       now.Sub(info.StartedAt),
		GeneratedAt:    now,
	}
}

// Failed reports whether the run verdict is failing.
func (in Insight) Failed() bool { return in.Status == StatusFailed }

// Counts tallies results by outcome.
func (in Insight) Counts() (passed, failed, errored int) {
	for _, res := range in.Results {
		switch res.Status {
		case runner.StatusPassed:
			passed++
		case runner.StatusFailed:
			failed++
		case runner.StatusErrored:
			errored++
		}
	}
	return passed, failed, errored
}

// Sink persists assembled insights.
type Sink interface {
	Write(in Insight) (string, error)
}

// Discard is a Sink that keeps nothing.
type Discard struct{}

func (Discard) Write(Insight) (string, error) { return "", nil }
