// Package runner executes verification strategies against a backend session.
package runner

import "time"

// Status classifies one strategy execution.
type Status string

const (
	// StatusPassed means the strategy ran and its check held.
	StatusPassed Status = "passed"
	// StatusFailed means the strategy ran and its check did not hold.
	StatusFailed Status = "failed"
	// StatusErrored means the strategy could not be executed to completion.
	StatusErrored Status = "errored"
)

// Result is the outcome of one strategy. A plan of N strategies always
// produces exactly N results, in plan order.
type Result struct {
	Strategy  string        `json:"strategy"`
	Kind      string        `json:"kind"`
	Status    Status        `json:"status"`
	Detail    string        `json:"detail,omitempty"`
	Artifact  string        `json:"artifact,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Ok reports whether the strategy both executed and passed.
func (r Result) Ok() bool { return r.Status == StatusPassed }
