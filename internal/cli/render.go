package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/aether-platform/aether-lens/internal/insight"
	"github.com/aether-platform/aether-lens/internal/pipeline"
	"github.com/aether-platform/aether-lens/internal/watcher"
)

// eventSchemaVersion identifies the ndjson event layout.
const eventSchemaVersion = 1

// renderer emits run progress and results, honoring the output format:
// ndjson events on stdout for agents, tables on stdout for humans. It also
// tallies outcomes so watch mode can report session totals on shutdown.
type renderer struct {
	globals *Globals
	enc     *json.Encoder

	runs    int
	passed  int
	failed  int
	skipped int
}

func newRenderer(globals *Globals) *renderer {
	return &renderer{globals: globals, enc: json.NewEncoder(globals.Stdout)}
}

func (r *renderer) ndjson() bool { return r.globals.Format == "ndjson" }

func (r *renderer) event(m map[string]any) {
	m["schemaVersion"] = eventSchemaVersion
	_ = r.enc.Encode(m)
}

func (r *renderer) errorEvent(code, message string, hint ...string) {
	m := map[string]any{"type": "error", "code": code, "message": message}
	if len(hint) > 0 && hint[0] != "" {
		m["hint"] = hint[0]
	}
	r.event(m)
}

func (r *renderer) phase(runID string, phase pipeline.Phase) {
	if r.ndjson() {
		r.event(map[string]any{"type": "phase", "run_id": runID, "phase": string(phase)})
	}
}

func (r *renderer) trigger(trig watcher.Trigger) {
	if r.ndjson() {
		r.event(map[string]any{
			"type":  "trigger",
			"paths": trig.Paths,
			"at":    trig.At.Format(time.RFC3339),
		})
	}
}

func (r *renderer) skip(runID string, reason error) {
	r.skipped++
	if r.ndjson() {
		r.event(map[string]any{"type": "skip", "run_id": runID, "reason": reason.Error()})
		return
	}
	if !r.globals.Quiet {
		fmt.Fprintf(r.globals.Stderr, "Run skipped: %s\n", reason)
	}
}

func (r *renderer) insight(in insight.Insight, historyPath string) {
	r.runs++
	if in.Failed() {
		r.failed++
	} else {
		r.passed++
	}
	if r.ndjson() {
		for _, res := range in.Results {
			m := map[string]any{
				"type":        "result",
				"run_id":      in.RunID,
				"strategy":    res.Strategy,
				"kind":        res.Kind,
				"status":      string(res.Status),
				"duration_ms": res.Duration.Milliseconds(),
			}
			if res.Artifact != "" {
				m["artifact"] = res.Artifact
			}
			if res.Detail != "" {
				m["detail"] = res.Detail
			}
			r.event(m)
		}

		passed, failed, errored := in.Counts()
		m := map[string]any{
			"type":        "run_result",
			"run_id":      in.RunID,
			"status":      string(in.Status),
			"plan_source": string(in.PlanSource),
			"passed":      passed,
			"failed":      failed,
			"errored":     errored,
			"duration_ms": in.Duration.Milliseconds(),
		}
		if in.DiffRef != "" {
			m["diff_ref"] = in.DiffRef
		}
		if historyPath != "" {
			m["history"] = historyPath
		}
		r.event(m)
		return
	}

	r.insightText(in, historyPath)
}

func (r *renderer) insightText(in insight.Insight, historyPath string) {
	out := r.globals.Stdout

	header := fmt.Sprintf("Run %s %s in %s", shortID(in.RunID), in.Status, in.Duration.Round(10*time.Millisecond))
	if in.DiffRef != "" {
		header += fmt.Sprintf(" (plan: %s, diff: %s)", in.PlanSource, in.DiffRef)
	} else {
		header += fmt.Sprintf(" (plan: %s)", in.PlanSource)
	}
	fmt.Fprintln(out, header)

	if len(in.Results) > 0 {
		table := tablewriter.NewTable(out)
		table.Header([]string{"STRATEGY", "KIND", "STATUS", "DURATION", "DETAIL"})
		for _, res := range in.Results {
			detail := res.Artifact
			if detail == "" {
				detail = firstLine(res.Detail)
			}
			_ = table.Append([]string{
				res.Strategy,
				res.Kind,
				string(res.Status),
				res.Duration.Round(10 * time.Millisecond).String(),
				clamp(detail, 60),
			})
		}
		_ = table.Render()
	}

	if historyPath != "" && !r.globals.Quiet {
		fmt.Fprintf(out, "History: %s\n", historyPath)
	}
}

// watchSummary reports session totals when a watch loop shuts down.
func (r *renderer) watchSummary(started time.Time) {
	if r.ndjson() {
		r.event(map[string]any{
			"type":             "watch_summary",
			"runs":             r.runs,
			"passed":           r.passed,
			"failed":           r.failed,
			"skipped":          r.skipped,
			"duration_seconds": int(time.Since(started).Seconds()),
		})
		return
	}
	if !r.globals.Quiet {
		fmt.Fprintf(r.globals.Stderr, "Watched for %s: %d runs (%d passed, %d failed), %d skipped\n",
			time.Since(started).Round(time.Second), r.runs, r.passed, r.failed, r.skipped)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func clamp(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
