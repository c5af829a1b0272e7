package cli

import (
	"encoding/json"
	"strings"
)

// SchemaCmd outputs JSON Schema for the ndjson event types, so agents can
// validate what run, watch and check emit.
type SchemaCmd struct {
	Type []string `short:"t" help:"Event types to include (phase,trigger,skip,result,run_result,watch_summary,watching,check,check_result,info,error). Default: all"`
}

// eventSchemas maps every emitted event type to its schema definition.
func eventSchemas() map[string]any {
	return map[string]any{
		"phase":         phaseSchema(),
		"trigger":       triggerSchema(),
		"skip":          skipSchema(),
		"result":        resultSchema(),
		"run_result":    runResultSchema(),
		"watch_summary": watchSummarySchema(),
		"watching":      watchingSchema(),
		"check":         checkSchema(),
		"check_result":  checkResultSchema(),
		"info":          infoSchema(),
		"error":         errSchema(),
	}
}

// Run executes the schema command
func (c *SchemaCmd) Run(globals *Globals) error {
	schemas := eventSchemas()

	typesToOutput := c.Type
	if len(typesToOutput) == 0 {
		typesToOutput = []string{
			"phase", "trigger", "skip", "result", "run_result",
			"watch_summary", "watching", "check", "check_result", "info", "error",
		}
	}

	out := map[string]any{
		"$schema":     "http://json-schema.org/draft-07/schema#",
		"title":       "aether-lens Output Schemas",
		"description": "JSON Schema definitions for all aether-lens NDJSON event types",
		"definitions": map[string]any{},
	}

	defs := out["definitions"].(map[string]any)
	for _, t := range typesToOutput {
		t = strings.ToLower(strings.TrimSpace(t))
		if schema, ok := schemas[t]; ok {
			defs[t] = schema
		}
	}

	encoder := json.NewEncoder(globals.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

// schemaObject cuts the boilerplate shared by every event definition: all
// events are objects carrying schemaVersion and a const type discriminator.
func schemaObject(typeName, title, description string, properties map[string]any, required ...string) map[string]any {
	props := map[string]any{
		"type": map[string]any{
			"type":  "string",
			"const": typeName,
		},
		"schemaVersion": map[string]any{
			"type":        "integer",
			"description": "Event layout version",
		},
	}
	for k, v := range properties {
		props[k] = v
	}
	return map[string]any{
		"type":        "object",
		"title":       title,
		"description": description,
		"properties":  props,
		"required":    append([]string{"type", "schemaVersion"}, required...),
	}
}

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func integer(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

func boolean(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

func phaseSchema() map[string]any {
	return schemaObject("phase", "Pipeline Phase", "Progress marker for one run of the pipeline",
		map[string]any{
			"run_id": str("Run identifier, stable across all events of one run"),
			"phase": map[string]any{
				"type": "string",
				"enum": []string{
					"IDLE", "COLLECTING_DIFF", "RESOLVING_STRATEGY",
					"ACQUIRING_SESSION", "EXECUTING", "RELEASING", "ASSEMBLING",
				},
				"description": "Pipeline phase just entered",
			},
		},
		"run_id", "phase")
}

func triggerSchema() map[string]any {
	return schemaObject("trigger", "Change Trigger", "Filesystem change that triggered a run in watch mode",
		map[string]any{
			"paths": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Paths that changed within the debounce window",
			},
			"at": map[string]any{
				"type":        "string",
				"format":      "date-time",
				"description": "When the trigger fired",
			},
		},
		"paths", "at")
}

func skipSchema() map[string]any {
	return schemaObject("skip", "Run Skipped", "A run ended early with nothing to verify",
		map[string]any{
			"run_id": str("Run identifier"),
			"reason": str("Why the run was skipped"),
		},
		"run_id", "reason")
}

func resultSchema() map[string]any {
	return schemaObject("result", "Strategy Result", "Outcome of one verification strategy",
		map[string]any{
			"run_id":   str("Run identifier"),
			"strategy": str("Strategy name, e.g. visual:desktop"),
			"kind": map[string]any{
				"type":        "string",
				"enum":        []string{"visual", "command"},
				"description": "How the strategy executes",
			},
			"status": map[string]any{
				"type":        "string",
				"enum":        []string{"passed", "failed", "errored"},
				"description": "Verification outcome",
			},
			"duration_ms": integer("Strategy execution time in milliseconds"),
			"artifact":    str("Path to a captured artifact, e.g. a screenshot"),
			"detail":      str("Command output or failure detail"),
		},
		"run_id", "strategy", "kind", "status", "duration_ms")
}

func runResultSchema() map[string]any {
	return schemaObject("run_result", "Run Result", "Aggregated verdict for one run",
		map[string]any{
			"run_id": str("Run identifier"),
			"status": map[string]any{
				"type":        "string",
				"enum":        []string{"passed", "failed"},
				"description": "Overall verdict; failed when any strategy did not pass",
			},
			"plan_source": map[string]any{
				"type":        "string",
				"enum":        []string{"config", "ai", "fallback"},
				"description": "How the strategy plan was derived",
			},
			"passed":      integer("Number of passed strategies"),
			"failed":      integer("Number of failed strategies"),
			"errored":     integer("Number of errored strategies"),
			"duration_ms": integer("Run duration in milliseconds"),
			"diff_ref":    str("Base reference the analyzed diff was taken against"),
			"history":     str("Path to the persisted insight file"),
		},
		"run_id", "status", "plan_source", "passed", "failed", "errored", "duration_ms")
}

func watchSummarySchema() map[string]any {
	return schemaObject("watch_summary", "Watch Summary", "Totals for a watch session, emitted on shutdown",
		map[string]any{
			"runs":             integer("Completed verification runs"),
			"passed":           integer("Runs that passed"),
			"failed":           integer("Runs that failed"),
			"skipped":          integer("Triggers skipped with nothing to verify"),
			"duration_seconds": integer("Watch session length in seconds"),
		},
		"runs", "passed", "failed", "skipped", "duration_seconds")
}

func watchingSchema() map[string]any {
	return schemaObject("watching", "Watching", "Watch mode is active and waiting for changes",
		map[string]any{
			"dir":         str("Directory under watch"),
			"debounce_ms": integer("Debounce window in milliseconds"),
		},
		"dir", "debounce_ms")
}

func checkSchema() map[string]any {
	return schemaObject("check", "Environment Check", "One row of the environment diagnosis",
		map[string]any{
			"name": str("What was checked, e.g. config or docker"),
			"status": map[string]any{
				"type":        "string",
				"enum":        []string{"ok", "warn", "fail"},
				"description": "Check outcome; warn never fails the command",
			},
			"detail": str("Human-readable finding"),
		},
		"name", "status", "detail")
}

func checkResultSchema() map[string]any {
	return schemaObject("check_result", "Check Result", "Aggregated environment diagnosis",
		map[string]any{
			"ok":     boolean("True when no required check failed"),
			"failed": integer("Number of failed checks"),
		},
		"ok", "failed")
}

func infoSchema() map[string]any {
	return schemaObject("info", "Info", "Informational notice, e.g. a clean tree with nothing to verify",
		map[string]any{
			"message": str("Human-readable notice"),
		},
		"message")
}

func errSchema() map[string]any {
	return schemaObject("error", "Error", "Terminal failure of the invoked command",
		map[string]any{
			"code":    str("Stable error code, e.g. BACKEND_UNAVAILABLE or UNKNOWN_STRATEGY"),
			"message": str("Human-readable error description"),
			"hint":    str("Suggested next step"),
		},
		"code", "message")
}
