package cli

import (
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/aether-platform/aether-lens/internal/config"
	"github.com/aether-platform/aether-lens/internal/diff"
	"github.com/aether-platform/aether-lens/internal/strategy"
)

// CheckCmd diagnoses whether a run could succeed in the current environment:
// configuration, version control, backend tooling and the app under test.
type CheckCmd struct{}

const (
	checkOK   = "ok"
	checkWarn = "warn"
	checkFail = "fail"
)

type checkRow struct {
	Name   string
	Status string
	Detail string
}

func (c *CheckCmd) Run(globals *Globals) error {
	rows := collectChecks(globals)
	failed := lo.CountBy(rows, func(row checkRow) bool { return row.Status == checkFail })

	r := newRenderer(globals)
	if r.ndjson() {
		for _, row := range rows {
			r.event(map[string]any{
				"type":   "check",
				"name":   row.Name,
				"status": row.Status,
				"detail": row.Detail,
			})
		}
		r.event(map[string]any{"type": "check_result", "ok": failed == 0, "failed": failed})
	} else {
		table := tablewriter.NewTable(globals.Stdout)
		table.Header([]string{"CHECK", "STATUS", "DETAIL"})
		for _, row := range rows {
			_ = table.Append([]string{row.Name, row.Status, row.Detail})
		}
		_ = table.Render()
		if failed == 0 && !globals.Quiet {
			fmt.Fprintln(globals.Stdout, "All checks passed.")
		}
	}

	if failed > 0 {
		return runError(globals, "CHECK_FAILED", fmt.Sprintf("%d of %d checks failed", failed, len(rows)))
	}
	return nil
}

func collectChecks(globals *Globals) []checkRow {
	cfg := globals.Config
	rows := make([]checkRow, 0, 8)

	if path := config.Path(globals.Dir); path != "" {
		rows = append(rows, checkRow{"config file", checkOK, path})
	} else {
		rows = append(rows, checkRow{"config file", checkWarn, "not found, using built-in defaults"})
	}

	if err := cfg.Validate(); err != nil {
		rows = append(rows, checkRow{"config", checkFail, err.Error()})
	} else {
		rows = append(rows, checkRow{"config", checkOK, "valid"})
	}

	rows = append(rows, strategyCheck(cfg))

	if _, err := git.PlainOpenWithOptions(globals.Dir, &git.PlainOpenOptions{DetectDotGit: true}); err != nil {
		rows = append(rows, checkRow{"git repository", checkWarn,
			fmt.Sprintf("%s is not inside a git repository; inject changes via %s", globals.Dir, diff.EnvDiff)})
	} else {
		rows = append(rows, checkRow{"git repository", checkOK, "found"})
	}

	rows = append(rows, toolingChecks(cfg)...)
	rows = append(rows, appCheck(cfg.AppBaseURL))

	return rows
}

func strategyCheck(cfg *config.Config) checkRow {
	registry, err := registryFromConfig(cfg)
	if err != nil {
		return checkRow{"strategies", checkFail, err.Error()}
	}

	names := append([]string{}, cfg.PlanNames()...)
	names = append(names, cfg.DevLoop.FallbackStrategies...)
	for _, name := range lo.Uniq(names) {
		if name == strategy.Auto {
			continue
		}
		if _, err := registry.Lookup(name); err != nil {
			return checkRow{"strategies", checkFail, err.Error()}
		}
	}
	return checkRow{"strategies", checkOK, strings.Join(names, ", ")}
}

// toolingChecks verifies the CLIs the configured backend would shell out to.
// Attaching to a remote endpoint needs neither.
func toolingChecks(cfg *config.Config) []checkRow {
	var rows []checkRow

	launching := cfg.Browser.Launch && cfg.Browser.URL == ""
	if (cfg.Browser.Kind == "docker" && launching) || cfg.DevLoop.ExecutionEnv == "docker" {
		rows = append(rows, binaryCheck("docker"))
	}
	if (cfg.Browser.Kind == "k8s" && launching) || cfg.DevLoop.ExecutionEnv == "k8s" {
		rows = append(rows, binaryCheck("kubectl"))
	}
	return rows
}

func binaryCheck(name string) checkRow {
	path, err := exec.LookPath(name)
	if err != nil {
		return checkRow{name, checkFail, "not found on PATH"}
	}
	return checkRow{name, checkOK, path}
}

func appCheck(baseURL string) checkRow {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL)
	if err != nil {
		return checkRow{"app", checkWarn, fmt.Sprintf("%s unreachable (is the dev server running?)", baseURL)}
	}
	defer resp.Body.Close()
	return checkRow{"app", checkOK, fmt.Sprintf("%s responded %d", baseURL, resp.StatusCode)}
}
