package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aether-platform/aether-lens/internal/backend"
	"github.com/aether-platform/aether-lens/internal/config"
	"github.com/aether-platform/aether-lens/internal/diff"
	"github.com/aether-platform/aether-lens/internal/insight"
	"github.com/aether-platform/aether-lens/internal/logging"
	"github.com/aether-platform/aether-lens/internal/pipeline"
	"github.com/aether-platform/aether-lens/internal/runner"
)

// testGlobals creates a Globals struct with captured stdout/stderr
func testGlobals(format string) (*Globals, *bytes.Buffer, *bytes.Buffer) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	return &Globals{
		Format: format,
		Dir:    ".",
		Stdout: stdout,
		Stderr: stderr,
		Config: config.Default(),
		Logger: logging.Nop(),
	}, stdout, stderr
}

func decodeEvents(t *testing.T, out *bytes.Buffer) []map[string]any {
	t.Helper()
	var events []map[string]any
	dec := json.NewDecoder(out)
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		events = append(events, m)
	}
	return events
}

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name    string
		flags   sharedFlags
		quiet   bool
		format  string
		wantErr string
	}{
		{name: "defaults are fine", format: "text"},
		{name: "quiet needs ndjson", format: "text", quiet: true, wantErr: "--quiet"},
		{name: "quiet with ndjson", format: "ndjson", quiet: true},
		{name: "unknown browser kind", format: "text",
			flags: sharedFlags{Browser: "firefox"}, wantErr: "unknown browser kind"},
		{name: "dry-run rejects launch", format: "text",
			flags: sharedFlags{DryRun: true, LaunchBrowser: true}, wantErr: "--dry-run"},
		{name: "dry-run rejects browser url", format: "text",
			flags: sharedFlags{DryRun: true, BrowserURL: "ws://x:1"}, wantErr: "--dry-run"},
		{name: "launch and url conflict", format: "text",
			flags: sharedFlags{Browser: "docker", LaunchBrowser: true, BrowserURL: "ws://x:1"}, wantErr: "mutually exclusive"},
		{name: "launch needs a managed kind", format: "text",
			flags: sharedFlags{Browser: "local", LaunchBrowser: true}, wantErr: "does not apply"},
		{name: "launch with k8s", format: "text",
			flags: sharedFlags{Browser: "k8s", LaunchBrowser: true}},
		{name: "unknown exec env", format: "text",
			flags: sharedFlags{ExecEnv: "podman"}, wantErr: "unknown execution env"},
		{name: "exec target needs env", format: "text",
			flags: sharedFlags{ExecTarget: "web"}, wantErr: "--exec-target"},
		{name: "exec target with env", format: "text",
			flags: sharedFlags{ExecEnv: "docker", ExecTarget: "web"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			globals, _, stderr := testGlobals(tt.format)
			globals.Quiet = tt.quiet

			err := validateFlags(globals, &tt.flags)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, ExitConfigError, ExitCode(err))
			assert.Contains(t, stderr.String(), "Error [INVALID_FLAGS]")
		})
	}
}

func TestResolveSettings(t *testing.T) {
	t.Run("config supplies defaults", func(t *testing.T) {
		globals, _, _ := testGlobals("text")

		s, err := resolveSettings(globals, &sharedFlags{})
		require.NoError(t, err)
		assert.Equal(t, backend.KindDocker, s.kind)
		assert.True(t, s.launch, "default config launches a managed docker browser")
		assert.Equal(t, "http://localhost:4321", s.baseURL)
		assert.Equal(t, []string{"auto"}, s.planNames)
		assert.True(t, s.history)
	})

	t.Run("flags win over config", func(t *testing.T) {
		globals, _, _ := testGlobals("text")

		s, err := resolveSettings(globals, &sharedFlags{
			Browser:     "k8s",
			Strategy:    []string{"visual:desktop", "command:build"},
			BaseURL:     "http://localhost:3000",
			Instruction: "focus on the header",
			NoHistory:   true,
		})
		require.NoError(t, err)
		assert.Equal(t, backend.KindK8s, s.kind)
		assert.Equal(t, []string{"visual:desktop", "command:build"}, s.planNames)
		assert.Equal(t, "http://localhost:3000", s.baseURL)
		assert.Equal(t, "focus on the header", s.instruction)
		assert.False(t, s.history)
	})

	t.Run("dry-run flag overrides the kind", func(t *testing.T) {
		globals, _, _ := testGlobals("text")

		s, err := resolveSettings(globals, &sharedFlags{Browser: "docker", DryRun: true})
		require.NoError(t, err)
		assert.Equal(t, backend.KindDryRun, s.kind)
		assert.True(t, s.dryRun)
		assert.True(t, s.planOnly, "--dry-run skips command execution")
		assert.False(t, s.launch, "dry-run never launches")
	})

	t.Run("dry-run backend alone still executes commands", func(t *testing.T) {
		globals, _, _ := testGlobals("text")
		globals.Config.Browser.Kind = "dry-run"

		s, err := resolveSettings(globals, &sharedFlags{})
		require.NoError(t, err)
		assert.Equal(t, backend.KindDryRun, s.kind)
		assert.True(t, s.dryRun)
		assert.False(t, s.planOnly, "only --dry-run itself skips commands")
	})

	t.Run("headless implies a managed docker browser", func(t *testing.T) {
		globals, _, _ := testGlobals("text")
		globals.Config.Browser.Kind = "local"
		globals.Config.Browser.Launch = false

		s, err := resolveSettings(globals, &sharedFlags{Headless: lo.ToPtr(true)})
		require.NoError(t, err)
		assert.Equal(t, backend.KindDocker, s.kind)
		assert.True(t, s.launch)
		assert.True(t, s.headless)
	})

	t.Run("explicit backend wins over headless", func(t *testing.T) {
		globals, _, _ := testGlobals("text")

		s, err := resolveSettings(globals, &sharedFlags{Headless: lo.ToPtr(true), Browser: "local"})
		require.NoError(t, err)
		assert.Equal(t, backend.KindLocal, s.kind)
		assert.True(t, s.headless)
	})

	t.Run("headless off keeps the configured backend headed", func(t *testing.T) {
		globals, _, _ := testGlobals("text")
		globals.Config.Browser.Kind = "local"

		s, err := resolveSettings(globals, &sharedFlags{Headless: lo.ToPtr(false)})
		require.NoError(t, err)
		assert.Equal(t, backend.KindLocal, s.kind)
		assert.False(t, s.headless)
	})

	t.Run("explicit endpoint disables launch", func(t *testing.T) {
		globals, _, _ := testGlobals("text")

		s, err := resolveSettings(globals, &sharedFlags{Browser: "docker", BrowserURL: "ws://remote:9222"})
		require.NoError(t, err)
		assert.Equal(t, "ws://remote:9222", s.endpoint)
		assert.False(t, s.launch)
	})

	t.Run("launch only applies to managed kinds", func(t *testing.T) {
		globals, _, _ := testGlobals("text")
		globals.Config.Browser.Launch = true

		s, err := resolveSettings(globals, &sharedFlags{Browser: "local"})
		require.NoError(t, err)
		assert.False(t, s.launch)
	})
}

func TestBuildPipeline(t *testing.T) {
	globals, _, _ := testGlobals("text")
	globals.Dir = t.TempDir()

	s, err := resolveSettings(globals, &sharedFlags{DryRun: true})
	require.NoError(t, err)

	orch, err := buildPipeline(globals, s, pipeline.Hooks{})
	require.NoError(t, err)
	require.NotNil(t, orch)
}

func TestBuildPipelineRejectsBadViewport(t *testing.T) {
	globals, _, stderr := testGlobals("text")
	globals.Config.DevLoop.BrowserTargets = map[string]config.BrowserTarget{
		"weird": {Viewport: "wide"},
	}

	s, err := resolveSettings(globals, &sharedFlags{DryRun: true})
	require.NoError(t, err)

	_, err = buildPipeline(globals, s, pipeline.Hooks{})
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCode(err))
	assert.Contains(t, stderr.String(), "CONFIG_INVALID")
}

func TestBuildPipelineDryRunBackendRunsCommands(t *testing.T) {
	globals, _, _ := testGlobals("text")
	globals.Dir = t.TempDir()
	globals.Config.Browser.Kind = "dry-run"
	globals.Config.DevLoop.Commands = map[string]string{"build": "echo ok > marker.txt"}
	t.Setenv(diff.EnvDiff, "diff --git a/main.go b/main.go\n+package main\n")
	t.Setenv(diff.EnvDiffB64, "")

	s, err := resolveSettings(globals, &sharedFlags{Strategy: []string{"command:build"}})
	require.NoError(t, err)

	orch, err := buildPipeline(globals, s, pipeline.Hooks{})
	require.NoError(t, err)

	// Visual strategies would be faked against this backend, but the build
	// command runs for real and its verdict counts.
	ins, err := orch.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ins.Failed())
	assert.FileExists(t, filepath.Join(globals.Dir, "marker.txt"))
}

func TestConfigFileFromArgs(t *testing.T) {
	assert.Equal(t, "a.yaml", ConfigFileFromArgs([]string{"run", "--config", "a.yaml"}))
	assert.Equal(t, "b.yaml", ConfigFileFromArgs([]string{"--config=b.yaml", "watch"}))
	assert.Equal(t, "", ConfigFileFromArgs([]string{"run", "-s", "auto"}))
	assert.Equal(t, "", ConfigFileFromArgs([]string{"run", "--config"}))
}

func TestLoadConfig(t *testing.T) {
	t.Run("explicit file wins over the directory search", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "elsewhere.yaml")
		require.NoError(t, os.WriteFile(path, []byte("strategy: visual:mobile\n"), 0o644))

		cfg, err := LoadConfig(t.TempDir(), path)
		require.NoError(t, err)
		assert.Equal(t, "visual:mobile", cfg.Strategy)
	})

	t.Run("malformed config is fatal, not defaulted", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("strategy: [unclosed\n"), 0o644))

		_, err := LoadConfig(t.TempDir(), path)
		require.ErrorIs(t, err, config.ErrInvalid)
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		_, err := LoadConfig(t.TempDir(), filepath.Join(t.TempDir(), "absent.yaml"))
		require.ErrorIs(t, err, config.ErrInvalid)
	})
}

func TestMapRunError(t *testing.T) {
	t.Run("clean tree is success", func(t *testing.T) {
		globals, _, stderr := testGlobals("text")
		r := newRenderer(globals)

		err := mapRunError(globals, r, fmt.Errorf("collect: %w", diff.ErrNoChanges))
		require.NoError(t, err)
		assert.Contains(t, stderr.String(), "Nothing to verify")
	})

	t.Run("clean tree emits info event in ndjson", func(t *testing.T) {
		globals, stdout, _ := testGlobals("ndjson")
		r := newRenderer(globals)

		require.NoError(t, mapRunError(globals, r, diff.ErrNoChanges))
		events := decodeEvents(t, stdout)
		require.Len(t, events, 1)
		assert.Equal(t, "info", events[0]["type"])
	})

	t.Run("no repository fails the run", func(t *testing.T) {
		globals, _, stderr := testGlobals("text")
		r := newRenderer(globals)

		err := mapRunError(globals, r, diff.ErrNoRepository)
		require.Error(t, err)
		assert.Equal(t, ExitRunFailure, ExitCode(err))
		assert.Contains(t, stderr.String(), "NO_REPOSITORY")
	})

	t.Run("backend unavailable", func(t *testing.T) {
		globals, _, stderr := testGlobals("text")
		r := newRenderer(globals)

		err := mapRunError(globals, r, fmt.Errorf("acquire: %w", backend.ErrUnavailable))
		require.Error(t, err)
		assert.Equal(t, ExitRunFailure, ExitCode(err))
		assert.Contains(t, stderr.String(), "BACKEND_UNAVAILABLE")
	})

	t.Run("session timeout", func(t *testing.T) {
		globals, _, stderr := testGlobals("text")
		r := newRenderer(globals)

		err := mapRunError(globals, r, backend.ErrSessionTimeout)
		require.Error(t, err)
		assert.Contains(t, stderr.String(), "SESSION_TIMEOUT")
	})

	t.Run("interrupt", func(t *testing.T) {
		globals, _, _ := testGlobals("text")
		r := newRenderer(globals)

		err := mapRunError(globals, r, context.Canceled)
		require.Error(t, err)
		assert.Equal(t, ExitRunFailure, ExitCode(err))
	})
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitRunFailure, ExitCode(errors.New("anything")))
	assert.Equal(t, ExitRunFailure, ExitCode(verdictError()))
	assert.Equal(t, ExitConfigError, ExitCode(&exitError{code: ExitConfigError, message: "bad"}))
}

func TestRendererInsightNDJSON(t *testing.T) {
	globals, stdout, _ := testGlobals("ndjson")
	r := newRenderer(globals)

	in := insight.Insight{
		RunID:      "0123456789abcdef",
		Status:     insight.StatusFailed,
		PlanSource: "config",
		DiffRef:    "abc12345",
		Results: []runner.Result{
			{Strategy: "visual:desktop", Kind: "visual", Status: runner.StatusPassed, Artifact: "shot.png", Duration: 1200 * time.Millisecond},
			{Strategy: "command:build", Kind: "command", Status: runner.StatusFailed, Detail: "exit status 1"},
		},
		Duration: 3 * time.Second,
	}
	r.insight(in, "/tmp/history/run.json")

	events := decodeEvents(t, stdout)
	require.Len(t, events, 3, "one event per result plus the run result")

	assert.Equal(t, "result", events[0]["type"])
	assert.Equal(t, "visual:desktop", events[0]["strategy"])
	assert.Equal(t, "shot.png", events[0]["artifact"])
	assert.EqualValues(t, 1, events[0]["schemaVersion"])

	assert.Equal(t, "result", events[1]["type"])
	assert.Equal(t, "exit status 1", events[1]["detail"])

	last := events[2]
	assert.Equal(t, "run_result", last["type"])
	assert.Equal(t, "failed", last["status"])
	assert.EqualValues(t, 1, last["passed"])
	assert.EqualValues(t, 1, last["failed"])
	assert.EqualValues(t, 0, last["errored"])
	assert.Equal(t, "abc12345", last["diff_ref"])
	assert.Equal(t, "/tmp/history/run.json", last["history"])
}

func TestRendererInsightText(t *testing.T) {
	globals, stdout, _ := testGlobals("text")
	r := newRenderer(globals)

	in := insight.Insight{
		RunID:      "0123456789abcdef",
		Status:     insight.StatusPassed,
		PlanSource: "ai",
		Results: []runner.Result{
			{Strategy: "visual:desktop", Kind: "visual", Status: runner.StatusPassed, Duration: time.Second},
		},
	}
	r.insight(in, "")

	text := stdout.String()
	assert.Contains(t, text, "Run 01234567 passed")
	assert.Contains(t, text, "visual:desktop")
	assert.Contains(t, text, "plan: ai")
}

func TestRendererWatchSummary(t *testing.T) {
	globals, stdout, _ := testGlobals("ndjson")
	r := newRenderer(globals)

	r.insight(insight.Insight{RunID: "a", Status: insight.StatusPassed}, "")
	r.insight(insight.Insight{RunID: "b", Status: insight.StatusFailed}, "")
	r.skip("c", diff.ErrNoChanges)
	r.watchSummary(time.Now().Add(-90 * time.Second))

	events := decodeEvents(t, stdout)
	last := events[len(events)-1]
	assert.Equal(t, "watch_summary", last["type"])
	assert.EqualValues(t, 2, last["runs"])
	assert.EqualValues(t, 1, last["passed"])
	assert.EqualValues(t, 1, last["failed"])
	assert.EqualValues(t, 1, last["skipped"])
	assert.InDelta(t, 90, last["duration_seconds"], 2)
}

func TestInitCmd(t *testing.T) {
	t.Run("writes a loadable config", func(t *testing.T) {
		globals, stdout, _ := testGlobals("text")
		globals.Dir = t.TempDir()

		cmd := &InitCmd{}
		require.NoError(t, cmd.Run(globals))
		assert.Contains(t, stdout.String(), "aether-lens.config.yaml")

		cfg, err := config.Load(globals.Dir)
		require.NoError(t, err, "the starter config must load cleanly")
		assert.Equal(t, "auto", cfg.Strategy)
		require.NoError(t, cfg.Validate())
	})

	t.Run("refuses to overwrite without force", func(t *testing.T) {
		globals, _, _ := testGlobals("text")
		globals.Dir = t.TempDir()

		require.NoError(t, (&InitCmd{}).Run(globals))
		err := (&InitCmd{}).Run(globals)
		require.Error(t, err)
		assert.Equal(t, ExitConfigError, ExitCode(err))

		require.NoError(t, (&InitCmd{Force: true}).Run(globals))
	})
}

func TestSchemaCmd(t *testing.T) {
	t.Run("covers every emitted event type", func(t *testing.T) {
		globals, stdout, _ := testGlobals("ndjson")
		require.NoError(t, (&SchemaCmd{}).Run(globals))

		var out struct {
			Definitions map[string]any `json:"definitions"`
		}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
		for _, typ := range []string{
			"phase", "trigger", "skip", "result", "run_result",
			"watch_summary", "watching", "check", "check_result", "info", "error",
		} {
			assert.Contains(t, out.Definitions, typ)
		}
	})

	t.Run("filters by type", func(t *testing.T) {
		globals, stdout, _ := testGlobals("ndjson")
		require.NoError(t, (&SchemaCmd{Type: []string{"result"}}).Run(globals))

		var out struct {
			Definitions map[string]any `json:"definitions"`
		}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
		require.Len(t, out.Definitions, 1)
		assert.Contains(t, out.Definitions, "result")
	})
}

func TestConfigPathCmd(t *testing.T) {
	t.Run("no config file", func(t *testing.T) {
		globals, stdout, _ := testGlobals("text")
		globals.Dir = t.TempDir()

		require.NoError(t, (&ConfigPathCmd{}).Run(globals))
		assert.Contains(t, stdout.String(), "No configuration file found")
	})

	t.Run("reports the effective file", func(t *testing.T) {
		globals, stdout, _ := testGlobals("text")
		globals.Dir = t.TempDir()
		path := filepath.Join(globals.Dir, "aether-lens.config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("strategy: auto\n"), 0o644))

		require.NoError(t, (&ConfigPathCmd{}).Run(globals))
		assert.Contains(t, stdout.String(), path)
	})
}

func TestCheckCmdDryRunConfig(t *testing.T) {
	dir := t.TempDir()
	globals, stdout, _ := testGlobals("ndjson")
	globals.Dir = dir
	globals.Config.Browser.Kind = "dry-run"
	globals.Config.Browser.Launch = false

	// No git repository and no dev server: warnings, never failures.
	require.NoError(t, (&CheckCmd{}).Run(globals))

	events := decodeEvents(t, stdout)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "check_result", last["type"])
	assert.Equal(t, true, last["ok"])

	var names []string
	for _, ev := range events[:len(events)-1] {
		require.Equal(t, "check", ev["type"])
		require.NotEqual(t, "fail", ev["status"], "check %v must not fail", ev["name"])
		names = append(names, ev["name"].(string))
	}
	assert.Contains(t, strings.Join(names, ","), "config")
}
