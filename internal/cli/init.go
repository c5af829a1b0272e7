package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aether-platform/aether-lens/internal/config"
)

// InitCmd writes a commented starter configuration into the project
// directory.
type InitCmd struct {
	Force bool `help:"Overwrite an existing configuration file"`
}

const configTemplate = `# aether-lens configuration file
# All keys are optional; the values below are the defaults.

# Strategy selection: a name like visual:desktop or command:test, an explicit
# list under "strategies", or auto to let the recommender pick from the diff.
strategy: auto

# Base URL visual strategies navigate to. AETHER_APP_BASE_URL overrides.
app_base_url: http://localhost:4321

browser:
  # local | docker | k8s | inpod | dry-run
  kind: docker
  # Launch a managed browser for each session. Set url to attach to an
  # existing endpoint instead.
  launch: true
  image: browserless/chrome:latest
  # url: ws://localhost:9222
  # namespace: default

dev_loop:
  debounce_seconds: 2
  # Strategies used when the recommender is unavailable in auto mode.
  fallback_strategies:
    - visual:desktop
  # Where command strategies run: local | docker | k8s.
  execution_env: local
  # execution_target: my-app-container
  session_timeout_seconds: 60
  strategy_timeout_seconds: 120
  ai_timeout_seconds: 30
  history: true
  # Extra directories the watcher ignores (on top of the built-ins).
  # ignore:
  #   - dist
  # Named visual variants become visual:<name> strategies.
  # browser_targets:
  #   desktop:
  #     viewport: 1280x720
  #     path: /
  #   mobile:
  #     viewport: 375x812
  #     path: /
  # Named shell commands become command:<name> strategies.
  # commands:
  #   test: npm test
  #   lint: npm run lint
`

func (c *InitCmd) Run(globals *Globals) error {
	if existing := existingConfig(globals.Dir); existing != "" && !c.Force {
		return configError(globals, "CONFIG_EXISTS",
			fmt.Sprintf("%s already exists", existing), "pass --force to overwrite")
	}

	path := filepath.Join(globals.Dir, "aether-lens.config.yaml")
	if err := os.WriteFile(path, []byte(configTemplate), 0o644); err != nil {
		return runError(globals, "INIT_FAILED", err.Error())
	}

	if globals.Format == "ndjson" {
		newRenderer(globals).event(map[string]any{"type": "init", "path": path})
		return nil
	}
	fmt.Fprintf(globals.Stdout, "Wrote %s\n", path)
	if !globals.Quiet {
		fmt.Fprintln(globals.Stdout, "Edit it, then run 'aether-lens check' to verify the setup.")
	}
	return nil
}

func existingConfig(dir string) string {
	for _, ext := range []string{"yaml", "yml", "json", "toml"} {
		path := filepath.Join(dir, "aether-lens.config."+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigShowCmd prints the effective configuration after file and
// environment merging.
type ConfigShowCmd struct{}

func (c *ConfigShowCmd) Run(globals *Globals) error {
	cfg := globals.Config

	if globals.Format == "ndjson" {
		newRenderer(globals).event(map[string]any{
			"type":         "config",
			"strategy":     cfg.PlanNames(),
			"app_base_url": cfg.AppBaseURL,
			"browser": map[string]any{
				"kind":      cfg.Browser.Kind,
				"launch":    cfg.Browser.Launch,
				"url":       cfg.Browser.URL,
				"image":     cfg.Browser.Image,
				"namespace": cfg.Browser.Namespace,
			},
			"dev_loop": map[string]any{
				"debounce_seconds":         cfg.DevLoop.DebounceSeconds,
				"fallback_strategies":      cfg.DevLoop.FallbackStrategies,
				"execution_env":            cfg.DevLoop.ExecutionEnv,
				"execution_target":         cfg.DevLoop.ExecutionTarget,
				"session_timeout_seconds":  cfg.DevLoop.SessionTimeoutSeconds,
				"strategy_timeout_seconds": cfg.DevLoop.StrategyTimeoutSeconds,
				"ai_timeout_seconds":       cfg.DevLoop.AITimeoutSeconds,
				"history":                  cfg.DevLoop.History,
			},
		})
		return nil
	}

	out := globals.Stdout
	fmt.Fprintln(out, "Current Configuration:")
	fmt.Fprintf(out, "  strategy: %s\n", strings.Join(cfg.PlanNames(), ", "))
	fmt.Fprintf(out, "  app_base_url: %s\n", cfg.AppBaseURL)
	fmt.Fprintln(out, "Browser:")
	fmt.Fprintf(out, "  kind: %s\n", cfg.Browser.Kind)
	fmt.Fprintf(out, "  launch: %t\n", cfg.Browser.Launch)
	if cfg.Browser.URL != "" {
		fmt.Fprintf(out, "  url: %s\n", cfg.Browser.URL)
	}
	fmt.Fprintf(out, "  image: %s\n", cfg.Browser.Image)
	if cfg.Browser.Namespace != "" {
		fmt.Fprintf(out, "  namespace: %s\n", cfg.Browser.Namespace)
	}
	fmt.Fprintln(out, "Dev loop:")
	fmt.Fprintf(out, "  debounce: %s\n", cfg.Debounce())
	fmt.Fprintf(out, "  fallback_strategies: %s\n", strings.Join(cfg.DevLoop.FallbackStrategies, ", "))
	fmt.Fprintf(out, "  execution_env: %s\n", cfg.DevLoop.ExecutionEnv)
	if cfg.DevLoop.ExecutionTarget != "" {
		fmt.Fprintf(out, "  execution_target: %s\n", cfg.DevLoop.ExecutionTarget)
	}
	fmt.Fprintf(out, "  session_timeout: %s\n", cfg.SessionTimeout())
	fmt.Fprintf(out, "  strategy_timeout: %s\n", cfg.StrategyTimeout())
	fmt.Fprintf(out, "  ai_timeout: %s\n", cfg.AITimeout())
	fmt.Fprintf(out, "  history: %t\n", cfg.DevLoop.History)
	return nil
}

// ConfigPathCmd prints which configuration file is in effect.
type ConfigPathCmd struct{}

func (c *ConfigPathCmd) Run(globals *Globals) error {
	path := config.Path(globals.Dir)

	if globals.Format == "ndjson" {
		newRenderer(globals).event(map[string]any{"type": "config_path", "path": path})
		return nil
	}
	if path == "" {
		fmt.Fprintln(globals.Stdout, "No configuration file found (using built-in defaults)")
		return nil
	}
	fmt.Fprintf(globals.Stdout, "Config file: %s\n", path)
	return nil
}
