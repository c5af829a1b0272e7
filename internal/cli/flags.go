package cli

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/aether-platform/aether-lens/internal/config"
)

// sharedFlags shape a verification run; `run` and `watch` accept the same set.
type sharedFlags struct {
	Strategy      []string `short:"s" placeholder:"NAME" help:"Strategy to run (repeatable); 'auto' picks from the diff"`
	Instruction   string   `short:"i" help:"Extra instruction for automatic strategy selection"`
	BaseURL       string   `placeholder:"URL" help:"App base URL visual strategies navigate to"`
	Browser       string   `placeholder:"KIND" help:"Backend kind: local, docker, k8s, inpod, dry-run"`
	LaunchBrowser bool     `help:"Launch a managed browser container or pod"`
	BrowserURL    string   `placeholder:"WS-URL" help:"Attach to an already running browser endpoint"`
	DryRun        bool     `help:"Plan and report without touching a browser or running commands"`
	Headless      *bool    `help:"Run browsers headless (default true); --headless with no backend chosen implies a managed docker browser"`
	ExecEnv       string   `placeholder:"ENV" help:"Where command strategies run: local, docker, k8s"`
	ExecTarget    string   `placeholder:"TARGET" help:"Compose service or k8s workload for --exec-env"`
	NoHistory     bool     `help:"Skip writing run history under .aether"`
}

// validateFlags centralizes flag combinations so every command rejects the
// same mistakes the same way.
func validateFlags(globals *Globals, f *sharedFlags) error {
	if globals != nil && globals.Format == "text" && globals.Quiet {
		return configError(globals, "INVALID_FLAGS", "--quiet is only supported with ndjson output", "switch to --format ndjson or drop --quiet")
	}

	kind := f.Browser
	if kind == "" {
		kind = globals.Config.Browser.Kind
		if f.Headless != nil && *f.Headless && !f.DryRun {
			kind = "docker"
		}
	}
	if f.Browser != "" && !lo.Contains(config.BrowserKinds, f.Browser) {
		return configError(globals, "INVALID_FLAGS", fmt.Sprintf("unknown browser kind %q", f.Browser), "use one of local, docker, k8s, inpod, dry-run")
	}

	if f.DryRun && (f.LaunchBrowser || f.BrowserURL != "") {
		return configError(globals, "INVALID_FLAGS", "--dry-run cannot be combined with --launch-browser or --browser-url", "drop the browser flags or remove --dry-run")
	}
	if f.LaunchBrowser && f.BrowserURL != "" {
		return configError(globals, "INVALID_FLAGS", "--launch-browser and --browser-url are mutually exclusive", "launch a managed browser or attach to one, not both")
	}
	if !f.DryRun && f.LaunchBrowser && (kind == "local" || kind == "inpod" || kind == "dry-run") {
		return configError(globals, "INVALID_FLAGS", fmt.Sprintf("--launch-browser does not apply to the %s backend", kind), "use --browser docker or --browser k8s")
	}

	if f.ExecEnv != "" && !lo.Contains(config.ExecutionEnvs, f.ExecEnv) {
		return configError(globals, "INVALID_FLAGS", fmt.Sprintf("unknown execution env %q", f.ExecEnv), "use one of local, docker, k8s")
	}
	if f.ExecTarget != "" && f.ExecEnv == "" && globals.Config.DevLoop.ExecutionEnv == "local" {
		return configError(globals, "INVALID_FLAGS", "--exec-target needs --exec-env docker or k8s", "name the environment the target lives in")
	}

	return nil
}
