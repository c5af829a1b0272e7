package cli

import (
	"fmt"
	"path/filepath"

	"github.com/aether-platform/aether-lens/internal/backend"
	"github.com/aether-platform/aether-lens/internal/config"
	"github.com/aether-platform/aether-lens/internal/diff"
	"github.com/aether-platform/aether-lens/internal/insight"
	"github.com/aether-platform/aether-lens/internal/pipeline"
	"github.com/aether-platform/aether-lens/internal/runner"
	"github.com/aether-platform/aether-lens/internal/strategy"
)

// settings is the effective run shape after merging flags over config.
type settings struct {
	kind        backend.Kind
	launch      bool
	endpoint    string
	image       string
	namespace   string
	baseURL     string
	planNames   []string
	instruction string
	execEnv     string
	execTarget  string
	headless    bool
	history     bool
	dryRun      bool // backend kind is dry-run: visual strategies log instead of driving a browser
	planOnly    bool // explicit --dry-run: nothing executes, commands included
}

// resolveSettings merges command flags over the loaded configuration.
// Flags always win; the config supplies everything left unset.
func resolveSettings(globals *Globals, f *sharedFlags) (settings, error) {
	cfg := globals.Config

	kindName := cfg.Browser.Kind
	impliedLaunch := false
	if f.Browser != "" {
		kindName = f.Browser
	} else if f.Headless != nil && *f.Headless {
		// --headless with no backend chosen is shorthand for a managed
		// docker browser.
		kindName = string(backend.KindDocker)
		impliedLaunch = true
	}
	if f.DryRun {
		kindName = string(backend.KindDryRun)
	}
	kind, err := backend.ParseKind(kindName)
	if err != nil {
		return settings{}, configError(globals, "CONFIG_INVALID", err.Error())
	}

	s := settings{
		kind:        kind,
		image:       cfg.Browser.Image,
		namespace:   cfg.Browser.Namespace,
		baseURL:     cfg.AppBaseURL,
		planNames:   cfg.PlanNames(),
		instruction: cfg.CustomInstruction,
		execEnv:     cfg.DevLoop.ExecutionEnv,
		execTarget:  cfg.DevLoop.ExecutionTarget,
		headless:    f.Headless == nil || *f.Headless,
		history:     cfg.DevLoop.History && !f.NoHistory,
		dryRun:      kind == backend.KindDryRun,
		planOnly:    f.DryRun,
	}

	s.endpoint = cfg.Browser.URL
	if f.BrowserURL != "" {
		s.endpoint = f.BrowserURL
	}
	// An explicit endpoint means attach, never launch.
	s.launch = (f.LaunchBrowser || cfg.Browser.Launch || impliedLaunch) && s.endpoint == ""
	if kind != backend.KindDocker && kind != backend.KindK8s {
		s.launch = false
	}

	if len(f.Strategy) > 0 {
		s.planNames = f.Strategy
	}
	if f.BaseURL != "" {
		s.baseURL = f.BaseURL
	}
	if f.Instruction != "" {
		s.instruction = f.Instruction
	}
	if f.ExecEnv != "" {
		s.execEnv = f.ExecEnv
		s.execTarget = f.ExecTarget
	} else if f.ExecTarget != "" {
		s.execTarget = f.ExecTarget
	}

	return s, nil
}

// registryFromConfig folds the configured targets and commands over the
// built-in strategies.
func registryFromConfig(cfg *config.Config) (*strategy.Registry, error) {
	targets := make(map[string]strategy.VisualTarget, len(cfg.DevLoop.BrowserTargets))
	for label, tgt := range cfg.DevLoop.BrowserTargets {
		w, h, err := config.ParseViewport(tgt.Viewport)
		if err != nil {
			return nil, fmt.Errorf("browser target %q: %w", label, err)
		}
		targets[label] = strategy.VisualTarget{ViewportW: w, ViewportH: h, Path: tgt.Path}
	}
	return strategy.NewRegistry(targets, cfg.DevLoop.Commands), nil
}

// buildPipeline assembles the orchestrator for one command invocation.
func buildPipeline(globals *Globals, s settings, hooks pipeline.Hooks) (*pipeline.Orchestrator, error) {
	cfg := globals.Config
	log := globals.Logger

	registry, err := registryFromConfig(cfg)
	if err != nil {
		return nil, configError(globals, "CONFIG_INVALID", err.Error(), "use WIDTHxHEIGHT, e.g. 1280x720")
	}

	resolver := strategy.NewResolver(
		registry,
		strategy.NewHeuristicRecommender(registry),
		cfg.DevLoop.FallbackStrategies,
		cfg.AITimeout(),
		log,
	)

	mgr := backend.NewManager(backend.Descriptor{
		Kind:          s.kind,
		Endpoint:      s.endpoint,
		LaunchManaged: s.launch,
		Image:         s.image,
		Namespace:     s.namespace,
	}, backend.Options{
		Log:            log,
		StartupTimeout: cfg.SessionTimeout(),
	})

	execEnv, err := runner.NewExecEnv(s.execEnv, s.execTarget, s.namespace)
	if err != nil {
		return nil, configError(globals, "CONFIG_INVALID", err.Error())
	}

	var driver runner.Driver
	if s.dryRun {
		driver = &runner.DryRunDriver{Log: log}
	} else {
		driver = &runner.CDPDriver{
			ArtifactDir: filepath.Join(globals.Dir, ".aether", "artifacts"),
			Headless:    s.headless,
			Log:         log,
		}
	}

	harness := &runner.Harness{
		Commands: &runner.CommandRunner{Env: execEnv, Dir: globals.Dir, DryRun: s.planOnly, Log: log},
		Visuals:  &runner.VisualRunner{Driver: driver, BaseURL: s.baseURL, Log: log},
		Timeout:  cfg.StrategyTimeout(),
		Log:      log,
	}

	var sink insight.Sink = insight.Discard{}
	if s.history {
		sink = insight.NewHistorySink(globals.Dir)
	}

	return pipeline.New(pipeline.Deps{
		Diff:        diff.NewCollector(globals.Dir, log),
		Resolver:    resolver,
		Backend:     mgr,
		Harness:     harness,
		Sink:        sink,
		PlanNames:   s.planNames,
		Instruction: s.instruction,
		Log:         log,
		Hooks:       hooks,
	}), nil
}
