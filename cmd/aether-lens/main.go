package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/aether-platform/aether-lens/internal/cli"
	"github.com/aether-platform/aether-lens/internal/config"
)

const quickStart = `aether-lens - live verification loop for web projects

Quick start:
  aether-lens init                      Write a starter config
  aether-lens run --dry-run             Verify pending changes once
  aether-lens watch                     Re-verify on every save

For help:
  aether-lens --help                    All commands and flags
  aether-lens check                     Diagnose the environment
`

func main() {
	// Show quick start if no args provided
	if len(os.Args) == 1 {
		fmt.Print(quickStart)
		return
	}

	// Load configuration before parsing so config values can back flag
	// defaults. Flags win when both are set. A broken config file stops
	// the process; defaults never paper over a typo.
	configFile := cli.ConfigFileFromArgs(os.Args[1:])
	cfg, err := cli.LoadConfig(".", configFile)
	if err != nil {
		fatalConfig(err)
	}

	var c cli.CLI

	vars := kong.Vars{
		"config_format": cfg.Format,
	}

	ctx := kong.Parse(&c,
		kong.Name("aether-lens"),
		kong.Description("aether-lens: verify web changes as you make them\n\nAI agents: use --format ndjson for machine-readable progress events"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		vars,
	)

	// -C switches the project directory after the initial load; the config
	// that counts lives there. An explicit --config file already won.
	if c.Dir != "." && configFile == "" {
		if cfg, err = config.Load(c.Dir); err != nil {
			fatalConfig(err)
		}
	}

	globals := cli.NewGlobalsWithConfig(&c, cfg)
	os.Exit(cli.ExitCode(ctx.Run(globals)))
}

func fatalConfig(err error) {
	fmt.Fprintf(os.Stderr, "Error [CONFIG_INVALID]: %v\n", err)
	os.Exit(cli.ExitConfigError)
}
