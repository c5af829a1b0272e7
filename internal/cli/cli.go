// Package cli wires the aether-lens commands.
package cli

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/aether-platform/aether-lens/internal/config"
	"github.com/aether-platform/aether-lens/internal/logging"
)

// CLI is the kong command tree.
type CLI struct {
	Format  string `help:"Output format: text or ndjson" enum:"text,ndjson" default:"${config_format}"`
	Quiet   bool   `short:"q" help:"Suppress progress output"`
	Verbose bool   `short:"v" help:"Enable debug logging"`
	NoColor bool   `help:"Disable colored log output"`
	Dir     string `short:"C" default:"." help:"Project directory to operate in"`
	ConfigFile string `name:"config" placeholder:"PATH" help:"Load this config file instead of searching the project directory"`

	Run    RunCmd    `cmd:"" help:"Verify the working tree once and exit"`
	Watch  WatchCmd  `cmd:"" help:"Watch for changes and verify continuously"`
	Check  CheckCmd  `cmd:"" help:"Diagnose the environment and configuration"`
	Init   InitCmd   `cmd:"" help:"Write a starter configuration file"`
	Config ConfigCmd `cmd:"" help:"Inspect the effective configuration"`

	Schema     SchemaCmd     `cmd:"" help:"Print JSON Schema for the ndjson event types"`
	Completion CompletionCmd `cmd:"" help:"Generate shell completions"`
	Update     UpdateCmd     `cmd:"" help:"Show how to upgrade aether-lens"`
}

// ConfigCmd groups the configuration inspection subcommands.
type ConfigCmd struct {
	Show ConfigShowCmd `cmd:"" help:"Print the effective configuration"`
	Path ConfigPathCmd `cmd:"" help:"Print the configuration file path"`
}

// ConfigFileFromArgs finds the --config value before kong parses, so the
// loaded file can back flag defaults.
func ConfigFileFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return ""
}

// LoadConfig resolves the effective configuration: an explicit file when
// given, the directory search otherwise. A broken config is fatal at
// startup and must never be silently replaced by defaults.
func LoadConfig(dir, file string) (*config.Config, error) {
	if file != "" {
		return config.LoadFromFile(file)
	}
	return config.Load(dir)
}

// Globals carries shared flags, effective config and output streams into
// every command.
type Globals struct {
	Format  string
	Quiet   bool
	Verbose bool
	NoColor bool
	Dir     string
	Stdout  io.Writer
	Stderr  io.Writer
	Config  *config.Config
	Logger  *zap.SugaredLogger
}

// NewGlobalsWithConfig builds Globals from parsed flags and loaded config.
func NewGlobalsWithConfig(c *CLI, cfg *config.Config) *Globals {
	logger := logging.New(logging.Options{
		Verbose: c.Verbose,
		Quiet:   c.Quiet,
		Format:  c.Format,
		NoColor: c.NoColor,
	})
	return &Globals{
		Format:  c.Format,
		Quiet:   c.Quiet,
		Verbose: c.Verbose,
		NoColor: c.NoColor,
		Dir:     c.Dir,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Config:  cfg,
		Logger:  logger,
	}
}
