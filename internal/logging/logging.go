// Package logging builds the process-wide zap logger from CLI globals.
package logging

import (
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options control logger construction.
type Options struct {
	Verbose bool
	Quiet   bool
	Format  string // "text" or "ndjson"
	NoColor bool
}

// New builds the logger. Text format on an interactive stderr gets the
// console encoder; everything else emits JSON lines so stdout stays
// machine-readable.
func New(opts Options) *zap.SugaredLogger {
	level := zap.InfoLevel
	switch {
	case opts.Verbose:
		level = zap.DebugLevel
	case opts.Quiet:
		level = zap.WarnLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true

	if opts.Format != "ndjson" && isatty.IsTerminal(os.Stderr.Fd()) {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		if !opts.NoColor {
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

// Nop returns a silent logger for tests.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
