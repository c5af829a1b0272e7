// Package config loads the aether-lens configuration from files and
// environment.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// ErrInvalid marks configuration that cannot be used. It is fatal at
// startup; commands map it to the CONFIG_ERROR exit path.
var ErrInvalid = errors.New("invalid configuration")

// Known backend kinds and execution environments.
var (
	BrowserKinds  = []string{"local", "docker", "k8s", "inpod", "dry-run"}
	ExecutionEnvs = []string{"local", "docker", "k8s"}
)

// Output formats commands accept.
var Formats = []string{"text", "ndjson"}

// Config holds the full configuration surface.
type Config struct {
	// Format is the default output format, overridable per invocation.
	Format string `mapstructure:"format"`

	// Strategy selection: a single name, an explicit ordered list, or
	// "auto" to consult the recommender. Strategies wins when both are set.
	Strategy   string   `mapstructure:"strategy"`
	Strategies []string `mapstructure:"strategies"`

	// CustomInstruction is passed through to the recommender in auto mode.
	CustomInstruction string `mapstructure:"custom_instruction"`

	// AppBaseURL is the base URL visual strategies navigate to.
	AppBaseURL string `mapstructure:"app_base_url"`

	Browser BrowserConfig `mapstructure:"browser"`
	DevLoop DevLoopConfig `mapstructure:"dev_loop"`
}

// BrowserConfig describes the backend session target.
type BrowserConfig struct {
	Kind      string `mapstructure:"kind"`
	Launch    bool   `mapstructure:"launch"`
	URL       string `mapstructure:"url"`
	Image     string `mapstructure:"image"`
	Namespace string `mapstructure:"namespace"`
}

// BrowserTarget is one named visual variant (viewport + path).
type BrowserTarget struct {
	Viewport string `mapstructure:"viewport"`
	Path     string `mapstructure:"path"`
}

// DevLoopConfig holds watch-loop and execution tuning.
type DevLoopConfig struct {
	DebounceSeconds        int                      `mapstructure:"debounce_seconds"`
	BrowserTargets         map[string]BrowserTarget `mapstructure:"browser_targets"`
	Commands               map[string]string        `mapstructure:"commands"`
	FallbackStrategies     []string                 `mapstructure:"fallback_strategies"`
	ExecutionEnv           string                   `mapstructure:"execution_env"`
	ExecutionTarget        string                   `mapstructure:"execution_target"`
	Ignore                 []string                 `mapstructure:"ignore"`
	SessionTimeoutSeconds  int                      `mapstructure:"session_timeout_seconds"`
	StrategyTimeoutSeconds int                      `mapstructure:"strategy_timeout_seconds"`
	AITimeoutSeconds       int                      `mapstructure:"ai_timeout_seconds"`
	History                bool                     `mapstructure:"history"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Format:     "text",
		Strategy:   "auto",
		AppBaseURL: "http://localhost:4321",
		Browser: BrowserConfig{
			Kind:   "docker",
			Launch: true,
			Image:  "browserless/chrome:latest",
		},
		DevLoop: DevLoopConfig{
			DebounceSeconds:        2,
			FallbackStrategies:     []string{"visual:desktop"},
			ExecutionEnv:           "local",
			SessionTimeoutSeconds:  60,
			StrategyTimeoutSeconds: 120,
			AITimeoutSeconds:       30,
			History:                true,
		},
	}
}

// Load loads configuration for a target directory. The config file
// (aether-lens.config.{yaml,json,toml}) is searched in the target directory
// first, then the current directory. A missing file is not an error.
func Load(dir string) (*Config, error) {
	v := newViper(dir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}

	return unmarshal(v)
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	bindEnv(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	return unmarshal(v)
}

// Path returns the config file path that would be loaded for dir, or "".
func Path(dir string) string {
	v := newViper(dir)
	if err := v.ReadInConfig(); err != nil {
		return ""
	}
	return v.ConfigFileUsed()
}

func newViper(dir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("aether-lens.config")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")
	bindEnv(v)
	setDefaults(v)
	return v
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("AETHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.BindEnv("app_base_url", "APP_BASE_URL", "AETHER_APP_BASE_URL")
	v.BindEnv("strategy", "AETHER_STRATEGY")
	v.BindEnv("custom_instruction", "AETHER_CUSTOM_INSTRUCTION")
	v.BindEnv("browser.kind", "AETHER_BROWSER")
	v.BindEnv("browser.url", "AETHER_BROWSER_URL")
}

func setDefaults(v *viper.Viper) {
	cfg := Default()
	v.SetDefault("format", cfg.Format)
	v.SetDefault("strategy", cfg.Strategy)
	v.SetDefault("app_base_url", cfg.AppBaseURL)
	v.SetDefault("browser.kind", cfg.Browser.Kind)
	v.SetDefault("browser.launch", cfg.Browser.Launch)
	v.SetDefault("browser.image", cfg.Browser.Image)
	v.SetDefault("dev_loop.debounce_seconds", cfg.DevLoop.DebounceSeconds)
	v.SetDefault("dev_loop.fallback_strategies", cfg.DevLoop.FallbackStrategies)
	v.SetDefault("dev_loop.execution_env", cfg.DevLoop.ExecutionEnv)
	v.SetDefault("dev_loop.session_timeout_seconds", cfg.DevLoop.SessionTimeoutSeconds)
	v.SetDefault("dev_loop.strategy_timeout_seconds", cfg.DevLoop.StrategyTimeoutSeconds)
	v.SetDefault("dev_loop.ai_timeout_seconds", cfg.DevLoop.AITimeoutSeconds)
	v.SetDefault("dev_loop.history", cfg.DevLoop.History)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration surface. Any violation is ErrInvalid.
func (c *Config) Validate() error {
	if !lo.Contains(Formats, c.Format) {
		return fmt.Errorf("%w: unknown format %q (want one of %s)",
			ErrInvalid, c.Format, strings.Join(Formats, ", "))
	}
	if !lo.Contains(BrowserKinds, c.Browser.Kind) {
		return fmt.Errorf("%w: unknown browser kind %q (want one of %s)",
			ErrInvalid, c.Browser.Kind, strings.Join(BrowserKinds, ", "))
	}
	if !lo.Contains(ExecutionEnvs, c.DevLoop.ExecutionEnv) {
		return fmt.Errorf("%w: unknown execution_env %q (want one of %s)",
			ErrInvalid, c.DevLoop.ExecutionEnv, strings.Join(ExecutionEnvs, ", "))
	}
	if c.DevLoop.DebounceSeconds <= 0 {
		return fmt.Errorf("%w: dev_loop.debounce_seconds must be positive, got %d",
			ErrInvalid, c.DevLoop.DebounceSeconds)
	}
	for _, field := range []struct {
		name  string
		value int
	}{
		{"dev_loop.session_timeout_seconds", c.DevLoop.SessionTimeoutSeconds},
		{"dev_loop.strategy_timeout_seconds", c.DevLoop.StrategyTimeoutSeconds},
		{"dev_loop.ai_timeout_seconds", c.DevLoop.AITimeoutSeconds},
	} {
		if field.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalid, field.name, field.value)
		}
	}
	for name, target := range c.DevLoop.BrowserTargets {
		if _, _, err := ParseViewport(target.Viewport); err != nil {
			return fmt.Errorf("%w: browser_targets.%s: %v", ErrInvalid, name, err)
		}
	}
	for name, command := range c.DevLoop.Commands {
		if strings.TrimSpace(command) == "" {
			return fmt.Errorf("%w: commands.%s is empty", ErrInvalid, name)
		}
	}
	for _, s := range c.PlanNames() {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: empty strategy name", ErrInvalid)
		}
	}
	return nil
}

// PlanNames returns the configured strategy selection. An explicit list wins
// over the single-value form; an empty surface means "auto".
func (c *Config) PlanNames() []string {
	if len(c.Strategies) > 0 {
		return c.Strategies
	}
	if c.Strategy != "" {
		return []string{c.Strategy}
	}
	return []string{"auto"}
}

// ParseViewport parses "WxH" into integer dimensions.
func ParseViewport(s string) (w, h int, err error) {
	left, right, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("viewport %q is not WxH", s)
	}
	w, err = strconv.Atoi(strings.TrimSpace(left))
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("viewport %q has invalid width", s)
	}
	h, err = strconv.Atoi(strings.TrimSpace(right))
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("viewport %q has invalid height", s)
	}
	return w, h, nil
}

// Duration helpers.

func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DevLoop.DebounceSeconds) * time.Second
}

func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.DevLoop.SessionTimeoutSeconds) * time.Second
}

func (c *Config) StrategyTimeout() time.Duration {
	return time.Duration(c.DevLoop.StrategyTimeoutSeconds) * time.Second
}

func (c *Config) AITimeout() time.Duration {
	return time.Duration(c.DevLoop.AITimeoutSeconds) * time.Second
}
