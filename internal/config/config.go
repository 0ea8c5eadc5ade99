// Package config loads runtime configuration from config.yaml and the
// environment, with .skillflow/.env layered underneath.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	DB struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"db"`

	Platform struct {
		BaseURL   string `mapstructure:"base_url"`
		APIKey    string `mapstructure:"api_key"`
		AccountID string `mapstructure:"account_id"`
	} `mapstructure:"platform"`

	Engine struct {
		Command        string `mapstructure:"command"`
		Model          string `mapstructure:"model"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"engine"`

	Orchestrator struct {
		StepDelayMillis int    `mapstructure:"step_delay_millis"`
		WorkDirRoot     string `mapstructure:"workdir_root"`
	} `mapstructure:"orchestrator"`

	UI struct {
		Verbose bool   `mapstructure:"verbose"`
		Format  string `mapstructure:"format"`
	} `mapstructure:"ui"`
}

// Load reads configuration from config.yaml (cwd or ./config) and the
// environment. SKILLFLOW_* environment variables override file values.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath(".skillflow")
	v.SetEnvPrefix("skillflow")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; defaults plus env carry the config.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Platform.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Platform.BaseURL), "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8090")
	v.SetDefault("engine.command", "claude")
	v.SetDefault("engine.timeout_seconds", 600)
	v.SetDefault("orchestrator.step_delay_millis", 1000)
	v.SetDefault("ui.format", "text")
	v.SetDefault("platform.base_url", "https://backend.composio.dev")
}

// Validate performs validation beyond struct tags.
func (c *Config) Validate() error {
	if c.Engine.Command == "" {
		return fmt.Errorf("engine command must not be empty")
	}
	if c.Engine.TimeoutSeconds <= 0 {
		return fmt.Errorf("engine timeout must be positive, got %d", c.Engine.TimeoutSeconds)
	}
	switch c.UI.Format {
	case "text", "json":
		// OK
	default:
		return fmt.Errorf("invalid UI format: %s (must be text or json)", c.UI.Format)
	}
	return nil
}

// EngineTimeout returns the per-step engine deadline as a duration.
func (c *Config) EngineTimeout() time.Duration {
	return time.Duration(c.Engine.TimeoutSeconds) * time.Second
}

// StepDelay returns the inter-step stability pause as a duration.
func (c *Config) StepDelay() time.Duration {
	return time.Duration(c.Orchestrator.StepDelayMillis) * time.Millisecond
}
