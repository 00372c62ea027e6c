package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"mimogate/internal/logging"
)

// GatewayConfig holds the gateway's recognised options (spec §6). It is
// loaded the same way the rest of this package loads configuration:
// YAML defaults, overridden by a file, overridden by environment
// variables.
type GatewayConfig struct {
	HTTPPort               int             `yaml:"http_port"`
	APIKey                 string          `yaml:"api_key"`
	SandboxRoot            string          `yaml:"sandbox_root"`
	EmbeddingURL           string          `yaml:"embedding_url"`
	CompletionModel        string          `yaml:"completion_model"`
	MemoryCap              int             `yaml:"memory_cap"`
	ConsolidationInterval  time.Duration   `yaml:"consolidation_interval"`
	ConsolidationThreshold float64         `yaml:"consolidation_threshold"`
	DecayInterval          time.Duration   `yaml:"decay_interval"`
	CleanupInterval        time.Duration   `yaml:"cleanup_interval"`
	HealthInterval         time.Duration   `yaml:"health_interval"`
	FeatureFlags           map[string]bool `yaml:"feature_flags"`
	SkillCommandWhitelist  []string        `yaml:"skill_command_whitelist"`
	DBPath                 string          `yaml:"db_path"`
	Sandboxed              bool            `yaml:"sandboxed"`
	RateLimitPerMinute     int             `yaml:"rate_limit_per_minute"`
}

// DefaultGatewayConfig mirrors the rest of this package's
// DefaultConfig()-then-override pattern.
func DefaultGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		HTTPPort:               8420,
		SandboxRoot:            "",
		MemoryCap:              100_000,
		ConsolidationInterval:  60 * time.Second,
		ConsolidationThreshold: 0.7,
		DecayInterval:          6 * time.Hour,
		CleanupInterval:        24 * time.Hour,
		HealthInterval:         5 * time.Minute,
		FeatureFlags:           map[string]bool{},
		SkillCommandWhitelist:  nil,
		DBPath:                 "mimogate.db",
		Sandboxed:              true,
		RateLimitPerMinute:     60,
	}
}

// LoadGatewayConfig loads GatewayConfig the same way Load loads Config:
// defaults, then file (if present), then environment overrides.
func LoadGatewayConfig(path string) (*GatewayConfig, error) {
	cfg := DefaultGatewayConfig()
	logging.BootDebug("loading gateway config from: %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Boot("gateway config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read gateway config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse gateway config: %w", err)
	}
	cfg.applyEnvOverrides()
	logging.Boot("gateway config loaded: http_port=%d sandboxed=%t", cfg.HTTPPort, cfg.Sandboxed)
	return cfg, nil
}

// Save persists the config, matching Config.Save's conventions.
func (c *GatewayConfig) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal gateway config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func (c *GatewayConfig) applyEnvOverrides() {
	if v := os.Getenv("MIMOGATE_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HTTPPort = n
		}
	}
	if v := os.Getenv("MIMOGATE_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("MIMOGATE_SANDBOX_ROOT"); v != "" {
		c.SandboxRoot = v
	}
	if v := os.Getenv("MIMOGATE_EMBEDDING_URL"); v != "" {
		c.EmbeddingURL = v
	}
	if v := os.Getenv("MIMOGATE_COMPLETION_MODEL"); v != "" {
		c.CompletionModel = v
	}
	if v := os.Getenv("MIMOGATE_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("MIMOGATE_SANDBOXED"); v != "" {
		c.Sandboxed = v == "true" || v == "1"
	}
}
