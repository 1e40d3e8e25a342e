// Package config provides configuration management for the analysis pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	apperrors "council-trader/internal/errors"
	"council-trader/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Council     CouncilConfig `mapstructure:"council"`
	Retry       RetryConfig   `mapstructure:"retry"`
	Server      ServerConfig  `mapstructure:"server"`
	Storage     StorageConfig `mapstructure:"storage"`
	Credentials Credentials   `mapstructure:"-"` // Loaded separately
}

// CouncilConfig holds the orchestrator options recognized for a session.
type CouncilConfig struct {
	Analysts            []string      `mapstructure:"analysts"`
	MaxDebateRounds     int           `mapstructure:"max_debate_rounds"`
	TokenThreshold      int           `mapstructure:"token_threshold"`
	TimeoutPerCall      time.Duration `mapstructure:"timeout_per_call"`
	EnableSummarization bool          `mapstructure:"enable_summarization"`
	PortfolioValue      float64       `mapstructure:"portfolio_value"`
	Model               string        `mapstructure:"model"`
}

// RetryConfig holds retry behavior for reasoning calls.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

// ServerConfig holds the HTTP serving surface configuration.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// Credentials holds API credentials.
type Credentials struct {
	OpenAI OpenAICredentials `mapstructure:"openai"`
}

// OpenAICredentials holds OpenAI API credentials.
type OpenAICredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/council-trader"
	}
	return filepath.Join(home, ".config", "council-trader")
}

// AnalystRoles converts the configured analyst names to roles.
// Call Validate first; unknown names are rejected there.
func (c *CouncilConfig) AnalystRoles() []models.Role {
	if len(c.Analysts) == 0 {
		return models.DefaultAnalysts()
	}
	roles := make([]models.Role, 0, len(c.Analysts))
	for _, name := range c.Analysts {
		roles = append(roles, models.Role(name))
	}
	return roles
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}
	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfigFile(configDir string, target *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// Missing file is fine, defaults apply.
	}
	return v.Unmarshal(target)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("council.analysts", []string{"market", "social", "news", "fundamentals"})
	v.SetDefault("council.max_debate_rounds", 2)
	v.SetDefault("council.token_threshold", 50000)
	v.SetDefault("council.timeout_per_call", "90s")
	v.SetDefault("council.enable_summarization", true)
	v.SetDefault("council.portfolio_value", 100000.0)
	v.SetDefault("council.model", "gpt-4o")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_delay", "500ms")
	v.SetDefault("retry.max_delay", "10s")
	v.SetDefault("server.addr", "127.0.0.1:8787")
	v.SetDefault("storage.db_path", filepath.Join(DefaultConfigDir(), "council.db"))
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}
	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Credentials.OpenAI.APIKey = v
	}
	if v := os.Getenv("COUNCIL_MODEL"); v != "" {
		cfg.Council.Model = v
	}
	if v := os.Getenv("COUNCIL_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("COUNCIL_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
}

// Validate validates the configuration. Invalid config fails fast and is
// never silently clamped.
func (c *Config) Validate() error {
	if len(c.Council.Analysts) == 0 {
		return apperrors.NewValidationError("council.analysts", c.Council.Analysts, "at least one analyst role is required")
	}
	seen := make(map[string]bool, len(c.Council.Analysts))
	for _, name := range c.Council.Analysts {
		if !models.AnalystRoles[models.Role(name)] {
			return apperrors.NewValidationError("council.analysts", name, "unknown analyst role")
		}
		if seen[name] {
			return apperrors.NewValidationError("council.analysts", name, "duplicate analyst role")
		}
		seen[name] = true
	}
	if c.Council.MaxDebateRounds < 1 {
		return apperrors.NewValidationError("council.max_debate_rounds", c.Council.MaxDebateRounds, "must be at least 1")
	}
	if c.Council.TokenThreshold <= 0 {
		return apperrors.NewValidationError("council.token_threshold", c.Council.TokenThreshold, "must be positive")
	}
	if c.Council.TimeoutPerCall <= 0 {
		return apperrors.NewValidationError("council.timeout_per_call", c.Council.TimeoutPerCall, "must be positive")
	}
	if c.Council.PortfolioValue < 0 {
		return apperrors.NewValidationError("council.portfolio_value", c.Council.PortfolioValue, "must be non-negative")
	}
	if c.Retry.MaxAttempts < 1 {
		return apperrors.NewValidationError("retry.max_attempts", c.Retry.MaxAttempts, "must be at least 1")
	}
	return nil
}
