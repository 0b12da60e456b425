package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultBaseURL is the hosted FinSense API.
const DefaultBaseURL = "https://finsense-fastapi.onrender.com"

// Config holds application configuration.
type Config struct {
	API     APIConfig
	UI      UIConfig
	Export  ExportConfig
	History HistoryConfig
	Session SessionConfig
	Log     LogConfig
}

// APIConfig holds remote API settings.
type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	Burst     int           `mapstructure:"burst"`
}

// UIConfig holds presentation settings.
type UIConfig struct {
	CurrencySymbol string `mapstructure:"currency_symbol"`
	CardView       bool   `mapstructure:"card_view"`
}

// ExportConfig controls where exported CSV files land.
type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

// HistoryConfig holds the export history database location.
type HistoryConfig struct {
	Path string `mapstructure:"path"`
}

// SessionConfig holds the session file location.
type SessionConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig controls the log file.
type LogConfig struct {
	Path  string `mapstructure:"path"`
	Level string `mapstructure:"level"`
}

// Load reads configuration from file and env. A .env file in the working
// directory is loaded first. Env var overrides use prefix FINSENSE_.
func Load() (Config, error) {
	_ = godotenv.Load()

	home := os.Getenv("HOME")
	v := viper.New()

	v.SetDefault("api.base_url", DefaultBaseURL)
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.rate_limit", 5.0)
	v.SetDefault("api.burst", 5)
	v.SetDefault("ui.currency_symbol", "₹")
	v.SetDefault("ui.card_view", false)
	v.SetDefault("export.dir", filepath.Join(home, "Downloads"))
	v.SetDefault("history.path", filepath.Join(home, ".local", "share", "finsense", "history.db"))
	v.SetDefault("session.path", "")
	v.SetDefault("log.path", filepath.Join(home, ".local", "state", "finsense", "finsense.log"))
	v.SetDefault("log.level", "info")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("FINSENSE_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(home, ".config", "finsense"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("FINSENSE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings the client cannot run with.
func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must not be negative")
	}
	if c.Export.Dir == "" {
		return fmt.Errorf("export.dir is required")
	}
	return nil
}
