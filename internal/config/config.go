// Package config holds operator-level configuration for a Fintalk process.
//
// Configuration is resolved once at startup into an immutable Config value
// that is passed into the pipeline explicitly. Nothing reads ambient state
// after Load returns. Set via env vars (FINTALK_*) or a config file
// (fintalk.config.yaml).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Viper keys. Each maps to an env var with the FINTALK_ prefix
// (e.g. "primary_model" → FINTALK_PRIMARY_MODEL) and to a YAML field
// in fintalk.config.yaml.
const (
	KeyDataDir          = "data_dir"
	KeyListenAddr       = "listen_addr"
	KeyPrimaryModel     = "primary_model"
	KeyFallbackModel    = "fallback_model"
	KeyTemperature      = "temperature"
	KeyMaxTokens        = "max_tokens"
	KeyLLMTimeoutSec    = "llm_timeout_seconds"
	KeyOpenAIAPIKey     = "openai_api_key"
	KeyOpenAIBaseURL    = "openai_base_url"
	KeyRatesBaseURL     = "rates_base_url"
	KeyRatesRefreshCron = "rates_refresh_cron"
	KeyJWTSecret        = "jwt_secret"
	KeyGlobalRPM        = "global_requests_per_min"
	KeyPerUserRPM       = "per_user_requests_per_min"
)

// Defaults. The JWT secret intentionally has no default; Load fails
// closed when it is unset so tokens can never be minted with a known key.
const (
	DefaultListenAddr    = ":8080"
	DefaultPrimaryModel  = "gpt-4o"
	DefaultFallbackModel = "gpt-4o-mini"
	DefaultTemperature   = 0.1
	DefaultMaxTokens     = 1024
	DefaultLLMTimeoutSec = 60
	DefaultRatesBaseURL  = "https://open.er-api.com/v6"
	DefaultRatesCron     = "0 * * * *"
	DefaultGlobalRPM     = 300
	DefaultPerUserRPM    = 30
)

// Config is the resolved, immutable process configuration.
type Config struct {
	DataDir          string
	ListenAddr       string
	PrimaryModel     string
	FallbackModel    string
	Temperature      float64
	MaxTokens        int
	LLMTimeout       time.Duration
	OpenAIAPIKey     string
	OpenAIBaseURL    string // empty = api.openai.com; set for tests/mock servers
	RatesBaseURL     string
	RatesRefreshCron string
	JWTSecret        string
	GlobalRPM        int
	PerUserRPM       int
}

// DBPath returns the full path to the ledger SQLite database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "fintalk.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

func init() {
	viper.SetEnvPrefix("FINTALK")
	viper.AutomaticEnv()
	viper.SetDefault(KeyListenAddr, DefaultListenAddr)
	viper.SetDefault(KeyPrimaryModel, DefaultPrimaryModel)
	viper.SetDefault(KeyFallbackModel, DefaultFallbackModel)
	viper.SetDefault(KeyTemperature, DefaultTemperature)
	viper.SetDefault(KeyMaxTokens, DefaultMaxTokens)
	viper.SetDefault(KeyLLMTimeoutSec, DefaultLLMTimeoutSec)
	viper.SetDefault(KeyRatesBaseURL, DefaultRatesBaseURL)
	viper.SetDefault(KeyRatesRefreshCron, DefaultRatesCron)
	viper.SetDefault(KeyGlobalRPM, DefaultGlobalRPM)
	viper.SetDefault(KeyPerUserRPM, DefaultPerUserRPM)
}

// Load reads configuration from Viper (which merges env vars, config file,
// and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:          resolveDataDir(),
		ListenAddr:       viper.GetString(KeyListenAddr),
		PrimaryModel:     viper.GetString(KeyPrimaryModel),
		FallbackModel:    viper.GetString(KeyFallbackModel),
		Temperature:      viper.GetFloat64(KeyTemperature),
		MaxTokens:        viper.GetInt(KeyMaxTokens),
		LLMTimeout:       time.Duration(viper.GetInt(KeyLLMTimeoutSec)) * time.Second,
		OpenAIAPIKey:     viper.GetString(KeyOpenAIAPIKey),
		OpenAIBaseURL:    viper.GetString(KeyOpenAIBaseURL),
		RatesBaseURL:     viper.GetString(KeyRatesBaseURL),
		RatesRefreshCron: viper.GetString(KeyRatesRefreshCron),
		JWTSecret:        viper.GetString(KeyJWTSecret),
		GlobalRPM:        viper.GetInt(KeyGlobalRPM),
		PerUserRPM:       viper.GetInt(KeyPerUserRPM),
	}

	// Quickstart fallback for single-tenant development.
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.PrimaryModel == "" {
		return fmt.Errorf("config: %s must not be empty", KeyPrimaryModel)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("config: %s out of range: %v", KeyTemperature, c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("config: %s must be positive", KeyMaxTokens)
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("config: %s must be positive", KeyLLMTimeoutSec)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("config: %s must be set", KeyJWTSecret)
	}
	return nil
}

// resolveDataDir returns the configured data dir, or ~/.fintalk.
func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fintalk"
	}
	return filepath.Join(home, ".fintalk")
}
