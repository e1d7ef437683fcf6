package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	viper.Set(KeyJWTSecret, "test-secret")
	defer viper.Set(KeyJWTSecret, "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPrimaryModel, cfg.PrimaryModel)
	assert.Equal(t, DefaultFallbackModel, cfg.FallbackModel)
	assert.Equal(t, DefaultTemperature, cfg.Temperature)
	assert.Equal(t, DefaultMaxTokens, cfg.MaxTokens)
	assert.Equal(t, time.Duration(DefaultLLMTimeoutSec)*time.Second, cfg.LLMTimeout)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoad_MissingJWTSecretFailsClosed(t *testing.T) {
	viper.Set(KeyJWTSecret, "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), KeyJWTSecret)
}

func TestLoad_RejectsInvalidTemperature(t *testing.T) {
	viper.Set(KeyJWTSecret, "test-secret")
	viper.Set(KeyTemperature, 5.0)
	defer func() {
		viper.Set(KeyJWTSecret, "")
		viper.Set(KeyTemperature, DefaultTemperature)
	}()

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), KeyTemperature)
}

func TestDBPath(t *testing.T) {
	cfg := &Config{DataDir: "/tmp/ft"}
	assert.Equal(t, "/tmp/ft/fintalk.db", cfg.DBPath())
}
