package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setTestEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("STATIC_DIR", filepath.Join(dir, "static"))
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("CONFIG_SECRET", "")
	t.Setenv("LLM_TIMEOUT", "")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "")
	t.Setenv("LLM_MODEL", "")
	t.Setenv("LLM_BASE_URL", "")
	return dir
}

func TestLoadDefaults(t *testing.T) {
	setTestEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultProvider, cfg.LLMProvider)
	assert.Equal(t, DefaultModel, cfg.LLMModel)
	assert.Equal(t, time.Duration(0), cfg.LLMTimeout)
	assert.Equal(t, 30, cfg.RateLimitPerMinute)
	assert.DirExists(t, cfg.DataDir)
}

func TestLoadOverrides(t *testing.T) {
	setTestEnv(t)

	t.Run("API_KEY wins over GEMINI_API_KEY", func(t *testing.T) {
		t.Setenv("API_KEY", "primary")
		t.Setenv("GEMINI_API_KEY", "secondary")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "primary", cfg.APIKey)
	})

	t.Run("GEMINI_API_KEY as fallback", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "secondary")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "secondary", cfg.APIKey)
	})

	t.Run("timeout in seconds or duration", func(t *testing.T) {
		t.Setenv("LLM_TIMEOUT", "90")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 90*time.Second, cfg.LLMTimeout)

		t.Setenv("LLM_TIMEOUT", "2m")
		cfg, err = Load()
		require.NoError(t, err)
		assert.Equal(t, 2*time.Minute, cfg.LLMTimeout)
	})

	t.Run("invalid rate limit", func(t *testing.T) {
		t.Setenv("RATE_LIMIT_PER_MINUTE", "lots")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestInitConfigNeverWritesPlainKey(t *testing.T) {
	dir := setTestEnv(t)
	t.Setenv("API_KEY", "plain-secret")

	require.NoError(t, InitConfig(dir))

	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "plain-secret")

	assert.Equal(t, "plain-secret", ResolveAPIKey())
}

func TestInitConfigEncryptsKeyWithSecret(t *testing.T) {
	dir := setTestEnv(t)
	t.Setenv("CONFIG_SECRET", "0123456789abcdef")

	require.NoError(t, InitConfig(dir))
	require.NoError(t, UpdateLLMConfig("google", map[string]string{
		"api_key":       "stored-key",
		"default_model": "gemini-2.5-flash",
	}))

	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "stored-key")

	var saved AppConfig
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.NotEmpty(t, saved.LLMConfig["api_key"])

	// reload decrypts the saved key
	require.NoError(t, InitConfig(dir))
	cfg := GetCurrentConfig()
	assert.Equal(t, "stored-key", cfg.LLMConfig["api_key"])
	assert.Equal(t, "gemini-2.5-flash", cfg.LLMConfig["default_model"])
	assert.Equal(t, "stored-key", ResolveAPIKey())
}

func TestSealedKeyUnderOtherSecretIsDropped(t *testing.T) {
	dir := setTestEnv(t)
	t.Setenv("CONFIG_SECRET", "first-secret")
	require.NoError(t, InitConfig(dir))
	require.NoError(t, UpdateLLMConfig("google", map[string]string{"api_key": "stored-key"}))

	t.Setenv("CONFIG_SECRET", "second-secret")
	require.NoError(t, InitConfig(dir))
	assert.Empty(t, ResolveAPIKey())
}

func TestUpdateLLMConfigRejectsEndpointOverride(t *testing.T) {
	dir := setTestEnv(t)
	require.NoError(t, InitConfig(dir))

	err := UpdateLLMConfig("google", map[string]string{
		"api_key":  "k",
		"base_url": "http://collector.invalid",
	})
	assert.ErrorIs(t, err, ErrUnsupportedLLMSetting)
	assert.NotContains(t, GetCurrentConfig().LLMConfig, "base_url")
	assert.Empty(t, GetCurrentConfig().LLMBaseURL)
}

func TestSavedEndpointOverrideIsIgnored(t *testing.T) {
	dir := setTestEnv(t)
	saved := `{"llm_provider":"google","llm_config":{"default_model":"gemini-2.5-flash","base_url":"http://collector.invalid"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(saved), 0600))

	require.NoError(t, InitConfig(dir))
	cfg := GetCurrentConfig()
	assert.Equal(t, "gemini-2.5-flash", cfg.LLMConfig["default_model"])
	assert.NotContains(t, cfg.LLMConfig, "base_url")
	assert.Empty(t, cfg.LLMBaseURL)

	t.Setenv("LLM_BASE_URL", "https://gateway.example")
	require.NoError(t, InitConfig(dir))
	assert.Equal(t, "https://gateway.example", GetCurrentConfig().LLMBaseURL)

	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "gateway.example")
	assert.NotContains(t, string(data), "collector.invalid")
}

func TestGetCurrentConfigReturnsCopy(t *testing.T) {
	dir := setTestEnv(t)
	require.NoError(t, InitConfig(dir))

	cfg := GetCurrentConfig()
	cfg.LLMConfig["default_model"] = "mutated"

	assert.NotEqual(t, "mutated", GetCurrentConfig().LLMConfig["default_model"])
}
