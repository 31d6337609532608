package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, 700, cfg.Server.PhaseDelayMS)
	assert.Equal(t, "http://localhost:8080", cfg.Backend.URL)
	assert.Equal(t, 1000, cfg.Polling.IntervalMS)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.ModelName)
	assert.Empty(t, cfg.LLM.GeminiAPIKey)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("THREADLINE_SERVER_PORT", "9090")
	t.Setenv("THREADLINE_SERVER_LOG_LEVEL", "debug")
	t.Setenv("THREADLINE_BACKEND_URL", "http://backend:8081")
	t.Setenv("THREADLINE_POLLING_INTERVAL_MS", "250")
	t.Setenv("THREADLINE_LLM_GEMINI_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, "http://backend:8081", cfg.Backend.URL)
	assert.Equal(t, 250, cfg.Polling.IntervalMS)
	assert.Equal(t, "test-key", cfg.LLM.GeminiAPIKey)
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	t.Setenv("THREADLINE_SERVER_PORT", "70000")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestLoadRejectsUnknownLogLevel(t *testing.T) {
	t.Setenv("THREADLINE_SERVER_LOG_LEVEL", "verbose")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestLoadRejectsMalformedBackendURL(t *testing.T) {
	t.Setenv("THREADLINE_BACKEND_URL", "not a url")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}
