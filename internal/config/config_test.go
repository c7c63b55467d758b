package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "LOG_LEVEL", "VERIFAI_BACKEND", "VERIFAI_ARTIFACT_DIR", "CORS_ALLOWED_ORIGINS", "VERIFAI_REQUEST_TIMEOUT", "SHUTDOWN_TIMEOUT", "OPENAI_BASE_URL"} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, BackendTable, cfg.Backend)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("VERIFAI_BACKEND", "Classifier")
	t.Setenv("VERIFAI_ARTIFACT_DIR", "/var/lib/verifai")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("VERIFAI_REQUEST_TIMEOUT", "5s")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr())
	assert.Equal(t, BackendClassifier, cfg.Backend)
	assert.Equal(t, "/var/lib/verifai", cfg.ArtifactDir)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
}

func TestFromEnvRejectsInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown backend":    {"VERIFAI_BACKEND": "oracle"},
		"gemini without key": {"VERIFAI_BACKEND": "gemini", "GEMINI_API_KEY": ""},
		"openai without key": {"VERIFAI_BACKEND": "openai", "OPENAI_API_KEY": ""},
		"grpc without addr":  {"VERIFAI_BACKEND": "grpc", "IMAGE_PROCESSOR_ADDR": ""},
		"bad timeout":        {"VERIFAI_REQUEST_TIMEOUT": "soon"},
		"bad port":           {"PORT": "http"},
		"bad log level":      {"LOG_LEVEL": "chatty"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestFromEnvGeminiWithKey(t *testing.T) {
	t.Setenv("VERIFAI_BACKEND", "gemini")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("GEMINI_MODEL", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", cfg.GeminiModel)
}
