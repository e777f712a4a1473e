package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, ThresholdConfig{Confirm: 3, Delete: 5, Quorum: 5}, cfg.Thresholds)
	assert.Equal(t, 2, cfg.Notify.Workers)
	assert.Equal(t, 64, cfg.Notify.BufferSize)
	assert.Empty(t, cfg.Notify.WebhookURL)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORE_BACKEND", "MEMORY")
	t.Setenv("CONFIRM_THRESHOLD", "2")
	t.Setenv("DELETE_THRESHOLD", "4")
	t.Setenv("VOTE_QUORUM", "7")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("NOTIFY_WEBHOOK_URL", "https://hooks.example/safety")
	t.Setenv("NOTIFY_WEBHOOK_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, ThresholdConfig{Confirm: 2, Delete: 4, Quorum: 7}, cfg.Thresholds)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "https://hooks.example/safety", cfg.Notify.WebhookURL)
	assert.Equal(t, 2*time.Second, cfg.Notify.WebhookTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"port out of range", map[string]string{"SERVER_PORT": "70000"}},
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}},
		{"backend", map[string]string{"STORE_BACKEND": "postgres"}},
		{"zero quorum", map[string]string{"VOTE_QUORUM": "0"}},
		{"delete below confirm", map[string]string{"CONFIRM_THRESHOLD": "4", "DELETE_THRESHOLD": "3"}},
		{"no workers", map[string]string{"NOTIFY_WORKERS": "0"}},
		{"webhook scheme", map[string]string{"NOTIFY_WEBHOOK_URL": "ftp://example"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
