package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnv_HTTPDefaults(t *testing.T) {
	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestNewFromEnv_UpstreamDefaults(t *testing.T) {
	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://apic-desktop.musixmatch.com/ws/1.1/", cfg.Musixmatch.APIURL)
	assert.Equal(t, "web-desktop-app-v1.0", cfg.Musixmatch.AppID)
	assert.Equal(t, 10*time.Minute, cfg.Musixmatch.TokenTTL)
	assert.Equal(t, 24*time.Hour, cfg.Musixmatch.ContentTTL)
	assert.Equal(t, 5, cfg.Musixmatch.MaxRedirects)
	assert.InDelta(t, 1.5, cfg.Align.VarianceThreshold, 1e-9)
	assert.Equal(t, ResponseCacheMemory, cfg.Cache.ResponseBackend)
	assert.True(t, cfg.LRCLib.Enabled)
}

func TestNewFromEnv_Overrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("MXM_TIMEOUT", "3s")
	t.Setenv("ALIGN_VARIANCE_THRESHOLD", "10")
	t.Setenv("RESPONSE_CACHE", "sqlite")
	t.Setenv("LRCLIB_ENABLED", "false")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.Equal(t, 3*time.Second, cfg.Musixmatch.Timeout)
	assert.InDelta(t, 10.0, cfg.Align.VarianceThreshold, 1e-9)
	assert.Equal(t, ResponseCacheSQLite, cfg.Cache.ResponseBackend)
	assert.False(t, cfg.LRCLib.Enabled)
}

func TestNewFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "bad cron", key: "PRUNE_CRON", val: "not a cron"},
		{name: "bad backend", key: "RESPONSE_CACHE", val: "redis"},
		{name: "zero threshold", key: "ALIGN_VARIANCE_THRESHOLD", val: "0"},
		{name: "negative redirects", key: "MXM_MAX_REDIRECTS", val: "-1"},
		{name: "unparsable duration", key: "MXM_TIMEOUT", val: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := NewFromEnv()
			require.Error(t, err)
		})
	}
}
