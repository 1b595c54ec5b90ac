package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/MimeLyc/synced-lyrics/pkg/log"
	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
)

// Config holds all application configuration, read from the environment.
//
// Environment Variables:
// HTTP / System:
// - HTTP_ADDR: listen address (default: :8080)
// - DATA_DIR: directory holding the SQLite index and lyric blobs (default: /app/data)
// - LOG_LEVEL: debug, info, warn, error (default: info)
//
// Musixmatch:
// - MXM_API_URL: API root (default: https://apic-desktop.musixmatch.com/ws/1.1/)
// - MXM_APP_ID: app_id query parameter (default: web-desktop-app-v1.0)
// - MXM_TIMEOUT: per-request timeout (default: 15s)
// - MXM_TOKEN_TTL: response cache lifetime of token.get (default: 10m)
// - MXM_CONTENT_TTL: response cache lifetime of content actions (default: 24h)
// - MXM_MAX_REDIRECTS: redirects followed before giving up (default: 5)
// - MXM_REQUESTS_PER_SECOND: client-side rate limit, 0 disables (default: 5)
//
// Alignment:
// - ALIGN_VARIANCE_THRESHOLD: accept an offset when variance is below this, in s² (default: 1.5)
// - ALIGN_MAX_EDIT_LENGTH: diff edit budget, 0 means unbounded (default: 2000)
//
// Cache / maintenance:
// - RESPONSE_CACHE: memory or sqlite (default: memory)
// - RESPONSE_CACHE_MAX_BYTES: memory cache capacity (default: 64MiB)
// - ACCESS_REFRESH_INTERVAL: minimum age before a track access time is refreshed (default: 24h)
// - PRUNE_CRON: standard 5-field cron for pruning (default: 17 3 * * *)
// - TRACK_RETENTION: tracks not accessed for this long are evicted, 0 disables (default: 2160h)
//
// Fallback provider:
// - LRCLIB_ENABLED (default: true)
// - LRCLIB_API_URL (default: https://lrclib.net/api/get)
type Config struct {
	HTTP        HTTPConfig
	System      SystemConfig
	Musixmatch  MusixmatchConfig
	Align       AlignConfig
	Cache       CacheConfig
	Maintenance MaintenanceConfig
	LRCLib      LRCLibConfig
}

type HTTPConfig struct {
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`
}

type SystemConfig struct {
	DataDir  string `env:"DATA_DIR" envDefault:"/app/data"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

type MusixmatchConfig struct {
	APIURL            string        `env:"MXM_API_URL" envDefault:"https://apic-desktop.musixmatch.com/ws/1.1/"`
	AppID             string        `env:"MXM_APP_ID" envDefault:"web-desktop-app-v1.0"`
	Timeout           time.Duration `env:"MXM_TIMEOUT" envDefault:"15s"`
	TokenTTL          time.Duration `env:"MXM_TOKEN_TTL" envDefault:"10m"`
	ContentTTL        time.Duration `env:"MXM_CONTENT_TTL" envDefault:"24h"`
	MaxRedirects      int           `env:"MXM_MAX_REDIRECTS" envDefault:"5"`
	RequestsPerSecond float64       `env:"MXM_REQUESTS_PER_SECOND" envDefault:"5"`
}

type AlignConfig struct {
	VarianceThreshold float64 `env:"ALIGN_VARIANCE_THRESHOLD" envDefault:"1.5"`
	MaxEditLength     int     `env:"ALIGN_MAX_EDIT_LENGTH" envDefault:"2000"`
}

type CacheConfig struct {
	ResponseBackend       string        `env:"RESPONSE_CACHE" envDefault:"memory"`
	ResponseMaxBytes      int64         `env:"RESPONSE_CACHE_MAX_BYTES" envDefault:"67108864"`
	AccessRefreshInterval time.Duration `env:"ACCESS_REFRESH_INTERVAL" envDefault:"24h"`
}

type MaintenanceConfig struct {
	PruneCron      string        `env:"PRUNE_CRON" envDefault:"17 3 * * *"`
	TrackRetention time.Duration `env:"TRACK_RETENTION" envDefault:"2160h"`
}

type LRCLibConfig struct {
	Enabled bool   `env:"LRCLIB_ENABLED" envDefault:"true"`
	APIURL  string `env:"LRCLIB_API_URL" envDefault:"https://lrclib.net/api/get"`
}

const (
	ResponseCacheMemory = "memory"
	ResponseCacheSQLite = "sqlite"
)

// DBPath is the SQLite index location inside the data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, "lyrics.db")
}

// BlobDir is the root of the compressed lyric object store.
func (c *Config) BlobDir() string {
	return filepath.Join(c.System.DataDir, "blobs")
}

// LockPath guards the data dir against a second daemon.
func (c *Config) LockPath() string {
	return filepath.Join(c.System.DataDir, ".lock")
}

// Option is a function type for configuring Config
type Option func(*Config)

func WithDataDir(dir string) Option {
	return func(c *Config) {
		c.System.DataDir = dir
	}
}

func WithHTTPAddr(addr string) Option {
	return func(c *Config) {
		c.HTTP.Addr = addr
	}
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: %+v", *config)
	return config, nil
}

// Validate checks ranges and expressions that env parsing cannot.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.System.DataDir) == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if strings.TrimSpace(c.Musixmatch.APIURL) == "" {
		return fmt.Errorf("MXM_API_URL is required")
	}
	if c.Musixmatch.Timeout <= 0 {
		return fmt.Errorf("MXM_TIMEOUT must be positive, got %s", c.Musixmatch.Timeout)
	}
	if c.Musixmatch.MaxRedirects < 0 {
		return fmt.Errorf("MXM_MAX_REDIRECTS must not be negative")
	}
	if c.Musixmatch.RequestsPerSecond < 0 {
		return fmt.Errorf("MXM_REQUESTS_PER_SECOND must not be negative")
	}
	if c.Align.VarianceThreshold <= 0 {
		return fmt.Errorf("ALIGN_VARIANCE_THRESHOLD must be positive")
	}
	if c.Align.MaxEditLength < 0 {
		return fmt.Errorf("ALIGN_MAX_EDIT_LENGTH must not be negative")
	}
	switch c.Cache.ResponseBackend {
	case ResponseCacheMemory, ResponseCacheSQLite:
	default:
		return fmt.Errorf("RESPONSE_CACHE must be %q or %q, got %q",
			ResponseCacheMemory, ResponseCacheSQLite, c.Cache.ResponseBackend)
	}
	if _, err := cron.ParseStandard(c.Maintenance.PruneCron); err != nil {
		return fmt.Errorf("invalid PRUNE_CRON: %w", err)
	}
	if c.Maintenance.TrackRetention < 0 {
		return fmt.Errorf("TRACK_RETENTION must not be negative")
	}
	return nil
}
