package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MimeLyc/synced-lyrics/pkg/file"
	"github.com/robfig/cron/v3"
)

// RuntimeSettings are the knobs that can change without a restart.
type RuntimeSettings struct {
	VarianceThreshold float64 `json:"align_variance_threshold"`
	LRCLibEnabled     bool    `json:"lrclib_enabled"`
	PruneCron         string  `json:"prune_cron"`
}

// RuntimeSettingsFilePath honours SETTINGS_FILE, else settings.json in the data dir.
func (c *Config) RuntimeSettingsFilePath() string {
	if p := strings.TrimSpace(os.Getenv("SETTINGS_FILE")); p != "" {
		return p
	}
	return filepath.Join(c.System.DataDir, "settings.json")
}

func (s RuntimeSettings) Validate() error {
	if s.VarianceThreshold <= 0 {
		return fmt.Errorf("align_variance_threshold must be positive")
	}
	if strings.TrimSpace(s.PruneCron) == "" {
		return fmt.Errorf("prune_cron is required")
	}
	if _, err := cron.ParseStandard(s.PruneCron); err != nil {
		return fmt.Errorf("invalid prune_cron: %w", err)
	}
	return nil
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		VarianceThreshold: c.Align.VarianceThreshold,
		LRCLibEnabled:     c.LRCLib.Enabled,
		PruneCron:         c.Maintenance.PruneCron,
	}
}

func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if settings.VarianceThreshold > 0 {
			c.Align.VarianceThreshold = settings.VarianceThreshold
		}
		if strings.TrimSpace(settings.PruneCron) != "" {
			c.Maintenance.PruneCron = settings.PruneCron
		}
		c.LRCLib.Enabled = settings.LRCLibEnabled
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return file.WriteAtomic(path, append(content, '\n'), 0o600)
}

// RuntimeSettingsStore serves the current settings and persists updates.
type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next, nil
}
