package service

import (
	"context"

	"github.com/MimeLyc/synced-lyrics/internal/align"
	"github.com/MimeLyc/synced-lyrics/internal/config"
	"github.com/MimeLyc/synced-lyrics/internal/lrclib"
	"github.com/MimeLyc/synced-lyrics/internal/lyriccache"
	"github.com/MimeLyc/synced-lyrics/internal/resolver"
)

// Resolver resolves a query against the primary upstream.
type Resolver interface {
	Resolve(ctx context.Context, q resolver.Query) (*resolver.Result, error)
}

// LyricStore is the durable tier of the cache.
type LyricStore interface {
	Lookup(ctx context.Context, platform lyriccache.Platform, sourceTrackID string) (lyriccache.Hit, bool, error)
	Save(ctx context.Context, req lyriccache.SaveRequest) error
}

// BasicProvider is the secondary, unauthenticated lyrics source.
type BasicProvider interface {
	Fetch(ctx context.Context, q lrclib.Query) (lrclib.Result, error)
}

// SettingsSource supplies runtime-tunable settings.
type SettingsSource interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
}

// Source names where returned lyrics came from.
type Source string

const (
	SourceCache      Source = "cache"
	SourceMusixmatch Source = "musixmatch"
	SourceLRCLib     Source = "lrclib"
)

// Request is one lyrics lookup. Platform and SourceTrackID are optional
// together; without them the durable cache is skipped.
type Request struct {
	Artist        string
	Song          string
	Album         string
	Duration      string
	Platform      string
	SourceTrackID string
	Enhanced      bool
	Debug         bool
}

// Lyrics is the response payload.
type Lyrics struct {
	Source            Source `json:"source"`
	RichSynced        string `json:"richSynced,omitempty"`
	Synced            string `json:"synced,omitempty"`
	Unsynced          string `json:"unsynced,omitempty"`
	Language          string `json:"language,omitempty"`
	MusixmatchTrackID int64  `json:"musixmatchTrackId,omitempty"`
	Debug             *Debug `json:"debugInfo,omitempty"`
}

// Debug is returned only when requested.
type Debug struct {
	RequestID string        `json:"requestId,omitempty"`
	Tier      string        `json:"tier,omitempty"`
	Error     string        `json:"error,omitempty"`
	Alignment *align.Result `json:"lyricMatchingStats,omitempty"`
}
