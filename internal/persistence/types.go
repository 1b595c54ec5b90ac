package persistence

import "time"

// LyricRef points a stored format at its blob.
type LyricRef struct {
	Format    string
	ObjectKey string
}

// TrackIndex is everything the index knows about one mapped track.
type TrackIndex struct {
	TrackID           int64
	MusixmatchTrackID int64
	LastAccessedAt    time.Time
	Lyrics            []LyricRef
}

// LyricRecord is one save: a mapping, its track and one stored format.
type LyricRecord struct {
	SourcePlatform    string
	SourceTrackID     string
	MusixmatchTrackID int64
	Format            string
	ObjectKey         string
}

// StaleTrack is a track eligible for eviction with the blobs it owns.
type StaleTrack struct {
	TrackID           int64
	MusixmatchTrackID int64
	LastAccessedAt    time.Time
	ObjectKeys        []string
}

// IndexStats are row counts for the status endpoint.
type IndexStats struct {
	Tracks        int64 `json:"tracks"`
	Mappings      int64 `json:"mappings"`
	Lyrics        int64 `json:"lyrics"`
	ResponseCache int64 `json:"response_cache"`
}
