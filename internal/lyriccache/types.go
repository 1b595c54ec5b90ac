package lyriccache

import "fmt"

// Platform identifies where a source track id comes from.
type Platform string

const (
	PlatformYouTubeMusic Platform = "youtube_music"
	PlatformSpotify      Platform = "spotify"
	PlatformAppleMusic   Platform = "apple_music"
)

func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(s); p {
	case PlatformYouTubeMusic, PlatformSpotify, PlatformAppleMusic:
		return p, nil
	default:
		return "", fmt.Errorf("unknown platform %q", s)
	}
}

// Format is the synchronization granularity of a stored transcript.
type Format string

const (
	// FormatRichSync is word-synced enhanced LRC.
	FormatRichSync Format = "rich_sync"
	// FormatNormalSync is line-synced LRC.
	FormatNormalSync Format = "normal_sync"
)

func (f Format) Valid() bool {
	return f == FormatRichSync || f == FormatNormalSync
}

// ObjectKey is the blob key of a stored format.
func ObjectKey(musixmatchTrackID int64, format Format) string {
	return fmt.Sprintf("%d/%s.gz", musixmatchTrackID, format)
}

// Lyric is one decompressed stored transcript.
type Lyric struct {
	Format  Format
	Content string
}

// Hit is a cache lookup result.
type Hit struct {
	MusixmatchTrackID int64
	Lyrics            []Lyric
}

// Get returns the content stored for format.
func (h Hit) Get(format Format) (string, bool) {
	for _, l := range h.Lyrics {
		if l.Format == format {
			return l.Content, true
		}
	}
	return "", false
}

// SaveRequest describes one transcript to persist.
type SaveRequest struct {
	Platform          Platform
	SourceTrackID     string
	MusixmatchTrackID int64
	Format            Format
	Content           string
}
