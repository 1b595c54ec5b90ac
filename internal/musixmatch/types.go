package musixmatch

import (
	"encoding/json"
	"fmt"

	"github.com/MimeLyc/synced-lyrics/internal/errs"
)

const (
	ActionToken     = "token.get"
	ActionMatcher   = "matcher.track.get"
	ActionSubtitle  = "track.subtitle.get"
	ActionRichSync  = "track.richsync.get"
	DefaultBaseURL  = "https://apic-desktop.musixmatch.com/ws/1.1/"
	DefaultAppID    = "web-desktop-app-v1.0"
	statusOK        = 200
	statusAuthError = 401
	statusNotFound  = 404
)

// Header is the envelope header of every API response.
type Header struct {
	StatusCode  int     `json:"status_code"`
	ExecuteTime float64 `json:"execute_time"`
	Hint        string  `json:"hint,omitempty"`
}

type envelope struct {
	Message struct {
		Header Header `json:"header"`
		// Body is an object on success and often [] on failure.
		Body json.RawMessage `json:"body"`
	} `json:"message"`
}

// Response is a raw upstream (or cached) response. Body is owned by the caller.
type Response struct {
	Status    int
	Body      []byte
	FromCache bool

	usertoken string
}

// Envelope decodes the response envelope.
func (r *Response) Envelope() (Header, json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(r.Body, &env); err != nil {
		return Header{}, nil, errs.Wrap(err, errs.Protocol, "malformed response envelope").
			WithContext("http_status", r.Status)
	}
	return env.Message.Header, env.Message.Body, nil
}

// Track is the subset of a matched track this service reads.
type Track struct {
	TrackID       int64  `json:"track_id"`
	CommontrackID int64  `json:"commontrack_id"`
	TrackName     string `json:"track_name"`
	ArtistName    string `json:"artist_name"`
	AlbumName     string `json:"album_name"`
	TrackLength   int    `json:"track_length"`
	TrackISRC     string `json:"track_isrc"`
	Instrumental  int    `json:"instrumental"`
	HasLyrics     int    `json:"has_lyrics"`
	HasSubtitles  int    `json:"has_subtitles"`
	HasRichSync   int    `json:"has_richsync"`
}

func (t Track) RichSyncAvailable() bool  { return t.HasRichSync != 0 }
func (t Track) SubtitlesAvailable() bool { return t.HasSubtitles != 0 }
func (t Track) LyricsAvailable() bool    { return t.HasLyrics != 0 }

func (t Track) String() string {
	return fmt.Sprintf("%d %q by %q", t.TrackID, t.TrackName, t.ArtistName)
}

// MatchQuery identifies a song to match.
type MatchQuery struct {
	Artist string
	Track  string
	Album  string
}
