package musixmatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"

	"github.com/MimeLyc/synced-lyrics/internal/errs"
	"github.com/MimeLyc/synced-lyrics/internal/lrc"
	"github.com/MimeLyc/synced-lyrics/internal/scope"
	"github.com/MimeLyc/synced-lyrics/pkg/log"
)

// ErrNotFound marks upstream 404s and successful responses without content.
var ErrNotFound = errors.New("musixmatch: not found")

// Token returns the session token, acquiring one if none is held.
// Concurrent callers share a single acquisition.
func (c *Client) Token(ctx context.Context) (string, error) {
	if tok := c.session.Token(); tok != "" {
		return tok, nil
	}
	return c.sharedAcquire(ctx, false)
}

// RefreshToken drops the session if it still holds stale and acquires a new
// token bypassing the response cache. Callers racing on the same stale token
// cause a single reset.
func (c *Client) RefreshToken(ctx context.Context, stale string) (string, error) {
	if c.session.resetIf(stale) {
		log.Info("musixmatch session reset")
		scope.Observe(ctx, "session_reset", nil)
	}
	return c.sharedAcquire(ctx, true)
}

// sharedAcquire joins or starts a token acquisition. The acquisition runs
// detached from ctx so one caller giving up does not fail the others; fresh
// and cached acquisitions never share a flight.
func (c *Client) sharedAcquire(ctx context.Context, fresh bool) (string, error) {
	key := "token"
	if fresh {
		key = "token-fresh"
	}
	detached := context.WithoutCancel(ctx)
	ch := c.tokenGroup.DoChan(key, func() (any, error) {
		if tok := c.session.Token(); tok != "" {
			return tok, nil
		}
		return c.acquireToken(detached, fresh)
	})
	select {
	case <-ctx.Done():
		return "", errs.Wrap(ctx.Err(), errs.Transport, "token acquisition abandoned")
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) acquireToken(ctx context.Context, fresh bool) (string, error) {
	var opts []RequestOption
	if fresh {
		opts = append(opts, WithFresh())
	}
	resp, err := c.Request(ctx, ActionToken, url.Values{"user_language": {"en"}}, opts...)
	if err != nil {
		return "", err
	}
	hdr, body, err := resp.Envelope()
	if err != nil {
		return "", err
	}
	switch hdr.StatusCode {
	case statusOK:
	case statusAuthError:
		return "", errs.New(errs.AuthExpired, "token acquisition rejected").WithContext("hint", hdr.Hint)
	default:
		return "", errs.Newf(errs.Protocol, "token acquisition failed").WithContext("status_code", hdr.StatusCode)
	}

	var payload struct {
		UserToken string `json:"user_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", errs.Wrap(err, errs.Protocol, "malformed token body")
	}
	if payload.UserToken == "" {
		return "", errs.New(errs.Protocol, "empty user token")
	}

	c.session.setToken(payload.UserToken)
	scope.Observe(ctx, "token_acquired", map[string]any{"cached": resp.FromCache})
	return payload.UserToken, nil
}

// call performs a content action and returns the envelope body. A 401 resets
// the session and retries once; a second 401 is a protocol error.
func (c *Client) call(ctx context.Context, action string, params url.Values) (json.RawMessage, error) {
	resp, err := c.Request(ctx, action, params)
	if err != nil {
		return nil, err
	}
	hdr, body, err := resp.Envelope()
	if err != nil {
		return nil, err
	}

	if hdr.StatusCode == statusAuthError {
		log.Info("musixmatch %s returned 401, refreshing session", action)
		scope.Observe(ctx, "auth_expired", action)
		if _, err := c.RefreshToken(ctx, resp.usertoken); err != nil {
			return nil, err
		}
		if resp, err = c.Request(ctx, action, params); err != nil {
			return nil, err
		}
		if hdr, body, err = resp.Envelope(); err != nil {
			return nil, err
		}
		if hdr.StatusCode == statusAuthError {
			return nil, errs.New(errs.Protocol, "authorization failed after session refresh").
				WithContext("action", action)
		}
	}

	switch hdr.StatusCode {
	case statusOK:
		return body, nil
	case statusNotFound:
		return nil, errs.Wrap(ErrNotFound, errs.Protocol, "upstream not found").WithContext("action", action)
	default:
		return nil, errs.New(errs.Protocol, "unexpected upstream status").
			WithContext("action", action).
			WithContext("status_code", hdr.StatusCode).
			WithContext("http_status", resp.Status)
	}
}

// MatchTrack finds the best matching track for q.
func (c *Client) MatchTrack(ctx context.Context, q MatchQuery) (Track, error) {
	params := url.Values{
		"q_track":   {q.Track},
		"q_artist":  {q.Artist},
		"page_size": {"1"},
		"page":      {"1"},
	}
	if q.Album != "" {
		params.Set("q_album", q.Album)
	}

	body, err := c.call(ctx, ActionMatcher, params)
	if err != nil {
		return Track{}, err
	}
	var payload struct {
		Track *Track `json:"track"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Track{}, errs.Wrap(err, errs.Protocol, "malformed matcher body")
	}
	if payload.Track == nil || payload.Track.TrackID == 0 {
		return Track{}, errs.Wrap(ErrNotFound, errs.Protocol, "no track in matcher body")
	}
	scope.Observe(ctx, "match", map[string]any{
		"track_id":      payload.Track.TrackID,
		"has_richsync":  payload.Track.HasRichSync,
		"has_subtitles": payload.Track.HasSubtitles,
		"has_lyrics":    payload.Track.HasLyrics,
	})
	return *payload.Track, nil
}

// Subtitle returns the line-synced LRC transcript of a track.
func (c *Client) Subtitle(ctx context.Context, trackID int64) (string, error) {
	body, err := c.call(ctx, ActionSubtitle, url.Values{
		"track_id":        {strconv.FormatInt(trackID, 10)},
		"subtitle_format": {"lrc"},
	})
	if err != nil {
		return "", err
	}
	var payload struct {
		Subtitle struct {
			Body string `json:"subtitle_body"`
		} `json:"subtitle"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", errs.Wrap(err, errs.Protocol, "malformed subtitle body")
	}
	if payload.Subtitle.Body == "" {
		return "", errs.Wrap(ErrNotFound, errs.Protocol, "empty subtitle body")
	}
	return payload.Subtitle.Body, nil
}

// RichSync returns the word-synced transcript of a track.
func (c *Client) RichSync(ctx context.Context, trackID int64) ([]lrc.RichLine, error) {
	body, err := c.call(ctx, ActionRichSync, url.Values{
		"track_id": {strconv.FormatInt(trackID, 10)},
	})
	if err != nil {
		return nil, err
	}
	var payload struct {
		RichSync struct {
			Body string `json:"richsync_body"`
		} `json:"richsync"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errs.Wrap(err, errs.Protocol, "malformed richsync body")
	}
	if payload.RichSync.Body == "" {
		return nil, errs.Wrap(ErrNotFound, errs.Protocol, "empty richsync body")
	}
	var lines []lrc.RichLine
	if err := json.Unmarshal([]byte(payload.RichSync.Body), &lines); err != nil {
		return nil, errs.Wrap(err, errs.Protocol, "malformed richsync_body")
	}
	return lines, nil
}
