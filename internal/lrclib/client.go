package lrclib

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/MimeLyc/synced-lyrics/internal/errs"
	"github.com/MimeLyc/synced-lyrics/pkg/log"
)

const (
	DefaultAPIURL = "https://lrclib.net/api/get"
	userAgent     = "synced-lyrics (https://github.com/MimeLyc/synced-lyrics)"
)

// Query identifies a track. Album and Duration are optional.
type Query struct {
	Artist   string
	Track    string
	Album    string
	Duration string
}

// Result holds LRCLIB transcripts; either may be empty.
type Result struct {
	Synced   string
	Unsynced string
}

// Empty reports whether no lyrics were returned.
func (r Result) Empty() bool {
	return r.Synced == "" && r.Unsynced == ""
}

type Client struct {
	httpClient *http.Client
	apiURL     string
	retryDelay time.Duration
}

type Option func(*Client)

func WithAPIURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.apiURL = u
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiURL:     DefaultAPIURL,
		retryDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves lyrics for q. A 404 yields an empty Result and no error.
// Network-level failures are retried once.
func (c *Client) Fetch(ctx context.Context, q Query) (Result, error) {
	result, err := c.doFetch(ctx, q)
	if err == nil || !isTransient(err) {
		return result, err
	}

	log.Debug("lrclib transient failure, retrying: %v", err)
	select {
	case <-ctx.Done():
		return Result{}, err
	case <-time.After(c.retryDelay):
	}
	return c.doFetch(ctx, q)
}

func isTransient(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

func (c *Client) doFetch(ctx context.Context, q Query) (Result, error) {
	params := url.Values{}
	params.Set("artist_name", q.Artist)
	params.Set("track_name", q.Track)
	if q.Album != "" {
		params.Set("album_name", q.Album)
	}
	if q.Duration != "" {
		params.Set("duration", q.Duration)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return Result{}, errs.Wrap(err, errs.Validation, "build lrclib request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, errs.Wrap(err, errs.Transport, "lrclib request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Result{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, errs.New(errs.Protocol, "unexpected lrclib status").WithContext("status", resp.StatusCode)
	}

	var body struct {
		SyncedLyrics string `json:"syncedLyrics"`
		PlainLyrics  string `json:"plainLyrics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, errs.Wrap(err, errs.Protocol, "decode lrclib response")
	}
	return Result{Synced: body.SyncedLyrics, Unsynced: body.PlainLyrics}, nil
}
