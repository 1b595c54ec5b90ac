package musixmatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/synced-lyrics/internal/errs"
	"github.com/MimeLyc/synced-lyrics/internal/respcache"
	"github.com/MimeLyc/synced-lyrics/internal/scope"
	"github.com/MimeLyc/synced-lyrics/pkg/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultTokenTTL     = 600 * time.Second
	DefaultContentTTL   = 86400 * time.Second
	DefaultMaxRedirects = 5
	DefaultTimeout      = 15 * time.Second

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// Client talks to the Musixmatch desktop API with one shared session.
type Client struct {
	baseURL      *url.URL
	appID        string
	httpClient   *http.Client
	cache        respcache.Cache
	tokenTTL     time.Duration
	contentTTL   time.Duration
	maxRedirects int
	limiter      *rate.Limiter
	now          func() time.Time

	session    Session
	tokenGroup singleflight.Group
}

type Option func(*Client)

func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if u, err := parseBaseURL(raw); err == nil {
			c.baseURL = u
		} else {
			log.Warn("ignoring invalid Musixmatch base URL %q: %v", raw, err)
		}
	}
}

func WithAppID(appID string) Option {
	return func(c *Client) {
		if appID != "" {
			c.appID = appID
		}
	}
}

// WithHTTPClient sets the transport. Redirect following is always disabled on
// a copy of the client since redirects are handled here.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			cp := *hc
			c.httpClient = &cp
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithCache(cache respcache.Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

func WithTTLs(token, content time.Duration) Option {
	return func(c *Client) {
		if token > 0 {
			c.tokenTTL = token
		}
		if content > 0 {
			c.contentTTL = content
		}
	}
}

func WithMaxRedirects(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRedirects = n
		}
	}
}

// WithRateLimit caps outgoing requests per second; 0 disables the limiter.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func NewClient(opts ...Option) *Client {
	base, _ := parseBaseURL(DefaultBaseURL)
	c := &Client{
		baseURL:      base,
		appID:        DefaultAppID,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		tokenTTL:     DefaultTokenTTL,
		contentTTL:   DefaultContentTTL,
		maxRedirects: DefaultMaxRedirects,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}

func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL must be absolute")
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

// Session exposes the shared session state, mostly for diagnostics.
func (c *Client) Session() *Session {
	return &c.session
}

type requestOptions struct {
	fresh bool
}

type RequestOption func(*requestOptions)

// WithFresh bypasses the response cache lookup. The response may still be cached.
func WithFresh() RequestOption {
	return func(o *requestOptions) {
		o.fresh = true
	}
}

// Request performs one API action. A token is acquired first when needed.
// Only HTTP 200 responses whose envelope status is 200 are cached.
func (c *Client) Request(ctx context.Context, action string, params url.Values, opts ...RequestOption) (*Response, error) {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}

	if action != ActionToken && c.session.Token() == "" {
		if _, err := c.Token(ctx); err != nil {
			return nil, err
		}
	}

	query := url.Values{}
	for k, v := range params {
		query[k] = append([]string(nil), v...)
	}
	query.Set("app_id", c.appID)
	token := c.session.Token()
	if token != "" {
		query.Set("usertoken", token)
	}

	target := c.baseURL.ResolveReference(&url.URL{Path: action})
	target.RawQuery = query.Encode()
	cacheKey := target.String()

	if c.cache != nil && !ro.fresh {
		entry, ok, err := c.cache.Get(ctx, cacheKey)
		if err != nil {
			log.Warn("response cache read failed for %s: %v", action, err)
		} else if ok {
			scope.Observe(ctx, "response_cache_hit", action)
			return &Response{Status: entry.Status, Body: entry.Body, FromCache: true, usertoken: token}, nil
		}
	}

	query.Set("t", strconv.FormatInt(c.now().UnixMilli(), 10))
	target.RawQuery = query.Encode()

	resp, err := c.fetch(ctx, action, target)
	if err != nil {
		return nil, err
	}
	resp.usertoken = token

	if c.cache != nil && resp.Status == http.StatusOK && envelopeStatus(resp.Body) == statusOK {
		ttl := c.contentTTL
		if action == ActionToken {
			ttl = c.tokenTTL
		}
		entry := respcache.NewEntry(resp.Status, append([]byte(nil), resp.Body...), ttl)
		scope.Defer(ctx, "response_cache_put", func(ctx context.Context) error {
			return c.cache.Put(ctx, cacheKey, entry, ttl)
		})
	}
	return resp, nil
}

func envelopeStatus(body []byte) int {
	r := Response{Body: body}
	hdr, _, err := r.Envelope()
	if err != nil {
		return 0
	}
	return hdr.StatusCode
}

// fetch sends the request, following at most maxRedirects 301/302 responses.
func (c *Client) fetch(ctx context.Context, action string, target *url.URL) (*Response, error) {
	for hop := 0; ; hop++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, errs.Wrap(err, errs.Transport, "rate limiter").WithContext("action", action)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return nil, errs.Wrap(err, errs.Protocol, "build request").WithContext("action", action)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Origin", "https://www.musixmatch.com")
		req.Header.Set("Referer", "https://www.musixmatch.com/")
		if jar := c.session.CookieHeader(); jar != "" {
			req.Header.Set("Cookie", jar)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, errs.Wrap(err, errs.Transport, "request failed").WithContext("action", action)
		}
		c.session.StoreSetCookies(resp.Header.Values("Set-Cookie"))

		if resp.StatusCode == http.StatusMovedPermanently || resp.StatusCode == http.StatusFound {
			location := resp.Header.Get("Location")
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			if hop >= c.maxRedirects {
				return nil, errs.Newf(errs.Protocol, "too many redirects").
					WithContext("action", action).
					WithContext("redirects", hop)
			}
			next, err := c.resolveRedirect(location)
			if err != nil {
				return nil, errs.Wrap(err, errs.Protocol, "bad redirect").WithContext("action", action)
			}
			log.Debug("musixmatch %s redirected to %s", action, next.Path)
			target = next
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, errs.Wrap(err, errs.Transport, "read body").WithContext("action", action)
		}
		return &Response{Status: resp.StatusCode, Body: body}, nil
	}
}

// resolveRedirect accepts absolute targets as-is and resolves relative ones
// against the upstream host.
func (c *Client) resolveRedirect(location string) (*url.URL, error) {
	if location == "" {
		return nil, errors.New("redirect without Location")
	}
	loc, err := url.Parse(location)
	if err != nil {
		return nil, err
	}
	if loc.IsAbs() {
		return loc, nil
	}
	return c.baseURL.ResolveReference(loc), nil
}
