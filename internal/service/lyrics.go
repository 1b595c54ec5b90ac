package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/MimeLyc/synced-lyrics/internal/config"
	"github.com/MimeLyc/synced-lyrics/internal/errs"
	"github.com/MimeLyc/synced-lyrics/internal/lrc"
	"github.com/MimeLyc/synced-lyrics/internal/lrclib"
	"github.com/MimeLyc/synced-lyrics/internal/lyriccache"
	"github.com/MimeLyc/synced-lyrics/internal/resolver"
	"github.com/MimeLyc/synced-lyrics/internal/scope"
	"github.com/MimeLyc/synced-lyrics/pkg/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
)

type LyricsService struct {
	resolver Resolver
	store    LyricStore
	basic    BasicProvider
	settings SettingsSource
	defaults config.RuntimeSettings

	group singleflight.Group
}

type Option func(*LyricsService)

// WithStore enables the durable cache tier.
func WithStore(store LyricStore) Option {
	return func(s *LyricsService) {
		s.store = store
	}
}

// WithBasicProvider sets the fallback provider used when the resolver finds nothing.
func WithBasicProvider(p BasicProvider) Option {
	return func(s *LyricsService) {
		s.basic = p
	}
}

// WithSettings makes threshold and fallback toggles follow a live settings source.
func WithSettings(src SettingsSource) Option {
	return func(s *LyricsService) {
		s.settings = src
	}
}

func NewLyricsService(r Resolver, defaults config.RuntimeSettings, opts ...Option) *LyricsService {
	s := &LyricsService{resolver: r, defaults: defaults}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LyricsService) runtimeSettings() config.RuntimeSettings {
	if s.settings == nil {
		return s.defaults
	}
	settings, err := s.settings.GetRuntimeSettings()
	if err != nil {
		log.Warn("runtime settings unavailable, using defaults: %v", err)
		return s.defaults
	}
	return settings
}

// GetLyrics returns lyrics for req or an errs.NotFound error. Upstream
// failures never surface as-is; they are logged and reported as not found.
func (s *LyricsService) GetLyrics(ctx context.Context, req Request) (*Lyrics, error) {
	platform, err := validate(&req)
	if err != nil {
		return nil, err
	}

	var stored *Lyrics
	if platform != "" && s.store != nil {
		if out, ok := s.fromCache(ctx, platform, req); ok {
			if !req.Enhanced || out.Synced == "" {
				return s.finish(ctx, req, out, "cache"), nil
			}
			// Only the line-synced form is stored: try for rich sync, aligned
			// against the stored transcript, and keep the stored copy as fallback.
			stored = out
		}
	}

	settings := s.runtimeSettings()
	var hint string
	if stored != nil {
		hint = stored.Synced
	}
	res, resolveErr := s.resolve(ctx, req, settings.VarianceThreshold, hint)
	if resolveErr == nil && stored != nil && res.RichSynced == "" {
		return s.finish(ctx, req, stored, "cache"), nil
	}
	if resolveErr == nil {
		if platform != "" && s.store != nil {
			s.persist(ctx, platform, req.SourceTrackID, res)
		}
		out := &Lyrics{
			Source:            SourceMusixmatch,
			RichSynced:        res.RichSynced,
			Synced:            res.Synced,
			Unsynced:          res.Unsynced,
			MusixmatchTrackID: res.Track.TrackID,
		}
		out = s.finish(ctx, req, out, string(res.Tier))
		if out.Debug != nil {
			out.Debug.Alignment = res.Alignment
		}
		return out, nil
	}

	if stored != nil {
		log.Debug("keeping stored transcript for %s/%s: %v", platform, req.SourceTrackID, resolveErr)
		return s.finish(ctx, req, stored, "cache"), nil
	}
	if ctx.Err() != nil {
		return nil, errs.Wrap(resolveErr, errs.NotFound, "request aborted")
	}

	if errs.Is(resolveErr, errs.NotFound) {
		log.Info("no musixmatch lyrics for %q by %q", req.Song, req.Artist)
	} else {
		log.Warn("musixmatch resolution failed for %q by %q: %v (%s)", req.Song, req.Artist, resolveErr, errs.Advice(resolveErr))
	}
	scope.Observe(ctx, "resolve_error", resolveErr.Error())

	if settings.LRCLibEnabled && s.basic != nil {
		fallback, err := s.basic.Fetch(ctx, lrclib.Query{
			Artist:   req.Artist,
			Track:    req.Song,
			Album:    req.Album,
			Duration: req.Duration,
		})
		if err != nil {
			log.Warn("lrclib fallback failed: %v", err)
		} else if !fallback.Empty() {
			out := &Lyrics{Source: SourceLRCLib, Synced: fallback.Synced, Unsynced: fallback.Unsynced}
			out = s.finish(ctx, req, out, "lrclib")
			if out.Debug != nil {
				out.Debug.Error = resolveErr.Error()
			}
			return out, nil
		}
	}

	return nil, errs.Wrap(resolveErr, errs.NotFound, "no lyrics found").
		WithContext("artist", req.Artist).
		WithContext("song", req.Song)
}

func validate(req *Request) (lyriccache.Platform, error) {
	req.Artist = strings.TrimSpace(req.Artist)
	req.Song = strings.TrimSpace(req.Song)
	req.Album = strings.TrimSpace(req.Album)
	req.SourceTrackID = strings.TrimSpace(req.SourceTrackID)

	if req.Artist == "" || req.Song == "" {
		return "", errs.New(errs.Validation, "artist and song are required")
	}
	if req.Platform == "" {
		return "", nil
	}
	platform, err := lyriccache.ParsePlatform(req.Platform)
	if err != nil {
		return "", errs.Wrap(err, errs.Validation, "invalid platform")
	}
	if req.SourceTrackID == "" {
		return "", errs.New(errs.Validation, "track id is required with a platform").WithContext("platform", platform)
	}
	return platform, nil
}

// fromCache serves a stored result when it satisfies the request. A lookup
// failure is logged and treated as a miss.
func (s *LyricsService) fromCache(ctx context.Context, platform lyriccache.Platform, req Request) (*Lyrics, bool) {
	hit, ok, err := s.store.Lookup(ctx, platform, req.SourceTrackID)
	if err != nil {
		log.Warn("durable cache lookup failed: %v", err)
		return nil, false
	}
	if !ok {
		scope.Observe(ctx, "durable_cache_miss", req.SourceTrackID)
		return nil, false
	}

	rich, hasRich := hit.Get(lyriccache.FormatRichSync)
	synced, hasSynced := hit.Get(lyriccache.FormatNormalSync)
	if !hasSynced && !(req.Enhanced && hasRich) {
		scope.Observe(ctx, "durable_cache_partial", req.SourceTrackID)
		return nil, false
	}
	scope.Observe(ctx, "durable_cache_hit", req.SourceTrackID)

	out := &Lyrics{Source: SourceCache, MusixmatchTrackID: hit.MusixmatchTrackID}
	if req.Enhanced && hasRich {
		out.RichSynced = rich
	} else {
		out.Synced = synced
		out.Unsynced = lrc.Parse(synced).PlainText()
	}
	return out, true
}

// resolve shares one resolution between concurrent identical requests. The
// shared work runs detached from any single caller; each caller stops waiting
// when its own ctx is done.
func (s *LyricsService) resolve(ctx context.Context, req Request, threshold float64, hint string) (*resolver.Result, error) {
	key := strings.ToLower(strings.Join([]string{req.Artist, req.Song, req.Album}, "\x00"))
	if req.Enhanced {
		key += "\x00enhanced"
	}
	key += "\x00" + strconv.FormatFloat(threshold, 'g', -1, 64)
	if hint != "" {
		key += "\x00" + req.Platform + ":" + req.SourceTrackID
	}

	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.resolver.Resolve(detached, resolver.Query{
			Artist:            req.Artist,
			Track:             req.Song,
			Album:             req.Album,
			Enhanced:          req.Enhanced,
			BasicHint:         hint,
			VarianceThreshold: threshold,
		})
	})

	select {
	case <-ctx.Done():
		scope.Observe(ctx, "resolve_abandoned", key)
		return nil, errs.Wrap(ctx.Err(), errs.Transport, "resolution abandoned")
	case res := <-ch:
		if res.Shared {
			scope.Observe(ctx, "resolve_shared", key)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*resolver.Result), nil
	}
}

// persist schedules a durable save of every format the result produced.
func (s *LyricsService) persist(ctx context.Context, platform lyriccache.Platform, sourceTrackID string, res *resolver.Result) {
	saves := make([]lyriccache.SaveRequest, 0, 2)
	if res.RichSynced != "" {
		saves = append(saves, lyriccache.SaveRequest{Format: lyriccache.FormatRichSync, Content: res.RichSynced})
	}
	if res.Synced != "" {
		saves = append(saves, lyriccache.SaveRequest{Format: lyriccache.FormatNormalSync, Content: res.Synced})
	}
	for _, save := range saves {
		save := save
		save.Platform = platform
		save.SourceTrackID = sourceTrackID
		save.MusixmatchTrackID = res.Track.TrackID
		scope.Defer(ctx, "save_"+string(save.Format), func(ctx context.Context) error {
			if err := s.store.Save(ctx, save); err != nil {
				log.Error("caching %s for %s/%s failed: %v", save.Format, platform, sourceTrackID, err)
				return err
			}
			return nil
		})
	}
}

func (s *LyricsService) finish(ctx context.Context, req Request, out *Lyrics, tier string) *Lyrics {
	text := out.Unsynced
	if text == "" && out.Synced != "" {
		text = lrc.Parse(out.Synced).PlainText()
	}
	if tag := lrc.DetectLanguage(strings.Split(text, "\n")); tag != language.Und {
		out.Language = tag.String()
	}
	if req.Debug {
		out.Debug = &Debug{RequestID: scope.ID(ctx), Tier: tier}
	}
	return out
}
