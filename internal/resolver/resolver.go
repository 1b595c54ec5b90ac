package resolver

import (
	"context"
	"errors"

	"github.com/MimeLyc/synced-lyrics/internal/align"
	"github.com/MimeLyc/synced-lyrics/internal/errs"
	"github.com/MimeLyc/synced-lyrics/internal/lrc"
	"github.com/MimeLyc/synced-lyrics/internal/musixmatch"
	"github.com/MimeLyc/synced-lyrics/internal/scope"
	"github.com/MimeLyc/synced-lyrics/pkg/log"
	"golang.org/x/sync/errgroup"
)

// ErrNoLyrics is returned when the matched track has no synced transcript.
var ErrNoLyrics = errors.New("no synced lyrics for track")

// Upstream is the subset of the Musixmatch client the resolver drives.
type Upstream interface {
	MatchTrack(ctx context.Context, q musixmatch.MatchQuery) (musixmatch.Track, error)
	Subtitle(ctx context.Context, trackID int64) (string, error)
	RichSync(ctx context.Context, trackID int64) ([]lrc.RichLine, error)
}

// Tier is the resolution path taken for a track.
type Tier string

const (
	TierRichSync  Tier = "rich_sync"
	TierBasicSync Tier = "basic_sync"
	TierNone      Tier = "none"
)

type Query struct {
	Artist string
	Track  string
	Album  string
	// Enhanced asks for word-synced output when available.
	Enhanced bool
	// BasicHint is a line-synced transcript already known to the caller. It
	// replaces the upstream subtitle fetch on both paths.
	BasicHint string
	// VarianceThreshold overrides the aligner threshold when positive.
	VarianceThreshold float64
}

// Result is a resolved track. RichSynced is set on the rich tier, Synced on
// the basic tier.
type Result struct {
	Track      musixmatch.Track
	Tier       Tier
	RichSynced string
	Synced     string
	Unsynced   string
	Alignment  *align.Result
}

type Resolver struct {
	upstream Upstream
	aligner  *align.Aligner
}

func New(upstream Upstream, aligner *align.Aligner) *Resolver {
	if aligner == nil {
		aligner = align.New()
	}
	return &Resolver{upstream: upstream, aligner: aligner}
}

// Resolve matches the query upstream and picks the best available tier.
// It returns ErrNoLyrics when the track has neither rich nor basic sync.
func (r *Resolver) Resolve(ctx context.Context, q Query) (*Result, error) {
	track, err := r.upstream.MatchTrack(ctx, musixmatch.MatchQuery{
		Artist: q.Artist,
		Track:  q.Track,
		Album:  q.Album,
	})
	if err != nil {
		return nil, err
	}
	log.Debug("matched %s richsync=%t subtitles=%t lyrics=%t",
		track, track.RichSyncAvailable(), track.SubtitlesAvailable(), track.LyricsAvailable())

	switch {
	case track.RichSyncAvailable() && q.Enhanced:
		return r.richPath(ctx, track, q)
	case track.SubtitlesAvailable():
		return r.basicPath(ctx, track, q.BasicHint)
	default:
		scope.Observe(ctx, "tier", TierNone)
		return nil, errs.Wrap(ErrNoLyrics, errs.NotFound, "nothing to resolve").WithContext("track_id", track.TrackID)
	}
}

func (r *Resolver) basicPath(ctx context.Context, track musixmatch.Track, hint string) (*Result, error) {
	basic := hint
	if basic == "" {
		var err error
		if basic, err = r.upstream.Subtitle(ctx, track.TrackID); err != nil {
			return nil, err
		}
	}
	scope.Observe(ctx, "tier", TierBasicSync)
	return basicResult(track, basic, nil), nil
}

func (r *Resolver) richPath(ctx context.Context, track musixmatch.Track, q Query) (*Result, error) {
	var (
		rich     []lrc.RichLine
		richErr  error
		basic    = q.BasicHint
		basicErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		rich, richErr = r.upstream.RichSync(ctx, track.TrackID)
		return nil
	})
	if basic == "" {
		g.Go(func() error {
			basic, basicErr = r.upstream.Subtitle(ctx, track.TrackID)
			return nil
		})
	}
	_ = g.Wait()

	if basicErr != nil {
		log.Debug("basic transcript for %d unavailable: %v", track.TrackID, basicErr)
		basic = ""
	}
	if richErr != nil {
		log.Warn("rich sync for %d failed, falling back to basic: %v", track.TrackID, richErr)
		scope.Observe(ctx, "richsync_error", richErr.Error())
		if basic == "" {
			if track.SubtitlesAvailable() && basicErr != nil {
				return nil, basicErr
			}
			return nil, richErr
		}
		scope.Observe(ctx, "tier", TierBasicSync)
		return basicResult(track, basic, nil), nil
	}

	if basic == "" {
		scope.Observe(ctx, "tier", TierRichSync)
		return richResult(track, rich, nil), nil
	}

	res := r.aligner.Align(rich, lrc.Parse(basic).Lines)
	if q.VarianceThreshold > 0 {
		res = res.Judge(q.VarianceThreshold)
	}
	scope.Observe(ctx, "alignment", map[string]any{
		"mean":      res.Mean,
		"variance":  res.Variance,
		"samples":   res.Samples,
		"accepted":  res.Accepted,
		"truncated": res.Truncated,
	})

	if !res.Accepted {
		log.Info("alignment for %d rejected (samples=%d variance=%.3f), using line-synced transcript",
			track.TrackID, res.Samples, res.Variance)
		scope.Observe(ctx, "tier", TierBasicSync)
		return basicResult(track, basic, &res), nil
	}
	scope.Observe(ctx, "tier", TierRichSync)
	return richResult(track, rich, &res), nil
}

func basicResult(track musixmatch.Track, basic string, alignment *align.Result) *Result {
	return &Result{
		Track:     track,
		Tier:      TierBasicSync,
		Synced:    basic,
		Unsynced:  lrc.Parse(basic).PlainText(),
		Alignment: alignment,
	}
}

// richResult renders rich lines, prefixed with the offset header when an
// accepted alignment is given.
func richResult(track musixmatch.Track, rich []lrc.RichLine, alignment *align.Result) *Result {
	body := lrc.RenderRichSync(rich)
	if alignment != nil && alignment.Accepted {
		body = lrc.FormatOffsetHeader(alignment.Offset) + body
	}
	return &Result{
		Track:      track,
		Tier:       TierRichSync,
		RichSynced: body,
		Unsynced:   lrc.RichPlainText(rich),
		Alignment:  alignment,
	}
}
