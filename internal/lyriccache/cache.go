package lyriccache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/MimeLyc/synced-lyrics/internal/blobstore"
	"github.com/MimeLyc/synced-lyrics/internal/errs"
	"github.com/MimeLyc/synced-lyrics/internal/persistence"
	"github.com/MimeLyc/synced-lyrics/internal/scope"
	"github.com/MimeLyc/synced-lyrics/pkg/log"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"
)

const DefaultAccessRefreshInterval = 24 * time.Hour

// Index is the durable track index.
type Index interface {
	LookupTrack(ctx context.Context, platform, sourceTrackID string) (persistence.TrackIndex, bool, error)
	TouchTrack(ctx context.Context, trackID int64, at time.Time) error
	SaveLyric(ctx context.Context, rec persistence.LyricRecord, now time.Time) error
}

// Cache is the durable tier: an index keyed by source track plus gzip blobs.
type Cache struct {
	index           Index
	blobs           blobstore.Store
	refreshInterval time.Duration
	now             func() time.Time
}

type Option func(*Cache)

// WithAccessRefreshInterval sets how stale last_accessed_at must be before a hit refreshes it.
func WithAccessRefreshInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.refreshInterval = d
		}
	}
}

func New(index Index, blobs blobstore.Store, opts ...Option) *Cache {
	c := &Cache{
		index:           index,
		blobs:           blobs,
		refreshInterval: DefaultAccessRefreshInterval,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the stored transcripts of a source track. ok is false when
// the track was never mapped. Blobs that are missing or unreadable are logged
// and left out of the hit.
func (c *Cache) Lookup(ctx context.Context, platform Platform, sourceTrackID string) (Hit, bool, error) {
	idx, ok, err := c.index.LookupTrack(ctx, string(platform), sourceTrackID)
	if err != nil {
		return Hit{}, false, fmt.Errorf("lookup %s/%s: %w", platform, sourceTrackID, err)
	}
	if !ok {
		return Hit{}, false, nil
	}

	if now := c.now(); now.Sub(idx.LastAccessedAt) > c.refreshInterval {
		trackID := idx.TrackID
		scope.Defer(ctx, "touch_track", func(ctx context.Context) error {
			return c.index.TouchTrack(ctx, trackID, now)
		})
	}

	results := make([]*Lyric, len(idx.Lyrics))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range idx.Lyrics {
		i, ref := i, ref
		g.Go(func() error {
			content, err := c.readBlob(gctx, ref.ObjectKey)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warn("lyric blob %s unavailable: %v", ref.ObjectKey, err)
				scope.Observe(ctx, "blob_missing", ref.ObjectKey)
				return nil
			}
			results[i] = &Lyric{Format: Format(ref.Format), Content: content}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Hit{}, false, err
	}

	hit := Hit{MusixmatchTrackID: idx.MusixmatchTrackID}
	for _, r := range results {
		if r != nil {
			hit.Lyrics = append(hit.Lyrics, *r)
		}
	}
	return hit, true, nil
}

func (c *Cache) readBlob(ctx context.Context, key string) (string, error) {
	data, err := c.blobs.Get(ctx, key)
	if err != nil {
		return "", err
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open gzip: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return "", fmt.Errorf("gunzip: %w", err)
	}
	return string(raw), nil
}

// Save compresses and stores one transcript and indexes it. Repeating a save
// with the same arguments is a no-op on the index.
func (c *Cache) Save(ctx context.Context, req SaveRequest) error {
	if !req.Format.Valid() {
		return errs.Newf(errs.Validation, "unknown lyric format %q", req.Format)
	}
	if _, err := ParsePlatform(string(req.Platform)); err != nil {
		return errs.Wrap(err, errs.Validation, "invalid platform")
	}
	if req.SourceTrackID == "" {
		return errs.New(errs.Validation, "source track id is required")
	}

	compressed, err := compress(req.Content)
	if err != nil {
		return errs.Wrap(err, errs.CacheWrite, "compress lyric")
	}

	key := ObjectKey(req.MusixmatchTrackID, req.Format)
	if err := c.blobs.Put(ctx, key, compressed); err != nil {
		return errs.Wrap(err, errs.CacheWrite, "put blob").WithContext("key", key)
	}

	if err := c.index.SaveLyric(ctx, persistence.LyricRecord{
		SourcePlatform:    string(req.Platform),
		SourceTrackID:     req.SourceTrackID,
		MusixmatchTrackID: req.MusixmatchTrackID,
		Format:            string(req.Format),
		ObjectKey:         key,
	}, c.now()); err != nil {
		return errs.Wrap(err, errs.CacheWrite, "index lyric").WithContext("key", key)
	}

	log.Debug("stored %s (%s -> %s)", key, humanize.Bytes(uint64(len(req.Content))), humanize.Bytes(uint64(len(compressed))))
	return nil
}

func compress(content string) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := io.WriteString(zw, content); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

