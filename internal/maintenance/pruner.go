package maintenance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/MimeLyc/synced-lyrics/internal/persistence"
	"github.com/MimeLyc/synced-lyrics/pkg/file"
	"github.com/MimeLyc/synced-lyrics/pkg/icron"
	"github.com/MimeLyc/synced-lyrics/pkg/log"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
)

const (
	defaultBatchSize = 200
	// Interrupted atomic writes older than this are removed.
	tempFileMaxAge = time.Hour
)

// ExpiringCache drops entries whose lifetime has passed.
type ExpiringCache interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// TrackIndex lists and removes tracks that were not accessed recently.
type TrackIndex interface {
	ListStaleTracks(ctx context.Context, cutoff time.Time, limit int) ([]persistence.StaleTrack, error)
	DeleteTracks(ctx context.Context, trackIDs []int64) (int64, error)
}

// BlobDeleter removes stored objects. Deleting a missing key is not an error.
type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Report summarizes one prune pass.
type Report struct {
	ExpiredResponses int64         `json:"expired_responses"`
	EvictedTracks    int64         `json:"evicted_tracks"`
	DeletedBlobs     int           `json:"deleted_blobs"`
	RemovedTempFiles int           `json:"removed_temp_files"`
	Duration         time.Duration `json:"duration"`
}

type Pruner struct {
	responses []ExpiringCache
	index     TrackIndex
	blobs     BlobDeleter
	blobRoot  string
	retention time.Duration
	batchSize int
	now       func() time.Time

	group singleflight.Group
}

type Option func(*Pruner)

// WithResponseCaches adds caches whose expired entries are dropped on every pass.
func WithResponseCaches(caches ...ExpiringCache) Option {
	return func(p *Pruner) {
		for _, c := range caches {
			if c != nil {
				p.responses = append(p.responses, c)
			}
		}
	}
}

// WithTrackEviction evicts tracks idle for longer than retention along with their blobs.
func WithTrackEviction(index TrackIndex, blobs BlobDeleter, retention time.Duration) Option {
	return func(p *Pruner) {
		p.index = index
		p.blobs = blobs
		p.retention = retention
	}
}

// WithTempSweep removes abandoned temporary files under root.
func WithTempSweep(root string) Option {
	return func(p *Pruner) {
		p.blobRoot = root
	}
}

func NewPruner(opts ...Option) *Pruner {
	p := &Pruner{
		batchSize: defaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run performs one prune pass. Concurrent calls share a single pass.
func (p *Pruner) Run(ctx context.Context) (Report, error) {
	v, err, _ := p.group.Do("prune", func() (any, error) {
		return p.run(ctx)
	})
	report, _ := v.(Report)
	return report, err
}

func (p *Pruner) run(ctx context.Context) (Report, error) {
	started := p.now()
	var report Report
	var errs []error

	for _, c := range p.responses {
		n, err := c.DeleteExpired(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("prune response cache: %w", err))
			continue
		}
		report.ExpiredResponses += n
	}

	if p.index != nil && p.retention > 0 {
		if err := p.evictTracks(ctx, started.Add(-p.retention), &report); err != nil {
			errs = append(errs, err)
		}
	}

	if p.blobRoot != "" {
		removed, err := p.sweepTempFiles(started.Add(-tempFileMaxAge))
		report.RemovedTempFiles = removed
		if err != nil {
			errs = append(errs, err)
		}
	}

	report.Duration = p.now().Sub(started)
	log.Info("Prune finished: %d expired responses, %d tracks evicted, %d blobs deleted, %d temp files removed",
		report.ExpiredResponses, report.EvictedTracks, report.DeletedBlobs, report.RemovedTempFiles)
	return report, errors.Join(errs...)
}

// evictTracks deletes blobs before rows so a failed pass leaves rows that the
// next pass retries. Tracks whose blobs could not be deleted keep their rows.
func (p *Pruner) evictTracks(ctx context.Context, cutoff time.Time, report *Report) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		stale, err := p.index.ListStaleTracks(ctx, cutoff, p.batchSize)
		if err != nil {
			return fmt.Errorf("list stale tracks: %w", err)
		}
		if len(stale) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(stale))
		for _, track := range stale {
			ok := true
			for _, key := range track.ObjectKeys {
				if err := p.blobs.Delete(ctx, key); err != nil {
					log.Warn("Failed to delete blob %s of track %d: %v", key, track.TrackID, err)
					ok = false
					continue
				}
				report.DeletedBlobs++
			}
			if ok {
				ids = append(ids, track.TrackID)
			}
		}
		if len(ids) == 0 {
			return fmt.Errorf("no stale track could be evicted")
		}

		deleted, err := p.index.DeleteTracks(ctx, ids)
		if err != nil {
			return fmt.Errorf("delete stale tracks: %w", err)
		}
		report.EvictedTracks += deleted
		if len(stale) < p.batchSize {
			return nil
		}
	}
}

func (p *Pruner) sweepTempFiles(cutoff time.Time) (int, error) {
	paths, err := file.FindModifiedBefore(p.blobRoot, file.TempPattern, cutoff)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("find temp files: %w", err)
	}
	removed := 0
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("Failed to remove temp file %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Schedule registers the pruner on c under cronExpr.
func (p *Pruner) Schedule(ctx context.Context, c *cron.Cron, cronExpr string) (cron.EntryID, error) {
	id, err := c.AddFunc(cronExpr, func() {
		if _, err := p.Run(ctx); err != nil {
			log.Error("Scheduled prune failed: %v", err)
		}
		if info, err := icron.GetTriggerInfo(cronExpr, p.now()); err == nil {
			log.Info("Next prune at %s (in %s)", info.Next.Format(time.RFC3339), info.TimeUntilNext.Round(time.Second))
		}
	})
	if err != nil {
		return 0, fmt.Errorf("schedule prune %q: %w", cronExpr, err)
	}
	if info, err := icron.GetTriggerInfo(cronExpr, p.now()); err == nil {
		log.Info("Prune scheduled with %q, next run at %s", cronExpr, info.Next.Format(time.RFC3339))
	}
	return id, nil
}
