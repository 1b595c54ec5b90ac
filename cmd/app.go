package main

import (
	"fmt"

	"github.com/MimeLyc/synced-lyrics/internal/align"
	"github.com/MimeLyc/synced-lyrics/internal/blobstore"
	"github.com/MimeLyc/synced-lyrics/internal/config"
	"github.com/MimeLyc/synced-lyrics/internal/httpapi"
	"github.com/MimeLyc/synced-lyrics/internal/lrclib"
	"github.com/MimeLyc/synced-lyrics/internal/lyriccache"
	"github.com/MimeLyc/synced-lyrics/internal/maintenance"
	"github.com/MimeLyc/synced-lyrics/internal/musixmatch"
	"github.com/MimeLyc/synced-lyrics/internal/persistence"
	"github.com/MimeLyc/synced-lyrics/internal/resolver"
	"github.com/MimeLyc/synced-lyrics/internal/respcache"
	"github.com/MimeLyc/synced-lyrics/internal/service"
	"github.com/MimeLyc/synced-lyrics/pkg/log"
)

// app holds the wired components shared by every command.
type app struct {
	cfg       *config.Config
	store     *persistence.SQLiteStore
	blobs     *blobstore.FS
	memory    *respcache.Memory
	responses respcache.Cache
	settings  *config.RuntimeSettingsStore
	lyrics    *service.LyricsService
	pruner    *maintenance.Pruner
}

func newApp(cfg *config.Config) (*app, error) {
	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	blobs, err := blobstore.NewFS(cfg.BlobDir())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	settings, err := config.NewRuntimeSettingsStore(cfg.RuntimeSettingsFilePath(), cfg.RuntimeSettings())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("runtime settings: %w", err)
	}

	a := &app{cfg: cfg, store: store, blobs: blobs, settings: settings}

	expiring := []maintenance.ExpiringCache{store.ResponseCache()}
	switch cfg.Cache.ResponseBackend {
	case config.ResponseCacheSQLite:
		a.responses = store.ResponseCache()
	default:
		a.memory = respcache.NewMemory(cfg.Cache.ResponseMaxBytes)
		a.responses = a.memory
		expiring = append(expiring, a.memory)
	}
	log.Info("Response cache backend: %s", cfg.Cache.ResponseBackend)

	client := musixmatch.NewClient(
		musixmatch.WithBaseURL(cfg.Musixmatch.APIURL),
		musixmatch.WithAppID(cfg.Musixmatch.AppID),
		musixmatch.WithTimeout(cfg.Musixmatch.Timeout),
		musixmatch.WithCache(a.responses),
		musixmatch.WithTTLs(cfg.Musixmatch.TokenTTL, cfg.Musixmatch.ContentTTL),
		musixmatch.WithMaxRedirects(cfg.Musixmatch.MaxRedirects),
		musixmatch.WithRateLimit(cfg.Musixmatch.RequestsPerSecond),
	)
	aligner := align.New(
		align.WithThreshold(cfg.Align.VarianceThreshold),
		align.WithMaxEditLength(cfg.Align.MaxEditLength),
	)
	lyricCache := lyriccache.New(store, blobs,
		lyriccache.WithAccessRefreshInterval(cfg.Cache.AccessRefreshInterval))

	a.lyrics = service.NewLyricsService(
		resolver.New(client, aligner),
		cfg.RuntimeSettings(),
		service.WithStore(lyricCache),
		service.WithBasicProvider(lrclib.NewClient(lrclib.WithAPIURL(cfg.LRCLib.APIURL))),
		service.WithSettings(settings),
	)

	a.pruner = maintenance.NewPruner(
		maintenance.WithResponseCaches(expiring...),
		maintenance.WithTrackEviction(store, blobs, cfg.Maintenance.TrackRetention),
		maintenance.WithTempSweep(blobs.Root()),
	)
	return a, nil
}

func (a *app) httpServer(opts ...httpapi.Option) *httpapi.Server {
	base := []httpapi.Option{
		httpapi.WithRuntimeSettingsStore(a.settings),
		httpapi.WithPruner(a.pruner),
	}
	if a.memory != nil {
		base = append(base, httpapi.WithStats(a.store, a.memory))
	} else {
		base = append(base, httpapi.WithStats(a.store, nil))
	}
	return httpapi.NewServer(a.lyrics, append(base, opts...)...)
}

func (a *app) Close() error {
	return a.store.Close()
}
