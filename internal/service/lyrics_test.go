package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MimeLyc/synced-lyrics/internal/align"
	"github.com/MimeLyc/synced-lyrics/internal/config"
	"github.com/MimeLyc/synced-lyrics/internal/errs"
	"github.com/MimeLyc/synced-lyrics/internal/lrclib"
	"github.com/MimeLyc/synced-lyrics/internal/lyriccache"
	"github.com/MimeLyc/synced-lyrics/internal/musixmatch"
	"github.com/MimeLyc/synced-lyrics/internal/resolver"
	"github.com/MimeLyc/synced-lyrics/internal/scope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bohemianLRC = "[00:01.00] Is this the real life?\n[00:05.00] Is this just fantasy?\n"

type fakeResolver struct {
	mu      sync.Mutex
	queries []resolver.Query
	result  *resolver.Result
	err     error
	delay   time.Duration
	release chan struct{}
	calls   atomic.Int32
}

func (f *fakeResolver) Resolve(ctx context.Context, q resolver.Query) (*resolver.Result, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

type fakeStore struct {
	mu      sync.Mutex
	hit     lyriccache.Hit
	found   bool
	err     error
	saves   []lyriccache.SaveRequest
	saveErr error
}

func (f *fakeStore) Lookup(context.Context, lyriccache.Platform, string) (lyriccache.Hit, bool, error) {
	return f.hit, f.found, f.err
}

func (f *fakeStore) Save(_ context.Context, req lyriccache.SaveRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, req)
	return f.saveErr
}

type fakeBasic struct {
	result lrclib.Result
	err    error
	calls  atomic.Int32
}

func (f *fakeBasic) Fetch(context.Context, lrclib.Query) (lrclib.Result, error) {
	f.calls.Add(1)
	return f.result, f.err
}

type staticSettings struct {
	settings config.RuntimeSettings
	err      error
}

func (s staticSettings) GetRuntimeSettings() (config.RuntimeSettings, error) {
	return s.settings, s.err
}

var defaults = config.RuntimeSettings{VarianceThreshold: 1.5, LRCLibEnabled: true, PruneCron: "17 3 * * *"}

func richResult() *resolver.Result {
	accepted := align.Result{Offset: 0.25, Mean: 0.25, Samples: 2, Accepted: true}
	return &resolver.Result{
		Track:      musixmatch.Track{TrackID: 84906},
		Tier:       resolver.TierRichSync,
		RichSynced: "[offset:+0.25]\n[00:01.25] <00:01.25> Is <00:04.25>\n",
		Unsynced:   "Is this the real life?",
		Alignment:  &accepted,
	}
}

func TestGetLyrics_Validation(t *testing.T) {
	svc := NewLyricsService(&fakeResolver{}, defaults)
	ctx := context.Background()

	tests := []Request{
		{Song: "Bohemian Rhapsody"},
		{Artist: "Queen", Song: "  "},
		{Artist: "Queen", Song: "Bohemian Rhapsody", Platform: "tidal", SourceTrackID: "1"},
		{Artist: "Queen", Song: "Bohemian Rhapsody", Platform: "spotify"},
	}
	for _, req := range tests {
		_, err := svc.GetLyrics(ctx, req)
		require.Error(t, err, "%+v", req)
		assert.True(t, errs.Is(err, errs.Validation), "%+v", req)
	}
}

func TestGetLyrics_ResolvesAndPersists(t *testing.T) {
	r := &fakeResolver{result: richResult()}
	store := &fakeStore{}
	svc := NewLyricsService(r, defaults, WithStore(store))

	out, err := svc.GetLyrics(context.Background(), Request{
		Artist: " Queen ", Song: "Bohemian Rhapsody", Platform: "spotify", SourceTrackID: "7tFiyTwD0nx5a1eklYtX2J", Enhanced: true,
	})
	require.NoError(t, err)

	assert.Equal(t, SourceMusixmatch, out.Source)
	assert.Equal(t, richResult().RichSynced, out.RichSynced)
	assert.Equal(t, int64(84906), out.MusixmatchTrackID)
	assert.Nil(t, out.Debug)

	require.Len(t, r.queries, 1)
	assert.Equal(t, "Queen", r.queries[0].Artist)
	assert.True(t, r.queries[0].Enhanced)
	assert.Equal(t, 1.5, r.queries[0].VarianceThreshold)

	require.Len(t, store.saves, 1)
	assert.Equal(t, lyriccache.SaveRequest{
		Platform:          lyriccache.PlatformSpotify,
		SourceTrackID:     "7tFiyTwD0nx5a1eklYtX2J",
		MusixmatchTrackID: 84906,
		Format:            lyriccache.FormatRichSync,
		Content:           richResult().RichSynced,
	}, store.saves[0])
}

func TestGetLyrics_SaveRunsAfterResponseInScope(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("disk full")}
	svc := NewLyricsService(&fakeResolver{result: &resolver.Result{
		Track: musixmatch.Track{TrackID: 1}, Tier: resolver.TierBasicSync, Synced: bohemianLRC,
	}}, defaults, WithStore(store))

	ctx, s := scope.New(context.Background())
	out, err := svc.GetLyrics(ctx, Request{Artist: "Queen", Song: "Bohemian Rhapsody", Platform: "youtube_music", SourceTrackID: "fJ9rUzIMcZQ", Debug: true})
	require.NoError(t, err)
	assert.Equal(t, bohemianLRC, out.Synced)
	require.NotNil(t, out.Debug)
	assert.Equal(t, s.ID(), out.Debug.RequestID)
	assert.Equal(t, "basic_sync", out.Debug.Tier)

	s.Wait()
	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.saves, 1)
	assert.Equal(t, lyriccache.FormatNormalSync, store.saves[0].Format)

	var sawError bool
	for _, e := range s.Events() {
		if e.Name == "deferred_error" {
			sawError = true
		}
	}
	assert.True(t, sawError)
}

func TestGetLyrics_CacheHit(t *testing.T) {
	r := &fakeResolver{}
	store := &fakeStore{found: true, hit: lyriccache.Hit{
		MusixmatchTrackID: 84906,
		Lyrics: []lyriccache.Lyric{
			{Format: lyriccache.FormatRichSync, Content: "[offset:+0.25]\n"},
			{Format: lyriccache.FormatNormalSync, Content: bohemianLRC},
		},
	}}
	svc := NewLyricsService(r, defaults, WithStore(store))
	ctx := context.Background()

	enhanced, err := svc.GetLyrics(ctx, Request{Artist: "Queen", Song: "Bohemian Rhapsody", Platform: "spotify", SourceTrackID: "x", Enhanced: true})
	require.NoError(t, err)
	assert.Equal(t, SourceCache, enhanced.Source)
	assert.Equal(t, "[offset:+0.25]\n", enhanced.RichSynced)
	assert.Empty(t, enhanced.Synced)

	plain, err := svc.GetLyrics(ctx, Request{Artist: "Queen", Song: "Bohemian Rhapsody", Platform: "spotify", SourceTrackID: "x"})
	require.NoError(t, err)
	assert.Equal(t, bohemianLRC, plain.Synced)
	assert.Equal(t, "Is this the real life?\nIs this just fantasy?", plain.Unsynced)

	assert.Zero(t, r.calls.Load())
}

func TestGetLyrics_PartialCacheHitResolves(t *testing.T) {
	r := &fakeResolver{result: &resolver.Result{Tier: resolver.TierBasicSync, Synced: bohemianLRC}}
	store := &fakeStore{found: true, hit: lyriccache.Hit{
		Lyrics: []lyriccache.Lyric{{Format: lyriccache.FormatRichSync, Content: "rich"}},
	}}
	svc := NewLyricsService(r, defaults, WithStore(store))

	out, err := svc.GetLyrics(context.Background(), Request{Artist: "Queen", Song: "Bohemian Rhapsody", Platform: "spotify", SourceTrackID: "x"})
	require.NoError(t, err)
	assert.Equal(t, SourceMusixmatch, out.Source)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestGetLyrics_CacheErrorIsAMiss(t *testing.T) {
	r := &fakeResolver{result: &resolver.Result{Tier: resolver.TierBasicSync, Synced: bohemianLRC}}
	svc := NewLyricsService(r, defaults, WithStore(&fakeStore{err: errors.New("database is locked")}))

	out, err := svc.GetLyrics(context.Background(), Request{Artist: "Queen", Song: "Bohemian Rhapsody", Platform: "spotify", SourceTrackID: "x"})
	require.NoError(t, err)
	assert.Equal(t, SourceMusixmatch, out.Source)
}

func TestGetLyrics_FallsBackToLRCLib(t *testing.T) {
	r := &fakeResolver{err: errs.Wrap(resolver.ErrNoLyrics, errs.NotFound, "nothing to resolve")}
	basic := &fakeBasic{result: lrclib.Result{Synced: bohemianLRC, Unsynced: "Is this the real life?"}}
	store := &fakeStore{}
	svc := NewLyricsService(r, defaults, WithStore(store), WithBasicProvider(basic))

	out, err := svc.GetLyrics(context.Background(), Request{Artist: "Queen", Song: "Bohemian Rhapsody", Platform: "spotify", SourceTrackID: "x", Debug: true})
	require.NoError(t, err)

	assert.Equal(t, SourceLRCLib, out.Source)
	assert.Equal(t, bohemianLRC, out.Synced)
	require.NotNil(t, out.Debug)
	assert.Contains(t, out.Debug.Error, "nothing to resolve")
	assert.Empty(t, store.saves)
}

func TestGetLyrics_NotFound(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		settings config.RuntimeSettings
		basic    *fakeBasic
	}{
		{
			name:     "no lyrics and fallback disabled",
			err:      errs.Wrap(resolver.ErrNoLyrics, errs.NotFound, "nothing to resolve"),
			settings: config.RuntimeSettings{VarianceThreshold: 1.5, LRCLibEnabled: false},
			basic:    &fakeBasic{result: lrclib.Result{Synced: bohemianLRC}},
		},
		{
			name:     "transport failure and empty fallback",
			err:      errs.New(errs.Transport, "connection refused"),
			settings: defaults,
			basic:    &fakeBasic{},
		},
		{
			name:     "redirect loop and failing fallback",
			err:      errs.New(errs.Protocol, "too many redirects"),
			settings: defaults,
			basic:    &fakeBasic{err: errs.New(errs.Transport, "lrclib down")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewLyricsService(&fakeResolver{err: tt.err}, defaults,
				WithBasicProvider(tt.basic),
				WithSettings(staticSettings{settings: tt.settings}))

			out, err := svc.GetLyrics(context.Background(), Request{Artist: "Queen", Song: "Bohemian Rhapsody"})
			assert.Nil(t, out)
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.NotFound))
			assert.ErrorIs(t, err, tt.err)
			if !tt.settings.LRCLibEnabled {
				assert.Zero(t, tt.basic.calls.Load())
			}
		})
	}
}

func TestGetLyrics_SettingsErrorUsesDefaults(t *testing.T) {
	r := &fakeResolver{result: &resolver.Result{Tier: resolver.TierBasicSync, Synced: bohemianLRC}}
	svc := NewLyricsService(r, defaults, WithSettings(staticSettings{err: errors.New("unreadable")}))

	_, err := svc.GetLyrics(context.Background(), Request{Artist: "Queen", Song: "Bohemian Rhapsody"})
	require.NoError(t, err)
	assert.Equal(t, 1.5, r.queries[0].VarianceThreshold)
}

func TestGetLyrics_ConcurrentRequestsShareResolution(t *testing.T) {
	r := &fakeResolver{result: richResult(), delay: 100 * time.Millisecond}
	svc := NewLyricsService(r, defaults)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := svc.GetLyrics(context.Background(), Request{Artist: "Queen", Song: "bohemian rhapsody", Enhanced: true})
			assert.NoError(t, err)
			assert.Equal(t, SourceMusixmatch, out.Source)
		}()
	}
	wg.Wait()

	assert.Less(t, r.calls.Load(), int32(5))
}

func TestGetLyrics_CancelledCallerDoesNotFailSharedRequest(t *testing.T) {
	r := &fakeResolver{result: richResult(), release: make(chan struct{})}
	svc := NewLyricsService(r, defaults)
	req := Request{Artist: "Queen", Song: "Bohemian Rhapsody", Enhanced: true}

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.GetLyrics(ctx, req)
		firstErr <- err
	}()
	for r.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	second := make(chan *Lyrics, 1)
	go func() {
		out, err := svc.GetLyrics(context.Background(), req)
		assert.NoError(t, err)
		second <- out
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	err := <-firstErr
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	close(r.release)
	out := <-second
	require.NotNil(t, out)
	assert.Equal(t, SourceMusixmatch, out.Source)
	assert.Equal(t, richResult().RichSynced, out.RichSynced)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestGetLyrics_StoredTranscriptSeedsRichResolution(t *testing.T) {
	r := &fakeResolver{result: richResult()}
	store := &fakeStore{found: true, hit: lyriccache.Hit{
		MusixmatchTrackID: 84906,
		Lyrics:            []lyriccache.Lyric{{Format: lyriccache.FormatNormalSync, Content: bohemianLRC}},
	}}
	svc := NewLyricsService(r, defaults, WithStore(store))

	out, err := svc.GetLyrics(context.Background(), Request{
		Artist: "Queen", Song: "Bohemian Rhapsody", Platform: "spotify", SourceTrackID: "x", Enhanced: true,
	})
	require.NoError(t, err)
	assert.Equal(t, SourceMusixmatch, out.Source)
	assert.Equal(t, richResult().RichSynced, out.RichSynced)

	require.Len(t, r.queries, 1)
	assert.Equal(t, bohemianLRC, r.queries[0].BasicHint)
	require.Len(t, store.saves, 1)
	assert.Equal(t, lyriccache.FormatRichSync, store.saves[0].Format)
}

func TestGetLyrics_StoredTranscriptKeptWithoutRichSync(t *testing.T) {
	tests := []struct {
		name     string
		resolver *fakeResolver
	}{
		{
			name:     "track has no rich sync",
			resolver: &fakeResolver{result: &resolver.Result{Tier: resolver.TierBasicSync, Synced: bohemianLRC}},
		},
		{
			name:     "upstream failure",
			resolver: &fakeResolver{err: errs.New(errs.Transport, "connection refused")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{found: true, hit: lyriccache.Hit{
				MusixmatchTrackID: 84906,
				Lyrics:            []lyriccache.Lyric{{Format: lyriccache.FormatNormalSync, Content: bohemianLRC}},
			}}
			basic := &fakeBasic{}
			svc := NewLyricsService(tt.resolver, defaults, WithStore(store), WithBasicProvider(basic))

			out, err := svc.GetLyrics(context.Background(), Request{
				Artist: "Queen", Song: "Bohemian Rhapsody", Platform: "spotify", SourceTrackID: "x", Enhanced: true,
			})
			require.NoError(t, err)
			assert.Equal(t, SourceCache, out.Source)
			assert.Equal(t, bohemianLRC, out.Synced)
			assert.Equal(t, int64(84906), out.MusixmatchTrackID)
			assert.Empty(t, store.saves)
			assert.Zero(t, basic.calls.Load())
		})
	}
}
