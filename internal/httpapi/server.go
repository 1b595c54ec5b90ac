package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/MimeLyc/synced-lyrics/internal/config"
	"github.com/MimeLyc/synced-lyrics/internal/maintenance"
	"github.com/MimeLyc/synced-lyrics/internal/persistence"
	"github.com/MimeLyc/synced-lyrics/internal/respcache"
	"github.com/MimeLyc/synced-lyrics/internal/scope"
	"github.com/MimeLyc/synced-lyrics/internal/service"
	"github.com/MimeLyc/synced-lyrics/pkg/log"
)

type lyricsService interface {
	GetLyrics(ctx context.Context, req service.Request) (*service.Lyrics, error)
}

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(next config.RuntimeSettings) error

type indexStats interface {
	Stats(ctx context.Context) (persistence.IndexStats, error)
}

type responseCacheStats interface {
	Stats() respcache.Stats
}

type pruner interface {
	Run(ctx context.Context) (maintenance.Report, error)
}

// Authorizer decides whether a lyrics request may proceed. It stands in for
// bot-challenge and bearer-token checks done by collaborators.
type Authorizer interface {
	Authorize(r *http.Request) error
}

type Server struct {
	lyrics     lyricsService
	settings   runtimeSettingsStore
	apply      runtimeSettingsApplier
	index      indexStats
	responses  responseCacheStats
	pruner     pruner
	authorizer Authorizer
	tracker    *scope.Tracker

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

func WithStats(index indexStats, responses responseCacheStats) Option {
	return func(s *Server) {
		s.index = index
		s.responses = responses
	}
}

func WithPruner(p pruner) Option {
	return func(s *Server) {
		s.pruner = p
	}
}

func WithAuthorizer(a Authorizer) Option {
	return func(s *Server) {
		s.authorizer = a
	}
}

func NewServer(lyrics lyricsService, opts ...Option) *Server {
	s := &Server{
		lyrics:  lyrics,
		tracker: &scope.Tracker{},
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests, then waits for deferred request work.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return err
		}
	}
	return s.WaitDeferred(ctx)
}

// WaitDeferred blocks until background work of finished requests completes.
func (s *Server) WaitDeferred(ctx context.Context) error {
	return s.tracker.Wait(ctx)
}

func (s *Server) routes() {
	s.mux.Handle("/api/lyrics", s.withScope(http.HandlerFunc(s.handleLyrics)))
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	s.mux.HandleFunc("/api/prune", s.handlePrune)
	s.mux.HandleFunc("/healthz", s.handleHealth)
}

// withScope gives each request its own scope. The scope's deferred work is
// joined after the response has been written.
func (s *Server) withScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, sc := scope.New(r.Context())
		w.Header().Set("X-Request-ID", sc.ID())
		started := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		log.Debug("%s %s handled in %s (request %s)", r.Method, r.URL.Path, time.Since(started).Round(time.Millisecond), sc.ID())
		s.tracker.Finish(sc)
	})
}
