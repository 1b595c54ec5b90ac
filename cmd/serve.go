package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/MimeLyc/synced-lyrics/internal/config"
	"github.com/MimeLyc/synced-lyrics/internal/httpapi"
	"github.com/MimeLyc/synced-lyrics/internal/maintenance"
	"github.com/MimeLyc/synced-lyrics/pkg/log"
	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func newServeCommand(flags *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the lyrics HTTP API and scheduled maintenance",
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []config.Option
			if addr != "" {
				opts = append(opts, config.WithHTTPAddr(addr))
			}
			cfg, err := loadConfig(flags, opts...)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(cfg.System.DataDir, 0o755); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}
			lock := flock.New(cfg.LockPath())
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !ok {
				return fmt.Errorf("another lyricsd is already serving %s", cfg.System.DataDir)
			}
			defer func() { _ = lock.Unlock() }()

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			engine := cron.New()
			prune := &pruneScheduler{pruner: a.pruner, cron: engine, expr: cfg.Maintenance.PruneCron}
			srv := a.httpServer(httpapi.WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
				return prune.Reschedule(ctx, next.PruneCron)
			}))
			return runWithComponents(ctx, cfg, prune, engine, srv)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Override HTTP_ADDR")
	return cmd
}

// runWithComponents schedules background work, serves HTTP until ctx is
// done, then shuts both down.
func runWithComponents(ctx context.Context, cfg *config.Config, sched scheduler, engine cronEngine, srv httpServer) error {
	if err := sched.Schedule(ctx); err != nil {
		return err
	}
	engine.Start()
	defer func() {
		select {
		case <-engine.Stop().Done():
		case <-time.After(shutdownTimeout):
			log.Warn("Scheduled jobs still running after %s", shutdownTimeout)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info("Listening on %s", cfg.HTTP.Addr)
		errCh <- srv.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// pruneScheduler keeps a single prune entry on the cron engine and moves it
// when the expression changes.
type pruneScheduler struct {
	pruner *maintenance.Pruner
	cron   *cron.Cron

	mu    sync.Mutex
	expr  string
	entry cron.EntryID
}

func (s *pruneScheduler) Schedule(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.pruner.Schedule(ctx, s.cron, s.expr)
	if err != nil {
		return err
	}
	s.entry = id
	return nil
}

func (s *pruneScheduler) Reschedule(ctx context.Context, expr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expr == s.expr {
		return nil
	}
	id, err := s.pruner.Schedule(ctx, s.cron, expr)
	if err != nil {
		return err
	}
	s.cron.Remove(s.entry)
	s.entry = id
	s.expr = expr
	return nil
}
