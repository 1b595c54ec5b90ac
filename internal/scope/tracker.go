package scope

import (
	"context"
	"sync"
)

// Tracker follows scopes whose deferred work is still running so shutdown can
// wait for them.
type Tracker struct {
	wg sync.WaitGroup
}

// Finish waits for the scope's deferred work in the background, then drains it.
func (t *Tracker) Finish(s *Scope) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		s.Wait()
		s.Drain()
	}()
}

// Wait blocks until all finished scopes are drained or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
