package scope

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/MimeLyc/synced-lyrics/pkg/log"
	"github.com/google/uuid"
)

type ctxKey struct{}

// Event is one observation recorded during a request.
type Event struct {
	Name    string    `json:"name"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Scope carries per-request state: an id, observed events and deferred
// background work that must finish before the request is torn down.
type Scope struct {
	id      string
	started time.Time

	mu     sync.Mutex
	events []Event

	tasks sync.WaitGroup
}

// New attaches a fresh scope to ctx.
func New(ctx context.Context) (context.Context, *Scope) {
	s := &Scope{
		id:      uuid.NewString(),
		started: time.Now(),
	}
	return context.WithValue(ctx, ctxKey{}, s), s
}

func FromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Scope)
	return s, ok
}

func (s *Scope) ID() string {
	return s.id
}

// ID returns the request id of ctx, or "" outside a scope.
func ID(ctx context.Context) string {
	if s, ok := FromContext(ctx); ok {
		return s.id
	}
	return ""
}

// Observe records an event on the request scope. Outside a scope the event
// goes straight to the debug log.
func Observe(ctx context.Context, name string, payload any) {
	s, ok := FromContext(ctx)
	if !ok {
		log.Debug("%s: %v", name, payload)
		return
	}
	s.mu.Lock()
	s.events = append(s.events, Event{Name: name, Payload: payload, At: time.Now()})
	s.mu.Unlock()
}

// Defer runs fn in the background of the request scope on a context that
// survives cancellation of ctx. Without a scope fn runs inline.
// Failures are logged and observed, never returned.
func Defer(ctx context.Context, name string, fn func(ctx context.Context) error) {
	bg := context.WithoutCancel(ctx)
	s, ok := FromContext(ctx)
	if !ok {
		runDeferred(bg, name, fn)
		return
	}

	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		runDeferred(bg, name, fn)
	}()
}

func runDeferred(ctx context.Context, name string, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("deferred %s panicked: %v", name, r)
			Observe(ctx, "deferred_panic", map[string]any{"task": name, "panic": r})
		}
	}()
	if err := fn(ctx); err != nil {
		log.Warn("deferred %s failed: %v", name, err)
		Observe(ctx, "deferred_error", map[string]any{"task": name, "error": err.Error()})
	}
}

// Wait blocks until every deferred task of the scope has finished.
func (s *Scope) Wait() {
	s.tasks.Wait()
}

// Events returns a copy of the recorded events.
func (s *Scope) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Drain logs and clears the recorded events.
func (s *Scope) Drain() []Event {
	s.mu.Lock()
	events := s.events
	s.events = nil
	s.mu.Unlock()

	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			payload = []byte("unserializable")
		}
		log.Debug("request %s %s: %s", s.id, e.Name, payload)
	}
	log.Debug("request %s finished after %s with %d events", s.id, time.Since(s.started).Round(time.Millisecond), len(events))
	return events
}
