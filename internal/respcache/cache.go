package respcache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrItemTooLarge is returned when a single entry exceeds the cache capacity.
var ErrItemTooLarge = errors.New("item too large for cache")

// Entry is a cached upstream response. Only status, body and a synthesized
// Cache-Control directive are kept; upstream headers are dropped.
type Entry struct {
	Status       int
	Body         []byte
	CacheControl string
}

// NewEntry builds an entry whose Cache-Control carries the given lifetime.
func NewEntry(status int, body []byte, ttl time.Duration) Entry {
	return Entry{
		Status:       status,
		Body:         body,
		CacheControl: CacheControl(ttl),
	}
}

// CacheControl renders a "public, max-age=N" directive.
func CacheControl(ttl time.Duration) string {
	return fmt.Sprintf("public, max-age=%d", int64(ttl/time.Second))
}

// Cache is a URL-keyed response cache with per-entry lifetime.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, entry Entry, ttl time.Duration) error
}

// Stats describes cache effectiveness.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Size      int64   `json:"size"`
	Capacity  int64   `json:"capacity"`
	ItemCount int64   `json:"item_count"`
	HitRate   float64 `json:"hit_rate"`
}
