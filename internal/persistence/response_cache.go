package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/MimeLyc/synced-lyrics/internal/respcache"
)

// ResponseCache is the SQLite-backed respcache.Cache.
type ResponseCache struct {
	store *SQLiteStore
	now   func() time.Time
}

var _ respcache.Cache = (*ResponseCache)(nil)

func (s *SQLiteStore) ResponseCache() *ResponseCache {
	return &ResponseCache{store: s, now: time.Now}
}

func (c *ResponseCache) Get(ctx context.Context, key string) (respcache.Entry, bool, error) {
	row := c.store.db.QueryRowContext(
		ctx,
		`SELECT status, body, cache_control
		 FROM response_cache
		 WHERE cache_key = ? AND expires_at > ?`,
		key,
		c.now().Unix(),
	)
	var entry respcache.Entry
	if err := row.Scan(&entry.Status, &entry.Body, &entry.CacheControl); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return respcache.Entry{}, false, nil
		}
		return respcache.Entry{}, false, err
	}
	return entry, true, nil
}

func (c *ResponseCache) Put(ctx context.Context, key string, entry respcache.Entry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	body := entry.Body
	if body == nil {
		body = []byte{}
	}
	_, err := c.store.db.ExecContext(
		ctx,
		`INSERT INTO response_cache (cache_key, status, body, cache_control, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
			status=excluded.status,
			body=excluded.body,
			cache_control=excluded.cache_control,
			expires_at=excluded.expires_at`,
		key,
		entry.Status,
		body,
		entry.CacheControl,
		c.now().Add(ttl).Unix(),
	)
	return err
}

// DeleteExpired removes response_cache rows whose expires_at has passed.
func (c *ResponseCache) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := c.store.db.ExecContext(ctx, `DELETE FROM response_cache WHERE expires_at <= ?`, c.now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
