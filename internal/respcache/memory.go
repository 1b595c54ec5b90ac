package respcache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Memory is an in-process response cache with TTL expiry and LRU eviction
// bounded by total body bytes.
type Memory struct {
	capacity int64
	size     int64

	items    map[string]*list.Element
	eviction *list.List

	mu  sync.Mutex
	now func() time.Time

	stats Stats
}

type memoryEntry struct {
	key       string
	entry     Entry
	size      int64
	expiresAt time.Time
}

// NewMemory creates a memory cache holding at most capacity body bytes.
func NewMemory(capacity int64) *Memory {
	return &Memory{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
		now:      time.Now,
		stats:    Stats{Capacity: capacity},
	}
}

// Get returns a copy of the live entry for key.
func (c *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return Entry{}, false, nil
	}

	me := elem.Value.(*memoryEntry)
	if !c.now().Before(me.expiresAt) {
		c.removeElement(elem)
		c.stats.Misses++
		return Entry{}, false, nil
	}

	c.eviction.MoveToFront(elem)
	c.stats.Hits++
	return cloneEntry(me.entry), true, nil
}

// Put stores a copy of entry for ttl. Non-positive ttl is a no-op.
func (c *Memory) Put(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	valueSize := int64(len(entry.Body))
	if valueSize > c.capacity {
		return ErrItemTooLarge
	}

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}

	for c.size+valueSize > c.capacity && c.eviction.Len() > 0 {
		c.removeElement(c.eviction.Back())
		c.stats.Evictions++
	}

	me := &memoryEntry{
		key:       key,
		entry:     cloneEntry(entry),
		size:      valueSize,
		expiresAt: c.now().Add(ttl),
	}
	c.items[key] = c.eviction.PushFront(me)
	c.size += valueSize
	return nil
}

// DeleteExpired drops expired entries and returns how many were removed.
func (c *Memory) DeleteExpired(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var removed int64
	for elem := c.eviction.Back(); elem != nil; {
		prev := elem.Prev()
		if !now.Before(elem.Value.(*memoryEntry).expiresAt) {
			c.removeElement(elem)
			removed++
		}
		elem = prev
	}
	return removed, nil
}

func (c *Memory) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = c.size
	stats.ItemCount = int64(len(c.items))
	if stats.Hits+stats.Misses > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.Hits+stats.Misses)
	}
	return stats
}

func (c *Memory) removeElement(elem *list.Element) {
	me := elem.Value.(*memoryEntry)
	c.eviction.Remove(elem)
	delete(c.items, me.key)
	c.size -= me.size
}

func cloneEntry(e Entry) Entry {
	e.Body = append([]byte(nil), e.Body...)
	return e
}
