package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"kasirkoperasi/backend/internal/domain"
)

type memoryEntry struct {
	value     domain.CashFlowSummary
	expiresAt time.Time
}

// MemorySummaryCache is the in-process fallback used when no Redis is
// configured. epoch counts invalidations.
type MemorySummaryCache struct {
	mu      sync.Mutex
	epoch   uint64
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemorySummaryCache() *MemorySummaryCache {
	return &MemorySummaryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemorySummaryCache) Get(_ context.Context, key string) (*domain.CashFlowSummary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	value := cloneSummary(entry.value)
	return &value, true, nil
}

func (c *MemorySummaryCache) Version(_ context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strconv.FormatUint(c.epoch, 10), nil
}

func (c *MemorySummaryCache) Set(_ context.Context, version string, key string, value *domain.CashFlowSummary, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if version != strconv.FormatUint(c.epoch, 10) {
		return nil
	}
	c.entries[key] = memoryEntry{value: cloneSummary(*value), expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemorySummaryCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	clear(c.entries)
	return nil
}
