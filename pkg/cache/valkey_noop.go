package cache

import (
	"context"
	"sync"
	"time"

	"github.com/arpanauts/biomapper-sub002/pkg/logger"
)

// noopValkeyCache is an in-memory, process-local fallback that satisfies
// ValkeyCache when the real store is unavailable. Best-effort: entries are
// not shared across replicas and are lost on restart.
type noopValkeyCache struct {
	mu      sync.RWMutex
	entries map[string]noopEntry
	logger  logger.Logger
}

type noopEntry struct {
	value    []byte
	deadline time.Time // zero means no expiry
}

func NewNoopValkeyCache(log logger.Logger) ValkeyCache {
	log.Warn("valkey cache unavailable; using in-memory fallback")
	c := &noopValkeyCache{entries: make(map[string]noopEntry), logger: log}
	go c.sweepLoop()
	return c
}

func (n *noopValkeyCache) Get(ctx context.Context, key string) ([]byte, error) {
	n.mu.RLock()
	e, ok := n.entries[key]
	n.mu.RUnlock()
	if !ok || (!e.deadline.IsZero() && time.Now().After(e.deadline)) {
		return nil, &ErrNotFound{Key: key}
	}
	return e.value, nil
}

func (n *noopValkeyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var deadline time.Time
	if ttl > 0 {
		deadline = time.Now().Add(ttl)
	}
	n.mu.Lock()
	n.entries[key] = noopEntry{value: value, deadline: deadline}
	n.mu.Unlock()
	return nil
}

func (n *noopValkeyCache) Delete(ctx context.Context, key string) error {
	n.mu.Lock()
	delete(n.entries, key)
	n.mu.Unlock()
	return nil
}

func (n *noopValkeyCache) Close() error { return nil }

func (n *noopValkeyCache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		n.mu.Lock()
		for k, e := range n.entries {
			if !e.deadline.IsZero() && now.After(e.deadline) {
				delete(n.entries, k)
			}
		}
		n.mu.Unlock()
	}
}
