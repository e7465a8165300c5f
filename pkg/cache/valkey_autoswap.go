package cache

import (
	"context"
	"sync"
	"time"

	"github.com/arpanauts/biomapper-sub002/pkg/logger"
)

// autoSwapCache wraps a ValkeyCache implementation and can swap from a
// fallback (e.g., in-memory noop) to a real Valkey client once it becomes
// available. It satisfies ValkeyCache by delegating to whichever
// implementation is currently active.
type autoSwapCache struct {
	mu      sync.RWMutex
	current ValkeyCache
	logger  logger.Logger

	stopCh chan struct{}
}

// newAutoSwapCache creates an auto-swapping cache that starts with fallback
// and keeps trying dialReal until it succeeds, then atomically swaps.
func newAutoSwapCache(fallback ValkeyCache, logger logger.Logger, dialReal func() (ValkeyCache, error)) *autoSwapCache {
	a := &autoSwapCache{current: fallback, logger: logger, stopCh: make(chan struct{})}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-a.stopCh:
				return
			case <-ticker.C:
				real, err := dialReal()
				if err != nil {
					a.logger.Warn("valkey connection attempt failed; will retry", "error", err)
					continue
				}
				a.mu.Lock()
				a.current = real
				a.mu.Unlock()
				a.logger.Info("valkey connection established; switched from in-memory to real cache")
				return
			}
		}
	}()

	return a
}

// Stop stops the background connector.
func (a *autoSwapCache) Stop() { close(a.stopCh) }

func (a *autoSwapCache) withCurrent() ValkeyCache {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

func (a *autoSwapCache) Get(ctx context.Context, key string) ([]byte, error) {
	return a.withCurrent().Get(ctx, key)
}

func (a *autoSwapCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return a.withCurrent().Set(ctx, key, value, ttl)
}

func (a *autoSwapCache) Delete(ctx context.Context, key string) error {
	return a.withCurrent().Delete(ctx, key)
}

func (a *autoSwapCache) Close() error {
	return a.withCurrent().Close()
}

// NewAutoSwapForSingle creates an auto-swapping cache that upgrades from
// in-memory to a single-node Valkey client when reachable.
func NewAutoSwapForSingle(addr string, db int, password string, ttl time.Duration, log logger.Logger, fallback ValkeyCache) ValkeyCache {
	return newAutoSwapCache(fallback, log, func() (ValkeyCache, error) {
		return NewValkeySingle(addr, db, password, ttl)
	})
}
