package adapter

import (
	"context"
	"fmt"

	"github.com/arpanauts/biomapper-sub002/internal/cache"
)

// CacheAdapter wraps the cache Manager so the dispatcher can treat the
// persistent mapping cache as just another ranked resource, per spec.md
// §4.3's "the cache is itself an adapter, usually ranked first" note.
type CacheAdapter struct {
	name    string
	manager *cache.Manager
}

// NewCacheAdapter builds a CacheAdapter registered under name (typically
// "local_cache").
func NewCacheAdapter(name string, manager *cache.Manager) *CacheAdapter {
	return &CacheAdapter{name: name, manager: manager}
}

func (a *CacheAdapter) Name() string { return a.name }

func (a *CacheAdapter) MapEntity(ctx context.Context, sourceID, sourceType, targetType string, opts map[string]any) (*Result, error) {
	results, err := a.manager.Lookup(ctx, sourceID, sourceType, cache.LookupOptions{
		TargetType:     targetType,
		IncludeDerived: true,
		MinConfidence:  OptFloat(opts, "min_confidence", 0),
	})
	if err != nil {
		return nil, fmt.Errorf("cache adapter: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	best := results[0]
	for _, r := range results[1:] {
		if r.Confidence > best.Confidence {
			best = r
		}
	}
	return &Result{
		TargetID:      best.TargetID,
		TargetType:    best.TargetType,
		Confidence:    best.Confidence,
		MappingSource: fmt.Sprintf("cache:%s", best.MappingSource),
		Metadata:      best.Metadata,
	}, nil
}
