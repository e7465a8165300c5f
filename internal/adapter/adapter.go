// Package adapter defines the uniform backend contract the dispatcher
// invokes (spec.md §4.3) and the concrete adapters that implement it over
// the cache, the knowledge graph, and the RAG pipeline.
package adapter

import "context"

// Adapter is the contract every mapping backend satisfies, whether it is
// backed by the local cache, a graph database, an external REST API, or an
// LLM-arbitrated RAG pipeline. Implementations must be safe for concurrent
// use: the dispatcher may invoke the same adapter for unrelated requests at
// the same time.
type Adapter interface {
	// Name is the resource name this adapter is registered under in the
	// registry (spec.md §4.2).
	Name() string

	// MapEntity resolves sourceID (of sourceType) to an identifier of
	// targetType. A normal "I don't have this mapping" outcome is reported
	// as (nil, nil) — errors are reserved for actual backend failures
	// (timeouts, malformed responses, connectivity loss).
	MapEntity(ctx context.Context, sourceID, sourceType, targetType string, opts map[string]any) (*Result, error)
}

// Result is what an Adapter returns for a successful resolution.
type Result struct {
	TargetID      string
	TargetType    string
	Confidence    float64
	MappingSource string
	Metadata      map[string]string
}
