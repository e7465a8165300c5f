package adapter

import (
	"context"
	"fmt"

	"github.com/arpanauts/biomapper-sub002/internal/storage/weaviate"
)

// GraphAdapter resolves mappings by following asserted cross-reference
// edges in the knowledge graph (spec.md §4.3's graph-backed resource kind).
type GraphAdapter struct {
	name   string
	client *weaviate.Client
}

// NewGraphAdapter builds a GraphAdapter registered under name.
func NewGraphAdapter(name string, client *weaviate.Client) *GraphAdapter {
	return &GraphAdapter{name: name, client: client}
}

func (a *GraphAdapter) Name() string { return a.name }

func (a *GraphAdapter) MapEntity(ctx context.Context, sourceID, sourceType, targetType string, opts map[string]any) (*Result, error) {
	candidates, err := a.client.CrossReferences(ctx, sourceType, sourceID, targetType)
	if err != nil {
		return nil, fmt.Errorf("graph adapter: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Certainty > best.Certainty {
			best = c
		}
	}
	return &Result{
		TargetID:      best.Identifier,
		TargetType:    best.OntologyType,
		Confidence:    best.Certainty,
		MappingSource: fmt.Sprintf("graph:%s", a.name),
		Metadata: map[string]string{
			"source_resource": best.SourceResource,
		},
	}, nil
}
