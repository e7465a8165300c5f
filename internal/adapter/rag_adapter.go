package adapter

import (
	"context"
	"fmt"

	"github.com/arpanauts/biomapper-sub002/internal/rag"
)

// RAGAdapter wraps the RAG orchestrator (spec.md §4.6) so the dispatcher can
// fall through to name-based LLM arbitration when direct and graph lookups
// come up empty. It only applies to name→pubchem requests: the orchestrator
// is grounded on PubChem CIDs specifically, not a general-purpose resolver.
type RAGAdapter struct {
	name         string
	orchestrator *rag.Orchestrator
}

func NewRAGAdapter(name string, orchestrator *rag.Orchestrator) *RAGAdapter {
	return &RAGAdapter{name: name, orchestrator: orchestrator}
}

func (a *RAGAdapter) Name() string { return a.name }

func (a *RAGAdapter) MapEntity(ctx context.Context, sourceID, sourceType, targetType string, opts map[string]any) (*Result, error) {
	if sourceType != "name" || targetType != "pubchem" {
		return nil, nil
	}

	result, err := a.orchestrator.MapName(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("rag adapter: %w", err)
	}
	if result.Status != rag.StatusSuccess && result.Status != rag.StatusPartialSuccess {
		return nil, nil
	}
	if result.SelectedCID == nil {
		return nil, nil
	}

	return &Result{
		TargetID:      fmt.Sprintf("%d", *result.SelectedCID),
		TargetType:    "pubchem",
		Confidence:    result.Confidence,
		MappingSource: "rag",
		Metadata: map[string]string{
			"rationale": result.Rationale,
			"status":    string(result.Status),
		},
	}, nil
}
