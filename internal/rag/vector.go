package rag

import (
	"context"

	"github.com/arpanauts/biomapper-sub002/internal/storage/weaviate"
)

// VectorSearcher is the slice of *weaviate.Client the vector-search stage
// depends on.
type VectorSearcher interface {
	VectorSearch(ctx context.Context, vector []float32, targetType string, topK int, minCertainty float64) ([]weaviate.Candidate, error)
}
