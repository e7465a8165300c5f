package weaviate

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
)

// Candidate is one nearest-neighbor hit returned by VectorSearch.
type Candidate struct {
	Identifier     string
	OntologyType   string
	Annotation     string
	SourceResource string
	Certainty      float64
}

// VectorSearch runs a nearVector query against the entity class, optionally
// restricted to targetType, returning up to topK hits at or above
// minCertainty. This is the vector-search stage of the RAG pipeline
// (spec.md §4.5).
func (c *Client) VectorSearch(ctx context.Context, vector []float32, targetType string, topK int, minCertainty float64) ([]Candidate, error) {
	fields := []graphql.Field{
		{Name: "identifier"},
		{Name: "ontologyType"},
		{Name: "annotation"},
		{Name: "sourceResource"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	nearVector := c.SDK.GraphQL().NearVectorArgBuilder().
		WithVector(vector).
		WithCertainty(float32(minCertainty))

	builder := c.SDK.GraphQL().Get().
		WithClassName(c.Class).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(topK)

	if targetType != "" {
		where := filters.Where().
			WithPath([]string{"ontologyType"}).
			WithOperator(filters.Equal).
			WithValueText(targetType)
		builder = builder.WithWhere(where)
	}

	resp, err := builder.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate: vector search: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate: vector search graphql error: %v", resp.Errors[0].Message)
	}
	return parseCandidates(resp, c.Class)
}
