package weaviate

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

var entityNamespace = uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

func objectID(class, ontologyType, identifier string) string {
	return uuid.NewSHA1(entityNamespace, []byte(fmt.Sprintf("%s|%s|%s", class, ontologyType, identifier))).String()
}

// UpsertEntity creates or replaces the object for (ontologyType, identifier).
func (c *Client) UpsertEntity(ctx context.Context, ontologyType, identifier, annotation, sourceResource string, vector []float32) error {
	id := objectID(c.Class, ontologyType, identifier)
	props := map[string]any{
		"identifier":     identifier,
		"ontologyType":   ontologyType,
		"annotation":     annotation,
		"sourceResource": sourceResource,
	}

	creator := c.SDK.Data().Creator().WithClassName(c.Class).WithID(id).WithProperties(props)
	if len(vector) > 0 {
		creator = creator.WithVector(vector)
	}
	if _, err := creator.Do(ctx); err != nil {
		updater := c.SDK.Data().Updater().WithClassName(c.Class).WithID(id).WithProperties(props)
		if len(vector) > 0 {
			updater = updater.WithVector(vector)
		}
		if err2 := updater.Do(ctx); err2 != nil {
			return fmt.Errorf("weaviate: upsert entity: create=%v update=%v", err, err2)
		}
	}
	return nil
}

// LinkEquivalent adds a cross-reference edge from (fromType, fromID) to
// (toType, toID), the knowledge-graph adapter's notion of an asserted
// equivalence (spec.md §4.3's graph backend).
func (c *Client) LinkEquivalent(ctx context.Context, fromType, fromID, toType, toID string) error {
	from := objectID(c.Class, fromType, fromID)
	to := objectID(c.Class, toType, toID)
	ref := c.SDK.Data().ReferencePayloadBuilder().WithClassName(c.Class).WithID(to).Payload()
	return c.SDK.Data().ReferenceCreator().
		WithClassName(c.Class).WithID(from).WithReferenceProperty("equivalentTo").WithReference(ref).
		Do(ctx)
}

// CrossReferences resolves (sourceType, sourceID) to every entity of
// targetType the knowledge graph knows about, per spec.md §4.4: a direct
// property read when the schema exposes one, otherwise a traversal of
// whichever relationship DiscoverCapabilities found for this pair (falling
// back to the generic "equivalentTo" edge when nothing was discovered).
func (c *Client) CrossReferences(ctx context.Context, sourceType, sourceID, targetType string) ([]Candidate, error) {
	if c.hasDirectProperty(targetType) {
		return c.directPropertyLookup(ctx, sourceType, sourceID, targetType)
	}
	return c.relationshipLookup(ctx, sourceType, sourceID, targetType, c.edgePropertyFor(sourceType, targetType))
}

func (c *Client) hasDirectProperty(targetType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.directProperties[targetType]
}

func (c *Client) edgePropertyFor(sourceType, targetType string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if capability, ok := c.capabilities[sourceType+"->"+targetType]; ok {
		return capability.Name
	}
	return "equivalentTo"
}

func sourceNodeWhere(sourceType, sourceID string) *filters.WhereBuilder {
	return filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().WithPath([]string{"identifier"}).WithOperator(filters.Equal).WithValueText(sourceID),
			filters.Where().WithPath([]string{"ontologyType"}).WithOperator(filters.Equal).WithValueText(sourceType),
		})
}

// directPropertyLookup reads targetType as a scalar field on the source
// node itself, for resources that denormalize a mapped identifier directly
// onto the entity instead of asserting a separate relationship.
func (c *Client) directPropertyLookup(ctx context.Context, sourceType, sourceID, targetType string) ([]Candidate, error) {
	fields := []graphql.Field{{Name: "identifier"}, {Name: targetType}}

	resp, err := c.SDK.GraphQL().Get().
		WithClassName(c.Class).
		WithFields(fields...).
		WithWhere(sourceNodeWhere(sourceType, sourceID)).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate: direct property lookup: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate: direct property lookup graphql error: %v", resp.Errors[0].Message)
	}

	obj, ok := firstResult(resp, c.Class)
	if !ok {
		return nil, nil
	}
	value := stringField(obj, targetType)
	if value == "" {
		return nil, nil
	}
	return []Candidate{{
		Identifier:     value,
		OntologyType:   targetType,
		SourceResource: "direct",
		Certainty:      1.0,
	}}, nil
}

// relationshipLookup traverses edgeProperty from the source node, returning
// every referenced entity of targetType.
func (c *Client) relationshipLookup(ctx context.Context, sourceType, sourceID, targetType, edgeProperty string) ([]Candidate, error) {
	fields := []graphql.Field{
		{Name: "identifier"},
		{Name: "ontologyType"},
		{Name: edgeProperty, Fields: []graphql.Field{
			{Name: "... on " + c.Class, Fields: []graphql.Field{
				{Name: "identifier"},
				{Name: "ontologyType"},
				{Name: "annotation"},
				{Name: "sourceResource"},
			}},
		}},
	}

	resp, err := c.SDK.GraphQL().Get().
		WithClassName(c.Class).
		WithFields(fields...).
		WithWhere(sourceNodeWhere(sourceType, sourceID)).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate: cross references: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate: cross references graphql error: %v", resp.Errors[0].Message)
	}

	obj, ok := firstResult(resp, c.Class)
	if !ok {
		return nil, nil
	}
	refs, ok := obj[edgeProperty].([]interface{})
	if !ok {
		return nil, nil
	}

	out := make([]Candidate, 0, len(refs))
	for _, r := range refs {
		edge, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		cand := Candidate{
			Identifier:     stringField(edge, "identifier"),
			OntologyType:   stringField(edge, "ontologyType"),
			Annotation:     stringField(edge, "annotation"),
			SourceResource: stringField(edge, "sourceResource"),
			Certainty:      1.0,
		}
		if targetType == "" || cand.OntologyType == targetType {
			out = append(out, cand)
		}
	}
	return out, nil
}

func firstResult(resp *models.GraphQLResponse, class string) (map[string]interface{}, bool) {
	get, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	raw, ok := get[class].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, false
	}
	obj, ok := raw[0].(map[string]interface{})
	return obj, ok
}
