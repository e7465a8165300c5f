package weaviate

import (
	"context"
	"fmt"
	"regexp"

	wvmodels "github.com/weaviate/weaviate/entities/models"

	"github.com/arpanauts/biomapper-sub002/internal/models"
)

// entityClassDef mirrors the teacher's per-domain class builders (e.g.
// KPIDefinitionClass in the teacher's storage/weaviate/schema.go) but
// describes one entity identifier per object: its ontology type, its
// free-text annotation used for embedding, and the resource it was sourced
// from. Cross-references between entities (the knowledge-graph adapter's
// traversal edges) are stored as the "equivalentTo" property.
func entityClassDef(class string) *wvmodels.Class {
	return &wvmodels.Class{
		Class:       class,
		Description: "Biological entity identifier with its textual annotation, embedded for nearest-neighbor search",
		Properties: []*wvmodels.Property{
			{Name: "identifier", DataType: []string{"text"}, Description: "The raw identifier, e.g. HMDB0000001"},
			{Name: "ontologyType", DataType: []string{"text"}, Description: "The ontology/namespace this identifier belongs to"},
			{Name: "annotation", DataType: []string{"text"}, Description: "Human-readable description used for embedding"},
			{Name: "sourceResource", DataType: []string{"text"}, Description: "Resource name that contributed this entity"},
			{
				Name:        "equivalentTo",
				DataType:    []string{class},
				Description: "Cross-reference edges to equivalent entities in other ontologies",
			},
		},
	}
}

// EnsureSchema creates the entity class if it does not already exist.
func (c *Client) EnsureSchema(ctx context.Context) error {
	exists, err := c.SDK.Schema().ClassExistenceChecker().WithClassName(c.Class).Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate: check class: %w", err)
	}
	if exists {
		return nil
	}
	if err := c.SDK.Schema().ClassCreator().WithClass(entityClassDef(c.Class)).Do(ctx); err != nil {
		return fmt.Errorf("weaviate: create class: %w", err)
	}
	return nil
}

// relationshipPropertyName matches the <source_type>_to_<target_type>
// vocabulary spec.md §6 defines for schema-discovered capabilities.
var relationshipPropertyName = regexp.MustCompile(`^([a-z0-9]+)_to_([a-z0-9]+)$`)

// DiscoverCapabilities introspects the entity class's current schema once
// at startup and records, for every property whose name matches
// <source_type>_to_<target_type>, the relationship the knowledge-graph
// adapter can traverse for that pair. Scalar text properties whose name is
// itself an ontology type (e.g. a denormalized "chebi" field written
// directly onto the source node) are recorded as direct reads instead.
// Resources with neither a matching relationship nor a direct property for
// a given pair fall back to the generic "equivalentTo" edge.
func (c *Client) DiscoverCapabilities(ctx context.Context) ([]models.ResourceCapability, error) {
	cls, err := c.SDK.Schema().ClassGetter().WithClassName(c.Class).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate: discover capabilities: %w", err)
	}

	capabilities := make(map[string]models.ResourceCapability)
	direct := make(map[string]bool)
	var found []models.ResourceCapability

	for _, p := range cls.Properties {
		if m := relationshipPropertyName.FindStringSubmatch(p.Name); m != nil {
			capability := models.ResourceCapability{
				Name:       p.Name,
				Confidence: 1.0,
				Parameters: map[string]string{"source_type": m[1], "target_type": m[2]},
			}
			capabilities[m[1]+"->"+m[2]] = capability
			found = append(found, capability)
			continue
		}
		if len(p.DataType) == 1 && p.DataType[0] == "text" && p.Name != "identifier" && p.Name != "annotation" && p.Name != "sourceResource" {
			direct[p.Name] = true
		}
	}

	c.mu.Lock()
	c.capabilities = capabilities
	c.directProperties = direct
	c.mu.Unlock()
	return found, nil
}
