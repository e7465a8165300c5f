// Package weaviate wraps the official weaviate-go-client SDK for the two
// roles the mapping-resolution engine asks of a vector store (spec.md §4.5
// and §4.3): nearest-neighbor candidate search for the RAG pipeline's
// vector-search stage, and cross-reference traversal for the knowledge-graph
// adapter. Grounded on the teacher's own SDK-based store
// (internal/weavstore/kpi_store.go), not its hand-rolled raw-HTTP client —
// the teacher itself treats the SDK as the idiomatic path and keeps the
// HTTP client only as legacy KPI-era code.
package weaviate

import (
	"fmt"
	"sync"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	wvauth "github.com/weaviate/weaviate-go-client/v5/weaviate/auth"

	"github.com/arpanauts/biomapper-sub002/internal/config"
	"github.com/arpanauts/biomapper-sub002/internal/models"
)

// EntityClass is the Weaviate class storing one embedded vector per known
// entity identifier.
const EntityClass = "BiomapperEntity"

// Client wraps the SDK client plus the class name mappings use.
//
// capabilities and directProperties are populated once at startup by
// DiscoverCapabilities and consulted by CrossReferences: a capability maps
// a (source_type, target_type) pair to the relationship property the
// schema actually exposes for it, and directProperties marks scalar text
// properties whose name is itself an ontology type, read straight off the
// source node rather than traversed.
type Client struct {
	SDK   *weaviate.Client
	Class string

	mu               sync.RWMutex
	capabilities     map[string]models.ResourceCapability // keyed by "source_type->target_type"
	directProperties map[string]bool
}

// New constructs a Client from config.WeaviateConfig.
func New(cfg config.WeaviateConfig) (*Client, error) {
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "http"
	}
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 8080
	}

	wcfg := weaviate.Config{
		Scheme: scheme,
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if cfg.APIKey != "" {
		wcfg.AuthConfig = wvauth.ApiKey{Value: cfg.APIKey}
	}

	sdk, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("weaviate: new client: %w", err)
	}

	class := cfg.Class
	if class == "" {
		class = EntityClass
	}
	return &Client{SDK: sdk, Class: class, capabilities: map[string]models.ResourceCapability{}, directProperties: map[string]bool{}}, nil
}
