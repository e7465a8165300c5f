// Package models defines the data types shared by the mapping-resolution
// engine: the cache's EntityMapping record, the registry's resource catalog,
// and the value types returned to callers.
package models

import "time"

// EntityMapping is the central cache record: a directional link from a source
// identifier in one ontology to a target identifier in another.
type EntityMapping struct {
	ID             string            `json:"id" db:"id"`
	SourceID       string            `json:"source_id" db:"source_id"`
	SourceType     string            `json:"source_type" db:"source_type"`
	TargetID       string            `json:"target_id" db:"target_id"`
	TargetType     string            `json:"target_type" db:"target_type"`
	Confidence     float64           `json:"confidence" db:"confidence"`
	MappingSource  string            `json:"mapping_source" db:"mapping_source"`
	IsDerived      bool              `json:"is_derived" db:"is_derived"`
	DerivationPath []string          `json:"derivation_path,omitempty" db:"-"`
	LastUpdated    time.Time         `json:"last_updated" db:"last_updated"`
	ExpiresAt      time.Time         `json:"expires_at" db:"expires_at"`
	UsageCount     int64             `json:"usage_count" db:"usage_count"`
	Metadata       map[string]string `json:"metadata,omitempty" db:"-"`
}

// Quad returns the identity tuple that must be unique across the cache.
func (m *EntityMapping) Quad() (sourceID, sourceType, targetID, targetType string) {
	return m.SourceID, m.SourceType, m.TargetID, m.TargetType
}

// ClampConfidence clamps Confidence into [0,1].
func (m *EntityMapping) ClampConfidence() {
	switch {
	case m.Confidence < 0:
		m.Confidence = 0
	case m.Confidence > 1:
		m.Confidence = 1
	}
}

// EntityTypeConfig holds per (source_type,target_type) defaults consulted by
// the cache manager when an insert omits an explicit TTL.
type EntityTypeConfig struct {
	SourceType           string  `json:"source_type" db:"source_type"`
	TargetType           string  `json:"target_type" db:"target_type"`
	TTLDays              int     `json:"ttl_days" db:"ttl_days"`
	ConfidenceThreshold  float64 `json:"confidence_threshold" db:"confidence_threshold"`
}

// CacheStats is one calendar-day (UTC) row of cache usage counters.
type CacheStats struct {
	Day                    string `json:"day" db:"day"`
	Hits                   int64  `json:"hits" db:"hits"`
	Misses                 int64  `json:"misses" db:"misses"`
	DirectLookups          int64  `json:"direct_lookups" db:"direct_lookups"`
	DerivedLookups         int64  `json:"derived_lookups" db:"derived_lookups"`
	APICalls               int64  `json:"api_calls" db:"api_calls"`
	TransitiveDerivations  int64  `json:"transitive_derivations" db:"transitive_derivations"`
}

// TransitiveJobLog records one run of the transitivity builder.
type TransitiveJobLog struct {
	ID                 string    `json:"id" db:"id"`
	StartedAt          time.Time `json:"started_at" db:"started_at"`
	Status             string    `json:"status" db:"status"`
	MappingsProcessed  int64     `json:"mappings_processed" db:"mappings_processed"`
	NewMappingsCreated int64     `json:"new_mappings_created" db:"new_mappings_created"`
	DurationSeconds    float64   `json:"duration_seconds" db:"duration_seconds"`
}

// Resource types and support levels (stored as their canonical lowercase
// string values).
const (
	ResourceTypeCache   = "cache"
	ResourceTypeGraph   = "graph"
	ResourceTypeAPI     = "api"
	ResourceTypeDataset = "dataset"
	ResourceTypeOther   = "other"

	SupportNone    = "none"
	SupportPartial = "partial"
	SupportFull    = "full"
)

// supportRank orders support levels for comparisons (none < partial < full).
var supportRank = map[string]int{
	SupportNone:    0,
	SupportPartial: 1,
	SupportFull:    2,
}

// SupportAtLeast reports whether level satisfies the minimum required level.
func SupportAtLeast(level, min string) bool {
	return supportRank[level] >= supportRank[min]
}

// ResourceMetadata is a registered backend's catalog entry.
type ResourceMetadata struct {
	ResourceName   string    `json:"resource_name" db:"resource_name"`
	ResourceType   string    `json:"resource_type" db:"resource_type"`
	ConnectionInfo string    `json:"connection_info" db:"connection_info"` // JSON blob
	Priority       int       `json:"priority" db:"priority"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	LastSync       time.Time `json:"last_sync" db:"last_sync"`
}

// OntologyCoverage records a resource's claimed support for an ontology type.
type OntologyCoverage struct {
	ResourceName string `json:"resource_name" db:"resource_name"`
	OntologyType string `json:"ontology_type" db:"ontology_type"`
	SupportLevel string `json:"support_level" db:"support_level"`
	EntityCount  *int64 `json:"entity_count,omitempty" db:"entity_count"`
}

// PerformanceMetrics is a running aggregate for (resource, op, source, target).
type PerformanceMetrics struct {
	ResourceName       string  `json:"resource_name" db:"resource_name"`
	OperationType      string  `json:"operation_type" db:"operation_type"`
	SourceType         string  `json:"source_type" db:"source_type"`
	TargetType         string  `json:"target_type" db:"target_type"`
	AvgResponseTimeMS  float64 `json:"avg_response_time_ms" db:"avg_response_time_ms"`
	SuccessRate        float64 `json:"success_rate" db:"success_rate"`
	SampleCount        int64   `json:"sample_count" db:"sample_count"`
}

// Operation statuses logged by OperationLog / the dispatcher.
const (
	OpStatusSuccess = "success"
	OpStatusError   = "error"
	OpStatusTimeout = "timeout"
	OpStatusNotFound = "not_found"
)

// OperationLog is an append-only record of one adapter invocation.
type OperationLog struct {
	ID              string    `json:"id" db:"id"`
	ResourceName    string    `json:"resource_name" db:"resource_name"`
	OperationType   string    `json:"operation_type" db:"operation_type"`
	SourceType      string    `json:"source_type,omitempty" db:"source_type"`
	TargetType      string    `json:"target_type,omitempty" db:"target_type"`
	Query           string    `json:"query,omitempty" db:"query"`
	ResponseTimeMS  *float64  `json:"response_time_ms,omitempty" db:"response_time_ms"`
	Status          string    `json:"status" db:"status"`
	ErrorMessage    string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// ResourceCapability is a runtime, non-persistent named capability exposed by
// a resource, e.g. "compound_to_gene".
type ResourceCapability struct {
	Name       string
	Confidence float64
	Parameters map[string]string
}

// MappingResult is the value returned to callers by adapters and the
// dispatcher.
type MappingResult struct {
	SourceID      string            `json:"source_id"`
	TargetID      string            `json:"target_id,omitempty"`
	TargetType    string            `json:"target_type"`
	Confidence    float64           `json:"confidence"`
	MappingSource string            `json:"mapping_source"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// WithMetadata returns a shallow copy of r with k=v merged into Metadata.
func (r *MappingResult) WithMetadata(k, v string) *MappingResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Metadata = make(map[string]string, len(r.Metadata)+1)
	for mk, mv := range r.Metadata {
		out.Metadata[mk] = mv
	}
	out.Metadata[k] = v
	return &out
}
