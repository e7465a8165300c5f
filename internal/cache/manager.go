package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/arpanauts/biomapper-sub002/internal/bmerrors"
	"github.com/arpanauts/biomapper-sub002/internal/config"
	"github.com/arpanauts/biomapper-sub002/internal/logging"
	"github.com/arpanauts/biomapper-sub002/internal/models"
	"github.com/arpanauts/biomapper-sub002/internal/monitor"
	"github.com/arpanauts/biomapper-sub002/internal/tracing"
)

// Manager is the transactional façade over Store described in spec.md §4.1:
// bidirectional insert, lookup, and usage statistics. Every public method
// runs inside a single transaction; on any store error the transaction
// aborts and the error is surfaced unchanged.
type Manager struct {
	store  *Store
	cfg    config.CacheStoreConfig
	logger logging.Logger
	tracer *tracing.Tracer
	mon    *monitor.Monitor
}

// NewManager constructs a Manager over an already-open Store.
func NewManager(store *Store, cfg config.CacheStoreConfig, logger logging.Logger) *Manager {
	return &Manager{store: store, cfg: cfg, logger: logger}
}

// WithTracer attaches a Tracer so transactions emit spans. Passing nil
// disables tracing; Manager works unwrapped in tests without one.
func (m *Manager) WithTracer(t *tracing.Tracer) *Manager {
	m.tracer = t
	return m
}

// WithMonitor attaches a Monitor so additions, derivations, and expirations
// are recorded as cache events (spec.md §4.7). Passing nil disables event
// recording; Manager works unwrapped in tests without one.
func (m *Manager) WithMonitor(mon *monitor.Monitor) *Manager {
	m.mon = mon
	return m
}

// LookupOptions narrows a Lookup/BidirectionalLookup call.
type LookupOptions struct {
	TargetType     string  // empty matches any target type
	IncludeDerived bool    // zero value false; callers opt in explicitly
	MinConfidence  float64 // rows below this confidence are excluded
}

// row is the internal scan target for entity_mappings.
type row struct {
	id             string
	sourceID       string
	sourceType     string
	targetID       string
	targetType     string
	confidence     float64
	mappingSource  string
	isDerived      bool
	derivationPath string
	lastUpdated    time.Time
	expiresAt      time.Time
	usageCount     int64
}

func scanRows(rs *sql.Rows) ([]row, error) {
	var out []row
	for rs.Next() {
		var r row
		var derivation sql.NullString
		if err := rs.Scan(&r.id, &r.sourceID, &r.sourceType, &r.targetID, &r.targetType,
			&r.confidence, &r.mappingSource, &r.isDerived, &derivation,
			&r.lastUpdated, &r.expiresAt, &r.usageCount); err != nil {
			return nil, err
		}
		r.derivationPath = derivation.String
		out = append(out, r)
	}
	return out, rs.Err()
}

func derivationPathOf(r row) []string {
	if r.derivationPath == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(r.derivationPath), &ids); err != nil {
		return nil
	}
	return ids
}

func (r row) toResult(resolvedSource string) *models.MappingResult {
	meta := map[string]string{
		"cache_hit":  "true",
		"is_derived": fmt.Sprintf("%t", r.isDerived),
	}
	if path := derivationPathOf(r); len(path) > 0 {
		meta["derivation_path"] = strings.Join(path, ",")
	}
	target, targetType := r.targetID, r.targetType
	if resolvedSource == r.targetID {
		// this row is being reported from the reverse perspective
		target, targetType = r.sourceID, r.sourceType
	}
	return &models.MappingResult{
		SourceID:      resolvedSource,
		TargetID:      target,
		TargetType:    targetType,
		Confidence:    r.confidence,
		MappingSource: r.mappingSource,
		Metadata:      meta,
	}
}

// Lookup returns every row whose source matches (source_id, source_type),
// filtered by target_type and is_derived/min_confidence, and updates usage
// statistics for every returned row. Never errors for a plain not-found —
// an empty slice is returned instead.
func (m *Manager) Lookup(ctx context.Context, sourceID, sourceType string, opts LookupOptions) ([]models.MappingResult, error) {
	if m.tracer != nil {
		var span trace.Span
		ctx, span = m.tracer.StartCacheSpan(ctx, "lookup")
		defer span.End()
	}
	var results []models.MappingResult
	err := m.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := m.queryBySource(ctx, tx, sourceID, sourceType, opts)
		if err != nil {
			return err
		}
		if err := m.bumpUsage(ctx, tx, rows); err != nil {
			return err
		}
		if err := m.recordLookupStats(ctx, tx, rows); err != nil {
			return err
		}
		for _, r := range rows {
			results = append(results, *r.toResult(sourceID))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: lookup: %v", bmerrors.ErrStore, err)
	}
	return results, nil
}

// BidirectionalLookup is the union of Lookup with entityID as source and
// with entityID as target, deduplicated by the row's primary key.
func (m *Manager) BidirectionalLookup(ctx context.Context, entityID, entityType string, opts LookupOptions) ([]models.MappingResult, error) {
	var results []models.MappingResult
	err := m.withTx(ctx, func(tx *sql.Tx) error {
		forward, err := m.queryBySource(ctx, tx, entityID, entityType, opts)
		if err != nil {
			return err
		}
		backward, err := m.queryByTarget(ctx, tx, entityID, entityType, opts)
		if err != nil {
			return err
		}

		seen := make(map[string]bool, len(forward)+len(backward))
		var all []row
		for _, r := range forward {
			if !seen[r.id] {
				seen[r.id] = true
				all = append(all, r)
			}
		}
		for _, r := range backward {
			if !seen[r.id] {
				seen[r.id] = true
				all = append(all, r)
			}
		}

		if err := m.bumpUsage(ctx, tx, all); err != nil {
			return err
		}
		if err := m.recordLookupStats(ctx, tx, all); err != nil {
			return err
		}
		for _, r := range all {
			results = append(results, *r.toResult(entityID))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: bidirectional_lookup: %v", bmerrors.ErrStore, err)
	}
	return results, nil
}

func (m *Manager) queryBySource(ctx context.Context, tx *sql.Tx, sourceID, sourceType string, opts LookupOptions) ([]row, error) {
	q := strings.Builder{}
	q.WriteString(`SELECT id, source_id, source_type, target_id, target_type, confidence,
		mapping_source, is_derived, derivation_path, last_updated, expires_at, usage_count
		FROM entity_mappings WHERE source_id = ? AND source_type = ? AND confidence >= ?`)
	args := []interface{}{sourceID, sourceType, opts.MinConfidence}
	if opts.TargetType != "" {
		q.WriteString(" AND target_type = ?")
		args = append(args, opts.TargetType)
	}
	if !opts.IncludeDerived {
		q.WriteString(" AND is_derived = 0")
	}
	rs, err := tx.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	return scanRows(rs)
}

func (m *Manager) queryByTarget(ctx context.Context, tx *sql.Tx, targetID, targetType string, opts LookupOptions) ([]row, error) {
	q := strings.Builder{}
	q.WriteString(`SELECT id, source_id, source_type, target_id, target_type, confidence,
		mapping_source, is_derived, derivation_path, last_updated, expires_at, usage_count
		FROM entity_mappings WHERE target_id = ? AND target_type = ? AND confidence >= ?`)
	args := []interface{}{targetID, targetType, opts.MinConfidence}
	if opts.TargetType != "" {
		q.WriteString(" AND source_type = ?")
		args = append(args, opts.TargetType)
	}
	if !opts.IncludeDerived {
		q.WriteString(" AND is_derived = 0")
	}
	rs, err := tx.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	return scanRows(rs)
}

func (m *Manager) bumpUsage(ctx context.Context, tx *sql.Tx, rows []row) error {
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx,
			`UPDATE entity_mappings SET usage_count = usage_count + 1, last_updated = ? WHERE id = ?`,
			time.Now().UTC(), r.id); err != nil {
			return err
		}
	}
	return nil
}

// recordLookupStats implements the documented semantics (spec.md §9 Open
// Questions): hit/miss and direct/derived booleans are each incremented
// based on whether ANY returned row was of that kind, not once per row.
func (m *Manager) recordLookupStats(ctx context.Context, tx *sql.Tx, rows []row) error {
	hasDirect, hasDerived := false, false
	for _, r := range rows {
		if r.isDerived {
			hasDerived = true
		} else {
			hasDirect = true
		}
	}
	return m.bumpStats(ctx, tx, statDelta{
		hits:           boolToInt(len(rows) > 0),
		misses:         boolToInt(len(rows) == 0),
		directLookups:  boolToInt(hasDirect),
		derivedLookups: boolToInt(hasDerived),
	})
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

type statDelta struct {
	hits, misses, directLookups, derivedLookups, apiCalls, transitiveDerivations int64
}

func (m *Manager) bumpStats(ctx context.Context, tx *sql.Tx, d statDelta) error {
	day := time.Now().UTC().Format("2006-01-02")
	_, err := tx.ExecContext(ctx, `
		INSERT INTO cache_stats (day, hits, misses, direct_lookups, derived_lookups, api_calls, transitive_derivations)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			hits = hits + VALUES(hits),
			misses = misses + VALUES(misses),
			direct_lookups = direct_lookups + VALUES(direct_lookups),
			derived_lookups = derived_lookups + VALUES(derived_lookups),
			api_calls = api_calls + VALUES(api_calls),
			transitive_derivations = transitive_derivations + VALUES(transitive_derivations)`,
		day, d.hits, d.misses, d.directLookups, d.derivedLookups, d.apiCalls, d.transitiveDerivations)
	return err
}

// AddMappingInput is the payload for AddMapping.
type AddMappingInput struct {
	SourceID       string
	SourceType     string
	TargetID       string
	TargetType     string
	Confidence     float64
	MappingSource  string
	IsDerived      bool
	DerivationPath []string
	Metadata       map[string]string
	TTLDays        *int
	Bidirectional  bool
}

// AddMapping upserts a mapping row, optionally mirroring it in the reverse
// direction. See spec.md §4.1 for the full upsert/insert semantics.
func (m *Manager) AddMapping(ctx context.Context, in AddMappingInput) (*models.MappingResult, error) {
	if m.tracer != nil {
		var span trace.Span
		ctx, span = m.tracer.StartCacheSpan(ctx, "add_mapping")
		defer span.End()
	}
	if in.SourceID == "" || in.SourceType == "" || in.TargetID == "" || in.TargetType == "" {
		return nil, fmt.Errorf("%w: source and target id/type are required", bmerrors.ErrValidation)
	}
	in.Confidence = clamp01(in.Confidence)

	var result *models.MappingResult
	err := m.withTx(ctx, func(tx *sql.Tx) error {
		r, err := m.upsertOne(ctx, tx, in)
		if err != nil {
			return err
		}
		result = r

		if in.Bidirectional && !(in.SourceID == in.TargetID && in.SourceType == in.TargetType) {
			reverse := in
			reverse.SourceID, reverse.TargetID = in.TargetID, in.SourceID
			reverse.SourceType, reverse.TargetType = in.TargetType, in.SourceType
			reverse.Bidirectional = false
			// The reverse row is never itself a derivation of the forward row,
			// but it carries the same derivation metadata describing how the
			// underlying relationship was established.
			if _, err := m.upsertOne(ctx, tx, reverse); err != nil {
				return err
			}
		}

		switch {
		case in.IsDerived && in.MappingSource == "derived":
			if err := m.bumpStats(ctx, tx, statDelta{transitiveDerivations: 1}); err != nil {
				return err
			}
		case !strings.HasPrefix(in.MappingSource, "cache:"):
			if err := m.bumpStats(ctx, tx, statDelta{apiCalls: 1}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.recordAddEvent(in)
	return result, nil
}

// recordAddEvent classifies a successful AddMapping the same way the
// api_calls/transitive_derivations cache_stats counters already do: a
// derived row tagged mapping_source "derived" emits DERIVE, any other row
// sourced from outside the cache (anything not tagged "cache:...") emits
// API_CALL, and a row tagged "cache:..." emits ADD. One event is recorded
// per call; the bidirectional mirror row gets no event of its own.
func (m *Manager) recordAddEvent(in AddMappingInput) {
	if m.mon == nil {
		return
	}
	evType := monitor.EventAdd
	switch {
	case in.IsDerived && in.MappingSource == "derived":
		evType = monitor.EventDerive
	case !strings.HasPrefix(in.MappingSource, "cache:"):
		evType = monitor.EventAPICall
	}
	m.mon.Record(monitor.Event{
		Type:       evType,
		EntityType: in.SourceType,
		Metadata: map[string]string{
			"source_id": in.SourceID, "target_id": in.TargetID, "mapping_source": in.MappingSource,
		},
	})
}

func (m *Manager) upsertOne(ctx context.Context, tx *sql.Tx, in AddMappingInput) (*models.MappingResult, error) {
	var derivationJSON sql.NullString
	if len(in.DerivationPath) > 0 {
		b, err := json.Marshal(in.DerivationPath)
		if err != nil {
			return nil, err
		}
		derivationJSON = sql.NullString{String: string(b), Valid: true}
	}

	var existingID string
	err := tx.QueryRowContext(ctx, `SELECT id FROM entity_mappings
		WHERE source_id = ? AND source_type = ? AND target_id = ? AND target_type = ?`,
		in.SourceID, in.SourceType, in.TargetID, in.TargetType).Scan(&existingID)

	ttlDays := m.resolveTTLDays(ctx, tx, in)
	now := time.Now().UTC()
	expires := now.AddDate(0, 0, ttlDays)

	var id string
	switch {
	case err == sql.ErrNoRows:
		id = uuid.NewString()
		if _, err := tx.ExecContext(ctx, `INSERT INTO entity_mappings
			(id, source_id, source_type, target_id, target_type, confidence, mapping_source,
			 is_derived, derivation_path, last_updated, expires_at, usage_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			id, in.SourceID, in.SourceType, in.TargetID, in.TargetType, in.Confidence, in.MappingSource,
			in.IsDerived, derivationJSON, now, expires); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		id = existingID
		if _, err := tx.ExecContext(ctx, `UPDATE entity_mappings SET
			confidence = ?, mapping_source = ?, is_derived = ?, derivation_path = ?, expires_at = ?
			WHERE id = ?`,
			in.Confidence, in.MappingSource, in.IsDerived, derivationJSON, expires, id); err != nil {
			return nil, err
		}
	}

	if err := m.replaceMetadata(ctx, tx, id, in.Metadata); err != nil {
		return nil, err
	}

	return &models.MappingResult{
		SourceID:      in.SourceID,
		TargetID:      in.TargetID,
		TargetType:    in.TargetType,
		Confidence:    in.Confidence,
		MappingSource: in.MappingSource,
		Metadata:      in.Metadata,
	}, nil
}

func (m *Manager) resolveTTLDays(ctx context.Context, tx *sql.Tx, in AddMappingInput) int {
	if in.TTLDays != nil {
		return *in.TTLDays
	}
	var ttl int
	err := tx.QueryRowContext(ctx,
		`SELECT ttl_days FROM entity_type_config WHERE source_type = ? AND target_type = ?`,
		in.SourceType, in.TargetType).Scan(&ttl)
	if err == nil {
		return ttl
	}
	if m.cfg.DefaultTTLDays > 0 {
		return m.cfg.DefaultTTLDays
	}
	return 90
}

func (m *Manager) replaceMetadata(ctx context.Context, tx *sql.Tx, mappingID string, meta map[string]string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM mapping_metadata WHERE mapping_id = ?`, mappingID); err != nil {
		return err
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO mapping_metadata (mapping_id, meta_key, meta_value) VALUES (?, ?, ?)`,
			mappingID, k, v); err != nil {
			return err
		}
	}
	return nil
}

// BulkAddMappings calls AddMapping per item; a single item's failure is
// logged and skipped. Returns the count successfully added.
func (m *Manager) BulkAddMappings(ctx context.Context, items []AddMappingInput) int {
	added := 0
	for i, item := range items {
		if _, err := m.AddMapping(ctx, item); err != nil {
			m.logger.Warn("bulk_add_mappings: item failed", "index", i, "error", err)
			continue
		}
		added++
	}
	return added
}

// DeleteExpired deletes all rows with expires_at < now and returns the
// count.
func (m *Manager) DeleteExpired(ctx context.Context) (int, error) {
	var n int64
	err := m.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM entity_mappings WHERE expires_at < ?`, time.Now().UTC())
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: delete_expired: %v", bmerrors.ErrStore, err)
	}
	if m.mon != nil && n > 0 {
		m.mon.Record(monitor.Event{
			Type:     monitor.EventDelete,
			Metadata: map[string]string{"count": fmt.Sprintf("%d", n)},
		})
	}
	return int(n), nil
}

// GetCacheStats returns daily aggregates in [start, end], inclusive. A zero
// start/end means unbounded on that side.
func (m *Manager) GetCacheStats(ctx context.Context, start, end *time.Time) ([]models.CacheStats, error) {
	q := `SELECT day, hits, misses, direct_lookups, derived_lookups, api_calls, transitive_derivations
		FROM cache_stats WHERE 1=1`
	var args []interface{}
	if start != nil {
		q += " AND day >= ?"
		args = append(args, start.UTC().Format("2006-01-02"))
	}
	if end != nil {
		q += " AND day <= ?"
		args = append(args, end.UTC().Format("2006-01-02"))
	}
	q += " ORDER BY day"

	rs, err := m.store.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: get_cache_stats: %v", bmerrors.ErrStore, err)
	}
	defer rs.Close()

	var out []models.CacheStats
	for rs.Next() {
		var s models.CacheStats
		if err := rs.Scan(&s.Day, &s.Hits, &s.Misses, &s.DirectLookups, &s.DerivedLookups, &s.APICalls, &s.TransitiveDerivations); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rs.Err()
}

func (m *Manager) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// SnapshotMappings loads every row with confidence >= minConfidence, per
// step 2 of the transitivity builder's algorithm (spec.md §4.5). It is a
// plain read with no usage-stat side effects.
func (m *Manager) SnapshotMappings(ctx context.Context, minConfidence float64) ([]models.EntityMapping, error) {
	rs, err := m.store.DB().QueryContext(ctx, `
		SELECT id, source_id, source_type, target_id, target_type, confidence, mapping_source,
			is_derived, derivation_path, last_updated, expires_at, usage_count
		FROM entity_mappings WHERE confidence >= ?`, minConfidence)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot_mappings: %v", bmerrors.ErrStore, err)
	}
	defer rs.Close()

	rows, err := scanRows(rs)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot_mappings: %v", bmerrors.ErrStore, err)
	}
	out := make([]models.EntityMapping, len(rows))
	for i, r := range rows {
		out[i] = models.EntityMapping{
			ID: r.id, SourceID: r.sourceID, SourceType: r.sourceType,
			TargetID: r.targetID, TargetType: r.targetType, Confidence: r.confidence,
			MappingSource: r.mappingSource, IsDerived: r.isDerived,
			DerivationPath: derivationPathOf(r), LastUpdated: r.lastUpdated,
			ExpiresAt: r.expiresAt, UsageCount: r.usageCount,
		}
	}
	return out, nil
}

// RecordJobStart inserts the "running" transitive_job_log row a builder run
// starts with.
func (m *Manager) RecordJobStart(ctx context.Context, jobID string, startedAt time.Time) error {
	_, err := m.store.DB().ExecContext(ctx, `
		INSERT INTO transitive_job_log (id, started_at, status, mappings_processed, new_mappings_created, duration_seconds)
		VALUES (?, ?, 'running', 0, 0, 0)`, jobID, startedAt)
	if err != nil {
		return fmt.Errorf("%w: record_job_start: %v", bmerrors.ErrStore, err)
	}
	return nil
}

// RecordJobFinish updates the job row with its terminal status and counts.
func (m *Manager) RecordJobFinish(ctx context.Context, jobID, status string, processed, created int64, duration time.Duration) error {
	_, err := m.store.DB().ExecContext(ctx, `
		UPDATE transitive_job_log SET status = ?, mappings_processed = ?, new_mappings_created = ?, duration_seconds = ?
		WHERE id = ?`, status, processed, created, duration.Seconds(), jobID)
	if err != nil {
		return fmt.Errorf("%w: record_job_finish: %v", bmerrors.ErrStore, err)
	}
	return nil
}
