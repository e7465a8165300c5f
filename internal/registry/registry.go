// Package registry implements the resource catalog described in spec.md
// §4.2: the set of registered backends, their claimed ontology coverage,
// and the running performance metrics the dispatcher uses to rank them.
// It is grounded on the teacher's database/sql + go-sql-driver/mysql
// bootstrap pattern (internal/storage/vitess/client.go) but queries through
// jmoiron/sqlx, the higher-level SQL layer the rest of the example corpus
// (jordigilh-kubernaut's datastorage package) builds its repositories on.
package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"

	"github.com/arpanauts/biomapper-sub002/internal/bmerrors"
	"github.com/arpanauts/biomapper-sub002/internal/logging"
	"github.com/arpanauts/biomapper-sub002/internal/models"
)

// Registry owns the connection and schema for the resource catalog.
type Registry struct {
	db     *sqlx.DB
	logger logging.Logger
}

// Open connects to dsn and ensures the registry schema exists.
func Open(dsn string, maxOpenConns, maxIdleConns int, logger logging.Logger) (*Registry, error) {
	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open registry: %v", bmerrors.ErrConnectivity, err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	r := &Registry{db: db, logger: logger}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ensure registry schema: %v", bmerrors.ErrConnectivity, err)
	}
	return r, nil
}

// OpenWithDB wraps an already-open *sqlx.DB (used by tests with go-sqlmock).
func OpenWithDB(db *sqlx.DB, logger logging.Logger) (*Registry, error) {
	return &Registry{db: db, logger: logger}, nil
}

func (r *Registry) Close() error { return r.db.Close() }

func (r *Registry) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS resources (
			resource_name   VARCHAR(128) PRIMARY KEY,
			resource_type   VARCHAR(32) NOT NULL,
			connection_info TEXT,
			priority        INT NOT NULL DEFAULT 0,
			is_active       TINYINT(1) NOT NULL DEFAULT 1,
			last_sync       DATETIME(6)
		)`,
		`CREATE TABLE IF NOT EXISTS ontology_coverage (
			resource_name VARCHAR(128) NOT NULL,
			ontology_type VARCHAR(64) NOT NULL,
			support_level VARCHAR(16) NOT NULL,
			entity_count  BIGINT,
			PRIMARY KEY (resource_name, ontology_type)
		)`,
		`CREATE TABLE IF NOT EXISTS performance_metrics (
			resource_name        VARCHAR(128) NOT NULL,
			operation_type       VARCHAR(64) NOT NULL,
			source_type          VARCHAR(64) NOT NULL,
			target_type          VARCHAR(64) NOT NULL,
			avg_response_time_ms DOUBLE NOT NULL DEFAULT 0,
			success_rate         DOUBLE NOT NULL DEFAULT 0,
			sample_count         BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (resource_name, operation_type, source_type, target_type)
		)`,
		`CREATE TABLE IF NOT EXISTS operation_log (
			id              VARCHAR(64) PRIMARY KEY,
			resource_name   VARCHAR(128) NOT NULL,
			operation_type  VARCHAR(64) NOT NULL,
			source_type     VARCHAR(64),
			target_type     VARCHAR(64),
			query           TEXT,
			response_time_ms DOUBLE,
			status          VARCHAR(16) NOT NULL,
			error_message   TEXT,
			created_at      DATETIME(6) NOT NULL,
			KEY idx_resource_created (resource_name, created_at)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// RegisterResource upserts a resource's catalog entry.
func (r *Registry) RegisterResource(ctx context.Context, res models.ResourceMetadata) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO resources (resource_name, resource_type, connection_info, priority, is_active, last_sync)
		VALUES (:resource_name, :resource_type, :connection_info, :priority, :is_active, :last_sync)
		ON DUPLICATE KEY UPDATE
			resource_type = VALUES(resource_type),
			connection_info = VALUES(connection_info),
			priority = VALUES(priority),
			is_active = VALUES(is_active),
			last_sync = VALUES(last_sync)`, res)
	if err != nil {
		return fmt.Errorf("%w: register_resource: %v", bmerrors.ErrStore, err)
	}
	return nil
}

// RegisterOntologyCoverage upserts a resource's claimed ontology coverage.
func (r *Registry) RegisterOntologyCoverage(ctx context.Context, cov models.OntologyCoverage) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO ontology_coverage (resource_name, ontology_type, support_level, entity_count)
		VALUES (:resource_name, :ontology_type, :support_level, :entity_count)
		ON DUPLICATE KEY UPDATE
			support_level = VALUES(support_level),
			entity_count = VALUES(entity_count)`, cov)
	if err != nil {
		return fmt.Errorf("%w: register_ontology_coverage: %v", bmerrors.ErrStore, err)
	}
	return nil
}

// HasOntologySupport reports whether resourceName claims at least minLevel
// support for ontologyType. Absence of a row reports false, whatever
// minLevel is.
func (r *Registry) HasOntologySupport(ctx context.Context, resourceName, ontologyType, minLevel string) (bool, error) {
	var level string
	err := r.db.GetContext(ctx, &level,
		`SELECT support_level FROM ontology_coverage WHERE resource_name = ? AND ontology_type = ?`,
		resourceName, ontologyType)
	if err != nil {
		return false, nil // no row == no support, not an error
	}
	return models.SupportAtLeast(level, minLevel), nil
}

// LogOperation appends an operation_log row and folds its outcome into the
// running PerformanceMetrics average for (resource, op, source, target).
func (r *Registry) LogOperation(ctx context.Context, op models.OperationLog) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: log_operation: %v", bmerrors.ErrStore, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO operation_log (id, resource_name, operation_type, source_type, target_type, query,
			response_time_ms, status, error_message, created_at)
		VALUES (:id, :resource_name, :operation_type, :source_type, :target_type, :query,
			:response_time_ms, :status, :error_message, :created_at)`, op); err != nil {
		return fmt.Errorf("%w: log_operation insert: %v", bmerrors.ErrStore, err)
	}

	var current models.PerformanceMetrics
	err = tx.GetContext(ctx, &current, `
		SELECT resource_name, operation_type, source_type, target_type, avg_response_time_ms, success_rate, sample_count
		FROM performance_metrics WHERE resource_name = ? AND operation_type = ? AND source_type = ? AND target_type = ?`,
		op.ResourceName, op.OperationType, op.SourceType, op.TargetType)

	succeeded := 0.0
	if op.Status == models.OpStatusSuccess {
		succeeded = 1.0
	}
	responseTime := 0.0
	if op.ResponseTimeMS != nil {
		responseTime = *op.ResponseTimeMS
	}

	var next models.PerformanceMetrics
	if err != nil {
		// first sample for this (resource, op, source, target) combination
		next = models.PerformanceMetrics{
			ResourceName: op.ResourceName, OperationType: op.OperationType,
			SourceType: op.SourceType, TargetType: op.TargetType,
			AvgResponseTimeMS: responseTime, SuccessRate: succeeded, SampleCount: 1,
		}
	} else {
		n := float64(current.SampleCount)
		next = models.PerformanceMetrics{
			ResourceName: op.ResourceName, OperationType: op.OperationType,
			SourceType: op.SourceType, TargetType: op.TargetType,
			AvgResponseTimeMS: current.AvgResponseTimeMS + (responseTime-current.AvgResponseTimeMS)/(n+1),
			SuccessRate:       current.SuccessRate + (succeeded-current.SuccessRate)/(n+1),
			SampleCount:       current.SampleCount + 1,
		}
	}

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO performance_metrics (resource_name, operation_type, source_type, target_type,
			avg_response_time_ms, success_rate, sample_count)
		VALUES (:resource_name, :operation_type, :source_type, :target_type,
			:avg_response_time_ms, :success_rate, :sample_count)
		ON DUPLICATE KEY UPDATE
			avg_response_time_ms = VALUES(avg_response_time_ms),
			success_rate = VALUES(success_rate),
			sample_count = VALUES(sample_count)`, next); err != nil {
		return fmt.Errorf("%w: log_operation metrics: %v", bmerrors.ErrStore, err)
	}

	return tx.Commit()
}

// GetPerformanceMetrics returns the running aggregate for one combination,
// or nil if no operation has been logged against it yet.
func (r *Registry) GetPerformanceMetrics(ctx context.Context, resourceName, opType, sourceType, targetType string) (*models.PerformanceMetrics, error) {
	var m models.PerformanceMetrics
	err := r.db.GetContext(ctx, &m, `
		SELECT resource_name, operation_type, source_type, target_type, avg_response_time_ms, success_rate, sample_count
		FROM performance_metrics WHERE resource_name = ? AND operation_type = ? AND source_type = ? AND target_type = ?`,
		resourceName, opType, sourceType, targetType)
	if err != nil {
		return nil, nil
	}
	return &m, nil
}

// ClearOperationLogs deletes operation_log rows older than cutoff and
// returns the number removed. Performance metrics are untouched.
func (r *Registry) ClearOperationLogs(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM operation_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: clear_operation_logs: %v", bmerrors.ErrStore, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// candidateScore is the ranking weight described in spec.md §4.2: higher is
// preferred. Latency is normalized against a 1000ms reference ceiling
// rather than the candidate set's own max, so a resource's rank does not
// shift merely because a slower competitor joined or left the pool.
const latencyReferenceMS = 1000.0

func candidateScore(res models.ResourceMetadata, perf *models.PerformanceMetrics) float64 {
	successRate, avgMS := 1.0, 0.0 // an unlogged resource is assumed reliable until proven otherwise
	if perf != nil && perf.SampleCount > 0 {
		successRate = perf.SuccessRate
		avgMS = perf.AvgResponseTimeMS
	}
	normalizedLatency := avgMS / latencyReferenceMS
	if normalizedLatency > 1 {
		normalizedLatency = 1
	}
	return float64(res.Priority)*100 + successRate*50 + (1-normalizedLatency)*25
}

// GetPreferredResourceOrder filters candidateNames to active resources
// whose claimed coverage for both sourceType and targetType is at least
// partial, then ranks the survivors by candidateScore descending, breaking
// ties by priority then name. Resources missing from the catalog are
// dropped silently (the caller only asked about active candidates).
// minSuccessRate, when > 0, drops any resource whose logged success_rate
// falls below it — a resource with no samples yet is never excluded this
// way, since it has nothing to be below.
func (r *Registry) GetPreferredResourceOrder(ctx context.Context, sourceType, targetType string, candidateNames []string, minSuccessRate float64) ([]string, error) {
	type scored struct {
		name     string
		priority int
		score    float64
	}
	var ranked []scored
	for _, name := range candidateNames {
		var res models.ResourceMetadata
		if err := r.db.GetContext(ctx, &res, `SELECT resource_name, resource_type, connection_info, priority, is_active, last_sync
			FROM resources WHERE resource_name = ?`, name); err != nil {
			continue
		}
		if !res.IsActive {
			continue
		}

		sourceOK, err := r.HasOntologySupport(ctx, name, sourceType, models.SupportPartial)
		if err != nil {
			return nil, fmt.Errorf("%w: get_preferred_resource_order: %v", bmerrors.ErrStore, err)
		}
		targetOK, err := r.HasOntologySupport(ctx, name, targetType, models.SupportPartial)
		if err != nil {
			return nil, fmt.Errorf("%w: get_preferred_resource_order: %v", bmerrors.ErrStore, err)
		}
		if !sourceOK || !targetOK {
			continue
		}

		perf, _ := r.GetPerformanceMetrics(ctx, name, "map_entity", sourceType, targetType)
		if minSuccessRate > 0 && perf != nil && perf.SampleCount > 0 && perf.SuccessRate < minSuccessRate {
			continue
		}
		ranked = append(ranked, scored{name: name, priority: res.Priority, score: candidateScore(res, perf)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if ranked[i].priority != ranked[j].priority {
			return ranked[i].priority > ranked[j].priority
		}
		return ranked[i].name < ranked[j].name
	})

	out := make([]string, len(ranked))
	for i, s := range ranked {
		out[i] = s.name
	}
	return out, nil
}
