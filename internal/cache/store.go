// Package cache implements the persistent mapping cache: a durable,
// bidirectional key/value store of EntityMapping rows with TTL expiry and
// usage statistics (spec.md §4.1), backed by a MySQL-compatible database —
// the same database/sql + go-sql-driver/mysql combination the teacher uses
// for its own schema-definition store (internal/storage/vitess/client.go).
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/arpanauts/biomapper-sub002/internal/logging"
)

// Store owns the physical connection and schema for the mapping cache.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// Open connects to dsn and ensures the mapping schema exists.
func Open(dsn string, maxOpenConns, maxIdleConns int, logger logging.Logger) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping cache store: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure cache schema: %w", err)
	}
	return s, nil
}

// OpenWithDB wraps an already-open *sql.DB (used by tests with go-sqlmock),
// skipping both the connectivity probe and the schema setup.
func OpenWithDB(db *sql.DB, logger logging.Logger) (*Store, error) {
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for the manager to build transactions.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entity_mappings (
			id              VARCHAR(64) PRIMARY KEY,
			source_id       VARCHAR(512) NOT NULL,
			source_type     VARCHAR(128) NOT NULL,
			target_id       VARCHAR(512) NOT NULL,
			target_type     VARCHAR(128) NOT NULL,
			confidence      DOUBLE NOT NULL,
			mapping_source  VARCHAR(256) NOT NULL,
			is_derived      TINYINT(1) NOT NULL DEFAULT 0,
			derivation_path TEXT,
			last_updated    DATETIME(6) NOT NULL,
			expires_at      DATETIME(6) NOT NULL,
			usage_count     BIGINT NOT NULL DEFAULT 0,
			UNIQUE KEY uq_quad (source_id, source_type, target_id, target_type),
			KEY idx_source (source_id, source_type),
			KEY idx_target (target_id, target_type),
			KEY idx_expires (expires_at)
		)`,
		`CREATE TABLE IF NOT EXISTS mapping_metadata (
			mapping_id VARCHAR(64) NOT NULL,
			meta_key   VARCHAR(256) NOT NULL,
			meta_value TEXT,
			PRIMARY KEY (mapping_id, meta_key)
		)`,
		`CREATE TABLE IF NOT EXISTS entity_type_config (
			source_type          VARCHAR(128) NOT NULL,
			target_type          VARCHAR(128) NOT NULL,
			ttl_days             INT NOT NULL,
			confidence_threshold DOUBLE NOT NULL,
			PRIMARY KEY (source_type, target_type)
		)`,
		`CREATE TABLE IF NOT EXISTS cache_stats (
			day                    DATE PRIMARY KEY,
			hits                   BIGINT NOT NULL DEFAULT 0,
			misses                 BIGINT NOT NULL DEFAULT 0,
			direct_lookups         BIGINT NOT NULL DEFAULT 0,
			derived_lookups        BIGINT NOT NULL DEFAULT 0,
			api_calls              BIGINT NOT NULL DEFAULT 0,
			transitive_derivations BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS transitive_job_log (
			id                   VARCHAR(64) PRIMARY KEY,
			started_at           DATETIME(6) NOT NULL,
			status               VARCHAR(64) NOT NULL,
			mappings_processed   BIGINT NOT NULL DEFAULT 0,
			new_mappings_created BIGINT NOT NULL DEFAULT 0,
			duration_seconds     DOUBLE NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
