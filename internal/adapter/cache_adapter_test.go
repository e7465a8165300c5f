package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arpanauts/biomapper-sub002/internal/cache"
	"github.com/arpanauts/biomapper-sub002/internal/config"
	"github.com/arpanauts/biomapper-sub002/internal/logging"
)

func TestCacheAdapter_MapEntity_ForwardsMinConfidenceFromOpts(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	store, err := cache.OpenWithDB(db, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	manager := cache.NewManager(store, config.CacheStoreConfig{DefaultTTLDays: 90}, logging.Nop())

	a := NewCacheAdapter("local_cache", manager)

	now := time.Now().UTC()
	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "source_id", "source_type", "target_id", "target_type",
		"confidence", "mapping_source", "is_derived", "derivation_path", "last_updated", "expires_at", "usage_count"}).
		AddRow("row-1", "HMDB1", "hmdb", "CHEBI:1", "chebi", 0.9, "hmdb_api", false, nil, now, now.Add(24*time.Hour), int64(1))
	mock.ExpectQuery("SELECT id, source_id").
		WithArgs("HMDB1", "hmdb", 0.7, "chebi").
		WillReturnRows(rows)
	mock.ExpectExec("UPDATE entity_mappings SET usage_count").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO cache_stats").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := a.MapEntity(context.Background(), "HMDB1", "hmdb", "chebi", map[string]any{"min_confidence": 0.7})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "CHEBI:1", result.TargetID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheAdapter_MapEntity_DefaultsMinConfidenceToZero(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	store, err := cache.OpenWithDB(db, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	manager := cache.NewManager(store, config.CacheStoreConfig{DefaultTTLDays: 90}, logging.Nop())

	a := NewCacheAdapter("local_cache", manager)

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "source_id", "source_type", "target_id", "target_type",
		"confidence", "mapping_source", "is_derived", "derivation_path", "last_updated", "expires_at", "usage_count"})
	mock.ExpectQuery("SELECT id, source_id").
		WithArgs("HMDB1", "hmdb", 0.0, "chebi").
		WillReturnRows(rows)
	mock.ExpectExec("INSERT INTO cache_stats").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := a.MapEntity(context.Background(), "HMDB1", "hmdb", "chebi", nil)
	require.NoError(t, err)
	assert.Nil(t, result)
	require.NoError(t, mock.ExpectationsWereMet())
}
