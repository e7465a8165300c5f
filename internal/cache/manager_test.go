package cache

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arpanauts/biomapper-sub002/internal/config"
	"github.com/arpanauts/biomapper-sub002/internal/logging"
	"github.com/arpanauts/biomapper-sub002/internal/monitor"
)

func newTestManager(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	store, err := OpenWithDB(db, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	mgr := NewManager(store, config.CacheStoreConfig{DefaultTTLDays: 90}, logging.Nop())
	return mgr, mock
}

func TestManager_Lookup_Empty(t *testing.T) {
	mgr, mock := newTestManager(t)

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "source_id", "source_type", "target_id", "target_type",
		"confidence", "mapping_source", "is_derived", "derivation_path", "last_updated", "expires_at", "usage_count"})
	mock.ExpectQuery("SELECT id, source_id").WillReturnRows(rows)
	mock.ExpectExec("INSERT INTO cache_stats").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	results, err := mgr.Lookup(context.Background(), "HMDB0000001", "hmdb", LookupOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_Lookup_HitBumpsUsage(t *testing.T) {
	mgr, mock := newTestManager(t)

	now := time.Now().UTC()
	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "source_id", "source_type", "target_id", "target_type",
		"confidence", "mapping_source", "is_derived", "derivation_path", "last_updated", "expires_at", "usage_count"}).
		AddRow("row-1", "HMDB0000001", "hmdb", "CHEBI:16236", "chebi", 0.95, "cache:hmdb_api", false, nil, now, now.Add(90*24*time.Hour), int64(3))
	mock.ExpectQuery("SELECT id, source_id").WillReturnRows(rows)
	mock.ExpectExec("UPDATE entity_mappings SET usage_count").WithArgs(sqlmock.AnyArg(), "row-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO cache_stats").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	results, err := mgr.Lookup(context.Background(), "HMDB0000001", "hmdb", LookupOptions{IncludeDerived: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "CHEBI:16236", results[0].TargetID)
	assert.Equal(t, 0.95, results[0].Confidence)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_AddMapping_InsertsNewQuadAndReverse(t *testing.T) {
	mgr, mock := newTestManager(t)

	mock.ExpectBegin()
	// forward upsert: no existing row, default ttl lookup miss, insert, metadata replace (empty)
	mock.ExpectQuery("SELECT id FROM entity_mappings").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT ttl_days FROM entity_type_config").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO entity_mappings").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM mapping_metadata").WillReturnResult(sqlmock.NewResult(0, 0))
	// reverse upsert
	mock.ExpectQuery("SELECT id FROM entity_mappings").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT ttl_days FROM entity_type_config").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO entity_mappings").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM mapping_metadata").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO cache_stats").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := mgr.AddMapping(context.Background(), AddMappingInput{
		SourceID: "HMDB0000001", SourceType: "hmdb",
		TargetID: "CHEBI:16236", TargetType: "chebi",
		Confidence: 0.95, MappingSource: "api:hmdb", Bidirectional: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "HMDB0000001", result.SourceID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_DeleteExpired(t *testing.T) {
	mgr, mock := newTestManager(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM entity_mappings WHERE expires_at").WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	n, err := mgr.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_AddMapping_RecordsDeriveEventForDerivedRows(t *testing.T) {
	mgr, mock := newTestManager(t)
	mon := monitor.New(10)
	mgr.WithMonitor(mon)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM entity_mappings").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT ttl_days FROM entity_type_config").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO entity_mappings").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM mapping_metadata").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO cache_stats").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := mgr.AddMapping(context.Background(), AddMappingInput{
		SourceID: "name:glucose", SourceType: "name",
		TargetID: "HMDB0000122", TargetType: "hmdb",
		Confidence: 0.77, MappingSource: "derived", IsDerived: true,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	counts := mon.Counts()
	assert.Equal(t, int64(1), counts[monitor.EventDerive])
	assert.Zero(t, counts[monitor.EventAdd])
}

func TestManager_AddMapping_RecordsAPICallEventForExternalSource(t *testing.T) {
	mgr, mock := newTestManager(t)
	mon := monitor.New(10)
	mgr.WithMonitor(mon)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM entity_mappings").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT ttl_days FROM entity_type_config").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO entity_mappings").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM mapping_metadata").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO cache_stats").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := mgr.AddMapping(context.Background(), AddMappingInput{
		SourceID: "HMDB0000001", SourceType: "hmdb",
		TargetID: "CHEBI:16236", TargetType: "chebi",
		Confidence: 0.95, MappingSource: "api:hmdb",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, int64(1), mon.Counts()[monitor.EventAPICall])
}

func TestManager_DeleteExpired_RecordsDeleteEvent(t *testing.T) {
	mgr, mock := newTestManager(t)
	mon := monitor.New(10)
	mgr.WithMonitor(mon)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM entity_mappings WHERE expires_at").WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	n, err := mgr.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, int64(1), mon.Counts()[monitor.EventDelete])
}

func TestManager_BulkAddMappings_SkipsInvalidItems(t *testing.T) {
	mgr, _ := newTestManager(t)

	added := mgr.BulkAddMappings(context.Background(), []AddMappingInput{
		{SourceID: "", SourceType: "hmdb", TargetID: "x", TargetType: "chebi"},
	})
	assert.Equal(t, 0, added)
}
