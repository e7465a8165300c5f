package registry

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arpanauts/biomapper-sub002/internal/logging"
	"github.com/arpanauts/biomapper-sub002/internal/models"
)

func newTestRegistry(t *testing.T) (*Registry, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	db := sqlx.NewDb(mockDB, "sqlmock")
	reg, err := OpenWithDB(db, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	return reg, mock
}

func TestRegistry_RegisterResource(t *testing.T) {
	reg, mock := newTestRegistry(t)

	mock.ExpectExec("INSERT INTO resources").WillReturnResult(sqlmock.NewResult(1, 1))

	err := reg.RegisterResource(context.Background(), models.ResourceMetadata{
		ResourceName: "pubchem_api", ResourceType: models.ResourceTypeAPI,
		Priority: 5, IsActive: true, LastSync: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistry_HasOntologySupport(t *testing.T) {
	reg, mock := newTestRegistry(t)

	rows := sqlmock.NewRows([]string{"support_level"}).AddRow(models.SupportFull)
	mock.ExpectQuery("SELECT support_level FROM ontology_coverage").
		WithArgs("pubchem_api", "chebi").WillReturnRows(rows)

	ok, err := reg.HasOntologySupport(context.Background(), "pubchem_api", "chebi", models.SupportPartial)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistry_HasOntologySupport_NoRowMeansFalse(t *testing.T) {
	reg, mock := newTestRegistry(t)

	mock.ExpectQuery("SELECT support_level FROM ontology_coverage").
		WillReturnError(sql.ErrNoRows)

	ok, err := reg.HasOntologySupport(context.Background(), "unknown", "chebi", models.SupportNone)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetPreferredResourceOrder_FiltersOutResourcesMissingOntologyCoverage(t *testing.T) {
	reg, mock := newTestRegistry(t)

	resRows := func(name string) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"resource_name", "resource_type", "connection_info", "priority", "is_active", "last_sync"}).
			AddRow(name, models.ResourceTypeAPI, "", 1, true, time.Now())
	}

	mock.ExpectQuery("SELECT resource_name, resource_type, connection_info, priority, is_active, last_sync").
		WithArgs("covered").WillReturnRows(resRows("covered"))
	mock.ExpectQuery("SELECT support_level FROM ontology_coverage").
		WithArgs("covered", "hmdb").WillReturnRows(sqlmock.NewRows([]string{"support_level"}).AddRow(models.SupportFull))
	mock.ExpectQuery("SELECT support_level FROM ontology_coverage").
		WithArgs("covered", "chebi").WillReturnRows(sqlmock.NewRows([]string{"support_level"}).AddRow(models.SupportPartial))
	mock.ExpectQuery("SELECT resource_name, operation_type, source_type, target_type, avg_response_time_ms, success_rate, sample_count").
		WithArgs("covered", "map_entity", "hmdb", "chebi").WillReturnError(sql.ErrNoRows)

	mock.ExpectQuery("SELECT resource_name, resource_type, connection_info, priority, is_active, last_sync").
		WithArgs("uncovered").WillReturnRows(resRows("uncovered"))
	mock.ExpectQuery("SELECT support_level FROM ontology_coverage").
		WithArgs("uncovered", "hmdb").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT support_level FROM ontology_coverage").
		WithArgs("uncovered", "chebi").WillReturnError(sql.ErrNoRows)

	order, err := reg.GetPreferredResourceOrder(context.Background(), "hmdb", "chebi", []string{"covered", "uncovered"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"covered"}, order)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPreferredResourceOrder_DropsBelowMinSuccessRate(t *testing.T) {
	reg, mock := newTestRegistry(t)

	resRows := sqlmock.NewRows([]string{"resource_name", "resource_type", "connection_info", "priority", "is_active", "last_sync"}).
		AddRow("flaky", models.ResourceTypeAPI, "", 1, true, time.Now())

	mock.ExpectQuery("SELECT resource_name, resource_type, connection_info, priority, is_active, last_sync").
		WithArgs("flaky").WillReturnRows(resRows)
	mock.ExpectQuery("SELECT support_level FROM ontology_coverage").
		WithArgs("flaky", "hmdb").WillReturnRows(sqlmock.NewRows([]string{"support_level"}).AddRow(models.SupportFull))
	mock.ExpectQuery("SELECT support_level FROM ontology_coverage").
		WithArgs("flaky", "chebi").WillReturnRows(sqlmock.NewRows([]string{"support_level"}).AddRow(models.SupportFull))
	perfRows := sqlmock.NewRows([]string{"resource_name", "operation_type", "source_type", "target_type", "avg_response_time_ms", "success_rate", "sample_count"}).
		AddRow("flaky", "map_entity", "hmdb", "chebi", 100.0, 0.3, int64(20))
	mock.ExpectQuery("SELECT resource_name, operation_type, source_type, target_type, avg_response_time_ms, success_rate, sample_count").
		WithArgs("flaky", "map_entity", "hmdb", "chebi").WillReturnRows(perfRows)

	order, err := reg.GetPreferredResourceOrder(context.Background(), "hmdb", "chebi", []string{"flaky"}, 0.8)
	require.NoError(t, err)
	assert.Empty(t, order)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCandidateScore_RewardsPriorityAndSuccess(t *testing.T) {
	fast := models.ResourceMetadata{Priority: 1, IsActive: true}
	perfGood := &models.PerformanceMetrics{SuccessRate: 1.0, AvgResponseTimeMS: 50, SampleCount: 10}
	perfBad := &models.PerformanceMetrics{SuccessRate: 0.2, AvgResponseTimeMS: 900, SampleCount: 10}

	assert.Greater(t, candidateScore(fast, perfGood), candidateScore(fast, perfBad))
}

func TestCandidateScore_UnloggedResourceAssumedReliable(t *testing.T) {
	res := models.ResourceMetadata{Priority: 2, IsActive: true}
	assert.Equal(t, float64(2)*100+50+25, candidateScore(res, nil))
}
