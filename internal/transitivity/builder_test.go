package transitivity

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

func TestChainConfidence_Length2MatchesSpecExample(t *testing.T) {
	// glucose -> CHEBI:17234 (0.95), CHEBI:17234 -> HMDB0000122 (0.9), decay 0.9
	// expected: 0.95 * 0.9 * 0.9 = 0.7695
	got := chainConfidence([]float64{0.95, 0.9}, 0.9)
	assert.InDelta(t, 0.7695, got, 1e-9)
}

func TestChainConfidence_DecayAppliedOncePerHop(t *testing.T) {
	// 3-hop chain: decay^2 applied, not decay^3
	got := chainConfidence([]float64{1.0, 1.0, 1.0}, 0.5)
	assert.InDelta(t, 0.25, got, 1e-9)
}

func TestChainConfidence_SingleHopNoDecay(t *testing.T) {
	got := chainConfidence([]float64{0.8}, 0.5)
	assert.InDelta(t, 0.8, got, 1e-9)
}

// TestInsertIfNotShadowed_DoesNotOverwriteConfidentDirectMapping covers
// spec.md §4.5 step 3/testable property #7: a direct row at 0.6 with
// min_confidence=0.5 must survive even when the transitive chain computes a
// higher derived confidence (0.9) for the same endpoints. If the builder
// proceeded to AddMapping here, upsertOne's UPDATE branch would silently
// overwrite the direct row's confidence and mapping_source, so the only
// expectations set below are the Lookup query and its usage-count bump; an
// unexpected INSERT/UPDATE against entity_mappings fails the mock.
func TestInsertIfNotShadowed_DoesNotOverwriteConfidentDirectMapping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	store, err := cache.OpenWithDB(db, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	manager := cache.NewManager(store, config.CacheStoreConfig{DefaultTTLDays: 90}, logging.Nop())

	b := New(manager, nil, logging.Nop())

	now := time.Now().UTC()
	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "source_id", "source_type", "target_id", "target_type",
		"confidence", "mapping_source", "is_derived", "derivation_path", "last_updated", "expires_at", "usage_count"}).
		AddRow("row-1", "HMDB1", "hmdb", "CHEBI:1", "chebi", 0.6, "hmdb_api", false, nil, now, now.Add(90*24*time.Hour), int64(1))
	mock.ExpectQuery("SELECT id, source_id").WillReturnRows(rows)
	mock.ExpectExec("UPDATE entity_mappings SET usage_count").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO cache_stats").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := b.insertIfNotShadowed(context.Background(), "HMDB1", "hmdb", "CHEBI:1", "chebi", 0.9, 0.5, []string{"m1", "m2"}, 2)
	require.NoError(t, err)
	assert.False(t, ok, "a direct row at or above min_confidence must not be shadowed by a more confident derivation")
	require.NoError(t, mock.ExpectationsWereMet())
}
