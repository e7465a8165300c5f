package monitor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_RingBufferWraps(t *testing.T) {
	m := New(2)
	m.Record(Event{Type: EventHit, EntityType: "hmdb"})
	m.Record(Event{Type: EventMiss, EntityType: "chebi"})
	m.Record(Event{Type: EventHit, EntityType: "pubchem"})

	recent := m.Recent(10)
	require.Len(t, recent, 2)
	assert.Equal(t, "pubchem", recent[0].EntityType)
	assert.Equal(t, "chebi", recent[1].EntityType)
}

func TestMonitor_TrackOperation_EmitsErrorEventAndReturnsErr(t *testing.T) {
	m := New(5)
	err := m.TrackOperation(EventLookup, "hmdb", nil, func() error {
		return errors.New("boom")
	})
	require.Error(t, err)

	recent := m.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, EventError, recent[0].Type)
	assert.Equal(t, "boom", recent[0].Metadata["error"])
}

func TestMonitor_TrackOperation_EmitsGivenTypeOnSuccess(t *testing.T) {
	m := New(5)
	err := m.TrackOperation(EventAdd, "hmdb", nil, func() error { return nil })
	require.NoError(t, err)

	recent := m.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, EventAdd, recent[0].Type)
}

func TestMonitor_Counts_AggregatesByType(t *testing.T) {
	m := New(10)
	m.Record(Event{Type: EventHit})
	m.Record(Event{Type: EventHit})
	m.Record(Event{Type: EventMiss})

	counts := m.Counts()
	assert.Equal(t, int64(2), counts[EventHit])
	assert.Equal(t, int64(1), counts[EventMiss])
}
