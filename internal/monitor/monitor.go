// Package monitor implements the in-process cache observer described in
// spec.md §4.7: a bounded ring buffer of recent events plus aggregate
// Prometheus counters, grounded on the teacher's metric-vector-plus-
// Record-helper pattern (internal/monitoring/prometheus.go).
package monitor

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EventType enumerates the event kinds spec.md §4.7 names.
type EventType string

const (
	EventHit     EventType = "HIT"
	EventMiss    EventType = "MISS"
	EventAdd     EventType = "ADD"
	EventDelete  EventType = "DELETE"
	EventLookup  EventType = "LOOKUP"
	EventDerive  EventType = "DERIVE"
	EventAPICall EventType = "API_CALL"
	EventError   EventType = "ERROR"
)

var (
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biomapper_monitor_events_total",
			Help: "Total number of monitor events by type and entity type",
		},
		[]string{"type", "entity_type"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "biomapper_operation_duration_seconds",
			Help:    "Tracked operation duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"type", "entity_type"},
	)
)

func init() {
	_ = prometheus.Register(eventsTotal)
	_ = prometheus.Register(operationDuration)
}

// Event is one entry appended to the ring buffer.
type Event struct {
	Type       EventType
	Timestamp  time.Time
	EntityType string
	DurationMS float64
	Metadata   map[string]string
}

// Monitor holds the bounded in-memory event history alongside the
// process-wide Prometheus registrations.
type Monitor struct {
	mu     sync.Mutex
	buf    []Event
	cap    int
	head   int
	filled bool
	counts map[EventType]int64
}

// New builds a Monitor whose ring buffer holds at most size events.
func New(size int) *Monitor {
	if size <= 0 {
		size = 1000
	}
	return &Monitor{buf: make([]Event, size), cap: size, counts: make(map[EventType]int64)}
}

// Record appends ev to the ring buffer (evicting the oldest entry once
// full), bumps the aggregate per-type counter, and updates Prometheus.
func (m *Monitor) Record(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	m.mu.Lock()
	m.buf[m.head] = ev
	m.head = (m.head + 1) % m.cap
	if m.head == 0 {
		m.filled = true
	}
	m.counts[ev.Type]++
	m.mu.Unlock()

	eventsTotal.WithLabelValues(string(ev.Type), ev.EntityType).Inc()
	if ev.DurationMS > 0 {
		operationDuration.WithLabelValues(string(ev.Type), ev.EntityType).Observe(ev.DurationMS / 1000)
	}
}

// Counts returns a snapshot of the aggregate per-type counters.
func (m *Monitor) Counts() map[EventType]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[EventType]int64, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}

// Recent returns up to n of the most recently recorded events, newest
// first. n <= 0 returns everything retained.
func (m *Monitor) Recent(n int) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ordered []Event
	if m.filled {
		ordered = append(ordered, m.buf[m.head:]...)
		ordered = append(ordered, m.buf[:m.head]...)
	} else {
		ordered = append(ordered, m.buf[:m.head]...)
	}

	for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	}
	if n > 0 && n < len(ordered) {
		ordered = ordered[:n]
	}
	return ordered
}

// TrackOperation is the scoped-acquisition wrapper spec.md §4.7 describes:
// it measures wall-clock duration around fn and emits either the eventType
// event on success or an ERROR event on failure, re-returning fn's error
// either way (Go's analogue of "emits an ERROR event on exception while
// re-raising").
func (m *Monitor) TrackOperation(eventType EventType, entityType string, metadata map[string]string, fn func() error) error {
	start := time.Now().UTC()
	err := fn()
	duration := time.Since(start)

	finalType := eventType
	meta := metadata
	if err != nil {
		finalType = EventError
		meta = mergeMetadata(metadata, "error", err.Error())
	}
	m.Record(Event{
		Type:       finalType,
		Timestamp:  start,
		EntityType: entityType,
		DurationMS: float64(duration.Microseconds()) / 1000,
		Metadata:   meta,
	})
	return err
}

func mergeMetadata(base map[string]string, k, v string) map[string]string {
	out := make(map[string]string, len(base)+1)
	for mk, mv := range base {
		out[mk] = mv
	}
	out[k] = v
	return out
}
