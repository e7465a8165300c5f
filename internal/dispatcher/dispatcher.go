// Package dispatcher implements the ranked-candidate invocation engine of
// spec.md §4.3: for each request it asks the registry for a preference
// order over the registered adapters, then tries them in turn, racing each
// against a timeout and a per-resource circuit breaker, falling through to
// the next candidate on failure.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/trace"

	"github.com/arpanauts/biomapper-sub002/internal/adapter"
	"github.com/arpanauts/biomapper-sub002/internal/config"
	"github.com/arpanauts/biomapper-sub002/internal/logging"
	"github.com/arpanauts/biomapper-sub002/internal/models"
	"github.com/arpanauts/biomapper-sub002/internal/monitor"
	"github.com/arpanauts/biomapper-sub002/internal/tracing"
)

// Ranker is the slice of *registry.Registry the dispatcher depends on: it
// lets tests substitute a fake without standing up a database.
type Ranker interface {
	GetPreferredResourceOrder(ctx context.Context, sourceType, targetType string, candidateNames []string, minSuccessRate float64) ([]string, error)
	LogOperation(ctx context.Context, op models.OperationLog) error
}

// Dispatcher ranks and invokes registered Adapters for one mapping request.
type Dispatcher struct {
	reg     Ranker
	mon     *monitor.Monitor
	logger  logging.Logger
	timeout time.Duration
	cfg     config.DispatcherConfig

	mu       sync.Mutex
	adapters map[string]adapter.Adapter
	breakers map[string]*gobreaker.CircuitBreaker
	tracer   *tracing.Tracer
}

// WithTracer attaches a Tracer so each adapter invocation emits a span.
// Passing nil disables tracing.
func (d *Dispatcher) WithTracer(t *tracing.Tracer) *Dispatcher {
	d.tracer = t
	return d
}

// New builds a Dispatcher. reg supplies ranking and operation logging; mon
// may be nil to disable event recording.
func New(reg Ranker, cfg config.DispatcherConfig, mon *monitor.Monitor, logger logging.Logger) *Dispatcher {
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		reg:      reg,
		mon:      mon,
		logger:   logger,
		timeout:  timeout,
		cfg:      cfg,
		adapters: make(map[string]adapter.Adapter),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// RegisterAdapter makes a backend available for dispatch under its own
// Name().
func (d *Dispatcher) RegisterAdapter(a adapter.Adapter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.adapters[a.Name()] = a
}

func (d *Dispatcher) breakerFor(name string) *gobreaker.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.breakers[name]; ok {
		return b
	}

	maxFailures := d.cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	resetInterval := d.cfg.BreakerResetInterval
	if resetInterval <= 0 {
		resetInterval = 30 * time.Second
	}

	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: resetInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.logger.Warn("circuit breaker state change", "resource", name, "from", from.String(), "to", to.String())
		},
	})
	d.breakers[name] = b
	return b
}

// MapEntity tries registered adapters in registry-ranked order and returns
// the first successful hit. A fully exhausted candidate list is a normal
// not-found outcome: (nil, nil), never an error. Per spec.md §4.3, opts may
// carry resource_name (pin a single candidate, bypassing ranking),
// fallback (default true; false re-raises the first adapter error instead
// of trying the next candidate), min_success_rate (floor passed to the
// registry's ranking), and timeout (per-call override of the dispatcher's
// default, in seconds).
func (d *Dispatcher) MapEntity(ctx context.Context, sourceID, sourceType, targetType string, opts map[string]any) (*models.MappingResult, error) {
	fallback := adapter.OptBool(opts, "fallback", true)
	callTimeout := adapter.OptDuration(opts, "timeout", d.timeout)

	var order []string
	if resourceName, ok := adapter.OptString(opts, "resource_name"); ok && resourceName != "" {
		order = []string{resourceName}
	} else {
		d.mu.Lock()
		names := make([]string, 0, len(d.adapters))
		for n := range d.adapters {
			names = append(names, n)
		}
		d.mu.Unlock()

		minSuccessRate := adapter.OptFloat(opts, "min_success_rate", 0)
		ranked, err := d.reg.GetPreferredResourceOrder(ctx, sourceType, targetType, names, minSuccessRate)
		if err != nil {
			return nil, fmt.Errorf("dispatcher: rank candidates: %w", err)
		}
		order = ranked
		if len(order) == 0 {
			order = names
		}
	}

	for _, name := range order {
		d.mu.Lock()
		a := d.adapters[name]
		d.mu.Unlock()
		if a == nil {
			continue
		}

		callStart := time.Now()
		result, err := d.invoke(ctx, a, sourceID, sourceType, targetType, callTimeout, opts)
		ms := float64(time.Since(callStart).Microseconds()) / 1000
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				d.logOutcome(ctx, name, sourceType, targetType, ms, models.OpStatusTimeout, err.Error())
				continue // timeouts always fall through, regardless of fallback
			}
			d.logOutcome(ctx, name, sourceType, targetType, ms, models.OpStatusError, err.Error())
			if !fallback {
				return nil, err
			}
			continue
		}
		if result == nil {
			d.logOutcome(ctx, name, sourceType, targetType, ms, models.OpStatusNotFound, "")
			continue
		}

		mr := &models.MappingResult{
			SourceID: sourceID, TargetID: result.TargetID, TargetType: result.TargetType,
			Confidence: result.Confidence, MappingSource: result.MappingSource, Metadata: result.Metadata,
		}
		d.logOutcome(ctx, name, sourceType, targetType, ms, models.OpStatusSuccess, "")
		return mr, nil
	}
	return nil, nil
}

func (d *Dispatcher) invoke(ctx context.Context, a adapter.Adapter, sourceID, sourceType, targetType string, callTimeout time.Duration, opts map[string]any) (res *adapter.Result, err error) {
	if d.tracer != nil {
		var span trace.Span
		ctx, span = d.tracer.StartDispatchSpan(ctx, a.Name(), sourceType, targetType)
		defer span.End()
		defer func(started time.Time) { d.tracer.RecordOutcome(span, time.Since(started), err) }(time.Now())
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	start := time.Now()
	raw, err := d.breakerFor(a.Name()).Execute(func() (interface{}, error) {
		return a.MapEntity(callCtx, sourceID, sourceType, targetType, opts)
	})
	elapsed := time.Since(start)

	if d.mon != nil {
		evType := monitor.EventLookup
		meta := map[string]string{"resource": a.Name()}
		if err != nil {
			evType = monitor.EventError
			meta["error"] = err.Error()
		} else if hit, _ := raw.(*adapter.Result); hit != nil {
			evType = monitor.EventHit
		} else {
			evType = monitor.EventMiss
		}
		d.mon.Record(monitor.Event{
			Type: evType, Timestamp: start, EntityType: sourceType,
			DurationMS: float64(elapsed.Microseconds()) / 1000, Metadata: meta,
		})
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s timed out after %s: %w", a.Name(), callTimeout, err)
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s circuit open: %w", a.Name(), err)
		}
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return raw.(*adapter.Result), nil
}

func (d *Dispatcher) logOutcome(ctx context.Context, resource, sourceType, targetType string, responseMS float64, status, errMsg string) {
	op := models.OperationLog{
		ID: fmt.Sprintf("%s-%d", resource, time.Now().UnixNano()),
		ResourceName: resource, OperationType: "map_entity",
		SourceType: sourceType, TargetType: targetType,
		Status: status, ErrorMessage: errMsg, CreatedAt: time.Now().UTC(),
	}
	if responseMS > 0 {
		op.ResponseTimeMS = &responseMS
	}
	if err := d.reg.LogOperation(ctx, op); err != nil {
		d.logger.Warn("dispatcher: failed to log operation", "resource", resource, "error", err)
	}
}

// BatchItem is one request in a BatchMapEntities call.
type BatchItem struct {
	SourceID, SourceType, TargetType string
	Opts                             map[string]any
}

// BatchMapEntities resolves each item in order, sequentially, returning
// results aligned 1:1 with the input (a nil entry means no mapping found).
func (d *Dispatcher) BatchMapEntities(ctx context.Context, items []BatchItem) ([]*models.MappingResult, error) {
	out := make([]*models.MappingResult, len(items))
	for i, item := range items {
		result, err := d.MapEntity(ctx, item.SourceID, item.SourceType, item.TargetType, item.Opts)
		if err != nil {
			return out, fmt.Errorf("dispatcher: batch item %d: %w", i, err)
		}
		out[i] = result
	}
	return out, nil
}
