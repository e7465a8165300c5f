// Package rag implements the three-stage retrieval-augmented mapping
// pipeline of spec.md §4.6: embed a name, find nearest-neighbor candidates in
// a vector index, fetch structured annotations for those candidates, then
// ask an LLM to arbitrate among them.
package rag

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/arpanauts/biomapper-sub002/internal/config"
	"github.com/arpanauts/biomapper-sub002/internal/logging"
	"github.com/arpanauts/biomapper-sub002/internal/monitor"
	"github.com/arpanauts/biomapper-sub002/internal/tracing"
	"github.com/arpanauts/biomapper-sub002/pkg/cache"
)

// Status is the outcome taxonomy of spec.md §4.6.
type Status string

const (
	StatusSuccess               Status = "SUCCESS"
	StatusPartialSuccess        Status = "PARTIAL_SUCCESS"
	StatusNoVectorHits          Status = "NO_VECTOR_HITS"
	StatusInsufficientAnnots    Status = "INSUFFICIENT_ANNOTATIONS"
	StatusLLMNoMatch            Status = "LLM_NO_MATCH"
	StatusComponentErrorVector  Status = "COMPONENT_ERROR_VECTOR"
	StatusComponentErrorAnnot  Status = "COMPONENT_ERROR_ANNOTATION"
	StatusComponentErrorLLM     Status = "COMPONENT_ERROR_LLM"
	StatusConfigError           Status = "CONFIG_ERROR"
	StatusUnknownError          Status = "UNKNOWN_ERROR"
)

// confidenceByLabel maps the LLM's categorical confidence to a number, per
// spec.md §4.6.
var confidenceByLabel = map[string]float64{
	"high":   0.9,
	"medium": 0.6,
	"low":    0.3,
	"none":   0.0,
}

// Result is the outcome of one MapName call.
type Result struct {
	Query             string            `json:"query"`
	Status            Status            `json:"status"`
	SelectedCID       *int64            `json:"selected_cid,omitempty"`
	Confidence        float64           `json:"confidence"`
	Rationale         string            `json:"rationale,omitempty"`
	Error             string            `json:"error,omitempty"`
	ProcessingDetails map[string]string `json:"processing_details"`
	Cached            bool              `json:"cached"`
}

// Embedder turns free text into the vector space the configured index was
// built on.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Orchestrator runs the three-stage pipeline.
type Orchestrator struct {
	cfg       config.RAGConfig
	embedder  Embedder
	vector    VectorSearcher
	annot     AnnotationFetcher
	llm       LLMProvider
	respCache cache.ValkeyCache
	mon       *monitor.Monitor
	logger    logging.Logger
	tracer    *tracing.Tracer
}

// WithTracer attaches a Tracer so each pipeline stage emits a span. Passing
// nil disables tracing.
func (o *Orchestrator) WithTracer(t *tracing.Tracer) *Orchestrator {
	o.tracer = t
	return o
}

// New builds an Orchestrator. respCache may be nil to disable response
// caching.
func New(cfg config.RAGConfig, embedder Embedder, vector VectorSearcher, annot AnnotationFetcher, llm LLMProvider, respCache cache.ValkeyCache, mon *monitor.Monitor, logger logging.Logger) *Orchestrator {
	if cfg.VectorTopK <= 0 {
		cfg.VectorTopK = 10
	}
	if cfg.VectorScoreThreshold <= 0 {
		cfg.VectorScoreThreshold = 0.5
	}
	if cfg.AnnotationMaxConcurrentRequests <= 0 {
		cfg.AnnotationMaxConcurrentRequests = 5
	}
	if cfg.LLMMaxTokens <= 0 {
		cfg.LLMMaxTokens = 500
	}
	if cfg.LLMTemperature == 0 {
		cfg.LLMTemperature = 0.1
	}
	if !cfg.ResponseCacheEnabled {
		respCache = nil
	}
	return &Orchestrator{cfg: cfg, embedder: embedder, vector: vector, annot: annot, llm: llm, respCache: respCache, mon: mon, logger: logger}
}

// MapName resolves a biochemical name to a PubChem CID through the
// vector-search / annotation-fetch / LLM-arbitration pipeline.
func (o *Orchestrator) MapName(ctx context.Context, name string) (*Result, error) {
	start := time.Now()
	details := make(map[string]string)
	defer func() {
		if o.mon != nil {
			o.mon.Record(monitor.Event{
				Type: monitor.EventLookup, Timestamp: start, EntityType: "rag_name",
				DurationMS: float64(time.Since(start).Microseconds()) / 1000,
				Metadata:   map[string]string{"stage": "pipeline"},
			})
		}
	}()

	if cacheKey := o.cacheKey(name); o.respCache != nil {
		if cached, ok := o.lookupCache(ctx, cacheKey); ok {
			cached.Cached = true
			return cached, nil
		}
	}

	result, err := o.run(ctx, name, details)
	if err != nil {
		return result, err
	}

	if o.respCache != nil && (result.Status == StatusSuccess || result.Status == StatusPartialSuccess) {
		o.storeCache(ctx, o.cacheKey(name), result)
	}
	return result, nil
}

func (o *Orchestrator) stageSpan(ctx context.Context, stage, name string) (context.Context, trace.Span) {
	if o.tracer == nil {
		return ctx, nil
	}
	return o.tracer.StartRAGStageSpan(ctx, stage, name)
}

func (o *Orchestrator) endStage(span trace.Span, start time.Time, err error) {
	if span == nil {
		return
	}
	o.tracer.RecordOutcome(span, time.Since(start), err)
	span.End()
}

func (o *Orchestrator) run(ctx context.Context, name string, details map[string]string) (*Result, error) {
	stageStart := time.Now()
	spanCtx, span := o.stageSpan(ctx, "embed", name)
	vec, err := o.embedder.Embed(spanCtx, name)
	details["embed_ms"] = msSince(stageStart)
	o.endStage(span, stageStart, err)
	if err != nil {
		return o.failure(name, StatusComponentErrorVector, fmt.Sprintf("embed: %v", err), details), nil
	}

	stageStart = time.Now()
	spanCtx, span = o.stageSpan(ctx, "vector_search", name)
	candidates, err := o.vector.VectorSearch(spanCtx, vec, "", o.cfg.VectorTopK, o.cfg.VectorScoreThreshold)
	details["vector_search_ms"] = msSince(stageStart)
	o.endStage(span, stageStart, err)
	if err != nil {
		return o.failure(name, StatusComponentErrorVector, fmt.Sprintf("vector search: %v", err), details), nil
	}
	if len(candidates) == 0 {
		return o.failure(name, StatusNoVectorHits, "", details), nil
	}

	stageStart = time.Now()
	spanCtx, span = o.stageSpan(ctx, "annotation_fetch", name)
	annotated, err := o.annot.FetchAnnotations(spanCtx, candidates, o.cfg.AnnotationMaxConcurrentRequests)
	details["annotation_fetch_ms"] = msSince(stageStart)
	o.endStage(span, stageStart, err)
	if err != nil {
		return o.failure(name, StatusComponentErrorAnnot, fmt.Sprintf("annotation fetch: %v", err), details), nil
	}
	if len(annotated) == 0 {
		return o.failure(name, StatusInsufficientAnnots, "", details), nil
	}

	stageStart = time.Now()
	spanCtx, span = o.stageSpan(ctx, "llm_arbitration", name)
	arbitration, err := o.llm.Arbitrate(spanCtx, name, annotated)
	details["llm_arbitration_ms"] = msSince(stageStart)
	o.endStage(span, stageStart, err)
	if err != nil {
		return o.failure(name, StatusComponentErrorLLM, fmt.Sprintf("llm arbitration: %v", err), details), nil
	}

	confidence := categoricalOrNumeric(arbitration.Confidence)
	status := StatusSuccess
	if arbitration.SelectedCID == nil {
		status = StatusLLMNoMatch
	} else if len(annotated) < len(candidates) {
		status = StatusPartialSuccess
	}

	return &Result{
		Query: name, Status: status, SelectedCID: arbitration.SelectedCID,
		Confidence: confidence, Rationale: arbitration.Rationale, ProcessingDetails: details,
	}, nil
}

func (o *Orchestrator) failure(name string, status Status, errMsg string, details map[string]string) *Result {
	return &Result{Query: name, Status: status, Error: errMsg, ProcessingDetails: details}
}

// BatchItem is one name in a BatchMapNames call.
type BatchItem struct {
	Name   string
	Result *Result
	Err    error
}

// BatchReport summarizes a sequential batch run, per spec.md §4.6.
type BatchReport struct {
	Items         []BatchItem
	SuccessRate   float64
	WallClockTime time.Duration
}

// BatchMapNames runs MapName sequentially over names and reports aggregate
// success rate and wall-clock time.
func (o *Orchestrator) BatchMapNames(ctx context.Context, names []string) *BatchReport {
	start := time.Now()
	items := make([]BatchItem, len(names))
	successes := 0
	for i, name := range names {
		result, err := o.MapName(ctx, name)
		items[i] = BatchItem{Name: name, Result: result, Err: err}
		if err == nil && result != nil && (result.Status == StatusSuccess || result.Status == StatusPartialSuccess) {
			successes++
		}
	}
	rate := 0.0
	if len(names) > 0 {
		rate = float64(successes) / float64(len(names))
	}
	return &BatchReport{Items: items, SuccessRate: rate, WallClockTime: time.Since(start)}
}

func msSince(t time.Time) string {
	return fmt.Sprintf("%.2f", float64(time.Since(t).Microseconds())/1000)
}

func categoricalOrNumeric(raw string) float64 {
	if v, ok := confidenceByLabel[raw]; ok {
		return v
	}
	var f float64
	if _, err := fmt.Sscanf(raw, "%g", &f); err == nil {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		return f
	}
	return 0
}

func (o *Orchestrator) cacheKey(name string) string {
	sum := sha256.Sum256([]byte(name))
	return fmt.Sprintf("rag:arbitration:%x", sum[:16])
}

func (o *Orchestrator) lookupCache(ctx context.Context, key string) (*Result, bool) {
	data, err := o.respCache.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, false
	}
	return &r, true
}

func (o *Orchestrator) storeCache(ctx context.Context, key string, r *Result) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	ttl := o.cfg.ResponseCacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if err := o.respCache.Set(ctx, key, data, ttl); err != nil {
		o.logger.Warn("rag: failed to cache arbitration response", "error", err)
	}
}
