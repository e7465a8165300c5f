package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arpanauts/biomapper-sub002/internal/config"
	"github.com/arpanauts/biomapper-sub002/internal/logging"
	"github.com/arpanauts/biomapper-sub002/internal/storage/weaviate"
)

type fakeEmbedder struct{ vec []float32 }

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) { return f.vec, nil }

type fakeVector struct {
	candidates []weaviate.Candidate
	err        error
}

func (f fakeVector) VectorSearch(ctx context.Context, vector []float32, targetType string, topK int, minCertainty float64) ([]weaviate.Candidate, error) {
	return f.candidates, f.err
}

type fakeAnnotator struct {
	annotations []Annotation
	err         error
}

func (f fakeAnnotator) FetchAnnotations(ctx context.Context, candidates []weaviate.Candidate, maxConcurrent int) ([]Annotation, error) {
	return f.annotations, f.err
}

type fakeLLM struct {
	arb *Arbitration
	err error
}

func (f fakeLLM) Arbitrate(ctx context.Context, name string, candidates []Annotation) (*Arbitration, error) {
	return f.arb, f.err
}

func newTestOrchestrator(v VectorSearcher, a AnnotationFetcher, l LLMProvider) *Orchestrator {
	return New(config.RAGConfig{}, fakeEmbedder{vec: []float32{0.1, 0.2}}, v, a, l, nil, nil, logging.Nop())
}

func TestMapName_NoVectorHitsShortCircuits(t *testing.T) {
	o := newTestOrchestrator(fakeVector{candidates: nil}, fakeAnnotator{}, fakeLLM{})
	result, err := o.MapName(context.Background(), "glucose")
	require.NoError(t, err)
	assert.Equal(t, StatusNoVectorHits, result.Status)
}

func TestMapName_InsufficientAnnotationsShortCircuits(t *testing.T) {
	o := newTestOrchestrator(
		fakeVector{candidates: []weaviate.Candidate{{Identifier: "5793", Certainty: 0.95}}},
		fakeAnnotator{annotations: nil},
		fakeLLM{},
	)
	result, err := o.MapName(context.Background(), "glucose")
	require.NoError(t, err)
	assert.Equal(t, StatusInsufficientAnnots, result.Status)
}

func TestMapName_SuccessMapsHighConfidence(t *testing.T) {
	// S5 from spec.md: vector returns two CIDs, LLM picks 5793 with "high" confidence.
	cid := int64(5793)
	o := newTestOrchestrator(
		fakeVector{candidates: []weaviate.Candidate{
			{Identifier: "5793", Certainty: 0.95},
			{Identifier: "107526", Certainty: 0.88},
		}},
		fakeAnnotator{annotations: []Annotation{
			{CID: "5793", Title: "Glucose"},
			{CID: "107526", Title: "beta-D-Glucopyranose"},
		}},
		fakeLLM{arb: &Arbitration{SelectedCID: &cid, Confidence: "high", Rationale: "Direct title match"}},
	)
	result, err := o.MapName(context.Background(), "glucose")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	require.NotNil(t, result.SelectedCID)
	assert.Equal(t, int64(5793), *result.SelectedCID)
	assert.InDelta(t, 0.9, result.Confidence, 1e-9)
}

func TestMapName_NoMatchPreservesRationale(t *testing.T) {
	// S6 from spec.md: LLM finds neither candidate relevant.
	o := newTestOrchestrator(
		fakeVector{candidates: []weaviate.Candidate{
			{Identifier: "1", Certainty: 0.45},
			{Identifier: "2", Certainty: 0.42},
		}},
		fakeAnnotator{annotations: []Annotation{
			{CID: "1", Title: "Unrelated compound A"},
			{CID: "2", Title: "Unrelated compound B"},
		}},
		fakeLLM{arb: &Arbitration{SelectedCID: nil, Confidence: "none", Rationale: "No candidate matches"}},
	)
	result, err := o.MapName(context.Background(), "glucose")
	require.NoError(t, err)
	assert.Equal(t, StatusLLMNoMatch, result.Status)
	assert.Nil(t, result.SelectedCID)
	assert.Equal(t, "No candidate matches", result.Rationale)
}

func TestMapName_PartialSuccessWhenSomeAnnotationsDropped(t *testing.T) {
	cid := int64(42)
	o := newTestOrchestrator(
		fakeVector{candidates: []weaviate.Candidate{
			{Identifier: "42", Certainty: 0.9},
			{Identifier: "43", Certainty: 0.7},
		}},
		fakeAnnotator{annotations: []Annotation{{CID: "42", Title: "Only one resolved"}}},
		fakeLLM{arb: &Arbitration{SelectedCID: &cid, Confidence: "medium"}},
	)
	result, err := o.MapName(context.Background(), "glucose")
	require.NoError(t, err)
	assert.Equal(t, StatusPartialSuccess, result.Status)
}

func TestBatchMapNames_ComputesSuccessRate(t *testing.T) {
	cid := int64(1)
	o := newTestOrchestrator(
		fakeVector{candidates: []weaviate.Candidate{{Identifier: "1", Certainty: 0.9}}},
		fakeAnnotator{annotations: []Annotation{{CID: "1", Title: "x"}}},
		fakeLLM{arb: &Arbitration{SelectedCID: &cid, Confidence: "high"}},
	)
	report := o.BatchMapNames(context.Background(), []string{"a", "b"})
	assert.Equal(t, 1.0, report.SuccessRate)
	assert.Len(t, report.Items, 2)
}
