package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arpanauts/biomapper-sub002/internal/adapter"
	"github.com/arpanauts/biomapper-sub002/internal/config"
	"github.com/arpanauts/biomapper-sub002/internal/logging"
	"github.com/arpanauts/biomapper-sub002/internal/models"
)

type fakeRanker struct {
	order          []string
	logs           []models.OperationLog
	lastMinSuccess float64
	rankCalls      int
}

func (f *fakeRanker) GetPreferredResourceOrder(ctx context.Context, sourceType, targetType string, candidates []string, minSuccessRate float64) ([]string, error) {
	f.rankCalls++
	f.lastMinSuccess = minSuccessRate
	if f.order != nil {
		return f.order, nil
	}
	return candidates, nil
}

func (f *fakeRanker) LogOperation(ctx context.Context, op models.OperationLog) error {
	f.logs = append(f.logs, op)
	return nil
}

type fakeAdapter struct {
	name   string
	result *adapter.Result
	err    error
}

func (a *fakeAdapter) Name() string { return a.name }
func (a *fakeAdapter) MapEntity(ctx context.Context, sourceID, sourceType, targetType string, opts map[string]any) (*adapter.Result, error) {
	return a.result, a.err
}

func TestDispatcher_MapEntity_FirstCandidateWins(t *testing.T) {
	ranker := &fakeRanker{order: []string{"cache", "graph"}}
	d := New(ranker, config.DispatcherConfig{}, nil, logging.Nop())
	d.RegisterAdapter(&fakeAdapter{name: "cache", result: &adapter.Result{TargetID: "CHEBI:1", Confidence: 0.9, MappingSource: "cache:x"}})
	d.RegisterAdapter(&fakeAdapter{name: "graph"})

	result, err := d.MapEntity(context.Background(), "HMDB1", "hmdb", "chebi", nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "CHEBI:1", result.TargetID)
	assert.Len(t, ranker.logs, 1)
}

func TestDispatcher_MapEntity_FallsThroughOnMissAndError(t *testing.T) {
	ranker := &fakeRanker{order: []string{"cache", "graph", "rag"}}
	d := New(ranker, config.DispatcherConfig{}, nil, logging.Nop())
	d.RegisterAdapter(&fakeAdapter{name: "cache"}) // nil, nil -> miss
	d.RegisterAdapter(&fakeAdapter{name: "graph", err: errors.New("backend down")})
	d.RegisterAdapter(&fakeAdapter{name: "rag", result: &adapter.Result{TargetID: "CHEBI:2", Confidence: 0.6, MappingSource: "rag:llm"}})

	result, err := d.MapEntity(context.Background(), "HMDB1", "hmdb", "chebi", nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "CHEBI:2", result.TargetID)
	assert.Len(t, ranker.logs, 3)
	assert.Equal(t, models.OpStatusNotFound, ranker.logs[0].Status)
	assert.Equal(t, models.OpStatusError, ranker.logs[1].Status)
	assert.Equal(t, models.OpStatusSuccess, ranker.logs[2].Status)
}

func TestDispatcher_MapEntity_AllMissReturnsNilNoError(t *testing.T) {
	ranker := &fakeRanker{order: []string{"cache"}}
	d := New(ranker, config.DispatcherConfig{}, nil, logging.Nop())
	d.RegisterAdapter(&fakeAdapter{name: "cache"})

	result, err := d.MapEntity(context.Background(), "HMDB1", "hmdb", "chebi", nil)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestDispatcher_MapEntity_ResourceNamePinsCandidateAndSkipsRanking(t *testing.T) {
	ranker := &fakeRanker{order: []string{"graph", "cache"}}
	d := New(ranker, config.DispatcherConfig{}, nil, logging.Nop())
	d.RegisterAdapter(&fakeAdapter{name: "cache", result: &adapter.Result{TargetID: "CHEBI:1", MappingSource: "cache:x"}})
	d.RegisterAdapter(&fakeAdapter{name: "graph"})

	result, err := d.MapEntity(context.Background(), "HMDB1", "hmdb", "chebi", map[string]any{"resource_name": "cache"})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "CHEBI:1", result.TargetID)
	assert.Equal(t, 0, ranker.rankCalls, "pinning resource_name must bypass registry ranking")
}

func TestDispatcher_MapEntity_FallbackFalseReraisesFirstError(t *testing.T) {
	ranker := &fakeRanker{order: []string{"cache", "graph"}}
	d := New(ranker, config.DispatcherConfig{}, nil, logging.Nop())
	d.RegisterAdapter(&fakeAdapter{name: "cache", err: errors.New("backend down")})
	d.RegisterAdapter(&fakeAdapter{name: "graph", result: &adapter.Result{TargetID: "CHEBI:2", MappingSource: "graph:x"}})

	result, err := d.MapEntity(context.Background(), "HMDB1", "hmdb", "chebi", map[string]any{"fallback": false})
	require.Error(t, err)
	assert.Nil(t, result)
}

func TestDispatcher_MapEntity_PassesMinSuccessRateToRanker(t *testing.T) {
	ranker := &fakeRanker{order: []string{"cache"}}
	d := New(ranker, config.DispatcherConfig{}, nil, logging.Nop())
	d.RegisterAdapter(&fakeAdapter{name: "cache", result: &adapter.Result{TargetID: "X", MappingSource: "cache:x"}})

	_, err := d.MapEntity(context.Background(), "HMDB1", "hmdb", "chebi", map[string]any{"min_success_rate": 0.8})
	require.NoError(t, err)
	assert.Equal(t, 0.8, ranker.lastMinSuccess)
}

func TestDispatcher_BatchMapEntities_PreservesOrder(t *testing.T) {
	ranker := &fakeRanker{order: []string{"cache"}}
	d := New(ranker, config.DispatcherConfig{}, nil, logging.Nop())
	d.RegisterAdapter(&fakeAdapter{name: "cache", result: &adapter.Result{TargetID: "X", MappingSource: "cache:x"}})

	results, err := d.BatchMapEntities(context.Background(), []BatchItem{
		{SourceID: "A", SourceType: "hmdb", TargetType: "chebi"},
		{SourceID: "B", SourceType: "hmdb", TargetType: "chebi"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "X", results[0].TargetID)
	assert.Equal(t, "X", results[1].TargetID)
}
