// Package transitivity implements the offline job of spec.md §4.5: it
// composes existing non-derived mappings into new is_derived=true rows,
// decaying confidence per composed hop.
package transitivity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arpanauts/biomapper-sub002/internal/cache"
	"github.com/arpanauts/biomapper-sub002/internal/logging"
	"github.com/arpanauts/biomapper-sub002/internal/models"
)

// Store is the slice of *cache.Manager the builder reads its snapshot from
// and records job-log rows through.
type Store interface {
	SnapshotMappings(ctx context.Context, minConfidence float64) ([]models.EntityMapping, error)
	RecordJobStart(ctx context.Context, jobID string, startedAt time.Time) error
	RecordJobFinish(ctx context.Context, jobID, status string, processed, created int64, duration time.Duration) error
}

// Params configures one builder run, per spec.md §4.5.
type Params struct {
	MinConfidence   float64
	MaxChainLength  int // >= 2; 2 means length-2 only
	ConfidenceDecay float64
}

// Builder runs the transitivity job against a cache Manager.
type Builder struct {
	manager *cache.Manager
	store   Store
	logger  logging.Logger
}

// New builds a Builder. store supplies the read snapshot and job-log
// bookkeeping; manager is used for the shadowing lookup and add_mapping
// (skipped when direct evidence at or above min_confidence exists).
func New(manager *cache.Manager, store Store, logger logging.Logger) *Builder {
	return &Builder{manager: manager, store: store, logger: logger}
}

type node struct {
	id, typ string
}

func key(id, typ string) node { return node{id: id, typ: typ} }

// chainConfidence composes per-hop confidences with decay applied once per
// hop: ∏ confidence_i × decay^(len-1), per spec.md §4.5 step 4.
func chainConfidence(confidences []float64, decay float64) float64 {
	confidence := 1.0
	for _, c := range confidences {
		confidence *= c
	}
	for i := 1; i < len(confidences); i++ {
		confidence *= decay
	}
	return confidence
}

// Run executes one full pass: a length-2 composition (always) followed by
// an optional length-k DFS extension when params.MaxChainLength > 2.
func (b *Builder) Run(ctx context.Context, params Params) (*models.TransitiveJobLog, error) {
	if params.MaxChainLength < 2 {
		params.MaxChainLength = 2
	}
	if params.ConfidenceDecay <= 0 || params.ConfidenceDecay > 1 {
		params.ConfidenceDecay = 0.9
	}

	jobID := uuid.NewString()
	start := time.Now().UTC()
	if err := b.store.RecordJobStart(ctx, jobID, start); err != nil {
		return nil, fmt.Errorf("transitivity: record job start: %w", err)
	}

	rows, err := b.store.SnapshotMappings(ctx, params.MinConfidence)
	if err != nil {
		_ = b.store.RecordJobFinish(ctx, jobID, "error: "+err.Error(), 0, 0, time.Since(start))
		return nil, fmt.Errorf("transitivity: snapshot: %w", err)
	}

	direct := make([]models.EntityMapping, 0, len(rows))
	for _, r := range rows {
		if !r.IsDerived {
			direct = append(direct, r)
		}
	}
	rows = direct

	bySource := make(map[node][]models.EntityMapping)
	for _, r := range rows {
		bySource[key(r.SourceID, r.SourceType)] = append(bySource[key(r.SourceID, r.SourceType)], r)
	}

	created := int64(0)
	processed := int64(len(rows))

	n, err := b.composeLength2(ctx, rows, bySource, params)
	created += int64(n)
	status := "completed"
	if err != nil {
		status = "error: " + err.Error()
	} else if params.MaxChainLength > 2 {
		extra, extErr := b.composeLengthK(ctx, rows, bySource, params)
		created += int64(extra)
		if extErr != nil {
			status = "error: " + extErr.Error()
		} else {
			status = "completed_extended"
		}
	}

	duration := time.Since(start)
	if err := b.store.RecordJobFinish(ctx, jobID, status, processed, created, duration); err != nil {
		b.logger.Warn("transitivity: failed to record job finish", "job_id", jobID, "error", err)
	}

	return &models.TransitiveJobLog{
		ID: jobID, StartedAt: start, Status: status,
		MappingsProcessed: processed, NewMappingsCreated: created,
		DurationSeconds: duration.Seconds(),
	}, nil
}

// composeLength2 implements step 3 of spec.md §4.5's algorithm.
func (b *Builder) composeLength2(ctx context.Context, rows []models.EntityMapping, bySource map[node][]models.EntityMapping, params Params) (int, error) {
	created := 0
	for _, m1 := range rows {
		targetKey := key(m1.TargetID, m1.TargetType)
		for _, m2 := range bySource[targetKey] {
			if m1.SourceID == m2.TargetID && m1.SourceType == m2.TargetType {
				continue // would self-reference
			}
			confidence := chainConfidence([]float64{m1.Confidence, m2.Confidence}, params.ConfidenceDecay)
			if confidence < params.MinConfidence {
				continue
			}
			ok, err := b.insertIfNotShadowed(ctx, m1.SourceID, m1.SourceType, m2.TargetID, m2.TargetType,
				confidence, params.MinConfidence, []string{m1.ID, m2.ID}, 2)
			if err != nil {
				return created, err
			}
			if ok {
				created++
			}
		}
	}
	return created, nil
}

// composeLengthK implements step 4: depth-first enumeration of simple
// paths of exactly k steps, for k in [3, MaxChainLength].
func (b *Builder) composeLengthK(ctx context.Context, rows []models.EntityMapping, bySource map[node][]models.EntityMapping, params Params) (int, error) {
	created := 0
	for _, start := range rows {
		visited := map[node]bool{
			key(start.SourceID, start.SourceType): true,
			key(start.TargetID, start.TargetType): true,
		}
		path := []models.EntityMapping{start}
		if err := b.dfs(ctx, start, bySource, visited, path, params, &created); err != nil {
			return created, err
		}
	}
	return created, nil
}

func (b *Builder) dfs(ctx context.Context, last models.EntityMapping, bySource map[node][]models.EntityMapping, visited map[node]bool, path []models.EntityMapping, params Params, created *int) error {
	if len(path) > params.MaxChainLength {
		return nil
	}
	targetKey := key(last.TargetID, last.TargetType)
	if len(path) >= 3 {
		if err := b.tryInsertChain(ctx, path, params, created); err != nil {
			return err
		}
	}
	if len(path) == params.MaxChainLength {
		return nil
	}
	for _, next := range bySource[targetKey] {
		nk := key(next.TargetID, next.TargetType)
		if visited[nk] {
			continue
		}
		visited[nk] = true
		if err := b.dfs(ctx, next, bySource, visited, append(path, next), params, created); err != nil {
			delete(visited, nk)
			return err
		}
		delete(visited, nk)
	}
	return nil
}

func (b *Builder) tryInsertChain(ctx context.Context, path []models.EntityMapping, params Params, created *int) error {
	first := path[0]
	last := path[len(path)-1]
	if first.SourceID == last.TargetID && first.SourceType == last.TargetType {
		return nil // self-reference
	}

	confidences := make([]float64, len(path))
	ids := make([]string, len(path))
	for i, m := range path {
		confidences[i] = m.Confidence
		ids[i] = m.ID
	}
	confidence := chainConfidence(confidences, params.ConfidenceDecay)
	if confidence < params.MinConfidence {
		return nil
	}

	ok, err := b.insertIfNotShadowed(ctx, first.SourceID, first.SourceType, last.TargetID, last.TargetType,
		confidence, params.MinConfidence, ids, len(path))
	if err != nil {
		return err
	}
	if ok {
		*created++
	}
	return nil
}

// insertIfNotShadowed inserts a derived mapping unless a direct (non-derived)
// row already exists for the endpoints at or above minConfidence. This is
// the "never overwrite human/API evidence with a derivation" rule: the
// comparison is against the run's min_confidence floor, not against the
// candidate derivation's own confidence, so a low-but-still-passing direct
// row can never be clobbered by a more confident derivation.
func (b *Builder) insertIfNotShadowed(ctx context.Context, sourceID, sourceType, targetID, targetType string, confidence, minConfidence float64, chain []string, chainLength int) (bool, error) {
	direct, err := b.manager.Lookup(ctx, sourceID, sourceType, cache.LookupOptions{
		TargetType: targetType, IncludeDerived: false,
	})
	if err != nil {
		return false, err
	}
	for _, d := range direct {
		if d.Confidence >= minConfidence {
			return false, nil
		}
	}

	_, err = b.manager.AddMapping(ctx, cache.AddMappingInput{
		SourceID: sourceID, SourceType: sourceType,
		TargetID: targetID, TargetType: targetType,
		Confidence: confidence, MappingSource: "derived", IsDerived: true,
		DerivationPath: chain,
		Metadata: map[string]string{
			"method":       "transitive",
			"chain_length": fmt.Sprintf("%d", chainLength),
			"date":         time.Now().UTC().Format(time.RFC3339),
		},
		Bidirectional: false,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
