package strategy

import (
	"context"
	"fmt"

	"github.com/arpanauts/biomapper-sub002/internal/dispatcher"
)

// DispatchAction resolves each current identifier through the dispatcher's
// ranked adapters and carries forward only the ones that mapped. The
// target ontology type is taken from params["target_type"]; identifiers
// that fail to resolve are recorded in execCtx under "unmapped:<step>" for
// downstream inspection instead of being dropped silently.
type DispatchAction struct {
	Dispatcher *dispatcher.Dispatcher
	StepName   string
}

func NewDispatchAction(d *dispatcher.Dispatcher, stepName string) *DispatchAction {
	return &DispatchAction{Dispatcher: d, StepName: stepName}
}

func (a *DispatchAction) Execute(ctx context.Context, currentIdentifiers []string, currentOntologyType string, params map[string]any, sourceEndpoint, targetEndpoint string, execCtx *ExecutionContext) (StepResult, error) {
	targetType, _ := params["target_type"].(string)
	if targetType == "" {
		return StepResult{}, fmt.Errorf("dispatch action: params[\"target_type\"] is required")
	}

	mapped := make([]string, 0, len(currentIdentifiers))
	var unmapped []string

	for _, id := range currentIdentifiers {
		result, err := a.Dispatcher.MapEntity(ctx, id, currentOntologyType, targetType, nil)
		if err != nil {
			return StepResult{}, fmt.Errorf("dispatch action: map %q: %w", id, err)
		}
		if result == nil {
			unmapped = append(unmapped, id)
			continue
		}
		mapped = append(mapped, result.TargetID)
	}

	if len(unmapped) > 0 {
		execCtx.Set("unmapped:"+a.StepName, unmapped)
	}

	return StepResult{
		Identifiers:  mapped,
		OntologyType: targetType,
		Metadata:     map[string]any{"resolved": len(mapped), "unmapped": len(unmapped)},
	}, nil
}
