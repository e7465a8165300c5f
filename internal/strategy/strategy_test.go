package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arpanauts/biomapper-sub002/internal/logging"
)

func upperCaseAction(ctx context.Context, ids []string, ontologyType string, params map[string]any, src, dst string, execCtx *ExecutionContext) (StepResult, error) {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id + "!"
	}
	execCtx.Set("seen", len(ids))
	return StepResult{Identifiers: out, OntologyType: ontologyType}, nil
}

func TestRunner_RunsStepsInOrderThreadingResults(t *testing.T) {
	reg := NewRegistry()
	reg.Register("shout", ActionFunc(upperCaseAction))

	runner := NewRunner(reg, logging.Nop())
	runner.AddStrategy(Strategy{
		Name: "double_shout",
		Steps: []Step{
			{Action: "shout"},
			{Action: "shout"},
		},
	})

	result, err := runner.Run(context.Background(), "double_shout", "src", "dst", []string{"glucose"}, "name")
	require.NoError(t, err)
	assert.Equal(t, []string{"glucose!!"}, result.Identifiers)
}

func TestRunner_UnknownStrategyErrors(t *testing.T) {
	runner := NewRunner(NewRegistry(), logging.Nop())
	_, err := runner.Run(context.Background(), "missing", "src", "dst", nil, "name")
	assert.Error(t, err)
}

func TestRunner_UnknownActionErrors(t *testing.T) {
	reg := NewRegistry()
	runner := NewRunner(reg, logging.Nop())
	runner.AddStrategy(Strategy{Name: "s", Steps: []Step{{Action: "does_not_exist"}}})

	_, err := runner.Run(context.Background(), "s", "src", "dst", []string{"x"}, "name")
	assert.Error(t, err)
}

func TestExecutionContext_SetGet(t *testing.T) {
	c := NewExecutionContext()
	c.Set("k", 42)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}
