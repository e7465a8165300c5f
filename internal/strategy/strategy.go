// Package strategy composes registered actions (the shipped one wraps the
// dispatcher) into named, multi-step pipelines (spec.md §6's Execution Context + Strategy
// Runner). A strategy is a sequence of named, parameterized steps; each
// step is an Action looked up in a name→Action registry populated at
// startup, and steps pass intermediate results forward through a shared,
// mutable ExecutionContext. Grounded on the registry-plus-shared-context
// idiom of the orchestration packages in the wider corpus (e.g.
// itsneelabh-gomind's orchestration.SmartExecutor), adapted down to
// biomapper's much narrower step contract.
package strategy

import (
	"context"
	"fmt"
	"sync"

	"github.com/arpanauts/biomapper-sub002/internal/bmerrors"
	"github.com/arpanauts/biomapper-sub002/internal/logging"
)

// StepResult is what an Action returns: the identifiers and ontology type
// the pipeline should carry into the next step, plus free-form metadata.
type StepResult struct {
	Identifiers  []string
	OntologyType string
	Metadata     map[string]any
}

// Action is one named, reusable pipeline step.
type Action interface {
	Execute(ctx context.Context, currentIdentifiers []string, currentOntologyType string, params map[string]any, sourceEndpoint, targetEndpoint string, execCtx *ExecutionContext) (StepResult, error)
}

// ActionFunc adapts a plain function to the Action interface.
type ActionFunc func(ctx context.Context, currentIdentifiers []string, currentOntologyType string, params map[string]any, sourceEndpoint, targetEndpoint string, execCtx *ExecutionContext) (StepResult, error)

func (f ActionFunc) Execute(ctx context.Context, currentIdentifiers []string, currentOntologyType string, params map[string]any, sourceEndpoint, targetEndpoint string, execCtx *ExecutionContext) (StepResult, error) {
	return f(ctx, currentIdentifiers, currentOntologyType, params, sourceEndpoint, targetEndpoint, execCtx)
}

// ExecutionContext is the mutable, shared map of intermediate datasets a
// strategy's steps pass results through, keyed by an arbitrary string the
// strategy author chooses (e.g. "unmapped_after_step_2").
type ExecutionContext struct {
	mu       sync.RWMutex
	datasets map[string]any
}

// NewExecutionContext returns an empty context ready for one strategy run.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{datasets: make(map[string]any)}
}

// Set stores a dataset under key, overwriting any existing value.
func (c *ExecutionContext) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.datasets[key] = value
}

// Get retrieves a dataset by key.
func (c *ExecutionContext) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.datasets[key]
	return v, ok
}

// Step names one Action invocation and its parameters within a Strategy.
type Step struct {
	Action string
	Params map[string]any
}

// Strategy is a named sequence of steps.
type Strategy struct {
	Name  string
	Steps []Step
}

// Registry maps action names to their implementations, populated at
// startup before any strategy runs.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

// NewRegistry returns an empty action registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

// Register makes an Action available under name.
func (r *Registry) Register(name string, a Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = a
}

func (r *Registry) lookup(name string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[name]
	return a, ok
}

// Runner executes named strategies against the action registry.
type Runner struct {
	registry   *Registry
	strategies map[string]Strategy
	logger     logging.Logger
}

// NewRunner builds a Runner over registry. Strategies are added with
// AddStrategy before Run is called.
func NewRunner(registry *Registry, logger logging.Logger) *Runner {
	return &Runner{registry: registry, strategies: make(map[string]Strategy), logger: logger}
}

// AddStrategy registers a named strategy definition.
func (r *Runner) AddStrategy(s Strategy) {
	r.strategies[s.Name] = s
}

// Run executes strategyName's steps in order, threading identifiers and
// ontology type from each step's StepResult into the next, and returns the
// final step's result. A missing strategy or action name is a
// ValidationError per spec.md §7, surfaced as an error rather than retried.
func (r *Runner) Run(ctx context.Context, strategyName string, sourceEndpoint, targetEndpoint string, initialIdentifiers []string, initialOntologyType string) (StepResult, error) {
	strat, ok := r.strategies[strategyName]
	if !ok {
		return StepResult{}, fmt.Errorf("%w: strategy: unknown strategy %q", bmerrors.ErrValidation, strategyName)
	}

	execCtx := NewExecutionContext()
	result := StepResult{Identifiers: initialIdentifiers, OntologyType: initialOntologyType}

	for i, step := range strat.Steps {
		action, ok := r.registry.lookup(step.Action)
		if !ok {
			return result, fmt.Errorf("%w: strategy: step %d: unknown action %q", bmerrors.ErrValidation, i, step.Action)
		}

		next, err := action.Execute(ctx, result.Identifiers, result.OntologyType, step.Params, sourceEndpoint, targetEndpoint, execCtx)
		if err != nil {
			return result, fmt.Errorf("strategy %q: step %d (%s): %w", strategyName, i, step.Action, err)
		}
		r.logger.Debug("strategy step complete", "strategy", strategyName, "step", i, "action", step.Action, "identifiers", len(next.Identifiers))
		result = next
	}

	return result, nil
}
