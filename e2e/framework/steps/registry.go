package steps

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/thesipincafe/site-e2e/e2e/framework/spec"
)

// Handler executes a step and returns metadata.
type Handler func(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error)

// Registry stores handlers by action name.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler for a step action.
func (r *Registry) Register(action string, handler Handler) {
	r.handlers[normalizeAction(action)] = handler
}

// Has reports whether a handler exists for the action.
func (r *Registry) Has(action string) bool {
	if r == nil {
		return false
	}
	_, ok := r.handlers[normalizeAction(action)]
	return ok
}

// Actions lists registered action names in sorted order.
func (r *Registry) Actions() []string {
	out := make([]string, 0, len(r.handlers))
	for action := range r.handlers {
		out = append(out, action)
	}
	sort.Strings(out)
	return out
}

// Validate reports every step whose action has no handler.
func (r *Registry) Validate(scenario *spec.Scenario) error {
	var unknown []string
	for _, step := range append(append([]spec.StepSpec(nil), scenario.Steps...), scenario.Assertions...) {
		if !r.Has(step.Action) {
			unknown = append(unknown, fmt.Sprintf("%s (%s)", step.Name, step.Action))
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("scenario %s: unknown actions: %s", scenario.Metadata.Name, strings.Join(unknown, ", "))
	}
	return nil
}

// Execute runs a handler for the step action.
func (r *Registry) Execute(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	handler, ok := r.handlers[normalizeAction(step.Action)]
	if !ok {
		return nil, fmt.Errorf("no handler registered for action %q", step.Action)
	}
	return handler(ctx, exec, step)
}

func normalizeAction(action string) string {
	return strings.ToLower(strings.TrimSpace(action))
}
