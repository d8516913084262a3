package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"courserag/internal/domain"
)

// Registry dispatches tool invocations by name. A registry is meant to
// serve a single query; its tools hold that query's sources.
type Registry struct {
	tools  []Tool
	byName map[string]Tool
	last   SourceTracker
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Tool)}
}

// NewCourseRegistry returns a registry with the search and outline tools over index.
func NewCourseRegistry(index CourseIndex) *Registry {
	r := NewRegistry()
	// Names are distinct constants, registration cannot fail.
	_ = r.Register(NewSearchTool(index))
	_ = r.Register(NewOutlineTool(index))
	return r
}

func (r *Registry) Register(t Tool) error {
	name := t.Definition().Name
	if name == "" {
		return errors.New("tool must have a name")
	}
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools = append(r.tools, t)
	r.byName[name] = t
	return nil
}

// Definitions returns tool schemas in registration order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	return defs
}

// Execute runs the named tool. Invalid input is reported as the tool's
// output so the reasoning engine can correct itself; other failures are
// returned as errors.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) (string, error) {
	t, ok := r.byName[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	out, err := t.Run(ctx, input)
	if errors.Is(err, ErrInvalidInput) {
		return fmt.Sprintf("Invalid parameters for tool '%s': %v", name, err), nil
	}
	if st, ok := t.(SourceTracker); ok && err == nil && len(st.LastSources()) > 0 {
		r.last = st
	}
	return out, err
}

// LastSources returns the sources of the tool whose execution most recently
// produced any, or nil.
func (r *Registry) LastSources() []domain.Source {
	if r.last == nil {
		return nil
	}
	return r.last.LastSources()
}

func (r *Registry) ResetSources() {
	r.last = nil
	for _, t := range r.tools {
		if st, ok := t.(SourceTracker); ok {
			st.ResetSources()
		}
	}
}
