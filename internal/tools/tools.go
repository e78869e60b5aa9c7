// Package tools holds the operation registry the agent calls into.
// Operations decode their arguments into a typed parameter struct,
// validate it, and return an Outcome.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
)

// Params is implemented by every operation's parameter struct.
type Params interface {
	Validate() error
}

// Tool is one named operation.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`

	run func(ctx context.Context, raw json.RawMessage) Outcome
}

// New builds a Tool whose arguments are decoded into P and validated
// before fn runs. Decode or validation errors become KindValidation
// failures without calling fn.
func New[P Params](name, description string, parameters map[string]any, fn func(ctx context.Context, p P) Outcome) *Tool {
	return &Tool{
		Name:        name,
		Description: description,
		Parameters:  parameters,
		run: func(ctx context.Context, raw json.RawMessage) Outcome {
			var p P
			if len(raw) > 0 && string(raw) != "null" {
				if err := json.Unmarshal(raw, &p); err != nil {
					return Failure(KindValidation,
						fmt.Sprintf("invalid arguments: %v", err),
						fmt.Sprintf("The arguments for %s could not be read.", name))
				}
			}
			if err := p.Validate(); err != nil {
				return Failure(KindValidation, err.Error(), fmt.Sprintf("Invalid %s request: %v", name, err))
			}
			return fn(ctx, p)
		},
	}
}

// Registry is an ordered, immutable set of tools.
type Registry struct {
	order []*Tool
	index map[string]*Tool
}

// NewRegistry builds a registry preserving the given order. Duplicate
// names are an error.
func NewRegistry(tools ...*Tool) (*Registry, error) {
	r := &Registry{index: make(map[string]*Tool, len(tools))}
	for _, t := range tools {
		if t == nil || t.Name == "" || t.run == nil {
			return nil, fmt.Errorf("tool registry: incomplete tool %v", t)
		}
		if _, dup := r.index[t.Name]; dup {
			return nil, fmt.Errorf("tool registry: duplicate tool %q", t.Name)
		}
		r.index[t.Name] = t
		r.order = append(r.order, t)
	}
	return r, nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.index[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	for i, t := range r.order {
		names[i] = t.Name
	}
	return names
}

// Len returns the number of tools.
func (r *Registry) Len() int {
	return len(r.order)
}

// Definitions returns tool definitions in the OpenAI function-calling
// shape, in registration order.
func (r *Registry) Definitions() []map[string]any {
	defs := make([]map[string]any, 0, len(r.order))
	for _, t := range r.order {
		defs = append(defs, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return defs
}

// Execute runs the named tool. An unknown name yields a KindUnknownTool
// failure and no executor runs. A panicking executor yields a
// KindInternal failure.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (out Outcome) {
	t, ok := r.index[name]
	if !ok {
		err := &ErrToolUnavailable{ToolName: name}
		return Failure(KindUnknownTool, err.Error(), fmt.Sprintf("There is no operation called %q.", name))
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return Failure(KindValidation, fmt.Sprintf("encode arguments: %v", err), "")
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = Failure(KindInternal,
				fmt.Sprintf("panic in %s: %v\n%s", name, rec, debug.Stack()),
				fmt.Sprintf("The %s operation failed unexpectedly.", name))
		}
	}()
	return t.run(ctx, raw)
}
