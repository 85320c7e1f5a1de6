// Package tool exposes the workflow core to external automation as a
// JSON tool catalog. Each tool takes a JSON argument object and
// returns a JSON-encodable result; resources expose read-only project
// snapshots under project://<id>/state URIs.
package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/foundrydev/foundry/internal/errors"
)

// Handler executes one tool call with parsed JSON arguments.
type Handler func(ctx context.Context, args gjson.Result) (any, error)

// Tool is one entry in the catalog.
type Tool struct {
	Name        string   `json:"name"`
	Group       string   `json:"group"`
	Description string   `json:"description"`
	// Required lists argument fields that must be present and non-empty.
	Required []string `json:"required,omitempty"`

	handler Handler
}

// Registry holds the tool catalog.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool to the catalog. Panics on duplicate names; the
// catalog is assembled once at startup.
func (r *Registry) Register(t Tool, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		panic(fmt.Sprintf("tool %q registered twice", t.Name))
	}
	t.handler = h
	r.tools[t.Name] = &t
}

// List returns the catalog sorted by group then name.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Invoke runs one tool call. Arguments must be a JSON object; missing
// required fields surface as a per-field issue list.
func (r *Registry) Invoke(ctx context.Context, name string, args []byte) (any, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound("tool", name)
	}

	if len(args) == 0 {
		args = []byte("{}")
	}
	if !gjson.ValidBytes(args) {
		return nil, errors.InvalidInput("tool arguments", errors.FieldIssue{
			Field: "_", Message: "arguments must be a JSON object",
		})
	}
	parsed := gjson.ParseBytes(args)
	if !parsed.IsObject() {
		return nil, errors.InvalidInput("tool arguments", errors.FieldIssue{
			Field: "_", Message: "arguments must be a JSON object",
		})
	}

	var issues []errors.FieldIssue
	for _, field := range t.Required {
		if v := parsed.Get(field); !v.Exists() || v.String() == "" {
			issues = append(issues, errors.FieldIssue{
				Field: field, Message: "required",
			})
		}
	}
	if len(issues) > 0 {
		return nil, errors.InvalidInput("tool arguments", issues...)
	}

	return t.handler(ctx, parsed)
}

// ParseResourceURI splits a project://<id>/state URI. Returns the
// project id, or an error for anything else.
func ParseResourceURI(uri string) (projectID string, err error) {
	rest, ok := strings.CutPrefix(uri, "project://")
	if !ok {
		return "", errors.InvalidInput("resource uri", errors.FieldIssue{
			Field: "uri", Message: "must start with project://",
		})
	}
	id, ok := strings.CutSuffix(rest, "/state")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", errors.InvalidInput("resource uri", errors.FieldIssue{
			Field: "uri", Message: "must be project://<id>/state",
		})
	}
	return id, nil
}
