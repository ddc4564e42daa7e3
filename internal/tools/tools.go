// Package tools defines the tools available to the shopping assistant.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tiendamx/asistente-catalogo/internal/session"
)

// Tool represents a callable tool. Handlers receive the raw Action
// Input text and the caller's session; they return the Observation
// text fed back to the model.
type Tool struct {
	Name        string
	Description string
	Handler     func(ctx context.Context, input string, sess *session.Session) (string, error)
}

// Registry holds available tools in registration order.
type Registry struct {
	tools map[string]*Tool
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	if _, dup := r.tools[t.Name]; !dup {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Get retrieves a tool by name, nil when unknown.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Describe renders one "name: description" line per tool for the
// system prompt.
func (r *Registry) Describe() string {
	var b strings.Builder
	for _, name := range r.order {
		fmt.Fprintf(&b, "%s: %s\n", name, r.tools[name].Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Execute runs a tool by name against the session.
func (r *Registry) Execute(ctx context.Context, name, input string, sess *session.Session) (string, error) {
	t := r.tools[name]
	if t == nil {
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	return t.Handler(ctx, input, sess)
}

// errorPayload serializes a user-facing error as the structured
// Observation shape. The model relays the message; it never sees a Go
// error for these.
func errorPayload(msg string) string {
	out, _ := json.Marshal(map[string]string{"error": msg})
	return string(out)
}
