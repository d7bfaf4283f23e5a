package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/vk/setupgrid/internal/driver"
)

// Module is the interface that all handler modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// BuildFunc creates a handler from a decoded input. input is the value
// returned by NewInput, or nil when the handler takes no arguments.
type BuildFunc func(ctx context.Context, input any) (driver.Handler, error)

// RegisteredHandler holds the compiled Go parts of a handler.
type RegisteredHandler struct {
	// NewInput returns a pointer to the struct the arguments decode into.
	// Fields are bound with `cty:"name"` or `cty:"name,optional"` tags.
	NewInput func() any
	Build    BuildFunc
}

// Registry holds all registered handlers of one application instance.
type Registry struct {
	handlers map[string]*RegisteredHandler
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{handlers: make(map[string]*RegisteredHandler)}
}

// RegisterHandler registers a handler under the name used in model files.
func (r *Registry) RegisterHandler(name string, handler *RegisteredHandler) {
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("handler with name '%s' already registered", name))
	}
	if handler == nil || handler.Build == nil {
		panic(fmt.Sprintf("handler '%s' has no build function", name))
	}
	slog.Debug("Registering handler.", "name", name)
	r.handlers[name] = handler
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (*RegisteredHandler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered handler names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
