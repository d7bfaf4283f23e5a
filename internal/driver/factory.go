package driver

import (
	"fmt"
	"log/slog"

	"github.com/vk/setupgrid/internal/item"
)

// Factory creates the driver of an item. It lets a host give different item
// kinds or types their own Behavior.
type Factory interface {
	CreateDriver(kind item.Kind, info BuildInfo) (*Driver, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(kind item.Kind, info BuildInfo) (*Driver, error)

func (f FactoryFunc) CreateDriver(kind item.Kind, info BuildInfo) (*Driver, error) {
	return f(kind, info)
}

// DefaultFactory creates drivers that all share one Behavior.
type DefaultFactory struct {
	Behavior Behavior
}

func (f DefaultFactory) CreateDriver(_ item.Kind, info BuildInfo) (*Driver, error) {
	if info.Item == nil {
		return nil, fmt.Errorf("create driver: missing sorted item")
	}
	return New(info, f.Behavior), nil
}

// Mux dispatches driver creation by item type, then by kind name, falling
// back to Default.
type Mux struct {
	Default   Factory
	factories map[string]Factory
}

// NewMux returns a Mux that falls back to fallback, or to DefaultFactory.
func NewMux(fallback Factory) *Mux {
	if fallback == nil {
		fallback = DefaultFactory{}
	}
	return &Mux{Default: fallback, factories: make(map[string]Factory)}
}

// Handle registers f for an item type or kind name. Registering the same
// name twice is a programming error.
func (m *Mux) Handle(name string, f Factory) {
	if _, exists := m.factories[name]; exists {
		panic(fmt.Sprintf("driver factory for '%s' already registered", name))
	}
	slog.Debug("Registering driver factory.", "name", name)
	m.factories[name] = f
}

func (m *Mux) CreateDriver(kind item.Kind, info BuildInfo) (*Driver, error) {
	if info.Item != nil {
		if f, ok := m.factories[info.Item.Item.ItemType()]; ok {
			return f.CreateDriver(kind, info)
		}
	}
	if f, ok := m.factories[kind.String()]; ok {
		return f.CreateDriver(kind, info)
	}
	return m.Default.CreateDriver(kind, info)
}
