package driver

import (
	"context"
	"fmt"
)

// Handler performs the work of an item for one step. Returning an error
// fails the step for that item.
type Handler interface {
	Handle(ctx context.Context, d *Driver, step Step) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, d *Driver, step Step) error

func (f HandlerFunc) Handle(ctx context.Context, d *Driver, step Step) error {
	return f(ctx, d, step)
}

// Named is implemented by handlers that report a name in diagnostics.
type Named interface {
	HandlerName() string
}

// StepHandlers dispatches to one optional function per step.
type StepHandlers struct {
	Name           string
	Init           func(ctx context.Context, d *Driver) error
	InitContent    func(ctx context.Context, d *Driver) error
	Install        func(ctx context.Context, d *Driver) error
	InstallContent func(ctx context.Context, d *Driver) error
	Settle         func(ctx context.Context, d *Driver) error
	SettleContent  func(ctx context.Context, d *Driver) error
}

func (h *StepHandlers) Handle(ctx context.Context, d *Driver, step Step) error {
	var fn func(ctx context.Context, d *Driver) error
	switch step {
	case StepInit:
		fn = h.Init
	case StepInitContent:
		fn = h.InitContent
	case StepInstall:
		fn = h.Install
	case StepInstallContent:
		fn = h.InstallContent
	case StepSettle:
		fn = h.Settle
	case StepSettleContent:
		fn = h.SettleContent
	}
	if fn == nil {
		return nil
	}
	return fn(ctx, d)
}

func (h *StepHandlers) HandlerName() string {
	return h.Name
}

func handlerName(h Handler, i int) string {
	if n, ok := h.(Named); ok && n.HandlerName() != "" {
		return n.HandlerName()
	}
	return fmt.Sprintf("handler#%d", i)
}

// Behavior is the driver-level work of an item kind. It is called for every
// step twice: before any handler runs and after all of them succeeded.
type Behavior interface {
	Execute(ctx context.Context, d *Driver, step Step, beforeHandlers bool) error
}

// BehaviorFunc adapts a function to Behavior.
type BehaviorFunc func(ctx context.Context, d *Driver, step Step, beforeHandlers bool) error

func (f BehaviorFunc) Execute(ctx context.Context, d *Driver, step Step, beforeHandlers bool) error {
	return f(ctx, d, step, beforeHandlers)
}

// NopBehavior does nothing; handlers carry all the work.
type NopBehavior struct{}

func (NopBehavior) Execute(context.Context, *Driver, Step, bool) error { return nil }
