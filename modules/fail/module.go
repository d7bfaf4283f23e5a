// Package fail provides a handler that fails on purpose. It is used to
// rehearse partial failures: the failing item and its dependents stop while
// every independent item still installs.
package fail

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/setupgrid/internal/driver"
	"github.com/vk/setupgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of a fail handler.
type Input struct {
	Step    string `cty:"step"`
	Message string `cty:"message,optional"`
	Panic   bool   `cty:"panic,optional"`
}

type failer struct {
	step    driver.Step
	message string
	panics  bool
}

func (f *failer) Handle(_ context.Context, d *driver.Driver, step driver.Step) error {
	if step != f.step {
		return nil
	}
	if f.panics {
		panic(fmt.Sprintf("%s: %s", d.FullName(), f.message))
	}
	return errors.New(f.message)
}

func build(_ context.Context, input any) (driver.Handler, error) {
	in := input.(*Input)
	steps, err := driver.ParseSteps([]string{in.Step})
	if err != nil {
		return nil, err
	}
	f := &failer{message: in.Message, panics: in.Panic}
	for s := range steps {
		f.step = s
	}
	if f.message == "" {
		f.message = fmt.Sprintf("forced failure at %s", f.step)
	}
	return f, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("fail", &registry.RegisteredHandler{
		NewInput: func() any { return new(Input) },
		Build:    build,
	})
}
