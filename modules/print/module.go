package print

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/vk/setupgrid/internal/ctxlog"
	"github.com/vk/setupgrid/internal/driver"
	"github.com/vk/setupgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Out receives the printed lines. Defaults to os.Stdout.
	Out io.Writer
	mu  sync.Mutex
}

// Input defines the arguments of a print handler.
type Input struct {
	Message string   `cty:"message,optional"`
	Steps   []string `cty:"steps,optional"`
}

type printer struct {
	m       *Module
	message string
	steps   map[driver.Step]bool
}

// Handle prints one line for every selected step of the item.
func (p *printer) Handle(ctx context.Context, d *driver.Driver, step driver.Step) error {
	if !p.steps[step] {
		return nil
	}
	ctxlog.FromContext(ctx).Info("Printing step", "item", d.FullName(), "step", step.String())

	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	out := p.m.Out
	if out == nil {
		out = os.Stdout
	}
	if p.message == "" {
		_, err := fmt.Fprintf(out, "      %s %s\n", d.FullName(), step)
		return err
	}
	_, err := fmt.Fprintf(out, "      %s %s: %s\n", d.FullName(), step, p.message)
	return err
}

func (m *Module) build(_ context.Context, input any) (driver.Handler, error) {
	in := input.(*Input)
	steps, err := driver.ParseSteps(in.Steps,
		driver.StepInit, driver.StepInitContent,
		driver.StepInstall, driver.StepInstallContent,
		driver.StepSettle, driver.StepSettleContent)
	if err != nil {
		return nil, err
	}
	return &printer{m: m, message: in.Message, steps: steps}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("print", &registry.RegisteredHandler{
		NewInput: func() any { return new(Input) },
		Build:    m.build,
	})
}
