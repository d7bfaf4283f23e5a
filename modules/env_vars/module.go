package env_vars

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vk/setupgrid/internal/ctxlog"
	"github.com/vk/setupgrid/internal/driver"
	"github.com/vk/setupgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(key string) (string, bool)
}

// Input defines the arguments of an env_vars handler.
type Input struct {
	Required []string `cty:"required"`
	// Step is when the check runs; Init unless set.
	Step string `cty:"step,optional"`
}

type checker struct {
	lookup   func(string) (string, bool)
	required []string
	step     driver.Step
}

// Handle fails the item when any required variable is unset or empty.
func (c *checker) Handle(ctx context.Context, d *driver.Driver, step driver.Step) error {
	if step != c.step {
		return nil
	}
	var missing []string
	for _, key := range c.required {
		if v, ok := c.lookup(key); !ok || v == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing environment variables: %s", strings.Join(missing, ", "))
	}
	ctxlog.FromContext(ctx).Debug("Environment variables present.", "item", d.FullName(), "count", len(c.required))
	return nil
}

func (m *Module) build(_ context.Context, input any) (driver.Handler, error) {
	in := input.(*Input)
	step := driver.StepInit
	if in.Step != "" {
		s, err := driver.ParseStep(in.Step)
		if err != nil {
			return nil, err
		}
		step = s
	}
	lookup := m.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &checker{lookup: lookup, required: in.Required, step: step}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("env_vars", &registry.RegisteredHandler{
		NewInput: func() any { return new(Input) },
		Build:    m.build,
	})
}
