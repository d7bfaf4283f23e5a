package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vk/setupgrid/internal/driver"
	"github.com/vk/setupgrid/internal/registry"
)

// RecorderModule registers the "record" handler, which appends
// "<item>:<step>" to Calls for every step it sees. A handler declared with
// fail_at fails that step.
type RecorderModule struct {
	mu    sync.Mutex
	calls []string
}

// RecordInput defines the arguments of a record handler.
type RecordInput struct {
	FailAt string `cty:"fail_at,optional"`
}

// Register implements the registry.Module interface.
func (m *RecorderModule) Register(r *registry.Registry) {
	r.RegisterHandler("record", &registry.RegisteredHandler{
		NewInput: func() any { return new(RecordInput) },
		Build: func(_ context.Context, input any) (driver.Handler, error) {
			in := input.(*RecordInput)
			var failAt driver.Step
			if in.FailAt != "" {
				step, err := driver.ParseStep(in.FailAt)
				if err != nil {
					return nil, err
				}
				failAt = step
			}
			return driver.HandlerFunc(func(_ context.Context, d *driver.Driver, step driver.Step) error {
				m.mu.Lock()
				m.calls = append(m.calls, d.FullName()+":"+step.String())
				m.mu.Unlock()
				if step == failAt {
					return fmt.Errorf("recorded failure at %s", step)
				}
				return nil
			}), nil
		},
	})
}

// Calls returns every recorded call in order.
func (m *RecorderModule) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallsFor returns the recorded calls of one step, as item names.
func (m *RecorderModule) CallsFor(step driver.Step) []string {
	var out []string
	for _, c := range m.Calls() {
		name, s, _ := strings.Cut(c, ":")
		if s == step.String() {
			out = append(out, name)
		}
	}
	return out
}

// Reset forgets every recorded call.
func (m *RecorderModule) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}
