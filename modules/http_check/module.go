// Package http_check provides a readiness check handler: at the configured
// step it sends one HTTP request and fails the item unless the response
// status matches.
package http_check

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vk/setupgrid/internal/ctxlog"
	"github.com/vk/setupgrid/internal/driver"
	"github.com/vk/setupgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Client is shared by every handler of the module.
	Client *http.Client
}

// Input defines the arguments of an http_check handler.
type Input struct {
	URL     string `cty:"url"`
	Method  string `cty:"method,optional"`
	Status  int    `cty:"status,optional"`
	Step    string `cty:"step,optional"`
	Timeout string `cty:"timeout,optional"`
	// Contains, when set, must appear in the response body.
	Contains string `cty:"contains,optional"`
}

type checker struct {
	client   *http.Client
	in       Input
	step     driver.Step
	timeout  time.Duration
	maxBytes int64
}

// Handle sends the request when step is the configured one.
func (c *checker) Handle(ctx context.Context, d *driver.Driver, step driver.Step) error {
	if step != c.step {
		return nil
	}
	logger := ctxlog.FromContext(ctx).With("item", d.FullName(), "url", c.in.URL)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, c.in.Method, c.in.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	logger.Debug("Making HTTP request", "method", c.in.Method)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	logger.Info("Received HTTP response", "status", resp.Status)

	if resp.StatusCode != c.in.Status {
		return fmt.Errorf("unexpected status %d, want %d", resp.StatusCode, c.in.Status)
	}
	if c.in.Contains != "" {
		body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if !strings.Contains(string(body), c.in.Contains) {
			return fmt.Errorf("response body does not contain %q", c.in.Contains)
		}
	}
	return nil
}

func (m *Module) build(_ context.Context, input any) (driver.Handler, error) {
	in := *input.(*Input)
	if in.URL == "" {
		return nil, fmt.Errorf("url must not be empty")
	}
	if in.Method == "" {
		in.Method = http.MethodGet
	}
	if in.Status == 0 {
		in.Status = http.StatusOK
	}
	c := &checker{client: m.Client, in: in, step: driver.StepSettle, timeout: 10 * time.Second, maxBytes: 1 << 20}
	if c.client == nil {
		c.client = http.DefaultClient
	}
	if in.Step != "" {
		s, err := driver.ParseStep(in.Step)
		if err != nil {
			return nil, err
		}
		c.step = s
	}
	if in.Timeout != "" {
		d, err := time.ParseDuration(in.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout: %w", err)
		}
		c.timeout = d
	}
	return c, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("http_check", &registry.RegisteredHandler{
		NewInput: func() any { return new(Input) },
		Build:    m.build,
	})
}
