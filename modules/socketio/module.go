// Package socketio provides a handler that reports item progress to a
// socket.io namespace: one event per selected step, carrying the item name,
// the step and the declared version.
package socketio

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/vk/setupgrid/internal/ctxlog"
	"github.com/vk/setupgrid/internal/driver"
	"github.com/vk/setupgrid/internal/registry"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// DefaultEvent is emitted when the handler declares no event name.
const DefaultEvent = "setupgrid.step"

// Emitter is a connected socket.
type Emitter interface {
	Emit(event string, payload any)
	Disconnect()
}

// Dialer opens a connection described by the handler's input.
type Dialer func(ctx context.Context, in *Input) (Emitter, error)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Dial defaults to a websocket socket.io client.
	Dial Dialer

	mu    sync.Mutex
	conns map[string]Emitter
}

// Input defines the arguments of a socketio handler.
type Input struct {
	URL                string   `cty:"url"`
	Namespace          string   `cty:"namespace,optional"`
	Event              string   `cty:"event,optional"`
	Steps              []string `cty:"steps,optional"`
	Timeout            string   `cty:"timeout,optional"`
	InsecureSkipVerify bool     `cty:"insecure_skip_verify,optional"`
}

// StepEvent is the payload of every emitted event.
type StepEvent struct {
	Item    string `json:"item"`
	Step    string `json:"step"`
	Version string `json:"version,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

type socketEmitter struct {
	io *socket.Socket
}

func (s socketEmitter) Emit(event string, payload any) {
	s.io.Emit(event, payload)
}

func (s socketEmitter) Disconnect() {
	s.io.Disconnect()
}

// dialSocket connects over websocket and waits for the connect event.
func dialSocket(ctx context.Context, in *Input) (Emitter, error) {
	logger := ctxlog.FromContext(ctx).With("url", in.URL, "namespace", in.Namespace)

	parsedURL, err := url.Parse(in.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if in.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(in.Namespace, opts)

	connected := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Successfully connected", "sid", io.Id())
		connected <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connected <- err
	})
	io.Connect()

	timeout := 15 * time.Second
	if in.Timeout != "" {
		if d, err := time.ParseDuration(in.Timeout); err == nil {
			timeout = d
		}
	}
	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return socketEmitter{io: io}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}
}

type reporter struct {
	m     *Module
	input *Input
	event string
	steps map[driver.Step]bool
}

// Handle emits a StepEvent for every selected step.
func (r *reporter) Handle(ctx context.Context, d *driver.Driver, step driver.Step) error {
	if !r.steps[step] {
		return nil
	}
	em, err := r.m.emitter(ctx, r.input)
	if err != nil {
		return err
	}
	ev := StepEvent{
		Item:    d.FullName(),
		Step:    step.String(),
		Skipped: d.VersionSkipped(),
	}
	if v := d.Item().Item.Version; !v.IsZero() {
		ev.Version = v.String()
	}
	em.Emit(r.event, ev)
	ctxlog.FromContext(ctx).Debug("Step event emitted.", "event", r.event, "item", ev.Item, "step", ev.Step)
	return nil
}

// emitter returns the shared connection for in's URL and namespace.
func (m *Module) emitter(ctx context.Context, in *Input) (Emitter, error) {
	key := in.URL + "#" + in.Namespace
	m.mu.Lock()
	defer m.mu.Unlock()
	if em, ok := m.conns[key]; ok {
		return em, nil
	}
	dial := m.Dial
	if dial == nil {
		dial = dialSocket
	}
	em, err := dial(ctx, in)
	if err != nil {
		return nil, err
	}
	if m.conns == nil {
		m.conns = make(map[string]Emitter)
	}
	m.conns[key] = em
	return em, nil
}

// Close disconnects every socket opened by the module's handlers.
func (m *Module) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, em := range m.conns {
		em.Disconnect()
		delete(m.conns, key)
	}
	return nil
}

func (m *Module) build(_ context.Context, input any) (driver.Handler, error) {
	in := input.(*Input)
	if _, err := url.Parse(in.URL); err != nil || in.URL == "" {
		return nil, fmt.Errorf("invalid url %q", in.URL)
	}
	steps, err := driver.ParseSteps(in.Steps, driver.StepInit, driver.StepInstall, driver.StepSettle)
	if err != nil {
		return nil, err
	}
	event := in.Event
	if event == "" {
		event = DefaultEvent
	}
	return &reporter{m: m, input: in, event: event, steps: steps}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("socketio", &registry.RegisteredHandler{
		NewInput: func() any { return new(Input) },
		Build:    m.build,
	})
}
