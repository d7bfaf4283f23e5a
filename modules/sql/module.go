// Package sql provides a handler that runs SQL scripts against PostgreSQL
// at chosen steps of an item. Connections are opened on first use, shared
// per DSN and closed by Module.Close.
package sql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/vk/setupgrid/internal/ctxlog"
	"github.com/vk/setupgrid/internal/driver"
	"github.com/vk/setupgrid/internal/registry"
)

// Execer runs one script on a connection.
type Execer interface {
	Exec(ctx context.Context, script string) (int64, error)
	Close(ctx context.Context) error
}

// Module implements the registry.Module interface for this package.
type Module struct {
	// Connect defaults to a pgx connection.
	Connect func(ctx context.Context, dsn string) (Execer, error)

	mu    sync.Mutex
	conns map[string]Execer
}

// Input defines the arguments of a sql handler. Each step argument holds the
// script run at that step.
type Input struct {
	DSN            string `cty:"dsn"`
	Init           string `cty:"init,optional"`
	InitContent    string `cty:"init_content,optional"`
	Install        string `cty:"install,optional"`
	InstallContent string `cty:"install_content,optional"`
	Settle         string `cty:"settle,optional"`
	SettleContent  string `cty:"settle_content,optional"`
	Timeout        string `cty:"timeout,optional"`
}

type pgxConn struct {
	conn *pgx.Conn
}

func (c pgxConn) Exec(ctx context.Context, script string) (int64, error) {
	tag, err := c.conn.Exec(ctx, script)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c pgxConn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

func connectPgx(ctx context.Context, dsn string) (Execer, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return pgxConn{conn: conn}, nil
}

type runner struct {
	m       *Module
	dsn     string
	scripts map[driver.Step]string
	timeout time.Duration
}

// Handle runs the script of step, if one is declared.
func (r *runner) Handle(ctx context.Context, d *driver.Driver, step driver.Step) error {
	script, ok := r.scripts[step]
	if !ok {
		return nil
	}
	logger := ctxlog.FromContext(ctx).With("item", d.FullName(), "step", step.String())

	conn, err := r.m.conn(ctx, r.dsn)
	if err != nil {
		return err
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	start := time.Now()
	rows, err := conn.Exec(ctx, script)
	if err != nil {
		return fmt.Errorf("sql: exec %s script: %w", step, err)
	}
	logger.Debug("SQL script executed.", "rows", rows, "duration", time.Since(start))
	return nil
}

// conn returns the shared connection of dsn, opening it on first use.
func (m *Module) conn(ctx context.Context, dsn string) (Execer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conns[dsn]; ok {
		return c, nil
	}
	connect := m.Connect
	if connect == nil {
		connect = connectPgx
	}
	c, err := connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql: connect: %w", err)
	}
	if m.conns == nil {
		m.conns = make(map[string]Execer)
	}
	m.conns[dsn] = c
	return c, nil
}

// Close closes every connection opened by the module's handlers.
func (m *Module) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for dsn, c := range m.conns {
		if err := c.Close(context.Background()); err != nil {
			errs = append(errs, err)
		}
		delete(m.conns, dsn)
	}
	return errors.Join(errs...)
}

func (m *Module) build(_ context.Context, input any) (driver.Handler, error) {
	in := input.(*Input)
	if strings.TrimSpace(in.DSN) == "" {
		return nil, errors.New("dsn must not be empty")
	}
	r := &runner{m: m, dsn: in.DSN, scripts: make(map[driver.Step]string)}
	for step, script := range map[driver.Step]string{
		driver.StepInit:           in.Init,
		driver.StepInitContent:    in.InitContent,
		driver.StepInstall:        in.Install,
		driver.StepInstallContent: in.InstallContent,
		driver.StepSettle:         in.Settle,
		driver.StepSettleContent:  in.SettleContent,
	} {
		if strings.TrimSpace(script) != "" {
			r.scripts[step] = script
		}
	}
	if len(r.scripts) == 0 {
		return nil, errors.New("at least one step script is required")
	}
	if in.Timeout != "" {
		d, err := time.ParseDuration(in.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout: %w", err)
		}
		r.timeout = d
	}
	return r, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("sql", &registry.RegisteredHandler{
		NewInput: func() any { return new(Input) },
		Build:    m.build,
	})
}
