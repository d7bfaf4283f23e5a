// Package testutil provides the harness used by the integration tests: it
// writes model files to a temporary directory, runs a fresh app against a
// file version store kept in the same directory, and exposes the report and
// the captured logs.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/setupgrid/internal/app"
	"github.com/vk/setupgrid/internal/registry"
	"github.com/vk/setupgrid/internal/setup"
	"github.com/vk/setupgrid/internal/versionstore"
)

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput string
	Report    *setup.Report
	Err       error
	App       *app.App
}

// Harness owns a model directory and a version store that survive several
// runs, so that tests can observe what a second run skips.
type Harness struct {
	t       *testing.T
	root    string
	modules func() []registry.Module

	// RevertOrderingNames is passed to every run.
	RevertOrderingNames bool
}

// NewHarness writes files below a fresh temporary directory. File names are
// relative to the model directory. newModules is called before every run so
// that each app gets its own module instances.
func NewHarness(t *testing.T, files map[string]string, newModules func() []registry.Module) *Harness {
	t.Helper()
	h := &Harness{t: t, root: t.TempDir(), modules: newModules}
	require.NoError(t, os.MkdirAll(h.ModelDir(), 0o755))
	for name, content := range files {
		h.WriteFile(name, content)
	}
	return h
}

// ModelDir is the directory every run loads.
func (h *Harness) ModelDir() string {
	return filepath.Join(h.root, "model")
}

// StorePath is the versions document of the file store.
func (h *Harness) StorePath() string {
	return filepath.Join(h.root, "versions.json")
}

// WriteFile creates or replaces a model file.
func (h *Harness) WriteFile(name, content string) {
	h.t.Helper()
	path := filepath.Join(h.ModelDir(), name)
	require.NoError(h.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(h.t, os.WriteFile(path, []byte(content), 0o644))
}

// Run runs a fresh app over the model directory. Startup panics are turned
// into errors.
func (h *Harness) Run(ctx context.Context) *HarnessResult {
	h.t.Helper()

	cfg, err := app.NewConfig(app.Config{
		ModelPaths:          []string{h.ModelDir()},
		LogLevel:            "debug",
		LogFormat:           "text",
		RevertOrderingNames: h.RevertOrderingNames,
		Store:               versionstore.Config{Backend: versionstore.BackendFile, Path: h.StorePath()},
	})
	require.NoError(h.t, err)

	var modules []registry.Module
	if h.modules != nil {
		modules = h.modules()
	}

	logBuffer := &app.SafeBuffer{}
	res := &HarnessResult{}
	func() {
		defer func() {
			if r := recover(); r != nil {
				res.Err = fmt.Errorf("application startup panicked | %v", r)
			}
		}()
		res.App = app.NewApp(logBuffer, cfg, modules...)
	}()

	if res.App != nil {
		res.Report, res.Err = res.App.Run(ctx)
		if err := res.App.Close(); err != nil && res.Err == nil {
			res.Err = err
		}
	}
	res.LogOutput = logBuffer.String()

	if os.Getenv("SETUPGRID_TEST_LOGS") == "true" {
		h.t.Logf("--- Full Log Output for %s ---\n%s", h.t.Name(), res.LogOutput)
	}
	return res
}

// RunIntegrationTest runs files once with a background context.
func RunIntegrationTest(t *testing.T, files map[string]string, modules ...registry.Module) *HarnessResult {
	t.Helper()
	return RunIntegrationTestWithContext(context.Background(), t, files, modules...)
}

// RunIntegrationTestWithContext runs files once with the caller's context.
func RunIntegrationTestWithContext(ctx context.Context, t *testing.T, files map[string]string, modules ...registry.Module) *HarnessResult {
	t.Helper()
	return NewHarness(t, files, func() []registry.Module { return modules }).Run(ctx)
}
