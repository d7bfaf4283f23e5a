package integration_tests

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/setupgrid/internal/driver"
	"github.com/vk/setupgrid/internal/registry"
	"github.com/vk/setupgrid/internal/setup"
	"github.com/vk/setupgrid/internal/testutil"
	"github.com/vk/setupgrid/modules/fail"
)

// Test for: a failing item blocks its dependents while independent items
// finish and get their versions committed.
func TestErrorHandling_HandlerFailure_BlocksDependents(t *testing.T) {
	t.Parallel()

	files := map[string]string{"model.hcl": `
item "A" {
  version = "1.0"
  handler "record" {
    fail_at = "Install"
  }
}
item "B" {
  version  = "1.0"
  requires = ["A"]
  handler "record" {}
}
item "C" {
  version = "1.0"
  handler "record" {}
}
`}
	rec := &testutil.RecorderModule{}
	result := testutil.RunIntegrationTest(t, files, rec)

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "recorded failure at Install")
	assert.Equal(t, []string{"A", "C"}, rec.CallsFor(driver.StepInstall))
	assert.NotContains(t, rec.Calls(), "B:Install")
	assert.Equal(t, []string{"C"}, result.Report.Committed)
	assert.Equal(t, setup.StateSettlementError, result.Report.State)

	require.Len(t, result.Report.Failures, 2)
	assert.Equal(t, "A", result.Report.Failures[0].Item)
	assert.False(t, result.Report.Failures[0].Blocked())
	assert.Equal(t, "B", result.Report.Failures[1].Item)
	assert.True(t, result.Report.Failures[1].Blocked())
	testutil.AssertStepRan(t, result, "C", "Settle")
}

// Test for: a panicking handler fails its item instead of the process.
func TestErrorHandling_HandlerPanicBecomesFailure(t *testing.T) {
	t.Parallel()

	files := map[string]string{"model.hcl": `
item "Explodes" {
  handler "fail" {
    step    = "Settle"
    message = "boom"
    panic   = true
  }
}
`}
	result := testutil.RunIntegrationTest(t, files, &fail.Module{})

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "panic: Explodes: boom")
	assert.Equal(t, []string{"Explodes"}, result.Report.FailedItems())
}

func TestErrorHandling_InvalidHCLIsRejected(t *testing.T) {
	t.Parallel()

	result := testutil.RunIntegrationTest(t, map[string]string{"bad.hcl": `item "A" {`})

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "failed to load model")
	assert.Nil(t, result.Report)
}

func TestErrorHandling_RequiredArgumentMissing(t *testing.T) {
	t.Parallel()

	type input struct {
		Name string `cty:"name"`
	}
	mod := &testutil.SimpleModule{
		HandlerName: "needs_name",
		Handler: &registry.RegisteredHandler{
			NewInput: func() any { return new(input) },
			Build: func(context.Context, any) (driver.Handler, error) {
				return &driver.StepHandlers{}, nil
			},
		},
	}
	files := map[string]string{"model.hcl": `
item "A" {
  handler "needs_name" {}
  handler "missing_handler" {}
}
`}
	result := testutil.RunIntegrationTest(t, files, mod)

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), `missing required argument "name"`)
	assert.Contains(t, result.Err.Error(), `handler "missing_handler" is not registered`)
}

func TestErrorHandling_CycleIsReported(t *testing.T) {
	t.Parallel()

	files := map[string]string{"model.hcl": `
item "A" { requires = ["C"] }
item "B" { requires = ["A"] }
item "C" { requires = ["B"] }
item "Free" {
  handler "record" {}
}
`}
	rec := &testutil.RecorderModule{}
	result := testutil.RunIntegrationTest(t, files, rec)

	require.Error(t, result.Err)
	var regErr *setup.RegistrationError
	require.True(t, errors.As(result.Err, &regErr))
	cycle := regErr.Diagnostics.Cycle
	require.NotEmpty(t, cycle)
	assert.Equal(t, cycle[0], cycle[len(cycle)-1])
	assert.Subset(t, cycle, []string{"A", "B", "C"})
	assert.Empty(t, rec.Calls(), "nothing runs when registration fails")
	assert.Equal(t, setup.StateRegistrationError, result.Report.State)
}

func TestErrorHandling_StartupMismatchIsReported(t *testing.T) {
	t.Parallel()

	mod := &testutil.SimpleModule{
		HandlerName: "untyped",
		Handler: &registry.RegisteredHandler{
			NewInput: func() any { return new(struct{ Value any `cty:"value"` }) },
			Build:    func(context.Context, any) (driver.Handler, error) { return nil, nil },
		},
	}
	result := testutil.RunIntegrationTest(t, map[string]string{"model.hcl": `item "A" {}`}, mod)

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "application startup panicked")
	assert.Nil(t, result.App)
}

func TestErrorHandling_CancelledRunCommitsNothing(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &testutil.RecorderModule{}
	result := testutil.RunIntegrationTestWithContext(ctx, t, map[string]string{"model.hcl": `
item "A" {
  version = "1.0"
  handler "record" {}
}
`}, rec)

	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Empty(t, rec.Calls())
	assert.Empty(t, result.Report.Committed)
}
