package integration_tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/setupgrid/internal/driver"
	"github.com/vk/setupgrid/internal/registry"
	"github.com/vk/setupgrid/internal/testutil"
)

// Test for: a container runs its main step before its children and its
// content step after them, in every phase.
func TestDependency_ContainerBracketsChildren(t *testing.T) {
	t.Parallel()

	files := map[string]string{"app.hcl": `
container "App" {
  version = "1.0"
  handler "record" {}
}
item "A" {
  container = "App"
  handler "record" {}
}
item "B" {
  container = "App"
  handler "record" {}
}
item "Z" {
  requires = ["App"]
  handler "record" {}
}
`}
	rec := &testutil.RecorderModule{}
	result := testutil.RunIntegrationTest(t, files, rec)

	require.NoError(t, result.Err)
	assert.Equal(t, []string{"App.Head", "A", "B", "App", "Z"}, result.Report.Order)
	for _, phase := range []driver.Step{driver.StepInit, driver.StepInstall, driver.StepSettle} {
		assert.Equal(t, []string{"App", "A", "B", "Z"}, rec.CallsFor(phase), phase.String())
		assert.Equal(t, []string{"App"}, rec.CallsFor(phase.Content()), phase.Content().String())
	}
}

// Test for: a group settles after all of its members, declared from either side.
func TestDependency_GroupWaitsForMembers(t *testing.T) {
	t.Parallel()

	files := map[string]string{"release.hcl": `
group "Release" {
  children = ["B", "A"]
}
item "A" {}
item "B" {}
item "Zed" {
  groups = ["Release"]
}
item "C" {
  requires = ["Release"]
}
`}
	result := testutil.RunIntegrationTest(t, files)

	require.NoError(t, result.Err)
	assert.Equal(t, []string{"A", "B", "Zed", "Release", "C"}, result.Report.Order)
}

// Test for: required_by puts the declaring item first, and unknown
// required_by targets are dropped.
func TestDependency_RequiredByInvertsEdge(t *testing.T) {
	t.Parallel()

	files := map[string]string{"schema.hcl": `
item "Schema" {
  required_by = ["App", "Legacy"]
}
item "App" {}
`}
	result := testutil.RunIntegrationTest(t, files)

	require.NoError(t, result.Err)
	assert.Equal(t, []string{"Schema", "App"}, result.Report.Order)
	require.Len(t, result.Report.Sort.DroppedOptional, 1)
	assert.Equal(t, "Legacy", result.Report.Sort.DroppedOptional[0].Name)
}

// Test for: a specialization comes after its generalization.
func TestDependency_GeneralizationComesFirst(t *testing.T) {
	t.Parallel()

	files := map[string]string{"types.hcl": `
item "Zbase" {}
item "Aspecial" {
  generalization = "Zbase"
}
`}
	result := testutil.RunIntegrationTest(t, files)

	require.NoError(t, result.Err)
	assert.Equal(t, []string{"Zbase", "Aspecial"}, result.Report.Order)
}

// Test for: references by a previous name resolve to the renamed item, unless
// the reference asks for a newer version than the rename covers.
func TestDependency_PreviousNameResolvesRenamedItem(t *testing.T) {
	t.Parallel()

	customers := `
item "Customers" {
  version = "2.0"
  previous_name "Clients" {
    version = "1.0"
  }
}
`
	result := testutil.RunIntegrationTest(t, map[string]string{
		"customers.hcl": customers,
		"invoices.hcl":  `item "Invoices" { requires = ["Clients"] }`,
	})
	require.NoError(t, result.Err)
	assert.Equal(t, []string{"Customers", "Invoices"}, result.Report.Order)

	result = testutil.RunIntegrationTest(t, map[string]string{
		"customers.hcl": customers,
		"invoices.hcl":  `item "Invoices" { requires = ["Clients@1.5"] }`,
	})
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), `requires reference "Clients" does not resolve`)
}

// Test for: reverted name ordering reverses ties without breaking dependencies.
func TestDependency_RevertNamesReversesTies(t *testing.T) {
	t.Parallel()

	h := testutil.NewHarness(t, map[string]string{"abc.hcl": `
item "A" {}
item "B" {}
item "C" {}
item "D" { requires = ["C"] }
`}, func() []registry.Module { return nil })

	result := h.Run(context.Background())
	require.NoError(t, result.Err)
	assert.Equal(t, []string{"A", "B", "C", "D"}, result.Report.Order)

	h.RevertOrderingNames = true
	result = h.Run(context.Background())
	require.NoError(t, result.Err)
	assert.Equal(t, []string{"C", "B", "A", "D"}, result.Report.Order)
}
