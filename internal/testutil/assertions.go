package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// AssertStepRan checks the log output within a HarnessResult to confirm that
// a step of an item completed.
func AssertStepRan(t *testing.T, result *HarnessResult, itemName, step string) {
	t.Helper()
	expected := fmt.Sprintf("item=%s step=%s handlers=", itemName, step)
	require.True(t,
		strings.Contains(result.LogOutput, expected),
		"expected step %s of %q to have completed", step, itemName,
	)
}

// AssertInstallSkipped checks that the install of an item was skipped
// because its stored version is current.
func AssertInstallSkipped(t *testing.T, result *HarnessResult, itemName string) {
	t.Helper()
	expected := fmt.Sprintf(`msg="Install skipped, stored version is current." phase=install item=%s step=Install`, itemName)
	require.True(t,
		strings.Contains(result.LogOutput, expected),
		"expected the install of %q to be skipped", itemName,
	)
}
