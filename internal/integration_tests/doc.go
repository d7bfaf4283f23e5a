// Package integration_tests holds end-to-end tests that run complete models
// through the app: loading, sorting, driving and version bookkeeping. Each
// subdirectory groups the tests of one behaviour.
package integration_tests
