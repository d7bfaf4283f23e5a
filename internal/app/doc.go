// Package app wires the setupgrid application together: it loads the model
// files, builds handlers from the registered modules, opens the version
// store and drives a setup run. It is decoupled from any entrypoint; the
// CLI only fills a Config and calls into it.
package app
