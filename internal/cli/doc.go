// Package cli is the command-line surface of setupgrid. It builds the cobra
// command tree, resolves the app configuration from flags, SETUPGRID_*
// variables, an optional .env file and an optional TOML settings file, and
// maps failures to process exit codes.
package cli
