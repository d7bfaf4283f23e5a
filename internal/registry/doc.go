// Package registry provides the central "glue" for the module system.
//
// The Registry stores the mapping between the handler names used in model
// files (handler "print" { ... }) and the compiled Go code that builds a
// driver.Handler from the declared arguments. Modules register themselves
// at startup; the registry is then validated so that a handler whose input
// struct cannot be decoded is caught before any item runs.
package registry
