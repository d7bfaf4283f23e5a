// Package config defines the format-agnostic model of a declared item batch
// and the Loader interface that format-specific packages implement.
//
// The Model is the single source of truth for the setup center: every
// loader translates its own syntax into ItemDecl values, and Model.Items
// turns those into item.Item values ready for registration. Concrete
// loaders live in separate packages (internal/hcl, internal/yamlmodel).
package config
