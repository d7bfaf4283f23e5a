// Package versionstore persists the last committed version of every item.
//
// # Purpose
//
// The setup center reads the stored version of each item when it creates
// the item's driver, and writes the declared version back once the item was
// installed successfully. Equal stored and declared versions make the next
// run skip Install for that item.
//
// # Backends
//
//   - Memory: sync.Map backed, for tests and dry runs
//   - File: a single JSON document on local disk
//   - Postgres: a table accessed through the pgx database/sql driver
//   - S3: one small object per item in an S3 compatible bucket
//
// Keys are (item type, full name) pairs. Writes are independent per key;
// there is no transaction spanning several items.
package versionstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vk/setupgrid/internal/semver"
)

// Repository maps (item type, full name) to the last committed version.
type Repository interface {
	// GetVersion returns the zero Version when nothing was stored.
	GetVersion(ctx context.Context, itemType, fullName string) (semver.Version, error)
	SetVersion(ctx context.Context, itemType, fullName string, v semver.Version) error
}

// Lister is implemented by repositories that can enumerate their content.
type Lister interface {
	List(ctx context.Context) ([]Record, error)
}

// Record is one stored version.
type Record struct {
	ItemType string         `json:"item_type"`
	FullName string         `json:"full_name"`
	Version  semver.Version `json:"version"`
}

// Key returns the flat key of a record.
func Key(itemType, fullName string) string {
	return itemType + "/" + fullName
}

var errEmptyKey = errors.New("versionstore: item type and full name are required")

func checkKey(itemType, fullName string) error {
	if strings.TrimSpace(itemType) == "" || strings.TrimSpace(fullName) == "" {
		return errEmptyKey
	}
	return nil
}

func checkVersion(v semver.Version) error {
	if v.IsZero() {
		return errors.New("versionstore: cannot store an empty version")
	}
	return nil
}

// Backend names accepted by Config.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	// File backend.
	Path string
	// Postgres backend.
	DSN string
	// S3 backend.
	S3 S3Config
}

// Open creates the repository described by cfg.
func Open(ctx context.Context, cfg Config) (Repository, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		return NewFile(cfg.Path)
	case BackendPostgres:
		return NewPostgres(ctx, cfg.DSN)
	case BackendS3:
		return NewS3(cfg.S3)
	}
	return nil, fmt.Errorf("versionstore: unknown backend %q", cfg.Backend)
}

// Close releases resources held by repo, if it holds any.
func Close(repo Repository) error {
	if c, ok := repo.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
