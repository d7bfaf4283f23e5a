package app

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vk/setupgrid/internal/versionstore"
)

// DefaultStorePath is where the file backend keeps versions unless told otherwise.
var DefaultStorePath = filepath.Join(".setupgrid", "versions.json")

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ModelPaths []string // .hcl, .yaml and .yml files or directories

	LogFormat       string
	LogLevel        string
	HealthcheckPort int

	// RevertOrderingNames sorts same-rank items by descending name.
	RevertOrderingNames bool

	Store versionstore.Config
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() Config {
	return Config{
		LogFormat: "text",
		LogLevel:  "info",
		Store: versionstore.Config{
			Backend: versionstore.BackendFile,
			Path:    DefaultStorePath,
		},
	}
}

// NewConfig validates cfg and returns a normalized copy.
func NewConfig(cfg Config) (*Config, error) {
	var errs []error
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	switch cfg.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", cfg.LogFormat))
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn' or 'error'", cfg.LogLevel))
	}

	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid healthcheck port %d", cfg.HealthcheckPort))
	}

	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	switch cfg.Store.Backend {
	case versionstore.BackendMemory:
	case "", versionstore.BackendFile:
		cfg.Store.Backend = versionstore.BackendFile
		if cfg.Store.Path == "" {
			cfg.Store.Path = DefaultStorePath
		}
	case versionstore.BackendPostgres:
		if cfg.Store.DSN == "" {
			errs = append(errs, errors.New("the postgres store requires a DSN"))
		}
	case versionstore.BackendS3:
		if cfg.Store.S3.Endpoint == "" || cfg.Store.S3.Bucket == "" {
			errs = append(errs, errors.New("the s3 store requires an endpoint and a bucket"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", cfg.Store.Backend))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &cfg, nil
}
