package app

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "SETUPGRID_"

// settingsFile is the TOML layout of a settings file. Pointer fields tell
// an absent key apart from a zero value.
type settingsFile struct {
	ModelPaths          []string `toml:"model_paths"`
	LogLevel            *string  `toml:"log_level"`
	LogFormat           *string  `toml:"log_format"`
	HealthcheckPort     *int     `toml:"healthcheck_port"`
	RevertOrderingNames *bool    `toml:"revert_ordering_names"`
	Store               *struct {
		Backend *string `toml:"backend"`
		Path    *string `toml:"path"`
		DSN     *string `toml:"dsn"`
		S3      *struct {
			Endpoint  *string `toml:"endpoint"`
			Region    *string `toml:"region"`
			AccessKey *string `toml:"access_key"`
			SecretKey *string `toml:"secret_key"`
			Bucket    *string `toml:"bucket"`
			Prefix    *string `toml:"prefix"`
			UseSSL    *bool   `toml:"use_ssl"`
		} `toml:"s3"`
	} `toml:"store"`
}

// ParseSettings overlays the TOML settings in data onto cfg. Unknown keys
// are rejected. Relative model and store paths are resolved against the
// directory of source.
func ParseSettings(cfg *Config, data []byte, source string) error {
	var s settingsFile
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&s); err != nil {
		return fmt.Errorf("invalid settings file %s: %w", source, err)
	}

	base := filepath.Dir(source)
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}

	for _, p := range s.ModelPaths {
		cfg.ModelPaths = append(cfg.ModelPaths, resolve(p))
	}
	setString(&cfg.LogLevel, s.LogLevel)
	setString(&cfg.LogFormat, s.LogFormat)
	if s.HealthcheckPort != nil {
		cfg.HealthcheckPort = *s.HealthcheckPort
	}
	if s.RevertOrderingNames != nil {
		cfg.RevertOrderingNames = *s.RevertOrderingNames
	}
	if st := s.Store; st != nil {
		setString(&cfg.Store.Backend, st.Backend)
		if st.Path != nil {
			cfg.Store.Path = resolve(*st.Path)
		}
		setString(&cfg.Store.DSN, st.DSN)
		if s3 := st.S3; s3 != nil {
			setString(&cfg.Store.S3.Endpoint, s3.Endpoint)
			setString(&cfg.Store.S3.Region, s3.Region)
			setString(&cfg.Store.S3.AccessKey, s3.AccessKey)
			setString(&cfg.Store.S3.SecretKey, s3.SecretKey)
			setString(&cfg.Store.S3.Bucket, s3.Bucket)
			setString(&cfg.Store.S3.Prefix, s3.Prefix)
			if s3.UseSSL != nil {
				cfg.Store.S3.UseSSL = *s3.UseSSL
			}
		}
	}
	return nil
}

// LoadSettings reads the settings file at path and overlays it onto cfg.
func LoadSettings(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}
	return ParseSettings(cfg, data, path)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// ApplyEnv overlays SETUPGRID_* variables onto cfg. SETUPGRID_MODEL_PATHS
// is a list separated by the OS path list separator and replaces any paths
// set before.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	strs := map[string]*string{
		"LOG_LEVEL":     &cfg.LogLevel,
		"LOG_FORMAT":    &cfg.LogFormat,
		"STORE":         &cfg.Store.Backend,
		"STORE_PATH":    &cfg.Store.Path,
		"PG_DSN":        &cfg.Store.DSN,
		"S3_ENDPOINT":   &cfg.Store.S3.Endpoint,
		"S3_REGION":     &cfg.Store.S3.Region,
		"S3_ACCESS_KEY": &cfg.Store.S3.AccessKey,
		"S3_SECRET_KEY": &cfg.Store.S3.SecretKey,
		"S3_BUCKET":     &cfg.Store.S3.Bucket,
		"S3_PREFIX":     &cfg.Store.S3.Prefix,
	}
	for name, dst := range strs {
		if v, ok := get(name); ok {
			*dst = v
		}
	}

	if v, ok := get("MODEL_PATHS"); ok {
		cfg.ModelPaths = filepath.SplitList(v)
	}
	if v, ok := get("HEALTHCHECK_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sHEALTHCHECK_PORT %q: %w", EnvPrefix, v, err)
		}
		cfg.HealthcheckPort = port
	}
	bools := map[string]*bool{
		"REVERT_NAMES": &cfg.RevertOrderingNames,
		"S3_USE_SSL":   &cfg.Store.S3.UseSSL,
	}
	for name, dst := range bools {
		if v, ok := get(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s %q: %w", EnvPrefix, name, v, err)
			}
			*dst = b
		}
	}
	return nil
}
