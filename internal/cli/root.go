package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vk/setupgrid/internal/app"
)

// DefaultSettingsFile is read from the working directory when no settings
// file is named.
const DefaultSettingsFile = "setupgrid.toml"

// options holds the persistent flags and the process surroundings shared by
// every command.
type options struct {
	stdout io.Writer
	stderr io.Writer
	// lookupEnv defaults to os.LookupEnv.
	lookupEnv func(string) (string, bool)
	// newApp defaults to an app with the core modules.
	newApp func(cfg *app.Config) *app.App

	configPath string
	envFile    string

	logLevel        string
	logFormat       string
	healthcheckPort int
	revertNames     bool

	store     string
	storePath string
	pgDSN     string

	s3Endpoint  string
	s3Region    string
	s3AccessKey string
	s3SecretKey string
	s3Bucket    string
	s3Prefix    string
	s3UseSSL    bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	return newRootCmdWith(&options{stdout: stdout, stderr: stderr})
}

func newRootCmdWith(o *options) *cobra.Command {
	if o.lookupEnv == nil {
		o.lookupEnv = os.LookupEnv
	}
	if o.newApp == nil {
		o.newApp = func(cfg *app.Config) *app.App {
			return app.NewApp(o.stderr, cfg, app.CoreModules(o.stdout)...)
		}
	}

	cmd := &cobra.Command{
		Use:   "setupgrid",
		Short: "Declarative, version-aware setup of dependent items",
		Long: `setupgrid reads item declarations from .hcl and .yaml files, orders them by
their dependencies and drives every item through Init, Install and Settle.
Items whose declared version is already stored skip Install.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	f := cmd.PersistentFlags()
	f.StringVar(&o.configPath, "config", "", "Settings file (TOML). Defaults to ./"+DefaultSettingsFile+" when present.")
	f.StringVar(&o.envFile, "env-file", "", "Dotenv file to read SETUPGRID_* variables from. Defaults to ./.env when present.")
	f.StringVar(&o.logLevel, "log-level", "info", "Logging level: 'debug', 'info', 'warn' or 'error'.")
	f.StringVar(&o.logFormat, "log-format", "text", "Log output format: 'text' or 'json'.")
	f.IntVar(&o.healthcheckPort, "healthcheck-port", 0, "Port for the health check and metrics server. 0 is disabled.")
	f.BoolVar(&o.revertNames, "revert-names", false, "Order same-rank items by descending name.")
	f.StringVar(&o.store, "store", "file", "Version store backend: 'file', 'memory', 'postgres' or 's3'.")
	f.StringVar(&o.storePath, "store-path", app.DefaultStorePath, "File backend: path of the versions document.")
	f.StringVar(&o.pgDSN, "pg-dsn", "", "Postgres backend: connection string.")
	f.StringVar(&o.s3Endpoint, "s3-endpoint", "", "S3 backend: endpoint host[:port].")
	f.StringVar(&o.s3Region, "s3-region", "", "S3 backend: region.")
	f.StringVar(&o.s3AccessKey, "s3-access-key", "", "S3 backend: access key.")
	f.StringVar(&o.s3SecretKey, "s3-secret-key", "", "S3 backend: secret key.")
	f.StringVar(&o.s3Bucket, "s3-bucket", "", "S3 backend: bucket.")
	f.StringVar(&o.s3Prefix, "s3-prefix", "", "S3 backend: object key prefix.")
	f.BoolVar(&o.s3UseSSL, "s3-use-ssl", false, "S3 backend: use TLS.")

	cmd.AddCommand(newRunCmd(o), newPlanCmd(o), newVersionsCmd(o))
	return cmd
}

// resolveConfig builds the app configuration. Later sources win: defaults,
// the settings file, the environment (the dotenv file filling in unset
// variables), flags set on the command line, then model path arguments.
func (o *options) resolveConfig(cmd *cobra.Command, modelPaths []string) (*app.Config, error) {
	cfg := app.DefaultConfig()

	lookup, err := o.envLookup()
	if err != nil {
		return nil, usageError(err)
	}

	settings := o.configPath
	if settings == "" {
		if v, ok := lookup(app.EnvPrefix + "CONFIG"); ok && v != "" {
			settings = v
		} else if _, err := os.Stat(DefaultSettingsFile); err == nil {
			settings = DefaultSettingsFile
		}
	}
	if settings != "" {
		if err := app.LoadSettings(&cfg, settings); err != nil {
			return nil, usageError(err)
		}
	}

	if err := app.ApplyEnv(&cfg, lookup); err != nil {
		return nil, usageError(err)
	}
	o.applyFlags(cmd, &cfg)
	if len(modelPaths) > 0 {
		cfg.ModelPaths = modelPaths
	}

	valid, err := app.NewConfig(cfg)
	if err != nil {
		return nil, usageError(err)
	}
	return valid, nil
}

// envLookup layers the dotenv file under the process environment.
func (o *options) envLookup() (func(string) (string, bool), error) {
	var fileEnv map[string]string
	switch {
	case o.envFile != "":
		env, err := godotenv.Read(o.envFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read env file: %w", err)
		}
		fileEnv = env
	default:
		env, err := godotenv.Read()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read .env: %w", err)
		}
		fileEnv = env
	}
	return func(key string) (string, bool) {
		if v, ok := o.lookupEnv(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}, nil
}

func (o *options) applyFlags(cmd *cobra.Command, cfg *app.Config) {
	flags := cmd.Flags()
	strs := []struct {
		name string
		src  string
		dst  *string
	}{
		{"log-level", o.logLevel, &cfg.LogLevel},
		{"log-format", o.logFormat, &cfg.LogFormat},
		{"store", o.store, &cfg.Store.Backend},
		{"store-path", o.storePath, &cfg.Store.Path},
		{"pg-dsn", o.pgDSN, &cfg.Store.DSN},
		{"s3-endpoint", o.s3Endpoint, &cfg.Store.S3.Endpoint},
		{"s3-region", o.s3Region, &cfg.Store.S3.Region},
		{"s3-access-key", o.s3AccessKey, &cfg.Store.S3.AccessKey},
		{"s3-secret-key", o.s3SecretKey, &cfg.Store.S3.SecretKey},
		{"s3-bucket", o.s3Bucket, &cfg.Store.S3.Bucket},
		{"s3-prefix", o.s3Prefix, &cfg.Store.S3.Prefix},
	}
	for _, s := range strs {
		if flags.Changed(s.name) {
			*s.dst = s.src
		}
	}
	if flags.Changed("healthcheck-port") {
		cfg.HealthcheckPort = o.healthcheckPort
	}
	if flags.Changed("revert-names") {
		cfg.RevertOrderingNames = o.revertNames
	}
	if flags.Changed("s3-use-ssl") {
		cfg.Store.S3.UseSSL = o.s3UseSSL
	}
}
