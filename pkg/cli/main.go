// Package cli builds the userdir command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nimburion/userdirectory/pkg/config"
	"github.com/nimburion/userdirectory/pkg/directory"
	"github.com/nimburion/userdirectory/pkg/observability/logger"
	"github.com/nimburion/userdirectory/pkg/store"
	"github.com/nimburion/userdirectory/pkg/version"
)

// BackendFactory builds a disconnected backend from storage configuration.
type BackendFactory func(cfg config.StorageConfig, log logger.Logger) (directory.Backend, error)

// Options configures NewRootCommand.
type Options struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string

	// NewBackend replaces store.NewBackend.
	NewBackend BackendFactory
}

type rootFlags struct {
	configPath   string
	envPrefix    string
	secretFile   string
	serviceName  string
	printMetrics bool
}

// NewRootCommand creates the CLI with version, demo, users, healthcheck and
// config subcommands.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Name == "" {
		opts.Name = "userdir"
	}
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = config.DefaultEnvPrefix
	}
	if opts.NewBackend == nil {
		opts.NewBackend = store.NewBackend
	}

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := &rootFlags{}
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config-file", "c", opts.ConfigPath, "config file path")
	pf.StringVar(&flags.envPrefix, "env-prefix", opts.EnvPrefix, "environment variable prefix")
	pf.StringVar(&flags.secretFile, "secret-file", "", "path to secrets file (sets <PREFIX>_SECRETS_FILE)")
	pf.StringVar(&flags.serviceName, "service-name", "", "service name override")
	pf.BoolVar(&flags.printMetrics, "print-metrics", false, "write collected metrics to stderr on exit")
	config.RegisterFlags(pf)

	env := &environment{opts: opts, flags: flags}

	rootCmd.AddCommand(
		newVersionCommand(opts.Name),
		newDemoCommand(env),
		newUsersCommand(env),
		newHealthcheckCommand(env),
		newConfigCommand(env),
	)
	return rootCmd
}

func newVersionCommand(name string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			info := version.Current(name)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Service:    %s\n", info.Service)
			fmt.Fprintf(out, "Version:    %s\n", info.Version)
			fmt.Fprintf(out, "Commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "Build Time: %s\n", info.BuildTime)
			fmt.Fprintf(out, "Go:         %s\n", info.GoVersion)
		},
	}
}

// Execute runs the command and exits non-zero on failure.
func Execute(cmd *cobra.Command) {
	ctx := context.Background()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves configuration with secrets. The second value holds only
// the secrets file contents.
func (e *environment) loadConfig(flagSet *pflag.FlagSet) (*config.Config, *config.Config, error) {
	if err := applySecretFileFlag(e.flags.envPrefix, e.flags.secretFile); err != nil {
		return nil, nil, err
	}
	cfg, secrets, err := config.NewViperLoader(e.flags.configPath, e.flags.envPrefix).
		WithFlags(flagSet).
		LoadWithSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Name = resolveServiceNameValue(cfg.Service.Name, e.opts.Name, e.flags.serviceName)
	return cfg, secrets, nil
}

func newLogger(cfg *config.Config, out io.Writer) (logger.Logger, error) {
	level, err := logger.ParseLogLevel(cfg.Observability.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := logger.ParseLogFormat(cfg.Observability.LogFormat)
	if err != nil {
		return nil, err
	}
	log, err := logger.NewZapLogger(logger.Config{Level: level, Format: format, Output: out})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	logConfigIfDebug(log, cfg)
	return log.With("service", cfg.Service.Name), nil
}

func applySecretFileFlag(envPrefix, secretFilePath string) error {
	if secretFilePath == "" {
		return nil
	}
	info, err := os.Stat(secretFilePath)
	if err != nil {
		return fmt.Errorf("secret file %s is not accessible: %w", secretFilePath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("secret file %s must not be a directory", secretFilePath)
	}
	return os.Setenv(resolveEnvPrefix(envPrefix)+"_SECRETS_FILE", filepath.Clean(secretFilePath))
}

func logConfigIfDebug(log logger.Logger, cfg *config.Config) {
	if !strings.EqualFold(cfg.Observability.LogLevel, string(logger.DebugLevel)) {
		return
	}
	log.Debug("effective configuration", "config", cfg.Redacted(nil))
}

func resolveEnvPrefix(prefix string) string {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		return config.DefaultEnvPrefix
	}
	return strings.ToUpper(trimmed)
}

func resolveServiceNameValue(currentConfigName, defaultServiceName, serviceNameOverride string) string {
	if override := strings.TrimSpace(serviceNameOverride); override != "" {
		return override
	}
	if configured := strings.TrimSpace(currentConfigName); configured != "" {
		return configured
	}
	if fallback := strings.TrimSpace(defaultServiceName); fallback != "" {
		return fallback
	}
	return "userdir"
}
