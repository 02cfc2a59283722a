package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nimburion/crudkit/pkg/config"
	"github.com/nimburion/crudkit/pkg/configschema"
	"github.com/nimburion/crudkit/pkg/observability/logger"
	"github.com/nimburion/crudkit/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// ServiceCommandOptions defines callbacks for service-specific logic.
type ServiceCommandOptions struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string

	// Required: server startup logic
	RunServer func(ctx context.Context, cfg *config.Config, log logger.Logger) error

	// Optional: dependency health checks
	CheckDependencies func(ctx context.Context, cfg *config.Config, log logger.Logger) error

	// Optional: custom config validation, run after the built-in validation
	ValidateConfig func(cfg *config.Config) error

	// Optional: additional custom commands
	CustomCommands []*cobra.Command
}

// NewServiceCommand creates a CLI with serve, version, healthcheck and config subcommands.
// The root command runs serve when RunServer is set.
func NewServiceCommand(opts ServiceCommandOptions) *cobra.Command {
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = config.DefaultEnvPrefix
	}

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgPath string
	var secretFilePath string
	var serviceNameOverride string
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config-file", "c", opts.ConfigPath, "config file path")
	rootCmd.PersistentFlags().StringVar(&secretFilePath, "secret-file", "", "path to secrets file (sets <PREFIX>_SECRETS_FILE)")
	rootCmd.PersistentFlags().StringVar(&serviceNameOverride, "service-name", "", "service name override")

	loadConfig := func(flags *pflag.FlagSet) (*config.Config, error) {
		if err := applySecretFileFlag(opts.EnvPrefix, secretFilePath); err != nil {
			return nil, err
		}
		cfg, err := config.NewViperLoader(cfgPath, opts.EnvPrefix).WithFlags(flags).Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if override := strings.TrimSpace(serviceNameOverride); override != "" {
			cfg.Service.Name = override
		}
		if opts.ValidateConfig != nil {
			if err := opts.ValidateConfig(cfg); err != nil {
				return nil, fmt.Errorf("custom validation failed: %w", err)
			}
		}
		return cfg, nil
	}
	loadConfigAndLogger := func(flags *pflag.FlagSet) (*config.Config, logger.Logger, error) {
		cfg, err := loadConfig(flags)
		if err != nil {
			return nil, nil, err
		}
		log, err := NewLogger(cfg)
		if err != nil {
			return nil, nil, err
		}
		logConfigIfDebug(log, cfg)
		return cfg, log, nil
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Current(opts.Name)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Service:    %s\n", info.Service)
			fmt.Fprintf(out, "Version:    %s\n", info.Version)
			fmt.Fprintf(out, "Commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "Build Time: %s\n", info.BuildTime)
			fmt.Fprintf(out, "Go:         %s\n", info.GoVersion)
		},
	})

	if opts.RunServer != nil {
		serveCmd := &cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP server",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, log, err := loadConfigAndLogger(cmd.Flags())
				if err != nil {
					return err
				}
				return opts.RunServer(cmd.Context(), cfg, log)
			},
		}
		registerOverrideFlags(serveCmd.Flags())
		registerOverrideFlags(rootCmd.Flags())
		rootCmd.AddCommand(serveCmd)
		rootCmd.RunE = serveCmd.RunE
	}

	if opts.CheckDependencies != nil {
		rootCmd.AddCommand(&cobra.Command{
			Use:   "healthcheck",
			Short: "Check connectivity to dependencies (database, cache)",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, log, err := loadConfigAndLogger(cmd.Flags())
				if err != nil {
					return err
				}
				return opts.CheckDependencies(cmd.Context(), cfg, log)
			},
		})
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(cmd.Flags()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	})

	var showSecrets bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			if !showSecrets {
				redacted := cfg.Redacted()
				cfg = &redacted
			}
			return writeYAML(cmd.OutOrStdout(), cfg)
		},
	}
	showCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "show secret values")
	configCmd.AddCommand(showCmd)

	configCmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON Schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			defaults := config.DefaultConfig()
			if opts.Name != "" {
				defaults.Service.Name = opts.Name
			}
			schema, err := configschema.BuildSchemaWithDefaults(defaults)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(schema, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal schema: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	})
	rootCmd.AddCommand(configCmd)

	for _, custom := range opts.CustomCommands {
		if custom != nil {
			rootCmd.AddCommand(custom)
		}
	}
	return rootCmd
}

// NewLogger builds the zap logger described by cfg.Observability.
func NewLogger(cfg *config.Config) (*logger.ZapLogger, error) {
	log, err := logger.NewZapLogger(logger.Config{
		Level:       logger.LogLevel(cfg.Observability.LogLevel),
		Format:      logger.LogFormat(cfg.Observability.LogFormat),
		Service:     cfg.Service.Name,
		Environment: cfg.Service.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log, nil
}

// registerOverrideFlags adds the flags the config loader maps onto configuration keys.
func registerOverrideFlags(flags *pflag.FlagSet) {
	flags.String("router", "", "router adapter (gin|gorilla)")
	flags.Int("port", 0, "HTTP port")
	flags.String("db-type", "", "document store (memory|firestore|mongodb|postgres)")
	flags.String("db-url", "", "document store connection string")
	flags.String("cache-url", "", "redis URL for the page cache")
	flags.String("log-level", "", "log level (debug|info|warn|error)")
}

func writeYAML(w io.Writer, cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = w.Write(data)
	return err
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
	return os.Setenv(strings.ToUpper(strings.TrimSpace(envPrefix))+"_SECRETS_FILE", filepath.Clean(secretFilePath))
}

// Execute runs the command and exits with appropriate code.
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func logConfigIfDebug(log logger.Logger, cfg *config.Config) {
	if !strings.EqualFold(cfg.Observability.LogLevel, string(logger.DebugLevel)) {
		return
	}
	log.Debug("effective configuration", "config", fmt.Sprintf("%+v", cfg.Redacted()))
}
