package cmd

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/apilens/apilens/internal/config"
	apperrors "github.com/apilens/apilens/internal/errors"
	"github.com/apilens/apilens/internal/observability"
)

const (
	binaryName  = "apilens"
	description = "Universal API connector and auto-discovery engine"
)

var (
	cfgFile     string
	envFile     string
	verbose     bool
	metricsFlag bool

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   binaryName,
	Short: description,
	Long: binaryName + ` - ` + description + `

Connect to predefined, custom or discovered APIs, send single or batched
requests with retries and rate limiting, and probe unknown base URLs for
OpenAPI, Swagger or GraphQL descriptions.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setupCommand,
	PersistentPostRunE: teardownCommand,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	ctx := apperrors.WithCorrelationID(context.Background(), apperrors.NewCorrelationID())
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return apperrors.FromError(ctx, err)
	}
	return nil
}

func init() {
	// Disable global telemetry early so library defaults never write metrics
	// to stdout. --metrics enables a Prometheus exporter later.
	disabledConfig := &telemetry.Config{Enabled: false}
	if sys, err := telemetry.NewSystem(disabledConfig); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/apilens/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load credential environment variables from this file (default ./.env when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	rootCmd.PersistentFlags().BoolVar(&metricsFlag, "metrics", false, "expose Prometheus metrics while the command runs")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("metrics.enabled", rootCmd.PersistentFlags().Lookup("metrics"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// Initialize CLI logger early so we can use it in config loading
	observability.InitCLILogger(binaryName, verbose)

	loadEnvFile()

	if cfgFile != "" {
		// Use config file from flag
		viper.SetConfigFile(cfgFile)
	} else {
		for _, dir := range config.DefaultConfigDirs() {
			viper.AddConfigPath(dir)
		}
		viper.SetConfigName("config")

		// Also search in current directory
		viper.AddConfigPath("./config")
		viper.SetConfigType("yaml")
	}

	// APILENS_CONNECTOR_DEFAULT_TIMEOUT style variables map onto nested keys
	viper.SetEnvPrefix(strings.TrimSuffix(config.EnvPrefix, "_"))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		observability.CLILogger.Debug("Using config file", zap.String("path", viper.ConfigFileUsed()))
	} else {
		// It's OK if config file doesn't exist, we have defaults
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			observability.CLILogger.Debug("No config file found, using defaults and environment variables")
		} else if cfgFile != "" {
			ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Failed to read config file", err)
		} else {
			observability.CLILogger.Warn("Error reading config file", zap.Error(err))
		}
	}

	// Set defaults
	setDefaults()
}

func loadEnvFile() {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Failed to load env file", err)
		}
		return
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			observability.CLILogger.Warn("Failed to load .env", zap.Error(err))
		}
	}
}

// setDefaults registers every built-in setting with viper so AutomaticEnv
// can resolve nested keys.
func setDefaults() {
	setDefaultsFrom("", config.Defaults())
}

func setDefaultsFrom(prefix string, values map[string]any) {
	for key, value := range values {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			setDefaultsFrom(path, nested)
			continue
		}
		viper.SetDefault(path, value)
	}
}

// loadConfig decodes viper settings over the built-in defaults.
func loadConfig(ctx context.Context) (*config.Config, error) {
	settings := viper.AllSettings()
	delete(settings, "verbose")
	return config.Load(ctx, settings, runtimeOverrides())
}

func runtimeOverrides() map[string]any {
	overrides := map[string]any{}
	if verbose {
		overrides["logging"] = map[string]any{"level": "debug"}
	}
	if metricsFlag {
		overrides["metrics"] = map[string]any{"enabled": true}
	}
	return overrides
}

func setupCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Invalid configuration", apperrors.NewConfigInvalidError(err.Error()))
	}

	if strings.EqualFold(cfg.Logging.Profile, "structured") {
		observability.InitStructuredLogger(binaryName, cfg.Logging.Level, map[string]any{
			"command": cmd.CommandPath(),
		})
	} else if !verbose {
		observability.ApplyCLILevel(binaryName, cfg.Logging.Level)
	}

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(binaryName, cfg.Metrics.Port); err != nil {
			observability.CLILogger.Warn("Failed to start metrics exporter", zap.Error(err))
		} else {
			observability.CLILogger.Info("Metrics exporter started", zap.Int("port", observability.GetMetricsPort()))
		}
	}
	return nil
}

func teardownCommand(cmd *cobra.Command, args []string) error {
	if err := observability.StopMetrics(); err != nil {
		observability.CLILogger.Debug("Failed to stop metrics exporter", zap.Error(err))
	}
	return nil
}
