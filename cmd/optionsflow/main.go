package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"optionsflow/config"
	"optionsflow/logger"
	"optionsflow/models"
)

var (
	configPath string
	envFile    string
)

// rootCmd is the base command for the optionsflow CLI
var rootCmd = &cobra.Command{
	Use:   "optionsflow",
	Short: "Options chain moneyness and expiry analysis",
	Long: `optionsflow loads option-chain snapshots, drops invalid quotes, tags every
contract with its moneyness and days-to-expiry bucket and summarises the
implied volatility and greeks of each group.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadEnvFile,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to environment file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.GetLogger().WithComponent("main").WithError(err).Error("command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for unusable input and 1 for every other failure.
func exitCode(err error) int {
	var inputErr *models.InputError
	if errors.As(err, &inputErr) {
		return 2
	}
	return 1
}

func loadEnvFile(cmd *cobra.Command, args []string) error {
	if envFile == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		if errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("env-file") {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}
	return nil
}

// loadConfig reads the configuration file. Without an explicit --config a
// missing default file falls back to built-in defaults, except in
// production-like environments.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path := config.ResolvePath(configPath)
	explicit := cmd.Flags().Changed("config")

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !explicit {
		env := config.AppEnvironment()
		if config.IsProductionLike(env) {
			return nil, path, fmt.Errorf("configuration file %s is required when APP_ENV=%s", path, env)
		}
		cfg := config.Default()
		if err := config.ApplyEnv(cfg); err != nil {
			return nil, "", err
		}
		if err := config.Validate(cfg); err != nil {
			return nil, "", fmt.Errorf("configuration validation failed: %w", err)
		}
		return cfg, "", nil
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func configureLogger(cfg *config.Config) (*logger.Log, error) {
	log := logger.GetLogger()
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		return nil, fmt.Errorf("failed to configure logger: %w", err)
	}
	return log, nil
}
