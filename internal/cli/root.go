package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aqasim81/data-migration-runner/internal/config"
	"github.com/aqasim81/data-migration-runner/internal/logging"
)

const version = "0.1.0"

// AppConfig holds the loaded configuration, set during PersistentPreRunE.
var AppConfig *config.Config //nolint:gochecknoglobals // standard Cobra pattern for shared config

// rootCmd is the base command for the migrate CLI.
var rootCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:     "migrate",
	Version: version,
	Short:   "One-shot data migration runner",
	Long: `migrate executes registered data migrations exactly once per
environment, records every execution with its outcome, writes a log file per
run, and can verify or roll back completed migrations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}

		if _, err := logging.Setup(AppConfig.LogLevel, AppConfig.LogFormat); err != nil {
			return fmt.Errorf("configuring logging: %w", err)
		}

		return nil
	},
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	rootCmd.PersistentFlags().String("config", "migrate.yml", "path to configuration file")
	rootCmd.PersistentFlags().String("database-url", "", "PostgreSQL connection string")
	rootCmd.PersistentFlags().String("store", "", "record store backend (postgres, sqlite, memory)")
	rootCmd.PersistentFlags().String("migrations-dir", "", "path to SQL migration files")
	rootCmd.PersistentFlags().String("log-dir", "", "directory for per-run log files")
	rootCmd.PersistentFlags().String("environment", "", "environment the migrations run in")
	rootCmd.PersistentFlags().String("executed-by", "", "who is running the migrations")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("verbose", false, "write debug lines to migration log files")
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads configuration with precedence: flag > env > file.
func loadConfig(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")
	allowMissing := !cmd.Flags().Changed("config")

	cfg, err := config.Load(configPath, allowMissing)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	config.MergeEnv(cfg)
	mergeFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	AppConfig = cfg

	return nil
}

// mergeFlags overrides config with explicitly-set CLI flags.
func mergeFlags(cmd *cobra.Command, cfg *config.Config) {
	overrides := []struct {
		flag  string
		field *string
	}{
		{"database-url", &cfg.DatabaseURL},
		{"store", &cfg.Store},
		{"migrations-dir", &cfg.MigrationsDir},
		{"log-dir", &cfg.LogDir},
		{"environment", &cfg.Environment},
		{"executed-by", &cfg.ExecutedBy},
		{"log-level", &cfg.LogLevel},
	}

	for _, o := range overrides {
		if cmd.Flags().Changed(o.flag) {
			*o.field, _ = cmd.Flags().GetString(o.flag)
		}
	}
}
