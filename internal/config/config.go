package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Record store backends.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// Default values for configuration fields.
const (
	DefaultStore            = StoreSQLite
	DefaultSQLitePath       = "./data_migrations.db"
	DefaultMigrationsDir    = "./migrations"
	DefaultLogDir           = "./logs/migrations"
	DefaultEnvironment      = "development"
	DefaultBatchSize        = 1000
	DefaultLockTimeout      = 5 * time.Second
	DefaultStatementTimeout = 10 * time.Minute
	DefaultHTTPAddr         = ":8080"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "console"
)

// ErrInvalidConfig indicates a configuration that cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the application configuration loaded from file, environment, and flags.
type Config struct {
	DatabaseURL      string
	Store            string
	SQLitePath       string
	MigrationsDir    string
	LogDir           string
	Environment      string
	ExecutedBy       string
	BatchSize        int
	LockTimeout      time.Duration
	StatementTimeout time.Duration
	HTTPAddr         string
	APISecret        string
	LogLevel         string
	LogFormat        string
}

// yamlConfig is the raw YAML file representation with string durations.
type yamlConfig struct {
	DatabaseURL      string `yaml:"database_url"`
	Store            string `yaml:"store"`
	SQLitePath       string `yaml:"sqlite_path"`
	MigrationsDir    string `yaml:"migrations_dir"`
	LogDir           string `yaml:"log_dir"`
	Environment      string `yaml:"environment"`
	ExecutedBy       string `yaml:"executed_by"`
	BatchSize        int    `yaml:"batch_size"`
	LockTimeout      string `yaml:"lock_timeout"`
	StatementTimeout string `yaml:"statement_timeout"`
	HTTPAddr         string `yaml:"http_addr"`
	APISecret        string `yaml:"api_secret"`
	LogLevel         string `yaml:"log_level"`
	LogFormat        string `yaml:"log_format"`
}

// New returns a Config populated with default values.
func New() *Config {
	return &Config{
		Store:            DefaultStore,
		SQLitePath:       DefaultSQLitePath,
		MigrationsDir:    DefaultMigrationsDir,
		LogDir:           DefaultLogDir,
		Environment:      DefaultEnvironment,
		BatchSize:        DefaultBatchSize,
		LockTimeout:      DefaultLockTimeout,
		StatementTimeout: DefaultStatementTimeout,
		HTTPAddr:         DefaultHTTPAddr,
		LogLevel:         DefaultLogLevel,
		LogFormat:        DefaultLogFormat,
	}
}

// Load reads a YAML configuration file and returns a Config.
// If allowMissing is true and the file does not exist, defaults are returned.
func Load(path string, allowMissing bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return New(), nil
		}

		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return fromYAML(&raw)
}

// fromYAML converts the raw YAML representation to a Config with defaults applied.
func fromYAML(raw *yamlConfig) (*Config, error) {
	cfg := New()

	setString(&cfg.DatabaseURL, raw.DatabaseURL)
	setString(&cfg.Store, raw.Store)
	setString(&cfg.SQLitePath, raw.SQLitePath)
	setString(&cfg.MigrationsDir, raw.MigrationsDir)
	setString(&cfg.LogDir, raw.LogDir)
	setString(&cfg.Environment, raw.Environment)
	setString(&cfg.ExecutedBy, raw.ExecutedBy)
	setString(&cfg.HTTPAddr, raw.HTTPAddr)
	setString(&cfg.APISecret, raw.APISecret)
	setString(&cfg.LogLevel, raw.LogLevel)
	setString(&cfg.LogFormat, raw.LogFormat)

	if raw.BatchSize != 0 {
		cfg.BatchSize = raw.BatchSize
	}

	if raw.LockTimeout != "" {
		d, err := time.ParseDuration(raw.LockTimeout)
		if err != nil {
			return nil, fmt.Errorf("parsing lock_timeout %q: %w", raw.LockTimeout, err)
		}

		cfg.LockTimeout = d
	}

	if raw.StatementTimeout != "" {
		d, err := time.ParseDuration(raw.StatementTimeout)
		if err != nil {
			return nil, fmt.Errorf("parsing statement_timeout %q: %w", raw.StatementTimeout, err)
		}

		cfg.StatementTimeout = d
	}

	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// MergeEnv overrides config fields from MIGRATE_* environment variables.
// Unparseable numbers and durations are ignored.
func MergeEnv(cfg *Config) {
	setString(&cfg.DatabaseURL, os.Getenv("MIGRATE_DATABASE_URL"))
	setString(&cfg.Store, os.Getenv("MIGRATE_STORE"))
	setString(&cfg.SQLitePath, os.Getenv("MIGRATE_SQLITE_PATH"))
	setString(&cfg.MigrationsDir, os.Getenv("MIGRATE_MIGRATIONS_DIR"))
	setString(&cfg.LogDir, os.Getenv("MIGRATE_LOG_DIR"))
	setString(&cfg.Environment, os.Getenv("MIGRATE_ENVIRONMENT"))
	setString(&cfg.ExecutedBy, os.Getenv("MIGRATE_EXECUTED_BY"))
	setString(&cfg.HTTPAddr, os.Getenv("MIGRATE_HTTP_ADDR"))
	setString(&cfg.APISecret, os.Getenv("MIGRATE_API_SECRET"))
	setString(&cfg.LogLevel, os.Getenv("MIGRATE_LOG_LEVEL"))
	setString(&cfg.LogFormat, os.Getenv("MIGRATE_LOG_FORMAT"))

	if v := os.Getenv("MIGRATE_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BatchSize = n
		}
	}

	if v := os.Getenv("MIGRATE_LOCK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LockTimeout = d
		}
	}

	if v := os.Getenv("MIGRATE_STATEMENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.StatementTimeout = d
		}
	}
}

// Validate checks the fields that must be consistent before the runner starts.
func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: store %q requires a database URL (set --database-url or MIGRATE_DATABASE_URL)",
				ErrInvalidConfig, c.Store)
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: store %q requires sqlite_path", ErrInvalidConfig, c.Store)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("%w: unknown store %q (want %s, %s or %s)",
			ErrInvalidConfig, c.Store, StorePostgres, StoreSQLite, StoreMemory)
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	}

	if c.Environment == "" {
		return fmt.Errorf("%w: environment must not be empty", ErrInvalidConfig)
	}

	return nil
}
