// Package config loads shopload settings from a YAML file, SHOPLOAD_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "SHOPLOAD"
	ConfigName = "shopload"
)

type Config struct {
	Database Database `mapstructure:"database" yaml:"database"`
	// DataDir holds the CSV files: a local directory or s3://bucket/prefix.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
	// Compression of the CSV files: "", gz, zst or lz4.
	Compression string     `mapstructure:"compression" yaml:"compression"`
	Storage     Storage    `mapstructure:"storage" yaml:"storage"`
	Load        LoadConfig `mapstructure:"load" yaml:"load"`
	Generate    Generate   `mapstructure:"generate" yaml:"generate"`
	Log         Log        `mapstructure:"log" yaml:"log"`
}

type Database struct {
	Dialect string `mapstructure:"dialect" yaml:"dialect"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
	// DSNEnv names the environment variable read when DSN is empty.
	DSNEnv           string        `mapstructure:"dsn_env" yaml:"dsn_env"`
	PingTimeout      time.Duration `mapstructure:"ping_timeout" yaml:"ping_timeout"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout" yaml:"statement_timeout"`
}

type Storage struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	Region    string `mapstructure:"region" yaml:"region"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
}

type LoadConfig struct {
	ProgressEvery int            `mapstructure:"progress_every" yaml:"progress_every"`
	BatchSizes    map[string]int `mapstructure:"batch_sizes" yaml:"batch_sizes"`
	SkipTriggers  bool           `mapstructure:"skip_triggers" yaml:"skip_triggers"`
	// ResolveOrderDates copies each order's date onto its order items at load time.
	ResolveOrderDates   bool    `mapstructure:"resolve_order_dates" yaml:"resolve_order_dates"`
	Resume              bool    `mapstructure:"resume" yaml:"resume"`
	CheckpointDir       string  `mapstructure:"checkpoint_dir" yaml:"checkpoint_dir"`
	MaxBatchesPerSecond float64 `mapstructure:"max_batches_per_second" yaml:"max_batches_per_second"`
}

type Generate struct {
	Seed            int64 `mapstructure:"seed" yaml:"seed"`
	Users           int   `mapstructure:"users" yaml:"users"`
	Admins          int   `mapstructure:"admins" yaml:"admins"`
	Products        int   `mapstructure:"products" yaml:"products"`
	Orders          int   `mapstructure:"orders" yaml:"orders"`
	OrderItems      int   `mapstructure:"order_items" yaml:"order_items"`
	CartItems       int   `mapstructure:"cart_items" yaml:"cart_items"`
	CartMaxAttempts int   `mapstructure:"cart_max_attempts" yaml:"cart_max_attempts"`
	ProgressEvery   int   `mapstructure:"progress_every" yaml:"progress_every"`
	Strict          bool  `mapstructure:"strict" yaml:"strict"`
}

type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Database: Database{
			Dialect:          "sqlserver",
			DSNEnv:           "DATABASE_URL",
			PingTimeout:      10 * time.Second,
			StatementTimeout: 5 * time.Minute,
		},
		DataDir: ".",
		Storage: Storage{UseSSL: true},
		Load: LoadConfig{
			ProgressEvery:     10000,
			BatchSizes:        map[string]int{},
			ResolveOrderDates: true,
			CheckpointDir:     ".shopload/checkpoints",
		},
		Generate: Generate{
			Users:         10000,
			Admins:        100,
			Products:      100000,
			Orders:        500000,
			OrderItems:    400000,
			CartItems:     50000,
			ProgressEvery: 10000,
		},
		Log: Log{Level: "info", Format: "text"},
	}
}

// New returns a viper instance carrying the defaults and reading SHOPLOAD_*
// environment variables ("database.dsn" is SHOPLOAD_DATABASE_DSN).
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers every key so env vars and Unmarshal see it.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("database.dialect", d.Database.Dialect)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.dsn_env", d.Database.DSNEnv)
	v.SetDefault("database.ping_timeout", d.Database.PingTimeout)
	v.SetDefault("database.statement_timeout", d.Database.StatementTimeout)

	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("compression", d.Compression)

	v.SetDefault("storage.endpoint", d.Storage.Endpoint)
	v.SetDefault("storage.access_key", d.Storage.AccessKey)
	v.SetDefault("storage.secret_key", d.Storage.SecretKey)
	v.SetDefault("storage.region", d.Storage.Region)
	v.SetDefault("storage.use_ssl", d.Storage.UseSSL)

	v.SetDefault("load.progress_every", d.Load.ProgressEvery)
	v.SetDefault("load.batch_sizes", d.Load.BatchSizes)
	v.SetDefault("load.skip_triggers", d.Load.SkipTriggers)
	v.SetDefault("load.resolve_order_dates", d.Load.ResolveOrderDates)
	v.SetDefault("load.resume", d.Load.Resume)
	v.SetDefault("load.checkpoint_dir", d.Load.CheckpointDir)
	v.SetDefault("load.max_batches_per_second", d.Load.MaxBatchesPerSecond)

	v.SetDefault("generate.seed", d.Generate.Seed)
	v.SetDefault("generate.users", d.Generate.Users)
	v.SetDefault("generate.admins", d.Generate.Admins)
	v.SetDefault("generate.products", d.Generate.Products)
	v.SetDefault("generate.orders", d.Generate.Orders)
	v.SetDefault("generate.order_items", d.Generate.OrderItems)
	v.SetDefault("generate.cart_items", d.Generate.CartItems)
	v.SetDefault("generate.cart_max_attempts", d.Generate.CartMaxAttempts)
	v.SetDefault("generate.progress_every", d.Generate.ProgressEvery)
	v.SetDefault("generate.strict", d.Generate.Strict)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// ReadFile reads path into v. An empty path looks for shopload.yaml in the
// working directory, which may be absent.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load decodes v and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot check by type.
func (c *Config) Validate() error {
	if _, err := c.level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	switch c.Compression {
	case "", "gz", "gzip", "zst", "zstd", "lz4":
	default:
		return fmt.Errorf("compression must be one of gz, zst, lz4 or empty, got %q", c.Compression)
	}
	if c.DataDir == "" {
		return errors.New("data_dir cannot be empty")
	}
	for name, n := range c.Load.BatchSizes {
		if n <= 0 {
			return fmt.Errorf("load.batch_sizes.%s must be positive, got %d", name, n)
		}
	}
	if c.Load.Resume && c.Load.CheckpointDir == "" {
		return errors.New("load.checkpoint_dir cannot be empty when resuming")
	}
	if c.Load.MaxBatchesPerSecond < 0 {
		return fmt.Errorf("load.max_batches_per_second cannot be negative")
	}
	g := c.Generate
	for name, n := range map[string]int{
		"users": g.Users, "admins": g.Admins, "products": g.Products, "orders": g.Orders,
		"order_items": g.OrderItems, "cart_items": g.CartItems, "cart_max_attempts": g.CartMaxAttempts,
	} {
		if n < 0 {
			return fmt.Errorf("generate.%s cannot be negative", name)
		}
	}
	return nil
}

// ResolveDSN returns database.dsn, or the value of the variable named by
// database.dsn_env.
func (c *Config) ResolveDSN() (string, error) {
	if c.Database.DSN != "" {
		return c.Database.DSN, nil
	}
	if c.Database.DSNEnv != "" {
		if dsn := os.Getenv(c.Database.DSNEnv); dsn != "" {
			return dsn, nil
		}
	}
	return "", fmt.Errorf("database DSN not set: use --dsn, database.dsn or the %s environment variable", c.Database.DSNEnv)
}

// FileSuffix is the extension appended to every CSV file name.
func (c *Config) FileSuffix() string {
	switch c.Compression {
	case "gz", "gzip":
		return ".gz"
	case "zst", "zstd":
		return ".zst"
	case "lz4":
		return ".lz4"
	}
	return ""
}

func (c *Config) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

// Logger builds the slog logger described by the log section.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := c.level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
