package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/macindex/internal/cache"
	"github.com/KaramelBytes/macindex/internal/dataset"
	"github.com/KaramelBytes/macindex/internal/logging"
	"github.com/KaramelBytes/macindex/internal/pipeline"
)

// EnvPrefix prefixes every environment override, e.g. MACINDEX_SOURCE_PATH.
const EnvPrefix = "MACINDEX"

// Global configuration structure.
type Global struct {
	// Source
	SourcePath      string `mapstructure:"source_path" yaml:"source_path"`
	SourceFormat    string `mapstructure:"source_format" yaml:"source_format"`
	SourceDelimiter string `mapstructure:"source_delimiter" yaml:"source_delimiter"`
	SourceSheet     string `mapstructure:"source_sheet" yaml:"source_sheet"`
	SourceTable     string `mapstructure:"source_table" yaml:"source_table"`

	ColumnCountry      string `mapstructure:"column_country" yaml:"column_country"`
	ColumnDate         string `mapstructure:"column_date" yaml:"column_date"`
	ColumnUSDPrice     string `mapstructure:"column_usd_price" yaml:"column_usd_price"`
	ColumnLocalPrice   string `mapstructure:"column_local_price" yaml:"column_local_price"`
	ColumnCurrencyCode string `mapstructure:"column_currency_code" yaml:"column_currency_code"`
	ColumnExchangeRate string `mapstructure:"column_exchange_rate" yaml:"column_exchange_rate"`

	// Analysis
	ExpectedSamples   int      `mapstructure:"expected_samples" yaml:"expected_samples"`
	TestFraction      float64  `mapstructure:"test_fraction" yaml:"test_fraction"`
	SplitSeed         uint64   `mapstructure:"split_seed" yaml:"split_seed"` // 0 draws a fresh seed per request
	ExcludedCountries []string `mapstructure:"excluded_countries" yaml:"excluded_countries"`
	DatasetCacheSize  int      `mapstructure:"dataset_cache_size" yaml:"dataset_cache_size"`

	// Charts
	ChartWidth       int    `mapstructure:"chart_width" yaml:"chart_width"`
	ChartHeight      int    `mapstructure:"chart_height" yaml:"chart_height"`
	ChartCache       string `mapstructure:"chart_cache" yaml:"chart_cache"`
	ChartCacheSize   int    `mapstructure:"chart_cache_size" yaml:"chart_cache_size"`
	ChartCacheTTLSec int    `mapstructure:"chart_cache_ttl_sec" yaml:"chart_cache_ttl_sec"`

	// Redis (chart_cache: redis)
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix" yaml:"redis_prefix"`

	// S3 (source_path: s3://bucket/key)
	S3Region          string `mapstructure:"s3_region" yaml:"s3_region"`
	S3Endpoint        string `mapstructure:"s3_endpoint" yaml:"s3_endpoint"`
	S3AccessKeyID     string `mapstructure:"s3_access_key_id" yaml:"s3_access_key_id"`
	S3SecretAccessKey string `mapstructure:"s3_secret_access_key" yaml:"s3_secret_access_key"`

	// Logging
	LogLevel      string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat     string `mapstructure:"log_format" yaml:"log_format"`
	LogFile       string `mapstructure:"log_file" yaml:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb" yaml:"log_max_size_mb"`
	LogMaxAgeDays int    `mapstructure:"log_max_age_days" yaml:"log_max_age_days"`

	// HTTP dashboard
	ServerAddr               string  `mapstructure:"server_addr" yaml:"server_addr"`
	ServerRatePerSec         float64 `mapstructure:"server_rate_per_sec" yaml:"server_rate_per_sec"`
	ServerBurst              int     `mapstructure:"server_burst" yaml:"server_burst"`
	ServerShutdownTimeoutSec int     `mapstructure:"server_shutdown_timeout_sec" yaml:"server_shutdown_timeout_sec"`
}

func setDefaults(v *viper.Viper) {
	cols := dataset.DefaultColumns()
	v.SetDefault("source_path", "big-mac-full-index.csv")
	v.SetDefault("source_format", "")
	v.SetDefault("source_delimiter", "")
	v.SetDefault("source_sheet", "")
	v.SetDefault("source_table", dataset.DefaultTable)
	v.SetDefault("column_country", cols.Country)
	v.SetDefault("column_date", cols.Date)
	v.SetDefault("column_usd_price", cols.USDPrice)
	v.SetDefault("column_local_price", cols.LocalPrice)
	v.SetDefault("column_currency_code", cols.CurrencyCode)
	v.SetDefault("column_exchange_rate", cols.ExchangeRate)

	v.SetDefault("expected_samples", 37)
	v.SetDefault("test_fraction", 0.25)
	v.SetDefault("split_seed", 0)
	v.SetDefault("excluded_countries", []string{"United Arab Emirates"})
	v.SetDefault("dataset_cache_size", 4)

	v.SetDefault("chart_width", 800)
	v.SetDefault("chart_height", 600)
	v.SetDefault("chart_cache", "memory")
	v.SetDefault("chart_cache_size", 128)
	v.SetDefault("chart_cache_ttl_sec", 3600)

	v.SetDefault("redis_addr", "127.0.0.1:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_prefix", "macindex:chart:")

	v.SetDefault("s3_region", "")
	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_access_key_id", "")
	v.SetDefault("s3_secret_access_key", "")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 50)
	v.SetDefault("log_max_age_days", 14)

	v.SetDefault("server_addr", ":8080")
	v.SetDefault("server_rate_per_sec", 20.0)
	v.SetDefault("server_burst", 40)
	v.SetDefault("server_shutdown_timeout_sec", 10)
}

// Keys lists every configuration key, sorted.
func Keys() []string {
	v := viper.New()
	setDefaults(v)
	keys := v.AllKeys()
	sort.Strings(keys)
	return keys
}

// DefaultPath returns ~/.macindex/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".macindex", "config.yaml"), nil
}

// LoadDotEnv reads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. An explicit cfgFile must exist.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, ".macindex"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// optional read
		_ = v.ReadInConfig()
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks ranges and enumerations.
func (c *Global) Validate() error {
	var problems []string
	if c.TestFraction < 0 || c.TestFraction >= 1 {
		problems = append(problems, fmt.Sprintf("test_fraction must be in [0,1): %v", c.TestFraction))
	}
	if c.ExpectedSamples < 0 {
		problems = append(problems, "expected_samples must not be negative")
	}
	if d := c.SourceDelimiter; d != "" && d != `\t` && len([]rune(d)) != 1 {
		problems = append(problems, fmt.Sprintf("source_delimiter must be a single character: %q", d))
	}
	switch strings.ToLower(c.ChartCache) {
	case "", "memory", "redis", "none", "off":
	default:
		problems = append(problems, fmt.Sprintf("chart_cache must be memory, redis or none: %q", c.ChartCache))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log_format must be text or json: %q", c.LogFormat))
	}
	if c.ServerRatePerSec < 0 || c.ServerBurst < 0 {
		problems = append(problems, "server_rate_per_sec and server_burst must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Set assigns one key from its string form, using the same conversions as
// the config file (comma separated lists, numeric strings).
func (c *Global) Set(key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	known := false
	for _, k := range Keys() {
		if k == key {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown key: %s", key)
	}
	v := viper.New()
	v.Set(key, value)
	next := *c
	if key == "excluded_countries" {
		next.ExcludedCountries = nil
	}
	if err := v.Unmarshal(&next); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.macindex/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Source builds the dataset source described by the configuration.
func (c *Global) Source() dataset.Source {
	var delim rune
	switch d := c.SourceDelimiter; d {
	case "":
	case `\t`, "tab":
		delim = '\t'
	default:
		delim = []rune(d)[0]
	}
	return dataset.Source{
		Path:      c.SourcePath,
		Format:    dataset.Format(strings.ToLower(c.SourceFormat)),
		Delimiter: delim,
		Sheet:     c.SourceSheet,
		Table:     c.SourceTable,
		Columns: dataset.Columns{
			Country:      c.ColumnCountry,
			Date:         c.ColumnDate,
			USDPrice:     c.ColumnUSDPrice,
			LocalPrice:   c.ColumnLocalPrice,
			CurrencyCode: c.ColumnCurrencyCode,
			ExchangeRate: c.ColumnExchangeRate,
		},
		S3: dataset.S3Options{
			Region:          c.S3Region,
			Endpoint:        c.S3Endpoint,
			AccessKeyID:     c.S3AccessKeyID,
			SecretAccessKey: c.S3SecretAccessKey,
		},
	}
}

// Logging returns the logger options.
func (c *Global) Logging() logging.Options {
	return logging.Options{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		Output:     c.LogFile,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxAgeDays: c.LogMaxAgeDays,
		Compress:   true,
	}
}

// ChartCacheOptions returns the rendered-chart cache options.
func (c *Global) ChartCacheOptions() cache.Options {
	return cache.Options{
		Backend:  c.ChartCache,
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		Prefix:   c.RedisPrefix,
		TTL:      time.Duration(c.ChartCacheTTLSec) * time.Second,
		Size:     c.ChartCacheSize,
	}
}

// PipelineOptions returns the analysis options. A zero split_seed leaves the
// split random.
func (c *Global) PipelineOptions() pipeline.Options {
	opt := pipeline.Options{
		ExpectedSamples: c.ExpectedSamples,
		TestFraction:    c.TestFraction,
		Exclude:         c.ExcludedCountries,
	}
	if c.SplitSeed != 0 {
		seed := c.SplitSeed
		opt.Seed = &seed
	}
	return opt
}
