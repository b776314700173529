// Package config loads the job configuration from YAML, .env and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither -config nor COWSWAP_CONFIG is set.
const DefaultPath = "config.yml"

// Config is the full job configuration.
type Config struct {
	DB         DBConfig         `yaml:"db_params"`
	Dune       DuneConfig       `yaml:"dune_api"`
	CoinGecko  CoinGeckoConfig  `yaml:"coingecko"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
}

// DBConfig holds PostgreSQL connection parameters.
type DBConfig struct {
	DSN       string `yaml:"dsn"` // overrides the discrete fields when set
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	DBName    string `yaml:"dbname"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	SSLMode   string `yaml:"sslmode"`
	BatchSize int    `yaml:"batch_size"`
}

// DuneConfig holds the analytics source settings.
type DuneConfig struct {
	APIKey  string        `yaml:"api_key"`
	QueryID int           `yaml:"query_id"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// CoinGeckoConfig holds the reference price source settings.
type CoinGeckoConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	SellToken         string        `yaml:"sell_token"`
	BuyToken          string        `yaml:"buy_token"`
}

// ClickHouseConfig enables the optional analytics mirror.
type ClickHouseConfig struct {
	DSN string `yaml:"dsn"`
}

// LoggingConfig mirrors logger.Config.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// MetricsConfig controls Prometheus metric export.
type MetricsConfig struct {
	Namespace      string `yaml:"namespace"`
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// PipelineConfig holds orchestrator behaviour switches.
type PipelineConfig struct {
	// StrictPersistence fails the run on storage errors. By default they are
	// logged and swallowed.
	StrictPersistence bool `yaml:"strict_persistence"`
}

// Load reads .env (if present), the YAML file at path and environment
// overrides, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		path = os.Getenv("COWSWAP_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML bytes, applies environment overrides and defaults, and
// validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DUNE_API_KEY"); v != "" {
		cfg.Dune.APIKey = v
	}
	if v := os.Getenv("DUNE_QUERY_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			cfg.Dune.QueryID = id
		}
	}
	if v := os.Getenv("COINGECKO_API_KEY"); v != "" {
		cfg.CoinGecko.APIKey = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		cfg.DB.Password = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		cfg.ClickHouse.DSN = v
	}
	if v := os.Getenv("PUSHGATEWAY_URL"); v != "" {
		cfg.Metrics.PushgatewayURL = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.BatchSize <= 0 {
		cfg.DB.BatchSize = 100
	}
	if cfg.Dune.BaseURL == "" {
		cfg.Dune.BaseURL = "https://api.dune.com"
	}
	if cfg.Dune.Timeout == 0 {
		cfg.Dune.Timeout = 30 * time.Second
	}
	if cfg.CoinGecko.BaseURL == "" {
		cfg.CoinGecko.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if cfg.CoinGecko.Timeout == 0 {
		cfg.CoinGecko.Timeout = 30 * time.Second
	}
	if cfg.CoinGecko.RequestsPerMinute == 0 {
		cfg.CoinGecko.RequestsPerMinute = 30
	}
	if cfg.CoinGecko.SellToken == "" {
		cfg.CoinGecko.SellToken = "weth"
	}
	if cfg.CoinGecko.BuyToken == "" {
		cfg.CoinGecko.BuyToken = "usdc"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "cowswap"
	}
	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = "cowswap_price_improvement"
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Dune.APIKey == "" {
		return errors.New("dune_api.api_key is required (or DUNE_API_KEY)")
	}
	if c.Dune.QueryID <= 0 {
		return fmt.Errorf("dune_api.query_id must be positive, got %d", c.Dune.QueryID)
	}
	if c.DB.DSN == "" {
		if c.DB.Host == "" {
			return errors.New("db_params.host is required when db_params.dsn is empty")
		}
		if c.DB.DBName == "" {
			return errors.New("db_params.dbname is required when db_params.dsn is empty")
		}
		if c.DB.User == "" {
			return errors.New("db_params.user is required when db_params.dsn is empty")
		}
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		return fmt.Errorf("db_params.port out of range: %d", c.DB.Port)
	}
	if c.CoinGecko.RequestsPerMinute < 0 {
		return fmt.Errorf("coingecko.requests_per_minute must not be negative, got %d", c.CoinGecko.RequestsPerMinute)
	}
	if c.ClickHouse.DSN != "" && !strings.HasPrefix(c.ClickHouse.DSN, "clickhouse://") {
		return fmt.Errorf("clickhouse.dsn must use the clickhouse:// scheme")
	}
	return nil
}

// PostgresDSN returns the connection string for pgx.
func (c DBConfig) PostgresDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
