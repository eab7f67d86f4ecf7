// Package config defines the top-level configuration for an arena backtest
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anthias-labs/arena/internal/arena"
	"github.com/anthias-labs/arena/internal/contracts"
	"github.com/anthias-labs/arena/internal/domain"
	"github.com/anthias-labs/arena/internal/feed"
)

// Config is the root configuration structure. Fields are populated from a TOML
// or YAML file and then optionally overridden by ARENA_* environment variables.
type Config struct {
	Run       RunConfig       `toml:"run" yaml:"run"`
	Pool      PoolConfig      `toml:"pool" yaml:"pool"`
	Node      NodeConfig      `toml:"node" yaml:"node"`
	Contracts ContractsConfig `toml:"contracts" yaml:"contracts"`
	Feed      FeedConfig      `toml:"feed" yaml:"feed"`
	Strategy  StrategyConfig  `toml:"strategy" yaml:"strategy"`
	Arbitrage ArbitrageConfig `toml:"arbitrage" yaml:"arbitrage"`
	Inspector InspectorConfig `toml:"inspector" yaml:"inspector"`
	Postgres  PostgresConfig  `toml:"postgres" yaml:"postgres"`
	Redis     RedisConfig     `toml:"redis" yaml:"redis"`
	S3        S3Config        `toml:"s3" yaml:"s3"`
	Stream    StreamConfig    `toml:"stream" yaml:"stream"`
	Metrics   MetricsConfig   `toml:"metrics" yaml:"metrics"`
	LogLevel  string          `toml:"log_level" yaml:"log_level"`
}

// RunConfig holds the parameters of a single backtest run.
type RunConfig struct {
	Steps int `toml:"steps" yaml:"steps"`
	// Policy is "fail_fast" or "continue_on_error".
	Policy string `toml:"policy" yaml:"policy"`
	// SaveData is "format:target", e.g. "csv:results.csv". Empty disables saving.
	SaveData string `toml:"save_data" yaml:"save_data"`
	// RunID pins the run id; empty generates one.
	RunID string `toml:"run_id" yaml:"run_id"`
}

// PoolConfig holds the parameters of the deployed pool.
type PoolConfig struct {
	Fee          uint32  `toml:"fee" yaml:"fee"`
	TickSpacing  int32   `toml:"tick_spacing" yaml:"tick_spacing"`
	InitialPrice float64 `toml:"initial_price" yaml:"initial_price"`
}

// NodeConfig selects the local chain the run executes on.
type NodeConfig struct {
	// Kind is "simulated" (in-process) or "anvil".
	Kind  string      `toml:"kind" yaml:"kind"`
	Anvil AnvilConfig `toml:"anvil" yaml:"anvil"`
}

// AnvilConfig configures a spawned anvil process.
type AnvilConfig struct {
	Binary       string   `toml:"binary" yaml:"binary"`
	Port         int      `toml:"port" yaml:"port"`
	Args         []string `toml:"args" yaml:"args"`
	StartTimeout duration `toml:"start_timeout" yaml:"start_timeout"`
}

// ContractsConfig locates compiled contract artifacts.
type ContractsConfig struct {
	ArtifactsDir string `toml:"artifacts_dir" yaml:"artifacts_dir"`
}

// FeedConfig selects and parameterises the price feed.
type FeedConfig struct {
	Kind       string  `toml:"kind" yaml:"kind"`
	Initial    float64 `toml:"initial" yaml:"initial"`
	Speed      float64 `toml:"speed" yaml:"speed"`
	Mean       float64 `toml:"mean" yaml:"mean"`
	Volatility float64 `toml:"volatility" yaml:"volatility"`
	Drift      float64 `toml:"drift" yaml:"drift"`
	Dt         float64 `toml:"dt" yaml:"dt"`
	Seed       uint64  `toml:"seed" yaml:"seed"`
	Path       string  `toml:"path" yaml:"path"`
	Column     string  `toml:"column" yaml:"column"`
}

// Params converts the section into feed constructor parameters.
func (f FeedConfig) Params() feed.Params {
	return feed.Params{
		Kind:       f.Kind,
		Initial:    f.Initial,
		Speed:      f.Speed,
		Mean:       f.Mean,
		Volatility: f.Volatility,
		Drift:      f.Drift,
		Dt:         f.Dt,
		Seed:       f.Seed,
		Path:       f.Path,
		Column:     f.Column,
	}
}

// StrategyConfig names the strategy and carries its free-form parameters.
type StrategyConfig struct {
	Name   string         `toml:"name" yaml:"name"`
	Params map[string]any `toml:"params" yaml:"params"`
}

// ArbitrageConfig holds arbitrageur parameters.
type ArbitrageConfig struct {
	// Name selects the arbitrageur: "noop" or "spread".
	Name         string  `toml:"name" yaml:"name"`
	MinSpreadBps float64 `toml:"min_spread_bps" yaml:"min_spread_bps"`
	EstFeeBps    float64 `toml:"est_fee_bps" yaml:"est_fee_bps"`
}

// InspectorConfig controls what the recording inspector does with logged values.
type InspectorConfig struct {
	// Publish streams every logged value to the redis stream and the
	// websocket hub when those are enabled.
	Publish bool `toml:"publish" yaml:"publish"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled" yaml:"enabled"`
	DSN           string `toml:"dsn" yaml:"dsn"`
	Host          string `toml:"host" yaml:"host"`
	Port          int    `toml:"port" yaml:"port"`
	Database      string `toml:"database" yaml:"database"`
	User          string `toml:"user" yaml:"user"`
	Password      string `toml:"password" yaml:"password"`
	SSLMode       string `toml:"ssl_mode" yaml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns" yaml:"pool_max_conns"`
	RunMigrations bool   `toml:"run_migrations" yaml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool   `toml:"enabled" yaml:"enabled"`
	Addr         string `toml:"addr" yaml:"addr"`
	Password     string `toml:"password" yaml:"password"`
	DB           int    `toml:"db" yaml:"db"`
	PoolSize     int    `toml:"pool_size" yaml:"pool_size"`
	MaxRetries   int    `toml:"max_retries" yaml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled" yaml:"tls_enabled"`
	StreamPrefix string `toml:"stream_prefix" yaml:"stream_prefix"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled" yaml:"enabled"`
	Endpoint       string `toml:"endpoint" yaml:"endpoint"`
	Region         string `toml:"region" yaml:"region"`
	Bucket         string `toml:"bucket" yaml:"bucket"`
	Prefix         string `toml:"prefix" yaml:"prefix"`
	AccessKey      string `toml:"access_key" yaml:"access_key"`
	SecretKey      string `toml:"secret_key" yaml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl" yaml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style" yaml:"force_path_style"`
}

// StreamConfig holds the HTTP/websocket server parameters.
type StreamConfig struct {
	Enabled     bool     `toml:"enabled" yaml:"enabled"`
	Addr        string   `toml:"addr" yaml:"addr"`
	CORSOrigins []string `toml:"cors_origins" yaml:"cors_origins"`
	// Linger keeps the server up after the run finishes so clients can
	// fetch the results. Zero shuts down immediately.
	Linger duration `toml:"linger" yaml:"linger"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`
}

// duration is a wrapper around time.Duration that decodes from strings such
// as "5m" or "30s". Both decoders honour encoding.TextUnmarshaler.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Run: RunConfig{
			Steps:  100,
			Policy: PolicyFailFast,
		},
		Pool: PoolConfig{
			Fee:          4000,
			TickSpacing:  2,
			InitialPrice: 1.0,
		},
		Node: NodeConfig{
			Kind: NodeSimulated,
			Anvil: AnvilConfig{
				Binary:       "anvil",
				StartTimeout: duration{10 * time.Second},
			},
		},
		Contracts: ContractsConfig{
			ArtifactsDir: contracts.DefaultArtifactsDir,
		},
		Feed: FeedConfig{
			Kind:       feed.KindOrnsteinUhlenbeck,
			Initial:    1.0,
			Speed:      0.1,
			Mean:       1.0,
			Volatility: 0.1,
			Dt:         0.1,
			Seed:       1,
		},
		Strategy: StrategyConfig{
			Name:   "passive",
			Params: map[string]any{},
		},
		Arbitrage: ArbitrageConfig{
			Name:         "spread",
			MinSpreadBps: 10,
		},
		Inspector: InspectorConfig{
			Publish: true,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "arena",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  4,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			MaxRetries:   3,
			StreamPrefix: "arena:steps",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arena-runs",
			Prefix:         "runs",
			ForcePathStyle: true,
		},
		Stream: StreamConfig{
			Addr:        ":8000",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		LogLevel: "info",
	}
}

// Accepted node kinds.
const (
	NodeSimulated = "simulated"
	NodeAnvil     = "anvil"
)

// Accepted step policies.
const (
	PolicyFailFast        = "fail_fast"
	PolicyContinueOnError = "continue_on_error"
)

var validNodeKinds = map[string]bool{
	NodeSimulated: true,
	NodeAnvil:     true,
}

var validPolicies = map[string]bool{
	PolicyFailFast:        true,
	PolicyContinueOnError: true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Run
	if c.Run.Steps < 0 {
		errs = append(errs, fmt.Sprintf("run: steps must be >= 0, got %d", c.Run.Steps))
	}
	if !validPolicies[strings.ToLower(c.Run.Policy)] {
		errs = append(errs, fmt.Sprintf("run: unknown policy %q (valid: fail_fast, continue_on_error)", c.Run.Policy))
	}
	if _, err := domain.ParseSaveData(c.Run.SaveData); err != nil {
		errs = append(errs, "run: "+err.Error())
	}
	if c.Run.RunID != "" {
		if _, err := uuid.Parse(c.Run.RunID); err != nil {
			errs = append(errs, fmt.Sprintf("run: run_id %q is not a UUID", c.Run.RunID))
		}
	}

	// Pool
	if c.Pool.Fee > contracts.MaxLPFee {
		errs = append(errs, fmt.Sprintf("pool: fee must be <= %d, got %d", contracts.MaxLPFee, c.Pool.Fee))
	}
	if c.Pool.TickSpacing <= 0 || c.Pool.TickSpacing > arena.MaxTickSpacing {
		errs = append(errs, fmt.Sprintf("pool: tick_spacing must be 1-%d, got %d", arena.MaxTickSpacing, c.Pool.TickSpacing))
	}
	if c.Pool.InitialPrice <= 0 {
		errs = append(errs, "pool: initial_price must be > 0")
	}

	// Node
	if !validNodeKinds[strings.ToLower(c.Node.Kind)] {
		errs = append(errs, fmt.Sprintf("node: unknown kind %q (valid: simulated, anvil)", c.Node.Kind))
	}
	if strings.EqualFold(c.Node.Kind, NodeAnvil) {
		if c.Node.Anvil.Binary == "" {
			errs = append(errs, "node: anvil.binary must not be empty")
		}
		if c.Node.Anvil.Port < 0 || c.Node.Anvil.Port > 65535 {
			errs = append(errs, fmt.Sprintf("node: anvil.port must be 0-65535, got %d", c.Node.Anvil.Port))
		}
	}

	// Feed
	if !knownFeed(c.Feed.Kind) {
		errs = append(errs, fmt.Sprintf("feed: unknown kind %q (valid: %s)", c.Feed.Kind, strings.Join(feed.Kinds(), ", ")))
	}
	if c.Feed.Kind == feed.KindSeries && c.Feed.Path == "" {
		errs = append(errs, "feed: path is required for kind series")
	}

	// Strategy
	if c.Strategy.Name == "" {
		errs = append(errs, "strategy: name must not be empty")
	}

	// Arbitrage
	if c.Arbitrage.Name == "" {
		errs = append(errs, "arbitrage: name must not be empty")
	}
	if c.Arbitrage.MinSpreadBps < 0 || c.Arbitrage.EstFeeBps < 0 {
		errs = append(errs, "arbitrage: min_spread_bps and est_fee_bps must be >= 0")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Stream
	if (c.Stream.Enabled || c.Metrics.Enabled) && c.Stream.Addr == "" {
		errs = append(errs, "stream: addr must not be empty when the server is enabled")
	}
	if c.Stream.Linger.Duration < 0 {
		errs = append(errs, "stream: linger must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func knownFeed(kind string) bool {
	for _, k := range feed.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}
