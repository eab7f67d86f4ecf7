package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads a TOML or YAML configuration file at path (chosen by extension),
// merges it on top of the built-in defaults, applies ARENA_* environment
// variable overrides, and returns the final Config. An empty path skips the
// file. The returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("config: decode %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config: decode %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config: unsupported file extension %q (want .toml, .yaml or .yml)", ext)
	}
	return nil
}

// applyEnvOverrides reads well-known ARENA_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the config file.
func applyEnvOverrides(cfg *Config) {
	// ── Run ──
	setInt(&cfg.Run.Steps, "ARENA_RUN_STEPS")
	setStr(&cfg.Run.Policy, "ARENA_RUN_POLICY")
	setStr(&cfg.Run.SaveData, "ARENA_RUN_SAVE_DATA")
	setStr(&cfg.Run.RunID, "ARENA_RUN_ID")

	// ── Pool ──
	setUint32(&cfg.Pool.Fee, "ARENA_POOL_FEE")
	setInt32(&cfg.Pool.TickSpacing, "ARENA_POOL_TICK_SPACING")
	setFloat64(&cfg.Pool.InitialPrice, "ARENA_POOL_INITIAL_PRICE")

	// ── Node ──
	setStr(&cfg.Node.Kind, "ARENA_NODE_KIND")
	setStr(&cfg.Node.Anvil.Binary, "ARENA_NODE_ANVIL_BINARY")
	setInt(&cfg.Node.Anvil.Port, "ARENA_NODE_ANVIL_PORT")
	setDuration(&cfg.Node.Anvil.StartTimeout, "ARENA_NODE_ANVIL_START_TIMEOUT")

	// ── Contracts ──
	setStr(&cfg.Contracts.ArtifactsDir, "ARENA_CONTRACTS_ARTIFACTS_DIR")

	// ── Feed ──
	setStr(&cfg.Feed.Kind, "ARENA_FEED_KIND")
	setFloat64(&cfg.Feed.Initial, "ARENA_FEED_INITIAL")
	setUint64(&cfg.Feed.Seed, "ARENA_FEED_SEED")
	setStr(&cfg.Feed.Path, "ARENA_FEED_PATH")

	// ── Strategy / Arbitrage ──
	setStr(&cfg.Strategy.Name, "ARENA_STRATEGY_NAME")
	setStr(&cfg.Arbitrage.Name, "ARENA_ARBITRAGE_NAME")
	setFloat64(&cfg.Arbitrage.MinSpreadBps, "ARENA_ARBITRAGE_MIN_SPREAD_BPS")
	setFloat64(&cfg.Arbitrage.EstFeeBps, "ARENA_ARBITRAGE_EST_FEE_BPS")

	// ── Inspector ──
	setBool(&cfg.Inspector.Publish, "ARENA_INSPECTOR_PUBLISH")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARENA_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.DSN, "ARENA_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARENA_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARENA_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARENA_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARENA_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARENA_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARENA_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARENA_POSTGRES_POOL_MAX_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARENA_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARENA_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARENA_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARENA_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARENA_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARENA_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "ARENA_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.StreamPrefix, "ARENA_REDIS_STREAM_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARENA_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARENA_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARENA_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARENA_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "ARENA_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "ARENA_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARENA_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARENA_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARENA_S3_FORCE_PATH_STYLE")

	// ── Stream / Metrics ──
	setBool(&cfg.Stream.Enabled, "ARENA_STREAM_ENABLED")
	setStr(&cfg.Stream.Addr, "ARENA_STREAM_ADDR")
	setStringSlice(&cfg.Stream.CORSOrigins, "ARENA_STREAM_CORS_ORIGINS")
	setDuration(&cfg.Stream.Linger, "ARENA_STREAM_LINGER")
	setBool(&cfg.Metrics.Enabled, "ARENA_METRICS_ENABLED")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "ARENA_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present, non-empty and parses.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setUint32(dst *uint32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(n)
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
