package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ZMART_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ZMART_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Store ──
	setStr(&cfg.Store.Backend, "ZMART_STORE_BACKEND")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ZMART_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "ZMART_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ZMART_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ZMART_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ZMART_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ZMART_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ZMART_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ZMART_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ZMART_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ZMART_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ZMART_POSTGRES_RUN_MIGRATIONS")

	// ── SQLite ──
	setStr(&cfg.SQLite.Path, "ZMART_SQLITE_PATH")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ZMART_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ZMART_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ZMART_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ZMART_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ZMART_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ZMART_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ZMART_REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamMaxLen, "ZMART_REDIS_STREAM_MAX_LEN")
	setDuration(&cfg.Redis.LockTTL, "ZMART_REDIS_LOCK_TTL")

	// ── Genesis ──
	setStr(&cfg.Genesis.Admin, "ZMART_GENESIS_ADMIN")
	setStr(&cfg.Genesis.GovernanceAuthority, "ZMART_GENESIS_GOVERNANCE_AUTHORITY")
	setStr(&cfg.Genesis.AggregationAuthority, "ZMART_GENESIS_AGGREGATION_AUTHORITY")
	setStr(&cfg.Genesis.Treasury, "ZMART_GENESIS_TREASURY")
	setInt64(&cfg.Genesis.ProtocolFeeBps, "ZMART_GENESIS_PROTOCOL_FEE_BPS")
	setInt64(&cfg.Genesis.CreatorFeeBps, "ZMART_GENESIS_CREATOR_FEE_BPS")
	setInt64(&cfg.Genesis.LiquidityFeeBps, "ZMART_GENESIS_LIQUIDITY_FEE_BPS")
	setInt64(&cfg.Genesis.ProposalThresholdBps, "ZMART_GENESIS_PROPOSAL_THRESHOLD_BPS")
	setInt64(&cfg.Genesis.DisputeThresholdBps, "ZMART_GENESIS_DISPUTE_THRESHOLD_BPS")
	setDuration(&cfg.Genesis.MinResolutionDelay, "ZMART_GENESIS_MIN_RESOLUTION_DELAY")
	setDuration(&cfg.Genesis.DisputeWindow, "ZMART_GENESIS_DISPUTE_WINDOW")
	setDuration(&cfg.Genesis.MaxMarketAge, "ZMART_GENESIS_MAX_MARKET_AGE")
	setInt64(&cfg.Genesis.MinResolverReputation, "ZMART_GENESIS_MIN_RESOLVER_REPUTATION")
	setInt64(&cfg.Genesis.MinTradeSize, "ZMART_GENESIS_MIN_TRADE_SIZE")
	setInt64(&cfg.Genesis.MinPoolReserve, "ZMART_GENESIS_MIN_POOL_RESERVE")

	// ── Sim ──
	setInt(&cfg.Sim.Markets, "ZMART_SIM_MARKETS")
	setInt(&cfg.Sim.Traders, "ZMART_SIM_TRADERS")
	setInt(&cfg.Sim.RoundsPerMkt, "ZMART_SIM_ROUNDS_PER_MARKET")
	setInt64(&cfg.Sim.Seed, "ZMART_SIM_SEED")
	setInt64(&cfg.Sim.TraderFunds, "ZMART_SIM_TRADER_FUNDS")
	setInt64(&cfg.Sim.CreatorFunds, "ZMART_SIM_CREATOR_FUNDS")
	setInt64(&cfg.Sim.MaxSpend, "ZMART_SIM_MAX_SPEND")
	setInt64(&cfg.Sim.LiquidityB, "ZMART_SIM_LIQUIDITY_B")
	setDuration(&cfg.Sim.Interval, "ZMART_SIM_INTERVAL")

	// ── Keystore ──
	setStr(&cfg.Keystore.Path, "ZMART_KEYSTORE_PATH")
	setStr(&cfg.Keystore.Password, "ZMART_KEYSTORE_PASSWORD")

	// ── Top-level ──
	setStr(&cfg.Mode, "ZMART_MODE")
	setStr(&cfg.LogLevel, "ZMART_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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
			*dst = duration(d)
		}
	}
}
