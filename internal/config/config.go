// Package config defines the top-level configuration for the zmart engine
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ZMART_* environment variables.
type Config struct {
	Store    StoreConfig    `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Redis    RedisConfig    `toml:"redis"`
	Genesis  GenesisConfig  `toml:"genesis"`
	Sim      SimConfig      `toml:"sim"`
	Keystore KeystoreConfig `toml:"keystore"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// StoreConfig selects the persistence backend for engine state.
type StoreConfig struct {
	Backend string `toml:"backend"`
}

// PostgresConfig holds PostgreSQL connection parameters. DSN, when set, wins
// over the individual fields.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// SQLiteConfig holds the file-backed store parameters.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// RedisConfig holds Redis connection parameters for the event bus and the
// distributed market lock.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	StreamMaxLen int64    `toml:"stream_max_len"`
	LockTTL      duration `toml:"lock_ttl"`
}

// GenesisConfig seeds the on-store global configuration when the engine is
// bootstrapped. Monetary fields are fixed-point nanounits.
type GenesisConfig struct {
	Admin                 string   `toml:"admin"`
	GovernanceAuthority   string   `toml:"governance_authority"`
	AggregationAuthority  string   `toml:"aggregation_authority"`
	Treasury              string   `toml:"treasury"`
	ProtocolFeeBps        int64    `toml:"protocol_fee_bps"`
	CreatorFeeBps         int64    `toml:"creator_fee_bps"`
	LiquidityFeeBps       int64    `toml:"liquidity_fee_bps"`
	ProposalThresholdBps  int64    `toml:"proposal_threshold_bps"`
	DisputeThresholdBps   int64    `toml:"dispute_threshold_bps"`
	MinResolutionDelay    duration `toml:"min_resolution_delay"`
	DisputeWindow         duration `toml:"dispute_window"`
	MaxMarketAge          duration `toml:"max_market_age"`
	MinResolverReputation int64    `toml:"min_resolver_reputation"`
	MinTradeSize          int64    `toml:"min_trade_size"`
	MinPoolReserve        int64    `toml:"min_pool_reserve"`
}

// SimConfig controls the lifecycle simulator.
type SimConfig struct {
	Markets      int      `toml:"markets"`
	Traders      int      `toml:"traders"`
	RoundsPerMkt int      `toml:"rounds_per_market"`
	Seed         int64    `toml:"seed"`
	TraderFunds  int64    `toml:"trader_funds"`
	CreatorFunds int64    `toml:"creator_funds"`
	MaxSpend     int64    `toml:"max_spend"`
	LiquidityB   int64    `toml:"liquidity_b"`
	Interval     duration `toml:"interval"`
}

// KeystoreConfig holds the encrypted signing key used to mint capabilities.
type KeystoreConfig struct {
	Path     string `toml:"path"`
	Password string `toml:"password"`
}

// duration wraps time.Duration so TOML values like "72h" parse directly.
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the wrapped value as a time.Duration.
func (d duration) Std() time.Duration { return time.Duration(d) }

const nano = int64(1_000_000_000)

// Defaults returns a Config with sane defaults for local development: the
// in-memory backend under the simulator. Bootstrap deployments must spell
// out the genesis identities and a persistent backend.
func Defaults() Config {
	return Config{
		Mode:     "simulate",
		LogLevel: "info",
		Store: StoreConfig{
			Backend: "memory",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "zmart",
			User:          "zmart",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		SQLite: SQLiteConfig{
			Path: "zmart.db",
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     10,
			MaxRetries:   3,
			StreamMaxLen: 10_000,
			LockTTL:      duration(30 * time.Second),
		},
		Genesis: GenesisConfig{
			ProtocolFeeBps:        200,
			CreatorFeeBps:         100,
			LiquidityFeeBps:       700,
			ProposalThresholdBps:  6000,
			DisputeThresholdBps:   6000,
			MinResolutionDelay:    duration(time.Hour),
			DisputeWindow:         duration(24 * time.Hour),
			MaxMarketAge:          duration(90 * 24 * time.Hour),
			MinResolverReputation: 100,
			MinTradeSize:          nano / 1000,
			MinPoolReserve:        0,
		},
		Sim: SimConfig{
			Markets:      4,
			Traders:      8,
			RoundsPerMkt: 20,
			Seed:         1,
			TraderFunds:  500 * nano,
			CreatorFunds: 200 * nano,
			MaxSpend:     10 * nano,
			LiquidityB:   50 * nano,
			Interval:     duration(0),
		},
		Keystore: KeystoreConfig{
			Path: "zmart-keystore.json",
		},
	}
}

var validModes = map[string]bool{
	"migrate":   true,
	"bootstrap": true,
	"simulate":  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBackends = map[string]bool{
	"memory":   true,
	"sqlite":   true,
	"postgres": true,
}

// Validate checks the configuration for the selected mode and reports every
// problem it finds, not just the first.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[c.Mode] {
		errs = append(errs, fmt.Sprintf("invalid mode %q (want migrate, bootstrap, or simulate)", c.Mode))
	}
	if !validLogLevels[c.LogLevel] {
		errs = append(errs, fmt.Sprintf("invalid log_level %q (want debug, info, warn, or error)", c.LogLevel))
	}
	if !validBackends[c.Store.Backend] {
		errs = append(errs, fmt.Sprintf("invalid store.backend %q (want memory, sqlite, or postgres)", c.Store.Backend))
	}

	switch c.Store.Backend {
	case "postgres":
		if c.Postgres.DSN == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres.host (or postgres.dsn) is required for the postgres backend")
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres.database is required for the postgres backend")
			}
			if c.Postgres.User == "" {
				errs = append(errs, "postgres.user is required for the postgres backend")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres.pool_max_conns must be at least 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres.pool_min_conns must be between 0 and pool_max_conns")
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			errs = append(errs, "sqlite.path is required for the sqlite backend")
		}
	case "memory":
		if c.Mode == "migrate" || c.Mode == "bootstrap" {
			errs = append(errs, fmt.Sprintf("mode %s needs a persistent store backend, not memory", c.Mode))
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis.addr is required when redis is enabled")
		}
		if c.Redis.StreamMaxLen < 1 {
			errs = append(errs, "redis.stream_max_len must be at least 1")
		}
		if c.Redis.LockTTL.Std() <= 0 {
			errs = append(errs, "redis.lock_ttl must be positive")
		}
	}

	// Simulate derives missing identities from the seed, so only bootstrap
	// insists on them being spelled out.
	if c.Mode == "bootstrap" || c.Mode == "simulate" {
		errs = append(errs, c.Genesis.validate(c.Mode == "bootstrap")...)
	}
	if c.Mode == "simulate" {
		errs = append(errs, c.Sim.validate()...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (g *GenesisConfig) validate(requireIdentities bool) []string {
	var errs []string
	if requireIdentities {
		for _, id := range []struct{ name, v string }{
			{"genesis.admin", g.Admin},
			{"genesis.governance_authority", g.GovernanceAuthority},
			{"genesis.aggregation_authority", g.AggregationAuthority},
			{"genesis.treasury", g.Treasury},
		} {
			if id.v == "" {
				errs = append(errs, id.name+" is required")
			}
		}
	}
	for _, bps := range []struct {
		name string
		v    int64
	}{
		{"genesis.protocol_fee_bps", g.ProtocolFeeBps},
		{"genesis.creator_fee_bps", g.CreatorFeeBps},
		{"genesis.liquidity_fee_bps", g.LiquidityFeeBps},
	} {
		if bps.v < 0 || bps.v > 10_000 {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 10000, got %d", bps.name, bps.v))
		}
	}
	if total := g.ProtocolFeeBps + g.CreatorFeeBps + g.LiquidityFeeBps; total > 10_000 {
		errs = append(errs, fmt.Sprintf("genesis fee bps sum to %d, must not exceed 10000", total))
	}
	for _, bps := range []struct {
		name string
		v    int64
	}{
		{"genesis.proposal_threshold_bps", g.ProposalThresholdBps},
		{"genesis.dispute_threshold_bps", g.DisputeThresholdBps},
	} {
		if bps.v < 0 || bps.v > 10_000 {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 10000, got %d", bps.name, bps.v))
		}
	}
	for _, d := range []struct {
		name string
		v    duration
	}{
		{"genesis.min_resolution_delay", g.MinResolutionDelay},
		{"genesis.dispute_window", g.DisputeWindow},
		{"genesis.max_market_age", g.MaxMarketAge},
	} {
		if d.v.Std() < 0 {
			errs = append(errs, d.name+" must not be negative")
		}
	}
	if g.MinResolverReputation < 0 {
		errs = append(errs, "genesis.min_resolver_reputation must not be negative")
	}
	if g.MinTradeSize < 0 {
		errs = append(errs, "genesis.min_trade_size must not be negative")
	}
	if g.MinPoolReserve < 0 {
		errs = append(errs, "genesis.min_pool_reserve must not be negative")
	}
	return errs
}

func (s *SimConfig) validate() []string {
	var errs []string
	if s.Markets < 1 {
		errs = append(errs, "sim.markets must be at least 1")
	}
	if s.Traders < 1 {
		errs = append(errs, "sim.traders must be at least 1")
	}
	if s.RoundsPerMkt < 1 {
		errs = append(errs, "sim.rounds_per_market must be at least 1")
	}
	if s.TraderFunds <= 0 {
		errs = append(errs, "sim.trader_funds must be positive")
	}
	if s.CreatorFunds <= 0 {
		errs = append(errs, "sim.creator_funds must be positive")
	}
	if s.MaxSpend <= 0 {
		errs = append(errs, "sim.max_spend must be positive")
	}
	if s.LiquidityB <= 0 {
		errs = append(errs, "sim.liquidity_b must be positive")
	}
	if s.Interval.Std() < 0 {
		errs = append(errs, "sim.interval must not be negative")
	}
	return errs
}
