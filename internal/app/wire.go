package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/0xBased-lang/zmart-engine/internal/bank"
	"github.com/0xBased-lang/zmart-engine/internal/cache/redis"
	"github.com/0xBased-lang/zmart-engine/internal/config"
	"github.com/0xBased-lang/zmart-engine/internal/domain"
	"github.com/0xBased-lang/zmart-engine/internal/sim"
	"github.com/0xBased-lang/zmart-engine/internal/store/memory"
	"github.com/0xBased-lang/zmart-engine/internal/store/postgres"
	"github.com/0xBased-lang/zmart-engine/internal/store/sqlite"
)

// Dependencies bundles the collaborators the application modes operate on.
// Optional legs (audit, bus, prices, locks) stay nil when the configured
// backend does not provide them.
type Dependencies struct {
	Store domain.Store
	Bank  domain.Bank
	Clock domain.Clock

	// SimClock is the advanceable clock behind Clock in simulate mode.
	SimClock *sim.Clock

	Audit  domain.AuditStore
	Bus    domain.EventBus
	Prices sim.PriceSink
	Locks  sim.Locker

	// Migrate applies the backend's schema migrations. Nil for the
	// memory backend.
	Migrate func(context.Context) error
}

// Wire constructs the concrete dependency implementations from the
// configuration and returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Bank: bank.NewLedger(),
	}

	// The engine reads one clock; the simulator needs to own it.
	if cfg.Mode == "simulate" {
		sc := sim.NewClock(time.Now().UTC())
		deps.Clock = sc
		deps.SimClock = sc
	} else {
		deps.Clock = domain.SystemClock{}
	}

	switch cfg.Store.Backend {
	case "memory":
		deps.Store = memory.New()

	case "sqlite":
		db, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: sqlite: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })
		if err := sqlite.Migrate(db); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: sqlite migrations: %w", err)
		}
		deps.Store = sqlite.NewStore(db)
		deps.Migrate = func(context.Context) error { return sqlite.Migrate(db) }

	case "postgres":
		client, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, client.Close)
		if cfg.Postgres.RunMigrations {
			if err := client.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Store = postgres.NewStore(client)
		deps.Migrate = client.RunMigrations

	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unknown store backend %q", cfg.Store.Backend)
	}

	// The engine never audits; backends expose the audit log outside the
	// domain.Store interface and the runner picks it up here.
	if a, ok := deps.Store.(interface{ Audit() domain.AuditStore }); ok {
		deps.Audit = a.Audit()
	}

	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.Bus = redis.NewEventBus(rc, cfg.Redis.StreamMaxLen)
		deps.Prices = priceSink{pc: redis.NewPriceCache(rc)}
		deps.Locks = redis.NewLockManager(rc)
		logger.InfoContext(ctx, "redis plumbing attached",
			slog.String("addr", cfg.Redis.Addr),
			slog.Int64("stream_max_len", cfg.Redis.StreamMaxLen),
		)
	}

	return deps, cleanup, nil
}

// priceSink adapts the Redis price cache to the runner's sink interface.
type priceSink struct {
	pc *redis.PriceCache
}

func (s priceSink) SetPrice(ctx context.Context, marketID string, priceYes, priceNo int64, at time.Time) error {
	return s.pc.SetPrice(ctx, marketID, redis.MarketPrice{
		PriceYes: priceYes,
		PriceNo:  priceNo,
		At:       at,
	})
}
