package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/0xBased-lang/zmart-engine/internal/config"
	"github.com/0xBased-lang/zmart-engine/internal/crypto"
	"github.com/0xBased-lang/zmart-engine/internal/domain"
	"github.com/0xBased-lang/zmart-engine/internal/engine"
	"github.com/0xBased-lang/zmart-engine/internal/sim"
)

// MigrateMode applies the configured backend's schema migrations and exits.
func (a *App) MigrateMode(ctx context.Context, deps *Dependencies) error {
	if deps.Migrate == nil {
		return fmt.Errorf("migrate: backend %s has no migrations", a.cfg.Store.Backend)
	}
	a.logger.InfoContext(ctx, "applying migrations", slog.String("backend", a.cfg.Store.Backend))
	if err := deps.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a.logger.InfoContext(ctx, "migrations applied")
	return nil
}

// BootstrapMode installs the genesis configuration into the store. Running
// it against an already bootstrapped store is a no-op.
func (a *App) BootstrapMode(ctx context.Context, deps *Dependencies) error {
	genesis := genesisConfig(a.cfg.Genesis)

	// When a keystore is configured, check the operator's signing key
	// against the genesis admin so a misconfigured deployment surfaces
	// now rather than at the first rejected challenge.
	if src, ok := a.keySource(); ok {
		signer, err := crypto.LoadSigner(src)
		switch {
		case err != nil:
			a.logger.WarnContext(ctx, "keystore unreadable, skipping admin key check",
				slog.String("path", a.cfg.Keystore.Path),
				slog.String("error", err.Error()),
			)
		case !strings.EqualFold(signer.Address(), genesis.Admin):
			a.logger.WarnContext(ctx, "keystore key does not match genesis admin",
				slog.String("keystore_address", signer.Address()),
				slog.String("genesis_admin", genesis.Admin),
			)
		}
	}

	run := a.newRunner(deps)
	_, err := run.Bootstrap(ctx, genesis)
	switch {
	case errors.Is(err, domain.ErrAlreadyExists):
		a.logger.InfoContext(ctx, "engine already bootstrapped, keeping existing config")
		return nil
	case err != nil:
		return fmt.Errorf("bootstrap: %w", err)
	}

	a.logger.InfoContext(ctx, "genesis config installed",
		slog.String("admin", genesis.Admin),
		slog.String("treasury", genesis.Treasury),
		slog.Int64("total_fee_bps", genesis.TotalFeeBps()),
	)
	return nil
}

// SimulateMode runs the lifecycle simulator against the wired backend and
// logs the run summary.
func (a *App) SimulateMode(ctx context.Context, deps *Dependencies) error {
	if deps.SimClock == nil {
		return errors.New("simulate: no simulation clock wired")
	}

	run := a.newRunner(deps)
	auth := crypto.NewAuthenticator(deps.Clock, 5*time.Minute)
	s := sim.New(run, deps.Bank, deps.SimClock, auth, genesisConfig(a.cfg.Genesis), simConfig(a.cfg.Sim), a.logger)

	sum, err := s.Run(ctx)
	if err != nil {
		return fmt.Errorf("simulate: %w", err)
	}
	a.logger.InfoContext(ctx, "simulation complete",
		slog.String("run_id", sum.RunID),
		slog.Int("markets", sum.Markets),
		slog.Int("finalized", sum.Finalized),
		slog.Int("rejected", sum.Rejected),
		slog.Int("disputed", sum.Disputed),
		slog.Int("overturned", sum.Overturned),
		slog.Int64("trades", sum.Trades),
		slog.Int64("volume", sum.Volume),
		slog.Int64("claims", sum.Claims),
		slog.Int64("paid_out", sum.Paid),
		slog.Int64("treasury", sum.Treasury),
	)
	return nil
}

// newRunner assembles the engine and its hosting shell from wired
// dependencies.
func (a *App) newRunner(deps *Dependencies) *sim.Runner {
	eng := engine.New(deps.Store, deps.Bank, deps.Clock, a.logger)
	return sim.NewRunner(eng, sim.RunnerOptions{
		Bus:     deps.Bus,
		Audit:   deps.Audit,
		Prices:  deps.Prices,
		Locks:   deps.Locks,
		LockTTL: a.cfg.Redis.LockTTL.Std(),
	}, a.logger)
}

// keySource reports the configured keystore source, if any.
func (a *App) keySource() (crypto.KeySource, bool) {
	if a.cfg.Keystore.Path == "" || a.cfg.Keystore.Password == "" {
		return crypto.KeySource{}, false
	}
	return crypto.KeySource{
		Path:     a.cfg.Keystore.Path,
		Password: a.cfg.Keystore.Password,
	}, true
}

// genesisConfig maps the file-level genesis section onto the engine's
// global config.
func genesisConfig(g config.GenesisConfig) domain.GlobalConfig {
	return domain.GlobalConfig{
		Admin:                 g.Admin,
		GovernanceAuthority:   g.GovernanceAuthority,
		AggregationAuthority:  g.AggregationAuthority,
		Treasury:              g.Treasury,
		ProtocolFeeBps:        g.ProtocolFeeBps,
		CreatorFeeBps:         g.CreatorFeeBps,
		LiquidityFeeBps:       g.LiquidityFeeBps,
		ProposalThresholdBps:  g.ProposalThresholdBps,
		DisputeThresholdBps:   g.DisputeThresholdBps,
		MinResolutionDelay:    g.MinResolutionDelay.Std(),
		DisputeWindow:         g.DisputeWindow.Std(),
		MaxMarketAge:          g.MaxMarketAge.Std(),
		MinResolverReputation: g.MinResolverReputation,
		MinTradeSize:          g.MinTradeSize,
		MinPoolReserve:        g.MinPoolReserve,
	}
}

// simConfig maps the file-level sim section onto the simulator's config.
func simConfig(s config.SimConfig) sim.Config {
	return sim.Config{
		Markets:      s.Markets,
		Traders:      s.Traders,
		Rounds:       s.RoundsPerMkt,
		Seed:         s.Seed,
		TraderFunds:  s.TraderFunds,
		CreatorFunds: s.CreatorFunds,
		MaxSpend:     s.MaxSpend,
		LiquidityB:   s.LiquidityB,
		Interval:     s.Interval.Std(),
	}
}
