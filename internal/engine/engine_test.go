package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/0xBased-lang/zmart-engine/internal/bank"
	"github.com/0xBased-lang/zmart-engine/internal/domain"
	"github.com/0xBased-lang/zmart-engine/internal/fixedpoint"
	"github.com/0xBased-lang/zmart-engine/internal/store/memory"
)

const unit = fixedpoint.Scale

var (
	capAdmin   = domain.Capability{Actor: "admin", Role: domain.RoleAdmin}
	capGov     = domain.Capability{Actor: "gov", Role: domain.RoleGovernance}
	capAgg     = domain.Capability{Actor: "agg", Role: domain.RoleAggregator}
	capAlice   = domain.Capability{Actor: "alice", Role: domain.RoleTrader}
	capBob     = domain.Capability{Actor: "bob", Role: domain.RoleTrader}
	capCreator = domain.Capability{Actor: "carol", Role: domain.RoleTrader}
)

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testConfig() domain.GlobalConfig {
	return domain.GlobalConfig{
		Admin:                 "admin",
		GovernanceAuthority:   "gov",
		AggregationAuthority:  "agg",
		Treasury:              "treasury",
		ProtocolFeeBps:        200,
		CreatorFeeBps:         100,
		LiquidityFeeBps:       700,
		ProposalThresholdBps:  6_000,
		DisputeThresholdBps:   6_000,
		MinResolutionDelay:    time.Hour,
		DisputeWindow:         24 * time.Hour,
		MaxMarketAge:          90 * 24 * time.Hour,
		MinResolverReputation: 100,
		MinTradeSize:          1_000_000,
		MinPoolReserve:        0,
	}
}

type testEnv struct {
	t      *testing.T
	ctx    context.Context
	eng    *Engine
	store  *memory.Store
	ledger *bank.Ledger
	clock  *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := memory.New()
	lg := bank.NewLedger()
	clk := &fakeClock{now: testStart}
	eng := New(st, lg, clk, slog.New(slog.NewTextHandler(io.Discard, nil)))
	env := &testEnv{t: t, ctx: context.Background(), eng: eng, store: st, ledger: lg, clock: clk}
	_, err := eng.Bootstrap(env.ctx, testConfig())
	require.NoError(t, err)
	return env
}

func (env *testEnv) mint(account string, amount int64) {
	env.t.Helper()
	require.NoError(env.t, env.ledger.Mint(env.ctx, account, amount))
}

func (env *testEnv) balance(account string) int64 {
	env.t.Helper()
	b, err := env.ledger.Balance(env.ctx, account)
	require.NoError(env.t, err)
	return b
}

func (env *testEnv) supply() int64 {
	env.t.Helper()
	total, err := env.ledger.TotalSupply(env.ctx)
	require.NoError(env.t, err)
	return total
}

// createMarket funds the creator and proposes a market with b = 100 units
// and 100 units of escrowed collateral.
func (env *testEnv) createMarket(creator domain.Capability) domain.Market {
	env.t.Helper()
	env.mint(creator.Actor, 200*unit)
	rcpt, err := env.eng.CreateMarket(env.ctx, creator, CreateMarketParams{
		LiquidityB:       100 * unit,
		InitialLiquidity: 100 * unit,
	})
	require.NoError(env.t, err)
	return rcpt.Market
}

func (env *testEnv) approveAndActivate(m domain.Market) domain.Market {
	env.t.Helper()
	_, err := env.eng.AggregateVotes(env.ctx, capAgg, m.ID, domain.VoteKindProposal, 80, 20)
	require.NoError(env.t, err)
	env.clock.Advance(time.Minute)
	_, err = env.eng.ApproveProposal(env.ctx, capGov, m.ID)
	require.NoError(env.t, err)
	env.clock.Advance(time.Minute)
	_, err = env.eng.ActivateMarket(env.ctx, capGov, m.ID)
	require.NoError(env.t, err)
	got, err := env.eng.GetMarket(env.ctx, m.ID)
	require.NoError(env.t, err)
	return got
}

func (env *testEnv) activeMarket(creator domain.Capability) domain.Market {
	env.t.Helper()
	return env.approveAndActivate(env.createMarket(creator))
}

func TestBootstrapOnce(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.eng.Bootstrap(env.ctx, testConfig())
	require.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestBootstrapValidates(t *testing.T) {
	st := memory.New()
	eng := New(st, bank.NewLedger(), &fakeClock{now: testStart}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	cfg := testConfig()
	cfg.Admin = ""
	_, err := eng.Bootstrap(context.Background(), cfg)
	require.ErrorIs(t, err, domain.ErrInvalidParams)

	cfg = testConfig()
	cfg.ProtocolFeeBps = 11_000
	_, err = eng.Bootstrap(context.Background(), cfg)
	require.ErrorIs(t, err, domain.ErrInvalidParams)
}

func TestCreateMarketEscrowsCollateral(t *testing.T) {
	env := newTestEnv(t)

	m := env.createMarket(capCreator)
	require.Equal(t, domain.MarketStateProposed, m.State)
	require.Equal(t, int64(100*unit), env.balance(domain.PoolAccount(m.ID)))
	require.Equal(t, int64(100*unit), env.balance(capCreator.Actor))
	require.Zero(t, m.SharesYes)
	require.Zero(t, m.SharesNo)
}

func TestCreateMarketRejectsUnderfundedPool(t *testing.T) {
	env := newTestEnv(t)
	env.mint(capCreator.Actor, 200*unit)

	// b*ln2 for b = 100 units is about 69.3 units.
	_, err := env.eng.CreateMarket(env.ctx, capCreator, CreateMarketParams{
		LiquidityB:       100 * unit,
		InitialLiquidity: 50 * unit,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientReserve)
}

func TestCreateMarketRequiresFunds(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.eng.CreateMarket(env.ctx, capAlice, CreateMarketParams{
		LiquidityB:       100 * unit,
		InitialLiquidity: 100 * unit,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestCreateMarketRejectsDirtyReservedField(t *testing.T) {
	env := newTestEnv(t)
	env.mint(capCreator.Actor, 200*unit)

	p := CreateMarketParams{LiquidityB: 100 * unit, InitialLiquidity: 100 * unit}
	p.Reserved[3] = 1
	_, err := env.eng.CreateMarket(env.ctx, capCreator, p)
	require.ErrorIs(t, err, domain.ErrInvalidReservedField)
}

func TestCreateMarketRejectsTinyLiquidity(t *testing.T) {
	env := newTestEnv(t)
	env.mint(capCreator.Actor, 200*unit)

	_, err := env.eng.CreateMarket(env.ctx, capCreator, CreateMarketParams{
		LiquidityB:       unit / 2,
		InitialLiquidity: 100 * unit,
	})
	require.ErrorIs(t, err, domain.ErrInvalidParams)
}

func TestLifecycleOrderEnforced(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMarket(capCreator)

	// Activation requires the approved state.
	_, err := env.eng.ActivateMarket(env.ctx, capGov, m.ID)
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	// Trading requires the active state.
	env.mint(capAlice.Actor, 100*unit)
	_, err = env.eng.BuyShares(env.ctx, capAlice, BuyParams{MarketID: m.ID, Outcome: domain.OutcomeYes, MaxSpend: 10 * unit})
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	// Resolution requires the active state.
	_, err = env.eng.ProposeResolution(env.ctx, capGov, m.ID, domain.OutcomeYes)
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestActivateRequiresCreatorOrGovernance(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMarket(capCreator)
	_, err := env.eng.AggregateVotes(env.ctx, capAgg, m.ID, domain.VoteKindProposal, 80, 20)
	require.NoError(t, err)
	_, err = env.eng.ApproveProposal(env.ctx, capGov, m.ID)
	require.NoError(t, err)

	_, err = env.eng.ActivateMarket(env.ctx, capAlice, m.ID)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = env.eng.ActivateMarket(env.ctx, capCreator, m.ID)
	require.NoError(t, err)
}

// Two engines fed the same inputs from the same clock must produce
// identical identifiers, state, and events.
func TestDeterministicReplay(t *testing.T) {
	run := func() (domain.Market, BuyReceipt) {
		env := newTestEnv(t)
		m := env.activeMarket(capCreator)
		env.mint(capAlice.Actor, 100*unit)
		env.clock.Advance(time.Minute)
		rcpt, err := env.eng.BuyShares(env.ctx, capAlice, BuyParams{
			MarketID: m.ID,
			Outcome:  domain.OutcomeYes,
			MaxSpend: 10 * unit,
		})
		require.NoError(t, err)
		final, err := env.eng.GetMarket(env.ctx, m.ID)
		require.NoError(t, err)
		return final, rcpt
	}

	m1, r1 := run()
	m2, r2 := run()
	require.Equal(t, m1.ID, m2.ID)
	require.Equal(t, m1, m2)
	require.Equal(t, r1.Event.ID, r2.Event.ID)
	require.Equal(t, r1.Shares, r2.Shares)
	require.Equal(t, r1.Charged, r2.Charged)
}

func TestGetSnapshot(t *testing.T) {
	env := newTestEnv(t)
	m := env.activeMarket(capCreator)

	snap, err := env.eng.GetSnapshot(env.ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, m.ID, snap.Market.ID)
	require.Equal(t, int64(unit/2), snap.PriceYes)
	require.Equal(t, int64(unit/2), snap.PriceNo)
	require.Equal(t, int64(100*unit), snap.PoolBalance)
	// Empty book cost is b*ln2, which is also the bounded loss.
	require.Equal(t, snap.Cost, snap.MaxLoss)
}
