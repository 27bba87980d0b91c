package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
)

// tradedMarket sets up an active market where alice holds yes shares and
// bob holds no shares.
func (env *testEnv) tradedMarket() (domain.Market, BuyReceipt, BuyReceipt) {
	env.t.Helper()
	m := env.activeMarket(capCreator)
	env.mint(capAlice.Actor, 100*unit)
	env.mint(capBob.Actor, 100*unit)

	yes, err := env.eng.BuyShares(env.ctx, capAlice, BuyParams{
		MarketID: m.ID, Outcome: domain.OutcomeYes, MaxSpend: 20 * unit,
	})
	require.NoError(env.t, err)
	env.clock.Advance(time.Minute)
	no, err := env.eng.BuyShares(env.ctx, capBob, BuyParams{
		MarketID: m.ID, Outcome: domain.OutcomeNo, MaxSpend: 15 * unit,
	})
	require.NoError(env.t, err)
	return m, yes, no
}

func (env *testEnv) resolvingMarket() (domain.Market, BuyReceipt, BuyReceipt) {
	env.t.Helper()
	m, yes, no := env.tradedMarket()
	env.clock.Advance(2 * time.Hour)
	_, err := env.eng.ProposeResolution(env.ctx, capGov, m.ID, domain.OutcomeYes)
	require.NoError(env.t, err)
	return m, yes, no
}

func TestResolutionHappyPath(t *testing.T) {
	env := newTestEnv(t)
	m, yes, _ := env.resolvingMarket()

	got, err := env.eng.GetMarket(env.ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, domain.MarketStateResolving, got.State)
	require.NotNil(t, got.ProposedOutcome)
	require.Equal(t, domain.OutcomeYes, *got.ProposedOutcome)
	require.NotNil(t, got.ResolutionProposedAt)

	// Past the dispute window anyone may finalize; the proposal stands.
	env.clock.Advance(25 * time.Hour)
	fin, err := env.eng.FinalizeMarket(env.ctx, capAlice, m.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeYes, fin.Winning)
	require.False(t, fin.Overturned)
	require.Equal(t, domain.MarketStateFinalized, fin.Market.State)
	require.NotNil(t, fin.Market.FinalizedAt)

	// Winning-side shares stay on the book for claims to redeem.
	require.Equal(t, yes.Shares, fin.Market.SharesYes)
}

func TestProposeResolutionTooEarly(t *testing.T) {
	env := newTestEnv(t)
	m := env.activeMarket(capCreator)

	_, err := env.eng.ProposeResolution(env.ctx, capGov, m.ID, domain.OutcomeYes)
	require.ErrorIs(t, err, domain.ErrTooEarly)

	env.clock.Advance(2 * time.Hour)
	_, err = env.eng.ProposeResolution(env.ctx, capGov, m.ID, domain.OutcomeYes)
	require.NoError(t, err)
}

func TestProposeResolutionReputationGate(t *testing.T) {
	env := newTestEnv(t)
	m := env.activeMarket(capCreator)
	env.clock.Advance(2 * time.Hour)

	_, err := env.eng.ProposeResolution(env.ctx, capAlice, m.ID, domain.OutcomeNo)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	resolver := domain.Capability{Actor: "alice", Role: domain.RoleTrader, Reputation: 150}
	_, err = env.eng.ProposeResolution(env.ctx, resolver, m.ID, domain.OutcomeNo)
	require.NoError(t, err)
}

func TestDisputeWindowCloses(t *testing.T) {
	env := newTestEnv(t)
	m, _, _ := env.resolvingMarket()

	env.clock.Advance(25 * time.Hour)
	_, err := env.eng.DisputeResolution(env.ctx, capAlice, m.ID)
	require.ErrorIs(t, err, domain.ErrDisputeWindowClosed)
}

func TestFinalizeResolvingBeforeWindowNeedsGovernance(t *testing.T) {
	env := newTestEnv(t)
	m, _, _ := env.resolvingMarket()

	env.clock.Advance(time.Hour)
	_, err := env.eng.FinalizeMarket(env.ctx, capAlice, m.ID)
	require.ErrorIs(t, err, domain.ErrTooEarly)

	fin, err := env.eng.FinalizeMarket(env.ctx, capGov, m.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeYes, fin.Winning)
}

func TestDisputeOverturnsOutcome(t *testing.T) {
	env := newTestEnv(t)
	m, _, no := env.resolvingMarket()

	env.clock.Advance(time.Hour)
	_, err := env.eng.DisputeResolution(env.ctx, capBob, m.ID)
	require.NoError(t, err)

	// 70% of the dispute ballot backs the challenge.
	env.clock.Advance(time.Minute)
	rcpt, err := env.eng.AggregateVotes(env.ctx, capAgg, m.ID, domain.VoteKindDispute, 70, 30)
	require.NoError(t, err)
	require.True(t, rcpt.ThresholdMet)

	env.clock.Advance(time.Minute)
	fin, err := env.eng.FinalizeMarket(env.ctx, capGov, m.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeNo, fin.Winning)
	require.True(t, fin.Overturned)

	// The no side is now the winning side.
	env.clock.Advance(time.Minute)
	claim, err := env.eng.ClaimWinnings(env.ctx, capBob, m.ID)
	require.NoError(t, err)
	require.Equal(t, no.Shares, claim.Gross)
}

func TestDisputeBelowThresholdKeepsOutcome(t *testing.T) {
	env := newTestEnv(t)
	m, _, _ := env.resolvingMarket()

	env.clock.Advance(time.Hour)
	_, err := env.eng.DisputeResolution(env.ctx, capBob, m.ID)
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	_, err = env.eng.AggregateVotes(env.ctx, capAgg, m.ID, domain.VoteKindDispute, 30, 70)
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	fin, err := env.eng.FinalizeMarket(env.ctx, capGov, m.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeYes, fin.Winning)
	require.False(t, fin.Overturned)
}

func TestFinalizeDisputedNeedsGovernance(t *testing.T) {
	env := newTestEnv(t)
	m, _, _ := env.resolvingMarket()

	env.clock.Advance(time.Hour)
	_, err := env.eng.DisputeResolution(env.ctx, capBob, m.ID)
	require.NoError(t, err)

	env.clock.Advance(30 * time.Hour)
	_, err = env.eng.FinalizeMarket(env.ctx, capAlice, m.ID)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = env.eng.FinalizeMarket(env.ctx, capGov, m.ID)
	require.NoError(t, err)
}

func TestClaimPaysWinnersOnce(t *testing.T) {
	env := newTestEnv(t)
	m, yes, _ := env.resolvingMarket()
	supplyBefore := env.supply()

	env.clock.Advance(25 * time.Hour)
	_, err := env.eng.FinalizeMarket(env.ctx, capGov, m.ID)
	require.NoError(t, err)

	pool := domain.PoolAccount(m.ID)
	prePool := env.balance(pool)
	preAlice := env.balance(capAlice.Actor)
	preTreasury := env.balance("treasury")

	env.clock.Advance(time.Minute)
	claim, err := env.eng.ClaimWinnings(env.ctx, capAlice, m.ID)
	require.NoError(t, err)
	require.Equal(t, yes.Shares, claim.Gross)
	require.Equal(t, claim.Gross-claim.Fees.Total, claim.Received)
	require.Equal(t, claim.Received, env.balance(capAlice.Actor)-preAlice)
	require.Equal(t, claim.Fees.Protocol, env.balance("treasury")-preTreasury)
	require.Equal(t, claim.Gross-claim.Fees.Liquidity, prePool-env.balance(pool))

	_, err = env.eng.ClaimWinnings(env.ctx, capAlice, m.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	require.Equal(t, supplyBefore, env.supply())
}

func TestClaimLosingSideSettlesAtZero(t *testing.T) {
	env := newTestEnv(t)
	m, _, _ := env.resolvingMarket()

	env.clock.Advance(25 * time.Hour)
	_, err := env.eng.FinalizeMarket(env.ctx, capGov, m.ID)
	require.NoError(t, err)

	preBob := env.balance(capBob.Actor)
	claim, err := env.eng.ClaimWinnings(env.ctx, capBob, m.ID)
	require.NoError(t, err)
	require.Zero(t, claim.Gross)
	require.Zero(t, claim.Received)
	require.Equal(t, preBob, env.balance(capBob.Actor))

	_, err = env.eng.ClaimWinnings(env.ctx, capBob, m.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyClaimed)
}

func TestClaimRequiresFinalized(t *testing.T) {
	env := newTestEnv(t)
	m, _, _ := env.tradedMarket()

	_, err := env.eng.ClaimWinnings(env.ctx, capAlice, m.ID)
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestClaimWithoutPosition(t *testing.T) {
	env := newTestEnv(t)
	m, _, _ := env.resolvingMarket()
	env.clock.Advance(25 * time.Hour)
	_, err := env.eng.FinalizeMarket(env.ctx, capGov, m.ID)
	require.NoError(t, err)

	_, err = env.eng.ClaimWinnings(env.ctx, capCreator, m.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClaimHeldLatchRejected(t *testing.T) {
	env := newTestEnv(t)
	m, _, _ := env.resolvingMarket()
	env.clock.Advance(25 * time.Hour)
	_, err := env.eng.FinalizeMarket(env.ctx, capGov, m.ID)
	require.NoError(t, err)

	require.NoError(t, env.store.Markets().TryLock(env.ctx, m.ID))
	_, err = env.eng.ClaimWinnings(env.ctx, capAlice, m.ID)
	require.ErrorIs(t, err, domain.ErrReentrant)

	require.NoError(t, env.store.Markets().Unlock(env.ctx, m.ID))
	_, err = env.eng.ClaimWinnings(env.ctx, capAlice, m.ID)
	require.NoError(t, err)
}

// The pool always covers every claim after an honestly funded lifecycle:
// collateral at creation plus trade revenue exceed the winning side's face
// value by the bounded-loss guarantee.
func TestSettlementSolvency(t *testing.T) {
	env := newTestEnv(t)
	m, _, _ := env.resolvingMarket()
	supplyBefore := env.supply()

	env.clock.Advance(25 * time.Hour)
	_, err := env.eng.FinalizeMarket(env.ctx, capGov, m.ID)
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	_, err = env.eng.ClaimWinnings(env.ctx, capAlice, m.ID)
	require.NoError(t, err)
	env.clock.Advance(time.Minute)
	_, err = env.eng.ClaimWinnings(env.ctx, capBob, m.ID)
	require.NoError(t, err)

	require.GreaterOrEqual(t, env.balance(domain.PoolAccount(m.ID)), int64(0))
	require.Equal(t, supplyBefore, env.supply())
}
