package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
)

func TestSubmitVoteOncePerBallot(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMarket(capCreator)

	_, err := env.eng.SubmitVote(env.ctx, capAlice, m.ID, domain.VoteKindProposal, domain.VoteChoiceApprove)
	require.NoError(t, err)

	_, err = env.eng.SubmitVote(env.ctx, capAlice, m.ID, domain.VoteKindProposal, domain.VoteChoiceReject)
	require.ErrorIs(t, err, domain.ErrDuplicateVote)

	// A different voter is fine.
	_, err = env.eng.SubmitVote(env.ctx, capBob, m.ID, domain.VoteKindProposal, domain.VoteChoiceReject)
	require.NoError(t, err)

	n, err := env.store.Votes().CountByMarket(env.ctx, m.ID, domain.VoteKindProposal)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestSubmitVoteStateGates(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMarket(capCreator)

	// Dispute ballots only run once a resolution has been proposed.
	_, err := env.eng.SubmitVote(env.ctx, capAlice, m.ID, domain.VoteKindDispute, domain.VoteChoiceApprove)
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	m = env.approveAndActivate(m)

	// Proposal ballots close once the market leaves the proposed state.
	_, err = env.eng.SubmitVote(env.ctx, capAlice, m.ID, domain.VoteKindProposal, domain.VoteChoiceApprove)
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestSubmitVoteRejectsBadBallot(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMarket(capCreator)

	_, err := env.eng.SubmitVote(env.ctx, capAlice, m.ID, "straw", domain.VoteChoiceApprove)
	require.ErrorIs(t, err, domain.ErrInvalidParams)

	_, err = env.eng.SubmitVote(env.ctx, capAlice, m.ID, domain.VoteKindProposal, "maybe")
	require.ErrorIs(t, err, domain.ErrInvalidParams)
}

func TestAggregateRequiresAggregationAuthority(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMarket(capCreator)

	for _, c := range []domain.Capability{capGov, capAdmin, capAlice} {
		_, err := env.eng.AggregateVotes(env.ctx, c, m.ID, domain.VoteKindProposal, 10, 0)
		require.ErrorIs(t, err, domain.ErrUnauthorized, "role %s", c.Role)
	}

	_, err := env.eng.AggregateVotes(env.ctx, capAgg, m.ID, domain.VoteKindProposal, 10, 0)
	require.NoError(t, err)
}

func TestAggregateAccumulatesWithoutTransition(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMarket(capCreator)

	rcpt, err := env.eng.AggregateVotes(env.ctx, capAgg, m.ID, domain.VoteKindProposal, 70, 10)
	require.NoError(t, err)
	require.Equal(t, domain.Tally{Likes: 70, Dislikes: 10, Total: 80}, rcpt.Tally)
	require.True(t, rcpt.ThresholdMet)

	env.clock.Advance(time.Minute)
	rcpt, err = env.eng.AggregateVotes(env.ctx, capAgg, m.ID, domain.VoteKindProposal, 5, 25)
	require.NoError(t, err)
	require.Equal(t, domain.Tally{Likes: 75, Dislikes: 35, Total: 110}, rcpt.Tally)

	// Whatever the tally says, aggregation leaves the state alone.
	got, err := env.eng.GetMarket(env.ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, domain.MarketStateProposed, got.State)
}

func TestAggregateRejectsNegativeCounts(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMarket(capCreator)

	_, err := env.eng.AggregateVotes(env.ctx, capAgg, m.ID, domain.VoteKindProposal, -1, 5)
	require.ErrorIs(t, err, domain.ErrInvalidParams)
}

func TestApproveProposalThreshold(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMarket(capCreator)

	// 30/100 approval sits below the 60% threshold.
	_, err := env.eng.AggregateVotes(env.ctx, capAgg, m.ID, domain.VoteKindProposal, 30, 70)
	require.NoError(t, err)
	_, err = env.eng.ApproveProposal(env.ctx, capGov, m.ID)
	require.ErrorIs(t, err, domain.ErrThresholdNotMet)

	// More support arrives: 200/270 is about 74%.
	env.clock.Advance(time.Minute)
	_, err = env.eng.AggregateVotes(env.ctx, capAgg, m.ID, domain.VoteKindProposal, 170, 0)
	require.NoError(t, err)
	_, err = env.eng.ApproveProposal(env.ctx, capGov, m.ID)
	require.NoError(t, err)

	got, err := env.eng.GetMarket(env.ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, domain.MarketStateApproved, got.State)
	require.NotNil(t, got.ApprovedAt)
}

func TestApproveEmptyBallot(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMarket(capCreator)

	_, err := env.eng.ApproveProposal(env.ctx, capGov, m.ID)
	require.ErrorIs(t, err, domain.ErrThresholdNotMet)
}

func TestApproveRequiresGovernance(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMarket(capCreator)
	_, err := env.eng.AggregateVotes(env.ctx, capAgg, m.ID, domain.VoteKindProposal, 100, 0)
	require.NoError(t, err)

	for _, c := range []domain.Capability{capAlice, capAgg, capCreator} {
		_, err := env.eng.ApproveProposal(env.ctx, c, m.ID)
		require.ErrorIs(t, err, domain.ErrUnauthorized, "role %s", c.Role)
	}

	// Admin subsumes governance.
	_, err = env.eng.ApproveProposal(env.ctx, capAdmin, m.ID)
	require.NoError(t, err)
}

func TestDisputeBallotRunsWhileResolving(t *testing.T) {
	env := newTestEnv(t)
	m := env.activeMarket(capCreator)
	env.clock.Advance(2 * time.Hour)
	_, err := env.eng.ProposeResolution(env.ctx, capGov, m.ID, domain.OutcomeYes)
	require.NoError(t, err)

	_, err = env.eng.SubmitVote(env.ctx, capAlice, m.ID, domain.VoteKindDispute, domain.VoteChoiceApprove)
	require.NoError(t, err)

	rcpt, err := env.eng.AggregateVotes(env.ctx, capAgg, m.ID, domain.VoteKindDispute, 1, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), rcpt.Tally.Total)

	// The proposal ballot on the same market is untouched.
	got, err := env.eng.GetMarket(env.ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, int64(100), got.ProposalTally().Total)
	require.Equal(t, int64(1), got.DisputeTally().Total)
}
