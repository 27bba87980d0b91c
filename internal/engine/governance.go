package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
	"github.com/0xBased-lang/zmart-engine/internal/fixedpoint"
)

// voteStateAllowed gates ballots to the states they influence: proposal
// votes while the market awaits approval, dispute votes while a proposed
// resolution can still be challenged or overturned.
func voteStateAllowed(kind domain.VoteKind, state domain.MarketState) bool {
	switch kind {
	case domain.VoteKindProposal:
		return state == domain.MarketStateProposed
	case domain.VoteKindDispute:
		return state == domain.MarketStateResolving || state == domain.MarketStateDisputed
	}
	return false
}

// SubmitVote records one voter's ballot. A voter gets one vote per market
// per ballot kind; the store enforces the uniqueness.
func (e *Engine) SubmitVote(ctx context.Context, cap domain.Capability, marketID string, kind domain.VoteKind, choice domain.VoteChoice) (domain.Event, error) {
	const op = "engine: submit vote"

	cfg, err := e.loadConfig(ctx)
	if err != nil {
		return domain.Event{}, err
	}
	if err := requireRunning(cfg); err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	if cap.Actor == "" {
		return domain.Event{}, fmt.Errorf("%s: %w", op, domain.ErrUnauthorized)
	}
	if !kind.Valid() || !choice.Valid() {
		return domain.Event{}, fmt.Errorf("%s: %w: kind %q choice %q", op, domain.ErrInvalidParams, kind, choice)
	}
	m, err := e.loadMarket(ctx, marketID)
	if err != nil {
		return domain.Event{}, err
	}
	if !voteStateAllowed(kind, m.State) {
		return domain.Event{}, fmt.Errorf("%s: %w: %s votes not accepted in state %s",
			op, domain.ErrInvalidStateTransition, kind, m.State)
	}
	now := e.clock.Now().UTC()

	vote := domain.VoteRecord{
		MarketID:  marketID,
		Voter:     cap.Actor,
		Kind:      kind,
		Choice:    choice,
		CreatedAt: now,
	}
	err = e.store.WithinTx(ctx, func(s domain.Store) error {
		return s.Votes().Create(ctx, vote)
	})
	if err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}

	evt := newEvent(domain.EventVoteSubmitted, marketID, cap.Actor, now, map[string]any{
		"kind":   string(kind),
		"choice": string(choice),
	})
	e.logger.DebugContext(ctx, "engine: vote recorded",
		slog.String("market_id", marketID),
		slog.String("voter", cap.Actor),
		slog.String("kind", string(kind)),
		slog.String("choice", string(choice)),
	)
	return evt, nil
}

// AggregateVotes folds an off-engine tally batch into the market's ballot
// counters. It always writes the running totals and never transitions the
// market, whatever the tally says; approval is a separate authority's
// decision.
func (e *Engine) AggregateVotes(ctx context.Context, cap domain.Capability, marketID string, kind domain.VoteKind, likes, dislikes int64) (TallyReceipt, error) {
	const op = "engine: aggregate votes"

	cfg, err := e.loadConfig(ctx)
	if err != nil {
		return TallyReceipt{}, err
	}
	if err := requireRunning(cfg); err != nil {
		return TallyReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	if !cap.Is(domain.RoleAggregator) {
		return TallyReceipt{}, fmt.Errorf("%s: %w: aggregation authority required", op, domain.ErrUnauthorized)
	}
	if !kind.Valid() {
		return TallyReceipt{}, fmt.Errorf("%s: %w: kind %q", op, domain.ErrInvalidParams, kind)
	}
	if likes < 0 || dislikes < 0 {
		return TallyReceipt{}, fmt.Errorf("%s: %w: negative vote counts", op, domain.ErrInvalidParams)
	}
	m, err := e.loadMarket(ctx, marketID)
	if err != nil {
		return TallyReceipt{}, err
	}
	if !voteStateAllowed(kind, m.State) {
		return TallyReceipt{}, fmt.Errorf("%s: %w: %s ballot closed in state %s",
			op, domain.ErrInvalidStateTransition, kind, m.State)
	}
	now := e.clock.Now().UTC()
	if err := validateClockReading(m, now, cfg.MaxMarketAge); err != nil {
		return TallyReceipt{}, fmt.Errorf("%s: %w", op, err)
	}

	batch, err := fixedpoint.Add(likes, dislikes)
	if err != nil {
		return TallyReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	var tally domain.Tally
	var thresholdBps int64
	switch kind {
	case domain.VoteKindProposal:
		if m.ProposalLikes, err = fixedpoint.Add(m.ProposalLikes, likes); err != nil {
			return TallyReceipt{}, fmt.Errorf("%s: %w", op, err)
		}
		if m.ProposalDislikes, err = fixedpoint.Add(m.ProposalDislikes, dislikes); err != nil {
			return TallyReceipt{}, fmt.Errorf("%s: %w", op, err)
		}
		if m.ProposalTotalVotes, err = fixedpoint.Add(m.ProposalTotalVotes, batch); err != nil {
			return TallyReceipt{}, fmt.Errorf("%s: %w", op, err)
		}
		tally = m.ProposalTally()
		thresholdBps = cfg.ProposalThresholdBps
	case domain.VoteKindDispute:
		if m.DisputeLikes, err = fixedpoint.Add(m.DisputeLikes, likes); err != nil {
			return TallyReceipt{}, fmt.Errorf("%s: %w", op, err)
		}
		if m.DisputeDislikes, err = fixedpoint.Add(m.DisputeDislikes, dislikes); err != nil {
			return TallyReceipt{}, fmt.Errorf("%s: %w", op, err)
		}
		if m.DisputeTotalVotes, err = fixedpoint.Add(m.DisputeTotalVotes, batch); err != nil {
			return TallyReceipt{}, fmt.Errorf("%s: %w", op, err)
		}
		tally = m.DisputeTally()
		thresholdBps = cfg.DisputeThresholdBps
	}
	m.UpdatedAt = now

	err = e.store.WithinTx(ctx, func(s domain.Store) error {
		return s.Markets().Update(ctx, m)
	})
	if err != nil {
		return TallyReceipt{}, fmt.Errorf("%s: %w", op, err)
	}

	evt := newEvent(domain.EventVotesAggregated, marketID, cap.Actor, now, map[string]any{
		"kind":     string(kind),
		"likes":    tally.Likes,
		"dislikes": tally.Dislikes,
		"total":    tally.Total,
	})
	e.logger.InfoContext(ctx, "engine: votes aggregated",
		slog.String("market_id", marketID),
		slog.String("kind", string(kind)),
		slog.Int64("likes", tally.Likes),
		slog.Int64("dislikes", tally.Dislikes),
		slog.Int64("total", tally.Total),
	)
	return TallyReceipt{
		MarketID:     marketID,
		Kind:         kind,
		Tally:        tally,
		ThresholdBps: thresholdBps,
		ThresholdMet: tally.Meets(thresholdBps),
		Event:        evt,
	}, nil
}

// ApproveProposal re-validates the proposal ballot against the configured
// threshold and, only then, performs the proposed-to-approved transition.
// Tallies alone never move a market; this is the explicit approval step.
func (e *Engine) ApproveProposal(ctx context.Context, cap domain.Capability, marketID string) (domain.Event, error) {
	const op = "engine: approve proposal"

	cfg, err := e.loadConfig(ctx)
	if err != nil {
		return domain.Event{}, err
	}
	if err := requireRunning(cfg); err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	if !cap.CanGovern() {
		return domain.Event{}, fmt.Errorf("%s: %w: governance authority required", op, domain.ErrUnauthorized)
	}
	m, err := e.loadMarket(ctx, marketID)
	if err != nil {
		return domain.Event{}, err
	}
	now := e.clock.Now().UTC()
	if err := validateClockReading(m, now, cfg.MaxMarketAge); err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	tally := m.ProposalTally()
	if !tally.Meets(cfg.ProposalThresholdBps) {
		return domain.Event{}, fmt.Errorf("%s: %w: approval %d bps below threshold %d bps on %d votes",
			op, domain.ErrThresholdNotMet, tally.ApprovalBps(), cfg.ProposalThresholdBps, tally.Total)
	}
	if err := m.Transition(domain.MarketStateApproved); err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	m.ApprovedAt = &now
	m.UpdatedAt = now

	err = e.store.WithinTx(ctx, func(s domain.Store) error {
		return s.Markets().Update(ctx, m)
	})
	if err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}

	evt := newEvent(domain.EventProposalApproved, marketID, cap.Actor, now, map[string]any{
		"approval_bps": tally.ApprovalBps(),
		"total_votes":  tally.Total,
	})
	e.logger.InfoContext(ctx, "engine: proposal approved",
		slog.String("market_id", marketID),
		slog.Int64("approval_bps", tally.ApprovalBps()),
		slog.Int64("total_votes", tally.Total),
	)
	return evt, nil
}
