package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
	"github.com/0xBased-lang/zmart-engine/internal/fees"
)

// finalizeSlack absorbs fixed-point truncation when checking that a pool
// covers the winning side at face value.
const finalizeSlack = 1_000

// ProposeResolution moves an active market into the resolving state with a
// proposed winning outcome. Governance may always propose; other actors
// need the configured resolver reputation.
func (e *Engine) ProposeResolution(ctx context.Context, cap domain.Capability, marketID string, outcome domain.Outcome) (domain.Event, error) {
	const op = "engine: propose resolution"

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
	if !outcome.Valid() {
		return domain.Event{}, fmt.Errorf("%s: %w: outcome %q", op, domain.ErrInvalidParams, outcome)
	}
	m, err := e.loadMarket(ctx, marketID)
	if err != nil {
		return domain.Event{}, err
	}
	if !cap.CanGovern() && cap.Reputation < cfg.MinResolverReputation {
		return domain.Event{}, fmt.Errorf("%s: %w: reputation %d below resolver floor %d",
			op, domain.ErrUnauthorized, cap.Reputation, cfg.MinResolverReputation)
	}
	// Age limits do not apply here: a market past its trading horizon still
	// has to be resolved.
	now := e.clock.Now().UTC()
	if err := validateClockReading(m, now, 0); err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	if m.ApprovedAt != nil && cfg.MinResolutionDelay > 0 {
		if earliest := m.ApprovedAt.Add(cfg.MinResolutionDelay); now.Before(earliest) {
			return domain.Event{}, fmt.Errorf("%s: %w: resolution opens at %s",
				op, domain.ErrTooEarly, earliest.Format("2006-01-02T15:04:05Z"))
		}
	}
	if err := m.Transition(domain.MarketStateResolving); err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	proposed := outcome
	m.ProposedOutcome = &proposed
	m.ResolutionProposedAt = &now
	m.UpdatedAt = now

	err = e.store.WithinTx(ctx, func(s domain.Store) error {
		return s.Markets().Update(ctx, m)
	})
	if err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}

	evt := newEvent(domain.EventResolutionProposed, marketID, cap.Actor, now, map[string]any{
		"outcome": string(outcome),
	})
	e.logger.InfoContext(ctx, "engine: resolution proposed",
		slog.String("market_id", marketID),
		slog.String("actor", cap.Actor),
		slog.String("outcome", string(outcome)),
	)
	return evt, nil
}

// DisputeResolution escalates a resolving market into the disputed state.
// Any actor may dispute while the window is open; the dispute ballot then
// decides the final outcome under governance.
func (e *Engine) DisputeResolution(ctx context.Context, cap domain.Capability, marketID string) (domain.Event, error) {
	const op = "engine: dispute resolution"

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
	m, err := e.loadMarket(ctx, marketID)
	if err != nil {
		return domain.Event{}, err
	}
	now := e.clock.Now().UTC()
	if err := validateClockReading(m, now, 0); err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	if m.ResolutionProposedAt != nil {
		if deadline := m.ResolutionProposedAt.Add(cfg.DisputeWindow); now.After(deadline) {
			return domain.Event{}, fmt.Errorf("%s: %w: window closed at %s",
				op, domain.ErrDisputeWindowClosed, deadline.Format("2006-01-02T15:04:05Z"))
		}
	}
	if err := m.Transition(domain.MarketStateDisputed); err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	m.UpdatedAt = now

	err = e.store.WithinTx(ctx, func(s domain.Store) error {
		return s.Markets().Update(ctx, m)
	})
	if err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}

	detail := map[string]any{}
	if m.ProposedOutcome != nil {
		detail["proposed"] = string(*m.ProposedOutcome)
	}
	evt := newEvent(domain.EventResolutionDisputed, marketID, cap.Actor, now, detail)
	e.logger.InfoContext(ctx, "engine: resolution disputed",
		slog.String("market_id", marketID),
		slog.String("actor", cap.Actor),
	)
	return evt, nil
}

// FinalizeMarket locks in the winning outcome. From resolving, governance
// may finalize at any time and anyone else once the dispute window has
// lapsed; the proposed outcome stands. From disputed only governance may
// finalize, and a dispute ballot meeting its threshold overturns the
// proposed outcome.
func (e *Engine) FinalizeMarket(ctx context.Context, cap domain.Capability, marketID string) (FinalizeReceipt, error) {
	const op = "engine: finalize market"

	cfg, err := e.loadConfig(ctx)
	if err != nil {
		return FinalizeReceipt{}, err
	}
	if err := requireRunning(cfg); err != nil {
		return FinalizeReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	if cap.Actor == "" {
		return FinalizeReceipt{}, fmt.Errorf("%s: %w", op, domain.ErrUnauthorized)
	}
	m, err := e.loadMarket(ctx, marketID)
	if err != nil {
		return FinalizeReceipt{}, err
	}
	now := e.clock.Now().UTC()
	if err := validateClockReading(m, now, 0); err != nil {
		return FinalizeReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	if m.ProposedOutcome == nil {
		return FinalizeReceipt{}, fmt.Errorf("%s: %w: no proposed outcome", op, domain.ErrInvalidStateTransition)
	}

	winning := *m.ProposedOutcome
	overturned := false
	switch m.State {
	case domain.MarketStateResolving:
		if !cap.CanGovern() {
			open := m.ResolutionProposedAt == nil ||
				now.Before(m.ResolutionProposedAt.Add(cfg.DisputeWindow))
			if open {
				return FinalizeReceipt{}, fmt.Errorf("%s: %w: dispute window still open", op, domain.ErrTooEarly)
			}
		}
	case domain.MarketStateDisputed:
		if !cap.CanGovern() {
			return FinalizeReceipt{}, fmt.Errorf("%s: %w: disputed market needs governance", op, domain.ErrUnauthorized)
		}
		if m.DisputeTally().Meets(cfg.DisputeThresholdBps) {
			winning = winning.Opposite()
			overturned = true
		}
	default:
		return FinalizeReceipt{}, fmt.Errorf("%s: %w: %s -> %s",
			op, domain.ErrInvalidStateTransition, m.State, domain.MarketStateFinalized)
	}

	// The pool must hold the winning side's face value before claims open.
	winningShares := m.Shares(winning)
	poolBalance, err := e.bank.Balance(ctx, domain.PoolAccount(m.ID))
	if err != nil {
		return FinalizeReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	if poolBalance+finalizeSlack < winningShares {
		return FinalizeReceipt{}, fmt.Errorf("%s: %w: pool %d cannot cover winning side %d",
			op, domain.ErrInsufficientReserve, poolBalance, winningShares)
	}

	if err := m.Transition(domain.MarketStateFinalized); err != nil {
		return FinalizeReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	m.WinningOutcome = &winning
	m.FinalizedAt = &now
	m.UpdatedAt = now

	err = e.store.WithinTx(ctx, func(s domain.Store) error {
		return s.Markets().Update(ctx, m)
	})
	if err != nil {
		return FinalizeReceipt{}, fmt.Errorf("%s: %w", op, err)
	}

	evt := newEvent(domain.EventMarketFinalized, marketID, cap.Actor, now, map[string]any{
		"winning":    string(winning),
		"overturned": overturned,
	})
	e.logger.InfoContext(ctx, "engine: market finalized",
		slog.String("market_id", marketID),
		slog.String("actor", cap.Actor),
		slog.String("winning", string(winning)),
		slog.Bool("overturned", overturned),
	)
	return FinalizeReceipt{Market: m, Winning: winning, Overturned: overturned, Event: evt}, nil
}

// ClaimWinnings redeems the caller's winning shares at face value, less
// fees, and marks the position settled. A position on the losing side
// claims zero but is still marked, so every position settles exactly once.
func (e *Engine) ClaimWinnings(ctx context.Context, cap domain.Capability, marketID string) (ClaimReceipt, error) {
	const op = "engine: claim winnings"

	cfg, err := e.loadConfig(ctx)
	if err != nil {
		return ClaimReceipt{}, err
	}
	if err := requireRunning(cfg); err != nil {
		return ClaimReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	if cap.Actor == "" {
		return ClaimReceipt{}, fmt.Errorf("%s: %w", op, domain.ErrUnauthorized)
	}
	m, err := e.loadMarket(ctx, marketID)
	if err != nil {
		return ClaimReceipt{}, err
	}
	if m.State != domain.MarketStateFinalized {
		return ClaimReceipt{}, fmt.Errorf("%s: %w: claims require finalized state, market is %s",
			op, domain.ErrInvalidStateTransition, m.State)
	}
	if m.WinningOutcome == nil {
		return ClaimReceipt{}, fmt.Errorf("%s: %w: no winning outcome", op, domain.ErrInvalidStateTransition)
	}
	winning := *m.WinningOutcome
	now := e.clock.Now().UTC()
	if err := validateClockReading(m, now, 0); err != nil {
		return ClaimReceipt{}, fmt.Errorf("%s: %w", op, err)
	}

	pos, err := e.store.Positions().Get(ctx, m.ID, cap.Actor)
	if err != nil {
		return ClaimReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	if pos.Claimed {
		return ClaimReceipt{}, fmt.Errorf("%s: %w", op, domain.ErrAlreadyClaimed)
	}

	// One winning share redeems for one currency unit.
	gross := pos.Shares(winning)
	split, err := fees.Compute(gross, fees.RatesFrom(cfg))
	if err != nil {
		return ClaimReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	net := gross - split.Total

	// Claims drain the pool; the trading reserve floor does not apply here.
	outflow := gross - split.Liquidity
	pool := domain.PoolAccount(m.ID)
	poolBalance, err := e.bank.Balance(ctx, pool)
	if err != nil {
		return ClaimReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	if poolBalance < outflow {
		return ClaimReceipt{}, fmt.Errorf("%s: %w: pool %d cannot cover claim %d",
			op, domain.ErrInsufficientReserve, poolBalance, outflow)
	}

	if err := e.store.Markets().TryLock(ctx, m.ID); err != nil {
		return ClaimReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	defer e.unlock(ctx, m.ID)

	err = e.store.WithinTx(ctx, func(s domain.Store) error {
		cur, err := s.Positions().Get(ctx, m.ID, cap.Actor)
		if err != nil {
			return err
		}
		if cur.Claimed {
			return domain.ErrAlreadyClaimed
		}
		cur.Claimed = true
		cur.UpdatedAt = now
		return s.Positions().Upsert(ctx, cur)
	})
	if err != nil {
		return ClaimReceipt{}, fmt.Errorf("%s: %w", op, err)
	}

	steps := []transfer{
		{from: pool, to: cap.Actor, amount: net},
		{from: pool, to: cfg.Treasury, amount: split.Protocol},
		{from: pool, to: m.Creator, amount: split.Creator},
	}
	if err := e.applyTransfers(ctx, steps); err != nil {
		revertErr := e.store.WithinTx(ctx, func(s domain.Store) error {
			cur, err := s.Positions().Get(ctx, m.ID, cap.Actor)
			if err != nil {
				return err
			}
			cur.Claimed = false
			cur.UpdatedAt = now
			return s.Positions().Upsert(ctx, cur)
		})
		if revertErr != nil {
			e.logger.ErrorContext(ctx, "engine: claim payout revert failed",
				slog.String("market_id", m.ID),
				slog.String("owner", cap.Actor),
				slog.String("error", revertErr.Error()),
			)
		}
		return ClaimReceipt{}, fmt.Errorf("%s: payout: %w", op, err)
	}

	evt := newEvent(domain.EventWinningsClaimed, m.ID, cap.Actor, now, map[string]any{
		"outcome":  string(winning),
		"gross":    gross,
		"received": net,
	})
	e.logger.InfoContext(ctx, "engine: winnings claimed",
		slog.String("market_id", m.ID),
		slog.String("owner", cap.Actor),
		slog.String("outcome", string(winning)),
		slog.Int64("received", net),
	)
	return ClaimReceipt{
		MarketID: m.ID,
		Outcome:  winning,
		Shares:   pos.Shares(winning),
		Gross:    gross,
		Fees:     split,
		Received: net,
		Event:    evt,
	}, nil
}
