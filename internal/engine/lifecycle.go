package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
	"github.com/0xBased-lang/zmart-engine/internal/lmsr"
)

// CreateMarketParams describes a market proposal. InitialLiquidity is the
// collateral the creator escrows into the pool; it must cover the LMSR
// bounded loss b*ln2 and the configured pool floor.
type CreateMarketParams struct {
	// ID is optional; when empty one is derived from the inputs.
	ID               string
	LiquidityB       int64
	InitialLiquidity int64
	Reserved         [32]byte
}

// CreateMarket escrows the creator's collateral and records the market in
// the proposed state.
func (e *Engine) CreateMarket(ctx context.Context, cap domain.Capability, p CreateMarketParams) (CreateReceipt, error) {
	const op = "engine: create market"

	cfg, err := e.loadConfig(ctx)
	if err != nil {
		return CreateReceipt{}, err
	}
	if err := requireRunning(cfg); err != nil {
		return CreateReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	if cap.Actor == "" {
		return CreateReceipt{}, fmt.Errorf("%s: %w", op, domain.ErrUnauthorized)
	}
	if p.Reserved != [32]byte{} {
		return CreateReceipt{}, fmt.Errorf("%s: %w", op, domain.ErrInvalidReservedField)
	}
	if p.LiquidityB < minLiquidityParam {
		return CreateReceipt{}, fmt.Errorf("%s: %w: liquidity parameter below one unit", op, domain.ErrInvalidParams)
	}

	maxLoss, err := lmsr.MaxLoss(p.LiquidityB)
	if err != nil {
		return CreateReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	required := maxLoss
	if cfg.MinPoolReserve > required {
		required = cfg.MinPoolReserve
	}
	if p.InitialLiquidity < required {
		return CreateReceipt{}, fmt.Errorf("%s: %w: initial liquidity %d below required %d",
			op, domain.ErrInsufficientReserve, p.InitialLiquidity, required)
	}

	now := e.clock.Now().UTC()
	id := p.ID
	if id == "" {
		id = deriveMarketID(cap.Actor, now, p.LiquidityB)
	}

	balance, err := e.bank.Balance(ctx, cap.Actor)
	if err != nil {
		return CreateReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	if balance < p.InitialLiquidity {
		return CreateReceipt{}, fmt.Errorf("%s: %w: balance %d below initial liquidity %d",
			op, domain.ErrInsufficientFunds, balance, p.InitialLiquidity)
	}

	m := domain.Market{
		ID:         id,
		Creator:    cap.Actor,
		LiquidityB: p.LiquidityB,
		State:      domain.MarketStateProposed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	funding := []transfer{{from: cap.Actor, to: domain.PoolAccount(id), amount: p.InitialLiquidity}}
	if err := e.applyTransfers(ctx, funding); err != nil {
		return CreateReceipt{}, fmt.Errorf("%s: escrow collateral: %w", op, err)
	}
	err = e.store.WithinTx(ctx, func(s domain.Store) error {
		return s.Markets().Create(ctx, m)
	})
	if err != nil {
		e.revertTransfers(ctx, funding)
		return CreateReceipt{}, fmt.Errorf("%s: %w", op, err)
	}

	evt := newEvent(domain.EventMarketCreated, id, cap.Actor, now, map[string]any{
		"liquidity_b":       p.LiquidityB,
		"initial_liquidity": p.InitialLiquidity,
		"max_loss":          maxLoss,
	})
	e.logger.InfoContext(ctx, "engine: market created",
		slog.String("market_id", id),
		slog.String("creator", cap.Actor),
		slog.Int64("liquidity_b", p.LiquidityB),
		slog.Int64("initial_liquidity", p.InitialLiquidity),
	)
	return CreateReceipt{Market: m, Event: evt}, nil
}

// ActivateMarket opens an approved market for trading. The creator or a
// governance authority may activate.
func (e *Engine) ActivateMarket(ctx context.Context, cap domain.Capability, marketID string) (domain.Event, error) {
	const op = "engine: activate market"

	cfg, err := e.loadConfig(ctx)
	if err != nil {
		return domain.Event{}, err
	}
	if err := requireRunning(cfg); err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	m, err := e.loadMarket(ctx, marketID)
	if err != nil {
		return domain.Event{}, err
	}
	if !cap.CanGovern() && cap.Actor != m.Creator {
		return domain.Event{}, fmt.Errorf("%s: %w", op, domain.ErrUnauthorized)
	}
	now := e.clock.Now().UTC()
	if err := validateClockReading(m, now, cfg.MaxMarketAge); err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := m.Transition(domain.MarketStateActive); err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	m.UpdatedAt = now

	err = e.store.WithinTx(ctx, func(s domain.Store) error {
		return s.Markets().Update(ctx, m)
	})
	if err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}

	evt := newEvent(domain.EventMarketActivated, marketID, cap.Actor, now, nil)
	e.logger.InfoContext(ctx, "engine: market activated",
		slog.String("market_id", marketID),
		slog.String("actor", cap.Actor),
	)
	return evt, nil
}
