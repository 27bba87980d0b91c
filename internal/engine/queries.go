package engine

import (
	"context"
	"fmt"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
	"github.com/0xBased-lang/zmart-engine/internal/lmsr"
)

// GetMarket returns one market by ID.
func (e *Engine) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	return e.loadMarket(ctx, id)
}

// ListMarkets returns markets in the given state, newest first.
func (e *Engine) ListMarkets(ctx context.Context, state domain.MarketState, opts domain.ListOpts) ([]domain.Market, error) {
	ms, err := e.store.Markets().ListByState(ctx, state, opts)
	if err != nil {
		return nil, fmt.Errorf("engine: list markets: %w", err)
	}
	return ms, nil
}

// GetPosition returns one holder's position in a market.
func (e *Engine) GetPosition(ctx context.Context, marketID, owner string) (domain.Position, error) {
	pos, err := e.store.Positions().Get(ctx, marketID, owner)
	if err != nil {
		return domain.Position{}, fmt.Errorf("engine: get position: %w", err)
	}
	return pos, nil
}

// ListPositionsByOwner returns every position one account holds.
func (e *Engine) ListPositionsByOwner(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.Position, error) {
	ps, err := e.store.Positions().ListByOwner(ctx, owner, opts)
	if err != nil {
		return nil, fmt.Errorf("engine: list positions: %w", err)
	}
	return ps, nil
}

// ListPositionsByMarket returns every position held in a market.
func (e *Engine) ListPositionsByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Position, error) {
	ps, err := e.store.Positions().ListByMarket(ctx, marketID, opts)
	if err != nil {
		return nil, fmt.Errorf("engine: list positions: %w", err)
	}
	return ps, nil
}

// ListVotes returns the individual vote receipts behind a market's ballot.
func (e *Engine) ListVotes(ctx context.Context, marketID string, kind domain.VoteKind, opts domain.ListOpts) ([]domain.VoteRecord, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("engine: list votes: %w: kind %q", domain.ErrInvalidParams, kind)
	}
	vs, err := e.store.Votes().ListByMarket(ctx, marketID, kind, opts)
	if err != nil {
		return nil, fmt.Errorf("engine: list votes: %w", err)
	}
	return vs, nil
}

// GetConfig returns the current global configuration.
func (e *Engine) GetConfig(ctx context.Context) (domain.GlobalConfig, error) {
	return e.loadConfig(ctx)
}

// GetSnapshot returns a market's book state, spot prices, and pool
// balance in one read.
func (e *Engine) GetSnapshot(ctx context.Context, marketID string) (Snapshot, error) {
	const op = "engine: snapshot"

	m, err := e.loadMarket(ctx, marketID)
	if err != nil {
		return Snapshot{}, err
	}
	book := lmsr.Book{QYes: m.SharesYes, QNo: m.SharesNo, B: m.LiquidityB}
	cost, err := book.Cost()
	if err != nil {
		return Snapshot{}, fmt.Errorf("%s: %w", op, err)
	}
	priceYes, err := book.PriceYes()
	if err != nil {
		return Snapshot{}, fmt.Errorf("%s: %w", op, err)
	}
	priceNo, err := book.PriceNo()
	if err != nil {
		return Snapshot{}, fmt.Errorf("%s: %w", op, err)
	}
	maxLoss, err := lmsr.MaxLoss(m.LiquidityB)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%s: %w", op, err)
	}
	poolBalance, err := e.bank.Balance(ctx, domain.PoolAccount(marketID))
	if err != nil {
		return Snapshot{}, fmt.Errorf("%s: %w", op, err)
	}
	return Snapshot{
		Market:      m,
		PriceYes:    priceYes,
		PriceNo:     priceNo,
		Cost:        cost,
		MaxLoss:     maxLoss,
		PoolBalance: poolBalance,
	}, nil
}
