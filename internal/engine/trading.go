package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
	"github.com/0xBased-lang/zmart-engine/internal/fees"
	"github.com/0xBased-lang/zmart-engine/internal/fixedpoint"
	"github.com/0xBased-lang/zmart-engine/internal/lmsr"
)

// BuyParams bounds a buy by total spend: the engine solves for the share
// quantity whose fee-inclusive charge fits under MaxSpend.
type BuyParams struct {
	MarketID string
	Outcome  domain.Outcome
	MaxSpend int64
}

// SellParams sells an exact share quantity with a slippage floor on the
// net credit.
type SellParams struct {
	MarketID    string
	Outcome     domain.Outcome
	Shares      int64
	MinProceeds int64
}

// BuyShares executes a spend-bounded buy. The fee is carved out of the
// budget before the share search, so the total charge can never exceed
// MaxSpend. Buys move no pooled value outward and therefore do not latch
// the market.
func (e *Engine) BuyShares(ctx context.Context, cap domain.Capability, p BuyParams) (BuyReceipt, error) {
	const op = "engine: buy shares"

	cfg, err := e.loadConfig(ctx)
	if err != nil {
		return BuyReceipt{}, err
	}
	if err := requireRunning(cfg); err != nil {
		return BuyReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	if cap.Actor == "" {
		return BuyReceipt{}, fmt.Errorf("%s: %w", op, domain.ErrUnauthorized)
	}
	if !p.Outcome.Valid() {
		return BuyReceipt{}, fmt.Errorf("%s: %w: outcome %q", op, domain.ErrInvalidParams, p.Outcome)
	}
	if p.MaxSpend <= 0 || p.MaxSpend < cfg.MinTradeSize {
		return BuyReceipt{}, fmt.Errorf("%s: %w: spend %d below floor %d", op, domain.ErrTradeTooSmall, p.MaxSpend, cfg.MinTradeSize)
	}
	m, err := e.loadMarket(ctx, p.MarketID)
	if err != nil {
		return BuyReceipt{}, err
	}
	if m.State != domain.MarketStateActive {
		return BuyReceipt{}, fmt.Errorf("%s: %w: trading requires active state, market is %s",
			op, domain.ErrInvalidStateTransition, m.State)
	}
	now := e.clock.Now().UTC()
	if err := validateClockReading(m, now, cfg.MaxMarketAge); err != nil {
		return BuyReceipt{}, fmt.Errorf("%s: %w", op, err)
	}

	rates := fees.RatesFrom(cfg)
	budget, err := fees.DeflateBudget(p.MaxSpend, rates)
	if err != nil {
		return BuyReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	book := lmsr.Book{QYes: m.SharesYes, QNo: m.SharesNo, B: m.LiquidityB}
	delta, err := book.SharesForCost(p.Outcome, budget)
	if err != nil {
		return BuyReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	if delta <= 0 {
		return BuyReceipt{}, fmt.Errorf("%s: %w: spend moves the book by nothing", op, domain.ErrTradeTooSmall)
	}
	cost, err := book.BuyCost(p.Outcome, delta)
	if err != nil {
		return BuyReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	if cost < cfg.MinTradeSize {
		return BuyReceipt{}, fmt.Errorf("%s: %w: cost %d below floor %d", op, domain.ErrTradeTooSmall, cost, cfg.MinTradeSize)
	}
	split, err := fees.Compute(cost, rates)
	if err != nil {
		return BuyReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	charge, err := fixedpoint.Add(cost, split.Total)
	if err != nil {
		return BuyReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	if charge > p.MaxSpend {
		return BuyReceipt{}, fmt.Errorf("%s: %w: charge %d exceeds spend limit %d", op, domain.ErrPricing, charge, p.MaxSpend)
	}

	newShares, err := fixedpoint.Add(m.Shares(p.Outcome), delta)
	if err != nil {
		return BuyReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	m.SetShares(p.Outcome, newShares)
	m.UpdatedAt = now
	after := lmsr.Book{QYes: m.SharesYes, QNo: m.SharesNo, B: m.LiquidityB}
	priceYes, err := after.PriceYes()
	if err != nil {
		return BuyReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	priceNo, err := after.PriceNo()
	if err != nil {
		return BuyReceipt{}, fmt.Errorf("%s: %w", op, err)
	}

	balance, err := e.bank.Balance(ctx, cap.Actor)
	if err != nil {
		return BuyReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	if balance < charge {
		return BuyReceipt{}, fmt.Errorf("%s: %w: balance %d below charge %d", op, domain.ErrInsufficientFunds, balance, charge)
	}

	// The pool keeps the cost plus the liquidity cut; the other fee legs
	// route directly so no pooled value ever leaves on a buy.
	pool := domain.PoolAccount(m.ID)
	steps := []transfer{
		{from: cap.Actor, to: pool, amount: cost + split.Liquidity},
		{from: cap.Actor, to: cfg.Treasury, amount: split.Protocol},
		{from: cap.Actor, to: m.Creator, amount: split.Creator},
	}
	if err := e.applyTransfers(ctx, steps); err != nil {
		return BuyReceipt{}, fmt.Errorf("%s: %w", op, err)
	}

	var pos domain.Position
	err = e.store.WithinTx(ctx, func(s domain.Store) error {
		var err error
		pos, err = s.Positions().Get(ctx, m.ID, cap.Actor)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			pos = domain.Position{MarketID: m.ID, Owner: cap.Actor, CreatedAt: now}
		}
		held, err := fixedpoint.Add(pos.Shares(p.Outcome), delta)
		if err != nil {
			return err
		}
		pos.SetShares(p.Outcome, held)
		pos.UpdatedAt = now
		if err := s.Positions().Upsert(ctx, pos); err != nil {
			return err
		}
		return s.Markets().Update(ctx, m)
	})
	if err != nil {
		e.revertTransfers(ctx, steps)
		return BuyReceipt{}, fmt.Errorf("%s: %w", op, err)
	}

	evt := newEvent(domain.EventSharesBought, m.ID, cap.Actor, now, map[string]any{
		"outcome":   string(p.Outcome),
		"shares":    delta,
		"cost":      cost,
		"fee_total": split.Total,
		"charged":   charge,
	})
	e.logger.InfoContext(ctx, "engine: shares bought",
		slog.String("market_id", m.ID),
		slog.String("actor", cap.Actor),
		slog.String("outcome", string(p.Outcome)),
		slog.Int64("shares", delta),
		slog.Int64("charged", charge),
	)
	return BuyReceipt{
		Market:   m,
		Outcome:  p.Outcome,
		Shares:   delta,
		Cost:     cost,
		Fees:     split,
		Charged:  charge,
		PriceYes: priceYes,
		PriceNo:  priceNo,
		Event:    evt,
	}, nil
}

// SellShares sells back into the book. The market is latched for the
// duration because pooled value flows outward; a failed compensation after
// payout is surfaced, never swallowed.
func (e *Engine) SellShares(ctx context.Context, cap domain.Capability, p SellParams) (SellReceipt, error) {
	const op = "engine: sell shares"

	cfg, err := e.loadConfig(ctx)
	if err != nil {
		return SellReceipt{}, err
	}
	if err := requireRunning(cfg); err != nil {
		return SellReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	if cap.Actor == "" {
		return SellReceipt{}, fmt.Errorf("%s: %w", op, domain.ErrUnauthorized)
	}
	if !p.Outcome.Valid() {
		return SellReceipt{}, fmt.Errorf("%s: %w: outcome %q", op, domain.ErrInvalidParams, p.Outcome)
	}
	if p.Shares <= 0 || p.MinProceeds < 0 {
		return SellReceipt{}, fmt.Errorf("%s: %w: shares %d min proceeds %d", op, domain.ErrInvalidParams, p.Shares, p.MinProceeds)
	}
	m, err := e.loadMarket(ctx, p.MarketID)
	if err != nil {
		return SellReceipt{}, err
	}
	if m.State != domain.MarketStateActive {
		return SellReceipt{}, fmt.Errorf("%s: %w: trading requires active state, market is %s",
			op, domain.ErrInvalidStateTransition, m.State)
	}
	now := e.clock.Now().UTC()
	if err := validateClockReading(m, now, cfg.MaxMarketAge); err != nil {
		return SellReceipt{}, fmt.Errorf("%s: %w", op, err)
	}

	pos, err := e.store.Positions().Get(ctx, m.ID, cap.Actor)
	if err != nil {
		return SellReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	remaining, err := fixedpoint.SubQuantity(pos.Shares(p.Outcome), p.Shares)
	if err != nil {
		return SellReceipt{}, fmt.Errorf("%s: %w: position holds %d, selling %d",
			op, domain.ErrUnderflow, pos.Shares(p.Outcome), p.Shares)
	}

	book := lmsr.Book{QYes: m.SharesYes, QNo: m.SharesNo, B: m.LiquidityB}
	proceeds, err := book.SellProceeds(p.Outcome, p.Shares)
	if err != nil {
		return SellReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	if proceeds < cfg.MinTradeSize {
		return SellReceipt{}, fmt.Errorf("%s: %w: proceeds %d below floor %d", op, domain.ErrTradeTooSmall, proceeds, cfg.MinTradeSize)
	}
	rates := fees.RatesFrom(cfg)
	split, err := fees.Compute(proceeds, rates)
	if err != nil {
		return SellReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	net := proceeds - split.Total
	if net < p.MinProceeds {
		return SellReceipt{}, fmt.Errorf("%s: %w: net %d below minimum %d", op, domain.ErrSlippageExceeded, net, p.MinProceeds)
	}

	// Everything except the liquidity cut leaves the pool.
	outflow := proceeds - split.Liquidity
	pool := domain.PoolAccount(m.ID)
	poolBalance, err := e.bank.Balance(ctx, pool)
	if err != nil {
		return SellReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	if poolBalance-outflow < cfg.MinPoolReserve {
		return SellReceipt{}, fmt.Errorf("%s: %w: pool %d cannot cover %d and keep reserve %d",
			op, domain.ErrInsufficientReserve, poolBalance, outflow, cfg.MinPoolReserve)
	}

	marketShares, err := fixedpoint.SubQuantity(m.Shares(p.Outcome), p.Shares)
	if err != nil {
		return SellReceipt{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := e.store.Markets().TryLock(ctx, m.ID); err != nil {
		return SellReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	defer e.unlock(ctx, m.ID)

	prevMarket, prevPos := m, pos
	m.SetShares(p.Outcome, marketShares)
	m.UpdatedAt = now
	pos.SetShares(p.Outcome, remaining)
	pos.UpdatedAt = now
	after := lmsr.Book{QYes: m.SharesYes, QNo: m.SharesNo, B: m.LiquidityB}
	priceYes, err := after.PriceYes()
	if err != nil {
		return SellReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	priceNo, err := after.PriceNo()
	if err != nil {
		return SellReceipt{}, fmt.Errorf("%s: %w", op, err)
	}

	err = e.store.WithinTx(ctx, func(s domain.Store) error {
		if err := s.Positions().Upsert(ctx, pos); err != nil {
			return err
		}
		return s.Markets().Update(ctx, m)
	})
	if err != nil {
		return SellReceipt{}, fmt.Errorf("%s: %w", op, err)
	}

	steps := []transfer{
		{from: pool, to: cap.Actor, amount: net},
		{from: pool, to: cfg.Treasury, amount: split.Protocol},
		{from: pool, to: m.Creator, amount: split.Creator},
	}
	if err := e.applyTransfers(ctx, steps); err != nil {
		revertErr := e.store.WithinTx(ctx, func(s domain.Store) error {
			if err := s.Positions().Upsert(ctx, prevPos); err != nil {
				return err
			}
			return s.Markets().Update(ctx, prevMarket)
		})
		if revertErr != nil {
			e.logger.ErrorContext(ctx, "engine: sell payout revert failed",
				slog.String("market_id", m.ID),
				slog.String("error", revertErr.Error()),
			)
		}
		return SellReceipt{}, fmt.Errorf("%s: payout: %w", op, err)
	}

	evt := newEvent(domain.EventSharesSold, m.ID, cap.Actor, now, map[string]any{
		"outcome":   string(p.Outcome),
		"shares":    p.Shares,
		"proceeds":  proceeds,
		"fee_total": split.Total,
		"received":  net,
	})
	e.logger.InfoContext(ctx, "engine: shares sold",
		slog.String("market_id", m.ID),
		slog.String("actor", cap.Actor),
		slog.String("outcome", string(p.Outcome)),
		slog.Int64("shares", p.Shares),
		slog.Int64("received", net),
	)
	return SellReceipt{
		Market:   m,
		Outcome:  p.Outcome,
		Shares:   p.Shares,
		Proceeds: proceeds,
		Fees:     split,
		Received: net,
		PriceYes: priceYes,
		PriceNo:  priceNo,
		Event:    evt,
	}, nil
}

// QuoteBuy prices a spend-bounded buy without executing it.
func (e *Engine) QuoteBuy(ctx context.Context, marketID string, outcome domain.Outcome, maxSpend int64) (Quote, error) {
	const op = "engine: quote buy"

	cfg, err := e.loadConfig(ctx)
	if err != nil {
		return Quote{}, err
	}
	if !outcome.Valid() || maxSpend <= 0 {
		return Quote{}, fmt.Errorf("%s: %w", op, domain.ErrInvalidParams)
	}
	m, err := e.loadMarket(ctx, marketID)
	if err != nil {
		return Quote{}, err
	}
	rates := fees.RatesFrom(cfg)
	budget, err := fees.DeflateBudget(maxSpend, rates)
	if err != nil {
		return Quote{}, fmt.Errorf("%s: %w", op, err)
	}
	book := lmsr.Book{QYes: m.SharesYes, QNo: m.SharesNo, B: m.LiquidityB}
	delta, err := book.SharesForCost(outcome, budget)
	if err != nil {
		return Quote{}, fmt.Errorf("%s: %w", op, err)
	}
	var cost int64
	if delta > 0 {
		if cost, err = book.BuyCost(outcome, delta); err != nil {
			return Quote{}, fmt.Errorf("%s: %w", op, err)
		}
	}
	split, err := fees.Compute(cost, rates)
	if err != nil {
		return Quote{}, fmt.Errorf("%s: %w", op, err)
	}
	after := book
	if outcome == domain.OutcomeYes {
		after.QYes += delta
	} else {
		after.QNo += delta
	}
	priceYes, err := after.PriceYes()
	if err != nil {
		return Quote{}, fmt.Errorf("%s: %w", op, err)
	}
	return Quote{
		MarketID: marketID,
		Outcome:  outcome,
		Shares:   delta,
		Cost:     cost,
		Fees:     split,
		Total:    cost + split.Total,
		PriceYes: priceYes,
		PriceNo:  fixedpoint.Scale - priceYes,
	}, nil
}

// QuoteSell prices selling an exact quantity without executing it.
func (e *Engine) QuoteSell(ctx context.Context, marketID string, outcome domain.Outcome, shares int64) (Quote, error) {
	const op = "engine: quote sell"

	cfg, err := e.loadConfig(ctx)
	if err != nil {
		return Quote{}, err
	}
	if !outcome.Valid() || shares <= 0 {
		return Quote{}, fmt.Errorf("%s: %w", op, domain.ErrInvalidParams)
	}
	m, err := e.loadMarket(ctx, marketID)
	if err != nil {
		return Quote{}, err
	}
	book := lmsr.Book{QYes: m.SharesYes, QNo: m.SharesNo, B: m.LiquidityB}
	proceeds, err := book.SellProceeds(outcome, shares)
	if err != nil {
		return Quote{}, fmt.Errorf("%s: %w", op, err)
	}
	split, err := fees.Compute(proceeds, fees.RatesFrom(cfg))
	if err != nil {
		return Quote{}, fmt.Errorf("%s: %w", op, err)
	}
	after := book
	if outcome == domain.OutcomeYes {
		after.QYes -= shares
	} else {
		after.QNo -= shares
	}
	priceYes, err := after.PriceYes()
	if err != nil {
		return Quote{}, fmt.Errorf("%s: %w", op, err)
	}
	return Quote{
		MarketID: marketID,
		Outcome:  outcome,
		Shares:   shares,
		Cost:     proceeds,
		Fees:     split,
		Total:    proceeds - split.Total,
		PriceYes: priceYes,
		PriceNo:  fixedpoint.Scale - priceYes,
	}, nil
}
