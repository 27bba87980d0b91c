package sim

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
	"github.com/0xBased-lang/zmart-engine/internal/engine"
)

// Locker serializes a market's pool withdrawals across processes. The
// redis lock manager satisfies it; single-process hosts leave it nil and
// rely on the store latch alone.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// PriceSink receives marginal prices after each committed trade.
type PriceSink interface {
	SetPrice(ctx context.Context, marketID string, priceYes, priceNo int64, at time.Time) error
}

// RunnerOptions carries the optional host plumbing around the engine.
// A nil field disables that leg.
type RunnerOptions struct {
	Bus     domain.EventBus
	Audit   domain.AuditStore
	Prices  PriceSink
	Locks   Locker
	LockTTL time.Duration
}

// Runner wraps the engine with the hosting contract: it forwards every
// operation, then fans the committed event out to the bus, the audit log,
// and the price cache. Emission failures are logged and swallowed; the
// operation already committed and must not appear to fail.
type Runner struct {
	eng     *engine.Engine
	bus     domain.EventBus
	audit   domain.AuditStore
	prices  PriceSink
	locks   Locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// NewRunner wires a Runner around an engine.
func NewRunner(eng *engine.Engine, opts RunnerOptions, logger *slog.Logger) *Runner {
	ttl := opts.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Runner{
		eng:     eng,
		bus:     opts.Bus,
		audit:   opts.Audit,
		prices:  opts.Prices,
		locks:   opts.Locks,
		lockTTL: ttl,
		logger:  logger.With(slog.String("component", "runner")),
	}
}

// Engine exposes the wrapped engine for read-only queries.
func (r *Runner) Engine() *engine.Engine {
	return r.eng
}

// --------------------------------------------------------------------------
// Admin
// --------------------------------------------------------------------------

func (r *Runner) Bootstrap(ctx context.Context, cfg domain.GlobalConfig) (domain.Event, error) {
	evt, err := r.eng.Bootstrap(ctx, cfg)
	if err != nil {
		return domain.Event{}, err
	}
	r.emit(ctx, evt)
	return evt, nil
}

func (r *Runner) UpdateGlobalConfig(ctx context.Context, cap domain.Capability, upd engine.ConfigUpdate) (domain.GlobalConfig, domain.Event, error) {
	cfg, evt, err := r.eng.UpdateGlobalConfig(ctx, cap, upd)
	if err != nil {
		return domain.GlobalConfig{}, domain.Event{}, err
	}
	r.emit(ctx, evt)
	return cfg, evt, nil
}

func (r *Runner) EmergencyPause(ctx context.Context, cap domain.Capability) (domain.Event, error) {
	evt, err := r.eng.EmergencyPause(ctx, cap)
	if err != nil {
		return domain.Event{}, err
	}
	r.emit(ctx, evt)
	return evt, nil
}

func (r *Runner) Resume(ctx context.Context, cap domain.Capability) (domain.Event, error) {
	evt, err := r.eng.Resume(ctx, cap)
	if err != nil {
		return domain.Event{}, err
	}
	r.emit(ctx, evt)
	return evt, nil
}

// --------------------------------------------------------------------------
// Lifecycle and governance
// --------------------------------------------------------------------------

func (r *Runner) CreateMarket(ctx context.Context, cap domain.Capability, p engine.CreateMarketParams) (engine.CreateReceipt, error) {
	rcpt, err := r.eng.CreateMarket(ctx, cap, p)
	if err != nil {
		return engine.CreateReceipt{}, err
	}
	r.emit(ctx, rcpt.Event)
	return rcpt, nil
}

func (r *Runner) SubmitVote(ctx context.Context, cap domain.Capability, marketID string, kind domain.VoteKind, choice domain.VoteChoice) (domain.Event, error) {
	evt, err := r.eng.SubmitVote(ctx, cap, marketID, kind, choice)
	if err != nil {
		return domain.Event{}, err
	}
	r.emit(ctx, evt)
	return evt, nil
}

func (r *Runner) AggregateVotes(ctx context.Context, cap domain.Capability, marketID string, kind domain.VoteKind, likes, dislikes int64) (engine.TallyReceipt, error) {
	rcpt, err := r.eng.AggregateVotes(ctx, cap, marketID, kind, likes, dislikes)
	if err != nil {
		return engine.TallyReceipt{}, err
	}
	r.emit(ctx, rcpt.Event)
	return rcpt, nil
}

func (r *Runner) ApproveProposal(ctx context.Context, cap domain.Capability, marketID string) (domain.Event, error) {
	evt, err := r.eng.ApproveProposal(ctx, cap, marketID)
	if err != nil {
		return domain.Event{}, err
	}
	r.emit(ctx, evt)
	return evt, nil
}

func (r *Runner) ActivateMarket(ctx context.Context, cap domain.Capability, marketID string) (domain.Event, error) {
	evt, err := r.eng.ActivateMarket(ctx, cap, marketID)
	if err != nil {
		return domain.Event{}, err
	}
	r.emit(ctx, evt)
	return evt, nil
}

// --------------------------------------------------------------------------
// Trading
// --------------------------------------------------------------------------

func (r *Runner) BuyShares(ctx context.Context, cap domain.Capability, p engine.BuyParams) (engine.BuyReceipt, error) {
	rcpt, err := r.eng.BuyShares(ctx, cap, p)
	if err != nil {
		return engine.BuyReceipt{}, err
	}
	r.emit(ctx, rcpt.Event)
	r.pushPrice(ctx, p.MarketID, rcpt.PriceYes, rcpt.PriceNo, rcpt.Event.At)
	return rcpt, nil
}

// SellShares withdraws pooled value, so it runs under the cross-process
// market lock when one is configured.
func (r *Runner) SellShares(ctx context.Context, cap domain.Capability, p engine.SellParams) (engine.SellReceipt, error) {
	var rcpt engine.SellReceipt
	err := r.withMarketLock(ctx, p.MarketID, func() error {
		var err error
		rcpt, err = r.eng.SellShares(ctx, cap, p)
		return err
	})
	if err != nil {
		return engine.SellReceipt{}, err
	}
	r.emit(ctx, rcpt.Event)
	r.pushPrice(ctx, p.MarketID, rcpt.PriceYes, rcpt.PriceNo, rcpt.Event.At)
	return rcpt, nil
}

// --------------------------------------------------------------------------
// Settlement
// --------------------------------------------------------------------------

func (r *Runner) ProposeResolution(ctx context.Context, cap domain.Capability, marketID string, outcome domain.Outcome) (domain.Event, error) {
	evt, err := r.eng.ProposeResolution(ctx, cap, marketID, outcome)
	if err != nil {
		return domain.Event{}, err
	}
	r.emit(ctx, evt)
	return evt, nil
}

func (r *Runner) DisputeResolution(ctx context.Context, cap domain.Capability, marketID string) (domain.Event, error) {
	evt, err := r.eng.DisputeResolution(ctx, cap, marketID)
	if err != nil {
		return domain.Event{}, err
	}
	r.emit(ctx, evt)
	return evt, nil
}

func (r *Runner) FinalizeMarket(ctx context.Context, cap domain.Capability, marketID string) (engine.FinalizeReceipt, error) {
	rcpt, err := r.eng.FinalizeMarket(ctx, cap, marketID)
	if err != nil {
		return engine.FinalizeReceipt{}, err
	}
	r.emit(ctx, rcpt.Event)
	return rcpt, nil
}

// ClaimWinnings drains the pool and runs under the cross-process lock like
// sells do.
func (r *Runner) ClaimWinnings(ctx context.Context, cap domain.Capability, marketID string) (engine.ClaimReceipt, error) {
	var rcpt engine.ClaimReceipt
	err := r.withMarketLock(ctx, marketID, func() error {
		var err error
		rcpt, err = r.eng.ClaimWinnings(ctx, cap, marketID)
		return err
	})
	if err != nil {
		return engine.ClaimReceipt{}, err
	}
	r.emit(ctx, rcpt.Event)
	return rcpt, nil
}

// --------------------------------------------------------------------------
// Fan-out plumbing
// --------------------------------------------------------------------------

func (r *Runner) withMarketLock(ctx context.Context, marketID string, fn func() error) error {
	if r.locks == nil {
		return fn()
	}
	unlock, err := r.locks.Acquire(ctx, "market:"+marketID, r.lockTTL)
	if err != nil {
		return fmt.Errorf("runner: market lock %s: %w", marketID, err)
	}
	defer unlock()
	return fn()
}

// emit publishes and audits a committed event. Idempotent no-ops return a
// zero event, which is skipped.
func (r *Runner) emit(ctx context.Context, evt domain.Event) {
	if evt.ID == "" {
		return
	}
	if r.bus != nil {
		if err := r.bus.Publish(ctx, evt); err != nil {
			r.logger.WarnContext(ctx, "event publish failed",
				slog.String("event_id", evt.ID),
				slog.String("kind", string(evt.Kind)),
				slog.String("error", err.Error()),
			)
		}
	}
	if r.audit != nil {
		if err := r.audit.Log(ctx, string(evt.Kind), auditDetail(evt)); err != nil {
			r.logger.WarnContext(ctx, "audit write failed",
				slog.String("event_id", evt.ID),
				slog.String("kind", string(evt.Kind)),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (r *Runner) pushPrice(ctx context.Context, marketID string, priceYes, priceNo int64, at time.Time) {
	if r.prices == nil {
		return
	}
	if err := r.prices.SetPrice(ctx, marketID, priceYes, priceNo, at); err != nil {
		r.logger.WarnContext(ctx, "price cache write failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

func auditDetail(evt domain.Event) map[string]any {
	d := make(map[string]any, len(evt.Detail)+4)
	for k, v := range evt.Detail {
		d[k] = v
	}
	d["event_id"] = evt.ID
	d["at"] = evt.At.Format(time.RFC3339Nano)
	if evt.MarketID != "" {
		d["market_id"] = evt.MarketID
	}
	if evt.Actor != "" {
		d["actor"] = evt.Actor
	}
	return d
}
