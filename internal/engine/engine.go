// Package engine implements the deterministic trading and governance core:
// market lifecycle, LMSR trading, vote aggregation, resolution, and
// settlement. The engine owns no I/O beyond its injected collaborators and
// reads time only through the injected clock, so identical stored state and
// inputs always produce identical results. Every successful mutating
// operation returns exactly one event; hosts decide where events go.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
)

// minLiquidityParam floors the LMSR b parameter at one whole unit. Below
// that the bounded-loss collateral rounds toward zero and the book
// saturates after a handful of shares.
const minLiquidityParam = 1_000_000_000

var (
	marketNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("zmart-engine/markets"))
	eventNamespace  = uuid.NewSHA1(uuid.NameSpaceURL, []byte("zmart-engine/events"))
)

// Engine evaluates operations against the injected store, bank, and clock.
type Engine struct {
	store  domain.Store
	bank   domain.Bank
	clock  domain.Clock
	logger *slog.Logger
}

// New creates an Engine with all required dependencies.
func New(store domain.Store, bank domain.Bank, clock domain.Clock, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		bank:   bank,
		clock:  clock,
		logger: logger,
	}
}

// loadConfig fetches the global configuration fresh from the store.
// Operations never cache it across calls.
func (e *Engine) loadConfig(ctx context.Context) (domain.GlobalConfig, error) {
	cfg, err := e.store.Config().Get(ctx)
	if err != nil {
		return domain.GlobalConfig{}, fmt.Errorf("engine: load config: %w", err)
	}
	return cfg, nil
}

func (e *Engine) loadMarket(ctx context.Context, id string) (domain.Market, error) {
	m, err := e.store.Markets().Get(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: load market %s: %w", id, err)
	}
	if !m.ReservedClear() {
		return domain.Market{}, fmt.Errorf("engine: market %s: %w", id, domain.ErrInvalidReservedField)
	}
	return m, nil
}

func requireRunning(cfg domain.GlobalConfig) error {
	if cfg.Paused {
		return domain.ErrPaused
	}
	return nil
}

// validateClockReading rejects external clock readings that run backwards
// relative to the market's recorded timestamps, or that fall outside the
// configured market age bound. Pass zero maxAge to skip the age bound.
func validateClockReading(m domain.Market, now time.Time, maxAge time.Duration) error {
	if now.Before(m.UpdatedAt) {
		return fmt.Errorf("%w: clock reading %s behind last recorded %s",
			domain.ErrInvalidTimestamp, now.Format(time.RFC3339Nano), m.UpdatedAt.Format(time.RFC3339Nano))
	}
	if maxAge > 0 && now.After(m.CreatedAt.Add(maxAge)) {
		return fmt.Errorf("%w: market older than %s", domain.ErrInvalidTimestamp, maxAge)
	}
	return nil
}

// newEvent builds the operation's event with an ID derived from its
// inputs, keeping replays bit-identical.
func newEvent(kind domain.EventKind, marketID, actor string, at time.Time, detail map[string]any) domain.Event {
	seed := fmt.Sprintf("%s|%s|%s|%d", kind, marketID, actor, at.UnixNano())
	return domain.Event{
		ID:       uuid.NewSHA1(eventNamespace, []byte(seed)).String(),
		Kind:     kind,
		MarketID: marketID,
		Actor:    actor,
		At:       at,
		Detail:   detail,
	}
}

func deriveMarketID(creator string, at time.Time, liquidityB int64) string {
	seed := fmt.Sprintf("%s|%d|%d", creator, at.UnixNano(), liquidityB)
	return uuid.NewSHA1(marketNamespace, []byte(seed)).String()
}

type transfer struct {
	from   string
	to     string
	amount int64
}

// applyTransfers executes the steps in order, skipping zero amounts. On
// failure the completed steps are reversed before the error surfaces.
func (e *Engine) applyTransfers(ctx context.Context, steps []transfer) error {
	for i, st := range steps {
		if st.amount <= 0 {
			continue
		}
		if err := e.bank.Transfer(ctx, st.from, st.to, st.amount); err != nil {
			e.revertTransfers(ctx, steps[:i])
			return err
		}
	}
	return nil
}

func (e *Engine) revertTransfers(ctx context.Context, steps []transfer) {
	for i := len(steps) - 1; i >= 0; i-- {
		st := steps[i]
		if st.amount <= 0 {
			continue
		}
		if err := e.bank.Transfer(ctx, st.to, st.from, st.amount); err != nil {
			e.logger.WarnContext(ctx, "engine: compensating transfer failed",
				slog.String("from", st.to),
				slog.String("to", st.from),
				slog.Int64("amount", st.amount),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (e *Engine) unlock(ctx context.Context, marketID string) {
	if err := e.store.Markets().Unlock(ctx, marketID); err != nil {
		e.logger.WarnContext(ctx, "engine: unlock market failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}
