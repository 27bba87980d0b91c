package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
)

// Bootstrap installs the initial global configuration. It runs exactly
// once; a second call fails with ErrAlreadyExists.
func (e *Engine) Bootstrap(ctx context.Context, cfg domain.GlobalConfig) (domain.Event, error) {
	const op = "engine: bootstrap"

	if err := cfg.Validate(); err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	_, err := e.store.Config().Get(ctx)
	if err == nil {
		return domain.Event{}, fmt.Errorf("%s: %w: already bootstrapped", op, domain.ErrAlreadyExists)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}

	now := e.clock.Now().UTC()
	cfg.UpdatedAt = now
	err = e.store.WithinTx(ctx, func(s domain.Store) error {
		return s.Config().Put(ctx, cfg)
	})
	if err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}

	evt := newEvent(domain.EventConfigUpdated, "", cfg.Admin, now, map[string]any{
		"bootstrap": true,
	})
	e.logger.InfoContext(ctx, "engine: bootstrapped",
		slog.String("admin", cfg.Admin),
		slog.String("treasury", cfg.Treasury),
	)
	return evt, nil
}

// ConfigUpdate carries a partial configuration change. Nil fields keep
// their current value.
type ConfigUpdate struct {
	Admin                 *string
	GovernanceAuthority   *string
	AggregationAuthority  *string
	Treasury              *string
	ProtocolFeeBps        *int64
	CreatorFeeBps         *int64
	LiquidityFeeBps       *int64
	ProposalThresholdBps  *int64
	DisputeThresholdBps   *int64
	MinResolutionDelay    *time.Duration
	DisputeWindow         *time.Duration
	MaxMarketAge          *time.Duration
	MinResolverReputation *int64
	MinTradeSize          *int64
	MinPoolReserve        *int64
	Paused                *bool
}

func (u ConfigUpdate) apply(cfg *domain.GlobalConfig) []string {
	var changed []string
	if u.Admin != nil {
		cfg.Admin = *u.Admin
		changed = append(changed, "admin")
	}
	if u.GovernanceAuthority != nil {
		cfg.GovernanceAuthority = *u.GovernanceAuthority
		changed = append(changed, "governance_authority")
	}
	if u.AggregationAuthority != nil {
		cfg.AggregationAuthority = *u.AggregationAuthority
		changed = append(changed, "aggregation_authority")
	}
	if u.Treasury != nil {
		cfg.Treasury = *u.Treasury
		changed = append(changed, "treasury")
	}
	if u.ProtocolFeeBps != nil {
		cfg.ProtocolFeeBps = *u.ProtocolFeeBps
		changed = append(changed, "protocol_fee_bps")
	}
	if u.CreatorFeeBps != nil {
		cfg.CreatorFeeBps = *u.CreatorFeeBps
		changed = append(changed, "creator_fee_bps")
	}
	if u.LiquidityFeeBps != nil {
		cfg.LiquidityFeeBps = *u.LiquidityFeeBps
		changed = append(changed, "liquidity_fee_bps")
	}
	if u.ProposalThresholdBps != nil {
		cfg.ProposalThresholdBps = *u.ProposalThresholdBps
		changed = append(changed, "proposal_threshold_bps")
	}
	if u.DisputeThresholdBps != nil {
		cfg.DisputeThresholdBps = *u.DisputeThresholdBps
		changed = append(changed, "dispute_threshold_bps")
	}
	if u.MinResolutionDelay != nil {
		cfg.MinResolutionDelay = *u.MinResolutionDelay
		changed = append(changed, "min_resolution_delay")
	}
	if u.DisputeWindow != nil {
		cfg.DisputeWindow = *u.DisputeWindow
		changed = append(changed, "dispute_window")
	}
	if u.MaxMarketAge != nil {
		cfg.MaxMarketAge = *u.MaxMarketAge
		changed = append(changed, "max_market_age")
	}
	if u.MinResolverReputation != nil {
		cfg.MinResolverReputation = *u.MinResolverReputation
		changed = append(changed, "min_resolver_reputation")
	}
	if u.MinTradeSize != nil {
		cfg.MinTradeSize = *u.MinTradeSize
		changed = append(changed, "min_trade_size")
	}
	if u.MinPoolReserve != nil {
		cfg.MinPoolReserve = *u.MinPoolReserve
		changed = append(changed, "min_pool_reserve")
	}
	if u.Paused != nil {
		cfg.Paused = *u.Paused
		changed = append(changed, "paused")
	}
	return changed
}

// UpdateGlobalConfig applies a partial configuration change. Only the
// admin may call it, and it works while the engine is paused so a bad
// parameter can be corrected before resuming.
func (e *Engine) UpdateGlobalConfig(ctx context.Context, cap domain.Capability, upd ConfigUpdate) (domain.GlobalConfig, domain.Event, error) {
	const op = "engine: update config"

	if !cap.Is(domain.RoleAdmin) {
		return domain.GlobalConfig{}, domain.Event{}, fmt.Errorf("%s: %w: admin required", op, domain.ErrUnauthorized)
	}
	cfg, err := e.loadConfig(ctx)
	if err != nil {
		return domain.GlobalConfig{}, domain.Event{}, err
	}
	changed := upd.apply(&cfg)
	if len(changed) == 0 {
		return domain.GlobalConfig{}, domain.Event{}, fmt.Errorf("%s: %w: no fields to update", op, domain.ErrInvalidParams)
	}
	if err := cfg.Validate(); err != nil {
		return domain.GlobalConfig{}, domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	now := e.clock.Now().UTC()
	cfg.UpdatedAt = now

	err = e.store.WithinTx(ctx, func(s domain.Store) error {
		return s.Config().Put(ctx, cfg)
	})
	if err != nil {
		return domain.GlobalConfig{}, domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}

	evt := newEvent(domain.EventConfigUpdated, "", cap.Actor, now, map[string]any{
		"fields": strings.Join(changed, ","),
	})
	e.logger.InfoContext(ctx, "engine: config updated",
		slog.String("actor", cap.Actor),
		slog.String("fields", strings.Join(changed, ",")),
	)
	return cfg, evt, nil
}

// EmergencyPause halts every non-admin mutating operation. Pausing an
// already paused engine is a no-op returning the zero event.
func (e *Engine) EmergencyPause(ctx context.Context, cap domain.Capability) (domain.Event, error) {
	const op = "engine: pause"

	if !cap.Is(domain.RoleAdmin) {
		return domain.Event{}, fmt.Errorf("%s: %w: admin required", op, domain.ErrUnauthorized)
	}
	cfg, err := e.loadConfig(ctx)
	if err != nil {
		return domain.Event{}, err
	}
	if cfg.Paused {
		return domain.Event{}, nil
	}
	now := e.clock.Now().UTC()
	cfg.Paused = true
	cfg.UpdatedAt = now

	err = e.store.WithinTx(ctx, func(s domain.Store) error {
		return s.Config().Put(ctx, cfg)
	})
	if err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}

	evt := newEvent(domain.EventEnginePaused, "", cap.Actor, now, nil)
	e.logger.WarnContext(ctx, "engine: paused", slog.String("actor", cap.Actor))
	return evt, nil
}

// Resume lifts an emergency pause. Resuming a running engine is a no-op
// returning the zero event.
func (e *Engine) Resume(ctx context.Context, cap domain.Capability) (domain.Event, error) {
	const op = "engine: resume"

	if !cap.Is(domain.RoleAdmin) {
		return domain.Event{}, fmt.Errorf("%s: %w: admin required", op, domain.ErrUnauthorized)
	}
	cfg, err := e.loadConfig(ctx)
	if err != nil {
		return domain.Event{}, err
	}
	if !cfg.Paused {
		return domain.Event{}, nil
	}
	now := e.clock.Now().UTC()
	cfg.Paused = false
	cfg.UpdatedAt = now

	err = e.store.WithinTx(ctx, func(s domain.Store) error {
		return s.Config().Put(ctx, cfg)
	})
	if err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}

	evt := newEvent(domain.EventEngineResumed, "", cap.Actor, now, nil)
	e.logger.InfoContext(ctx, "engine: resumed", slog.String("actor", cap.Actor))
	return evt, nil
}
