package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
)

// ConfigStore implements domain.ConfigStore using PostgreSQL. The table holds
// at most one row.
type ConfigStore struct {
	q querier
}

// NewConfigStore creates a new ConfigStore backed by the given querier.
func NewConfigStore(q querier) *ConfigStore {
	return &ConfigStore{q: q}
}

const configCols = `admin, governance_authority, aggregation_authority, treasury,
	protocol_fee_bps, creator_fee_bps, liquidity_fee_bps,
	proposal_threshold_bps, dispute_threshold_bps,
	min_resolution_delay_ns, dispute_window_ns, max_market_age_ns,
	min_resolver_reputation, min_trade_size, min_pool_reserve,
	paused, updated_at`

// Get returns the global configuration, or ErrNotFound before bootstrap.
func (s *ConfigStore) Get(ctx context.Context) (domain.GlobalConfig, error) {
	var c domain.GlobalConfig
	var delayNs, windowNs, maxAgeNs int64
	err := s.q.QueryRow(ctx,
		`SELECT `+configCols+` FROM global_config WHERE id = 1`).Scan(
		&c.Admin, &c.GovernanceAuthority, &c.AggregationAuthority, &c.Treasury,
		&c.ProtocolFeeBps, &c.CreatorFeeBps, &c.LiquidityFeeBps,
		&c.ProposalThresholdBps, &c.DisputeThresholdBps,
		&delayNs, &windowNs, &maxAgeNs,
		&c.MinResolverReputation, &c.MinTradeSize, &c.MinPoolReserve,
		&c.Paused, &c.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.GlobalConfig{}, fmt.Errorf("postgres: config: %w", domain.ErrNotFound)
		}
		return domain.GlobalConfig{}, fmt.Errorf("postgres: get config: %w", err)
	}
	c.MinResolutionDelay = time.Duration(delayNs)
	c.DisputeWindow = time.Duration(windowNs)
	c.MaxMarketAge = time.Duration(maxAgeNs)
	return c, nil
}

// Put writes the global configuration, creating the row on first use.
func (s *ConfigStore) Put(ctx context.Context, cfg domain.GlobalConfig) error {
	const query = `
		INSERT INTO global_config (
			id, admin, governance_authority, aggregation_authority, treasury,
			protocol_fee_bps, creator_fee_bps, liquidity_fee_bps,
			proposal_threshold_bps, dispute_threshold_bps,
			min_resolution_delay_ns, dispute_window_ns, max_market_age_ns,
			min_resolver_reputation, min_trade_size, min_pool_reserve,
			paused, updated_at
		) VALUES (
			1, $1, $2, $3, $4,
			$5, $6, $7,
			$8, $9,
			$10, $11, $12,
			$13, $14, $15,
			$16, $17
		)
		ON CONFLICT (id) DO UPDATE SET
			admin                   = EXCLUDED.admin,
			governance_authority    = EXCLUDED.governance_authority,
			aggregation_authority   = EXCLUDED.aggregation_authority,
			treasury                = EXCLUDED.treasury,
			protocol_fee_bps        = EXCLUDED.protocol_fee_bps,
			creator_fee_bps         = EXCLUDED.creator_fee_bps,
			liquidity_fee_bps       = EXCLUDED.liquidity_fee_bps,
			proposal_threshold_bps  = EXCLUDED.proposal_threshold_bps,
			dispute_threshold_bps   = EXCLUDED.dispute_threshold_bps,
			min_resolution_delay_ns = EXCLUDED.min_resolution_delay_ns,
			dispute_window_ns       = EXCLUDED.dispute_window_ns,
			max_market_age_ns       = EXCLUDED.max_market_age_ns,
			min_resolver_reputation = EXCLUDED.min_resolver_reputation,
			min_trade_size          = EXCLUDED.min_trade_size,
			min_pool_reserve        = EXCLUDED.min_pool_reserve,
			paused                  = EXCLUDED.paused,
			updated_at              = EXCLUDED.updated_at`

	_, err := s.q.Exec(ctx, query,
		cfg.Admin, cfg.GovernanceAuthority, cfg.AggregationAuthority, cfg.Treasury,
		cfg.ProtocolFeeBps, cfg.CreatorFeeBps, cfg.LiquidityFeeBps,
		cfg.ProposalThresholdBps, cfg.DisputeThresholdBps,
		int64(cfg.MinResolutionDelay), int64(cfg.DisputeWindow), int64(cfg.MaxMarketAge),
		cfg.MinResolverReputation, cfg.MinTradeSize, cfg.MinPoolReserve,
		cfg.Paused, cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put config: %w", err)
	}
	return nil
}
