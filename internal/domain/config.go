package domain

import (
	"fmt"
	"time"
)

// BpsDenominator is the basis-point scale used by fee rates and vote
// thresholds.
const BpsDenominator = 10_000

// GlobalConfig is the engine-wide parameter record. Every operation loads it
// fresh from the store; nothing caches it. Rates and thresholds are basis
// points, currency amounts fixed-point 1e9.
type GlobalConfig struct {
	Admin                 string
	GovernanceAuthority   string
	AggregationAuthority  string
	Treasury              string
	ProtocolFeeBps        int64
	CreatorFeeBps         int64
	LiquidityFeeBps       int64
	ProposalThresholdBps  int64
	DisputeThresholdBps   int64
	MinResolutionDelay    time.Duration
	DisputeWindow         time.Duration
	MaxMarketAge          time.Duration
	MinResolverReputation int64
	MinTradeSize          int64
	MinPoolReserve        int64
	Paused                bool
	UpdatedAt             time.Time
}

// TotalFeeBps is the combined trade fee rate.
func (c GlobalConfig) TotalFeeBps() int64 {
	return c.ProtocolFeeBps + c.CreatorFeeBps + c.LiquidityFeeBps
}

// Validate rejects configurations the engine could not operate under.
func (c GlobalConfig) Validate() error {
	if c.Admin == "" {
		return fmt.Errorf("%w: admin identity required", ErrInvalidParams)
	}
	if c.Treasury == "" {
		return fmt.Errorf("%w: treasury account required", ErrInvalidParams)
	}
	for _, bps := range []struct {
		name string
		v    int64
	}{
		{"protocol_fee_bps", c.ProtocolFeeBps},
		{"creator_fee_bps", c.CreatorFeeBps},
		{"liquidity_fee_bps", c.LiquidityFeeBps},
	} {
		if bps.v < 0 || bps.v > BpsDenominator {
			return fmt.Errorf("%w: %s %d outside [0, %d]", ErrInvalidParams, bps.name, bps.v, BpsDenominator)
		}
	}
	if total := c.TotalFeeBps(); total > BpsDenominator {
		return fmt.Errorf("%w: combined fee %d bps exceeds %d", ErrInvalidParams, total, BpsDenominator)
	}
	if c.ProposalThresholdBps <= 0 || c.ProposalThresholdBps > BpsDenominator {
		return fmt.Errorf("%w: proposal_threshold_bps %d outside (0, %d]", ErrInvalidParams, c.ProposalThresholdBps, BpsDenominator)
	}
	if c.DisputeThresholdBps <= 0 || c.DisputeThresholdBps > BpsDenominator {
		return fmt.Errorf("%w: dispute_threshold_bps %d outside (0, %d]", ErrInvalidParams, c.DisputeThresholdBps, BpsDenominator)
	}
	if c.MinResolutionDelay < 0 {
		return fmt.Errorf("%w: min_resolution_delay negative", ErrInvalidParams)
	}
	if c.DisputeWindow <= 0 {
		return fmt.Errorf("%w: dispute_window must be positive", ErrInvalidParams)
	}
	if c.MaxMarketAge <= 0 {
		return fmt.Errorf("%w: max_market_age must be positive", ErrInvalidParams)
	}
	if c.MinResolverReputation < 0 {
		return fmt.Errorf("%w: min_resolver_reputation negative", ErrInvalidParams)
	}
	if c.MinTradeSize < 0 {
		return fmt.Errorf("%w: min_trade_size negative", ErrInvalidParams)
	}
	if c.MinPoolReserve < 0 {
		return fmt.Errorf("%w: min_pool_reserve negative", ErrInvalidParams)
	}
	return nil
}
