package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() GlobalConfig {
	return GlobalConfig{
		Admin:                "admin",
		GovernanceAuthority:  "gov",
		AggregationAuthority: "agg",
		Treasury:             "treasury",
		ProtocolFeeBps:       200,
		CreatorFeeBps:        100,
		LiquidityFeeBps:      700,
		ProposalThresholdBps: 6_000,
		DisputeThresholdBps:  6_000,
		MinResolutionDelay:   time.Hour,
		DisputeWindow:        24 * time.Hour,
		MaxMarketAge:         90 * 24 * time.Hour,
		MinTradeSize:         1_000_000,
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*GlobalConfig)
	}{
		{"missing admin", func(c *GlobalConfig) { c.Admin = "" }},
		{"missing treasury", func(c *GlobalConfig) { c.Treasury = "" }},
		{"negative fee", func(c *GlobalConfig) { c.CreatorFeeBps = -1 }},
		{"fee leg above scale", func(c *GlobalConfig) { c.ProtocolFeeBps = 10_001 }},
		{"combined fee above scale", func(c *GlobalConfig) {
			c.ProtocolFeeBps = 5_000
			c.CreatorFeeBps = 5_000
			c.LiquidityFeeBps = 1
		}},
		{"zero proposal threshold", func(c *GlobalConfig) { c.ProposalThresholdBps = 0 }},
		{"proposal threshold above scale", func(c *GlobalConfig) { c.ProposalThresholdBps = 10_001 }},
		{"zero dispute threshold", func(c *GlobalConfig) { c.DisputeThresholdBps = 0 }},
		{"negative resolution delay", func(c *GlobalConfig) { c.MinResolutionDelay = -time.Second }},
		{"zero dispute window", func(c *GlobalConfig) { c.DisputeWindow = 0 }},
		{"zero market age", func(c *GlobalConfig) { c.MaxMarketAge = 0 }},
		{"negative reputation floor", func(c *GlobalConfig) { c.MinResolverReputation = -1 }},
		{"negative trade floor", func(c *GlobalConfig) { c.MinTradeSize = -1 }},
		{"negative pool floor", func(c *GlobalConfig) { c.MinPoolReserve = -1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidParams)
		})
	}
}

func TestTotalFeeBps(t *testing.T) {
	cfg := validConfig()
	require.Equal(t, int64(1_000), cfg.TotalFeeBps())
}
