// Package fees assesses trade fees and splits them into protocol, creator,
// and liquidity cuts with zero leakage: the cuts always sum to the exact
// total collected.
package fees

import (
	"fmt"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
	"github.com/0xBased-lang/zmart-engine/internal/fixedpoint"
)

// Rates are the three fee legs in basis points.
type Rates struct {
	ProtocolBps  int64
	CreatorBps   int64
	LiquidityBps int64
}

// RatesFrom pulls the current fee legs out of the global configuration.
func RatesFrom(cfg domain.GlobalConfig) Rates {
	return Rates{
		ProtocolBps:  cfg.ProtocolFeeBps,
		CreatorBps:   cfg.CreatorFeeBps,
		LiquidityBps: cfg.LiquidityFeeBps,
	}
}

func (r Rates) TotalBps() int64 {
	return r.ProtocolBps + r.CreatorBps + r.LiquidityBps
}

func (r Rates) validate() error {
	if r.ProtocolBps < 0 || r.CreatorBps < 0 || r.LiquidityBps < 0 {
		return fmt.Errorf("%w: negative fee rate", domain.ErrInvalidParams)
	}
	if r.TotalBps() > domain.BpsDenominator {
		return fmt.Errorf("%w: combined fee rate %d bps exceeds %d", domain.ErrInvalidParams, r.TotalBps(), domain.BpsDenominator)
	}
	return nil
}

// Split is one fee assessment. Total == Protocol + Creator + Liquidity.
type Split struct {
	Total     int64
	Protocol  int64
	Creator   int64
	Liquidity int64
}

// Compute assesses fees on amount. The total is floored, the protocol and
// creator cuts are floored carve-outs of the total, and the liquidity cut
// is the exact remainder.
func Compute(amount int64, r Rates) (Split, error) {
	if amount < 0 {
		return Split{}, fmt.Errorf("%w: negative fee base", domain.ErrInvalidParams)
	}
	if err := r.validate(); err != nil {
		return Split{}, err
	}
	totalBps := r.TotalBps()
	if totalBps == 0 || amount == 0 {
		return Split{}, nil
	}
	total, err := fixedpoint.MulDiv(amount, totalBps, domain.BpsDenominator)
	if err != nil {
		return Split{}, err
	}
	protocol, err := fixedpoint.MulDiv(total, r.ProtocolBps, totalBps)
	if err != nil {
		return Split{}, err
	}
	creator, err := fixedpoint.MulDiv(total, r.CreatorBps, totalBps)
	if err != nil {
		return Split{}, err
	}
	return Split{
		Total:     total,
		Protocol:  protocol,
		Creator:   creator,
		Liquidity: total - protocol - creator,
	}, nil
}

// DeflateBudget returns the largest pre-fee amount whose fee-inclusive
// charge still fits inside budget, so cost searches can run against a
// budget with the fee already carved out.
func DeflateBudget(budget int64, r Rates) (int64, error) {
	if budget < 0 {
		return 0, fmt.Errorf("%w: negative budget", domain.ErrInvalidParams)
	}
	if err := r.validate(); err != nil {
		return 0, err
	}
	return fixedpoint.MulDiv(budget, domain.BpsDenominator, domain.BpsDenominator+r.TotalBps())
}
