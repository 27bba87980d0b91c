package engine

import (
	"github.com/0xBased-lang/zmart-engine/internal/domain"
	"github.com/0xBased-lang/zmart-engine/internal/fees"
)

// CreateReceipt reports a newly created market.
type CreateReceipt struct {
	Market domain.Market
	Event  domain.Event
}

// TallyReceipt reports the ballot state after an aggregation batch. The
// threshold fields are informational; aggregation never transitions.
type TallyReceipt struct {
	MarketID     string
	Kind         domain.VoteKind
	Tally        domain.Tally
	ThresholdBps int64
	ThresholdMet bool
	Event        domain.Event
}

// BuyReceipt reports an executed buy. Charged = Cost + Fees.Total and
// never exceeds the spend limit the caller gave.
type BuyReceipt struct {
	Market   domain.Market
	Outcome  domain.Outcome
	Shares   int64
	Cost     int64
	Fees     fees.Split
	Charged  int64
	PriceYes int64
	PriceNo  int64
	Event    domain.Event
}

// SellReceipt reports an executed sell. Received = Proceeds - Fees.Total.
type SellReceipt struct {
	Market   domain.Market
	Outcome  domain.Outcome
	Shares   int64
	Proceeds int64
	Fees     fees.Split
	Received int64
	PriceYes int64
	PriceNo  int64
	Event    domain.Event
}

// FinalizeReceipt reports a finalized market. Overturned is set when the
// dispute tally reversed the proposed outcome.
type FinalizeReceipt struct {
	Market     domain.Market
	Winning    domain.Outcome
	Overturned bool
	Event      domain.Event
}

// ClaimReceipt reports a settled claim. Gross is face value of the winning
// shares; Received is gross minus the fee split.
type ClaimReceipt struct {
	MarketID string
	Outcome  domain.Outcome
	Shares   int64
	Gross    int64
	Fees     fees.Split
	Received int64
	Event    domain.Event
}

// Quote prices a hypothetical trade without touching any state. For buys
// Total is the fee-inclusive charge; for sells it is the net credit.
type Quote struct {
	MarketID string
	Outcome  domain.Outcome
	Shares   int64
	Cost     int64
	Fees     fees.Split
	Total    int64
	PriceYes int64
	PriceNo  int64
}

// Snapshot is a read-only view of one market's book and pool.
type Snapshot struct {
	Market      domain.Market
	PriceYes    int64
	PriceNo     int64
	Cost        int64
	MaxLoss     int64
	PoolBalance int64
}
