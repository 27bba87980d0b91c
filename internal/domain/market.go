package domain

import (
	"fmt"
	"time"
)

// Outcome is one side of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// Opposite returns the other side of the book.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// MarketState represents the lifecycle state of a market.
type MarketState string

const (
	MarketStateProposed  MarketState = "proposed"
	MarketStateApproved  MarketState = "approved"
	MarketStateActive    MarketState = "active"
	MarketStateResolving MarketState = "resolving"
	MarketStateDisputed  MarketState = "disputed"
	MarketStateFinalized MarketState = "finalized"
)

// validTransitions whitelists every legal state change. Anything absent,
// including self-transitions, is rejected.
var validTransitions = map[MarketState][]MarketState{
	MarketStateProposed:  {MarketStateApproved},
	MarketStateApproved:  {MarketStateActive},
	MarketStateActive:    {MarketStateResolving},
	MarketStateResolving: {MarketStateDisputed, MarketStateFinalized},
	MarketStateDisputed:  {MarketStateFinalized},
}

func (s MarketState) CanTransition(to MarketState) bool {
	for _, next := range validTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Market is a single binary-outcome market and its LMSR book. All share and
// currency quantities are fixed-point int64 scaled by 1e9; vote counters are
// plain counts.
type Market struct {
	ID                   string
	Creator              string
	SharesYes            int64
	SharesNo             int64
	LiquidityB           int64 // LMSR liquidity parameter, always > 0
	State                MarketState
	ProposalLikes        int64
	ProposalDislikes     int64
	ProposalTotalVotes   int64
	DisputeLikes         int64
	DisputeDislikes      int64
	DisputeTotalVotes    int64
	ProposedOutcome      *Outcome
	WinningOutcome       *Outcome
	Locked               bool
	Reserved             [32]byte
	CreatedAt            time.Time
	ApprovedAt           *time.Time
	ResolutionProposedAt *time.Time
	FinalizedAt          *time.Time
	UpdatedAt            time.Time
}

// Transition moves the market to the target state if the whitelist allows it.
func (m *Market) Transition(to MarketState) error {
	if !m.State.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, m.State, to)
	}
	m.State = to
	return nil
}

// Shares returns the outstanding share count on one side of the book.
func (m *Market) Shares(o Outcome) int64 {
	if o == OutcomeYes {
		return m.SharesYes
	}
	return m.SharesNo
}

func (m *Market) SetShares(o Outcome, shares int64) {
	if o == OutcomeYes {
		m.SharesYes = shares
	} else {
		m.SharesNo = shares
	}
}

// ProposalTally returns the current proposal ballot as a Tally.
func (m *Market) ProposalTally() Tally {
	return Tally{Likes: m.ProposalLikes, Dislikes: m.ProposalDislikes, Total: m.ProposalTotalVotes}
}

// DisputeTally returns the current dispute ballot as a Tally.
func (m *Market) DisputeTally() Tally {
	return Tally{Likes: m.DisputeLikes, Dislikes: m.DisputeDislikes, Total: m.DisputeTotalVotes}
}

// ReservedClear reports whether the reserved bytes are still all zero.
func (m *Market) ReservedClear() bool {
	return m.Reserved == [32]byte{}
}
