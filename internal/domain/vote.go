package domain

import (
	"math/bits"
	"time"
)

// VoteKind distinguishes the two ballots a market can run.
type VoteKind string

const (
	VoteKindProposal VoteKind = "proposal"
	VoteKindDispute  VoteKind = "dispute"
)

func (k VoteKind) Valid() bool {
	return k == VoteKindProposal || k == VoteKindDispute
}

// VoteChoice is a single ballot position.
type VoteChoice string

const (
	VoteChoiceApprove VoteChoice = "approve"
	VoteChoiceReject  VoteChoice = "reject"
)

func (c VoteChoice) Valid() bool {
	return c == VoteChoiceApprove || c == VoteChoiceReject
}

// VoteRecord is the durable receipt for one governance vote, unique per
// (market, voter, kind).
type VoteRecord struct {
	MarketID  string
	Voter     string
	Kind      VoteKind
	Choice    VoteChoice
	CreatedAt time.Time
}

// Tally is an aggregated ballot count.
type Tally struct {
	Likes    int64
	Dislikes int64
	Total    int64
}

// ApprovalBps returns the likes share in basis points. An empty ballot
// tallies to zero.
func (t Tally) ApprovalBps() int64 {
	if t.Total <= 0 || t.Likes <= 0 {
		return 0
	}
	likes := t.Likes
	if likes > t.Total {
		likes = t.Total
	}
	hi, lo := bits.Mul64(uint64(likes), 10_000)
	bps, _ := bits.Div64(hi, lo, uint64(t.Total))
	return int64(bps)
}

// Meets reports whether the ballot clears the given approval threshold.
// Empty ballots never clear.
func (t Tally) Meets(thresholdBps int64) bool {
	return t.Total > 0 && t.ApprovalBps() >= thresholdBps
}
