package domain

import "time"

// Position tracks one account's holdings in one market, keyed by
// (market, owner). Share quantities are fixed-point int64 scaled by 1e9.
type Position struct {
	MarketID  string
	Owner     string
	SharesYes int64
	SharesNo  int64
	Claimed   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Shares returns the holdings on one side of the book.
func (p *Position) Shares(o Outcome) int64 {
	if o == OutcomeYes {
		return p.SharesYes
	}
	return p.SharesNo
}

func (p *Position) SetShares(o Outcome, shares int64) {
	if o == OutcomeYes {
		p.SharesYes = shares
	} else {
		p.SharesNo = shares
	}
}
