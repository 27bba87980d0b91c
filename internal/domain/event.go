package domain

import (
	"context"
	"time"
)

// EventKind names every state change the engine can emit.
type EventKind string

const (
	EventMarketCreated      EventKind = "market.created"
	EventVoteSubmitted      EventKind = "vote.submitted"
	EventVotesAggregated    EventKind = "votes.aggregated"
	EventProposalApproved   EventKind = "proposal.approved"
	EventMarketActivated    EventKind = "market.activated"
	EventSharesBought       EventKind = "shares.bought"
	EventSharesSold         EventKind = "shares.sold"
	EventResolutionProposed EventKind = "resolution.proposed"
	EventResolutionDisputed EventKind = "resolution.disputed"
	EventMarketFinalized    EventKind = "market.finalized"
	EventWinningsClaimed    EventKind = "winnings.claimed"
	EventConfigUpdated      EventKind = "config.updated"
	EventEnginePaused       EventKind = "engine.paused"
	EventEngineResumed      EventKind = "engine.resumed"
)

// Event describes one committed state change. Every successful mutating
// operation returns exactly one; the host decides where it goes from there.
type Event struct {
	ID       string         `json:"id"`
	Kind     EventKind      `json:"kind"`
	MarketID string         `json:"market_id,omitempty"`
	Actor    string         `json:"actor,omitempty"`
	At       time.Time      `json:"at"`
	Detail   map[string]any `json:"detail,omitempty"`
}

// EventBus carries committed events to whoever is listening. Publishing is
// host-side plumbing; a publish failure never rolls back the operation that
// produced the event.
type EventBus interface {
	Publish(ctx context.Context, evt Event) error
}
