package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists markets.
type MarketStore interface {
	Create(ctx context.Context, market Market) error
	Get(ctx context.Context, id string) (Market, error)
	Update(ctx context.Context, market Market) error
	ListByState(ctx context.Context, state MarketState, opts ListOpts) ([]Market, error)
	// TryLock atomically latches the market against concurrent pool
	// withdrawals. It fails with ErrReentrant when the latch is already
	// held and ErrNotFound when the market does not exist.
	TryLock(ctx context.Context, id string) error
	// Unlock releases the latch. Releasing an unheld latch is a no-op.
	Unlock(ctx context.Context, id string) error
}

// PositionStore persists per-account holdings keyed by (market, owner).
type PositionStore interface {
	Get(ctx context.Context, marketID, owner string) (Position, error)
	Upsert(ctx context.Context, pos Position) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Position, error)
	ListByOwner(ctx context.Context, owner string, opts ListOpts) ([]Position, error)
}

// VoteStore persists vote receipts. Create enforces uniqueness per
// (market, voter, kind) with ErrDuplicateVote.
type VoteStore interface {
	Create(ctx context.Context, vote VoteRecord) error
	Get(ctx context.Context, marketID, voter string, kind VoteKind) (VoteRecord, error)
	ListByMarket(ctx context.Context, marketID string, kind VoteKind, opts ListOpts) ([]VoteRecord, error)
	CountByMarket(ctx context.Context, marketID string, kind VoteKind) (int64, error)
}

// ConfigStore persists the single global configuration record. Get returns
// ErrNotFound until the engine has been bootstrapped.
type ConfigStore interface {
	Get(ctx context.Context) (GlobalConfig, error)
	Put(ctx context.Context, cfg GlobalConfig) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// Store bundles the record stores behind one transactional boundary.
// WithinTx runs fn against a view whose writes commit together or not at
// all; fn returning an error aborts the whole batch.
type Store interface {
	Markets() MarketStore
	Positions() PositionStore
	Votes() VoteStore
	Config() ConfigStore
	WithinTx(ctx context.Context, fn func(Store) error) error
}
