package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
)

// querier is the query surface shared by *pgxpool.Pool and pgx.Tx, so the
// same record stores serve both pooled and transactional access.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements domain.Store on PostgreSQL. The zero value is not usable;
// construct with NewStore.
type Store struct {
	pool *pgxpool.Pool
	q    querier
}

// NewStore returns a Store backed by the client's connection pool.
func NewStore(client *Client) *Store {
	pool := client.Pool()
	return &Store{pool: pool, q: pool}
}

func (s *Store) Markets() domain.MarketStore     { return &MarketStore{q: s.q} }
func (s *Store) Positions() domain.PositionStore { return &PositionStore{q: s.q} }
func (s *Store) Votes() domain.VoteStore         { return &VoteStore{q: s.q} }
func (s *Store) Config() domain.ConfigStore      { return &ConfigStore{q: s.q} }

// Audit returns the audit log store. It is not part of domain.Store; hosts
// discover it by interface assertion.
func (s *Store) Audit() domain.AuditStore { return &AuditStore{q: s.q} }

// WithinTx runs fn against a view bound to a single database transaction.
// fn returning an error rolls the whole batch back. Nested calls reuse the
// open transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(domain.Store) error) error {
	if _, inTx := s.q.(pgx.Tx); inTx {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	// Rollback after a successful commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Store{pool: s.pool, q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
