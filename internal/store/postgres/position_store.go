package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	q querier
}

// NewPositionStore creates a new PositionStore backed by the given querier.
func NewPositionStore(q querier) *PositionStore {
	return &PositionStore{q: q}
}

const positionCols = `market_id, owner, shares_yes, shares_no, claimed, created_at, updated_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	err := row.Scan(
		&p.MarketID, &p.Owner, &p.SharesYes, &p.SharesNo,
		&p.Claimed, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	return p, nil
}

// Get retrieves a position by its (market, owner) key.
func (s *PositionStore) Get(ctx context.Context, marketID, owner string) (domain.Position, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions WHERE market_id = $1 AND owner = $2`,
		marketID, owner)
	p, err := scanPosition(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Position{}, fmt.Errorf("postgres: position %s/%s: %w", marketID, owner, domain.ErrNotFound)
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s/%s: %w", marketID, owner, err)
	}
	return p, nil
}

// Upsert inserts or updates a single position.
func (s *PositionStore) Upsert(ctx context.Context, pos domain.Position) error {
	const query = `
		INSERT INTO positions (
			market_id, owner, shares_yes, shares_no, claimed, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
		ON CONFLICT (market_id, owner) DO UPDATE SET
			shares_yes = EXCLUDED.shares_yes,
			shares_no  = EXCLUDED.shares_no,
			claimed    = EXCLUDED.claimed,
			updated_at = EXCLUDED.updated_at`

	_, err := s.q.Exec(ctx, query,
		pos.MarketID, pos.Owner, pos.SharesYes, pos.SharesNo,
		pos.Claimed, pos.CreatedAt, pos.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s/%s: %w", pos.MarketID, pos.Owner, err)
	}
	return nil
}

// ListByMarket returns all positions in a market, ordered by owner.
func (s *PositionStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionCols + ` FROM positions WHERE market_id = $1`
	args := []any{marketID}
	query, args = appendListOpts(query, args, "owner ASC", opts)
	return s.list(ctx, query, args)
}

// ListByOwner returns all of one account's positions, ordered by market.
func (s *PositionStore) ListByOwner(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionCols + ` FROM positions WHERE owner = $1`
	args := []any{owner}
	query, args = appendListOpts(query, args, "market_id ASC", opts)
	return s.list(ctx, query, args)
}

func (s *PositionStore) list(ctx context.Context, query string, args []any) ([]domain.Position, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions rows: %w", err)
	}
	return positions, nil
}

// appendListOpts extends query with created_at range filters, an ORDER BY
// clause, and LIMIT/OFFSET from opts, numbering placeholders after args.
func appendListOpts(query string, args []any, orderBy string, opts domain.ListOpts) (string, []any) {
	argIdx := len(args) + 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY " + orderBy

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}
