package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
)

// VoteStore implements domain.VoteStore using PostgreSQL. The primary key on
// (market_id, voter, kind) enforces one vote per ballot.
type VoteStore struct {
	q querier
}

// NewVoteStore creates a new VoteStore backed by the given querier.
func NewVoteStore(q querier) *VoteStore {
	return &VoteStore{q: q}
}

const voteCols = `market_id, voter, kind, choice, created_at`

func scanVote(row pgx.Row) (domain.VoteRecord, error) {
	var (
		v            domain.VoteRecord
		kind, choice string
	)
	err := row.Scan(&v.MarketID, &v.Voter, &kind, &choice, &v.CreatedAt)
	if err != nil {
		return domain.VoteRecord{}, err
	}
	v.Kind = domain.VoteKind(kind)
	v.Choice = domain.VoteChoice(choice)
	return v, nil
}

// Create inserts a vote receipt. A second vote on the same ballot fails with
// ErrDuplicateVote.
func (s *VoteStore) Create(ctx context.Context, vote domain.VoteRecord) error {
	const query = `
		INSERT INTO votes (market_id, voter, kind, choice, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.q.Exec(ctx, query,
		vote.MarketID, vote.Voter, string(vote.Kind), string(vote.Choice), vote.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: vote %s/%s/%s: %w", vote.MarketID, vote.Kind, vote.Voter, domain.ErrDuplicateVote)
		}
		return fmt.Errorf("postgres: create vote %s/%s/%s: %w", vote.MarketID, vote.Kind, vote.Voter, err)
	}
	return nil
}

// Get retrieves one voter's receipt for a ballot.
func (s *VoteStore) Get(ctx context.Context, marketID, voter string, kind domain.VoteKind) (domain.VoteRecord, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+voteCols+` FROM votes WHERE market_id = $1 AND voter = $2 AND kind = $3`,
		marketID, voter, string(kind))
	v, err := scanVote(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.VoteRecord{}, fmt.Errorf("postgres: vote %s/%s/%s: %w", marketID, kind, voter, domain.ErrNotFound)
		}
		return domain.VoteRecord{}, fmt.Errorf("postgres: get vote %s/%s/%s: %w", marketID, kind, voter, err)
	}
	return v, nil
}

// ListByMarket returns a ballot's receipts in voting order.
func (s *VoteStore) ListByMarket(ctx context.Context, marketID string, kind domain.VoteKind, opts domain.ListOpts) ([]domain.VoteRecord, error) {
	query := `SELECT ` + voteCols + ` FROM votes WHERE market_id = $1 AND kind = $2`
	args := []any{marketID, string(kind)}
	query, args = appendListOpts(query, args, "created_at ASC, voter ASC", opts)

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list votes: %w", err)
	}
	defer rows.Close()

	var votes []domain.VoteRecord
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan vote: %w", err)
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list votes rows: %w", err)
	}
	return votes, nil
}

// CountByMarket returns the number of receipts on a ballot.
func (s *VoteStore) CountByMarket(ctx context.Context, marketID string, kind domain.VoteKind) (int64, error) {
	var count int64
	err := s.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM votes WHERE market_id = $1 AND kind = $2`,
		marketID, string(kind)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count votes %s/%s: %w", marketID, kind, err)
	}
	return count, nil
}
