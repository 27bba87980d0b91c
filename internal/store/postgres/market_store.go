package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	q querier
}

// NewMarketStore creates a new MarketStore backed by the given querier.
func NewMarketStore(q querier) *MarketStore {
	return &MarketStore{q: q}
}

const marketCols = `id, creator, shares_yes, shares_no, liquidity_b, state,
	proposal_likes, proposal_dislikes, proposal_total_votes,
	dispute_likes, dispute_dislikes, dispute_total_votes,
	proposed_outcome, winning_outcome, locked, reserved,
	created_at, approved_at, resolution_proposed_at, finalized_at, updated_at`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m        domain.Market
		state    string
		proposed *string
		winning  *string
		reserved []byte
	)
	err := row.Scan(
		&m.ID, &m.Creator, &m.SharesYes, &m.SharesNo, &m.LiquidityB, &state,
		&m.ProposalLikes, &m.ProposalDislikes, &m.ProposalTotalVotes,
		&m.DisputeLikes, &m.DisputeDislikes, &m.DisputeTotalVotes,
		&proposed, &winning, &m.Locked, &reserved,
		&m.CreatedAt, &m.ApprovedAt, &m.ResolutionProposedAt, &m.FinalizedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.State = domain.MarketState(state)
	if proposed != nil {
		o := domain.Outcome(*proposed)
		m.ProposedOutcome = &o
	}
	if winning != nil {
		o := domain.Outcome(*winning)
		m.WinningOutcome = &o
	}
	copy(m.Reserved[:], reserved)
	return m, nil
}

func outcomePtr(o *domain.Outcome) *string {
	if o == nil {
		return nil
	}
	s := string(*o)
	return &s
}

// Create inserts a new market row.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, creator, shares_yes, shares_no, liquidity_b, state,
			proposal_likes, proposal_dislikes, proposal_total_votes,
			dispute_likes, dispute_dislikes, dispute_total_votes,
			proposed_outcome, winning_outcome, locked, reserved,
			created_at, approved_at, resolution_proposed_at, finalized_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19, $20, $21
		)`

	_, err := s.q.Exec(ctx, query,
		m.ID, m.Creator, m.SharesYes, m.SharesNo, m.LiquidityB, string(m.State),
		m.ProposalLikes, m.ProposalDislikes, m.ProposalTotalVotes,
		m.DisputeLikes, m.DisputeDislikes, m.DisputeTotalVotes,
		outcomePtr(m.ProposedOutcome), outcomePtr(m.WinningOutcome), m.Locked, m.Reserved[:],
		m.CreatedAt, m.ApprovedAt, m.ResolutionProposedAt, m.FinalizedAt, m.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: market %s: %w", m.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// Get retrieves a market by its primary key.
func (s *MarketStore) Get(ctx context.Context, id string) (domain.Market, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, fmt.Errorf("postgres: market %s: %w", id, domain.ErrNotFound)
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// Update rewrites a market row. The locked column is owned by the latch and
// excluded from the write so a state update cannot clobber a held latch.
func (s *MarketStore) Update(ctx context.Context, m domain.Market) error {
	const query = `
		UPDATE markets SET
			creator                = $2,
			shares_yes             = $3,
			shares_no              = $4,
			liquidity_b            = $5,
			state                  = $6,
			proposal_likes         = $7,
			proposal_dislikes      = $8,
			proposal_total_votes   = $9,
			dispute_likes          = $10,
			dispute_dislikes       = $11,
			dispute_total_votes    = $12,
			proposed_outcome       = $13,
			winning_outcome        = $14,
			reserved               = $15,
			approved_at            = $16,
			resolution_proposed_at = $17,
			finalized_at           = $18,
			updated_at             = $19
		WHERE id = $1`

	tag, err := s.q.Exec(ctx, query,
		m.ID, m.Creator, m.SharesYes, m.SharesNo, m.LiquidityB, string(m.State),
		m.ProposalLikes, m.ProposalDislikes, m.ProposalTotalVotes,
		m.DisputeLikes, m.DisputeDislikes, m.DisputeTotalVotes,
		outcomePtr(m.ProposedOutcome), outcomePtr(m.WinningOutcome), m.Reserved[:],
		m.ApprovedAt, m.ResolutionProposedAt, m.FinalizedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: market %s: %w", m.ID, domain.ErrNotFound)
	}
	return nil
}

// ListByState returns markets in the given state with pagination and optional
// time filtering, newest first.
func (s *MarketStore) ListByState(ctx context.Context, state domain.MarketState, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE state = $1`
	args := []any{string(state)}
	argIdx := 2

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

	query += " ORDER BY created_at DESC, id ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets by state: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// TryLock latches the market with a single conditional update, so concurrent
// claimants race on the row and exactly one wins.
func (s *MarketStore) TryLock(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE markets SET locked = TRUE WHERE id = $1 AND locked = FALSE`, id)
	if err != nil {
		return fmt.Errorf("postgres: lock market %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing updated: either the market is missing or the latch is held.
	var locked bool
	err = s.q.QueryRow(ctx, `SELECT locked FROM markets WHERE id = $1`, id).Scan(&locked)
	if err == pgx.ErrNoRows {
		return fmt.Errorf("postgres: market %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("postgres: lock market %s: %w", id, err)
	}
	return fmt.Errorf("postgres: market %s: %w", id, domain.ErrReentrant)
}

// Unlock releases the latch. Releasing an unheld latch is a no-op.
func (s *MarketStore) Unlock(ctx context.Context, id string) error {
	_, err := s.q.Exec(ctx,
		`UPDATE markets SET locked = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: unlock market %s: %w", id, err)
	}
	return nil
}
