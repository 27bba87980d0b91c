package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
)

// querier is the query surface shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements domain.Store on SQLite.
type Store struct {
	db *sql.DB
	q  querier
}

// NewStore returns a Store over an opened and migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

func (s *Store) Markets() domain.MarketStore     { return &marketStore{q: s.q} }
func (s *Store) Positions() domain.PositionStore { return &positionStore{q: s.q} }
func (s *Store) Votes() domain.VoteStore         { return &voteStore{q: s.q} }
func (s *Store) Config() domain.ConfigStore      { return &configStore{q: s.q} }

// Audit returns the audit log store. It is not part of domain.Store; hosts
// discover it by interface assertion.
func (s *Store) Audit() domain.AuditStore { return &auditStore{q: s.q} }

// WithinTx runs fn against a view bound to a single transaction. fn returning
// an error rolls the whole batch back. Nested calls reuse the open
// transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(domain.Store) error) error {
	if _, inTx := s.q.(*sql.Tx); inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// appendListOpts extends query with created_at range filters, an ORDER BY
// clause, and LIMIT/OFFSET from opts.
func appendListOpts(query string, args []any, orderBy string, opts domain.ListOpts) (string, []any) {
	if opts.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, *opts.Since)
	}
	if opts.Until != nil {
		query += " AND created_at <= ?"
		args = append(args, *opts.Until)
	}
	query += " ORDER BY " + orderBy
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}
	return query, args
}

// ---------------------------------------------------------------------------
// Markets
// ---------------------------------------------------------------------------

type marketStore struct {
	q querier
}

const marketCols = `id, creator, shares_yes, shares_no, liquidity_b, state,
	proposal_likes, proposal_dislikes, proposal_total_votes,
	dispute_likes, dispute_dislikes, dispute_total_votes,
	proposed_outcome, winning_outcome, locked, reserved,
	created_at, approved_at, resolution_proposed_at, finalized_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMarket(row rowScanner) (domain.Market, error) {
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

func (s *marketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, creator, shares_yes, shares_no, liquidity_b, state,
			proposal_likes, proposal_dislikes, proposal_total_votes,
			dispute_likes, dispute_dislikes, dispute_total_votes,
			proposed_outcome, winning_outcome, locked, reserved,
			created_at, approved_at, resolution_proposed_at, finalized_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.q.ExecContext(ctx, query,
		m.ID, m.Creator, m.SharesYes, m.SharesNo, m.LiquidityB, string(m.State),
		m.ProposalLikes, m.ProposalDislikes, m.ProposalTotalVotes,
		m.DisputeLikes, m.DisputeDislikes, m.DisputeTotalVotes,
		outcomePtr(m.ProposedOutcome), outcomePtr(m.WinningOutcome), m.Locked, m.Reserved[:],
		m.CreatedAt, m.ApprovedAt, m.ResolutionProposedAt, m.FinalizedAt, m.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlite: market %s: %w", m.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("sqlite: create market %s: %w", m.ID, err)
	}
	return nil
}

func (s *marketStore) Get(ctx context.Context, id string) (domain.Market, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = ?`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Market{}, fmt.Errorf("sqlite: market %s: %w", id, domain.ErrNotFound)
		}
		return domain.Market{}, fmt.Errorf("sqlite: get market %s: %w", id, err)
	}
	return m, nil
}

// Update rewrites a market row. The locked column is owned by the latch and
// excluded from the write so a state update cannot clobber a held latch.
func (s *marketStore) Update(ctx context.Context, m domain.Market) error {
	const query = `
		UPDATE markets SET
			creator = ?, shares_yes = ?, shares_no = ?, liquidity_b = ?, state = ?,
			proposal_likes = ?, proposal_dislikes = ?, proposal_total_votes = ?,
			dispute_likes = ?, dispute_dislikes = ?, dispute_total_votes = ?,
			proposed_outcome = ?, winning_outcome = ?, reserved = ?,
			approved_at = ?, resolution_proposed_at = ?, finalized_at = ?, updated_at = ?
		WHERE id = ?`

	res, err := s.q.ExecContext(ctx, query,
		m.Creator, m.SharesYes, m.SharesNo, m.LiquidityB, string(m.State),
		m.ProposalLikes, m.ProposalDislikes, m.ProposalTotalVotes,
		m.DisputeLikes, m.DisputeDislikes, m.DisputeTotalVotes,
		outcomePtr(m.ProposedOutcome), outcomePtr(m.WinningOutcome), m.Reserved[:],
		m.ApprovedAt, m.ResolutionProposedAt, m.FinalizedAt, m.UpdatedAt,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update market %s: %w", m.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sqlite: market %s: %w", m.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *marketStore) ListByState(ctx context.Context, state domain.MarketState, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE state = ?`
	args := []any{string(state)}
	query, args = appendListOpts(query, args, "created_at DESC, id ASC", opts)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list markets by state: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list markets rows: %w", err)
	}
	return markets, nil
}

func (s *marketStore) TryLock(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE markets SET locked = 1 WHERE id = ? AND locked = 0`, id)
	if err != nil {
		return fmt.Errorf("sqlite: lock market %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return nil
	}

	var locked bool
	err = s.q.QueryRowContext(ctx, `SELECT locked FROM markets WHERE id = ?`, id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: market %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("sqlite: lock market %s: %w", id, err)
	}
	return fmt.Errorf("sqlite: market %s: %w", id, domain.ErrReentrant)
}

func (s *marketStore) Unlock(ctx context.Context, id string) error {
	if _, err := s.q.ExecContext(ctx,
		`UPDATE markets SET locked = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: unlock market %s: %w", id, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Positions
// ---------------------------------------------------------------------------

type positionStore struct {
	q querier
}

const positionCols = `market_id, owner, shares_yes, shares_no, claimed, created_at, updated_at`

func scanPosition(row rowScanner) (domain.Position, error) {
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

func (s *positionStore) Get(ctx context.Context, marketID, owner string) (domain.Position, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+positionCols+` FROM positions WHERE market_id = ? AND owner = ?`,
		marketID, owner)
	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Position{}, fmt.Errorf("sqlite: position %s/%s: %w", marketID, owner, domain.ErrNotFound)
		}
		return domain.Position{}, fmt.Errorf("sqlite: get position %s/%s: %w", marketID, owner, err)
	}
	return p, nil
}

func (s *positionStore) Upsert(ctx context.Context, pos domain.Position) error {
	const query = `
		INSERT INTO positions (market_id, owner, shares_yes, shares_no, claimed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(market_id, owner) DO UPDATE SET
			shares_yes = excluded.shares_yes,
			shares_no  = excluded.shares_no,
			claimed    = excluded.claimed,
			updated_at = excluded.updated_at`

	_, err := s.q.ExecContext(ctx, query,
		pos.MarketID, pos.Owner, pos.SharesYes, pos.SharesNo,
		pos.Claimed, pos.CreatedAt, pos.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert position %s/%s: %w", pos.MarketID, pos.Owner, err)
	}
	return nil
}

func (s *positionStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionCols + ` FROM positions WHERE market_id = ?`
	args := []any{marketID}
	query, args = appendListOpts(query, args, "owner ASC", opts)
	return s.list(ctx, query, args)
}

func (s *positionStore) ListByOwner(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionCols + ` FROM positions WHERE owner = ?`
	args := []any{owner}
	query, args = appendListOpts(query, args, "market_id ASC", opts)
	return s.list(ctx, query, args)
}

func (s *positionStore) list(ctx context.Context, query string, args []any) ([]domain.Position, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list positions rows: %w", err)
	}
	return positions, nil
}

// ---------------------------------------------------------------------------
// Votes
// ---------------------------------------------------------------------------

type voteStore struct {
	q querier
}

const voteCols = `market_id, voter, kind, choice, created_at`

func scanVote(row rowScanner) (domain.VoteRecord, error) {
	var (
		v            domain.VoteRecord
		kind, choice string
	)
	if err := row.Scan(&v.MarketID, &v.Voter, &kind, &choice, &v.CreatedAt); err != nil {
		return domain.VoteRecord{}, err
	}
	v.Kind = domain.VoteKind(kind)
	v.Choice = domain.VoteChoice(choice)
	return v, nil
}

func (s *voteStore) Create(ctx context.Context, vote domain.VoteRecord) error {
	const query = `
		INSERT INTO votes (market_id, voter, kind, choice, created_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err := s.q.ExecContext(ctx, query,
		vote.MarketID, vote.Voter, string(vote.Kind), string(vote.Choice), vote.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlite: vote %s/%s/%s: %w", vote.MarketID, vote.Kind, vote.Voter, domain.ErrDuplicateVote)
		}
		return fmt.Errorf("sqlite: create vote %s/%s/%s: %w", vote.MarketID, vote.Kind, vote.Voter, err)
	}
	return nil
}

func (s *voteStore) Get(ctx context.Context, marketID, voter string, kind domain.VoteKind) (domain.VoteRecord, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+voteCols+` FROM votes WHERE market_id = ? AND voter = ? AND kind = ?`,
		marketID, voter, string(kind))
	v, err := scanVote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.VoteRecord{}, fmt.Errorf("sqlite: vote %s/%s/%s: %w", marketID, kind, voter, domain.ErrNotFound)
		}
		return domain.VoteRecord{}, fmt.Errorf("sqlite: get vote %s/%s/%s: %w", marketID, kind, voter, err)
	}
	return v, nil
}

func (s *voteStore) ListByMarket(ctx context.Context, marketID string, kind domain.VoteKind, opts domain.ListOpts) ([]domain.VoteRecord, error) {
	query := `SELECT ` + voteCols + ` FROM votes WHERE market_id = ? AND kind = ?`
	args := []any{marketID, string(kind)}
	query, args = appendListOpts(query, args, "created_at ASC, voter ASC", opts)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list votes: %w", err)
	}
	defer rows.Close()

	var votes []domain.VoteRecord
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan vote: %w", err)
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list votes rows: %w", err)
	}
	return votes, nil
}

func (s *voteStore) CountByMarket(ctx context.Context, marketID string, kind domain.VoteKind) (int64, error) {
	var count int64
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM votes WHERE market_id = ? AND kind = ?`,
		marketID, string(kind)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count votes %s/%s: %w", marketID, kind, err)
	}
	return count, nil
}

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

type configStore struct {
	q querier
}

func (s *configStore) Get(ctx context.Context) (domain.GlobalConfig, error) {
	var c domain.GlobalConfig
	var delayNs, windowNs, maxAgeNs int64
	err := s.q.QueryRowContext(ctx, `
		SELECT admin, governance_authority, aggregation_authority, treasury,
			protocol_fee_bps, creator_fee_bps, liquidity_fee_bps,
			proposal_threshold_bps, dispute_threshold_bps,
			min_resolution_delay_ns, dispute_window_ns, max_market_age_ns,
			min_resolver_reputation, min_trade_size, min_pool_reserve,
			paused, updated_at
		FROM global_config WHERE id = 1`).Scan(
		&c.Admin, &c.GovernanceAuthority, &c.AggregationAuthority, &c.Treasury,
		&c.ProtocolFeeBps, &c.CreatorFeeBps, &c.LiquidityFeeBps,
		&c.ProposalThresholdBps, &c.DisputeThresholdBps,
		&delayNs, &windowNs, &maxAgeNs,
		&c.MinResolverReputation, &c.MinTradeSize, &c.MinPoolReserve,
		&c.Paused, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.GlobalConfig{}, fmt.Errorf("sqlite: config: %w", domain.ErrNotFound)
		}
		return domain.GlobalConfig{}, fmt.Errorf("sqlite: get config: %w", err)
	}
	c.MinResolutionDelay = time.Duration(delayNs)
	c.DisputeWindow = time.Duration(windowNs)
	c.MaxMarketAge = time.Duration(maxAgeNs)
	return c, nil
}

func (s *configStore) Put(ctx context.Context, cfg domain.GlobalConfig) error {
	const query = `
		INSERT INTO global_config (
			id, admin, governance_authority, aggregation_authority, treasury,
			protocol_fee_bps, creator_fee_bps, liquidity_fee_bps,
			proposal_threshold_bps, dispute_threshold_bps,
			min_resolution_delay_ns, dispute_window_ns, max_market_age_ns,
			min_resolver_reputation, min_trade_size, min_pool_reserve,
			paused, updated_at
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			admin                   = excluded.admin,
			governance_authority    = excluded.governance_authority,
			aggregation_authority   = excluded.aggregation_authority,
			treasury                = excluded.treasury,
			protocol_fee_bps        = excluded.protocol_fee_bps,
			creator_fee_bps         = excluded.creator_fee_bps,
			liquidity_fee_bps       = excluded.liquidity_fee_bps,
			proposal_threshold_bps  = excluded.proposal_threshold_bps,
			dispute_threshold_bps   = excluded.dispute_threshold_bps,
			min_resolution_delay_ns = excluded.min_resolution_delay_ns,
			dispute_window_ns       = excluded.dispute_window_ns,
			max_market_age_ns       = excluded.max_market_age_ns,
			min_resolver_reputation = excluded.min_resolver_reputation,
			min_trade_size          = excluded.min_trade_size,
			min_pool_reserve        = excluded.min_pool_reserve,
			paused                  = excluded.paused,
			updated_at              = excluded.updated_at`

	_, err := s.q.ExecContext(ctx, query,
		cfg.Admin, cfg.GovernanceAuthority, cfg.AggregationAuthority, cfg.Treasury,
		cfg.ProtocolFeeBps, cfg.CreatorFeeBps, cfg.LiquidityFeeBps,
		cfg.ProposalThresholdBps, cfg.DisputeThresholdBps,
		int64(cfg.MinResolutionDelay), int64(cfg.DisputeWindow), int64(cfg.MaxMarketAge),
		cfg.MinResolverReputation, cfg.MinTradeSize, cfg.MinPoolReserve,
		cfg.Paused, cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: put config: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Audit log
// ---------------------------------------------------------------------------

type auditStore struct {
	q querier
}

func (s *auditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("sqlite: marshal audit detail: %w", err)
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO audit_log (event, detail, created_at) VALUES (?, ?, ?)`,
		event, string(detailJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sqlite: log audit event %s: %w", event, err)
	}
	return nil
}

func (s *auditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query := `SELECT id, event, detail, created_at FROM audit_log WHERE 1=1`
	args := []any{}
	query, args = appendListOpts(query, args, "created_at DESC, id DESC", opts)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var detailJSON sql.NullString

		if err := rows.Scan(&e.ID, &e.Event, &detailJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit entry: %w", err)
		}

		if detailJSON.Valid && detailJSON.String != "" {
			if err := json.Unmarshal([]byte(detailJSON.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal audit detail: %w", err)
			}
		}

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries rows: %w", err)
	}
	return entries, nil
}
