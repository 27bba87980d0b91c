// Package memory is a map-backed store for tests, simulation, and
// single-process deployments. WithinTx stages writes by snapshotting the
// whole state and restoring it when the batch fails.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
)

// Store implements domain.Store plus an audit log.
type Store struct {
	mu sync.RWMutex
	st state
}

type state struct {
	markets   map[string]domain.Market
	latches   map[string]struct{}
	positions map[string]domain.Position
	votes     map[string]domain.VoteRecord
	config    *domain.GlobalConfig
	audit     []domain.AuditEntry
	auditSeq  int64
}

func (s state) clone() state {
	cp := s
	cp.markets = maps.Clone(s.markets)
	cp.latches = maps.Clone(s.latches)
	cp.positions = maps.Clone(s.positions)
	cp.votes = maps.Clone(s.votes)
	cp.audit = slices.Clone(s.audit)
	if s.config != nil {
		cfg := *s.config
		cp.config = &cfg
	}
	return cp
}

// New returns an empty store.
func New() *Store {
	return &Store{st: state{
		markets:   make(map[string]domain.Market),
		latches:   make(map[string]struct{}),
		positions: make(map[string]domain.Position),
		votes:     make(map[string]domain.VoteRecord),
	}}
}

func posKey(marketID, owner string) string {
	return marketID + "\x00" + owner
}

func voteKey(marketID string, kind domain.VoteKind, voter string) string {
	return marketID + "\x00" + string(kind) + "\x00" + voter
}

func (s *Store) Markets() domain.MarketStore     { return marketView{st: &s.st, mu: &s.mu} }
func (s *Store) Positions() domain.PositionStore { return positionView{st: &s.st, mu: &s.mu} }
func (s *Store) Votes() domain.VoteStore         { return voteView{st: &s.st, mu: &s.mu} }
func (s *Store) Config() domain.ConfigStore      { return configView{st: &s.st, mu: &s.mu} }

// Audit exposes the in-memory audit log. It is not part of domain.Store;
// hosts discover it by interface assertion.
func (s *Store) Audit() domain.AuditStore { return auditView{st: &s.st, mu: &s.mu} }

// WithinTx runs fn against an unlocked view of the same state while
// holding the write lock. Any error restores the pre-transaction
// snapshot, so partial batches never become visible.
func (s *Store) WithinTx(ctx context.Context, fn func(domain.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	backup := s.st.clone()
	if err := fn(txStore{st: &s.st}); err != nil {
		s.st = backup
		return err
	}
	return nil
}

// txStore is the view fn receives inside WithinTx. Its record views carry
// no mutex because the outer call already holds the write lock.
type txStore struct {
	st *state
}

func (t txStore) Markets() domain.MarketStore     { return marketView{st: t.st} }
func (t txStore) Positions() domain.PositionStore { return positionView{st: t.st} }
func (t txStore) Votes() domain.VoteStore         { return voteView{st: t.st} }
func (t txStore) Config() domain.ConfigStore      { return configView{st: t.st} }

func (t txStore) WithinTx(ctx context.Context, fn func(domain.Store) error) error {
	return fn(t)
}

type marketView struct {
	st *state
	mu *sync.RWMutex
}

func (v marketView) Create(ctx context.Context, m domain.Market) error {
	if v.mu != nil {
		v.mu.Lock()
		defer v.mu.Unlock()
	}
	if _, ok := v.st.markets[m.ID]; ok {
		return fmt.Errorf("memory: market %s: %w", m.ID, domain.ErrAlreadyExists)
	}
	v.st.markets[m.ID] = m
	return nil
}

func (v marketView) Get(ctx context.Context, id string) (domain.Market, error) {
	if v.mu != nil {
		v.mu.RLock()
		defer v.mu.RUnlock()
	}
	m, ok := v.st.markets[id]
	if !ok {
		return domain.Market{}, fmt.Errorf("memory: market %s: %w", id, domain.ErrNotFound)
	}
	_, m.Locked = v.st.latches[id]
	return m, nil
}

func (v marketView) Update(ctx context.Context, m domain.Market) error {
	if v.mu != nil {
		v.mu.Lock()
		defer v.mu.Unlock()
	}
	if _, ok := v.st.markets[m.ID]; !ok {
		return fmt.Errorf("memory: market %s: %w", m.ID, domain.ErrNotFound)
	}
	v.st.markets[m.ID] = m
	return nil
}

func (v marketView) ListByState(ctx context.Context, state domain.MarketState, opts domain.ListOpts) ([]domain.Market, error) {
	if v.mu != nil {
		v.mu.RLock()
		defer v.mu.RUnlock()
	}
	var out []domain.Market
	for _, m := range v.st.markets {
		if m.State != state {
			continue
		}
		if !inWindow(m.CreatedAt, opts) {
			continue
		}
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b domain.Market) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return page(out, opts), nil
}

func (v marketView) TryLock(ctx context.Context, id string) error {
	if v.mu != nil {
		v.mu.Lock()
		defer v.mu.Unlock()
	}
	if _, ok := v.st.markets[id]; !ok {
		return fmt.Errorf("memory: market %s: %w", id, domain.ErrNotFound)
	}
	if _, held := v.st.latches[id]; held {
		return fmt.Errorf("memory: market %s: %w", id, domain.ErrReentrant)
	}
	v.st.latches[id] = struct{}{}
	return nil
}

func (v marketView) Unlock(ctx context.Context, id string) error {
	if v.mu != nil {
		v.mu.Lock()
		defer v.mu.Unlock()
	}
	delete(v.st.latches, id)
	return nil
}

type positionView struct {
	st *state
	mu *sync.RWMutex
}

func (v positionView) Get(ctx context.Context, marketID, owner string) (domain.Position, error) {
	if v.mu != nil {
		v.mu.RLock()
		defer v.mu.RUnlock()
	}
	p, ok := v.st.positions[posKey(marketID, owner)]
	if !ok {
		return domain.Position{}, fmt.Errorf("memory: position %s/%s: %w", marketID, owner, domain.ErrNotFound)
	}
	return p, nil
}

func (v positionView) Upsert(ctx context.Context, pos domain.Position) error {
	if v.mu != nil {
		v.mu.Lock()
		defer v.mu.Unlock()
	}
	v.st.positions[posKey(pos.MarketID, pos.Owner)] = pos
	return nil
}

func (v positionView) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Position, error) {
	if v.mu != nil {
		v.mu.RLock()
		defer v.mu.RUnlock()
	}
	var out []domain.Position
	for _, p := range v.st.positions {
		if p.MarketID == marketID && inWindow(p.CreatedAt, opts) {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Position) int {
		return strings.Compare(a.Owner, b.Owner)
	})
	return page(out, opts), nil
}

func (v positionView) ListByOwner(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.Position, error) {
	if v.mu != nil {
		v.mu.RLock()
		defer v.mu.RUnlock()
	}
	var out []domain.Position
	for _, p := range v.st.positions {
		if p.Owner == owner && inWindow(p.CreatedAt, opts) {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Position) int {
		return strings.Compare(a.MarketID, b.MarketID)
	})
	return page(out, opts), nil
}

type voteView struct {
	st *state
	mu *sync.RWMutex
}

func (v voteView) Create(ctx context.Context, vote domain.VoteRecord) error {
	if v.mu != nil {
		v.mu.Lock()
		defer v.mu.Unlock()
	}
	key := voteKey(vote.MarketID, vote.Kind, vote.Voter)
	if _, ok := v.st.votes[key]; ok {
		return fmt.Errorf("memory: vote %s/%s/%s: %w", vote.MarketID, vote.Kind, vote.Voter, domain.ErrDuplicateVote)
	}
	v.st.votes[key] = vote
	return nil
}

func (v voteView) Get(ctx context.Context, marketID, voter string, kind domain.VoteKind) (domain.VoteRecord, error) {
	if v.mu != nil {
		v.mu.RLock()
		defer v.mu.RUnlock()
	}
	rec, ok := v.st.votes[voteKey(marketID, kind, voter)]
	if !ok {
		return domain.VoteRecord{}, fmt.Errorf("memory: vote %s/%s/%s: %w", marketID, kind, voter, domain.ErrNotFound)
	}
	return rec, nil
}

func (v voteView) ListByMarket(ctx context.Context, marketID string, kind domain.VoteKind, opts domain.ListOpts) ([]domain.VoteRecord, error) {
	if v.mu != nil {
		v.mu.RLock()
		defer v.mu.RUnlock()
	}
	var out []domain.VoteRecord
	for _, rec := range v.st.votes {
		if rec.MarketID == marketID && rec.Kind == kind && inWindow(rec.CreatedAt, opts) {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b domain.VoteRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Voter, b.Voter)
	})
	return page(out, opts), nil
}

func (v voteView) CountByMarket(ctx context.Context, marketID string, kind domain.VoteKind) (int64, error) {
	if v.mu != nil {
		v.mu.RLock()
		defer v.mu.RUnlock()
	}
	var n int64
	for _, rec := range v.st.votes {
		if rec.MarketID == marketID && rec.Kind == kind {
			n++
		}
	}
	return n, nil
}

type configView struct {
	st *state
	mu *sync.RWMutex
}

func (v configView) Get(ctx context.Context) (domain.GlobalConfig, error) {
	if v.mu != nil {
		v.mu.RLock()
		defer v.mu.RUnlock()
	}
	if v.st.config == nil {
		return domain.GlobalConfig{}, fmt.Errorf("memory: config: %w", domain.ErrNotFound)
	}
	return *v.st.config, nil
}

func (v configView) Put(ctx context.Context, cfg domain.GlobalConfig) error {
	if v.mu != nil {
		v.mu.Lock()
		defer v.mu.Unlock()
	}
	v.st.config = &cfg
	return nil
}

type auditView struct {
	st *state
	mu *sync.RWMutex
}

func (v auditView) Log(ctx context.Context, event string, detail map[string]any) error {
	if v.mu != nil {
		v.mu.Lock()
		defer v.mu.Unlock()
	}
	v.st.auditSeq++
	v.st.audit = append(v.st.audit, domain.AuditEntry{
		ID:        v.st.auditSeq,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (v auditView) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	if v.mu != nil {
		v.mu.RLock()
		defer v.mu.RUnlock()
	}
	// Newest first, matching the persistent backends.
	var filtered []domain.AuditEntry
	for i := len(v.st.audit) - 1; i >= 0; i-- {
		if e := v.st.audit[i]; inWindow(e.CreatedAt, opts) {
			filtered = append(filtered, e)
		}
	}
	return page(filtered, opts), nil
}

func inWindow(at time.Time, opts domain.ListOpts) bool {
	if opts.Since != nil && at.Before(*opts.Since) {
		return false
	}
	if opts.Until != nil && at.After(*opts.Until) {
		return false
	}
	return true
}

func page[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
