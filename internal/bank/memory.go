// Package bank provides currency ledgers backing the engine's value
// movement.
package bank

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
)

// Ledger is an in-process account ledger. Every transfer debits and
// credits under one lock, so the total supply is conserved exactly.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]int64
}

// NewLedger returns an empty ledger; every account starts at zero.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[string]int64)}
}

func (l *Ledger) Balance(ctx context.Context, account string) (int64, error) {
	if account == "" {
		return 0, fmt.Errorf("bank: %w: empty account", domain.ErrInvalidParams)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account], nil
}

func (l *Ledger) Transfer(ctx context.Context, from, to string, amount int64) error {
	if from == "" || to == "" || from == to {
		return fmt.Errorf("bank: %w: transfer %q -> %q", domain.ErrInvalidParams, from, to)
	}
	if amount <= 0 {
		return fmt.Errorf("bank: %w: amount %d", domain.ErrInvalidParams, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from] < amount {
		return fmt.Errorf("bank: %s holds %d, needs %d: %w", from, l.balances[from], amount, domain.ErrInsufficientFunds)
	}
	if l.balances[to] > math.MaxInt64-amount {
		return fmt.Errorf("bank: credit %s: %w", to, domain.ErrOverflow)
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

func (l *Ledger) Mint(ctx context.Context, account string, amount int64) error {
	if account == "" {
		return fmt.Errorf("bank: %w: empty account", domain.ErrInvalidParams)
	}
	if amount <= 0 {
		return fmt.Errorf("bank: %w: amount %d", domain.ErrInvalidParams, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[account] > math.MaxInt64-amount {
		return fmt.Errorf("bank: credit %s: %w", account, domain.ErrOverflow)
	}
	l.balances[account] += amount
	return nil
}

// TotalSupply sums every balance. Tests use it to assert conservation.
func (l *Ledger) TotalSupply(ctx context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total int64
	for _, b := range l.balances {
		if b > math.MaxInt64-total {
			return 0, fmt.Errorf("bank: total supply: %w", domain.ErrOverflow)
		}
		total += b
	}
	return total, nil
}
