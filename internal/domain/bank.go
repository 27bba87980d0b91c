package domain

import "context"

// Bank moves currency between accounts. Amounts are fixed-point int64
// scaled by 1e9. Implementations apply each transfer atomically and reject
// overdrafts with ErrInsufficientFunds.
type Bank interface {
	Balance(ctx context.Context, account string) (int64, error)
	Transfer(ctx context.Context, from, to string, amount int64) error
	// Mint credits an account out of thin air. Hosts use it to seed
	// balances; the engine itself never mints.
	Mint(ctx context.Context, account string, amount int64) error
}

// PoolAccount names the bank account escrowing a market's collateral.
func PoolAccount(marketID string) string {
	return "pool:" + marketID
}
