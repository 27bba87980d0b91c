package bank

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
)

func TestTransferMovesValue(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	require.NoError(t, l.Mint(ctx, "alice", 1_000))

	require.NoError(t, l.Transfer(ctx, "alice", "bob", 400))

	a, err := l.Balance(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(600), a)
	b, err := l.Balance(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, int64(400), b)

	total, err := l.TotalSupply(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1_000), total)
}

func TestTransferRejectsOverdraft(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	require.NoError(t, l.Mint(ctx, "alice", 100))

	err := l.Transfer(ctx, "alice", "bob", 101)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// The refused transfer touches nothing.
	a, err := l.Balance(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(100), a)
}

func TestTransferRejectsBadParams(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	require.NoError(t, l.Mint(ctx, "alice", 100))

	require.ErrorIs(t, l.Transfer(ctx, "alice", "alice", 10), domain.ErrInvalidParams)
	require.ErrorIs(t, l.Transfer(ctx, "", "bob", 10), domain.ErrInvalidParams)
	require.ErrorIs(t, l.Transfer(ctx, "alice", "", 10), domain.ErrInvalidParams)
	require.ErrorIs(t, l.Transfer(ctx, "alice", "bob", 0), domain.ErrInvalidParams)
	require.ErrorIs(t, l.Transfer(ctx, "alice", "bob", -5), domain.ErrInvalidParams)
}

func TestMintGuardsOverflow(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()

	require.NoError(t, l.Mint(ctx, "vault", math.MaxInt64))
	require.ErrorIs(t, l.Mint(ctx, "vault", 1), domain.ErrOverflow)
	require.ErrorIs(t, l.Mint(ctx, "vault", 0), domain.ErrInvalidParams)

	require.NoError(t, l.Mint(ctx, "alice", 5))
	require.ErrorIs(t, l.Transfer(ctx, "alice", "vault", 5), domain.ErrOverflow)
}

func TestUnknownAccountIsEmpty(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()

	b, err := l.Balance(ctx, "nobody")
	require.NoError(t, err)
	require.Zero(t, b)

	_, err = l.Balance(ctx, "")
	require.ErrorIs(t, err, domain.ErrInvalidParams)
}
