package fees

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
)

func TestComputeBasics(t *testing.T) {
	r := Rates{ProtocolBps: 200, CreatorBps: 100, LiquidityBps: 700}

	split, err := Compute(1_000_000_000, r)
	require.NoError(t, err)
	require.Equal(t, int64(100_000_000), split.Total)
	require.Equal(t, int64(20_000_000), split.Protocol)
	require.Equal(t, int64(10_000_000), split.Creator)
	require.Equal(t, int64(70_000_000), split.Liquidity)

	split, err = Compute(0, r)
	require.NoError(t, err)
	require.Zero(t, split.Total)

	split, err = Compute(1_000_000_000, Rates{})
	require.NoError(t, err)
	require.Zero(t, split.Total)
}

func TestComputeRoundsDown(t *testing.T) {
	// 3 nanos at 100% fee split 3333/3333/3334: both carve-outs floor to
	// zero and the remainder keeps every nano accounted for.
	split, err := Compute(3, Rates{ProtocolBps: 3333, CreatorBps: 3333, LiquidityBps: 3334})
	require.NoError(t, err)
	require.Equal(t, int64(3), split.Total)
	require.Equal(t, int64(0), split.Protocol)
	require.Equal(t, int64(0), split.Creator)
	require.Equal(t, int64(3), split.Liquidity)
}

func TestComputeRejectsBadRates(t *testing.T) {
	_, err := Compute(100, Rates{ProtocolBps: -1})
	require.ErrorIs(t, err, domain.ErrInvalidParams)

	_, err = Compute(100, Rates{ProtocolBps: 9_000, CreatorBps: 2_000})
	require.ErrorIs(t, err, domain.ErrInvalidParams)

	_, err = Compute(-1, Rates{})
	require.ErrorIs(t, err, domain.ErrInvalidParams)
}

func TestSplitZeroLeakage(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		amount := rapid.Int64Range(0, 1_000_000_000_000_000).Draw(t, "amount")
		p := rapid.Int64Range(0, 4_000).Draw(t, "protocol")
		c := rapid.Int64Range(0, 4_000).Draw(t, "creator")
		l := rapid.Int64Range(0, 2_000).Draw(t, "liquidity")
		r := Rates{ProtocolBps: p, CreatorBps: c, LiquidityBps: l}

		split, err := Compute(amount, r)
		if err != nil {
			t.Fatalf("Compute: %v", err)
		}
		if split.Protocol+split.Creator+split.Liquidity != split.Total {
			t.Fatalf("leaked: %d+%d+%d != %d", split.Protocol, split.Creator, split.Liquidity, split.Total)
		}
		if split.Protocol < 0 || split.Creator < 0 || split.Liquidity < 0 {
			t.Fatalf("negative cut in %+v", split)
		}
		if split.Total > amount {
			t.Fatalf("fee %d exceeds base %d", split.Total, amount)
		}
	})
}

func TestDeflateBudgetNeverOvershoots(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		budget := rapid.Int64Range(0, 1_000_000_000_000_000).Draw(t, "budget")
		p := rapid.Int64Range(0, 4_000).Draw(t, "protocol")
		c := rapid.Int64Range(0, 4_000).Draw(t, "creator")
		l := rapid.Int64Range(0, 2_000).Draw(t, "liquidity")
		r := Rates{ProtocolBps: p, CreatorBps: c, LiquidityBps: l}

		pre, err := DeflateBudget(budget, r)
		if err != nil {
			t.Fatalf("DeflateBudget: %v", err)
		}
		split, err := Compute(pre, r)
		if err != nil {
			t.Fatalf("Compute: %v", err)
		}
		if pre+split.Total > budget {
			t.Fatalf("deflated %d plus fee %d overshoots budget %d", pre, split.Total, budget)
		}
	})
}
