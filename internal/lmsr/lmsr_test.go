package lmsr

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
	"github.com/0xBased-lang/zmart-engine/internal/fixedpoint"
)

const unit = fixedpoint.Scale

func TestEmptyBookCost(t *testing.T) {
	bk := Book{B: 1000 * unit}
	cost, err := bk.Cost()
	require.NoError(t, err)
	// C(0,0) = b*ln2
	require.InDelta(t, 693_147_181_000, cost, 1_000)

	loss, err := MaxLoss(bk.B)
	require.NoError(t, err)
	require.Equal(t, int64(693_147_181_000), loss)
}

func TestEmptyBookPricesAreEven(t *testing.T) {
	bk := Book{B: 500 * unit}
	yes, err := bk.PriceYes()
	require.NoError(t, err)
	no, err := bk.PriceNo()
	require.NoError(t, err)
	require.Equal(t, unit/2, yes)
	require.Equal(t, unit, yes+no)
}

func TestInvalidBooks(t *testing.T) {
	_, err := Book{B: 0}.Cost()
	require.ErrorIs(t, err, domain.ErrNumericDomain)

	_, err = Book{B: -unit}.PriceYes()
	require.ErrorIs(t, err, domain.ErrNumericDomain)

	_, err = Book{QYes: -1, B: unit}.Cost()
	require.ErrorIs(t, err, domain.ErrNumericDomain)

	// Past the ratio cap the exp inputs would leave their domain.
	_, err = Book{QYes: 21 * unit, B: unit}.Cost()
	require.ErrorIs(t, err, domain.ErrNumericDomain)

	_, err = MaxLoss(0)
	require.ErrorIs(t, err, domain.ErrNumericDomain)
}

func TestPricesSumToOne(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := rapid.Int64Range(unit, 100_000*unit).Draw(t, "b")
		qYes := rapid.Int64Range(0, 10*b).Draw(t, "qYes")
		qNo := rapid.Int64Range(0, 10*b).Draw(t, "qNo")

		bk := Book{QYes: qYes, QNo: qNo, B: b}
		yes, err := bk.PriceYes()
		if err != nil {
			t.Fatalf("PriceYes: %v", err)
		}
		no, err := bk.PriceNo()
		if err != nil {
			t.Fatalf("PriceNo: %v", err)
		}
		if yes+no != unit {
			t.Fatalf("prices sum to %d, want %d", yes+no, unit)
		}
		if yes < 0 || yes > unit {
			t.Fatalf("PriceYes %d outside [0, 1]", yes)
		}

		// The complement must agree with pricing the mirrored book.
		mirrored, err := Book{QYes: qNo, QNo: qYes, B: b}.PriceYes()
		if err != nil {
			t.Fatalf("mirrored PriceYes: %v", err)
		}
		if diff := yes + mirrored - unit; diff < -2 || diff > 2 {
			t.Fatalf("mirror drift %d nanos", diff)
		}
	})
}

func TestBuyCostMonotone(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := rapid.Int64Range(unit, 10_000*unit).Draw(t, "b")
		qYes := rapid.Int64Range(0, 5*b).Draw(t, "qYes")
		qNo := rapid.Int64Range(0, 5*b).Draw(t, "qNo")
		// Deltas scale with b so the true cost always dominates the
		// b/Scale cost granularity.
		delta := rapid.Int64Range(b/1_000, b/2).Draw(t, "delta")
		outcome := domain.OutcomeYes
		if rapid.Bool().Draw(t, "no") {
			outcome = domain.OutcomeNo
		}

		bk := Book{QYes: qYes, QNo: qNo, B: b}
		cost, err := bk.BuyCost(outcome, delta)
		if err != nil {
			t.Fatalf("BuyCost: %v", err)
		}
		if cost <= 0 {
			t.Fatalf("buying %d shares cost %d, want positive", delta, cost)
		}
		bigger, err := bk.BuyCost(outcome, 2*delta)
		if err != nil {
			t.Fatalf("BuyCost 2x: %v", err)
		}
		if bigger <= cost {
			t.Fatalf("cost not increasing: %d for delta, %d for 2*delta", cost, bigger)
		}
	})
}

func TestBuyThenSellNeverProfits(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := rapid.Int64Range(unit, 10_000*unit).Draw(t, "b")
		qYes := rapid.Int64Range(0, 5*b).Draw(t, "qYes")
		qNo := rapid.Int64Range(0, 5*b).Draw(t, "qNo")
		delta := rapid.Int64Range(1_000, 10*b).Draw(t, "delta")

		bk := Book{QYes: qYes, QNo: qNo, B: b}
		cost, err := bk.BuyCost(domain.OutcomeYes, delta)
		if err != nil {
			t.Fatalf("BuyCost: %v", err)
		}
		after := Book{QYes: qYes + delta, QNo: qNo, B: b}
		proceeds, err := after.SellProceeds(domain.OutcomeYes, delta)
		if err != nil {
			t.Fatalf("SellProceeds: %v", err)
		}
		// Identical up to a few nanos of truncation; never a real profit.
		if proceeds > cost+8 {
			t.Fatalf("round trip made %d nanos: cost %d, proceeds %d", proceeds-cost, cost, proceeds)
		}
	})
}

func TestSellMoreThanOutstanding(t *testing.T) {
	bk := Book{QYes: 5 * unit, QNo: 0, B: 100 * unit}
	_, err := bk.SellProceeds(domain.OutcomeYes, 6*unit)
	require.ErrorIs(t, err, domain.ErrUnderflow)

	_, err = bk.SellProceeds(domain.OutcomeNo, 1)
	require.ErrorIs(t, err, domain.ErrUnderflow)
}

func TestSharesForCostMaximal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := rapid.Int64Range(unit, 10_000*unit).Draw(t, "b")
		qYes := rapid.Int64Range(0, 5*b).Draw(t, "qYes")
		qNo := rapid.Int64Range(0, 5*b).Draw(t, "qNo")
		budget := rapid.Int64Range(1_000, 1_000*unit).Draw(t, "budget")

		bk := Book{QYes: qYes, QNo: qNo, B: b}
		delta, err := bk.SharesForCost(domain.OutcomeYes, budget)
		if err != nil {
			t.Fatalf("SharesForCost: %v", err)
		}
		if delta > 0 {
			cost, err := bk.BuyCost(domain.OutcomeYes, delta)
			if err != nil {
				t.Fatalf("BuyCost at delta: %v", err)
			}
			if cost > budget {
				t.Fatalf("found delta %d costing %d over budget %d", delta, cost, budget)
			}
		}
		if room := 20*b - qYes; delta < room {
			over, err := bk.BuyCost(domain.OutcomeYes, delta+1)
			if err != nil {
				t.Fatalf("BuyCost at delta+1: %v", err)
			}
			if over <= budget {
				t.Fatalf("delta %d not maximal: delta+1 costs %d within budget %d", delta, over, budget)
			}
		}
	})
}

func TestSharesForCostSpendScenario(t *testing.T) {
	// b = 1000 units, fresh book, 100 units to spend of which 1/11 is
	// reserved for a 10% fee: the search budget is 90.909... units.
	bk := Book{B: 1000 * unit}
	budget := int64(90_909_090_909)

	delta, err := bk.SharesForCost(domain.OutcomeYes, budget)
	require.NoError(t, err)
	// Analytically delta = 1000*ln(2*e^(1/11) - 1) ~= 174.238 units.
	require.InDelta(t, 174_238_033_000, delta, 2_000_000)

	cost, err := bk.BuyCost(domain.OutcomeYes, delta)
	require.NoError(t, err)
	require.LessOrEqual(t, cost, budget)
}

func TestSaturatedBookRejectsBuys(t *testing.T) {
	bk := Book{QYes: 20 * unit, QNo: 0, B: unit}
	_, err := bk.SharesForCost(domain.OutcomeYes, unit)
	require.ErrorIs(t, err, domain.ErrPricing)
}

func TestBoundedLoss(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := rapid.Int64Range(10*unit, 10_000*unit).Draw(t, "b")
		bk := Book{B: b}
		loss, err := MaxLoss(b)
		if err != nil {
			t.Fatalf("MaxLoss: %v", err)
		}

		var collected int64
		steps := rapid.IntRange(1, 12).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			outcome := domain.OutcomeYes
			if rapid.Bool().Draw(t, "side") {
				outcome = domain.OutcomeNo
			}
			delta := rapid.Int64Range(1_000_000, b/2).Draw(t, "delta")
			cost, err := bk.BuyCost(outcome, delta)
			if err != nil {
				t.Fatalf("BuyCost step %d: %v", i, err)
			}
			collected += cost
			if outcome == domain.OutcomeYes {
				bk.QYes += delta
			} else {
				bk.QNo += delta
			}
		}

		worstPayout := bk.QYes
		if bk.QNo > worstPayout {
			worstPayout = bk.QNo
		}
		// Worst-case payout minus everything collected never exceeds
		// b*ln2, modulo a nano per step of truncation.
		if worstPayout-collected > loss+int64(steps)*4 {
			t.Fatalf("loss %d exceeds bound %d", worstPayout-collected, loss)
		}
	})
}
