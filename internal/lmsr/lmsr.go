// Package lmsr prices binary-outcome shares with the logarithmic market
// scoring rule, C(q) = b*ln(e^(q_yes/b) + e^(q_no/b)), evaluated entirely
// in fixed-point arithmetic. The log-sum-exp is computed against the larger
// leg so the exp kernel only ever sees non-positive arguments.
package lmsr

import (
	"fmt"
	"math"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
	"github.com/0xBased-lang/zmart-engine/internal/fixedpoint"
)

// MaxRatio caps shares/liquidity per side. Past this point prices are
// saturated within a few nanos anyway and the exp inputs would leave their
// validated domain.
const MaxRatio = 20 * fixedpoint.Scale

// Book is an LMSR two-outcome share book. Quantities and the liquidity
// parameter are fixed-point 1e9.
type Book struct {
	QYes int64
	QNo  int64
	B    int64
}

func (bk Book) validate() error {
	if bk.B <= 0 {
		return fmt.Errorf("%w: liquidity parameter must be positive", domain.ErrNumericDomain)
	}
	if bk.QYes < 0 || bk.QNo < 0 {
		return fmt.Errorf("%w: negative share quantity", domain.ErrNumericDomain)
	}
	for _, q := range []int64{bk.QYes, bk.QNo} {
		ratio, err := fixedpoint.Div(q, bk.B)
		if err != nil {
			return err
		}
		if ratio > MaxRatio {
			return fmt.Errorf("%w: shares exceed %d times liquidity", domain.ErrNumericDomain, MaxRatio/fixedpoint.Scale)
		}
	}
	return nil
}

func (bk Book) shares(o domain.Outcome) int64 {
	if o == domain.OutcomeYes {
		return bk.QYes
	}
	return bk.QNo
}

func (bk Book) withShares(o domain.Outcome, q int64) Book {
	if o == domain.OutcomeYes {
		bk.QYes = q
	} else {
		bk.QNo = q
	}
	return bk
}

// Cost evaluates the cost function. Stabilized as
// max + b*ln(1 + e^((min-max)/b)) so the intermediate values stay inside
// the exp/ln domains for any valid book.
func (bk Book) Cost() (int64, error) {
	if err := bk.validate(); err != nil {
		return 0, err
	}
	hiQ, loQ := bk.QYes, bk.QNo
	if loQ > hiQ {
		hiQ, loQ = loQ, hiQ
	}
	d, err := fixedpoint.Div(loQ-hiQ, bk.B)
	if err != nil {
		return 0, err
	}
	e, err := fixedpoint.Exp(d)
	if err != nil {
		return 0, err
	}
	lnv, err := fixedpoint.Ln(fixedpoint.One + e)
	if err != nil {
		return 0, err
	}
	tail, err := fixedpoint.Mul(bk.B, lnv)
	if err != nil {
		return 0, err
	}
	return fixedpoint.Add(hiQ, tail)
}

// PriceYes returns the instantaneous yes price as a fixed-point
// probability in [0, 1].
func (bk Book) PriceYes() (int64, error) {
	if err := bk.validate(); err != nil {
		return 0, err
	}
	d, err := fixedpoint.Div(bk.QNo-bk.QYes, bk.B)
	if err != nil {
		return 0, err
	}
	// price_yes = 1 / (1 + e^d); evaluate with a non-positive exponent.
	if d <= 0 {
		e, err := fixedpoint.Exp(d)
		if err != nil {
			return 0, err
		}
		return fixedpoint.MulDiv(fixedpoint.One, fixedpoint.Scale, fixedpoint.One+e)
	}
	e, err := fixedpoint.Exp(-d)
	if err != nil {
		return 0, err
	}
	return fixedpoint.MulDiv(e, fixedpoint.Scale, fixedpoint.One+e)
}

// PriceNo is the complement of PriceYes, so the two always sum to one.
func (bk Book) PriceNo() (int64, error) {
	yes, err := bk.PriceYes()
	if err != nil {
		return 0, err
	}
	return fixedpoint.Scale - yes, nil
}

// Price returns the instantaneous price for one side.
func (bk Book) Price(o domain.Outcome) (int64, error) {
	if o == domain.OutcomeYes {
		return bk.PriceYes()
	}
	return bk.PriceNo()
}

// BuyCost returns C(after) - C(before) for buying delta shares of o.
// Truncation can make the difference dip a nano below zero; it is clamped.
func (bk Book) BuyCost(o domain.Outcome, delta int64) (int64, error) {
	if !o.Valid() || delta <= 0 {
		return 0, fmt.Errorf("%w: buy delta must be positive", domain.ErrInvalidParams)
	}
	before, err := bk.Cost()
	if err != nil {
		return 0, err
	}
	q, err := fixedpoint.Add(bk.shares(o), delta)
	if err != nil {
		return 0, err
	}
	after, err := bk.withShares(o, q).Cost()
	if err != nil {
		return 0, err
	}
	cost, err := fixedpoint.Sub(after, before)
	if err != nil {
		return 0, err
	}
	if cost < 0 {
		cost = 0
	}
	return cost, nil
}

// SellProceeds returns C(before) - C(after) for selling delta shares of o.
func (bk Book) SellProceeds(o domain.Outcome, delta int64) (int64, error) {
	if !o.Valid() || delta <= 0 {
		return 0, fmt.Errorf("%w: sell delta must be positive", domain.ErrInvalidParams)
	}
	q, err := fixedpoint.SubQuantity(bk.shares(o), delta)
	if err != nil {
		return 0, err
	}
	before, err := bk.Cost()
	if err != nil {
		return 0, err
	}
	after, err := bk.withShares(o, q).Cost()
	if err != nil {
		return 0, err
	}
	proceeds, err := fixedpoint.Sub(before, after)
	if err != nil {
		return 0, err
	}
	if proceeds < 0 {
		proceeds = 0
	}
	return proceeds, nil
}

// SharesForCost finds the largest delta whose BuyCost fits the budget,
// by monotone bisection. The bracket is budget + MaxLoss(b) above, since
// BuyCost(delta) >= delta - b*ln2, clamped to the ratio cap. An empty
// bracket means the book cannot absorb the trade.
func (bk Book) SharesForCost(o domain.Outcome, budget int64) (int64, error) {
	if !o.Valid() || budget < 0 {
		return 0, fmt.Errorf("%w: invalid budget", domain.ErrInvalidParams)
	}
	if err := bk.validate(); err != nil {
		return 0, err
	}
	if budget == 0 {
		return 0, nil
	}
	loss, err := MaxLoss(bk.B)
	if err != nil {
		return 0, err
	}
	hi := int64(math.MaxInt64)
	if sum, err := fixedpoint.Add(budget, loss+1); err == nil {
		hi = sum
	}
	limit, err := fixedpoint.Mul(bk.B, MaxRatio)
	if err != nil {
		return 0, err
	}
	room := limit - bk.shares(o)
	if room < hi {
		hi = room
	}
	if hi <= 0 {
		return 0, fmt.Errorf("%w: book saturated, no room for trade", domain.ErrPricing)
	}
	lo := int64(0)
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		cost, err := bk.BuyCost(o, mid)
		if err != nil {
			return 0, fmt.Errorf("shares search at delta %d: %w", mid, err)
		}
		if cost <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, nil
}

// MaxLoss is the market maker's bounded loss b*ln2.
func MaxLoss(b int64) (int64, error) {
	if b <= 0 {
		return 0, fmt.Errorf("%w: liquidity parameter must be positive", domain.ErrNumericDomain)
	}
	return fixedpoint.Mul(b, fixedpoint.Ln2)
}
