// Package fixedpoint implements checked integer arithmetic on amounts
// scaled by 1e9, plus the exp/ln kernels the pricing code builds on. No
// operation here ever wraps silently; anything that cannot be represented
// comes back as an error from the shared taxonomy.
package fixedpoint

import (
	"math"
	"math/bits"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
)

const (
	// Scale is the fixed-point denominator: one whole unit.
	Scale int64 = 1_000_000_000
	// One is 1.0 in fixed-point form.
	One = Scale
	// Ln2 is ln 2 scaled, rounded to nearest.
	Ln2 int64 = 693_147_181
	// ExpMaxInput bounds Exp's argument. e^22 scaled still fits int64
	// with room for the final carry.
	ExpMaxInput = 22 * Scale
	// expZeroCutoff is where e^x rounds to zero at this scale.
	expZeroCutoff = -22 * Scale
)

// Add returns a+b, erroring instead of wrapping.
func Add(a, b int64) (int64, error) {
	sum := a + b
	if b > 0 && sum < a {
		return 0, domain.ErrOverflow
	}
	if b < 0 && sum > a {
		return 0, domain.ErrUnderflow
	}
	return sum, nil
}

// Sub returns a-b, erroring instead of wrapping.
func Sub(a, b int64) (int64, error) {
	diff := a - b
	if b > 0 && diff > a {
		return 0, domain.ErrUnderflow
	}
	if b < 0 && diff < a {
		return 0, domain.ErrOverflow
	}
	return diff, nil
}

// SubQuantity returns a-b for non-negative quantities, refusing to go
// below zero.
func SubQuantity(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, domain.ErrNumericDomain
	}
	if b > a {
		return 0, domain.ErrUnderflow
	}
	return a - b, nil
}

// Mul returns a*b/Scale, truncated toward zero.
func Mul(a, b int64) (int64, error) {
	return MulDiv(a, b, Scale)
}

// Div returns a*Scale/b, truncated toward zero.
func Div(a, b int64) (int64, error) {
	return MulDiv(a, Scale, b)
}

// MulDiv returns a*b/den with a full 128-bit intermediate, truncated
// toward zero. Narrowing back into int64 fails rather than losing bits.
func MulDiv(a, b, den int64) (int64, error) {
	if den == 0 {
		return 0, domain.ErrNumericDomain
	}
	neg := (a < 0) != (b < 0)
	if den < 0 {
		neg = !neg
	}
	q, err := mulDivU(absU(a), absU(b), absU(den))
	if err != nil {
		if neg {
			return 0, domain.ErrUnderflow
		}
		return 0, err
	}
	if neg {
		if q > 1<<63 {
			return 0, domain.ErrUnderflow
		}
		if q == 1<<63 {
			return math.MinInt64, nil
		}
		return -int64(q), nil
	}
	if q > math.MaxInt64 {
		return 0, domain.ErrOverflow
	}
	return int64(q), nil
}

func mulDivU(a, b, den uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		return 0, domain.ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, den)
	return q, nil
}

func absU(v int64) uint64 {
	u := uint64(v)
	if v < 0 {
		u = -u
	}
	return u
}

// Exp returns e^x in fixed-point form. The argument is range-reduced as
// x = k*ln2 + r with r in [0, ln2), e^r comes from a short Taylor sum, and
// the 2^k factor is a shift. Arguments above ExpMaxInput are out of
// domain; far-negative arguments legitimately round to zero.
func Exp(x int64) (int64, error) {
	if x > ExpMaxInput {
		return 0, domain.ErrNumericDomain
	}
	if x == 0 {
		return One, nil
	}
	if x < expZeroCutoff {
		return 0, nil
	}
	k := x / Ln2
	if x < 0 && x%Ln2 != 0 {
		k--
	}
	r := x - k*Ln2
	er := expTaylor(r)
	if k >= 0 {
		if k > 62 || er > math.MaxInt64>>uint(k) {
			return 0, domain.ErrOverflow
		}
		return er << uint(k), nil
	}
	shift := uint(-k)
	if shift >= 63 {
		return 0, nil
	}
	half := int64(1) << (shift - 1)
	return (er + half) >> shift, nil
}

// expTaylor sums e^r for r in [0, ln2). Terms shrink by at least r/n per
// step, so the loop bound is never the stopping reason in practice.
func expTaylor(r int64) int64 {
	sum := One
	term := One
	for n := int64(1); n <= 20; n++ {
		term = term * r / (Scale * n)
		if term == 0 {
			break
		}
		sum += term
	}
	return sum
}

// Ln returns ln x in fixed-point form for x > 0. The argument is
// normalized to m*2^k with m in [1, 2), then ln m comes from the atanh
// series over z = (m-1)/(m+1), which converges fast because z <= 1/3.
func Ln(x int64) (int64, error) {
	if x <= 0 {
		return 0, domain.ErrNumericDomain
	}
	k := int64(0)
	m := x
	for m >= 2*Scale {
		m >>= 1
		k++
	}
	for m < Scale {
		m <<= 1
		k--
	}
	z := (m - Scale) * Scale / (m + Scale)
	zsq := z * z / Scale
	sum := z
	term := z
	for n := int64(3); n <= 25; n += 2 {
		term = term * zsq / Scale
		if term == 0 {
			break
		}
		sum += term / n
	}
	return 2*sum + k*Ln2, nil
}
