package fixedpoint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
)

func TestAddChecked(t *testing.T) {
	got, err := Add(2*Scale, 3*Scale)
	require.NoError(t, err)
	require.Equal(t, 5*Scale, got)

	_, err = Add(math.MaxInt64, 1)
	require.ErrorIs(t, err, domain.ErrOverflow)

	_, err = Add(math.MinInt64, -1)
	require.ErrorIs(t, err, domain.ErrUnderflow)
}

func TestSubChecked(t *testing.T) {
	got, err := Sub(5*Scale, 2*Scale)
	require.NoError(t, err)
	require.Equal(t, 3*Scale, got)

	_, err = Sub(math.MinInt64, 1)
	require.ErrorIs(t, err, domain.ErrUnderflow)

	_, err = Sub(math.MaxInt64, -1)
	require.ErrorIs(t, err, domain.ErrOverflow)
}

func TestSubQuantity(t *testing.T) {
	got, err := SubQuantity(5, 5)
	require.NoError(t, err)
	require.Equal(t, int64(0), got)

	_, err = SubQuantity(4, 5)
	require.ErrorIs(t, err, domain.ErrUnderflow)

	_, err = SubQuantity(-1, 0)
	require.ErrorIs(t, err, domain.ErrNumericDomain)
}

func TestMulDiv(t *testing.T) {
	got, err := Mul(3*Scale, 4*Scale)
	require.NoError(t, err)
	require.Equal(t, 12*Scale, got)

	got, err = Div(12*Scale, 4*Scale)
	require.NoError(t, err)
	require.Equal(t, 3*Scale, got)

	// Products needing the wide intermediate still come back exact.
	got, err = MulDiv(7_000_000_000_000, 9_000_000_000_000, 3_000_000_000_000)
	require.NoError(t, err)
	require.Equal(t, int64(21_000_000_000_000), got)

	_, err = MulDiv(math.MaxInt64, 2, 1)
	require.ErrorIs(t, err, domain.ErrOverflow)

	_, err = MulDiv(math.MaxInt64, -2, 1)
	require.ErrorIs(t, err, domain.ErrUnderflow)

	_, err = Div(Scale, 0)
	require.ErrorIs(t, err, domain.ErrNumericDomain)

	got, err = Mul(-3*Scale, 4*Scale)
	require.NoError(t, err)
	require.Equal(t, -12*Scale, got)
}

func TestMulDivExactInverse(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.Int64Range(-1_000_000*Scale, 1_000_000*Scale).Draw(t, "a")
		b := rapid.Int64Range(1, 1_000_000*Scale).Draw(t, "b")

		got, err := MulDiv(a, b, b)
		if err != nil {
			t.Fatalf("MulDiv(%d, %d, %d) failed: %v", a, b, b, err)
		}
		if got != a {
			t.Fatalf("MulDiv(%d, %d, %d) = %d, want %d", a, b, b, got, a)
		}
	})
}

func TestExpKnownValues(t *testing.T) {
	cases := []struct {
		name string
		x    int64
		want int64
	}{
		{"zero", 0, One},
		{"one", One, 2_718_281_828},
		{"ln2", Ln2, 2 * One},
		{"neg ln2", -Ln2, One / 2},
		{"ten", 10 * One, 22_026_465_794_806},
		{"deep negative", -30 * One, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Exp(tc.x)
			require.NoError(t, err)
			require.InDelta(t, tc.want, got, math.Max(float64(tc.want)/1e6, 10))
		})
	}

	_, err := Exp(ExpMaxInput + 1)
	require.ErrorIs(t, err, domain.ErrNumericDomain)

	got, err := Exp(ExpMaxInput)
	require.NoError(t, err)
	require.Greater(t, got, int64(0))
}

func TestLnKnownValues(t *testing.T) {
	cases := []struct {
		name string
		x    int64
		want int64
	}{
		{"one", One, 0},
		{"two", 2 * One, Ln2},
		{"e", 2_718_281_828, One},
		{"half", One / 2, -Ln2},
		{"one nano", 1, -20_723_265_837},
		{"large", 1_000_000 * Scale, 13_815_510_558},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Ln(tc.x)
			require.NoError(t, err)
			require.InDelta(t, tc.want, got, math.Max(math.Abs(float64(tc.want))/1e6, 20))
		})
	}

	_, err := Ln(0)
	require.ErrorIs(t, err, domain.ErrNumericDomain)

	_, err = Ln(-Scale)
	require.ErrorIs(t, err, domain.ErrNumericDomain)
}

func TestExpLnRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		x := rapid.Int64Range(-5*Scale, 21*Scale).Draw(t, "x")

		ex, err := Exp(x)
		if err != nil {
			t.Fatalf("Exp(%d) failed: %v", x, err)
		}
		back, err := Ln(ex)
		if err != nil {
			t.Fatalf("Ln(%d) failed: %v", ex, err)
		}
		if diff := back - x; diff < -2_000 || diff > 2_000 {
			t.Fatalf("Ln(Exp(%d)) = %d, drift %d", x, back, diff)
		}
	})
}

func TestLnExpRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		y := rapid.Int64Range(1_000_000, 1_000_000*Scale).Draw(t, "y")

		ln, err := Ln(y)
		if err != nil {
			t.Fatalf("Ln(%d) failed: %v", y, err)
		}
		back, err := Exp(ln)
		if err != nil {
			t.Fatalf("Exp(%d) failed: %v", ln, err)
		}
		rel := math.Abs(float64(back-y)) / float64(y)
		if rel > 1e-5 {
			t.Fatalf("Exp(Ln(%d)) = %d, relative drift %g", y, back, rel)
		}
	})
}

func TestExpMonotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.Int64Range(-22*Scale, 21*Scale).Draw(t, "a")
		b := rapid.Int64Range(-22*Scale, 21*Scale).Draw(t, "b")
		if a > b {
			a, b = b, a
		}
		ea, err := Exp(a)
		if err != nil {
			t.Fatalf("Exp(%d) failed: %v", a, err)
		}
		eb, err := Exp(b)
		if err != nil {
			t.Fatalf("Exp(%d) failed: %v", b, err)
		}
		if ea > eb {
			t.Fatalf("Exp not monotone: Exp(%d)=%d > Exp(%d)=%d", a, ea, b, eb)
		}
	})
}
