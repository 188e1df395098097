package state

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func pts(c *LiquidityCurve) [][2]int64 {
	out := make([][2]int64, 0, c.Len())
	for _, p := range c.Points() {
		out = append(out, [2]int64{p.X.Int64(), p.Y.Int64()})
	}
	return out
}

func assertPoints(t *testing.T, expected [][2]int64, c *LiquidityCurve) {
	t.Helper()
	if diff := cmp.Diff(expected, pts(c)); diff != "" {
		t.Errorf("unexpected points (-want +got):\n%s", diff)
	}
}

func TestNewLiquidityCurve(t *testing.T) {
	c, err := NewLiquidityCurve([]Point{Pt(1, 2), Pt(3, 4)})
	require.NoError(t, err)
	assertPoints(t, [][2]int64{{1, 2}, {3, 4}}, c)

	empty, err := NewLiquidityCurve(nil)
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
}

func TestNewLiquidityCurve_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		points []Point
		msg    string
	}{
		{"negative x", []Point{Pt(-1, 5), Pt(1, 5)}, "negative x-coordinate -1"},
		{"negative y", []Point{Pt(1, -5), Pt(2, 5)}, "negative y-coordinate -5"},
		{"repeated x", []Point{Pt(1, 1), Pt(3, 3), Pt(3, 5)}, "x-coordinates must strictly increase"},
		{"decreasing y", []Point{Pt(1, 1), Pt(3, 3), Pt(5, 2)}, "y-coordinates must increase"},
		{"missing coordinate", []Point{{X: big.NewInt(1)}}, "missing a coordinate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLiquidityCurve(tt.points)
			assert.ErrorIs(t, err, ErrInvalidCurve)
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestLiquidityCurve_AmountAt(t *testing.T) {
	c := MustLiquidityCurve([2]int64{10, 20}, [2]int64{100, 200})
	tests := []struct {
		x, y int64
	}{
		{0, 0},
		{5, 0},
		{10, 20},
		{11, 22},
		{55, 110},
		{100, 200},
		{101, 200},
		{1000, 200},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.y, c.AmountAt(big.NewInt(tt.x)).Int64(), "amountAt(%d)", tt.x)
	}

	exact := MustLiquidityCurve([2]int64{0, 0}, [2]int64{50, 100}, [2]int64{100, 1000})
	assert.Equal(t, int64(100), exact.AmountAt(big.NewInt(50)).Int64())

	assert.Equal(t, int64(0), (&LiquidityCurve{}).AmountAt(big.NewInt(10)).Int64())
}

func TestLiquidityCurve_AmountReverse(t *testing.T) {
	c := MustLiquidityCurve([2]int64{10, 20}, [2]int64{100, 200})
	tests := []struct {
		y, x int64
	}{
		{0, 10},
		{10, 10},
		{20, 10},
		{22, 11},
		{110, 55},
		{200, 100},
	}
	for _, tt := range tests {
		x, ok := c.AmountReverse(big.NewInt(tt.y))
		require.True(t, ok, "amountReverse(%d)", tt.y)
		assert.Equal(t, tt.x, x.Int64(), "amountReverse(%d)", tt.y)
	}

	for _, y := range []int64{201, 1000} {
		_, ok := c.AmountReverse(big.NewInt(y))
		assert.False(t, ok, "amountReverse(%d) should be unreachable", y)
	}
	_, ok := (&LiquidityCurve{}).AmountReverse(big.NewInt(0))
	assert.False(t, ok)
}

func TestLiquidityCurve_AmountReverseRoundsUp(t *testing.T) {
	c := MustLiquidityCurve([2]int64{0, 0}, [2]int64{3, 1})
	x, ok := c.AmountReverse(big.NewInt(1))
	require.True(t, ok)
	assert.Equal(t, int64(3), x.Int64())
	assert.Equal(t, int64(1), c.AmountAt(x).Int64())
}

func TestLiquidityCurve_Combine(t *testing.T) {
	tests := []struct {
		name     string
		a, b     *LiquidityCurve
		expected [][2]int64
	}{
		{
			name:     "slope and flat line",
			a:        MustLiquidityCurve([2]int64{0, 0}, [2]int64{50, 60}),
			b:        MustLiquidityCurve([2]int64{0, 0}, [2]int64{100, 100}),
			expected: [][2]int64{{0, 0}, {50, 60}, {60, 60}, {100, 100}},
		},
		{
			name: "duplicate points",
			a:    MustLiquidityCurve([2]int64{1, 0}, [2]int64{50000000001, 49800199999}, [2]int64{100000000000001, 49800199999}),
			b:    MustLiquidityCurve([2]int64{2, 0}, [2]int64{50000000001, 49800199999}, [2]int64{100000000000001, 49800199999}),
			expected: [][2]int64{
				{1, 0}, {2, 0}, {50000000001, 49800199999}, {100000000000001, 49800199999},
			},
		},
		{
			name:     "empty curve",
			a:        MustLiquidityCurve([2]int64{0, 0}, [2]int64{50, 60}),
			b:        &LiquidityCurve{},
			expected: [][2]int64{{0, 0}, {50, 60}},
		},
		{
			name:     "two slopes",
			a:        MustLiquidityCurve([2]int64{0, 0}, [2]int64{100, 1000}),
			b:        MustLiquidityCurve([2]int64{0, 0}, [2]int64{33, 450}, [2]int64{66, 550}),
			expected: [][2]int64{{0, 0}, {33, 450}, {50, 501}, {51, 510}, {66, 660}, {100, 1000}},
		},
		{
			name:     "fractional crossover",
			a:        MustLiquidityCurve([2]int64{0, 0}, [2]int64{10, 1000}),
			b:        MustLiquidityCurve([2]int64{0, 500}, [2]int64{10, 600}),
			expected: [][2]int64{{0, 500}, {5, 550}, {6, 600}, {10, 1000}},
		},
		{
			name:     "starts inside the other curve",
			a:        MustLiquidityCurve([2]int64{0, 0}, [2]int64{10, 100}),
			b:        MustLiquidityCurve([2]int64{5, 80}, [2]int64{10, 90}),
			expected: [][2]int64{{0, 0}, {4, 40}, {5, 80}, {8, 86}, {9, 90}, {10, 100}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ab, err := tt.a.Combine(tt.b)
			require.NoError(t, err)
			assertPoints(t, tt.expected, ab)

			ba, err := tt.b.Combine(tt.a)
			require.NoError(t, err)
			assertPoints(t, tt.expected, ba)
		})
	}
}

func TestLiquidityCurve_CombineAmounts(t *testing.T) {
	a := MustLiquidityCurve([2]int64{0, 0}, [2]int64{50, 60})
	b := MustLiquidityCurve([2]int64{0, 0}, [2]int64{100, 100})
	c, err := a.Combine(b)
	require.NoError(t, err)
	for x, y := range map[int64]int64{25: 30, 50: 60, 60: 60, 70: 70} {
		assert.Equal(t, y, c.AmountAt(big.NewInt(x)).Int64(), "amountAt(%d)", x)
	}
}

func TestLiquidityCurve_CombineNeverExceedsInputs(t *testing.T) {
	a := MustLiquidityCurve([2]int64{0, 0}, [2]int64{10, 1000})
	b := MustLiquidityCurve([2]int64{0, 500}, [2]int64{10, 600})
	c, err := a.Combine(b)
	require.NoError(t, err)
	for x := int64(0); x <= 12; x++ {
		best := max(a.AmountAt(big.NewInt(x)).Int64(), b.AmountAt(big.NewInt(x)).Int64())
		assert.Equal(t, best, c.AmountAt(big.NewInt(x)).Int64(), "amountAt(%d)", x)
	}
}

func TestLiquidityCurve_Join(t *testing.T) {
	tests := []struct {
		name     string
		a, b     *LiquidityCurve
		expected [][2]int64
	}{
		{
			name:     "composes two routes",
			a:        MustLiquidityCurve([2]int64{0, 0}, [2]int64{200, 100}),
			b:        MustLiquidityCurve([2]int64{0, 0}, [2]int64{50, 60}),
			expected: [][2]int64{{0, 0}, {100, 60}},
		},
		{
			name:     "unreachable",
			a:        MustLiquidityCurve([2]int64{1, 1}, [2]int64{100, 100}),
			b:        MustLiquidityCurve([2]int64{1000, 0}, [2]int64{1000000000, 100000}),
			expected: [][2]int64{},
		},
		{
			name:     "truncates the domain",
			a:        MustLiquidityCurve([2]int64{0, 0}, [2]int64{50, 100}),
			b:        MustLiquidityCurve([2]int64{0, 0}, [2]int64{200, 300}),
			expected: [][2]int64{{0, 0}, {50, 150}},
		},
		{
			name:     "right-shifted",
			a:        MustLiquidityCurve([2]int64{0, 0}, [2]int64{10, 10}),
			b:        MustLiquidityCurve([2]int64{1, 1}, [2]int64{11, 11}),
			expected: [][2]int64{{1, 1}, {10, 10}},
		},
		{
			name:     "empty head",
			a:        &LiquidityCurve{},
			b:        MustLiquidityCurve([2]int64{0, 0}, [2]int64{10, 10}),
			expected: [][2]int64{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			joined, err := tt.a.Join(tt.b)
			require.NoError(t, err)
			assertPoints(t, tt.expected, joined)
		})
	}
}

func TestLiquidityCurve_JoinAmounts(t *testing.T) {
	a := MustLiquidityCurve([2]int64{0, 0}, [2]int64{200, 100})
	b := MustLiquidityCurve([2]int64{0, 0}, [2]int64{50, 60})
	joined, err := a.Join(b)
	require.NoError(t, err)
	assert.Equal(t, int64(30), joined.AmountAt(big.NewInt(50)).Int64())
	assert.Equal(t, int64(60), joined.AmountAt(big.NewInt(100)).Int64())
	assert.Equal(t, int64(60), joined.AmountAt(big.NewInt(200)).Int64())
}

func TestLiquidityCurve_ShiftX(t *testing.T) {
	tests := []struct {
		name     string
		curve    *LiquidityCurve
		dx       int64
		expected [][2]int64
	}{
		{"positive", MustLiquidityCurve([2]int64{0, 0}, [2]int64{50, 60}, [2]int64{100, 100}), 1, [][2]int64{{1, 0}, {51, 60}, {101, 100}}},
		{"stays positive", MustLiquidityCurve([2]int64{0, 0}, [2]int64{10, 10}), -5, [][2]int64{{0, 5}, {5, 10}}},
		{"single point", MustLiquidityCurve([2]int64{5, 5}), -10, [][2]int64{{0, 5}}},
		{"lands on zero", MustLiquidityCurve([2]int64{0, 0}, [2]int64{5, 5}, [2]int64{10, 10}), -5, [][2]int64{{0, 5}, {5, 10}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shifted, err := tt.curve.ShiftX(big.NewInt(tt.dx))
			require.NoError(t, err)
			assertPoints(t, tt.expected, shifted)
		})
	}
}

func TestLiquidityCurve_ShiftY(t *testing.T) {
	tests := []struct {
		name     string
		curve    *LiquidityCurve
		dy       int64
		expected [][2]int64
	}{
		{"positive", MustLiquidityCurve([2]int64{0, 0}, [2]int64{50, 60}, [2]int64{100, 100}), 1, [][2]int64{{0, 1}, {50, 61}, {100, 101}}},
		{"stays positive", MustLiquidityCurve([2]int64{0, 0}, [2]int64{10, 10}), -5, [][2]int64{{5, 0}, {10, 5}}},
		{"below the curve", MustLiquidityCurve([2]int64{0, 0}, [2]int64{10, 10}), -20, [][2]int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shifted, err := tt.curve.ShiftY(big.NewInt(tt.dy))
			require.NoError(t, err)
			assertPoints(t, tt.expected, shifted)
		})
	}
}

func TestLiquidityCurve_Simplify(t *testing.T) {
	c := MustLiquidityCurve([2]int64{0, 0}, [2]int64{10, 10}, [2]int64{20, 21}, [2]int64{30, 30}, [2]int64{40, 60})

	s, err := c.Simplify(3)
	require.NoError(t, err)
	assertPoints(t, [][2]int64{{0, 0}, {30, 30}, {40, 60}}, s)

	s, err = c.Simplify(10)
	require.NoError(t, err)
	assert.True(t, s.Equal(c))

	s, err = c.Simplify(1)
	require.NoError(t, err)
	assertPoints(t, [][2]int64{{0, 0}, {40, 60}}, s)

	single := MustLiquidityCurve([2]int64{5, 7})
	s, err = single.Simplify(1)
	require.NoError(t, err)
	assertPoints(t, [][2]int64{{5, 7}}, s)

	_, err = c.Simplify(0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = c.Simplify(-1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func genCurve() *rapid.Generator[*LiquidityCurve] {
	return rapid.Custom(func(t *rapid.T) *LiquidityCurve {
		n := rapid.IntRange(0, 8).Draw(t, "n")
		x := rapid.Int64Range(0, 1000).Draw(t, "x0")
		y := rapid.Int64Range(0, 1000).Draw(t, "y0")
		points := make([]Point, 0, n)
		for i := range n {
			if i > 0 {
				x += rapid.Int64Range(1, 1000).Draw(t, "dx")
				y += rapid.Int64Range(0, 1000).Draw(t, "dy")
			}
			points = append(points, Pt(x, y))
		}
		c, err := NewLiquidityCurve(points)
		if err != nil {
			t.Fatalf("generated an invalid curve: %v", err)
		}
		return c
	})
}

func TestLiquidityCurve_AmountProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := genCurve().Draw(t, "curve")
		x1 := rapid.Int64Range(0, 10000).Draw(t, "x1")
		x2 := rapid.Int64Range(x1, 10000).Draw(t, "x2")
		if c.AmountAt(big.NewInt(x1)).Cmp(c.AmountAt(big.NewInt(x2))) > 0 {
			t.Fatalf("amountAt is decreasing between %d and %d on %s", x1, x2, c)
		}

		y := big.NewInt(rapid.Int64Range(0, 10000).Draw(t, "y"))
		if x, ok := c.AmountReverse(y); ok {
			if c.AmountAt(x).Cmp(y) < 0 {
				t.Fatalf("amountAt(amountReverse(%s)) < %s on %s", y, y, c)
			}
			if x.Sign() > 0 && x.Cmp(c.points[0].X) > 0 {
				below := new(big.Int).Sub(x, big.NewInt(1))
				if c.AmountAt(below).Cmp(y) >= 0 {
					t.Fatalf("amountReverse(%s) = %s is not minimal on %s", y, x, c)
				}
			}
		}
	})
}

func TestLiquidityCurve_CombineProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genCurve().Draw(t, "a")
		b := genCurve().Draw(t, "b")

		ab, err := a.Combine(b)
		if err != nil {
			t.Fatalf("combine failed: %v", err)
		}
		ba, err := b.Combine(a)
		if err != nil {
			t.Fatalf("combine failed: %v", err)
		}
		if !ab.Equal(ba) {
			t.Fatalf("combine is not commutative: %s != %s", ab, ba)
		}

		for _, p := range append(a.Points(), b.Points()...) {
			best := a.AmountAt(p.X)
			if other := b.AmountAt(p.X); other.Cmp(best) > 0 {
				best = other
			}
			if ab.AmountAt(p.X).Cmp(best) != 0 {
				t.Fatalf("combined curve %s does not take the maximum %s at %s", ab, best, p.X)
			}
		}

		end := int64(1)
		for _, c := range []*LiquidityCurve{a, b} {
			if c.Len() > 0 {
				end = max(end, c.points[c.Len()-1].X.Int64()+2)
			}
		}
		for i := range 32 {
			x := big.NewInt(rapid.Int64Range(0, end).Draw(t, fmt.Sprintf("x%d", i)))
			best := a.AmountAt(x)
			if other := b.AmountAt(x); other.Cmp(best) > 0 {
				best = other
			}
			got := ab.AmountAt(x)
			if got.Cmp(best) > 0 {
				t.Fatalf("combined curve %s delivers %s at %s, more than both inputs (%s)", ab, got, x, best)
			}
			if new(big.Int).Sub(best, got).Cmp(big.NewInt(1)) > 0 {
				t.Fatalf("combined curve %s delivers %s at %s, well below %s", ab, got, x, best)
			}
		}

		aa, err := a.Combine(a)
		if err != nil {
			t.Fatalf("combine failed: %v", err)
		}
		if !aa.Equal(a) {
			t.Fatalf("combine is not idempotent: %s != %s", aa, a)
		}

		ae, err := a.Combine(&LiquidityCurve{})
		if err != nil {
			t.Fatalf("combine failed: %v", err)
		}
		if !ae.Equal(a) {
			t.Fatalf("combining with an empty curve changed %s to %s", a, ae)
		}
	})
}

func TestLiquidityCurve_JoinProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genCurve().Draw(t, "a")
		b := genCurve().Draw(t, "b")
		joined, err := a.Join(b)
		if err != nil {
			t.Fatalf("join failed: %v", err)
		}
		if a.IsEmpty() || b.IsEmpty() {
			if !joined.IsEmpty() {
				t.Fatalf("joining with an empty curve produced %s", joined)
			}
			return
		}
		if a.points[a.Len()-1].Y.Cmp(b.points[0].X) < 0 && !joined.IsEmpty() {
			t.Fatalf("%s can never reach %s but joined to %s", a, b, joined)
		}
	})
}

func TestLiquidityCurve_ShiftProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := genCurve().Draw(t, "curve")
		dx := big.NewInt(rapid.Int64Range(-5000, 5000).Draw(t, "dx"))
		there, err := c.ShiftX(dx)
		if err != nil {
			t.Fatalf("shiftX(%s) failed: %v", dx, err)
		}
		back, err := there.ShiftX(new(big.Int).Neg(dx))
		if err != nil {
			t.Fatalf("shiftX(%s) failed: %v", new(big.Int).Neg(dx), err)
		}
		for _, s := range []*LiquidityCurve{there, back} {
			for _, p := range s.points {
				if p.X.Sign() < 0 || p.Y.Sign() < 0 {
					t.Fatalf("shift produced a negative point %s", p)
				}
			}
		}
	})
}

func TestLiquidityCurve_SimplifyProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := genCurve().Draw(t, "curve")
		maxPoints := rapid.IntRange(1, 10).Draw(t, "maxPoints")
		s, err := c.Simplify(maxPoints)
		if err != nil {
			t.Fatalf("simplify failed: %v", err)
		}
		if _, err := NewLiquidityCurve(s.points); err != nil {
			t.Fatalf("simplify produced an invalid curve: %v", err)
		}
		if s.Len() > max(maxPoints, 2) {
			t.Fatalf("simplify(%d) left %d points", maxPoints, s.Len())
		}
		if c.Len() >= 2 {
			first, last := c.points[0], c.points[c.Len()-1]
			if s.points[0].X.Cmp(first.X) != 0 || s.points[s.Len()-1].X.Cmp(last.X) != 0 {
				t.Fatalf("simplify dropped an endpoint of %s: %s", c, s)
			}
		}
	})
}
