package state

import (
	"fmt"
	"math/big"
	"slices"
	"sort"
	"strings"
)

// Point is a single (x, y) vertex of a LiquidityCurve. Coordinates are exact, non-negative integers.
// The big.Int values of a Point that belongs to a curve must never be mutated.
type Point struct {
	X *big.Int
	Y *big.Int
}

func Pt(x, y int64) Point {
	return Point{X: big.NewInt(x), Y: big.NewInt(y)}
}

func (p Point) String() string {
	return fmt.Sprintf("(%s,%s)", p.X, p.Y)
}

// LiquidityCurve is a piecewise-linear, non-decreasing function mapping an input amount to the
// maximum output amount. x is strictly increasing, y is non-decreasing and every coordinate is >= 0.
// Curves are immutable, every operation returns a new curve.
type LiquidityCurve struct {
	points []Point
}

func NewLiquidityCurve(points []Point) (*LiquidityCurve, error) {
	pts := slices.Clone(points)
	if err := validatePoints(pts); err != nil {
		return nil, err
	}
	return &LiquidityCurve{points: pts}, nil
}

// MustLiquidityCurve builds a curve from int64 pairs and panics if they are invalid.
func MustLiquidityCurve(pairs ...[2]int64) *LiquidityCurve {
	pts := make([]Point, 0, len(pairs))
	for _, p := range pairs {
		pts = append(pts, Pt(p[0], p[1]))
	}
	c, err := NewLiquidityCurve(pts)
	if err != nil {
		panic(err)
	}
	return c
}

func validatePoints(points []Point) error {
	for i, p := range points {
		if p.X == nil || p.Y == nil {
			return fmt.Errorf("%w: point %d is missing a coordinate", ErrInvalidCurve, i)
		}
		if p.X.Sign() < 0 {
			return fmt.Errorf("%w: negative x-coordinate %s", ErrInvalidCurve, p.X)
		}
		if p.Y.Sign() < 0 {
			return fmt.Errorf("%w: negative y-coordinate %s", ErrInvalidCurve, p.Y)
		}
		if i == 0 {
			continue
		}
		prev := points[i-1]
		if p.X.Cmp(prev.X) <= 0 {
			return fmt.Errorf("%w: x-coordinates must strictly increase in series", ErrInvalidCurve)
		}
		if p.Y.Cmp(prev.Y) < 0 {
			return fmt.Errorf("%w: y-coordinates must increase in series", ErrInvalidCurve)
		}
	}
	return nil
}

// Points returns the vertices of the curve. The returned coordinates must not be modified.
func (c *LiquidityCurve) Points() []Point {
	return slices.Clone(c.points)
}

func (c *LiquidityCurve) Len() int {
	return len(c.points)
}

func (c *LiquidityCurve) IsEmpty() bool {
	return len(c.points) == 0
}

func (c *LiquidityCurve) Equal(o *LiquidityCurve) bool {
	return slices.EqualFunc(c.points, o.points, func(a, b Point) bool {
		return a.X.Cmp(b.X) == 0 && a.Y.Cmp(b.Y) == 0
	})
}

func (c *LiquidityCurve) String() string {
	parts := make([]string, 0, len(c.points))
	for _, p := range c.points {
		parts = append(parts, p.String())
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// AmountAt returns the output delivered for an input of x, rounded down.
func (c *LiquidityCurve) AmountAt(x *big.Int) *big.Int {
	n := len(c.points)
	if n == 0 || x.Cmp(c.points[0].X) < 0 {
		return new(big.Int)
	}
	last := c.points[n-1]
	if x.Cmp(last.X) >= 0 {
		return new(big.Int).Set(last.Y)
	}
	i := sort.Search(n, func(i int) bool {
		return c.points[i].X.Cmp(x) >= 0
	})
	b := c.points[i]
	if b.X.Cmp(x) == 0 {
		return new(big.Int).Set(b.Y)
	}
	a := c.points[i-1]
	return interpolate(a.X, a.Y, b.X, b.Y, x, false)
}

// AmountReverse returns the smallest input x such that AmountAt(x) >= y.
// ok is false when the curve can never deliver y (the infinite cost case).
func (c *LiquidityCurve) AmountReverse(y *big.Int) (x *big.Int, ok bool) {
	n := len(c.points)
	if n == 0 {
		return nil, false
	}
	first := c.points[0]
	if first.Y.Cmp(y) >= 0 {
		return new(big.Int).Set(first.X), true
	}
	if c.points[n-1].Y.Cmp(y) < 0 {
		return nil, false
	}
	i := sort.Search(n, func(i int) bool {
		return c.points[i].Y.Cmp(y) >= 0
	})
	a, b := c.points[i-1], c.points[i]
	return interpolate(a.Y, a.X, b.Y, b.X, y, true), true
}

// interpolate evaluates the line through (x0, y0) and (x1, y1) at x, where x0 <= x <= x1 and x0 < x1.
func interpolate(x0, y0, x1, y1, x *big.Int, roundUp bool) *big.Int {
	num := new(big.Int).Sub(y1, y0)
	num.Mul(num, new(big.Int).Sub(x, x0))
	den := new(big.Int).Sub(x1, x0)
	if roundUp {
		num.Add(num, den)
		num.Sub(num, big.NewInt(1))
	}
	num.Quo(num, den)
	return num.Add(num, y0)
}

// Combine returns the pointwise maximum of two parallel curves: at every input it offers whichever
// of the two curves delivers more. Combining with an empty curve is the identity.
//
// The result is evaluated on integer inputs only. A crossover at a fractional input is bracketed by
// the two integers around it, so the combined curve never delivers more than the better of c and o.
func (c *LiquidityCurve) Combine(o *LiquidityCurve) (*LiquidityCurve, error) {
	merged := make([]Point, 0, 2*(len(c.points)+len(o.points)))
	merged = append(merged, c.mapToMax(o.points)...)
	merged = append(merged, o.mapToMax(c.points)...)
	for _, x := range c.crossovers(o) {
		merged = append(merged, c.envelopeAt(o, floorRat(x)), c.envelopeAt(o, ceilRat(x)))
	}
	merged = append(merged, c.stepsInto(o)...)
	merged = append(merged, o.stepsInto(c)...)
	slices.SortStableFunc(merged, comparePoints)
	merged = omitDuplicates(merged)

	res, err := NewLiquidityCurve(merged)
	if err != nil {
		return nil, fmt.Errorf("%w: combine %s with %s produced %v: %w", ErrInconsistentCurve, c, o, merged, err)
	}
	return res, nil
}

// mapToMax lifts every point onto the upper envelope of itself and c.
func (c *LiquidityCurve) mapToMax(points []Point) []Point {
	if len(c.points) == 0 {
		return points
	}
	out := make([]Point, 0, len(points))
	for _, p := range points {
		y := c.AmountAt(p.X)
		if p.Y.Cmp(y) > 0 {
			y = p.Y
		}
		out = append(out, Point{X: p.X, Y: y})
	}
	return out
}

func (c *LiquidityCurve) envelopeAt(o *LiquidityCurve, x *big.Int) Point {
	y := c.AmountAt(x)
	if other := o.AmountAt(x); other.Cmp(y) > 0 {
		y = other
	}
	return Point{X: x, Y: y}
}

// stepsInto pins the envelope one unit before c starts inside o's domain. c jumps from zero to its
// first y there, and without the extra vertex the line leading up to the jump would rise early.
func (c *LiquidityCurve) stepsInto(o *LiquidityCurve) []Point {
	if len(c.points) == 0 || len(o.points) == 0 {
		return nil
	}
	before := new(big.Int).Sub(c.points[0].X, big.NewInt(1))
	if before.Cmp(o.points[0].X) < 0 {
		return nil
	}
	return []Point{c.envelopeAt(o, before)}
}

// crossovers returns the inputs at which the two curves intersect.
func (c *LiquidityCurve) crossovers(o *LiquidityCurve) []*big.Rat {
	if len(c.points) == 0 || len(o.points) == 0 {
		return nil
	}
	pointsA, pointsB := c.points, o.points
	endA, endB := pointsA[len(pointsA)-1], pointsB[len(pointsB)-1]
	// the shorter curve flat-lines at its capacity until the other one ends
	switch endA.X.Cmp(endB.X) {
	case -1:
		pointsA = append(slices.Clip(pointsA), Point{X: endB.X, Y: endA.Y})
	case 1:
		pointsB = append(slices.Clip(pointsB), Point{X: endA.X, Y: endB.Y})
	}

	var result []*big.Rat
	eachOverlappingSegment(pointsA, pointsB, func(lineA, lineB segment) {
		if x, ok := intersectSegments(lineA, lineB); ok {
			result = append(result, x)
		}
	})
	return result
}

// segment is y = m*x + b over [x0, x1]
type segment struct {
	m, b   *big.Rat
	x0, x1 *big.Rat
}

func toSegment(p, q Point) segment {
	dx := new(big.Int).Sub(q.X, p.X)
	m := new(big.Rat).SetFrac(new(big.Int).Sub(q.Y, p.Y), dx)
	bNum := new(big.Int).Mul(q.X, p.Y)
	bNum.Sub(bNum, new(big.Int).Mul(p.X, q.Y))
	return segment{
		m:  m,
		b:  new(big.Rat).SetFrac(bNum, dx),
		x0: new(big.Rat).SetInt(p.X),
		x1: new(big.Rat).SetInt(q.X),
	}
}

func eachOverlappingSegment(pointsA, pointsB []Point, each func(lineA, lineB segment)) {
	cursor := 1
	for indexA := 1; indexA < len(pointsA); indexA++ {
		lineA := toSegment(pointsA[indexA-1], pointsA[indexA])
		for indexB := cursor; indexB < len(pointsB); indexB++ {
			lineB := toSegment(pointsB[indexB-1], pointsB[indexB])
			if lineB.x1.Cmp(lineA.x0) < 0 {
				cursor++
				continue
			}
			if lineA.x1.Cmp(lineB.x0) < 0 {
				break
			}
			each(lineA, lineB)
		}
	}
}

// intersectSegments solves m0*x + b0 = m1*x + b1 and keeps the solution only if it lies in both domains.
func intersectSegments(line0, line1 segment) (*big.Rat, bool) {
	if line0.m.Cmp(line1.m) == 0 {
		return nil, false
	}
	x := new(big.Rat).Sub(line1.b, line0.b)
	x.Quo(x, new(big.Rat).Sub(line0.m, line1.m))
	if x.Cmp(line0.x0) < 0 || line0.x1.Cmp(x) < 0 {
		return nil, false
	}
	if x.Cmp(line1.x0) < 0 || line1.x1.Cmp(x) < 0 {
		return nil, false
	}
	return x, true
}

func floorRat(r *big.Rat) *big.Int {
	// Rat denominators are always positive, so Euclidean division floors
	return new(big.Int).Div(r.Num(), r.Denom())
}

func ceilRat(r *big.Rat) *big.Int {
	x := floorRat(r)
	if !r.IsInt() {
		x.Add(x, big.NewInt(1))
	}
	return x
}

// Join composes two sequential hops: the output of c is fed as the input of o.
// The result is empty if c can never deliver the minimum input o accepts.
func (c *LiquidityCurve) Join(o *LiquidityCurve) (*LiquidityCurve, error) {
	if len(c.points) == 0 || len(o.points) == 0 {
		return &LiquidityCurve{}, nil
	}
	minX := o.points[0].X
	maxX := o.points[len(o.points)-1].X

	joined := make([]Point, 0, len(c.points)+len(o.points))
	for _, p := range c.points {
		// points whose output falls outside o's domain do not shape the composition
		if minX.Cmp(p.Y) <= 0 && p.Y.Cmp(maxX) <= 0 {
			joined = append(joined, Point{X: p.X, Y: o.AmountAt(p.Y)})
		}
	}
	for _, p := range o.points {
		x, ok := c.AmountReverse(p.X)
		if !ok {
			continue
		}
		joined = append(joined, Point{X: x, Y: p.Y})
	}
	slices.SortStableFunc(joined, comparePoints)
	joined = omitDuplicates(joined)

	res, err := NewLiquidityCurve(joined)
	if err != nil {
		return nil, fmt.Errorf("%w: join %s with %s produced %v: %w", ErrInconsistentCurve, c, o, joined, err)
	}
	return res, nil
}

// ShiftX translates the curve along the x-axis. Points pushed below zero are replaced by a single
// boundary point at x = 0.
func (c *LiquidityCurve) ShiftX(dx *big.Int) (*LiquidityCurve, error) {
	shifted := make([]Point, 0, len(c.points)+1)
	for _, p := range c.points {
		shifted = append(shifted, Point{X: new(big.Int).Add(p.X, dx), Y: p.Y})
	}
	if dx.Sign() < 0 {
		for i := len(shifted) - 1; i >= 0; i-- {
			if shifted[i].X.Sign() >= 0 {
				continue
			}
			rest := shifted[i+1:]
			if len(rest) == 0 || rest[0].X.Sign() != 0 {
				boundary := Point{X: new(big.Int), Y: c.AmountAt(new(big.Int).Neg(dx))}
				rest = append([]Point{boundary}, rest...)
			}
			shifted = rest
			break
		}
	}
	return NewLiquidityCurve(shifted)
}

// ShiftY translates the curve along the y-axis. Points pushed below zero are replaced by a single
// boundary point at y = 0.
func (c *LiquidityCurve) ShiftY(dy *big.Int) (*LiquidityCurve, error) {
	shifted := make([]Point, 0, len(c.points)+1)
	for _, p := range c.points {
		shifted = append(shifted, Point{X: p.X, Y: new(big.Int).Add(p.Y, dy)})
	}
	if dy.Sign() < 0 {
		for i := len(shifted) - 1; i >= 0; i-- {
			if shifted[i].Y.Sign() >= 0 {
				continue
			}
			rest := shifted[i+1:]
			x, ok := c.AmountReverse(new(big.Int).Neg(dy))
			if ok && (len(rest) == 0 || rest[0].X.Cmp(x) != 0) {
				rest = append([]Point{{X: x, Y: new(big.Int)}}, rest...)
			}
			shifted = rest
			break
		}
	}
	return NewLiquidityCurve(shifted)
}

// Simplify reduces the curve to at most max(maxPoints, 2) vertices with Visvalingam-Whyatt
// simplification. The first and last points are always kept, so Simplify(1) on a curve with two or
// more points still returns two.
func (c *LiquidityCurve) Simplify(maxPoints int) (*LiquidityCurve, error) {
	if maxPoints <= 0 {
		return nil, fmt.Errorf("%w: maxPoints must be a positive number, got %d", ErrInvalidArgument, maxPoints)
	}
	pts := slices.Clone(c.points)
	for len(pts) > maxPoints && len(pts) > 2 {
		minIdx := -1
		var minArea *big.Int
		for i := 1; i < len(pts)-1; i++ {
			area := triangleArea(pts[i-1], pts[i], pts[i+1])
			if minArea == nil || area.Cmp(minArea) < 0 {
				minIdx, minArea = i, area
			}
		}
		pts = slices.Delete(pts, minIdx, minIdx+1)
	}
	return &LiquidityCurve{points: pts}, nil
}

// triangleArea returns twice the area of the triangle abc.
func triangleArea(a, b, c Point) *big.Int {
	t1 := new(big.Int).Sub(b.Y, c.Y)
	t1.Mul(t1, a.X)
	t2 := new(big.Int).Sub(c.Y, a.Y)
	t2.Mul(t2, b.X)
	t3 := new(big.Int).Sub(a.Y, b.Y)
	t3.Mul(t3, c.X)
	t1.Add(t1, t2)
	t1.Add(t1, t3)
	return t1.Abs(t1)
}

// comparePoints orders by x, then by y. At a shared x the lowest y sorts first and is the one
// omitDuplicates keeps, which leaves the result independent of the order its inputs were merged in.
func comparePoints(a, b Point) int {
	if c := a.X.Cmp(b.X); c != 0 {
		return c
	}
	return a.Y.Cmp(b.Y)
}

func omitDuplicates(points []Point) []Point {
	return slices.CompactFunc(points, func(a, b Point) bool {
		return a.X.Cmp(b.X) == 0
	})
}
