package state

import (
	"fmt"
	"math/big"
	"slices"
	"time"
)

// Route is one advertised or derived path from SourceLedger to DestinationLedger.
//
// Paths holds every concrete sequence of ledgers strictly between NextLedger and
// DestinationLedger that this route may use. It only takes part in loop detection.
type Route struct {
	Curve              *LiquidityCurve
	SourceLedger       string
	NextLedger         string // first hop
	DestinationLedger  string
	TargetPrefix       string // the address prefix this route answers for
	MinMessageWindow   uint32 // seconds
	ExpiresAt          time.Time
	IsLocal            bool
	SourceAccount      string
	DestinationAccount string
	AdditionalInfo     map[string]any
	AddedDuringEpoch   uint64
	Paths              [][]string
}

// NoExpiry passed to Join creates a route that never expires.
const NoExpiry time.Duration = 0

func (r *Route) AmountAt(x *big.Int) *big.Int {
	return r.Curve.AmountAt(x)
}

func (r *Route) AmountReverse(y *big.Int) (*big.Int, bool) {
	return r.Curve.AmountReverse(y)
}

func (r *Route) Points() []Point {
	return r.Curve.Points()
}

func (r *Route) String() string {
	return fmt.Sprintf("%s -> %s -> %s (target: %s, epoch: %d, local: %t)",
		r.SourceLedger, r.NextLedger, r.DestinationLedger, r.TargetPrefix, r.AddedDuringEpoch, r.IsLocal)
}

func (r *Route) clone() *Route {
	c := *r
	return &c
}

// Combine merges two parallel routes that share source and destination into one route whose curve is
// the best of both at every amount.
//
// When the two routes leave through different ledgers there is no single NextLedger left to report.
// The combined route then points straight at DestinationLedger and each side's first hop moves into
// its paths, so loop detection downstream still sees every ledger the curve may pass through.
func (r *Route) Combine(alt *Route) (*Route, error) {
	curve, err := r.Curve.Combine(alt.Curve)
	if err != nil {
		return nil, err
	}
	next, paths := r.NextLedger, unionPaths(r.Paths, alt.Paths)
	if r.NextLedger != alt.NextLedger {
		next, paths = r.DestinationLedger, unionPaths(r.AdvertisedPaths(), alt.AdvertisedPaths())
	}
	return &Route{
		Curve:             curve,
		SourceLedger:      r.SourceLedger,
		NextLedger:        next,
		DestinationLedger: r.DestinationLedger,
		TargetPrefix:      r.TargetPrefix,
		MinMessageWindow:  max(r.MinMessageWindow, alt.MinMessageWindow),
		SourceAccount:     r.SourceAccount,
		IsLocal:           false,
		AddedDuringEpoch:  max(r.AddedDuringEpoch, alt.AddedDuringEpoch),
		Paths:             paths,
	}, nil
}

func unionPaths(a, b [][]string) [][]string {
	out := make([][]string, 0, len(a)+len(b))
	for _, p := range slices.Concat(a, b) {
		if !slices.ContainsFunc(out, func(q []string) bool { return slices.Equal(p, q) }) {
			out = append(out, p)
		}
	}
	return out
}

// Join composes r (A→B) with tail (B→C) into a route A→C. The joined route expires expiry after now,
// or never if expiry is NoExpiry.
func (r *Route) Join(tail *Route, now time.Time, expiry time.Duration, epoch uint64) (*Route, error) {
	if r.DestinationLedger != tail.SourceLedger {
		return nil, fmt.Errorf("%w: %s does not end at %s", ErrNotAdjacent, r, tail.SourceLedger)
	}
	if !CanJoin(r, tail) {
		return nil, fmt.Errorf("%w: %s with %s", ErrRouteLoop, r, tail)
	}
	curve, err := r.Curve.Join(tail.Curve)
	if err != nil {
		return nil, err
	}

	var middle []string
	if r.DestinationLedger != r.NextLedger {
		middle = append(middle, r.DestinationLedger)
	}
	if tail.NextLedger != tail.DestinationLedger {
		middle = append(middle, tail.NextLedger)
	}
	paths := make([][]string, 0, len(r.Paths)*len(tail.Paths))
	for _, head := range r.Paths {
		for _, rest := range tail.Paths {
			path := make([]string, 0, len(head)+len(middle)+len(rest))
			path = append(append(append(path, head...), middle...), rest...)
			paths = append(paths, path)
		}
	}

	joined := &Route{
		Curve:              curve,
		SourceLedger:       r.SourceLedger,
		NextLedger:         r.NextLedger,
		DestinationLedger:  tail.DestinationLedger,
		TargetPrefix:       tail.TargetPrefix,
		MinMessageWindow:   r.MinMessageWindow + tail.MinMessageWindow,
		IsLocal:            r.IsLocal && tail.IsLocal,
		SourceAccount:      r.SourceAccount,
		DestinationAccount: tail.DestinationAccount,
		AdditionalInfo:     tail.AdditionalInfo,
		AddedDuringEpoch:   epoch,
		Paths:              paths,
	}
	if expiry != NoExpiry {
		joined.ExpiresAt = now.Add(expiry)
	}
	return joined, nil
}

// CanJoin reports whether a (A→B) and b (B→C) can be composed without visiting any ledger twice.
// This rejects A→B→A as well as routes that double back, such as B→A→B→C.
func CanJoin(a, b *Route) bool {
	visited := make(map[string]struct{})
	fixed := []string{a.SourceLedger, a.NextLedger, b.DestinationLedger}
	if a.DestinationLedger != a.NextLedger {
		fixed = append(fixed, a.DestinationLedger)
	}
	if b.NextLedger != b.DestinationLedger {
		fixed = append(fixed, b.NextLedger)
	}
	for _, ledger := range fixed {
		if _, ok := visited[ledger]; ok {
			return false
		}
		visited[ledger] = struct{}{}
	}

	for _, path := range a.Paths {
		for _, ledger := range path {
			if _, ok := visited[ledger]; ok {
				return false
			}
		}
	}
	for _, path := range a.Paths {
		for _, ledger := range path {
			visited[ledger] = struct{}{}
		}
	}
	for _, path := range b.Paths {
		for _, ledger := range path {
			if _, ok := visited[ledger]; ok {
				return false
			}
		}
	}
	return true
}

func (r *Route) ShiftX(dx *big.Int) (*Route, error) {
	curve, err := r.Curve.ShiftX(dx)
	if err != nil {
		return nil, err
	}
	shifted := r.clone()
	shifted.Curve = curve
	return shifted, nil
}

func (r *Route) ShiftY(dy *big.Int) (*Route, error) {
	curve, err := r.Curve.ShiftY(dy)
	if err != nil {
		return nil, err
	}
	shifted := r.clone()
	shifted.Curve = curve
	return shifted, nil
}

// Simplify returns a copy of the route whose curve has at most max(maxPoints, 2) points.
func (r *Route) Simplify(maxPoints int) (*Route, error) {
	curve, err := r.Curve.Simplify(maxPoints)
	if err != nil {
		return nil, err
	}
	simplified := r.clone()
	simplified.Curve = curve
	return simplified, nil
}

func (r *Route) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && r.ExpiresAt.Before(now)
}

// BumpExpiration pushes the expiry of the route to holdDown after now.
func (r *Route) BumpExpiration(now time.Time, holdDown time.Duration) {
	r.ExpiresAt = now.Add(holdDown)
}

// MinPathLength is the number of intermediate ledgers on the shortest concrete path of the route.
func (r *Route) MinPathLength() int {
	if len(r.Paths) == 0 {
		return 0
	}
	shortest := len(r.Paths[0])
	for _, p := range r.Paths[1:] {
		shortest = min(shortest, len(p))
	}
	return shortest
}

// AdvertisedPaths returns the paths as seen by a peer that receives this route as a single hop
// SourceLedger→DestinationLedger, which includes NextLedger when it is not the destination.
func (r *Route) AdvertisedPaths() [][]string {
	if r.NextLedger == r.DestinationLedger {
		return r.Paths
	}
	out := make([][]string, 0, len(r.Paths))
	for _, p := range r.Paths {
		out = append(out, slices.Concat([]string{r.NextLedger}, p))
	}
	return out
}
