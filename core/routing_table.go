package core

import (
	"errors"
	"fmt"
	"iter"
	"math/big"
	"slices"

	"github.com/encodeous/ratemesh/state"
)

var (
	ErrNoSuchDestination = errors.New("no such destination")
	ErrNoRoute           = errors.New("no route")
	ErrUnknownSource     = errors.New("unknown source ledger")
)

// NextHop identifies who is credited after the first hop of a route: either this node through one
// of its own local pairs, or the connector owning Account on the route's next ledger.
type NextHop struct {
	Account string
	Pair    bool
}

// LocalPair is the next hop of a directly configured pair.
var LocalPair = NextHop{Pair: true}

func RemoteHop(account string) NextHop {
	return NextHop{Account: account}
}

func (h NextHop) String() string {
	if h.Pair {
		return "PAIR"
	}
	return h.Account
}

type hopSet struct {
	order  []NextHop
	routes map[NextHop]*state.Route
}

func (h *hopSet) each() iter.Seq2[NextHop, *state.Route] {
	return func(yield func(NextHop, *state.Route) bool) {
		for _, hop := range h.order {
			if !yield(hop, h.routes[hop]) {
				return
			}
		}
	}
}

// RoutingTable holds every known route out of one source ledger, indexed by destination prefix and
// then by next hop. Next hops are kept in insertion order, which decides ties between equal routes.
type RoutingTable struct {
	destinations *state.PrefixMap[*hopSet]
}

func NewRoutingTable() *RoutingTable {
	return &RoutingTable{destinations: state.NewPrefixMap[*hopSet]()}
}

// AddRoute stores route under (destination, hop) and returns the route it replaced, if any.
func (t *RoutingTable) AddRoute(destination string, hop NextHop, route *state.Route) *state.Route {
	hops, ok := t.destinations.Get(destination)
	if !ok {
		hops = t.destinations.Insert(destination, &hopSet{routes: make(map[NextHop]*state.Route)})
	}
	old, exists := hops.routes[hop]
	if !exists {
		hops.order = append(hops.order, hop)
	}
	hops.routes[hop] = route
	return old
}

// RemoveRoute deletes the route stored under (destination, hop). It reports whether a route was
// removed and whether it was the last one to destination.
func (t *RoutingTable) RemoveRoute(destination string, hop NextHop) (removed, last bool) {
	hops, ok := t.destinations.Get(destination)
	if !ok {
		return false, false
	}
	if _, ok := hops.routes[hop]; !ok {
		return false, false
	}
	delete(hops.routes, hop)
	hops.order = slices.DeleteFunc(hops.order, func(h NextHop) bool { return h == hop })
	if len(hops.order) == 0 {
		t.destinations.Delete(destination)
		return true, true
	}
	return true, false
}

// Get returns the route stored under exactly destination and hop.
func (t *RoutingTable) Get(destination string, hop NextHop) (*state.Route, bool) {
	hops, ok := t.destinations.Get(destination)
	if !ok {
		return nil, false
	}
	r, ok := hops.routes[hop]
	return r, ok
}

// Destinations returns the destination prefixes in ascending order.
func (t *RoutingTable) Destinations() []string {
	return t.destinations.Keys()
}

// Hops iterates over the routes to exactly destination in insertion order.
func (t *RoutingTable) Hops(destination string) iter.Seq2[NextHop, *state.Route] {
	hops, ok := t.destinations.Get(destination)
	if !ok {
		return func(func(NextHop, *state.Route) bool) {}
	}
	return hops.each()
}

func (t *RoutingTable) Size() int {
	n := 0
	for _, hops := range t.destinations.All() {
		n += len(hops.order)
	}
	return n
}

// BestHop is the outcome of a best-hop search. Amount is the delivered amount for a source amount
// search and the required source amount for a destination amount search.
type BestHop struct {
	Hop    NextHop
	Route  *state.Route
	Amount *big.Int
}

// FindBestHopForSourceAmount picks the hop delivering the most to destination for amount.
func (t *RoutingTable) FindBestHopForSourceAmount(destination string, amount *big.Int) (*BestHop, error) {
	return t.findBestHop(destination, func(r *state.Route) (*big.Int, bool) {
		if r.Curve.IsEmpty() {
			return nil, false
		}
		return r.AmountAt(amount), true
	}, func(candidate, best *big.Int) bool {
		return candidate.Cmp(best) > 0
	})
}

// FindBestHopForDestinationAmount picks the hop requiring the smallest source amount to deliver amount.
// Hops that can never deliver amount are skipped.
func (t *RoutingTable) FindBestHopForDestinationAmount(destination string, amount *big.Int) (*BestHop, error) {
	return t.findBestHop(destination, func(r *state.Route) (*big.Int, bool) {
		return r.AmountReverse(amount)
	}, func(candidate, best *big.Int) bool {
		return candidate.Cmp(best) < 0
	})
}

func (t *RoutingTable) findBestHop(
	destination string,
	evaluate func(*state.Route) (*big.Int, bool),
	better func(candidate, best *big.Int) bool,
) (*BestHop, error) {
	prefix, ok := t.destinations.ResolvePrefix(destination)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchDestination, destination)
	}
	hops, _ := t.destinations.Get(prefix)

	var best *BestHop
	bestLen := 0
	for hop, route := range hops.each() {
		amount, ok := evaluate(route)
		if !ok {
			continue
		}
		pathLen := route.MinPathLength()
		// shorter concrete paths win before the amounts are compared
		if best == nil || pathLen < bestLen || (pathLen == bestLen && better(amount, best.Amount)) {
			best = &BestHop{Hop: hop, Route: route, Amount: amount}
			bestLen = pathLen
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: to %s", ErrNoRoute, destination)
	}
	return best, nil
}
