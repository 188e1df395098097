package core

import (
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"time"

	"github.com/encodeous/ratemesh/perf"
	"github.com/encodeous/ratemesh/state"
	"github.com/lightningnetwork/lnd/clock"
)

// RoutingTables holds one RoutingTable per source ledger this node has a local pair out of. Remote
// advertisements are never stored as they are; every route in a table starts with one of the local
// pairs of this node.
//
// RoutingTables is not safe for concurrent use. Inside a running node it is only touched from the
// dispatch goroutine.
type RoutingTables struct {
	sources  *state.PrefixMap[*RoutingTable]
	accounts map[string]string // ledger -> our account on it
	epoch    uint64
	holdDown time.Duration
	clock    clock.Clock
	log      *slog.Logger
}

// Quote describes how an amount is routed from a source ledger towards a final destination.
type Quote struct {
	IsFinal                  bool           `json:"is_final"`
	IsLocal                  bool           `json:"is_local"`
	NextHop                  string         `json:"next_hop"`
	SourceLedger             string         `json:"source_ledger"`
	SourceAmount             *big.Int       `json:"source_amount"`
	DestinationLedger        string         `json:"destination_ledger"`
	DestinationAmount        *big.Int       `json:"destination_amount"`
	DestinationCreditAccount string         `json:"destination_credit_account,omitempty"`
	FinalLedger              string         `json:"final_ledger"`
	FinalAmount              *big.Int       `json:"final_amount"`
	MinMessageWindow         uint32         `json:"min_message_window"`
	AdditionalInfo           map[string]any `json:"additional_info,omitempty"`
}

// NewRoutingTables creates empty tables. Routes learned from peers expire holdDown after they were
// last added or bumped. A nil clk uses the wall clock and a nil log uses slog.Default.
func NewRoutingTables(holdDown time.Duration, clk clock.Clock, log *slog.Logger) *RoutingTables {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &RoutingTables{
		sources:  state.NewPrefixMap[*RoutingTable](),
		accounts: make(map[string]string),
		holdDown: holdDown,
		clock:    clk,
		log:      log,
	}
}

// Epoch is incremented every time a route is added or changed.
func (t *RoutingTables) Epoch() uint64 {
	return t.epoch
}

func (t *RoutingTables) Sources() []string {
	return t.sources.Keys()
}

// Table returns the routing table out of exactly ledger.
func (t *RoutingTables) Table(ledger string) (*RoutingTable, bool) {
	return t.sources.Get(ledger)
}

// Account returns the account this node holds on ledger, as learned from its local pairs.
func (t *RoutingTables) Account(ledger string) (string, bool) {
	acc, ok := t.accounts[ledger]
	return acc, ok
}

// AddLocalRoutes registers the pairs this node quotes directly, then derives every route they make
// reachable through the routes already known. Nothing is changed if any pair is invalid.
func (t *RoutingTables) AddLocalRoutes(pairs []state.Advertisement) error {
	routes := make([]*state.Route, 0, len(pairs))
	for i := range pairs {
		route, err := state.RouteFromAdvertisement(&pairs[i])
		if err != nil {
			return fmt.Errorf("pair %d: %w", i, err)
		}
		route.IsLocal = true
		routes = append(routes, route)
	}

	for _, route := range routes {
		table, ok := t.sources.Get(route.SourceLedger)
		if !ok {
			table = t.sources.Insert(route.SourceLedger, NewRoutingTable())
		}
		table.AddRoute(route.DestinationLedger, LocalPair, route)
		if route.SourceAccount != "" {
			t.accounts[route.SourceLedger] = route.SourceAccount
		}
		if route.DestinationAccount != "" {
			t.accounts[route.DestinationLedger] = route.DestinationAccount
		}
		t.log.Debug("added local pair", "route", route)
	}
	for _, route := range routes {
		t.propagate(route, state.NoExpiry)
	}
	perf.RoutesKnown.Set(int64(t.size()))
	return nil
}

// AddRoute learns an advertisement from a peer and reports whether any new route was derived from it.
// Derived routes expire after the hold down unless noExpire is set.
func (t *RoutingTables) AddRoute(adv *state.Advertisement, noExpire bool) (bool, error) {
	route, err := state.RouteFromAdvertisement(adv)
	if err != nil {
		return false, err
	}
	expiry := t.holdDown
	if noExpire {
		expiry = state.NoExpiry
	}
	added := t.propagate(route, expiry)
	perf.RoutesKnown.Set(int64(t.size()))
	return added, nil
}

// propagate extends route with every local pair that ends where route starts, then does the same with
// each derived route. Unchanged routes are still followed so that their extensions are refreshed too.
// This terminates because a derived route never visits a ledger twice.
func (t *RoutingTables) propagate(route *state.Route, expiry time.Duration) bool {
	added := false
	queue := []*state.Route{route}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for source, table := range t.sources.All() {
			derived, isNew, ok := t.addRouteFromSource(source, table, next, expiry)
			if !ok {
				continue
			}
			added = added || isNew
			queue = append(queue, derived)
		}
	}
	return added
}

func (t *RoutingTables) addRouteFromSource(source string, table *RoutingTable, route *state.Route, expiry time.Duration) (*state.Route, bool, bool) {
	ledgerB := route.SourceLedger
	ledgerC := route.DestinationLedger

	// a local pair straight to C beats anything stacked on top of other local pairs
	if route.IsLocal {
		if _, ok := table.Get(ledgerC, LocalPair); ok {
			return nil, false, false
		}
	}
	head, ok := table.Get(ledgerB, LocalPair)
	if !ok {
		return nil, false, false
	}
	if !state.CanJoin(head, route) {
		return nil, false, false
	}

	hop := RemoteHop(route.SourceAccount)
	existing, exists := table.Get(route.TargetPrefix, hop)
	var epoch uint64
	if exists {
		epoch = existing.AddedDuringEpoch
	}
	derived, err := head.Join(route, t.clock.Now(), expiry, epoch)
	if err != nil {
		t.log.Debug("cannot join routes", "source", source, "route", route, "error", err)
		return nil, false, false
	}

	if !exists || !existing.Curve.Equal(derived.Curve) || !slices.EqualFunc(existing.Paths, derived.Paths, slices.Equal[[]string]) {
		t.epoch++
		derived.AddedDuringEpoch = t.epoch
		t.log.Debug("learned route", "route", derived, "hop", hop, "new", !exists)
	}
	table.AddRoute(route.TargetPrefix, hop, derived)
	return derived, !exists, true
}

// GetLocalRoute returns the local pair from source to destination, if this node has one.
func (t *RoutingTables) GetLocalRoute(source, destination string) (*state.Route, bool) {
	table, ok := t.sources.Get(source)
	if !ok {
		return nil, false
	}
	return table.Get(destination, LocalPair)
}

// lost collects the destination ledgers that lost their last route.
type lost map[string]struct{}

func (l lost) sorted() []string {
	out := make([]string, 0, len(l))
	for ledger := range l {
		out = append(out, ledger)
	}
	slices.Sort(out)
	return out
}

// removeWhere deletes every route matched by drop and returns the destinations left unreachable.
func (t *RoutingTables) removeWhere(drop func(hop NextHop, route *state.Route) bool) []string {
	type key struct {
		table       *RoutingTable
		destination string
		hop         NextHop
		ledger      string
	}
	var victims []key
	for _, table := range t.sources.All() {
		for _, destination := range table.Destinations() {
			for hop, route := range table.Hops(destination) {
				if drop(hop, route) {
					victims = append(victims, key{table, destination, hop, route.DestinationLedger})
				}
			}
		}
	}
	gone := make(lost)
	for _, v := range victims {
		if _, last := v.table.RemoveRoute(v.destination, v.hop); last {
			gone[v.ledger] = struct{}{}
		}
	}
	if len(victims) > 0 {
		perf.RoutesKnown.Set(int64(t.size()))
	}
	return gone.sorted()
}

// RemoveExpiredRoutes drops every route whose hold down has passed and returns the destination ledgers
// that became unreachable.
func (t *RoutingTables) RemoveExpiredRoutes() []string {
	now := t.clock.Now()
	gone := t.removeWhere(func(_ NextHop, route *state.Route) bool {
		return route.IsExpired(now)
	})
	if len(gone) > 0 {
		perf.ExpiredDestinations.Add(int64(len(gone)))
		t.log.Info("routes expired", "lost", gone)
	}
	return gone
}

// BumpConnector renews every expiring route learned through account so that it lives holdDown longer.
func (t *RoutingTables) BumpConnector(account string, holdDown time.Duration) {
	now := t.clock.Now()
	hop := RemoteHop(account)
	for _, table := range t.sources.All() {
		for _, destination := range table.Destinations() {
			if route, ok := table.Get(destination, hop); ok && !route.ExpiresAt.IsZero() {
				route.BumpExpiration(now, holdDown)
			}
		}
	}
}

// InvalidateConnector drops every route learned through account.
func (t *RoutingTables) InvalidateConnector(account string) []string {
	hop := RemoteHop(account)
	return t.removeWhere(func(h NextHop, _ *state.Route) bool {
		return h == hop
	})
}

// InvalidateConnectorsRoutesTo drops the routes learned through account towards ledger only.
func (t *RoutingTables) InvalidateConnectorsRoutesTo(account, ledger string) []string {
	hop := RemoteHop(account)
	return t.removeWhere(func(h NextHop, route *state.Route) bool {
		return h == hop && (route.DestinationLedger == ledger || route.TargetPrefix == ledger)
	})
}

// RemoveLedger forgets ledger entirely: its routing table, its account, and every route that
// starts on it, ends on it or passes through it.
func (t *RoutingTables) RemoveLedger(ledger string) []string {
	t.sources.Delete(ledger)
	delete(t.accounts, ledger)
	touches := func(path []string) bool { return slices.Contains(path, ledger) }
	return t.removeWhere(func(_ NextHop, route *state.Route) bool {
		return route.SourceLedger == ledger || route.NextLedger == ledger || route.DestinationLedger == ledger ||
			route.TargetPrefix == ledger || slices.ContainsFunc(route.Paths, touches)
	})
}

// FindBestHopForSourceAmount quotes sending amount from source towards destination.
func (t *RoutingTables) FindBestHopForSourceAmount(source, destination string, amount *big.Int) (*Quote, error) {
	table, ok := t.sources.Resolve(source)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	best, err := table.FindBestHopForSourceAmount(destination, amount)
	if err != nil {
		return nil, err
	}
	return t.quote(best, amount, best.Amount)
}

// FindBestHopForDestinationAmount quotes delivering amount to destination from source.
func (t *RoutingTables) FindBestHopForDestinationAmount(source, destination string, amount *big.Int) (*Quote, error) {
	table, ok := t.sources.Resolve(source)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	best, err := table.FindBestHopForDestinationAmount(destination, amount)
	if err != nil {
		return nil, err
	}
	return t.quote(best, best.Amount, amount)
}

func (t *RoutingTables) quote(best *BestHop, sourceAmount, finalAmount *big.Int) (*Quote, error) {
	route := best.Route
	pair, ok := t.GetLocalRoute(route.SourceLedger, route.NextLedger)
	if !ok {
		return nil, fmt.Errorf("%w: no local pair %s -> %s", ErrNoRoute, route.SourceLedger, route.NextLedger)
	}
	nextHop := best.Hop.Account
	if best.Hop.Pair {
		nextHop = t.accounts[route.NextLedger]
	}
	q := &Quote{
		IsFinal:           route.NextLedger == route.DestinationLedger,
		IsLocal:           route.IsLocal,
		NextHop:           nextHop,
		SourceLedger:      route.SourceLedger,
		SourceAmount:      sourceAmount,
		DestinationLedger: route.NextLedger,
		DestinationAmount: pair.AmountAt(sourceAmount),
		FinalLedger:       route.DestinationLedger,
		FinalAmount:       finalAmount,
		MinMessageWindow:  route.MinMessageWindow,
	}
	if q.IsFinal {
		q.AdditionalInfo = route.AdditionalInfo
	} else {
		q.DestinationCreditAccount = nextHop
	}
	return q, nil
}

// ToAdvertisements summarizes the tables into one advertisement per (source, destination) pair, the
// combination of every alternative route, simplified to at most maxPoints points. Pairs are ordered by
// source, then destination.
func (t *RoutingTables) ToAdvertisements(maxPoints int) ([]*state.Advertisement, error) {
	return t.advertisements(maxPoints, func(*state.Route) bool { return true })
}

// AdvertisementsSince is ToAdvertisements restricted to pairs with a route added or changed after epoch.
func (t *RoutingTables) AdvertisementsSince(epoch uint64, maxPoints int) ([]*state.Advertisement, error) {
	return t.advertisements(maxPoints, func(r *state.Route) bool { return r.AddedDuringEpoch > epoch })
}

func (t *RoutingTables) advertisements(maxPoints int, include func(*state.Route) bool) ([]*state.Advertisement, error) {
	if maxPoints <= 0 {
		return nil, fmt.Errorf("%w: maxPoints must be positive, got %d", state.ErrInvalidArgument, maxPoints)
	}
	var out []*state.Advertisement
	for source, table := range t.sources.All() {
		for _, destination := range table.Destinations() {
			var combined *state.Route
			fresh := false
			for hop, route := range table.Hops(destination) {
				fresh = fresh || include(route)
				if combined == nil {
					combined = route
					continue
				}
				c, err := combined.Combine(route)
				if err != nil {
					t.log.Error("failed to combine routes", "source", source, "destination", destination, "hop", hop, "error", err)
					continue
				}
				combined = c
			}
			if combined == nil || !fresh {
				continue
			}
			simplified, err := combined.Simplify(maxPoints)
			if err != nil {
				return nil, err
			}
			adv := simplified.Advertisement()
			if acc, ok := t.accounts[source]; ok {
				adv.SourceAccount = acc
			}
			out = append(out, adv)
		}
	}
	return out, nil
}

func (t *RoutingTables) size() int {
	n := 0
	for _, table := range t.sources.All() {
		n += table.Size()
	}
	return n
}
