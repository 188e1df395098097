package core

import (
	"context"
	"maps"
	"math/big"
	"slices"
	"time"

	"github.com/encodeous/ratemesh/perf"
	"github.com/encodeous/ratemesh/protocol"
	"github.com/encodeous/ratemesh/state"
	"github.com/encodeous/ratemesh/store"
	"github.com/jellydator/ttlcache/v3"
)

// Broadcaster carries encoded updates to the peers of this node.
type Broadcaster interface {
	// Broadcast sends update to every peer.
	Broadcast(ctx context.Context, update []byte) error
	// Send sends update to a single peer.
	Send(ctx context.Context, peer string, update []byte) error
}

// updateKey identifies a batch by (peer, seqno)
type updateKey = state.Pair[string, uint64]

// learnedKey identifies an advertisement from a peer by (source ledger, target prefix)
type learnedKey = state.Pair[string, string]

// RatesRouter owns the RoutingTables of a node. Every access goes through the dispatch goroutine.
type RatesRouter struct {
	*state.State
	Tables      *RoutingTables
	Broadcaster Broadcaster
	Store       *store.Store

	// Learned holds the last advertisement of every route each peer sent, for snapshots
	Learned map[string]map[learnedKey]*state.Advertisement
	// PeerAccounts holds the accounts each peer advertised routes from
	PeerAccounts map[string]map[string]struct{}
	// LastSeen is when each peer last sent an update or a heartbeat
	LastSeen map[string]time.Time

	dedup              *ttlcache.Cache[updateKey, struct{}]
	seqno              uint64
	lastBroadcastEpoch uint64
	lastFullBroadcast  time.Time
}

func (r *RatesRouter) Init(s *state.State) error {
	s.Log.Debug("init router")
	r.State = s
	r.Tables = NewRoutingTables(s.HoldDown, s.Clock, s.Log)
	r.Learned = make(map[string]map[learnedKey]*state.Advertisement)
	r.PeerAccounts = make(map[string]map[string]struct{})
	r.LastSeen = make(map[string]time.Time)
	// seqnos stay increasing across restarts of this node
	r.seqno = uint64(s.Clock.Now().UnixNano())
	r.dedup = ttlcache.New[updateKey, struct{}](
		ttlcache.WithTTL[updateKey, struct{}](state.UpdateDedupTTL),
		ttlcache.WithDisableTouchOnHit[updateKey, struct{}](),
	)

	if err := r.Tables.AddLocalRoutes(s.LocalPairs()); err != nil {
		return err
	}
	s.Log.Info("loaded local pairs", "pairs", len(s.Pairs), "ledgers", s.Ledgers())

	if s.SnapshotPath != "" {
		st, err := store.Open(s.SnapshotPath)
		if err != nil {
			return err
		}
		r.Store = st
		if err := r.restoreSnapshot(s); err != nil {
			return err
		}
	}

	s.Log.Debug("schedule router tasks")
	s.Env.RepeatTask(gcRouter, s.GcDelay)
	s.Env.RepeatTask(broadcastRoutes, s.BroadcastDelay)
	if r.Store != nil {
		s.Env.RepeatTask(saveSnapshot, state.SnapshotDelay)
	}
	return nil
}

func (r *RatesRouter) Cleanup(s *state.State) error {
	var err error
	if r.Store != nil {
		err = r.Store.SaveSnapshot(context.Background(), r.snapshot(), s.Clock.Now())
		if cerr := r.Store.Close(); err == nil {
			err = cerr
		}
		r.Store = nil
	}
	r.dedup.DeleteAll()
	r.State = nil
	return err
}

func (r *RatesRouter) restoreSnapshot(s *state.State) error {
	entries, err := r.Store.LoadSnapshot(s.Context, s.Clock.Now().Add(-s.HoldDown))
	if err != nil {
		return err
	}
	for _, e := range entries {
		r.learn(e.Peer, e.Advertisement)
	}
	s.Log.Info("restored snapshot", "routes", len(entries))
	return nil
}

// snapshot lists the learned advertisements ordered by peer, then by route.
func (r *RatesRouter) snapshot() []store.Entry {
	var entries []store.Entry
	for _, peer := range slices.Sorted(maps.Keys(r.Learned)) {
		routes := r.Learned[peer]
		keys := slices.Collect(maps.Keys(routes))
		state.SortPairs(keys)
		for _, key := range keys {
			entries = append(entries, store.Entry{Peer: peer, Advertisement: routes[key]})
		}
	}
	return entries
}

func (r *RatesRouter) learn(peer string, adv *state.Advertisement) {
	if adv.SourceAccount == "" {
		adv.SourceAccount = peer
	}
	added, err := r.Tables.AddRoute(adv, false)
	if err != nil {
		r.Log.Warn("received invalid advertisement", "from", peer, "err", err)
		return
	}
	if added {
		r.Log.Debug("new routes", "from", peer, "source", adv.SourceLedger, "destination", adv.DestinationLedger)
	}

	routes, ok := r.Learned[peer]
	if !ok {
		routes = make(map[learnedKey]*state.Advertisement)
		r.Learned[peer] = routes
	}
	target := adv.TargetPrefix
	if target == "" {
		target = adv.DestinationLedger
	}
	routes[learnedKey{V1: adv.SourceLedger, V2: target}] = adv

	accounts, ok := r.PeerAccounts[peer]
	if !ok {
		accounts = make(map[string]struct{})
		r.PeerAccounts[peer] = accounts
	}
	accounts[adv.SourceAccount] = struct{}{}
	r.LastSeen[peer] = r.Clock.Now()
}

// packet handlers

// HandleUpdate ingests an encoded update batch received from peer. Malformed or replayed batches are
// logged and dropped.
func HandleUpdate(s *state.State, peer string, data []byte) error {
	r := Get[*RatesRouter](s)
	perf.RecvBytesPerSecond.Add(float64(len(data)))
	update, err := protocol.DecodeUpdate(data)
	if err != nil {
		s.Log.Warn("received malformed update", "from", peer, "err", err)
		return nil
	}
	key := updateKey{V1: peer, V2: update.Seqno}
	if r.dedup.Has(key) {
		perf.DuplicateUpdates.Add(1)
		return nil
	}
	r.dedup.Set(key, struct{}{}, ttlcache.DefaultTTL)

	perf.UpdatesPerSecond.Add(1)
	perf.UpdateBatchSize.Add(float64(len(update.Advertisements)))
	for _, adv := range update.Advertisements {
		r.learn(peer, adv)
	}
	return nil
}

// HandleHeartbeat keeps the routes learned from peer alive for another hold down.
func HandleHeartbeat(s *state.State, peer string) error {
	r := Get[*RatesRouter](s)
	for account := range r.PeerAccounts[peer] {
		r.Tables.BumpConnector(account, s.HoldDown)
	}
	if _, ok := r.PeerAccounts[peer]; ok {
		r.LastSeen[peer] = s.Clock.Now()
	}
	return nil
}

// HandlePeerUp sends the full table to a peer that just connected.
func HandlePeerUp(s *state.State, peer string) error {
	r := Get[*RatesRouter](s)
	if r.Broadcaster == nil {
		return nil
	}
	advs, err := r.Tables.ToAdvertisements(s.MaxPoints)
	if err != nil {
		return err
	}
	batches, err := r.encode(advs)
	if err != nil {
		return err
	}
	r.send(func(ctx context.Context, b []byte) error {
		return r.Broadcaster.Send(ctx, peer, b)
	}, batches)
	return nil
}

// HandlePeerDown forgets every route learned from peer.
func HandlePeerDown(s *state.State, peer string) error {
	r := Get[*RatesRouter](s)
	var lost []string
	for account := range r.PeerAccounts[peer] {
		lost = append(lost, r.Tables.InvalidateConnector(account)...)
	}
	r.forget(peer)
	if len(lost) > 0 {
		slices.Sort(lost)
		s.Log.Info("peer down", "peer", peer, "lost", slices.Compact(lost))
	}
	return nil
}

func (r *RatesRouter) forget(peer string) {
	delete(r.Learned, peer)
	delete(r.PeerAccounts, peer)
	delete(r.LastSeen, peer)
	for _, key := range r.dedup.Keys() {
		if key.V1 == peer {
			r.dedup.Delete(key)
		}
	}
}

func gcRouter(s *state.State) error {
	r := Get[*RatesRouter](s)
	lost := r.Tables.RemoveExpiredRoutes()
	if len(lost) > 0 {
		s.Log.Debug("destinations expired", "lost", lost)
	}
	now := s.Clock.Now()
	for peer, seen := range r.LastSeen {
		if now.Sub(seen) > s.HoldDown {
			s.Log.Debug("peer went silent", "peer", peer)
			r.forget(peer)
		}
	}
	r.dedup.DeleteExpired()
	return nil
}

// broadcastRoutes sends the routes that changed since the last broadcast, and the full table once every
// third of the hold down so that peers keep the routes alive.
func broadcastRoutes(s *state.State) error {
	r := Get[*RatesRouter](s)
	epoch := r.Tables.Epoch()
	now := s.Clock.Now()
	full := now.Sub(r.lastFullBroadcast) >= s.HoldDown/3
	if !full && epoch == r.lastBroadcastEpoch {
		return nil
	}

	var advs []*state.Advertisement
	var err error
	if full {
		advs, err = r.Tables.ToAdvertisements(s.MaxPoints)
		r.lastFullBroadcast = now
	} else {
		advs, err = r.Tables.AdvertisementsSince(r.lastBroadcastEpoch, s.MaxPoints)
	}
	if err != nil {
		return err
	}
	r.lastBroadcastEpoch = epoch
	if len(advs) == 0 || r.Broadcaster == nil {
		return nil
	}
	batches, err := r.encode(advs)
	if err != nil {
		return err
	}
	s.Log.Debug("broadcasting routes", "epoch", epoch, "full", full, "routes", len(advs), "batches", len(batches))
	r.send(r.Broadcaster.Broadcast, batches)
	return nil
}

func (r *RatesRouter) encode(advs []*state.Advertisement) ([][]byte, error) {
	batches, err := protocol.SplitUpdates(&protocol.Update{
		Connector:      r.Id,
		Epoch:          r.Tables.Epoch(),
		Seqno:          r.seqno + 1,
		Advertisements: advs,
	}, state.MaxUpdateSize)
	if err != nil {
		return nil, err
	}
	r.seqno += uint64(len(batches))
	return batches, nil
}

func (r *RatesRouter) send(fn func(ctx context.Context, b []byte) error, batches [][]byte) {
	ctx := r.Context
	log := r.Log
	go func() {
		for _, b := range batches {
			if err := fn(ctx, b); err != nil {
				log.Error("error while broadcasting", "err", err.Error())
				return
			}
			perf.BroadcastsPerSecond.Add(1)
			perf.SentBytesPerSecond.Add(float64(len(b)))
		}
	}()
}

func saveSnapshot(s *state.State) error {
	r := Get[*RatesRouter](s)
	if err := r.Store.SaveSnapshot(s.Context, r.snapshot(), s.Clock.Now()); err != nil {
		s.Log.Warn("failed to save snapshot", "err", err)
	}
	return nil
}

// QuoteBySourceAmount quotes sending amount from source to destination. It is safe to call from any goroutine.
func QuoteBySourceAmount(e *state.Env, source, destination string, amount *big.Int) (*Quote, error) {
	return quote(e, func(t *RoutingTables) (*Quote, error) {
		return t.FindBestHopForSourceAmount(source, destination, amount)
	})
}

// QuoteByDestinationAmount quotes delivering amount to destination from source. It is safe to call from any goroutine.
func QuoteByDestinationAmount(e *state.Env, source, destination string, amount *big.Int) (*Quote, error) {
	return quote(e, func(t *RoutingTables) (*Quote, error) {
		return t.FindBestHopForDestinationAmount(source, destination, amount)
	})
}

func quote(e *state.Env, fn func(*RoutingTables) (*Quote, error)) (*Quote, error) {
	start := time.Now()
	res, err := e.DispatchWait(func(s *state.State) (any, error) {
		return fn(Get[*RatesRouter](s).Tables)
	})
	perf.QuotesPerSecond.Add(1)
	perf.QuoteLatency.Add(float64(time.Since(start).Microseconds()))
	if err != nil {
		return nil, err
	}
	return res.(*Quote), nil
}

// Advertisements returns the current table of the node, simplified for peers. It is safe to call from any goroutine.
func Advertisements(e *state.Env) ([]*state.Advertisement, error) {
	res, err := e.DispatchWait(func(s *state.State) (any, error) {
		return Get[*RatesRouter](s).Tables.ToAdvertisements(s.MaxPoints)
	})
	if err != nil {
		return nil, err
	}
	return res.([]*state.Advertisement), nil
}
