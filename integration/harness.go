//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"math/rand/v2"
	"runtime/pprof"
	"slices"
	"sync"
	"time"

	"github.com/encodeous/ratemesh/core"
	"github.com/encodeous/ratemesh/state"
)

type Signal chan bool

func NewSignal() Signal {
	return make(chan bool)
}
func (s Signal) Trigger() {
	select {
	case <-s:
	default:
		close(s)
	}
}
func (s Signal) Triggered() bool {
	select {
	case <-s:
		return true
	default:
		return false
	}
}
func (s Signal) Wait() {
	<-s
}

// VirtualLink carries updates in one direction between two nodes.
type VirtualLink struct {
	Edge       state.Pair[string, string]
	Latency    time.Duration
	Jitter     time.Duration
	PacketLoss float64
}

func (v *VirtualLink) simulate(h *VirtualHarness, update []byte) {
	if rand.Float64() < v.PacketLoss {
		// drop
		return
	}
	if v.Latency == 0 {
		h.deliver(v.Edge.V1, v.Edge.V2, update)
		return
	}
	simJitter := rand.Float64() * float64(v.Jitter.Nanoseconds())
	simLat := v.Latency + time.Duration(simJitter)
	go func() {
		select {
		case <-h.Context.Done():
		case <-time.After(simLat):
			h.deliver(v.Edge.V1, v.Edge.V2, update)
		}
	}()
}

func (v *VirtualLink) WithLatency(lat, jitter time.Duration) *VirtualLink {
	v.Latency = lat
	v.Jitter = jitter
	return v
}

func (v *VirtualLink) WithPacketLoss(loss float64) *VirtualLink {
	v.PacketLoss = loss
	return v
}

// VirtualHarness runs a mesh of routers in one process and passes their updates over VirtualLinks.
type VirtualHarness struct {
	sync.Mutex
	Context context.Context
	Cancel  context.CancelCauseFunc
	Nodes   []state.NodeCfg
	States  []*state.State
	Links   []*VirtualLink
	done    sync.WaitGroup
}

func (v *VirtualHarness) IndexOf(id string) int {
	return slices.IndexFunc(v.Nodes, func(cfg state.NodeCfg) bool {
		return cfg.Id == id
	})
}

// NewNode adds a node quoting pairs. The node holds the account ledger+id on every ledger it quotes.
func (v *VirtualHarness) NewNode(id string, pairs ...state.Advertisement) {
	cfg := state.NodeCfg{
		Id:             id,
		HoldDown:       2 * time.Second,
		GcDelay:        100 * time.Millisecond,
		BroadcastDelay: 100 * time.Millisecond,
		Accounts:       make(map[string]string),
		Pairs:          pairs,
	}
	for _, ledger := range cfg.Ledgers() {
		cfg.Accounts[ledger] = ledger + id
	}
	v.Nodes = append(v.Nodes, cfg)
}

func (v *VirtualHarness) AddLink(from, to string) *VirtualLink {
	v.Lock()
	defer v.Unlock()
	link := &VirtualLink{Edge: state.Pair[string, string]{V1: from, V2: to}}
	v.Links = append(v.Links, link)
	return link
}

// Connect links a and b in both directions and tells both routers about the new peer.
func (v *VirtualHarness) Connect(a, b string) {
	v.AddLink(a, b)
	v.AddLink(b, a)
	v.dispatch(a, func(s *state.State) error { return core.HandlePeerUp(s, b) })
	v.dispatch(b, func(s *state.State) error { return core.HandlePeerUp(s, a) })
}

// Disconnect removes the links between a and b and tells both routers that the peer is gone.
func (v *VirtualHarness) Disconnect(a, b string) {
	v.Lock()
	v.Links = slices.DeleteFunc(v.Links, func(link *VirtualLink) bool {
		return link.Edge == state.Pair[string, string]{V1: a, V2: b} || link.Edge == state.Pair[string, string]{V1: b, V2: a}
	})
	v.Unlock()
	v.dispatch(a, func(s *state.State) error { return core.HandlePeerDown(s, b) })
	v.dispatch(b, func(s *state.State) error { return core.HandlePeerDown(s, a) })
}

func (v *VirtualHarness) links(from string) []*VirtualLink {
	v.Lock()
	defer v.Unlock()
	var out []*VirtualLink
	for _, link := range v.Links {
		if link.Edge.V1 == from {
			out = append(out, link)
		}
	}
	return out
}

func (v *VirtualHarness) state(id string) *state.State {
	v.Lock()
	defer v.Unlock()
	idx := v.IndexOf(id)
	if idx == -1 || idx >= len(v.States) {
		return nil
	}
	return v.States[idx]
}

func (v *VirtualHarness) dispatch(id string, fun func(*state.State) error) {
	if s := v.state(id); s != nil {
		s.Dispatch(fun)
	}
}

func (v *VirtualHarness) deliver(from, to string, update []byte) {
	v.dispatch(to, func(s *state.State) error {
		return core.HandleUpdate(s, from, update)
	})
}

// Quote asks node id to quote amount from source to destination.
func (v *VirtualHarness) Quote(id, source, destination string, amount *big.Int) (*core.Quote, error) {
	s := v.state(id)
	if s == nil {
		return nil, fmt.Errorf("node %s is not running", id)
	}
	return core.QuoteBySourceAmount(s.Env, source, destination, amount)
}

type virtualBroadcaster struct {
	h  *VirtualHarness
	id string
}

func (b *virtualBroadcaster) Broadcast(_ context.Context, update []byte) error {
	for _, link := range b.h.links(b.id) {
		link.simulate(b.h, update)
	}
	return nil
}

func (b *virtualBroadcaster) Send(_ context.Context, peer string, update []byte) error {
	for _, link := range b.h.links(b.id) {
		if link.Edge.V2 == peer {
			link.simulate(b.h, update)
			return nil
		}
	}
	return fmt.Errorf("no link from %s to %s", b.id, peer)
}

func (v *VirtualHarness) Start() chan error {
	ctx, cancel := context.WithCancelCause(context.Background())
	v.Context = ctx
	v.Cancel = cancel
	v.States = make([]*state.State, len(v.Nodes))
	errChan := make(chan error, 128) // a large number so we dont get blocked

	for idx, cfg := range v.Nodes {
		v.done.Add(1)
		go func() {
			defer v.done.Done()
			labels := pprof.Labels("ratemesh node", cfg.Id)
			pprof.Do(context.Background(), labels, func(_ context.Context) {
				restart, cErr := core.Start(cfg, slog.LevelDebug, &virtualBroadcaster{h: v, id: cfg.Id}, func(s *state.State) {
					v.Lock()
					v.States[idx] = s
					v.Unlock()
				})
				if cErr != nil {
					errChan <- cErr
					return
				}
				if restart {
					errChan <- errors.New("node restart is not implemented")
				}
			})
		}()
	}
	// wait for all routers to start
	for {
		started := true
		for _, cfg := range v.Nodes {
			s := v.state(cfg.Id)
			if s == nil || !s.Started.Load() {
				started = false
				break
			}
		}
		if started {
			break
		}
		select {
		case <-ctx.Done():
			return errChan
		case <-time.After(time.Millisecond * 50):
		case err := <-errChan:
			errChan <- err
			return errChan
		}
	}
	return errChan
}

func (v *VirtualHarness) Stop() {
	println("Stopping VirtualHarness")
	v.Cancel(fmt.Errorf("stopping harness"))
	for _, cfg := range v.Nodes {
		if s := v.state(cfg.Id); s != nil {
			s.Cancel(fmt.Errorf("stopping harness"))
		}
	}
	v.done.Wait()
	println("Stopped VirtualHarness")
}
