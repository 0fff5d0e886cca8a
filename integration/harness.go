//go:build integration

package integration

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/encodeous/dvsim/core"
	"github.com/encodeous/dvsim/state"
	"github.com/stretchr/testify/require"
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

// VirtualLink degrades the datagrams one router sends to another.
type VirtualLink struct {
	Latency    time.Duration
	Jitter     time.Duration
	PacketLoss float64
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

// virtualTransport applies the VirtualLinks of one router to everything it sends.
type virtualTransport struct {
	core.Transport
	ctx   context.Context
	node  state.NodeId
	h     *VirtualHarness
	sends sync.WaitGroup
}

func (t *virtualTransport) Send(ctx context.Context, to netip.AddrPort, payload []byte) error {
	link := t.h.link(t.node, to)
	if link == nil {
		return t.Transport.Send(ctx, to, payload)
	}
	if rand.Float64() < link.PacketLoss {
		// drop
		return nil
	}
	if link.Latency == 0 {
		return t.Transport.Send(ctx, to, payload)
	}
	simLat := link.Latency + time.Duration(rand.Float64()*float64(link.Jitter.Nanoseconds()))
	t.sends.Add(1)
	go func() {
		defer t.sends.Done()
		select {
		case <-t.ctx.Done():
		case <-time.After(simLat):
			err := t.Transport.Send(t.ctx, to, payload)
			if err != nil && !errors.Is(err, core.ErrClosed) && !errors.Is(err, context.Canceled) {
				slog.Warn("delayed send failed", "error", err)
			}
		}
	}()
	return nil
}

func (t *virtualTransport) Close() error {
	t.sends.Wait()
	return t.Transport.Close()
}

type VirtualHarness struct {
	Topology *state.TopologyCfg
	Context  context.Context
	Cancel   context.CancelCauseFunc
	// UDP binds real sockets instead of the in-process network.
	UDP bool
	// Prepare runs after every interface is activated and before the routers start.
	Prepare func(n *core.Network) error
	Net     *core.Network

	mu        sync.RWMutex
	links     map[[2]state.NodeId]*VirtualLink
	endpoints map[netip.AddrPort]state.NodeId
}

func NewHarness(topology *state.TopologyCfg, interval time.Duration) *VirtualHarness {
	topology.Settings.Interval = interval
	v := &VirtualHarness{
		Topology:  topology,
		links:     make(map[[2]state.NodeId]*VirtualLink),
		endpoints: make(map[netip.AddrPort]state.NodeId),
	}
	for id, r := range topology.Routers {
		v.endpoints[topology.Endpoint(r.Port)] = id
	}
	return v
}

// AddLink degrades traffic from one router to another. It may be called while the network runs.
func (v *VirtualHarness) AddLink(from, to state.NodeId) *VirtualLink {
	v.mu.Lock()
	defer v.mu.Unlock()
	l := &VirtualLink{}
	v.links[[2]state.NodeId{from, to}] = l
	return l
}

func (v *VirtualHarness) link(from state.NodeId, to netip.AddrPort) *VirtualLink {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.links[[2]state.NodeId{from, v.endpoints[to]}]
}

// Start builds the network, activates every interface and starts every router.
func (v *VirtualHarness) Start(t *testing.T) {
	t.Helper()
	v.Context, v.Cancel = context.WithCancelCause(context.Background())
	factory := core.NewMemNetwork().Factory()
	if v.UDP {
		factory = core.UDPFactory
	}
	wrapped := func(ep netip.AddrPort, inboxSize int) (core.Transport, error) {
		inner, err := factory(ep, inboxSize)
		if err != nil {
			return nil, err
		}
		return &virtualTransport{Transport: inner, ctx: v.Context, node: v.endpoints[ep], h: v}, nil
	}

	env := state.NewEnv(v.Context, slog.Default(), v.Topology.Settings)
	n, err := core.NewNetwork(env, v.Topology, wrapped)
	require.NoError(t, err)
	v.Net = n
	require.NoError(t, n.SetEveryInterface(true))
	if v.Prepare != nil {
		require.NoError(t, v.Prepare(n))
	}
	require.NoError(t, n.StartAll())
}

func (v *VirtualHarness) Stop() {
	v.Cancel(errors.New("harness stopped"))
	if v.Net != nil {
		_ = v.Net.Close()
	}
}

// Table returns the current routing table of a router as a map.
func (v *VirtualHarness) Table(id state.NodeId) map[state.NodeId]state.Route {
	r, err := v.Net.Router(id)
	if err != nil {
		return nil
	}
	out := make(map[state.NodeId]state.Route)
	for _, e := range r.SnapshotTable() {
		out[e.Dest] = e.Route
	}
	return out
}

// WaitForRoute blocks until router reaches dst with the given route, or the timeout passes.
func (v *VirtualHarness) WaitForRoute(id, dst state.NodeId, want state.Route, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if got, ok := v.Table(id)[dst]; ok && got == want {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(5 * time.Millisecond):
		}
	}
}
