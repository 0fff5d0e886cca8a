package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/encodeous/dvsim/state"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// RouterHarness records every event routers emit.
type RouterHarness struct {
	mu     sync.Mutex
	events []Event
}

func (h *RouterHarness) Trace(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
}

// GetActions returns the recorded events and forgets them.
func (h *RouterHarness) GetActions() HarnessEvents {
	h.mu.Lock()
	defer h.mu.Unlock()
	x := h.events
	h.events = nil
	return x
}

type HarnessEvents []Event

func (e HarnessEvents) String() string {
	out := make([]string, 0, len(e))
	for _, ev := range e {
		out = append(out, ev.String())
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

func (e HarnessEvents) Filter(kind EventKind) HarnessEvents {
	var out HarnessEvents
	for _, ev := range e {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (e HarnessEvents) contains(kind EventKind, router, peer state.NodeId) bool {
	for _, ev := range e {
		if ev.Kind == kind && (router == "" || ev.Router == router) && (peer == "" || ev.Peer == peer) {
			return true
		}
	}
	return false
}

func (e HarnessEvents) AssertContains(t *testing.T, kind EventKind, router, peer state.NodeId) {
	t.Helper()
	if e.contains(kind, router, peer) {
		return
	}
	t.Fatal("Expected event not found: ", kind, " router: ", router, " peer: ", peer, " in\n", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, kind EventKind, router, peer state.NodeId) {
	t.Helper()
	if e.contains(kind, router, peer) {
		t.Fatal("Unexpected event found: ", kind, " router: ", router, " peer: ", peer, " in\n", e)
	}
}

func ep(port uint16) netip.AddrPort {
	return netip.AddrPortFrom(state.DefaultHost, port)
}

func testEnv(t *testing.T, interval time.Duration) *state.Env {
	t.Helper()
	env := state.NewEnv(context.Background(), slog.New(slog.DiscardHandler), state.Settings{Interval: interval})
	t.Cleanup(func() {
		env.Cancel(fmt.Errorf("test %s finished", t.Name()))
	})
	return env
}

// testNet wires routers over a MemNetwork and lets tests drive cycles by hand.
type testNet struct {
	t       *testing.T
	env     *state.Env
	mem     *MemNetwork
	h       *RouterHarness
	routers map[state.NodeId]*Router
	order   []state.NodeId
}

func newTestNet(t *testing.T) *testNet {
	n := &testNet{
		t:       t,
		env:     testEnv(t, time.Hour),
		mem:     NewMemNetwork(),
		h:       &RouterHarness{},
		routers: make(map[state.NodeId]*Router),
	}
	t.Cleanup(func() {
		for _, r := range n.routers {
			_ = r.Close()
		}
	})
	return n
}

func (n *testNet) add(id state.NodeId, port uint16, links ...state.Link) *Router {
	n.t.Helper()
	tr, err := n.mem.Listen(ep(port), n.env.InboxSize)
	require.NoError(n.t, err)
	r, err := NewRouter(n.env, id, ep(port), links, tr, n.h)
	require.NoError(n.t, err)
	n.routers[id] = r
	n.order = append(n.order, id)
	return r
}

func link(id state.NodeId, port uint16, cost uint32) state.Link {
	return state.Link{Id: id, Endpoint: ep(port), Cost: cost, Static: true}
}

// round makes every router advertise, then every router drain its inbox.
func (n *testNet) round() {
	for _, id := range n.order {
		n.routers[id].sendAdvertisements(n.env.Context)
	}
	for _, id := range n.order {
		n.routers[id].receiveAdvertisements()
	}
}

func (n *testNet) activateAll() {
	n.t.Helper()
	for _, id := range n.order {
		r := n.routers[id]
		for _, l := range r.Links() {
			require.NoError(n.t, r.SetInterfaceActive(l.Endpoint, true))
		}
	}
}

func (n *testNet) assertTable(id state.NodeId, want map[state.NodeId]state.Route) {
	n.t.Helper()
	got := make(map[state.NodeId]state.Route)
	for _, e := range n.routers[id].SnapshotTable() {
		got[e.Dest] = e.Route
	}
	if diff := cmp.Diff(want, got); diff != "" {
		n.t.Fatalf("routing table of %s mismatch (-want +got):\n%s", id, diff)
	}
}

// chain builds A(5010) -1- B(5020) -1- C(5030).
func chain(t *testing.T) *testNet {
	n := newTestNet(t)
	n.add("A", 5010, link("B", 5020, 1))
	n.add("B", 5020, link("A", 5010, 1), link("C", 5030, 1))
	n.add("C", 5030, link("B", 5020, 1))
	return n
}

func rt(cost uint32, nh state.NodeId) state.Route {
	return state.Route{Cost: cost, NextHop: nh}
}
