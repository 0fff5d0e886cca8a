package core

import (
	"testing"
	"time"

	"github.com/encodeous/dvsim/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNewRouterKnowsOnlyItself(t *testing.T) {
	n := chain(t)
	n.assertTable("B", map[state.NodeId]state.Route{
		"B": rt(0, "B"),
	})
	for _, l := range n.routers["B"].Links() {
		up, err := n.routers["B"].InterfaceActive(l.Endpoint)
		require.NoError(t, err)
		assert.False(t, up)
	}
	assert.False(t, n.routers["B"].Running())
}

func TestNewRouterRejectsBadLinks(t *testing.T) {
	env := testEnv(t, time.Hour)
	mem := NewMemNetwork()
	tr, err := mem.Listen(ep(5010), 4)
	require.NoError(t, err)
	defer tr.Close()

	_, err = NewRouter(env, "A", ep(5010), []state.Link{link("A", 5010, 1)}, tr, nil)
	assert.ErrorIs(t, err, state.ErrSelfNeighbor)

	_, err = NewRouter(env, "A", ep(5010), []state.Link{link("B", 5020, 0)}, tr, nil)
	assert.ErrorIs(t, err, state.ErrInvalidCost)

	_, err = NewRouter(env, "bad name", ep(5010), nil, tr, nil)
	assert.Error(t, err)
}

func TestChainConverges(t *testing.T) {
	n := chain(t)
	n.activateAll()

	n.round()
	n.assertTable("A", map[state.NodeId]state.Route{
		"A": rt(0, "A"),
		"B": rt(1, "B"),
	})
	n.assertTable("B", map[state.NodeId]state.Route{
		"A": rt(1, "A"),
		"B": rt(0, "B"),
		"C": rt(1, "C"),
	})

	n.round()
	n.assertTable("A", map[state.NodeId]state.Route{
		"A": rt(0, "A"),
		"B": rt(1, "B"),
		"C": rt(2, "B"),
	})
	n.assertTable("C", map[state.NodeId]state.Route{
		"A": rt(2, "B"),
		"B": rt(1, "B"),
		"C": rt(0, "C"),
	})

	events := n.h.GetActions()
	events.AssertContains(t, TableUpdated, "A", "B")
	events.AssertContains(t, AdvertReceived, "C", "B")

	// converged, another round changes nothing
	n.round()
	n.h.GetActions().AssertNotContains(t, TableUpdated, "", "")
}

func TestInactiveInterfaceBlocksSendOnly(t *testing.T) {
	n := chain(t)
	a, b := n.routers["A"], n.routers["B"]
	require.NoError(t, a.SetInterfaceActive(ep(5020), true))
	n.h.GetActions()

	n.round()
	events := n.h.GetActions()
	events.AssertContains(t, AdvertSent, "A", "B")
	events.AssertContains(t, AdvertSkipped, "B", "A")
	events.AssertContains(t, AdvertSkipped, "B", "C")

	// B still accepts what A sent even though its own interface towards A is down
	_, ok := b.Route("A")
	assert.True(t, ok)
	_, ok = a.Route("B")
	assert.False(t, ok)
}

func TestSendFailureDoesNotStopCycle(t *testing.T) {
	n := newTestNet(t)
	a := n.add("A", 5010, link("B", 5020, 1), link("X", 5099, 1))
	b := n.add("B", 5020, link("A", 5010, 1))
	require.NoError(t, a.SetInterfaceActive(ep(5020), true))
	require.NoError(t, a.SetInterfaceActive(ep(5099), true))
	n.h.GetActions()

	a.sendAdvertisements(n.env.Context)
	events := n.h.GetActions()
	events.AssertContains(t, SendFailed, "A", "X")
	events.AssertContains(t, AdvertSent, "A", "B")
	failed := events.Filter(SendFailed)
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0].Err, ErrUnreachable)
	assert.Equal(t, ep(5099), failed[0].Endpoint)

	assert.Equal(t, 1, b.transport.(*MemTransport).Pending())
	b.receiveAdvertisements()
	route, ok := b.Route("A")
	require.True(t, ok)
	assert.Equal(t, rt(1, "A"), route)
}

func TestStaleRoutesPersist(t *testing.T) {
	n := chain(t)
	n.activateAll()
	n.round()
	n.round()

	require.NoError(t, n.routers["B"].SetInterfaceActive(ep(5030), false))
	for range 5 {
		n.round()
	}
	route, ok := n.routers["A"].Route("C")
	require.True(t, ok)
	assert.Equal(t, rt(2, "B"), route)
}

func TestCheaperRouteFromNewNeighbor(t *testing.T) {
	n := chain(t)
	n.activateAll()
	n.round()
	n.round()

	a, c := n.routers["A"], n.routers["C"]
	require.NoError(t, a.AddNeighbor("C", ep(5030), 1))
	route, _ := a.Route("C")
	assert.Equal(t, rt(1, "C"), route)
	n.h.GetActions().AssertContains(t, NeighborAdded, "A", "C")

	require.NoError(t, a.SetInterfaceActive(ep(5030), true))
	require.NoError(t, c.AddNeighbor("A", ep(5010), 1))
	require.NoError(t, c.SetInterfaceActive(ep(5010), true))
	n.round()
	n.assertTable("C", map[state.NodeId]state.Route{
		"A": rt(1, "A"),
		"B": rt(1, "B"),
		"C": rt(0, "C"),
	})
}

func TestAddNeighborToIsolatedRouter(t *testing.T) {
	n := newTestNet(t)
	r := n.add("A", 5010)
	require.NoError(t, r.AddNeighbor("D", ep(5040), 5))

	n.assertTable("A", map[state.NodeId]state.Route{
		"A": rt(0, "A"),
		"D": rt(5, "D"),
	})
	up, err := r.InterfaceActive(ep(5040))
	require.NoError(t, err)
	assert.False(t, up)
	assert.Equal(t, []state.Link{{Id: "D", Endpoint: ep(5040), Cost: 5}}, r.Links())
}

func TestAddNeighborKeepsCheaperRoute(t *testing.T) {
	n := chain(t)
	n.activateAll()
	n.round()
	n.round()

	a := n.routers["A"]
	require.NoError(t, a.AddNeighbor("C", ep(5030), 7))
	route, _ := a.Route("C")
	assert.Equal(t, rt(2, "B"), route)

	assert.ErrorIs(t, a.AddNeighbor("C", ep(5030), 1), state.ErrNeighborExists)
	assert.ErrorIs(t, a.AddNeighbor("A", ep(5010), 1), state.ErrSelfNeighbor)
	assert.ErrorIs(t, a.AddNeighbor("D", ep(5040), 0), state.ErrInvalidCost)
}

func TestUnknownSenderDiscarded(t *testing.T) {
	n := chain(t)
	rogue, err := n.mem.Listen(ep(6000), 4)
	require.NoError(t, err)
	defer rogue.Close()

	payload, err := EncodeAdvertisement(NewAdvertisement("X", map[state.NodeId]state.Route{
		"X": rt(0, "X"),
		"Z": rt(1, "Z"),
	}))
	require.NoError(t, err)
	require.NoError(t, rogue.Send(n.env.Context, ep(5010), payload))

	n.routers["A"].receiveAdvertisements()
	n.assertTable("A", map[state.NodeId]state.Route{"A": rt(0, "A")})
	dropped := n.h.GetActions().Filter(MessageDropped)
	require.Len(t, dropped, 1)
	assert.ErrorIs(t, dropped[0].Err, state.ErrUnknownNeighbor)
	assert.Equal(t, state.NodeId("X"), dropped[0].Peer)
}

func TestMalformedAdvertisementDiscarded(t *testing.T) {
	n := chain(t)
	rogue, err := n.mem.Listen(ep(6000), 4)
	require.NoError(t, err)
	defer rogue.Close()

	for _, payload := range []string{
		`not json`,
		`{"routing_table": {}}`,
		`{"sender": "B"}`,
		`{"sender": "B", "routing_table": {"C": [1]}}`,
	} {
		require.NoError(t, rogue.Send(n.env.Context, ep(5010), []byte(payload)))
	}
	n.routers["A"].receiveAdvertisements()

	n.assertTable("A", map[state.NodeId]state.Route{"A": rt(0, "A")})
	assert.Len(t, n.h.GetActions().Filter(MessageDropped), 4)
}

func TestReceivePerCycleLimit(t *testing.T) {
	n := chain(t)
	n.env.ReceivePerCycle = 1
	b := n.routers["B"]
	require.NoError(t, n.routers["A"].SetInterfaceActive(ep(5020), true))
	require.NoError(t, n.routers["C"].SetInterfaceActive(ep(5020), true))
	n.routers["A"].sendAdvertisements(n.env.Context)
	n.routers["C"].sendAdvertisements(n.env.Context)

	b.receiveAdvertisements()
	assert.Len(t, n.h.GetActions().Filter(AdvertReceived), 1)
	b.receiveAdvertisements()
	assert.Len(t, n.h.GetActions().Filter(AdvertReceived), 1)
	b.receiveAdvertisements()
	assert.Empty(t, n.h.GetActions().Filter(AdvertReceived))

	n.env.ReceivePerCycle = state.DrainInbox
	n.routers["A"].sendAdvertisements(n.env.Context)
	n.routers["C"].sendAdvertisements(n.env.Context)
	n.h.GetActions()
	b.receiveAdvertisements()
	assert.Len(t, n.h.GetActions().Filter(AdvertReceived), 2)
}

func TestNeighborHeard(t *testing.T) {
	n := chain(t)
	n.activateAll()
	_, ok := n.routers["A"].NeighborHeard("B")
	assert.False(t, ok)
	n.round()
	at, ok := n.routers["A"].NeighborHeard("B")
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now(), at, time.Minute)
}

func TestInterfaceErrors(t *testing.T) {
	n := chain(t)
	a := n.routers["A"]
	assert.ErrorIs(t, a.SetInterfaceActive(ep(9999), true), state.ErrUnknownInterface)
	_, err := a.InterfaceActive(ep(9999))
	assert.ErrorIs(t, err, state.ErrUnknownInterface)
	_, err = a.InterfaceByPort(9999)
	assert.ErrorIs(t, err, state.ErrUnknownInterface)

	got, err := a.InterfaceByPort(5020)
	require.NoError(t, err)
	assert.Equal(t, ep(5020), got)

	require.NoError(t, a.SetInterfaceActive(ep(5020), true))
	toggled := n.h.GetActions().Filter(InterfaceToggled)
	require.Len(t, toggled, 1)
	assert.Equal(t, state.NodeId("B"), toggled[0].Peer)
	assert.True(t, toggled[0].Active)
}

func TestRouterLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)
	env := testEnv(t, 10*time.Millisecond)
	mem := NewMemNetwork()
	h := &RouterHarness{}
	ta, err := mem.Listen(ep(5010), 8)
	require.NoError(t, err)
	tb, err := mem.Listen(ep(5020), 8)
	require.NoError(t, err)
	a, err := NewRouter(env, "A", ep(5010), []state.Link{link("B", 5020, 1)}, ta, h)
	require.NoError(t, err)
	b, err := NewRouter(env, "B", ep(5020), []state.Link{link("A", 5010, 1)}, tb, h)
	require.NoError(t, err)

	select {
	case <-a.Done():
	default:
		t.Fatal("a router that never started must report done")
	}

	require.NoError(t, a.SetInterfaceActive(ep(5020), true))
	require.NoError(t, b.SetInterfaceActive(ep(5010), true))
	assert.True(t, a.Start())
	assert.False(t, a.Start())
	assert.True(t, b.Start())
	assert.True(t, a.Running())

	assert.Eventually(t, func() bool {
		_, ok := a.Route("B")
		return ok
	}, 5*time.Second, 5*time.Millisecond)

	assert.True(t, a.Stop())
	assert.False(t, a.Stop())
	assert.False(t, a.Running())
	select {
	case <-a.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("router loop did not exit after stop")
	}

	events := h.GetActions()
	events.AssertContains(t, RouterStarted, "A", "")
	events.AssertContains(t, RouterStopped, "A", "")
	started := events.Filter(RouterStarted)
	assert.NotEqual(t, started[0].Run, started[1].Run)

	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
}

func TestRestartWaitsForPreviousLoop(t *testing.T) {
	defer goleak.VerifyNone(t)
	env := testEnv(t, time.Hour)
	tr, err := NewMemNetwork().Listen(ep(5010), 4)
	require.NoError(t, err)
	r, err := NewRouter(env, "A", ep(5010), nil, tr, nil)
	require.NoError(t, err)

	for range 20 {
		require.True(t, r.Start())
		prev := r.Done()
		require.True(t, r.Stop())
		require.True(t, r.Start())
		select {
		case <-prev:
		default:
			t.Fatal("restarted before the previous loop exited")
		}
		require.True(t, r.Stop())
	}

	require.NoError(t, r.Close())
	assert.False(t, r.Start())
	assert.False(t, r.Running())
}

type blockingTracer struct {
	kind    EventKind
	entered chan struct{}
	release chan struct{}
}

func (b *blockingTracer) Trace(e Event) {
	if e.Kind == b.kind {
		close(b.entered)
		<-b.release
	}
}

func TestStopTracesWithoutHoldingLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)
	env := testEnv(t, time.Hour)
	tr, err := NewMemNetwork().Listen(ep(5010), 4)
	require.NoError(t, err)
	bt := &blockingTracer{kind: RouterStopped, entered: make(chan struct{}), release: make(chan struct{})}
	r, err := NewRouter(env, "A", ep(5010), nil, tr, bt)
	require.NoError(t, err)
	require.True(t, r.Start())

	stopped := make(chan bool)
	go func() {
		stopped <- r.Stop()
	}()
	<-bt.entered

	// the tracer is stuck, lifecycle reads must still answer
	assert.False(t, r.Running())
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("router loop did not exit")
	}

	close(bt.release)
	assert.True(t, <-stopped)
	require.NoError(t, r.Close())
}
