package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/encodeous/dvsim/state"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

// Router is one distance-vector node. Its loop is the only writer of the routing table
// besides the control operations below, and every access goes through mu.
type Router struct {
	env       *state.Env
	log       *slog.Logger
	id        state.NodeId
	endpoint  netip.AddrPort
	transport Transport
	tracer    Tracer

	mu     sync.RWMutex
	table  *state.RoutingTable
	links  map[state.NodeId]state.Link
	ifaces state.Interfaces
	// heard records when each neighbour last sent us a valid advertisement
	heard *ttlcache.Cache[state.NodeId, time.Time]

	// starting serializes Start, which waits for the previous loop without holding lifecycle
	starting  sync.Mutex
	lifecycle sync.Mutex
	running   bool
	closed    bool
	cancel    context.CancelCauseFunc
	done      <-chan struct{}
	// run identifies the current start of the router, it holds a uuid.UUID
	run atomic.Value
}

func closedChan() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

// NewRouter creates a stopped router whose table only knows itself and whose interfaces are all inactive.
func NewRouter(env *state.Env, id state.NodeId, endpoint netip.AddrPort, links []state.Link, transport Transport, tracer Tracer) (*Router, error) {
	if err := state.NameValidator(string(id)); err != nil {
		return nil, err
	}
	if tracer == nil {
		tracer = nopTracer{}
	}
	ttl := env.Interval * time.Duration(state.HeardWindow)
	r := &Router{
		env:       env,
		log:       env.Log.With("router", id),
		id:        id,
		endpoint:  endpoint,
		transport: transport,
		tracer:    tracer,
		table:     state.NewRoutingTable(id),
		links:     make(map[state.NodeId]state.Link),
		ifaces:    make(state.Interfaces),
		heard: ttlcache.New[state.NodeId, time.Time](
			ttlcache.WithTTL[state.NodeId, time.Time](ttl),
			ttlcache.WithDisableTouchOnHit[state.NodeId, time.Time](),
		),
		done: closedChan(),
	}
	for _, link := range links {
		if link.Id == id {
			return nil, fmt.Errorf("router %s: %w", id, state.ErrSelfNeighbor)
		}
		if err := state.CostValidator(link.Cost); err != nil {
			return nil, fmt.Errorf("router %s, neighbour %s: %w", id, link.Id, err)
		}
		r.links[link.Id] = link
		r.ifaces.Add(link.Endpoint)
	}
	return r, nil
}

func (r *Router) Id() state.NodeId {
	return r.id
}

func (r *Router) Endpoint() netip.AddrPort {
	return r.endpoint
}

func (r *Router) Running() bool {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	return r.running
}

// Start spawns the update loop. Starting a running or closed router does nothing and returns false.
// If a previous loop is still finishing its last cycle, Start waits for it first.
func (r *Router) Start() bool {
	r.starting.Lock()
	defer r.starting.Unlock()

	r.lifecycle.Lock()
	if r.running || r.closed {
		r.lifecycle.Unlock()
		return false
	}
	prev := r.done
	r.lifecycle.Unlock()
	<-prev

	r.lifecycle.Lock()
	if r.closed {
		r.lifecycle.Unlock()
		return false
	}
	ctx, cancel := context.WithCancelCause(r.env.Context)
	r.cancel = cancel
	run := uuid.New()
	r.run.Store(run)
	r.running = true
	r.done = state.Repeat(ctx, r.env.Interval, r.cycle)
	e := r.event(RouterStarted)
	r.lifecycle.Unlock()

	r.log.Info("router started", "run", run, "endpoint", r.endpoint)
	r.tracer.Trace(e)
	return true
}

// Stop cancels the update loop without waiting for it. A cycle that is already running completes;
// use Done to know when the loop has exited.
func (r *Router) Stop() bool {
	r.lifecycle.Lock()
	if !r.running {
		r.lifecycle.Unlock()
		return false
	}
	r.running = false
	r.cancel(errors.New("router stopped"))
	e := r.event(RouterStopped)
	r.lifecycle.Unlock()

	r.log.Info("router stopped", "run", e.Run)
	r.tracer.Trace(e)
	return true
}

// Done is closed once the update loop has exited. It is already closed for a router that never started.
func (r *Router) Done() <-chan struct{} {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	return r.done
}

// Close stops the router, waits for its loop and releases the transport. A closed router cannot be started again.
func (r *Router) Close() error {
	r.lifecycle.Lock()
	r.closed = true
	r.lifecycle.Unlock()
	r.Stop()
	<-r.Done()
	return r.transport.Close()
}

// SetInterfaceActive toggles the virtual interface towards the neighbour at ep.
func (r *Router) SetInterfaceActive(ep netip.AddrPort, active bool) error {
	r.mu.Lock()
	err := r.ifaces.Set(ep, active)
	peer := r.peerAt(ep)
	r.mu.Unlock()
	if err != nil {
		r.log.Warn("cannot toggle interface", "endpoint", ep, "error", err)
		return fmt.Errorf("router %s: %w", r.id, err)
	}

	r.log.Info("interface toggled", "endpoint", ep, "active", active)
	e := r.event(InterfaceToggled)
	e.Peer = peer
	e.Endpoint = ep
	e.Active = active
	r.tracer.Trace(e)
	return nil
}

func (r *Router) InterfaceActive(ep netip.AddrPort) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.ifaces.Has(ep) {
		return false, fmt.Errorf("router %s: %w: %s", r.id, state.ErrUnknownInterface, ep)
	}
	return r.ifaces.Active(ep), nil
}

// InterfaceByPort finds the interface whose peer endpoint uses port.
func (r *Router) InterfaceByPort(port uint16) (netip.AddrPort, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for ep := range r.ifaces {
		if ep.Port() == port {
			return ep, nil
		}
	}
	return netip.AddrPort{}, fmt.Errorf("router %s: %w on port %d", r.id, state.ErrUnknownInterface, port)
}

// AddNeighbor adds a link at runtime. The neighbour is seeded into the table unless a
// route that is at least as cheap already exists, and its interface starts inactive.
func (r *Router) AddNeighbor(id state.NodeId, ep netip.AddrPort, cost uint32) error {
	if err := state.NameValidator(string(id)); err != nil {
		return err
	}
	if id == r.id {
		return fmt.Errorf("router %s: %w", r.id, state.ErrSelfNeighbor)
	}
	if err := state.CostValidator(cost); err != nil {
		return fmt.Errorf("router %s, neighbour %s: %w", r.id, id, err)
	}

	r.mu.Lock()
	if _, ok := r.links[id]; ok {
		r.mu.Unlock()
		return fmt.Errorf("router %s: %w: %s", r.id, state.ErrNeighborExists, id)
	}
	r.links[id] = state.Link{Id: id, Endpoint: ep, Cost: cost}
	r.ifaces.Add(ep)
	r.table.Seed(id, cost)
	r.mu.Unlock()

	r.log.Info("neighbour added", "peer", id, "endpoint", ep, "cost", cost)
	e := r.event(NeighborAdded)
	e.Peer = id
	e.Endpoint = ep
	r.tracer.Trace(e)
	return nil
}

// Links returns the adjacencies sorted by neighbour id.
func (r *Router) Links() []state.Link {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]state.Link, 0, len(r.links))
	for _, l := range r.links {
		out = append(out, l)
	}
	state.SortLinks(out)
	return out
}

// SnapshotTable copies the routing table, ordered by destination.
func (r *Router) SnapshotTable() []state.TableEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table.Sorted()
}

// Route looks up a single destination.
func (r *Router) Route(dst state.NodeId) (state.Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table.Get(dst)
}

// NeighborHeard reports when the neighbour last sent a valid advertisement,
// as long as that happened within the last few update intervals.
func (r *Router) NeighborHeard(id state.NodeId) (time.Time, bool) {
	item := r.heard.Get(id)
	if item == nil {
		return time.Time{}, false
	}
	return item.Value(), true
}

// peerAt must be called with mu held.
func (r *Router) peerAt(ep netip.AddrPort) state.NodeId {
	for _, l := range r.links {
		if l.Endpoint == ep {
			return l.Id
		}
	}
	return ""
}

func (r *Router) event(kind EventKind) Event {
	run, _ := r.run.Load().(uuid.UUID)
	return Event{
		Kind:   kind,
		Router: r.id,
		Run:    run,
		Time:   time.Now(),
	}
}
