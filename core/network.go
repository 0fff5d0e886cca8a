package core

import (
	"cmp"
	"errors"
	"fmt"
	"net/netip"
	"slices"

	"github.com/encodeous/dvsim/state"
)

// Network is the set of routers built from one topology. It is what the shell and
// the renderer talk to; the routers themselves know nothing about it.
type Network struct {
	env     *state.Env
	cfg     *state.TopologyCfg
	trace   *Trace
	routers map[state.NodeId]*Router
}

func NewNetwork(env *state.Env, cfg *state.TopologyCfg, factory TransportFactory) (*Network, error) {
	if err := state.TopologyValidator(cfg); err != nil {
		return nil, err
	}
	n := &Network{
		env:     env,
		cfg:     cfg,
		trace:   NewTrace(),
		routers: make(map[state.NodeId]*Router),
	}
	for _, id := range cfg.RouterIds() {
		links, err := cfg.Links(id)
		if err != nil {
			return nil, errors.Join(err, n.Close())
		}
		ep := cfg.Endpoint(cfg.Routers[id].Port)
		transport, err := factory(ep, env.InboxSize)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("router %s: %w", id, err), n.Close())
		}
		r, err := NewRouter(env, id, ep, links, transport, n.trace)
		if err != nil {
			return nil, errors.Join(err, transport.Close(), n.Close())
		}
		n.routers[id] = r
	}
	env.Log.Info("network loaded", "routers", len(n.routers))
	return n, nil
}

func (n *Network) Trace() *Trace {
	return n.trace
}

func (n *Network) Config() *state.TopologyCfg {
	return n.cfg
}

func (n *Network) Router(id state.NodeId) (*Router, error) {
	r, ok := n.routers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", state.ErrUnknownRouter, id)
	}
	return r, nil
}

// Routers returns every router sorted by id.
func (n *Network) Routers() []*Router {
	out := make([]*Router, 0, len(n.routers))
	for _, r := range n.routers {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b *Router) int {
		return cmp.Compare(a.id, b.id)
	})
	return out
}

func (n *Network) StartRouter(id state.NodeId) error {
	r, err := n.Router(id)
	if err != nil {
		return err
	}
	r.Start()
	return nil
}

func (n *Network) StopRouter(id state.NodeId) error {
	r, err := n.Router(id)
	if err != nil {
		return err
	}
	r.Stop()
	return nil
}

func (n *Network) StartAll() error {
	if len(n.routers) == 0 {
		return ErrNotLoaded
	}
	for _, r := range n.Routers() {
		r.Start()
	}
	return nil
}

func (n *Network) StopAll() error {
	if len(n.routers) == 0 {
		return ErrNotLoaded
	}
	for _, r := range n.Routers() {
		r.Stop()
	}
	return nil
}

// SetInterface toggles the interface of router id that points at ep.
func (n *Network) SetInterface(id state.NodeId, ep netip.AddrPort, active bool) error {
	r, err := n.Router(id)
	if err != nil {
		return err
	}
	return r.SetInterfaceActive(ep, active)
}

// SetAllInterfaces toggles every interface of one router.
func (n *Network) SetAllInterfaces(id state.NodeId, active bool) error {
	r, err := n.Router(id)
	if err != nil {
		return err
	}
	for _, l := range r.Links() {
		if err := r.SetInterfaceActive(l.Endpoint, active); err != nil {
			return err
		}
	}
	return nil
}

// SetEveryInterface toggles every interface of every router.
func (n *Network) SetEveryInterface(active bool) error {
	if len(n.routers) == 0 {
		return ErrNotLoaded
	}
	for _, r := range n.Routers() {
		if err := n.SetAllInterfaces(r.id, active); err != nil {
			return err
		}
	}
	return nil
}

func (n *Network) AddNeighbor(id, peer state.NodeId, ep netip.AddrPort, cost uint32) error {
	r, err := n.Router(id)
	if err != nil {
		return err
	}
	return r.AddNeighbor(peer, ep, cost)
}

// View snapshots the network for renderers. An edge is active when the interface is up
// and the peer router is running.
func (n *Network) View() state.NetworkView {
	view := state.NetworkView{}
	for _, r := range n.Routers() {
		node := state.NodeView{
			Id:       r.id,
			Running:  r.Running(),
			Endpoint: r.endpoint,
			Table:    r.SnapshotTable(),
		}
		for _, l := range r.Links() {
			up, _ := r.InterfaceActive(l.Endpoint)
			peer, ok := n.routers[l.Id]
			node.Edges = append(node.Edges, state.EdgeView{
				Peer:     l.Id,
				Endpoint: l.Endpoint,
				Cost:     l.Cost,
				Active:   up && ok && peer.Running(),
			})
		}
		view.Nodes = append(view.Nodes, node)
	}
	return view
}

// Close stops every router, waits for their loops and releases the transports.
func (n *Network) Close() error {
	var errs []error
	for _, r := range n.Routers() {
		errs = append(errs, r.Close())
	}
	errs = append(errs, n.trace.Close())
	return errors.Join(errs...)
}
