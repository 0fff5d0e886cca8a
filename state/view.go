package state

import "net/netip"

// NetworkView is a read-only snapshot of a network for renderers.
type NetworkView struct {
	Nodes []NodeView
}

type NodeView struct {
	Id       NodeId
	Running  bool
	Endpoint netip.AddrPort
	Edges    []EdgeView
	Table    []TableEntry
}

type EdgeView struct {
	Peer     NodeId
	Endpoint netip.AddrPort
	Cost     uint32
	// Active is true when the interface is up and the peer is running.
	Active bool
}

func (v NetworkView) Node(id NodeId) (NodeView, bool) {
	for _, n := range v.Nodes {
		if n.Id == id {
			return n, true
		}
	}
	return NodeView{}, false
}
