package state

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"
)

type NodeId string

// Route is the best known path to a destination.
type Route struct {
	Cost    uint32
	NextHop NodeId
}

func (r Route) String() string {
	return fmt.Sprintf("(cost: %d, nh: %s)", r.Cost, r.NextHop)
}

// TableEntry is a Route tagged with its destination, used for ordered display.
type TableEntry struct {
	Dest NodeId
	Route
}

// RoutingTable maps destinations to the cheapest route seen so far.
// It is not safe for concurrent use; the owning router serializes access.
type RoutingTable struct {
	self   NodeId
	routes map[NodeId]Route
}

func NewRoutingTable(self NodeId) *RoutingTable {
	return &RoutingTable{
		self: self,
		routes: map[NodeId]Route{
			self: {Cost: 0, NextHop: self},
		},
	}
}

func (t *RoutingTable) Self() NodeId {
	return t.self
}

func (t *RoutingTable) Get(dst NodeId) (Route, bool) {
	r, ok := t.routes[dst]
	return r, ok
}

func (t *RoutingTable) Len() int {
	return len(t.routes)
}

// Seed installs a route to a directly connected neighbour unless an equal or cheaper one exists.
func (t *RoutingTable) Seed(neigh NodeId, cost uint32) bool {
	if neigh == t.self {
		return false
	}
	if cur, ok := t.routes[neigh]; ok && cur.Cost <= cost {
		return false
	}
	t.routes[neigh] = Route{Cost: cost, NextHop: neigh}
	return true
}

// Merge applies the Bellman-Ford rule to a table advertised by neigh over a link of linkCost.
// A destination is replaced only when the candidate is strictly cheaper, so ties keep the
// existing next hop. Routes are never removed or made more expensive.
// The returned slice holds the changed destinations in sorted order.
func (t *RoutingTable) Merge(neigh NodeId, linkCost uint32, adv map[NodeId]Route) []NodeId {
	changed := make([]NodeId, 0)
	for dst, theirs := range adv {
		if dst == t.self {
			continue
		}
		candidate := AddCost(linkCost, theirs.Cost)
		cur, ok := t.routes[dst]
		if !ok || candidate < cur.Cost {
			t.routes[dst] = Route{Cost: candidate, NextHop: neigh}
			changed = append(changed, dst)
		}
	}
	slices.Sort(changed)
	return changed
}

// Snapshot returns a copy that is safe to read while the table keeps changing.
func (t *RoutingTable) Snapshot() map[NodeId]Route {
	return maps.Clone(t.routes)
}

// Sorted returns the entries ordered by destination.
func (t *RoutingTable) Sorted() []TableEntry {
	return SortedEntries(t.routes)
}

func SortedEntries(routes map[NodeId]Route) []TableEntry {
	out := make([]TableEntry, 0, len(routes))
	for dst, r := range routes {
		out = append(out, TableEntry{Dest: dst, Route: r})
	}
	slices.SortFunc(out, func(a, b TableEntry) int {
		return cmp.Compare(a.Dest, b.Dest)
	})
	return out
}

func (t *RoutingTable) String() string {
	sb := strings.Builder{}
	for i, e := range t.Sorted() {
		if i != 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("%s via %s", e.Dest, e.Route))
	}
	return sb.String()
}

// AddCost adds two costs, saturating at Infinity.
func AddCost(a, b uint32) uint32 {
	if a == Infinity || b == Infinity {
		return Infinity
	}
	return uint32(min(uint64(Infinity), uint64(a)+uint64(b)))
}
