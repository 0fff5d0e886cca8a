package state

import (
	"cmp"
	"fmt"
	"net/netip"
	"slices"
)

// Link is a static description of one adjacency.
type Link struct {
	Id       NodeId
	Endpoint netip.AddrPort
	Cost     uint32
	// Static is true for links that came from the topology file and false for links added at runtime.
	Static bool
}

func (l Link) String() string {
	return fmt.Sprintf("%s@%s (cost: %d)", l.Id, l.Endpoint, l.Cost)
}

func SortLinks(links []Link) {
	slices.SortFunc(links, func(a, b Link) int {
		return cmp.Compare(a.Id, b.Id)
	})
}

// Interfaces holds the virtual interface state of every link, keyed by the peer endpoint.
// It is independent of the routing table: an inactive interface only stops outgoing advertisements.
type Interfaces map[netip.AddrPort]bool

// Add registers an inactive interface. Existing interfaces keep their state.
func (i Interfaces) Add(ep netip.AddrPort) {
	if _, ok := i[ep]; !ok {
		i[ep] = false
	}
}

func (i Interfaces) Set(ep netip.AddrPort, active bool) error {
	if _, ok := i[ep]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownInterface, ep)
	}
	i[ep] = active
	return nil
}

// Active reports false for endpoints that were never registered.
func (i Interfaces) Active(ep netip.AddrPort) bool {
	return i[ep]
}

func (i Interfaces) Has(ep netip.AddrPort) bool {
	_, ok := i[ep]
	return ok
}
