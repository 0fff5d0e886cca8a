package core

import (
	"context"
	"net/netip"

	"github.com/encodeous/dvsim/perf"
)

type Datagram struct {
	From    netip.AddrPort
	Payload []byte
}

// Transport is a datagram channel bound to a local endpoint.
// Delivery is best-effort, unordered and unacknowledged.
type Transport interface {
	LocalEndpoint() netip.AddrPort
	Send(ctx context.Context, to netip.AddrPort, payload []byte) error
	// TryReceive never blocks. It returns at most one queued datagram.
	TryReceive() (Datagram, bool)
	Close() error
}

type TransportFactory func(ep netip.AddrPort, inboxSize int) (Transport, error)

// inbox is the bounded queue of datagrams waiting for the next cycle.
// Datagrams that arrive while it is full are dropped.
type inbox struct {
	ch chan Datagram
}

func newInbox(size int) *inbox {
	return &inbox{ch: make(chan Datagram, max(size, 1))}
}

func (i *inbox) push(dg Datagram) bool {
	select {
	case i.ch <- dg:
		return true
	default:
		perf.InboxDropped.Add(1)
		return false
	}
}

func (i *inbox) pop() (Datagram, bool) {
	select {
	case dg := <-i.ch:
		return dg, true
	default:
		return Datagram{}, false
	}
}

func (i *inbox) len() int {
	return len(i.ch)
}
