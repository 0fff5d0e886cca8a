package core

import (
	"bytes"
	"context"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
)

// MemNetwork delivers datagrams between in-process transports.
type MemNetwork struct {
	mu        sync.RWMutex
	endpoints map[netip.AddrPort]*MemTransport
}

func NewMemNetwork() *MemNetwork {
	return &MemNetwork{
		endpoints: make(map[netip.AddrPort]*MemTransport),
	}
}

func (n *MemNetwork) Listen(ep netip.AddrPort, inboxSize int) (*MemTransport, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.endpoints[ep]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAddrInUse, ep)
	}
	t := &MemTransport{
		net:   n,
		ep:    ep,
		inbox: newInbox(inboxSize),
	}
	n.endpoints[ep] = t
	return t, nil
}

func (n *MemNetwork) Factory() TransportFactory {
	return func(ep netip.AddrPort, inboxSize int) (Transport, error) {
		return n.Listen(ep, inboxSize)
	}
}

func (n *MemNetwork) lookup(ep netip.AddrPort) (*MemTransport, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	t, ok := n.endpoints[ep]
	return t, ok
}

type MemTransport struct {
	net    *MemNetwork
	ep     netip.AddrPort
	inbox  *inbox
	closed atomic.Bool
}

func (t *MemTransport) LocalEndpoint() netip.AddrPort {
	return t.ep
}

// Send queues the payload on the destination. A full destination inbox drops the datagram silently.
func (t *MemTransport) Send(ctx context.Context, to netip.AddrPort, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.closed.Load() {
		return ErrClosed
	}
	dst, ok := t.net.lookup(to)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnreachable, to)
	}
	dst.inbox.push(Datagram{From: t.ep, Payload: bytes.Clone(payload)})
	return nil
}

func (t *MemTransport) TryReceive() (Datagram, bool) {
	return t.inbox.pop()
}

// Pending is the number of queued datagrams.
func (t *MemTransport) Pending() int {
	return t.inbox.len()
}

func (t *MemTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	if t.net.endpoints[t.ep] == t {
		delete(t.net.endpoints, t.ep)
	}
	return nil
}
