package core

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/netip"
	"sync/atomic"

	"github.com/encodeous/dvsim/state"
)

// UDPTransport binds a real UDP socket. A reader goroutine moves datagrams into the inbox.
type UDPTransport struct {
	conn   *net.UDPConn
	ep     netip.AddrPort
	inbox  *inbox
	closed atomic.Bool
	done   chan struct{}
}

func ListenUDP(ep netip.AddrPort, inboxSize int) (*UDPTransport, error) {
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(ep))
	if err != nil {
		return nil, err
	}
	local := conn.LocalAddr().(*net.UDPAddr).AddrPort()
	t := &UDPTransport{
		conn:  conn,
		ep:    netip.AddrPortFrom(local.Addr().Unmap(), local.Port()),
		inbox: newInbox(inboxSize),
		done:  make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

// UDPFactory opens a UDPTransport for every router.
func UDPFactory(ep netip.AddrPort, inboxSize int) (Transport, error) {
	return ListenUDP(ep, inboxSize)
}

func (t *UDPTransport) readLoop() {
	defer close(t.done)
	buf := make([]byte, state.MaxDatagram)
	for {
		n, from, err := t.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || t.closed.Load() {
				return
			}
			continue
		}
		from = netip.AddrPortFrom(from.Addr().Unmap(), from.Port())
		t.inbox.push(Datagram{From: from, Payload: bytes.Clone(buf[:n])})
	}
}

func (t *UDPTransport) LocalEndpoint() netip.AddrPort {
	return t.ep
}

func (t *UDPTransport) Send(ctx context.Context, to netip.AddrPort, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.closed.Load() {
		return ErrClosed
	}
	_, err := t.conn.WriteToUDPAddrPort(payload, to)
	return err
}

func (t *UDPTransport) TryReceive() (Datagram, bool) {
	return t.inbox.pop()
}

func (t *UDPTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	err := t.conn.Close()
	<-t.done
	return err
}
