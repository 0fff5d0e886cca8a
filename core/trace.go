package core

import (
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-broadcast"
	"github.com/encodeous/dvsim/state"
	"github.com/google/uuid"
)

type EventKind int

// lifecycle events

const (
	RouterStarted EventKind = iota
	RouterStopped
	InterfaceToggled
	NeighborAdded
)

// protocol events

const (
	AdvertSent EventKind = iota + 100
	AdvertSkipped
	AdvertReceived
	TableUpdated
)

// failures

const (
	SendFailed EventKind = iota + 1000
	MessageDropped
)

func (k EventKind) String() string {
	switch k {
	case RouterStarted:
		return "router started"
	case RouterStopped:
		return "router stopped"
	case InterfaceToggled:
		return "interface toggled"
	case NeighborAdded:
		return "neighbour added"
	case AdvertSent:
		return "advertisement sent"
	case AdvertSkipped:
		return "advertisement skipped"
	case AdvertReceived:
		return "advertisement received"
	case TableUpdated:
		return "table updated"
	case SendFailed:
		return "send failed"
	case MessageDropped:
		return "message dropped"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is emitted by a router whenever something observable happens.
// Renderers decide how to present it.
type Event struct {
	Kind     EventKind
	Router   state.NodeId
	Run      uuid.UUID
	Peer     state.NodeId
	Endpoint netip.AddrPort
	Active   bool
	Changed  []state.TableEntry
	Err      error
	Time     time.Time
}

// Attrs returns the event fields as slog key value pairs.
func (e Event) Attrs() []any {
	args := []any{"router", e.Router}
	if e.Peer != "" {
		args = append(args, "peer", e.Peer)
	}
	if e.Endpoint.IsValid() {
		args = append(args, "endpoint", e.Endpoint)
	}
	if e.Kind == InterfaceToggled {
		args = append(args, "active", e.Active)
	}
	if len(e.Changed) != 0 {
		changes := make([]string, 0, len(e.Changed))
		for _, c := range e.Changed {
			changes = append(changes, fmt.Sprintf("%s=%d/%s", c.Dest, c.Cost, c.NextHop))
		}
		args = append(args, "changed", strings.Join(changes, ","))
	}
	if e.Err != nil {
		args = append(args, "error", e.Err)
	}
	return args
}

func (e Event) String() string {
	sb := strings.Builder{}
	sb.WriteString(e.Kind.String())
	args := e.Attrs()
	for i := 0; i+1 < len(args); i += 2 {
		sb.WriteString(fmt.Sprintf(" %v=%v", args[i], args[i+1]))
	}
	return sb.String()
}

type Tracer interface {
	Trace(e Event)
}

type nopTracer struct{}

func (nopTracer) Trace(Event) {}

// Trace fans events out to every subscriber.
type Trace struct {
	mu     sync.RWMutex
	b      broadcast.Broadcaster
	subs   map[*subscription]struct{}
	closed bool
}

type subscription struct {
	ch   chan interface{}
	stop chan struct{}
	done chan struct{}
}

func NewTrace() *Trace {
	return &Trace{
		b:    broadcast.NewBroadcaster(1024),
		subs: make(map[*subscription]struct{}),
	}
}

func (t *Trace) Trace(e Event) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	t.b.Submit(e)
}

// Subscribe calls fn for every event until the returned function is called.
// fn runs on its own goroutine.
func (t *Trace) Subscribe(fn func(Event)) func() {
	sub := &subscription{
		ch:   make(chan interface{}, 64),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return func() {}
	}
	t.subs[sub] = struct{}{}
	t.b.Register(sub.ch)
	t.mu.Unlock()

	go func() {
		defer close(sub.done)
		for {
			select {
			case m := <-sub.ch:
				if e, ok := m.(Event); ok {
					fn(e)
				}
			case <-sub.stop:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if _, ok := t.subs[sub]; !ok || t.closed {
				return
			}
			delete(t.subs, sub)
			t.unsubscribe(sub)
		})
	}
}

// unsubscribe must be called with t.mu held and the broadcaster still open.
func (t *Trace) unsubscribe(sub *subscription) {
	close(sub.stop)
	<-sub.done
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for range sub.ch {
		}
	}()
	t.b.Unregister(sub.ch)
	close(sub.ch)
	<-drained
}

func (t *Trace) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	for sub := range t.subs {
		t.unsubscribe(sub)
	}
	t.subs = nil
	t.closed = true
	return t.b.Close()
}
