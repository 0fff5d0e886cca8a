package core

import (
	"context"
	"time"

	"github.com/encodeous/dvsim/perf"
	"github.com/encodeous/dvsim/state"
	"github.com/jellydator/ttlcache/v3"
)

// cycle is one iteration of the update loop: advertise, then drain the inbox.
func (r *Router) cycle(ctx context.Context) {
	start := time.Now()
	r.sendAdvertisements(ctx)
	r.receiveAdvertisements()
	perf.CycleLatency.Add(float64(time.Since(start).Microseconds()))
}

// sendAdvertisements sends the current table to every neighbour whose interface is active.
func (r *Router) sendAdvertisements(ctx context.Context) {
	r.mu.RLock()
	snapshot := r.table.Snapshot()
	links := make([]state.Link, 0, len(r.links))
	active := make(map[state.NodeId]bool, len(r.links))
	for id, l := range r.links {
		links = append(links, l)
		active[id] = r.ifaces.Active(l.Endpoint)
	}
	r.mu.RUnlock()
	state.SortLinks(links)

	payload, err := EncodeAdvertisement(NewAdvertisement(r.id, snapshot))
	if err != nil {
		r.log.Error("failed to encode advertisement", "error", err)
		return
	}

	for _, l := range links {
		e := r.event(AdvertSent)
		e.Peer = l.Id
		e.Endpoint = l.Endpoint
		if !active[l.Id] {
			r.log.Debug("interface is inactive, skipping", "peer", l.Id, "endpoint", l.Endpoint)
			perf.AdvertsSkipped.Add(1)
			e.Kind = AdvertSkipped
			r.tracer.Trace(e)
			continue
		}
		r.log.Debug("sending routing table", "peer", l.Id, "endpoint", l.Endpoint)
		if err := r.transport.Send(ctx, l.Endpoint, payload); err != nil {
			r.log.Warn("failed to send routing table", "peer", l.Id, "endpoint", l.Endpoint, "error", err)
			perf.SendErrors.Add(1)
			e.Kind = SendFailed
			e.Err = err
			r.tracer.Trace(e)
			continue
		}
		perf.AdvertsSent.Add(1)
		r.tracer.Trace(e)
	}
}

// receiveAdvertisements drains up to ReceivePerCycle datagrams. With ReceivePerCycle <= 0 the
// whole inbox is drained, capped at the inbox size so that a flood cannot stall the loop.
func (r *Router) receiveAdvertisements() {
	limit := r.env.ReceivePerCycle
	if limit <= 0 {
		limit = r.env.InboxSize
	}
	for range limit {
		dg, ok := r.transport.TryReceive()
		if !ok {
			return
		}
		r.handleDatagram(dg)
	}
}

func (r *Router) handleDatagram(dg Datagram) {
	adv, err := DecodeAdvertisement(dg.Payload)
	if err != nil {
		r.log.Warn("discarding malformed advertisement", "from", dg.From, "error", err)
		perf.DecodeErrors.Add(1)
		e := r.event(MessageDropped)
		e.Endpoint = dg.From
		e.Err = err
		r.tracer.Trace(e)
		return
	}

	r.mu.Lock()
	link, ok := r.links[adv.Sender]
	var changed []state.NodeId
	var entries []state.TableEntry
	if ok {
		changed = r.table.Merge(adv.Sender, link.Cost, adv.Routes())
		entries = make([]state.TableEntry, 0, len(changed))
		for _, dst := range changed {
			route, _ := r.table.Get(dst)
			entries = append(entries, state.TableEntry{Dest: dst, Route: route})
		}
	}
	r.mu.Unlock()

	if !ok {
		r.log.Warn("discarding advertisement from unknown neighbour", "peer", adv.Sender, "from", dg.From)
		perf.UnknownSenders.Add(1)
		e := r.event(MessageDropped)
		e.Peer = adv.Sender
		e.Endpoint = dg.From
		e.Err = state.ErrUnknownNeighbor
		r.tracer.Trace(e)
		return
	}

	r.heard.Set(adv.Sender, time.Now(), ttlcache.DefaultTTL)
	perf.AdvertsReceived.Add(1)
	r.log.Debug("received routing table", "peer", adv.Sender, "routes", len(adv.Table))
	e := r.event(AdvertReceived)
	e.Peer = adv.Sender
	e.Endpoint = dg.From
	r.tracer.Trace(e)

	if len(changed) == 0 {
		return
	}
	perf.TableUpdates.Add(1)
	r.log.Info("routing table updated", "peer", adv.Sender, "changed", len(changed))
	e = r.event(TableUpdated)
	e.Peer = adv.Sender
	e.Changed = entries
	r.tracer.Trace(e)
}
