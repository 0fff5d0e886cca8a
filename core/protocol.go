package core

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/encodeous/dvsim/state"
)

// Advertisement is the datagram a router sends to its neighbours every cycle.
type Advertisement struct {
	Sender state.NodeId               `json:"sender"`
	Table  map[state.NodeId]wireRoute `json:"routing_table"`
}

// wireRoute is encoded as a [cost, next hop] pair.
type wireRoute state.Route

func (w wireRoute) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{w.Cost, w.NextHop})
}

func (w *wireRoute) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("route must be a [cost, next hop] pair, got %d values", len(pair))
	}
	if err := json.Unmarshal(pair[0], &w.Cost); err != nil {
		return fmt.Errorf("route cost: %w", err)
	}
	if err := json.Unmarshal(pair[1], &w.NextHop); err != nil {
		return fmt.Errorf("route next hop: %w", err)
	}
	return nil
}

func NewAdvertisement(sender state.NodeId, routes map[state.NodeId]state.Route) Advertisement {
	tbl := make(map[state.NodeId]wireRoute, len(routes))
	for dst, r := range routes {
		tbl[dst] = wireRoute(r)
	}
	return Advertisement{Sender: sender, Table: tbl}
}

// Routes converts the advertised table back into routes.
func (a Advertisement) Routes() map[state.NodeId]state.Route {
	out := make(map[state.NodeId]state.Route, len(a.Table))
	for dst, r := range a.Table {
		out[dst] = state.Route(r)
	}
	return out
}

func EncodeAdvertisement(a Advertisement) ([]byte, error) {
	return json.Marshal(a)
}

func DecodeAdvertisement(data []byte) (Advertisement, error) {
	var a Advertisement
	if err := json.Unmarshal(data, &a); err != nil {
		return Advertisement{}, err
	}
	if a.Sender == "" {
		return Advertisement{}, errors.New("advertisement has no sender")
	}
	if a.Table == nil {
		return Advertisement{}, errors.New("advertisement has no routing table")
	}
	return a, nil
}
