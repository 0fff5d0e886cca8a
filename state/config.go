package state

import (
	"fmt"
	"net/netip"
	"os"
	"slices"

	"github.com/goccy/go-yaml"
)

// NeighborCfg is written as a [port, cost] pair in topology files.
type NeighborCfg struct {
	Port uint16
	Cost uint32
}

func (n NeighborCfg) MarshalYAML() (any, error) {
	return []uint32{uint32(n.Port), n.Cost}, nil
}

func (n *NeighborCfg) UnmarshalYAML(unmarshal func(any) error) error {
	var vals []int64
	if err := unmarshal(&vals); err != nil {
		return err
	}
	if len(vals) != 2 {
		return fmt.Errorf("neighbour must be a [port, cost] pair, got %d values", len(vals))
	}
	if vals[0] <= 0 || vals[0] > 65535 {
		return fmt.Errorf("neighbour port %d is out of range", vals[0])
	}
	if vals[1] < 0 || vals[1] >= int64(Infinity) {
		return fmt.Errorf("neighbour cost %d is out of range", vals[1])
	}
	n.Port = uint16(vals[0])
	n.Cost = uint32(vals[1])
	return nil
}

type RouterCfg struct {
	Port      uint16                 `yaml:"port"`
	Neighbors map[NodeId]NeighborCfg `yaml:"neighbors"`
}

// TopologyCfg describes every router of a simulated network.
type TopologyCfg struct {
	Settings Settings             `yaml:"settings,omitempty"`
	Routers  map[NodeId]RouterCfg `yaml:"routers"`
}

// ParseTopology accepts either the full form ({settings, routers}) or the
// flat form where the document is just a map of router id to router config.
// JSON documents are accepted as well.
func ParseTopology(data []byte) (*TopologyCfg, error) {
	var probe map[string]any
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	cfg := &TopologyCfg{}
	if _, ok := probe["routers"]; ok {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg.Routers); err != nil {
			return nil, err
		}
	}
	if cfg.Routers == nil {
		cfg.Routers = make(map[NodeId]RouterCfg)
	}
	return cfg, nil
}

func LoadTopology(path string) (*TopologyCfg, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := ParseTopology(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

func MarshalTopology(cfg *TopologyCfg) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Host returns the address every router binds to.
func (c *TopologyCfg) Host() netip.Addr {
	addr, err := netip.ParseAddr(c.Settings.Host)
	if err != nil {
		return DefaultHost
	}
	return addr
}

func (c *TopologyCfg) Endpoint(port uint16) netip.AddrPort {
	return netip.AddrPortFrom(c.Host(), port)
}

// RouterIds returns every router id in sorted order.
func (c *TopologyCfg) RouterIds() []NodeId {
	ids := make([]NodeId, 0, len(c.Routers))
	for id := range c.Routers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Links resolves the neighbours of a router into links.
func (c *TopologyCfg) Links(id NodeId) ([]Link, error) {
	rcfg, ok := c.Routers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRouter, id)
	}
	links := make([]Link, 0, len(rcfg.Neighbors))
	for neigh, ncfg := range rcfg.Neighbors {
		links = append(links, Link{
			Id:       neigh,
			Endpoint: c.Endpoint(ncfg.Port),
			Cost:     ncfg.Cost,
			Static:   true,
		})
	}
	SortLinks(links)
	return links, nil
}

// SampleTopology returns the five router network used by `dvsim init`.
func SampleTopology() *TopologyCfg {
	edge := func(port uint16, cost uint32) NeighborCfg {
		return NeighborCfg{Port: port, Cost: cost}
	}
	return &TopologyCfg{
		Settings: Settings{
			Host:     DefaultHost.String(),
			Interval: UpdateInterval,
		},
		Routers: map[NodeId]RouterCfg{
			"R10": {Port: 5010, Neighbors: map[NodeId]NeighborCfg{
				"R20": edge(5020, 1),
				"R30": edge(5030, 3),
			}},
			"R20": {Port: 5020, Neighbors: map[NodeId]NeighborCfg{
				"R10": edge(5010, 1),
				"R40": edge(5040, 2),
				"R50": edge(5050, 4),
			}},
			"R30": {Port: 5030, Neighbors: map[NodeId]NeighborCfg{
				"R10": edge(5010, 3),
				"R40": edge(5040, 1),
			}},
			"R40": {Port: 5040, Neighbors: map[NodeId]NeighborCfg{
				"R20": edge(5020, 2),
				"R30": edge(5030, 1),
				"R50": edge(5050, 1),
			}},
			"R50": {Port: 5050, Neighbors: map[NodeId]NeighborCfg{
				"R20": edge(5020, 4),
				"R40": edge(5040, 1),
			}},
		},
	}
}
