package state

import (
	"fmt"
	"net/netip"
	"regexp"
)

var namePattern, _ = regexp.Compile("^[0-9A-Za-z._-]+$")

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(\"%s\") = %d > 100 is too long", s, len(s))
	}
	return nil
}

func CostValidator(cost uint32) error {
	if cost == 0 || cost == Infinity {
		return fmt.Errorf("%w, got %d", ErrInvalidCost, cost)
	}
	return nil
}

func TopologyValidator(cfg *TopologyCfg) error {
	if cfg.Settings.Host != "" {
		if _, err := netip.ParseAddr(cfg.Settings.Host); err != nil {
			return fmt.Errorf("settings.host: %w", err)
		}
	}
	if cfg.Settings.Interval < 0 {
		return fmt.Errorf("settings.interval must not be negative")
	}
	if cfg.Settings.ReceivePerCycle < DrainInbox {
		return fmt.Errorf("settings.receive_per_cycle must be %d or more", DrainInbox)
	}
	if cfg.Settings.InboxSize < 0 {
		return fmt.Errorf("settings.inbox_size must not be negative")
	}
	if len(cfg.Routers) == 0 {
		return fmt.Errorf("topology does not define any routers")
	}

	ports := make(map[uint16]NodeId)
	for _, id := range cfg.RouterIds() {
		rcfg := cfg.Routers[id]
		if err := NameValidator(string(id)); err != nil {
			return err
		}
		if rcfg.Port == 0 {
			return fmt.Errorf("router %s: port must be set", id)
		}
		if other, ok := ports[rcfg.Port]; ok {
			return fmt.Errorf("router %s: port %d is already used by %s", id, rcfg.Port, other)
		}
		ports[rcfg.Port] = id
	}

	for _, id := range cfg.RouterIds() {
		rcfg := cfg.Routers[id]
		for neigh, ncfg := range rcfg.Neighbors {
			if err := NameValidator(string(neigh)); err != nil {
				return err
			}
			if neigh == id {
				return fmt.Errorf("router %s: %w", id, ErrSelfNeighbor)
			}
			if err := CostValidator(ncfg.Cost); err != nil {
				return fmt.Errorf("router %s, neighbour %s: %w", id, neigh, err)
			}
			if ncfg.Port == rcfg.Port {
				return fmt.Errorf("router %s, neighbour %s: port %d is the router's own port", id, neigh, ncfg.Port)
			}
			if peer, ok := cfg.Routers[neigh]; ok && peer.Port != ncfg.Port {
				return fmt.Errorf("router %s, neighbour %s: port %d does not match %s's port %d", id, neigh, ncfg.Port, neigh, peer.Port)
			}
		}
	}
	return nil
}
