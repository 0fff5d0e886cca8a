package state

import (
	"net/netip"
	"time"
)

const (
	Infinity = ^(uint32)(0)
	// DrainInbox asks for the whole inbox each cycle. Unlike 0 it is not treated as unset by Override.
	DrainInbox = -1
)

var (
	// UpdateInterval is the period between two advertisement cycles.
	UpdateInterval = time.Second * 30
	// ReceivePerCycle bounds how many datagrams a cycle drains. 0 or DrainInbox drain the whole inbox.
	ReceivePerCycle = 0
	InboxSize       = 64
	// MaxDatagram is the receive buffer size of the UDP transport.
	MaxDatagram = 64 * 1024
	// HeardWindow is how many update intervals a neighbour counts as recently heard.
	HeardWindow = 3

	DefaultHost       = netip.MustParseAddr("127.0.0.1")
	DefaultConfigPath = "config.yaml"
	DefaultLogPath    = "router.log"
)
