package state

import "errors"

var (
	ErrUnknownRouter    = errors.New("router not found")
	ErrUnknownInterface = errors.New("no such interface")
	ErrUnknownNeighbor  = errors.New("no such neighbour")
	ErrNeighborExists   = errors.New("neighbour already exists")
	ErrSelfNeighbor     = errors.New("a router cannot neighbour itself")
	ErrInvalidCost      = errors.New("link cost must be positive")
)
