package core

import "errors"

var (
	ErrNotLoaded   = errors.New("no routers loaded, use load_config first")
	ErrUnreachable = errors.New("destination unreachable")
	ErrAddrInUse   = errors.New("address already in use")
	ErrClosed      = errors.New("transport closed")
	errQuit        = errors.New("quit")
)
