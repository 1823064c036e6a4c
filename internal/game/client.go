// Package game implements the connection state machine on top of a
// rakpeer.Peer: MCPE login, per-packet dispatch, and the broadcast fan-out
// every logged-in client participates in.
package game

import (
	"net/netip"
	"sync"

	"github.com/nostalgia-server/nostalgia/internal/mcpe"
)

// client tracks the game-layer state the Hub keeps for one logged-in
// connection — the position/name bookkeeping a real player entity would
// own, trimmed to what the handler table in this package actually reads.
type client struct {
	id       uint32
	remote   netip.AddrPort
	username string

	mu       sync.Mutex
	position mcpe.Vector3
}

func (c *client) setPosition(pos mcpe.Vector3) {
	c.mu.Lock()
	c.position = pos
	c.mu.Unlock()
}

func (c *client) getPosition() mcpe.Vector3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}
