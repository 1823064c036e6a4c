package game

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/nostalgia-server/nostalgia/internal/mcpe"
	"github.com/nostalgia-server/nostalgia/internal/raknet"
)

// broadcastQueueSize matches the 64-entry bound the original engine gives
// its broadcast channel — wider than the 16-entry per-peer data channels
// since one entry here fans out to every connected client.
const broadcastQueueSize = 64

// broadcastEntry is one queued fan-out: pkt goes to every client except the
// one named by excludeClientID, unless excludeClientID is nil.
type broadcastEntry struct {
	excludeClientID *uint32
	pkt             mcpe.Packet
}

// Hub holds every logged-in client and the single dispatcher goroutine that
// drains the broadcast queue, serializing each entry once and fanning it out
// — the "server broadcast channel" the connection handler table assumes.
type Hub struct {
	log zerolog.Logger

	mu      sync.RWMutex
	clients map[uint32]*client
	sender  map[uint32]peerSender

	broadcast chan broadcastEntry
	done      chan struct{}

	syntheticEntityID atomic.Uint32
}

// peerSender is the subset of rakpeer.Peer the Hub needs, kept narrow so
// tests can fan out to a fake.
type peerSender interface {
	Send(reliability raknet.Reliability, payload []byte) error
}

func NewHub(log zerolog.Logger) *Hub {
	h := &Hub{
		log:       log.With().Str("component", "game.Hub").Logger(),
		clients:   make(map[uint32]*client),
		sender:    make(map[uint32]peerSender),
		broadcast: make(chan broadcastEntry, broadcastQueueSize),
		done:      make(chan struct{}),
	}
	h.syntheticEntityID.Store(1_000_000) // clear of any real player entity id
	go h.dispatchLoop()
	return h
}

// NextSyntheticEntityID hands out an id for a server-authored entity (the
// demo chicken spawned on MovePlayer, for instance) that won't collide with
// a real player's client id.
func (h *Hub) NextSyntheticEntityID() int32 {
	return int32(h.syntheticEntityID.Add(1))
}

// register adds c to the client table, keyed by its own id, storing the same
// pointer the caller keeps — so a later client reads back whatever position
// the caller's own setPosition calls wrote, rather than a second, permanently
// stale copy.
func (h *Hub) register(c *client, sender peerSender) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.sender[c.id] = sender
	h.mu.Unlock()
}

func (h *Hub) unregister(id uint32) {
	h.mu.Lock()
	delete(h.clients, id)
	delete(h.sender, id)
	h.mu.Unlock()
}

// client returns the live client record registered under id, the one its
// Handler mutates directly — used by handleAnimate's Explode side effect to
// read a client's position back from the Hub.
func (h *Hub) client(id uint32) (*client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	return c, ok
}

// Broadcast queues pkt for delivery to every client except excludeClientID
// (pass nil to include everyone, including the origin). A full queue drops
// the entry rather than blocking the caller.
func (h *Hub) Broadcast(excludeClientID *uint32, pkt mcpe.Packet) {
	select {
	case h.broadcast <- broadcastEntry{excludeClientID: excludeClientID, pkt: pkt}:
	default:
		h.log.Warn().Msg("broadcast queue full, dropping entry")
	}
}

func (h *Hub) dispatchLoop() {
	defer close(h.done)
	for entry := range h.broadcast {
		payload := entry.pkt.Serialize()

		h.mu.RLock()
		for id, send := range h.sender {
			if entry.excludeClientID != nil && id == *entry.excludeClientID {
				continue
			}
			if err := send.Send(raknet.Reliable, payload); err != nil {
				h.log.Debug().Err(err).Uint32("client", id).Msg("broadcast send failed")
			}
		}
		h.mu.RUnlock()
	}
}

// Close stops the dispatcher once every sender has finished draining.
func (h *Hub) Close() {
	close(h.broadcast)
	<-h.done
}
