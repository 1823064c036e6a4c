package game

import (
	"context"
	"net/netip"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/nostalgia-server/nostalgia/internal/mcpe"
	"github.com/nostalgia-server/nostalgia/internal/raknet"
	"github.com/nostalgia-server/nostalgia/internal/world"
)

// mcpeProtocolMinor is the only field of LoginRequest the handler actually
// gates on; protocol_major is accepted and otherwise ignored (see the open
// question this resolves in the design notes).
const mcpeProtocolMinor = 14

// Peer is the subset of rakpeer.Peer a Handler drives — narrow enough that
// tests can supply a fake without standing up a real UDP socket.
type Peer interface {
	peerSender
	RemoteAddr() netip.AddrPort
	Receive() <-chan []byte
	Close()
}

// Handler runs one connection's post-handshake life: it owns the MCPE login
// exchange and routes every subsequent packet from spec.md §6's handler
// table, either mutating local state, replying directly, or going through
// the Hub's broadcast queue.
type Handler struct {
	peer   Peer
	hub    *Hub
	world  world.Snapshot
	cfg    Config
	log    zerolog.Logger
	client *client
}

func NewHandler(peer Peer, hub *Hub, snapshot world.Snapshot, cfg Config, log zerolog.Logger) *Handler {
	return &Handler{
		peer:  peer,
		hub:   hub,
		world: snapshot,
		cfg:   cfg,
		log:   log.With().Stringer("remote", peer.RemoteAddr()).Logger(),
	}
}

// Run drives the connection until its receive channel closes or ctx is
// cancelled, routing every decoded MCPE payload.
func (h *Handler) Run(ctx context.Context) {
	defer h.unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-h.peer.Receive():
			if !ok {
				return
			}
			if len(payload) == 0 {
				continue
			}
			h.dispatch(payload)
		}
	}
}

func (h *Handler) dispatch(payload []byte) {
	switch payload[0] {
	case mcpe.IDLoginRequest:
		h.handleLogin(payload)
	case mcpe.IDMessage:
		h.handleMessage(payload)
	case mcpe.IDMovePlayer:
		h.handleMovePlayer(payload)
	case mcpe.IDAnimate:
		h.handleAnimate(payload)
	case mcpe.IDUseItem:
		h.handleUseItem(payload)
	default:
		h.log.Debug().Uint8("id", payload[0]).Msg("unhandled mcpe packet")
	}
}

func (h *Handler) handleLogin(payload []byte) {
	req, err := mcpe.ParseLoginRequest(payload)
	if err != nil {
		h.log.Debug().Err(err).Msg("malformed login request")
		return
	}

	if req.ProtocolMinor != mcpeProtocolMinor {
		h.send(&mcpe.LoginResponse{Status: 1})
		return
	}

	h.client = &client{id: req.ClientID, remote: h.peer.RemoteAddr(), username: req.Username}
	h.client.setPosition(h.world.SpawnPosition())
	h.hub.register(h.client, h.peer)

	h.send(&mcpe.LoginResponse{Status: 0})
	h.send(&mcpe.StartGame{
		WorldSeed:        h.world.Seed(),
		GeneratorVersion: h.world.GeneratorVersion(),
		Gamemode:         h.world.Gamemode(),
		EntityID:         int32(req.ClientID),
		Position:         h.world.SpawnPosition(),
	})
}

func (h *Handler) handleMessage(payload []byte) {
	msg, err := mcpe.ParseMessage(payload)
	if err != nil {
		return
	}
	h.hub.Broadcast(nil, msg)
}

func (h *Handler) handleMovePlayer(payload []byte) {
	move, err := mcpe.ParseMovePlayer(payload)
	if err != nil {
		return
	}
	if h.client != nil {
		h.client.setPosition(move.Position)
	}

	exclude := h.clientID()
	h.hub.Broadcast(exclude, move)

	if h.cfg.DemoSideEffects {
		chicken := &mcpe.AddMob{
			EntityID:   h.hub.NextSyntheticEntityID(),
			EntityType: chickenEntityType,
			Position:   move.Position,
		}
		h.hub.Broadcast(nil, chicken)
	}
}

func (h *Handler) handleAnimate(payload []byte) {
	anim, err := mcpe.ParseAnimate(payload)
	if err != nil {
		return
	}
	h.hub.Broadcast(h.clientID(), anim)

	if h.cfg.DemoSideEffects && h.client != nil {
		pos := h.client.getPosition()
		if c, ok := h.hub.client(h.client.id); ok {
			pos = c.getPosition()
		}
		h.hub.Broadcast(nil, &mcpe.Explode{
			Position: pos,
			Radius:   demoExplodeRadius,
			Count:    demoExplodeCount,
		})
	}
}

func (h *Handler) handleUseItem(payload []byte) {
	use, err := mcpe.ParseUseItem(payload)
	if err != nil {
		return
	}

	h.hub.Broadcast(nil, &mcpe.UpdateBlock{
		X:     use.X - 1,
		Z:     use.Z,
		Y:     uint8(use.Y),
		Block: placedBlockID,
		Meta:  0,
	})
	h.hub.Broadcast(nil, &mcpe.RemoveBlock{
		X: use.X + 1,
		Z: use.Z,
		Y: uint8(use.Y),
	})
	h.hub.Broadcast(nil, &mcpe.Message{
		Username: "Server",
		Text:     "used item " + strconv.Itoa(int(use.ItemID)),
	})
}

const (
	chickenEntityType = 10
	demoExplodeRadius = 4.0
	demoExplodeCount  = 1
	placedBlockID     = 3 // dirt, matching the handler table's id=3
)

func (h *Handler) clientID() *uint32 {
	if h.client == nil {
		return nil
	}
	id := h.client.id
	return &id
}

func (h *Handler) unregister() {
	if h.client != nil {
		h.hub.unregister(h.client.id)
	}
}

func (h *Handler) send(pkt mcpe.Packet) {
	if err := h.peer.Send(raknet.Reliable, pkt.Serialize()); err != nil {
		h.log.Debug().Err(err).Msg("send failed")
	}
}
