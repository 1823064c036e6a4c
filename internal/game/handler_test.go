package game

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nostalgia-server/nostalgia/internal/mcpe"
	"github.com/nostalgia-server/nostalgia/internal/raknet"
	"github.com/nostalgia-server/nostalgia/internal/world"
)

type fakePeer struct {
	remote  netip.AddrPort
	inbound chan []byte
	sent    chan []byte
	closed  bool
}

func newFakePeer() *fakePeer {
	return &fakePeer{
		remote:  netip.MustParseAddrPort("127.0.0.1:12345"),
		inbound: make(chan []byte, 8),
		sent:    make(chan []byte, 8),
	}
}

func (f *fakePeer) RemoteAddr() netip.AddrPort { return f.remote }
func (f *fakePeer) Receive() <-chan []byte     { return f.inbound }
func (f *fakePeer) Close()                     { f.closed = true }
func (f *fakePeer) Send(_ raknet.Reliability, payload []byte) error {
	f.sent <- append([]byte(nil), payload...)
	return nil
}

func recvWithin(t *testing.T, ch <-chan []byte, d time.Duration) []byte {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(d):
		t.Fatal("timed out waiting for send")
		return nil
	}
}

func TestHandlerLoginAcceptedSendsStartGame(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()
	peer := newFakePeer()
	h := NewHandler(peer, hub, world.NewDemoWorld(), DefaultConfig(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	req := &mcpe.LoginRequest{Username: "steve", ProtocolMajor: 9, ProtocolMinor: 14, ClientID: 1}
	peer.inbound <- req.Serialize()

	resp := recvWithin(t, peer.sent, 2*time.Second)
	if resp[0] != mcpe.IDLoginResponse {
		t.Fatalf("first reply id = 0x%02X, want LoginResponse", resp[0])
	}

	startGame := recvWithin(t, peer.sent, 2*time.Second)
	if startGame[0] != mcpe.IDStartGame {
		t.Fatalf("second reply id = 0x%02X, want StartGame", startGame[0])
	}
}

func TestHandlerLoginRejectsWrongProtocolMinor(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()
	peer := newFakePeer()
	h := NewHandler(peer, hub, world.NewDemoWorld(), DefaultConfig(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	req := &mcpe.LoginRequest{Username: "steve", ProtocolMajor: 9, ProtocolMinor: 7, ClientID: 1}
	peer.inbound <- req.Serialize()

	resp := recvWithin(t, peer.sent, 2*time.Second)
	if resp[0] != mcpe.IDLoginResponse {
		t.Fatalf("reply id = 0x%02X, want LoginResponse", resp[0])
	}
	parsed, err := parseLoginResponseStatus(resp)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != 1 {
		t.Errorf("status = %d, want 1 (rejected)", parsed)
	}

	select {
	case extra := <-peer.sent:
		t.Fatalf("unexpected extra send after rejection: %x", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandlerMovePlayerBroadcastsAndSpawnsChicken(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	origin := newFakePeer()
	other := newFakePeer()

	hOrigin := NewHandler(origin, hub, world.NewDemoWorld(), DefaultConfig(), zerolog.Nop())
	hOther := NewHandler(other, hub, world.NewDemoWorld(), DefaultConfig(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hOrigin.Run(ctx)
	go hOther.Run(ctx)

	origin.inbound <- (&mcpe.LoginRequest{Username: "a", ProtocolMinor: 14, ClientID: 1}).Serialize()
	recvWithin(t, origin.sent, 2*time.Second)
	recvWithin(t, origin.sent, 2*time.Second)

	other.inbound <- (&mcpe.LoginRequest{Username: "b", ProtocolMinor: 14, ClientID: 2}).Serialize()
	recvWithin(t, other.sent, 2*time.Second)
	recvWithin(t, other.sent, 2*time.Second)

	move := &mcpe.MovePlayer{EntityID: 1, Position: mcpe.Vector3{X: 1, Y: 2, Z: 3}}
	origin.inbound <- move.Serialize()

	first := recvWithin(t, other.sent, 2*time.Second)
	if first[0] != mcpe.IDMovePlayer {
		t.Fatalf("other client got 0x%02X first, want MovePlayer", first[0])
	}
	second := recvWithin(t, other.sent, 2*time.Second)
	if second[0] != mcpe.IDAddMob {
		t.Fatalf("other client got 0x%02X second, want AddMob chicken", second[0])
	}

	// The demo chicken is broadcast to everyone, origin included; the
	// MovePlayer itself must not be echoed back.
	chicken := recvWithin(t, origin.sent, 2*time.Second)
	if chicken[0] != mcpe.IDAddMob {
		t.Fatalf("origin got 0x%02X, want only the AddMob chicken", chicken[0])
	}
	select {
	case extra := <-origin.sent:
		t.Fatalf("origin should not receive its own MovePlayer echo, got 0x%02X", extra[0])
	case <-time.After(100 * time.Millisecond):
	}
}

// TestHandlerAnimateExplodeUsesHubTrackedPosition covers the fix for the
// Handler/Hub duplicate client-position bug: a MovePlayer must update the
// position the Hub's own client record reports, because the Explode demo
// side effect on a later Animate now reads that record back rather than a
// second, never-synced copy.
func TestHandlerAnimateExplodeUsesHubTrackedPosition(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	peer := newFakePeer()
	h := NewHandler(peer, hub, world.NewDemoWorld(), DefaultConfig(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	peer.inbound <- (&mcpe.LoginRequest{Username: "steve", ProtocolMinor: 14, ClientID: 1}).Serialize()
	recvWithin(t, peer.sent, 2*time.Second)
	recvWithin(t, peer.sent, 2*time.Second)

	moved := mcpe.Vector3{X: 10, Y: 20, Z: 30}
	peer.inbound <- (&mcpe.MovePlayer{EntityID: 1, Position: moved}).Serialize()

	// MovePlayer's own broadcast excludes the origin; only the demo chicken
	// (broadcast to everyone, self included) arrives on peer.sent. Then give
	// the handler a moment before checking the Hub's record directly.
	chicken := recvWithin(t, peer.sent, 2*time.Second)
	if chicken[0] != mcpe.IDAddMob {
		t.Fatalf("reply id = 0x%02X, want AddMob chicken", chicken[0])
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if c, ok := hub.client(1); ok && c.getPosition() == moved {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("hub.client(1) position never reached %+v", moved)
		}
		time.Sleep(time.Millisecond)
	}

	peer.inbound <- (&mcpe.Animate{Action: 1, EntityID: 1}).Serialize()

	// Animate's own broadcast also excludes the origin; only the demo
	// Explode side effect (broadcast to everyone, self included) arrives.
	explode := recvWithin(t, peer.sent, 2*time.Second)
	if explode[0] != mcpe.IDExplode {
		t.Fatalf("reply id = 0x%02X, want Explode", explode[0])
	}
	parsed, err := mcpe.ParseExplode(explode)
	if err != nil {
		t.Fatalf("ParseExplode: %v", err)
	}
	if parsed.Position != moved {
		t.Errorf("explode position = %+v, want %+v (from MovePlayer via hub.client)", parsed.Position, moved)
	}
}

// parseLoginResponseStatus reads just the status field back out of a
// serialized LoginResponse for assertions (LoginResponse has no Parse
// function of its own since the server never receives one).
func parseLoginResponseStatus(data []byte) (int32, error) {
	bs := raknet.NewBitStream(data)
	if _, err := bs.ReadByte(); err != nil {
		return 0, err
	}
	return bs.ReadInt32()
}
