// Package rakpeer implements the per-connection half of the transport: one
// Peer owns a send/recv queue pair, runs the RakNet connected-control
// handshake, and hands decoded application payloads off to whatever sits on
// top (the MCPE login/game layer).
package rakpeer

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nostalgia-server/nostalgia/internal/raknet"
)

// receiveTimeout is how long a peer tolerates silence from its remote
// before the tick loop tears the connection down.
const receiveTimeout = 10 * time.Second

// tickInterval is how often the tick loop flushes the send queue and checks
// for due retransmissions/NACKs — the same cadence as an MCPE client's own
// tick rate.
const tickInterval = 50 * time.Millisecond

// Handshake tracks where a peer is in the connected (post-handshake)
// control exchange. The unconnected 3-way handshake (Ping/ConnectionRequest/
// ConnectionReply/ConnectionEstablish/ConnectionEstablished) happens in the
// listener before a Peer even exists; this state machine only covers the
// connected half that completes once frames start flowing.
type Handshake uint8

const (
	HandshakeAwaitingConnectionRequest Handshake = iota
	HandshakeAwaitingNewIncomingConnection
	HandshakeEstablished
)

// Peer is one logical connection: a remote address, its reliability
// engine, and the goroutines that drive it.
type Peer struct {
	localAddr  netip.AddrPort
	remoteAddr netip.AddrPort
	conn       *net.UDPConn

	sendQ *raknet.SendQueue
	recvQ *raknet.RecvQueue

	log     zerolog.Logger
	metrics *raknet.Metrics

	inbound  chan []byte // raw datagrams handed in by the listener
	outbound chan raknet.FrameSet
	userData chan []byte // decoded application payloads, ready for the game layer

	handshake atomic.Uint32 // Handshake, accessed lock-free
	closed    atomic.Bool

	lastHeartbeat atomic.Int64 // unix nanoseconds

	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	mu         sync.RWMutex
	clientGUID uint64

	notifyClosed func(netip.AddrPort)
}

// New constructs a Peer and starts its receive/tick/sender loops. The
// listener calls this once the unconnected handshake has produced a
// ConnectionEstablished reply. notifyClosed, if non-nil, is called exactly
// once after every loop has exited, so the listener's reaper can forget this
// session — mirroring the per-listener disconnect channel peers notify in
// the original engine.
func New(localAddr, remoteAddr netip.AddrPort, conn *net.UDPConn, mtu uint16, log zerolog.Logger, notifyClosed func(netip.AddrPort)) *Peer {
	ctx, cancel := context.WithCancel(context.Background())

	p := &Peer{
		localAddr:    localAddr,
		remoteAddr:   remoteAddr,
		conn:         conn,
		sendQ:        raknet.NewSendQueue(mtu),
		recvQ:        raknet.NewRecvQueue(),
		log:          log.With().Str("peer", remoteAddr.String()).Logger(),
		metrics:      raknet.NewMetrics(remoteAddr.String()),
		inbound:      make(chan []byte, 16),
		outbound:     make(chan raknet.FrameSet, 16),
		userData:     make(chan []byte, 16),
		cancel:       cancel,
		done:         make(chan struct{}),
		notifyClosed: notifyClosed,
	}
	p.lastHeartbeat.Store(time.Now().UnixNano())

	p.wg.Add(3)
	go p.receiveLoop(ctx)
	go p.tickLoop(ctx)
	go p.senderLoop(ctx)

	go func() {
		p.wg.Wait()
		close(p.done)
		if p.notifyClosed != nil {
			p.notifyClosed(p.remoteAddr)
		}
	}()

	return p
}

func (p *Peer) RemoteAddr() netip.AddrPort { return p.remoteAddr }

func (p *Peer) ClientGUID() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.clientGUID
}

// Deliver hands a raw datagram received on this peer's address to its
// receive loop. The listener calls this for every datagram from a known
// session; it never blocks the listener's ingest loop longer than the
// channel send itself.
func (p *Peer) Deliver(datagram []byte) bool {
	if p.closed.Load() {
		return false
	}
	select {
	case p.inbound <- datagram:
		return true
	default:
		return false
	}
}

// Send enqueues an application payload for delivery at the given
// reliability, then flushes immediately — it doesn't wait for the next tick,
// matching the original engine's send() doing an eager flush in addition to
// the periodic one.
func (p *Peer) Send(reliability raknet.Reliability, payload []byte) error {
	if p.closed.Load() {
		return raknet.ErrConnectionClosed
	}
	if len(payload) == 0 {
		return raknet.ErrInvalidPacketHeader
	}
	if err := p.sendQ.Insert(reliability, payload); err != nil {
		return err
	}
	for _, fs := range p.sendQ.Flush(time.Now()) {
		select {
		case p.outbound <- fs:
		default:
			p.log.Warn().Msg("outbound queue full, dropping flushed frame set")
		}
	}
	return nil
}

// Receive returns the channel of decoded application payloads (anything
// that wasn't a recognized connected-control packet).
func (p *Peer) Receive() <-chan []byte { return p.userData }

// Established reports whether the connected handshake has completed.
func (p *Peer) Established() bool {
	return Handshake(p.handshake.Load()) == HandshakeEstablished
}

// Close requests a graceful disconnect: it queues a DisconnectionNotification
// and lets the tick loop drain it before tearing everything down. Close is
// idempotent.
func (p *Peer) Close() {
	if p.closed.Swap(true) {
		return
	}
	_ = p.sendQ.Insert(raknet.Reliable, raknet.SerializeDisconnectionNotification())
}

// Done returns a channel closed once every loop has exited, for a reaper to
// wait on before forgetting this peer.
func (p *Peer) Done() <-chan struct{} { return p.done }

func (p *Peer) sendTo(data []byte) {
	_, err := p.conn.WriteToUDPAddrPort(data, p.remoteAddr)
	if err != nil {
		p.log.Debug().Err(err).Msg("write failed")
	}
}

func (p *Peer) touchHeartbeat() {
	p.lastHeartbeat.Store(time.Now().UnixNano())
}

func (p *Peer) heartbeatStale() bool {
	last := time.Unix(0, p.lastHeartbeat.Load())
	return time.Since(last) > receiveTimeout
}
