// Package raklistener demultiplexes one UDP socket across many sessions: it
// answers the unconnected RakNet handshake (ping / connection request /
// connection establish) itself, then hands everything after that off to the
// rakpeer.Peer it creates for that address.
package raklistener

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/netip"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nostalgia-server/nostalgia/internal/rakpeer"
	"github.com/nostalgia-server/nostalgia/internal/raknet"
)

// ErrClosed is returned by Accept once the listener has been closed and every
// already-accepted peer has been drained.
var ErrClosed = errors.New("raklistener: closed")

const defaultMTU = 1492

// rawDisconnectNotification is the two raw bytes the reaper writes directly
// to a forgotten session's address — distinct from the reliability-layer
// DisconnectionNotification a peer enqueues through its send queue, this one
// bypasses framing entirely, matching the original reaper's `send_to(&[0x15,
// 0x00], ...)`.
var rawDisconnectNotification = []byte{0x15, 0x00}

// session is a promoted address's demux entry. Entries are created only once
// ConnectionEstablish has been answered, so peer is always set; the
// unconnected handshake before that keeps no per-address state.
type session struct {
	peer *rakpeer.Peer
}

// Listener owns the UDP socket and the session table keyed by remote
// address. It answers the unconnected handshake inline and publishes
// promoted connections on the accept channel.
type Listener struct {
	conn *net.UDPConn
	log  zerolog.Logger

	guid uint64
	motd string
	mtu  uint16

	mu       sync.Mutex
	sessions map[netip.AddrPort]*session

	accept      chan *rakpeer.Peer
	disconnect  chan netip.AddrPort
	closing     bool
	closeSignal chan struct{}
	serveWG     sync.WaitGroup
	done        chan struct{}
}

// New binds a UDP socket on addr and constructs a Listener. Call Serve to
// start accepting traffic.
func New(addr netip.AddrPort, motd string, log zerolog.Logger) (*Listener, error) {
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(addr))
	if err != nil {
		return nil, err
	}
	return &Listener{
		conn:        conn,
		log:         log.With().Str("component", "raklistener").Logger(),
		guid:        rand.Uint64(),
		motd:        motd,
		mtu:         defaultMTU,
		sessions:    make(map[netip.AddrPort]*session),
		accept:      make(chan *rakpeer.Peer, 16),
		disconnect:  make(chan netip.AddrPort, 16),
		closeSignal: make(chan struct{}),
		done:        make(chan struct{}),
	}, nil
}

// LocalAddr reports the bound socket's address.
func (l *Listener) LocalAddr() net.Addr { return l.conn.LocalAddr() }

// Serve runs the ingest and reaper loops and blocks until both have exited.
// The reaper stops when ctx is cancelled or Close is called; the ingest loop
// stops only once Close has closed the socket.
func (l *Listener) Serve(ctx context.Context) {
	l.serveWG.Add(2)
	go l.ingestLoop(ctx)
	go l.reapLoop(ctx)
	l.serveWG.Wait()
	close(l.done)
}

// Accept returns the next promoted connection, blocking until one arrives or
// the listener is closed.
func (l *Listener) Accept(ctx context.Context) (*rakpeer.Peer, error) {
	select {
	case peer, ok := <-l.accept:
		if !ok {
			return nil, ErrClosed
		}
		return peer, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close broadcasts a raw disconnect notification to every still-open session
// and forgets it, then tears down the socket, which unblocks the ingest
// loop, and waits for Serve to finish before draining whatever trickles into
// the disconnect channel from peers that were already tearing themselves down.
func (l *Listener) Close() {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return
	}
	l.closing = true
	for remote := range l.sessions {
		l.send(remote, rawDisconnectNotification)
		delete(l.sessions, remote)
	}
	l.mu.Unlock()

	l.conn.Close()
	close(l.closeSignal)
	<-l.done

	for {
		select {
		case <-l.disconnect:
		default:
			close(l.accept)
			return
		}
	}
}

func (l *Listener) ingestLoop(ctx context.Context) {
	defer l.serveWG.Done()

	buf := make([]byte, 2048)
	for {
		n, remote, err := l.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			l.mu.Lock()
			closing := l.closing
			l.mu.Unlock()
			if closing {
				return
			}
			l.log.Debug().Err(err).Msg("read failed")
			continue
		}
		remote = netip.AddrPortFrom(remote.Addr().Unmap(), remote.Port())

		data := make([]byte, n)
		copy(data, buf[:n])

		l.route(remote, data)
	}
}

// route sends a known session's datagram straight to its peer; anything from
// an unknown address is tried as an unconnected handshake packet.
func (l *Listener) route(remote netip.AddrPort, data []byte) {
	l.mu.Lock()
	s, known := l.sessions[remote]
	l.mu.Unlock()

	if known {
		if s.peer != nil && !s.peer.Deliver(data) {
			l.log.Debug().Stringer("remote", remote).Msg("peer inbound queue full, dropping datagram")
		}
		return
	}

	if len(data) == 0 {
		return
	}
	l.handleUnconnected(remote, data)
}

func (l *Listener) handleUnconnected(remote netip.AddrPort, data []byte) {
	switch data[0] {
	case raknet.IDUnconnectedPing:
		_, err := raknet.ParseUnconnectedPing(data)
		if err != nil {
			return
		}
		pong := &raknet.UnconnectedPong{Timestamp: 0, ServerGUID: l.guid, MOTD: l.motd}
		l.send(remote, pong.Serialize())
		pingsAnswered.Inc()

	case raknet.IDConnectionRequest:
		if _, err := raknet.ParseConnectionRequest(data); err != nil {
			return
		}
		reply := &raknet.ConnectionReply{ServerGUID: l.guid, MTUSize: l.mtu, UseEncryption: false}
		l.send(remote, reply.Serialize())

	case raknet.IDConnectionEstablish:
		est, err := raknet.ParseConnectionEstablish(data)
		if err != nil {
			return
		}
		established := &raknet.ConnectionEstablished{
			ClientAddress: remote,
			ServerGUID:    l.guid,
			MTUSize:       est.MTUSize,
			UseEncryption: false,
		}
		l.send(remote, established.Serialize())
		l.promote(remote, est.MTUSize)

	default:
		l.log.Debug().Uint8("id", data[0]).Stringer("remote", remote).Msg("unrecognized unconnected packet")
	}
}

// promote creates the Peer for a newly-established session and publishes it
// on the accept channel, matching the original handshake's behavior of
// spawning the connection only once ConnectionEstablished is answered.
func (l *Listener) promote(remote netip.AddrPort, mtu uint16) {
	if mtu == 0 {
		mtu = l.mtu
	}

	l.mu.Lock()
	if _, exists := l.sessions[remote]; exists {
		l.mu.Unlock()
		return
	}
	local := netip.MustParseAddrPort(l.conn.LocalAddr().String())
	peer := rakpeer.New(local, remote, l.conn, mtu, l.log, l.notifyDisconnect)
	l.sessions[remote] = &session{peer: peer}
	l.mu.Unlock()
	sessionsPromoted.Inc()

	select {
	case l.accept <- peer:
	default:
		l.log.Warn().Stringer("remote", remote).Msg("accept queue full, dropping new connection")
	}
}

// notifyDisconnect is handed to every Peer as its close callback; a
// non-blocking send here matches the bounded disconnect channel the reaper
// drains from.
func (l *Listener) notifyDisconnect(remote netip.AddrPort) {
	select {
	case l.disconnect <- remote:
	default:
		l.log.Warn().Stringer("remote", remote).Msg("disconnect queue full, session stays in the table until the listener closes")
	}
}

// reapLoop is the listener's second cooperative task: it owns removal of
// session-table entries, reacting to peers that notify it on close rather
// than polling. It stops as soon as either ctx is cancelled or Close has
// closed the socket; Close itself takes over final cleanup from there.
func (l *Listener) reapLoop(ctx context.Context) {
	defer l.serveWG.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.closeSignal:
			return
		case remote := <-l.disconnect:
			l.reapOne(remote)
		}
	}
}

func (l *Listener) reapOne(remote netip.AddrPort) {
	l.mu.Lock()
	_, ok := l.sessions[remote]
	if ok {
		delete(l.sessions, remote)
	}
	l.mu.Unlock()

	if ok {
		l.send(remote, rawDisconnectNotification)
		sessionsReaped.Inc()
		l.log.Debug().Stringer("remote", remote).Msg("reaped session")
	}
}

func (l *Listener) send(remote netip.AddrPort, data []byte) {
	if _, err := l.conn.WriteToUDPAddrPort(data, remote); err != nil {
		l.log.Debug().Err(err).Stringer("remote", remote).Msg("unconnected reply failed")
	}
}
