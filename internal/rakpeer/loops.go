package rakpeer

import (
	"context"
	"time"

	"github.com/nostalgia-server/nostalgia/internal/raknet"
)

const maxDisconnectRetries = 10

func (p *Peer) finishLoop() {
	p.wg.Done()
}

// receiveLoop drains datagrams the listener routed to this peer, splitting
// ack/nack control datagrams from frame sets and feeding the latter through
// the recv queue before routing reassembled frames to either the connected
// control handler or the application.
func (p *Peer) receiveLoop(ctx context.Context) {
	defer p.finishLoop()
	for {
		select {
		case <-ctx.Done():
			return
		case datagram, ok := <-p.inbound:
			if !ok {
				return
			}
			p.touchHeartbeat()
			p.handleDatagram(datagram)
		}
	}
}

func (p *Peer) handleDatagram(data []byte) {
	if len(data) == 0 {
		return
	}

	switch {
	case data[0] == raknet.AckPacketID:
		ranges, err := raknet.DecodeAck(data)
		if err != nil {
			p.log.Debug().Err(err).Msg("bad ack packet")
			return
		}
		now := time.Now()
		for _, r := range ranges {
			if r.Start == r.End {
				p.sendQ.Ack(r.Start, now)
				continue
			}
			for seq := r.Start; seq <= r.End; seq++ {
				p.sendQ.Ack(seq, now)
			}
		}

	case data[0] == raknet.NackPacketID:
		ranges, err := raknet.DecodeNack(data)
		if err != nil {
			p.log.Debug().Err(err).Msg("bad nack packet")
			return
		}
		now := time.Now()
		for _, r := range ranges {
			for seq := r.Start; seq <= r.End; seq++ {
				p.sendQ.Nack(seq, now)
			}
		}

	case raknet.IsFrameSetID(data[0]):
		fs, err := raknet.ParseFrameSet(data)
		if err != nil {
			p.log.Debug().Err(err).Msg("bad frame set")
			return
		}
		for _, frame := range fs.Frames {
			p.recvQ.Insert(fs.SequenceNumber, frame)
			p.metrics.FramesReceived.Inc()
		}
		for _, frame := range p.recvQ.Flush() {
			p.routeConnected(frame.Data)
		}
		if acks := p.recvQ.GetAck(); len(acks) > 0 {
			p.sendTo(raknet.EncodeAck(acks))
			p.metrics.AcksSent.Inc()
		}

	default:
		p.log.Debug().Uint8("id", data[0]).Msg("unrecognized datagram")
	}
}

// routeConnected dispatches a reassembled frame payload: the fixed set of
// connected-control packet ids advance the handshake or answer a ping;
// anything else is handed to the application layer unparsed.
func (p *Peer) routeConnected(payload []byte) {
	if len(payload) == 0 {
		return
	}

	switch payload[0] {
	case raknet.IDConnectedConnectionRequest:
		req, err := raknet.ParseConnectedConnectionRequest(payload)
		if err != nil {
			return
		}
		p.mu.Lock()
		p.clientGUID = req.ClientGUID
		p.mu.Unlock()

		accepted := &raknet.ConnectionRequestAccepted{
			ClientAddress:     p.remoteAddr,
			SystemIndex:       0,
			RequestTimestamp:  req.Timestamp,
			AcceptedTimestamp: uint64(time.Now().UnixMilli()),
		}
		p.handshake.Store(uint32(HandshakeAwaitingNewIncomingConnection))
		if err := p.Send(raknet.ReliableOrdered, accepted.Serialize()); err != nil {
			p.log.Debug().Err(err).Msg("failed to send connection request accepted")
		}

	case raknet.IDNewIncomingConnection:
		p.handshake.Store(uint32(HandshakeEstablished))
		p.log.Info().Msg("connected handshake complete")

	case raknet.IDConnectedPing:
		ping, err := raknet.ParseConnectedPing(payload)
		if err != nil {
			return
		}
		pong := &raknet.ConnectedPong{Timestamp: ping.Timestamp, ServerTime: uint64(time.Now().UnixMilli())}
		if err := p.Send(raknet.Reliable, pong.Serialize()); err != nil {
			p.log.Debug().Err(err).Msg("failed to send pong")
		}

	case raknet.IDConnectedPong:
		// Server never initiates connected pings, so nothing to correlate.

	case raknet.IDDisconnectionNotification:
		p.Close()

	default:
		select {
		case p.userData <- payload:
		default:
			p.log.Warn().Msg("application queue full, dropping payload")
		}
	}
}

// tickLoop is this peer's heartbeat: every tickInterval it flushes the send
// queue (new frames and due retransmissions alike), flushes any pending
// NACKs, and watches for a stale connection or a completed graceful close.
func (p *Peer) tickLoop(ctx context.Context) {
	defer p.finishLoop()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	disconnectRetries := 0
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if nacks := p.recvQ.GetNack(); len(nacks) > 0 {
				p.sendTo(raknet.EncodeNack(nacks))
				p.metrics.NacksSent.Inc()
			}

			for _, fs := range p.sendQ.Flush(now) {
				p.sendTo(fs.Serialize())
				p.metrics.FramesSent.Inc()
			}

			if !p.closed.Load() && p.heartbeatStale() {
				p.log.Info().Msg("peer timed out")
				p.closed.Store(true)
				_ = p.sendQ.Insert(raknet.Reliable, raknet.SerializeDisconnectionNotification())
			}

			if p.closed.Load() {
				disconnectRetries++
				if p.sendQ.IsEmpty() || disconnectRetries >= maxDisconnectRetries {
					p.cancel()
					return
				}
			}
		}
	}
}

func (p *Peer) senderLoop(ctx context.Context) {
	defer p.finishLoop()
	for {
		select {
		case <-ctx.Done():
			return
		case fs, ok := <-p.outbound:
			if !ok {
				return
			}
			p.sendTo(fs.Serialize())
			p.metrics.FramesSent.Inc()
		}
	}
}
