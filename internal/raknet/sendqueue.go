package raknet

import (
	"sort"
	"sync"
	"time"
)

const (
	// DefaultRTO is the initial retransmission timeout before any round-trip
	// sample has been observed.
	DefaultRTO = 50 * time.Millisecond
	// RTOUpperBound and RTOLowerBound clamp the smoothed RTO, matching the
	// bounds the original engine uses to keep retransmission sane on both a
	// LAN and a lossy long-haul link.
	RTOUpperBound = 12000 * time.Millisecond
	RTOLowerBound = 50 * time.Millisecond

	// frameOverheadMargin reserves room for IP/UDP headers plus the frame
	// header itself so a single frame's payload never forces IP fragmentation.
	frameOverheadMargin = 60
)

// MaxFramePayload returns the largest single-frame payload that fits under
// mtu without risking IP-level fragmentation.
func MaxFramePayload(mtu uint16) int {
	v := int(mtu) - frameOverheadMargin
	if v < 0 {
		return 0
	}
	return v
}

type sentFrame struct {
	frame          Frame
	sequenceNumber uint32
	inFlight       bool
	lastSendTime   time.Time
	retryCount     uint32
	history        []uint32
}

// SendQueue is the per-peer outbound half of the reliability engine: it
// assigns reliability/ordering indices on enqueue, and on Flush turns
// pending frames into FrameSets, tracking the reliable ones for
// retransmission until acknowledged.
type SendQueue struct {
	mu sync.Mutex

	mtu uint16

	ackSequenceNumber   uint32
	sequenceNumber      uint32
	reliableFrameIndex  uint32
	sequencedFrameIndex uint32
	orderedFrameIndex   uint32
	compoundID          uint16

	pending []Frame
	sent    []sentFrame

	rto  time.Duration
	srtt time.Duration
}

func NewSendQueue(mtu uint16) *SendQueue {
	return &SendQueue{mtu: mtu, rto: DefaultRTO, srtt: DefaultRTO}
}

// Insert assigns this payload the reliability/ordering indices its class
// requires and queues it for the next Flush. UnreliableSequenced and
// ReliableSequenced both also advance the ordered-frame index: the original
// reliability engine does this too, with a comment admitting it isn't sure
// why a sequenced class needs an ordered index (see wiki.vg's RakNet page).
// That behavior is preserved rather than "corrected".
func (q *SendQueue) Insert(r Reliability, data []byte) error {
	if !r.Valid() {
		return ErrInvalidReliability
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	maxSingle := MaxFramePayload(q.mtu)

	if r != ReliableOrdered || len(data) <= maxSingle {
		if len(data) > maxSingle {
			return ErrPacketTooLarge
		}
		f := NewFrame(r, data)
		if r.IsReliable() {
			f.ReliableFrameIndex = q.reliableFrameIndex
			q.reliableFrameIndex++
		}
		if r.IsSequenced() {
			f.SequencedFrameIndex = q.sequencedFrameIndex
			q.sequencedFrameIndex++
		}
		if r.IsOrdered() {
			f.OrderedFrameIndex = q.orderedFrameIndex
			q.orderedFrameIndex++
		}
		q.pending = append(q.pending, f)
		return nil
	}

	// ReliableOrdered payload too large for one frame: split into a compound.
	pieceSize := maxSingle
	count := (len(data) + pieceSize - 1) / pieceSize
	compoundID := q.compoundID
	q.compoundID++
	ordered := q.orderedFrameIndex
	q.orderedFrameIndex++

	for i := 0; i < count; i++ {
		start := i * pieceSize
		end := start + pieceSize
		if end > len(data) {
			end = len(data)
		}
		f := NewFrame(r, data[start:end])
		f.ReliableFrameIndex = q.reliableFrameIndex
		q.reliableFrameIndex++
		f.CompoundSize = uint32(count)
		f.CompoundID = compoundID
		f.FragmentIndex = uint32(i)
		f.OrderedFrameIndex = ordered
		q.pending = append(q.pending, f)
	}
	return nil
}

func (q *SendQueue) updateRTO(rtt time.Duration) {
	q.srtt = time.Duration(0.8*float64(q.srtt) + 0.2*float64(rtt))
	rto := time.Duration(1.5 * float64(q.srtt))
	if rto < RTOLowerBound {
		rto = RTOLowerBound
	}
	if rto > RTOUpperBound {
		rto = RTOUpperBound
	}
	q.rto = rto
}

func containsUint32(haystack []uint32, v uint32) bool {
	for _, x := range haystack {
		if x == v {
			return true
		}
	}
	return false
}

// nackLocked gives every in-flight sent frame currently occupying sequence
// number `sequence` a fresh sequence number, restarts its retransmission
// timer and counts a retry. The frame stays in flight, so it goes out again
// only once tick finds its backed-off timeout elapsed. Unlike Ack, this
// applies to every matching entry, not just the
// first — a NACK can legitimately cover more than one frame if sequence
// numbers were ever reused (they aren't, in practice, but the original
// engine doesn't special-case that and neither does this one).
func (q *SendQueue) nackLocked(sequence uint32, now time.Time) {
	for i := range q.sent {
		s := &q.sent[i]
		if s.inFlight && s.sequenceNumber == sequence {
			s.sequenceNumber = q.sequenceNumber
			q.sequenceNumber++
			s.lastSendTime = now
			s.retryCount++
			s.history = append(s.history, s.sequenceNumber)
		}
	}
}

func (q *SendQueue) Nack(sequence uint32, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nackLocked(sequence, now)
}

// Ack marks sequence as delivered. Any sequence numbers skipped since the
// last ack are treated as implicit NACKs. Matching against sent frames stops
// at the first hit per invocation — a frame can be found either by its
// current sequence number or by any sequence number it previously held
// before being requeued.
func (q *SendQueue) Ack(sequence uint32, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if sequence != 0 && sequence != q.ackSequenceNumber+1 {
		for i := q.ackSequenceNumber + 1; i < sequence; i++ {
			q.nackLocked(i, now)
		}
	}
	q.ackSequenceNumber = sequence

	for i := range q.sent {
		s := &q.sent[i]
		if s.sequenceNumber == sequence || containsUint32(s.history, sequence) {
			q.updateRTO(now.Sub(s.lastSendTime))
			q.sent = append(q.sent[:i], q.sent[i+1:]...)
			break
		}
	}
}

// tick re-arms any sent frame whose retransmission timeout has elapsed,
// backing off by ×1.5 per prior retry, without itself bumping retryCount —
// that happens in Flush once the frame is actually resent.
func (q *SendQueue) tick(now time.Time) {
	for i := range q.sent {
		s := &q.sent[i]
		if !s.inFlight {
			continue
		}
		curRTO := q.rto
		for j := uint32(0); j < s.retryCount; j++ {
			curRTO = time.Duration(float64(curRTO) * 1.5)
		}
		if now.Sub(s.lastSendTime) >= curRTO {
			s.sequenceNumber = q.sequenceNumber
			q.sequenceNumber++
			s.inFlight = false
			s.history = append(s.history, s.sequenceNumber)
		}
	}
}

// Flush advances retransmission timers and returns the FrameSets that need
// to go out on the wire right now. While any previously-sent reliable frame
// is still unacknowledged, only the ones due for retransmission are returned
// (possibly none); newly pending frames wait until every sent frame has been
// acknowledged.
func (q *SendQueue) Flush(now time.Time) []FrameSet {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tick(now)

	if len(q.sent) > 0 {
		sort.Slice(q.sent, func(i, j int) bool {
			return q.sent[i].sequenceNumber < q.sent[j].sequenceNumber
		})
		var out []FrameSet
		for i := range q.sent {
			s := &q.sent[i]
			if !s.inFlight {
				out = append(out, FrameSet{SequenceNumber: s.sequenceNumber, Frames: []Frame{s.frame}})
				s.inFlight = true
				s.lastSendTime = now
				s.retryCount++
			}
		}
		return out
	}

	if len(q.pending) == 0 {
		return nil
	}

	out := make([]FrameSet, 0, len(q.pending))
	for _, f := range q.pending {
		seq := q.sequenceNumber
		q.sequenceNumber++
		out = append(out, FrameSet{SequenceNumber: seq, Frames: []Frame{f}})
		if f.Reliability.IsReliable() {
			q.sent = append(q.sent, sentFrame{
				frame:          f,
				sequenceNumber: seq,
				inFlight:       true,
				lastSendTime:   now,
				history:        []uint32{seq},
			})
		}
	}
	q.pending = nil
	return out
}

func (q *SendQueue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) == 0 && len(q.sent) == 0
}
