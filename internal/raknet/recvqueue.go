package raknet

import "sort"

// RecvQueue is the per-peer inbound half of the reliability engine. It
// tracks which datagram sequence numbers have been seen (for ACK/NACK),
// drops duplicates and stale sequenced frames, reassembles fragments, and
// holds ReliableOrdered frames back until the gap before them closes.
type RecvQueue struct {
	sequencedFrameIndex uint32
	lastOrderedIndex    uint32

	ackSet AckSet

	// packets holds frames ready for immediate delivery, keyed by the
	// datagram sequence number they arrived on.
	packets map[uint32]Frame
	// orderedPackets holds ReliableOrdered frames (reassembled, if they were
	// fragments) waiting for their turn, keyed by ordered-frame index.
	orderedPackets map[uint32]Frame

	fragments *fragmentQueue
}

func NewRecvQueue() *RecvQueue {
	return &RecvQueue{
		packets:        make(map[uint32]Frame),
		orderedPackets: make(map[uint32]Frame),
		fragments:      newFragmentQueue(),
	}
}

// Insert records a frame received on datagram sequence seq. Frames are
// deduplicated by that sequence number, matching the original engine's
// dedup key — a rare false-positive drop is possible if a batching peer ever
// reuses a sequence number across frames in flight, but in practice every
// implementation in this family assigns one frame per datagram.
func (q *RecvQueue) Insert(seq uint32, frame Frame) {
	if _, dup := q.packets[seq]; dup {
		return
	}
	q.ackSet.Insert(seq)

	switch frame.Reliability {
	case Unreliable:
		q.packets[seq] = frame

	case UnreliableSequenced, ReliableSequenced:
		if frame.SequencedFrameIndex < q.sequencedFrameIndex {
			return
		}
		q.sequencedFrameIndex = frame.SequencedFrameIndex + 1
		q.packets[seq] = frame

	case Reliable:
		q.packets[seq] = frame

	case ReliableOrdered:
		if frame.OrderedFrameIndex < q.lastOrderedIndex {
			return
		}
		if frame.IsFragment() {
			q.fragments.insert(frame)
			for _, merged := range q.fragments.flush() {
				if _, exists := q.orderedPackets[merged.OrderedFrameIndex]; !exists {
					q.orderedPackets[merged.OrderedFrameIndex] = merged
				}
			}
			return
		}
		if _, exists := q.orderedPackets[frame.OrderedFrameIndex]; !exists {
			q.orderedPackets[frame.OrderedFrameIndex] = frame
		}
	}
}

// Flush returns frames ready for application delivery, in delivery order:
// first any contiguous run of ReliableOrdered frames starting at the last
// delivered index, then every other pending frame in ascending sequence
// order (Unreliable/UnreliableSequenced/Reliable/ReliableSequenced never
// wait on each other).
func (q *RecvQueue) Flush() []Frame {
	var out []Frame

	for {
		f, ok := q.orderedPackets[q.lastOrderedIndex]
		if !ok {
			break
		}
		out = append(out, f)
		delete(q.orderedPackets, q.lastOrderedIndex)
		q.lastOrderedIndex++
	}

	if len(q.packets) > 0 {
		keys := make([]uint32, 0, len(q.packets))
		for k := range q.packets {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		for _, k := range keys {
			out = append(out, q.packets[k])
		}
		q.packets = make(map[uint32]Frame)
	}

	return out
}

func (q *RecvQueue) GetAck() []AckRange  { return q.ackSet.GetAck() }
func (q *RecvQueue) GetNack() []AckRange { return q.ackSet.GetNack() }
