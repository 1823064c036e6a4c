package raknet

import "testing"

func TestRecvQueueOrdersReliableOrdered(t *testing.T) {
	q := NewRecvQueue()

	second := NewFrame(ReliableOrdered, []byte("second"))
	second.OrderedFrameIndex = 1
	first := NewFrame(ReliableOrdered, []byte("first"))
	first.OrderedFrameIndex = 0

	// Arrives out of order.
	q.Insert(10, second)
	if got := q.Flush(); len(got) != 0 {
		t.Fatalf("flush before index 0 arrives: got %d frames, want 0", len(got))
	}

	q.Insert(9, first)
	got := q.Flush()
	if len(got) != 2 {
		t.Fatalf("got %d frames, want 2", len(got))
	}
	if string(got[0].Data) != "first" || string(got[1].Data) != "second" {
		t.Errorf("delivery order = %q, %q", got[0].Data, got[1].Data)
	}
}

func TestRecvQueueDedupesBySequenceNumber(t *testing.T) {
	q := NewRecvQueue()
	f := NewFrame(Reliable, []byte("x"))

	q.Insert(1, f)
	q.Insert(1, f)

	got := q.Flush()
	if len(got) != 1 {
		t.Errorf("got %d frames after duplicate insert, want 1", len(got))
	}
}

func TestRecvQueueDropsStaleSequencedFrame(t *testing.T) {
	q := NewRecvQueue()

	newer := NewFrame(UnreliableSequenced, []byte("new"))
	newer.SequencedFrameIndex = 5
	older := NewFrame(UnreliableSequenced, []byte("old"))
	older.SequencedFrameIndex = 2

	q.Insert(1, newer)
	q.Insert(2, older)

	got := q.Flush()
	if len(got) != 1 || string(got[0].Data) != "new" {
		t.Errorf("got %+v, want only the newer sequenced frame", got)
	}
}

func TestRecvQueueAckTracksSeenSequences(t *testing.T) {
	q := NewRecvQueue()
	q.Insert(1, NewFrame(Unreliable, []byte("a")))
	q.Insert(2, NewFrame(Unreliable, []byte("b")))

	ranges := q.GetAck()
	if len(ranges) != 1 || ranges[0].Start != 1 || ranges[0].End != 2 {
		t.Errorf("ack ranges = %+v, want [{1 2}]", ranges)
	}
}
