package raknet

import (
	"bytes"
	"testing"
)

func TestFrameRoundTripReliableOrdered(t *testing.T) {
	f := NewFrame(ReliableOrdered, []byte{0xAA, 0xBB, 0xCC})
	f.ReliableFrameIndex = 7
	f.OrderedFrameIndex = 3
	f.OrderChannel = 0

	bs := NewEmptyBitStream()
	f.serialize(bs)

	r := NewBitStream(bs.Bytes())
	got, err := parseFrame(r)
	if err != nil {
		t.Fatalf("parseFrame: %v", err)
	}
	if got.Reliability != ReliableOrdered {
		t.Errorf("reliability = %v, want ReliableOrdered", got.Reliability)
	}
	if got.ReliableFrameIndex != 7 || got.OrderedFrameIndex != 3 {
		t.Errorf("indices = (%d, %d), want (7, 3)", got.ReliableFrameIndex, got.OrderedFrameIndex)
	}
	if !bytes.Equal(got.Data, f.Data) {
		t.Errorf("data = %v, want %v", got.Data, f.Data)
	}
}

func TestFrameRoundTripUnreliable(t *testing.T) {
	f := NewFrame(Unreliable, []byte("ping"))
	bs := NewEmptyBitStream()
	f.serialize(bs)

	got, err := parseFrame(NewBitStream(bs.Bytes()))
	if err != nil {
		t.Fatalf("parseFrame: %v", err)
	}
	if got.ReliableFrameIndex != 0 || got.OrderedFrameIndex != 0 {
		t.Errorf("unreliable frame should carry no indices, got %+v", got)
	}
}

func TestFrameSetRoundTrip(t *testing.T) {
	fs := &FrameSet{
		SequenceNumber: 99,
		Frames: []Frame{
			NewFrame(Reliable, []byte("one")),
		},
	}
	fs.Frames[0].ReliableFrameIndex = 1

	data := fs.Serialize()
	if !IsFrameSetID(data[0]) {
		t.Fatalf("leading byte 0x%02X is not a frame-set id", data[0])
	}

	got, err := ParseFrameSet(data)
	if err != nil {
		t.Fatalf("ParseFrameSet: %v", err)
	}
	if got.SequenceNumber != 99 {
		t.Errorf("sequence number = %d, want 99", got.SequenceNumber)
	}
	if len(got.Frames) != 1 || string(got.Frames[0].Data) != "one" {
		t.Errorf("frames = %+v", got.Frames)
	}
}

func TestFrameSetSerializeSetsNeedsBAndASFlag(t *testing.T) {
	fs := &FrameSet{
		SequenceNumber: 1,
		Frames:         []Frame{NewFrame(Unreliable, []byte("x"))},
	}
	data := fs.Serialize()
	if data[0] != 0x84 {
		t.Fatalf("leading byte = 0x%02X, want 0x84 (0x80|NEEDS_B_AND_AS_FLAG)", data[0])
	}
}

func TestFrameSetSerializeSetsContinuousSendFlagForFragmentContinuation(t *testing.T) {
	frag := NewFrame(ReliableOrdered, []byte("y"))
	frag.CompoundSize, frag.CompoundID, frag.FragmentIndex = 2, 1, 1
	fs := &FrameSet{SequenceNumber: 2, Frames: []Frame{frag}}

	data := fs.Serialize()
	if data[0] != 0x8C {
		t.Fatalf("leading byte = 0x%02X, want 0x8C (0x80|NEEDS_B_AND_AS_FLAG|CONTINUOUS_SEND_FLAG)", data[0])
	}
}

// A real RakNet-0.10 client's wire framesets always carry NEEDS_B_AND_AS_FLAG
// (and sometimes CONTINUOUS_SEND_FLAG), never the bare 0x80 this server used
// to require; ParseFrameSet must accept those ids.
func TestParseFrameSetAcceptsRealWireFlagBits(t *testing.T) {
	for _, id := range []byte{0x84, 0x8C} {
		fs := &FrameSet{
			SequenceNumber: 5,
			Frames:         []Frame{NewFrame(Reliable, []byte("z"))},
		}
		data := fs.Serialize()
		data[0] = id // force the id under test, independent of what Serialize chose

		got, err := ParseFrameSet(data)
		if err != nil {
			t.Fatalf("ParseFrameSet(id=0x%02X): %v", id, err)
		}
		if got.SequenceNumber != 5 || len(got.Frames) != 1 {
			t.Errorf("ParseFrameSet(id=0x%02X) = %+v, want sequence 5 with one frame", id, got)
		}
	}
}

func TestFragmentReassembly(t *testing.T) {
	q := newFragmentQueue()
	full := []byte("abcdefghij")

	a := NewFrame(ReliableOrdered, full[:5])
	a.CompoundSize, a.CompoundID, a.FragmentIndex, a.OrderedFrameIndex = 2, 1, 0, 5
	b := NewFrame(ReliableOrdered, full[5:])
	b.CompoundSize, b.CompoundID, b.FragmentIndex, b.OrderedFrameIndex = 2, 1, 1, 5

	q.insert(a)
	if got := q.flush(); len(got) != 0 {
		t.Fatalf("flush before compound complete: got %d frames, want 0", len(got))
	}
	q.insert(b)

	merged := q.flush()
	if len(merged) != 1 {
		t.Fatalf("flush after compound complete: got %d frames, want 1", len(merged))
	}
	if !bytes.Equal(merged[0].Data, full) {
		t.Errorf("merged data = %q, want %q", merged[0].Data, full)
	}
	if merged[0].OrderedFrameIndex != 5 {
		t.Errorf("merged ordered index = %d, want 5", merged[0].OrderedFrameIndex)
	}
}
