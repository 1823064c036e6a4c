package raknet

// needsBAndASFlag and continuousSendFlag are ORed into the high bit (0x80)
// that marks a datagram as a frame set. Every real frameset on the wire
// carries needsBAndASFlag set (id 0x84); continuousSendFlag additionally
// marks a datagram whose frames continue a fragmented compound (id 0x8C).
// Neither flag changes how this server parses or builds the frame set body —
// the reliability class lives per-frame — but the id byte has to carry them
// for a real RakNet-0.10 client to recognize the datagram at all.
const (
	needsBAndASFlag    = 0x04
	continuousSendFlag = 0x08
)

// FrameSet is one UDP datagram's worth of frames sharing a single sequence
// number, matching the teacher's DataPacket framing.
type FrameSet struct {
	SequenceNumber uint32
	Frames         []Frame
}

func (fs *FrameSet) Serialize() []byte {
	id := byte(0x80 | needsBAndASFlag)
	for i := range fs.Frames {
		if fs.Frames[i].FragmentIndex != 0 {
			id |= continuousSendFlag
			break
		}
	}

	bs := NewEmptyBitStream()
	bs.WriteByte(id)
	bs.WriteUint24(fs.SequenceNumber)
	for i := range fs.Frames {
		fs.Frames[i].serialize(bs)
	}
	return bs.Bytes()
}

func ParseFrameSet(data []byte) (*FrameSet, error) {
	if len(data) < 4 || !IsFrameSetID(data[0]) {
		return nil, ErrNotAFrameSet
	}
	bs := NewBitStream(data)
	if _, err := bs.ReadByte(); err != nil {
		return nil, err
	}
	seq, err := bs.ReadUint24()
	if err != nil {
		return nil, err
	}

	fs := &FrameSet{SequenceNumber: seq}
	for bs.Remaining() > 0 {
		frame, err := parseFrame(bs)
		if err != nil {
			return nil, err
		}
		fs.Frames = append(fs.Frames, frame)
	}
	return fs, nil
}

// IsFrameSetID reports whether a received datagram's leading byte marks it as
// a frame set rather than an unconnected/connected control message.
func IsFrameSetID(id byte) bool {
	return id&0x80 != 0
}
