package raknet

// fragmentFlag marks a frame as one piece of a split reliable-ordered
// message; it is bit 4 of the flags byte, just below the reliability class
// in the top three bits.
const fragmentFlag = 0x10

// Frame is one encapsulated application payload inside a FrameSet. Field
// names follow the original reliability engine rather than the teacher's
// EncapsulatedPacket, since the teacher's naming (MessageIndex/OrderIndex)
// conflates reliable and ordered indices that this transport keeps distinct.
type Frame struct {
	Reliability         Reliability
	ReliableFrameIndex  uint32
	SequencedFrameIndex uint32
	OrderedFrameIndex   uint32
	OrderChannel        uint8

	CompoundSize  uint32
	CompoundID    uint16
	FragmentIndex uint32

	Data []byte
}

func NewFrame(reliability Reliability, data []byte) Frame {
	return Frame{Reliability: reliability, Data: data}
}

func (f *Frame) IsFragment() bool {
	return f.CompoundSize != 0
}

// serialize appends this frame's wire representation (flags byte, bit-length,
// the conditional index fields, optional fragment header, then payload) to
// bs. The packet id and datagram sequence number are written once by the
// owning FrameSet, not per frame.
func (f *Frame) serialize(bs *BitStream) {
	flags := byte(f.Reliability) << 5
	if f.IsFragment() {
		flags |= fragmentFlag
	}
	bs.WriteByte(flags)
	bs.WriteUint16(uint16(len(f.Data)) * 8)

	if f.Reliability.IsReliable() {
		bs.WriteUint24(f.ReliableFrameIndex)
	}
	if f.Reliability.IsSequenced() {
		bs.WriteUint24(f.SequencedFrameIndex)
	}
	if f.Reliability.IsOrdered() {
		bs.WriteUint24(f.OrderedFrameIndex)
		bs.WriteByte(f.OrderChannel)
	}
	if f.IsFragment() {
		bs.WriteUint32(f.CompoundSize)
		bs.WriteUint16(f.CompoundID)
		bs.WriteUint32(f.FragmentIndex)
	}
	bs.WriteBytes(f.Data)
}

func parseFrame(bs *BitStream) (Frame, error) {
	var f Frame

	flags, err := bs.ReadByte()
	if err != nil {
		return f, err
	}
	f.Reliability = Reliability((flags >> 5) & 0x07)
	if !f.Reliability.Valid() {
		return f, ErrInvalidReliability
	}
	isFragment := flags&fragmentFlag != 0

	lengthBits, err := bs.ReadUint16()
	if err != nil {
		return f, err
	}
	length := int((lengthBits + 7) / 8)

	if f.Reliability.IsReliable() {
		if f.ReliableFrameIndex, err = bs.ReadUint24(); err != nil {
			return f, err
		}
	}
	if f.Reliability.IsSequenced() {
		if f.SequencedFrameIndex, err = bs.ReadUint24(); err != nil {
			return f, err
		}
	}
	if f.Reliability.IsOrdered() {
		if f.OrderedFrameIndex, err = bs.ReadUint24(); err != nil {
			return f, err
		}
		if f.OrderChannel, err = bs.ReadByte(); err != nil {
			return f, err
		}
	}
	if isFragment {
		if f.CompoundSize, err = bs.ReadUint32(); err != nil {
			return f, err
		}
		if id, err := bs.ReadUint16(); err != nil {
			return f, err
		} else {
			f.CompoundID = id
		}
		if f.FragmentIndex, err = bs.ReadUint32(); err != nil {
			return f, err
		}
	}

	data, err := bs.ReadBytes(length)
	if err != nil {
		return f, err
	}
	f.Data = append([]byte(nil), data...)
	return f, nil
}
