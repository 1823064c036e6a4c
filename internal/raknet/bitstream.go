package raknet

import (
	"encoding/binary"
	"math"
	"net/netip"
)

// BitStream is a cursor-based reader/writer over a byte buffer, carried over
// from the teacher's encoder/decoder split rather than rewritten around
// encoding/gob or a reflective codec.
type BitStream struct {
	data   []byte
	offset int
}

func NewBitStream(data []byte) *BitStream {
	return &BitStream{data: data}
}

func NewEmptyBitStream() *BitStream {
	return &BitStream{data: make([]byte, 0, 64)}
}

func (bs *BitStream) ReadByte() (byte, error) {
	if bs.offset >= len(bs.data) {
		return 0, ErrBufferOverflow
	}
	b := bs.data[bs.offset]
	bs.offset++
	return b, nil
}

func (bs *BitStream) ReadBytes(n int) ([]byte, error) {
	if n < 0 || bs.offset+n > len(bs.data) {
		return nil, ErrBufferOverflow
	}
	result := bs.data[bs.offset : bs.offset+n]
	bs.offset += n
	return result, nil
}

func (bs *BitStream) ReadUint16() (uint16, error) {
	data, err := bs.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(data), nil
}

func (bs *BitStream) ReadUint24() (uint32, error) {
	data, err := bs.ReadBytes(3)
	if err != nil {
		return 0, err
	}
	return uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16, nil
}

func (bs *BitStream) ReadUint32() (uint32, error) {
	data, err := bs.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(data), nil
}

func (bs *BitStream) ReadInt32() (int32, error) {
	v, err := bs.ReadUint32()
	return int32(v), err
}

func (bs *BitStream) ReadUint64() (uint64, error) {
	data, err := bs.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(data), nil
}

func (bs *BitStream) ReadFloat32() (float32, error) {
	v, err := bs.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (bs *BitStream) ReadString() (string, error) {
	length, err := bs.ReadUint16()
	if err != nil {
		return "", err
	}
	data, err := bs.ReadBytes(int(length))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadAddress matches the RakNet 0.10 wire shape: a family byte (4 or 6),
// the address bytes bitwise-inverted, then a big-endian port.
func (bs *BitStream) ReadAddress() (netip.AddrPort, error) {
	family, err := bs.ReadByte()
	if err != nil {
		return netip.AddrPort{}, err
	}

	var addr netip.Addr
	switch family {
	case 4:
		raw, err := bs.ReadBytes(4)
		if err != nil {
			return netip.AddrPort{}, err
		}
		var b [4]byte
		for i := range raw {
			b[i] = ^raw[i]
		}
		addr = netip.AddrFrom4(b)
	case 6:
		raw, err := bs.ReadBytes(16)
		if err != nil {
			return netip.AddrPort{}, err
		}
		var b [16]byte
		for i := range raw {
			b[i] = ^raw[i]
		}
		addr = netip.AddrFrom16(b)
	default:
		return netip.AddrPort{}, ErrUnsupportedAddressFamily
	}

	port, err := bs.ReadUint16()
	if err != nil {
		return netip.AddrPort{}, err
	}
	return netip.AddrPortFrom(addr, port), nil
}

func (bs *BitStream) WriteByte(b byte) {
	bs.data = append(bs.data, b)
}

func (bs *BitStream) WriteBytes(data []byte) {
	bs.data = append(bs.data, data...)
}

func (bs *BitStream) WriteUint16(v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	bs.data = append(bs.data, buf[:]...)
}

func (bs *BitStream) WriteUint24(v uint32) {
	bs.data = append(bs.data, byte(v), byte(v>>8), byte(v>>16))
}

func (bs *BitStream) WriteUint32(v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	bs.data = append(bs.data, buf[:]...)
}

func (bs *BitStream) WriteInt32(v int32) {
	bs.WriteUint32(uint32(v))
}

func (bs *BitStream) WriteUint64(v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	bs.data = append(bs.data, buf[:]...)
}

func (bs *BitStream) WriteFloat32(v float32) {
	bs.WriteUint32(math.Float32bits(v))
}

func (bs *BitStream) WriteString(s string) {
	bs.WriteUint16(uint16(len(s)))
	bs.data = append(bs.data, s...)
}

func (bs *BitStream) WriteAddress(ap netip.AddrPort) {
	addr := ap.Addr()
	if addr.Is4() {
		bs.WriteByte(4)
		b := addr.As4()
		for i := range b {
			bs.WriteByte(^b[i])
		}
	} else {
		bs.WriteByte(6)
		b := addr.As16()
		for i := range b {
			bs.WriteByte(^b[i])
		}
	}
	bs.WriteUint16(ap.Port())
}

func (bs *BitStream) Bytes() []byte {
	return bs.data
}

func (bs *BitStream) Remaining() int {
	return len(bs.data) - bs.offset
}
