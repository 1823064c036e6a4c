package raknet

import (
	"net/netip"
	"testing"
)

func TestBitStreamWriteRead(t *testing.T) {
	bs := NewEmptyBitStream()
	bs.WriteByte(0x42)
	bs.WriteUint16(1234)
	bs.WriteUint24(567890)
	bs.WriteUint32(987654321)
	bs.WriteString("Hello World")

	r := NewBitStream(bs.Bytes())

	b, err := r.ReadByte()
	if err != nil || b != 0x42 {
		t.Errorf("ReadByte: got (%v, %v), want 0x42", b, err)
	}

	u16, err := r.ReadUint16()
	if err != nil || u16 != 1234 {
		t.Errorf("ReadUint16: got (%v, %v), want 1234", u16, err)
	}

	u24, err := r.ReadUint24()
	if err != nil || u24 != 567890 {
		t.Errorf("ReadUint24: got (%v, %v), want 567890", u24, err)
	}

	u32, err := r.ReadUint32()
	if err != nil || u32 != 987654321 {
		t.Errorf("ReadUint32: got (%v, %v), want 987654321", u32, err)
	}

	str, err := r.ReadString()
	if err != nil || str != "Hello World" {
		t.Errorf("ReadString: got (%q, %v), want \"Hello World\"", str, err)
	}
}

func TestBitStreamOverflow(t *testing.T) {
	r := NewBitStream([]byte{0x01})
	if _, err := r.ReadUint32(); err != ErrBufferOverflow {
		t.Errorf("expected ErrBufferOverflow, got %v", err)
	}
}

func TestAddressWriteReadIPv4(t *testing.T) {
	bs := NewEmptyBitStream()
	addr := netip.MustParseAddrPort("192.168.1.100:7777")
	bs.WriteAddress(addr)

	r := NewBitStream(bs.Bytes())
	got, err := r.ReadAddress()
	if err != nil {
		t.Fatalf("ReadAddress: %v", err)
	}
	if got != addr {
		t.Errorf("got %v, want %v", got, addr)
	}
}
