package raknet

import "net/netip"

// Magic is the fixed 16-byte RakNet offline-message marker every unconnected
// control packet carries after its id. The parsers skip over it without
// comparing it against these bytes.
var Magic = [16]byte{
	0x00, 0xFF, 0xFF, 0x00, 0xFE, 0xFE, 0xFE, 0xFE,
	0xFD, 0xFD, 0xFD, 0xFD, 0x12, 0x34, 0x56, 0x78,
}

// Unconnected control packet ids (handshake, pre-session).
const (
	IDUnconnectedPing         = 0x01
	IDConnectionRequest       = 0x05
	IDConnectionReply         = 0x06
	IDConnectionEstablish     = 0x07
	IDConnectionEstablished   = 0x08
	IDUnconnectedPong         = 0x1C
)

// Connected control packet ids (carried inside frame payloads, post-session).
const (
	IDConnectedPing               = 0x00
	IDConnectedPong                = 0x03
	IDConnectedConnectionRequest   = 0x09
	IDConnectionRequestAccepted    = 0x10
	IDNewIncomingConnection        = 0x13
	IDDisconnectionNotification    = 0x15
)

func writeMagic(bs *BitStream) {
	bs.WriteBytes(Magic[:])
}

func skipMagic(bs *BitStream) error {
	_, err := bs.ReadBytes(len(Magic))
	return err
}

// --- Unconnected packets -----------------------------------------------

type UnconnectedPing struct {
	Timestamp uint64
}

func (p *UnconnectedPing) Serialize() []byte {
	bs := NewEmptyBitStream()
	bs.WriteByte(IDUnconnectedPing)
	bs.WriteUint64(p.Timestamp)
	return bs.Bytes()
}

func ParseUnconnectedPing(data []byte) (*UnconnectedPing, error) {
	bs := NewBitStream(data)
	if _, err := bs.ReadByte(); err != nil {
		return nil, err
	}
	ts, err := bs.ReadUint64()
	if err != nil {
		return nil, err
	}
	return &UnconnectedPing{Timestamp: ts}, nil
}

type UnconnectedPong struct {
	Timestamp  uint64
	ServerGUID uint64
	MOTD       string
}

func (p *UnconnectedPong) Serialize() []byte {
	bs := NewEmptyBitStream()
	bs.WriteByte(IDUnconnectedPong)
	bs.WriteUint64(p.Timestamp)
	bs.WriteUint64(p.ServerGUID)
	writeMagic(bs)
	bs.WriteString(p.MOTD)
	return bs.Bytes()
}

func ParseUnconnectedPong(data []byte) (*UnconnectedPong, error) {
	bs := NewBitStream(data)
	if _, err := bs.ReadByte(); err != nil {
		return nil, err
	}
	ts, err := bs.ReadUint64()
	if err != nil {
		return nil, err
	}
	guid, err := bs.ReadUint64()
	if err != nil {
		return nil, err
	}
	if err := skipMagic(bs); err != nil {
		return nil, err
	}
	motd, err := bs.ReadString()
	if err != nil {
		return nil, err
	}
	return &UnconnectedPong{Timestamp: ts, ServerGUID: guid, MOTD: motd}, nil
}

type ConnectionRequest struct {
	ProtocolVersion uint8
}

func (p *ConnectionRequest) Serialize() []byte {
	bs := NewEmptyBitStream()
	bs.WriteByte(IDConnectionRequest)
	writeMagic(bs)
	bs.WriteByte(p.ProtocolVersion)
	return bs.Bytes()
}

func ParseConnectionRequest(data []byte) (*ConnectionRequest, error) {
	bs := NewBitStream(data)
	if _, err := bs.ReadByte(); err != nil {
		return nil, err
	}
	if err := skipMagic(bs); err != nil {
		return nil, err
	}
	v, err := bs.ReadByte()
	if err != nil {
		return nil, err
	}
	return &ConnectionRequest{ProtocolVersion: v}, nil
}

type ConnectionReply struct {
	ServerGUID    uint64
	MTUSize       uint16
	UseEncryption bool
}

func (p *ConnectionReply) Serialize() []byte {
	bs := NewEmptyBitStream()
	bs.WriteByte(IDConnectionReply)
	writeMagic(bs)
	bs.WriteUint64(p.ServerGUID)
	bs.WriteByte(boolByte(p.UseEncryption))
	bs.WriteUint16(p.MTUSize)
	return bs.Bytes()
}

func ParseConnectionReply(data []byte) (*ConnectionReply, error) {
	bs := NewBitStream(data)
	if _, err := bs.ReadByte(); err != nil {
		return nil, err
	}
	if err := skipMagic(bs); err != nil {
		return nil, err
	}
	guid, err := bs.ReadUint64()
	if err != nil {
		return nil, err
	}
	enc, err := bs.ReadByte()
	if err != nil {
		return nil, err
	}
	mtu, err := bs.ReadUint16()
	if err != nil {
		return nil, err
	}
	return &ConnectionReply{ServerGUID: guid, UseEncryption: enc == 1, MTUSize: mtu}, nil
}

type ConnectionEstablish struct {
	ServerAddress netip.AddrPort
	ClientGUID    uint64
	MTUSize       uint16
}

func (p *ConnectionEstablish) Serialize() []byte {
	bs := NewEmptyBitStream()
	bs.WriteByte(IDConnectionEstablish)
	writeMagic(bs)
	bs.WriteAddress(p.ServerAddress)
	bs.WriteUint16(p.MTUSize)
	bs.WriteUint64(p.ClientGUID)
	return bs.Bytes()
}

func ParseConnectionEstablish(data []byte) (*ConnectionEstablish, error) {
	bs := NewBitStream(data)
	if _, err := bs.ReadByte(); err != nil {
		return nil, err
	}
	if err := skipMagic(bs); err != nil {
		return nil, err
	}
	addr, err := bs.ReadAddress()
	if err != nil {
		return nil, err
	}
	mtu, err := bs.ReadUint16()
	if err != nil {
		return nil, err
	}
	guid, err := bs.ReadUint64()
	if err != nil {
		return nil, err
	}
	return &ConnectionEstablish{ServerAddress: addr, MTUSize: mtu, ClientGUID: guid}, nil
}

type ConnectionEstablished struct {
	ClientAddress netip.AddrPort
	ServerGUID    uint64
	MTUSize       uint16
	UseEncryption bool
}

func (p *ConnectionEstablished) Serialize() []byte {
	bs := NewEmptyBitStream()
	bs.WriteByte(IDConnectionEstablished)
	writeMagic(bs)
	bs.WriteUint64(p.ServerGUID)
	bs.WriteAddress(p.ClientAddress)
	bs.WriteUint16(p.MTUSize)
	bs.WriteByte(boolByte(p.UseEncryption))
	return bs.Bytes()
}

func ParseConnectionEstablished(data []byte) (*ConnectionEstablished, error) {
	bs := NewBitStream(data)
	if _, err := bs.ReadByte(); err != nil {
		return nil, err
	}
	if err := skipMagic(bs); err != nil {
		return nil, err
	}
	guid, err := bs.ReadUint64()
	if err != nil {
		return nil, err
	}
	addr, err := bs.ReadAddress()
	if err != nil {
		return nil, err
	}
	mtu, err := bs.ReadUint16()
	if err != nil {
		return nil, err
	}
	enc, err := bs.ReadByte()
	if err != nil {
		return nil, err
	}
	return &ConnectionEstablished{ClientAddress: addr, ServerGUID: guid, MTUSize: mtu, UseEncryption: enc == 1}, nil
}

// --- Connected (post-session) control packets --------------------------

var loopbackFiller = netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), 0)
var broadcastFiller = netip.AddrPortFrom(netip.MustParseAddr("255.255.255.255"), 0)

func writeSystemAddresses(bs *BitStream) {
	bs.WriteAddress(loopbackFiller)
	for i := 0; i < 9; i++ {
		bs.WriteAddress(broadcastFiller)
	}
}

func skipSystemAddresses(bs *BitStream) error {
	for i := 0; i < 10; i++ {
		if _, err := bs.ReadAddress(); err != nil {
			return err
		}
	}
	return nil
}

type ConnectedPing struct {
	Timestamp uint64
}

func (p *ConnectedPing) Serialize() []byte {
	bs := NewEmptyBitStream()
	bs.WriteByte(IDConnectedPing)
	bs.WriteUint64(p.Timestamp)
	return bs.Bytes()
}

func ParseConnectedPing(data []byte) (*ConnectedPing, error) {
	bs := NewBitStream(data)
	if _, err := bs.ReadByte(); err != nil {
		return nil, err
	}
	ts, err := bs.ReadUint64()
	if err != nil {
		return nil, err
	}
	return &ConnectedPing{Timestamp: ts}, nil
}

type ConnectedPong struct {
	Timestamp  uint64
	ServerTime uint64
}

func (p *ConnectedPong) Serialize() []byte {
	bs := NewEmptyBitStream()
	bs.WriteByte(IDConnectedPong)
	bs.WriteUint64(p.Timestamp)
	bs.WriteUint64(p.ServerTime)
	return bs.Bytes()
}

func ParseConnectedPong(data []byte) (*ConnectedPong, error) {
	bs := NewBitStream(data)
	if _, err := bs.ReadByte(); err != nil {
		return nil, err
	}
	ts, err := bs.ReadUint64()
	if err != nil {
		return nil, err
	}
	st, err := bs.ReadUint64()
	if err != nil {
		return nil, err
	}
	return &ConnectedPong{Timestamp: ts, ServerTime: st}, nil
}

type ConnectedConnectionRequest struct {
	ClientGUID    uint64
	Timestamp     uint64
	UseEncryption bool
}

func (p *ConnectedConnectionRequest) Serialize() []byte {
	bs := NewEmptyBitStream()
	bs.WriteByte(IDConnectedConnectionRequest)
	bs.WriteUint64(p.ClientGUID)
	bs.WriteUint64(p.Timestamp)
	bs.WriteByte(boolByte(p.UseEncryption))
	return bs.Bytes()
}

func ParseConnectedConnectionRequest(data []byte) (*ConnectedConnectionRequest, error) {
	bs := NewBitStream(data)
	if _, err := bs.ReadByte(); err != nil {
		return nil, err
	}
	guid, err := bs.ReadUint64()
	if err != nil {
		return nil, err
	}
	ts, err := bs.ReadUint64()
	if err != nil {
		return nil, err
	}
	enc, err := bs.ReadByte()
	if err != nil {
		return nil, err
	}
	return &ConnectedConnectionRequest{ClientGUID: guid, Timestamp: ts, UseEncryption: enc == 1}, nil
}

type ConnectionRequestAccepted struct {
	ClientAddress     netip.AddrPort
	SystemIndex       uint16
	RequestTimestamp  uint64
	AcceptedTimestamp uint64
}

func (p *ConnectionRequestAccepted) Serialize() []byte {
	bs := NewEmptyBitStream()
	bs.WriteByte(IDConnectionRequestAccepted)
	bs.WriteAddress(p.ClientAddress)
	bs.WriteUint16(p.SystemIndex)
	writeSystemAddresses(bs)
	bs.WriteUint64(p.RequestTimestamp)
	bs.WriteUint64(p.AcceptedTimestamp)
	return bs.Bytes()
}

func ParseConnectionRequestAccepted(data []byte) (*ConnectionRequestAccepted, error) {
	bs := NewBitStream(data)
	if _, err := bs.ReadByte(); err != nil {
		return nil, err
	}
	addr, err := bs.ReadAddress()
	if err != nil {
		return nil, err
	}
	idx, err := bs.ReadUint16()
	if err != nil {
		return nil, err
	}
	if err := skipSystemAddresses(bs); err != nil {
		return nil, err
	}
	reqTS, err := bs.ReadUint64()
	if err != nil {
		return nil, err
	}
	accTS, err := bs.ReadUint64()
	if err != nil {
		return nil, err
	}
	return &ConnectionRequestAccepted{ClientAddress: addr, SystemIndex: idx, RequestTimestamp: reqTS, AcceptedTimestamp: accTS}, nil
}

type NewIncomingConnection struct {
	ServerAddress     netip.AddrPort
	RequestTimestamp  uint64
	AcceptedTimestamp uint64
}

func (p *NewIncomingConnection) Serialize() []byte {
	bs := NewEmptyBitStream()
	bs.WriteByte(IDNewIncomingConnection)
	bs.WriteAddress(p.ServerAddress)
	writeSystemAddresses(bs)
	bs.WriteUint64(p.RequestTimestamp)
	bs.WriteUint64(p.AcceptedTimestamp)
	return bs.Bytes()
}

func ParseNewIncomingConnection(data []byte) (*NewIncomingConnection, error) {
	bs := NewBitStream(data)
	if _, err := bs.ReadByte(); err != nil {
		return nil, err
	}
	addr, err := bs.ReadAddress()
	if err != nil {
		return nil, err
	}
	if err := skipSystemAddresses(bs); err != nil {
		return nil, err
	}
	reqTS, err := bs.ReadUint64()
	if err != nil {
		return nil, err
	}
	accTS, err := bs.ReadUint64()
	if err != nil {
		return nil, err
	}
	return &NewIncomingConnection{ServerAddress: addr, RequestTimestamp: reqTS, AcceptedTimestamp: accTS}, nil
}

// DisconnectionNotification carries no payload beyond its id byte.
var disconnectionNotificationBytes = []byte{IDDisconnectionNotification}

func SerializeDisconnectionNotification() []byte {
	return append([]byte(nil), disconnectionNotificationBytes...)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
