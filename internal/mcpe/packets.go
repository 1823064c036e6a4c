package mcpe

import "github.com/nostalgia-server/nostalgia/internal/raknet"

// Packet ids, carried as the first byte of a connected frame's payload once
// the RakNet handshake has completed.
const (
	IDLoginRequest  = 0x82
	IDLoginResponse = 0x83
	IDStartGame     = 0x87
	IDAddMob        = 0x88
	IDMessage       = 0x85
	IDMovePlayer    = 0x95
	IDRemoveBlock   = 0x97
	IDUpdateBlock   = 0x98
	IDExplode       = 0x9A
	IDUseItem       = 0xA3
	IDAnimate       = 0xAC
)

// Packet is implemented by every typed MCPE message this server round-trips.
// Dispatch is by the tag returned from ID(), not by type assertion on a
// shared base class — there is no entity/packet inheritance graph here.
type Packet interface {
	ID() byte
	Serialize() []byte
}

func newWriter(id byte) *raknet.BitStream {
	bs := raknet.NewEmptyBitStream()
	bs.WriteByte(id)
	return bs
}

// LoginRequest is the client's handshake into the game proper, sent once the
// RakNet session is fully established.
type LoginRequest struct {
	Username       string
	ProtocolMajor  int32
	ProtocolMinor  int32
	ClientID       uint32
	RealmsData     string
}

func (p *LoginRequest) ID() byte { return IDLoginRequest }

func (p *LoginRequest) Serialize() []byte {
	bs := newWriter(IDLoginRequest)
	bs.WriteString(p.Username)
	bs.WriteInt32(p.ProtocolMajor)
	bs.WriteInt32(p.ProtocolMinor)
	bs.WriteUint32(p.ClientID)
	bs.WriteString(p.RealmsData)
	return bs.Bytes()
}

func ParseLoginRequest(data []byte) (*LoginRequest, error) {
	bs := raknet.NewBitStream(data)
	if _, err := bs.ReadByte(); err != nil {
		return nil, err
	}
	username, err := bs.ReadString()
	if err != nil {
		return nil, err
	}
	major, err := bs.ReadInt32()
	if err != nil {
		return nil, err
	}
	minor, err := bs.ReadInt32()
	if err != nil {
		return nil, err
	}
	clientID, err := bs.ReadUint32()
	if err != nil {
		return nil, err
	}
	realms, err := bs.ReadString()
	if err != nil {
		return nil, err
	}
	return &LoginRequest{
		Username:      username,
		ProtocolMajor: major,
		ProtocolMinor: minor,
		ClientID:      clientID,
		RealmsData:    realms,
	}, nil
}

// LoginResponse carries the login verdict: 0 means accepted, any other
// value rejects the client (the only rejection this server issues is for a
// protocol_minor mismatch).
type LoginResponse struct {
	Status int32
}

func (p *LoginResponse) ID() byte { return IDLoginResponse }

func (p *LoginResponse) Serialize() []byte {
	bs := newWriter(IDLoginResponse)
	bs.WriteInt32(p.Status)
	return bs.Bytes()
}

// StartGame hands the freshly logged-in client its spawn world state.
type StartGame struct {
	WorldSeed        int32
	GeneratorVersion int32
	Gamemode         int32
	EntityID         int32
	Position         Vector3
}

func (p *StartGame) ID() byte { return IDStartGame }

func (p *StartGame) Serialize() []byte {
	bs := newWriter(IDStartGame)
	bs.WriteInt32(p.WorldSeed)
	bs.WriteInt32(p.GeneratorVersion)
	bs.WriteInt32(p.Gamemode)
	bs.WriteInt32(p.EntityID)
	bs.WriteFloat32(p.Position.X)
	bs.WriteFloat32(p.Position.Y)
	bs.WriteFloat32(p.Position.Z)
	return bs.Bytes()
}

// AddMob spawns a server-authored mob entity client-side. Metadata is kept
// as a raw, already-terminated synced-entity-data blob rather than a typed
// NBT-style tag tree: full entity metadata is out of scope here, but the
// wire slot for it is preserved so a real implementation has somewhere to
// put it.
type AddMob struct {
	EntityID   int32
	EntityType int32
	Position   Vector3
	Yaw, Pitch uint8
	Metadata   []byte
}

func (p *AddMob) ID() byte { return IDAddMob }

func (p *AddMob) Serialize() []byte {
	bs := newWriter(IDAddMob)
	bs.WriteInt32(p.EntityID)
	bs.WriteInt32(p.EntityType)
	bs.WriteFloat32(p.Position.X)
	bs.WriteFloat32(p.Position.Y)
	bs.WriteFloat32(p.Position.Z)
	bs.WriteByte(p.Yaw)
	bs.WriteByte(p.Pitch)
	if len(p.Metadata) == 0 {
		bs.WriteByte(0x7F) // synced-entity-data terminator, no entries
	} else {
		bs.WriteBytes(p.Metadata)
	}
	return bs.Bytes()
}

// Message is a chat line, either relayed from a player or server-authored.
type Message struct {
	Username string
	Text     string
}

func (p *Message) ID() byte { return IDMessage }

func (p *Message) Serialize() []byte {
	bs := newWriter(IDMessage)
	bs.WriteString(p.Username)
	bs.WriteString(p.Text)
	return bs.Bytes()
}

func ParseMessage(data []byte) (*Message, error) {
	bs := raknet.NewBitStream(data)
	if _, err := bs.ReadByte(); err != nil {
		return nil, err
	}
	username, err := bs.ReadString()
	if err != nil {
		return nil, err
	}
	text, err := bs.ReadString()
	if err != nil {
		return nil, err
	}
	return &Message{Username: username, Text: text}, nil
}

// MovePlayer reports (or relays) a player's new position and rotation.
type MovePlayer struct {
	EntityID int32
	Position Vector3
	Rotation Vector3
}

func (p *MovePlayer) ID() byte { return IDMovePlayer }

func (p *MovePlayer) Serialize() []byte {
	bs := newWriter(IDMovePlayer)
	bs.WriteInt32(p.EntityID)
	bs.WriteFloat32(p.Position.X)
	bs.WriteFloat32(p.Position.Y)
	bs.WriteFloat32(p.Position.Z)
	bs.WriteFloat32(p.Rotation.X)
	bs.WriteFloat32(p.Rotation.Y)
	bs.WriteFloat32(p.Rotation.Z)
	return bs.Bytes()
}

func ParseMovePlayer(data []byte) (*MovePlayer, error) {
	bs := raknet.NewBitStream(data)
	if _, err := bs.ReadByte(); err != nil {
		return nil, err
	}
	entityID, err := bs.ReadInt32()
	if err != nil {
		return nil, err
	}
	pos, err := readVector3(bs)
	if err != nil {
		return nil, err
	}
	rot, err := readVector3(bs)
	if err != nil {
		return nil, err
	}
	return &MovePlayer{EntityID: entityID, Position: pos, Rotation: rot}, nil
}

// RemoveBlock clears a single block position.
type RemoveBlock struct {
	EntityID int32
	X, Z     int32
	Y        uint8
}

func (p *RemoveBlock) ID() byte { return IDRemoveBlock }

func (p *RemoveBlock) Serialize() []byte {
	bs := newWriter(IDRemoveBlock)
	bs.WriteInt32(p.EntityID)
	bs.WriteInt32(p.X)
	bs.WriteInt32(p.Z)
	bs.WriteByte(p.Y)
	return bs.Bytes()
}

// UpdateBlock sets a single block position to a new block id/meta.
type UpdateBlock struct {
	EntityID    int32
	X, Z        int32
	Y           uint8
	Block, Meta uint8
}

func (p *UpdateBlock) ID() byte { return IDUpdateBlock }

func (p *UpdateBlock) Serialize() []byte {
	bs := newWriter(IDUpdateBlock)
	bs.WriteInt32(p.EntityID)
	bs.WriteInt32(p.X)
	bs.WriteInt32(p.Z)
	bs.WriteByte(p.Y)
	bs.WriteByte(p.Block)
	bs.WriteByte(p.Meta)
	return bs.Bytes()
}

// Explode reports a block-destroying explosion at pos.
type Explode struct {
	Position Vector3
	Radius   float32
	Count    int32
}

func (p *Explode) ID() byte { return IDExplode }

func (p *Explode) Serialize() []byte {
	bs := newWriter(IDExplode)
	bs.WriteFloat32(p.Position.X)
	bs.WriteFloat32(p.Position.Y)
	bs.WriteFloat32(p.Position.Z)
	bs.WriteFloat32(p.Radius)
	bs.WriteInt32(p.Count)
	return bs.Bytes()
}

func ParseExplode(data []byte) (*Explode, error) {
	bs := raknet.NewBitStream(data)
	if _, err := bs.ReadByte(); err != nil {
		return nil, err
	}
	pos, err := readVector3(bs)
	if err != nil {
		return nil, err
	}
	radius, err := bs.ReadFloat32()
	if err != nil {
		return nil, err
	}
	count, err := bs.ReadInt32()
	if err != nil {
		return nil, err
	}
	return &Explode{Position: pos, Radius: radius, Count: count}, nil
}

// UseItem reports a player interacting with the world using a held item.
// ID is read little-endian in the original protocol — the one outlier
// among otherwise big-endian integer fields — and that quirk is preserved.
type UseItem struct {
	X, Y, Z  int32
	Block    uint16
	Meta     uint8
	ItemID   int32
	FacePos  Vector3
	Position Vector3
}

func (p *UseItem) ID() byte { return IDUseItem }

func (p *UseItem) Serialize() []byte {
	bs := newWriter(IDUseItem)
	bs.WriteInt32(p.X)
	bs.WriteInt32(p.Y)
	bs.WriteInt32(p.Z)
	bs.WriteUint16(p.Block)
	bs.WriteByte(p.Meta)
	writeInt32LE(bs, p.ItemID)
	bs.WriteFloat32(p.FacePos.X)
	bs.WriteFloat32(p.FacePos.Y)
	bs.WriteFloat32(p.FacePos.Z)
	bs.WriteFloat32(p.Position.X)
	bs.WriteFloat32(p.Position.Y)
	bs.WriteFloat32(p.Position.Z)
	return bs.Bytes()
}

func ParseUseItem(data []byte) (*UseItem, error) {
	bs := raknet.NewBitStream(data)
	if _, err := bs.ReadByte(); err != nil {
		return nil, err
	}
	x, err := bs.ReadInt32()
	if err != nil {
		return nil, err
	}
	y, err := bs.ReadInt32()
	if err != nil {
		return nil, err
	}
	z, err := bs.ReadInt32()
	if err != nil {
		return nil, err
	}
	block, err := bs.ReadUint16()
	if err != nil {
		return nil, err
	}
	meta, err := bs.ReadByte()
	if err != nil {
		return nil, err
	}
	itemID, err := readInt32LE(bs)
	if err != nil {
		return nil, err
	}
	facePos, err := readVector3(bs)
	if err != nil {
		return nil, err
	}
	position, err := readVector3(bs)
	if err != nil {
		return nil, err
	}
	return &UseItem{
		X: x, Y: y, Z: z,
		Block: block, Meta: meta, ItemID: itemID,
		FacePos: facePos, Position: position,
	}, nil
}

// writeInt32LE/readInt32LE encode UseItem's item id little-endian — the one
// field the original protocol reads/writes that way amid otherwise
// big-endian integers. Preserved rather than "fixed" to an all-BE layout.
func writeInt32LE(bs *raknet.BitStream, v int32) {
	u := uint32(v)
	bs.WriteByte(byte(u))
	bs.WriteByte(byte(u >> 8))
	bs.WriteByte(byte(u >> 16))
	bs.WriteByte(byte(u >> 24))
}

func readInt32LE(bs *raknet.BitStream) (int32, error) {
	b, err := bs.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	u := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return int32(u), nil
}

// Animate plays an entity animation (arm swing, etc.).
type Animate struct {
	Action   uint8
	EntityID int32
}

func (p *Animate) ID() byte { return IDAnimate }

func (p *Animate) Serialize() []byte {
	bs := newWriter(IDAnimate)
	bs.WriteByte(p.Action)
	bs.WriteInt32(p.EntityID)
	return bs.Bytes()
}

func ParseAnimate(data []byte) (*Animate, error) {
	bs := raknet.NewBitStream(data)
	if _, err := bs.ReadByte(); err != nil {
		return nil, err
	}
	action, err := bs.ReadByte()
	if err != nil {
		return nil, err
	}
	entityID, err := bs.ReadInt32()
	if err != nil {
		return nil, err
	}
	return &Animate{Action: action, EntityID: entityID}, nil
}

func readVector3(bs *raknet.BitStream) (Vector3, error) {
	x, err := bs.ReadFloat32()
	if err != nil {
		return Vector3{}, err
	}
	y, err := bs.ReadFloat32()
	if err != nil {
		return Vector3{}, err
	}
	z, err := bs.ReadFloat32()
	if err != nil {
		return Vector3{}, err
	}
	return Vector3{X: x, Y: y, Z: z}, nil
}
