package raknet

import "errors"

// Sentinel errors for the transport's failure modes, matched with errors.Is
// rather than a bespoke error-code enum.
var (
	ErrBufferOverflow           = errors.New("raknet: buffer overflow")
	ErrUnsupportedAddressFamily = errors.New("raknet: unsupported address family")
	ErrInvalidReliability       = errors.New("raknet: invalid reliability class")
	ErrNotAFrameSet             = errors.New("raknet: not a frame set")
	ErrPacketTooLarge           = errors.New("raknet: packet exceeds mtu budget")
	ErrNotAControlPacket        = errors.New("raknet: not a recognized control packet")
	ErrConnectionClosed         = errors.New("raknet: connection closed")
	ErrInvalidPacketHeader      = errors.New("raknet: invalid packet header")
)
