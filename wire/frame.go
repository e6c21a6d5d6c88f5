package wire

// Frame layout: one tag byte followed by a big-endian u16 payload length,
// then the packed payload. The header byte order is fixed by the protocol;
// payload fields stay little-endian.

const HeaderSize = 1 + 2

func PutHeader(dst []byte, t MessageType, payloadSize uint16) {
	dst[0] = byte(t)
	dst[1] = byte(payloadSize >> 8)
	dst[2] = byte(payloadSize)
}

func ReadUint16BE(src []byte) uint16 {
	return uint16(src[0])<<8 | uint16(src[1])
}

// AppendFrame appends a complete frame for an already-encoded payload.
func AppendFrame(dst []byte, t MessageType, payload []byte) []byte {
	var hdr [HeaderSize]byte
	PutHeader(hdr[:], t, uint16(len(payload)))
	dst = append(dst, hdr[:]...)
	return append(dst, payload...)
}

// InboundMessage is the fixed-size record connections push onto the engine
// inbox. OutboundMessage is its mirror on the engine→connection path. Both
// must stay flat value types so ring slots copy them without allocation.
type InboundMessage struct {
	ConnectionID uint32
	Type         MessageType
	PayloadSize  uint16
	Payload      [MaxPayloadSizeBuffer]byte
}

type OutboundMessage struct {
	ConnectionID uint32
	Type         MessageType
	PayloadSize  uint16
	Payload      [MaxPayloadSizeBuffer]byte
}
