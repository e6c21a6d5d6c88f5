package outbox

import (
	"errors"
	"hash/crc32"

	"google.golang.org/protobuf/encoding/protowire"

	"helix/wire"
)

var ErrCorruptRecord = errors.New("outbox: corrupt record")

// Record is one public event pending publication: the exchange sequence
// number, the wire tag, the engine timestamp and the encoded payload.
type Record struct {
	Seq       uint64
	Type      wire.MessageType
	Timestamp uint64
	Payload   []byte
}

const (
	fieldSeq       = 1
	fieldType      = 2
	fieldTimestamp = 3
	fieldPayload   = 4

	recordHeaderSize = 8 // length(4) + CRC(4)
)

// Marshal frames the record as a protobuf body behind a length+CRC32
// header so a torn write is detectable on scan.
func (r *Record) Marshal() []byte {
	body := make([]byte, 0, 24+len(r.Payload))
	body = protowire.AppendTag(body, fieldSeq, protowire.VarintType)
	body = protowire.AppendVarint(body, r.Seq)
	body = protowire.AppendTag(body, fieldType, protowire.VarintType)
	body = protowire.AppendVarint(body, uint64(r.Type))
	body = protowire.AppendTag(body, fieldTimestamp, protowire.VarintType)
	body = protowire.AppendVarint(body, r.Timestamp)
	body = protowire.AppendTag(body, fieldPayload, protowire.BytesType)
	body = protowire.AppendBytes(body, r.Payload)

	crc := crc32.ChecksumIEEE(body)
	out := make([]byte, recordHeaderSize, recordHeaderSize+len(body))
	putUint32LE(out[:4], uint32(len(body)))
	putUint32LE(out[4:], crc)
	return append(out, body...)
}

func Unmarshal(data []byte) (*Record, error) {
	if len(data) < recordHeaderSize {
		return nil, ErrCorruptRecord
	}
	body := data[recordHeaderSize:]
	if readUint32LE(data[:4]) != uint32(len(body)) {
		return nil, ErrCorruptRecord
	}
	if readUint32LE(data[4:]) != crc32.ChecksumIEEE(body) {
		return nil, ErrCorruptRecord
	}

	rec := &Record{}
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return nil, ErrCorruptRecord
		}
		body = body[n:]

		switch {
		case num == fieldSeq && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return nil, ErrCorruptRecord
			}
			rec.Seq = v
			body = body[n:]
		case num == fieldType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return nil, ErrCorruptRecord
			}
			rec.Type = wire.MessageType(v)
			body = body[n:]
		case num == fieldTimestamp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return nil, ErrCorruptRecord
			}
			rec.Timestamp = v
			body = body[n:]
		case num == fieldPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return nil, ErrCorruptRecord
			}
			rec.Payload = append([]byte(nil), v...)
			body = body[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return nil, ErrCorruptRecord
			}
			body = body[n:]
		}
	}
	return rec, nil
}

func putUint32LE(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}

func readUint32LE(buf []byte) uint32 {
	return uint32(buf[0]) |
		uint32(buf[1])<<8 |
		uint32(buf[2])<<16 |
		uint32(buf[3])<<24
}
