// Package conn frames the TCP byte stream in both directions: one reader
// goroutine parsing length-prefixed frames into the shared engine inbox,
// one writer goroutine batching outbound records into single writes.
package conn

import (
	"net"
	"sync/atomic"

	"go.uber.org/zap"

	"helix/infra/metrics"
	"helix/infra/ring"
	"helix/wire"
)

const (
	readChunkSize  = 64 * 1024
	accumStartSize = 2 * readChunkSize
	writeBatchSize = 64 * 1024
)

// Conn is one TCP peer. The engine owns the outbound ring's producer side;
// the connection's writer goroutine is its only consumer.
type Conn struct {
	id   uint32
	sock net.Conn

	inbox  *ring.MPSC[wire.InboundMessage]
	outbox *ring.SPSC[wire.OutboundMessage]

	wake  chan struct{} // coalesced writer wake-up
	large chan []byte   // pre-framed oversize messages (snapshots)
	done  chan struct{}

	closed       atomic.Bool
	onDisconnect func(*Conn)

	log *zap.Logger
}

func New(id uint32, sock net.Conn, inbox *ring.MPSC[wire.InboundMessage], outboxCap uint64, log *zap.Logger) *Conn {
	return &Conn{
		id:     id,
		sock:   sock,
		inbox:  inbox,
		outbox: ring.NewSPSC[wire.OutboundMessage](outboxCap),
		wake:   make(chan struct{}, 1),
		large:  make(chan []byte, 8),
		done:   make(chan struct{}),
		log:    log.With(zap.Uint32("conn", id)),
	}
}

func (c *Conn) ID() uint32 { return c.id }

// OnDisconnect registers the owner's teardown hook. It fires exactly once,
// whichever of read error, write error or explicit Close happens first.
func (c *Conn) OnDisconnect(fn func(*Conn)) { c.onDisconnect = fn }

// Start launches the reader and writer goroutines.
func (c *Conn) Start() {
	go c.readLoop()
	go c.writeLoop()
}

// Close is idempotent and safe from any goroutine.
func (c *Conn) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	_ = c.sock.Close()
	close(c.done)
	if c.onDisconnect != nil {
		c.onDisconnect(c)
	}
}

// Send queues one fixed-size frame for this peer. Called from the engine
// goroutine only. A full outbound queue drops the frame: the public feed
// is lossy per client and sequence-numbered so the peer can resubscribe.
func (c *Conn) Send(t wire.MessageType, payload []byte) {
	if c.closed.Load() {
		return
	}
	if len(payload) > wire.MaxPayloadSizeBuffer {
		return
	}
	var msg wire.OutboundMessage
	msg.ConnectionID = c.id
	msg.Type = t
	msg.PayloadSize = uint16(len(payload))
	copy(msg.Payload[:], payload)

	if !c.outbox.Push(msg) {
		metrics.OutboundDropped.Inc()
		c.log.Warn("outbound queue full, dropping frame", zap.String("type", t.String()))
		return
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// SendUnbuffered frames and queues a payload too large for the ring
// (currently only the order book snapshot).
func (c *Conn) SendUnbuffered(t wire.MessageType, payload []byte) {
	if c.closed.Load() {
		return
	}
	frame := wire.AppendFrame(make([]byte, 0, wire.HeaderSize+len(payload)), t, payload)
	select {
	case c.large <- frame:
	default:
		metrics.OutboundDropped.Inc()
		c.log.Warn("large send queue full, dropping frame", zap.String("type", t.String()))
	}
}

// ---------------- read path ---------------- //

func (c *Conn) readLoop() {
	chunk := make([]byte, readChunkSize)
	accum := make([]byte, accumStartSize)
	used := 0

	for {
		n, err := c.sock.Read(chunk)
		if err != nil {
			c.log.Debug("read error, disconnecting", zap.Error(err))
			c.Close()
			return
		}

		if used+n > len(accum) {
			size := len(accum)
			for size < used+n {
				size *= 2
			}
			grown := make([]byte, size)
			copy(grown, accum[:used])
			accum = grown
		}
		copy(accum[used:], chunk[:n])
		used += n

		consumed, ok := c.parse(accum[:used])
		if !ok {
			c.Close()
			return
		}
		if consumed > 0 {
			copy(accum, accum[consumed:used])
			used -= consumed
		}
	}
}

// parse walks complete frames greedily. Returns the bytes consumed and
// false on a protocol violation (the peer is then disconnected).
func (c *Conn) parse(buf []byte) (int, bool) {
	offset := 0
	for {
		if len(buf)-offset < wire.HeaderSize {
			return offset, true
		}
		t := wire.MessageType(buf[offset])
		payloadSize := int(wire.ReadUint16BE(buf[offset+1:]))

		declared := wire.PayloadSize(t)
		if payloadSize > wire.MaxPayloadSize || declared < 0 || payloadSize != declared {
			c.log.Warn("protocol violation, disconnecting",
				zap.Uint8("type", uint8(t)), zap.Int("payload_size", payloadSize))
			return offset, false
		}

		frameSize := wire.HeaderSize + payloadSize
		if len(buf)-offset < frameSize {
			return offset, true
		}
		payload := buf[offset+wire.HeaderSize : offset+frameSize]

		if payloadSize <= wire.MaxPayloadSizeBuffer {
			var msg wire.InboundMessage
			msg.ConnectionID = c.id
			msg.Type = t
			msg.PayloadSize = uint16(payloadSize)
			copy(msg.Payload[:], payload)

			if !c.inbox.Push(msg) {
				// Back-pressure policy: on sustained engine overload,
				// drop the peer.
				metrics.InboundDropped.Inc()
				c.log.Warn("inbound queue full, disconnecting")
				return offset, false
			}
			metrics.InboundFrames.Inc()
		}
		// Oversize payloads are server→client only; an inbound one that
		// passed the size table (snapshot) has no engine meaning and is
		// skipped.
		offset += frameSize
	}
}

// ---------------- write path ---------------- //

func (c *Conn) writeLoop() {
	staging := make([]byte, writeBatchSize)

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.large:
			if !c.writeAll(frame) {
				return
			}
		case <-c.wake:
			for {
				n := c.fillBatch(staging)
				if n == 0 {
					break
				}
				if !c.writeAll(staging[:n]) {
					return
				}
			}
		}
	}
}

// fillBatch copies as many whole frames as fit into the staging buffer.
func (c *Conn) fillBatch(staging []byte) int {
	used := 0
	for {
		m := c.outbox.Peek()
		if m == nil {
			break
		}
		frameSize := wire.HeaderSize + int(m.PayloadSize)
		if used+frameSize > len(staging) {
			break
		}
		wire.PutHeader(staging[used:], m.Type, m.PayloadSize)
		copy(staging[used+wire.HeaderSize:], m.Payload[:m.PayloadSize])
		used += frameSize
		c.outbox.ConsumeOne()
	}
	return used
}

func (c *Conn) writeAll(buf []byte) bool {
	if _, err := c.sock.Write(buf); err != nil {
		c.log.Debug("write error, disconnecting", zap.Error(err))
		c.Close()
		return false
	}
	metrics.OutboundBytes.Add(float64(len(buf)))
	return true
}
