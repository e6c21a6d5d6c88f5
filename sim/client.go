package sim

import (
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"helix/wire"
)

const clientReadChunk = 64 * 1024

// Client is the simulator-side framer: it dials the exchange, delivers
// every inbound frame to a callback, and serialises writes.
type Client struct {
	sock      net.Conn
	onMessage func(t wire.MessageType, payload []byte)
	writeMu   sync.Mutex
	closed    atomic.Bool
	done      chan struct{}
	log       *zap.Logger
}

func Dial(addr string, log *zap.Logger) (*Client, error) {
	sock, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{
		sock: sock,
		done: make(chan struct{}),
		log:  log.Named("client"),
	}, nil
}

// Start launches the read loop. The payload slice handed to the callback
// is only valid for the duration of the call.
func (c *Client) Start(onMessage func(t wire.MessageType, payload []byte)) {
	c.onMessage = onMessage
	go c.readLoop()
}

func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	_ = c.sock.Close()
}

// Done is closed when the read loop exits (disconnect or Close).
func (c *Client) Done() <-chan struct{} { return c.done }

// Send frames one payload and writes it out.
func (c *Client) Send(t wire.MessageType, payload []byte) error {
	frame := wire.AppendFrame(make([]byte, 0, wire.HeaderSize+len(payload)), t, payload)
	return c.SendRaw(frame)
}

// SendRaw writes pre-framed bytes verbatim.
func (c *Client) SendRaw(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.sock.Write(frame)
	return err
}

func (c *Client) readLoop() {
	defer close(c.done)
	chunk := make([]byte, clientReadChunk)
	accum := make([]byte, 2*clientReadChunk)
	used := 0

	for {
		n, err := c.sock.Read(chunk)
		if err != nil {
			if !c.closed.Load() {
				c.log.Debug("feed read error", zap.Error(err))
				c.Close()
			}
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

		offset := 0
		for {
			if used-offset < wire.HeaderSize {
				break
			}
			t := wire.MessageType(accum[offset])
			payloadSize := int(wire.ReadUint16BE(accum[offset+1:]))
			if payloadSize > wire.MaxPayloadSize || wire.PayloadSize(t) != payloadSize {
				c.log.Warn("protocol violation on feed, closing",
					zap.Uint8("type", uint8(t)), zap.Int("payload_size", payloadSize))
				c.Close()
				return
			}
			frameSize := wire.HeaderSize + payloadSize
			if used-offset < frameSize {
				break
			}
			c.onMessage(t, accum[offset+wire.HeaderSize:offset+frameSize])
			offset += frameSize
		}
		if offset > 0 {
			copy(accum, accum[offset:used])
			used -= offset
		}
	}
}
