// Package eventlog persists public market-data events to disk: one file
// per message type, payload bytes only, no per-record header. Producers
// (the engine) push into per-type SPSC queues; a single writer goroutine
// drains them through 64 KiB staging buffers.
package eventlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"helix/infra/ring"
	"helix/wire"
)

const (
	stagingBytes   = 64 * 1024
	flushSlack     = 4 * 1024
	drainBatch     = 256
	queueCapPLU    = 1 << 15
	queueCapTrade  = 1 << 15
	queueCapMisc   = 1 << 14
	maxLoggedSize  = wire.SizeTradeEvent // largest of the logged payloads
	idleFlushSleep = 200 * time.Microsecond
)

// item is the fixed-size queue element; only the first payloadSize bytes
// of a given sink are meaningful.
type item struct {
	bytes [maxLoggedSize]byte
}

type sink struct {
	queue       *ring.SPSC[item]
	file        *os.File
	staging     []byte
	offset      int
	payloadSize int
}

// Logger is the binary event log. Log is called from the engine goroutine
// only; the writer goroutine owns the files.
type Logger struct {
	sinks   [5]*sink
	byType  map[wire.MessageType]*sink
	running atomic.Bool
	done    chan struct{}
	log     *zap.Logger
}

// fileName follows the historical log naming, which differs from the wire
// tag names for the order events.
func fileName(t wire.MessageType) string {
	switch t {
	case wire.MsgPriceLevelUpdate:
		return "price_level_update"
	case wire.MsgTradeEvent:
		return "trade"
	case wire.MsgOrderInsertedEvent:
		return "insert_order"
	case wire.MsgOrderCancelledEvent:
		return "cancel_order"
	case wire.MsgOrderAmendedEvent:
		return "amend_order"
	default:
		return fmt.Sprintf("type_%d", uint8(t))
	}
}

func New(dir string, log *zap.Logger) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	base := time.Now().Format("20060102_150405")

	l := &Logger{
		byType: make(map[wire.MessageType]*sink, 5),
		done:   make(chan struct{}),
		log:    log.Named("eventlog"),
	}

	types := []struct {
		t   wire.MessageType
		cap uint64
	}{
		{wire.MsgPriceLevelUpdate, queueCapPLU},
		{wire.MsgTradeEvent, queueCapTrade},
		{wire.MsgOrderInsertedEvent, queueCapMisc},
		{wire.MsgOrderCancelledEvent, queueCapMisc},
		{wire.MsgOrderAmendedEvent, queueCapMisc},
	}
	for i, entry := range types {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.bin", base, fileName(entry.t)))
		f, err := os.Create(path)
		if err != nil {
			l.closeFiles()
			return nil, fmt.Errorf("open event log %s: %w", path, err)
		}
		s := &sink{
			queue:       ring.NewSPSC[item](entry.cap),
			file:        f,
			staging:     make([]byte, stagingBytes),
			payloadSize: wire.PayloadSize(entry.t),
		}
		l.sinks[i] = s
		l.byType[entry.t] = s
	}

	l.running.Store(true)
	go l.writerLoop()
	return l, nil
}

// Log copies payload bytes onto the sink queue for t. Unlogged types are
// ignored; overflow drops the record.
func (l *Logger) Log(t wire.MessageType, payload []byte) {
	s, ok := l.byType[t]
	if !ok {
		return
	}
	var it item
	copy(it.bytes[:s.payloadSize], payload)
	_ = s.queue.Push(it)
}

func (l *Logger) backlog() int {
	n := 0
	for _, s := range l.sinks {
		n += s.queue.Len()
	}
	return n
}

// Close stops the writer after the backlog drains and closes the files.
func (l *Logger) Close() {
	l.running.Store(false)
	<-l.done
	l.closeFiles()
}

func (l *Logger) closeFiles() {
	for _, s := range l.sinks {
		if s != nil && s.file != nil {
			_ = s.file.Sync()
			_ = s.file.Close()
			s.file = nil
		}
	}
}

func (l *Logger) writerLoop() {
	defer close(l.done)
	var tmp item

	for l.running.Load() || l.backlog() > 0 {
		didWork := false
		for _, s := range l.sinks {
			if l.drain(s, &tmp) {
				didWork = true
			}
		}
		if !didWork {
			// Flush partial buffers of at least flushSlack bytes
			// opportunistically; smaller remainders wait for more data
			// or for Close.
			for _, s := range l.sinks {
				if s.offset >= flushSlack {
					l.flush(s)
				}
			}
			time.Sleep(idleFlushSleep)
		}
	}

	for _, s := range l.sinks {
		l.flush(s)
	}
}

func (l *Logger) drain(s *sink, tmp *item) bool {
	did := false
	for i := 0; i < drainBatch; i++ {
		if !s.queue.Pop(tmp) {
			break
		}
		did = true
		if s.offset+s.payloadSize > len(s.staging) {
			l.flush(s)
		}
		copy(s.staging[s.offset:], tmp.bytes[:s.payloadSize])
		s.offset += s.payloadSize
		if s.offset >= len(s.staging)-flushSlack {
			l.flush(s)
		}
	}
	return did
}

func (l *Logger) flush(s *sink) {
	if s.offset == 0 || s.file == nil {
		return
	}
	if _, err := s.file.Write(s.staging[:s.offset]); err != nil {
		l.log.Error("event log write failed", zap.Error(err))
	}
	s.offset = 0
}
