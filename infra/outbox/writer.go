package outbox

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"helix/infra/ring"
	"helix/wire"
)

const writerQueueCap = 1 << 14

// queued is the fixed-size handoff record between the engine and the
// writer goroutine; the engine never touches pebble directly.
type queued struct {
	seq       uint64
	timestamp uint64
	t         wire.MessageType
	n         uint16
	payload   [wire.MaxPayloadSizeBuffer]byte
}

// Writer drains engine-enqueued public events into the outbox off the
// engine goroutine.
type Writer struct {
	ob      *Outbox
	queue   *ring.SPSC[queued]
	running atomic.Bool
	done    chan struct{}
	log     *zap.Logger
}

func NewWriter(ob *Outbox, log *zap.Logger) *Writer {
	w := &Writer{
		ob:    ob,
		queue: ring.NewSPSC[queued](writerQueueCap),
		done:  make(chan struct{}),
		log:   log.Named("outbox"),
	}
	w.running.Store(true)
	go w.loop()
	return w
}

// Enqueue is called from the engine goroutine. Overflow drops the event;
// the Kafka feed is best-effort next to the live TCP feed.
func (w *Writer) Enqueue(seq uint64, t wire.MessageType, timestamp uint64, payload []byte) {
	var q queued
	q.seq = seq
	q.t = t
	q.timestamp = timestamp
	q.n = uint16(len(payload))
	copy(q.payload[:], payload)
	if !w.queue.Push(q) {
		w.log.Warn("outbox queue full, dropping event", zap.Uint64("seq", seq))
	}
}

func (w *Writer) Close() {
	w.running.Store(false)
	<-w.done
}

func (w *Writer) loop() {
	defer close(w.done)
	var q queued
	for w.running.Load() || w.queue.Len() > 0 {
		if !w.queue.Pop(&q) {
			time.Sleep(200 * time.Microsecond)
			continue
		}
		rec := &Record{
			Seq:       q.seq,
			Type:      q.t,
			Timestamp: q.timestamp,
			Payload:   append([]byte(nil), q.payload[:q.n]...),
		}
		if err := w.ob.Put(rec); err != nil {
			w.log.Error("outbox put failed", zap.Uint64("seq", q.seq), zap.Error(err))
		}
	}
}
