package ring

import "sync/atomic"

// MPSC is a bounded multi-producer single-consumer ring used as the shared
// engine inbox: every connection reader produces, only the engine consumes.
// Each slot carries a sequence number so producers claim slots with a CAS
// and publish them independently of one another.
type MPSC[T any] struct {
	enqueue atomic.Uint64
	_pad1   [56]byte
	dequeue uint64
	_pad2   [56]byte

	buf  []mpscSlot[T]
	mask uint64
}

type mpscSlot[T any] struct {
	seq atomic.Uint64
	val T
}

func NewMPSC[T any](size uint64) *MPSC[T] {
	if size < 2 || size&(size-1) != 0 {
		panic("ring: MPSC size must be a power of two >= 2")
	}
	q := &MPSC[T]{buf: make([]mpscSlot[T], size), mask: size - 1}
	for i := range q.buf {
		q.buf[i].seq.Store(uint64(i))
	}
	return q
}

// Push claims a slot and publishes v. Safe for any number of producers.
// Returns false if the ring is full.
func (q *MPSC[T]) Push(v T) bool {
	pos := q.enqueue.Load()
	for {
		s := &q.buf[pos&q.mask]
		seq := s.seq.Load()
		diff := int64(seq) - int64(pos)
		switch {
		case diff == 0:
			if q.enqueue.CompareAndSwap(pos, pos+1) {
				s.val = v
				s.seq.Store(pos + 1)
				return true
			}
			pos = q.enqueue.Load()
		case diff < 0:
			return false
		default:
			pos = q.enqueue.Load()
		}
	}
}

// Pop consumes the oldest published element. Single consumer only.
func (q *MPSC[T]) Pop(out *T) bool {
	pos := q.dequeue
	s := &q.buf[pos&q.mask]
	seq := s.seq.Load()
	if int64(seq)-int64(pos+1) < 0 {
		return false
	}
	*out = s.val
	s.seq.Store(pos + q.mask + 1)
	q.dequeue = pos + 1
	return true
}

// Len is approximate under concurrency.
func (q *MPSC[T]) Len() int {
	return int(q.enqueue.Load() - q.dequeue)
}

func (q *MPSC[T]) Cap() int { return len(q.buf) }
