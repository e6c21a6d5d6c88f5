// Package outbox is the durable staging area between the engine's public
// event stream and the Kafka broadcaster. Records move through a
// NEW → SENT → ACKED state machine keyed by sequence number.
package outbox

import (
	"fmt"

	"github.com/cockroachdb/pebble"
)

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// Put stores a fresh record in state NEW.
func (o *Outbox) Put(rec *Record) error {
	val := append([]byte{byte(StateNew)}, rec.Marshal()...)
	return o.db.Set(keyFor(rec.Seq), val, pebble.NoSync)
}

// MarkSent and MarkAcked advance the state byte in place; MarkNew returns
// a record to the pending set after a failed publish.
func (o *Outbox) MarkSent(seq uint64) error  { return o.setState(seq, StateSent) }
func (o *Outbox) MarkAcked(seq uint64) error { return o.setState(seq, StateAcked) }
func (o *Outbox) MarkNew(seq uint64) error   { return o.setState(seq, StateNew) }

func (o *Outbox) setState(seq uint64, s State) error {
	key := keyFor(seq)
	val, closer, err := o.db.Get(key)
	if err != nil {
		return err
	}
	updated := append([]byte(nil), val...)
	_ = closer.Close()
	updated[0] = byte(s)
	return o.db.Set(key, updated, pebble.NoSync)
}

// Get returns the record and its current state.
func (o *Outbox) Get(seq uint64) (*Record, State, error) {
	val, closer, err := o.db.Get(keyFor(seq))
	if err != nil {
		return nil, StateFailed, err
	}
	defer closer.Close()
	if len(val) < 1 {
		return nil, StateFailed, ErrCorruptRecord
	}
	rec, err := Unmarshal(val[1:])
	if err != nil {
		return nil, StateFailed, err
	}
	return rec, State(val[0]), nil
}

// ScanPending iterates records still in state NEW, in sequence order.
func (o *Outbox) ScanPending(fn func(*Record) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("event/"),
		UpperBound: []byte("event/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		val := iter.Value()
		if len(val) < 1 || State(val[0]) != StateNew {
			continue
		}
		rec, err := Unmarshal(val[1:])
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// PruneAcked deletes records that have been acknowledged by the broker.
func (o *Outbox) PruneAcked() error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("event/"),
		UpperBound: []byte("event/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if len(iter.Value()) >= 1 && State(iter.Value()[0]) == StateAcked {
			key := append([]byte(nil), iter.Key()...)
			if err := o.db.Delete(key, pebble.NoSync); err != nil {
				return err
			}
		}
	}
	return iter.Error()
}

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("event/%020d", seq))
}
