package book

// PriceLevel holds the FIFO chain of resting orders at one tick.
// Invariant: TotalQuantity is the sum of QuantityRemaining over the chain,
// and TotalQuantity == 0 exactly when the chain is empty.
type PriceLevel struct {
	First         *Order
	Last          *Order
	TotalQuantity uint32
	Price         int64
}

// append links o at the tail of the chain. The caller adjusts TotalQuantity.
func (l *PriceLevel) append(o *Order) {
	o.next = nil
	o.prev = l.Last
	if l.Last != nil {
		l.Last.next = o
	} else {
		l.First = o
	}
	l.Last = o
}

// unlink removes o from anywhere in the chain. The caller adjusts
// TotalQuantity and o's pool membership.
func (l *PriceLevel) unlink(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		l.First = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		l.Last = o.prev
	}
	o.next, o.prev = nil, nil
}
