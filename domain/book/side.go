package book

import "helix/wire"

// BookSide owns the dense price ladder and the order pool for one side.
// bestIdx tracks the touch: highest non-empty index for bids, lowest for
// asks; len(levels) is the empty-side sentinel.
type BookSide struct {
	levels  []PriceLevel
	pool    *OrderPool
	side    wire.Side
	bestIdx int
}

func NewBookSide(side wire.Side, maxOrders int) *BookSide {
	s := &BookSide{
		levels:  make([]PriceLevel, wire.NumBookLevels),
		pool:    NewOrderPool(maxOrders),
		side:    side,
		bestIdx: wire.NumBookLevels,
	}
	for i := range s.levels {
		s.levels[i].Price = wire.MinimumBid + int64(i)
	}
	return s
}

func priceToIndex(price int64) int {
	return int(price - wire.MinimumBid)
}

func (s *BookSide) Side() wire.Side { return s.side }

// BestPrice returns the touch, or false when the side is empty.
func (s *BookSide) BestPrice() (int64, bool) {
	if s.bestIdx == wire.NumBookLevels {
		return 0, false
	}
	return s.levels[s.bestIdx].Price, true
}

func (s *BookSide) level(price int64) *PriceLevel {
	return &s.levels[priceToIndex(price)]
}

// addOrder rests a residual at its level in FIFO order. Returns nil when
// the pool is exhausted.
func (s *BookSide) addOrder(price int64, quantity, remaining uint32, orderID, clientID uint32) *Order {
	o := s.pool.Allocate()
	if o == nil {
		return nil
	}
	idx := priceToIndex(price)
	level := &s.levels[idx]

	o.ClientID = clientID
	o.OrderID = orderID
	o.Price = price
	o.Quantity = quantity
	o.QuantityRemaining = remaining
	o.QuantityCumulative = quantity - remaining
	o.Side = s.side
	level.append(o)
	level.TotalQuantity += remaining

	s.updateBestAfterInsert(idx)
	return o
}

func (s *BookSide) updateBestAfterInsert(idx int) {
	if s.bestIdx == wire.NumBookLevels {
		s.bestIdx = idx
		return
	}
	if s.side == wire.Buy {
		if idx > s.bestIdx {
			s.bestIdx = idx
		}
	} else {
		if idx < s.bestIdx {
			s.bestIdx = idx
		}
	}
}

// updateBestAfterEmpty rescans away from the drained touch. Amortised
// cheap: touch drains are rare next to inserts.
func (s *BookSide) updateBestAfterEmpty(oldIdx int) {
	if s.side == wire.Buy {
		for i := oldIdx - 1; i >= 0; i-- {
			if s.levels[i].TotalQuantity > 0 {
				s.bestIdx = i
				return
			}
		}
	} else {
		for i := oldIdx + 1; i < wire.NumBookLevels; i++ {
			if s.levels[i].TotalQuantity > 0 {
				s.bestIdx = i
				return
			}
		}
	}
	s.bestIdx = wire.NumBookLevels
}

func (s *BookSide) crosses(restingPrice, incomingPrice int64) bool {
	if s.side == wire.Buy {
		return restingPrice >= incomingPrice
	}
	return restingPrice <= incomingPrice
}

// match consumes this side in price-time order against an incoming order
// on the opposite side. Emits one OnTrade per fill and one OnLevelUpdate
// per touched level. release unhooks a fully-filled maker from the order
// index before its slot is recycled. Returns the taker's unfilled quantity.
func (s *BookSide) match(
	incomingPrice int64,
	quantity uint32,
	takerOrderID, takerClientID uint32,
	cb Callbacks,
	now func() uint64,
	release func(*Order),
) uint32 {
	total := quantity
	for quantity > 0 && s.bestIdx != wire.NumBookLevels {
		level := &s.levels[s.bestIdx]
		if !s.crosses(level.Price, incomingPrice) {
			break
		}

		for quantity > 0 && level.First != nil {
			maker := level.First
			traded := maker.QuantityRemaining
			if quantity < traded {
				traded = quantity
			}
			ts := now()

			maker.QuantityRemaining -= traded
			maker.QuantityCumulative += traded
			quantity -= traded
			level.TotalQuantity -= traded

			cb.OnTrade(maker, takerClientID, takerOrderID, level.Price, total, total-quantity, traded, ts)

			if maker.QuantityRemaining == 0 {
				level.First = maker.next
				if level.First != nil {
					level.First.prev = nil
				} else {
					level.Last = nil
				}
				release(maker)
				s.pool.Deallocate(maker)
			}
		}

		cb.OnLevelUpdate(s.side, level, now())
		if level.First == nil {
			s.updateBestAfterEmpty(s.bestIdx)
		}
	}
	return quantity
}
