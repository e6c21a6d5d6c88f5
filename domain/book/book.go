// Package book is the authoritative matching engine state: a price-time
// priority limit order book over a bounded integer price grid. All methods
// must be called from a single goroutine; every externally visible effect
// is emitted through the Callbacks interface.
package book

import "helix/wire"

const DefaultMaxOrders = 1_000

type OrderBook struct {
	Bids *BookSide
	Asks *BookSide

	orderIndex  map[uint32]*Order
	nextOrderID uint32
	cb          Callbacks
	now         func() uint64
}

func NewOrderBook(maxOrders int, cb Callbacks, now func() uint64) *OrderBook {
	if maxOrders <= 0 {
		maxOrders = DefaultMaxOrders
	}
	return &OrderBook{
		Bids:       NewBookSide(wire.Buy, maxOrders),
		Asks:       NewBookSide(wire.Sell, maxOrders),
		orderIndex: make(map[uint32]*Order, maxOrders),
		cb:         cb,
		now:        now,
	}
}

// OpenOrders reports the number of resting orders.
func (b *OrderBook) OpenOrders() int { return len(b.orderIndex) }

// SubmitOrder validates, matches against the opposite side, and rests any
// residual unless the lifespan is FILL_AND_KILL (the residual is then
// dropped silently). A pool overflow reports ORDER_BOOK_FULL; fills that
// happened before the overflow persist.
func (b *OrderBook) SubmitOrder(
	price int64,
	quantity uint32,
	side wire.Side,
	lifespan wire.Lifespan,
	clientID, clientRequestID uint32,
) {
	if quantity == 0 {
		b.cb.OnError(clientID, clientRequestID, wire.ErrInvalidVolume, "quantity must be positive", b.now())
		return
	}
	if price < wire.MinimumBid || price > wire.MaximumAsk {
		b.cb.OnError(clientID, clientRequestID, wire.ErrInvalidPrice, "price outside book range", b.now())
		return
	}

	orderID := b.nextOrderID
	b.nextOrderID++

	release := func(maker *Order) { delete(b.orderIndex, maker.OrderID) }

	var remaining uint32
	var restSide *BookSide
	if side == wire.Buy {
		remaining = b.Asks.match(price, quantity, orderID, clientID, b.cb, b.now, release)
		restSide = b.Bids
	} else {
		remaining = b.Bids.match(price, quantity, orderID, clientID, b.cb, b.now, release)
		restSide = b.Asks
	}

	if remaining == 0 || lifespan == wire.FillAndKill {
		return
	}

	o := restSide.addOrder(price, quantity, remaining, orderID, clientID)
	if o == nil {
		b.cb.OnError(clientID, clientRequestID, wire.ErrOrderBookFull, "order book full", b.now())
		return
	}
	b.orderIndex[orderID] = o

	ts := b.now()
	b.cb.OnOrderInserted(clientRequestID, o, ts)
	b.cb.OnLevelUpdate(o.Side, restSide.level(price), ts)
}

// CancelOrder unlinks a resting order, returning its slot to the pool.
func (b *OrderBook) CancelOrder(clientID, clientRequestID, orderID uint32) {
	o, ok := b.lookup(clientID, clientRequestID, orderID)
	if !ok {
		return
	}

	side := b.sideOf(o)
	idx := priceToIndex(o.Price)
	level := &side.levels[idx]

	level.unlink(o)
	level.TotalQuantity -= o.QuantityRemaining
	if level.First == nil && side.bestIdx == idx {
		side.updateBestAfterEmpty(idx)
	}

	ts := b.now()
	b.cb.OnOrderCancelled(clientRequestID, o, ts)
	b.cb.OnLevelUpdate(o.Side, level, ts)

	delete(b.orderIndex, orderID)
	side.pool.Deallocate(o)
}

// AmendOrder reduces an order's total quantity in place, preserving time
// priority. Raising the remaining quantity is rejected: an increase must
// go through cancel + new order so it loses priority.
func (b *OrderBook) AmendOrder(clientID, clientRequestID, orderID uint32, newTotalQuantity uint32) {
	o, ok := b.lookup(clientID, clientRequestID, orderID)
	if !ok {
		return
	}

	if newTotalQuantity < o.QuantityCumulative {
		b.cb.OnError(clientID, clientRequestID, wire.ErrInvalidVolume, "amend below filled quantity", b.now())
		return
	}
	newRemaining := newTotalQuantity - o.QuantityCumulative
	if newRemaining > o.QuantityRemaining {
		b.cb.OnError(clientID, clientRequestID, wire.ErrInvalidVolume, "amend cannot raise quantity", b.now())
		return
	}

	oldTotal := o.Quantity
	delta := o.QuantityRemaining - newRemaining

	if delta == 0 {
		// No-op on book state; the confirmation still goes out.
		b.cb.OnOrderAmended(clientRequestID, oldTotal, o, b.now())
		return
	}

	side := b.sideOf(o)
	idx := priceToIndex(o.Price)
	level := &side.levels[idx]

	o.Quantity = newTotalQuantity
	o.QuantityRemaining = newRemaining
	level.TotalQuantity -= delta

	ts := b.now()
	b.cb.OnOrderAmended(clientRequestID, oldTotal, o, ts)

	if newRemaining == 0 {
		level.unlink(o)
		if level.First == nil && side.bestIdx == idx {
			side.updateBestAfterEmpty(idx)
		}
		delete(b.orderIndex, orderID)
		side.pool.Deallocate(o)
	}
	b.cb.OnLevelUpdate(o.Side, level, ts)
}

// OrderStatusLookup resolves an order for a status query. Read-only: emits
// OnError for unknown or foreign orders, otherwise returns the live order.
func (b *OrderBook) OrderStatusLookup(clientID, clientRequestID, orderID uint32) (*Order, bool) {
	return b.lookup(clientID, clientRequestID, orderID)
}

func (b *OrderBook) lookup(clientID, clientRequestID, orderID uint32) (*Order, bool) {
	o, found := b.orderIndex[orderID]
	if !found {
		b.cb.OnError(clientID, clientRequestID, wire.ErrOrderNotFound, "unknown order id", b.now())
		return nil, false
	}
	if o.ClientID != clientID {
		b.cb.OnError(clientID, clientRequestID, wire.ErrUnauthorised, "order belongs to another client", b.now())
		return nil, false
	}
	return o, true
}

func (b *OrderBook) sideOf(o *Order) *BookSide {
	if o.Side == wire.Buy {
		return b.Bids
	}
	return b.Asks
}

// BuildSnapshot fills a fixed-depth top-of-book view, walking each side
// from the touch outward and skipping empty levels. Unused slots stay zero.
func (b *OrderBook) BuildSnapshot(snap *wire.OrderBookSnapshot) {
	*snap = wire.OrderBookSnapshot{}

	n := 0
	for i := b.Bids.bestIdx; i >= 0 && i < wire.NumBookLevels && n < wire.SnapshotDepth; i-- {
		level := &b.Bids.levels[i]
		if level.TotalQuantity == 0 {
			continue
		}
		snap.BidPrices[n] = level.Price
		snap.BidVolumes[n] = level.TotalQuantity
		n++
	}

	n = 0
	for i := b.Asks.bestIdx; i < wire.NumBookLevels && n < wire.SnapshotDepth; i++ {
		level := &b.Asks.levels[i]
		if level.TotalQuantity == 0 {
			continue
		}
		snap.AskPrices[n] = level.Price
		snap.AskVolumes[n] = level.TotalQuantity
		n++
	}
}
