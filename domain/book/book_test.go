package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helix/wire"
)

// spy records every callback so tests can assert on the emitted stream.
type spy struct {
	trades    []spyTrade
	inserted  []spyInsert
	cancelled []spyCancel
	amended   []spyAmend
	levels    []spyLevel
	errors    []spyError
}

type spyTrade struct {
	makerOrderID uint32
	takerOrderID uint32
	price        int64
	traded       uint32
	takerCum     uint32
}

type spyInsert struct {
	requestID uint32
	orderID   uint32
	side      wire.Side
	price     int64
	remaining uint32
}

type spyCancel struct {
	orderID   uint32
	remaining uint32
}

type spyAmend struct {
	orderID  uint32
	oldTotal uint32
	newTotal uint32
	leaves   uint32
}

type spyLevel struct {
	side  wire.Side
	price int64
	total uint32
}

type spyError struct {
	clientID  uint32
	requestID uint32
	code      wire.ErrorCode
}

func (s *spy) OnTrade(maker *Order, takerClientID, takerOrderID uint32, price int64, takerTotal, takerCum, traded uint32, ts uint64) {
	s.trades = append(s.trades, spyTrade{maker.OrderID, takerOrderID, price, traded, takerCum})
}

func (s *spy) OnOrderInserted(requestID uint32, o *Order, ts uint64) {
	s.inserted = append(s.inserted, spyInsert{requestID, o.OrderID, o.Side, o.Price, o.QuantityRemaining})
}

func (s *spy) OnOrderCancelled(requestID uint32, o *Order, ts uint64) {
	s.cancelled = append(s.cancelled, spyCancel{o.OrderID, o.QuantityRemaining})
}

func (s *spy) OnOrderAmended(requestID uint32, oldQty uint32, o *Order, ts uint64) {
	s.amended = append(s.amended, spyAmend{o.OrderID, oldQty, o.Quantity, o.QuantityRemaining})
}

func (s *spy) OnLevelUpdate(side wire.Side, level *PriceLevel, ts uint64) {
	s.levels = append(s.levels, spyLevel{side, level.Price, level.TotalQuantity})
}

func (s *spy) OnError(clientID, requestID uint32, code wire.ErrorCode, msg string, ts uint64) {
	s.errors = append(s.errors, spyError{clientID, requestID, code})
}

func (s *spy) reset() { *s = spy{} }

func testClock() uint64 { return 1_000 }

func newTestBook(maxOrders int) (*OrderBook, *spy) {
	cb := &spy{}
	return NewOrderBook(maxOrders, cb, testClock), cb
}

// checkInvariants verifies the book-wide structural invariants.
func checkInvariants(t *testing.T, b *OrderBook) {
	t.Helper()
	for _, side := range []*BookSide{b.Bids, b.Asks} {
		bestSeen := wire.NumBookLevels
		for i := range side.levels {
			level := &side.levels[i]
			var sum uint32
			for o := level.First; o != nil; o = o.next {
				require.Equal(t, o.Quantity, o.QuantityRemaining+o.QuantityCumulative,
					"order %d quantity identity", o.OrderID)
				require.Positive(t, o.QuantityRemaining, "resting order %d has zero remaining", o.OrderID)
				require.Equal(t, level.Price, o.Price)
				sum += o.QuantityRemaining
			}
			require.Equal(t, level.TotalQuantity, sum, "level %d total", level.Price)
			if sum > 0 {
				if side.side == wire.Buy {
					bestSeen = i // highest non-empty wins for bids
				} else if bestSeen == wire.NumBookLevels {
					bestSeen = i // lowest non-empty wins for asks
				}
			}
		}
		require.Equal(t, bestSeen, side.bestIdx, "best index on %v side", side.side)
	}
	if bid, okB := b.Bids.BestPrice(); okB {
		if ask, okA := b.Asks.BestPrice(); okA {
			require.Less(t, bid, ask, "book must not be crossed")
		}
	}
}

func TestSimpleMatch(t *testing.T) {
	b, cb := newTestBook(0)

	// Client A rests a bid.
	b.SubmitOrder(100, 10, wire.Buy, wire.GoodForDay, 1, 11)
	require.Len(t, cb.inserted, 1)
	assert.Equal(t, spyInsert{11, 0, wire.Buy, 100, 10}, cb.inserted[0])
	require.Len(t, cb.levels, 1)
	assert.Equal(t, spyLevel{wire.Buy, 100, 10}, cb.levels[0])
	cb.reset()

	// Client B crosses with a smaller sell.
	b.SubmitOrder(100, 7, wire.Sell, wire.GoodForDay, 2, 21)
	require.Len(t, cb.trades, 1)
	assert.Equal(t, spyTrade{makerOrderID: 0, takerOrderID: 1, price: 100, traded: 7, takerCum: 7}, cb.trades[0])
	require.Len(t, cb.levels, 1)
	assert.Equal(t, spyLevel{wire.Buy, 100, 3}, cb.levels[0])
	assert.Empty(t, cb.inserted, "fully filled taker must not rest")

	best, ok := b.Bids.BestPrice()
	require.True(t, ok)
	assert.Equal(t, int64(100), best)
	_, ok = b.Asks.BestPrice()
	assert.False(t, ok)
	checkInvariants(t, b)
}

func TestWalkMultipleLevels(t *testing.T) {
	b, cb := newTestBook(0)
	b.SubmitOrder(101, 5, wire.Buy, wire.GoodForDay, 1, 1)
	b.SubmitOrder(100, 10, wire.Buy, wire.GoodForDay, 1, 2)
	cb.reset()

	b.SubmitOrder(99, 12, wire.Sell, wire.GoodForDay, 2, 3)

	require.Len(t, cb.trades, 2)
	// Maker prices, best level first.
	assert.Equal(t, int64(101), cb.trades[0].price)
	assert.Equal(t, uint32(5), cb.trades[0].traded)
	assert.Equal(t, int64(100), cb.trades[1].price)
	assert.Equal(t, uint32(7), cb.trades[1].traded)
	assert.Equal(t, uint32(12), cb.trades[1].takerCum)

	assert.Empty(t, cb.inserted, "taker exhausted, no residual")
	_, ok := b.Asks.BestPrice()
	assert.False(t, ok)

	// Both touched levels reported, 101 drained and 100 at 3.
	require.Len(t, cb.levels, 2)
	assert.Equal(t, spyLevel{wire.Buy, 101, 0}, cb.levels[0])
	assert.Equal(t, spyLevel{wire.Buy, 100, 3}, cb.levels[1])
	checkInvariants(t, b)
}

func TestFillAndKillResidualDroppedSilently(t *testing.T) {
	b, cb := newTestBook(0)
	b.SubmitOrder(100, 5, wire.Buy, wire.FillAndKill, 1, 1)

	assert.Empty(t, cb.trades)
	assert.Empty(t, cb.inserted)
	assert.Empty(t, cb.levels)
	assert.Empty(t, cb.errors)
	assert.Zero(t, b.OpenOrders())
}

func TestFillAndKillPartialFillKeepsTrades(t *testing.T) {
	b, cb := newTestBook(0)
	b.SubmitOrder(100, 3, wire.Sell, wire.GoodForDay, 1, 1)
	cb.reset()

	b.SubmitOrder(100, 10, wire.Buy, wire.FillAndKill, 2, 2)
	require.Len(t, cb.trades, 1)
	assert.Equal(t, uint32(3), cb.trades[0].traded)
	assert.Empty(t, cb.inserted, "FAK residual must not rest")
	assert.Zero(t, b.OpenOrders())
	checkInvariants(t, b)
}

func TestCancelWrongOwner(t *testing.T) {
	b, cb := newTestBook(0)
	b.SubmitOrder(100, 5, wire.Buy, wire.GoodForDay, 1, 1)
	orderID := cb.inserted[0].orderID
	cb.reset()

	b.CancelOrder(3, 9, orderID)
	require.Len(t, cb.errors, 1)
	assert.Equal(t, spyError{3, 9, wire.ErrUnauthorised}, cb.errors[0])
	assert.Empty(t, cb.cancelled)
	assert.Equal(t, 1, b.OpenOrders(), "order must remain")
	checkInvariants(t, b)
}

func TestCancelUnknownOrder(t *testing.T) {
	b, cb := newTestBook(0)
	b.CancelOrder(1, 5, 424242)
	require.Len(t, cb.errors, 1)
	assert.Equal(t, wire.ErrOrderNotFound, cb.errors[0].code)
}

func TestCancelRestoresBook(t *testing.T) {
	b, cb := newTestBook(0)
	b.SubmitOrder(100, 10, wire.Buy, wire.GoodForDay, 1, 1)
	preBest := b.Bids.bestIdx
	preTotal := b.Bids.level(100).TotalQuantity

	b.SubmitOrder(105, 4, wire.Buy, wire.GoodForDay, 1, 2)
	orderID := cb.inserted[1].orderID
	cb.reset()

	b.CancelOrder(1, 3, orderID)
	require.Len(t, cb.cancelled, 1)
	assert.Equal(t, spyCancel{orderID, 4}, cb.cancelled[0])
	require.Len(t, cb.levels, 1)
	assert.Equal(t, spyLevel{wire.Buy, 105, 0}, cb.levels[0])

	assert.Equal(t, preBest, b.Bids.bestIdx)
	assert.Equal(t, preTotal, b.Bids.level(100).TotalQuantity)
	checkInvariants(t, b)
}

func TestAmendDecrease(t *testing.T) {
	b, cb := newTestBook(0)
	b.SubmitOrder(100, 10, wire.Buy, wire.GoodForDay, 1, 1)
	orderID := cb.inserted[0].orderID
	cb.reset()

	b.AmendOrder(1, 2, orderID, 6)
	require.Len(t, cb.amended, 1)
	assert.Equal(t, spyAmend{orderID, 10, 6, 6}, cb.amended[0])
	require.Len(t, cb.levels, 1)
	assert.Equal(t, spyLevel{wire.Buy, 100, 6}, cb.levels[0])
	checkInvariants(t, b)
}

func TestAmendSameRemainingIsBookNoOp(t *testing.T) {
	b, cb := newTestBook(0)
	b.SubmitOrder(100, 10, wire.Buy, wire.GoodForDay, 1, 1)
	orderID := cb.inserted[0].orderID
	cb.reset()

	b.AmendOrder(1, 2, orderID, 10)
	require.Len(t, cb.amended, 1, "no-op amend still confirms")
	assert.Empty(t, cb.levels, "no-op amend must not touch the level")
	assert.Equal(t, uint32(10), b.Bids.level(100).TotalQuantity)
	checkInvariants(t, b)
}

func TestAmendIncreaseRejected(t *testing.T) {
	b, cb := newTestBook(0)
	b.SubmitOrder(100, 10, wire.Buy, wire.GoodForDay, 1, 1)
	orderID := cb.inserted[0].orderID
	cb.reset()

	b.AmendOrder(1, 2, orderID, 15)
	require.Len(t, cb.errors, 1)
	assert.Equal(t, wire.ErrInvalidVolume, cb.errors[0].code)
	assert.Empty(t, cb.amended)
	assert.Equal(t, uint32(10), b.Bids.level(100).TotalQuantity)
}

func TestAmendBelowFilledRejected(t *testing.T) {
	b, cb := newTestBook(0)
	b.SubmitOrder(100, 10, wire.Buy, wire.GoodForDay, 1, 1)
	orderID := cb.inserted[0].orderID
	b.SubmitOrder(100, 4, wire.Sell, wire.GoodForDay, 2, 2) // fills 4
	cb.reset()

	b.AmendOrder(1, 3, orderID, 3) // below cumulative of 4
	require.Len(t, cb.errors, 1)
	assert.Equal(t, wire.ErrInvalidVolume, cb.errors[0].code)
	checkInvariants(t, b)
}

func TestAmendToZeroRemovesOrder(t *testing.T) {
	b, cb := newTestBook(0)
	b.SubmitOrder(100, 10, wire.Buy, wire.GoodForDay, 1, 1)
	orderID := cb.inserted[0].orderID
	b.SubmitOrder(100, 4, wire.Sell, wire.GoodForDay, 2, 2)
	cb.reset()

	b.AmendOrder(1, 3, orderID, 4) // new total == filled, remaining goes to 0
	require.Len(t, cb.amended, 1)
	assert.Equal(t, uint32(0), cb.amended[0].leaves)
	assert.Zero(t, b.OpenOrders())
	_, ok := b.Bids.BestPrice()
	assert.False(t, ok)
	checkInvariants(t, b)
}

func TestInvalidPriceAndVolume(t *testing.T) {
	b, cb := newTestBook(0)

	b.SubmitOrder(0, 5, wire.Buy, wire.GoodForDay, 1, 1)
	b.SubmitOrder(wire.MaximumAsk+1, 5, wire.Buy, wire.GoodForDay, 1, 2)
	b.SubmitOrder(100, 0, wire.Buy, wire.GoodForDay, 1, 3)

	require.Len(t, cb.errors, 3)
	assert.Equal(t, wire.ErrInvalidPrice, cb.errors[0].code)
	assert.Equal(t, wire.ErrInvalidPrice, cb.errors[1].code)
	assert.Equal(t, wire.ErrInvalidVolume, cb.errors[2].code)
	assert.Zero(t, b.OpenOrders())
}

func TestOrderBookFull(t *testing.T) {
	b, cb := newTestBook(2)
	b.SubmitOrder(100, 1, wire.Buy, wire.GoodForDay, 1, 1)
	b.SubmitOrder(99, 1, wire.Buy, wire.GoodForDay, 1, 2)
	cb.reset()

	b.SubmitOrder(98, 1, wire.Buy, wire.GoodForDay, 1, 3)
	require.Len(t, cb.errors, 1)
	assert.Equal(t, wire.ErrOrderBookFull, cb.errors[0].code)
	assert.Empty(t, cb.inserted)
	assert.Equal(t, 2, b.OpenOrders())
	checkInvariants(t, b)
}

func TestTradedQuantitySumsToConsumed(t *testing.T) {
	b, cb := newTestBook(0)
	b.SubmitOrder(101, 5, wire.Buy, wire.GoodForDay, 1, 1)
	b.SubmitOrder(100, 10, wire.Buy, wire.GoodForDay, 1, 2)
	cb.reset()

	b.SubmitOrder(100, 20, wire.Sell, wire.GoodForDay, 2, 3)

	var traded uint32
	for _, tr := range cb.trades {
		traded += tr.traded
	}
	require.Len(t, cb.inserted, 1)
	residual := cb.inserted[0].remaining
	assert.Equal(t, uint32(20), traded+residual)
	checkInvariants(t, b)
}

func TestPoolSlotReuseKeepsIndexConsistent(t *testing.T) {
	b, cb := newTestBook(4)
	for round := 0; round < 10; round++ {
		b.SubmitOrder(100, 5, wire.Buy, wire.GoodForDay, 1, 1)
		orderID := cb.inserted[len(cb.inserted)-1].orderID
		b.SubmitOrder(100, 5, wire.Sell, wire.GoodForDay, 2, 2)
		// Maker fully filled; its id must be gone from the index.
		b.CancelOrder(1, 3, orderID)
		require.Equal(t, wire.ErrOrderNotFound, cb.errors[len(cb.errors)-1].code)
		checkInvariants(t, b)
	}
	assert.Zero(t, b.OpenOrders())
}

func TestBuildSnapshot(t *testing.T) {
	b, _ := newTestBook(0)
	b.SubmitOrder(101, 3, wire.Buy, wire.GoodForDay, 1, 1)
	b.SubmitOrder(100, 7, wire.Buy, wire.GoodForDay, 1, 2)
	b.SubmitOrder(102, 5, wire.Sell, wire.GoodForDay, 2, 3)

	var snap wire.OrderBookSnapshot
	b.BuildSnapshot(&snap)

	assert.Equal(t, int64(101), snap.BidPrices[0])
	assert.Equal(t, uint32(3), snap.BidVolumes[0])
	assert.Equal(t, int64(100), snap.BidPrices[1])
	assert.Equal(t, uint32(7), snap.BidVolumes[1])
	assert.Equal(t, int64(102), snap.AskPrices[0])
	assert.Equal(t, uint32(5), snap.AskVolumes[0])

	for i := 2; i < wire.SnapshotDepth; i++ {
		assert.Zero(t, snap.BidPrices[i])
		assert.Zero(t, snap.BidVolumes[i])
	}
	for i := 1; i < wire.SnapshotDepth; i++ {
		assert.Zero(t, snap.AskPrices[i])
		assert.Zero(t, snap.AskVolumes[i])
	}
}

func TestSnapshotSkipsEmptyLevels(t *testing.T) {
	b, cb := newTestBook(0)
	b.SubmitOrder(105, 2, wire.Buy, wire.GoodForDay, 1, 1)
	b.SubmitOrder(101, 4, wire.Buy, wire.GoodForDay, 1, 2)
	cancelID := cb.inserted[0].orderID
	b.CancelOrder(1, 3, cancelID)

	var snap wire.OrderBookSnapshot
	b.BuildSnapshot(&snap)
	assert.Equal(t, int64(101), snap.BidPrices[0])
	assert.Equal(t, uint32(4), snap.BidVolumes[0])
	assert.Zero(t, snap.BidVolumes[1])
}

func TestTimePriorityWithinLevel(t *testing.T) {
	b, cb := newTestBook(0)
	b.SubmitOrder(100, 5, wire.Buy, wire.GoodForDay, 1, 1)
	b.SubmitOrder(100, 5, wire.Buy, wire.GoodForDay, 2, 2)
	first := cb.inserted[0].orderID
	cb.reset()

	b.SubmitOrder(100, 5, wire.Sell, wire.GoodForDay, 3, 3)
	require.Len(t, cb.trades, 1)
	assert.Equal(t, first, cb.trades[0].makerOrderID, "head of FIFO matches first")
	checkInvariants(t, b)
}

func TestOrderStatusLookup(t *testing.T) {
	b, cb := newTestBook(0)
	b.SubmitOrder(100, 10, wire.Buy, wire.GoodForDay, 1, 1)
	orderID := cb.inserted[0].orderID
	b.SubmitOrder(100, 4, wire.Sell, wire.GoodForDay, 2, 2)
	cb.reset()

	o, ok := b.OrderStatusLookup(1, 5, orderID)
	require.True(t, ok)
	assert.Equal(t, uint32(10), o.Quantity)
	assert.Equal(t, uint32(4), o.QuantityCumulative)
	assert.Equal(t, uint32(6), o.QuantityRemaining)
	assert.Empty(t, cb.errors)

	_, ok = b.OrderStatusLookup(2, 6, orderID)
	assert.False(t, ok)
	require.Len(t, cb.errors, 1)
	assert.Equal(t, wire.ErrUnauthorised, cb.errors[0].code)
}
