package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helix/wire"
)

func seededState(t *testing.T) *SimulationState {
	t.Helper()
	s := NewSimulationState([]int64{1, 5, 10})
	book := NewShadowBook()
	book.ApplyLevelUpdate(&wire.PriceLevelUpdate{Side: wire.Buy, Price: 998, TotalVolume: 60})
	book.ApplyLevelUpdate(&wire.PriceLevelUpdate{Side: wire.Buy, Price: 996, TotalVolume: 40})
	book.ApplyLevelUpdate(&wire.PriceLevelUpdate{Side: wire.Sell, Price: 1002, TotalVolume: 50})
	book.ApplyLevelUpdate(&wire.PriceLevelUpdate{Side: wire.Sell, Price: 1005, TotalVolume: 30})
	s.OnTrade(tradeAt(1e9, 1000, 10, wire.Buy))
	s.OnTrade(tradeAt(2e9, 1000, 12, wire.Buy))
	s.SyncWithBook(book, 0.001)
	return s
}

func TestIntensitiesStayWithinClampBands(t *testing.T) {
	d := NewDynamics(40, 20)
	s := seededState(t)

	for _, open := range []int{0, 10, 5000} {
		li, lc := d.UpdateIntensities(s, open)
		assert.GreaterOrEqual(t, li, 40*lambdaInsertFloor)
		assert.LessOrEqual(t, li, 40*lambdaInsertCeil)
		assert.GreaterOrEqual(t, lc, 20*lambdaCancelFloor)
		assert.LessOrEqual(t, lc, 20*lambdaCancelCeil)
	}
}

func TestCancelIntensityGrowsWithOpenOrders(t *testing.T) {
	d := NewDynamics(40, 20)
	s := seededState(t)
	_, few := d.UpdateIntensities(s, 1)
	_, many := d.UpdateIntensities(s, 500)
	assert.Greater(t, many, few)
}

func TestDecisionsAreWellFormed(t *testing.T) {
	d := NewDynamics(40, 20)
	s := seededState(t)
	rng := NewPCG(11, 11)

	for i := 0; i < 2_000; i++ {
		dec := d.DecideInsert(s, 0, rng)
		require.GreaterOrEqual(t, dec.Price, wire.MinimumBid)
		require.LessOrEqual(t, dec.Price, wire.MaximumAsk)
		require.Positive(t, dec.Quantity)
		require.LessOrEqual(t, dec.Quantity, uint32(1000))
		require.GreaterOrEqual(t, dec.HazardIncrement, hazardIncrementMin)
		require.LessOrEqual(t, dec.HazardIncrement, hazardIncrementMax)
	}
}

func TestDecisionsDeterministicForFixedSeed(t *testing.T) {
	d := NewDynamics(40, 20)
	sA := seededState(t)
	sB := seededState(t)

	rngA := NewPCG(5, 5)
	rngB := NewPCG(5, 5)
	for i := 0; i < 500; i++ {
		require.Equal(t, d.DecideInsert(sA, 0, rngA), d.DecideInsert(sB, 0, rngB), "step %d", i)
	}
}

func TestPassiveOrdersDoNotCross(t *testing.T) {
	d := NewDynamics(40, 20)
	s := seededState(t)
	rng := NewPCG(13, 13)
	ps := s.PriceState()

	for i := 0; i < 2_000; i++ {
		dec := d.DecideInsert(s, 0, rng)
		if dec.Lifespan != wire.GoodForDay {
			continue
		}
		if dec.Side == wire.Buy && dec.Price >= ps.BestAsk && dec.Price != ps.BestAsk {
			t.Fatalf("GFD buy at %d crosses ask %d", dec.Price, ps.BestAsk)
		}
		if dec.Side == wire.Sell && dec.Price <= ps.BestBid && dec.Price != ps.BestBid {
			t.Fatalf("GFD sell at %d crosses bid %d", dec.Price, ps.BestBid)
		}
	}
}

func TestBuyProbabilityFollowsFlow(t *testing.T) {
	d := NewDynamics(40, 20)
	s := NewSimulationState([]int64{1, 5, 10})
	book := NewShadowBook()
	book.ApplyLevelUpdate(&wire.PriceLevelUpdate{Side: wire.Buy, Price: 998, TotalVolume: 50})
	book.ApplyLevelUpdate(&wire.PriceLevelUpdate{Side: wire.Sell, Price: 1002, TotalVolume: 50})
	s.OnTrade(tradeAt(1e9, 1000, 10, wire.Buy))
	for i := uint64(2); i < 20; i++ {
		s.OnTrade(tradeAt(i*1e9, 1000, 20, wire.Buy)) // heavy buy pressure
	}
	s.SyncWithBook(book, 0.001)

	rng := NewPCG(17, 17)
	buys := 0
	n := 2_000
	for i := 0; i < n; i++ {
		if d.DecideInsert(s, 0, rng).Side == wire.Buy {
			buys++
		}
	}
	assert.Greater(t, float64(buys)/float64(n), 0.6, "buy pressure should tilt the side draw")
}
