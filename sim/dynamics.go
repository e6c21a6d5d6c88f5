package sim

import (
	"math"

	"helix/wire"
)

// Archetypes approximate trader classes: each biases placement distance,
// size and cancellation hazard differently.
type Archetype int

const (
	ArchetypeMM Archetype = iota
	ArchetypeTaker
	ArchetypeDeep
	ArchetypeNoise
)

const (
	cancelScalingFactor = 50.0

	lambdaInsertFloor = 0.3
	lambdaInsertCeil  = 10.0
	lambdaCancelFloor = 0.2
	lambdaCancelCeil  = 25.0

	hazardIncrementMin = 0.02
	hazardIncrementMax = 100.0

	baseOrderSize = 10.0
)

var lotSizes = [...]uint32{1, 5, 10, 25, 50, 100}

type InsertDecision struct {
	Side            wire.Side
	Price           int64
	Quantity        uint32
	Lifespan        wire.Lifespan
	HazardIncrement float64
}

// Dynamics turns estimator state into event intensities and order
// placement decisions.
type Dynamics struct {
	LambdaInsertBase float64
	LambdaCancelBase float64
}

func NewDynamics(insertBase, cancelBase float64) *Dynamics {
	return &Dynamics{LambdaInsertBase: insertBase, LambdaCancelBase: cancelBase}
}

// nearDepth is the total volume resting in the tightest liquidity bucket.
func nearDepth(state *SimulationState) float64 {
	liq := state.LiquidityState()
	if len(liq.BidVolumes) == 0 {
		return 0
	}
	return float64(liq.BidVolumes[0] + liq.AskVolumes[0])
}

func nearTouchImbalance(state *SimulationState) float64 {
	liq := state.LiquidityState()
	if len(liq.Imbalances) == 0 {
		return 0
	}
	return liq.Imbalances[0]
}

// UpdateIntensities recomputes the Poisson clock rates from current state.
func (d *Dynamics) UpdateIntensities(state *SimulationState, openOrders int) (lambdaInsert, lambdaCancel float64) {
	fs := state.FlowState()
	vs := state.VolatilityState()
	ps := state.PriceState()

	sigmaShort := vs.RealisedVolShort()

	insertMult := 1.0 +
		0.45*math.Abs(fs.FlowImbalance) +
		0.65*math.Min(sigmaShort, 1.5) +
		0.5*clamp(fs.TradeExcitation, 0, 3) +
		0.6/math.Sqrt(1.0+nearDepth(state))
	insertMult = clamp(insertMult, lambdaInsertFloor, lambdaInsertCeil)

	depthMult := 0.35 + float64(openOrders)/cancelScalingFactor
	volMult := 1.0 + 1.2*math.Min(sigmaShort, 1.5) + 1.0*vs.JumpIntensity
	flowMult := 1.0 + 1.0*math.Abs(fs.FlowImbalance) + 0.6*math.Abs(fs.TakerSignEWMA)
	spreadTicks := 0.0
	if ps.HasSpread {
		spreadTicks = float64(ps.Spread)
	}
	spreadMult := 1.0 + 0.25*spreadTicks
	exciteMult := 1.0 + 0.6*clamp(fs.TradeExcitation, 0, 3)

	cancelMult := clamp(depthMult*volMult*flowMult*spreadMult*exciteMult, lambdaCancelFloor, lambdaCancelCeil)

	return d.LambdaInsertBase * insertMult, d.LambdaCancelBase * cancelMult
}

// DecideInsert draws one order: side, archetype, placement regime, size
// and the cancellation hazard increment.
func (d *Dynamics) DecideInsert(state *SimulationState, cumulativeHazard float64, rng RNG) InsertDecision {
	fs := state.FlowState()
	vs := state.VolatilityState()

	sigmaShort := vs.RealisedVolShort()

	// Side.
	buyProb := clamp(
		0.5+0.35*math.Tanh(0.9*fs.FlowImbalance+0.6*fs.TakerSignEWMA+0.4*nearTouchImbalance(state)),
		0.02, 0.98,
	)
	side := wire.Sell
	if rng.Bernoulli(buyProb) {
		side = wire.Buy
	}

	// Archetype mixture: urgency shifts weight from makers to takers,
	// thin books attract opportunistic takers too.
	urgency := clamp(
		0.35*math.Abs(fs.FlowImbalance)+
			0.35*math.Min(sigmaShort, 1.0)+
			0.3*clamp(fs.TradeExcitation/2.0, 0, 1),
		0, 1,
	)
	thinness := 1.0 / (1.0 + nearDepth(state))

	wMM := 0.45 * (1.0 - 0.6*urgency)
	wTaker := 0.12 + 0.45*urgency + 0.15*thinness
	wDeep := 0.22 * (1.0 - 0.5*urgency)
	wNoise := 0.21
	total := wMM + wTaker + wDeep + wNoise
	cum := []float64{
		wMM / total,
		(wMM + wTaker) / total,
		(wMM + wTaker + wDeep) / total,
		1.0,
	}
	archetype := Archetype(rng.Categorical(cum))

	price, lifespan := d.placePrice(state, side, archetype, rng)
	quantity := d.drawSize(state, urgency, rng)
	increment := d.hazardIncrement(state, side, archetype, price, rng)

	return InsertDecision{
		Side:            side,
		Price:           price,
		Quantity:        quantity,
		Lifespan:        lifespan,
		HazardIncrement: increment,
	}
}

func (d *Dynamics) placePrice(state *SimulationState, side wire.Side, archetype Archetype, rng RNG) (int64, wire.Lifespan) {
	ps := state.PriceState()
	vs := state.VolatilityState()

	spreadTicks := int64(0)
	if ps.HasSpread {
		spreadTicks = ps.Spread
	}

	// Marketable regime: takers cross, more readily so when the spread
	// is tight.
	pMarketable := 0.0
	switch archetype {
	case ArchetypeTaker:
		pMarketable = 0.75
	case ArchetypeMM:
		pMarketable = 0.04
	case ArchetypeDeep:
		pMarketable = 0.02
	case ArchetypeNoise:
		pMarketable = 0.15
	}
	if ps.HasSpread && spreadTicks <= 1 {
		pMarketable = math.Min(0.95, pMarketable*1.3)
	}

	if rng.Bernoulli(pMarketable) {
		var price int64
		if side == wire.Buy {
			if ps.HasAsk {
				price = ps.BestAsk
			} else {
				price = ps.LastTradePrice
			}
		} else {
			if ps.HasBid {
				price = ps.BestBid
			} else {
				price = ps.LastTradePrice
			}
		}
		lifespan := wire.GoodForDay
		if archetype == ArchetypeTaker {
			lifespan = wire.FillAndKill
		}
		return clampPrice(price), lifespan
	}

	// Improve regime: step one tick inside the spread, maker-biased and
	// only meaningful when there is room.
	pImprove := 0.15
	if archetype == ArchetypeMM {
		pImprove = 0.45
	}
	if ps.HasSpread && spreadTicks > 1 && rng.Bernoulli(pImprove) {
		if side == wire.Buy {
			return clampPrice(ps.BestBid + 1), wire.GoodForDay
		}
		return clampPrice(ps.BestAsk - 1), wire.GoodForDay
	}

	// Passive regime: heavy-tailed exponential distance behind an anchor
	// blending the touch with the latent fair value.
	var best int64
	hasBest := false
	if side == wire.Buy && ps.HasBid {
		best, hasBest = ps.BestBid, true
	} else if side == wire.Sell && ps.HasAsk {
		best, hasBest = ps.BestAsk, true
	}

	var anchor int64
	if hasBest {
		if fv, ok := state.FairValue(); ok {
			anchor = int64(math.Round(0.65*float64(best) + 0.35*fv))
		} else {
			anchor = best
		}
	} else {
		anchor = ps.LastTradePrice
	}

	volRegime := 0.0
	if vl := vs.RealisedVolLong(); vl > 1e-9 {
		volRegime = clamp(vs.RealisedVolShort()/vl, 0, 3)
	}
	meanDist := 1.0 + 0.4*float64(spreadTicks) + 1.5*volRegime + 2.0*vs.JumpIntensity
	switch archetype {
	case ArchetypeMM:
		meanDist *= 0.8
	case ArchetypeDeep:
		meanDist *= 2.5
	case ArchetypeNoise:
		meanDist *= 1.3
	}

	dist := int64(math.Ceil(rng.Exponential(1.0 / meanDist)))
	if dist < 1 {
		dist = 1
	}

	var price int64
	if side == wire.Buy {
		price = anchor - dist
		if ps.HasAsk && price >= ps.BestAsk {
			price = ps.BestAsk - 1
		}
	} else {
		price = anchor + dist
		if ps.HasBid && price <= ps.BestBid {
			price = ps.BestBid + 1
		}
	}
	return clampPrice(price), wire.GoodForDay
}

func (d *Dynamics) drawSize(state *SimulationState, urgency float64, rng RNG) uint32 {
	fs := state.FlowState()

	urgencyFactor := 1.0 + 0.8*urgency
	surpriseFactor := clamp(1.0+0.3*fs.VolumeSurprise, 0.5, 2.0)
	meanLog := math.Log(baseOrderSize * (0.6 + 0.4*math.Sqrt(nearDepth(state))) * urgencyFactor * surpriseFactor)

	// Small "large child" mixture widens the tail.
	sigmaLog := 0.55
	if rng.Bernoulli(0.1) {
		sigmaLog = 1.0
	}
	size := math.Exp(meanLog + sigmaLog*rng.StandardNormal())

	quantity := uint32(math.Max(1.0, math.Round(size)))
	if rng.Bernoulli(0.45) {
		quantity = snapToLot(quantity)
	}
	if quantity > 1000 {
		quantity = 1000
	}
	return quantity
}

func snapToLot(q uint32) uint32 {
	best := lotSizes[0]
	bestDiff := diffU32(q, best)
	for _, lot := range lotSizes[1:] {
		if d := diffU32(q, lot); d < bestDiff {
			best, bestDiff = lot, d
		}
	}
	return best
}

func diffU32(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

// hazardIncrement draws the order's survival budget: deeper orders live
// longer in hazard time, while adversely positioned orders and jumpy tape
// die sooner.
func (d *Dynamics) hazardIncrement(state *SimulationState, side wire.Side, archetype Archetype, price int64, rng RNG) float64 {
	ps := state.PriceState()
	vs := state.VolatilityState()
	fs := state.FlowState()

	distTicks := 0.0
	if side == wire.Buy && ps.HasBid {
		distTicks = math.Abs(float64(ps.BestBid - price))
	} else if side == wire.Sell && ps.HasAsk {
		distTicks = math.Abs(float64(price - ps.BestAsk))
	}

	sideSign := 1.0
	if side == wire.Sell {
		sideSign = -1.0
	}
	adverse := math.Max(0.0, -sideSign*fs.FlowImbalance)

	typeMult := 1.0
	switch archetype {
	case ArchetypeMM:
		typeMult = 0.55
	case ArchetypeDeep:
		typeMult = 2.0
	}

	base := -math.Log(rng.StandardUniform())
	increment := base * math.Exp(0.04*distTicks) * typeMult /
		(1.0 + 2.5*adverse + 1.5*vs.JumpIntensity)
	return clamp(increment, hazardIncrementMin, hazardIncrementMax)
}

func clampPrice(p int64) int64 {
	if p < wire.MinimumBid {
		return wire.MinimumBid
	}
	if p > wire.MaximumAsk {
		return wire.MaximumAsk
	}
	return p
}
