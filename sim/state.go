package sim

import (
	"math"

	"helix/wire"
)

// EWMA time constants, in seconds.
const (
	tauShort    = 1.0
	tauLong     = 30.0
	tauJump     = 10.0
	tauFlow     = 2.0
	tauRate     = 5.0
	tauSurprise = 10.0
	tauFair     = 5.0
	tauExcite   = 1.0

	volMin        = 1e-6
	jumpScoreBar  = 5.0
	exciteKick    = 0.3
	minTradeDt    = 1e-6
	momentEpsilon = 1e-9
)

type TimeState struct {
	SimTime        float64
	TimeSinceEvent float64
}

type PriceState struct {
	BestBid        int64
	BestAsk        int64
	Spread         int64
	HasBid         bool
	HasAsk         bool
	HasSpread      bool
	LastTradePrice int64
}

func (p *PriceState) MidPrice() (int64, bool) {
	if p.HasBid && p.HasAsk {
		return (p.BestBid + p.BestAsk) / 2, true
	}
	return 0, false
}

// LiquidityState aggregates per-distance-bucket depth: total volumes,
// signed imbalance and volume-weighted distance moments per side.
type LiquidityState struct {
	BucketBounds []int64

	BidVolumes []uint64
	AskVolumes []uint64
	Imbalances []float64

	BidMeanDistances []float64
	BidVariances     []float64
	BidSkews         []float64

	AskMeanDistances []float64
	AskVariances     []float64
	AskSkews         []float64

	HasBidSide bool
	HasAskSide bool
}

type VolatilityState struct {
	RealisedVarianceShort float64
	RealisedVarianceLong  float64
	RealisedVarianceUp    float64
	RealisedVarianceDown  float64
	VolOfVol              float64
	JumpIntensity         float64
}

func (v *VolatilityState) RealisedVolShort() float64 { return math.Sqrt(v.RealisedVarianceShort) }
func (v *VolatilityState) RealisedVolLong() float64  { return math.Sqrt(v.RealisedVarianceLong) }
func (v *VolatilityState) RealisedVolUp() float64    { return math.Sqrt(v.RealisedVarianceUp) }
func (v *VolatilityState) RealisedVolDown() float64  { return math.Sqrt(v.RealisedVarianceDown) }

type FlowState struct {
	AbsVolumeEWMA    float64
	TradeRateEWMA    float64
	BuyVolumeEWMA    float64
	SellVolumeEWMA   float64
	VolumeSurprise   float64
	SignedVolumeEWMA float64
	FlowImbalance    float64
	TakerSignEWMA    float64
	TradeExcitation  float64
}

type LatentState struct {
	FairValue float64
	seeded    bool
}

type weightedMoments struct {
	mean     float64
	variance float64
	skew     float64
}

func computeWeightedMoments(wSum, xSum, x2Sum, x3Sum float64) weightedMoments {
	var m weightedMoments
	if wSum <= 0.0 {
		return m
	}
	m.mean = xSum / wSum
	m.variance = math.Max(0.0, x2Sum/wSum-m.mean*m.mean)
	if m.variance > 0.0 {
		std := math.Sqrt(m.variance)
		m.skew = (x3Sum/wSum - 3.0*m.mean*m.variance - m.mean*m.mean*m.mean) / (std * std * std)
	}
	return m
}

// SimulationState is the online market estimator: it digests the public
// feed into the features the dynamics layer prices its decisions off.
type SimulationState struct {
	timeState  TimeState
	priceState PriceState
	liqState   LiquidityState
	volState   VolatilityState
	flowState  FlowState
	latent     LatentState

	lastTradePrice     int64
	lastTradeTimestamp uint64

	// bucket accumulation scratch
	bidW, bidX, bidX2, bidX3 []float64
	askW, askX, askX2, askX3 []float64
}

func NewSimulationState(bucketBounds []int64) *SimulationState {
	n := len(bucketBounds)
	s := &SimulationState{
		lastTradePrice: wire.MaximumAsk + 1,
		bidW:           make([]float64, n),
		bidX:           make([]float64, n),
		bidX2:          make([]float64, n),
		bidX3:          make([]float64, n),
		askW:           make([]float64, n),
		askX:           make([]float64, n),
		askX2:          make([]float64, n),
		askX3:          make([]float64, n),
	}
	s.liqState = LiquidityState{
		BucketBounds:     append([]int64(nil), bucketBounds...),
		BidVolumes:       make([]uint64, n),
		AskVolumes:       make([]uint64, n),
		Imbalances:       make([]float64, n),
		BidMeanDistances: make([]float64, n),
		BidVariances:     make([]float64, n),
		BidSkews:         make([]float64, n),
		AskMeanDistances: make([]float64, n),
		AskVariances:     make([]float64, n),
		AskSkews:         make([]float64, n),
	}
	return s
}

func (s *SimulationState) TimeState() TimeState           { return s.timeState }
func (s *SimulationState) PriceState() PriceState         { return s.priceState }
func (s *SimulationState) LiquidityState() *LiquidityState { return &s.liqState }
func (s *SimulationState) VolatilityState() VolatilityState { return s.volState }
func (s *SimulationState) FlowState() FlowState           { return s.flowState }
func (s *SimulationState) FairValue() (float64, bool)     { return s.latent.FairValue, s.latent.seeded }

// SyncWithBook refreshes the book-derived features on a simulator tick.
func (s *SimulationState) SyncWithBook(book *ShadowBook, dt float64) {
	s.updatePriceState(book)
	s.updateLiquidityState(book)
	s.updateLatentState(book, dt)
	s.timeState.SimTime += dt
	s.timeState.TimeSinceEvent = dt
}

// OnTrade folds one TRADE_EVENT into the volatility and flow estimators.
func (s *SimulationState) OnTrade(trade *wire.TradeEvent) {
	if s.lastTradeTimestamp == 0 {
		s.lastTradePrice = trade.Price
		s.lastTradeTimestamp = trade.Timestamp
		return
	}
	dt := math.Max(minTradeDt, float64(trade.Timestamp-s.lastTradeTimestamp)*1e-9)
	s.updateVolState(trade, dt)
	s.updateFlowState(trade, dt)
	s.lastTradePrice = trade.Price
	s.lastTradeTimestamp = trade.Timestamp
}

func (s *SimulationState) updatePriceState(book *ShadowBook) {
	bid, hasBid := book.BestBid()
	ask, hasAsk := book.BestAsk()
	s.priceState.BestBid = bid
	s.priceState.BestAsk = ask
	s.priceState.HasBid = hasBid
	s.priceState.HasAsk = hasAsk
	s.priceState.LastTradePrice = s.lastTradePrice
	if hasBid && hasAsk {
		s.priceState.Spread = ask - bid
		s.priceState.HasSpread = true
	} else {
		s.priceState.Spread = 0
		s.priceState.HasSpread = false
	}
}

func (s *SimulationState) updateLiquidityState(book *ShadowBook) {
	liq := &s.liqState
	n := len(liq.BucketBounds)

	bid, hasBid := book.BestBid()
	ask, hasAsk := book.BestAsk()
	liq.HasBidSide = hasBid
	liq.HasAskSide = hasAsk

	for i := 0; i < n; i++ {
		liq.BidVolumes[i] = 0
		liq.AskVolumes[i] = 0
		s.bidW[i], s.bidX[i], s.bidX2[i], s.bidX3[i] = 0, 0, 0, 0
		s.askW[i], s.askX[i], s.askX2[i], s.askX3[i] = 0, 0, 0, 0
	}

	if hasBid {
		book.EachBid(func(price int64, volume uint32) bool {
			dist := float64(bid - price)
			if dist < 0 {
				return true
			}
			for i := 0; i < n; i++ {
				if dist <= float64(liq.BucketBounds[i]) {
					liq.BidVolumes[i] += uint64(volume)
					w := float64(volume)
					s.bidW[i] += w
					s.bidX[i] += w * dist
					s.bidX2[i] += w * dist * dist
					s.bidX3[i] += w * dist * dist * dist
				}
			}
			return true
		})
	}
	if hasAsk {
		book.EachAsk(func(price int64, volume uint32) bool {
			dist := float64(price - ask)
			if dist < 0 {
				return true
			}
			for i := 0; i < n; i++ {
				if dist <= float64(liq.BucketBounds[i]) {
					liq.AskVolumes[i] += uint64(volume)
					w := float64(volume)
					s.askW[i] += w
					s.askX[i] += w * dist
					s.askX2[i] += w * dist * dist
					s.askX3[i] += w * dist * dist * dist
				}
			}
			return true
		})
	}

	for i := 0; i < n; i++ {
		bm := computeWeightedMoments(s.bidW[i], s.bidX[i], s.bidX2[i], s.bidX3[i])
		am := computeWeightedMoments(s.askW[i], s.askX[i], s.askX2[i], s.askX3[i])

		liq.BidMeanDistances[i] = bm.mean
		liq.BidVariances[i] = bm.variance
		liq.BidSkews[i] = bm.skew
		liq.AskMeanDistances[i] = am.mean
		liq.AskVariances[i] = am.variance
		liq.AskSkews[i] = am.skew

		vb := float64(liq.BidVolumes[i])
		va := float64(liq.AskVolumes[i])
		liq.Imbalances[i] = (vb - va) / (vb + va + momentEpsilon)
	}
}

// updateLatentState tracks the fair value as an EWMA of the touch
// microprice, falling back to the last trade when a side is missing.
func (s *SimulationState) updateLatentState(book *ShadowBook, dt float64) {
	var target float64
	ps := &s.priceState
	if ps.HasBid && ps.HasAsk {
		vb := float64(book.VolumeAt(wire.Buy, ps.BestBid))
		va := float64(book.VolumeAt(wire.Sell, ps.BestAsk))
		if vb+va > 0 {
			target = (float64(ps.BestBid)*va + float64(ps.BestAsk)*vb) / (vb + va)
		} else {
			target = float64(ps.BestBid+ps.BestAsk) / 2.0
		}
	} else if s.lastTradeTimestamp != 0 {
		target = float64(s.lastTradePrice)
	} else {
		return
	}

	if !s.latent.seeded {
		s.latent.FairValue = target
		s.latent.seeded = true
		return
	}
	alpha := 1.0 - math.Exp(-dt/tauFair)
	s.latent.FairValue = (1.0-alpha)*s.latent.FairValue + alpha*target
}

func (s *SimulationState) updateVolState(trade *wire.TradeEvent, dt float64) {
	p0 := float64(s.lastTradePrice)
	p1 := float64(trade.Price)
	r := math.Log(p1 / p0)
	r2 := r * r

	vs := &s.volState
	volPrev := math.Sqrt(vs.RealisedVarianceShort)

	aShort := 1.0 - math.Exp(-dt/tauShort)
	aLong := 1.0 - math.Exp(-dt/tauLong)

	vs.RealisedVarianceShort = (1.0-aShort)*vs.RealisedVarianceShort + aShort*r2
	vs.RealisedVarianceLong = (1.0-aLong)*vs.RealisedVarianceLong + aLong*r2

	switch {
	case r > 0.0:
		vs.RealisedVarianceUp = (1.0-aShort)*vs.RealisedVarianceUp + aShort*r2
		vs.RealisedVarianceDown *= 1.0 - aShort
	case r < 0.0:
		vs.RealisedVarianceDown = (1.0-aShort)*vs.RealisedVarianceDown + aShort*r2
		vs.RealisedVarianceUp *= 1.0 - aShort
	default:
		vs.RealisedVarianceUp *= 1.0 - aShort
		vs.RealisedVarianceDown *= 1.0 - aShort
	}

	volNow := math.Sqrt(vs.RealisedVarianceShort)
	dvol := volNow - volPrev
	vs.VolOfVol = (1.0-aShort)*vs.VolOfVol + aShort*dvol*dvol

	if volNow > volMin {
		jumpScore := math.Abs(r) / (volNow*math.Sqrt(dt) + 1e-8)
		aJump := 1.0 - math.Exp(-dt/tauJump)
		if jumpScore > jumpScoreBar {
			vs.JumpIntensity = (1.0-aJump)*vs.JumpIntensity + aJump
		} else {
			vs.JumpIntensity *= 1.0 - aJump
		}
	}
}

func (s *SimulationState) updateFlowState(trade *wire.TradeEvent, dt float64) {
	fs := &s.flowState

	vol := float64(trade.Quantity)
	aFlow := 1.0 - math.Exp(-dt/tauFlow)
	aRate := 1.0 - math.Exp(-dt/tauRate)
	aSurp := 1.0 - math.Exp(-dt/tauSurprise)

	fs.AbsVolumeEWMA = (1.0-aFlow)*fs.AbsVolumeEWMA + aFlow*vol
	fs.TradeRateEWMA = (1.0-aRate)*fs.TradeRateEWMA + aRate*(1.0/dt)

	sign := -1.0
	if trade.TakerSide == wire.Buy {
		sign = 1.0
		fs.BuyVolumeEWMA = (1.0-aFlow)*fs.BuyVolumeEWMA + aFlow*vol
		fs.SellVolumeEWMA *= 1.0 - aFlow
	} else {
		fs.SellVolumeEWMA = (1.0-aFlow)*fs.SellVolumeEWMA + aFlow*vol
		fs.BuyVolumeEWMA *= 1.0 - aFlow
	}

	signedVol := sign * vol
	fs.SignedVolumeEWMA = (1.0-aFlow)*fs.SignedVolumeEWMA + aFlow*signedVol
	fs.FlowImbalance = clamp(fs.SignedVolumeEWMA/(fs.AbsVolumeEWMA+1e-8), -1.0, 1.0)
	fs.TakerSignEWMA = (1.0-aFlow)*fs.TakerSignEWMA + aFlow*sign

	expectedVol := math.Max(fs.AbsVolumeEWMA, 1e-8)
	surprise := (vol - expectedVol) / expectedVol
	fs.VolumeSurprise = (1.0-aSurp)*fs.VolumeSurprise + aSurp*surprise

	// Hawkes-style self-excitation: decay between trades, kick on each.
	fs.TradeExcitation = fs.TradeExcitation*math.Exp(-dt/tauExcite) + exciteKick
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
