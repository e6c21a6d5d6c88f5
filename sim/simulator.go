// Package sim is the agent-based market simulator: a Poisson-clock event
// generator driving order placement through the exchange's own wire
// protocol, fed by the public market-data stream it subscribes to.
package sim

import (
	"context"
	"time"

	"go.uber.org/zap"

	"helix/wire"
)

const (
	maxTickDt     = 0.25 // seconds; clamp across stalls
	feedMsgCap    = 4096
	initialMid    = 1_000
	initialSpread = 4
	seedDepth     = 5
	seedBaseQty   = 20
	seedHazard    = 10.0
)

// feedMsg is one decoded frame handed from the read goroutine to the
// simulator goroutine, which owns all state.
type feedMsg struct {
	t        wire.MessageType
	snapshot wire.OrderBookSnapshot
	plu      wire.PriceLevelUpdate
	trade    wire.TradeEvent
	confirm  wire.ConfirmOrderInserted
	fill     wire.PartialFill
}

type Options struct {
	Address          string
	TickPeriod       time.Duration
	LambdaInsertBase float64
	LambdaCancelBase float64
	BucketBounds     []int64
}

type Simulator struct {
	opts   Options
	client *Client
	rng    RNG

	shadow   *ShadowBook
	state    *SimulationState
	dynamics *Dynamics
	orders   *OrderManager

	requestID        uint32
	cumulativeHazard float64
	lambdaInsert     float64
	lambdaCancel     float64

	feed chan feedMsg
	log  *zap.Logger

	scratch [wire.MaxPayloadSizeBuffer]byte
}

func New(opts Options, rng RNG, log *zap.Logger) (*Simulator, error) {
	client, err := Dial(opts.Address, log)
	if err != nil {
		return nil, err
	}

	s := &Simulator{
		opts:         opts,
		client:       client,
		rng:          rng,
		shadow:       NewShadowBook(),
		state:        NewSimulationState(opts.BucketBounds),
		dynamics:     NewDynamics(opts.LambdaInsertBase, opts.LambdaCancelBase),
		feed:         make(chan feedMsg, feedMsgCap),
		log:          log.Named("sim"),
		lambdaInsert: opts.LambdaInsertBase,
		lambdaCancel: opts.LambdaCancelBase,
	}
	s.orders = NewOrderManager(s.sendCancel)
	return s, nil
}

// Run seeds the book, subscribes to the feed, and drives the tick loop
// until the context is cancelled or the connection drops.
func (s *Simulator) Run(ctx context.Context) error {
	s.client.Start(s.onFrame)
	defer s.client.Close()

	s.populateInitialBook()

	sub := wire.Subscribe{ClientRequestID: s.nextRequestID()}
	sub.Encode(s.scratch[:wire.SizeSubscribe])
	if err := s.client.Send(wire.MsgSubscribe, s.scratch[:wire.SizeSubscribe]); err != nil {
		return err
	}

	ticker := time.NewTicker(s.opts.TickPeriod)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.client.Done():
			s.log.Warn("feed disconnected, stopping")
			return nil
		case m := <-s.feed:
			s.handleFeed(&m)
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if dt > maxTickDt {
				dt = maxTickDt
			}
			s.tick(dt)
		}
	}
}

// tick advances the Poisson clocks by dt seconds.
func (s *Simulator) tick(dt float64) {
	s.state.SyncWithBook(s.shadow, dt)

	s.cumulativeHazard += s.lambdaCancel * dt
	s.orders.OnHazardAdvanced(s.cumulativeHazard)

	s.lambdaInsert, s.lambdaCancel = s.dynamics.UpdateIntensities(s.state, s.orders.OpenOrderCount())

	inserts := s.rng.Poisson(s.lambdaInsert * dt)
	for i := uint32(0); i < inserts; i++ {
		s.generateInsert()
	}
}

func (s *Simulator) generateInsert() {
	decision := s.dynamics.DecideInsert(s.state, s.cumulativeHazard, s.rng)
	requestID := s.nextRequestID()

	if decision.Lifespan == wire.GoodForDay {
		s.orders.RegisterPendingInsert(requestID, s.cumulativeHazard+decision.HazardIncrement)
	}

	insert := wire.InsertOrder{
		ClientRequestID: requestID,
		Side:            decision.Side,
		Price:           decision.Price,
		Quantity:        decision.Quantity,
		Lifespan:        decision.Lifespan,
	}
	insert.Encode(s.scratch[:wire.SizeInsertOrder])
	if err := s.client.Send(wire.MsgInsertOrder, s.scratch[:wire.SizeInsertOrder]); err != nil {
		s.log.Debug("insert send failed", zap.Error(err))
	}
}

func (s *Simulator) sendCancel(exchangeOrderID uint32) {
	cancel := wire.CancelOrder{
		ClientRequestID: s.nextRequestID(),
		ExchangeOrderID: exchangeOrderID,
	}
	cancel.Encode(s.scratch[:wire.SizeCancelOrder])
	if err := s.client.Send(wire.MsgCancelOrder, s.scratch[:wire.SizeCancelOrder]); err != nil {
		s.log.Debug("cancel send failed", zap.Error(err))
	}
}

func (s *Simulator) nextRequestID() uint32 {
	id := s.requestID
	s.requestID++
	return id
}

// populateInitialBook lays five levels a side around the opening mid so
// the estimators have a book to look at.
func (s *Simulator) populateInitialBook() {
	bestBid := int64(initialMid - initialSpread/2)
	bestAsk := int64(initialMid + initialSpread/2)

	var buf [wire.SizeInsertOrder]byte
	for depth := int64(0); depth < seedDepth; depth++ {
		qty := uint32(seedBaseQty * (seedDepth - depth))

		buyID := s.nextRequestID()
		buy := wire.InsertOrder{
			ClientRequestID: buyID,
			Side:            wire.Buy,
			Price:           bestBid - depth,
			Quantity:        qty,
			Lifespan:        wire.GoodForDay,
		}
		buy.Encode(buf[:])
		if err := s.client.Send(wire.MsgInsertOrder, buf[:]); err != nil {
			return
		}
		s.orders.RegisterPendingInsert(buyID, s.cumulativeHazard+seedHazard)

		sellID := s.nextRequestID()
		sell := wire.InsertOrder{
			ClientRequestID: sellID,
			Side:            wire.Sell,
			Price:           bestAsk + depth,
			Quantity:        qty,
			Lifespan:        wire.GoodForDay,
		}
		sell.Encode(buf[:])
		if err := s.client.Send(wire.MsgInsertOrder, buf[:]); err != nil {
			return
		}
		s.orders.RegisterPendingInsert(sellID, s.cumulativeHazard+seedHazard)
	}
}

// onFrame runs on the read goroutine: decode and hand off.
func (s *Simulator) onFrame(t wire.MessageType, payload []byte) {
	var m feedMsg
	m.t = t
	switch t {
	case wire.MsgOrderBookSnapshot:
		m.snapshot = wire.DecodeOrderBookSnapshot(payload)
	case wire.MsgPriceLevelUpdate:
		m.plu = wire.DecodePriceLevelUpdate(payload)
	case wire.MsgTradeEvent:
		m.trade = wire.DecodeTradeEvent(payload)
	case wire.MsgConfirmOrderInserted:
		m.confirm = wire.DecodeConfirmOrderInserted(payload)
	case wire.MsgPartialFillOrder:
		m.fill = wire.DecodePartialFill(payload)
	default:
		return
	}
	select {
	case s.feed <- m:
	default:
		s.log.Warn("feed channel full, dropping frame", zap.String("type", t.String()))
	}
}

func (s *Simulator) handleFeed(m *feedMsg) {
	switch m.t {
	case wire.MsgOrderBookSnapshot:
		s.shadow.ApplySnapshot(&m.snapshot)
	case wire.MsgPriceLevelUpdate:
		s.shadow.ApplyLevelUpdate(&m.plu)
	case wire.MsgTradeEvent:
		s.state.OnTrade(&m.trade)
	case wire.MsgConfirmOrderInserted:
		s.orders.OnInsertAcknowledged(m.confirm.ClientRequestID, m.confirm.ExchangeOrderID)
	case wire.MsgPartialFillOrder:
		s.orders.OnPartialFill(m.fill.ExchangeOrderID, m.fill.LeavesQuantity)
	}
}
