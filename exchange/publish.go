package exchange

import (
	"helix/domain/book"
	"helix/infra/metrics"
	"helix/wire"
)

// Callback translation: engine notifications become private frames to the
// clients involved (both maker and taker on a trade; none on a level
// update) and public frames to the market-data subscribers (none on an
// error). Sequence numbers are attached to every public
// event; errors and private confirmations consume none.

var _ book.Callbacks = (*Exchange)(nil)

// publish fans one public event out to subscribers, the event log and the
// Kafka outbox.
func (e *Exchange) publish(seq uint32, t wire.MessageType, payload []byte, timestamp uint64) {
	for _, id := range e.subscribers {
		e.sendTo(id, t, payload)
	}
	if e.opts.EventLog != nil {
		e.opts.EventLog.Log(t, payload)
	}
	if e.opts.OutboxWriter != nil {
		e.opts.OutboxWriter.Enqueue(uint64(seq), t, timestamp, payload)
	}
}

func (e *Exchange) nextSeq() uint32 {
	s := e.seq
	e.seq++
	return s
}

func (e *Exchange) OnTrade(
	maker *book.Order,
	takerClientID uint32,
	takerOrderID uint32,
	price int64,
	takerTotalQuantity uint32,
	takerCumulativeQuantity uint32,
	tradedQuantity uint32,
	timestamp uint64,
) {
	tradeID := e.tradeID
	e.tradeID++
	seq := e.nextSeq()

	makerFill := wire.PartialFill{
		ExchangeOrderID:    maker.OrderID,
		TradeID:            tradeID,
		LastPrice:          price,
		LastQuantity:       tradedQuantity,
		LeavesQuantity:     maker.QuantityRemaining,
		CumulativeQuantity: maker.QuantityCumulative,
		Timestamp:          timestamp,
	}
	makerFill.Encode(e.scratch[:wire.SizePartialFill])
	e.sendTo(maker.ClientID, wire.MsgPartialFillOrder, e.scratch[:wire.SizePartialFill])

	takerFill := wire.PartialFill{
		ExchangeOrderID:    takerOrderID,
		TradeID:            tradeID,
		LastPrice:          price,
		LastQuantity:       tradedQuantity,
		LeavesQuantity:     takerTotalQuantity - takerCumulativeQuantity,
		CumulativeQuantity: takerCumulativeQuantity,
		Timestamp:          timestamp,
	}
	takerFill.Encode(e.scratch[:wire.SizePartialFill])
	e.sendTo(takerClientID, wire.MsgPartialFillOrder, e.scratch[:wire.SizePartialFill])

	trade := wire.TradeEvent{
		SequenceNumber: seq,
		TradeID:        tradeID,
		Price:          price,
		Quantity:       tradedQuantity,
		TakerSide:      maker.Side.Opposite(),
		Timestamp:      timestamp,
	}
	trade.Encode(e.scratch[:wire.SizeTradeEvent])
	e.publish(seq, wire.MsgTradeEvent, e.scratch[:wire.SizeTradeEvent], timestamp)
	metrics.Trades.Inc()
}

func (e *Exchange) OnOrderInserted(clientRequestID uint32, o *book.Order, timestamp uint64) {
	seq := e.nextSeq()

	confirm := wire.ConfirmOrderInserted{
		ClientRequestID: clientRequestID,
		ExchangeOrderID: o.OrderID,
		Side:            o.Side,
		Price:           o.Price,
		TotalQuantity:   o.Quantity,
		LeavesQuantity:  o.QuantityRemaining,
		Timestamp:       timestamp,
	}
	confirm.Encode(e.scratch[:wire.SizeConfirmOrderInserted])
	e.sendTo(o.ClientID, wire.MsgConfirmOrderInserted, e.scratch[:wire.SizeConfirmOrderInserted])

	event := wire.OrderInsertedEvent{
		SequenceNumber: seq,
		OrderID:        o.OrderID,
		Side:           o.Side,
		Price:          o.Price,
		Quantity:       o.QuantityRemaining,
		Timestamp:      timestamp,
	}
	event.Encode(e.scratch[:wire.SizeOrderInsertedEvent])
	e.publish(seq, wire.MsgOrderInsertedEvent, e.scratch[:wire.SizeOrderInsertedEvent], timestamp)
	metrics.OrdersInserted.Inc()
}

func (e *Exchange) OnOrderCancelled(clientRequestID uint32, o *book.Order, timestamp uint64) {
	seq := e.nextSeq()

	confirm := wire.ConfirmOrderCancelled{
		ClientRequestID: clientRequestID,
		ExchangeOrderID: o.OrderID,
		LeavesQuantity:  o.QuantityRemaining,
		Price:           o.Price,
		Side:            o.Side,
		Timestamp:       timestamp,
	}
	confirm.Encode(e.scratch[:wire.SizeConfirmOrderCancelled])
	e.sendTo(o.ClientID, wire.MsgConfirmOrderCancelled, e.scratch[:wire.SizeConfirmOrderCancelled])

	event := wire.OrderCancelledEvent{
		SequenceNumber:    seq,
		OrderID:           o.OrderID,
		RemainingQuantity: o.QuantityRemaining,
		Timestamp:         timestamp,
	}
	event.Encode(e.scratch[:wire.SizeOrderCancelledEvent])
	e.publish(seq, wire.MsgOrderCancelledEvent, e.scratch[:wire.SizeOrderCancelledEvent], timestamp)
	metrics.OrdersCancelled.Inc()
}

func (e *Exchange) OnOrderAmended(clientRequestID uint32, quantityOld uint32, o *book.Order, timestamp uint64) {
	seq := e.nextSeq()

	confirm := wire.ConfirmOrderAmended{
		ClientRequestID:  clientRequestID,
		ExchangeOrderID:  o.OrderID,
		OldTotalQuantity: quantityOld,
		NewTotalQuantity: o.Quantity,
		LeavesQuantity:   o.QuantityRemaining,
		Timestamp:        timestamp,
	}
	confirm.Encode(e.scratch[:wire.SizeConfirmOrderAmended])
	e.sendTo(o.ClientID, wire.MsgConfirmOrderAmended, e.scratch[:wire.SizeConfirmOrderAmended])

	event := wire.OrderAmendedEvent{
		SequenceNumber: seq,
		OrderID:        o.OrderID,
		QuantityNew:    o.Quantity,
		QuantityOld:    quantityOld,
		Timestamp:      timestamp,
	}
	event.Encode(e.scratch[:wire.SizeOrderAmendedEvent])
	e.publish(seq, wire.MsgOrderAmendedEvent, e.scratch[:wire.SizeOrderAmendedEvent], timestamp)
}

func (e *Exchange) OnLevelUpdate(side wire.Side, level *book.PriceLevel, timestamp uint64) {
	seq := e.nextSeq()

	update := wire.PriceLevelUpdate{
		SequenceNumber: seq,
		Side:           side,
		Price:          level.Price,
		TotalVolume:    level.TotalQuantity,
		Timestamp:      timestamp,
	}
	update.Encode(e.scratch[:wire.SizePriceLevelUpdate])
	e.publish(seq, wire.MsgPriceLevelUpdate, e.scratch[:wire.SizePriceLevelUpdate], timestamp)
}

func (e *Exchange) OnError(clientID, clientRequestID uint32, code wire.ErrorCode, message string, timestamp uint64) {
	p := wire.Error{
		ClientRequestID: clientRequestID,
		Code:            code,
		Timestamp:       timestamp,
	}
	p.SetMessage(message)
	p.Encode(e.scratch[:wire.SizeError])
	e.sendTo(clientID, wire.MsgErrorMsg, e.scratch[:wire.SizeError])
	metrics.ClientErrors.WithLabelValues(code.String()).Inc()
}
