package wire

import "encoding/binary"

// Payload records are packed little-endian at fixed offsets. Encode writes
// exactly the declared size into dst; Decode reads the same layout back.
// Offsets follow the packed field order of the protocol structs.

var le = binary.LittleEndian

type InsertOrder struct {
	ClientRequestID uint32
	Side            Side
	Price           int64
	Quantity        uint32
	Lifespan        Lifespan
}

func (p *InsertOrder) Encode(dst []byte) {
	le.PutUint32(dst[0:], p.ClientRequestID)
	dst[4] = byte(p.Side)
	le.PutUint64(dst[5:], uint64(p.Price))
	le.PutUint32(dst[13:], p.Quantity)
	dst[17] = byte(p.Lifespan)
}

func DecodeInsertOrder(src []byte) InsertOrder {
	return InsertOrder{
		ClientRequestID: le.Uint32(src[0:]),
		Side:            Side(src[4]),
		Price:           int64(le.Uint64(src[5:])),
		Quantity:        le.Uint32(src[13:]),
		Lifespan:        Lifespan(src[17]),
	}
}

type CancelOrder struct {
	ClientRequestID uint32
	ExchangeOrderID uint32
}

func (p *CancelOrder) Encode(dst []byte) {
	le.PutUint32(dst[0:], p.ClientRequestID)
	le.PutUint32(dst[4:], p.ExchangeOrderID)
}

func DecodeCancelOrder(src []byte) CancelOrder {
	return CancelOrder{
		ClientRequestID: le.Uint32(src[0:]),
		ExchangeOrderID: le.Uint32(src[4:]),
	}
}

type AmendOrder struct {
	ClientRequestID  uint32
	ExchangeOrderID  uint32
	NewTotalQuantity uint32
}

func (p *AmendOrder) Encode(dst []byte) {
	le.PutUint32(dst[0:], p.ClientRequestID)
	le.PutUint32(dst[4:], p.ExchangeOrderID)
	le.PutUint32(dst[8:], p.NewTotalQuantity)
}

func DecodeAmendOrder(src []byte) AmendOrder {
	return AmendOrder{
		ClientRequestID:  le.Uint32(src[0:]),
		ExchangeOrderID:  le.Uint32(src[4:]),
		NewTotalQuantity: le.Uint32(src[8:]),
	}
}

// Subscribe, Unsubscribe and Disconnect share the same single-field layout.
type Subscribe struct {
	ClientRequestID uint32
}

func (p *Subscribe) Encode(dst []byte) { le.PutUint32(dst[0:], p.ClientRequestID) }

func DecodeSubscribe(src []byte) Subscribe {
	return Subscribe{ClientRequestID: le.Uint32(src[0:])}
}

type Unsubscribe struct {
	ClientRequestID uint32
}

func (p *Unsubscribe) Encode(dst []byte) { le.PutUint32(dst[0:], p.ClientRequestID) }

func DecodeUnsubscribe(src []byte) Unsubscribe {
	return Unsubscribe{ClientRequestID: le.Uint32(src[0:])}
}

type Disconnect struct {
	ClientRequestID uint32
}

func (p *Disconnect) Encode(dst []byte) { le.PutUint32(dst[0:], p.ClientRequestID) }

func DecodeDisconnect(src []byte) Disconnect {
	return Disconnect{ClientRequestID: le.Uint32(src[0:])}
}

type OrderStatusRequest struct {
	ClientRequestID uint32
	ExchangeOrderID uint32
}

func (p *OrderStatusRequest) Encode(dst []byte) {
	le.PutUint32(dst[0:], p.ClientRequestID)
	le.PutUint32(dst[4:], p.ExchangeOrderID)
}

func DecodeOrderStatusRequest(src []byte) OrderStatusRequest {
	return OrderStatusRequest{
		ClientRequestID: le.Uint32(src[0:]),
		ExchangeOrderID: le.Uint32(src[4:]),
	}
}

// Error carries a zero-padded UTF-8 text field of fixed width.
type Error struct {
	ClientRequestID uint32
	Code            ErrorCode
	Message         [ErrorTextLen]byte
	Timestamp       uint64
}

func (p *Error) Encode(dst []byte) {
	le.PutUint32(dst[0:], p.ClientRequestID)
	le.PutUint16(dst[4:], uint16(p.Code))
	copy(dst[6:6+ErrorTextLen], p.Message[:])
	le.PutUint64(dst[38:], p.Timestamp)
}

func DecodeError(src []byte) Error {
	var p Error
	p.ClientRequestID = le.Uint32(src[0:])
	p.Code = ErrorCode(le.Uint16(src[4:]))
	copy(p.Message[:], src[6:6+ErrorTextLen])
	p.Timestamp = le.Uint64(src[38:])
	return p
}

// SetMessage truncates to the text field width, keeping a trailing NUL.
func (p *Error) SetMessage(s string) {
	n := len(s)
	if n > ErrorTextLen-1 {
		n = ErrorTextLen - 1
	}
	copy(p.Message[:n], s)
	for i := n; i < ErrorTextLen; i++ {
		p.Message[i] = 0
	}
}

func (p *Error) MessageString() string {
	n := 0
	for n < ErrorTextLen && p.Message[n] != 0 {
		n++
	}
	return string(p.Message[:n])
}

type ConfirmOrderInserted struct {
	ClientRequestID uint32
	ExchangeOrderID uint32
	Side            Side
	Price           int64
	TotalQuantity   uint32
	LeavesQuantity  uint32
	Timestamp       uint64
}

func (p *ConfirmOrderInserted) Encode(dst []byte) {
	le.PutUint32(dst[0:], p.ClientRequestID)
	le.PutUint32(dst[4:], p.ExchangeOrderID)
	dst[8] = byte(p.Side)
	le.PutUint64(dst[9:], uint64(p.Price))
	le.PutUint32(dst[17:], p.TotalQuantity)
	le.PutUint32(dst[21:], p.LeavesQuantity)
	le.PutUint64(dst[25:], p.Timestamp)
}

func DecodeConfirmOrderInserted(src []byte) ConfirmOrderInserted {
	return ConfirmOrderInserted{
		ClientRequestID: le.Uint32(src[0:]),
		ExchangeOrderID: le.Uint32(src[4:]),
		Side:            Side(src[8]),
		Price:           int64(le.Uint64(src[9:])),
		TotalQuantity:   le.Uint32(src[17:]),
		LeavesQuantity:  le.Uint32(src[21:]),
		Timestamp:       le.Uint64(src[25:]),
	}
}

type ConfirmOrderCancelled struct {
	ClientRequestID uint32
	ExchangeOrderID uint32
	LeavesQuantity  uint32
	Price           int64
	Side            Side
	Timestamp       uint64
}

func (p *ConfirmOrderCancelled) Encode(dst []byte) {
	le.PutUint32(dst[0:], p.ClientRequestID)
	le.PutUint32(dst[4:], p.ExchangeOrderID)
	le.PutUint32(dst[8:], p.LeavesQuantity)
	le.PutUint64(dst[12:], uint64(p.Price))
	dst[20] = byte(p.Side)
	le.PutUint64(dst[21:], p.Timestamp)
}

func DecodeConfirmOrderCancelled(src []byte) ConfirmOrderCancelled {
	return ConfirmOrderCancelled{
		ClientRequestID: le.Uint32(src[0:]),
		ExchangeOrderID: le.Uint32(src[4:]),
		LeavesQuantity:  le.Uint32(src[8:]),
		Price:           int64(le.Uint64(src[12:])),
		Side:            Side(src[20]),
		Timestamp:       le.Uint64(src[21:]),
	}
}

type ConfirmOrderAmended struct {
	ClientRequestID  uint32
	ExchangeOrderID  uint32
	OldTotalQuantity uint32
	NewTotalQuantity uint32
	LeavesQuantity   uint32
	Timestamp        uint64
}

func (p *ConfirmOrderAmended) Encode(dst []byte) {
	le.PutUint32(dst[0:], p.ClientRequestID)
	le.PutUint32(dst[4:], p.ExchangeOrderID)
	le.PutUint32(dst[8:], p.OldTotalQuantity)
	le.PutUint32(dst[12:], p.NewTotalQuantity)
	le.PutUint32(dst[16:], p.LeavesQuantity)
	le.PutUint64(dst[20:], p.Timestamp)
}

func DecodeConfirmOrderAmended(src []byte) ConfirmOrderAmended {
	return ConfirmOrderAmended{
		ClientRequestID:  le.Uint32(src[0:]),
		ExchangeOrderID:  le.Uint32(src[4:]),
		OldTotalQuantity: le.Uint32(src[8:]),
		NewTotalQuantity: le.Uint32(src[12:]),
		LeavesQuantity:   le.Uint32(src[16:]),
		Timestamp:        le.Uint64(src[20:]),
	}
}

type PartialFill struct {
	ExchangeOrderID    uint32
	TradeID            uint32
	LastPrice          int64
	LastQuantity       uint32
	LeavesQuantity     uint32
	CumulativeQuantity uint32
	Timestamp          uint64
}

func (p *PartialFill) Encode(dst []byte) {
	le.PutUint32(dst[0:], p.ExchangeOrderID)
	le.PutUint32(dst[4:], p.TradeID)
	le.PutUint64(dst[8:], uint64(p.LastPrice))
	le.PutUint32(dst[16:], p.LastQuantity)
	le.PutUint32(dst[20:], p.LeavesQuantity)
	le.PutUint32(dst[24:], p.CumulativeQuantity)
	le.PutUint64(dst[28:], p.Timestamp)
}

func DecodePartialFill(src []byte) PartialFill {
	return PartialFill{
		ExchangeOrderID:    le.Uint32(src[0:]),
		TradeID:            le.Uint32(src[4:]),
		LastPrice:          int64(le.Uint64(src[8:])),
		LastQuantity:       le.Uint32(src[16:]),
		LeavesQuantity:     le.Uint32(src[20:]),
		CumulativeQuantity: le.Uint32(src[24:]),
		Timestamp:          le.Uint64(src[28:]),
	}
}

type OrderStatus struct {
	ClientRequestID uint32
	ExchangeOrderID uint32
	Side            Side
	LimitPrice      int64
	LastPrice       int64
	TotalQuantity   uint32
	FilledQuantity  uint32
	LeavesQuantity  uint32
	Timestamp       uint64
}

func (p *OrderStatus) Encode(dst []byte) {
	le.PutUint32(dst[0:], p.ClientRequestID)
	le.PutUint32(dst[4:], p.ExchangeOrderID)
	dst[8] = byte(p.Side)
	le.PutUint64(dst[9:], uint64(p.LimitPrice))
	le.PutUint64(dst[17:], uint64(p.LastPrice))
	le.PutUint32(dst[25:], p.TotalQuantity)
	le.PutUint32(dst[29:], p.FilledQuantity)
	le.PutUint32(dst[33:], p.LeavesQuantity)
	le.PutUint64(dst[37:], p.Timestamp)
}

func DecodeOrderStatus(src []byte) OrderStatus {
	return OrderStatus{
		ClientRequestID: le.Uint32(src[0:]),
		ExchangeOrderID: le.Uint32(src[4:]),
		Side:            Side(src[8]),
		LimitPrice:      int64(le.Uint64(src[9:])),
		LastPrice:       int64(le.Uint64(src[17:])),
		TotalQuantity:   le.Uint32(src[25:]),
		FilledQuantity:  le.Uint32(src[29:]),
		LeavesQuantity:  le.Uint32(src[33:]),
		Timestamp:       le.Uint64(src[37:]),
	}
}

// OrderBookSnapshot is the only payload above MaxPayloadSizeBuffer; it
// always takes the unbuffered send path.
type OrderBookSnapshot struct {
	AskPrices      [SnapshotDepth]int64
	AskVolumes     [SnapshotDepth]uint32
	BidPrices      [SnapshotDepth]int64
	BidVolumes     [SnapshotDepth]uint32
	SequenceNumber uint32
}

func (p *OrderBookSnapshot) Encode(dst []byte) {
	off := 0
	for i := 0; i < SnapshotDepth; i++ {
		le.PutUint64(dst[off:], uint64(p.AskPrices[i]))
		off += 8
	}
	for i := 0; i < SnapshotDepth; i++ {
		le.PutUint32(dst[off:], p.AskVolumes[i])
		off += 4
	}
	for i := 0; i < SnapshotDepth; i++ {
		le.PutUint64(dst[off:], uint64(p.BidPrices[i]))
		off += 8
	}
	for i := 0; i < SnapshotDepth; i++ {
		le.PutUint32(dst[off:], p.BidVolumes[i])
		off += 4
	}
	le.PutUint32(dst[off:], p.SequenceNumber)
}

func DecodeOrderBookSnapshot(src []byte) OrderBookSnapshot {
	var p OrderBookSnapshot
	off := 0
	for i := 0; i < SnapshotDepth; i++ {
		p.AskPrices[i] = int64(le.Uint64(src[off:]))
		off += 8
	}
	for i := 0; i < SnapshotDepth; i++ {
		p.AskVolumes[i] = le.Uint32(src[off:])
		off += 4
	}
	for i := 0; i < SnapshotDepth; i++ {
		p.BidPrices[i] = int64(le.Uint64(src[off:]))
		off += 8
	}
	for i := 0; i < SnapshotDepth; i++ {
		p.BidVolumes[i] = le.Uint32(src[off:])
		off += 4
	}
	p.SequenceNumber = le.Uint32(src[off:])
	return p
}

type TradeEvent struct {
	SequenceNumber uint32
	TradeID        uint32
	Price          int64
	Quantity       uint32
	TakerSide      Side
	Timestamp      uint64
}

func (p *TradeEvent) Encode(dst []byte) {
	le.PutUint32(dst[0:], p.SequenceNumber)
	le.PutUint32(dst[4:], p.TradeID)
	le.PutUint64(dst[8:], uint64(p.Price))
	le.PutUint32(dst[16:], p.Quantity)
	dst[20] = byte(p.TakerSide)
	le.PutUint64(dst[21:], p.Timestamp)
}

func DecodeTradeEvent(src []byte) TradeEvent {
	return TradeEvent{
		SequenceNumber: le.Uint32(src[0:]),
		TradeID:        le.Uint32(src[4:]),
		Price:          int64(le.Uint64(src[8:])),
		Quantity:       le.Uint32(src[16:]),
		TakerSide:      Side(src[20]),
		Timestamp:      le.Uint64(src[21:]),
	}
}

type OrderInsertedEvent struct {
	SequenceNumber uint32
	OrderID        uint32
	Side           Side
	Price          int64
	Quantity       uint32
	Timestamp      uint64
}

func (p *OrderInsertedEvent) Encode(dst []byte) {
	le.PutUint32(dst[0:], p.SequenceNumber)
	le.PutUint32(dst[4:], p.OrderID)
	dst[8] = byte(p.Side)
	le.PutUint64(dst[9:], uint64(p.Price))
	le.PutUint32(dst[17:], p.Quantity)
	le.PutUint64(dst[21:], p.Timestamp)
}

func DecodeOrderInsertedEvent(src []byte) OrderInsertedEvent {
	return OrderInsertedEvent{
		SequenceNumber: le.Uint32(src[0:]),
		OrderID:        le.Uint32(src[4:]),
		Side:           Side(src[8]),
		Price:          int64(le.Uint64(src[9:])),
		Quantity:       le.Uint32(src[17:]),
		Timestamp:      le.Uint64(src[21:]),
	}
}

type OrderCancelledEvent struct {
	SequenceNumber    uint32
	OrderID           uint32
	RemainingQuantity uint32
	Timestamp         uint64
}

func (p *OrderCancelledEvent) Encode(dst []byte) {
	le.PutUint32(dst[0:], p.SequenceNumber)
	le.PutUint32(dst[4:], p.OrderID)
	le.PutUint32(dst[8:], p.RemainingQuantity)
	le.PutUint64(dst[12:], p.Timestamp)
}

func DecodeOrderCancelledEvent(src []byte) OrderCancelledEvent {
	return OrderCancelledEvent{
		SequenceNumber:    le.Uint32(src[0:]),
		OrderID:           le.Uint32(src[4:]),
		RemainingQuantity: le.Uint32(src[8:]),
		Timestamp:         le.Uint64(src[12:]),
	}
}

type OrderAmendedEvent struct {
	SequenceNumber uint32
	OrderID        uint32
	QuantityNew    uint32
	QuantityOld    uint32
	Timestamp      uint64
}

func (p *OrderAmendedEvent) Encode(dst []byte) {
	le.PutUint32(dst[0:], p.SequenceNumber)
	le.PutUint32(dst[4:], p.OrderID)
	le.PutUint32(dst[8:], p.QuantityNew)
	le.PutUint32(dst[12:], p.QuantityOld)
	le.PutUint64(dst[16:], p.Timestamp)
}

func DecodeOrderAmendedEvent(src []byte) OrderAmendedEvent {
	return OrderAmendedEvent{
		SequenceNumber: le.Uint32(src[0:]),
		OrderID:        le.Uint32(src[4:]),
		QuantityNew:    le.Uint32(src[8:]),
		QuantityOld:    le.Uint32(src[12:]),
		Timestamp:      le.Uint64(src[16:]),
	}
}

type PriceLevelUpdate struct {
	SequenceNumber uint32
	Side           Side
	Price          int64
	TotalVolume    uint32
	Timestamp      uint64
}

func (p *PriceLevelUpdate) Encode(dst []byte) {
	le.PutUint32(dst[0:], p.SequenceNumber)
	dst[4] = byte(p.Side)
	le.PutUint64(dst[5:], uint64(p.Price))
	le.PutUint32(dst[13:], p.TotalVolume)
	le.PutUint64(dst[17:], p.Timestamp)
}

func DecodePriceLevelUpdate(src []byte) PriceLevelUpdate {
	return PriceLevelUpdate{
		SequenceNumber: le.Uint32(src[0:]),
		Side:           Side(src[4]),
		Price:          int64(le.Uint64(src[5:])),
		TotalVolume:    le.Uint32(src[13:]),
		Timestamp:      le.Uint64(src[17:]),
	}
}
