package book

import "helix/wire"

// Callbacks is the engine's only output channel. The exchange translates
// these into frames; tests substitute a spy. The engine itself performs no
// I/O (all sends happen behind this interface, off the match loop's back).
type Callbacks interface {
	// OnTrade fires once per match. price is the maker's resting price.
	OnTrade(
		maker *Order,
		takerClientID uint32,
		takerOrderID uint32,
		price int64,
		takerTotalQuantity uint32,
		takerCumulativeQuantity uint32,
		tradedQuantity uint32,
		timestamp uint64,
	)
	OnOrderInserted(clientRequestID uint32, o *Order, timestamp uint64)
	OnOrderCancelled(clientRequestID uint32, o *Order, timestamp uint64)
	OnOrderAmended(clientRequestID uint32, quantityOld uint32, o *Order, timestamp uint64)
	OnLevelUpdate(side wire.Side, level *PriceLevel, timestamp uint64)
	OnError(clientID, clientRequestID uint32, code wire.ErrorCode, message string, timestamp uint64)
}
