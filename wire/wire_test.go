package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadSizeTable(t *testing.T) {
	cases := map[MessageType]int{
		MsgDisconnect:            4,
		MsgInsertOrder:           18,
		MsgCancelOrder:           8,
		MsgAmendOrder:            12,
		MsgSubscribe:             4,
		MsgUnsubscribe:           4,
		MsgOrderStatusRequest:    8,
		MsgErrorMsg:              46,
		MsgConfirmOrderInserted:  33,
		MsgConfirmOrderCancelled: 29,
		MsgConfirmOrderAmended:   28,
		MsgPartialFillOrder:      36,
		MsgOrderStatus:           45,
		MsgOrderBookSnapshot:     244,
		MsgTradeEvent:            29,
		MsgOrderInsertedEvent:    29,
		MsgOrderCancelledEvent:   20,
		MsgOrderAmendedEvent:     24,
		MsgPriceLevelUpdate:      25,
	}
	for mt, want := range cases {
		assert.Equal(t, want, PayloadSize(mt), "size for %v", mt)
	}
	assert.Equal(t, -1, PayloadSize(MessageType(99)))
	assert.Equal(t, -1, PayloadSize(MsgConnect))
}

func TestInsertOrderRoundTrip(t *testing.T) {
	in := InsertOrder{
		ClientRequestID: 7,
		Side:            Buy,
		Price:           MaximumAsk,
		Quantity:        250,
		Lifespan:        FillAndKill,
	}
	var buf [SizeInsertOrder]byte
	in.Encode(buf[:])
	require.Equal(t, in, DecodeInsertOrder(buf[:]))
}

func TestTradeEventRoundTrip(t *testing.T) {
	in := TradeEvent{
		SequenceNumber: 42,
		TradeID:        9,
		Price:          1001,
		Quantity:       17,
		TakerSide:      Sell,
		Timestamp:      1_700_000_000_000_000_000,
	}
	var buf [SizeTradeEvent]byte
	in.Encode(buf[:])
	require.Equal(t, in, DecodeTradeEvent(buf[:]))
}

func TestSnapshotRoundTrip(t *testing.T) {
	var in OrderBookSnapshot
	for i := 0; i < SnapshotDepth; i++ {
		in.BidPrices[i] = int64(101 - i)
		in.BidVolumes[i] = uint32(10 * (i + 1))
		in.AskPrices[i] = int64(102 + i)
		in.AskVolumes[i] = uint32(5 * (i + 1))
	}
	in.SequenceNumber = 77

	var buf [SizeOrderBookSnapshot]byte
	in.Encode(buf[:])
	require.Equal(t, in, DecodeOrderBookSnapshot(buf[:]))
}

func TestErrorMessageTruncation(t *testing.T) {
	var p Error
	p.SetMessage("this message is much longer than the thirty-two byte field allows")
	assert.Len(t, p.MessageString(), ErrorTextLen-1)
	assert.Zero(t, p.Message[ErrorTextLen-1])

	p.SetMessage("short")
	assert.Equal(t, "short", p.MessageString())

	var buf [SizeError]byte
	p.Code = ErrInvalidPrice
	p.ClientRequestID = 3
	p.Timestamp = 123
	p.Encode(buf[:])
	out := DecodeError(buf[:])
	assert.Equal(t, "short", out.MessageString())
	assert.Equal(t, ErrInvalidPrice, out.Code)
}

func TestFrameHeaderBigEndian(t *testing.T) {
	var hdr [HeaderSize]byte
	PutHeader(hdr[:], MsgInsertOrder, 0x0102)
	assert.Equal(t, byte(MsgInsertOrder), hdr[0])
	assert.Equal(t, byte(0x01), hdr[1])
	assert.Equal(t, byte(0x02), hdr[2])
	assert.Equal(t, uint16(0x0102), ReadUint16BE(hdr[1:]))
}

func TestAppendFrame(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC}
	frame := AppendFrame(nil, MsgTradeEvent, payload)
	require.Len(t, frame, HeaderSize+3)
	assert.Equal(t, byte(MsgTradeEvent), frame[0])
	assert.Equal(t, uint16(3), ReadUint16BE(frame[1:]))
	assert.Equal(t, payload, frame[HeaderSize:])
}

func TestBufferBoundExcludesOnlySnapshot(t *testing.T) {
	for _, mt := range []MessageType{
		MsgDisconnect, MsgInsertOrder, MsgCancelOrder, MsgAmendOrder,
		MsgSubscribe, MsgUnsubscribe, MsgOrderStatusRequest, MsgErrorMsg,
		MsgConfirmOrderInserted, MsgConfirmOrderCancelled, MsgConfirmOrderAmended,
		MsgPartialFillOrder, MsgOrderStatus, MsgTradeEvent,
		MsgOrderInsertedEvent, MsgOrderCancelledEvent, MsgOrderAmendedEvent,
		MsgPriceLevelUpdate,
	} {
		assert.LessOrEqual(t, PayloadSize(mt), MaxPayloadSizeBuffer, "type %v", mt)
	}
	assert.Greater(t, PayloadSize(MsgOrderBookSnapshot), MaxPayloadSizeBuffer)
}
