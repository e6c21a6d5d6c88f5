package eventlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"helix/wire"
)

func findLogFile(t *testing.T, dir, suffix string) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), suffix) {
			return filepath.Join(dir, e.Name())
		}
	}
	t.Fatalf("no log file with suffix %s in %s", suffix, dir)
	return ""
}

func TestEventLogWritesPayloadBytesOnly(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, zap.NewNop())
	require.NoError(t, err)

	trade := wire.TradeEvent{
		SequenceNumber: 1,
		TradeID:        2,
		Price:          1000,
		Quantity:       7,
		TakerSide:      wire.Buy,
		Timestamp:      42,
	}
	var buf [wire.SizeTradeEvent]byte
	for i := 0; i < 3; i++ {
		trade.SequenceNumber = uint32(i)
		trade.Encode(buf[:])
		l.Log(wire.MsgTradeEvent, buf[:])
	}
	l.Close()

	path := findLogFile(t, dir, "_trade.bin")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, 3*wire.SizeTradeEvent, "payload-only records, no headers")

	first := wire.DecodeTradeEvent(data[:wire.SizeTradeEvent])
	assert.Equal(t, uint32(0), first.SequenceNumber)
	assert.Equal(t, int64(1000), first.Price)
	last := wire.DecodeTradeEvent(data[2*wire.SizeTradeEvent:])
	assert.Equal(t, uint32(2), last.SequenceNumber)
}

func TestEventLogOneFilePerType(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, zap.NewNop())
	require.NoError(t, err)

	var plu [wire.SizePriceLevelUpdate]byte
	(&wire.PriceLevelUpdate{Price: 99, TotalVolume: 5}).Encode(plu[:])
	l.Log(wire.MsgPriceLevelUpdate, plu[:])

	var ins [wire.SizeOrderInsertedEvent]byte
	(&wire.OrderInsertedEvent{OrderID: 9}).Encode(ins[:])
	l.Log(wire.MsgOrderInsertedEvent, ins[:])

	// Unlogged type is ignored.
	l.Log(wire.MsgErrorMsg, make([]byte, wire.SizeError))

	l.Close()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 5, "one file per logged type")

	pluData, err := os.ReadFile(findLogFile(t, dir, "_price_level_update.bin"))
	require.NoError(t, err)
	assert.Len(t, pluData, wire.SizePriceLevelUpdate)

	insData, err := os.ReadFile(findLogFile(t, dir, "_insert_order.bin"))
	require.NoError(t, err)
	assert.Len(t, insData, wire.SizeOrderInsertedEvent)
}

func TestClockMonotoneEnough(t *testing.T) {
	a := Now()
	b := Now()
	assert.GreaterOrEqual(t, b, a)
	assert.Greater(t, a, uint64(1_500_000_000_000_000_000), "epoch nanoseconds")
}
