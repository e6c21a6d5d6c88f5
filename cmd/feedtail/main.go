package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"helix/config"
	"helix/infra/logging"
	"helix/wire"
)

// feedtail consumes the Kafka market-data topic and prints decoded
// events. Operational tool; no effect on the exchange.
func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("config error: %v", err)
	}

	log := logging.New(cfg.Logging.Level)
	defer func() { _ = log.Sync() }()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.Topic,
		GroupID:  "helix-feedtail",
		MinBytes: 1,
		MaxBytes: 10 * 1024 * 1024,
	})
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	log.Info("tailing market data", zap.String("topic", cfg.Kafka.Topic))
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("read failed", zap.Error(err))
			return
		}
		printFrame(log, msg.Value)
	}
}

func printFrame(log *zap.Logger, frame []byte) {
	if len(frame) < wire.HeaderSize {
		log.Warn("short frame", zap.Int("len", len(frame)))
		return
	}
	t := wire.MessageType(frame[0])
	payload := frame[wire.HeaderSize:]
	if wire.PayloadSize(t) != len(payload) {
		log.Warn("size mismatch", zap.String("type", t.String()), zap.Int("len", len(payload)))
		return
	}

	switch t {
	case wire.MsgTradeEvent:
		p := wire.DecodeTradeEvent(payload)
		log.Info("trade",
			zap.Uint32("seq", p.SequenceNumber),
			zap.Uint32("trade_id", p.TradeID),
			zap.Int64("price", p.Price),
			zap.Uint32("qty", p.Quantity),
			zap.String("taker", p.TakerSide.String()))
	case wire.MsgPriceLevelUpdate:
		p := wire.DecodePriceLevelUpdate(payload)
		log.Info("level",
			zap.Uint32("seq", p.SequenceNumber),
			zap.String("side", p.Side.String()),
			zap.Int64("price", p.Price),
			zap.Uint32("volume", p.TotalVolume))
	case wire.MsgOrderInsertedEvent:
		p := wire.DecodeOrderInsertedEvent(payload)
		log.Info("inserted",
			zap.Uint32("seq", p.SequenceNumber),
			zap.Uint32("order_id", p.OrderID),
			zap.String("side", p.Side.String()),
			zap.Int64("price", p.Price),
			zap.Uint32("qty", p.Quantity))
	case wire.MsgOrderCancelledEvent:
		p := wire.DecodeOrderCancelledEvent(payload)
		log.Info("cancelled",
			zap.Uint32("seq", p.SequenceNumber),
			zap.Uint32("order_id", p.OrderID))
	case wire.MsgOrderAmendedEvent:
		p := wire.DecodeOrderAmendedEvent(payload)
		log.Info("amended",
			zap.Uint32("seq", p.SequenceNumber),
			zap.Uint32("order_id", p.OrderID),
			zap.Uint32("qty_new", p.QuantityNew),
			zap.Uint32("qty_old", p.QuantityOld))
	default:
		log.Info("event", zap.String("type", t.String()))
	}
}
