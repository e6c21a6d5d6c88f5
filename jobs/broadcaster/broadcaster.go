// Package broadcaster republishes the exchange's public events to Kafka.
// It drains the durable outbox on a ticker: records are marked SENT before
// the publish attempt and ACKED after the broker confirms; a failed publish
// sets the record back to NEW for the next tick. Only NEW records are
// scanned, so a record left in SENT (for example by a crash between the
// two marks) is not published again.
package broadcaster

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"helix/infra/outbox"
	"helix/wire"
)

type Broadcaster struct {
	ob       *outbox.Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	log      *zap.Logger
}

func New(ob *outbox.Outbox, brokers []string, topic string, interval time.Duration, log *zap.Logger) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	return &Broadcaster{
		ob:       ob,
		producer: producer,
		topic:    topic,
		interval: interval,
		log:      log.Named("broadcaster"),
	}, nil
}

// Run drains pending records until the context is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Info("broadcaster started", zap.String("topic", b.topic))
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.replayOnce()
			if err := b.ob.PruneAcked(); err != nil {
				b.log.Warn("outbox prune failed", zap.Error(err))
			}
		}
	}
}

func (b *Broadcaster) replayOnce() {
	_ = b.ob.ScanPending(func(rec *outbox.Record) error {
		if err := b.ob.MarkSent(rec.Seq); err != nil {
			return nil
		}

		frame := wire.AppendFrame(nil, rec.Type, rec.Payload)
		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Key:   sarama.StringEncoder(rec.Type.String()),
			Value: sarama.ByteEncoder(frame),
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			b.log.Warn("publish failed, will retry", zap.Uint64("seq", rec.Seq), zap.Error(err))
			_ = b.ob.MarkNew(rec.Seq) // back to pending for the next tick
			return nil
		}

		_ = b.ob.MarkAcked(rec.Seq)
		return nil
	})
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
