package feed

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"commodity-price-alerts/internal/alerts"
	"commodity-price-alerts/internal/metrics"
)

// KafkaOptions parameterise the streamed snapshot source.
type KafkaOptions struct {
	Brokers []string
	Topic   string
	GroupID string
}

const (
	kafkaMinBackoff = 500 * time.Millisecond
	kafkaMaxBackoff = 30 * time.Second
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Kafka consumes one snapshot document per message.
type Kafka struct {
	reader     messageReader
	logger     zerolog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewKafka creates a consumer-group reader for the snapshot topic.
func NewKafka(opts KafkaOptions, logger zerolog.Logger) (*Kafka, error) {
	if len(opts.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if opts.Topic == "" {
		return nil, errors.New("topic is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  opts.Brokers,
		Topic:    opts.Topic,
		GroupID:  opts.GroupID,
		MinBytes: 1,
		MaxBytes: maxSnapshotBytes,
	})

	return newKafka(reader, logger.With().Str("component", "kafka_feed").Str("topic", opts.Topic).Logger()), nil
}

func newKafka(reader messageReader, logger zerolog.Logger) *Kafka {
	return &Kafka{
		reader:     reader,
		logger:     logger,
		minBackoff: kafkaMinBackoff,
		maxBackoff: kafkaMaxBackoff,
	}
}

// Stream hands every decodable message to handle, in order. Undecodable
// messages are logged and skipped. Broker errors are retried with a capped
// exponential backoff until ctx ends or the reader is closed.
func (k *Kafka) Stream(ctx context.Context, handle func(context.Context, alerts.Snapshot)) error {
	backoff := k.minBackoff
	for {
		msg, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			metrics.FeedErrors.WithLabelValues("kafka").Inc()
			k.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("read snapshot message failed")
			if err := sleep(ctx, backoff); err != nil {
				return err
			}
			backoff = min(backoff*2, k.maxBackoff)
			continue
		}
		backoff = k.minBackoff

		snap, err := Decode(msg.Value)
		if err != nil {
			metrics.FeedErrors.WithLabelValues("kafka").Inc()
			k.logger.Warn().Err(err).Int64("offset", msg.Offset).Int("partition", msg.Partition).Msg("skipping undecodable snapshot")
			continue
		}
		handle(ctx, snap)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Close releases the reader.
func (k *Kafka) Close() error {
	return k.reader.Close()
}

var _ Streamer = (*Kafka)(nil)
