package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/tuncanbit/paylink/internal/domain"
	"github.com/tuncanbit/paylink/pkg/config"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource reads JSON payment events from the backend's topic. Offsets
// are committed after the event was handled.
type KafkaSource struct {
	reader messageReader
	logger zerolog.Logger
}

func NewKafkaSource(cfg config.KafkaConfig, logger zerolog.Logger) *KafkaSource {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return newKafkaSource(reader, logger.With().Str("source", "kafka").Str("topic", cfg.Topic).Logger())
}

func newKafkaSource(reader messageReader, logger zerolog.Logger) *KafkaSource {
	return &KafkaSource{reader: reader, logger: logger}
}

func (k *KafkaSource) Subscribe(ctx context.Context, handle func(context.Context, domain.PaymentEvent) error) error {
	k.logger.Info().Msg("Kafka payment event consumer started")

	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read payment event: %w", err)
		}

		var event domain.PaymentEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			k.logger.Warn().
				Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("Skipping malformed payment event")
		} else {
			dispatch(ctx, handle, event, k.logger)
		}

		if err := k.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			k.logger.Error().Err(err).Int64("offset", msg.Offset).Msg("Failed to commit payment event")
		}
	}
}

func (k *KafkaSource) Close() error {
	return k.reader.Close()
}
