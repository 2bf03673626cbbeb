package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/catalog-checkout/pkg/idempotency"
	"github.com/dmehra2102/catalog-checkout/pkg/tracing"
)

// Event is a relayed outbox record as seen by a consumer.
type Event struct {
	Type        string
	AggregateID string
	Payload     []byte
	Time        time.Time
	Partition   int
	Offset      int64
}

type HandlerFunc func(ctx context.Context, ev Event) error

// Reader is the part of *kafka.Reader the consumer drives.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer tails the outbox topic. Records are claimed in the idempotency
// store before handling so a redelivered offset is handled once.
type Consumer struct {
	log    *slog.Logger
	reader Reader
	idem   idempotency.Store
	tracer trace.Tracer
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, idem idempotency.Store) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return NewConsumerWithReader(log, r, idem)
}

func NewConsumerWithReader(log *slog.Logger, r Reader, idem idempotency.Store) *Consumer {
	return &Consumer{
		log:    log,
		reader: r,
		idem:   idem,
		tracer: otel.Tracer("catalog-checkout-consumer"),
	}
}

// Run handles records until ctx is cancelled. A record is committed only
// after it was handled or recognised as a duplicate. A failed claim or a
// failed handler stops Run without committing, so the group redelivers the
// record from the last committed offset.
func (c *Consumer) Run(ctx context.Context, handle HandlerFunc) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}

		key := idempotency.MessageKey(msg.Topic, msg.Partition, msg.Offset)
		if c.idem != nil {
			claimed, err := c.idem.Claim(ctx, key)
			if err != nil {
				return fmt.Errorf("claim offset %d: %w", msg.Offset, err)
			}
			if !claimed {
				c.log.Info("duplicate message skipped", "partition", msg.Partition, "offset", msg.Offset)
				if err := c.reader.CommitMessages(ctx, msg); err != nil {
					return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
				}
				continue
			}
		}

		if err := c.handle(ctx, msg, handle); err != nil {
			c.log.Error("event handling failed", "partition", msg.Partition, "offset", msg.Offset, "err", err)
			if c.idem != nil {
				if rerr := c.idem.Release(context.WithoutCancel(ctx), key); rerr != nil {
					c.log.Warn("idempotency release failed", "key", key, "err", rerr)
				}
			}
			return fmt.Errorf("handle offset %d: %w", msg.Offset, err)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handle HandlerFunc) error {
	ev := Event{
		Type:        headerValue(msg.Headers, "event_type"),
		AggregateID: string(msg.Key),
		Payload:     msg.Value,
		Time:        msg.Time,
		Partition:   msg.Partition,
		Offset:      msg.Offset,
	}
	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "Consume "+ev.Type)
	defer span.End()

	err := handle(msgCtx, ev)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func headerValue(h []kafka.Header, key string) string {
	for _, hh := range h {
		if hh.Key == key {
			return string(hh.Value)
		}
	}
	return ""
}
