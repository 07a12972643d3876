package kafkax

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/codes"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Deduper remembers processed event ids. Record returns false for repeats.
type Deduper interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type ConsumerConfig struct {
	Brokers string
	GroupID string
	Topics  []string
}

// Consumer reads one consumer group across topics and hands each message to
// a handler once. A handler error un-records the event so it is retried on
// the next delivery of the same event id.
type Consumer struct {
	reader  *kafka.Reader
	group   string
	logger  *slog.Logger
	dedup   Deduper
	handler Handler
}

func NewConsumer(logger *slog.Logger, dedup Deduper, cfg ConsumerConfig, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Consumer{reader: reader, group: cfg.GroupID, logger: logger, dedup: dedup, handler: handler}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	ctxSpan, span := StartConsumeSpan(ctx, c.group, msg)
	defer span.End()

	meta := ExtractEventMeta(msg)
	if c.dedup != nil {
		ok, err := c.dedup.Record(ctxSpan, meta.EventID, meta.EventType)
		if err != nil {
			c.logger.Error("inbox record failed", "err", err)
			span.RecordError(err)
			return
		}
		if !ok {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			return
		}
	}

	if err := c.handler(ctxSpan, msg); err != nil {
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if c.dedup != nil {
			if ferr := c.dedup.Forget(ctxSpan, meta.EventID); ferr != nil {
				c.logger.Error("inbox forget failed", "err", ferr)
			}
		}
	}
}
