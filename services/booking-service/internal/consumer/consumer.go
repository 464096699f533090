// Package consumer reads payment status events and mirrors them onto
// appointments. Settlement happens in the payments service; this side only
// records the outcome for display.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/inbox"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Handler applies one payment status update. Returning an error logs it; the
// event stays recorded in the inbox, so a redelivery is dropped rather than
// reapplied.
type Handler func(ctx context.Context, appointmentID, status string) error

type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	inbox   *inbox.Repository
	handler Handler
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

func New(logger *slog.Logger, inboxRepo *inbox.Repository, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  splitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:  reader,
		logger:  logger,
		inbox:   inboxRepo,
		handler: handler,
	}
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
	eventID, eventType := eventMeta(msg)
	ctx = extractTraceContext(ctx, msg)
	ctx, span := otel.Tracer("booking.consumer").Start(ctx, "payment.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	fresh, err := c.inbox.FirstSeen(ctx, eventID, eventType)
	if err != nil {
		c.logger.Error("inbox insert failed", "err", err, "event_id", eventID)
		span.RecordError(err)
		return
	}
	if !fresh {
		c.logger.Info("duplicate event ignored", "event_id", eventID, "event_type", eventType)
		return
	}

	var payload struct {
		AppointmentID string `json:"appointment_id"`
		Status        string `json:"status"`
	}
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		c.logger.Error("invalid payment event payload", "err", err, "event_id", eventID)
		span.RecordError(err)
		return
	}
	if payload.AppointmentID == "" || payload.Status == "" {
		c.logger.Error("payment event missing appointment_id or status", "event_id", eventID)
		return
	}

	if err := c.handler(ctx, payload.AppointmentID, payload.Status); err != nil {
		c.logger.Error("payment status apply failed", "err", err, "appointment_id", payload.AppointmentID)
		span.RecordError(err)
	}
}

// eventMeta prefers the producer-set event_id/event_type headers; without
// them the partition coordinates stand in so dedup still works per delivery.
func eventMeta(msg kafka.Message) (eventID, eventType string) {
	for _, h := range msg.Headers {
		switch h.Key {
		case "event_id":
			eventID = string(h.Value)
		case "event_type":
			eventType = string(h.Value)
		}
	}
	if eventID == "" {
		eventID = fmt.Sprintf("%s:%d:%d", msg.Topic, msg.Partition, msg.Offset)
	}
	if eventType == "" {
		eventType = msg.Topic
	}
	return eventID, eventType
}

// ReadyCheck dials the first broker for the readiness endpoint.
func ReadyCheck(brokers string) func(ctx context.Context) error {
	list := splitBrokers(brokers)
	return func(ctx context.Context) error {
		if len(list) == 0 {
			return fmt.Errorf("no kafka brokers configured")
		}
		conn, err := kafka.DialContext(ctx, "tcp", list[0])
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

func splitBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
