package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shafin-ahmed/bookrider/libs/db"
	otelx "github.com/shafin-ahmed/bookrider/libs/otel"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/metrics"
)

// Publisher drains the outbox to kafka on a fixed cadence. Notification
// delivery is downstream of these topics; the engine itself never waits on a
// send. Each event goes to the topic named by its event type, keyed by the
// appointment id so one appointment's events stay ordered.
type Publisher struct {
	pool     *db.Pool
	repo     *Repository
	logger   *slog.Logger
	brokers  []string
	interval time.Duration
	batch    int
}

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
}

const (
	defaultPollEvery = 2 * time.Second
	defaultBatchSize = 50
)

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	p := &Publisher{
		pool:     pool,
		repo:     repo,
		logger:   logger,
		brokers:  splitBrokers(cfg.Brokers),
		interval: cfg.PollEvery,
		batch:    cfg.BatchSize,
	}
	if p.interval <= 0 {
		p.interval = defaultPollEvery
	}
	if p.batch <= 0 {
		p.batch = defaultBatchSize
	}
	return p
}

func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.drain(ctx, writer); err != nil {
				p.logger.Error("outbox drain failed", "err", err)
			}
		}
	}
}

// drain publishes one locked batch and marks it delivered in the same
// transaction. A send failure rolls the whole batch back, so rows are
// retried on the next tick; consumers dedupe by event id.
func (p *Publisher) drain(ctx context.Context, writer *kafka.Writer) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	pending, err := p.repo.Pending(ctx, tx, p.batch)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(pending))
	for _, evt := range pending {
		if err := writer.WriteMessages(ctx, p.message(ctx, evt)); err != nil {
			return err
		}
		metrics.OutboxPublishedTotal.Inc()
		ids = append(ids, evt.ID)
	}

	if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Publisher) message(ctx context.Context, evt PendingEvent) kafka.Message {
	msg := kafka.Message{
		Topic: evt.EventType,
		Key:   []byte(evt.AggregateID),
		Value: evt.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(evt.EventID)},
			{Key: "event_type", Value: []byte(evt.EventType)},
		},
	}
	msgCtx := otelx.ContextWithTraceContext(ctx, evt.Traceparent, evt.Tracestate)
	msg.Headers = injectTraceHeaders(msgCtx, msg.Headers)
	return msg
}
