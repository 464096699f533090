package outbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shafin-ahmed/bookrider/libs/db"
	otelx "github.com/shafin-ahmed/bookrider/libs/otel"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append writes evt inside the caller's transaction, so the event commits
// with the appointment write or not at all. The current trace context is
// stored alongside; the publisher restores it when the row is drained.
func (r *Repository) Append(ctx context.Context, tx pgx.Tx, evt Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}

// PendingEvent is an undelivered outbox row. Only the columns the publisher
// needs are selected.
type PendingEvent struct {
	ID          int64
	EventID     string
	AggregateID string
	EventType   string
	Payload     []byte
	Traceparent string
	Tracestate  string
}

// Pending locks up to limit undelivered rows for this transaction. SKIP
// LOCKED lets concurrent publisher instances drain disjoint batches.
func (r *Repository) Pending(ctx context.Context, tx pgx.Tx, limit int) ([]PendingEvent, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id, aggregate_id, event_type, payload, traceparent, tracestate
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (PendingEvent, error) {
		var p PendingEvent
		err := row.Scan(&p.ID, &p.EventID, &p.AggregateID, &p.EventType, &p.Payload, &p.Traceparent, &p.Tracestate)
		return p, err
	})
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}
