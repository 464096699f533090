package inbox

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shafin-ahmed/bookrider/libs/db"
)

// Repository deduplicates consumed payment events by event id. Kafka delivers
// at-least-once, and applying the same payment update twice could overwrite a
// newer status with a stale one.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// FirstSeen inserts the event id and reports whether this is the first
// delivery. A unique-violation means a replay, which callers drop.
func (r *Repository) FirstSeen(ctx context.Context, eventID, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return false, nil
	}

	return false, err
}
