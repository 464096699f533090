package storage

import (
	"context"
	"sync"

	"github.com/shafin-ahmed/bookrider/libs/db"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/engine"
)

// IdempotencyRecord is the stored outcome of a booking create keyed by the
// client's Idempotency-Key header, scoped per vendor store.
type IdempotencyRecord struct {
	StoreID         string
	IdempotencyKey  string
	AppointmentID   string
	StatusCode      int
	ResponsePayload []byte
}

// Finalized reports whether a response was recorded for the key, i.e. the
// original request ran to completion and can be replayed.
func (r IdempotencyRecord) Finalized() bool {
	return r.StatusCode > 0
}

type IdempotencyStore struct {
	pool *db.Pool
}

func NewIdempotencyStore(pool *db.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// Reserve takes the key for this request. existing=true means another request
// already holds it; check Finalized to decide between replaying the stored
// response and rejecting a still-in-flight duplicate.
func (s *IdempotencyStore) Reserve(ctx context.Context, storeID, key string) (IdempotencyRecord, bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (store_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (store_id, idempotency_key) DO NOTHING
	`, storeID, key)
	if err != nil {
		return IdempotencyRecord{}, false, engine.Unavailable(err)
	}
	if tag.RowsAffected() == 1 {
		return IdempotencyRecord{StoreID: storeID, IdempotencyKey: key}, false, nil
	}

	var rec IdempotencyRecord
	err = s.pool.QueryRow(ctx, `
		SELECT store_id, idempotency_key,
			COALESCE(appointment_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload, ''::bytea)
		FROM booking_idempotency_keys
		WHERE store_id = $1 AND idempotency_key = $2
	`, storeID, key).Scan(
		&rec.StoreID, &rec.IdempotencyKey, &rec.AppointmentID, &rec.StatusCode, &rec.ResponsePayload,
	)
	if err != nil {
		return IdempotencyRecord{}, false, engine.Unavailable(err)
	}
	return rec, true, nil
}

func (s *IdempotencyStore) Finalize(ctx context.Context, storeID, key, appointmentID string, statusCode int, response []byte) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = NULLIF($3, '')::uuid,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE store_id = $1 AND idempotency_key = $2
	`, storeID, key, appointmentID, statusCode, response)
	if err != nil {
		return engine.Unavailable(err)
	}
	return nil
}

// MemoryIdempotency mirrors IdempotencyStore for the in-memory deployment.
type MemoryIdempotency struct {
	mu   sync.Mutex
	recs map[string]*IdempotencyRecord
}

func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{recs: map[string]*IdempotencyRecord{}}
}

func (s *MemoryIdempotency) Reserve(_ context.Context, storeID, key string) (IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := storeID + "\x00" + key
	if rec, ok := s.recs[k]; ok {
		return *rec, true, nil
	}
	rec := &IdempotencyRecord{StoreID: storeID, IdempotencyKey: key}
	s.recs[k] = rec
	return *rec, false, nil
}

func (s *MemoryIdempotency) Finalize(_ context.Context, storeID, key, appointmentID string, statusCode int, response []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := storeID + "\x00" + key
	rec, ok := s.recs[k]
	if !ok {
		rec = &IdempotencyRecord{StoreID: storeID, IdempotencyKey: key}
		s.recs[k] = rec
	}
	rec.AppointmentID = appointmentID
	rec.StatusCode = statusCode
	rec.ResponsePayload = response
	return nil
}
