package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shafin-ahmed/bookrider/libs/db"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/engine"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/model"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/outbox"
)

const appointmentColumns = `
	id, appointment_number, store_id, service_id, COALESCE(rider_id, ''),
	customer_name, customer_email, customer_phone, customer_address, customer_city,
	appointment_date, appointment_time, duration_minutes,
	service_price, total_amount, currency, status,
	COALESCE(rider_note, ''), COALESCE(rider_eta_note, ''),
	COALESCE(cancellation_reason, ''), COALESCE(customer_rating, 0), COALESCE(customer_feedback, ''),
	COALESCE(payment_ref, ''), COALESCE(payment_status, ''),
	created_at, confirmed_at, started_at, completed_at, cancelled_at`

// PostgresStore is the production engine.Store. Each mutating call runs in a
// transaction: the row lock is the per-appointment exclusion, the status/rider
// guard in the write is the compare-and-set, and the outbox row rides in the
// same transaction so an event exists iff its transition committed.
type PostgresStore struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewPostgresStore(pool *db.Pool, outboxRepo *outbox.Repository) *PostgresStore {
	return &PostgresStore{pool: pool, outbox: outboxRepo}
}

func (s *PostgresStore) CreateAppointment(ctx context.Context, a *model.Appointment, evt *engine.Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return engine.Unavailable(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.insertAppointment(ctx, tx, a); err != nil {
		return err
	}
	if err := s.insertEvent(ctx, tx, a.ID, evt); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return engine.Unavailable(err)
	}
	return nil
}

func (s *PostgresStore) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, engine.ErrNotFound
		}
		return model.Appointment{}, engine.Unavailable(err)
	}
	return appt, nil
}

func (s *PostgresStore) UpdateAppointment(ctx context.Context, id string, fn engine.UpdateFunc) (model.Appointment, error) {
	return s.update(ctx, id, fn, false)
}

// ClaimAppointment locks the row with NOWAIT so a contended claim fails fast,
// then writes the rider binding with the unclaimed precondition repeated in
// the WHERE clause. Zero rows affected means the race was lost.
func (s *PostgresStore) ClaimAppointment(ctx context.Context, id string, fn engine.UpdateFunc) (model.Appointment, error) {
	return s.update(ctx, id, fn, true)
}

func (s *PostgresStore) update(ctx context.Context, id string, fn engine.UpdateFunc, claim bool) (model.Appointment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, engine.Unavailable(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := s.lockAppointment(ctx, tx, id, claim)
	if err != nil {
		return model.Appointment{}, err
	}

	prev := appt
	evt, err := fn(&appt)
	if err != nil {
		return model.Appointment{}, err
	}

	if claim {
		tag, err := tx.Exec(ctx, `
			UPDATE appointments
			SET rider_id = $2, rider_note = $3, rider_eta_note = $4
			WHERE id = $1 AND status = 'confirmed' AND rider_id IS NULL
		`, id, appt.RiderID, appt.RiderNote, appt.RiderETANote)
		if err != nil {
			return model.Appointment{}, engine.Unavailable(err)
		}
		if tag.RowsAffected() == 0 {
			return model.Appointment{}, engine.ErrJobNotClaimable
		}
	} else {
		if err := s.writeAppointment(ctx, tx, prev, appt); err != nil {
			return model.Appointment{}, err
		}
	}

	if err := s.insertEvent(ctx, tx, appt.ID, evt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, engine.Unavailable(err)
	}
	return appt, nil
}

func (s *PostgresStore) RescheduleAppointment(ctx context.Context, id string, fn engine.UpdateFunc, replacement *model.Appointment, replacementEvt *engine.Event) (model.Appointment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, engine.Unavailable(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := s.lockAppointment(ctx, tx, id, false)
	if err != nil {
		return model.Appointment{}, err
	}

	prev := appt
	evt, err := fn(&appt)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.writeAppointment(ctx, tx, prev, appt); err != nil {
		return model.Appointment{}, err
	}
	if err := s.insertEvent(ctx, tx, appt.ID, evt); err != nil {
		return model.Appointment{}, err
	}

	if err := s.insertAppointment(ctx, tx, replacement); err != nil {
		return model.Appointment{}, err
	}
	if err := s.insertEvent(ctx, tx, replacement.ID, replacementEvt); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, engine.Unavailable(err)
	}
	return appt, nil
}

func (s *PostgresStore) ListAppointments(ctx context.Context, q engine.ListQuery) ([]model.Appointment, error) {
	where := []string{"1=1"}
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if q.StoreID != "" {
		add("store_id = $%d", q.StoreID)
	}
	if q.RiderID != "" {
		add("rider_id = $%d", q.RiderID)
	}
	if q.Status != "" {
		add("status = $%d", string(q.Status))
	}
	if !q.From.IsZero() {
		add("appointment_date >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("appointment_date < $%d", q.To)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY appointment_date ASC, appointment_time ASC
		LIMIT $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return nil, engine.Unavailable(err)
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, engine.Unavailable(err)
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, engine.Unavailable(rows.Err())
	}
	return appts, nil
}

func (s *PostgresStore) SetPaymentStatus(ctx context.Context, id, paymentStatus string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE appointments SET payment_status = $2 WHERE id = $1
	`, id, paymentStatus)
	if err != nil {
		return engine.Unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) lockAppointment(ctx context.Context, tx pgx.Tx, id string, nowait bool) (model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1 FOR UPDATE`
	if nowait {
		query += " NOWAIT"
	}
	appt, err := scanAppointment(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, engine.ErrNotFound
		}
		if isLockNotAvailable(err) {
			return model.Appointment{}, engine.ErrJobNotClaimable
		}
		return model.Appointment{}, engine.Unavailable(err)
	}
	return appt, nil
}

func (s *PostgresStore) insertAppointment(ctx context.Context, tx pgx.Tx, a *model.Appointment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointments
			(id, appointment_number, store_id, service_id,
			customer_name, customer_email, customer_phone, customer_address, customer_city,
			appointment_date, appointment_time, duration_minutes,
			service_price, total_amount, currency, status, payment_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NULLIF($17, ''), $18)
	`, a.ID, a.AppointmentNumber, a.StoreID, a.ServiceID,
		a.Customer.Name, a.Customer.Email, a.Customer.Phone, a.Customer.Address, a.Customer.City,
		a.AppointmentDate, a.AppointmentTime, a.DurationMinutes,
		a.ServicePrice, a.TotalAmount, a.Currency, string(a.Status), a.PaymentRef, a.CreatedAt)
	if err != nil {
		return engine.Unavailable(err)
	}
	return nil
}

// writeAppointment persists a transition. The previous status in the WHERE
// clause keeps the write conditional even though the row is already locked.
func (s *PostgresStore) writeAppointment(ctx context.Context, tx pgx.Tx, prev, a model.Appointment) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $3,
			rider_id = NULLIF($4, ''),
			rider_note = $5,
			rider_eta_note = $6,
			cancellation_reason = $7,
			customer_rating = $8,
			customer_feedback = $9,
			confirmed_at = $10,
			started_at = $11,
			completed_at = $12,
			cancelled_at = $13
		WHERE id = $1 AND status = $2
	`, a.ID, string(prev.Status), string(a.Status),
		a.RiderID, a.RiderNote, a.RiderETANote,
		a.CancellationReason, a.CustomerRating, a.CustomerFeedback,
		a.ConfirmedAt, a.StartedAt, a.CompletedAt, a.CancelledAt)
	if err != nil {
		return engine.Unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return &engine.InvalidTransitionError{Current: prev.Status, Requested: a.Status}
	}
	return nil
}

func (s *PostgresStore) insertEvent(ctx context.Context, tx pgx.Tx, appointmentID string, evt *engine.Event) error {
	if evt == nil {
		return nil
	}
	err := s.outbox.Append(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appointmentID,
		EventType:     evt.Type,
		Payload:       evt.Payload,
	})
	if err != nil {
		return engine.Unavailable(err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (model.Appointment, error) {
	var a model.Appointment
	var status string
	err := row.Scan(
		&a.ID, &a.AppointmentNumber, &a.StoreID, &a.ServiceID, &a.RiderID,
		&a.Customer.Name, &a.Customer.Email, &a.Customer.Phone, &a.Customer.Address, &a.Customer.City,
		&a.AppointmentDate, &a.AppointmentTime, &a.DurationMinutes,
		&a.ServicePrice, &a.TotalAmount, &a.Currency, &status,
		&a.RiderNote, &a.RiderETANote,
		&a.CancellationReason, &a.CustomerRating, &a.CustomerFeedback,
		&a.PaymentRef, &a.PaymentStatus,
		&a.CreatedAt, &a.ConfirmedAt, &a.StartedAt, &a.CompletedAt, &a.CancelledAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.Status(status)
	return a, nil
}

func isLockNotAvailable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "55P03"
}
