package engine

import (
	"context"
	"time"

	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/model"
)

// Event is a domain event recorded atomically with the state change that
// produced it. The postgres store writes it to the outbox table in the same
// transaction; downstream delivery is fire-and-forget.
type Event struct {
	Type    string
	Payload []byte
}

// UpdateFunc mutates an appointment under its exclusion and returns the event
// to record. Returning an error aborts the update with nothing applied.
type UpdateFunc func(a *model.Appointment) (*Event, error)

// ListQuery filters ListAppointments. Zero fields are ignored.
type ListQuery struct {
	StoreID string
	RiderID string
	Status  model.Status
	From    time.Time // inclusive, on appointment date
	To      time.Time // exclusive, on appointment date
	Limit   int
}

// Store is the persistence port of the engine. Implementations must serialize
// mutating operations per appointment id while letting different appointments
// proceed in parallel, and must keep reads free of mutation locks.
type Store interface {
	CreateAppointment(ctx context.Context, a *model.Appointment, evt *Event) error
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)

	// UpdateAppointment runs fn on the current record under the appointment's
	// exclusion and persists the result with its event. Unknown ids return
	// ErrNotFound; errors returned by fn pass through unchanged.
	UpdateAppointment(ctx context.Context, id string, fn UpdateFunc) (model.Appointment, error)

	// ClaimAppointment is UpdateAppointment with claim semantics: it must be a
	// single atomic compare-and-set against (status, rider) and must fail fast
	// with ErrJobNotClaimable when the exclusion cannot be acquired promptly,
	// rather than queueing behind another writer.
	ClaimAppointment(ctx context.Context, id string, fn UpdateFunc) (model.Appointment, error)

	// RescheduleAppointment closes the record via fn and creates replacement
	// as a new pending appointment, atomically where the backend allows.
	RescheduleAppointment(ctx context.Context, id string, fn UpdateFunc, replacement *model.Appointment, replacementEvt *Event) (model.Appointment, error)

	ListAppointments(ctx context.Context, q ListQuery) ([]model.Appointment, error)
	SetPaymentStatus(ctx context.Context, id, paymentStatus string) error
}
