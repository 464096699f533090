package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/availability"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/metrics"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/model"
)

const (
	EventCreated     = "booking.appointment.created.v1"
	EventConfirmed   = "booking.appointment.confirmed.v1"
	EventClaimed     = "booking.appointment.claimed.v1"
	EventStarted     = "booking.appointment.started.v1"
	EventCompleted   = "booking.appointment.completed.v1"
	EventCancelled   = "booking.appointment.cancelled.v1"
	EventNoShow      = "booking.appointment.no_show.v1"
	EventRescheduled = "booking.appointment.rescheduled.v1"
)

// Config carries booking policy. Zero values fall back to defaults.
type Config struct {
	Catalog []string      // daily time-of-day offerings, "HH:MM"
	Lead    time.Duration // minimum lead time before a bookable slot
	Now     func() time.Time
}

// Engine owns the appointment lifecycle. All status, rider and timestamp
// writes go through it; everything else reads.
type Engine struct {
	store   Store
	logger  *slog.Logger
	catalog []string
	lead    time.Duration
	now     func() time.Time
}

var defaultCatalog = []string{
	"09:00", "10:00", "11:00", "12:00", "13:00",
	"14:00", "15:00", "16:00", "17:00", "18:00",
}

func New(store Store, logger *slog.Logger, cfg Config) *Engine {
	if len(cfg.Catalog) == 0 {
		cfg.Catalog = defaultCatalog
	}
	if cfg.Lead <= 0 {
		cfg.Lead = availability.MinLeadTime
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		store:   store,
		logger:  logger,
		catalog: cfg.Catalog,
		lead:    cfg.Lead,
		now:     cfg.Now,
	}
}

// Slots returns the catalog for date with each entry's bookable flag.
// Read-side: never touches appointment state.
func (e *Engine) Slots(date time.Time) []availability.Slot {
	return availability.ComputeSlots(date, e.catalog, e.now(), e.lead)
}

// Booking is the create request: parties, schedule and price as submitted by
// the customer.
type Booking struct {
	StoreID   string
	ServiceID string
	Customer  model.Customer

	Date            time.Time
	Time            string // "HH:MM"
	DurationMinutes int

	ServicePrice float64
	TotalAmount  float64
	Currency     string

	PaymentRef string // optional external payment-intent reference
}

// Create books a pending appointment after validating the slot against the
// lead-time policy and the daily catalog.
func (e *Engine) Create(ctx context.Context, b Booking) (model.Appointment, error) {
	now := e.now()
	if !e.inCatalog(b.Time) || !availability.Bookable(b.Date, b.Time, now, e.lead) {
		metrics.TransitionsTotal.WithLabelValues(string(model.StatusPending), "rejected").Inc()
		return model.Appointment{}, ErrSlotNotBookable
	}

	appt := &model.Appointment{
		ID:                uuid.NewString(),
		AppointmentNumber: newAppointmentNumber(b.Date),
		StoreID:           b.StoreID,
		ServiceID:         b.ServiceID,
		Customer:          b.Customer,
		AppointmentDate:   model.LocalDate(b.Date, now.Location()),
		AppointmentTime:   b.Time,
		DurationMinutes:   b.DurationMinutes,
		ServicePrice:      b.ServicePrice,
		TotalAmount:       b.TotalAmount,
		Currency:          b.Currency,
		Status:            model.StatusPending,
		PaymentRef:        b.PaymentRef,
		CreatedAt:         now,
	}

	evt := e.event(EventCreated, *appt)
	if err := e.store.CreateAppointment(ctx, appt, evt); err != nil {
		return model.Appointment{}, err
	}
	metrics.TransitionsTotal.WithLabelValues(string(model.StatusPending), "ok").Inc()
	e.logger.Info("appointment created",
		"appointment_id", appt.ID,
		"appointment_number", appt.AppointmentNumber,
		"store_id", appt.StoreID,
	)
	return *appt, nil
}

func (e *Engine) Get(ctx context.Context, id string) (model.Appointment, error) {
	return e.store.GetAppointment(ctx, id)
}

func (e *Engine) List(ctx context.Context, q ListQuery) ([]model.Appointment, error) {
	return e.store.ListAppointments(ctx, q)
}

// Confirm moves pending to confirmed. A second confirm fails with
// InvalidTransition instead of re-applying the timestamp.
func (e *Engine) Confirm(ctx context.Context, id string) (model.Appointment, error) {
	return e.transition(ctx, id, model.StatusConfirmed, EventConfirmed, func(a *model.Appointment, now time.Time) error {
		return confirm(a, now)
	})
}

// ClaimRequest is a rider's attempt to take a confirmed, unassigned job.
type ClaimRequest struct {
	AppointmentID string
	RiderID       string
	Note          string
	ETANote       string
	AcceptedTerms bool
}

// Claim binds at most one rider to the appointment. Losing claimants get
// ErrJobNotClaimable whether the job was taken, not yet confirmed, already
// closed, or momentarily locked; the error kind never reveals which. There
// are no automatic retries.
func (e *Engine) Claim(ctx context.Context, req ClaimRequest) (model.Appointment, error) {
	if !req.AcceptedTerms {
		metrics.ClaimsTotal.WithLabelValues("terms_rejected").Inc()
		return model.Appointment{}, ErrTermsNotAccepted
	}

	appt, err := e.store.ClaimAppointment(ctx, req.AppointmentID, func(a *model.Appointment) (*Event, error) {
		if err := bindRider(a, req.RiderID, req.Note, req.ETANote); err != nil {
			return nil, err
		}
		return e.event(EventClaimed, *a), nil
	})
	if err != nil {
		if errors.Is(err, ErrJobNotClaimable) {
			metrics.ClaimsTotal.WithLabelValues("lost").Inc()
		}
		return model.Appointment{}, err
	}
	metrics.ClaimsTotal.WithLabelValues("won").Inc()
	e.logger.Info("appointment claimed",
		"appointment_id", appt.ID,
		"rider_id", req.RiderID,
	)
	return appt, nil
}

// Start moves a claimed appointment to in_progress.
func (e *Engine) Start(ctx context.Context, id string) (model.Appointment, error) {
	return e.transition(ctx, id, model.StatusInProgress, EventStarted, start)
}

func (e *Engine) Complete(ctx context.Context, id string) (model.Appointment, error) {
	return e.transition(ctx, id, model.StatusCompleted, EventCompleted, complete)
}

func (e *Engine) Cancel(ctx context.Context, id, reason string) (model.Appointment, error) {
	return e.transition(ctx, id, model.StatusCancelled, EventCancelled, func(a *model.Appointment, now time.Time) error {
		return cancel(a, reason, now)
	})
}

func (e *Engine) MarkNoShow(ctx context.Context, id string) (model.Appointment, error) {
	return e.transition(ctx, id, model.StatusNoShow, EventNoShow, markNoShow)
}

// Reschedule closes the confirmed appointment and books a replacement pending
// one at (newDate, newTime), which must pass the slot policy. The rider, if
// any, is released; the original date and time are never edited in place.
func (e *Engine) Reschedule(ctx context.Context, id string, newDate time.Time, newTime string) (closed, replacement model.Appointment, err error) {
	now := e.now()
	if !e.inCatalog(newTime) || !availability.Bookable(newDate, newTime, now, e.lead) {
		return model.Appointment{}, model.Appointment{}, ErrSlotNotBookable
	}

	prev, err := e.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, model.Appointment{}, err
	}

	next := &model.Appointment{
		ID:                uuid.NewString(),
		AppointmentNumber: newAppointmentNumber(newDate),
		StoreID:           prev.StoreID,
		ServiceID:         prev.ServiceID,
		Customer:          prev.Customer,
		AppointmentDate:   model.LocalDate(newDate, now.Location()),
		AppointmentTime:   newTime,
		DurationMinutes:   prev.DurationMinutes,
		ServicePrice:      prev.ServicePrice,
		TotalAmount:       prev.TotalAmount,
		Currency:          prev.Currency,
		Status:            model.StatusPending,
		PaymentRef:        prev.PaymentRef,
		CreatedAt:         now,
	}

	closed, err = e.store.RescheduleAppointment(ctx, id, func(a *model.Appointment) (*Event, error) {
		if err := markRescheduled(a, now); err != nil {
			return nil, err
		}
		return e.event(EventRescheduled, *a), nil
	}, next, e.event(EventCreated, *next))
	if err != nil {
		metrics.TransitionsTotal.WithLabelValues(string(model.StatusRescheduled), "rejected").Inc()
		return model.Appointment{}, model.Appointment{}, err
	}
	metrics.TransitionsTotal.WithLabelValues(string(model.StatusRescheduled), "ok").Inc()
	e.logger.Info("appointment rescheduled",
		"appointment_id", closed.ID,
		"replacement_id", next.ID,
	)
	return closed, *next, nil
}

// Rate records the customer's rating and feedback on a completed appointment.
func (e *Engine) Rate(ctx context.Context, id string, rating int, feedback string) (model.Appointment, error) {
	if rating < 1 || rating > 5 {
		return model.Appointment{}, ErrRatingOutOfRange
	}
	return e.store.UpdateAppointment(ctx, id, func(a *model.Appointment) (*Event, error) {
		if err := rate(a, rating, feedback); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

func (e *Engine) transition(ctx context.Context, id string, target model.Status, eventType string, fn func(*model.Appointment, time.Time) error) (model.Appointment, error) {
	now := e.now()
	appt, err := e.store.UpdateAppointment(ctx, id, func(a *model.Appointment) (*Event, error) {
		if err := fn(a, now); err != nil {
			return nil, err
		}
		return e.event(eventType, *a), nil
	})
	if err != nil {
		metrics.TransitionsTotal.WithLabelValues(string(target), "rejected").Inc()
		return model.Appointment{}, err
	}
	metrics.TransitionsTotal.WithLabelValues(string(target), "ok").Inc()
	e.logger.Info("appointment transitioned",
		"appointment_id", appt.ID,
		"status", string(appt.Status),
	)
	return appt, nil
}

type eventPayload struct {
	AppointmentID     string `json:"appointment_id"`
	AppointmentNumber string `json:"appointment_number"`
	StoreID           string `json:"store_id"`
	ServiceID         string `json:"service_id"`
	RiderID           string `json:"rider_id,omitempty"`
	Status            string `json:"status"`
	AppointmentDate   string `json:"appointment_date"`
	AppointmentTime   string `json:"appointment_time"`
	CustomerName      string `json:"customer_name"`
	CustomerEmail     string `json:"customer_email"`
	Reason            string `json:"reason,omitempty"`
}

func (e *Engine) event(eventType string, a model.Appointment) *Event {
	payload, err := json.Marshal(eventPayload{
		AppointmentID:     a.ID,
		AppointmentNumber: a.AppointmentNumber,
		StoreID:           a.StoreID,
		ServiceID:         a.ServiceID,
		RiderID:           a.RiderID,
		Status:            string(a.Status),
		AppointmentDate:   a.AppointmentDate.Format("2006-01-02"),
		AppointmentTime:   a.AppointmentTime,
		CustomerName:      a.Customer.Name,
		CustomerEmail:     a.Customer.Email,
		Reason:            a.CancellationReason,
	})
	if err != nil {
		e.logger.Error("event payload marshal failed", "err", err, "event_type", eventType)
		return nil
	}
	return &Event{Type: eventType, Payload: payload}
}

func (e *Engine) inCatalog(timeOfDay string) bool {
	for _, t := range e.catalog {
		if t == timeOfDay {
			return true
		}
	}
	return false
}

// newAppointmentNumber builds the human-facing booking reference. Uniqueness
// comes from the uuid fragment; the date prefix is for support staff reading
// logs, not for parsing.
func newAppointmentNumber(date time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("APT-%s-%s", date.Format("20060102"), suffix)
}
