package model

import "time"

// Status is the appointment lifecycle state.
type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusNoShow      Status = "no_show"
	StatusRescheduled Status = "rescheduled"
)

// Terminal reports whether no further lifecycle transition is permitted.
// Rescheduled records are closed too: the follow-up booking is a new record.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted,
		StatusCancelled, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

// Customer is the contact snapshot captured at booking time. It is immutable
// after creation; later profile edits do not rewrite history.
type Customer struct {
	Name    string
	Email   string
	Phone   string
	Address string
	City    string
}

type Appointment struct {
	ID                string
	AppointmentNumber string
	StoreID           string
	ServiceID         string
	RiderID           string // empty until a rider claims the job

	Customer Customer

	AppointmentDate time.Time // midnight, local calendar date
	AppointmentTime string    // "HH:MM"
	DurationMinutes int

	ServicePrice float64
	TotalAmount  float64
	Currency     string

	Status Status

	RiderNote    string
	RiderETANote string

	CancellationReason string
	CustomerRating     int
	CustomerFeedback   string

	PaymentRef    string // external payment-intent reference, set at booking when known
	PaymentStatus string // display-only, fed by the payments topic / Stripe lookup

	CreatedAt   time.Time
	ConfirmedAt *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

// StartAt is the scheduled start instant in loc, derived from the calendar
// date and the "HH:MM" time-of-day.
func (a Appointment) StartAt(loc *time.Location) (time.Time, error) {
	t, err := time.Parse("15:04", a.AppointmentTime)
	if err != nil {
		return time.Time{}, err
	}
	d := a.AppointmentDate
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}

// EndAt is StartAt plus the service duration.
func (a Appointment) EndAt(loc *time.Location) (time.Time, error) {
	start, err := a.StartAt(loc)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(time.Duration(a.DurationMinutes) * time.Minute), nil
}

// LocalDate pins t's civil Y/M/D to midnight in loc. The components are read
// in t's own location, never shifted through an instant conversion: a request
// date decoded at UTC midnight keeps the day the customer wrote regardless of
// the server zone. Every date bucketing and "today" comparison in the engine
// goes through this one helper so the two can never drift apart.
func LocalDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
