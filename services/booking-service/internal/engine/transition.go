package engine

import (
	"strings"
	"time"

	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/model"
)

// The transition functions below are the only code that writes status, rider
// or lifecycle timestamps. Each checks its guard against the current record
// and applies its effects exactly once; stores run them under the
// appointment's exclusion so a lost duplicate request fails the guard instead
// of double-applying.

func confirm(a *model.Appointment, now time.Time) error {
	if a.Status != model.StatusPending {
		return invalidTransition(a.Status, model.StatusConfirmed)
	}
	a.Status = model.StatusConfirmed
	a.ConfirmedAt = &now
	return nil
}

// bindRider is the claim compare-and-set: it succeeds only against a
// confirmed appointment with no rider bound. The status stays confirmed until
// the rider starts the job.
func bindRider(a *model.Appointment, riderID, note, eta string) error {
	if a.Status != model.StatusConfirmed || a.RiderID != "" {
		return ErrJobNotClaimable
	}
	a.RiderID = riderID
	a.RiderNote = note
	a.RiderETANote = eta
	return nil
}

func start(a *model.Appointment, now time.Time) error {
	if a.Status != model.StatusConfirmed || a.RiderID == "" {
		return invalidTransition(a.Status, model.StatusInProgress)
	}
	a.Status = model.StatusInProgress
	a.StartedAt = &now
	return nil
}

func complete(a *model.Appointment, now time.Time) error {
	if a.Status != model.StatusInProgress {
		return invalidTransition(a.Status, model.StatusCompleted)
	}
	a.Status = model.StatusCompleted
	a.CompletedAt = &now
	return nil
}

func cancel(a *model.Appointment, reason string, now time.Time) error {
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}
	if a.Status != model.StatusPending && a.Status != model.StatusConfirmed {
		return invalidTransition(a.Status, model.StatusCancelled)
	}
	a.Status = model.StatusCancelled
	a.CancelledAt = &now
	a.CancellationReason = reason
	return nil
}

// markNoShow closes a confirmed appointment the customer never showed up for.
// CancelledAt doubles as the terminal timestamp.
func markNoShow(a *model.Appointment, now time.Time) error {
	if a.Status != model.StatusConfirmed {
		return invalidTransition(a.Status, model.StatusNoShow)
	}
	a.Status = model.StatusNoShow
	a.CancelledAt = &now
	return nil
}

// markRescheduled closes a confirmed appointment and releases its rider. The
// replacement booking is a new pending record; the date and time on this one
// are never edited in place.
func markRescheduled(a *model.Appointment, now time.Time) error {
	if a.Status != model.StatusConfirmed {
		return invalidTransition(a.Status, model.StatusRescheduled)
	}
	a.Status = model.StatusRescheduled
	a.RiderID = ""
	a.RiderNote = ""
	a.RiderETANote = ""
	a.CancelledAt = &now
	return nil
}

func rate(a *model.Appointment, rating int, feedback string) error {
	if a.Status != model.StatusCompleted {
		return invalidTransition(a.Status, model.StatusCompleted)
	}
	a.CustomerRating = rating
	a.CustomerFeedback = feedback
	return nil
}
