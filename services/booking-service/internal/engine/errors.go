package engine

import (
	"errors"
	"fmt"

	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/model"
)

// Business-rule errors. These reflect real appointment state; the engine never
// retries them and callers should re-read state before trying again.
var (
	ErrSlotNotBookable  = errors.New("slot is not bookable")
	ErrJobNotClaimable  = errors.New("job is not claimable")
	ErrTermsNotAccepted = errors.New("terms must be accepted")
	ErrReasonRequired   = errors.New("cancellation reason is required")
	ErrRatingOutOfRange = errors.New("rating must be between 1 and 5")
	ErrNotFound         = errors.New("appointment not found")
)

// ErrUnavailable wraps storage/transport failures so clients can tell "try
// again" apart from "this is not allowed". Raw driver errors never escape.
var ErrUnavailable = errors.New("storage unavailable")

// InvalidTransitionError reports a status-guard violation, carrying both the
// current and the requested status so the caller can render an actionable
// message.
type InvalidTransitionError struct {
	Current   model.Status
	Requested model.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.Current, e.Requested)
}

func invalidTransition(current, requested model.Status) error {
	return &InvalidTransitionError{Current: current, Requested: requested}
}

// Unavailable tags err as an infrastructure failure.
func Unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
