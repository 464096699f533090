package payments

import (
	"context"
	"log/slog"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
)

// StatusReader resolves an appointment's payment reference to the current
// Stripe payment-intent status. Display input only: settlement happens in an
// external system and nothing here writes back to Stripe.
type StatusReader struct {
	logger  *slog.Logger
	enabled bool
}

func NewStatusReader(secretKey string, logger *slog.Logger) *StatusReader {
	key := strings.TrimSpace(secretKey)
	if key == "" {
		logger.Warn("payment status lookup disabled: STRIPE_SECRET_KEY missing")
		return &StatusReader{logger: logger}
	}
	stripe.Key = key
	return &StatusReader{logger: logger, enabled: true}
}

func (r *StatusReader) Enabled() bool {
	return r.enabled
}

// Status fetches the payment-intent status for ref. Unknown or unresolvable
// references come back as an empty status, not an error: the lifecycle must
// never depend on the payment rail being reachable.
func (r *StatusReader) Status(ctx context.Context, ref string) string {
	if !r.enabled || strings.TrimSpace(ref) == "" {
		return ""
	}
	pi, err := paymentintent.Get(ref, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		r.logger.Warn("stripe payment intent lookup failed", "err", err, "ref", ref)
		return ""
	}
	return string(pi.Status)
}
