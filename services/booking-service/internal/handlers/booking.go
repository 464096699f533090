package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/earnings"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/engine"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/model"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/payments"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/storage"
)

// Idempotency is the booking-create dedup port; postgres and memory
// implementations live in storage.
type Idempotency interface {
	Reserve(ctx context.Context, storeID, key string) (storage.IdempotencyRecord, bool, error)
	Finalize(ctx context.Context, storeID, key, appointmentID string, statusCode int, response []byte) error
}

type BookingHandler struct {
	engine      *engine.Engine
	idempotency Idempotency
	payments    *payments.StatusReader
	earningsCfg earnings.Config
	logger      *slog.Logger
}

func NewBookingHandler(eng *engine.Engine, idem Idempotency, pay *payments.StatusReader, earningsCfg earnings.Config, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		engine:      eng,
		idempotency: idem,
		payments:    pay,
		earningsCfg: earningsCfg,
		logger:      logger,
	}
}

type createBookingRequest struct {
	StoreID         string  `json:"store_id"`
	ServiceID       string  `json:"service_id"`
	CustomerName    string  `json:"customer_name"`
	CustomerEmail   string  `json:"customer_email"`
	CustomerPhone   string  `json:"customer_phone"`
	CustomerAddress string  `json:"customer_address"`
	CustomerCity    string  `json:"customer_city"`
	Date            string  `json:"appointment_date"` // "2006-01-02"
	Time            string  `json:"appointment_time"` // "HH:MM"
	DurationMinutes int     `json:"duration_minutes"`
	ServicePrice    float64 `json:"service_price"`
	TotalAmount     float64 `json:"total_amount"`
	Currency        string  `json:"currency"`
	PaymentRef      string  `json:"payment_ref"`
}

type appointmentResponse struct {
	AppointmentID      string  `json:"appointment_id"`
	AppointmentNumber  string  `json:"appointment_number"`
	StoreID            string  `json:"store_id"`
	ServiceID          string  `json:"service_id"`
	RiderID            string  `json:"rider_id,omitempty"`
	CustomerName       string  `json:"customer_name"`
	Date               string  `json:"appointment_date"`
	Time               string  `json:"appointment_time"`
	DurationMinutes    int     `json:"duration_minutes"`
	EstimatedEnd       string  `json:"estimated_end,omitempty"`
	TotalAmount        float64 `json:"total_amount"`
	Currency           string  `json:"currency"`
	Status             string  `json:"status"`
	CancellationReason string  `json:"cancellation_reason,omitempty"`
	PaymentStatus      string  `json:"payment_status,omitempty"`
	CreatedAt          string  `json:"created_at"`
	ConfirmedAt        string  `json:"confirmed_at,omitempty"`
	StartedAt          string  `json:"started_at,omitempty"`
	CompletedAt        string  `json:"completed_at,omitempty"`
	CancelledAt        string  `json:"cancelled_at,omitempty"`
}

func toResponse(a model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		AppointmentID:      a.ID,
		AppointmentNumber:  a.AppointmentNumber,
		StoreID:            a.StoreID,
		ServiceID:          a.ServiceID,
		RiderID:            a.RiderID,
		CustomerName:       a.Customer.Name,
		Date:               a.AppointmentDate.Format("2006-01-02"),
		Time:               a.AppointmentTime,
		DurationMinutes:    a.DurationMinutes,
		TotalAmount:        a.TotalAmount,
		Currency:           a.Currency,
		Status:             string(a.Status),
		CancellationReason: a.CancellationReason,
		PaymentStatus:      a.PaymentStatus,
		CreatedAt:          a.CreatedAt.Format(time.RFC3339),
	}
	if end, err := a.EndAt(a.AppointmentDate.Location()); err == nil {
		resp.EstimatedEnd = end.Format(time.RFC3339)
	}
	fmtTS := func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format(time.RFC3339)
	}
	resp.ConfirmedAt = fmtTS(a.ConfirmedAt)
	resp.StartedAt = fmtTS(a.StartedAt)
	resp.CompletedAt = fmtTS(a.CompletedAt)
	resp.CancelledAt = fmtTS(a.CancelledAt)
	return resp
}

// Slots serves GET /api/v1/public/slots?date=2006-01-02.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":  date.Format("2006-01-02"),
		"slots": h.engine.Slots(date),
	})
}

// Create serves POST /api/v1/public/book. An Idempotency-Key header makes the
// request replay-safe: a finished duplicate returns the stored response, an
// in-flight duplicate is rejected.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	req.StoreID = strings.TrimSpace(req.StoreID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)

	if req.StoreID == "" || req.ServiceID == "" || req.CustomerName == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		http.Error(w, "invalid appointment_date", http.StatusBadRequest)
		return
	}
	if req.DurationMinutes <= 0 {
		http.Error(w, "duration_minutes must be positive", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" && h.idempotency != nil {
		rec, existing, err := h.idempotency.Reserve(ctx, req.StoreID, idempotencyKey)
		if err != nil {
			http.Error(w, "failed to reserve idempotency key", http.StatusInternalServerError)
			return
		}
		if existing {
			if rec.Finalized() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(rec.StatusCode)
				_, _ = w.Write(rec.ResponsePayload)
				return
			}
			http.Error(w, "request with this idempotency key is in flight", http.StatusConflict)
			return
		}
	}

	appt, err := h.engine.Create(ctx, engine.Booking{
		StoreID:   req.StoreID,
		ServiceID: req.ServiceID,
		Customer: model.Customer{
			Name:    req.CustomerName,
			Email:   strings.TrimSpace(req.CustomerEmail),
			Phone:   strings.TrimSpace(req.CustomerPhone),
			Address: strings.TrimSpace(req.CustomerAddress),
			City:    strings.TrimSpace(req.CustomerCity),
		},
		Date:            date,
		Time:            strings.TrimSpace(req.Time),
		DurationMinutes: req.DurationMinutes,
		ServicePrice:    req.ServicePrice,
		TotalAmount:     req.TotalAmount,
		Currency:        strings.TrimSpace(req.Currency),
		PaymentRef:      strings.TrimSpace(req.PaymentRef),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := toResponse(appt)
	body, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "encoding error", http.StatusInternalServerError)
		return
	}
	if idempotencyKey != "" && h.idempotency != nil {
		if err := h.idempotency.Finalize(ctx, req.StoreID, idempotencyKey, appt.ID, http.StatusCreated, body); err != nil {
			h.logger.Error("idempotency finalize failed", "err", err, "appointment_id", appt.ID)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

// Get serves GET /api/v1/appointments/get?id=...; when a Stripe reader is
// wired and the record carries a payment ref, the payment status is refreshed
// for display.
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	appt, err := h.engine.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if h.payments != nil && h.payments.Enabled() && appt.PaymentRef != "" {
		if status := h.payments.Status(r.Context(), appt.PaymentRef); status != "" {
			appt.PaymentStatus = status
		}
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

// List serves GET /api/v1/appointments with optional store_id, rider_id,
// status, from, to and limit query parameters.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := engine.ListQuery{
		StoreID: strings.TrimSpace(r.URL.Query().Get("store_id")),
		RiderID: strings.TrimSpace(r.URL.Query().Get("rider_id")),
	}
	if s := strings.TrimSpace(r.URL.Query().Get("status")); s != "" {
		status := model.Status(s)
		if !status.Valid() {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
		q.Status = status
	}
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			http.Error(w, "invalid from date", http.StatusBadRequest)
			return
		}
		q.From = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			http.Error(w, "invalid to date", http.StatusBadRequest)
			return
		}
		q.To = t
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		q.Limit = limit
	}

	appts, err := h.engine.List(r.Context(), q)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		items = append(items, toResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

// writeError maps the engine taxonomy onto HTTP statuses. Infrastructure
// faults come out as 503 so clients can tell "try again" from "not allowed".
func (h *BookingHandler) writeError(w http.ResponseWriter, err error) {
	var invalid *engine.InvalidTransitionError
	switch {
	case errors.Is(err, engine.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not_found", err.Error()))
	case errors.Is(err, engine.ErrSlotNotBookable):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("slot_not_bookable", err.Error()))
	case errors.Is(err, engine.ErrTermsNotAccepted):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("terms_not_accepted", err.Error()))
	case errors.Is(err, engine.ErrJobNotClaimable):
		writeJSON(w, http.StatusConflict, errorBody("job_not_claimable", err.Error()))
	case errors.Is(err, engine.ErrReasonRequired):
		writeJSON(w, http.StatusBadRequest, errorBody("reason_required", err.Error()))
	case errors.Is(err, engine.ErrRatingOutOfRange):
		writeJSON(w, http.StatusBadRequest, errorBody("rating_out_of_range", err.Error()))
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":            "invalid_transition",
			"message":          invalid.Error(),
			"current_status":   string(invalid.Current),
			"requested_status": string(invalid.Requested),
		})
	case errors.Is(err, engine.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("unavailable", "storage unavailable, try again"))
	default:
		h.logger.Error("unhandled engine error", "err", err)
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_request", err.Error()))
	}
}

func errorBody(code, message string) map[string]any {
	return map[string]any{"error": code, "message": message}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
