package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shafin-ahmed/bookrider/libs/auth"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/engine"
)

type transitionRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason,omitempty"`
}

type claimRequest struct {
	AppointmentID string `json:"appointment_id"`
	RiderID       string `json:"rider_id"`
	Note          string `json:"note,omitempty"`
	ETANote       string `json:"eta_note,omitempty"`
	AcceptedTerms bool   `json:"accepted_terms"`
}

type rescheduleRequest struct {
	AppointmentID string `json:"appointment_id"`
	NewDate       string `json:"new_date"` // "2006-01-02"
	NewTime       string `json:"new_time"` // "HH:MM"
}

type rateRequest struct {
	AppointmentID string `json:"appointment_id"`
	Rating        int    `json:"rating"`
	Feedback      string `json:"feedback,omitempty"`
}

// Confirm serves POST /api/v1/appointments/confirm (vendor).
func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.decodeTransition(w, r, nil)
	if !ok {
		return
	}
	appt, err := h.engine.Confirm(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

// Claim serves POST /api/v1/appointments/claim (rider). The rider id comes
// from the authenticated identity when present; the body field covers
// trusted internal callers.
func (h *BookingHandler) Claim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	riderID := strings.TrimSpace(req.RiderID)
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil && claims.Role == auth.RoleRider {
		riderID = claims.Sub
	}
	if strings.TrimSpace(req.AppointmentID) == "" || riderID == "" {
		http.Error(w, "appointment_id and rider_id are required", http.StatusBadRequest)
		return
	}

	appt, err := h.engine.Claim(r.Context(), engine.ClaimRequest{
		AppointmentID: strings.TrimSpace(req.AppointmentID),
		RiderID:       riderID,
		Note:          strings.TrimSpace(req.Note),
		ETANote:       strings.TrimSpace(req.ETANote),
		AcceptedTerms: req.AcceptedTerms,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

// Start serves POST /api/v1/appointments/start (rider).
func (h *BookingHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, ok := h.decodeTransition(w, r, nil)
	if !ok {
		return
	}
	appt, err := h.engine.Start(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

// Complete serves POST /api/v1/appointments/complete (rider or vendor).
func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.decodeTransition(w, r, nil)
	if !ok {
		return
	}
	appt, err := h.engine.Complete(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

// Cancel serves POST /api/v1/appointments/cancel; a reason is mandatory.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var reason string
	id, ok := h.decodeTransition(w, r, &reason)
	if !ok {
		return
	}
	appt, err := h.engine.Cancel(r.Context(), id, reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

// NoShow serves POST /api/v1/appointments/no-show (vendor).
func (h *BookingHandler) NoShow(w http.ResponseWriter, r *http.Request) {
	id, ok := h.decodeTransition(w, r, nil)
	if !ok {
		return
	}
	appt, err := h.engine.MarkNoShow(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

// Reschedule serves POST /api/v1/appointments/reschedule. The closed record
// and its pending replacement both come back.
func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}
	newDate, err := time.Parse("2006-01-02", req.NewDate)
	if err != nil {
		http.Error(w, "invalid new_date", http.StatusBadRequest)
		return
	}

	closed, replacement, err := h.engine.Reschedule(r.Context(), strings.TrimSpace(req.AppointmentID), newDate, strings.TrimSpace(req.NewTime))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"closed":      toResponse(closed),
		"replacement": toResponse(replacement),
	})
}

// Rate serves POST /api/v1/appointments/rate (customer, completed jobs only).
func (h *BookingHandler) Rate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}
	appt, err := h.engine.Rate(r.Context(), strings.TrimSpace(req.AppointmentID), req.Rating, strings.TrimSpace(req.Feedback))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

func (h *BookingHandler) decodeTransition(w http.ResponseWriter, r *http.Request, reason *string) (string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return "", false
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return "", false
	}
	id := strings.TrimSpace(req.AppointmentID)
	if id == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return "", false
	}
	if reason != nil {
		*reason = strings.TrimSpace(req.Reason)
	}
	return id, true
}
