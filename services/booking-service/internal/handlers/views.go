package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/calendarview"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/earnings"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/engine"
)

type daySummaryItem struct {
	Date    string                `json:"date"`
	Counts  calendarview.Counts   `json:"counts"`
	Preview []appointmentResponse `json:"preview"`
}

// Calendar serves GET /api/v1/appointments/calendar?year=&month=&store_id=&preview=.
// Counts are full totals even when the preview is capped.
func (h *BookingHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil || year < 1 {
		http.Error(w, "invalid year", http.StatusBadRequest)
		return
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		http.Error(w, "invalid month", http.StatusBadRequest)
		return
	}
	previewCap := 5
	if v := r.URL.Query().Get("preview"); v != "" {
		previewCap, err = strconv.Atoi(v)
		if err != nil || previewCap < 0 {
			http.Error(w, "invalid preview", http.StatusBadRequest)
			return
		}
	}

	from, to := calendarview.MonthRange(year, time.Month(month), time.Local)
	appts, err := h.engine.List(r.Context(), engine.ListQuery{
		StoreID: strings.TrimSpace(r.URL.Query().Get("store_id")),
		From:    from,
		To:      to,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	summaries := calendarview.AggregateByDate(appts, from, to, previewCap)
	items := make([]daySummaryItem, 0, len(summaries))
	for _, s := range summaries {
		preview := make([]appointmentResponse, 0, len(s.Preview))
		for _, a := range s.Preview {
			preview = append(preview, toResponse(a))
		}
		items = append(items, daySummaryItem{
			Date:    s.Date.Format("2006-01-02"),
			Counts:  s.Counts,
			Preview: preview,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": items})
}

// EstimateEarnings serves GET /api/v1/riders/earnings?total_amount=&distance_km=.
// Distance is an external input echoed for display, never computed here.
func (h *BookingHandler) EstimateEarnings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	totalAmount, err := strconv.ParseFloat(r.URL.Query().Get("total_amount"), 64)
	if err != nil {
		http.Error(w, "invalid total_amount", http.StatusBadRequest)
		return
	}
	resp := map[string]any{
		"total_amount": totalAmount,
		"payout":       earnings.Estimate(totalAmount, h.earningsCfg),
	}
	if v := r.URL.Query().Get("distance_km"); v != "" {
		distance, err := strconv.ParseFloat(v, 64)
		if err != nil || distance < 0 {
			http.Error(w, "invalid distance_km", http.StatusBadRequest)
			return
		}
		resp["distance_km"] = distance
	}
	writeJSON(w, http.StatusOK, resp)
}
