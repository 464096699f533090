package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/earnings"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/engine"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/handlers"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/storage"
)

var handlerNow = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestHandler(t *testing.T) (*handlers.BookingHandler, *engine.Engine) {
	t.Helper()
	store := storage.NewMemoryStore()
	logger := slog.New(slog.DiscardHandler)
	eng := engine.New(store, logger, engine.Config{
		Now: func() time.Time { return handlerNow },
	})
	h := handlers.NewBookingHandler(eng, storage.NewMemoryIdempotency(), nil, earnings.Config{}, logger)
	return h, eng
}

func postJSON(t *testing.T, fn http.HandlerFunc, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	fn(rec, req)
	return rec
}

func getReq(t *testing.T, fn http.HandlerFunc, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	fn(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func validBookingBody() map[string]any {
	return map[string]any{
		"store_id":         "store-1",
		"service_id":       "svc-1",
		"customer_name":    "Amina Rahman",
		"customer_phone":   "+8801700000000",
		"appointment_date": "2024-03-02",
		"appointment_time": "10:00",
		"duration_minutes": 60,
		"service_price":    900,
		"total_amount":     1000,
		"currency":         "BDT",
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestCreate_Success(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := postJSON(t, h.Create, "/api/v1/public/book", validBookingBody(), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "pending" {
		t.Fatalf("expected pending, got %v", body["status"])
	}
	if body["appointment_id"] == "" || body["appointment_number"] == "" {
		t.Fatalf("missing identifiers: %v", body)
	}
}

func TestCreate_Validation(t *testing.T) {
	h, _ := newTestHandler(t)

	cases := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing store", func(b map[string]any) { b["store_id"] = "" }},
		{"missing customer", func(b map[string]any) { b["customer_name"] = " " }},
		{"bad date", func(b map[string]any) { b["appointment_date"] = "02-03-2024" }},
		{"zero duration", func(b map[string]any) { b["duration_minutes"] = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := validBookingBody()
			tc.mutate(body)
			rec := postJSON(t, h.Create, "/api/v1/public/book", body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestCreate_SlotNotBookableIs422(t *testing.T) {
	h, _ := newTestHandler(t)

	body := validBookingBody()
	body["appointment_date"] = "2024-02-01" // in the past relative to the fixed clock
	rec := postJSON(t, h.Create, "/api/v1/public/book", body, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	if decodeBody(t, rec)["error"] != "slot_not_bookable" {
		t.Fatalf("unexpected error body: %s", rec.Body.String())
	}
}

func TestCreate_IdempotencyReplay(t *testing.T) {
	h, _ := newTestHandler(t)

	header := http.Header{}
	header.Set("Idempotency-Key", "key-1")

	first := postJSON(t, h.Create, "/api/v1/public/book", validBookingBody(), header)
	if first.Code != http.StatusCreated {
		t.Fatalf("first request: expected 201, got %d", first.Code)
	}

	second := postJSON(t, h.Create, "/api/v1/public/book", validBookingBody(), header)
	if second.Code != http.StatusCreated {
		t.Fatalf("replay: expected 201, got %d", second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replay must return the stored response:\n%s\n%s", first.Body.String(), second.Body.String())
	}

	// A different key books a second appointment.
	header.Set("Idempotency-Key", "key-2")
	third := postJSON(t, h.Create, "/api/v1/public/book", validBookingBody(), header)
	firstID := decodeBody(t, first)["appointment_id"]
	thirdID := decodeBody(t, third)["appointment_id"]
	if firstID == thirdID {
		t.Fatal("distinct keys must create distinct appointments")
	}
}

func TestSlots(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := getReq(t, h.Slots, "/api/v1/public/slots?date=2024-03-02")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	slots, ok := body["slots"].([]any)
	if !ok || len(slots) == 0 {
		t.Fatalf("expected slot list, got %v", body)
	}

	rec = getReq(t, h.Slots, "/api/v1/public/slots?date=bogus")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}
}

func TestGet_NotFoundIs404(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := getReq(t, h.Get, "/api/v1/appointments/get?id=missing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if decodeBody(t, rec)["error"] != "not_found" {
		t.Fatalf("unexpected error body: %s", rec.Body.String())
	}
}

func TestClaim_ErrorMapping(t *testing.T) {
	h, eng := newTestHandler(t)

	rec := postJSON(t, h.Create, "/api/v1/public/book", validBookingBody(), nil)
	id := decodeBody(t, rec)["appointment_id"].(string)

	// Pending job: claims conflict.
	rec = postJSON(t, h.Claim, "/api/v1/appointments/claim", map[string]any{
		"appointment_id": id,
		"rider_id":       "rider-1",
		"accepted_terms": true,
	}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for unclaimable job, got %d", rec.Code)
	}
	if decodeBody(t, rec)["error"] != "job_not_claimable" {
		t.Fatalf("unexpected error body: %s", rec.Body.String())
	}

	if _, err := eng.Confirm(context.Background(), id); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	// Terms rejected.
	rec = postJSON(t, h.Claim, "/api/v1/appointments/claim", map[string]any{
		"appointment_id": id,
		"rider_id":       "rider-1",
		"accepted_terms": false,
	}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for rejected terms, got %d", rec.Code)
	}

	// Winning claim.
	rec = postJSON(t, h.Claim, "/api/v1/appointments/claim", map[string]any{
		"appointment_id": id,
		"rider_id":       "rider-1",
		"accepted_terms": true,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if decodeBody(t, rec)["rider_id"] != "rider-1" {
		t.Fatalf("rider not in response: %s", rec.Body.String())
	}
}

func TestConfirm_InvalidTransitionDetail(t *testing.T) {
	h, eng := newTestHandler(t)

	rec := postJSON(t, h.Create, "/api/v1/public/book", validBookingBody(), nil)
	id := decodeBody(t, rec)["appointment_id"].(string)
	if _, err := eng.Confirm(context.Background(), id); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	rec = postJSON(t, h.Confirm, "/api/v1/appointments/confirm", map[string]any{"appointment_id": id}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "invalid_transition" || body["current_status"] != "confirmed" || body["requested_status"] != "confirmed" {
		t.Fatalf("transition detail missing: %s", rec.Body.String())
	}
}

func TestCancel_ReasonRequired(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := postJSON(t, h.Create, "/api/v1/public/book", validBookingBody(), nil)
	id := decodeBody(t, rec)["appointment_id"].(string)

	rec = postJSON(t, h.Cancel, "/api/v1/appointments/cancel", map[string]any{"appointment_id": id}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without reason, got %d", rec.Code)
	}

	rec = postJSON(t, h.Cancel, "/api/v1/appointments/cancel", map[string]any{
		"appointment_id": id,
		"reason":         "changed plans",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if decodeBody(t, rec)["status"] != "cancelled" {
		t.Fatalf("unexpected status: %s", rec.Body.String())
	}
}

func TestRate_OutOfRangeIsLabelled(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := postJSON(t, h.Create, "/api/v1/public/book", validBookingBody(), nil)
	id := decodeBody(t, rec)["appointment_id"].(string)

	rec = postJSON(t, h.Rate, "/api/v1/appointments/rate", map[string]any{
		"appointment_id": id,
		"rating":         6,
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if decodeBody(t, rec)["error"] != "rating_out_of_range" {
		t.Fatalf("unexpected error body: %s", rec.Body.String())
	}
}

func TestReschedule_ReturnsBothRecords(t *testing.T) {
	h, eng := newTestHandler(t)

	rec := postJSON(t, h.Create, "/api/v1/public/book", validBookingBody(), nil)
	id := decodeBody(t, rec)["appointment_id"].(string)
	if _, err := eng.Confirm(context.Background(), id); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	rec = postJSON(t, h.Reschedule, "/api/v1/appointments/reschedule", map[string]any{
		"appointment_id": id,
		"new_date":       "2024-03-05",
		"new_time":       "14:00",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	closed := body["closed"].(map[string]any)
	replacement := body["replacement"].(map[string]any)
	if closed["status"] != "rescheduled" || replacement["status"] != "pending" {
		t.Fatalf("unexpected statuses: %s", rec.Body.String())
	}
	if replacement["appointment_date"] != "2024-03-05" || replacement["appointment_time"] != "14:00" {
		t.Fatalf("replacement slot mismatch: %s", rec.Body.String())
	}
}

func TestCalendar(t *testing.T) {
	h, eng := newTestHandler(t)

	for i := 0; i < 3; i++ {
		body := validBookingBody()
		body["appointment_time"] = fmt.Sprintf("%02d:00", 10+i)
		rec := postJSON(t, h.Create, "/api/v1/public/book", body, nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("seed booking %d: %d", i, rec.Code)
		}
		if i == 0 {
			id := decodeBody(t, rec)["appointment_id"].(string)
			if _, err := eng.Confirm(context.Background(), id); err != nil {
				t.Fatalf("confirm failed: %v", err)
			}
		}
	}

	rec := getReq(t, h.Calendar, "/api/v1/appointments/calendar?year=2024&month=3&preview=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	days := body["days"].([]any)
	if len(days) != 1 {
		t.Fatalf("expected one day bucket, got %d", len(days))
	}
	day := days[0].(map[string]any)
	counts := day["counts"].(map[string]any)
	if counts["total"].(float64) != 3 || counts["pending"].(float64) != 2 || counts["confirmed"].(float64) != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
	if preview := day["preview"].([]any); len(preview) != 2 {
		t.Fatalf("preview must be capped at 2, got %d", len(preview))
	}

	rec = getReq(t, h.Calendar, "/api/v1/appointments/calendar?year=2024&month=13")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad month, got %d", rec.Code)
	}
}

func TestEstimateEarnings(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := getReq(t, h.EstimateEarnings, "/api/v1/riders/earnings?total_amount=1000&distance_km=4.5")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["payout"].(float64) != 150 {
		t.Fatalf("expected payout 150, got %v", body["payout"])
	}
	if body["distance_km"].(float64) != 4.5 {
		t.Fatalf("distance must be echoed: %v", body)
	}

	rec = getReq(t, h.EstimateEarnings, "/api/v1/riders/earnings?total_amount=abc")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
