package calendarview

import (
	"testing"
	"time"

	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/model"
)

func appt(date time.Time, status model.Status, num string) model.Appointment {
	return model.Appointment{
		AppointmentNumber: num,
		AppointmentDate:   date,
		AppointmentTime:   "10:00",
		Status:            status,
	}
}

func TestAggregateByDate_CountsAndOrder(t *testing.T) {
	mar1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mar2 := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	appts := []model.Appointment{
		appt(mar2, model.StatusCancelled, "APT-4"),
		appt(mar1, model.StatusPending, "APT-1"),
		appt(mar1, model.StatusConfirmed, "APT-2"),
		appt(mar1, model.StatusCompleted, "APT-3"),
	}

	from, to := MonthRange(2024, time.March, time.UTC)
	days := AggregateByDate(appts, from, to, 0)

	if len(days) != 2 {
		t.Fatalf("expected 2 day buckets, got %d", len(days))
	}
	if !days[0].Date.Equal(mar1) || !days[1].Date.Equal(mar2) {
		t.Fatalf("buckets must be date-ordered: %v, %v", days[0].Date, days[1].Date)
	}

	got := days[0].Counts
	want := Counts{Total: 3, Pending: 1, Confirmed: 1, Completed: 1}
	if got != want {
		t.Fatalf("mar 1 counts: expected %+v, got %+v", want, got)
	}
	got = days[1].Counts
	want = Counts{Total: 1, Cancelled: 1}
	if got != want {
		t.Fatalf("mar 2 counts: expected %+v, got %+v", want, got)
	}
}

func TestAggregateByDate_PreviewCapKeepsFullCounts(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var appts []model.Appointment
	for i := 0; i < 8; i++ {
		appts = append(appts, appt(day, model.StatusPending, "APT"))
	}

	from, to := MonthRange(2024, time.March, time.UTC)
	days := AggregateByDate(appts, from, to, 5)
	if len(days) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(days))
	}
	if len(days[0].Preview) != 5 {
		t.Fatalf("preview must be capped at 5, got %d", len(days[0].Preview))
	}
	if days[0].Counts.Total != 8 || days[0].Counts.Pending != 8 {
		t.Fatalf("counts must cover the full bucket, got %+v", days[0].Counts)
	}
}

func TestAggregateByDate_NoShowFoldsIntoCancelled(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	appts := []model.Appointment{
		appt(day, model.StatusNoShow, "APT-1"),
		appt(day, model.StatusRescheduled, "APT-2"),
	}

	from, to := MonthRange(2024, time.March, time.UTC)
	days := AggregateByDate(appts, from, to, 0)
	got := days[0].Counts
	// no_show displays as cancelled; rescheduled contributes to the total only.
	want := Counts{Total: 2, Cancelled: 1}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestAggregateByDate_WindowExcludesOutside(t *testing.T) {
	appts := []model.Appointment{
		appt(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), model.StatusPending, "APT-1"),
		appt(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), model.StatusPending, "APT-2"),
		appt(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), model.StatusPending, "APT-3"),
	}

	from, to := MonthRange(2024, time.March, time.UTC)
	days := AggregateByDate(appts, from, to, 0)
	if len(days) != 1 || !days[0].Date.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("only in-window dates may appear: %+v", days)
	}
}

func TestMonthRange(t *testing.T) {
	from, to := MonthRange(2024, time.December, time.UTC)
	if !from.Equal(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("from: %v", from)
	}
	if !to.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("to must roll into the next year: %v", to)
	}
}
