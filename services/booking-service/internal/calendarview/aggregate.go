package calendarview

import (
	"sort"
	"time"

	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/model"
)

// Counts are per-date status tallies. They always reflect the full bucket,
// never the truncated preview.
type Counts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Confirmed  int `json:"confirmed"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Cancelled  int `json:"cancelled"`
}

// DaySummary is one calendar date's projection.
type DaySummary struct {
	Date    time.Time
	Counts  Counts
	Preview []model.Appointment
}

// AggregateByDate buckets appointments by local calendar date within
// [from, to) and returns one summary per date that has at least one
// appointment, ordered by date. previewCap <= 0 keeps every appointment in
// the preview. Pure projection: the input is never mutated and recomputing is
// always safe.
func AggregateByDate(appts []model.Appointment, from, to time.Time, previewCap int) []DaySummary {
	loc := from.Location()
	fromDay := model.LocalDate(from, loc)
	toDay := model.LocalDate(to, loc)

	buckets := map[time.Time]*DaySummary{}
	for _, a := range appts {
		day := model.LocalDate(a.AppointmentDate, loc)
		if day.Before(fromDay) || !day.Before(toDay) {
			continue
		}
		s := buckets[day]
		if s == nil {
			s = &DaySummary{Date: day}
			buckets[day] = s
		}
		count(&s.Counts, a.Status)
		if previewCap <= 0 || len(s.Preview) < previewCap {
			s.Preview = append(s.Preview, a)
		}
	}

	out := make([]DaySummary, 0, len(buckets))
	for _, s := range buckets {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// MonthRange is the [first of month, first of next month) window for
// AggregateByDate.
func MonthRange(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 1, 0)
}

func count(c *Counts, status model.Status) {
	c.Total++
	switch status {
	case model.StatusPending:
		c.Pending++
	case model.StatusConfirmed:
		c.Confirmed++
	case model.StatusInProgress:
		c.InProgress++
	case model.StatusCompleted:
		c.Completed++
	case model.StatusCancelled, model.StatusNoShow:
		c.Cancelled++
	}
}
