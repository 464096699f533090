package availability

import "time"

// MinLeadTime is the booking policy: a slot must start at least this far
// after "now" to be bookable.
const MinLeadTime = 1 * time.Hour

// Slot is a candidate time-of-day offering for a given date.
type Slot struct {
	Time     string `json:"time"` // "HH:MM"
	Bookable bool   `json:"bookable"`
}

// ComputeSlots marks each catalog time on date as bookable or not.
//
// A date strictly before today's date yields all-unbookable slots. On today's
// date a slot must start at or after now+lead; every slot on a future date is
// bookable. Catalog entries that do not parse as "HH:MM" come back unbookable
// rather than failing the whole catalog.
//
// The caller injects now; the function never reads the wall clock and never
// mutates catalog. All times are interpreted in now's location. An all-unbookable
// result (lead time past the last slot of the day) is valid, not an error.
func ComputeSlots(date time.Time, catalog []string, now time.Time, lead time.Duration) []Slot {
	loc := now.Location()
	today := localDate(now, loc)
	day := localDate(date, loc)

	slots := make([]Slot, 0, len(catalog))
	for _, raw := range catalog {
		slots = append(slots, Slot{
			Time:     raw,
			Bookable: bookable(day, raw, today, now, lead, loc),
		})
	}
	return slots
}

// Bookable reports whether a single (date, "HH:MM") pair passes the lead-time
// policy. The booking path uses it as the create guard.
func Bookable(date time.Time, timeOfDay string, now time.Time, lead time.Duration) bool {
	loc := now.Location()
	return bookable(localDate(date, loc), timeOfDay, localDate(now, loc), now, lead, loc)
}

func bookable(day time.Time, timeOfDay string, today, now time.Time, lead time.Duration, loc *time.Location) bool {
	t, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return false
	}
	if day.Before(today) {
		return false
	}
	if day.After(today) {
		return true
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc)
	return !start.Before(now.Add(lead))
}

// localDate pins t's civil Y/M/D to midnight in loc, reading the components in
// t's own location. Request dates arrive decoded at UTC midnight; converting
// the instant into a zone west of UTC would slide them back a day.
func localDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
