package adherence

import (
	"strings"
	"time"
)

// DateLayout is the normalized key used to index records by calendar day.
const DateLayout = "2006-01-02"

// Dose is a single scheduled dose and whether the patient took it.
type Dose struct {
	MedicationName string `json:"medication"`
	Taken          bool   `json:"taken"`
}

// Record holds every dose scheduled for one calendar day.
type Record struct {
	Date  time.Time `json:"date"`
	Doses []Dose    `json:"content"`
}

// Taken returns the number of doses marked as taken.
func (r Record) Taken() int {
	n := 0
	for _, d := range r.Doses {
		if d.Taken {
			n++
		}
	}
	return n
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	DateLayout,
	time.RFC1123,
	time.RFC1123Z,
}

// ParseDate parses the date formats the upstream API is known to emit.
// The boolean is false when no layout matches.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// civil drops the time of day and location, keeping the calendar date as
// seen in t's own location.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateKey(t time.Time) string {
	return civil(t).Format(DateLayout)
}
