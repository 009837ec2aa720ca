// Package adherence turns per-day dose records into the calendar heatmap shown
// on the patient page and the compact strip shown in the patient roster.
package adherence

import (
	"fmt"
	"time"
)

const (
	// DefaultWindowDays is the rolling history shown when the caller does not pick one.
	DefaultWindowDays = 30

	// DaysPerWeek is the fixed row count of every grid.
	DaysPerWeek = 7

	secondsPerDay = 24 * 60 * 60
)

// Status classifies a grid cell.
type Status int

const (
	StatusNoData Status = iota
	StatusFuture
	StatusRatio
)

func (s Status) String() string {
	switch s {
	case StatusFuture:
		return "future"
	case StatusRatio:
		return "ratio"
	default:
		return "no_data"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "no_data":
		*s = StatusNoData
	case "future":
		*s = StatusFuture
	case "ratio":
		*s = StatusRatio
	default:
		return fmt.Errorf("adherence: unknown status %q", string(b))
	}
	return nil
}

// Cell is one day of the grid. Ratio and Missed are only meaningful when
// Status is StatusRatio.
type Cell struct {
	Date   time.Time `json:"date"`
	Status Status    `json:"status"`
	Ratio  float64   `json:"ratio"`
	Missed int       `json:"missed"`
}

// Grid is a 7-row calendar; Rows[d][w] is weekday d (0=Sunday) of week w,
// week 0 being the earliest and the last week containing Today.
type Grid struct {
	Start      time.Time           `json:"start"`
	Today      time.Time           `json:"today"`
	WindowDays int                 `json:"window_days"`
	Weeks      int                 `json:"weeks"`
	Rows       [DaysPerWeek][]Cell `json:"rows"`
}

// Cell returns the cell for weekday d of week w.
func (g Grid) Cell(d, w int) Cell {
	return g.Rows[d][w]
}

// Lookup finds the cell for the given calendar date.
func (g Grid) Lookup(date time.Time) (Cell, bool) {
	offset := daysBetween(g.Start, civil(date))
	if offset < 0 || offset >= g.Weeks*DaysPerWeek {
		return Cell{}, false
	}
	return g.Rows[offset%DaysPerWeek][offset/DaysPerWeek], true
}

// Build lays records out on a week-aligned calendar ending at today. The
// window starts windowDays-1 days before today and is extended back to the
// preceding Sunday. When two records share a date the later one wins.
func Build(records []Record, today time.Time, windowDays int) Grid {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}

	index := make(map[string]Record, len(records))
	for _, r := range records {
		index[dateKey(r.Date)] = r
	}

	end := civil(today)
	windowStart := end.AddDate(0, 0, -(windowDays - 1))
	start := windowStart.AddDate(0, 0, -int(windowStart.Weekday()))

	totalDays := daysBetween(start, end) + 1
	weeks := (totalDays + DaysPerWeek - 1) / DaysPerWeek

	g := Grid{
		Start:      start,
		Today:      end,
		WindowDays: windowDays,
		Weeks:      weeks,
	}
	for d := 0; d < DaysPerWeek; d++ {
		row := make([]Cell, weeks)
		for w := 0; w < weeks; w++ {
			date := start.AddDate(0, 0, w*DaysPerWeek+d)
			row[w] = classify(date, end, index)
		}
		g.Rows[d] = row
	}
	return g
}

func classify(date, today time.Time, index map[string]Record) Cell {
	if date.After(today) {
		return Cell{Date: date, Status: StatusFuture}
	}
	r, ok := index[date.Format(DateLayout)]
	if !ok || len(r.Doses) == 0 {
		return Cell{Date: date, Status: StatusNoData}
	}
	taken := r.Taken()
	return Cell{
		Date:   date,
		Status: StatusRatio,
		Ratio:  float64(taken) / float64(len(r.Doses)),
		Missed: len(r.Doses) - taken,
	}
}

// daysBetween counts whole days from a to b; both must be civil dates.
// Computed on Unix seconds; a time.Duration overflows past ~292 years.
func daysBetween(a, b time.Time) int {
	return int((b.Unix() - a.Unix()) / secondsPerDay)
}
