// Package timewindow converts lookback durations into concrete fetch
// windows and provides the partition-date helpers used by the cache layout.
package timewindow

import (
	"fmt"
	"time"
)

// DateFormat is the partition date layout (dt=YYYY-MM-DD).
const DateFormat = "2006-01-02"

// Window is a half-open fetch window ending at End and reaching Days days
// plus Hours hours back from it. A zero End means "now".
type Window struct {
	Days  int
	Hours int
	End   time.Time
}

// Start returns the lower bound of the window.
func (w Window) Start() time.Time {
	return w.end().Add(-time.Duration(w.Days)*24*time.Hour - time.Duration(w.Hours)*time.Hour)
}

// EndTime returns the upper bound of the window.
func (w Window) EndTime() time.Time {
	return w.end()
}

func (w Window) end() time.Time {
	if w.End.IsZero() {
		return time.Now().UTC()
	}
	return w.End
}

// String renders the window bounds for log lines and view headers.
func (w Window) String() string {
	return fmt.Sprintf("%s to %s",
		w.Start().UTC().Format(time.RFC3339),
		w.EndTime().UTC().Format(time.RFC3339))
}

// ValidDate reports whether s is a well-formed partition date.
func ValidDate(s string) bool {
	_, err := time.Parse(DateFormat, s)
	return err == nil
}

// DateRange returns every calendar day from start to end inclusive.
// Returns an error if either date is malformed or end precedes start.
func DateRange(start, end string) ([]string, error) {
	s, err := time.Parse(DateFormat, start)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse(DateFormat, end)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	if e.Before(s) {
		return nil, fmt.Errorf("end date %s precedes start date %s", end, start)
	}

	var days []string
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DateFormat))
	}
	return days, nil
}

// Today returns the current UTC date in partition format.
func Today() string {
	return time.Now().UTC().Format(DateFormat)
}
