package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// WindowKind tags which half of the Window union is populated.
type WindowKind string

const (
	WindowTimed   WindowKind = "timed"
	WindowFullDay WindowKind = "full_day"
)

var (
	ErrEmptyWindow     = errors.New("window is not set")
	ErrWindowBounds    = errors.New("end must be after start")
	ErrWindowDateOrder = errors.New("end_date must not be before start_date")
)

// Window is the span a booking occupies: either a pair of instants or an
// inclusive pair of calendar dates. Dates are stored as midnight UTC and
// interpreted in the caller's timezone.
type Window struct {
	Kind      WindowKind
	Start     time.Time
	End       time.Time
	StartDate time.Time
	EndDate   time.Time
}

func NewTimedWindow(start, end time.Time) Window {
	return Window{Kind: WindowTimed, Start: start, End: end}
}

func NewFullDayWindow(startDate, endDate time.Time) Window {
	return Window{Kind: WindowFullDay, StartDate: Date(startDate), EndDate: Date(endDate)}
}

func (w Window) IsFullDay() bool { return w.Kind == WindowFullDay }

// Validate checks that the window is well formed.
func (w Window) Validate() error {
	switch w.Kind {
	case WindowTimed:
		if w.Start.IsZero() || w.End.IsZero() {
			return ErrEmptyWindow
		}
		if !w.Start.Before(w.End) {
			return ErrWindowBounds
		}
	case WindowFullDay:
		if w.StartDate.IsZero() || w.EndDate.IsZero() {
			return ErrEmptyWindow
		}
		if w.EndDate.Before(w.StartDate) {
			return ErrWindowDateOrder
		}
	default:
		return ErrEmptyWindow
	}
	return nil
}

// DateSpan returns the half-open calendar span [from, to) covered by the window.
// A timed window covers every date from its start date to its end date inclusive.
func (w Window) DateSpan(loc *time.Location) (from, to time.Time) {
	if w.IsFullDay() {
		return w.StartDate, w.EndDate.AddDate(0, 0, 1)
	}
	return DateOf(w.Start, loc), DateOf(w.End, loc).AddDate(0, 0, 1)
}

// Overlaps reports strict overlap; windows that only touch do not overlap.
// Two timed windows compare instants, anything involving a full-day window
// compares calendar dates.
func (w Window) Overlaps(other Window, loc *time.Location) bool {
	if w.Kind == WindowTimed && other.Kind == WindowTimed {
		return w.Start.Before(other.End) && other.Start.Before(w.End)
	}
	aFrom, aTo := w.DateSpan(loc)
	bFrom, bTo := other.DateSpan(loc)
	return aFrom.Before(bTo) && bFrom.Before(aTo)
}

// StartsBefore reports whether the window begins before now. Full-day windows
// are compared against today's date in loc.
func (w Window) StartsBefore(now time.Time, loc *time.Location) bool {
	if w.IsFullDay() {
		return w.StartDate.Before(DateOf(now, loc))
	}
	return w.Start.Before(now)
}

// EndedBefore reports whether the window is over at now.
func (w Window) EndedBefore(now time.Time, loc *time.Location) bool {
	if w.IsFullDay() {
		return w.EndDate.Before(DateOf(now, loc))
	}
	return w.End.Before(now)
}

// StartInstant is the moment the window opens in loc.
func (w Window) StartInstant(loc *time.Location) time.Time {
	if w.IsFullDay() {
		return InLocation(w.StartDate, loc)
	}
	return w.Start
}

// EndInstant is the moment the window closes in loc.
func (w Window) EndInstant(loc *time.Location) time.Time {
	if w.IsFullDay() {
		return InLocation(w.EndDate.AddDate(0, 0, 1), loc)
	}
	return w.End
}

func (w Window) String() string {
	if w.IsFullDay() {
		return fmt.Sprintf("%s..%s", w.StartDate.Format(DateLayout), w.EndDate.Format(DateLayout))
	}
	return fmt.Sprintf("%s..%s", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

type windowJSON struct {
	IsFullDay bool       `json:"is_full_day"`
	Start     *time.Time `json:"start_datetime,omitempty"`
	End       *time.Time `json:"end_datetime,omitempty"`
	StartDate string     `json:"start_date,omitempty"`
	EndDate   string     `json:"end_date,omitempty"`
}

func (w Window) MarshalJSON() ([]byte, error) {
	out := windowJSON{IsFullDay: w.IsFullDay()}
	if w.IsFullDay() {
		out.StartDate = w.StartDate.Format(DateLayout)
		out.EndDate = w.EndDate.Format(DateLayout)
	} else {
		start, end := w.Start, w.End
		out.Start, out.End = &start, &end
	}
	return json.Marshal(out)
}

func (w *Window) UnmarshalJSON(data []byte) error {
	var in windowJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if !in.IsFullDay {
		if in.Start == nil || in.End == nil {
			*w = Window{Kind: WindowTimed}
			return nil
		}
		*w = NewTimedWindow(*in.Start, *in.End)
		return nil
	}
	if in.StartDate == "" || in.EndDate == "" {
		*w = Window{Kind: WindowFullDay}
		return nil
	}
	start, err := ParseDate(in.StartDate)
	if err != nil {
		return fmt.Errorf("start_date: %w", err)
	}
	end, err := ParseDate(in.EndDate)
	if err != nil {
		return fmt.Errorf("end_date: %w", err)
	}
	*w = NewFullDayWindow(start, end)
	return nil
}

// Date truncates t to its own calendar date at midnight UTC.
func Date(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateOf returns the calendar date of t as seen in loc, at midnight UTC.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Date(t.In(loc))
}

// InLocation turns a calendar date into the instant it begins in loc.
func InLocation(date time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
