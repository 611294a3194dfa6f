package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func day(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestBookingStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to BookingStatus
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusRejected, false},
		{StatusConfirmed, StatusConfirmed, false},
		{StatusRejected, StatusConfirmed, false},
		{StatusCancelled, StatusCancelled, false},
		{StatusCompleted, StatusCancelled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.True(t, StatusRejected.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusConfirmed.IsTerminal())

	_, err := ParseBookingStatus("approved")
	assert.Error(t, err)
	s, err := ParseBookingStatus("confirmed")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, s)
}

func TestWindow_Validate(t *testing.T) {
	assert.NoError(t, NewTimedWindow(ts("2025-01-10T10:00:00Z"), ts("2025-01-10T12:00:00Z")).Validate())
	assert.ErrorIs(t, NewTimedWindow(ts("2025-01-10T12:00:00Z"), ts("2025-01-10T12:00:00Z")).Validate(), ErrWindowBounds)
	assert.ErrorIs(t, NewTimedWindow(ts("2025-01-10T13:00:00Z"), ts("2025-01-10T12:00:00Z")).Validate(), ErrWindowBounds)
	assert.NoError(t, NewFullDayWindow(day("2025-01-10"), day("2025-01-10")).Validate())
	assert.ErrorIs(t, NewFullDayWindow(day("2025-01-11"), day("2025-01-10")).Validate(), ErrWindowDateOrder)
	assert.ErrorIs(t, Window{}.Validate(), ErrEmptyWindow)
	assert.ErrorIs(t, Window{Kind: WindowTimed, Start: ts("2025-01-10T10:00:00Z")}.Validate(), ErrEmptyWindow)
}

func TestWindow_Overlaps(t *testing.T) {
	a := NewTimedWindow(ts("2025-01-10T10:00:00Z"), ts("2025-01-10T12:00:00Z"))
	tests := []struct {
		name  string
		other Window
		want  bool
	}{
		{"partial overlap", NewTimedWindow(ts("2025-01-10T11:00:00Z"), ts("2025-01-10T13:00:00Z")), true},
		{"contained", NewTimedWindow(ts("2025-01-10T10:30:00Z"), ts("2025-01-10T11:00:00Z")), true},
		{"touching after", NewTimedWindow(ts("2025-01-10T12:00:00Z"), ts("2025-01-10T13:00:00Z")), false},
		{"touching before", NewTimedWindow(ts("2025-01-10T08:00:00Z"), ts("2025-01-10T10:00:00Z")), false},
		{"same date full day", NewFullDayWindow(day("2025-01-10"), day("2025-01-10")), true},
		{"full day range covering", NewFullDayWindow(day("2025-01-09"), day("2025-01-11")), true},
		{"next day full day", NewFullDayWindow(day("2025-01-11"), day("2025-01-11")), false},
		{"previous day full day", NewFullDayWindow(day("2025-01-09"), day("2025-01-09")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Overlaps(tt.other, time.UTC))
			assert.Equal(t, tt.want, tt.other.Overlaps(a, time.UTC), "overlap must be symmetric")
		})
	}

	t.Run("full day ranges touching", func(t *testing.T) {
		x := NewFullDayWindow(day("2025-01-10"), day("2025-01-11"))
		y := NewFullDayWindow(day("2025-01-12"), day("2025-01-13"))
		assert.False(t, x.Overlaps(y, time.UTC))
		assert.True(t, x.Overlaps(NewFullDayWindow(day("2025-01-11"), day("2025-01-12")), time.UTC))
	})

	t.Run("timed spanning midnight touches both dates", func(t *testing.T) {
		night := NewTimedWindow(ts("2025-01-10T22:00:00Z"), ts("2025-01-11T02:00:00Z"))
		assert.True(t, night.Overlaps(NewFullDayWindow(day("2025-01-11"), day("2025-01-11")), time.UTC))
		assert.False(t, night.Overlaps(NewFullDayWindow(day("2025-01-12"), day("2025-01-12")), time.UTC))
	})

	t.Run("date span follows timezone", func(t *testing.T) {
		loc := time.FixedZone("UTC+3", 3*3600)
		late := NewTimedWindow(ts("2025-01-10T22:00:00Z"), ts("2025-01-10T23:00:00Z"))
		assert.True(t, late.Overlaps(NewFullDayWindow(day("2025-01-11"), day("2025-01-11")), loc))
		assert.False(t, late.Overlaps(NewFullDayWindow(day("2025-01-11"), day("2025-01-11")), time.UTC))
	})
}

func TestWindow_Ended(t *testing.T) {
	timed := NewTimedWindow(ts("2025-01-10T10:00:00Z"), ts("2025-01-10T12:00:00Z"))
	assert.False(t, timed.EndedBefore(ts("2025-01-10T12:00:00Z"), time.UTC))
	assert.True(t, timed.EndedBefore(ts("2025-01-10T12:00:01Z"), time.UTC))

	full := NewFullDayWindow(day("2025-01-10"), day("2025-01-10"))
	assert.False(t, full.EndedBefore(ts("2025-01-10T23:59:59Z"), time.UTC))
	assert.True(t, full.EndedBefore(ts("2025-01-11T00:00:00Z"), time.UTC))
	assert.Equal(t, ts("2025-01-11T00:00:00Z"), full.EndInstant(time.UTC))
}

func TestWindow_StartsBefore(t *testing.T) {
	now := ts("2025-01-10T09:00:00Z")
	assert.True(t, NewTimedWindow(ts("2025-01-10T08:00:00Z"), ts("2025-01-10T10:00:00Z")).StartsBefore(now, time.UTC))
	assert.False(t, NewTimedWindow(ts("2025-01-10T09:00:00Z"), ts("2025-01-10T10:00:00Z")).StartsBefore(now, time.UTC))
	assert.False(t, NewFullDayWindow(day("2025-01-10"), day("2025-01-10")).StartsBefore(now, time.UTC), "today is bookable")
	assert.True(t, NewFullDayWindow(day("2025-01-09"), day("2025-01-10")).StartsBefore(now, time.UTC))
}

func TestWindow_JSON(t *testing.T) {
	t.Run("timed", func(t *testing.T) {
		w := NewTimedWindow(ts("2025-01-10T10:00:00Z"), ts("2025-01-10T12:00:00Z"))
		data, err := json.Marshal(w)
		require.NoError(t, err)
		assert.JSONEq(t, `{"is_full_day":false,"start_datetime":"2025-01-10T10:00:00Z","end_datetime":"2025-01-10T12:00:00Z"}`, string(data))

		var back Window
		require.NoError(t, json.Unmarshal(data, &back))
		assert.True(t, w.Start.Equal(back.Start))
		assert.Equal(t, WindowTimed, back.Kind)
	})

	t.Run("full day", func(t *testing.T) {
		var w Window
		require.NoError(t, json.Unmarshal([]byte(`{"is_full_day":true,"start_date":"2025-01-10","end_date":"2025-01-12"}`), &w))
		assert.Equal(t, WindowFullDay, w.Kind)
		assert.Equal(t, day("2025-01-12"), w.EndDate)
	})

	t.Run("bad date", func(t *testing.T) {
		var w Window
		assert.Error(t, json.Unmarshal([]byte(`{"is_full_day":true,"start_date":"10.01.2025","end_date":"2025-01-12"}`), &w))
	})

	t.Run("missing bounds fail validation", func(t *testing.T) {
		var w Window
		require.NoError(t, json.Unmarshal([]byte(`{"is_full_day":false}`), &w))
		assert.ErrorIs(t, w.Validate(), ErrEmptyWindow)
	})
}

func TestBooking_Conflict(t *testing.T) {
	b := &Booking{ID: 7, Status: StatusPending, Window: NewFullDayWindow(day("2025-01-10"), day("2025-01-11"))}
	info := b.Conflict()
	assert.Equal(t, int64(7), info.BookingID)
	assert.Equal(t, WindowFullDay, info.Kind)
	assert.Equal(t, "2025-01-10", info.From)
	assert.Equal(t, "2025-01-11", info.To)
}
