package models

import "time"

type Booking struct {
	ID             int64         `json:"id"`
	SpaceID        int64         `json:"space_id"`
	SpaceName      string        `json:"space_name,omitempty"`
	UserID         string        `json:"user_id"`
	EventName      string        `json:"event_name"`
	OrganizerName  string        `json:"organizer_name"`
	OrganizerEmail string        `json:"organizer_email"`
	EventType      EventType     `json:"event_type"`
	Attendance     *int          `json:"attendance,omitempty"`
	Window         Window        `json:"window"`
	Status         BookingStatus `json:"status"`
	Version        int64         `json:"version"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// BookingFilter narrows ListBookings. Zero values match everything.
type BookingFilter struct {
	UserID    string
	SpaceID   int64
	Statuses  []BookingStatus
	EventType EventType
	// StartsFrom and StartsTo bound the window start; full-day windows use midnight in the store's timezone.
	StartsFrom time.Time
	StartsTo   time.Time
	Limit      int
}

// ConflictInfo describes the booking that blocks a candidate window.
type ConflictInfo struct {
	BookingID int64         `json:"booking_id"`
	Kind      WindowKind    `json:"kind"`
	From      string        `json:"from"`
	To        string        `json:"to"`
	Status    BookingStatus `json:"status"`
}

func (b *Booking) Conflict() ConflictInfo {
	info := ConflictInfo{BookingID: b.ID, Kind: b.Window.Kind, Status: b.Status}
	if b.Window.IsFullDay() {
		info.From = b.Window.StartDate.Format(DateLayout)
		info.To = b.Window.EndDate.Format(DateLayout)
	} else {
		info.From = b.Window.Start.Format(time.RFC3339)
		info.To = b.Window.End.Format(time.RFC3339)
	}
	return info
}
