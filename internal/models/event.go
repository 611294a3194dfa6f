package models

import "time"

// BookingEvent is the snapshot published on every lifecycle transition.
type BookingEvent struct {
	Type       string        `json:"type"`
	BookingID  int64         `json:"booking_id"`
	SpaceID    int64         `json:"space_id"`
	SpaceName  string        `json:"space_name"`
	UserID     string        `json:"user_id"`
	Status     BookingStatus `json:"status"`
	PrevStatus BookingStatus `json:"prev_status,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	ChangedBy  string        `json:"changed_by,omitempty"`
	Booking    *Booking      `json:"booking"`
	OccurredAt time.Time     `json:"occurred_at"`
}
