package models

import "fmt"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusRejected  BookingStatus = "rejected"
	StatusCancelled BookingStatus = "cancelled"
	StatusCompleted BookingStatus = "completed"
)

var validTransitions = map[BookingStatus][]BookingStatus{
	StatusPending:   {StatusConfirmed, StatusRejected, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
	StatusRejected:  {},
	StatusCancelled: {},
	StatusCompleted: {},
}

// ActiveStatuses are the non-terminal statuses. Bookings in them count toward conflicts.
var ActiveStatuses = []BookingStatus{StatusPending, StatusConfirmed}

func (s BookingStatus) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to target is a legal lifecycle step.
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

func (s BookingStatus) String() string {
	return string(s)
}

func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %s", s)
	}
	return status, nil
}

// SpaceStatus is the coarse availability flag of a space.
type SpaceStatus string

const (
	SpaceFree   SpaceStatus = "free"
	SpaceBooked SpaceStatus = "booked"
)

// EventType classifies what a booking is for.
type EventType string

const (
	EventMeeting    EventType = "meeting"
	EventConference EventType = "conference"
	EventWebinar    EventType = "webinar"
	EventWorkshop   EventType = "workshop"
	EventOther      EventType = "other"
)

func (t EventType) IsValid() bool {
	switch t {
	case EventMeeting, EventConference, EventWebinar, EventWorkshop, EventOther:
		return true
	}
	return false
}

// Role of the caller as asserted by the identity provider.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleStaff    Role = "staff"
	RoleExternal Role = "external"
)

func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleStaff || r == RoleExternal
}

const (
	// DateLayout is the storage and wire format of calendar dates.
	DateLayout = "2006-01-02"

	// WorkerQueueSize is the buffer of the in-memory notification queue.
	WorkerQueueSize = 1000

	// AttentionWindowHours is how far ahead pending bookings are reported as needing a decision.
	AttentionWindowHours = 24

	// SheetsCacheTTL is how long a booking-to-row mapping stays cached, in seconds.
	SheetsCacheTTL = 60 * 60
)
