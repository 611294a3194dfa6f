package service

import (
	"context"
	"time"

	"venuebook/internal/domain"
	"venuebook/internal/models"
)

// ConflictResolver decides whether a candidate window collides with an
// existing booking in the blocking status set.
type ConflictResolver struct {
	blocking []models.BookingStatus
	loc      *time.Location
}

func NewConflictResolver(blocking []models.BookingStatus, loc *time.Location) *ConflictResolver {
	if len(blocking) == 0 {
		blocking = models.ActiveStatuses
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ConflictResolver{blocking: blocking, loc: loc}
}

// BlockingStatuses returns the statuses that block new bookings.
func (r *ConflictResolver) BlockingStatuses() []models.BookingStatus {
	return append([]models.BookingStatus(nil), r.blocking...)
}

// FirstConflict returns the first booking in existing that overlaps candidate, or nil.
func (r *ConflictResolver) FirstConflict(existing []*models.Booking, candidate models.Window) *models.Booking {
	for _, b := range existing {
		if b.Window.Overlaps(candidate, r.loc) {
			return b
		}
	}
	return nil
}

// CheckConflict reads the space's blocking bookings through store and returns a
// *domain.ConflictError for the first overlap. Run it with the same store
// (transaction) that will insert the booking.
func (r *ConflictResolver) CheckConflict(ctx context.Context, store domain.BookingStore, spaceID int64, candidate models.Window) error {
	existing, err := store.FindBookingsForSpace(ctx, spaceID, r.blocking)
	if err != nil {
		return err
	}
	if b := r.FirstConflict(existing, candidate); b != nil {
		return &domain.ConflictError{SpaceID: spaceID, Existing: b.Conflict()}
	}
	return nil
}
