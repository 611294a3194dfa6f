package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"venuebook/internal/domain"
	"venuebook/internal/events"
	"venuebook/internal/metrics"
	"venuebook/internal/models"
	"venuebook/internal/repository"

	"github.com/rs/zerolog"
)

// Options configures the booking lifecycle.
type Options struct {
	BlockingStatuses []models.BookingStatus
	Location         *time.Location
	MaxAdvanceDays   int
	Now              func() time.Time
}

type BookingService struct {
	repo           domain.Repository
	locker         domain.SpaceLocker
	eventBus       domain.EventPublisher
	resolver       *ConflictResolver
	loc            *time.Location
	maxAdvanceDays int // 0 means no horizon
	now            func() time.Time
	logger         *zerolog.Logger
}

func NewBookingService(repo domain.Repository, locker domain.SpaceLocker, eventBus domain.EventPublisher, opts Options, logger *zerolog.Logger) *BookingService {
	if locker == nil {
		locker = repository.NewMemorySpaceLocker()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxAdvanceDays < 0 {
		opts.MaxAdvanceDays = 0
	}
	return &BookingService{
		repo:           repo,
		locker:         locker,
		eventBus:       eventBus,
		resolver:       NewConflictResolver(opts.BlockingStatuses, opts.Location),
		loc:            opts.Location,
		maxAdvanceDays: opts.MaxAdvanceDays,
		now:            opts.Now,
		logger:         logger,
	}
}

func (s *BookingService) Resolver() *ConflictResolver { return s.resolver }

// validateRequest checks everything that does not need the store.
func (s *BookingService) validateRequest(who models.Identity, req *models.Booking, now time.Time) error {
	if who.UserID == "" {
		return domain.NewValidationError("user_id", "is required")
	}
	if req.SpaceID <= 0 {
		return domain.NewValidationError("space_id", "is required")
	}
	req.EventName = strings.TrimSpace(req.EventName)
	req.OrganizerName = strings.TrimSpace(req.OrganizerName)
	req.OrganizerEmail = strings.TrimSpace(req.OrganizerEmail)
	if req.EventName == "" {
		return domain.NewValidationError("event_name", "is required")
	}
	if req.OrganizerName == "" {
		return domain.NewValidationError("organizer_name", "is required")
	}
	if _, err := mail.ParseAddress(req.OrganizerEmail); err != nil {
		return domain.NewValidationError("organizer_email", "is not a valid address")
	}
	if req.EventType == "" {
		req.EventType = models.EventOther
	}
	if !req.EventType.IsValid() {
		return domain.NewValidationError("event_type", "unknown event type %q", req.EventType)
	}
	if req.Attendance != nil && *req.Attendance <= 0 {
		return domain.NewValidationError("attendance", "must be positive")
	}
	if err := req.Window.Validate(); err != nil {
		return domain.NewValidationError("window", "%s", err.Error())
	}
	if req.Window.StartsBefore(now, s.loc) {
		return domain.NewValidationError("window", "start must not be in the past")
	}
	if s.maxAdvanceDays > 0 {
		if horizon := now.AddDate(0, 0, s.maxAdvanceDays); req.Window.StartInstant(s.loc).After(horizon) {
			return domain.NewValidationError("window", "start is more than %d days ahead", s.maxAdvanceDays)
		}
	}
	return nil
}

// CreateBooking validates the request and stores it as pending if no booking
// in the blocking set overlaps it. The conflict check and the insert share
// one space lock and one transaction.
func (s *BookingService) CreateBooking(ctx context.Context, who models.Identity, req *models.Booking) (*models.Booking, error) {
	now := s.now()
	if err := s.validateRequest(who, req, now); err != nil {
		return nil, err
	}

	booking := *req
	booking.ID = 0
	booking.UserID = who.UserID
	booking.Status = models.StatusPending

	if err := s.insertPending(ctx, &booking); err != nil {
		var ce *domain.ConflictError
		if errors.As(err, &ce) {
			metrics.IncConflict()
			s.logger.Info().
				Int64("space_id", booking.SpaceID).
				Int64("conflicting_booking_id", ce.Existing.BookingID).
				Str("window", booking.Window.String()).
				Msg("Booking rejected by conflict check")
		}
		return nil, err
	}

	metrics.IncBookingCreated()
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("space_id", booking.SpaceID).
		Str("user_id", booking.UserID).
		Str("window", booking.Window.String()).
		Msg("Booking created")
	s.publishEvent(events.EventBookingCreated, &booking, "", who.UserID, "")
	return &booking, nil
}

// insertPending holds the space lock only for the check and the insert.
func (s *BookingService) insertPending(ctx context.Context, booking *models.Booking) error {
	unlock, err := s.locker.Lock(ctx, booking.SpaceID)
	if err != nil {
		return err
	}
	defer unlock()

	return s.repo.WithTx(ctx, func(tx domain.BookingStore) error {
		space, err := tx.GetSpace(ctx, booking.SpaceID)
		if err != nil {
			return err
		}
		if booking.Attendance != nil && *booking.Attendance > space.Capacity {
			return domain.NewValidationError("attendance", "%d exceeds capacity %d of %s", *booking.Attendance, space.Capacity, space.Name)
		}
		if err := s.resolver.CheckConflict(ctx, tx, space.ID, booking.Window); err != nil {
			return err
		}
		booking.SpaceName = space.Name
		return tx.InsertBooking(ctx, booking)
	})
}

// ApproveBooking confirms a pending booking and reconciles its space in the
// same transaction. It fails with a conflict when another confirmed booking
// overlaps, which only happens when pending bookings do not block creation.
func (s *BookingService) ApproveBooking(ctx context.Context, who models.Identity, id int64) (*models.Booking, error) {
	if !who.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	now := s.now()
	b, err := s.transition(ctx, id, models.StatusConfirmed, who.UserID, "", func(tx domain.BookingStore, b *models.Booking) error {
		confirmed, err := tx.FindBookingsForSpace(ctx, b.SpaceID, []models.BookingStatus{models.StatusConfirmed})
		if err != nil {
			return err
		}
		others := make([]*models.Booking, 0, len(confirmed))
		for _, c := range confirmed {
			if c.ID != b.ID {
				others = append(others, c)
			}
		}
		if hit := s.resolver.FirstConflict(others, b.Window); hit != nil {
			return &domain.ConflictError{SpaceID: b.SpaceID, Existing: hit.Conflict()}
		}
		_, _, err = s.reconcileSpace(ctx, tx, b.SpaceID, now)
		return err
	})
	if domain.IsConflict(err) {
		metrics.IncConflict()
		s.logger.Info().Int64("booking_id", id).Msg("Approval refused by conflict check")
	}
	return b, err
}

// RejectBooking declines a pending booking. The space was never booked for it.
func (s *BookingService) RejectBooking(ctx context.Context, who models.Identity, id int64, reason string) (*models.Booking, error) {
	if !who.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return s.transition(ctx, id, models.StatusRejected, who.UserID, strings.TrimSpace(reason), nil)
}

// CancelBooking is open to the owner and to admins. Cancelling a confirmed
// booking reconciles the space.
func (s *BookingService) CancelBooking(ctx context.Context, who models.Identity, id int64) (*models.Booking, error) {
	current, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !who.IsAdmin() && current.UserID != who.UserID {
		return nil, domain.ErrForbidden
	}
	now := s.now()
	return s.transition(ctx, id, models.StatusCancelled, who.UserID, "", func(tx domain.BookingStore, b *models.Booking) error {
		_, _, err := s.reconcileSpace(ctx, tx, b.SpaceID, now)
		return err
	})
}

// CompleteBooking moves an ended confirmed booking to completed and reconciles its space.
func (s *BookingService) CompleteBooking(ctx context.Context, id int64) (*models.Booking, error) {
	b, _, err := s.completeBooking(ctx, id, s.now())
	return b, err
}

// completeBooking also reports whether the space was freed by it.
func (s *BookingService) completeBooking(ctx context.Context, id int64, now time.Time) (*models.Booking, bool, error) {
	freed := false
	b, err := s.transitionChecked(ctx, id, models.StatusCompleted, models.SystemIdentity.UserID, "",
		func(b *models.Booking) error {
			if !b.Window.EndedBefore(now, s.loc) {
				return domain.NewValidationError("window", "booking %d has not ended yet", b.ID)
			}
			return nil
		},
		func(tx domain.BookingStore, b *models.Booking) error {
			status, changed, err := s.reconcileSpace(ctx, tx, b.SpaceID, now)
			freed = changed && status == models.SpaceFree
			return err
		})
	return b, freed, err
}

func (s *BookingService) transition(ctx context.Context, id int64, to models.BookingStatus, actor, reason string, after func(domain.BookingStore, *models.Booking) error) (*models.Booking, error) {
	return s.transitionChecked(ctx, id, to, actor, reason, nil, after)
}

// transitionChecked runs one lifecycle step under the space lock: re-read the
// booking, check the move is legal, compare-and-set the status, then apply
// after in the same transaction. Events go out after commit and unlock.
func (s *BookingService) transitionChecked(
	ctx context.Context,
	id int64,
	to models.BookingStatus,
	actor, reason string,
	guard func(*models.Booking) error,
	after func(domain.BookingStore, *models.Booking) error,
) (*models.Booking, error) {
	updated, prev, err := s.applyTransition(ctx, id, to, guard, after)
	if err != nil {
		return nil, err
	}

	metrics.IncTransition(string(to))
	s.logger.Info().
		Int64("booking_id", id).
		Int64("space_id", updated.SpaceID).
		Str("from", string(prev)).
		Str("status", string(to)).
		Str("changed_by", actor).
		Msg("Booking status changed")
	s.publishEvent(eventFor(to), updated, prev, actor, reason)
	return updated, nil
}

// applyTransition holds the space lock until the transaction is done.
func (s *BookingService) applyTransition(
	ctx context.Context,
	id int64,
	to models.BookingStatus,
	guard func(*models.Booking) error,
	after func(domain.BookingStore, *models.Booking) error,
) (updated *models.Booking, prev models.BookingStatus, err error) {
	current, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, "", err
	}

	unlock, err := s.locker.Lock(ctx, current.SpaceID)
	if err != nil {
		return nil, "", err
	}
	defer unlock()

	err = s.repo.WithTx(ctx, func(tx domain.BookingStore) error {
		b, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		prev = b.Status
		if !b.Status.CanTransitionTo(to) {
			return &domain.InvalidTransitionError{BookingID: id, From: b.Status, To: to}
		}
		if guard != nil {
			if err := guard(b); err != nil {
				return err
			}
		}
		updated, err = tx.TransitionBookingStatus(ctx, id, b.Status, to)
		if err != nil {
			return err
		}
		if after != nil {
			return after(tx, updated)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return updated, prev, nil
}

// reconcileSpace sets the space to booked iff it has a confirmed booking that
// has not ended at now. It reports the resulting status and whether it changed.
func (s *BookingService) reconcileSpace(ctx context.Context, tx domain.BookingStore, spaceID int64, now time.Time) (models.SpaceStatus, bool, error) {
	space, err := tx.GetSpace(ctx, spaceID)
	if err != nil {
		return "", false, err
	}
	confirmed, err := tx.FindBookingsForSpace(ctx, spaceID, []models.BookingStatus{models.StatusConfirmed})
	if err != nil {
		return "", false, err
	}

	want := models.SpaceFree
	for _, b := range confirmed {
		if !b.Window.EndedBefore(now, s.loc) {
			want = models.SpaceBooked
			break
		}
	}
	if space.Status == want {
		return want, false, nil
	}
	if err := tx.SetSpaceStatus(ctx, spaceID, want); err != nil {
		return "", false, err
	}
	s.logger.Info().Int64("space_id", spaceID).Str("from", string(space.Status)).Str("status", string(want)).Msg("Space status reconciled")
	return want, true, nil
}

func (s *BookingService) GetBooking(ctx context.Context, who models.Identity, id int64) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !who.IsAdmin() && b.UserID != who.UserID {
		return nil, domain.ErrForbidden
	}
	return b, nil
}

// ListBookings applies filter; non-admin callers only ever see their own bookings.
func (s *BookingService) ListBookings(ctx context.Context, who models.Identity, filter models.BookingFilter) ([]*models.Booking, error) {
	if !who.IsAdmin() {
		filter.UserID = who.UserID
	}
	return s.repo.ListBookings(ctx, filter)
}

// UpcomingBookings lists bookings that have not started yet, active ones by default.
func (s *BookingService) UpcomingBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	if len(filter.Statuses) == 0 {
		filter.Statuses = models.ActiveStatuses
	}
	filter.StartsFrom = s.now()
	return s.repo.ListBookings(ctx, filter)
}

// PendingNeedingAttention lists pending bookings that start within the next day.
func (s *BookingService) PendingNeedingAttention(ctx context.Context) ([]*models.Booking, error) {
	now := s.now()
	return s.repo.ListBookings(ctx, models.BookingFilter{
		Statuses:   []models.BookingStatus{models.StatusPending},
		StartsFrom: now,
		StartsTo:   now.Add(models.AttentionWindowHours * time.Hour),
	})
}

func eventFor(to models.BookingStatus) string {
	switch to {
	case models.StatusConfirmed:
		return events.EventBookingApproved
	case models.StatusRejected:
		return events.EventBookingRejected
	case models.StatusCancelled:
		return events.EventBookingCancelled
	case models.StatusCompleted:
		return events.EventBookingCompleted
	default:
		return events.EventBookingCreated
	}
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, prev models.BookingStatus, changedBy, reason string) {
	if s.eventBus == nil {
		return
	}

	payload := models.BookingEvent{
		Type:       eventType,
		BookingID:  booking.ID,
		SpaceID:    booking.SpaceID,
		SpaceName:  booking.SpaceName,
		UserID:     booking.UserID,
		Status:     booking.Status,
		PrevStatus: prev,
		Reason:     reason,
		ChangedBy:  changedBy,
		Booking:    booking,
		OccurredAt: s.now(),
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		nerr := &domain.NotificationError{Sink: "event_bus", Err: err}
		s.logger.Error().Err(nerr).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}
