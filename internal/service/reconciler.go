package service

import (
	"context"
	"errors"
	"time"

	"venuebook/internal/domain"
	"venuebook/internal/metrics"
	"venuebook/internal/models"

	"github.com/rs/zerolog"
)

// Reconciler keeps space status in line with confirmed bookings and moves
// ended bookings to completed.
type Reconciler struct {
	bookings *BookingService
	interval time.Duration
	logger   *zerolog.Logger
}

var _ domain.Reconciler = (*Reconciler)(nil)

func NewReconciler(bookings *BookingService, interval time.Duration, logger *zerolog.Logger) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reconciler{bookings: bookings, interval: interval, logger: logger}
}

// Reconcile recomputes one space's status at the current time.
func (r *Reconciler) Reconcile(ctx context.Context, spaceID int64) (models.SpaceStatus, error) {
	s := r.bookings
	unlock, err := s.locker.Lock(ctx, spaceID)
	if err != nil {
		return "", err
	}
	defer unlock()

	var status models.SpaceStatus
	err = s.repo.WithTx(ctx, func(tx domain.BookingStore) error {
		var err error
		status, _, err = s.reconcileSpace(ctx, tx, spaceID, s.now())
		return err
	})
	return status, err
}

// SweepAll completes every confirmed booking that ended before now and
// reconciles the affected spaces. Each booking is handled on its own; a
// failure is logged and counted, and the sweep moves on. Running it twice
// with the same now changes nothing the second time.
func (r *Reconciler) SweepAll(ctx context.Context, now time.Time) (models.SweepResult, error) {
	started := time.Now()
	s := r.bookings
	var result models.SweepResult

	ended, err := s.repo.FindEndedConfirmedBookings(ctx, now)
	if err != nil {
		return result, err
	}

	for _, b := range ended {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		_, freed, err := s.completeBooking(ctx, b.ID, now)
		switch {
		case err == nil:
			result.Completed++
			if freed {
				result.Freed++
			}
		case domain.IsInvalidTransition(err) || domain.IsNotFound(err):
			// moved on between the scan and the lock
			r.logger.Debug().Int64("booking_id", b.ID).Err(err).Msg("Sweep skipped booking")
		default:
			result.Failed++
			r.logger.Error().Err(err).Int64("booking_id", b.ID).Int64("space_id", b.SpaceID).Msg("Sweep failed to complete booking")
		}
	}

	freed, failed, err := r.freeStaleSpaces(ctx, now)
	result.Freed += freed
	result.Failed += failed
	if err != nil {
		return result, err
	}

	metrics.ObserveSweep(result.Completed, result.Freed, result.Failed, time.Since(started).Seconds())
	if result.Completed > 0 || result.Freed > 0 || result.Failed > 0 {
		r.logger.Info().
			Int("completed", result.Completed).
			Int("freed", result.Freed).
			Int("failed", result.Failed).
			Msg("Sweep finished")
	}
	return result, nil
}

// freeStaleSpaces reconciles spaces still marked booked with no live confirmed booking.
func (r *Reconciler) freeStaleSpaces(ctx context.Context, now time.Time) (freed, failed int, err error) {
	s := r.bookings
	spaces, err := s.repo.ListSpaces(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, space := range spaces {
		if space.Status != models.SpaceBooked {
			continue
		}
		status, changed, err := r.reconcileAt(ctx, space.ID, now)
		if err != nil {
			if domain.IsNotFound(err) {
				continue
			}
			failed++
			r.logger.Error().Err(err).Int64("space_id", space.ID).Msg("Sweep failed to reconcile space")
			continue
		}
		if changed && status == models.SpaceFree {
			freed++
		}
	}
	return freed, failed, nil
}

func (r *Reconciler) reconcileAt(ctx context.Context, spaceID int64, now time.Time) (models.SpaceStatus, bool, error) {
	s := r.bookings
	unlock, err := s.locker.Lock(ctx, spaceID)
	if err != nil {
		return "", false, err
	}
	defer unlock()

	var (
		status  models.SpaceStatus
		changed bool
	)
	err = s.repo.WithTx(ctx, func(tx domain.BookingStore) error {
		var err error
		status, changed, err = s.reconcileSpace(ctx, tx, spaceID, now)
		return err
	})
	return status, changed, err
}

// Start runs a sweep every interval until ctx is done, logging pending
// bookings that start soon after each pass.
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("Reconciler started")
	r.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Reconciler stopped")
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Reconciler) runOnce(ctx context.Context) {
	if _, err := r.SweepAll(ctx, r.bookings.now()); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error().Err(err).Msg("Sweep failed")
	}
	r.ReportAttention(ctx)
}

// ReportAttention logs pending bookings that start within the attention window.
func (r *Reconciler) ReportAttention(ctx context.Context) int {
	pending, err := r.bookings.PendingNeedingAttention(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Error().Err(err).Msg("Attention report failed")
		}
		return 0
	}
	for _, b := range pending {
		r.logger.Warn().
			Int64("booking_id", b.ID).
			Str("space", b.SpaceName).
			Str("window", b.Window.String()).
			Msg("Pending booking starts soon")
	}
	return len(pending)
}
