package service

import (
	"context"
	"strings"

	"venuebook/internal/domain"
	"venuebook/internal/models"
	"venuebook/internal/repository"

	"github.com/rs/zerolog"
)

type SpaceService struct {
	repo   domain.Repository
	locker domain.SpaceLocker
	logger *zerolog.Logger
}

var _ domain.SpaceService = (*SpaceService)(nil)

func NewSpaceService(repo domain.Repository, locker domain.SpaceLocker, logger *zerolog.Logger) *SpaceService {
	if locker == nil {
		locker = repository.NewMemorySpaceLocker()
	}
	return &SpaceService{repo: repo, locker: locker, logger: logger}
}

func (s *SpaceService) ListSpaces(ctx context.Context) ([]*models.Space, error) {
	return s.repo.ListSpaces(ctx)
}

func (s *SpaceService) GetSpace(ctx context.Context, id int64) (*models.Space, error) {
	return s.repo.GetSpace(ctx, id)
}

func validateSpace(space *models.Space) error {
	space.Name = strings.TrimSpace(space.Name)
	if len([]rune(space.Name)) < 2 {
		return domain.NewValidationError("name", "must be at least 2 characters")
	}
	if space.Capacity <= 0 {
		return domain.NewValidationError("capacity", "must be positive")
	}
	if space.PricePerDay != nil && *space.PricePerDay < 0 {
		return domain.NewValidationError("price_per_day", "must not be negative")
	}
	return nil
}

// CreateSpace adds a space. New spaces always start free.
func (s *SpaceService) CreateSpace(ctx context.Context, who models.Identity, space *models.Space) error {
	if !who.IsAdmin() {
		return domain.ErrForbidden
	}
	if err := validateSpace(space); err != nil {
		return err
	}
	space.Status = models.SpaceFree
	if err := s.repo.CreateSpace(ctx, space); err != nil {
		return err
	}
	s.logger.Info().Int64("space_id", space.ID).Str("name", space.Name).Int("capacity", space.Capacity).Msg("Space created")
	return nil
}

// UpdateSpace changes descriptive fields. Status is owned by the booking lifecycle.
func (s *SpaceService) UpdateSpace(ctx context.Context, who models.Identity, space *models.Space) error {
	if !who.IsAdmin() {
		return domain.ErrForbidden
	}
	if err := validateSpace(space); err != nil {
		return err
	}
	if err := s.repo.UpdateSpace(ctx, space); err != nil {
		return err
	}
	s.logger.Info().Int64("space_id", space.ID).Msg("Space updated")
	return nil
}

// DeleteSpace removes a space that has no pending or confirmed bookings.
func (s *SpaceService) DeleteSpace(ctx context.Context, who models.Identity, id int64) error {
	if !who.IsAdmin() {
		return domain.ErrForbidden
	}

	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	err = s.repo.WithTx(ctx, func(tx domain.BookingStore) error {
		if _, err := tx.GetSpace(ctx, id); err != nil {
			return err
		}
		active, err := tx.CountActiveBookings(ctx, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return &domain.SpaceInUseError{SpaceID: id, Active: active}
		}
		return tx.DeleteSpace(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info().Int64("space_id", id).Msg("Space deleted")
	return nil
}
