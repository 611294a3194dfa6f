package domain

import (
	"errors"
	"fmt"

	"venuebook/internal/models"
)

// ErrForbidden is returned when the caller's role does not allow the operation.
var ErrForbidden = errors.New("forbidden")

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError carries the existing booking that overlaps the candidate window.
type ConflictError struct {
	SpaceID  int64
	Existing models.ConflictInfo
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("space %d already has %s booking %d for %s..%s",
		e.SpaceID, e.Existing.Status, e.Existing.BookingID, e.Existing.From, e.Existing.To)
}

type InvalidTransitionError struct {
	BookingID int64
	From      models.BookingStatus
	To        models.BookingStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("booking %d cannot move from %s to %s", e.BookingID, e.From, e.To)
}

type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// SpaceInUseError blocks deletion of a space with active bookings.
type SpaceInUseError struct {
	SpaceID int64
	Active  int
}

func (e *SpaceInUseError) Error() string {
	return fmt.Sprintf("space %d has %d active bookings", e.SpaceID, e.Active)
}

// NotificationError wraps a sink delivery failure. It is logged, never returned
// from a lifecycle operation.
type NotificationError struct {
	Sink string
	Err  error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification via %s failed: %v", e.Sink, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	var ue *SpaceInUseError
	return errors.As(err, &ve) || errors.As(err, &ue)
}

func IsInvalidTransition(err error) bool {
	var te *InvalidTransitionError
	return errors.As(err, &te)
}
