package notify

import (
	"context"

	"venuebook/internal/domain"
	"venuebook/internal/models"

	"github.com/rs/zerolog"
)

// LogNotifier writes every event to the log. It is always configured.
type LogNotifier struct {
	logger *zerolog.Logger
}

var _ domain.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(_ context.Context, event *models.BookingEvent) error {
	ev := n.logger.Info().
		Str("event_type", event.Type).
		Int64("booking_id", event.BookingID).
		Int64("space_id", event.SpaceID).
		Str("status", string(event.Status))
	if event.PrevStatus != "" {
		ev = ev.Str("prev_status", string(event.PrevStatus))
	}
	if event.Reason != "" {
		ev = ev.Str("reason", event.Reason)
	}
	ev.Str("changed_by", event.ChangedBy).Msg("Booking event")
	return nil
}
