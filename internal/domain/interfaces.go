package domain

import (
	"context"
	"time"

	"venuebook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BookingStore is the set of queries the lifecycle runs, inside or outside a transaction.
type BookingStore interface {
	GetSpace(ctx context.Context, id int64) (*models.Space, error)
	ListSpaces(ctx context.Context) ([]*models.Space, error)
	CreateSpace(ctx context.Context, space *models.Space) error
	UpdateSpace(ctx context.Context, space *models.Space) error
	DeleteSpace(ctx context.Context, id int64) error
	SetSpaceStatus(ctx context.Context, id int64, status models.SpaceStatus) error

	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	InsertBooking(ctx context.Context, booking *models.Booking) error
	FindBookingsForSpace(ctx context.Context, spaceID int64, statuses []models.BookingStatus) ([]*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	CountActiveBookings(ctx context.Context, spaceID int64) (int, error)
	// TransitionBookingStatus moves a booking from one status to another only if it is still in from.
	TransitionBookingStatus(ctx context.Context, id int64, from, to models.BookingStatus) (*models.Booking, error)
	FindEndedConfirmedBookings(ctx context.Context, now time.Time) ([]*models.Booking, error)
}

// Repository is a BookingStore that can run a function atomically.
type Repository interface {
	BookingStore
	WithTx(ctx context.Context, fn func(BookingStore) error) error
	PingContext(ctx context.Context) error
}

// SpaceLocker serialises work on one space across goroutines and processes.
type SpaceLocker interface {
	Lock(ctx context.Context, spaceID int64) (unlock func(), err error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Notifier delivers one booking event to an outside party.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, event *models.BookingEvent) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramService is the part of the Bot API the admin bot drives.
type TelegramService interface {
	TelegramSender
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
}

type NotificationQueue interface {
	CreateNotificationTask(ctx context.Context, task *models.NotificationTask) error
	GetPendingNotificationTasks(ctx context.Context, limit int) ([]models.NotificationTask, error)
	UpdateNotificationTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

type BookingService interface {
	CreateBooking(ctx context.Context, who models.Identity, req *models.Booking) (*models.Booking, error)
	ApproveBooking(ctx context.Context, who models.Identity, id int64) (*models.Booking, error)
	RejectBooking(ctx context.Context, who models.Identity, id int64, reason string) (*models.Booking, error)
	CancelBooking(ctx context.Context, who models.Identity, id int64) (*models.Booking, error)
	CompleteBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetBooking(ctx context.Context, who models.Identity, id int64) (*models.Booking, error)
	ListBookings(ctx context.Context, who models.Identity, filter models.BookingFilter) ([]*models.Booking, error)
	UpcomingBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	PendingNeedingAttention(ctx context.Context) ([]*models.Booking, error)
}

type SpaceService interface {
	ListSpaces(ctx context.Context) ([]*models.Space, error)
	GetSpace(ctx context.Context, id int64) (*models.Space, error)
	CreateSpace(ctx context.Context, who models.Identity, space *models.Space) error
	UpdateSpace(ctx context.Context, who models.Identity, space *models.Space) error
	DeleteSpace(ctx context.Context, who models.Identity, id int64) error
}

type Reconciler interface {
	Reconcile(ctx context.Context, spaceID int64) (models.SpaceStatus, error)
	SweepAll(ctx context.Context, now time.Time) (models.SweepResult, error)
}
