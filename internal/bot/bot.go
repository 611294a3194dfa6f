package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"venuebook/internal/domain"
	"venuebook/internal/metrics"
	"venuebook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultPageSize = 5

// BotWrapper adapts *tgbotapi.BotAPI to domain.TelegramService.
type BotWrapper struct {
	*tgbotapi.BotAPI
}

var _ domain.TelegramService = (*BotWrapper)(nil)

func NewBotWrapper(api *tgbotapi.BotAPI) *BotWrapper { return &BotWrapper{BotAPI: api} }

func (w *BotWrapper) GetSelf() tgbotapi.User { return w.Self }

// Bot is the admin console: reviewers approve, reject and inspect bookings
// from the same chats that receive notifications.
type Bot struct {
	tg         domain.TelegramService
	bookings   domain.BookingService
	spaces     domain.SpaceService
	reconciler domain.Reconciler
	admins     map[int64]bool
	loc        *time.Location
	now        func() time.Time
	pageSize   int
	logger     *zerolog.Logger
}

func NewBot(
	tg domain.TelegramService,
	bookings domain.BookingService,
	spaces domain.SpaceService,
	reconciler domain.Reconciler,
	adminIDs []int64,
	loc *time.Location,
	logger *zerolog.Logger,
) *Bot {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &Bot{
		tg:         tg,
		bookings:   bookings,
		spaces:     spaces,
		reconciler: reconciler,
		admins:     admins,
		loc:        loc,
		now:        time.Now,
		pageSize:   defaultPageSize,
		logger:     logger,
	}
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tg.GetUpdatesChan(u)
	b.logger.Info().Str("username", b.tg.GetSelf().UserName).Msg("Admin bot authorized")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			b.tg.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	command := "other"
	defer func() {
		metrics.ObserveBotUpdate(command, time.Since(start).Seconds())
	}()

	// каждое обновление обрабатывается со своим таймаутом и request_id
	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	l := b.logger.With().Str("request_id", uuid.NewString()).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		switch {
		case update.CallbackQuery != nil:
			command = "callback"
			b.handleCallbackQuery(updateCtx, update.CallbackQuery)
		case update.Message != nil && update.Message.From != nil:
			command = update.Message.Command()
			if command == "" {
				command = "text"
			} else {
				command = "/" + command
			}
			b.handleMessage(updateCtx, update.Message)
		}
	})
}

func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

func (b *Bot) isAdmin(userID, chatID int64) bool {
	return b.admins[userID] || (chatID != 0 && b.admins[chatID])
}

// identity maps a Telegram user to the caller the services authorise.
func identity(userID int64) models.Identity {
	return models.Identity{UserID: fmt.Sprintf("tg:%d", userID), Role: models.RoleAdmin}
}

func (b *Bot) sendHTML(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := b.tg.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.tg.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

// errorText turns a service error into a short reply.
func errorText(err error) string {
	var (
		ce *domain.ConflictError
		nf *domain.NotFoundError
	)
	switch {
	case errors.As(err, &ce):
		return fmt.Sprintf("⚠️ Overlaps booking #%d (%s, %s – %s)", ce.Existing.BookingID, ce.Existing.Status, ce.Existing.From, ce.Existing.To)
	case errors.As(err, &nf):
		return "🔍 " + nf.Error()
	case domain.IsInvalidTransition(err), domain.IsValidation(err):
		return "⛔ " + err.Error()
	default:
		return "❗ Something went wrong, see logs"
	}
}
