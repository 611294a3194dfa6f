package notify

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"venuebook/internal/domain"
	"venuebook/internal/events"
	"venuebook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier posts booking events to the admin chats.
type TelegramNotifier struct {
	bot     domain.TelegramSender
	chatIDs []int64
	loc     *time.Location
}

var _ domain.Notifier = (*TelegramNotifier)(nil)

func NewTelegramNotifier(bot domain.TelegramSender, chatIDs []int64, loc *time.Location) *TelegramNotifier {
	if loc == nil {
		loc = time.UTC
	}
	return &TelegramNotifier{bot: bot, chatIDs: chatIDs, loc: loc}
}

// NewBotAPI connects to the Bot API with token.
func NewBotAPI(token string, debug bool) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

func (n *TelegramNotifier) Name() string { return "telegram" }

// Notify sends one message per admin chat and stops at the first failure so
// the worker retries the whole event.
func (n *TelegramNotifier) Notify(ctx context.Context, event *models.BookingEvent) error {
	text := FormatEvent(event, n.loc)
	for _, chatID := range n.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if event.Type == events.EventBookingCreated && event.BookingID > 0 {
			msg.ReplyMarkup = ReviewKeyboard(event.BookingID)
		}
		if _, err := n.bot.Send(msg); err != nil {
			return fmt.Errorf("chat %d: %w", chatID, err)
		}
	}
	return nil
}

// Callback data prefixes understood by the admin bot.
const (
	CallbackApprove = "approve:"
	CallbackReject  = "reject:"
)

// ReviewKeyboard offers approve and reject buttons for a pending booking.
func ReviewKeyboard(bookingID int64) tgbotapi.InlineKeyboardMarkup {
	id := strconv.FormatInt(bookingID, 10)
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", CallbackApprove+id),
			tgbotapi.NewInlineKeyboardButtonData("❌ Reject", CallbackReject+id),
		),
	)
}

var headlines = map[string]string{
	events.EventBookingCreated:   "🆕 New booking request",
	events.EventBookingApproved:  "✅ Booking approved",
	events.EventBookingRejected:  "❌ Booking rejected",
	events.EventBookingCancelled: "🚫 Booking cancelled",
	events.EventBookingCompleted: "🏁 Booking completed",
}

// FormatEvent renders an event as Telegram HTML.
func FormatEvent(event *models.BookingEvent, loc *time.Location) string {
	var sb strings.Builder

	headline, ok := headlines[event.Type]
	if !ok {
		headline = event.Type
	}
	fmt.Fprintf(&sb, "<b>%s</b> #%d\n", html.EscapeString(headline), event.BookingID)
	fmt.Fprintf(&sb, "Space: %s\n", html.EscapeString(event.SpaceName))

	if b := event.Booking; b != nil {
		fmt.Fprintf(&sb, "Event: %s (%s)\n", html.EscapeString(b.EventName), b.EventType)
		fmt.Fprintf(&sb, "When: %s\n", html.EscapeString(FormatWindow(b.Window, loc)))
		fmt.Fprintf(&sb, "Organizer: %s &lt;%s&gt;\n", html.EscapeString(b.OrganizerName), html.EscapeString(b.OrganizerEmail))
		if b.Attendance != nil {
			fmt.Fprintf(&sb, "Attendance: %d\n", *b.Attendance)
		}
	}

	if event.PrevStatus != "" {
		fmt.Fprintf(&sb, "Status: %s → %s\n", event.PrevStatus, event.Status)
	} else {
		fmt.Fprintf(&sb, "Status: %s\n", event.Status)
	}
	if event.Reason != "" {
		fmt.Fprintf(&sb, "Reason: %s\n", html.EscapeString(event.Reason))
	}
	if event.ChangedBy != "" {
		fmt.Fprintf(&sb, "By: %s\n", html.EscapeString(event.ChangedBy))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatWindow renders a window for chat messages.
func FormatWindow(w models.Window, loc *time.Location) string {
	if w.IsFullDay() {
		if w.StartDate.Equal(w.EndDate) {
			return w.StartDate.Format("02.01.2006") + " (full day)"
		}
		return fmt.Sprintf("%s – %s (full days)", w.StartDate.Format("02.01.2006"), w.EndDate.Format("02.01.2006"))
	}
	start, end := w.Start.In(loc), w.End.In(loc)
	if models.Date(start).Equal(models.Date(end)) {
		return fmt.Sprintf("%s %s–%s", start.Format("02.01.2006"), start.Format("15:04"), end.Format("15:04"))
	}
	return fmt.Sprintf("%s – %s", start.Format("02.01.2006 15:04"), end.Format("02.01.2006 15:04"))
}
