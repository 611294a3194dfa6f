package bot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"venuebook/internal/models"
	"venuebook/internal/notify"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const helpText = `Venue booking admin
/pending - pending requests
/attention - pending requests starting within 24h
/spaces - spaces and their status
/booking <id> - booking details
/approve <id> - confirm a request
/reject <id> [reason] - reject a request
/cancel <id> - cancel a booking
/sweep - complete ended bookings and free spaces`

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	l := zerolog.Ctx(ctx)

	l.Debug().
		Int64("user_id", userID).
		Str("username", msg.From.UserName).
		Str("text", msg.Text).
		Msg("Handling message")

	if !b.isAdmin(userID, chatID) {
		b.sendText(chatID, "This bot is for venue administrators only.")
		return
	}
	if !msg.IsCommand() {
		b.sendText(chatID, helpText)
		return
	}

	who := identity(userID)
	args := strings.Fields(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		b.sendText(chatID, helpText)
	case "pending":
		page := 0
		if len(args) > 0 {
			if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
				page = n - 1
			}
		}
		b.showPending(ctx, chatID, 0, page)
	case "attention":
		b.showAttention(ctx, chatID)
	case "spaces":
		b.showSpaces(ctx, chatID)
	case "booking":
		if id, ok := b.bookingArg(chatID, args); ok {
			b.showBooking(ctx, who, chatID, id)
		}
	case "approve":
		if id, ok := b.bookingArg(chatID, args); ok {
			b.sendText(chatID, b.approve(ctx, who, id))
		}
	case "reject":
		if id, ok := b.bookingArg(chatID, args); ok {
			b.sendText(chatID, b.reject(ctx, who, id, strings.Join(args[1:], " ")))
		}
	case "cancel":
		if id, ok := b.bookingArg(chatID, args); ok {
			booking, err := b.bookings.CancelBooking(ctx, who, id)
			if err != nil {
				b.sendText(chatID, errorText(err))
				return
			}
			b.sendText(chatID, fmt.Sprintf("🚫 Booking #%d cancelled", booking.ID))
		}
	case "sweep":
		res, err := b.reconciler.SweepAll(ctx, b.now())
		if err != nil {
			l.Error().Err(err).Msg("sweep from bot failed")
			b.sendText(chatID, errorText(err))
			return
		}
		b.sendText(chatID, fmt.Sprintf("🧹 Completed: %d, freed: %d, failed: %d", res.Completed, res.Freed, res.Failed))
	default:
		b.sendText(chatID, "Unknown command.\n\n"+helpText)
	}
}

func (b *Bot) bookingArg(chatID int64, args []string) (int64, bool) {
	if len(args) == 0 {
		b.sendText(chatID, "Booking id is required, e.g. /booking 42")
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		b.sendText(chatID, fmt.Sprintf("%q is not a booking id", args[0]))
		return 0, false
	}
	return id, true
}

func (b *Bot) approve(ctx context.Context, who models.Identity, id int64) string {
	booking, err := b.bookings.ApproveBooking(ctx, who, id)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("booking_id", id).Msg("approve from bot failed")
		return errorText(err)
	}
	return fmt.Sprintf("✅ Booking #%d approved: %s", booking.ID, booking.EventName)
}

func (b *Bot) reject(ctx context.Context, who models.Identity, id int64, reason string) string {
	booking, err := b.bookings.RejectBooking(ctx, who, id, strings.TrimSpace(reason))
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("booking_id", id).Msg("reject from bot failed")
		return errorText(err)
	}
	return fmt.Sprintf("❌ Booking #%d rejected: %s", booking.ID, booking.EventName)
}

func (b *Bot) showBooking(ctx context.Context, who models.Identity, chatID, id int64) {
	booking, err := b.bookings.GetBooking(ctx, who, id)
	if err != nil {
		b.sendText(chatID, errorText(err))
		return
	}
	var markup *tgbotapi.InlineKeyboardMarkup
	if booking.Status == models.StatusPending {
		kb := notify.ReviewKeyboard(booking.ID)
		markup = &kb
	}
	b.sendHTML(chatID, b.formatBooking(booking), markup)
}

func (b *Bot) showAttention(ctx context.Context, chatID int64) {
	bookings, err := b.bookings.PendingNeedingAttention(ctx)
	if err != nil {
		b.sendText(chatID, errorText(err))
		return
	}
	if len(bookings) == 0 {
		b.sendText(chatID, "Nothing pending within the next 24 hours.")
		return
	}
	for _, booking := range bookings {
		kb := notify.ReviewKeyboard(booking.ID)
		b.sendHTML(chatID, "⏰ <b>Starts soon</b>\n"+b.formatBooking(booking), &kb)
	}
}

func (b *Bot) showSpaces(ctx context.Context, chatID int64) {
	spaces, err := b.spaces.ListSpaces(ctx)
	if err != nil {
		b.sendText(chatID, errorText(err))
		return
	}
	if len(spaces) == 0 {
		b.sendText(chatID, "No spaces configured.")
		return
	}
	var sb strings.Builder
	sb.WriteString("<b>Spaces</b>\n\n")
	for _, s := range spaces {
		icon := "🟢"
		if s.Status == models.SpaceBooked {
			icon = "🔴"
		}
		fmt.Fprintf(&sb, "%s %s (#%d), up to %d people\n", icon, html.EscapeString(s.Name), s.ID, s.Capacity)
	}
	b.sendHTML(chatID, strings.TrimRight(sb.String(), "\n"), nil)
}

func (b *Bot) formatBooking(booking *models.Booking) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>#%d %s</b>\n", booking.ID, html.EscapeString(booking.EventName))
	space := booking.SpaceName
	if space == "" {
		space = fmt.Sprintf("space #%d", booking.SpaceID)
	}
	fmt.Fprintf(&sb, "Space: %s\n", html.EscapeString(space))
	fmt.Fprintf(&sb, "When: %s\n", html.EscapeString(notify.FormatWindow(booking.Window, b.loc)))
	fmt.Fprintf(&sb, "Organizer: %s &lt;%s&gt;\n", html.EscapeString(booking.OrganizerName), html.EscapeString(booking.OrganizerEmail))
	if booking.Attendance != nil {
		fmt.Fprintf(&sb, "Attendance: %d\n", *booking.Attendance)
	}
	fmt.Fprintf(&sb, "Type: %s\nStatus: %s", booking.EventType, booking.Status)
	return sb.String()
}
