package bot

import (
	"context"
	"fmt"
	"strings"

	"venuebook/internal/models"
	"venuebook/internal/notify"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const callbackPendingPage = "pending_page:"

// renderPage slices total rows into pages and adds navigation buttons that
// carry pagePrefix plus the target page.
func renderPage(title string, page, total, perPage int, pagePrefix string,
	renderer func(start, end int) (string, [][]tgbotapi.InlineKeyboardButton),
) (string, tgbotapi.InlineKeyboardMarkup) {
	totalPages := (total + perPage - 1) / perPage
	if page >= totalPages && totalPages > 0 {
		page = totalPages - 1
	}
	if page < 0 {
		page = 0
	}
	start := page * perPage
	end := start + perPage
	if end > total {
		end = total
	}

	content, keyboard := renderer(start, end)

	var text strings.Builder
	text.WriteString(title)
	if totalPages > 1 {
		fmt.Fprintf(&text, " (page %d of %d)", page+1, totalPages)
	}
	text.WriteString("\n\n")
	text.WriteString(content)

	var nav []tgbotapi.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", fmt.Sprintf("%s%d", pagePrefix, page-1)))
	}
	if end < total {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Next ➡️", fmt.Sprintf("%s%d", pagePrefix, page+1)))
	}
	if len(nav) > 0 {
		keyboard = append(keyboard, nav)
	}
	return strings.TrimRight(text.String(), "\n"), tgbotapi.InlineKeyboardMarkup{InlineKeyboard: keyboard}
}

// showPending sends the page as a new message, or edits messageID in place.
func (b *Bot) showPending(ctx context.Context, chatID int64, messageID, page int) {
	bookings, err := b.bookings.UpcomingBookings(ctx, models.BookingFilter{
		Statuses: []models.BookingStatus{models.StatusPending},
	})
	if err != nil {
		b.sendText(chatID, errorText(err))
		return
	}
	if len(bookings) == 0 {
		b.sendText(chatID, "No pending requests 🎉")
		return
	}

	text, markup := renderPage("<b>Pending requests</b>", page, len(bookings), b.pageSize, callbackPendingPage,
		func(start, end int) (string, [][]tgbotapi.InlineKeyboardButton) {
			var sb strings.Builder
			var rows [][]tgbotapi.InlineKeyboardButton
			for _, booking := range bookings[start:end] {
				sb.WriteString(b.formatBooking(booking))
				sb.WriteString("\n\n")
				rows = append(rows, notify.ReviewKeyboard(booking.ID).InlineKeyboard[0])
			}
			return sb.String(), rows
		})

	if messageID != 0 {
		edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, markup)
		edit.ParseMode = tgbotapi.ModeHTML
		if _, err := b.tg.Send(edit); err != nil {
			b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to edit pending page")
		}
		return
	}
	b.sendHTML(chatID, text, &markup)
}
