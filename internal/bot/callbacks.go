package bot

import (
	"context"
	"strconv"
	"strings"

	"venuebook/internal/notify"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	var chatID int64
	messageID := 0
	if callback.Message != nil {
		chatID = callback.Message.Chat.ID
		messageID = callback.Message.MessageID
	}

	if !b.isAdmin(callback.From.ID, chatID) {
		b.answer(callback.ID, "Not allowed")
		return
	}
	who := identity(callback.From.ID)
	data := callback.Data

	switch {
	case strings.HasPrefix(data, notify.CallbackApprove):
		id, err := strconv.ParseInt(strings.TrimPrefix(data, notify.CallbackApprove), 10, 64)
		if err != nil {
			b.answer(callback.ID, "Bad request")
			return
		}
		b.resolve(callback, chatID, messageID, b.approve(ctx, who, id))

	case strings.HasPrefix(data, notify.CallbackReject):
		id, err := strconv.ParseInt(strings.TrimPrefix(data, notify.CallbackReject), 10, 64)
		if err != nil {
			b.answer(callback.ID, "Bad request")
			return
		}
		b.resolve(callback, chatID, messageID, b.reject(ctx, who, id, "rejected via bot"))

	case strings.HasPrefix(data, callbackPendingPage):
		page, _ := strconv.Atoi(strings.TrimPrefix(data, callbackPendingPage))
		b.answer(callback.ID, "")
		b.showPending(ctx, chatID, messageID, page)

	default:
		b.answer(callback.ID, "")
	}
}

// resolve answers the button press and strips the review buttons from the
// message so nobody presses them twice.
func (b *Bot) resolve(callback *tgbotapi.CallbackQuery, chatID int64, messageID int, result string) {
	b.answer(callback.ID, result)
	if chatID == 0 {
		return
	}
	if messageID != 0 {
		empty := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
		if _, err := b.tg.Request(empty); err != nil {
			b.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to clear review buttons")
		}
	}
	b.sendText(chatID, result)
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.tg.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to answer callback")
	}
}
