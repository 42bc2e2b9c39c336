package bot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"sale_bot/internal/deals"
)

const (
	cmdSubscribe    = "subscribe"
	cmdClearHistory = "clearhistory"

	cbUnsubscribe  = "unsub"
	cbClearHistory = "clear"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	data := cb.Data
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, arg, ok := strings.Cut(data, ":")
	if !ok {
		return
	}

	var user tgbotapi.User
	if cb.From != nil {
		user = *cb.From
	}
	b.log.Info("callback",
		"action", action,
		"arg", arg,
		"chat_id", chatID,
		"user_id", user.ID,
		"username", user.UserName,
	)

	chat := strconv.FormatInt(chatID, 10)
	switch action {
	case cbUnsubscribe:
		o := deals.Origin{GuildID: chat, ChannelID: chat, UserID: strconv.FormatInt(user.ID, 10)}
		b.handleUnsubscribe(ctx, o, arg)
	case cbClearHistory:
		if arg == "all" {
			arg = ""
		}
		b.clearHistory(ctx, chatID, arg)
	}
}
