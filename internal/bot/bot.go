// Package bot is the Telegram front end: it turns chat commands into
// subscription operations and delivers queued sales to chats.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"sale_bot/internal/config"
	"sale_bot/internal/deals"
	"sale_bot/internal/model"
)

// pollTimeout is the long-polling wait for updates.
const pollTimeout = 60 * time.Second

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot is the Telegram bot that handles user commands and sends notifications.
type Bot struct {
	api   telegramAPI
	deals *deals.Service
	cfg   *config.Config
	log   *slog.Logger
}

// New creates a Bot with the given Telegram token. The HTTP client allows a
// full long poll plus the delivery timeout; SendListings applies the
// delivery timeout itself.
func New(token string, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	client := &http.Client{Timeout: pollTimeout + cfg.DeliveryTimeout}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Bot{api: api, cfg: cfg, log: log}, nil
}

// SetService attaches the operations behind the commands. The service
// delivers through the Bot, so it is created after it.
func (b *Bot) SetService(svc *deals.Service) {
	b.deals = svc
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(pollTimeout.Seconds())

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				if !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

// SendListings delivers a batch of sales to a chat as one message. An error,
// including a send that outlives ctx or the delivery timeout, means the
// batch should be retried.
func (b *Bot) SendListings(ctx context.Context, channelID string, listings []model.SaleListing) error {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return fmt.Errorf("parse chat id %q: %w", channelID, err)
	}
	if b.cfg.DeliveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.DeliveryTimeout)
		defer cancel()
	}

	msg := tgbotapi.NewMessage(chatID, FormatListings(listings))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	done := make(chan error, 1)
	go func() {
		_, err := b.api.Send(msg)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send listings: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send listings: %w", ctx.Err())
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func origin(msg *tgbotapi.Message) deals.Origin {
	chat := strconv.FormatInt(msg.Chat.ID, 10)
	var user string
	if msg.From != nil {
		user = strconv.FormatInt(msg.From.ID, 10)
	}
	return deals.Origin{GuildID: chat, ChannelID: chat, UserID: user}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID
	o := origin(msg)

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case cmdSubscribe:
		b.handleSubscribe(ctx, o, args)
	case "unsubscribe":
		b.handleUnsubscribe(ctx, o, args)
	case "unsubscribeall":
		b.handleUnsubscribeAll(ctx, o)
	case "list":
		b.handleList(ctx, o)
	case "tags":
		b.handleTags(chatID, args)
	case "setmindiscount":
		b.handleSetMinDiscount(ctx, chatID, args)
	case "setmaxprice":
		b.handleSetMaxPrice(ctx, chatID, args)
	case "clearmaxprice":
		b.handleClearMaxPrice(ctx, chatID)
	case "setminyear":
		b.handleSetYear(ctx, chatID, args, true)
	case "setmaxyear":
		b.handleSetYear(ctx, chatID, args, false)
	case "clearyears":
		b.handleClearYears(ctx, chatID)
	case "setminreviews":
		b.handleSetMinReviews(ctx, chatID, args)
	case "settings":
		b.handleSettings(ctx, chatID)
	case cmdClearHistory:
		b.handleClearHistory(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
