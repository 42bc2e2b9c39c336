package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"sale_bot/internal/deals"
	"sale_bot/internal/model"
	"sale_bot/internal/tags"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Steam Sale Bot!

Subscribe this chat to Steam tags and get the specials posted here.

Quick start:
1. /subscribe <tag> — e.g. /subscribe Roguelike
2. /setmindiscount <percent> — only post bigger discounts
3. /settings — show the filters of this chat

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Subscriptions:
/subscribe <tag or id> — post specials for a tag in this chat
/unsubscribe <tag or id> — stop a subscription
/unsubscribeall — remove all your subscriptions in this chat
/list — show your subscriptions
/tags [query] — search tag names

Filters (per chat):
/setmindiscount <0-99> — minimum discount in percent
/setmaxprice <price> — maximum final price
/clearmaxprice — remove the price cap
/setminyear <year> — oldest release year
/setmaxyear <year> — newest release year
/clearyears — remove both year limits
/setminreviews <count> — minimum number of reviews
/settings — show the current filters

History:
/clearhistory [tag] — allow already posted deals to be posted again`)
}

func (b *Bot) replyTagError(chatID int64, query string, err error) {
	if !errors.Is(err, tags.ErrUnknownTag) {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatUnknownTag(query, b.deals.Catalog().Search(query, 5)))
}

func (b *Bot) handleSubscribe(ctx context.Context, o deals.Origin, args string) {
	chatID := chatIDOf(o)
	if args == "" {
		b.reply(chatID, "Usage: /subscribe <tag or id>")
		return
	}

	res, err := b.deals.Subscribe(ctx, o, args)
	if err != nil {
		b.replyTagError(chatID, args, err)
		return
	}
	b.reply(chatID, FormatSubscribeResult(res))
}

func (b *Bot) handleUnsubscribe(ctx context.Context, o deals.Origin, args string) {
	chatID := chatIDOf(o)
	if args == "" {
		b.reply(chatID, "Usage: /unsubscribe <tag or id>")
		return
	}

	tag, ok, err := b.deals.Unsubscribe(ctx, o, args)
	if err != nil {
		b.replyTagError(chatID, args, err)
		return
	}
	if !ok {
		b.reply(chatID, fmt.Sprintf("You are not subscribed to %s (tag %d) in this chat.", tag.Name, tag.ID))
		return
	}
	b.reply(chatID, fmt.Sprintf("Unsubscribed %s (tag %d) in this chat.", tag.Name, tag.ID))
}

func (b *Bot) handleUnsubscribeAll(ctx context.Context, o deals.Origin) {
	chatID := chatIDOf(o)
	n, err := b.deals.UnsubscribeAll(ctx, o)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if n == 0 {
		b.reply(chatID, "You have no subscriptions in this chat.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Removed %d subscription(s) in this chat.", n))
}

func (b *Bot) handleList(ctx context.Context, o deals.Origin) {
	chatID := chatIDOf(o)
	listed, err := b.deals.List(ctx, o)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	msg := tgbotapi.NewMessage(chatID, FormatSubList(listed))
	if len(listed) > 0 {
		var rows [][]tgbotapi.InlineKeyboardButton
		for _, l := range listed {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Unsubscribe "+l.TagName, fmt.Sprintf("%s:%d", cbUnsubscribe, l.Subscription.TagID)),
			))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send subscription list", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleTags(chatID int64, args string) {
	b.reply(chatID, FormatTagList(args, b.deals.Catalog().Search(args, 20)))
}

func (b *Bot) setPreferences(ctx context.Context, chatID int64, patch model.PreferencesPatch, done string) {
	if _, err := b.deals.SetPreferences(ctx, strconv.FormatInt(chatID, 10), patch); err != nil {
		if errors.Is(err, deals.ErrInvalidValue) {
			b.reply(chatID, err.Error())
			return
		}
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, done)
}

func (b *Bot) handleSetMinDiscount(ctx context.Context, chatID int64, args string) {
	pct, err := ParseIntArg(args, 0, 99)
	if err != nil {
		b.reply(chatID, "Usage: /setmindiscount <0-99>")
		return
	}
	b.setPreferences(ctx, chatID, model.PreferencesPatch{MinDiscount: model.Set(pct)},
		fmt.Sprintf("Minimum discount set to %d%% for this chat.", pct))
}

func (b *Bot) handleSetMaxPrice(ctx context.Context, chatID int64, args string) {
	price, err := ParsePriceArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /setmaxprice <price>, e.g. /setmaxprice 19.99")
		return
	}
	b.setPreferences(ctx, chatID, model.PreferencesPatch{MaxPrice: model.Set(price)},
		fmt.Sprintf("Maximum price set to %.2f for this chat.", price))
}

func (b *Bot) handleClearMaxPrice(ctx context.Context, chatID int64) {
	b.setPreferences(ctx, chatID, model.PreferencesPatch{MaxPrice: model.Clear[float64]()},
		"Maximum price cleared for this chat.")
}

func (b *Bot) handleSetYear(ctx context.Context, chatID int64, args string, minimum bool) {
	year, err := ParseIntArg(args, 1970, 2100)
	if err != nil {
		if minimum {
			b.reply(chatID, "Usage: /setminyear <year>")
		} else {
			b.reply(chatID, "Usage: /setmaxyear <year>")
		}
		return
	}
	if minimum {
		b.setPreferences(ctx, chatID, model.PreferencesPatch{MinYear: model.Set(year)},
			fmt.Sprintf("Only games released in %d or later will be posted in this chat.", year))
		return
	}
	b.setPreferences(ctx, chatID, model.PreferencesPatch{MaxYear: model.Set(year)},
		fmt.Sprintf("Only games released in %d or earlier will be posted in this chat.", year))
}

func (b *Bot) handleClearYears(ctx context.Context, chatID int64) {
	b.setPreferences(ctx, chatID, model.PreferencesPatch{MinYear: model.Clear[int](), MaxYear: model.Clear[int]()},
		"Release year limits cleared for this chat.")
}

func (b *Bot) handleSetMinReviews(ctx context.Context, chatID int64, args string) {
	n, err := ParseIntArg(args, 0, 1<<31-1)
	if err != nil {
		b.reply(chatID, "Usage: /setminreviews <count>")
		return
	}
	b.setPreferences(ctx, chatID, model.PreferencesPatch{MinReviews: model.Set(n)},
		fmt.Sprintf("Minimum review count set to %s for this chat.", formatCount(n)))
}

func (b *Bot) handleSettings(ctx context.Context, chatID int64) {
	prefs, err := b.deals.Settings(ctx, strconv.FormatInt(chatID, 10))
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatSettings(prefs))
}

// handleClearHistory asks for confirmation; the callback does the clearing.
func (b *Bot) handleClearHistory(_ context.Context, chatID int64, args string) {
	data := cbClearHistory + ":all"
	question := "Clear the posting history of this chat? Deals posted before can show up again."
	if args != "" {
		tag, err := b.deals.Catalog().Resolve(args)
		if err != nil {
			b.replyTagError(chatID, args, err)
			return
		}
		data = fmt.Sprintf("%s:%d", cbClearHistory, tag.ID)
		question = fmt.Sprintf("Clear the posting history of %s (tag %d) in this chat? Deals posted before can show up again.", tag.Name, tag.ID)
	}

	msg := tgbotapi.NewMessage(chatID, question)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Yes, clear", data),
			tgbotapi.NewInlineKeyboardButtonData("Cancel", "noop:0"),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send clear history confirmation", "error", err)
	}
}

func (b *Bot) clearHistory(ctx context.Context, chatID int64, tagQuery string) {
	res, tag, err := b.deals.ClearHistory(ctx, strconv.FormatInt(chatID, 10), tagQuery)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatClearResult(res, tag))
}

func chatIDOf(o deals.Origin) int64 {
	id, _ := strconv.ParseInt(o.ChannelID, 10, 64)
	return id
}
