package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"sale_bot/internal/deals"
	"sale_bot/internal/filter"
	"sale_bot/internal/model"
	"sale_bot/internal/notify"
	"sale_bot/internal/tags"
)

// maxMessageLen stays below Telegram's 4096 character limit.
const maxMessageLen = 4000

// FormatListings renders a batch as a single HTML message, one block per
// listing. Titles are shortened so the message stays within maxMessageLen.
func FormatListings(listings []model.SaleListing) string {
	if len(listings) == 0 {
		return ""
	}
	budget := maxMessageLen/len(listings) - 1
	blocks := make([]string, 0, len(listings))
	for _, l := range listings {
		blocks = append(blocks, fitListing(l, budget))
	}
	return strings.TrimSpace(strings.Join(blocks, "\n"))
}

// fitListing renders l in at most budget bytes when a shortened title
// allows it. Without any room for the title the link is dropped too.
func fitListing(l model.SaleListing, budget int) string {
	block := formatListing(l, l.Title, true)
	if len(block) <= budget {
		return block
	}
	room := budget - len(formatListing(l, "", true)) - len("…")
	title := []rune(l.Title)
	for n := min(len(title), room); n > 0; n-- {
		short := shorten(title, n)
		if len(html.EscapeString(short)) <= room+len("…") {
			return formatListing(l, short, true)
		}
	}
	return formatListing(l, "", false)
}

func shorten(title []rune, n int) string {
	if n <= 0 {
		return ""
	}
	if n >= len(title) {
		return string(title)
	}
	return string(title[:n]) + "…"
}

func formatListing(l model.SaleListing, title string, link bool) string {
	var b strings.Builder
	pct, hasPct := filter.DiscountPct(l)
	if link {
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, html.EscapeString(l.URL), html.EscapeString(title))
		if hasPct {
			fmt.Fprintf(&b, " <b>[-%d%%]</b>", pct)
		}
		b.WriteString("\n")
	}

	var parts []string
	if p := notify.FormatMoney(l.PriceNew, l.Currency); p != "" {
		parts = append(parts, "<b>"+html.EscapeString(p)+"</b>")
	}
	if hasPct {
		parts = append(parts, fmt.Sprintf("(%d%% off)", pct))
	}
	if l.PriceOld != nil && l.PriceNew != nil && *l.PriceOld > *l.PriceNew {
		parts = append(parts, "<s>"+html.EscapeString(notify.FormatMoney(l.PriceOld, l.Currency))+"</s>")
	}
	if l.ReviewCount != nil {
		parts = append(parts, "• 🗳️ "+formatCount(*l.ReviewCount))
	}
	if l.ReleaseYear != 0 {
		parts = append(parts, "• 📅 "+strconv.Itoa(l.ReleaseYear))
	}
	if len(parts) == 0 {
		parts = append(parts, html.EscapeString(fallbackLine(l)))
	}
	b.WriteString(strings.Join(parts, " "))
	b.WriteString("\n")
	return b.String()
}

func fallbackLine(l model.SaleListing) string {
	discount := l.DiscountText
	if discount == "" {
		discount = "On sale"
	}
	if l.PriceText != "" {
		return discount + " • " + l.PriceText
	}
	return discount
}

func formatCount(n int) string {
	return humanize.Comma(int64(n))
}

// FormatSubscribeResult explains the outcome of /subscribe, including why
// nothing was posted.
func FormatSubscribeResult(res deals.SubscribeResult) string {
	var b strings.Builder
	verb := "Subscribed"
	if !res.Created {
		verb = "Already subscribed to"
	}
	fmt.Fprintf(&b, "%s %s (tag %d) in this chat.", verb, res.Tag.Name, res.Tag.ID)

	switch {
	case res.FetchErr != nil:
		b.WriteString("\nCouldn't fetch deals right now (Steam may be throttling). I'll try again on the next cycle.")
	case res.Delivered > 0:
		fmt.Fprintf(&b, "\nPosted %d deal(s).", res.Delivered)
	case res.Fresh > 0:
		fmt.Fprintf(&b, "\n%d deal(s) queued, they will be posted shortly.", res.Fresh)
	default:
		fmt.Fprintf(&b, "\nNo new deals to post right now.\n- fetched: %d\n- matched filters: %d\n- new (not posted before): 0\n",
			res.Fetched, res.Matched)
		switch {
		case res.Fetched == 0:
			b.WriteString("\nThis tag currently has no specials. I'll post when Steam updates.")
		case res.Matched == 0:
			b.WriteString("\nYour filters are likely too strict. Try:\n" +
				"/setmindiscount to lower the percentage\n" +
				"/setmaxprice or /clearmaxprice\n" +
				"/setminreviews to lower the minimum\n" +
				"/clearyears if the year limits are too tight")
		default:
			b.WriteString("\nEverything that matched your filters was already posted. New deals will appear as Steam rotates specials.")
		}
	}
	return b.String()
}

// FormatUnknownTag reports an unresolvable tag with suggestions.
func FormatUnknownTag(query string, suggestions []tags.Tag) string {
	msg := fmt.Sprintf("Unknown tag %q.", query)
	if len(suggestions) == 0 {
		return msg + " Use /tags to search tag names."
	}
	names := make([]string, len(suggestions))
	for i, t := range suggestions {
		names[i] = t.Name
	}
	return msg + " Did you mean: " + strings.Join(names, ", ") + "?"
}

// FormatSubList formats the user's subscriptions.
func FormatSubList(listed []deals.Listed) string {
	if len(listed) == 0 {
		return "You have no subscriptions in this chat. Use /subscribe <tag> to add one."
	}
	var b strings.Builder
	b.WriteString("Your subscriptions:\n")
	for _, l := range listed {
		fmt.Fprintf(&b, "\n%s (tag %d)", l.TagName, l.Subscription.TagID)
	}
	return b.String()
}

// FormatTagList formats tag search results.
func FormatTagList(query string, found []tags.Tag) string {
	if len(found) == 0 {
		return fmt.Sprintf("No tags match %q.", query)
	}
	var b strings.Builder
	b.WriteString("Tags:\n")
	for _, t := range found {
		fmt.Fprintf(&b, "\n%s (%d)", t.Name, t.ID)
	}
	return b.String()
}

// FormatSettings formats the chat's filters.
func FormatSettings(p model.ChannelPreferences) string {
	var b strings.Builder
	b.WriteString("Filters for this chat:\n")
	if p.MinDiscount > 0 {
		fmt.Fprintf(&b, "\nMinimum discount: %d%%", p.MinDiscount)
	} else {
		b.WriteString("\nMinimum discount: not set")
	}
	if p.MaxPrice != nil {
		fmt.Fprintf(&b, "\nMaximum price: %.2f", *p.MaxPrice)
	} else {
		b.WriteString("\nMaximum price: not set")
	}
	fmt.Fprintf(&b, "\nRelease years: %s", yearRange(p.MinYear, p.MaxYear))
	if p.MinReviews > 0 {
		fmt.Fprintf(&b, "\nMinimum reviews: %s", formatCount(p.MinReviews))
	} else {
		b.WriteString("\nMinimum reviews: not set")
	}
	return b.String()
}

func yearRange(lo, hi *int) string {
	switch {
	case lo != nil && hi != nil:
		return fmt.Sprintf("%d to %d", *lo, *hi)
	case lo != nil:
		return fmt.Sprintf("%d or later", *lo)
	case hi != nil:
		return fmt.Sprintf("%d or earlier", *hi)
	}
	return "any"
}

// FormatClearResult reports a history clear.
func FormatClearResult(res model.ClearResult, tag *tags.Tag) string {
	what := "this chat"
	again := "Old deals can show up again."
	if tag != nil {
		what = fmt.Sprintf("%s (tag %d) in this chat", tag.Name, tag.ID)
		again = "Old deals for that tag can show up again."
	}
	return fmt.Sprintf("Cleared history for %s.\n- removed %d subscription entries\n- removed %d chat entries\n\n%s",
		what, res.SubCount, res.ChannelCount, again)
}
