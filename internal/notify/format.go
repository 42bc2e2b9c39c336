package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"sale_bot/internal/filter"
	"sale_bot/internal/model"
)

// Embed is the webhook embed payload.
type Embed struct {
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Color       int             `json:"color,omitempty"`
	Timestamp   string          `json:"timestamp,omitempty"`
	Footer      *EmbedFooter    `json:"footer,omitempty"`
	Thumbnail   *EmbedThumbnail `json:"thumbnail,omitempty"`
}

// EmbedFooter is the footer block of an Embed.
type EmbedFooter struct {
	Text string `json:"text"`
}

// EmbedThumbnail is the thumbnail block of an Embed.
type EmbedThumbnail struct {
	URL string `json:"url"`
}

// EmbedStyle holds the static parts of every rendered embed.
type EmbedStyle struct {
	Title  string
	Color  int
	Footer string
}

// BuildEmbed renders one embed for a whole batch: a linked title with a
// discount badge and a compact price line per listing, blank lines between
// listings, and the first available image as thumbnail.
func BuildEmbed(style EmbedStyle, listings []model.SaleListing, now time.Time) Embed {
	e := Embed{
		Title:     style.Title,
		Color:     style.Color,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	if style.Footer != "" {
		e.Footer = &EmbedFooter{Text: style.Footer}
	}

	var lines []string
	for _, l := range listings {
		badge := ""
		if pct, ok := filter.DiscountPct(l); ok {
			badge = fmt.Sprintf(" **[-%d%%]**", pct)
		}
		lines = append(lines, fmt.Sprintf("[%s](%s)%s", l.Title, l.URL, badge), CompactLine(l), "")
	}
	e.Description = strings.Join(lines, "\n")

	for _, l := range listings {
		if l.ImageURL != "" {
			e.Thumbnail = &EmbedThumbnail{URL: l.ImageURL}
			break
		}
	}
	return e
}

var frontSymbols = map[string]bool{
	"$": true, "€": true, "£": true, "¥": true, "₩": true, "₺": true,
	"R$": true, "A$": true, "C$": true,
}

// FormatMoney renders an amount with its currency. Zero without a currency
// is "FREE". Known symbols lead the number; other codes follow it.
func FormatMoney(value *float64, currency string) string {
	if value == nil {
		return ""
	}
	cur := strings.TrimSpace(currency)
	if *value == 0 && cur == "" {
		return "FREE"
	}
	num := strconv.FormatFloat(*value, 'f', 2, 64)
	switch {
	case frontSymbols[cur]:
		return cur + num
	case cur != "":
		return num + " " + cur
	}
	return num
}

// CompactLine renders "**new** (N% off) ~~old~~ • 🗳️ reviews • 📅 year",
// omitting unknown parts. Without any parsed data it falls back to the raw
// discount and price text.
func CompactLine(l model.SaleListing) string {
	var parts []string
	if p := FormatMoney(l.PriceNew, l.Currency); p != "" {
		parts = append(parts, "**"+p+"**")
	}
	if pct, ok := filter.DiscountPct(l); ok {
		parts = append(parts, fmt.Sprintf("(%d%% off)", pct))
	}
	if l.PriceOld != nil && l.PriceNew != nil && *l.PriceOld > *l.PriceNew {
		parts = append(parts, "~~"+FormatMoney(l.PriceOld, l.Currency)+"~~")
	}

	var meta []string
	if l.ReviewCount != nil {
		meta = append(meta, "🗳️ "+humanize.Comma(int64(*l.ReviewCount)))
	}
	if l.ReleaseYear != 0 {
		meta = append(meta, "📅 "+strconv.Itoa(l.ReleaseYear))
	}
	if len(meta) > 0 {
		parts = append(parts, "• "+strings.Join(meta, " • "))
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}

	discount := l.DiscountText
	if discount == "" {
		discount = "On sale"
	}
	if l.PriceText != "" {
		return discount + " • " + l.PriceText
	}
	return discount
}
