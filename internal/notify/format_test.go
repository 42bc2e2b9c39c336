package notify

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"sale_bot/internal/model"
)

func ptr[T any](v T) *T { return &v }

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		name     string
		value    *float64
		currency string
		want     string
	}{
		{name: "unknown", value: nil, want: ""},
		{name: "free without currency", value: ptr(0.0), want: "FREE"},
		{name: "zero with currency", value: ptr(0.0), currency: "€", want: "€0.00"},
		{name: "leading dollar", value: ptr(4.5), currency: "$", want: "$4.50"},
		{name: "leading real", value: ptr(37.49), currency: "R$", want: "R$37.49"},
		{name: "trailing code", value: ptr(12.0), currency: "CHF", want: "12.00 CHF"},
		{name: "bare number", value: ptr(3.333), want: "3.33"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, FormatMoney(tt.value, tt.currency)); diff != "" {
				t.Errorf("FormatMoney() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompactLine(t *testing.T) {
	tests := []struct {
		name    string
		listing model.SaleListing
		want    string
	}{
		{
			name: "full data",
			listing: model.SaleListing{
				PriceOld: ptr(20.0), PriceNew: ptr(5.0), Currency: "€",
				ReviewCount: ptr(12345), ReleaseYear: 2019,
			},
			want: "**€5.00** (75% off) ~~€20.00~~ • 🗳️ 12,345 • 📅 2019",
		},
		{
			name:    "discount text only",
			listing: model.SaleListing{DiscountText: "-30%"},
			want:    "(30% off)",
		},
		{
			name:    "raw fallback",
			listing: model.SaleListing{PriceText: "Free to Play"},
			want:    "On sale • Free to Play",
		},
		{
			name:    "nothing known",
			listing: model.SaleListing{},
			want:    "On sale",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, CompactLine(tt.listing)); diff != "" {
				t.Errorf("CompactLine() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildEmbed(t *testing.T) {
	now := time.Date(2024, 6, 27, 17, 0, 0, 0, time.UTC)
	ls := []model.SaleListing{
		{Title: "Hades", URL: "https://store.steampowered.com/app/1145360/Hades/", DiscountPct: ptr(60), PriceNew: ptr(9.8), Currency: "€"},
		{Title: "Celeste", URL: "https://store.steampowered.com/app/504230/Celeste/", ImageURL: "https://cdn/celeste.jpg"},
	}

	got := BuildEmbed(EmbedStyle{Title: "Steam Specials", Color: 0x00b0ff, Footer: "Region: DE"}, ls, now)

	want := Embed{
		Title: "Steam Specials",
		Description: "[Hades](https://store.steampowered.com/app/1145360/Hades/) **[-60%]**\n" +
			"**€9.80** (60% off)\n" +
			"\n" +
			"[Celeste](https://store.steampowered.com/app/504230/Celeste/)\n" +
			"On sale\n",
		Color:     0x00b0ff,
		Timestamp: "2024-06-27T17:00:00Z",
		Footer:    &EmbedFooter{Text: "Region: DE"},
		Thumbnail: &EmbedThumbnail{URL: "https://cdn/celeste.jpg"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BuildEmbed() mismatch (-want +got):\n%s", diff)
	}
}
