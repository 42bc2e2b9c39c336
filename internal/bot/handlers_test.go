package bot

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"sale_bot/internal/deals"
	"sale_bot/internal/model"
	"sale_bot/internal/tags"
)

func TestParseIntArg(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		want    int
		wantErr bool
	}{
		{name: "valid", args: "42", want: 42},
		{name: "extra words ignored", args: "  7 percent", want: 7},
		{name: "lower bound", args: "0", want: 0},
		{name: "empty", args: "", wantErr: true},
		{name: "not a number", args: "abc", wantErr: true},
		{name: "above range", args: "100", wantErr: true},
		{name: "below range", args: "-1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIntArg(tt.args, 0, 99)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseIntArg() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParsePriceArg(t *testing.T) {
	tests := []struct {
		args    string
		want    float64
		wantErr bool
	}{
		{args: "19.99", want: 19.99},
		{args: "19,99", want: 19.99},
		{args: "€5", want: 5},
		{args: "0", want: 0},
		{args: "-3", wantErr: true},
		{args: "", wantErr: true},
		{args: "cheap", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.args, func(t *testing.T) {
			got, err := ParsePriceArg(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParsePriceArg() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestFormatListings(t *testing.T) {
	ls := []model.SaleListing{
		{
			Title: "Hades", URL: "https://store.steampowered.com/app/1145360/Hades/",
			PriceOld: ptr(24.5), PriceNew: ptr(9.8), Currency: "€",
			ReviewCount: ptr(254321), ReleaseYear: 2020,
		},
		{Title: "<Unknown>", URL: "https://store.steampowered.com/app/9/", PriceText: "Free to keep"},
	}

	got := FormatListings(ls)
	want := `<a href="https://store.steampowered.com/app/1145360/Hades/">Hades</a> <b>[-60%]</b>` + "\n" +
		"<b>€9.80</b> (60% off) <s>€24.50</s> • 🗳️ 254,321 • 📅 2020\n\n" +
		`<a href="https://store.steampowered.com/app/9/">&lt;Unknown&gt;</a>` + "\n" +
		"On sale • Free to keep"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FormatListings() mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatListingsFitsOneMessage(t *testing.T) {
	long := strings.Repeat("Tom & Jerry ", 120)
	var ls []model.SaleListing
	for range 25 {
		ls = append(ls, model.SaleListing{Title: long, URL: "https://store.steampowered.com/app/1/"})
	}
	got := FormatListings(ls)
	if len(got) > maxMessageLen {
		t.Errorf("message is %d bytes, limit %d", len(got), maxMessageLen)
	}
	if n := strings.Count(got, "<a href="); n != 25 {
		t.Errorf("links = %d, want 25", n)
	}
	requireContains(t, got, "Tom &amp; Jerry")
	requireContains(t, got, "…</a>")

	if diff := cmp.Diff("", FormatListings(nil)); diff != "" {
		t.Errorf("FormatListings(nil) mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatSubscribeResult(t *testing.T) {
	rpg := tags.Tag{ID: 122, Name: "RPG"}
	tests := []struct {
		name string
		res  deals.SubscribeResult
		want []string
	}{
		{
			name: "posted",
			res:  deals.SubscribeResult{Tag: rpg, Created: true, Fetched: 3, Matched: 2, Fresh: 2, Delivered: 2},
			want: []string{"Subscribed RPG (tag 122)", "Posted 2 deal(s)."},
		},
		{
			name: "no specials",
			res:  deals.SubscribeResult{Tag: rpg, Created: true},
			want: []string{"fetched: 0", "currently has no specials"},
		},
		{
			name: "filters too strict",
			res:  deals.SubscribeResult{Tag: rpg, Fetched: 5},
			want: []string{"Already subscribed to RPG", "matched filters: 0", "too strict", "/clearyears"},
		},
		{
			name: "all seen",
			res:  deals.SubscribeResult{Tag: rpg, Fetched: 5, Matched: 4},
			want: []string{"matched filters: 4", "already posted"},
		},
		{
			name: "fetch failed",
			res:  deals.SubscribeResult{Tag: rpg, Created: true, FetchErr: errors.New("503")},
			want: []string{"Couldn't fetch deals"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatSubscribeResult(tt.res)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("missing %q in:\n%s", w, got)
				}
			}
		})
	}
}

func TestFormatUnknownTag(t *testing.T) {
	got := FormatUnknownTag("rogue", []tags.Tag{{ID: 1716, Name: "Roguelike"}, {ID: 3959, Name: "Roguelite"}})
	if diff := cmp.Diff(`Unknown tag "rogue". Did you mean: Roguelike, Roguelite?`, got); diff != "" {
		t.Errorf("FormatUnknownTag() mismatch (-want +got):\n%s", diff)
	}
	got = FormatUnknownTag("zzz", nil)
	if diff := cmp.Diff(`Unknown tag "zzz". Use /tags to search tag names.`, got); diff != "" {
		t.Errorf("FormatUnknownTag() mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatSettings(t *testing.T) {
	tests := []struct {
		name  string
		prefs model.ChannelPreferences
		want  string
	}{
		{
			name:  "defaults",
			prefs: model.ChannelPreferences{},
			want:  "Filters for this chat:\n\nMinimum discount: not set\nMaximum price: not set\nRelease years: any\nMinimum reviews: not set",
		},
		{
			name:  "only max year",
			prefs: model.ChannelPreferences{MinDiscount: 75, MaxPrice: ptr(5.0), MaxYear: ptr(2010), MinReviews: 10000},
			want:  "Filters for this chat:\n\nMinimum discount: 75%\nMaximum price: 5.00\nRelease years: 2010 or earlier\nMinimum reviews: 10,000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, FormatSettings(tt.prefs)); diff != "" {
				t.Errorf("FormatSettings() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatClearResult(t *testing.T) {
	got := FormatClearResult(model.ClearResult{SubCount: 3, ChannelCount: 5}, nil)
	want := "Cleared history for this chat.\n- removed 3 subscription entries\n- removed 5 chat entries\n\nOld deals can show up again."
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FormatClearResult() mismatch (-want +got):\n%s", diff)
	}

	got = FormatClearResult(model.ClearResult{}, &tags.Tag{ID: 122, Name: "RPG"})
	if !strings.HasPrefix(got, "Cleared history for RPG (tag 122) in this chat.") {
		t.Errorf("unexpected reply:\n%s", got)
	}
}

func TestFormatSubList(t *testing.T) {
	if got := FormatSubList(nil); !strings.Contains(got, "no subscriptions") {
		t.Errorf("unexpected empty list reply: %s", got)
	}
	got := FormatSubList([]deals.Listed{
		{Subscription: model.Subscription{TagID: 122}, TagName: "RPG"},
		{Subscription: model.Subscription{TagID: 777}, TagName: "Tag 777"},
	})
	if diff := cmp.Diff("Your subscriptions:\n\nRPG (tag 122)\nTag 777 (tag 777)", got); diff != "" {
		t.Errorf("FormatSubList() mismatch (-want +got):\n%s", diff)
	}
}
