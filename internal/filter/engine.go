// Package filter implements the sale listing matching engine.
package filter

import (
	"sale_bot/internal/fetcher"
	"sale_bot/internal/model"
)

// DiscountPct returns the effective discount of a listing: the parsed
// percentage, else one read from the discount text, else one derived from
// the old and new prices. ok is false when none of them is available.
func DiscountPct(l model.SaleListing) (int, bool) {
	if l.DiscountPct != nil {
		return *l.DiscountPct, true
	}
	if pct, ok := fetcher.PercentFromText(l.DiscountText); ok {
		return pct, true
	}
	return fetcher.PercentFromPrices(l.PriceOld, l.PriceNew)
}

// Match checks whether a listing passes every threshold in prefs.
// Unknown discount and unknown release year pass; an unknown price fails
// only when a max price is set; an unknown review count counts as zero.
func Match(l model.SaleListing, prefs model.ChannelPreferences) bool {
	return PassesMinDiscount(l, prefs.MinDiscount) &&
		PassesMaxPrice(l, prefs.MaxPrice) &&
		PassesYearRange(l, prefs.MinYear, prefs.MaxYear) &&
		PassesMinReviews(l, prefs.MinReviews)
}

// Apply returns the listings that pass prefs, preserving order.
func Apply(listings []model.SaleListing, prefs model.ChannelPreferences) []model.SaleListing {
	out := make([]model.SaleListing, 0, len(listings))
	for _, l := range listings {
		if Match(l, prefs) {
			out = append(out, l)
		}
	}
	return out
}

// PassesMinDiscount is true when the discount is unknown or at least minPct.
func PassesMinDiscount(l model.SaleListing, minPct int) bool {
	if minPct <= 0 {
		return true
	}
	pct, ok := DiscountPct(l)
	if !ok {
		return true
	}
	return pct >= minPct
}

// PassesMaxPrice is true when no limit is set or the known new price is within it.
func PassesMaxPrice(l model.SaleListing, maxPrice *float64) bool {
	if maxPrice == nil {
		return true
	}
	if l.PriceNew == nil {
		return false
	}
	return *l.PriceNew <= *maxPrice
}

// PassesYearRange is true when the release year is unknown or inside the bounds.
func PassesYearRange(l model.SaleListing, minYear, maxYear *int) bool {
	if l.ReleaseYear == 0 {
		return true
	}
	if minYear != nil && l.ReleaseYear < *minYear {
		return false
	}
	if maxYear != nil && l.ReleaseYear > *maxYear {
		return false
	}
	return true
}

// PassesMinReviews is true when the review count reaches minReviews.
func PassesMinReviews(l model.SaleListing, minReviews int) bool {
	if minReviews <= 0 {
		return true
	}
	n := 0
	if l.ReviewCount != nil {
		n = *l.ReviewCount
	}
	return n >= minReviews
}
