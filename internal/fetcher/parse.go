package fetcher

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"sale_bot/internal/model"
)

var (
	pctRe   = regexp.MustCompile(`-?\s*(\d{1,3})\s*%`)
	yearRe  = regexp.MustCompile(`(\d{4})`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// ParseResults parses the search results_html fragment into sale listings.
// Rows without a numeric app or bundle id are skipped.
func ParseResults(html string) ([]model.SaleListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("load html: %w", err)
	}

	var listings []model.SaleListing
	doc.Find("a.search_result_row").Each(func(_ int, a *goquery.Selection) {
		if l, ok := parseRow(a); ok {
			listings = append(listings, l)
		}
	})
	return listings, nil
}

func parseRow(a *goquery.Selection) (model.SaleListing, bool) {
	idAttr := a.AttrOr("data-ds-appid", "")
	if idAttr == "" {
		idAttr = a.AttrOr("data-ds-bundleid", "")
	}
	idAttr = strings.TrimSpace(strings.Split(idAttr, ",")[0])
	appID, err := strconv.ParseInt(idAttr, 10, 64)
	if err != nil {
		return model.SaleListing{}, false
	}

	href, _, _ := strings.Cut(a.AttrOr("href", ""), "?")

	discountText := strings.TrimSpace(a.Find(".search_discount span").Text())
	if discountText == "" {
		discountText = strings.TrimSpace(a.Find(".discount_pct").First().Text())
	}

	priceSel := a.Find(".search_price")
	if priceSel.Length() == 0 {
		priceSel = a.Find(".discount_prices")
	}
	rawPrice := collapse(priceSel.Text())

	finalText := strings.TrimSpace(a.Find(".discount_final_price").First().Text())
	if finalText == "" {
		clone := priceSel.Clone()
		clone.Find("strike").Remove()
		finalText = collapse(clone.Text())
	}
	strikeText := strings.TrimSpace(a.Find(".discount_original_price").First().Text())
	if strikeText == "" {
		strikeText = strings.TrimSpace(priceSel.Find("strike").Text())
	}

	l := model.SaleListing{
		AppID:        appID,
		Title:        strings.TrimSpace(a.Find(".title").First().Text()),
		URL:          href,
		DiscountText: discountText,
		PriceText:    rawPrice,
	}

	oldVal, oldCur, oldOK := ParseMoney(strikeText)
	newVal, newCur, newOK := ParseMoney(finalText)
	if oldOK {
		l.PriceOld = &oldVal
	}
	if newOK {
		l.PriceNew = &newVal
	} else if IsFree(finalText) {
		zero := 0.0
		l.PriceNew = &zero
	}
	l.Currency = newCur
	if l.Currency == "" {
		l.Currency = oldCur
	}

	if pct, ok := PercentFromText(discountText); ok {
		l.DiscountPct = &pct
	} else if pct, ok := PercentFromPrices(l.PriceOld, l.PriceNew); ok {
		l.DiscountPct = &pct
	}

	img := a.Find("img").First()
	l.ImageURL = img.AttrOr("src", "")
	if l.ImageURL == "" {
		l.ImageURL = img.AttrOr("data-src", "")
	}

	if m := yearRe.FindStringSubmatch(a.Find(".search_released").Text()); m != nil {
		l.ReleaseYear, _ = strconv.Atoi(m[1])
	}

	if tip, ok := a.Find(".search_review_summary").Attr("data-tooltip-html"); ok {
		if n, ok := ParseReviewCount(tip); ok {
			l.ReviewCount = &n
		}
	}

	return l, true
}

// PercentFromText extracts "-75%" style percentages.
func PercentFromText(text string) (int, bool) {
	m := pctRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// PercentFromPrices derives the discount from an old/new price pair.
func PercentFromPrices(oldP, newP *float64) (int, bool) {
	if oldP == nil || newP == nil || *oldP <= 0 || *newP > *oldP {
		return 0, false
	}
	pct := int((1-*newP / *oldP)*100 + 0.5)
	if pct < 0 || pct > 100 {
		return 0, false
	}
	return pct, true
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
