package fetcher

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reviewWordRe = regexp.MustCompile(`(?i)(\d[\d.,\s]*?)\s+(?:user\s+)?(?:reviews?|nutzerrezensionen|bewertungen|avis|évaluations|reseñas|recensioni|recensies|recenzí|recenzji|análises|отзыв\S*|обзор\S*)`)
	numberTokenRe = regexp.MustCompile(`\d[\d.,]*`)
	nonDigitRe    = regexp.MustCompile(`\D`)
)

// ParseReviewCount extracts the review total from a search row tooltip
// such as "Very Positive<br>92% of the 12,345 user reviews for this game
// are positive." The number next to a localized "reviews" word wins;
// otherwise the last number in the text is used.
func ParseReviewCount(tooltip string) (int, bool) {
	if tooltip == "" {
		return 0, false
	}

	var raw string
	if m := reviewWordRe.FindStringSubmatch(tooltip); m != nil {
		raw = m[1]
	} else {
		tokens := numberTokenRe.FindAllString(tooltip, -1)
		if len(tokens) == 0 {
			return 0, false
		}
		raw = tokens[len(tokens)-1]
	}

	digits := nonDigitRe.ReplaceAllString(strings.TrimSpace(raw), "")
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}
