package fetcher

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	strictMoneyRe = regexp.MustCompile(`^(US\$|CDN\$|R\$|A\$|C\$|CHF|zł|kr|[€£$₽¥₩₺])?\s*(\d[\d.,]*)\s*([€£$₽¥₩₺]|руб|TL|[A-Z]{2,3})?$`)
	looseNumRe    = regexp.MustCompile(`\d[\d.,]*`)
	looseCurRe    = regexp.MustCompile(`(?i)(€|£|\$|₽|¥|₩|₺|CHF|USD|EUR|GBP|TL|руб)`)
	freeRe        = regexp.MustCompile(`(?i)free|kostenlos|gratis`)
)

// ParseMoney extracts an amount and currency from storefront price text
// such as "19,99€", "$4.99" or "1.299,00 ₽". ok is false when no number
// is present.
func ParseMoney(text string) (value float64, currency string, ok bool) {
	s := strings.TrimSpace(strings.ReplaceAll(text, "\u00a0", " "))
	if s == "" {
		return 0, "", false
	}

	var num string
	if m := strictMoneyRe.FindStringSubmatch(s); m != nil {
		num = m[2]
		currency = m[1]
		if currency == "" {
			currency = m[3]
		}
	} else {
		num = looseNumRe.FindString(s)
		currency = looseCurRe.FindString(s)
	}
	if num == "" {
		return 0, "", false
	}

	v, err := strconv.ParseFloat(normalizeNumber(num), 64)
	if err != nil {
		return 0, "", false
	}
	return v, strings.TrimSpace(currency), true
}

// normalizeNumber converts locale-formatted digits to a Go float literal.
// With both separators present the later one is the decimal point. A single
// comma is a decimal comma, repeated commas group thousands.
func normalizeNumber(num string) string {
	comma := strings.LastIndex(num, ",")
	dot := strings.LastIndex(num, ".")
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		num = strings.ReplaceAll(num, ".", "")
		return strings.Replace(num, ",", ".", 1)
	case comma >= 0 && dot >= 0:
		return strings.ReplaceAll(num, ",", "")
	case comma >= 0 && strings.Count(num, ",") > 1:
		return strings.ReplaceAll(num, ",", "")
	case comma >= 0:
		return strings.Replace(num, ",", ".", 1)
	}
	return num
}

// IsFree reports whether the price text denotes a free-to-keep item.
func IsFree(text string) bool {
	return freeRe.MatchString(text)
}
