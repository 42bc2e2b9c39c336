package bot

import (
	"fmt"
	"strconv"
	"strings"

	"sale_bot/internal/fetcher"
)

// ParseIntArg parses a single integer argument within [lo, hi].
func ParseIntArg(args string, lo, hi int) (int, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("value is required")
	}
	n, err := strconv.Atoi(strings.Fields(s)[0])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("value must be between %d and %d", lo, hi)
	}
	return n, nil
}

// ParsePriceArg parses a non-negative price. Both "19.99" and "19,99"
// are accepted, with or without a currency symbol.
func ParsePriceArg(args string) (float64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("price is required")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("price must not be negative")
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	v, _, ok := fetcher.ParseMoney(s)
	if !ok {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	return v, nil
}
