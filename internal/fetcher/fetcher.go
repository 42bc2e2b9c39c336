// Package fetcher downloads Steam storefront search results and parses them into sale listings.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"sale_bot/internal/model"
)

// SearchURL is the storefront search endpoint used for specials.
const SearchURL = "https://store.steampowered.com/search/results/"

const (
	userAgent    = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124 Safari/537.36"
	gamesOnly    = "998"
	maxBodyBytes = 5 * 1024 * 1024
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads and parses storefront specials.
type Fetcher struct {
	client  HTTPClient
	log     *slog.Logger
	baseURL string
	region  string
	lang    string
}

// New creates a Fetcher with the given HTTP client.
// Timeouts are the client's responsibility.
func New(client HTTPClient, log *slog.Logger) *Fetcher {
	return &Fetcher{
		client:  client,
		log:     log,
		baseURL: SearchURL,
		region:  "DE",
		lang:    "en",
	}
}

// WithLocale sets the storefront country code and language.
func (f *Fetcher) WithLocale(region, lang string) *Fetcher {
	if region != "" {
		f.region = region
	}
	if lang != "" {
		f.lang = lang
	}
	return f
}

// WithBaseURL overrides the search endpoint.
func (f *Fetcher) WithBaseURL(u string) *Fetcher {
	f.baseURL = u
	return f
}

type searchResponse struct {
	Success     int     `json:"success"`
	ResultsHTML *string `json:"results_html"`
	TotalCount  int     `json:"total_count"`
}

// FetchSpecials returns the discounted games carrying the given tag.
// A response without results is an empty list, not an error.
func (f *Fetcher) FetchSpecials(ctx context.Context, tagID int64, start, count int) ([]model.SaleListing, error) {
	q := url.Values{}
	q.Set("query", "")
	q.Set("start", strconv.Itoa(start))
	q.Set("count", strconv.Itoa(count))
	q.Set("specials", "1")
	q.Set("tags", strconv.FormatInt(tagID, 10))
	q.Set("category1", gamesOnly)
	q.Set("l", f.lang)
	q.Set("cc", f.region)
	q.Set("infinite", "1")
	q.Set("ajax", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json,text/html;q=0.9,*/*;q=0.8")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", "https://store.steampowered.com/search/?specials=1")
	req.Header.Set("Accept-Language", f.lang+";q=0.9,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		f.log.Warn("undecodable search response", "tag_id", tagID, "status", resp.StatusCode, "error", err)
		return nil, nil
	}
	if sr.ResultsHTML == nil {
		f.log.Warn("search response without results_html", "tag_id", tagID, "status", resp.StatusCode)
		return nil, nil
	}

	listings, err := ParseResults(*sr.ResultsHTML)
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	return listings, nil
}
