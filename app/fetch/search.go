package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"
)

const DefaultSearchURL = "https://news.google.com/rss/search"

type SearchConfig struct {
	BaseURL   string
	HL        string
	GL        string
	CEID      string
	UserAgent string
	MaxItems  int
	RPS       float64
}

// Search runs a query against a news RSS search endpoint and renders the
// matching items as plain text.
type Search struct {
	client  *http.Client
	parser  *gofeed.Parser
	limiter *rate.Limiter
	config  SearchConfig
}

func NewSearch(client *http.Client, config SearchConfig) *Search {
	if config.BaseURL == "" {
		config.BaseURL = DefaultSearchURL
	}
	if config.MaxItems <= 0 {
		config.MaxItems = 25
	}

	var limiter *rate.Limiter
	if config.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RPS), 1)
	}

	return &Search{
		client:  client,
		parser:  gofeed.NewParser(),
		limiter: limiter,
		config:  config,
	}
}

func (s *Search) Fetch(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("search query is empty")
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.searchURL(query), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.1")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch search results: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("search HTTP error: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	feed, err := s.parser.Parse(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse search results: %w", err)
	}

	slog.Debug("Search results fetched", "query", query, "items", len(feed.Items))

	return s.render(feed.Items), nil
}

func (s *Search) searchURL(query string) string {
	params := url.Values{}
	params.Set("q", query)
	if s.config.HL != "" {
		params.Set("hl", s.config.HL)
	}
	if s.config.GL != "" {
		params.Set("gl", s.config.GL)
	}
	if s.config.CEID != "" {
		params.Set("ceid", s.config.CEID)
	}

	separator := "?"
	if strings.Contains(s.config.BaseURL, "?") {
		separator = "&"
	}
	return s.config.BaseURL + separator + params.Encode()
}

func (s *Search) render(items []*gofeed.Item) string {
	var b strings.Builder

	count := 0
	for _, item := range items {
		if item == nil || strings.TrimSpace(item.Title) == "" {
			continue
		}
		if count >= s.config.MaxItems {
			break
		}
		count++

		fmt.Fprintf(&b, "Title: %s\n", strings.TrimSpace(item.Title))
		if item.Published != "" {
			fmt.Fprintf(&b, "Published: %s\n", strings.TrimSpace(item.Published))
		}
		if item.Link != "" {
			fmt.Fprintf(&b, "Link: %s\n", strings.TrimSpace(item.Link))
		}
		if summary := htmlToText(item.Description); summary != "" {
			fmt.Fprintf(&b, "Summary: %s\n", summary)
		}
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String())
}

// htmlToText strips markup from an HTML fragment.
func htmlToText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
