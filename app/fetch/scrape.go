package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

const (
	defaultMaxBodyBytes = 5 << 20
	// Below this many characters the readability output is treated as a miss
	// and the whole page body is used instead.
	minReadableLength = 500
)

type ScrapeConfig struct {
	UserAgent    string
	MaxBodyBytes int64
}

// Scrape downloads a page and reduces it to readable text.
type Scrape struct {
	client *http.Client
	config ScrapeConfig
}

func NewScrape(client *http.Client, config ScrapeConfig) *Scrape {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Scrape{
		client: client,
		config: config,
	}
}

func (s *Scrape) Fetch(ctx context.Context, target string) (string, error) {
	pageURL, err := url.Parse(strings.TrimSpace(target))
	if err != nil || !pageURL.IsAbs() {
		return "", fmt.Errorf("invalid page URL: %q", target)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if contentType != "" && !strings.Contains(contentType, "html") {
		return collapseWhitespace(string(data)), nil
	}

	return extractText(data, pageURL), nil
}

func extractText(data []byte, pageURL *url.URL) string {
	if len(bytes.TrimSpace(data)) == 0 {
		return ""
	}

	var title, text string
	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err != nil {
		slog.Debug("Readability extraction failed", "url", pageURL.String(), "error", err)
	} else {
		title = strings.TrimSpace(article.Title)
		text = collapseWhitespace(article.TextContent)
	}

	if len(text) < minReadableLength {
		if body := bodyText(data); len(body) > len(text) {
			text = body
		}
	}

	if title != "" && text != "" && !strings.HasPrefix(text, title) {
		return title + "\n\n" + text
	}
	return text
}

const textBlocks = "h1, h2, h3, h4, h5, h6, p, li, dt, dd, td, address"

func bodyText(data []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return ""
	}

	doc.Find("script, style, noscript, svg, iframe").Remove()

	var blocks []string
	doc.Find("body").Find(textBlocks).Each(func(_ int, sel *goquery.Selection) {
		if sel.Find(textBlocks).Length() > 0 {
			return
		}
		if text := strings.Join(strings.Fields(sel.Text()), " "); text != "" {
			blocks = append(blocks, text)
		}
	})

	if len(blocks) == 0 {
		return collapseWhitespace(doc.Find("body").Text())
	}
	return strings.Join(blocks, "\n")
}
