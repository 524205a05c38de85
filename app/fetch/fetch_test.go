package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/event-comb/app/source"
)

const searchFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>"HR summit" - Google News</title>
<item>
  <title>Annual HR Summit 2025 announced for Berlin</title>
  <link>https://news.example.com/hr-summit</link>
  <pubDate>Mon, 03 Mar 2025 08:00:00 GMT</pubDate>
  <description>&lt;a href="https://news.example.com/hr-summit"&gt;Annual HR Summit&lt;/a&gt; &lt;font&gt;HR Weekly&lt;/font&gt;</description>
</item>
<item>
  <title>People Analytics Forum returns in June</title>
  <link>https://news.example.com/pa-forum</link>
  <pubDate>Tue, 04 Mar 2025 08:00:00 GMT</pubDate>
</item>
</channel>
</rss>`

type backendFunc func(ctx context.Context, target string) (string, error)

func (f backendFunc) Fetch(ctx context.Context, target string) (string, error) {
	return f(ctx, target)
}

func TestRouterDispatchesByMode(t *testing.T) {
	router := NewRouter().
		Register(source.ModeQuery, backendFunc(func(_ context.Context, target string) (string, error) {
			return "query:" + target, nil
		})).
		Register(source.ModeScrape, backendFunc(func(_ context.Context, target string) (string, error) {
			return "scrape:" + target, nil
		}))

	content, err := router.Fetch(context.Background(), source.ModeQuery, "hr summit")
	require.NoError(t, err)
	assert.Equal(t, "query:hr summit", content)

	content, err = router.Fetch(context.Background(), source.ModeScrape, "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "scrape:https://example.com", content)
}

func TestRouterUnsupportedMode(t *testing.T) {
	router := NewRouter().Register(source.ModeQuery, backendFunc(func(context.Context, string) (string, error) {
		return "", nil
	}))

	assert.True(t, router.Supports(source.ModeQuery))
	assert.False(t, router.Supports(source.ModeScrape))

	_, err := router.Fetch(context.Background(), source.ModeScrape, "https://example.com")
	require.ErrorIs(t, err, ErrUnsupportedMode)

	router.Register(source.ModeQuery, nil)
	assert.False(t, router.Supports(source.ModeQuery))
}

func TestRouterWrapsBackendErrors(t *testing.T) {
	router := NewRouter().Register(source.ModeQuery, backendFunc(func(context.Context, string) (string, error) {
		return "", context.DeadlineExceeded
	}))

	_, err := router.Fetch(context.Background(), source.ModeQuery, "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSearchFetch(t *testing.T) {
	var gotQuery, gotHL, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotHL = r.URL.Query().Get("hl")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, searchFeed)
	}))
	defer server.Close()

	search := NewSearch(server.Client(), SearchConfig{
		BaseURL:   server.URL,
		HL:        "en-US",
		UserAgent: "event-comb-test",
	})

	content, err := search.Fetch(context.Background(), "HR summit 2025")
	require.NoError(t, err)

	assert.Equal(t, "HR summit 2025", gotQuery)
	assert.Equal(t, "en-US", gotHL)
	assert.Equal(t, "event-comb-test", gotUA)
	assert.Contains(t, content, "Title: Annual HR Summit 2025 announced for Berlin")
	assert.Contains(t, content, "Link: https://news.example.com/pa-forum")
	assert.Contains(t, content, "Summary: Annual HR Summit HR Weekly")
	assert.NotContains(t, content, "<a href")
}

func TestSearchMaxItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchFeed)
	}))
	defer server.Close()

	search := NewSearch(server.Client(), SearchConfig{BaseURL: server.URL, MaxItems: 1})

	content, err := search.Fetch(context.Background(), "hr")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(content, "Title: "))
}

func TestSearchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusTooManyRequests)
	}))
	defer server.Close()

	search := NewSearch(server.Client(), SearchConfig{BaseURL: server.URL})

	_, err := search.Fetch(context.Background(), "hr")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestSearchEmptyQuery(t *testing.T) {
	search := NewSearch(http.DefaultClient, SearchConfig{})

	_, err := search.Fetch(context.Background(), "   ")
	require.Error(t, err)
}

func TestSearchHonoursDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	search := NewSearch(server.Client(), SearchConfig{BaseURL: server.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := search.Fetch(ctx, "hr")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScrapeFetch(t *testing.T) {
	paragraph := strings.Repeat("The conference brings together HR leaders from across Europe. ", 12)
	page := `<html><head><title>HR Events 2025</title><script>var x = 1;</script></head>
<body>
<nav><a href="/">Home</a></nav>
<article>
<h1>HR Events 2025</h1>
<p>` + paragraph + `</p>
<p>Future of Work Summit, 12 June 2025, Berlin. Register at https://events.example.com/fows</p>
</article>
</body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
	}))
	defer server.Close()

	scrape := NewScrape(server.Client(), ScrapeConfig{UserAgent: "event-comb-test"})

	content, err := scrape.Fetch(context.Background(), server.URL+"/events")
	require.NoError(t, err)

	assert.Contains(t, content, "Future of Work Summit, 12 June 2025, Berlin")
	assert.NotContains(t, content, "var x = 1")
	assert.NotContains(t, content, "<p>")
}

func TestScrapeFallsBackToBodyText(t *testing.T) {
	page := `<html><body>
<ul>
<li>Talent Summit | 3 April 2025 | Munich</li>
<li>Leadership Days | 9 May 2025 | Hamburg</li>
</ul>
</body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page)
	}))
	defer server.Close()

	scrape := NewScrape(server.Client(), ScrapeConfig{})

	content, err := scrape.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, content, "Talent Summit | 3 April 2025 | Munich")
	assert.Contains(t, content, "Leadership Days | 9 May 2025 | Hamburg")
}

func TestScrapeErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	scrape := NewScrape(server.Client(), ScrapeConfig{})

	_, err := scrape.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, err = scrape.Fetch(context.Background(), "not a url")
	require.Error(t, err)
}

func TestCollapseWhitespace(t *testing.T) {
	input := "  Title  \n\n\n   line   one \n\t\nline two  "
	assert.Equal(t, "Title\n\nline one\n\nline two", collapseWhitespace(input))
}
