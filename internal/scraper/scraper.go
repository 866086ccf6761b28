// Package scraper fetches single web pages for ingestion.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/leadai/leadai-rag/internal/parser"
)

// Config holds scraper configuration.
type Config struct {
	UserAgent        string
	Timeout          time.Duration
	MaxBodyBytes     int
	TryMarkdownFirst bool // Try to fetch markdown version of pages
}

// Page is one fetched web resource.
type Page struct {
	URL         string
	ContentType string
	Body        []byte
	FetchedAt   time.Time
}

// Scraper fetches web pages and returns their content.
type Scraper struct {
	config     Config
	httpClient *http.Client
}

// New creates a new Scraper with the given configuration.
func New(config Config) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "leadai-rag/1.0"
	}
	return &Scraper{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Fetch retrieves one URL without following links. A markdown variant of the
// page is preferred when TryMarkdownFirst is set and one exists.
func (s *Scraper) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	if _, err := url.ParseRequestURI(pageURL); err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", pageURL, err)
	}

	if s.config.TryMarkdownFirst {
		if page, ok := s.tryMarkdownVariants(ctx, pageURL); ok {
			slog.Debug("using markdown variant", "url", pageURL, "variant", page.URL)
			return page, nil
		}
	}

	opts := []colly.CollectorOption{
		colly.MaxDepth(1),
		colly.UserAgent(s.config.UserAgent),
	}
	if s.config.MaxBodyBytes > 0 {
		opts = append(opts, colly.MaxBodySize(s.config.MaxBodyBytes))
	}
	c := colly.NewCollector(opts...)
	c.SetRequestTimeout(s.config.Timeout)

	var page *Page
	var fetchErr error

	// Check for cancellation before the request
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			slog.Debug("fetch cancelled", "url", r.URL.String())
			r.Abort()
		}
	})

	c.OnResponse(func(r *colly.Response) {
		page = &Page{
			URL:         r.Request.URL.String(),
			ContentType: r.Headers.Get("Content-Type"),
			Body:        r.Body,
			FetchedAt:   time.Now(),
		}
		slog.Debug("fetched page", "url", page.URL, "content_type", page.ContentType, "size", len(page.Body))
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("fetch %s: status %d: %w", pageURL, r.StatusCode, err)
			return
		}
		fetchErr = fmt.Errorf("fetch %s: %w", pageURL, err)
	})

	err := c.Visit(pageURL)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	if page == nil {
		return nil, errors.New("fetch " + pageURL + ": no response")
	}
	return page, nil
}

// markdownVariants returns potential markdown versions of a URL.
func markdownVariants(pageURL string) []string {
	// GitHub blob → raw conversion (even if already .md, we want the raw URL)
	if strings.Contains(pageURL, "github.com") && strings.Contains(pageURL, "/blob/") {
		raw := strings.Replace(pageURL, "github.com", "raw.githubusercontent.com", 1)
		return []string{strings.Replace(raw, "/blob/", "/", 1)}
	}

	switch parser.Extension(pageURL) {
	case ".md", ".markdown":
		return nil
	}
	return []string{strings.TrimSuffix(pageURL, "/") + ".md"}
}

// tryMarkdownVariants attempts to fetch markdown versions of the URL.
func (s *Scraper) tryMarkdownVariants(ctx context.Context, pageURL string) (*Page, bool) {
	for _, variantURL := range markdownVariants(pageURL) {
		if ctx.Err() != nil {
			return nil, false
		}
		if page, ok := s.tryFetchMarkdown(ctx, variantURL); ok {
			return page, true
		}
	}
	return nil, false
}

// tryFetchMarkdown attempts to fetch a single markdown URL.
func (s *Scraper) tryFetchMarkdown(ctx context.Context, variantURL string) (*Page, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, variantURL, nil)
	if err != nil {
		return nil, false
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false
	}

	var reader io.Reader = resp.Body
	if s.config.MaxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, int64(s.config.MaxBodyBytes))
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, false
	}

	contentType := resp.Header.Get("Content-Type")
	if parser.IsHTMLContentType(contentType) || parser.LooksLikeHTML(string(body)) {
		return nil, false
	}
	if !parser.IsMarkdownContentType(contentType) && !parser.IsMarkdownContent(string(body)) {
		return nil, false
	}
	return &Page{URL: variantURL, ContentType: contentType, Body: body, FetchedAt: time.Now()}, true
}
