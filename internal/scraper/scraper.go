// Package scraper resolves product context from a product page URL.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	nurl "net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
)

const (
	// maxTextLength caps the extracted product text handed to the brief prompt.
	maxTextLength = 4000
	// maxBodySize is the maximum HTTP response body size (5MB).
	maxBodySize = 5 * 1024 * 1024
)

// ProductContext is the resolved page content for a product reference.
type ProductContext struct {
	Title string // candidate product name, may be empty
	Text  string // normalized readable page text
}

// Resolver fetches product pages and extracts readable content using go-readability.
type Resolver struct {
	client *http.Client
}

// NewResolver creates an HTTP-based product context resolver.
func NewResolver(timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Resolver{
		client: &http.Client{Timeout: timeout},
	}
}

// Resolve fetches the product URL and extracts its title and main text.
func (r *Resolver) Resolve(ctx context.Context, url string) (*ProductContext, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	// Realistic browser headers; product pages often block default Go clients.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	parsedURL, _ := nurl.Parse(url)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		return nil, fmt.Errorf("readability: %w", err)
	}

	text := normalizeText(article.TextContent)
	if text == "" {
		return nil, fmt.Errorf("no readable content at %s", url)
	}
	text = truncateText(text, maxTextLength)

	return &ProductContext{
		Title: strings.TrimSpace(article.Title),
		Text:  text,
	}, nil
}

// FallbackContext builds product text from the raw reference and any
// user-supplied name when the page could not be resolved.
func FallbackContext(url, productName string) *ProductContext {
	name := strings.TrimSpace(productName)
	if name == "" {
		name = "Unknown product"
	}
	return &ProductContext{
		Title: strings.TrimSpace(productName),
		Text: fmt.Sprintf("Product URL: %s\nProduct Name or user input: %s\n"+
			"No on-page details could be scraped; rely on this metadata and any uploaded images.", url, name),
	}
}

// truncateText cuts s to at most n bytes without splitting a UTF-8 rune.
func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

var multiSpace = regexp.MustCompile(`[ \t]+`)
var multiNewline = regexp.MustCompile(`\n{3,}`)

func normalizeText(s string) string {
	s = strings.TrimSpace(s)
	s = multiSpace.ReplaceAllString(s, " ")
	s = multiNewline.ReplaceAllString(s, "\n\n")
	return s
}
