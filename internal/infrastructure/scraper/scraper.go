package scraper

import (
	"context"
	"errors"
	"net"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/snapp/backend/internal/domain"
	"github.com/snapp/backend/internal/metrics"
)

const priceSelector = `.price, [class*="price"]`

var priceNumber = regexp.MustCompile(`[\d,.]+`)

// Scraper is the generic fallback used when no structured adapter claims a URL.
// Extraction is best effort: first h1 as name, first price-like element as
// price, and the absence of "out of stock" anywhere in the page as availability.
type Scraper struct {
	renderer Renderer

	mu     sync.RWMutex
	closed bool
}

var _ domain.Scraper = (*Scraper)(nil)

// New wraps a renderer. The scraper owns it and closes it on Close.
func New(renderer Renderer) *Scraper {
	return &Scraper{renderer: renderer}
}

// ScrapeProduct renders rawURL and extracts a listing from it.
func (s *Scraper) ScrapeProduct(ctx context.Context, rawURL string) (*domain.Listing, error) {
	// Holding the read lock for the whole call lets Close wait for in-flight scrapes.
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, domain.ErrScraperClosed
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		metrics.ScrapesTotal.WithLabelValues("invalid_url").Inc()
		return nil, &domain.ScrapeError{URL: rawURL, Err: errors.New("not an absolute http(s) url")}
	}

	html, err := s.renderer.Render(ctx, rawURL)
	if err != nil {
		metrics.ScrapesTotal.WithLabelValues("load_error").Inc()
		return nil, &domain.ScrapeError{URL: rawURL, Err: err}
	}

	listing, err := extract(rawURL, u.Hostname(), html)
	if err != nil {
		metrics.ScrapesTotal.WithLabelValues("parse_error").Inc()
		return nil, &domain.ScrapeError{URL: rawURL, Err: err}
	}
	metrics.ScrapesTotal.WithLabelValues("ok").Inc()
	return listing, nil
}

// Close releases the renderer after in-flight scrapes finish. Later calls fail with ErrScraperClosed.
func (s *Scraper) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.renderer.Close()
}

func extract(rawURL, host, html string) (*domain.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(doc.Find("h1").First().Text())
	if name == "" {
		return nil, errors.New("page has no heading")
	}

	return &domain.Listing{
		ID:         rawURL,
		Name:       name,
		Price:      ParsePrice(doc.Find(priceSelector).First().Text()),
		Currency:   "USD",
		URL:        rawURL,
		SourceName: StoreName(host),
		InStock:    !strings.Contains(strings.ToLower(html), "out of stock"),
	}, nil
}

// ParsePrice pulls the first number out of text, ignoring thousands separators.
// Text without a parseable number yields zero.
func ParsePrice(text string) decimal.Decimal {
	m := priceNumber.FindString(text)
	if m == "" {
		return decimal.Zero
	}
	m = strings.Trim(strings.ReplaceAll(m, ",", ""), ".")
	d, err := decimal.NewFromString(m)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// StoreName returns the second-level domain label of host ("www.zara.com" -> "zara").
func StoreName(host string) string {
	if net.ParseIP(host) != nil {
		return host
	}
	labels := strings.Split(strings.TrimSuffix(strings.ToLower(host), "."), ".")
	if len(labels) < 2 {
		return host
	}
	return labels[len(labels)-2]
}
