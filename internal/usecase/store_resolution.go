package usecase

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/snapp/backend/internal/domain"
	"github.com/snapp/backend/internal/infrastructure/cache"
)

// ResolvedByScraper marks listings produced by the fallback scraper.
const ResolvedByScraper = "scraper"

// AdapterRouter selects the structured adapter for a URL and enumerates all
// adapters for search fan-out.
type AdapterRouter interface {
	Resolve(rawURL string) (domain.SourceAdapter, bool)
	Adapters() []domain.SourceAdapter
}

// StoreResolutionConfig holds cache lifetimes and the shipping table.
type StoreResolutionConfig struct {
	ProductTTL time.Duration
	SearchTTL  time.Duration
	Shipping   ShippingRules
}

// StoreResolution answers "details for this URL" and "best prices for this
// name" across every configured retail source.
type StoreResolution struct {
	router     AdapterRouter
	scraper    domain.Scraper
	cache      *cache.Cache
	shipping   ShippingRules
	productTTL time.Duration
	searchTTL  time.Duration
	now        func() time.Time
}

// NewStoreResolution wires the service. Zero TTLs fall back to cache.DefaultTTL
// and an empty shipping table to DefaultShippingRules.
func NewStoreResolution(router AdapterRouter, scraper domain.Scraper, c *cache.Cache, cfg StoreResolutionConfig) *StoreResolution {
	if cfg.ProductTTL <= 0 {
		cfg.ProductTTL = cache.DefaultTTL
	}
	if cfg.SearchTTL <= 0 {
		cfg.SearchTTL = cache.DefaultTTL
	}
	if cfg.Shipping.bySource == nil {
		cfg.Shipping = DefaultShippingRules()
	}
	return &StoreResolution{
		router:     router,
		scraper:    scraper,
		cache:      c,
		shipping:   cfg.Shipping,
		productTTL: cfg.ProductTTL,
		searchTTL:  cfg.SearchTTL,
		now:        time.Now,
	}
}

type resolvedListing struct {
	Listing    domain.Listing `json:"listing"`
	ResolvedBy string         `json:"resolvedBy"`
	FetchedAt  time.Time      `json:"fetchedAt"`
}

// GetProductDetails resolves a single product URL. The claiming adapter is
// tried first; a source failure falls back to the scraper. A ScrapeError is
// returned only when the scraper was the last resort and failed too.
func (s *StoreResolution) GetProductDetails(ctx context.Context, rawURL string) (*domain.ProductDetails, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := validateProductURL(rawURL); err != nil {
		return nil, err
	}

	resolved, hit, err := cache.Memoize(ctx, s.cache, cache.ProductKey(rawURL), s.productTTL,
		func(ctx context.Context) (resolvedListing, error) {
			return s.resolve(ctx, rawURL)
		})
	if err != nil {
		return nil, err
	}

	return &domain.ProductDetails{
		PricedOffer: s.shipping.Price(resolved.Listing),
		ResolvedBy:  resolved.ResolvedBy,
		FetchedAt:   resolved.FetchedAt,
		Cached:      hit,
	}, nil
}

func (s *StoreResolution) resolve(ctx context.Context, rawURL string) (resolvedListing, error) {
	if adapter, ok := s.router.Resolve(rawURL); ok {
		listing, err := adapter.FetchProduct(ctx, rawURL)
		if err == nil {
			return resolvedListing{Listing: *listing, ResolvedBy: adapter.Name(), FetchedAt: s.now()}, nil
		}
		if !domain.IsSourceError(err) {
			return resolvedListing{}, err
		}
	}

	listing, err := s.scraper.ScrapeProduct(ctx, rawURL)
	if err != nil {
		return resolvedListing{}, err
	}
	return resolvedListing{Listing: *listing, ResolvedBy: ResolvedByScraper, FetchedAt: s.now()}, nil
}

func validateProductURL(rawURL string) error {
	if rawURL == "" {
		return &domain.ValidationError{Field: "url", Reason: "is required"}
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &domain.ValidationError{Field: "url", Reason: "must be an absolute http(s) url"}
	}
	return nil
}

// errAllSourcesFailed keeps a total search failure out of the cache.
var errAllSourcesFailed = errors.New("every retail source failed")

// FindBestPrices searches every source for productName and ranks the offers by
// total price. Source failures are reported in Failures and never returned as
// an error; an empty Stores slice means nothing was found.
func (s *StoreResolution) FindBestPrices(ctx context.Context, productName string) (*domain.BestPrices, error) {
	item := strings.TrimSpace(productName)
	if item == "" {
		return nil, &domain.ValidationError{Field: "name", Reason: "is required"}
	}

	var failures []domain.SourceFailure
	listings, hit, err := cache.Memoize(ctx, s.cache, cache.SearchKey(normalizeForCacheKey(item)), s.searchTTL,
		func(ctx context.Context) ([]domain.Listing, error) {
			var merged []domain.Listing
			merged, failures = s.searchAll(ctx, item)
			if merged == nil {
				return nil, errAllSourcesFailed
			}
			return merged, nil
		})
	if err != nil {
		listings = []domain.Listing{}
	}

	return &domain.BestPrices{
		Item:     item,
		Stores:   s.rank(listings),
		Cached:   hit,
		Failures: failures,
	}, nil
}

// searchAll fans the query out to every adapter and concatenates results in
// adapter order. It returns nil listings when no adapter succeeded.
func (s *StoreResolution) searchAll(ctx context.Context, query string) ([]domain.Listing, []domain.SourceFailure) {
	adapters := s.router.Adapters()
	results := make([][]domain.Listing, len(adapters))
	errs := make([]error, len(adapters))

	var g errgroup.Group
	for i, adapter := range adapters {
		g.Go(func() error {
			results[i], errs[i] = adapter.SearchProduct(ctx, query)
			return nil
		})
	}
	_ = g.Wait()

	var merged []domain.Listing
	var failures []domain.SourceFailure
	for i, adapter := range adapters {
		if errs[i] != nil {
			failures = append(failures, sourceFailure(adapter.Name(), errs[i]))
			continue
		}
		if merged == nil {
			merged = []domain.Listing{}
		}
		merged = append(merged, results[i]...)
	}
	return merged, failures
}

func sourceFailure(name string, err error) domain.SourceFailure {
	code := domain.CodeAPIError
	var se *domain.SourceError
	if errors.As(err, &se) {
		code = se.Code
	}
	return domain.SourceFailure{Source: name, Code: code, Reason: err.Error()}
}

// rank prices each listing, orders by total price (stable, so equal totals
// keep adapter order) and assigns badges.
func (s *StoreResolution) rank(listings []domain.Listing) []domain.PricedOffer {
	offers := make([]domain.PricedOffer, len(listings))
	for i, l := range listings {
		offers[i] = s.shipping.Price(l)
	}

	sort.SliceStable(offers, func(i, j int) bool {
		return offers[i].TotalPrice.LessThan(offers[j].TotalPrice)
	})
	assignBadges(offers)
	return offers
}

// assignBadges gives "Best Price" to the cheapest in-stock offer and
// "Free Shipping" to every other offer with zero shipping cost.
func assignBadges(offers []domain.PricedOffer) {
	best := -1
	for i := range offers {
		if offers[i].InStock {
			best = i
			offers[i].Badge = domain.BadgeBestPrice
			break
		}
	}
	for i := range offers {
		if i != best && offers[i].Shipping.Cost.IsZero() {
			offers[i].Badge = domain.BadgeFreeShipping
		}
	}
}

// Close releases the fallback scraper.
func (s *StoreResolution) Close() error {
	return s.scraper.Close()
}
