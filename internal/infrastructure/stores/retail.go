package stores

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/snapp/backend/internal/domain"
)

// RetailConfig describes a retailer exposing a simple JSON product API:
//
//	GET {BaseURL}/products?url=<product url>  -> retailProduct
//	GET {BaseURL}/search?q=<query>            -> {"products": [retailProduct...]}
type RetailConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	HTTP    HTTPOptions
}

// RetailAdapter is a config-driven SourceAdapter for generic retail REST APIs.
type RetailAdapter struct {
	cfg    RetailConfig
	client *sourceClient
}

var _ domain.SourceAdapter = (*RetailAdapter)(nil)

// NewRetailAdapter creates an adapter for one configured retailer.
func NewRetailAdapter(cfg RetailConfig) (*RetailAdapter, error) {
	if cfg.Name == "" {
		return nil, &domain.ValidationError{Field: "name", Reason: "retail source name is required"}
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, &domain.ValidationError{Field: "base_url", Reason: fmt.Sprintf("invalid base url for %s", cfg.Name)}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &RetailAdapter{cfg: cfg, client: newSourceClient(cfg.Name, cfg.HTTP)}, nil
}

// Name returns the configured source name.
func (r *RetailAdapter) Name() string { return r.cfg.Name }

type retailProduct struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	URL          string          `json:"url"`
	Availability string          `json:"availability"`
}

type retailSearchResponse struct {
	Products []retailProduct `json:"products"`
}

// FetchProduct resolves a product page URL through the retailer's API.
func (r *RetailAdapter) FetchProduct(ctx context.Context, productURL string) (*domain.Listing, error) {
	endpoint := fmt.Sprintf("%s/products?%s", r.cfg.BaseURL, url.Values{"url": {productURL}}.Encode())
	req, err := r.newRequest(ctx, endpoint, domain.CodeAPIError)
	if err != nil {
		return nil, err
	}

	var p retailProduct
	found, err := r.client.do(ctx, req, "fetch", domain.CodeAPIError, &p)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.NewSourceError(r.cfg.Name, domain.CodeAPIError, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productURL))
	}
	if p.URL == "" {
		p.URL = productURL
	}
	return r.toListing(p)
}

// SearchProduct queries the retailer's search endpoint. A 404 means no results.
func (r *RetailAdapter) SearchProduct(ctx context.Context, query string) ([]domain.Listing, error) {
	endpoint := fmt.Sprintf("%s/search?%s", r.cfg.BaseURL, url.Values{"q": {query}}.Encode())
	req, err := r.newRequest(ctx, endpoint, domain.CodeSearchError)
	if err != nil {
		return nil, err
	}

	var resp retailSearchResponse
	found, err := r.client.do(ctx, req, "search", domain.CodeSearchError, &resp)
	if err != nil {
		return nil, err
	}
	if !found {
		return []domain.Listing{}, nil
	}

	listings := make([]domain.Listing, 0, len(resp.Products))
	for _, p := range resp.Products {
		l, err := r.toListing(p)
		if err != nil {
			continue
		}
		listings = append(listings, *l)
	}
	return listings, nil
}

func (r *RetailAdapter) newRequest(ctx context.Context, endpoint, failCode string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, domain.NewSourceError(r.cfg.Name, failCode, err)
	}
	if r.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", r.cfg.APIKey)
	}
	return req, nil
}

func (r *RetailAdapter) toListing(p retailProduct) (*domain.Listing, error) {
	if p.Title == "" || p.URL == "" {
		return nil, domain.NewSourceError(r.cfg.Name, domain.CodeParseError, fmt.Errorf("product %q missing title or url", p.ID))
	}
	if p.Price.IsNegative() {
		return nil, domain.NewSourceError(r.cfg.Name, domain.CodeParseError, fmt.Errorf("product %q has negative price", p.ID))
	}
	id := p.ID
	if id == "" {
		id = p.URL
	}
	currency := p.Currency
	if currency == "" {
		currency = "USD"
	}
	return &domain.Listing{
		ID:         id,
		Name:       p.Title,
		Price:      p.Price,
		Currency:   currency,
		URL:        p.URL,
		SourceName: r.cfg.Name,
		InStock:    !strings.EqualFold(p.Availability, "out_of_stock"),
	}, nil
}
