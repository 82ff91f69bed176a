package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Badges assigned by best-price ranking.
const (
	BadgeBestPrice    = "Best Price"
	BadgeFreeShipping = "Free Shipping"
)

// Listing is one product offer at one retail source.
type Listing struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
	URL        string          `json:"url"`
	SourceName string          `json:"store"`
	InStock    bool            `json:"inStock"`
}

// ShippingQuote is the computed shipping cost and delivery estimate for a listing.
type ShippingQuote struct {
	Cost decimal.Decimal `json:"cost"`
	Time string          `json:"time"`
}

// PricedOffer is a Listing enriched with shipping and an optional badge.
type PricedOffer struct {
	Listing
	Shipping   ShippingQuote   `json:"shipping"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Badge      string          `json:"badge,omitempty"`
}

// SourceFailure records one source that failed during a search fan-out.
type SourceFailure struct {
	Source string `json:"source"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// BestPrices is the ranked result of a cross-source price search.
// An empty Stores slice is a valid "no listings found" answer.
type BestPrices struct {
	Item     string          `json:"item"`
	Stores   []PricedOffer   `json:"stores"`
	Cached   bool            `json:"cached"`
	Failures []SourceFailure `json:"failures,omitempty"`
}

// Cheapest returns the first offer, which is the lowest total price.
func (b *BestPrices) Cheapest() (PricedOffer, bool) {
	if len(b.Stores) == 0 {
		return PricedOffer{}, false
	}
	return b.Stores[0], true
}

// AnyInStock reports whether at least one source has the item in stock.
func (b *BestPrices) AnyInStock() bool {
	for _, s := range b.Stores {
		if s.InStock {
			return true
		}
	}
	return false
}

// ProductDetails is the resolved listing for a single URL.
type ProductDetails struct {
	PricedOffer
	ResolvedBy string    `json:"resolvedBy"` // adapter name or "scraper"
	FetchedAt  time.Time `json:"fetchedAt"`
	Cached     bool      `json:"cached"`
}
