package usecase

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/snapp/backend/internal/domain"
)

// ShippingRule prices shipping for one source: free at or above FreeThreshold,
// otherwise a flat Rate.
type ShippingRule struct {
	FreeThreshold decimal.Decimal
	Rate          decimal.Decimal
	Time          string
}

// ShippingRules is the per-source shipping table with a fallback rule.
// Source names are matched case-insensitively.
type ShippingRules struct {
	bySource map[string]ShippingRule
	fallback ShippingRule
}

// DefaultShippingRules returns the built-in table: Amazon ships free from $25,
// everyone else from $50.
func DefaultShippingRules() ShippingRules {
	return ShippingRules{
		bySource: map[string]ShippingRule{
			"amazon": {
				FreeThreshold: decimal.NewFromInt(25),
				Rate:          decimal.RequireFromString("5.99"),
				Time:          "Free 2-day shipping",
			},
		},
		fallback: ShippingRule{
			FreeThreshold: decimal.NewFromInt(50),
			Rate:          decimal.RequireFromString("7.99"),
			Time:          "3-5 business days",
		},
	}
}

// With returns a copy of r with rule registered for source.
func (r ShippingRules) With(source string, rule ShippingRule) ShippingRules {
	next := make(map[string]ShippingRule, len(r.bySource)+1)
	for k, v := range r.bySource {
		next[k] = v
	}
	next[strings.ToLower(source)] = rule
	return ShippingRules{bySource: next, fallback: r.fallback}
}

// Quote computes shipping for a listing priced at price from source.
func (r ShippingRules) Quote(source string, price decimal.Decimal) domain.ShippingQuote {
	rule, ok := r.bySource[strings.ToLower(source)]
	if !ok {
		rule = r.fallback
	}
	cost := rule.Rate
	if price.GreaterThanOrEqual(rule.FreeThreshold) {
		cost = decimal.Zero
	}
	return domain.ShippingQuote{Cost: cost, Time: rule.Time}
}

// Price turns a listing into an unbadged offer.
func (r ShippingRules) Price(l domain.Listing) domain.PricedOffer {
	shipping := r.Quote(l.SourceName, l.Price)
	return domain.PricedOffer{
		Listing:    l,
		Shipping:   shipping,
		TotalPrice: l.Price.Add(shipping.Cost),
	}
}
