package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/snapp/backend/internal/domain"
	"github.com/snapp/backend/internal/infrastructure/cache"
)

// FilterFacets serves the filter options for a detection's matched products.
type FilterFacets struct {
	detections domain.DetectionRepository
	cache      *cache.Cache
	ttl        time.Duration
}

// NewFilterFacets creates the facet service. A zero ttl means cache.FacetTTL.
func NewFilterFacets(detections domain.DetectionRepository, c *cache.Cache, ttl time.Duration) *FilterFacets {
	if ttl <= 0 {
		ttl = cache.FacetTTL
	}
	return &FilterFacets{detections: detections, cache: c, ttl: ttl}
}

// ForDetection returns the categories, brands, colours and price range of the
// products matched by detectionID.
func (f *FilterFacets) ForDetection(ctx context.Context, detectionID string) (*domain.FilterFacets, error) {
	if strings.TrimSpace(detectionID) == "" {
		return nil, &domain.ValidationError{Field: "detectionId", Reason: "is required"}
	}
	facets, _, err := cache.Memoize(ctx, f.cache, cache.FiltersKey(detectionID), f.ttl,
		func(ctx context.Context) (*domain.FilterFacets, error) {
			return f.detections.DetectionFacets(ctx, detectionID)
		})
	return facets, err
}
