package domain

import "strings"

// Sustainability holds the sustainability flags and overall score of a product.
type Sustainability struct {
	EcoFriendly       bool    `json:"ecoFriendly"`
	RecycledMaterials bool    `json:"recycledMaterials"`
	SecondHand        bool    `json:"secondHand"`
	OrganicMaterials  bool    `json:"organicMaterials"`
	Score             float64 `json:"score"`
}

// ProductRecord is the canonical catalog entity.
type ProductRecord struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Brand          string          `json:"brand"`
	Category       string          `json:"category"`
	Color          string          `json:"color"`
	Style          string          `json:"style"`
	Price          float64         `json:"price"`
	ImageURL       string          `json:"imageUrl"`
	Features       []string        `json:"features"`
	Sustainability *Sustainability `json:"sustainability,omitempty"`
	Stores         []string        `json:"stores"`
}

// HasFeature reports whether the product lists feature f.
func (p *ProductRecord) HasFeature(f string) bool {
	for _, have := range p.Features {
		if have == f {
			return true
		}
	}
	return false
}

// SoldAtAny reports whether the product is sold by any of the given stores.
func (p *ProductRecord) SoldAtAny(stores []string) bool {
	for _, s := range p.Stores {
		if contains(stores, s) {
			return true
		}
	}
	return false
}

// SustainabilityCriteria are the optional sustainability sub-filters.
// MinScore of zero means "not set".
type SustainabilityCriteria struct {
	EcoFriendly       bool    `json:"ecoFriendly,omitempty"`
	RecycledMaterials bool    `json:"recycledMaterials,omitempty"`
	SecondHand        bool    `json:"secondHand,omitempty"`
	OrganicMaterials  bool    `json:"organicMaterials,omitempty"`
	MinScore          float64 `json:"minScore,omitempty"`
}

// MatchCriteria is the user or query supplied filter used for exact matching.
type MatchCriteria struct {
	Brand          string                  `json:"brand,omitempty"`
	Color          string                  `json:"color,omitempty"`
	Style          string                  `json:"style,omitempty"`
	Sustainability *SustainabilityCriteria `json:"sustainability,omitempty"`
	Features       []string                `json:"features,omitempty"`
}

// Validate rejects malformed criteria.
func (c *MatchCriteria) Validate() error {
	if c == nil {
		return nil
	}
	for _, f := range c.Features {
		if strings.TrimSpace(f) == "" {
			return &ValidationError{Field: "criteria.features", Reason: "feature must not be blank"}
		}
	}
	if c.Sustainability != nil && c.Sustainability.MinScore < 0 {
		return &ValidationError{Field: "criteria.sustainability.minScore", Reason: "must not be negative"}
	}
	return nil
}

// IsExactMatch reports whether p satisfies every non-empty field of c.
// Empty (or nil) criteria match every product.
func (c *MatchCriteria) IsExactMatch(p *ProductRecord) bool {
	if c == nil {
		return true
	}
	if c.Brand != "" && p.Brand != c.Brand {
		return false
	}
	if c.Color != "" && p.Color != c.Color {
		return false
	}
	if c.Style != "" && p.Style != c.Style {
		return false
	}
	for _, f := range c.Features {
		if !p.HasFeature(f) {
			return false
		}
	}
	return true
}

// ProductMetadata is the product data denormalized onto a ranked match.
type ProductMetadata struct {
	Name           string          `json:"name"`
	Brand          string          `json:"brand"`
	Category       string          `json:"category"`
	Price          float64         `json:"price"`
	ImageURL       string          `json:"imageUrl"`
	Color          string          `json:"color"`
	Style          string          `json:"style"`
	Sustainability *Sustainability `json:"sustainability,omitempty"`
	Features       []string        `json:"features"`
	Stores         []string        `json:"stores"`
}

// MetadataFrom copies the denormalized fields of p.
func MetadataFrom(p *ProductRecord) ProductMetadata {
	return ProductMetadata{
		Name:           p.Name,
		Brand:          p.Brand,
		Category:       p.Category,
		Price:          p.Price,
		ImageURL:       p.ImageURL,
		Color:          p.Color,
		Style:          p.Style,
		Sustainability: p.Sustainability,
		Features:       p.Features,
		Stores:         p.Stores,
	}
}

// Match origins.
const (
	OriginVisual        = "visual"
	OriginCollaborative = "collaborative"
)

// SimilarityMatch is one ranked result.
type SimilarityMatch struct {
	ProductID           string          `json:"productId"`
	SimilarityScore     float64         `json:"similarityScore"`
	IsExactMatch        bool            `json:"isExactMatch"`
	SustainabilityScore float64         `json:"sustainabilityScore"`
	Origin              string          `json:"origin"`
	Metadata            ProductMetadata `json:"metadata"`
}

// VectorFilter narrows a nearest-neighbour query.
type VectorFilter struct {
	Category string
	Brand    string
}

// Neighbor is one nearest-neighbour hit from the vector index.
type Neighbor struct {
	ProductID string
	Score     float64
	Metadata  map[string]string
}

// FilterFacets are the filter options available for a detection's matched products.
type FilterFacets struct {
	DetectionID string   `json:"detectionId"`
	Categories  []string `json:"categories"`
	Brands      []string `json:"brands"`
	Colors      []string `json:"colors"`
	MinPrice    float64  `json:"minPrice"`
	MaxPrice    float64  `json:"maxPrice"`
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
