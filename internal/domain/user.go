package domain

import "time"

// UserPreference is the per-user aggregate used for ranking boosts.
// A zero MinPrice or MaxPrice means unbounded on that side.
type UserPreference struct {
	UserID     string    `json:"userId"`
	Brands     []string  `json:"brands"`
	Categories []string  `json:"categories"`
	Colors     []string  `json:"colors"`
	Stores     []string  `json:"stores"`
	MinPrice   float64   `json:"minPrice,omitempty"`
	MaxPrice   float64   `json:"maxPrice,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TopBrand returns the first preferred brand, if any.
func (p *UserPreference) TopBrand() string {
	if p == nil || len(p.Brands) == 0 {
		return ""
	}
	return p.Brands[0]
}

// PrefersBrand reports whether brand is in the preferred set.
func (p *UserPreference) PrefersBrand(brand string) bool { return contains(p.Brands, brand) }

// PrefersColor reports whether color is in the preferred set.
func (p *UserPreference) PrefersColor(color string) bool { return contains(p.Colors, color) }

// UserBehavior is the set form of a user's favourites, views and searched categories.
type UserBehavior struct {
	UserID     string
	Favorites  map[string]struct{}
	Views      map[string]struct{}
	Categories map[string]struct{}
}

// UserSimilarity is the behavioural similarity of another user.
type UserSimilarity struct {
	UserID string  `json:"userId"`
	Score  float64 `json:"score"`
}

// UserFavorite pairs a favourited product with the user who favourited it.
type UserFavorite struct {
	ID      string
	UserID  string
	Product ProductRecord
}
