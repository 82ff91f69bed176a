package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/snapp/backend/internal/domain"
	"github.com/snapp/backend/internal/infrastructure/cache"
)

// User similarity weights and cut-offs
const (
	weightFavorites        = 0.5
	weightViews            = 0.3
	weightCategories       = 0.2
	similarUserThreshold   = 0.3
	maxSimilarUsers        = 10
	visualCandidateLimit   = 50
	personalizedLimit      = 20
	defaultBehaviorWorkers = 8
)

// Preference boosts, applied multiplicatively in this order
const (
	boostPreferredBrand = 1.2
	boostPreferredColor = 1.1
	boostPreferredStore = 1.15
)

// RecommendationConfig holds cache lifetime and fan-out width.
type RecommendationConfig struct {
	SimilarUsersTTL time.Duration
	BehaviorWorkers int
}

// Recommendation personalizes similarity results with stored preferences and
// products favourited by behaviourally similar users.
type Recommendation struct {
	ranking         *SimilarityRanking
	preferences     domain.PreferenceRepository
	behavior        domain.BehaviorRepository
	recorder        domain.BehaviorRecorder
	detections      domain.DetectionRepository
	cache           *cache.Cache
	similarUsersTTL time.Duration
	workers         int
	now             func() time.Time
}

// NewRecommendation creates the recommendation service.
func NewRecommendation(
	ranking *SimilarityRanking,
	preferences domain.PreferenceRepository,
	behavior domain.BehaviorRepository,
	recorder domain.BehaviorRecorder,
	detections domain.DetectionRepository,
	c *cache.Cache,
	cfg RecommendationConfig,
) *Recommendation {
	if cfg.SimilarUsersTTL <= 0 {
		cfg.SimilarUsersTTL = cache.SimilarUsersTTL
	}
	if cfg.BehaviorWorkers <= 0 {
		cfg.BehaviorWorkers = defaultBehaviorWorkers
	}
	return &Recommendation{
		ranking:         ranking,
		preferences:     preferences,
		behavior:        behavior,
		recorder:        recorder,
		detections:      detections,
		cache:           c,
		similarUsersTTL: cfg.SimilarUsersTTL,
		workers:         cfg.BehaviorWorkers,
		now:             time.Now,
	}
}

// PersonalizedQuery is the input to GetPersonalizedResults.
type PersonalizedQuery struct {
	UserID    string
	Embedding []float32
	Category  string
	Criteria  *domain.MatchCriteria
}

// GetPersonalizedResults returns up to 20 matches for the user: visual matches
// first, then collaborative candidates, filtered and boosted by the user's
// stored preferences when they have any.
func (r *Recommendation) GetPersonalizedResults(ctx context.Context, q PersonalizedQuery) ([]domain.SimilarityMatch, error) {
	if strings.TrimSpace(q.UserID) == "" {
		return nil, &domain.ValidationError{Field: "userId", Reason: "is required"}
	}

	var (
		pref    *domain.UserPreference
		similar []domain.UserSimilarity
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pref, err = r.findPreference(gctx, q.UserID)
		return err
	})
	g.Go(func() error {
		// A failure here only loses collaborative candidates.
		similar, _ = r.SimilarUsers(gctx, q.UserID)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	explicitBrand := q.Criteria != nil && q.Criteria.Brand != ""
	criteria := q.Criteria
	if !explicitBrand && pref.TopBrand() != "" {
		withBrand := domain.MatchCriteria{}
		if q.Criteria != nil {
			withBrand = *q.Criteria
		}
		withBrand.Brand = pref.TopBrand()
		criteria = &withBrand
	}

	visual, err := r.ranking.FindSimilarProducts(ctx, SimilarityQuery{
		Embedding: q.Embedding,
		Category:  q.Category,
		Criteria:  criteria,
		Limit:     visualCandidateLimit,
	})
	if err != nil {
		return nil, err
	}

	collaborative, _ := r.collaborativeCandidates(ctx, similar, q.Category, criteria)

	results := mergeCandidates(visual, collaborative)
	if pref != nil {
		results = applyPreferences(results, pref, explicitBrand)
		rankMatches(results)
	}
	if len(results) > personalizedLimit {
		results = results[:personalizedLimit]
	}
	return results, nil
}

func (r *Recommendation) findPreference(ctx context.Context, userID string) (*domain.UserPreference, error) {
	pref, err := r.preferences.FindUserPreference(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading preferences: %w", err)
	}
	return pref, nil
}

// SimilarUsers returns up to 10 other users whose behaviour overlaps with
// userID by at least 0.3, most similar first. Results are cached per user.
// When some users' behaviour could not be loaded the users that were scored
// are returned with the error and nothing is cached.
func (r *Recommendation) SimilarUsers(ctx context.Context, userID string) ([]domain.UserSimilarity, error) {
	users, _, err := cache.Memoize(ctx, r.cache, cache.SimilarUsersKey(userID), r.similarUsersTTL,
		func(ctx context.Context) ([]domain.UserSimilarity, error) {
			return r.computeSimilarUsers(ctx, userID)
		})
	var incomplete *incompleteSimilarityError
	if errors.As(err, &incomplete) {
		return incomplete.users, err
	}
	if err != nil {
		return []domain.UserSimilarity{}, err
	}
	return users, nil
}

// incompleteSimilarityError carries the users scored before some behaviour
// loads failed.
type incompleteSimilarityError struct {
	users  []domain.UserSimilarity
	failed int
	err    error
}

func (e *incompleteSimilarityError) Error() string {
	return fmt.Sprintf("loading behaviour for %d users: %v", e.failed, e.err)
}

func (e *incompleteSimilarityError) Unwrap() error { return e.err }

func (r *Recommendation) computeSimilarUsers(ctx context.Context, userID string) ([]domain.UserSimilarity, error) {
	target, err := r.behavior.FindUserBehavior(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading behaviour for %s: %w", userID, err)
	}
	ids, err := r.behavior.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	scores := make([]*domain.UserSimilarity, len(ids))
	loadErrs := make([]error, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, id := range ids {
		if id == userID {
			continue
		}
		g.Go(func() error {
			other, err := r.behavior.FindUserBehavior(gctx, id)
			if err != nil {
				loadErrs[i] = err
				return nil
			}
			scores[i] = &domain.UserSimilarity{UserID: id, Score: BehaviorSimilarity(target, other)}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	similar := []domain.UserSimilarity{}
	for _, s := range scores {
		if s != nil && s.Score >= similarUserThreshold {
			similar = append(similar, *s)
		}
	}
	sort.SliceStable(similar, func(i, j int) bool {
		return similar[i].Score > similar[j].Score
	})
	if len(similar) > maxSimilarUsers {
		similar = similar[:maxSimilarUsers]
	}

	var failed []error
	for _, err := range loadErrs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return nil, &incompleteSimilarityError{users: similar, failed: len(failed), err: errors.Join(failed...)}
	}
	return similar, nil
}

// BehaviorSimilarity is the weighted Jaccard similarity of two users'
// favourites, views and searched categories. It is symmetric and in [0, 1].
func BehaviorSimilarity(a, b *domain.UserBehavior) float64 {
	return weightFavorites*Jaccard(a.Favorites, b.Favorites) +
		weightViews*Jaccard(a.Views, b.Views) +
		weightCategories*Jaccard(a.Categories, b.Categories)
}

// Jaccard returns |a ∩ b| / |a ∪ b|, or 0 when both sets are empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// collaborativeCandidates turns the similar users' favourites in category into
// matches scored by the highest similarity among the users who favourited them.
func (r *Recommendation) collaborativeCandidates(ctx context.Context, similar []domain.UserSimilarity, category string, criteria *domain.MatchCriteria) ([]domain.SimilarityMatch, error) {
	if len(similar) == 0 {
		return nil, nil
	}
	scoreByUser := make(map[string]float64, len(similar))
	ids := make([]string, len(similar))
	for i, s := range similar {
		scoreByUser[s.UserID] = s.Score
		ids[i] = s.UserID
	}

	favorites, err := r.behavior.FindFavoritesByUsers(ctx, ids, category)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var candidates []domain.SimilarityMatch
	for _, fav := range favorites {
		score := scoreByUser[fav.UserID]
		if i, ok := index[fav.Product.ID]; ok {
			candidates[i].SimilarityScore = max(candidates[i].SimilarityScore, score)
			continue
		}
		index[fav.Product.ID] = len(candidates)
		candidates = append(candidates, collaborativeMatch(&fav.Product, score, criteria))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].SimilarityScore > candidates[j].SimilarityScore
	})
	return candidates, nil
}

func collaborativeMatch(p *domain.ProductRecord, score float64, criteria *domain.MatchCriteria) domain.SimilarityMatch {
	m := domain.SimilarityMatch{
		ProductID:       p.ID,
		SimilarityScore: score,
		IsExactMatch:    criteria.IsExactMatch(p),
		Origin:          domain.OriginCollaborative,
		Metadata:        domain.MetadataFrom(p),
	}
	if p.Sustainability != nil {
		m.SustainabilityScore = p.Sustainability.Score
	}
	return m
}

// mergeCandidates appends collaborative candidates not already in visual,
// leaving the visual order untouched.
func mergeCandidates(visual, collaborative []domain.SimilarityMatch) []domain.SimilarityMatch {
	merged := make([]domain.SimilarityMatch, 0, len(visual)+len(collaborative))
	seen := make(map[string]bool, len(visual)+len(collaborative))
	for _, m := range visual {
		seen[m.ProductID] = true
		merged = append(merged, m)
	}
	for _, m := range collaborative {
		if seen[m.ProductID] {
			continue
		}
		seen[m.ProductID] = true
		merged = append(merged, m)
	}
	return merged
}

// applyPreferences drops matches outside the user's price range, brands or
// stores and boosts the rest. Brand filtering and boosting are skipped when
// the caller asked for a brand explicitly.
func applyPreferences(matches []domain.SimilarityMatch, pref *domain.UserPreference, explicitBrand bool) []domain.SimilarityMatch {
	kept := matches[:0]
	for _, m := range matches {
		price := m.Metadata.Price
		if pref.MinPrice > 0 && price < pref.MinPrice {
			continue
		}
		if pref.MaxPrice > 0 && price > pref.MaxPrice {
			continue
		}
		if !explicitBrand && len(pref.Brands) > 0 && !pref.PrefersBrand(m.Metadata.Brand) {
			continue
		}
		soldAtPreferred := overlaps(m.Metadata.Stores, pref.Stores)
		if len(pref.Stores) > 0 && !soldAtPreferred {
			continue
		}

		if !explicitBrand && pref.PrefersBrand(m.Metadata.Brand) {
			m.SimilarityScore *= boostPreferredBrand
		}
		if pref.PrefersColor(m.Metadata.Color) {
			m.SimilarityScore *= boostPreferredColor
		}
		if soldAtPreferred {
			m.SimilarityScore *= boostPreferredStore
		}
		kept = append(kept, m)
	}
	return kept
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		if slices.Contains(b, x) {
			return true
		}
	}
	return false
}

// AddFavorite records that the user favourited a product and returns the
// favourite id. The user's cached similar users are dropped.
func (r *Recommendation) AddFavorite(ctx context.Context, userID, productID string) (string, error) {
	if err := requireIDs(userID, productID); err != nil {
		return "", err
	}
	id, err := r.recorder.AddFavorite(ctx, userID, productID)
	if err != nil {
		return "", err
	}
	r.cache.Delete(ctx, cache.SimilarUsersKey(userID))
	return id, nil
}

// RecordView records a product view.
func (r *Recommendation) RecordView(ctx context.Context, userID, productID string) error {
	if err := requireIDs(userID, productID); err != nil {
		return err
	}
	if err := r.recorder.RecordView(ctx, userID, productID); err != nil {
		return err
	}
	r.cache.Delete(ctx, cache.SimilarUsersKey(userID))
	return nil
}

// LogSearch records a search and the category it targeted.
func (r *Recommendation) LogSearch(ctx context.Context, userID, query, category string) error {
	if strings.TrimSpace(userID) == "" {
		return &domain.ValidationError{Field: "userId", Reason: "is required"}
	}
	if strings.TrimSpace(query) == "" && strings.TrimSpace(category) == "" {
		return &domain.ValidationError{Field: "query", Reason: "query or category is required"}
	}
	if err := r.recorder.LogSearch(ctx, userID, query, category); err != nil {
		return err
	}
	r.cache.Delete(ctx, cache.SimilarUsersKey(userID))
	return nil
}

func requireIDs(userID, productID string) error {
	if strings.TrimSpace(userID) == "" {
		return &domain.ValidationError{Field: "userId", Reason: "is required"}
	}
	if strings.TrimSpace(productID) == "" {
		return &domain.ValidationError{Field: "productId", Reason: "is required"}
	}
	return nil
}

// UpdateUserPreferences recomputes the user's brands, categories, colours and
// stores from the products matched by detectionID. The price range is kept.
// Running it again for the same detection changes nothing.
func (r *Recommendation) UpdateUserPreferences(ctx context.Context, userID, detectionID string) error {
	if strings.TrimSpace(userID) == "" {
		return &domain.ValidationError{Field: "userId", Reason: "is required"}
	}
	if strings.TrimSpace(detectionID) == "" {
		return &domain.ValidationError{Field: "detectionId", Reason: "is required"}
	}

	products, err := r.detections.FindDetectionProducts(ctx, detectionID)
	if err != nil {
		return fmt.Errorf("loading detection %s: %w", detectionID, err)
	}
	existing, err := r.findPreference(ctx, userID)
	if err != nil {
		return err
	}

	next := domain.UserPreference{UserID: userID}
	for _, p := range products {
		next.Brands = appendUnique(next.Brands, p.Brand)
		next.Categories = appendUnique(next.Categories, p.Category)
		next.Colors = appendUnique(next.Colors, p.Color)
		for _, s := range p.Stores {
			next.Stores = appendUnique(next.Stores, s)
		}
	}
	if existing != nil {
		next.MinPrice = existing.MinPrice
		next.MaxPrice = existing.MaxPrice
		if samePreference(existing, &next) {
			return nil
		}
	}

	next.UpdatedAt = r.now().UTC()
	if err := r.preferences.UpsertUserPreference(ctx, next); err != nil {
		return fmt.Errorf("saving preferences: %w", err)
	}
	return nil
}

// GetPreferences returns the stored preferences or domain.ErrNotFound.
func (r *Recommendation) GetPreferences(ctx context.Context, userID string) (*domain.UserPreference, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &domain.ValidationError{Field: "userId", Reason: "is required"}
	}
	return r.preferences.FindUserPreference(ctx, userID)
}

// PutPreferences replaces the user's preferences with an explicit edit.
func (r *Recommendation) PutPreferences(ctx context.Context, pref domain.UserPreference) (*domain.UserPreference, error) {
	if strings.TrimSpace(pref.UserID) == "" {
		return nil, &domain.ValidationError{Field: "userId", Reason: "is required"}
	}
	if pref.MinPrice < 0 || pref.MaxPrice < 0 {
		return nil, &domain.ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if pref.MaxPrice > 0 && pref.MinPrice > pref.MaxPrice {
		return nil, &domain.ValidationError{Field: "price", Reason: "minPrice exceeds maxPrice"}
	}

	clean := domain.UserPreference{
		UserID:     pref.UserID,
		Brands:     dedupe(pref.Brands),
		Categories: dedupe(pref.Categories),
		Colors:     dedupe(pref.Colors),
		Stores:     dedupe(pref.Stores),
		MinPrice:   pref.MinPrice,
		MaxPrice:   pref.MaxPrice,
		UpdatedAt:  r.now().UTC(),
	}
	if err := r.preferences.UpsertUserPreference(ctx, clean); err != nil {
		return nil, fmt.Errorf("saving preferences: %w", err)
	}
	return &clean, nil
}

func appendUnique(list []string, v string) []string {
	if v == "" || slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}

func dedupe(list []string) []string {
	var out []string
	for _, v := range list {
		out = appendUnique(out, strings.TrimSpace(v))
	}
	return out
}

func samePreference(a, b *domain.UserPreference) bool {
	return slices.Equal(a.Brands, b.Brands) &&
		slices.Equal(a.Categories, b.Categories) &&
		slices.Equal(a.Colors, b.Colors) &&
		slices.Equal(a.Stores, b.Stores) &&
		a.MinPrice == b.MinPrice &&
		a.MaxPrice == b.MaxPrice
}
