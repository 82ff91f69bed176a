package usecase

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/snapp/backend/internal/domain"
)

const (
	defaultSimilarLimit = 10
	maxSimilarLimit     = 100
	defaultJoinChunk    = 25
	exactMatchBoost     = 1.5
)

// Sustainability boost increments, summed and applied as (1 + boost).
const (
	boostEcoFriendly       = 0.10
	boostRecycledMaterials = 0.10
	boostSecondHand        = 0.15
	boostOrganicMaterials  = 0.10
	boostMinScore          = 0.20
)

// SimilarityQuery is the input to FindSimilarProducts.
type SimilarityQuery struct {
	Embedding []float32
	Category  string
	Criteria  *domain.MatchCriteria
	Limit     int
}

// SimilarityRanking ranks catalog products by visual similarity with
// exact-match and sustainability boosts.
type SimilarityRanking struct {
	index     domain.VectorIndex
	products  domain.ProductRepository
	joinChunk int
}

// NewSimilarityRanking creates the ranking service.
func NewSimilarityRanking(index domain.VectorIndex, products domain.ProductRepository) *SimilarityRanking {
	return &SimilarityRanking{index: index, products: products, joinChunk: defaultJoinChunk}
}

// FindSimilarProducts queries the vector index for the nearest neighbours in
// q.Category, joins them to catalog records and ranks them. Exact matches
// always precede non-exact matches; within each group higher scores win.
func (s *SimilarityRanking) FindSimilarProducts(ctx context.Context, q SimilarityQuery) ([]domain.SimilarityMatch, error) {
	if len(q.Embedding) == 0 {
		return nil, &domain.ValidationError{Field: "embedding", Reason: "is required"}
	}
	if q.Category == "" {
		return nil, &domain.ValidationError{Field: "category", Reason: "is required"}
	}
	if err := q.Criteria.Validate(); err != nil {
		return nil, err
	}
	limit := clampLimit(q.Limit)

	filter := domain.VectorFilter{Category: q.Category}
	if q.Criteria != nil {
		filter.Brand = q.Criteria.Brand
	}
	neighbors, err := s.index.Query(ctx, q.Embedding, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("querying vector index: %w", err)
	}
	if len(neighbors) == 0 {
		return []domain.SimilarityMatch{}, nil
	}

	records, err := s.join(ctx, neighbors)
	if err != nil {
		return nil, err
	}

	matches := make([]domain.SimilarityMatch, 0, len(neighbors))
	for _, n := range neighbors {
		rec, ok := records[n.ProductID]
		if !ok {
			continue
		}
		matches = append(matches, scoreCandidate(n.Score, &rec, q.Criteria, domain.OriginVisual))
	}

	rankMatches(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// join loads the catalog records for neighbors in concurrent chunks. A failed
// chunk is left out; the join fails only when every chunk failed.
func (s *SimilarityRanking) join(ctx context.Context, neighbors []domain.Neighbor) (map[string]domain.ProductRecord, error) {
	ids := make([]string, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.ProductID
	}

	var chunks [][]string
	for start := 0; start < len(ids); start += s.joinChunk {
		end := min(start+s.joinChunk, len(ids))
		chunks = append(chunks, ids[start:end])
	}

	results := make([][]domain.ProductRecord, len(chunks))
	errs := make([]error, len(chunks))
	var g errgroup.Group
	for i, chunk := range chunks {
		g.Go(func() error {
			results[i], errs[i] = s.products.FindProductsByIDs(ctx, chunk)
			return nil
		})
	}
	_ = g.Wait()

	records := make(map[string]domain.ProductRecord, len(ids))
	var lastErr error
	failed := 0
	for i := range chunks {
		if errs[i] != nil {
			failed++
			lastErr = errs[i]
			continue
		}
		for _, rec := range results[i] {
			records[rec.ID] = rec
		}
	}
	if failed == len(chunks) {
		return nil, fmt.Errorf("loading matched products: %w", lastErr)
	}
	return records, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultSimilarLimit
	case limit > maxSimilarLimit:
		return maxSimilarLimit
	}
	return limit
}

// scoreCandidate builds a ranked match from a raw similarity score.
func scoreCandidate(raw float64, rec *domain.ProductRecord, criteria *domain.MatchCriteria, origin string) domain.SimilarityMatch {
	exact := criteria.IsExactMatch(rec)
	score := raw
	if exact {
		score *= exactMatchBoost
	}
	var sc *domain.SustainabilityCriteria
	if criteria != nil {
		sc = criteria.Sustainability
	}
	score *= 1 + sustainabilityBoost(rec.Sustainability, sc)

	m := domain.SimilarityMatch{
		ProductID:       rec.ID,
		SimilarityScore: score,
		IsExactMatch:    exact,
		Origin:          origin,
		Metadata:        domain.MetadataFrom(rec),
	}
	if rec.Sustainability != nil {
		m.SustainabilityScore = rec.Sustainability.Score
	}
	return m
}

func sustainabilityBoost(s *domain.Sustainability, c *domain.SustainabilityCriteria) float64 {
	if s == nil || c == nil {
		return 0
	}
	boost := 0.0
	if c.EcoFriendly && s.EcoFriendly {
		boost += boostEcoFriendly
	}
	if c.RecycledMaterials && s.RecycledMaterials {
		boost += boostRecycledMaterials
	}
	if c.SecondHand && s.SecondHand {
		boost += boostSecondHand
	}
	if c.OrganicMaterials && s.OrganicMaterials {
		boost += boostOrganicMaterials
	}
	if c.MinScore > 0 && s.Score >= c.MinScore {
		boost += boostMinScore
	}
	return boost
}

// rankMatches orders exact matches first, then by descending score. Equal
// entries keep their input order.
func rankMatches(matches []domain.SimilarityMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].IsExactMatch != matches[j].IsExactMatch {
			return matches[i].IsExactMatch
		}
		return matches[i].SimilarityScore > matches[j].SimilarityScore
	})
}
