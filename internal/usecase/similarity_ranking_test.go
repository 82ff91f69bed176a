package usecase

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapp/backend/internal/domain"
)

var testEmbedding = []float32{0.1, 0.2, 0.3}

func product(id, brand string) domain.ProductRecord {
	return domain.ProductRecord{
		ID: id, Name: "Product " + id, Brand: brand, Category: "dresses",
		Color: "black", Style: "casual", Price: 50, Stores: []string{"Zara"},
	}
}

func matchIDs(matches []domain.SimilarityMatch) []string {
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ProductID
	}
	return ids
}

func TestFindSimilarProducts_ExactMatchOutranksHigherScore(t *testing.T) {
	index := &fakeIndex{neighbors: []domain.Neighbor{
		{ProductID: "adidas-1", Score: 0.9},
		{ProductID: "nike-1", Score: 0.6},
	}}
	svc := NewSimilarityRanking(index, newFakeProducts(product("adidas-1", "Adidas"), product("nike-1", "Nike")))

	got, err := svc.FindSimilarProducts(context.Background(), SimilarityQuery{
		Embedding: testEmbedding,
		Category:  "dresses",
		Criteria:  &domain.MatchCriteria{Brand: "Nike"},
		Limit:     5,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"nike-1", "adidas-1"}, matchIDs(got))
	assert.True(t, got[0].IsExactMatch)
	assert.InDelta(t, 0.9, got[0].SimilarityScore, 1e-9)
	assert.False(t, got[1].IsExactMatch)
	assert.InDelta(t, 0.9, got[1].SimilarityScore, 1e-9)
	assert.Equal(t, domain.OriginVisual, got[0].Origin)
	assert.Equal(t, "Nike", got[0].Metadata.Brand)
	assert.Equal(t, domain.VectorFilter{Category: "dresses", Brand: "Nike"}, index.lastFilter)
	assert.Equal(t, 5, index.lastTopK)
}

func TestFindSimilarProducts_ExactMatchesPrecedeOthers(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var neighbors []domain.Neighbor
	var records []domain.ProductRecord
	for i := 0; i < 40; i++ {
		id := string(rune('a'+i%26)) + string(rune('0'+i/26))
		brand := "Other"
		if i%3 == 0 {
			brand = "Nike"
		}
		neighbors = append(neighbors, domain.Neighbor{ProductID: id, Score: rng.Float64()})
		records = append(records, product(id, brand))
	}
	svc := NewSimilarityRanking(&fakeIndex{neighbors: neighbors}, newFakeProducts(records...))

	got, err := svc.FindSimilarProducts(context.Background(), SimilarityQuery{
		Embedding: testEmbedding,
		Category:  "dresses",
		Criteria:  &domain.MatchCriteria{Brand: "Nike"},
		Limit:     40,
	})
	require.NoError(t, err)
	require.Len(t, got, 40)

	seenNonExact := false
	for i, m := range got {
		if !m.IsExactMatch {
			seenNonExact = true
		} else {
			assert.False(t, seenNonExact, "exact match at %d follows a non-exact match", i)
		}
		if i > 0 && got[i-1].IsExactMatch == m.IsExactMatch {
			assert.GreaterOrEqual(t, got[i-1].SimilarityScore, m.SimilarityScore)
		}
	}
}

func TestFindSimilarProducts_EmptyCriteriaMatchEverything(t *testing.T) {
	index := &fakeIndex{neighbors: []domain.Neighbor{
		{ProductID: "p1", Score: 0.5},
		{ProductID: "p2", Score: 0.8},
	}}
	svc := NewSimilarityRanking(index, newFakeProducts(product("p1", "A"), product("p2", "B")))

	for name, criteria := range map[string]*domain.MatchCriteria{
		"nil":   nil,
		"empty": {},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := svc.FindSimilarProducts(context.Background(), SimilarityQuery{
				Embedding: testEmbedding, Category: "dresses", Criteria: criteria,
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"p2", "p1"}, matchIDs(got))
			for _, m := range got {
				assert.True(t, m.IsExactMatch)
			}
			assert.InDelta(t, 1.2, got[0].SimilarityScore, 1e-9)
			assert.Equal(t, defaultSimilarLimit, index.lastTopK)
			assert.Empty(t, index.lastFilter.Brand)
		})
	}
}

func TestFindSimilarProducts_CriteriaFields(t *testing.T) {
	p := product("p1", "Nike")
	p.Features = []string{"pockets", "zipper"}

	tests := []struct {
		name     string
		criteria domain.MatchCriteria
		exact    bool
	}{
		{"color matches", domain.MatchCriteria{Color: "black"}, true},
		{"color differs", domain.MatchCriteria{Color: "red"}, false},
		{"style differs", domain.MatchCriteria{Style: "formal"}, false},
		{"feature subset", domain.MatchCriteria{Features: []string{"zipper"}}, true},
		{"missing feature", domain.MatchCriteria{Features: []string{"zipper", "hood"}}, false},
		{"all fields", domain.MatchCriteria{Brand: "Nike", Color: "black", Style: "casual", Features: []string{"pockets"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewSimilarityRanking(
				&fakeIndex{neighbors: []domain.Neighbor{{ProductID: "p1", Score: 0.4}}},
				newFakeProducts(p),
			)
			got, err := svc.FindSimilarProducts(context.Background(), SimilarityQuery{
				Embedding: testEmbedding, Category: "dresses", Criteria: &tt.criteria,
			})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, tt.exact, got[0].IsExactMatch)
		})
	}
}

func TestFindSimilarProducts_SustainabilityBoost(t *testing.T) {
	green := product("green", "A")
	green.Sustainability = &domain.Sustainability{EcoFriendly: true, SecondHand: true, Score: 0.7}
	plain := product("plain", "A")

	tests := []struct {
		name     string
		criteria domain.SustainabilityCriteria
		want     float64
	}{
		{"no flags", domain.SustainabilityCriteria{}, 0.6},
		{"eco", domain.SustainabilityCriteria{EcoFriendly: true}, 0.6 * 1.10},
		{"eco and second hand", domain.SustainabilityCriteria{EcoFriendly: true, SecondHand: true}, 0.6 * 1.25},
		{"unsatisfied flags", domain.SustainabilityCriteria{RecycledMaterials: true, OrganicMaterials: true}, 0.6},
		{"min score met", domain.SustainabilityCriteria{MinScore: 0.7}, 0.6 * 1.20},
		{"min score missed", domain.SustainabilityCriteria{MinScore: 0.8}, 0.6},
		{"everything", domain.SustainabilityCriteria{EcoFriendly: true, SecondHand: true, MinScore: 0.5}, 0.6 * 1.45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewSimilarityRanking(
				&fakeIndex{neighbors: []domain.Neighbor{{ProductID: "green", Score: 0.4}, {ProductID: "plain", Score: 0.4}}},
				newFakeProducts(green, plain),
			)
			criteria := tt.criteria
			got, err := svc.FindSimilarProducts(context.Background(), SimilarityQuery{
				Embedding: testEmbedding, Category: "dresses",
				Criteria: &domain.MatchCriteria{Sustainability: &criteria},
			})
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "green", got[0].ProductID)
			assert.InDelta(t, tt.want, got[0].SimilarityScore, 1e-9)
			assert.InDelta(t, 0.7, got[0].SustainabilityScore, 1e-9)
			assert.InDelta(t, 0.6, got[1].SimilarityScore, 1e-9)
			assert.Zero(t, got[1].SustainabilityScore)
		})
	}
}

func TestFindSimilarProducts_DropsNeighborsWithoutRecords(t *testing.T) {
	index := &fakeIndex{neighbors: []domain.Neighbor{
		{ProductID: "p1", Score: 0.9},
		{ProductID: "ghost", Score: 0.8},
		{ProductID: "p2", Score: 0.7},
	}}
	svc := NewSimilarityRanking(index, newFakeProducts(product("p1", "A"), product("p2", "A")))

	got, err := svc.FindSimilarProducts(context.Background(), SimilarityQuery{Embedding: testEmbedding, Category: "dresses"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, matchIDs(got))
}

func TestFindSimilarProducts_JoinChunks(t *testing.T) {
	index := &fakeIndex{neighbors: []domain.Neighbor{
		{ProductID: "p1", Score: 0.9},
		{ProductID: "p2", Score: 0.8},
		{ProductID: "p3", Score: 0.7},
	}}

	t.Run("failed chunk is excluded", func(t *testing.T) {
		products := newFakeProducts(product("p1", "A"), product("p2", "A"), product("p3", "A"))
		products.failIDs["p2"] = true
		svc := NewSimilarityRanking(index, products)
		svc.joinChunk = 1

		got, err := svc.FindSimilarProducts(context.Background(), SimilarityQuery{Embedding: testEmbedding, Category: "dresses"})
		require.NoError(t, err)
		assert.Equal(t, []string{"p1", "p3"}, matchIDs(got))
		assert.Equal(t, int32(3), products.calls.Load())
	})

	t.Run("every chunk failing is an error", func(t *testing.T) {
		products := newFakeProducts()
		products.failIDs = map[string]bool{"p1": true, "p2": true, "p3": true}
		svc := NewSimilarityRanking(index, products)
		svc.joinChunk = 2

		_, err := svc.FindSimilarProducts(context.Background(), SimilarityQuery{Embedding: testEmbedding, Category: "dresses"})
		assert.Error(t, err)
	})
}

func TestFindSimilarProducts_Limits(t *testing.T) {
	var neighbors []domain.Neighbor
	var records []domain.ProductRecord
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		neighbors = append(neighbors, domain.Neighbor{ProductID: id, Score: 1 - float64(i)/10})
		records = append(records, product(id, "A"))
	}
	index := &fakeIndex{neighbors: neighbors}
	svc := NewSimilarityRanking(index, newFakeProducts(records...))
	ctx := context.Background()

	got, err := svc.FindSimilarProducts(ctx, SimilarityQuery{Embedding: testEmbedding, Category: "dresses", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, matchIDs(got))

	_, err = svc.FindSimilarProducts(ctx, SimilarityQuery{Embedding: testEmbedding, Category: "dresses", Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, maxSimilarLimit, index.lastTopK)
}

func TestFindSimilarProducts_Errors(t *testing.T) {
	ctx := context.Background()
	svc := NewSimilarityRanking(&fakeIndex{}, newFakeProducts())

	invalid := []SimilarityQuery{
		{Category: "dresses"},
		{Embedding: testEmbedding},
		{Embedding: testEmbedding, Category: "dresses", Criteria: &domain.MatchCriteria{Features: []string{" "}}},
		{Embedding: testEmbedding, Category: "dresses", Criteria: &domain.MatchCriteria{
			Sustainability: &domain.SustainabilityCriteria{MinScore: -1},
		}},
	}
	for _, q := range invalid {
		_, err := svc.FindSimilarProducts(ctx, q)
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	}

	boom := errors.New("index offline")
	svc = NewSimilarityRanking(&fakeIndex{err: boom}, newFakeProducts())
	_, err := svc.FindSimilarProducts(ctx, SimilarityQuery{Embedding: testEmbedding, Category: "dresses"})
	assert.ErrorIs(t, err, boom)

	got, err := NewSimilarityRanking(&fakeIndex{}, newFakeProducts()).
		FindSimilarProducts(ctx, SimilarityQuery{Embedding: testEmbedding, Category: "dresses"})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
