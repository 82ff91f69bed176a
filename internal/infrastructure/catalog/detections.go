package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/snapp/backend/internal/domain"
)

var _ domain.DetectionRepository = (*Store)(nil)

// DetectionMatch is one product matched by a detection, with its similarity.
type DetectionMatch struct {
	ProductID  string
	Similarity float64
}

// SaveDetection stores a detection and its matched products, replacing any previous matches.
func (s *Store) SaveDetection(ctx context.Context, detectionID, userID string, matches []DetectionMatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning detection transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO detections (id, user_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id`,
		detectionID, userID, formatTime(s.now())); err != nil {
		return fmt.Errorf("saving detection %s: %w", detectionID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM detection_products WHERE detection_id = ?`, detectionID); err != nil {
		return fmt.Errorf("clearing detection %s: %w", detectionID, err)
	}
	for _, m := range matches {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO detection_products (detection_id, product_id, similarity) VALUES (?, ?, ?)`,
			detectionID, m.ProductID, m.Similarity); err != nil {
			return fmt.Errorf("saving match %s: %w", m.ProductID, err)
		}
	}
	return tx.Commit()
}

// FindDetectionProducts returns the catalog products matched by a detection,
// most similar first. Matches without a catalog record are skipped.
func (s *Store) FindDetectionProducts(ctx context.Context, detectionID string) ([]domain.ProductRecord, error) {
	if err := s.detectionExists(ctx, detectionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.brand, p.category, p.color, p.style, p.price, p.image_url,
			p.features, p.stores, p.eco_friendly, p.recycled_materials, p.second_hand, p.organic_materials,
			p.sustainability_score
		FROM detection_products d
		JOIN products p ON p.id = d.product_id
		WHERE d.detection_id = ?
		ORDER BY d.similarity DESC, p.id`, detectionID)
	if err != nil {
		return nil, fmt.Errorf("querying detection products: %w", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

// DetectionFacets aggregates the filter options across a detection's matched products.
func (s *Store) DetectionFacets(ctx context.Context, detectionID string) (*domain.FilterFacets, error) {
	if err := s.detectionExists(ctx, detectionID); err != nil {
		return nil, err
	}

	facets := &domain.FilterFacets{DetectionID: detectionID}
	for _, f := range []struct {
		column string
		dst    *[]string
	}{
		{"category", &facets.Categories},
		{"brand", &facets.Brands},
		{"color", &facets.Colors},
	} {
		values, err := s.queryStrings(ctx, `
			SELECT DISTINCT p.`+f.column+`
			FROM detection_products d JOIN products p ON p.id = d.product_id
			WHERE d.detection_id = ? AND p.`+f.column+` != ''
			ORDER BY 1`, detectionID)
		if err != nil {
			return nil, err
		}
		*f.dst = values
	}

	var minPrice, maxPrice sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `
		SELECT MIN(p.price), MAX(p.price)
		FROM detection_products d JOIN products p ON p.id = d.product_id
		WHERE d.detection_id = ?`, detectionID,
	).Scan(&minPrice, &maxPrice); err != nil {
		return nil, fmt.Errorf("querying price range: %w", err)
	}
	facets.MinPrice = minPrice.Float64
	facets.MaxPrice = maxPrice.Float64
	return facets, nil
}

func (s *Store) detectionExists(ctx context.Context, detectionID string) error {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM detections WHERE id = ?`, detectionID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying detection %s: %w", detectionID, err)
	}
	return nil
}
