package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/snapp/backend/internal/domain"
)

var _ domain.ProductRepository = (*Store)(nil)

const productColumns = `id, name, brand, category, color, style, price, image_url, features, stores,
	eco_friendly, recycled_materials, second_hand, organic_materials, sustainability_score`

// UpsertProduct inserts or replaces a catalog product.
func (s *Store) UpsertProduct(ctx context.Context, p domain.ProductRecord) error {
	var eco, recycled, secondHand, organic bool
	var score sql.NullFloat64
	if p.Sustainability != nil {
		eco = p.Sustainability.EcoFriendly
		recycled = p.Sustainability.RecycledMaterials
		secondHand = p.Sustainability.SecondHand
		organic = p.Sustainability.OrganicMaterials
		score = sql.NullFloat64{Float64: p.Sustainability.Score, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, brand = excluded.brand, category = excluded.category,
			color = excluded.color, style = excluded.style, price = excluded.price,
			image_url = excluded.image_url, features = excluded.features, stores = excluded.stores,
			eco_friendly = excluded.eco_friendly, recycled_materials = excluded.recycled_materials,
			second_hand = excluded.second_hand, organic_materials = excluded.organic_materials,
			sustainability_score = excluded.sustainability_score`,
		p.ID, p.Name, p.Brand, p.Category, p.Color, p.Style, p.Price, p.ImageURL,
		encodeList(p.Features), encodeList(p.Stores), eco, recycled, secondHand, organic, score,
	)
	if err != nil {
		return fmt.Errorf("upserting product %s: %w", p.ID, err)
	}
	return nil
}

// FindProductsByIDs returns the products that exist among ids, in no particular order.
func (s *Store) FindProductsByIDs(ctx context.Context, ids []string) ([]domain.ProductRecord, error) {
	if len(ids) == 0 {
		return []domain.ProductRecord{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id IN (`+placeholders(len(ids))+`)`,
		stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

func scanProducts(rows *sql.Rows) ([]domain.ProductRecord, error) {
	products := []domain.ProductRecord{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating products: %w", err)
	}
	return products, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner, extra ...any) (domain.ProductRecord, error) {
	var p domain.ProductRecord
	var features, stores string
	var eco, recycled, secondHand, organic bool
	var score sql.NullFloat64

	dest := append(extra,
		&p.ID, &p.Name, &p.Brand, &p.Category, &p.Color, &p.Style, &p.Price, &p.ImageURL,
		&features, &stores, &eco, &recycled, &secondHand, &organic, &score,
	)
	if err := row.Scan(dest...); err != nil {
		return p, fmt.Errorf("scanning product: %w", err)
	}

	var err error
	if p.Features, err = decodeList(features); err != nil {
		return p, err
	}
	if p.Stores, err = decodeList(stores); err != nil {
		return p, err
	}
	if score.Valid {
		p.Sustainability = &domain.Sustainability{
			EcoFriendly:       eco,
			RecycledMaterials: recycled,
			SecondHand:        secondHand,
			OrganicMaterials:  organic,
			Score:             score.Float64,
		}
	}
	return p, nil
}
