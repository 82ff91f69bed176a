package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/snapp/backend/internal/domain"
)

var (
	_ domain.PreferenceRepository = (*Store)(nil)
	_ domain.BehaviorRepository   = (*Store)(nil)
	_ domain.BehaviorRecorder     = (*Store)(nil)
)

// FindUserPreference returns domain.ErrNotFound when the user has no preference record.
func (s *Store) FindUserPreference(ctx context.Context, userID string) (*domain.UserPreference, error) {
	var pref domain.UserPreference
	var brands, categories, colors, stores, updatedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, brands, categories, colors, stores, min_price, max_price, updated_at
		FROM user_preferences WHERE user_id = ?`, userID,
	).Scan(&pref.UserID, &brands, &categories, &colors, &stores, &pref.MinPrice, &pref.MaxPrice, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying preference for %s: %w", userID, err)
	}

	for _, col := range []struct {
		raw string
		dst *[]string
	}{{brands, &pref.Brands}, {categories, &pref.Categories}, {colors, &pref.Colors}, {stores, &pref.Stores}} {
		if *col.dst, err = decodeList(col.raw); err != nil {
			return nil, err
		}
	}
	if pref.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &pref, nil
}

// UpsertUserPreference replaces the user's preference record.
func (s *Store) UpsertUserPreference(ctx context.Context, pref domain.UserPreference) error {
	updatedAt := pref.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, brands, categories, colors, stores, min_price, max_price, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			brands = excluded.brands, categories = excluded.categories, colors = excluded.colors,
			stores = excluded.stores, min_price = excluded.min_price, max_price = excluded.max_price,
			updated_at = excluded.updated_at`,
		pref.UserID, encodeList(pref.Brands), encodeList(pref.Categories), encodeList(pref.Colors),
		encodeList(pref.Stores), pref.MinPrice, pref.MaxPrice, formatTime(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting preference for %s: %w", pref.UserID, err)
	}
	return nil
}

// AddFavorite records that userID favourited productID and returns the favourite id.
// Favouriting the same product twice returns the existing id.
func (s *Store) AddFavorite(ctx context.Context, userID, productID string) (string, error) {
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO user_favorites (id, user_id, product_id, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, product_id) DO NOTHING`,
		id, userID, productID, formatTime(s.now()),
	); err != nil {
		return "", fmt.Errorf("adding favorite: %w", err)
	}

	var existing string
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM user_favorites WHERE user_id = ? AND product_id = ?`, userID, productID,
	).Scan(&existing); err != nil {
		return "", fmt.Errorf("reading favorite: %w", err)
	}
	return existing, nil
}

// RecordView logs a product view.
func (s *Store) RecordView(ctx context.Context, userID, productID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_views (user_id, product_id, viewed_at) VALUES (?, ?, ?)`,
		userID, productID, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("recording view: %w", err)
	}
	return nil
}

// LogSearch logs a search and the category it targeted.
func (s *Store) LogSearch(ctx context.Context, userID, query, category string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_logs (user_id, query, category, created_at) VALUES (?, ?, ?, ?)`,
		userID, query, category, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("logging search: %w", err)
	}
	return nil
}

// ListUserIDs returns every user with any recorded behaviour.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `
		SELECT user_id FROM user_favorites
		UNION SELECT user_id FROM user_views
		UNION SELECT user_id FROM search_logs
		ORDER BY 1`)
}

// FindUserBehavior returns the user's favourite, viewed and searched-category sets.
// A user with no behaviour gets empty sets, not an error.
func (s *Store) FindUserBehavior(ctx context.Context, userID string) (*domain.UserBehavior, error) {
	favorites, err := s.queryStrings(ctx, `SELECT product_id FROM user_favorites WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	views, err := s.queryStrings(ctx, `SELECT DISTINCT product_id FROM user_views WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	categories, err := s.queryStrings(ctx, `SELECT DISTINCT category FROM search_logs WHERE user_id = ? AND category != ''`, userID)
	if err != nil {
		return nil, err
	}

	return &domain.UserBehavior{
		UserID:     userID,
		Favorites:  toSet(favorites),
		Views:      toSet(views),
		Categories: toSet(categories),
	}, nil
}

// FindFavoritesByUsers returns favourites of the given users whose product is in category.
func (s *Store) FindFavoritesByUsers(ctx context.Context, userIDs []string, category string) ([]domain.UserFavorite, error) {
	if len(userIDs) == 0 {
		return []domain.UserFavorite{}, nil
	}

	args := append(stringArgs(userIDs), category)
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.user_id, p.id, p.name, p.brand, p.category, p.color, p.style, p.price, p.image_url,
			p.features, p.stores, p.eco_friendly, p.recycled_materials, p.second_hand, p.organic_materials,
			p.sustainability_score
		FROM user_favorites f
		JOIN products p ON p.id = f.product_id
		WHERE f.user_id IN (`+placeholders(len(userIDs))+`) AND p.category = ?
		ORDER BY f.created_at, f.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying favorites: %w", err)
	}
	defer rows.Close()

	favorites := []domain.UserFavorite{}
	for rows.Next() {
		var fav domain.UserFavorite
		p, err := scanProduct(rows, &fav.ID, &fav.UserID)
		if err != nil {
			return nil, err
		}
		fav.Product = p
		favorites = append(favorites, fav)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating favorites: %w", err)
	}
	return favorites, nil
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
