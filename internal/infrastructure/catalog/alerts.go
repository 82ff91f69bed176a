package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/snapp/backend/internal/domain"
)

var (
	_ domain.AlertRepository        = (*Store)(nil)
	_ domain.NotificationRepository = (*Store)(nil)
)

// ListActiveAlerts returns every active alert joined with its favourite's owner and product.
func (s *Store) ListActiveAlerts(ctx context.Context) ([]domain.AlertSubject, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.favorite_id, a.type, a.target_price, a.active, a.created_at,
			f.user_id, p.id, p.name
		FROM wishlist_alerts a
		JOIN user_favorites f ON f.id = a.favorite_id
		JOIN products p ON p.id = f.product_id
		WHERE a.active = 1
		ORDER BY a.created_at, a.id`)
	if err != nil {
		return nil, fmt.Errorf("querying active alerts: %w", err)
	}
	defer rows.Close()

	subjects := []domain.AlertSubject{}
	for rows.Next() {
		var sub domain.AlertSubject
		alert, err := scanAlert(rows, &sub.UserID, &sub.ProductID, &sub.ProductName)
		if err != nil {
			return nil, err
		}
		sub.Alert = *alert
		subjects = append(subjects, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alerts: %w", err)
	}
	return subjects, nil
}

// CreateAlert stores a new alert on an existing favourite.
// It returns domain.ErrNotFound when the favourite does not exist.
func (s *Store) CreateAlert(ctx context.Context, alert domain.WishlistAlert) (*domain.WishlistAlert, error) {
	var favID string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM user_favorites WHERE id = ?`, alert.FavoriteID).Scan(&favID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying favorite %s: %w", alert.FavoriteID, err)
	}

	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = s.now()
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO wishlist_alerts (id, favorite_id, type, target_price, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.FavoriteID, string(alert.Type), nullDecimal(alert.TargetPrice), alert.Active, formatTime(alert.CreatedAt),
	); err != nil {
		return nil, fmt.Errorf("inserting alert: %w", err)
	}
	return &alert, nil
}

// UpdateAlert applies the non-nil fields of update and returns the stored alert.
func (s *Store) UpdateAlert(ctx context.Context, id string, update domain.AlertUpdate) (*domain.WishlistAlert, error) {
	alert, err := s.findAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if update.Active != nil {
		alert.Active = *update.Active
	}
	if update.TargetPrice != nil {
		tp := *update.TargetPrice
		alert.TargetPrice = &tp
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE wishlist_alerts SET active = ?, target_price = ? WHERE id = ?`,
		alert.Active, nullDecimal(alert.TargetPrice), id,
	); err != nil {
		return nil, fmt.Errorf("updating alert %s: %w", id, err)
	}
	return alert, nil
}

func (s *Store) findAlert(ctx context.Context, id string) (*domain.WishlistAlert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, favorite_id, type, target_price, active, created_at
		FROM wishlist_alerts WHERE id = ?`, id)
	alert, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return alert, err
}

func scanAlert(row rowScanner, extra ...any) (*domain.WishlistAlert, error) {
	var a domain.WishlistAlert
	var alertType, createdAt string
	var target sql.NullString

	dest := append([]any{&a.ID, &a.FavoriteID, &alertType, &target, &a.Active, &createdAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning alert: %w", err)
	}

	a.Type = domain.AlertType(alertType)
	if target.Valid {
		d, err := decimal.NewFromString(target.String)
		if err != nil {
			return nil, fmt.Errorf("parsing target price of alert %s: %w", a.ID, err)
		}
		a.TargetPrice = &d
	}
	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

// CreateNotification persists a notification.
func (s *Store) CreateNotification(ctx context.Context, n domain.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, alert_id, type, message, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.AlertID, string(n.Type), n.Message, n.Read, formatTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	query := `SELECT id, user_id, alert_id, type, message, read, created_at, read_at
		FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	out := []domain.Notification{}
	for rows.Next() {
		var n domain.Notification
		var notifType, createdAt string
		var readAt sql.NullString
		if err := rows.Scan(&n.ID, &n.UserID, &n.AlertID, &notifType, &n.Message, &n.Read, &createdAt, &readAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		n.Type = domain.NotificationType(notifType)
		if n.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if readAt.Valid {
			t, err := parseTime(readAt.String)
			if err != nil {
				return nil, err
			}
			n.ReadAt = &t
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead marks a notification read. Unknown ids yield domain.ErrNotFound.
func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1, read_at = COALESCE(read_at, ?) WHERE id = ?`,
		formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("marking notification %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
