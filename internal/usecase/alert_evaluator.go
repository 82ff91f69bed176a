package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/snapp/backend/internal/domain"
	"github.com/snapp/backend/internal/infrastructure/cache"
	"github.com/snapp/backend/internal/metrics"
)

const defaultNotificationLimit = 20

// errNoListings is recorded when a product has no current listing anywhere.
var errNoListings = errors.New("no listings for product")

// PriceResolver resolves the current offers for a product name.
type PriceResolver interface {
	FindBestPrices(ctx context.Context, productName string) (*domain.BestPrices, error)
}

// AlertEvaluator runs wishlist alert sweeps and manages alerts and notifications.
type AlertEvaluator struct {
	alerts        domain.AlertRepository
	notifications domain.NotificationRepository
	prices        PriceResolver
	cache         *cache.Cache
	publisher     domain.NotificationPublisher
	now           func() time.Time
	newID         func() string
}

// NewAlertEvaluator creates the evaluator. publisher may be nil, in which case
// notifications are only persisted.
func NewAlertEvaluator(
	alerts domain.AlertRepository,
	notifications domain.NotificationRepository,
	prices PriceResolver,
	c *cache.Cache,
	publisher domain.NotificationPublisher,
) *AlertEvaluator {
	return &AlertEvaluator{
		alerts:        alerts,
		notifications: notifications,
		prices:        prices,
		cache:         c,
		publisher:     publisher,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// Sweep evaluates every active alert once. A failure on one alert is recorded
// in its outcome and never stops the sweep; the error return is reserved for
// failing to list alerts at all.
func (e *AlertEvaluator) Sweep(ctx context.Context) (*domain.SweepReport, error) {
	subjects, err := e.alerts.ListActiveAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing active alerts: %w", err)
	}

	report := &domain.SweepReport{Outcomes: make([]domain.AlertOutcome, 0, len(subjects))}
	lastPrices := make(map[string]*decimal.Decimal)
	for _, sub := range subjects {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		previous, seen := lastPrices[sub.ProductID]
		if !seen {
			previous = e.lastPrice(ctx, sub.ProductID)
			lastPrices[sub.ProductID] = previous
		}

		outcome := e.evaluate(ctx, sub, previous)
		report.Evaluated++
		result := "quiet"
		switch {
		case outcome.Fired != nil:
			report.Fired++
			result = "fired"
		case outcome.Err != nil:
			report.Failed++
			result = "failed"
		}
		metrics.AlertsEvaluatedTotal.WithLabelValues(string(sub.Alert.Type), result).Inc()
		report.Outcomes = append(report.Outcomes, outcome)
	}
	return report, nil
}

func (e *AlertEvaluator) lastPrice(ctx context.Context, productID string) *decimal.Decimal {
	var p decimal.Decimal
	if !e.cache.GetJSON(ctx, cache.LastPriceKey(productID), &p) {
		return nil
	}
	return &p
}

func (e *AlertEvaluator) evaluate(ctx context.Context, sub domain.AlertSubject, previous *decimal.Decimal) domain.AlertOutcome {
	outcome := domain.AlertOutcome{AlertID: sub.Alert.ID, ProductID: sub.ProductID}

	best, err := e.prices.FindBestPrices(ctx, sub.ProductName)
	if err != nil {
		outcome.Err = fmt.Errorf("resolving price for %s: %w", sub.ProductName, err)
		return outcome
	}
	cheapest, ok := best.Cheapest()
	if !ok {
		outcome.Err = errNoListings
		return outcome
	}
	current := cheapest.Price
	outcome.CurrentPrice = &current

	var fired domain.NotificationType
	var message string
	switch sub.Alert.Type {
	case domain.AlertPriceDrop:
		if target := sub.Alert.TargetPrice; target != nil && current.LessThanOrEqual(*target) {
			fired = domain.NotificationPriceDecrease
			message = fmt.Sprintf("Price drop alert: %s is now $%s (Target: $%s)",
				sub.ProductName, current.StringFixed(2), target.StringFixed(2))
		}
	case domain.AlertBackInStock:
		if best.AnyInStock() {
			fired = domain.NotificationBackInStock
			message = fmt.Sprintf("%s is back in stock!", sub.ProductName)
		}
	case domain.AlertAnyChange:
		if previous != nil && !current.Equal(*previous) {
			fired = domain.NotificationPriceIncrease
			if current.LessThan(*previous) {
				fired = domain.NotificationPriceDecrease
			}
			message = fmt.Sprintf("Price changed for %s: $%s → $%s",
				sub.ProductName, previous.StringFixed(2), current.StringFixed(2))
		}
	}

	e.cache.SetJSON(ctx, cache.LastPriceKey(sub.ProductID), current, cache.LastPriceTTL)

	if fired == "" {
		return outcome
	}
	outcome.Fired = &fired
	outcome.Err = e.notify(ctx, domain.Notification{
		ID:        e.newID(),
		UserID:    sub.UserID,
		AlertID:   sub.Alert.ID,
		Type:      fired,
		Message:   message,
		CreatedAt: e.now().UTC(),
	})
	return outcome
}

func (e *AlertEvaluator) notify(ctx context.Context, n domain.Notification) error {
	if err := e.notifications.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("saving notification: %w", err)
	}
	if e.publisher == nil {
		return nil
	}
	if err := e.publisher.Publish(ctx, n); err != nil {
		return fmt.Errorf("publishing notification: %w", err)
	}
	return nil
}

// CreateAlert validates and stores a new alert on a favourite.
func (e *AlertEvaluator) CreateAlert(ctx context.Context, favoriteID string, alertType domain.AlertType, targetPrice *decimal.Decimal) (*domain.WishlistAlert, error) {
	if strings.TrimSpace(favoriteID) == "" {
		return nil, &domain.ValidationError{Field: "favoriteId", Reason: "is required"}
	}
	if !alertType.Valid() {
		return nil, &domain.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown alert type %q", alertType)}
	}
	if err := validateTarget(alertType, targetPrice); err != nil {
		return nil, err
	}

	return e.alerts.CreateAlert(ctx, domain.WishlistAlert{
		ID:          e.newID(),
		FavoriteID:  favoriteID,
		Type:        alertType,
		TargetPrice: targetPrice,
		Active:      true,
		CreatedAt:   e.now().UTC(),
	})
}

// UpdateAlert applies an explicit edit to an alert.
func (e *AlertEvaluator) UpdateAlert(ctx context.Context, id string, update domain.AlertUpdate) (*domain.WishlistAlert, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &domain.ValidationError{Field: "id", Reason: "is required"}
	}
	if update.TargetPrice != nil && !update.TargetPrice.IsPositive() {
		return nil, &domain.ValidationError{Field: "targetPrice", Reason: "must be positive"}
	}
	return e.alerts.UpdateAlert(ctx, id, update)
}

func validateTarget(alertType domain.AlertType, target *decimal.Decimal) error {
	if target != nil && !target.IsPositive() {
		return &domain.ValidationError{Field: "targetPrice", Reason: "must be positive"}
	}
	if alertType == domain.AlertPriceDrop && target == nil {
		return &domain.ValidationError{Field: "targetPrice", Reason: "is required for PRICE_DROP alerts"}
	}
	return nil
}

// ListNotifications pages through a user's notifications, newest first.
// A non-positive limit means 20.
func (e *AlertEvaluator) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &domain.ValidationError{Field: "userId", Reason: "is required"}
	}
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if offset < 0 {
		offset = 0
	}
	return e.notifications.ListNotifications(ctx, userID, unreadOnly, limit, offset)
}

// MarkNotificationRead marks one notification read.
func (e *AlertEvaluator) MarkNotificationRead(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return &domain.ValidationError{Field: "id", Reason: "is required"}
	}
	return e.notifications.MarkNotificationRead(ctx, id)
}
