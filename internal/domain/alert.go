package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertType selects how a wishlist alert is evaluated.
type AlertType string

const (
	AlertPriceDrop   AlertType = "PRICE_DROP"
	AlertBackInStock AlertType = "BACK_IN_STOCK"
	AlertAnyChange   AlertType = "ANY_CHANGE"
)

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	switch t {
	case AlertPriceDrop, AlertBackInStock, AlertAnyChange:
		return true
	}
	return false
}

// NotificationType is the kind of notification raised by a fired alert.
type NotificationType string

const (
	NotificationPriceDecrease NotificationType = "PRICE_DECREASE"
	NotificationPriceIncrease NotificationType = "PRICE_INCREASE"
	NotificationBackInStock   NotificationType = "BACK_IN_STOCK"
)

// WishlistAlert is a user-defined threshold on a favourited product.
type WishlistAlert struct {
	ID          string           `json:"id"`
	FavoriteID  string           `json:"favoriteId"`
	Type        AlertType        `json:"type"`
	TargetPrice *decimal.Decimal `json:"targetPrice,omitempty"`
	Active      bool             `json:"active"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// AlertSubject is an active alert joined with its favourite's owner and product.
type AlertSubject struct {
	Alert       WishlistAlert
	UserID      string
	ProductID   string
	ProductName string
}

// Notification is a persisted, user-visible message produced by a fired alert.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	AlertID   string           `json:"alertId"`
	Type      NotificationType `json:"type"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
	ReadAt    *time.Time       `json:"readAt,omitempty"`
}

// AlertOutcome is the evaluation result for one alert in a sweep.
type AlertOutcome struct {
	AlertID      string
	ProductID    string
	CurrentPrice *decimal.Decimal
	Fired        *NotificationType
	Err          error
}

// SweepReport summarizes one alert sweep.
type SweepReport struct {
	Evaluated int
	Fired     int
	Failed    int
	Outcomes  []AlertOutcome
}

// AlertUpdate carries the optional fields of an explicit alert edit.
type AlertUpdate struct {
	Active      *bool            `json:"active,omitempty"`
	TargetPrice *decimal.Decimal `json:"targetPrice,omitempty"`
}
