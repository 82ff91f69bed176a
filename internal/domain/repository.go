package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations.
// Values are opaque serialized payloads; a missing or expired key returns ErrCacheMiss.
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// SourceAdapter fetches and searches listings at one structured retail source.
// Failures are reported as *SourceError. Adapters never retry.
type SourceAdapter interface {
	Name() string
	FetchProduct(ctx context.Context, url string) (*Listing, error)
	// SearchProduct returns an empty slice, not an error, when nothing matches.
	SearchProduct(ctx context.Context, query string) ([]Listing, error)
}

// Scraper is the generic fallback extractor for arbitrary product pages.
type Scraper interface {
	ScrapeProduct(ctx context.Context, url string) (*Listing, error)
	Close() error
}

// VectorIndex answers nearest-neighbour queries over product embeddings.
type VectorIndex interface {
	Query(ctx context.Context, embedding []float32, filter VectorFilter, topK int) ([]Neighbor, error)
}

// ProductRepository reads canonical product records.
type ProductRepository interface {
	FindProductsByIDs(ctx context.Context, ids []string) ([]ProductRecord, error)
}

// PreferenceRepository reads and writes user preferences.
// FindUserPreference returns ErrNotFound when the user has none.
type PreferenceRepository interface {
	FindUserPreference(ctx context.Context, userID string) (*UserPreference, error)
	UpsertUserPreference(ctx context.Context, pref UserPreference) error
}

// BehaviorRepository reads user behaviour used for collaborative filtering.
type BehaviorRepository interface {
	ListUserIDs(ctx context.Context) ([]string, error)
	FindUserBehavior(ctx context.Context, userID string) (*UserBehavior, error)
	FindFavoritesByUsers(ctx context.Context, userIDs []string, category string) ([]UserFavorite, error)
}

// BehaviorRecorder records the user interactions that feed collaborative filtering.
type BehaviorRecorder interface {
	AddFavorite(ctx context.Context, userID, productID string) (string, error)
	RecordView(ctx context.Context, userID, productID string) error
	LogSearch(ctx context.Context, userID, query, category string) error
}

// DetectionRepository reads the products matched by a detection result.
// It returns ErrNotFound when the detection does not exist.
type DetectionRepository interface {
	FindDetectionProducts(ctx context.Context, detectionID string) ([]ProductRecord, error)
	DetectionFacets(ctx context.Context, detectionID string) (*FilterFacets, error)
}

// AlertRepository manages wishlist alerts.
type AlertRepository interface {
	ListActiveAlerts(ctx context.Context) ([]AlertSubject, error)
	CreateAlert(ctx context.Context, alert WishlistAlert) (*WishlistAlert, error)
	UpdateAlert(ctx context.Context, id string, update AlertUpdate) (*WishlistAlert, error)
}

// NotificationRepository persists notifications.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

// NotificationPublisher delivers fired notifications to downstream consumers.
type NotificationPublisher interface {
	Publish(ctx context.Context, n Notification) error
}
