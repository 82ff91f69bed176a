package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/snapp/backend/internal/domain"
	"github.com/snapp/backend/internal/usecase"
)

// ProductResolver resolves product URLs and compares prices across stores.
type ProductResolver interface {
	GetProductDetails(ctx context.Context, rawURL string) (*domain.ProductDetails, error)
	FindBestPrices(ctx context.Context, productName string) (*domain.BestPrices, error)
}

// SimilarityFinder ranks catalog products against an image embedding.
type SimilarityFinder interface {
	FindSimilarProducts(ctx context.Context, q usecase.SimilarityQuery) ([]domain.SimilarityMatch, error)
}

// Personalizer serves personalised results and manages the signals behind them.
type Personalizer interface {
	GetPersonalizedResults(ctx context.Context, q usecase.PersonalizedQuery) ([]domain.SimilarityMatch, error)
	GetPreferences(ctx context.Context, userID string) (*domain.UserPreference, error)
	PutPreferences(ctx context.Context, pref domain.UserPreference) (*domain.UserPreference, error)
	UpdateUserPreferences(ctx context.Context, userID, detectionID string) error
	AddFavorite(ctx context.Context, userID, productID string) (string, error)
	RecordView(ctx context.Context, userID, productID string) error
	LogSearch(ctx context.Context, userID, query, category string) error
}

// AlertManager manages wishlist alerts and the notifications they raise.
type AlertManager interface {
	CreateAlert(ctx context.Context, favoriteID string, alertType domain.AlertType, targetPrice *decimal.Decimal) (*domain.WishlistAlert, error)
	UpdateAlert(ctx context.Context, id string, update domain.AlertUpdate) (*domain.WishlistAlert, error)
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

// FacetProvider returns the filter facets for a detection's results.
type FacetProvider interface {
	ForDetection(ctx context.Context, detectionID string) (*domain.FilterFacets, error)
}

// Services groups the use cases served over HTTP.
type Services struct {
	Stores          ProductResolver
	Ranking         SimilarityFinder
	Recommendations Personalizer
	Alerts          AlertManager
	Facets          FacetProvider
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	services Services
	logger   *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(services Services, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{services: services, logger: logger}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "snapp-backend",
		"version": "1.0.0",
	})
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrProductNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrScrape):
		status = http.StatusServiceUnavailable
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err))
		message = "internal server error"
	}
	c.JSON(status, gin.H{"success": false, "error": message})
}

func (h *Handler) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": message})
}

// GetProduct handles GET /stores/product?url=
func (h *Handler) GetProduct(c *gin.Context) {
	details, err := h.services.Stores.GetProductDetails(c.Request.Context(), c.Query("url"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, details)
}

// SearchStores handles GET /stores/search?query=
func (h *Handler) SearchStores(c *gin.Context) {
	prices, err := h.services.Stores.FindBestPrices(c.Request.Context(), c.Query("query"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, prices)
}

type similarRequest struct {
	Embedding []float32             `json:"embedding"`
	Category  string                `json:"category"`
	Criteria  *domain.MatchCriteria `json:"criteria"`
	Limit     int                   `json:"limit"`
}

// FindSimilar handles POST /matching/similar
func (h *Handler) FindSimilar(c *gin.Context) {
	var req similarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	matches, err := h.services.Ranking.FindSimilarProducts(c.Request.Context(), usecase.SimilarityQuery{
		Embedding: req.Embedding,
		Category:  req.Category,
		Criteria:  req.Criteria,
		Limit:     req.Limit,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, matches)
}

// GetRecommendations handles POST /recommendations/:userId
func (h *Handler) GetRecommendations(c *gin.Context) {
	var req similarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	matches, err := h.services.Recommendations.GetPersonalizedResults(c.Request.Context(), usecase.PersonalizedQuery{
		UserID:    c.Param("userId"),
		Embedding: req.Embedding,
		Category:  req.Category,
		Criteria:  req.Criteria,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, matches)
}

// GetPreferences handles GET /preferences/:userId
func (h *Handler) GetPreferences(c *gin.Context) {
	pref, err := h.services.Recommendations.GetPreferences(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, pref)
}

// PutPreferences handles PUT /preferences/:userId
func (h *Handler) PutPreferences(c *gin.Context) {
	var pref domain.UserPreference
	if err := c.ShouldBindJSON(&pref); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	pref.UserID = c.Param("userId")

	saved, err := h.services.Recommendations.PutPreferences(c.Request.Context(), pref)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, saved)
}

// LearnPreferences handles POST /preferences/:userId/detections/:detectionId
func (h *Handler) LearnPreferences(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("userId")
	if err := h.services.Recommendations.UpdateUserPreferences(ctx, userID, c.Param("detectionId")); err != nil {
		h.respondError(c, err)
		return
	}

	pref, err := h.services.Recommendations.GetPreferences(ctx, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, pref)
}

type productRequest struct {
	ProductID string `json:"productId"`
}

// AddFavorite handles POST /preferences/:userId/favorites
func (h *Handler) AddFavorite(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	id, err := h.services.Recommendations.AddFavorite(c.Request.Context(), c.Param("userId"), req.ProductID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, gin.H{"id": id})
}

// RecordView handles POST /preferences/:userId/views
func (h *Handler) RecordView(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	if err := h.services.Recommendations.RecordView(c.Request.Context(), c.Param("userId"), req.ProductID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true})
}

type searchLogRequest struct {
	Query    string `json:"query"`
	Category string `json:"category"`
}

// LogSearch handles POST /preferences/:userId/searches
func (h *Handler) LogSearch(c *gin.Context) {
	var req searchLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	if err := h.services.Recommendations.LogSearch(c.Request.Context(), c.Param("userId"), req.Query, req.Category); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true})
}

type createAlertRequest struct {
	FavoriteID  string           `json:"favoriteId"`
	Type        domain.AlertType `json:"type"`
	TargetPrice *decimal.Decimal `json:"targetPrice"`
}

// CreateAlert handles POST /notifications/alerts
func (h *Handler) CreateAlert(c *gin.Context) {
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	alert, err := h.services.Alerts.CreateAlert(c.Request.Context(), req.FavoriteID, req.Type, req.TargetPrice)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, alert)
}

// UpdateAlert handles PUT /notifications/alerts/:alertId
func (h *Handler) UpdateAlert(c *gin.Context) {
	var update domain.AlertUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	alert, err := h.services.Alerts.UpdateAlert(c.Request.Context(), c.Param("alertId"), update)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, alert)
}

// ListNotifications handles GET /notifications/:userId
func (h *Handler) ListNotifications(c *gin.Context) {
	unreadOnly := c.Query("unreadOnly") == "true"
	limit, err := queryInt(c, "limit")
	if err != nil {
		h.badRequest(c, "limit must be an integer")
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		h.badRequest(c, "offset must be an integer")
		return
	}

	notifications, err := h.services.Alerts.ListNotifications(c.Request.Context(), c.Param("userId"), unreadOnly, limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, notifications)
}

// MarkNotificationRead handles PUT /notifications/:notificationId/read
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	if err := h.services.Alerts.MarkNotificationRead(c.Request.Context(), c.Param("notificationId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetFilters handles GET /results/:detectionId/filters
func (h *Handler) GetFilters(c *gin.Context) {
	facets, err := h.services.Facets.ForDetection(c.Request.Context(), c.Param("detectionId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, facets)
}

// queryInt parses an optional integer query parameter; absent means zero.
func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
