package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/snapp/backend/config"
	httpDelivery "github.com/snapp/backend/internal/delivery/http"
	"github.com/snapp/backend/internal/domain"
	"github.com/snapp/backend/internal/infrastructure/cache"
	"github.com/snapp/backend/internal/infrastructure/catalog"
	"github.com/snapp/backend/internal/infrastructure/notify"
	"github.com/snapp/backend/internal/infrastructure/scraper"
	"github.com/snapp/backend/internal/infrastructure/stores"
	"github.com/snapp/backend/internal/infrastructure/vector"
	"github.com/snapp/backend/internal/logging"
	"github.com/snapp/backend/internal/usecase"
)

const redisPingTimeout = 3 * time.Second

// app holds every wired service and the resources that must be released.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	catalog *catalog.Store
	cache   *cache.Cache

	stores          *usecase.StoreResolution
	ranking         *usecase.SimilarityRanking
	recommendations *usecase.Recommendation
	alerts          *usecase.AlertEvaluator
	facets          *usecase.FilterFacets

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := logging.New(cfg.Server.Environment, cfg.Log.Level)
	a := &app{cfg: cfg, logger: logger}

	repo, err := newCacheBackend(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, err
	}
	a.cache = cache.New(repo, logger, cfg.Cache.TTL)
	a.closers = append(a.closers, a.cache.Close)

	chain, err := buildChain(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.stores = usecase.NewStoreResolution(chain, scraper.New(newRenderer(cfg.Scraper)), a.cache, usecase.StoreResolutionConfig{
		ProductTTL: cfg.Cache.TTL,
		SearchTTL:  cfg.Cache.SearchTTL,
		Shipping:   shippingRules(cfg.Sources),
	})
	a.closers = append(a.closers, a.stores.Close)

	a.catalog, err = catalog.Open(cfg.Catalog.Path)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	a.closers = append(a.closers, a.catalog.Close)

	index, err := a.vectorIndex(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.ranking = usecase.NewSimilarityRanking(index, a.catalog)
	a.recommendations = usecase.NewRecommendation(
		a.ranking, a.catalog, a.catalog, a.catalog, a.catalog, a.cache,
		usecase.RecommendationConfig{},
	)
	a.facets = usecase.NewFilterFacets(a.catalog, a.cache, cfg.Cache.FacetTTL)

	var publisher domain.NotificationPublisher
	if len(cfg.Alerts.KafkaBrokers) > 0 {
		kafka, err := notify.NewKafkaPublisher(cfg.Alerts.KafkaBrokers, cfg.Alerts.KafkaTopic)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("creating notification publisher: %w", err)
		}
		a.closers = append(a.closers, kafka.Close)
		publisher = kafka
		logger.Info("publishing notifications to kafka", slog.String("topic", cfg.Alerts.KafkaTopic))
	}
	a.alerts = usecase.NewAlertEvaluator(a.catalog, a.catalog, a.stores, a.cache, publisher)

	return a, nil
}

func (a *app) vectorIndex(ctx context.Context) (domain.VectorIndex, error) {
	if a.cfg.Vector.Backend != "pgvector" {
		return vector.NewSQLiteIndex(a.catalog.DB()), nil
	}

	index, err := vector.NewPGVectorIndex(ctx, vector.PGConfig{
		DSN:            a.cfg.Vector.PostgresDSN,
		Dimensions:     a.cfg.Vector.Dimensions,
		MigrateOnStart: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to pgvector: %w", err)
	}
	a.closers = append(a.closers, func() error {
		index.Close()
		return nil
	})
	return index, nil
}

func (a *app) handler() *httpDelivery.Handler {
	return httpDelivery.NewHandler(httpDelivery.Services{
		Stores:          a.stores,
		Ranking:         a.ranking,
		Recommendations: a.recommendations,
		Alerts:          a.alerts,
		Facets:          a.facets,
	}, a.logger)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// newCacheBackend picks the configured backend. An unreachable redis only
// logs a warning; the cache layer treats its errors as misses.
func newCacheBackend(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (domain.CacheRepository, error) {
	if cfg.Type == "redis" {
		redis, err := cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := redis.Ping(pingCtx); err != nil {
			logger.Warn("redis unreachable, caching degraded", slog.Any("error", err))
		}
		return redis, nil
	}
	return cache.NewMemoryCache(), nil
}

func newRenderer(cfg config.ScraperConfig) scraper.Renderer {
	if cfg.Renderer == "http" {
		return scraper.NewHTTPRenderer(cfg.UserAgent, cfg.Timeout)
	}
	return scraper.NewChromeRenderer(cfg.UserAgent, cfg.Timeout)
}

// buildChain routes Amazon URLs first, then every configured retail source in
// file order.
func buildChain(cfg *config.Config) (*stores.Chain, error) {
	httpOpts := stores.HTTPOptions{
		Timeout:           cfg.HTTP.Timeout,
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
	}

	var routes []stores.Route
	if cfg.Amazon.Enabled() {
		routes = append(routes, stores.Route{
			Match: stores.IsAmazonURL,
			Adapter: stores.NewAmazonAdapter(stores.AmazonConfig{
				AccessKey:  cfg.Amazon.AccessKey,
				SecretKey:  cfg.Amazon.SecretKey,
				PartnerTag: cfg.Amazon.PartnerTag,
				Region:     cfg.Amazon.Region,
				BaseURL:    cfg.Amazon.Endpoint(),
				HTTP:       httpOpts,
			}),
		})
	}

	for _, src := range cfg.Sources {
		adapter, err := stores.NewRetailAdapter(stores.RetailConfig{
			Name:    src.Name,
			BaseURL: src.BaseURL,
			APIKey:  src.APIKey,
			HTTP:    httpOpts,
		})
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		routes = append(routes, stores.Route{Match: stores.HostMatcher(src.HostPattern), Adapter: adapter})
	}

	return stores.NewChain(routes...), nil
}

func shippingRules(sources []config.SourceConfig) usecase.ShippingRules {
	rules := usecase.DefaultShippingRules()
	for _, src := range sources {
		if !src.HasShippingRule() {
			continue
		}
		rules = rules.With(src.Name, usecase.ShippingRule{
			FreeThreshold: decimal.NewFromFloat(src.FreeShippingThreshold),
			Rate:          decimal.NewFromFloat(src.ShippingRate),
			Time:          src.ShippingTime,
		})
	}
	return rules
}
