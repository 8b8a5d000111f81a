package cache

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/tavola/backend/internal/domain/costing"
	"github.com/tavola/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// RecipeCatalogFactory builds the recipe catalog the fulfillment service reads
// through, based on the configured cache backend
type RecipeCatalogFactory struct {
	cfg    config.FulfillmentConfig
	client *redis.Client
	logger *zap.Logger
}

// RecipeCatalogFactoryOption is a functional option for configuring the factory
type RecipeCatalogFactoryOption func(*RecipeCatalogFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) RecipeCatalogFactoryOption {
	return func(f *RecipeCatalogFactory) {
		f.logger = logger
	}
}

// WithRedisClient supplies the client used by the redis backend
func WithRedisClient(client *redis.Client) RecipeCatalogFactoryOption {
	return func(f *RecipeCatalogFactory) {
		f.client = client
	}
}

// NewRecipeCatalogFactory creates a new factory
func NewRecipeCatalogFactory(cfg config.FulfillmentConfig, opts ...RecipeCatalogFactoryOption) *RecipeCatalogFactory {
	f := &RecipeCatalogFactory{
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Wrap returns inner behind the configured cache. The second result is nil
// when caching is disabled.
func (f *RecipeCatalogFactory) Wrap(inner costing.RecipeCatalog) (costing.RecipeCatalog, *CachedRecipeCatalog, error) {
	switch f.cfg.RecipeCache {
	case "", config.RecipeCacheNone:
		return inner, nil, nil

	case config.RecipeCacheMemory:
		f.logger.Info("using in-memory recipe cache",
			zap.Int("size", f.cfg.RecipeCacheSize),
			zap.Duration("ttl", f.cfg.RecipeCacheTTL))
		cached := NewCachedRecipeCatalog(inner,
			NewInMemoryRecipeCache(f.cfg.RecipeCacheSize, f.cfg.RecipeCacheTTL),
			WithCatalogLogger(f.logger))
		return cached, cached, nil

	case config.RecipeCacheRedis:
		if f.client == nil {
			return nil, nil, fmt.Errorf("redis recipe cache requires a redis client")
		}
		f.logger.Info("using Redis recipe cache", zap.Duration("ttl", f.cfg.RecipeCacheTTL))
		cached := NewCachedRecipeCatalog(inner,
			NewRedisRecipeCache(f.client,
				WithRecipeTTL(f.cfg.RecipeCacheTTL),
				WithRecipeCacheLogger(f.logger)),
			WithRecipeInvalidator(NewRedisRecipeInvalidator(f.client, WithInvalidatorLogger(f.logger))),
			WithCatalogLogger(f.logger))
		return cached, cached, nil

	default:
		return nil, nil, fmt.Errorf("unknown recipe cache backend %q", f.cfg.RecipeCache)
	}
}

// NewRedisClientFromConfig connects using the application Redis settings
func NewRedisClientFromConfig(cfg config.RedisConfig) (*redis.Client, error) {
	return NewRedisClient(RedisConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
