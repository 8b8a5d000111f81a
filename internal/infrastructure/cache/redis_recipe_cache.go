package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/tavola/backend/internal/domain/costing"
	"go.uber.org/zap"
)

const (
	defaultRecipeKeyPrefix = "recipe:menu_item:"
	defaultRecipeTTL       = 5 * time.Minute
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisRecipeCache shares resolved recipes between processes
type RedisRecipeCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// RedisRecipeCacheOption is a functional option for configuring the cache
type RedisRecipeCacheOption func(*RedisRecipeCache)

// WithRecipeTTL sets how long recipes stay cached
func WithRecipeTTL(ttl time.Duration) RedisRecipeCacheOption {
	return func(c *RedisRecipeCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithRecipeKeyPrefix sets the key prefix
func WithRecipeKeyPrefix(prefix string) RedisRecipeCacheOption {
	return func(c *RedisRecipeCache) {
		if prefix != "" {
			c.keyPrefix = prefix
		}
	}
}

// WithRecipeCacheLogger sets the logger for the cache
func WithRecipeCacheLogger(logger *zap.Logger) RedisRecipeCacheOption {
	return func(c *RedisRecipeCache) {
		c.logger = logger
	}
}

// NewRedisRecipeCache creates a cache on an existing client.
// The caller keeps ownership of the client.
func NewRedisRecipeCache(client *redis.Client, opts ...RedisRecipeCacheOption) *RedisRecipeCache {
	c := &RedisRecipeCache{
		client:    client,
		keyPrefix: defaultRecipeKeyPrefix,
		ttl:       defaultRecipeTTL,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// cachedRecipeLine is the JSON form of a recipe line
type cachedRecipeLine struct {
	ID           uuid.UUID       `json:"id"`
	StoreItemID  uuid.UUID       `json:"store_item_id"`
	QuantityUsed decimal.Decimal `json:"quantity_used"`
	Position     int             `json:"position"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (c *RedisRecipeCache) key(menuItemID uuid.UUID) string {
	return c.keyPrefix + menuItemID.String()
}

// Get retrieves a recipe from Redis
func (c *RedisRecipeCache) Get(ctx context.Context, menuItemID uuid.UUID) ([]costing.RecipeLine, bool, error) {
	key := c.key(menuItemID)
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get recipe from cache: %w", err)
	}

	lines, err := decodeRecipe(menuItemID, data)
	if err != nil {
		c.logger.Error("Failed to unmarshal cached recipe",
			zap.String("menu_item_id", menuItemID.String()),
			zap.Error(err))
		// Delete corrupted cache entry
		_ = c.client.Del(ctx, key)
		return nil, false, err
	}
	return lines, true, nil
}

// Set stores a recipe in Redis with the configured TTL
func (c *RedisRecipeCache) Set(ctx context.Context, menuItemID uuid.UUID, lines []costing.RecipeLine) error {
	data, err := encodeRecipe(lines)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key(menuItemID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache recipe: %w", err)
	}
	return nil
}

// Delete removes recipes from Redis
func (c *RedisRecipeCache) Delete(ctx context.Context, menuItemIDs ...uuid.UUID) error {
	if len(menuItemIDs) == 0 {
		return nil
	}
	keys := make([]string, len(menuItemIDs))
	for i, id := range menuItemIDs {
		keys[i] = c.key(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cached recipes: %w", err)
	}
	return nil
}

func encodeRecipe(lines []costing.RecipeLine) ([]byte, error) {
	out := make([]cachedRecipeLine, len(lines))
	for i, l := range lines {
		out[i] = cachedRecipeLine{
			ID:           l.ID,
			StoreItemID:  l.StoreItemID,
			QuantityUsed: l.QuantityUsed,
			Position:     l.Position,
			CreatedAt:    l.CreatedAt,
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recipe: %w", err)
	}
	return data, nil
}

func decodeRecipe(menuItemID uuid.UUID, data []byte) ([]costing.RecipeLine, error) {
	var cached []cachedRecipeLine
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recipe: %w", err)
	}
	lines := make([]costing.RecipeLine, len(cached))
	for i, l := range cached {
		lines[i] = costing.RecipeLine{
			ID:           l.ID,
			MenuItemID:   menuItemID,
			StoreItemID:  l.StoreItemID,
			QuantityUsed: l.QuantityUsed,
			Position:     l.Position,
			CreatedAt:    l.CreatedAt,
		}
	}
	return lines, nil
}

var _ RecipeCache = (*RedisRecipeCache)(nil)
