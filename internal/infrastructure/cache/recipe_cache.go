package cache

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tavola/backend/internal/domain/costing"
	"go.uber.org/zap"
)

// RecipeCache stores resolved recipes by menu item.
// An empty, non-nil slice records that the menu item has no recipe.
type RecipeCache interface {
	// Get returns the cached lines and whether the menu item was cached at all
	Get(ctx context.Context, menuItemID uuid.UUID) ([]costing.RecipeLine, bool, error)
	Set(ctx context.Context, menuItemID uuid.UUID, lines []costing.RecipeLine) error
	Delete(ctx context.Context, menuItemIDs ...uuid.UUID) error
}

// RecipeInvalidator broadcasts recipe changes to other processes
type RecipeInvalidator interface {
	Publish(ctx context.Context, menuItemIDs ...uuid.UUID) error
	Subscribe(ctx context.Context, callback func(menuItemIDs []uuid.UUID)) error
}

// CachedRecipeCatalog is a cache-aside RecipeCatalog. Cache failures are
// logged and the inner catalog is used instead.
type CachedRecipeCatalog struct {
	inner       costing.RecipeCatalog
	cache       RecipeCache
	invalidator RecipeInvalidator
	logger      *zap.Logger

	hits   int64
	misses int64
}

// CachedRecipeCatalogOption is a functional option for configuring the catalog
type CachedRecipeCatalogOption func(*CachedRecipeCatalog)

// WithRecipeInvalidator makes Invalidate broadcast to other processes
func WithRecipeInvalidator(invalidator RecipeInvalidator) CachedRecipeCatalogOption {
	return func(c *CachedRecipeCatalog) {
		c.invalidator = invalidator
	}
}

// WithCatalogLogger sets the logger for the catalog
func WithCatalogLogger(logger *zap.Logger) CachedRecipeCatalogOption {
	return func(c *CachedRecipeCatalog) {
		c.logger = logger
	}
}

// NewCachedRecipeCatalog wraps inner with cache
func NewCachedRecipeCatalog(inner costing.RecipeCatalog, cache RecipeCache, opts ...CachedRecipeCatalogOption) *CachedRecipeCatalog {
	c := &CachedRecipeCatalog{
		inner:  inner,
		cache:  cache,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve returns the recipe of one menu item
func (c *CachedRecipeCatalog) Resolve(ctx context.Context, menuItemID uuid.UUID) ([]costing.RecipeLine, error) {
	if lines, ok := c.lookup(ctx, menuItemID); ok {
		if len(lines) == 0 {
			return nil, &costing.RecipeNotFoundError{MenuItemIDs: []uuid.UUID{menuItemID}}
		}
		return lines, nil
	}

	lines, err := c.inner.Resolve(ctx, menuItemID)
	if err != nil {
		if errors.Is(err, costing.ErrRecipeNotFound) {
			c.store(ctx, menuItemID, []costing.RecipeLine{})
		}
		return nil, err
	}
	c.store(ctx, menuItemID, lines)
	return cloneLines(lines), nil
}

// ResolveMany returns recipes keyed by menu item, loading only the cache misses
func (c *CachedRecipeCatalog) ResolveMany(ctx context.Context, menuItemIDs []uuid.UUID) (map[uuid.UUID][]costing.RecipeLine, error) {
	ids := costing.SortedUniqueIDs(menuItemIDs)
	out := make(map[uuid.UUID][]costing.RecipeLine, len(ids))
	missing := make([]uuid.UUID, 0, len(ids))

	for _, id := range ids {
		lines, ok := c.lookup(ctx, id)
		if !ok {
			missing = append(missing, id)
			continue
		}
		if len(lines) > 0 {
			out[id] = lines
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := c.inner.ResolveMany(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, id := range missing {
		lines := loaded[id]
		if len(lines) == 0 {
			c.store(ctx, id, []costing.RecipeLine{})
			continue
		}
		c.store(ctx, id, lines)
		out[id] = cloneLines(lines)
	}
	return out, nil
}

// Invalidate drops cached recipes after they change and tells other
// processes to do the same
func (c *CachedRecipeCatalog) Invalidate(ctx context.Context, menuItemIDs ...uuid.UUID) error {
	if len(menuItemIDs) == 0 {
		return nil
	}
	if err := c.cache.Delete(ctx, menuItemIDs...); err != nil {
		return err
	}
	if c.invalidator != nil {
		return c.invalidator.Publish(ctx, menuItemIDs...)
	}
	return nil
}

// StartInvalidationSubscription evicts recipes invalidated by other
// processes. It blocks until ctx is done.
func (c *CachedRecipeCatalog) StartInvalidationSubscription(ctx context.Context) error {
	if c.invalidator == nil {
		return nil
	}
	return c.invalidator.Subscribe(ctx, func(ids []uuid.UUID) {
		if err := c.cache.Delete(context.WithoutCancel(ctx), ids...); err != nil {
			c.logger.Warn("Failed to evict invalidated recipes", zap.Int("count", len(ids)), zap.Error(err))
		}
	})
}

// Stats returns the hit and miss counts
func (c *CachedRecipeCatalog) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

func (c *CachedRecipeCatalog) lookup(ctx context.Context, menuItemID uuid.UUID) ([]costing.RecipeLine, bool) {
	lines, ok, err := c.cache.Get(ctx, menuItemID)
	if err != nil {
		c.logger.Warn("Recipe cache read failed",
			zap.String("menu_item_id", menuItemID.String()),
			zap.Error(err))
		ok = false
	}
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	atomic.AddInt64(&c.hits, 1)
	return lines, true
}

func (c *CachedRecipeCatalog) store(ctx context.Context, menuItemID uuid.UUID, lines []costing.RecipeLine) {
	if err := c.cache.Set(ctx, menuItemID, lines); err != nil {
		c.logger.Warn("Recipe cache write failed",
			zap.String("menu_item_id", menuItemID.String()),
			zap.Error(err))
	}
}

func cloneLines(lines []costing.RecipeLine) []costing.RecipeLine {
	out := make([]costing.RecipeLine, len(lines))
	copy(out, lines)
	return out
}

var _ costing.RecipeCatalog = (*CachedRecipeCatalog)(nil)
