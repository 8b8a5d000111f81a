package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tavola/backend/internal/domain/costing"
	"github.com/tavola/backend/internal/infrastructure/config"
)

// countingCatalog serves fixed recipes and records what it was asked for
type countingCatalog struct {
	mu       sync.Mutex
	recipes  map[uuid.UUID][]costing.RecipeLine
	resolved []uuid.UUID
	err      error
}

func (c *countingCatalog) Resolve(_ context.Context, id uuid.UUID) ([]costing.RecipeLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolved = append(c.resolved, id)
	if c.err != nil {
		return nil, c.err
	}
	lines, ok := c.recipes[id]
	if !ok {
		return nil, &costing.RecipeNotFoundError{MenuItemIDs: []uuid.UUID{id}}
	}
	return lines, nil
}

func (c *countingCatalog) ResolveMany(_ context.Context, ids []uuid.UUID) (map[uuid.UUID][]costing.RecipeLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolved = append(c.resolved, ids...)
	if c.err != nil {
		return nil, c.err
	}
	out := make(map[uuid.UUID][]costing.RecipeLine)
	for _, id := range ids {
		if lines, ok := c.recipes[id]; ok {
			out[id] = lines
		}
	}
	return out, nil
}

func (c *countingCatalog) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.resolved)
}

// brokenCache fails every operation
type brokenCache struct{}

func (brokenCache) Get(context.Context, uuid.UUID) ([]costing.RecipeLine, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (brokenCache) Set(context.Context, uuid.UUID, []costing.RecipeLine) error {
	return errors.New("connection refused")
}

func (brokenCache) Delete(context.Context, ...uuid.UUID) error {
	return errors.New("connection refused")
}

// loopbackInvalidator delivers published ids to its subscriber in-process
type loopbackInvalidator struct {
	mu        sync.Mutex
	published [][]uuid.UUID
	ch        chan []uuid.UUID
}

func newLoopbackInvalidator() *loopbackInvalidator {
	return &loopbackInvalidator{ch: make(chan []uuid.UUID, 8)}
}

func (l *loopbackInvalidator) Publish(_ context.Context, ids ...uuid.UUID) error {
	l.mu.Lock()
	l.published = append(l.published, ids)
	l.mu.Unlock()
	l.ch <- ids
	return nil
}

func (l *loopbackInvalidator) Subscribe(ctx context.Context, callback func([]uuid.UUID)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ids := <-l.ch:
			callback(ids)
		}
	}
}

func TestCachedRecipeCatalog_Resolve(t *testing.T) {
	ctx := context.Background()
	salad := uuid.New()
	inner := &countingCatalog{recipes: map[uuid.UUID][]costing.RecipeLine{salad: testLines(salad, "0.5")}}
	catalog := NewCachedRecipeCatalog(inner, NewInMemoryRecipeCache(16, time.Minute))

	for i := 0; i < 3; i++ {
		lines, err := catalog.Resolve(ctx, salad)
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, "0.5", lines[0].QuantityUsed.String())
	}

	assert.Equal(t, 1, inner.calls())
	hits, misses := catalog.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCachedRecipeCatalog_CachesMissingRecipes(t *testing.T) {
	ctx := context.Background()
	inner := &countingCatalog{recipes: map[uuid.UUID][]costing.RecipeLine{}}
	catalog := NewCachedRecipeCatalog(inner, NewInMemoryRecipeCache(16, time.Minute))
	unknown := uuid.New()

	for i := 0; i < 2; i++ {
		_, err := catalog.Resolve(ctx, unknown)
		require.Error(t, err)
		var notFound *costing.RecipeNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, []uuid.UUID{unknown}, notFound.MenuItemIDs)
	}
	assert.Equal(t, 1, inner.calls())
}

func TestCachedRecipeCatalog_ResolveMany(t *testing.T) {
	ctx := context.Background()
	salad, soup, unknown := uuid.New(), uuid.New(), uuid.New()
	inner := &countingCatalog{recipes: map[uuid.UUID][]costing.RecipeLine{
		salad: testLines(salad, "0.5"),
		soup:  testLines(soup, "0.3", "0.1"),
	}}
	catalog := NewCachedRecipeCatalog(inner, NewInMemoryRecipeCache(16, time.Minute))

	_, err := catalog.Resolve(ctx, salad)
	require.NoError(t, err)

	got, err := catalog.ResolveMany(ctx, []uuid.UUID{salad, soup, unknown, soup})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Len(t, got[soup], 2)
	_, ok := got[unknown]
	assert.False(t, ok)

	// only soup and unknown were loaded by the batch
	assert.Equal(t, 3, inner.calls())

	again, err := catalog.ResolveMany(ctx, []uuid.UUID{salad, soup, unknown})
	require.NoError(t, err)
	assert.Len(t, again, 2)
	assert.Equal(t, 3, inner.calls())
}

func TestCachedRecipeCatalog_ResolveManyError(t *testing.T) {
	inner := &countingCatalog{err: errors.New("db down")}
	catalog := NewCachedRecipeCatalog(inner, NewInMemoryRecipeCache(16, time.Minute))

	_, err := catalog.ResolveMany(context.Background(), []uuid.UUID{uuid.New()})
	assert.EqualError(t, err, "db down")
}

func TestCachedRecipeCatalog_FallsBackWhenCacheFails(t *testing.T) {
	ctx := context.Background()
	salad := uuid.New()
	inner := &countingCatalog{recipes: map[uuid.UUID][]costing.RecipeLine{salad: testLines(salad, "0.5")}}
	catalog := NewCachedRecipeCatalog(inner, brokenCache{})

	lines, err := catalog.Resolve(ctx, salad)
	require.NoError(t, err)
	assert.Len(t, lines, 1)

	got, err := catalog.ResolveMany(ctx, []uuid.UUID{salad})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 2, inner.calls())
}

func TestCachedRecipeCatalog_Invalidate(t *testing.T) {
	ctx := context.Background()
	salad := uuid.New()
	inner := &countingCatalog{recipes: map[uuid.UUID][]costing.RecipeLine{salad: testLines(salad, "0.5")}}
	store := NewInMemoryRecipeCache(16, time.Minute)
	invalidator := newLoopbackInvalidator()
	catalog := NewCachedRecipeCatalog(inner, store, WithRecipeInvalidator(invalidator))

	_, err := catalog.Resolve(ctx, salad)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())

	require.NoError(t, catalog.Invalidate(ctx, salad))
	assert.Equal(t, 0, store.Len())
	require.Len(t, invalidator.published, 1)
	assert.Equal(t, []uuid.UUID{salad}, invalidator.published[0])

	inner.recipes[salad] = testLines(salad, "0.75")
	lines, err := catalog.Resolve(ctx, salad)
	require.NoError(t, err)
	assert.Equal(t, "0.75", lines[0].QuantityUsed.String())

	assert.NoError(t, catalog.Invalidate(ctx))
}

func TestCachedRecipeCatalog_InvalidationSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	salad := uuid.New()
	inner := &countingCatalog{recipes: map[uuid.UUID][]costing.RecipeLine{salad: testLines(salad, "0.5")}}
	store := NewInMemoryRecipeCache(16, time.Minute)
	invalidator := newLoopbackInvalidator()
	catalog := NewCachedRecipeCatalog(inner, store, WithRecipeInvalidator(invalidator))

	done := make(chan error, 1)
	go func() { done <- catalog.StartInvalidationSubscription(ctx) }()

	_, err := catalog.Resolve(ctx, salad)
	require.NoError(t, err)

	// another process changed the recipe
	require.NoError(t, invalidator.Publish(ctx, salad))

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRecipeCatalogFactory_Wrap(t *testing.T) {
	inner := &countingCatalog{}

	t.Run("none returns the inner catalog", func(t *testing.T) {
		catalog, cached, err := NewRecipeCatalogFactory(config.FulfillmentConfig{RecipeCache: config.RecipeCacheNone}).Wrap(inner)
		require.NoError(t, err)
		assert.Nil(t, cached)
		assert.Same(t, inner, catalog)
	})

	t.Run("memory wraps the catalog", func(t *testing.T) {
		catalog, cached, err := NewRecipeCatalogFactory(config.FulfillmentConfig{
			RecipeCache:     config.RecipeCacheMemory,
			RecipeCacheSize: 8,
			RecipeCacheTTL:  time.Minute,
		}).Wrap(inner)
		require.NoError(t, err)
		require.NotNil(t, cached)
		assert.IsType(t, &CachedRecipeCatalog{}, catalog)
	})

	t.Run("redis needs a client", func(t *testing.T) {
		_, _, err := NewRecipeCatalogFactory(config.FulfillmentConfig{RecipeCache: config.RecipeCacheRedis}).Wrap(inner)
		assert.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, _, err := NewRecipeCatalogFactory(config.FulfillmentConfig{RecipeCache: "memcached"}).Wrap(inner)
		assert.Error(t, err)
	})
}
