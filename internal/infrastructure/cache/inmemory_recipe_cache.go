package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/tavola/backend/internal/domain/costing"
)

// InMemoryRecipeCache is a size-bounded recipe cache local to the process.
// Entries expire after the configured TTL.
type InMemoryRecipeCache struct {
	lru *expirable.LRU[uuid.UUID, []costing.RecipeLine]
}

// NewInMemoryRecipeCache creates a cache holding at most size menu items
func NewInMemoryRecipeCache(size int, ttl time.Duration) *InMemoryRecipeCache {
	if size <= 0 {
		size = 1024
	}
	return &InMemoryRecipeCache{
		lru: expirable.NewLRU[uuid.UUID, []costing.RecipeLine](size, nil, ttl),
	}
}

// Get returns a copy of the cached lines
func (c *InMemoryRecipeCache) Get(_ context.Context, menuItemID uuid.UUID) ([]costing.RecipeLine, bool, error) {
	lines, ok := c.lru.Get(menuItemID)
	if !ok {
		return nil, false, nil
	}
	return cloneLines(lines), true, nil
}

// Set stores a copy of lines
func (c *InMemoryRecipeCache) Set(_ context.Context, menuItemID uuid.UUID, lines []costing.RecipeLine) error {
	c.lru.Add(menuItemID, cloneLines(lines))
	return nil
}

// Delete evicts menu items
func (c *InMemoryRecipeCache) Delete(_ context.Context, menuItemIDs ...uuid.UUID) error {
	for _, id := range menuItemIDs {
		c.lru.Remove(id)
	}
	return nil
}

// Len returns the number of cached menu items
func (c *InMemoryRecipeCache) Len() int {
	return c.lru.Len()
}

var _ RecipeCache = (*InMemoryRecipeCache)(nil)
