package memstore

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/tavola/backend/internal/domain/costing"
)

// RecipeRepository is the in-memory recipe catalog
type RecipeRepository struct {
	store *Store
}

// Resolve returns the recipe lines of a menu item ordered by position
func (r *RecipeRepository) Resolve(_ context.Context, menuItemID uuid.UUID) ([]costing.RecipeLine, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	lines := r.store.recipes[menuItemID]
	if len(lines) == 0 {
		return nil, &costing.RecipeNotFoundError{MenuItemIDs: []uuid.UUID{menuItemID}}
	}
	return slices.Clone(lines), nil
}

// ResolveMany returns recipe lines keyed by menu item; menu items without lines are absent
func (r *RecipeRepository) ResolveMany(_ context.Context, menuItemIDs []uuid.UUID) (map[uuid.UUID][]costing.RecipeLine, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make(map[uuid.UUID][]costing.RecipeLine, len(menuItemIDs))
	for _, id := range menuItemIDs {
		if lines := r.store.recipes[id]; len(lines) > 0 {
			out[id] = slices.Clone(lines)
		}
	}
	return out, nil
}

// Create adds recipe lines; a second line for the same (menu item, store item) is rejected
func (r *RecipeRepository) Create(_ context.Context, lines ...*costing.RecipeLine) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	type pair struct{ menu, item uuid.UUID }
	seen := make(map[pair]struct{})
	for _, l := range lines {
		p := pair{l.MenuItemID, l.StoreItemID}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("duplicate recipe line for menu item %s and store item %s", l.MenuItemID, l.StoreItemID)
		}
		seen[p] = struct{}{}
		for _, existing := range r.store.recipes[l.MenuItemID] {
			if existing.StoreItemID == l.StoreItemID {
				return fmt.Errorf("duplicate recipe line for menu item %s and store item %s", l.MenuItemID, l.StoreItemID)
			}
		}
	}

	for _, l := range lines {
		recipe := append(r.store.recipes[l.MenuItemID], *l)
		slices.SortStableFunc(recipe, func(a, b costing.RecipeLine) int { return a.Position - b.Position })
		r.store.recipes[l.MenuItemID] = recipe
	}
	return nil
}

// DeleteByMenuItem removes a menu item's recipe
func (r *RecipeRepository) DeleteByMenuItem(_ context.Context, menuItemID uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.recipes, menuItemID)
	return nil
}

var _ costing.RecipeRepository = (*RecipeRepository)(nil)
