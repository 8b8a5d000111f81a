package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tavola/backend/internal/domain/costing"
	"github.com/tavola/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormRecipeRepository implements RecipeRepository using GORM
type GormRecipeRepository struct {
	db *gorm.DB
}

// NewGormRecipeRepository creates a new GormRecipeRepository
func NewGormRecipeRepository(db *gorm.DB) *GormRecipeRepository {
	return &GormRecipeRepository{db: db}
}

// Resolve returns the recipe lines of a menu item, or ErrRecipeNotFound
func (r *GormRecipeRepository) Resolve(ctx context.Context, menuItemID uuid.UUID) ([]costing.RecipeLine, error) {
	var lines []costing.RecipeLine
	if err := r.db.WithContext(ctx).
		Where("menu_item_id = ?", menuItemID).
		Order("position, store_item_id").
		Find(&lines).Error; err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, &costing.RecipeNotFoundError{MenuItemIDs: []uuid.UUID{menuItemID}}
	}
	return lines, nil
}

// ResolveMany loads the recipes of several menu items in one query.
// Menu items without lines are absent from the result.
func (r *GormRecipeRepository) ResolveMany(ctx context.Context, menuItemIDs []uuid.UUID) (map[uuid.UUID][]costing.RecipeLine, error) {
	ids := costing.SortedUniqueIDs(menuItemIDs)
	out := make(map[uuid.UUID][]costing.RecipeLine, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var lines []costing.RecipeLine
	if err := r.db.WithContext(ctx).
		Where("menu_item_id IN ?", ids).
		Order("menu_item_id, position, store_item_id").
		Find(&lines).Error; err != nil {
		return nil, err
	}
	for _, l := range lines {
		out[l.MenuItemID] = append(out[l.MenuItemID], l)
	}
	return out, nil
}

// Create inserts recipe lines in one statement
func (r *GormRecipeRepository) Create(ctx context.Context, lines ...*costing.RecipeLine) error {
	if len(lines) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(lines).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.NewDomainError("DUPLICATE_RECIPE_LINE", "Menu item already has a line for this store item")
		}
		return err
	}
	return nil
}

// DeleteByMenuItem removes every recipe line of a menu item
func (r *GormRecipeRepository) DeleteByMenuItem(ctx context.Context, menuItemID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("menu_item_id = ?", menuItemID).
		Delete(&costing.RecipeLine{}).Error
}

var _ costing.RecipeRepository = (*GormRecipeRepository)(nil)
