package costing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tavola/backend/internal/domain/shared"
)

// RecipeLine says how much of one store item a single unit of a menu item consumes.
// A menu item has at most one line per store item.
type RecipeLine struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	MenuItemID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_recipe_menu_store,priority:1"`
	StoreItemID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_recipe_menu_store,priority:2;index"`
	QuantityUsed decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Position     int             `gorm:"not null;default:0"`
	CreatedAt    time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RecipeLine) TableName() string {
	return "menu_item_recipe_lines"
}

// NewRecipeLine creates a recipe line
func NewRecipeLine(menuItemID, storeItemID uuid.UUID, quantityUsed decimal.Decimal, position int) (*RecipeLine, error) {
	if menuItemID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_MENU_ITEM", "Menu item ID cannot be empty")
	}
	if storeItemID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_STORE_ITEM", "Store item ID cannot be empty")
	}
	if !quantityUsed.IsPositive() {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Recipe quantity must be positive")
	}
	if !HasValidScale(quantityUsed) {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Recipe quantity allows at most 4 decimal places")
	}
	return &RecipeLine{
		ID:           uuid.New(),
		MenuItemID:   menuItemID,
		StoreItemID:  storeItemID,
		QuantityUsed: quantityUsed,
		Position:     position,
		CreatedAt:    time.Now(),
	}, nil
}

// RecipeCatalog resolves menu items to their recipe lines.
// It is read-only from the engine's point of view.
type RecipeCatalog interface {
	// Resolve returns the recipe lines of one menu item ordered by position.
	// A menu item with no lines yields a *RecipeNotFoundError.
	Resolve(ctx context.Context, menuItemID uuid.UUID) ([]RecipeLine, error)

	// ResolveMany returns recipe lines keyed by menu item. Menu items without
	// lines are absent from the map; this is not an error.
	ResolveMany(ctx context.Context, menuItemIDs []uuid.UUID) (map[uuid.UUID][]RecipeLine, error)
}
