package costing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// staticCatalog is a map-backed RecipeCatalog
type staticCatalog struct {
	recipes map[uuid.UUID][]RecipeLine
	err     error
}

func newStaticCatalog() *staticCatalog {
	return &staticCatalog{recipes: make(map[uuid.UUID][]RecipeLine)}
}

func (c *staticCatalog) add(t *testing.T, menuItemID, storeItemID uuid.UUID, qty string) {
	t.Helper()
	line, err := NewRecipeLine(menuItemID, storeItemID, dec(qty), len(c.recipes[menuItemID]))
	require.NoError(t, err)
	c.recipes[menuItemID] = append(c.recipes[menuItemID], *line)
}

func (c *staticCatalog) Resolve(_ context.Context, menuItemID uuid.UUID) ([]RecipeLine, error) {
	if c.err != nil {
		return nil, c.err
	}
	lines := c.recipes[menuItemID]
	if len(lines) == 0 {
		return nil, &RecipeNotFoundError{MenuItemIDs: []uuid.UUID{menuItemID}}
	}
	return lines, nil
}

func (c *staticCatalog) ResolveMany(_ context.Context, menuItemIDs []uuid.UUID) (map[uuid.UUID][]RecipeLine, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make(map[uuid.UUID][]RecipeLine)
	for _, id := range menuItemIDs {
		if lines := c.recipes[id]; len(lines) > 0 {
			out[id] = lines
		}
	}
	return out, nil
}

func createTestStoreItem(t *testing.T, name, onHand, cost string) *StoreItem {
	t.Helper()
	item, err := NewStoreItem(name, "kg", dec(onHand), dec(cost))
	require.NoError(t, err)
	return item
}

// kitchen is the salad/soup fixture: Tomato 10 kg at 2.00/kg,
// Salad uses 0.5 kg per unit and Soup uses 0.3 kg per unit.
type kitchen struct {
	tomato  *StoreItem
	salad   uuid.UUID
	soup    uuid.UUID
	catalog *staticCatalog
}

func newKitchen(t *testing.T) *kitchen {
	t.Helper()
	k := &kitchen{
		tomato:  createTestStoreItem(t, "Tomato", "10", "2.00"),
		salad:   uuid.New(),
		soup:    uuid.New(),
		catalog: newStaticCatalog(),
	}
	k.catalog.add(t, k.salad, k.tomato.ID, "0.5")
	k.catalog.add(t, k.soup, k.tomato.ID, "0.3")
	return k
}

func (k *kitchen) sale(t *testing.T, saladQty, soupQty string) *Sale {
	t.Helper()
	sale, err := NewSale(uuid.New(), []SaleLineInput{
		{MenuItemID: k.salad, Quantity: dec(saladQty), UnitPrice: dec("8.50")},
		{MenuItemID: k.soup, Quantity: dec(soupQty), UnitPrice: dec("6.00")},
	})
	require.NoError(t, err)
	return sale
}
