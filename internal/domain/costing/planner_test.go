package costing

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumptionPlanner_Plan(t *testing.T) {
	ctx := context.Background()

	t.Run("aggregates shared store item across lines", func(t *testing.T) {
		k := newKitchen(t)
		sale := k.sale(t, "4", "2")

		plan, err := NewConsumptionPlanner(k.catalog).Plan(ctx, sale.SaleLines())

		require.NoError(t, err)
		demands := plan.Demands()
		require.Len(t, demands, 1)
		assert.Equal(t, k.tomato.ID, demands[0].StoreItemID)
		assert.Equal(t, "2.6", demands[0].Quantity.String())

		contributions := plan.Contributions()
		require.Len(t, contributions, 2)
		assert.Equal(t, sale.Details[0].ID, contributions[0].SaleDetailID)
		assert.Equal(t, "2", contributions[0].Quantity.String())
		assert.Equal(t, sale.Details[1].ID, contributions[1].SaleDetailID)
		assert.Equal(t, "0.6", contributions[1].Quantity.String())
		assert.Empty(t, plan.Unresolved())
	})

	t.Run("demands are sorted by store item id", func(t *testing.T) {
		catalog := newStaticCatalog()
		menu := uuid.New()
		ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
		for _, id := range ids {
			catalog.add(t, menu, id, "1")
		}

		plan, err := NewConsumptionPlanner(catalog).Plan(ctx, []SaleLine{
			{DetailID: uuid.New(), MenuItemID: menu, Quantity: dec("1")},
		})

		require.NoError(t, err)
		assert.Equal(t, SortedUniqueIDs(ids), plan.StoreItemIDs())
	})

	t.Run("no rounding of fractional demand", func(t *testing.T) {
		catalog := newStaticCatalog()
		menu, item := uuid.New(), uuid.New()
		catalog.add(t, menu, item, "0.0333")

		plan, err := NewConsumptionPlanner(catalog).Plan(ctx, []SaleLine{
			{DetailID: uuid.New(), MenuItemID: menu, Quantity: dec("0.3333")},
		})

		require.NoError(t, err)
		assert.Equal(t, "0.01109889", plan.DemandFor(item).String())
	})

	t.Run("conservation across lines", func(t *testing.T) {
		k := newKitchen(t)
		sale := k.sale(t, "3.5", "1.25")

		plan, err := NewConsumptionPlanner(k.catalog).Plan(ctx, sale.SaleLines())

		require.NoError(t, err)
		sum := dec("0")
		for _, c := range plan.Contributions() {
			sum = sum.Add(c.Quantity)
		}
		assert.True(t, sum.Equal(plan.TotalQuantity()))
		assert.Equal(t, "2.125", plan.TotalQuantity().String())
	})

	t.Run("menu item without recipe is unresolved", func(t *testing.T) {
		k := newKitchen(t)
		water := uuid.New()

		plan, err := NewConsumptionPlanner(k.catalog).Plan(ctx, []SaleLine{
			{DetailID: uuid.New(), MenuItemID: water, Quantity: dec("2")},
			{DetailID: uuid.New(), MenuItemID: water, Quantity: dec("1")},
			{DetailID: uuid.New(), MenuItemID: k.salad, Quantity: dec("1")},
		})

		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{water}, plan.Unresolved())
		assert.Equal(t, "0.5", plan.DemandFor(k.tomato.ID).String())
	})

	t.Run("only unresolved items yields empty plan", func(t *testing.T) {
		plan, err := NewConsumptionPlanner(newStaticCatalog()).Plan(ctx, []SaleLine{
			{DetailID: uuid.New(), MenuItemID: uuid.New(), Quantity: dec("1")},
		})

		require.NoError(t, err)
		assert.True(t, plan.IsEmpty())
		assert.True(t, plan.TotalQuantity().IsZero())
	})

	t.Run("catalog failure is propagated", func(t *testing.T) {
		catalog := newStaticCatalog()
		catalog.err = errors.New("catalog offline")

		_, err := NewConsumptionPlanner(catalog).Plan(ctx, []SaleLine{
			{DetailID: uuid.New(), MenuItemID: uuid.New(), Quantity: dec("1")},
		})

		assert.ErrorContains(t, err, "catalog offline")
	})
}
