package costing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreItem(t *testing.T) {
	t.Run("creates store item successfully", func(t *testing.T) {
		item, err := NewStoreItem("Tomato", "kg", dec("10"), dec("2.00"))

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, item.ID)
		assert.Equal(t, "Tomato", item.Name)
		assert.Equal(t, "kg", item.Unit)
		assert.Equal(t, "10", item.QuantityOnHand.String())
		assert.Equal(t, "2", item.CostPerUnit.String())
		assert.Equal(t, 1, item.Version)
	})

	t.Run("fails with empty name", func(t *testing.T) {
		item, err := NewStoreItem("  ", "kg", dec("1"), dec("1"))

		require.Error(t, err)
		assert.Nil(t, item)
		assert.Contains(t, err.Error(), "name")
	})

	t.Run("fails with negative quantity", func(t *testing.T) {
		_, err := NewStoreItem("Tomato", "kg", dec("-1"), dec("1"))
		require.Error(t, err)
	})

	t.Run("fails with cost beyond four decimals", func(t *testing.T) {
		_, err := NewStoreItem("Saffron", "g", dec("1"), dec("0.00001"))
		require.Error(t, err)
	})

	t.Run("fails with opening quantity finer than the ledger holds", func(t *testing.T) {
		_, err := NewStoreItem("Saffron", "g", dec("3.123456789"), dec("1"))
		require.Error(t, err)

		item, err := NewStoreItem("Saffron", "g", dec("3.12345678"), dec("1"))
		require.NoError(t, err)
		assert.Equal(t, "3.12345678", item.QuantityOnHand.String())
	})
}

func TestStoreItem_Deplete(t *testing.T) {
	t.Run("decrements and raises event", func(t *testing.T) {
		item := createTestStoreItem(t, "Tomato", "10", "2.00")
		saleID := uuid.New()

		err := item.Deplete(dec("2.6"), saleID)

		require.NoError(t, err)
		assert.Equal(t, "7.4", item.QuantityOnHand.String())
		assert.Equal(t, 2, item.Version)

		events := item.GetDomainEvents()
		require.Len(t, events, 1)
		evt, ok := events[0].(*StockDepletedEvent)
		require.True(t, ok)
		assert.Equal(t, saleID, evt.SaleID)
		assert.Equal(t, "10", evt.QuantityBefore.String())
		assert.Equal(t, "7.4", evt.QuantityAfter.String())
	})

	t.Run("allows depleting to exactly zero", func(t *testing.T) {
		item := createTestStoreItem(t, "Tomato", "10", "2.00")

		require.NoError(t, item.Deplete(dec("10"), uuid.New()))
		assert.True(t, item.QuantityOnHand.IsZero())
	})

	t.Run("refuses to go negative", func(t *testing.T) {
		item := createTestStoreItem(t, "Tomato", "10", "2.00")

		err := item.Deplete(dec("10.0001"), uuid.New())

		assert.ErrorIs(t, err, ErrInsufficientStock)
		assert.Equal(t, "10", item.QuantityOnHand.String())
		assert.Equal(t, 1, item.Version)
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		item := createTestStoreItem(t, "Tomato", "10", "2.00")
		assert.Error(t, item.Deplete(dec("0"), uuid.New()))
	})

	t.Run("raises below threshold once when crossing", func(t *testing.T) {
		item := createTestStoreItem(t, "Tomato", "10", "2.00")
		require.NoError(t, item.SetLowStockThreshold(dec("5")))

		require.NoError(t, item.Deplete(dec("6"), uuid.New()))
		require.Len(t, item.GetDomainEvents(), 2)
		alert, ok := item.GetDomainEvents()[1].(*StockBelowThresholdEvent)
		require.True(t, ok)
		assert.Equal(t, "1", alert.ShortageQuantity().String())

		item.ClearDomainEvents()
		require.NoError(t, item.Deplete(dec("1"), uuid.New()))
		assert.Len(t, item.GetDomainEvents(), 1)
	})
}

func TestStoreItem_Restore(t *testing.T) {
	item := createTestStoreItem(t, "Tomato", "7.4", "2.00")

	require.NoError(t, item.Restore(dec("2.6"), uuid.New()))

	assert.Equal(t, "10", item.QuantityOnHand.String())
	require.Len(t, item.GetDomainEvents(), 1)
	assert.Equal(t, EventTypeStockRestored, item.GetDomainEvents()[0].EventType())
}

func TestStoreItem_Reprice(t *testing.T) {
	item := createTestStoreItem(t, "Tomato", "10", "2.00")

	require.NoError(t, item.Reprice(dec("3.25")))
	assert.Equal(t, "3.25", item.CostPerUnit.String())
	assert.Equal(t, 2, item.Version)

	// same price is a no-op
	require.NoError(t, item.Reprice(dec("3.25")))
	assert.Equal(t, 2, item.Version)

	assert.Error(t, item.Reprice(dec("-1")))
}

func TestStoreItem_IsBelowThreshold(t *testing.T) {
	item := createTestStoreItem(t, "Tomato", "1", "2.00")
	assert.False(t, item.IsBelowThreshold(), "zero threshold disables alerts")

	require.NoError(t, item.SetLowStockThreshold(dec("2")))
	assert.True(t, item.IsBelowThreshold())
	assert.Error(t, item.SetLowStockThreshold(dec("0.000000001")))
	assert.Equal(t, "2", item.LowStockThreshold.String())
	assert.Equal(t, "2", item.StockValue().String())
}
