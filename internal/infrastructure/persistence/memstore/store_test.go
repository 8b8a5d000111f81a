package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tavola/backend/internal/application/fulfillment"
	"github.com/tavola/backend/internal/domain/costing"
	"github.com/tavola/backend/internal/domain/shared"
)

func seedItem(t *testing.T, s *Store, name, qty string) *costing.StoreItem {
	t.Helper()
	item, err := costing.NewStoreItem(name, "kg", decimal.RequireFromString(qty), decimal.RequireFromString("2"))
	require.NoError(t, err)
	require.NoError(t, s.StoreItems().Create(context.Background(), item))
	return item
}

func TestStore_LockForUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("returns existing items in ascending order", func(t *testing.T) {
		s := New()
		a := seedItem(t, s, "Flour", "5")
		b := seedItem(t, s, "Salt", "1")
		missing := uuid.New()

		err := s.Execute(ctx, func(repos fulfillment.TransactionalRepositories) error {
			items, err := repos.StoreItemRepo().LockForUpdate(ctx, []uuid.UUID{b.ID, missing, a.ID}, time.Second)
			require.NoError(t, err)
			require.Len(t, items, 2)
			assert.Equal(t, -1, costing.CompareIDs(items[0].ID, items[1].ID))
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("times out while another transaction holds the row", func(t *testing.T) {
		s := New()
		a := seedItem(t, s, "Flour", "5")
		b := seedItem(t, s, "Salt", "1")
		locked := make(chan struct{})
		done := make(chan struct{})

		go func() {
			_ = s.Execute(ctx, func(repos fulfillment.TransactionalRepositories) error {
				_, err := repos.StoreItemRepo().LockForUpdate(ctx, []uuid.UUID{b.ID}, time.Second)
				assert.NoError(t, err)
				close(locked)
				<-done
				return nil
			})
		}()
		<-locked

		err := s.Execute(ctx, func(repos fulfillment.TransactionalRepositories) error {
			_, err := repos.StoreItemRepo().LockForUpdate(ctx, []uuid.UUID{a.ID, b.ID}, 20*time.Millisecond)
			return err
		})

		var lockErr *costing.LockContentionError
		require.ErrorAs(t, err, &lockErr)
		assert.True(t, costing.IsRetryable(err))

		// the lock on a taken before the timeout was released
		err = s.Execute(ctx, func(repos fulfillment.TransactionalRepositories) error {
			_, err := repos.StoreItemRepo().LockForUpdate(ctx, []uuid.UUID{a.ID}, 20*time.Millisecond)
			return err
		})
		assert.NoError(t, err)
		close(done)
	})

	t.Run("is re-entrant within a transaction", func(t *testing.T) {
		s := New()
		a := seedItem(t, s, "Flour", "5")

		err := s.Execute(ctx, func(repos fulfillment.TransactionalRepositories) error {
			if _, err := repos.StoreItemRepo().LockForUpdate(ctx, []uuid.UUID{a.ID}, 10*time.Millisecond); err != nil {
				return err
			}
			_, err := repos.StoreItemRepo().LockForUpdate(ctx, []uuid.UUID{a.ID}, 10*time.Millisecond)
			return err
		})
		assert.NoError(t, err)
	})

	t.Run("requires a transaction", func(t *testing.T) {
		s := New()
		_, err := s.StoreItems().LockForUpdate(ctx, []uuid.UUID{uuid.New()}, time.Millisecond)
		assert.Error(t, err)
	})
}

func TestStore_ApplyQuantity(t *testing.T) {
	ctx := context.Background()
	s := New()
	item := seedItem(t, s, "Tomato", "10")

	t.Run("requires the row lock", func(t *testing.T) {
		err := s.Execute(ctx, func(repos fulfillment.TransactionalRepositories) error {
			return repos.StoreItemRepo().ApplyQuantity(ctx, item.ID, 1, decimal.RequireFromString("9"))
		})
		assert.ErrorContains(t, err, "not locked")
	})

	t.Run("checks version and bumps it", func(t *testing.T) {
		err := s.Execute(ctx, func(repos fulfillment.TransactionalRepositories) error {
			if _, err := repos.StoreItemRepo().LockForUpdate(ctx, []uuid.UUID{item.ID}, time.Second); err != nil {
				return err
			}
			assert.ErrorIs(t, repos.StoreItemRepo().ApplyQuantity(ctx, item.ID, 7, decimal.RequireFromString("9")), shared.ErrConcurrencyConflict)
			assert.Error(t, repos.StoreItemRepo().ApplyQuantity(ctx, item.ID, 1, decimal.RequireFromString("-1")))
			return repos.StoreItemRepo().ApplyQuantity(ctx, item.ID, 1, decimal.RequireFromString("7.4"))
		})
		require.NoError(t, err)

		stored, err := s.StoreItems().FindByID(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, "7.4", stored.QuantityOnHand.String())
		assert.Equal(t, 2, stored.Version)
	})
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	item := seedItem(t, s, "Tomato", "10")

	loaded, err := s.StoreItems().FindByID(ctx, item.ID)
	require.NoError(t, err)
	loaded.QuantityOnHand = decimal.Zero

	again, err := s.StoreItems().FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "10", again.QuantityOnHand.String())
}

func TestStore_Sales(t *testing.T) {
	ctx := context.Background()
	s := New()
	sale, err := costing.NewSale(uuid.New(), []costing.SaleLineInput{
		{MenuItemID: uuid.New(), Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(3)},
	})
	require.NoError(t, err)

	require.NoError(t, s.Sales().Create(ctx, sale))
	assert.ErrorIs(t, s.Sales().Create(ctx, sale), costing.ErrSaleAlreadyExists)

	require.NoError(t, sale.MarkFulfilled(decimal.NewFromInt(1)))
	require.NoError(t, s.Sales().UpdateStatus(ctx, sale))
	assert.ErrorIs(t, s.Sales().UpdateStatus(ctx, sale), shared.ErrConcurrencyConflict)

	loaded, err := s.Sales().FindByID(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, costing.SaleStatusFulfilled, loaded.Status)
	assert.Len(t, loaded.Details, 1)

	require.NoError(t, s.Sales().Delete(ctx, sale.ID))
	_, err = s.Sales().FindByID(ctx, sale.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStore_CostLogs(t *testing.T) {
	ctx := context.Background()
	s := New()
	saleID, detailID, itemID := uuid.New(), uuid.New(), uuid.New()
	log, err := costing.NewSaleCostLog(saleID, detailID, itemID, decimal.RequireFromString("2"), decimal.RequireFromString("2"))
	require.NoError(t, err)

	require.NoError(t, s.CostLogs().CreateBatch(ctx, []*costing.SaleCostLog{log}))
	assert.Error(t, s.CostLogs().CreateBatch(ctx, []*costing.SaleCostLog{log}), "duplicate detail/item pair")

	n, err := s.CostLogs().MarkVoidedBySale(ctx, saleID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	logs, err := s.CostLogs().FindBySale(ctx, saleID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Voided)

	require.NoError(t, s.CostLogs().ClearVoidedBySale(ctx, saleID))
	logs, _ = s.CostLogs().FindBySale(ctx, saleID)
	assert.False(t, logs[0].Voided)

	require.NoError(t, s.CostLogs().DeleteBySale(ctx, saleID))
	logs, _ = s.CostLogs().FindBySale(ctx, saleID)
	assert.Empty(t, logs)
	assert.Empty(t, s.logKeys)

	// a deleted log's pair can be written again
	require.NoError(t, s.CostLogs().CreateBatch(ctx, []*costing.SaleCostLog{log}))
}

func TestStore_CostLogKeys(t *testing.T) {
	ctx := context.Background()
	s := New()
	newLog := func(saleID, detailID, itemID uuid.UUID) *costing.SaleCostLog {
		l, err := costing.NewSaleCostLog(saleID, detailID, itemID, decimal.RequireFromString("0.5"), decimal.RequireFromString("2"))
		require.NoError(t, err)
		return l
	}

	for i := 0; i < 50; i++ {
		saleID, detailID := uuid.New(), uuid.New()
		require.NoError(t, s.CostLogs().CreateBatch(ctx, []*costing.SaleCostLog{
			newLog(saleID, detailID, uuid.New()),
			newLog(saleID, detailID, uuid.New()),
		}))
	}
	assert.Len(t, s.logKeys, 100)

	t.Run("repeated pair within one batch inserts nothing", func(t *testing.T) {
		saleID, detailID, itemID := uuid.New(), uuid.New(), uuid.New()
		err := s.CostLogs().CreateBatch(ctx, []*costing.SaleCostLog{
			newLog(saleID, detailID, itemID),
			newLog(saleID, detailID, itemID),
		})
		assert.Error(t, err)
		logs, _ := s.CostLogs().FindBySale(ctx, saleID)
		assert.Empty(t, logs)
		assert.Len(t, s.logKeys, 100)
	})

	t.Run("pair stored by another sale is rejected", func(t *testing.T) {
		detailID, itemID := uuid.New(), uuid.New()
		require.NoError(t, s.CostLogs().CreateBatch(ctx, []*costing.SaleCostLog{newLog(uuid.New(), detailID, itemID)}))
		assert.Error(t, s.CostLogs().CreateBatch(ctx, []*costing.SaleCostLog{newLog(uuid.New(), detailID, itemID)}))
	})
}

func TestStore_Recipes(t *testing.T) {
	ctx := context.Background()
	s := New()
	menu := uuid.New()
	second, err := costing.NewRecipeLine(menu, uuid.New(), decimal.RequireFromString("1"), 2)
	require.NoError(t, err)
	first, err := costing.NewRecipeLine(menu, uuid.New(), decimal.RequireFromString("0.5"), 1)
	require.NoError(t, err)

	require.NoError(t, s.Recipes().Create(ctx, second, first))
	assert.Error(t, s.Recipes().Create(ctx, first))

	lines, err := s.Recipes().Resolve(ctx, menu)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, first.ID, lines[0].ID)

	_, err = s.Recipes().Resolve(ctx, uuid.New())
	assert.ErrorIs(t, err, costing.ErrRecipeNotFound)

	require.NoError(t, s.Recipes().DeleteByMenuItem(ctx, menu))
	many, err := s.Recipes().ResolveMany(ctx, []uuid.UUID{menu})
	require.NoError(t, err)
	assert.Empty(t, many)
}
