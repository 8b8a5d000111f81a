package memstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tavola/backend/internal/domain/costing"
	"github.com/tavola/backend/internal/domain/shared"
)

// StoreItemRepository is the in-memory store item repository
type StoreItemRepository struct {
	store *Store
	tx    *Tx
}

// FindByID finds a store item by ID
func (r *StoreItemRepository) FindByID(_ context.Context, id uuid.UUID) (*costing.StoreItem, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	item, ok := r.store.storeItems[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneStoreItem(item), nil
}

// FindByIDs returns the existing store items among ids in ascending ID order
func (r *StoreItemRepository) FindByIDs(_ context.Context, ids []uuid.UUID) ([]*costing.StoreItem, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.collect(costing.SortedUniqueIDs(ids)), nil
}

func (r *StoreItemRepository) collect(sorted []uuid.UUID) []*costing.StoreItem {
	out := make([]*costing.StoreItem, 0, len(sorted))
	for _, id := range sorted {
		if item, ok := r.store.storeItems[id]; ok {
			out = append(out, cloneStoreItem(item))
		}
	}
	return out
}

// FindBelowThreshold returns store items under their low stock threshold
func (r *StoreItemRepository) FindBelowThreshold(_ context.Context) ([]*costing.StoreItem, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*costing.StoreItem, 0)
	for _, item := range r.store.storeItems {
		if item.IsBelowThreshold() {
			out = append(out, cloneStoreItem(item))
		}
	}
	slices.SortFunc(out, func(a, b *costing.StoreItem) int { return costing.CompareIDs(a.ID, b.ID) })
	return out, nil
}

// Create stores a new store item
func (r *StoreItemRepository) Create(_ context.Context, item *costing.StoreItem) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.storeItems[item.ID]; exists {
		return shared.ErrAlreadyExists
	}
	r.store.storeItems[item.ID] = *cloneStoreItem(*item)
	return nil
}

// LockForUpdate takes the row locks of ids in ascending order and returns the existing items
func (r *StoreItemRepository) LockForUpdate(ctx context.Context, ids []uuid.UUID, timeout time.Duration) ([]*costing.StoreItem, error) {
	if r.tx == nil {
		return nil, errNoTransaction
	}
	sorted := costing.SortedUniqueIDs(ids)
	keys := make([]string, len(sorted))
	for i, id := range sorted {
		keys[i] = storeItemKey(id)
	}
	if err := r.tx.lock(ctx, keys, timeout); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &costing.LockContentionError{StoreItemIDs: sorted, Cause: err}
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.collect(sorted), nil
}

// ApplyQuantity writes an absolute quantity to a locked store item
func (r *StoreItemRepository) ApplyQuantity(_ context.Context, id uuid.UUID, fromVersion int, quantity decimal.Decimal) error {
	if r.tx == nil || !r.tx.holds(storeItemKey(id)) {
		return fmt.Errorf("store item %s is not locked by this transaction", id)
	}
	if quantity.IsNegative() {
		return fmt.Errorf("store item %s: quantity on hand cannot be negative", id)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	item, ok := r.store.storeItems[id]
	if !ok {
		return shared.ErrNotFound
	}
	if item.Version != fromVersion {
		return shared.ErrConcurrencyConflict
	}
	item.QuantityOnHand = quantity
	item.Version = fromVersion + 1
	item.UpdatedAt = time.Now()
	r.store.storeItems[id] = item
	return nil
}

// SaveDetails persists cost, threshold, name and unit with a version check
func (r *StoreItemRepository) SaveDetails(_ context.Context, item *costing.StoreItem) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	stored, ok := r.store.storeItems[item.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != item.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	stored.Name = item.Name
	stored.Unit = item.Unit
	stored.CostPerUnit = item.CostPerUnit
	stored.LowStockThreshold = item.LowStockThreshold
	stored.Version = item.Version
	stored.UpdatedAt = time.Now()
	r.store.storeItems[item.ID] = stored
	return nil
}

var _ costing.StoreItemRepository = (*StoreItemRepository)(nil)
