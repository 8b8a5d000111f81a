package memstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tavola/backend/internal/domain/costing"
	"github.com/tavola/backend/internal/domain/shared"
)

// SaleRepository is the in-memory sale repository
type SaleRepository struct {
	store *Store
	tx    *Tx
}

// Create stores a new sale with its details
func (r *SaleRepository) Create(_ context.Context, sale *costing.Sale) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.sales[sale.ID]; exists {
		return costing.ErrSaleAlreadyExists
	}
	r.store.sales[sale.ID] = *cloneSale(*sale)
	return nil
}

// FindByID finds a sale with its details
func (r *SaleRepository) FindByID(_ context.Context, id uuid.UUID) (*costing.Sale, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	sale, ok := r.store.sales[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneSale(sale), nil
}

// LockByID takes the sale's row lock and loads it
func (r *SaleRepository) LockByID(ctx context.Context, id uuid.UUID, timeout time.Duration) (*costing.Sale, error) {
	if r.tx == nil {
		return nil, errNoTransaction
	}
	if err := r.tx.lock(ctx, []string{saleKey(id)}, timeout); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &costing.LockContentionError{Cause: err}
	}
	return r.FindByID(ctx, id)
}

// UpdateStatus persists lifecycle fields with a version check
func (r *SaleRepository) UpdateStatus(_ context.Context, sale *costing.Sale) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	stored, ok := r.store.sales[sale.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != sale.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	updated := cloneSale(*sale)
	updated.Details = stored.Details
	r.store.sales[sale.ID] = *updated
	return nil
}

// Delete removes a sale and its details
func (r *SaleRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.sales[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.store.sales, id)
	return nil
}

var _ costing.SaleRepository = (*SaleRepository)(nil)
