package memstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/tavola/backend/internal/domain/costing"
)

// costLogKey is the unique (sale detail, store item) pair of a cost log
type costLogKey struct{ detail, item uuid.UUID }

func keyOf(l *costing.SaleCostLog) costLogKey {
	return costLogKey{l.SaleDetailID, l.StoreItemID}
}

// SaleCostLogRepository is the in-memory cost ledger
type SaleCostLogRepository struct {
	store *Store
}

// CreateBatch appends cost logs. The batch is inserted entirely or not at all.
func (r *SaleCostLogRepository) CreateBatch(_ context.Context, logs []*costing.SaleCostLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	batch := make(map[costLogKey]struct{}, len(logs))
	for _, l := range logs {
		k := keyOf(l)
		_, stored := r.store.logKeys[k]
		_, repeated := batch[k]
		if stored || repeated {
			return fmt.Errorf("duplicate cost log for sale detail %s and store item %s", l.SaleDetailID, l.StoreItemID)
		}
		batch[k] = struct{}{}
	}

	for _, l := range logs {
		if _, ok := r.store.costLogs[l.SaleID]; !ok {
			r.store.logOrder = append(r.store.logOrder, l.SaleID)
		}
		r.store.costLogs[l.SaleID] = append(r.store.costLogs[l.SaleID], *l)
		r.store.logKeys[keyOf(l)] = struct{}{}
	}
	return nil
}

// FindBySale returns a sale's cost logs in insertion order
func (r *SaleCostLogRepository) FindBySale(_ context.Context, saleID uuid.UUID) ([]costing.SaleCostLog, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return slices.Clone(r.store.costLogs[saleID]), nil
}

// FindFulfilledBetween returns non-voided logs of sales fulfilled in [from, to)
func (r *SaleCostLogRepository) FindFulfilledBetween(_ context.Context, from, to time.Time) ([]costing.SaleCostLog, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]costing.SaleCostLog, 0)
	for _, saleID := range r.store.logOrder {
		sale, ok := r.store.sales[saleID]
		if !ok || sale.Status != costing.SaleStatusFulfilled || sale.FulfilledAt == nil {
			continue
		}
		if sale.FulfilledAt.Before(from) || !sale.FulfilledAt.Before(to) {
			continue
		}
		for _, l := range r.store.costLogs[saleID] {
			if !l.Voided {
				out = append(out, l)
			}
		}
	}
	return out, nil
}

// MarkVoidedBySale flags a sale's logs as voided
func (r *SaleCostLogRepository) MarkVoidedBySale(_ context.Context, saleID uuid.UUID, at time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	logs := r.store.costLogs[saleID]
	for i := range logs {
		if logs[i].Voided {
			continue
		}
		if err := logs[i].MarkVoided(at); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// ClearVoidedBySale reverts MarkVoidedBySale
func (r *SaleCostLogRepository) ClearVoidedBySale(_ context.Context, saleID uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	logs := r.store.costLogs[saleID]
	for i := range logs {
		logs[i].Voided = false
		logs[i].VoidedAt = nil
	}
	return nil
}

// DeleteBySale removes a sale's logs
func (r *SaleCostLogRepository) DeleteBySale(_ context.Context, saleID uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for i := range r.store.costLogs[saleID] {
		delete(r.store.logKeys, keyOf(&r.store.costLogs[saleID][i]))
	}
	delete(r.store.costLogs, saleID)
	r.store.logOrder = slices.DeleteFunc(r.store.logOrder, func(id uuid.UUID) bool { return id == saleID })
	return nil
}

var _ costing.SaleCostLogRepository = (*SaleCostLogRepository)(nil)
