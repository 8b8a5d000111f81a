// Package memstore is an in-memory implementation of the costing repositories.
//
// It supports row locks with bounded waits but has no transactional rollback:
// writes are visible immediately and TransactionalRepositories.Atomic reports
// false, so the fulfillment service undoes its own writes on failure.
package memstore

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tavola/backend/internal/application/fulfillment"
	"github.com/tavola/backend/internal/domain/costing"
)

var errNoTransaction = errors.New("row locks require a transaction")

// Store holds all costing data in memory
type Store struct {
	mu         sync.RWMutex
	storeItems map[uuid.UUID]costing.StoreItem
	recipes    map[uuid.UUID][]costing.RecipeLine
	sales      map[uuid.UUID]costing.Sale
	costLogs   map[uuid.UUID][]costing.SaleCostLog
	logOrder   []uuid.UUID // sale ids in log insertion order
	logKeys    map[costLogKey]struct{}

	locks *lockTable
}

// New creates an empty store
func New() *Store {
	return &Store{
		storeItems: make(map[uuid.UUID]costing.StoreItem),
		recipes:    make(map[uuid.UUID][]costing.RecipeLine),
		sales:      make(map[uuid.UUID]costing.Sale),
		costLogs:   make(map[uuid.UUID][]costing.SaleCostLog),
		logKeys:    make(map[costLogKey]struct{}),
		locks:      newLockTable(),
	}
}

// Execute runs fn with repositories that share one lock owner.
// Locks taken through them are released when fn returns.
func (s *Store) Execute(ctx context.Context, fn func(repos fulfillment.TransactionalRepositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &Tx{store: s, held: make(map[string]struct{})}
	defer tx.releaseAll()
	return fn(tx)
}

// StoreItems returns a store item repository outside any transaction
func (s *Store) StoreItems() *StoreItemRepository {
	return &StoreItemRepository{store: s}
}

// Recipes returns the recipe repository
func (s *Store) Recipes() *RecipeRepository {
	return &RecipeRepository{store: s}
}

// Sales returns a sale repository outside any transaction
func (s *Store) Sales() *SaleRepository {
	return &SaleRepository{store: s}
}

// CostLogs returns a cost log repository outside any transaction
func (s *Store) CostLogs() *SaleCostLogRepository {
	return &SaleCostLogRepository{store: s}
}

// Tx is the lock owner of one Execute call
type Tx struct {
	store *Store
	mu    sync.Mutex
	held  map[string]struct{}
}

// StoreItemRepo returns the store item repository bound to this transaction
func (t *Tx) StoreItemRepo() costing.StoreItemRepository {
	return &StoreItemRepository{store: t.store, tx: t}
}

// SaleRepo returns the sale repository bound to this transaction
func (t *Tx) SaleRepo() costing.SaleRepository {
	return &SaleRepository{store: t.store, tx: t}
}

// CostLogRepo returns the cost log repository bound to this transaction
func (t *Tx) CostLogRepo() costing.SaleCostLogRepository {
	return &SaleCostLogRepository{store: t.store}
}

// Atomic returns false: writes are applied immediately and never rolled back
func (t *Tx) Atomic() bool {
	return false
}

// lock acquires the named row locks in the given order, waiting at most until
// the deadline. On failure the locks acquired by this call are released.
func (t *Tx) lock(ctx context.Context, keys []string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	acquired := make([]string, 0, len(keys))
	for _, key := range keys {
		if t.holds(key) {
			continue
		}
		if err := t.store.locks.acquire(ctx, key, deadline); err != nil {
			for _, k := range acquired {
				t.store.locks.release(k)
			}
			t.mu.Lock()
			for _, k := range acquired {
				delete(t.held, k)
			}
			t.mu.Unlock()
			return err
		}
		t.mu.Lock()
		t.held[key] = struct{}{}
		t.mu.Unlock()
		acquired = append(acquired, key)
	}
	return nil
}

func (t *Tx) holds(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.held[key]
	return ok
}

func (t *Tx) releaseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.held {
		t.store.locks.release(key)
	}
	t.held = make(map[string]struct{})
}

func storeItemKey(id uuid.UUID) string { return "store_item:" + id.String() }
func saleKey(id uuid.UUID) string      { return "sale:" + id.String() }

func cloneStoreItem(item costing.StoreItem) *costing.StoreItem {
	item.ClearDomainEvents()
	return &item
}

func cloneSale(sale costing.Sale) *costing.Sale {
	sale.ClearDomainEvents()
	sale.Details = slices.Clone(sale.Details)
	if sale.FulfilledAt != nil {
		at := *sale.FulfilledAt
		sale.FulfilledAt = &at
	}
	if sale.VoidedAt != nil {
		at := *sale.VoidedAt
		sale.VoidedAt = &at
	}
	return &sale
}

var (
	_ fulfillment.TransactionScope          = (*Store)(nil)
	_ fulfillment.TransactionalRepositories = (*Tx)(nil)
)
