package costing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StoreItemRepository defines persistence for store items
type StoreItemRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*StoreItem, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*StoreItem, error)
	FindBelowThreshold(ctx context.Context) ([]*StoreItem, error)
	Create(ctx context.Context, item *StoreItem) error

	// LockForUpdate acquires exclusive row locks on the given store items in
	// ascending ID order and returns the ones that exist, in that order.
	// Waiting longer than timeout yields a *LockContentionError.
	// Locks are held until the enclosing transaction ends.
	LockForUpdate(ctx context.Context, ids []uuid.UUID, timeout time.Duration) ([]*StoreItem, error)

	// ApplyQuantity writes an absolute on-hand quantity for a locked store item.
	// The write succeeds only if the stored version equals fromVersion;
	// the stored version becomes fromVersion+1.
	ApplyQuantity(ctx context.Context, id uuid.UUID, fromVersion int, quantity decimal.Decimal) error

	// SaveDetails persists cost, threshold and descriptive fields with an
	// optimistic version check (stored version must be item.Version-1).
	SaveDetails(ctx context.Context, item *StoreItem) error
}

// RecipeRepository defines persistence for recipe lines
type RecipeRepository interface {
	RecipeCatalog
	Create(ctx context.Context, lines ...*RecipeLine) error
	DeleteByMenuItem(ctx context.Context, menuItemID uuid.UUID) error
}

// SaleRepository defines persistence for sales and their details
type SaleRepository interface {
	// Create inserts the sale with its details. A sale ID that already exists
	// yields ErrSaleAlreadyExists.
	Create(ctx context.Context, sale *Sale) error
	FindByID(ctx context.Context, id uuid.UUID) (*Sale, error)

	// LockByID loads a sale with its details under an exclusive row lock
	LockByID(ctx context.Context, id uuid.UUID, timeout time.Duration) (*Sale, error)

	// UpdateStatus persists status, cost of goods and timestamps with an
	// optimistic version check (stored version must be sale.Version-1).
	UpdateStatus(ctx context.Context, sale *Sale) error

	// Delete removes a sale and its details. Only used to undo a pending
	// sale on stores without transactional rollback.
	Delete(ctx context.Context, id uuid.UUID) error
}

// SaleCostLogRepository defines persistence for the append-only cost ledger
type SaleCostLogRepository interface {
	CreateBatch(ctx context.Context, logs []*SaleCostLog) error
	FindBySale(ctx context.Context, saleID uuid.UUID) ([]SaleCostLog, error)

	// FindFulfilledBetween returns non-voided logs of fulfilled sales whose
	// fulfillment time is in [from, to).
	FindFulfilledBetween(ctx context.Context, from, to time.Time) ([]SaleCostLog, error)

	// MarkVoidedBySale flags every log of the sale as voided
	MarkVoidedBySale(ctx context.Context, saleID uuid.UUID, at time.Time) (int64, error)

	// ClearVoidedBySale reverts MarkVoidedBySale. Only used to undo a void on
	// stores without transactional rollback.
	ClearVoidedBySale(ctx context.Context, saleID uuid.UUID) error

	// DeleteBySale removes a sale's logs. Only used to undo a fulfillment on
	// stores without transactional rollback.
	DeleteBySale(ctx context.Context, saleID uuid.UUID) error
}
