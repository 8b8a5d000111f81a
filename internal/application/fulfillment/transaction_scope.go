package fulfillment

import (
	"context"

	"github.com/tavola/backend/internal/domain/costing"
)

// TransactionScope provides transactional access to the costing repositories.
// When a function is executed within a transaction scope, all repository operations
// share the same storage transaction.
type TransactionScope interface {
	// Execute runs the given function within a transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all costing repositories within a transaction.
//
// Aggregate boundary notes:
//   - StoreItemRepo: the only writer of quantity_on_hand. Rows must be locked with
//     LockForUpdate before ApplyQuantity is called on them.
//   - SaleRepo: Sale aggregate with its details.
//   - CostLogRepo: append-only cost ledger; rows are voided, never deleted.
type TransactionalRepositories interface {
	StoreItemRepo() costing.StoreItemRepository
	SaleRepo() costing.SaleRepository
	CostLogRepo() costing.SaleCostLogRepository

	// Atomic reports whether writes made through these repositories are
	// discarded when Execute's function returns an error. When false the
	// caller must undo its own writes.
	Atomic() bool
}
