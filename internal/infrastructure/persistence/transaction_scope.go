package persistence

import (
	"context"

	"github.com/tavola/backend/internal/application/fulfillment"
	"github.com/tavola/backend/internal/domain/costing"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// Row locks taken inside Execute are released when the transaction ends.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs fn within a database transaction.
// If fn returns an error, the transaction is rolled back.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos fulfillment.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// StoreItemRepo returns the store item repository scoped to the current transaction.
func (r *gormTransactionalRepositories) StoreItemRepo() costing.StoreItemRepository {
	return NewGormStoreItemRepository(r.tx)
}

// SaleRepo returns the sale repository scoped to the current transaction.
func (r *gormTransactionalRepositories) SaleRepo() costing.SaleRepository {
	return NewGormSaleRepository(r.tx)
}

// CostLogRepo returns the cost log repository scoped to the current transaction.
func (r *gormTransactionalRepositories) CostLogRepo() costing.SaleCostLogRepository {
	return NewGormSaleCostLogRepository(r.tx)
}

// Atomic reports that rollback undoes every write.
func (r *gormTransactionalRepositories) Atomic() bool {
	return true
}

var (
	_ fulfillment.TransactionScope          = (*GormTransactionScope)(nil)
	_ fulfillment.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
)
