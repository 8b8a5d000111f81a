package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tavola/backend/internal/domain/costing"
	"github.com/tavola/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSaleRepository implements SaleRepository using GORM
type GormSaleRepository struct {
	db *gorm.DB
}

// NewGormSaleRepository creates a new GormSaleRepository
func NewGormSaleRepository(db *gorm.DB) *GormSaleRepository {
	return &GormSaleRepository{db: db}
}

// Create inserts the sale and its details
func (r *GormSaleRepository) Create(ctx context.Context, sale *costing.Sale) error {
	if err := r.db.WithContext(ctx).Create(sale).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return costing.ErrSaleAlreadyExists
		}
		return err
	}
	return nil
}

// FindByID loads a sale with its details
func (r *GormSaleRepository) FindByID(ctx context.Context, id uuid.UUID) (*costing.Sale, error) {
	var sale costing.Sale
	if err := r.db.WithContext(ctx).
		Preload("Details", func(db *gorm.DB) *gorm.DB { return db.Order("line_number") }).
		First(&sale, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

// LockByID loads a sale under an exclusive row lock
func (r *GormSaleRepository) LockByID(ctx context.Context, id uuid.UUID, timeout time.Duration) (*costing.Sale, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	db := r.db.WithContext(ctx)

	postgres := isPostgres(r.db)
	if postgres && timeout > 0 {
		if err := db.Exec(lockTimeoutStatement(timeout)).Error; err != nil {
			return nil, translateLockError(err, nil)
		}
	}

	query := db.Preload("Details", func(db *gorm.DB) *gorm.DB { return db.Order("line_number") })
	if postgres {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var sale costing.Sale
	if err := query.First(&sale, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, translateLockError(err, nil)
	}
	return &sale, nil
}

// UpdateStatus persists the sale state transition with a version check
func (r *GormSaleRepository) UpdateStatus(ctx context.Context, sale *costing.Sale) error {
	result := r.db.WithContext(ctx).Model(&costing.Sale{}).
		Where("id = ? AND version = ?", sale.ID, sale.Version-1).
		Updates(map[string]any{
			"status":        sale.Status,
			"cost_of_goods": sale.CostOfGoods,
			"fulfilled_at":  sale.FulfilledAt,
			"voided_at":     sale.VoidedAt,
			"void_reason":   sale.VoidReason,
			"version":       sale.Version,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&costing.Sale{}).Where("id = ?", sale.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return shared.ErrNotFound
		}
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// Delete removes a sale and its details
func (r *GormSaleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("sale_id = ?", id).Delete(&costing.SaleDetail{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&costing.Sale{}).Error
}

var _ costing.SaleRepository = (*GormSaleRepository)(nil)
