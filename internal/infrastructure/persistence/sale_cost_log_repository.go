package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tavola/backend/internal/domain/costing"
	"github.com/tavola/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// costLogBatchSize bounds the rows per INSERT statement
const costLogBatchSize = 200

// GormSaleCostLogRepository implements SaleCostLogRepository using GORM
type GormSaleCostLogRepository struct {
	db *gorm.DB
}

// NewGormSaleCostLogRepository creates a new GormSaleCostLogRepository
func NewGormSaleCostLogRepository(db *gorm.DB) *GormSaleCostLogRepository {
	return &GormSaleCostLogRepository{db: db}
}

// CreateBatch inserts cost logs
func (r *GormSaleCostLogRepository) CreateBatch(ctx context.Context, logs []*costing.SaleCostLog) error {
	if len(logs) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(logs, costLogBatchSize).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.NewDomainError("DUPLICATE_COST_LOG", "Sale line already has a cost log for this store item")
		}
		return err
	}
	return nil
}

// FindBySale returns a sale's cost logs
func (r *GormSaleCostLogRepository) FindBySale(ctx context.Context, saleID uuid.UUID) ([]costing.SaleCostLog, error) {
	var logs []costing.SaleCostLog
	if err := r.db.WithContext(ctx).
		Where("sale_id = ?", saleID).
		Order("sale_detail_id, store_item_id").
		Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// FindFulfilledBetween returns non-voided logs of sales fulfilled in [from, to)
func (r *GormSaleCostLogRepository) FindFulfilledBetween(ctx context.Context, from, to time.Time) ([]costing.SaleCostLog, error) {
	var logs []costing.SaleCostLog
	if err := r.db.WithContext(ctx).
		Joins("JOIN sales ON sales.id = sale_cost_logs.sale_id").
		Where("sales.status = ? AND sales.fulfilled_at >= ? AND sales.fulfilled_at < ?", costing.SaleStatusFulfilled, from, to).
		Where("sale_cost_logs.voided = ?", false).
		Order("sale_cost_logs.sale_id, sale_cost_logs.sale_detail_id, sale_cost_logs.store_item_id").
		Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// MarkVoidedBySale flags a sale's logs as voided
func (r *GormSaleCostLogRepository) MarkVoidedBySale(ctx context.Context, saleID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&costing.SaleCostLog{}).
		Where("sale_id = ? AND voided = ?", saleID, false).
		Updates(map[string]any{"voided": true, "voided_at": at})
	return result.RowsAffected, result.Error
}

// ClearVoidedBySale reverts MarkVoidedBySale
func (r *GormSaleCostLogRepository) ClearVoidedBySale(ctx context.Context, saleID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&costing.SaleCostLog{}).
		Where("sale_id = ?", saleID).
		Updates(map[string]any{"voided": false, "voided_at": nil}).Error
}

// DeleteBySale removes a sale's logs
func (r *GormSaleCostLogRepository) DeleteBySale(ctx context.Context, saleID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("sale_id = ?", saleID).Delete(&costing.SaleCostLog{}).Error
}

var _ costing.SaleCostLogRepository = (*GormSaleCostLogRepository)(nil)
