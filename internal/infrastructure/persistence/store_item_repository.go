package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tavola/backend/internal/domain/costing"
	"github.com/tavola/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStoreItemRepository implements StoreItemRepository using GORM
type GormStoreItemRepository struct {
	db *gorm.DB
}

// NewGormStoreItemRepository creates a new GormStoreItemRepository
func NewGormStoreItemRepository(db *gorm.DB) *GormStoreItemRepository {
	return &GormStoreItemRepository{db: db}
}

// FindByID finds a store item by its ID
func (r *GormStoreItemRepository) FindByID(ctx context.Context, id uuid.UUID) (*costing.StoreItem, error) {
	var item costing.StoreItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// FindByIDs returns the existing store items among ids, ordered by ID
func (r *GormStoreItemRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*costing.StoreItem, error) {
	sorted := costing.SortedUniqueIDs(ids)
	if len(sorted) == 0 {
		return []*costing.StoreItem{}, nil
	}
	var items []*costing.StoreItem
	if err := r.db.WithContext(ctx).
		Where("id IN ?", sorted).
		Order("id").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// FindBelowThreshold finds items under their low stock threshold
func (r *GormStoreItemRepository) FindBelowThreshold(ctx context.Context) ([]*costing.StoreItem, error) {
	var items []*costing.StoreItem
	if err := r.db.WithContext(ctx).
		Where("low_stock_threshold > 0 AND quantity_on_hand < low_stock_threshold").
		Order("id").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Create inserts a new store item
func (r *GormStoreItemRepository) Create(ctx context.Context, item *costing.StoreItem) error {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// LockForUpdate takes exclusive row locks in ascending ID order.
// On PostgreSQL the wait is bounded by lock_timeout for the rest of the
// transaction; the context deadline bounds it on every dialect.
func (r *GormStoreItemRepository) LockForUpdate(ctx context.Context, ids []uuid.UUID, timeout time.Duration) ([]*costing.StoreItem, error) {
	sorted := costing.SortedUniqueIDs(ids)
	if len(sorted) == 0 {
		return []*costing.StoreItem{}, nil
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	db := r.db.WithContext(ctx)

	postgres := isPostgres(r.db)
	if postgres && timeout > 0 {
		if err := db.Exec(lockTimeoutStatement(timeout)).Error; err != nil {
			return nil, translateLockError(err, sorted)
		}
	}

	query := db.Where("id IN ?", sorted).Order("id")
	if postgres {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var items []*costing.StoreItem
	if err := query.Find(&items).Error; err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, translateLockError(err, sorted)
	}
	return items, nil
}

// ApplyQuantity writes the absolute on-hand quantity of a locked row
func (r *GormStoreItemRepository) ApplyQuantity(ctx context.Context, id uuid.UUID, fromVersion int, quantity decimal.Decimal) error {
	if quantity.IsNegative() {
		return fmt.Errorf("store item %s: quantity on hand cannot be negative", id)
	}
	result := r.db.WithContext(ctx).Model(&costing.StoreItem{}).
		Where("id = ? AND version = ?", id, fromVersion).
		Updates(map[string]any{
			"quantity_on_hand": quantity,
			"version":          fromVersion + 1,
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

// SaveDetails persists cost, threshold, name and unit with a version check
func (r *GormStoreItemRepository) SaveDetails(ctx context.Context, item *costing.StoreItem) error {
	result := r.db.WithContext(ctx).Model(&costing.StoreItem{}).
		Where("id = ? AND version = ?", item.ID, item.Version-1).
		Updates(map[string]any{
			"name":                item.Name,
			"unit":                item.Unit,
			"cost_per_unit":       item.CostPerUnit,
			"low_stock_threshold": item.LowStockThreshold,
			"version":             item.Version,
			"updated_at":          time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.missOrConflict(ctx, item.ID)
	}
	return nil
}

func (r *GormStoreItemRepository) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&costing.StoreItem{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return shared.ErrNotFound
	}
	return shared.ErrConcurrencyConflict
}

func isPostgres(db *gorm.DB) bool {
	return db.Dialector != nil && db.Dialector.Name() == "postgres"
}

// lockTimeoutStatement bounds row lock waits for the current transaction.
// SET does not accept bind parameters.
func lockTimeoutStatement(timeout time.Duration) string {
	ms := timeout.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", ms)
}

var _ costing.StoreItemRepository = (*GormStoreItemRepository)(nil)
