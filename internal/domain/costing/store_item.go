package costing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tavola/backend/internal/domain/shared"
)

// StoreItem is a trackable raw-inventory unit (an ingredient) held in the stock ledger.
// It is the aggregate root for depletion; QuantityOnHand never goes below zero.
type StoreItem struct {
	shared.BaseAggregateRoot
	Name              string          `gorm:"type:varchar(200);not null"`
	Unit              string          `gorm:"type:varchar(20);not null"`
	QuantityOnHand    decimal.Decimal `gorm:"type:decimal(24,8);not null;default:0"`
	CostPerUnit       decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"` // Current replacement/acquisition cost
	LowStockThreshold decimal.Decimal `gorm:"type:decimal(24,8);not null;default:0"`
}

// TableName returns the table name for GORM
func (StoreItem) TableName() string {
	return "store_items"
}

// NewStoreItem creates a store item with an opening quantity and unit cost
func NewStoreItem(name, unit string, quantityOnHand, costPerUnit decimal.Decimal) (*StoreItem, error) {
	name = strings.TrimSpace(name)
	unit = strings.TrimSpace(unit)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Store item name cannot be empty")
	}
	if unit == "" {
		return nil, shared.NewDomainError("INVALID_UNIT", "Store item unit cannot be empty")
	}
	if quantityOnHand.IsNegative() || !HasLedgerScale(quantityOnHand) {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity on hand must be non-negative with at most 8 decimal places")
	}
	if costPerUnit.IsNegative() || !HasValidScale(costPerUnit) {
		return nil, shared.NewDomainError("INVALID_COST", "Cost per unit must be non-negative with at most 4 decimal places")
	}

	return &StoreItem{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		Unit:              unit,
		QuantityOnHand:    quantityOnHand,
		CostPerUnit:       costPerUnit,
		LowStockThreshold: decimal.Zero,
	}, nil
}

// CanFulfill returns true if the on-hand quantity covers the requested quantity
func (i *StoreItem) CanFulfill(quantity decimal.Decimal) bool {
	return i.QuantityOnHand.GreaterThanOrEqual(quantity)
}

// Deplete removes consumed stock for a sale.
// Callers must hold the row lock for this item.
func (i *StoreItem) Deplete(quantity decimal.Decimal, saleID uuid.UUID) error {
	if !quantity.IsPositive() {
		return shared.NewDomainError("INVALID_QUANTITY", "Depletion quantity must be positive")
	}
	if !i.CanFulfill(quantity) {
		return shared.ErrInsufficientStock
	}

	wasBelow := i.IsBelowThreshold()
	i.QuantityOnHand = i.QuantityOnHand.Sub(quantity)
	i.UpdatedAt = time.Now()
	i.IncrementVersion()

	i.AddDomainEvent(NewStockDepletedEvent(i, quantity, saleID))
	if !wasBelow && i.IsBelowThreshold() {
		i.AddDomainEvent(NewStockBelowThresholdEvent(i))
	}
	return nil
}

// Restore adds back stock consumed by a voided sale.
// Cost is not touched: the cost history lives in the sale cost logs.
func (i *StoreItem) Restore(quantity decimal.Decimal, saleID uuid.UUID) error {
	if !quantity.IsPositive() {
		return shared.NewDomainError("INVALID_QUANTITY", "Restore quantity must be positive")
	}

	i.QuantityOnHand = i.QuantityOnHand.Add(quantity)
	i.UpdatedAt = time.Now()
	i.IncrementVersion()

	i.AddDomainEvent(NewStockRestoredEvent(i, quantity, saleID))
	return nil
}

// Reprice changes the current unit cost. Past sale cost logs keep the cost they copied.
func (i *StoreItem) Reprice(costPerUnit decimal.Decimal) error {
	if costPerUnit.IsNegative() || !HasValidScale(costPerUnit) {
		return shared.NewDomainError("INVALID_COST", "Cost per unit must be non-negative with at most 4 decimal places")
	}
	if costPerUnit.Equal(i.CostPerUnit) {
		return nil
	}

	old := i.CostPerUnit
	i.CostPerUnit = costPerUnit
	i.UpdatedAt = time.Now()
	i.IncrementVersion()

	i.AddDomainEvent(NewStoreItemRepricedEvent(i, old, costPerUnit))
	return nil
}

// SetLowStockThreshold sets the threshold below which low-stock alerts are raised.
// Zero disables alerts.
func (i *StoreItem) SetLowStockThreshold(threshold decimal.Decimal) error {
	if threshold.IsNegative() || !HasLedgerScale(threshold) {
		return shared.NewDomainError("INVALID_QUANTITY", "Low stock threshold must be non-negative with at most 8 decimal places")
	}

	i.LowStockThreshold = threshold
	i.UpdatedAt = time.Now()
	i.IncrementVersion()
	return nil
}

// IsBelowThreshold returns true if a threshold is configured and stock is under it
func (i *StoreItem) IsBelowThreshold() bool {
	return i.LowStockThreshold.IsPositive() && i.QuantityOnHand.LessThan(i.LowStockThreshold)
}

// StockValue returns on-hand quantity valued at the current unit cost
func (i *StoreItem) StockValue() decimal.Decimal {
	return i.QuantityOnHand.Mul(i.CostPerUnit)
}

// revert puts quantity and version back to a snapshot and drops pending events.
func (i *StoreItem) revert(snapshot CostSnapshot) {
	i.QuantityOnHand = snapshot.QuantityOnHand
	i.Version = snapshot.Version
	i.ClearDomainEvents()
}
