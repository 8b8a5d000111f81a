package costing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tavola/backend/internal/domain/shared"
)

// Aggregate type constants
const (
	AggregateTypeStoreItem = "StoreItem"
	AggregateTypeSale      = "Sale"
)

// Event type constants
const (
	EventTypeStockDepleted       = "StockDepleted"
	EventTypeStockRestored       = "StockRestored"
	EventTypeStockBelowThreshold = "StockBelowThreshold"
	EventTypeStoreItemRepriced   = "StoreItemRepriced"
	EventTypeSaleFulfilled       = "SaleFulfilled"
	EventTypeSaleVoided          = "SaleVoided"
)

// StockDepletedEvent is raised when a sale consumes stock from a store item
type StockDepletedEvent struct {
	shared.BaseDomainEvent
	StoreItemID    uuid.UUID       `json:"store_item_id"`
	SaleID         uuid.UUID       `json:"sale_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	QuantityBefore decimal.Decimal `json:"quantity_before"`
	QuantityAfter  decimal.Decimal `json:"quantity_after"`
	CostPerUnit    decimal.Decimal `json:"cost_per_unit"`
}

// NewStockDepletedEvent creates a StockDepletedEvent after the decrement was applied to item
func NewStockDepletedEvent(item *StoreItem, quantity decimal.Decimal, saleID uuid.UUID) *StockDepletedEvent {
	return &StockDepletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockDepleted, AggregateTypeStoreItem, item.ID),
		StoreItemID:     item.ID,
		SaleID:          saleID,
		Quantity:        quantity,
		QuantityBefore:  item.QuantityOnHand.Add(quantity),
		QuantityAfter:   item.QuantityOnHand,
		CostPerUnit:     item.CostPerUnit,
	}
}

// StockRestoredEvent is raised when a voided sale returns stock
type StockRestoredEvent struct {
	shared.BaseDomainEvent
	StoreItemID   uuid.UUID       `json:"store_item_id"`
	SaleID        uuid.UUID       `json:"sale_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	QuantityAfter decimal.Decimal `json:"quantity_after"`
}

// NewStockRestoredEvent creates a StockRestoredEvent
func NewStockRestoredEvent(item *StoreItem, quantity decimal.Decimal, saleID uuid.UUID) *StockRestoredEvent {
	return &StockRestoredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockRestored, AggregateTypeStoreItem, item.ID),
		StoreItemID:     item.ID,
		SaleID:          saleID,
		Quantity:        quantity,
		QuantityAfter:   item.QuantityOnHand,
	}
}

// StockBelowThresholdEvent is raised when a depletion takes a store item under its low-stock threshold
type StockBelowThresholdEvent struct {
	shared.BaseDomainEvent
	StoreItemID    uuid.UUID       `json:"store_item_id"`
	Name           string          `json:"name"`
	Unit           string          `json:"unit"`
	QuantityOnHand decimal.Decimal `json:"quantity_on_hand"`
	Threshold      decimal.Decimal `json:"threshold"`
}

// NewStockBelowThresholdEvent creates a StockBelowThresholdEvent
func NewStockBelowThresholdEvent(item *StoreItem) *StockBelowThresholdEvent {
	return &StockBelowThresholdEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockBelowThreshold, AggregateTypeStoreItem, item.ID),
		StoreItemID:     item.ID,
		Name:            item.Name,
		Unit:            item.Unit,
		QuantityOnHand:  item.QuantityOnHand,
		Threshold:       item.LowStockThreshold,
	}
}

// ShortageQuantity returns how far stock is under the threshold
func (e *StockBelowThresholdEvent) ShortageQuantity() decimal.Decimal {
	return e.Threshold.Sub(e.QuantityOnHand)
}

// StoreItemRepricedEvent is raised when the current unit cost of a store item changes
type StoreItemRepricedEvent struct {
	shared.BaseDomainEvent
	StoreItemID uuid.UUID       `json:"store_item_id"`
	OldCost     decimal.Decimal `json:"old_cost"`
	NewCost     decimal.Decimal `json:"new_cost"`
}

// NewStoreItemRepricedEvent creates a StoreItemRepricedEvent
func NewStoreItemRepricedEvent(item *StoreItem, oldCost, newCost decimal.Decimal) *StoreItemRepricedEvent {
	return &StoreItemRepricedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStoreItemRepriced, AggregateTypeStoreItem, item.ID),
		StoreItemID:     item.ID,
		OldCost:         oldCost,
		NewCost:         newCost,
	}
}

// SaleFulfilledEvent is raised after a sale's depletion has been committed
type SaleFulfilledEvent struct {
	shared.BaseDomainEvent
	SaleID      uuid.UUID       `json:"sale_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CostOfGoods decimal.Decimal `json:"cost_of_goods"`
	LineCount   int             `json:"line_count"`
}

// NewSaleFulfilledEvent creates a SaleFulfilledEvent
func NewSaleFulfilledEvent(sale *Sale) *SaleFulfilledEvent {
	return &SaleFulfilledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSaleFulfilled, AggregateTypeSale, sale.ID),
		SaleID:          sale.ID,
		TotalAmount:     sale.TotalAmount,
		CostOfGoods:     sale.CostOfGoods,
		LineCount:       len(sale.Details),
	}
}

// SaleVoidedEvent is raised when a fulfilled sale is reversed
type SaleVoidedEvent struct {
	shared.BaseDomainEvent
	SaleID      uuid.UUID       `json:"sale_id"`
	Reason      string          `json:"reason"`
	CostOfGoods decimal.Decimal `json:"cost_of_goods"`
}

// NewSaleVoidedEvent creates a SaleVoidedEvent
func NewSaleVoidedEvent(sale *Sale) *SaleVoidedEvent {
	return &SaleVoidedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSaleVoided, AggregateTypeSale, sale.ID),
		SaleID:          sale.ID,
		Reason:          sale.VoidReason,
		CostOfGoods:     sale.CostOfGoods,
	}
}
