package fulfillment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tavola/backend/internal/domain/costing"
)

// FulfillSaleCommand records a sale and depletes the stock its recipes consume
type FulfillSaleCommand struct {
	SaleID uuid.UUID      `json:"sale_id" validate:"required"`
	Lines  []SaleLineItem `json:"lines" validate:"required,min=1,max=200,dive"`
}

// SaleLineItem is one line of a FulfillSaleCommand
type SaleLineItem struct {
	MenuItemID uuid.UUID       `json:"menu_item_id" validate:"required"`
	Quantity   decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice  decimal.Decimal `json:"unit_price" validate:"gte=0"`
}

func (c FulfillSaleCommand) lineInputs() []costing.SaleLineInput {
	out := make([]costing.SaleLineInput, len(c.Lines))
	for i, l := range c.Lines {
		out[i] = costing.SaleLineInput{MenuItemID: l.MenuItemID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	return out
}

// VoidSaleCommand reverses a fulfilled sale
type VoidSaleCommand struct {
	SaleID uuid.UUID `json:"sale_id" validate:"required"`
	Reason string    `json:"reason" validate:"required,max=500"`
}

// FulfillmentResult describes a committed sale
type FulfillmentResult struct {
	SaleID              uuid.UUID         `json:"sale_id"`
	Status              string            `json:"status"`
	TotalAmount         decimal.Decimal   `json:"total_amount"`
	CostOfGoods         decimal.Decimal   `json:"cost_of_goods"`
	FulfilledAt         time.Time         `json:"fulfilled_at"`
	Depletions          []DepletionLine   `json:"depletions"`
	CostLogs            []CostLogResponse `json:"cost_logs"`
	UnresolvedMenuItems []uuid.UUID       `json:"unresolved_menu_items,omitempty"`
	Warnings            []string          `json:"warnings,omitempty"`
}

// DepletionLine is the net change applied to one store item
type DepletionLine struct {
	StoreItemID   uuid.UUID       `json:"store_item_id"`
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	Quantity      decimal.Decimal `json:"quantity"`
	QuantityAfter decimal.Decimal `json:"quantity_after"`
	CostPerUnit   decimal.Decimal `json:"cost_per_unit"`
}

// CostLogResponse represents a sale cost log entry
type CostLogResponse struct {
	ID               uuid.UUID       `json:"id"`
	SaleDetailID     uuid.UUID       `json:"sale_detail_id"`
	StoreItemID      uuid.UUID       `json:"store_item_id"`
	QuantityUsed     decimal.Decimal `json:"quantity_used"`
	CostAtTimeOfSale decimal.Decimal `json:"cost_at_time_of_sale"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	Voided           bool            `json:"voided"`
}

// ToCostLogResponse converts a domain cost log to a response
func ToCostLogResponse(l *costing.SaleCostLog) CostLogResponse {
	return CostLogResponse{
		ID:               l.ID,
		SaleDetailID:     l.SaleDetailID,
		StoreItemID:      l.StoreItemID,
		QuantityUsed:     l.QuantityUsed,
		CostAtTimeOfSale: l.CostAtTimeOfSale,
		TotalCost:        l.TotalCost(),
		Voided:           l.Voided,
	}
}

// VoidResult describes a reversed sale
type VoidResult struct {
	SaleID       uuid.UUID       `json:"sale_id"`
	Status       string          `json:"status"`
	Reason       string          `json:"reason"`
	VoidedAt     time.Time       `json:"voided_at"`
	ReversedCost decimal.Decimal `json:"reversed_cost"`
	Restocked    []RestockLine   `json:"restocked"`
	Warnings     []string        `json:"warnings,omitempty"`
}

// RestockLine is the quantity a void returned to one store item
type RestockLine struct {
	StoreItemID   uuid.UUID       `json:"store_item_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	QuantityAfter decimal.Decimal `json:"quantity_after"`
}

// SaleCostSummary is the frozen cost of one sale
type SaleCostSummary struct {
	SaleID      uuid.UUID         `json:"sale_id"`
	Status      string            `json:"status"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	CostOfGoods decimal.Decimal   `json:"cost_of_goods"`
	Lines       []LineCostSummary `json:"lines"`
}

// LineCostSummary is the cost attributed to one sale line
type LineCostSummary struct {
	SaleDetailID uuid.UUID         `json:"sale_detail_id"`
	LineNumber   int               `json:"line_number"`
	MenuItemID   uuid.UUID         `json:"menu_item_id"`
	Quantity     decimal.Decimal   `json:"quantity"`
	LineTotal    decimal.Decimal   `json:"line_total"`
	Cost         decimal.Decimal   `json:"cost"`
	CostLogs     []CostLogResponse `json:"cost_logs"`
}
