package costing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tavola/backend/internal/domain/shared"
)

// SaleCostLog records the quantity of a store item one sale line consumed and
// the unit cost in effect when the sale was fulfilled. The cost is copied, not
// referenced, so later repricing never changes historical cost of goods.
type SaleCostLog struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey"`
	SaleID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	SaleDetailID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_cost_log_detail_item,priority:1"`
	StoreItemID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_cost_log_detail_item,priority:2;index"`
	QuantityUsed     decimal.Decimal `gorm:"type:decimal(24,8);not null"`
	CostAtTimeOfSale decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Voided           bool            `gorm:"not null;default:false"`
	VoidedAt         *time.Time
	CreatedAt        time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SaleCostLog) TableName() string {
	return "sale_cost_logs"
}

// NewSaleCostLog creates a cost log entry
func NewSaleCostLog(saleID, saleDetailID, storeItemID uuid.UUID, quantityUsed, costAtTimeOfSale decimal.Decimal) (*SaleCostLog, error) {
	if saleID == uuid.Nil || saleDetailID == uuid.Nil || storeItemID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_COST_LOG", "Cost log references cannot be empty")
	}
	if !quantityUsed.IsPositive() {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Cost log quantity must be positive")
	}
	if costAtTimeOfSale.IsNegative() {
		return nil, shared.NewDomainError("INVALID_COST", "Cost log unit cost cannot be negative")
	}
	return &SaleCostLog{
		ID:               uuid.New(),
		SaleID:           saleID,
		SaleDetailID:     saleDetailID,
		StoreItemID:      storeItemID,
		QuantityUsed:     quantityUsed,
		CostAtTimeOfSale: costAtTimeOfSale,
		CreatedAt:        time.Now(),
	}, nil
}

// TotalCost returns quantity used times the unit cost at time of sale
func (l SaleCostLog) TotalCost() decimal.Decimal {
	return l.QuantityUsed.Mul(l.CostAtTimeOfSale)
}

// MarkVoided flags the entry as reversed. Entries are never deleted.
func (l *SaleCostLog) MarkVoided(at time.Time) error {
	if l.Voided {
		return shared.NewDomainError("ALREADY_VOIDED", "Cost log is already voided")
	}
	l.Voided = true
	l.VoidedAt = &at
	return nil
}

// SumCost totals the cost of the non-voided entries
func SumCost(logs []SaleCostLog) decimal.Decimal {
	total := decimal.Zero
	for _, l := range logs {
		if l.Voided {
			continue
		}
		total = total.Add(l.TotalCost())
	}
	return total
}

// QuantityByStoreItem totals non-voided quantity per store item
func QuantityByStoreItem(logs []SaleCostLog) map[uuid.UUID]decimal.Decimal {
	out := make(map[uuid.UUID]decimal.Decimal)
	for _, l := range logs {
		if l.Voided {
			continue
		}
		out[l.StoreItemID] = out[l.StoreItemID].Add(l.QuantityUsed)
	}
	return out
}
