package costing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tavola/backend/internal/domain/shared"
)

// SaleStatus represents the lifecycle state of a sale
type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "PENDING"
	SaleStatusFulfilled SaleStatus = "FULFILLED"
	SaleStatusRejected  SaleStatus = "REJECTED"
	SaleStatusVoided    SaleStatus = "VOIDED"
)

// IsValid checks if the status is a known value
func (s SaleStatus) IsValid() bool {
	switch s {
	case SaleStatusPending, SaleStatusFulfilled, SaleStatusRejected, SaleStatusVoided:
		return true
	}
	return false
}

// String returns the string representation
func (s SaleStatus) String() string {
	return string(s)
}

// Sale is a customer transaction. Its identity is assigned upstream; the
// engine only records sales it has fulfilled.
type Sale struct {
	shared.BaseAggregateRoot
	Status       SaleStatus      `gorm:"type:varchar(20);not null;index"`
	TotalAmount  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	CostOfGoods  decimal.Decimal `gorm:"type:decimal(30,12);not null;default:0"`
	FulfilledAt  *time.Time      `gorm:"index"`
	VoidedAt     *time.Time
	VoidReason   string       `gorm:"type:varchar(500)"`
	RejectReason string       `gorm:"-"`
	Details      []SaleDetail `gorm:"foreignKey:SaleID;references:ID"`
}

// TableName returns the table name for GORM
func (Sale) TableName() string {
	return "sales"
}

// SaleDetail is one line of a sale: a quantity of a menu item at a unit price
type SaleDetail struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	SaleID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineNumber int             `gorm:"not null"`
	MenuItemID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Quantity   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CreatedAt  time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SaleDetail) TableName() string {
	return "sale_details"
}

// LineTotal returns quantity times unit price
func (d SaleDetail) LineTotal() decimal.Decimal {
	return d.Quantity.Mul(d.UnitPrice)
}

// SaleLineInput is the caller's description of one sale line
type SaleLineInput struct {
	MenuItemID uuid.UUID
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
}

// NewSale creates a pending sale. Lines keep the caller's order and
// duplicate menu items are allowed.
func NewSale(id uuid.UUID, lines []SaleLineInput) (*Sale, error) {
	if id == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SALE_ID", "Sale ID cannot be empty")
	}
	if len(lines) == 0 {
		return nil, shared.NewDomainError("EMPTY_SALE", "Sale must have at least one line")
	}

	now := time.Now()
	sale := &Sale{
		BaseAggregateRoot: shared.NewBaseAggregateRootWithID(id),
		Status:            SaleStatusPending,
		TotalAmount:       decimal.Zero,
		CostOfGoods:       decimal.Zero,
		Details:           make([]SaleDetail, 0, len(lines)),
	}

	for idx, line := range lines {
		if line.MenuItemID == uuid.Nil {
			return nil, shared.NewDomainError("INVALID_MENU_ITEM", "Menu item ID cannot be empty")
		}
		if !line.Quantity.IsPositive() || !HasValidScale(line.Quantity) {
			return nil, shared.NewDomainError("INVALID_QUANTITY", "Sale quantity must be positive with at most 4 decimal places")
		}
		if line.UnitPrice.IsNegative() || !HasValidScale(line.UnitPrice) {
			return nil, shared.NewDomainError("INVALID_PRICE", "Unit price must be non-negative with at most 4 decimal places")
		}
		detail := SaleDetail{
			ID:         uuid.New(),
			SaleID:     id,
			LineNumber: idx + 1,
			MenuItemID: line.MenuItemID,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			CreatedAt:  now,
		}
		sale.Details = append(sale.Details, detail)
		sale.TotalAmount = sale.TotalAmount.Add(detail.LineTotal())
	}

	return sale, nil
}

// SaleLines returns the planner view of the sale's details
func (s *Sale) SaleLines() []SaleLine {
	out := make([]SaleLine, len(s.Details))
	for i, d := range s.Details {
		out[i] = SaleLine{DetailID: d.ID, MenuItemID: d.MenuItemID, Quantity: d.Quantity}
	}
	return out
}

// MenuItemIDs returns the distinct menu items on the sale in line order
func (s *Sale) MenuItemIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(s.Details))
	out := make([]uuid.UUID, 0, len(s.Details))
	for _, d := range s.Details {
		if _, ok := seen[d.MenuItemID]; ok {
			continue
		}
		seen[d.MenuItemID] = struct{}{}
		out = append(out, d.MenuItemID)
	}
	return out
}

// MarkFulfilled records the committed cost of goods
func (s *Sale) MarkFulfilled(costOfGoods decimal.Decimal) error {
	if s.Status != SaleStatusPending {
		return ErrInvalidSaleState
	}
	now := time.Now()
	s.Status = SaleStatusFulfilled
	s.CostOfGoods = costOfGoods
	s.FulfilledAt = &now
	s.UpdatedAt = now
	s.IncrementVersion()

	s.AddDomainEvent(NewSaleFulfilledEvent(s))
	return nil
}

// MarkRejected records why a pending sale could not be fulfilled
func (s *Sale) MarkRejected(reason string) error {
	if s.Status != SaleStatusPending {
		return ErrInvalidSaleState
	}
	s.Status = SaleStatusRejected
	s.RejectReason = reason
	s.UpdatedAt = time.Now()
	s.ClearDomainEvents()
	return nil
}

// Void reverses a fulfilled sale
func (s *Sale) Void(reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return shared.NewDomainError("INVALID_REASON", "Void reason is required")
	}
	if len(reason) > 500 {
		return shared.NewDomainError("INVALID_REASON", "Void reason cannot exceed 500 characters")
	}
	if s.Status != SaleStatusFulfilled {
		return ErrInvalidSaleState
	}
	now := time.Now()
	s.Status = SaleStatusVoided
	s.VoidReason = reason
	s.VoidedAt = &now
	s.UpdatedAt = now
	s.IncrementVersion()

	s.AddDomainEvent(NewSaleVoidedEvent(s))
	return nil
}

// IsFulfilled returns true if the sale's depletion is committed and not reversed
func (s *Sale) IsFulfilled() bool {
	return s.Status == SaleStatusFulfilled
}
