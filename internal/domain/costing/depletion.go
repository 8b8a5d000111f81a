package costing

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tavola/backend/internal/domain/shared"
)

// DepletionState is the lifecycle of a depletion transaction
type DepletionState string

const (
	DepletionPlanned   DepletionState = "PLANNED"
	DepletionValidated DepletionState = "VALIDATED"
	DepletionCommitted DepletionState = "COMMITTED"
	DepletionRejected  DepletionState = "REJECTED"
)

// CostSnapshot is the state of a locked store item captured during validation.
// Cost logs use the snapshot cost, never a later read.
type CostSnapshot struct {
	StoreItemID    uuid.UUID
	CostPerUnit    decimal.Decimal
	QuantityOnHand decimal.Decimal
	Version        int
}

// DepletionTransaction applies a consumption plan to locked store items.
//
// PLANNED -> VALIDATED -> COMMITTED, or -> REJECTED from any earlier state.
// Commit mutates the store items in memory and produces cost logs; making
// those changes durable is the caller's job. If persisting fails the caller
// must call Rollback, which restores the in-memory items.
type DepletionTransaction struct {
	saleID     uuid.UUID
	plan       *ConsumptionPlan
	state      DepletionState
	items      map[uuid.UUID]*StoreItem
	snapshots  map[uuid.UUID]CostSnapshot
	shortfalls []Shortfall
	logs       []*SaleCostLog
}

// NewDepletionTransaction creates a transaction in the PLANNED state
func NewDepletionTransaction(saleID uuid.UUID, plan *ConsumptionPlan) (*DepletionTransaction, error) {
	if saleID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SALE_ID", "Sale ID cannot be empty")
	}
	if plan == nil {
		return nil, shared.NewDomainError("INVALID_PLAN", "Consumption plan is required")
	}
	return &DepletionTransaction{
		saleID:    saleID,
		plan:      plan,
		state:     DepletionPlanned,
		items:     make(map[uuid.UUID]*StoreItem),
		snapshots: make(map[uuid.UUID]CostSnapshot),
	}, nil
}

// State returns the current state
func (t *DepletionTransaction) State() DepletionState {
	return t.state
}

// SaleID returns the sale this transaction depletes stock for
func (t *DepletionTransaction) SaleID() uuid.UUID {
	return t.saleID
}

// Plan returns the consumption plan
func (t *DepletionTransaction) Plan() *ConsumptionPlan {
	return t.plan
}

// Validate checks every demand against the locked store items and snapshots
// their cost. All shortfalls are collected, not just the first.
// A demanded store item absent from items counts as a shortfall with zero on hand.
func (t *DepletionTransaction) Validate(items []*StoreItem) error {
	if t.state != DepletionPlanned {
		return ErrInvalidDepletionState
	}

	byID := make(map[uuid.UUID]*StoreItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	var shortfalls []Shortfall
	for _, d := range t.plan.demands {
		item, ok := byID[d.StoreItemID]
		if !ok {
			shortfalls = append(shortfalls, Shortfall{
				StoreItemID: d.StoreItemID,
				Required:    d.Quantity,
				OnHand:      decimal.Zero,
				Missing:     true,
			})
			continue
		}
		if !item.CanFulfill(d.Quantity) {
			shortfalls = append(shortfalls, Shortfall{
				StoreItemID: item.ID,
				Name:        item.Name,
				Unit:        item.Unit,
				Required:    d.Quantity,
				OnHand:      item.QuantityOnHand,
			})
		}
	}

	if len(shortfalls) > 0 {
		t.state = DepletionRejected
		t.shortfalls = shortfalls
		return &InsufficientStockError{SaleID: t.saleID, Shortfalls: slices.Clone(shortfalls)}
	}

	for _, d := range t.plan.demands {
		item := byID[d.StoreItemID]
		t.items[item.ID] = item
		t.snapshots[item.ID] = CostSnapshot{
			StoreItemID:    item.ID,
			CostPerUnit:    item.CostPerUnit,
			QuantityOnHand: item.QuantityOnHand,
			Version:        item.Version,
		}
	}
	t.state = DepletionValidated
	return nil
}

// Commit decrements each store item by its aggregated demand, in ascending
// store item order, and builds one cost log per contribution.
func (t *DepletionTransaction) Commit() ([]*SaleCostLog, error) {
	if t.state != DepletionValidated {
		return nil, ErrInvalidDepletionState
	}

	for _, d := range t.plan.demands {
		if err := t.items[d.StoreItemID].Deplete(d.Quantity, t.saleID); err != nil {
			t.Rollback()
			return nil, fmt.Errorf("deplete store item %s: %w", d.StoreItemID, err)
		}
	}

	logs := make([]*SaleCostLog, 0, len(t.plan.contributions))
	for _, c := range t.plan.contributions {
		snap := t.snapshots[c.StoreItemID]
		log, err := NewSaleCostLog(t.saleID, c.SaleDetailID, c.StoreItemID, c.Quantity, snap.CostPerUnit)
		if err != nil {
			t.Rollback()
			return nil, err
		}
		logs = append(logs, log)
	}

	t.logs = logs
	t.state = DepletionCommitted
	return slices.Clone(logs), nil
}

// Rollback restores every touched store item to its validation snapshot and
// moves the transaction to REJECTED. It is safe to call in any state.
func (t *DepletionTransaction) Rollback() {
	for id, item := range t.items {
		item.revert(t.snapshots[id])
	}
	t.logs = nil
	t.state = DepletionRejected
}

// Items returns the validated store items in ascending ID order
func (t *DepletionTransaction) Items() []*StoreItem {
	out := make([]*StoreItem, 0, len(t.items))
	for _, d := range t.plan.demands {
		if item, ok := t.items[d.StoreItemID]; ok {
			out = append(out, item)
		}
	}
	return out
}

// Snapshot returns the validation snapshot of a store item
func (t *DepletionTransaction) Snapshot(storeItemID uuid.UUID) (CostSnapshot, bool) {
	s, ok := t.snapshots[storeItemID]
	return s, ok
}

// Shortfalls returns the shortfalls found by a failed validation
func (t *DepletionTransaction) Shortfalls() []Shortfall {
	return slices.Clone(t.shortfalls)
}

// Logs returns the cost logs produced by Commit
func (t *DepletionTransaction) Logs() []*SaleCostLog {
	return slices.Clone(t.logs)
}

// CostOfGoods sums quantity times snapshot cost over all committed logs
func (t *DepletionTransaction) CostOfGoods() decimal.Decimal {
	total := decimal.Zero
	for _, l := range t.logs {
		total = total.Add(l.TotalCost())
	}
	return total
}
