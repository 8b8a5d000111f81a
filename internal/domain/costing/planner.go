package costing

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaleLine is the planner's view of one sale detail
type SaleLine struct {
	DetailID   uuid.UUID
	MenuItemID uuid.UUID
	Quantity   decimal.Decimal
}

// Demand is the total quantity of one store item a sale requires
type Demand struct {
	StoreItemID uuid.UUID
	Quantity    decimal.Decimal
}

// Contribution is the share of a store item's demand coming from one sale line.
// Each becomes one SaleCostLog on commit.
type Contribution struct {
	SaleDetailID uuid.UUID
	MenuItemID   uuid.UUID
	StoreItemID  uuid.UUID
	Quantity     decimal.Decimal
}

// ConsumptionPlan is the aggregated store item demand of a sale
type ConsumptionPlan struct {
	demands       []Demand
	index         map[uuid.UUID]int
	contributions []Contribution
	unresolved    []uuid.UUID
}

// Demands returns one entry per store item in ascending store item ID order
func (p *ConsumptionPlan) Demands() []Demand {
	return slices.Clone(p.demands)
}

// StoreItemIDs returns the demanded store items in lock order
func (p *ConsumptionPlan) StoreItemIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(p.demands))
	for i, d := range p.demands {
		ids[i] = d.StoreItemID
	}
	return ids
}

// DemandFor returns the aggregated demand for a store item, zero if absent
func (p *ConsumptionPlan) DemandFor(storeItemID uuid.UUID) decimal.Decimal {
	if i, ok := p.index[storeItemID]; ok {
		return p.demands[i].Quantity
	}
	return decimal.Zero
}

// Contributions returns per-line contributions in sale line order
func (p *ConsumptionPlan) Contributions() []Contribution {
	return slices.Clone(p.contributions)
}

// Unresolved returns menu items that had no recipe lines
func (p *ConsumptionPlan) Unresolved() []uuid.UUID {
	return slices.Clone(p.unresolved)
}

// IsEmpty returns true if the sale consumes no stock
func (p *ConsumptionPlan) IsEmpty() bool {
	return len(p.demands) == 0
}

// TotalQuantity sums all demands. It always equals the sum of contributions.
func (p *ConsumptionPlan) TotalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, d := range p.demands {
		total = total.Add(d.Quantity)
	}
	return total
}

// ConsumptionPlanner expands sale lines through their recipes into store item demand
type ConsumptionPlanner struct {
	catalog RecipeCatalog
}

// NewConsumptionPlanner creates a planner over a recipe catalog
func NewConsumptionPlanner(catalog RecipeCatalog) *ConsumptionPlanner {
	return &ConsumptionPlanner{catalog: catalog}
}

// Plan resolves every line's recipe and aggregates demand per store item.
// Demand for a line is recipe quantity times line quantity, unrounded.
// Several lines touching the same store item produce a single demand.
func (p *ConsumptionPlanner) Plan(ctx context.Context, lines []SaleLine) (*ConsumptionPlan, error) {
	menuItemIDs := make([]uuid.UUID, 0, len(lines))
	seen := make(map[uuid.UUID]struct{}, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.MenuItemID]; !ok {
			seen[l.MenuItemID] = struct{}{}
			menuItemIDs = append(menuItemIDs, l.MenuItemID)
		}
	}

	recipes, err := p.catalog.ResolveMany(ctx, menuItemIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve recipes: %w", err)
	}

	plan := &ConsumptionPlan{index: make(map[uuid.UUID]int)}
	totals := make(map[uuid.UUID]decimal.Decimal)
	unresolved := make(map[uuid.UUID]struct{})

	for _, line := range lines {
		recipe := recipes[line.MenuItemID]
		if len(recipe) == 0 {
			if _, ok := unresolved[line.MenuItemID]; !ok {
				unresolved[line.MenuItemID] = struct{}{}
				plan.unresolved = append(plan.unresolved, line.MenuItemID)
			}
			continue
		}

		// one contribution per (line, store item), in recipe order
		perLine := make(map[uuid.UUID]int, len(recipe))
		for _, rl := range recipe {
			qty := rl.QuantityUsed.Mul(line.Quantity)
			totals[rl.StoreItemID] = totals[rl.StoreItemID].Add(qty)

			if i, ok := perLine[rl.StoreItemID]; ok {
				plan.contributions[i].Quantity = plan.contributions[i].Quantity.Add(qty)
				continue
			}
			perLine[rl.StoreItemID] = len(plan.contributions)
			plan.contributions = append(plan.contributions, Contribution{
				SaleDetailID: line.DetailID,
				MenuItemID:   line.MenuItemID,
				StoreItemID:  rl.StoreItemID,
				Quantity:     qty,
			})
		}
	}

	ids := make([]uuid.UUID, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, CompareIDs)

	plan.demands = make([]Demand, len(ids))
	for i, id := range ids {
		plan.demands[i] = Demand{StoreItemID: id, Quantity: totals[id]}
		plan.index[id] = i
	}

	return plan, nil
}
