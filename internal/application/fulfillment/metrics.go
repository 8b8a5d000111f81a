package fulfillment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome labels recorded for each fulfillment or void attempt
const (
	OutcomeFulfilled          = "fulfilled"
	OutcomeVoided             = "voided"
	OutcomeInsufficientStock  = "insufficient_stock"
	OutcomeRecipeNotFound     = "recipe_not_found"
	OutcomeLockContention     = "lock_contention"
	OutcomeDuplicate          = "duplicate"
	OutcomeInvalid            = "invalid"
	OutcomePersistenceFailure = "persistence_failure"
	OutcomeCanceled           = "canceled"
)

// Metrics records fulfillment telemetry. Implementations must be safe for concurrent use.
type Metrics interface {
	RecordSale(ctx context.Context, operation, outcome string, duration time.Duration)
	RecordLockWait(ctx context.Context, storeItems int, wait time.Duration)
	RecordCostOfGoods(ctx context.Context, cost decimal.Decimal)
	RecordLowStockAlert(ctx context.Context, storeItemName string)
	RecordCompensation(ctx context.Context, operation string, failed bool)
}

type noopMetrics struct{}

func (noopMetrics) RecordSale(context.Context, string, string, time.Duration) {}
func (noopMetrics) RecordLockWait(context.Context, int, time.Duration)        {}
func (noopMetrics) RecordCostOfGoods(context.Context, decimal.Decimal)        {}
func (noopMetrics) RecordLowStockAlert(context.Context, string)               {}
func (noopMetrics) RecordCompensation(context.Context, string, bool)          {}
