package telemetry

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const fulfillmentMeterName = "tavola-backend/fulfillment"

// FulfillmentMetrics records sale fulfillment metrics with OpenTelemetry.
// It satisfies fulfillment.Metrics.
type FulfillmentMetrics struct {
	sales          *Counter
	saleDuration   *Histogram
	lockWait       *Histogram
	lockedItems    *Histogram
	costOfGoods    *Histogram
	lowStockAlerts *Counter
	compensations  *Counter
}

// NewFulfillmentMetrics creates the fulfillment instruments on meter
func NewFulfillmentMetrics(meter metric.Meter) (*FulfillmentMetrics, error) {
	m := &FulfillmentMetrics{}
	var err error

	if m.sales, err = NewCounter(meter, "fulfillment.sales", "Sale fulfillment and void attempts by outcome", "{sale}"); err != nil {
		return nil, err
	}
	if m.saleDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "fulfillment.sale.duration",
		Description: "Time to fulfill or void a sale",
		Unit:        "s",
		Boundaries:  SaleDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.lockWait, err = NewHistogram(meter, HistogramOpts{
		Name:        "fulfillment.lock.wait",
		Description: "Time spent acquiring store item row locks",
		Unit:        "s",
		Boundaries:  LockWaitBuckets,
	}); err != nil {
		return nil, err
	}
	if m.lockedItems, err = NewHistogram(meter, HistogramOpts{
		Name:        "fulfillment.lock.store_items",
		Description: "Store items locked per sale",
		Unit:        "{item}",
		Boundaries:  []float64{1, 2, 4, 8, 16, 32},
	}); err != nil {
		return nil, err
	}
	if m.costOfGoods, err = NewHistogram(meter, HistogramOpts{
		Name:        "fulfillment.cost_of_goods",
		Description: "Cost of goods of fulfilled sales",
		Unit:        "{currency}",
		Boundaries:  CostBuckets,
	}); err != nil {
		return nil, err
	}
	if m.lowStockAlerts, err = NewCounter(meter, "fulfillment.low_stock_alerts", "Store items that fell below their threshold", "{alert}"); err != nil {
		return nil, err
	}
	if m.compensations, err = NewCounter(meter, "fulfillment.compensations", "Undo steps run after a failed non-atomic sale", "{step}"); err != nil {
		return nil, err
	}
	return m, nil
}

// NewFulfillmentMetricsFromProvider uses the fulfillment meter of mp
func NewFulfillmentMetricsFromProvider(mp *MeterProvider) (*FulfillmentMetrics, error) {
	return NewFulfillmentMetrics(mp.Meter(fulfillmentMeterName))
}

// RecordSale counts one attempt and its duration
func (m *FulfillmentMetrics) RecordSale(ctx context.Context, operation, outcome string, duration time.Duration) {
	attrs := []attribute.KeyValue{AttrOperation.String(operation), AttrOutcome.String(outcome)}
	m.sales.Inc(ctx, attrs...)
	m.saleDuration.RecordDuration(ctx, duration, attrs...)
}

// RecordLockWait records how long the row locks for storeItems items took
func (m *FulfillmentMetrics) RecordLockWait(ctx context.Context, storeItems int, wait time.Duration) {
	m.lockWait.RecordDuration(ctx, wait)
	m.lockedItems.Record(ctx, float64(storeItems))
}

// RecordCostOfGoods records the frozen cost of a fulfilled sale
func (m *FulfillmentMetrics) RecordCostOfGoods(ctx context.Context, cost decimal.Decimal) {
	m.costOfGoods.Record(ctx, cost.InexactFloat64())
}

// RecordLowStockAlert counts an alert for a store item
func (m *FulfillmentMetrics) RecordLowStockAlert(ctx context.Context, storeItemName string) {
	m.lowStockAlerts.Inc(ctx, AttrStoreItemName.String(storeItemName))
}

// RecordCompensation counts an undo step
func (m *FulfillmentMetrics) RecordCompensation(ctx context.Context, operation string, failed bool) {
	m.compensations.Inc(ctx, AttrOperation.String(operation), AttrFailed.Bool(failed))
}
