package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestFulfillmentMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	m, err := NewFulfillmentMetrics(provider.Meter("test"))
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordSale(ctx, "fulfill", "fulfilled", 12*time.Millisecond)
	m.RecordSale(ctx, "fulfill", "fulfilled", 8*time.Millisecond)
	m.RecordSale(ctx, "fulfill", "insufficient_stock", 3*time.Millisecond)
	m.RecordLockWait(ctx, 3, 2*time.Millisecond)
	m.RecordCostOfGoods(ctx, decimal.RequireFromString("5.20"))
	m.RecordLowStockAlert(ctx, "Tomato")
	m.RecordCompensation(ctx, "restore_stock", false)

	metrics := collect(t, reader)

	sales, ok := metrics["fulfillment.sales"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	byOutcome := map[string]int64{}
	for _, dp := range sales.DataPoints {
		outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
		byOutcome[outcome.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{
		"fulfilled":          2,
		"insufficient_stock": 1,
	}, byOutcome)

	duration, ok := metrics["fulfillment.sale.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Len(t, duration.DataPoints, 2)

	cost, ok := metrics["fulfillment.cost_of_goods"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, cost.DataPoints, 1)
	assert.InDelta(t, 5.2, cost.DataPoints[0].Sum, 1e-9)

	items, ok := metrics["fulfillment.lock.store_items"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Equal(t, uint64(1), items.DataPoints[0].Count)

	alerts, ok := metrics["fulfillment.low_stock_alerts"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(1), alerts.DataPoints[0].Value)

	comp, ok := metrics["fulfillment.compensations"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	failed, _ := comp.DataPoints[0].Attributes.Value(AttrFailed)
	assert.False(t, failed.AsBool())
}
