package fulfillment_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tavola/backend/internal/application/fulfillment"
	"github.com/tavola/backend/internal/domain/costing"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	alerts []fulfillment.StockAlert
	err    error
}

func (n *recordingNotifier) SendAlert(_ context.Context, alert fulfillment.StockAlert) error {
	n.alerts = append(n.alerts, alert)
	return n.err
}

func belowThresholdEvent(t *testing.T, onHand string) *costing.StockBelowThresholdEvent {
	t.Helper()
	item, err := costing.NewStoreItem("Basil", "g", dec(onHand), dec("0.05"))
	require.NoError(t, err)
	require.NoError(t, item.SetLowStockThreshold(dec("200")))
	return costing.NewStockBelowThresholdEvent(item)
}

func TestLowStockHandler_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("sends a low stock alert", func(t *testing.T) {
		notifier := &recordingNotifier{}
		metrics := newRecordingMetrics()
		handler := fulfillment.NewLowStockHandler(zap.NewNop()).WithNotifier(notifier).WithMetrics(metrics)

		require.NoError(t, handler.Handle(ctx, belowThresholdEvent(t, "150")))
		require.Len(t, notifier.alerts, 1)
		assert.Equal(t, "low_stock", notifier.alerts[0].AlertType)
		assert.Equal(t, "Basil", notifier.alerts[0].Name)
		assert.Equal(t, "150", notifier.alerts[0].QuantityOnHand)
		assert.Equal(t, "200", notifier.alerts[0].Threshold)
		assert.Equal(t, 1, metrics.lowStock)
	})

	t.Run("empty shelf is out of stock", func(t *testing.T) {
		notifier := &recordingNotifier{}
		handler := fulfillment.NewLowStockHandler(nil).WithNotifier(notifier)

		require.NoError(t, handler.Handle(ctx, belowThresholdEvent(t, "0")))
		assert.Equal(t, "out_of_stock", notifier.alerts[0].AlertType)
	})

	t.Run("notifier failure does not fail handling", func(t *testing.T) {
		notifier := &recordingNotifier{err: errors.New("smtp down")}
		handler := fulfillment.NewLowStockHandler(zap.NewNop()).WithNotifier(notifier)

		assert.NoError(t, handler.Handle(ctx, belowThresholdEvent(t, "10")))
	})

	t.Run("rejects other event types", func(t *testing.T) {
		handler := fulfillment.NewLowStockHandler(zap.NewNop())
		item, err := costing.NewStoreItem("Basil", "g", dec("10"), dec("0.05"))
		require.NoError(t, err)

		err = handler.Handle(ctx, costing.NewStockRestoredEvent(item, dec("1"), uuid.New()))
		assert.Error(t, err)
	})

	t.Run("subscribes to below threshold events", func(t *testing.T) {
		handler := fulfillment.NewLowStockHandler(zap.NewNop())
		assert.Equal(t, []string{costing.EventTypeStockBelowThreshold}, handler.EventTypes())
	})
}
