package fulfillment

import (
	"context"
	"fmt"

	"github.com/tavola/backend/internal/domain/costing"
	"github.com/tavola/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// StockAlert represents a low stock alert for one store item
type StockAlert struct {
	StoreItemID    string `json:"store_item_id"`
	Name           string `json:"name"`
	Unit           string `json:"unit"`
	QuantityOnHand string `json:"quantity_on_hand"`
	Threshold      string `json:"threshold"`
	AlertType      string `json:"alert_type"` // "low_stock", "out_of_stock"
}

// StockAlertNotifier sends stock alerts to whoever restocks the kitchen
type StockAlertNotifier interface {
	SendAlert(ctx context.Context, alert StockAlert) error
}

// LowStockHandler handles StockBelowThreshold events
type LowStockHandler struct {
	logger   *zap.Logger
	metrics  Metrics
	notifier StockAlertNotifier
}

// NewLowStockHandler creates a new handler for stock below threshold events
func NewLowStockHandler(logger *zap.Logger) *LowStockHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LowStockHandler{
		logger:  logger,
		metrics: noopMetrics{},
	}
}

// WithNotifier sets the notifier for sending alerts
func (h *LowStockHandler) WithNotifier(notifier StockAlertNotifier) *LowStockHandler {
	h.notifier = notifier
	return h
}

// WithMetrics sets the metrics recorder
func (h *LowStockHandler) WithMetrics(metrics Metrics) *LowStockHandler {
	if metrics != nil {
		h.metrics = metrics
	}
	return h
}

// EventTypes returns the event types this handler is interested in
func (h *LowStockHandler) EventTypes() []string {
	return []string{costing.EventTypeStockBelowThreshold}
}

// Handle processes a StockBelowThresholdEvent
func (h *LowStockHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	thresholdEvent, ok := event.(*costing.StockBelowThresholdEvent)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("expected", costing.EventTypeStockBelowThreshold),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			costing.EventTypeStockBelowThreshold, event.EventType())
	}

	alertType := "low_stock"
	if thresholdEvent.QuantityOnHand.IsZero() {
		alertType = "out_of_stock"
	}
	alert := StockAlert{
		StoreItemID:    thresholdEvent.StoreItemID.String(),
		Name:           thresholdEvent.Name,
		Unit:           thresholdEvent.Unit,
		QuantityOnHand: thresholdEvent.QuantityOnHand.String(),
		Threshold:      thresholdEvent.Threshold.String(),
		AlertType:      alertType,
	}

	h.logger.Warn("stock below threshold",
		zap.String("store_item_id", alert.StoreItemID),
		zap.String("name", alert.Name),
		zap.String("quantity_on_hand", alert.QuantityOnHand),
		zap.String("threshold", alert.Threshold),
		zap.String("alert_type", alertType),
	)
	h.metrics.RecordLowStockAlert(ctx, thresholdEvent.Name)

	if h.notifier != nil {
		if err := h.notifier.SendAlert(ctx, alert); err != nil {
			// notification failure does not fail event handling
			h.logger.Error("failed to send stock alert notification",
				zap.String("store_item_id", alert.StoreItemID),
				zap.Error(err),
			)
		}
	}
	return nil
}

var _ shared.EventHandler = (*LowStockHandler)(nil)

// LoggingStockAlertNotifier is a notifier that only logs alerts
type LoggingStockAlertNotifier struct {
	logger *zap.Logger
}

// NewLoggingStockAlertNotifier creates a new logging notifier
func NewLoggingStockAlertNotifier(logger *zap.Logger) *LoggingStockAlertNotifier {
	return &LoggingStockAlertNotifier{logger: logger}
}

// SendAlert logs the stock alert
func (n *LoggingStockAlertNotifier) SendAlert(_ context.Context, alert StockAlert) error {
	n.logger.Warn("STOCK ALERT",
		zap.String("type", alert.AlertType),
		zap.String("store_item", alert.Name),
		zap.String("on_hand", alert.QuantityOnHand+" "+alert.Unit),
		zap.String("threshold", alert.Threshold+" "+alert.Unit),
	)
	return nil
}

var _ StockAlertNotifier = (*LoggingStockAlertNotifier)(nil)
