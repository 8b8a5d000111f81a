package fulfillment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/tavola/backend/internal/application/fulfillment"
	"github.com/tavola/backend/internal/domain/costing"
	"github.com/tavola/backend/internal/domain/shared"
	"github.com/tavola/backend/internal/infrastructure/persistence/memstore"
	"go.uber.org/zap"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{events: make([]shared.DomainEvent, 0)}
}

func (m *MockEventPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *MockEventPublisher) GetEventsByType(eventType string) []shared.DomainEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]shared.DomainEvent, 0)
	for _, e := range m.events {
		if e.EventType() == eventType {
			result = append(result, e)
		}
	}
	return result
}

func (m *MockEventPublisher) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// recordingMetrics counts outcomes
type recordingMetrics struct {
	mu            sync.Mutex
	outcomes      map[string]int
	compensations int
	lowStock      int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{outcomes: make(map[string]int)}
}

func (m *recordingMetrics) RecordSale(_ context.Context, _, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
}
func (m *recordingMetrics) RecordLockWait(context.Context, int, time.Duration) {}
func (m *recordingMetrics) RecordCostOfGoods(context.Context, decimal.Decimal) {}
func (m *recordingMetrics) RecordLowStockAlert(context.Context, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lowStock++
}
func (m *recordingMetrics) RecordCompensation(context.Context, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compensations++
}

func (m *recordingMetrics) outcome(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[name]
}

// kitchen seeds Tomato (10 kg at 2.00) and Cheese (5 kg at 8.00) with three dishes:
// Salad 0.5 kg tomato, Soup 0.3 kg tomato, Pizza 0.2 kg tomato + 0.15 kg cheese.
type kitchen struct {
	store     *memstore.Store
	tomato    *costing.StoreItem
	cheese    *costing.StoreItem
	salad     uuid.UUID
	soup      uuid.UUID
	pizza     uuid.UUID
	publisher *MockEventPublisher
	metrics   *recordingMetrics
}

func newKitchen(t *testing.T) *kitchen {
	t.Helper()
	k := &kitchen{
		store:     memstore.New(),
		salad:     uuid.New(),
		soup:      uuid.New(),
		pizza:     uuid.New(),
		publisher: NewMockEventPublisher(),
		metrics:   newRecordingMetrics(),
	}
	k.tomato = k.addItem(t, "Tomato", "10", "2.00")
	k.cheese = k.addItem(t, "Cheese", "5", "8.00")

	k.addRecipe(t, k.salad, k.tomato.ID, "0.5")
	k.addRecipe(t, k.soup, k.tomato.ID, "0.3")
	k.addRecipe(t, k.pizza, k.tomato.ID, "0.2")
	k.addRecipe(t, k.pizza, k.cheese.ID, "0.15")
	return k
}

func (k *kitchen) addItem(t *testing.T, name, qty, cost string) *costing.StoreItem {
	t.Helper()
	item, err := costing.NewStoreItem(name, "kg", dec(qty), dec(cost))
	require.NoError(t, err)
	require.NoError(t, k.store.StoreItems().Create(context.Background(), item))
	return item
}

func (k *kitchen) addRecipe(t *testing.T, menu, item uuid.UUID, qty string) {
	t.Helper()
	line, err := costing.NewRecipeLine(menu, item, dec(qty), 0)
	require.NoError(t, err)
	require.NoError(t, k.store.Recipes().Create(context.Background(), line))
}

func (k *kitchen) service(scope fulfillment.TransactionScope, opts fulfillment.Options) *fulfillment.Service {
	svc := fulfillment.NewService(scope, k.store.Recipes(), zap.NewNop(), opts)
	svc.SetEventPublisher(k.publisher)
	svc.SetMetrics(k.metrics)
	return svc
}

func (k *kitchen) onHand(t *testing.T, id uuid.UUID) string {
	t.Helper()
	item, err := k.store.StoreItems().FindByID(context.Background(), id)
	require.NoError(t, err)
	return item.QuantityOnHand.String()
}

func saleOf(lines ...fulfillment.SaleLineItem) fulfillment.FulfillSaleCommand {
	return fulfillment.FulfillSaleCommand{SaleID: uuid.New(), Lines: lines}
}

func line(menu uuid.UUID, qty string) fulfillment.SaleLineItem {
	return fulfillment.SaleLineItem{MenuItemID: menu, Quantity: dec(qty), UnitPrice: dec("9.50")}
}

var errDiskFull = errors.New("disk full")

// faultyScope wraps the memory store and fails selected writes
type faultyScope struct {
	inner *memstore.Store

	mu               sync.Mutex
	applyCalls       int
	failApplyAt      int // 1-based ApplyQuantity call to fail, 0 never
	failCostLogs     bool
	failUpdateStatus bool
	failVoidLogs     bool
}

func (f *faultyScope) Execute(ctx context.Context, fn func(repos fulfillment.TransactionalRepositories) error) error {
	return f.inner.Execute(ctx, func(repos fulfillment.TransactionalRepositories) error {
		return fn(&faultyRepos{TransactionalRepositories: repos, scope: f})
	})
}

type faultyRepos struct {
	fulfillment.TransactionalRepositories
	scope *faultyScope
}

func (r *faultyRepos) StoreItemRepo() costing.StoreItemRepository {
	return &faultyStoreItems{StoreItemRepository: r.TransactionalRepositories.StoreItemRepo(), scope: r.scope}
}

func (r *faultyRepos) SaleRepo() costing.SaleRepository {
	return &faultySales{SaleRepository: r.TransactionalRepositories.SaleRepo(), scope: r.scope}
}

func (r *faultyRepos) CostLogRepo() costing.SaleCostLogRepository {
	return &faultyCostLogs{SaleCostLogRepository: r.TransactionalRepositories.CostLogRepo(), scope: r.scope}
}

type faultyStoreItems struct {
	costing.StoreItemRepository
	scope *faultyScope
}

func (r *faultyStoreItems) ApplyQuantity(ctx context.Context, id uuid.UUID, fromVersion int, quantity decimal.Decimal) error {
	r.scope.mu.Lock()
	r.scope.applyCalls++
	fail := r.scope.applyCalls == r.scope.failApplyAt
	r.scope.mu.Unlock()
	if fail {
		return errDiskFull
	}
	return r.StoreItemRepository.ApplyQuantity(ctx, id, fromVersion, quantity)
}

type faultySales struct {
	costing.SaleRepository
	scope *faultyScope
}

func (r *faultySales) UpdateStatus(ctx context.Context, sale *costing.Sale) error {
	if r.scope.failUpdateStatus {
		return errDiskFull
	}
	return r.SaleRepository.UpdateStatus(ctx, sale)
}

type faultyCostLogs struct {
	costing.SaleCostLogRepository
	scope *faultyScope
}

func (r *faultyCostLogs) CreateBatch(ctx context.Context, logs []*costing.SaleCostLog) error {
	if r.scope.failCostLogs {
		return errDiskFull
	}
	return r.SaleCostLogRepository.CreateBatch(ctx, logs)
}

func (r *faultyCostLogs) MarkVoidedBySale(ctx context.Context, saleID uuid.UUID, at time.Time) (int64, error) {
	if r.scope.failVoidLogs {
		return 0, errDiskFull
	}
	return r.SaleCostLogRepository.MarkVoidedBySale(ctx, saleID, at)
}
