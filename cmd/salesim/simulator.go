package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tavola/backend/internal/application/fulfillment"
	"github.com/tavola/backend/internal/domain/costing"
	"github.com/tavola/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var units = []string{"kg", "g", "l", "ml", "pcs"}

// Repositories are the stores the simulator seeds and audits
type Repositories struct {
	StoreItems costing.StoreItemRepository
	Recipes    costing.RecipeRepository
	Sales      costing.SaleRepository
	CostLogs   costing.SaleCostLogRepository
}

// SimulationConfig controls the size and pacing of one run
type SimulationConfig struct {
	StoreItems  int
	MenuItems   int
	Sales       int
	Workers     int
	MaxLines    int
	RatePerSec  float64 // zero means unpaced
	VoidRatio   float64
	Seed        uint64
	RetryPolicy fulfillment.RetryPolicy
}

// DefaultSimulationConfig returns a small contended run
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		StoreItems:  12,
		MenuItems:   8,
		Sales:       500,
		Workers:     16,
		MaxLines:    4,
		VoidRatio:   0.05,
		RetryPolicy: fulfillment.DefaultRetryPolicy,
	}
}

// Report summarizes the outcome of a run
type Report struct {
	Fulfilled   int64
	Rejected    int64
	Contended   int64
	Voided      int64
	Failed      int64
	Warnings    int64
	CostOfGoods decimal.Decimal
	Elapsed     time.Duration
}

// Fields renders the report as log fields
func (r Report) Fields() []zap.Field {
	return []zap.Field{
		zap.Int64("fulfilled", r.Fulfilled),
		zap.Int64("rejected", r.Rejected),
		zap.Int64("contended", r.Contended),
		zap.Int64("voided", r.Voided),
		zap.Int64("failed", r.Failed),
		zap.Int64("warnings", r.Warnings),
		zap.String("cost_of_goods", r.CostOfGoods.StringFixed(4)),
		zap.Duration("elapsed", r.Elapsed),
	}
}

// plannedSale is a generated command and whether to void it afterwards
type plannedSale struct {
	cmd  fulfillment.FulfillSaleCommand
	void bool
}

// Simulator drives concurrent sales against one fulfillment service and
// checks that stock and cost ledgers still agree afterwards.
type Simulator struct {
	svc     *fulfillment.Service
	reports *fulfillment.CostReportService
	repos   Repositories
	cfg     SimulationConfig
	faker   *gofakeit.Faker
	logger  *zap.Logger

	opening map[uuid.UUID]decimal.Decimal
	menu    []uuid.UUID
	started time.Time

	fulfilled, rejected, contended, voided, failed, warnings atomic.Int64

	mu    sync.Mutex
	costs map[uuid.UUID]decimal.Decimal
}

// NewSimulator creates a Simulator
func NewSimulator(svc *fulfillment.Service, repos Repositories, cfg SimulationConfig, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxLines < 1 {
		cfg.MaxLines = 1
	}
	return &Simulator{
		svc:     svc,
		reports: fulfillment.NewCostReportService(repos.Sales, repos.CostLogs),
		repos:   repos,
		cfg:     cfg,
		faker:   gofakeit.New(cfg.Seed),
		logger:  logger.Named("salesim"),
		opening: make(map[uuid.UUID]decimal.Decimal),
		costs:   make(map[uuid.UUID]decimal.Decimal),
	}
}

// Seed creates store items and recipes. One extra menu item is left without
// recipe lines so the unresolved path is exercised too.
func (s *Simulator) Seed(ctx context.Context) error {
	if s.cfg.StoreItems < 1 || s.cfg.MenuItems < 1 {
		return errors.New("simulation needs at least one store item and one menu item")
	}

	items := make([]*costing.StoreItem, 0, s.cfg.StoreItems)
	seen := make(map[string]int)
	for i := 0; i < s.cfg.StoreItems; i++ {
		name := s.ingredientName()
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s %d", name, n)
		}
		qty := decimal.NewFromFloat(s.faker.Float64Range(40, 200)).Round(3)
		cost := decimal.NewFromFloat(s.faker.Float64Range(0.25, 25)).Round(4)
		item, err := costing.NewStoreItem(name, units[s.faker.Number(0, len(units)-1)], qty, cost)
		if err != nil {
			return fmt.Errorf("new store item: %w", err)
		}
		if err := item.SetLowStockThreshold(qty.Div(decimal.NewFromInt(10)).Round(3)); err != nil {
			return fmt.Errorf("set threshold: %w", err)
		}
		if err := s.repos.StoreItems.Create(ctx, item); err != nil {
			return fmt.Errorf("create store item: %w", err)
		}
		s.opening[item.ID] = item.QuantityOnHand
		items = append(items, item)
	}

	for m := 0; m < s.cfg.MenuItems; m++ {
		menuItemID := uuid.New()
		picks := s.faker.Number(1, min(4, len(items)))
		used := make(map[int]bool, picks)
		lines := make([]*costing.RecipeLine, 0, picks)
		for len(lines) < picks {
			idx := s.faker.Number(0, len(items)-1)
			if used[idx] {
				continue
			}
			used[idx] = true
			qty := decimal.NewFromFloat(s.faker.Float64Range(0.05, 1.5)).Round(3)
			line, err := costing.NewRecipeLine(menuItemID, items[idx].ID, qty, len(lines))
			if err != nil {
				return fmt.Errorf("new recipe line: %w", err)
			}
			lines = append(lines, line)
		}
		if err := s.repos.Recipes.Create(ctx, lines...); err != nil {
			return fmt.Errorf("create recipe: %w", err)
		}
		s.menu = append(s.menu, menuItemID)
	}
	s.menu = append(s.menu, uuid.New())

	s.logger.Info("Store seeded",
		zap.Int("store_items", len(items)),
		zap.Int("menu_items", len(s.menu)),
	)
	return nil
}

func (s *Simulator) ingredientName() string {
	if s.faker.Bool() {
		return s.faker.Vegetable()
	}
	return s.faker.Fruit()
}

// plan generates every sale up front; the faker is not safe for concurrent use
func (s *Simulator) plan() []plannedSale {
	planned := make([]plannedSale, s.cfg.Sales)
	for i := range planned {
		lineCount := s.faker.Number(1, s.cfg.MaxLines)
		cmd := fulfillment.FulfillSaleCommand{SaleID: uuid.New()}
		for j := 0; j < lineCount; j++ {
			cmd.Lines = append(cmd.Lines, fulfillment.SaleLineItem{
				MenuItemID: s.menu[s.faker.Number(0, len(s.menu)-1)],
				Quantity:   decimal.NewFromInt(int64(s.faker.Number(1, 3))),
				UnitPrice:  decimal.NewFromFloat(s.faker.Float64Range(4, 30)).Round(2),
			})
		}
		planned[i] = plannedSale{cmd: cmd, void: s.faker.Float64() < s.cfg.VoidRatio}
	}
	return planned
}

// Run submits the planned sales from cfg.Workers goroutines
func (s *Simulator) Run(ctx context.Context) (Report, error) {
	planned := s.plan()
	limit := rate.Inf
	if s.cfg.RatePerSec > 0 {
		limit = rate.Limit(s.cfg.RatePerSec)
	}
	limiter := rate.NewLimiter(limit, s.cfg.Workers)

	s.started = time.Now()
	ctx = logger.WithRequestID(ctx, "salesim-"+uuid.NewString())
	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan plannedSale)

	g.Go(func() error {
		defer close(jobs)
		for _, p := range planned {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			select {
			case jobs <- p:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < s.cfg.Workers; w++ {
		g.Go(func() error {
			for p := range jobs {
				s.submit(gctx, p)
			}
			return nil
		})
	}

	err := g.Wait()
	return s.report(), err
}

func (s *Simulator) submit(ctx context.Context, p plannedSale) {
	var result *fulfillment.FulfillmentResult
	err := fulfillment.RetryOnContention(ctx, s.cfg.RetryPolicy, func(ctx context.Context) error {
		var err error
		result, err = s.svc.FulfillSale(ctx, p.cmd)
		return err
	})
	if !s.count(p.cmd.SaleID, err) {
		return
	}

	s.warnings.Add(int64(len(result.Warnings)))
	s.mu.Lock()
	s.costs[result.SaleID] = result.CostOfGoods
	s.mu.Unlock()

	if !p.void {
		return
	}
	err = fulfillment.RetryOnContention(ctx, s.cfg.RetryPolicy, func(ctx context.Context) error {
		_, err := s.svc.VoidSale(ctx, fulfillment.VoidSaleCommand{SaleID: p.cmd.SaleID, Reason: "simulated refund"})
		return err
	})
	if err != nil {
		s.failed.Add(1)
		s.logger.Warn("Void failed", zap.String("sale_id", p.cmd.SaleID.String()), zap.Error(err))
		return
	}
	s.voided.Add(1)
	s.mu.Lock()
	delete(s.costs, p.cmd.SaleID)
	s.mu.Unlock()
}

// count classifies a fulfillment outcome and reports whether it succeeded
func (s *Simulator) count(saleID uuid.UUID, err error) bool {
	switch {
	case err == nil:
		s.fulfilled.Add(1)
		return true
	case errors.Is(err, costing.ErrInsufficientStock):
		s.rejected.Add(1)
	case costing.IsRetryable(err):
		s.contended.Add(1)
	default:
		s.failed.Add(1)
		s.logger.Warn("Sale failed", zap.String("sale_id", saleID.String()), zap.Error(err))
	}
	return false
}

func (s *Simulator) report() Report {
	r := Report{
		Fulfilled:   s.fulfilled.Load(),
		Rejected:    s.rejected.Load(),
		Contended:   s.contended.Load(),
		Voided:      s.voided.Load(),
		Failed:      s.failed.Load(),
		Warnings:    s.warnings.Load(),
		CostOfGoods: decimal.Zero,
		Elapsed:     time.Since(s.started),
	}
	s.mu.Lock()
	for _, c := range s.costs {
		r.CostOfGoods = r.CostOfGoods.Add(c)
	}
	s.mu.Unlock()
	return r
}

// Verify checks that opening stock minus remaining stock equals the quantity
// logged by non-voided sales, and that the ledger's cost of goods equals the
// sum reported back to callers.
func (s *Simulator) Verify(ctx context.Context, report Report) error {
	ids := make([]uuid.UUID, 0, len(s.opening))
	for id := range s.opening {
		ids = append(ids, id)
	}
	items, err := s.repos.StoreItems.FindByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load store items: %w", err)
	}

	from := s.started.Add(-time.Minute)
	to := time.Now().Add(time.Minute)
	logs, err := s.repos.CostLogs.FindFulfilledBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("load cost logs: %w", err)
	}
	consumed := costing.QuantityByStoreItem(logs)

	var errs []error
	for _, item := range items {
		if item.QuantityOnHand.IsNegative() {
			errs = append(errs, fmt.Errorf("%s: negative stock %s", item.Name, item.QuantityOnHand))
		}
		depleted := s.opening[item.ID].Sub(item.QuantityOnHand)
		if !depleted.Equal(consumed[item.ID]) {
			errs = append(errs, fmt.Errorf("%s: depleted %s but logged %s", item.Name, depleted, consumed[item.ID]))
		}
	}

	cogs, err := s.reports.CostOfGoodsBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("cost of goods: %w", err)
	}
	if !cogs.Equal(report.CostOfGoods) {
		errs = append(errs, fmt.Errorf("ledger cost of goods %s, reported %s", cogs, report.CostOfGoods))
	}
	return errors.Join(errs...)
}
