package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tavola/backend/internal/domain/costing"
	"github.com/tavola/backend/internal/domain/shared"
	"github.com/tavola/backend/internal/infrastructure/logger"
	"github.com/tavola/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const (
	// DefaultLockTimeout bounds the wait for store item and sale row locks
	DefaultLockTimeout = 3 * time.Second
)

// ErrSaleInFlight is the cause of a LockContentionError returned when the same
// sale is already being processed.
var ErrSaleInFlight = errors.New("sale submission already in progress")

// Options configures fulfillment policy
type Options struct {
	// LockTimeout bounds every lock wait. Zero means DefaultLockTimeout.
	LockTimeout time.Duration
	// RejectUnknownRecipes rejects sales containing menu items without recipe
	// lines. When false such lines consume no stock and produce a warning.
	RejectUnknownRecipes bool
}

// Service records sales, depletes the stock their recipes consume and freezes
// the cost of what was consumed.
type Service struct {
	scope          TransactionScope
	planner        *costing.ConsumptionPlanner
	eventPublisher shared.EventPublisher
	metrics        Metrics
	guard          SaleGuard
	logger         *zap.Logger
	opts           Options
}

// NewService creates a new fulfillment Service
func NewService(scope TransactionScope, catalog costing.RecipeCatalog, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	return &Service{
		scope:   scope,
		planner: costing.NewConsumptionPlanner(catalog),
		metrics: noopMetrics{},
		guard:   NewLocalSaleGuard(),
		logger:  logger.Named("fulfillment"),
		opts:    opts,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *Service) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetMetrics sets the metrics recorder
func (s *Service) SetMetrics(metrics Metrics) {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	s.metrics = metrics
}

// SetSaleGuard replaces the in-process submission guard, e.g. with a Redis-backed one
func (s *Service) SetSaleGuard(guard SaleGuard) {
	if guard == nil {
		guard = NewLocalSaleGuard()
	}
	s.guard = guard
}

// FulfillSale records a sale and depletes its recipe demand from the stock ledger.
//
// Either every store item is decremented, every cost log is written and the sale
// is FULFILLED, or nothing changes and an error is returned.
func (s *Service) FulfillSale(ctx context.Context, cmd FulfillSaleCommand) (*FulfillmentResult, error) {
	start := time.Now()
	ctx, span := telemetry.StartServiceSpan(ctx, "fulfillment", "fulfill_sale")
	defer span.End()
	ctx = s.logContext(ctx, cmd.SaleID)
	telemetry.SetAttributes(span,
		telemetry.SpanAttrSaleID, cmd.SaleID.String(),
		telemetry.SpanAttrLineCount, len(cmd.Lines),
	)

	result, err := s.fulfill(ctx, cmd)
	outcome := classifyOutcome(err, OutcomeFulfilled)
	s.metrics.RecordSale(ctx, "fulfill", outcome, time.Since(start))
	telemetry.SetAttribute(span, telemetry.SpanAttrOutcome, outcome)

	if err != nil {
		telemetry.RecordError(span, err)
		s.logFailure(ctx, "sale rejected", outcome, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrCostOfGoods, result.CostOfGoods.String(),
		telemetry.SpanAttrStoreItemCount, len(result.Depletions),
	)
	telemetry.SetOK(span)
	s.metrics.RecordCostOfGoods(ctx, result.CostOfGoods)
	logger.L(ctx).Info("sale fulfilled",
		zap.String("total_amount", result.TotalAmount.String()),
		zap.String("cost_of_goods", result.CostOfGoods.String()),
		zap.Int("store_items", len(result.Depletions)),
		zap.Int("unresolved_menu_items", len(result.UnresolvedMenuItems)),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func (s *Service) fulfill(ctx context.Context, cmd FulfillSaleCommand) (*FulfillmentResult, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}
	sale, err := costing.NewSale(cmd.SaleID, cmd.lineInputs())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrInvalidInput, err.Error())
	}

	release, err := s.guard.Acquire(ctx, sale.ID)
	defer release()
	if err != nil {
		return nil, guardError(err)
	}

	// recipes are read-only reference data, so planning happens outside the storage transaction
	plan, err := s.planner.Plan(ctx, sale.SaleLines())
	if err != nil {
		return nil, fmt.Errorf("plan sale %s: %w", sale.ID, err)
	}
	unresolved := plan.Unresolved()
	if len(unresolved) > 0 && s.opts.RejectUnknownRecipes {
		_ = sale.MarkRejected(OutcomeRecipeNotFound)
		return nil, &costing.RecipeNotFoundError{MenuItemIDs: unresolved}
	}

	txn, err := costing.NewDepletionTransaction(sale.ID, plan)
	if err != nil {
		return nil, err
	}

	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		return s.depleteInScope(ctx, repos, sale, txn)
	})
	if err != nil {
		txn.Rollback()
		_ = sale.MarkRejected(classifyOutcome(err, OutcomeFulfilled))
		return nil, asServiceError("fulfill sale", err)
	}

	s.publishEvents(ctx, sale, txn.Items())
	return buildFulfillmentResult(sale, txn), nil
}

// depleteInScope runs the lock, validate, write sequence inside one storage transaction.
// Store item locks are always taken in ascending ID order.
func (s *Service) depleteInScope(ctx context.Context, repos TransactionalRepositories, sale *costing.Sale, txn *costing.DepletionTransaction) (err error) {
	comp := newCompensator(repos.Atomic())
	defer func() {
		if err != nil {
			err = s.compensate(ctx, comp, "fulfill", err)
		}
	}()

	if err := ensureSaleAbsent(ctx, repos.SaleRepo(), sale.ID); err != nil {
		return err
	}

	ids := txn.Plan().StoreItemIDs()
	lockStart := time.Now()
	items, err := repos.StoreItemRepo().LockForUpdate(ctx, ids, s.opts.LockTimeout)
	s.metrics.RecordLockWait(ctx, len(ids), time.Since(lockStart))
	if err != nil {
		return err
	}
	telemetry.AddEvent(telemetry.SpanFromContext(ctx), "store_items_locked",
		telemetry.SpanAttrStoreItemCount, len(items),
		telemetry.SpanAttrLockWaitMs, time.Since(lockStart).Milliseconds(),
	)

	if err := txn.Validate(items); err != nil {
		return err
	}

	if err := repos.SaleRepo().Create(ctx, sale); err != nil {
		if errors.Is(err, costing.ErrSaleAlreadyExists) {
			return err
		}
		return &costing.PersistenceFailureError{Op: "create sale", Cause: err}
	}
	comp.push("delete pending sale", func(ctx context.Context) error {
		return repos.SaleRepo().Delete(ctx, sale.ID)
	})

	logs, err := txn.Commit()
	if err != nil {
		return err
	}

	for _, item := range txn.Items() {
		snap, _ := txn.Snapshot(item.ID)
		if err := repos.StoreItemRepo().ApplyQuantity(ctx, item.ID, snap.Version, item.QuantityOnHand); err != nil {
			return &costing.PersistenceFailureError{Op: "apply quantity", Cause: err}
		}
		id, written, original := item.ID, item.Version, snap.QuantityOnHand
		comp.push("restore quantity", func(ctx context.Context) error {
			return repos.StoreItemRepo().ApplyQuantity(ctx, id, written, original)
		})
	}

	if len(logs) > 0 {
		if err := repos.CostLogRepo().CreateBatch(ctx, logs); err != nil {
			return &costing.PersistenceFailureError{Op: "create cost logs", Cause: err}
		}
		comp.push("delete cost logs", func(ctx context.Context) error {
			return repos.CostLogRepo().DeleteBySale(ctx, sale.ID)
		})
	}

	if err := sale.MarkFulfilled(txn.CostOfGoods()); err != nil {
		return err
	}
	if err := repos.SaleRepo().UpdateStatus(ctx, sale); err != nil {
		return &costing.PersistenceFailureError{Op: "mark sale fulfilled", Cause: err}
	}
	return nil
}

// VoidSale reverses a fulfilled sale: logged quantities go back on the shelf,
// its cost logs are flagged void and the sale becomes VOIDED.
func (s *Service) VoidSale(ctx context.Context, cmd VoidSaleCommand) (*VoidResult, error) {
	start := time.Now()
	ctx, span := telemetry.StartServiceSpan(ctx, "fulfillment", "void_sale")
	defer span.End()
	ctx = s.logContext(ctx, cmd.SaleID)
	telemetry.SetAttributes(span, telemetry.SpanAttrSaleID, cmd.SaleID.String())

	result, err := s.void(ctx, cmd)
	outcome := classifyOutcome(err, OutcomeVoided)
	s.metrics.RecordSale(ctx, "void", outcome, time.Since(start))
	telemetry.SetAttribute(span, telemetry.SpanAttrOutcome, outcome)

	if err != nil {
		telemetry.RecordError(span, err)
		s.logFailure(ctx, "sale void failed", outcome, err)
		return nil, err
	}

	telemetry.SetOK(span)
	logger.L(ctx).Info("sale voided",
		zap.String("reason", result.Reason),
		zap.String("reversed_cost", result.ReversedCost.String()),
		zap.Int("store_items", len(result.Restocked)),
	)
	return result, nil
}

func (s *Service) void(ctx context.Context, cmd VoidSaleCommand) (*VoidResult, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	release, err := s.guard.Acquire(ctx, cmd.SaleID)
	defer release()
	if err != nil {
		return nil, guardError(err)
	}

	var (
		sale   *costing.Sale
		items  []*costing.StoreItem
		result *VoidResult
	)
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		sale, items, result, err = s.voidInScope(ctx, repos, cmd)
		return err
	})
	if err != nil {
		return nil, asServiceError("void sale", err)
	}

	s.publishEvents(ctx, sale, items)
	return result, nil
}

func (s *Service) voidInScope(ctx context.Context, repos TransactionalRepositories, cmd VoidSaleCommand) (*costing.Sale, []*costing.StoreItem, *VoidResult, error) {
	comp := newCompensator(repos.Atomic())
	sale, items, result, err := s.restockAndVoid(ctx, repos, comp, cmd)
	if err != nil {
		return nil, nil, nil, s.compensate(ctx, comp, "void", err)
	}
	return sale, items, result, nil
}

// restockAndVoid puts logged quantities back on the shelf, flags the cost logs void
// and marks the sale VOIDED. Every write it makes is pushed onto comp.
func (s *Service) restockAndVoid(ctx context.Context, repos TransactionalRepositories, comp *compensator, cmd VoidSaleCommand) (*costing.Sale, []*costing.StoreItem, *VoidResult, error) {
	sale, err := repos.SaleRepo().LockByID(ctx, cmd.SaleID, s.opts.LockTimeout)
	if err != nil {
		return nil, nil, nil, err
	}
	saleID := sale.ID
	costOfGoods := sale.CostOfGoods
	if err := sale.Void(cmd.Reason); err != nil {
		return nil, nil, nil, err
	}
	voidedAt := *sale.VoidedAt

	logs, err := repos.CostLogRepo().FindBySale(ctx, saleID)
	if err != nil {
		return nil, nil, nil, &costing.PersistenceFailureError{Op: "load cost logs", Cause: err}
	}
	quantities := costing.QuantityByStoreItem(logs)
	ids := make([]uuid.UUID, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	ids = costing.SortedUniqueIDs(ids)

	items, err := repos.StoreItemRepo().LockForUpdate(ctx, ids, s.opts.LockTimeout)
	if err != nil {
		return nil, nil, nil, err
	}

	result := &VoidResult{
		SaleID:       saleID,
		Status:       sale.Status.String(),
		Reason:       sale.VoidReason,
		VoidedAt:     voidedAt,
		ReversedCost: costing.SumCost(logs),
		Restocked:    make([]RestockLine, 0, len(items)),
	}
	found := make(map[uuid.UUID]bool, len(items))
	for _, item := range items {
		found[item.ID] = true
		original, fromVersion := item.QuantityOnHand, item.Version
		if err := item.Restore(quantities[item.ID], saleID); err != nil {
			return nil, nil, nil, err
		}
		if err := repos.StoreItemRepo().ApplyQuantity(ctx, item.ID, fromVersion, item.QuantityOnHand); err != nil {
			return nil, nil, nil, &costing.PersistenceFailureError{Op: "restore quantity", Cause: err}
		}
		id, written := item.ID, item.Version
		comp.push("undo restock", func(ctx context.Context) error {
			return repos.StoreItemRepo().ApplyQuantity(ctx, id, written, original)
		})
		result.Restocked = append(result.Restocked, RestockLine{
			StoreItemID:   item.ID,
			Quantity:      quantities[item.ID],
			QuantityAfter: item.QuantityOnHand,
		})
	}
	for _, id := range ids {
		if !found[id] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("store item %s no longer exists; %s not restocked", id, quantities[id].String()))
		}
	}

	if _, err := repos.CostLogRepo().MarkVoidedBySale(ctx, saleID, voidedAt); err != nil {
		return nil, nil, nil, &costing.PersistenceFailureError{Op: "void cost logs", Cause: err}
	}
	comp.push("unvoid cost logs", func(ctx context.Context) error {
		return repos.CostLogRepo().ClearVoidedBySale(ctx, saleID)
	})

	if err := repos.SaleRepo().UpdateStatus(ctx, sale); err != nil {
		return nil, nil, nil, &costing.PersistenceFailureError{Op: "mark sale voided", Cause: err}
	}

	if !result.ReversedCost.Equal(costOfGoods) {
		logger.L(ctx).Warn("voided cost differs from recorded cost of goods",
			zap.String("recorded", costOfGoods.String()),
			zap.String("logged", result.ReversedCost.String()),
		)
	}
	return sale, items, result, nil
}

// compensate undoes writes on non-atomic stores and normalises the error.
// Compensation runs detached from ctx cancellation.
func (s *Service) compensate(ctx context.Context, comp *compensator, operation string, cause error) error {
	if comp.empty() {
		return cause
	}
	steps := comp.len()
	undoErr := comp.run(context.WithoutCancel(ctx))
	s.metrics.RecordCompensation(ctx, operation, undoErr != nil)
	if undoErr != nil {
		logger.L(ctx).Error("compensation failed; stock ledger may need manual repair",
			zap.String("operation", operation),
			zap.Error(cause),
			zap.NamedError("compensation_error", undoErr),
		)
		return &costing.PersistenceFailureError{Op: operation, Cause: errors.Join(cause, undoErr)}
	}
	logger.L(ctx).Warn("writes compensated after failure",
		zap.String("operation", operation),
		zap.Int("steps", steps),
		zap.Error(cause),
	)
	return cause
}

func (s *Service) publishEvents(ctx context.Context, sale *costing.Sale, items []*costing.StoreItem) {
	events := sale.GetDomainEvents()
	for _, item := range items {
		events = append(events, item.GetDomainEvents()...)
	}
	sale.ClearDomainEvents()
	for _, item := range items {
		item.ClearDomainEvents()
	}
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		logger.L(ctx).Warn("failed to publish domain events",
			zap.Int("events", len(events)),
			zap.Error(err),
		)
	}
}

// logContext carries the service logger and the sale id so every log line
// written for the operation is correlated with the sale.
func (s *Service) logContext(ctx context.Context, saleID uuid.UUID) context.Context {
	return logger.WithContext(logger.WithSaleID(ctx, saleID.String()), s.logger)
}

func (s *Service) logFailure(ctx context.Context, msg string, outcome string, err error) {
	log := logger.L(ctx)
	fields := []zap.Field{
		zap.String("outcome", outcome),
		zap.Error(err),
	}
	switch outcome {
	case OutcomePersistenceFailure:
		log.Error(msg, fields...)
	case OutcomeLockContention:
		log.Warn(msg, fields...)
	default:
		log.Info(msg, fields...)
	}
}

func ensureSaleAbsent(ctx context.Context, repo costing.SaleRepository, id uuid.UUID) error {
	_, err := repo.FindByID(ctx, id)
	switch {
	case err == nil:
		return costing.ErrSaleAlreadyExists
	case errors.Is(err, shared.ErrNotFound):
		return nil
	default:
		return &costing.PersistenceFailureError{Op: "find sale", Cause: err}
	}
}

// guardError keeps contention and cancellation as they are; anything else means
// the guard backend itself failed.
func guardError(err error) error {
	if errors.Is(err, costing.ErrLockContention) || isCanceled(err) {
		return err
	}
	return &costing.PersistenceFailureError{Op: "acquire sale guard", Cause: err}
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// asServiceError passes domain errors and caller cancellation through and wraps
// anything else as a persistence failure
func asServiceError(op string, err error) error {
	if isCanceled(err) {
		return err
	}
	for _, known := range []error{
		costing.ErrInsufficientStock,
		costing.ErrLockContention,
		costing.ErrPersistenceFailure,
		costing.ErrSaleAlreadyExists,
		costing.ErrRecipeNotFound,
		costing.ErrInvalidSaleState,
		shared.ErrNotFound,
		shared.ErrInvalidInput,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	return &costing.PersistenceFailureError{Op: op, Cause: err}
}

func classifyOutcome(err error, success string) string {
	switch {
	case err == nil:
		return success
	case errors.Is(err, costing.ErrInsufficientStock):
		return OutcomeInsufficientStock
	case errors.Is(err, costing.ErrRecipeNotFound):
		return OutcomeRecipeNotFound
	case errors.Is(err, costing.ErrLockContention):
		return OutcomeLockContention
	case errors.Is(err, costing.ErrSaleAlreadyExists):
		return OutcomeDuplicate
	case errors.Is(err, costing.ErrPersistenceFailure):
		return OutcomePersistenceFailure
	case isCanceled(err):
		return OutcomeCanceled
	default:
		return OutcomeInvalid
	}
}

func buildFulfillmentResult(sale *costing.Sale, txn *costing.DepletionTransaction) *FulfillmentResult {
	plan := txn.Plan()
	result := &FulfillmentResult{
		SaleID:              sale.ID,
		Status:              sale.Status.String(),
		TotalAmount:         sale.TotalAmount,
		CostOfGoods:         sale.CostOfGoods,
		Depletions:          make([]DepletionLine, 0, len(plan.Demands())),
		UnresolvedMenuItems: plan.Unresolved(),
	}
	if sale.FulfilledAt != nil {
		result.FulfilledAt = *sale.FulfilledAt
	}
	for _, item := range txn.Items() {
		snap, _ := txn.Snapshot(item.ID)
		result.Depletions = append(result.Depletions, DepletionLine{
			StoreItemID:   item.ID,
			Name:          item.Name,
			Unit:          item.Unit,
			Quantity:      plan.DemandFor(item.ID),
			QuantityAfter: item.QuantityOnHand,
			CostPerUnit:   snap.CostPerUnit,
		})
	}
	for _, l := range txn.Logs() {
		result.CostLogs = append(result.CostLogs, ToCostLogResponse(l))
	}
	for _, id := range result.UnresolvedMenuItems {
		result.Warnings = append(result.Warnings, fmt.Sprintf("menu item %s has no recipe; no stock depleted", id))
	}
	return result
}
