package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tavola/backend/internal/domain/costing"
	"github.com/tavola/backend/internal/domain/shared"
	"github.com/tavola/backend/internal/infrastructure/telemetry"
)

// CostReportService exposes frozen cost of goods to reporting. It never reads
// current store item costs, so its answers do not change when prices do.
type CostReportService struct {
	saleRepo    costing.SaleRepository
	costLogRepo costing.SaleCostLogRepository
}

// NewCostReportService creates a new CostReportService
func NewCostReportService(saleRepo costing.SaleRepository, costLogRepo costing.SaleCostLogRepository) *CostReportService {
	return &CostReportService{
		saleRepo:    saleRepo,
		costLogRepo: costLogRepo,
	}
}

// SaleCost returns per-line and total cost of goods for a sale.
// Voided logs are listed but excluded from the totals.
func (s *CostReportService) SaleCost(ctx context.Context, saleID uuid.UUID) (*SaleCostSummary, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "cost_report", "sale_cost")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrSaleID, saleID.String())

	sale, err := s.saleRepo.FindByID(ctx, saleID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	logs, err := s.costLogRepo.FindBySale(ctx, saleID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("load cost logs for sale %s: %w", saleID, err)
	}

	byDetail := make(map[uuid.UUID][]costing.SaleCostLog, len(sale.Details))
	for _, l := range logs {
		byDetail[l.SaleDetailID] = append(byDetail[l.SaleDetailID], l)
	}

	summary := &SaleCostSummary{
		SaleID:      sale.ID,
		Status:      sale.Status.String(),
		TotalAmount: sale.TotalAmount,
		CostOfGoods: costing.SumCost(logs),
		Lines:       make([]LineCostSummary, 0, len(sale.Details)),
	}
	for _, d := range sale.Details {
		lineLogs := byDetail[d.ID]
		line := LineCostSummary{
			SaleDetailID: d.ID,
			LineNumber:   d.LineNumber,
			MenuItemID:   d.MenuItemID,
			Quantity:     d.Quantity,
			LineTotal:    d.LineTotal(),
			Cost:         costing.SumCost(lineLogs),
			CostLogs:     make([]CostLogResponse, 0, len(lineLogs)),
		}
		for i := range lineLogs {
			line.CostLogs = append(line.CostLogs, ToCostLogResponse(&lineLogs[i]))
		}
		summary.Lines = append(summary.Lines, line)
	}
	return summary, nil
}

// CostOfGoodsBetween sums the frozen cost of fulfilled, non-voided sales whose
// fulfillment time falls in [from, to).
func (s *CostReportService) CostOfGoodsBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "cost_report", "cost_of_goods_between")
	defer span.End()

	if !to.After(from) {
		return decimal.Zero, shared.NewDomainError("INVALID_PERIOD", "Period end must be after period start")
	}
	logs, err := s.costLogRepo.FindFulfilledBetween(ctx, from, to)
	if err != nil {
		telemetry.RecordError(span, err)
		return decimal.Zero, fmt.Errorf("load cost logs: %w", err)
	}
	total := costing.SumCost(logs)
	telemetry.SetAttributes(span, telemetry.SpanAttrCostOfGoods, total.String())
	return total, nil
}
