package fulfillment

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/tavola/backend/internal/domain/costing"
)

// SaleGuard serialises concurrent submissions of the same sale.
// Acquire fails with a *costing.LockContentionError when another submission
// of the sale is in flight; the returned release function must always be called.
type SaleGuard interface {
	Acquire(ctx context.Context, saleID uuid.UUID) (release func(), err error)
}

// LocalSaleGuard is an in-process SaleGuard
type LocalSaleGuard struct {
	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

// NewLocalSaleGuard creates a LocalSaleGuard
func NewLocalSaleGuard() *LocalSaleGuard {
	return &LocalSaleGuard{inFlight: make(map[uuid.UUID]struct{})}
}

// Acquire marks the sale as in flight
func (g *LocalSaleGuard) Acquire(_ context.Context, saleID uuid.UUID) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[saleID]; busy {
		return func() {}, &costing.LockContentionError{Cause: ErrSaleInFlight}
	}
	g.inFlight[saleID] = struct{}{}
	return func() {
		g.mu.Lock()
		delete(g.inFlight, saleID)
		g.mu.Unlock()
	}, nil
}

var _ SaleGuard = (*LocalSaleGuard)(nil)
