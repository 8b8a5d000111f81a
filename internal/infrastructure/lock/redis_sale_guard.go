// Package lock provides sale guards shared between processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tavola/backend/internal/application/fulfillment"
	"github.com/tavola/backend/internal/domain/costing"
	"go.uber.org/zap"
)

const (
	defaultSaleLockPrefix = "lock:sale:"
	defaultSaleLockTTL    = 30 * time.Second
	releaseTimeout        = 2 * time.Second
)

// RedisSaleGuard is a fulfillment.SaleGuard backed by a Redis lease, so the
// same sale cannot be processed by two instances at once
type RedisSaleGuard struct {
	locker    *redislock.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// RedisSaleGuardOption is a functional option for configuring the guard
type RedisSaleGuardOption func(*RedisSaleGuard)

// WithTTL sets the lease length. It must outlive a fulfillment.
func WithTTL(ttl time.Duration) RedisSaleGuardOption {
	return func(g *RedisSaleGuard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithKeyPrefix sets the lock key prefix
func WithKeyPrefix(prefix string) RedisSaleGuardOption {
	return func(g *RedisSaleGuard) {
		if prefix != "" {
			g.keyPrefix = prefix
		}
	}
}

// WithLogger sets the logger for the guard
func WithLogger(logger *zap.Logger) RedisSaleGuardOption {
	return func(g *RedisSaleGuard) {
		g.logger = logger
	}
}

// NewRedisSaleGuard creates a guard on an existing client
func NewRedisSaleGuard(client *redis.Client, opts ...RedisSaleGuardOption) *RedisSaleGuard {
	g := &RedisSaleGuard{
		locker:    redislock.New(client),
		keyPrefix: defaultSaleLockPrefix,
		ttl:       defaultSaleLockTTL,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *RedisSaleGuard) key(saleID uuid.UUID) string {
	return g.keyPrefix + saleID.String()
}

// Acquire takes the lease without waiting. A lease held elsewhere yields a
// *costing.LockContentionError caused by fulfillment.ErrSaleInFlight.
func (g *RedisSaleGuard) Acquire(ctx context.Context, saleID uuid.UUID) (func(), error) {
	noop := func() {}

	key := g.key(saleID)
	lock, err := g.locker.Obtain(ctx, key, g.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return noop, &costing.LockContentionError{Cause: fulfillment.ErrSaleInFlight}
	}
	if err != nil {
		return noop, fmt.Errorf("failed to obtain sale lock %s: %w", key, err)
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			g.logger.Warn("Failed to release sale lock",
				zap.String("sale_id", saleID.String()),
				zap.Error(err))
		}
	}, nil
}

var _ fulfillment.SaleGuard = (*RedisSaleGuard)(nil)
