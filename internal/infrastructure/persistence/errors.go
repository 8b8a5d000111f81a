package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tavola/backend/internal/domain/costing"
)

// PostgreSQL SQLSTATEs that mean "the lock could not be had in time"
const (
	sqlStateLockNotAvailable     = "55P03"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateSerializationFailure = "40001"
)

// isLockFailure reports whether err is a lock wait that timed out or was aborted
func isLockFailure(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateLockNotAvailable, sqlStateDeadlockDetected, sqlStateSerializationFailure:
			return true
		}
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// SQLITE_BUSY
	return strings.Contains(err.Error(), "database is locked")
}

// translateLockError maps lock failures to *costing.LockContentionError
func translateLockError(err error, ids []uuid.UUID) error {
	if isLockFailure(err) {
		return &costing.LockContentionError{StoreItemIDs: ids, Cause: err}
	}
	return err
}
