package costing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tavola/backend/internal/domain/shared"
)

// Sentinel errors. Typed errors below match them with errors.Is.
var (
	ErrRecipeNotFound        = shared.NewDomainError("RECIPE_NOT_FOUND", "Menu item has no recipe lines")
	ErrInsufficientStock     = shared.ErrInsufficientStock
	ErrLockContention        = shared.NewDomainError("LOCK_CONTENTION", "Timed out waiting for store item locks")
	ErrPersistenceFailure    = shared.NewDomainError("PERSISTENCE_FAILURE", "Storage write failed during depletion")
	ErrSaleAlreadyExists     = shared.NewDomainError("SALE_ALREADY_EXISTS", "Sale has already been recorded")
	ErrInvalidSaleState      = shared.NewDomainError("INVALID_SALE_STATE", "Operation not allowed in current sale state")
	ErrInvalidDepletionState = shared.NewDomainError("INVALID_DEPLETION_STATE", "Depletion transaction is not in the required state")
)

// RecipeNotFoundError lists the menu items that resolved to no recipe lines
type RecipeNotFoundError struct {
	MenuItemIDs []uuid.UUID
}

func (e *RecipeNotFoundError) Error() string {
	ids := make([]string, len(e.MenuItemIDs))
	for i, id := range e.MenuItemIDs {
		ids[i] = id.String()
	}
	return fmt.Sprintf("no recipe for menu items: %s", strings.Join(ids, ", "))
}

// Is matches ErrRecipeNotFound
func (e *RecipeNotFoundError) Is(target error) bool {
	return target == ErrRecipeNotFound
}

// Shortfall describes one store item whose on-hand quantity cannot cover demand
type Shortfall struct {
	StoreItemID uuid.UUID       `json:"store_item_id"`
	Name        string          `json:"name,omitempty"`
	Unit        string          `json:"unit,omitempty"`
	Required    decimal.Decimal `json:"required"`
	OnHand      decimal.Decimal `json:"on_hand"`
	Missing     bool            `json:"missing,omitempty"` // Store item referenced by a recipe does not exist
}

// Deficit returns required minus on-hand
func (s Shortfall) Deficit() decimal.Decimal {
	return s.Required.Sub(s.OnHand)
}

func (s Shortfall) String() string {
	label := s.Name
	if label == "" {
		label = s.StoreItemID.String()
	}
	if s.Missing {
		return fmt.Sprintf("%s (missing store item, need %s)", label, s.Required.String())
	}
	return fmt.Sprintf("%s (need %s %s, have %s %s)", label, s.Required.String(), s.Unit, s.OnHand.String(), s.Unit)
}

// InsufficientStockError reports every store item that blocked a sale
type InsufficientStockError struct {
	SaleID     uuid.UUID
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, len(e.Shortfalls))
	for i, s := range e.Shortfalls {
		parts[i] = s.String()
	}
	return fmt.Sprintf("insufficient stock for sale %s: %s", e.SaleID, strings.Join(parts, "; "))
}

// Is matches ErrInsufficientStock
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// LockContentionError reports a bounded lock wait that expired
type LockContentionError struct {
	StoreItemIDs []uuid.UUID
	Cause        error
}

func (e *LockContentionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("lock contention on %d store items: %v", len(e.StoreItemIDs), e.Cause)
	}
	return fmt.Sprintf("lock contention on %d store items", len(e.StoreItemIDs))
}

// Is matches ErrLockContention
func (e *LockContentionError) Is(target error) bool {
	return target == ErrLockContention
}

func (e *LockContentionError) Unwrap() error {
	return e.Cause
}

// PersistenceFailureError reports a storage write that failed mid-transaction.
// By the time callers see it, every write of the transaction has been undone.
type PersistenceFailureError struct {
	Op    string
	Cause error
}

func (e *PersistenceFailureError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Cause)
}

// Is matches ErrPersistenceFailure
func (e *PersistenceFailureError) Is(target error) bool {
	return target == ErrPersistenceFailure
}

func (e *PersistenceFailureError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the same sale may succeed if submitted again.
// Only lock contention qualifies; stock shortfalls and bad input do not.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockContention)
}
