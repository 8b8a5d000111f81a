package costing

import (
	"bytes"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxInputScale is the number of fractional digits accepted for recipe quantities,
// sale quantities, prices and unit costs. Products of two such values fit in
// 8 fractional digits, which the ledger columns store exactly.
const MaxInputScale int32 = 4

// MaxLedgerScale is the number of fractional digits the stock ledger columns hold.
const MaxLedgerScale int32 = 8

// HasLedgerScale reports whether d fits the stock ledger columns without rounding.
func HasLedgerScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MaxLedgerScale))
}

// HasValidScale reports whether d carries no more than MaxInputScale significant fractional digits.
func HasValidScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MaxInputScale))
}

// CompareIDs orders identifiers by their raw bytes, which matches the ordering
// PostgreSQL applies to uuid columns and the ordering of their canonical text form.
func CompareIDs(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}

// SortedUniqueIDs returns a sorted copy of ids with duplicates and nil ids removed.
// Store item locks are always taken in this order.
func SortedUniqueIDs(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id != uuid.Nil {
			out = append(out, id)
		}
	}
	slices.SortFunc(out, CompareIDs)
	return slices.Compact(out)
}
