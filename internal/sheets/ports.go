// Package sheets defines the outbound port for the external ledger that
// completed transactions are exported to.
package sheets

import (
	"context"

	"fintrack/internal/core"
)

// Entry is one exported row. The external ledger is append-only: deletions
// are exported as reversal entries rather than row removals.
type Entry struct {
	TransactionID int64
	UserID        int64
	Date          core.Date
	Title         string
	Type          core.Type
	Category      core.Category
	// Signed contribution to the balance; reversals carry the negated value.
	Signed   core.Money
	Reversal bool
}

// EntryFor builds the export row for a completed transaction.
func EntryFor(t core.Transaction) Entry {
	return Entry{
		TransactionID: t.ID,
		UserID:        t.UserID,
		Date:          t.Date,
		Title:         t.Title,
		Type:          t.Type,
		Category:      t.Category,
		Signed:        t.SignedAmount(),
	}
}

// ReversalFor builds the compensating row written when a completed
// transaction is deleted.
func ReversalFor(t core.Transaction) Entry {
	e := EntryFor(t)
	e.Signed = e.Signed.Neg()
	e.Reversal = true
	return e
}

// LedgerAppender appends entries to the external ledger.
type LedgerAppender interface {
	AppendEntry(ctx context.Context, e Entry) (ref string, err error)
}
