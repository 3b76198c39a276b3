// Package services provides the business logic of the finance tracker: the
// ledger service that reconciles user balances, and the read-only dashboard
// service.
package services

import (
	"context"
	"errors"

	"fintrack/internal/core"
)

// ErrNotFound is returned when a record does not exist or is not owned by the
// requesting user. Ownership violations are deliberately indistinguishable
// from missing records.
var ErrNotFound = errors.New("record not found")

// ErrEmailTaken is returned when creating a user with an email that is
// already registered.
var ErrEmailTaken = errors.New("email already registered")

// Ports for storage backends.
type (
	// Store is the transactional write port of the ledger. WithinTx runs fn
	// against a transactional view; everything fn does is committed together
	// or not at all.
	Store interface {
		WithinTx(ctx context.Context, fn func(StoreTx) error) error
	}

	// StoreTx is the view of the store inside one atomic unit. The ledger
	// service mutates the transaction row and the owner's balance through the
	// same StoreTx so they cannot diverge.
	StoreTx interface {
		// GetTransaction returns the stored transaction scoped to its owner.
		// Returns ErrNotFound for missing or foreign rows.
		GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, error)

		// InsertTransaction persists a new transaction and fills in its ID,
		// version and timestamps.
		InsertTransaction(ctx context.Context, t *core.Transaction) error

		// UpdateTransaction overwrites the stored row, bumping version and
		// updated timestamp.
		UpdateTransaction(ctx context.Context, t *core.Transaction) error

		// DeleteTransaction removes the row scoped to its owner.
		DeleteTransaction(ctx context.Context, userID, id int64) error

		// GetBalance reads the owner's cached balance.
		GetBalance(ctx context.Context, userID int64) (core.Money, error)

		// SetBalance writes the owner's cached balance.
		SetBalance(ctx context.Context, userID int64, balance core.Money) error

		// SumCompletedSigned computes the sum of signed amounts over the
		// owner's completed transactions. This is the recompute fallback.
		SumCompletedSigned(ctx context.Context, userID int64) (core.Money, error)
	}

	// UserStore manages user records.
	UserStore interface {
		CreateUser(ctx context.Context, u *core.User) error
		GetUser(ctx context.Context, id int64) (core.User, error)
	}

	// TransactionReader is the non-transactional read port for single
	// transactions and filtered listings.
	TransactionReader interface {
		GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, error)
		ListTransactions(ctx context.Context, userID int64, f TransactionFilter) ([]core.Transaction, error)
	}

	// DashboardStore provides the aggregation queries behind the dashboard
	// and the calendar view.
	DashboardStore interface {
		// MonthlyTotals sums completed income and expense amounts (both
		// positive) over a calendar month.
		MonthlyTotals(ctx context.Context, userID int64, year, month int) (income, expense core.Money, err error)

		// SumCompletedSignedBefore sums signed amounts of completed
		// transactions dated strictly before the given date.
		SumCompletedSignedBefore(ctx context.Context, userID int64, before core.Date) (core.Money, error)

		// ListCompletedBetween returns completed transactions with
		// from <= date <= to, ordered by date ascending.
		ListCompletedBetween(ctx context.Context, userID int64, from, to core.Date) ([]core.Transaction, error)

		// ExpensesByCategory sums completed expense amounts per category over
		// a calendar month, descending by total.
		ExpensesByCategory(ctx context.Context, userID int64, year, month int) ([]core.CategoryTotal, error)

		// RecentCompleted returns the most recently dated completed
		// transactions, ties broken by creation time, both descending.
		RecentCompleted(ctx context.Context, userID int64, limit int) ([]core.Transaction, error)

		// MonthActivity counts completed and pending transactions per day of
		// a calendar month, ascending by day. Days without activity are
		// omitted.
		MonthActivity(ctx context.Context, userID int64, year, month int) ([]core.DayActivity, error)
	}
)

// EventPublisher publishes transaction lifecycle events after a mutation has
// committed. Publish failures never fail the mutation.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, event string, t core.Transaction) error
}

// Lifecycle event names carried on the wire.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// TransactionFilter narrows a listing. Zero values mean "no restriction".
type TransactionFilter struct {
	Search     string
	From       core.Date
	To         core.Date
	Types      []core.Type
	Completed  *bool
	Categories []core.Category
	Limit      int
	Offset     int
}
