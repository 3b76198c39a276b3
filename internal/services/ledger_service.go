package services

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/core"
)

// Balance maintenance strategies. Incremental applies the reconciliation
// delta and falls back to a recompute only when no prior snapshot exists;
// recompute rebuilds the balance from the completed set on every mutation.
// Both keep the invariant: balance == sum of completed signed amounts.
type BalanceStrategy string

const (
	StrategyIncremental BalanceStrategy = "incremental"
	StrategyRecompute   BalanceStrategy = "recompute"
)

// Valid reports whether s is a known strategy.
func (s BalanceStrategy) Valid() bool {
	return s == StrategyIncremental || s == StrategyRecompute
}

// LedgerService owns every transaction mutation. Each operation runs the row
// change and the owner's balance change inside one store transaction, under a
// per-user lock, so the cached balance can never diverge from the completed
// set.
type LedgerService struct {
	store    Store
	events   EventPublisher
	strategy BalanceStrategy
	locks    *userLocks
}

// NewLedgerService creates the ledger service. events may be nil when no
// broker is configured.
func NewLedgerService(store Store, events EventPublisher, strategy BalanceStrategy) *LedgerService {
	if !strategy.Valid() {
		strategy = StrategyIncremental
	}
	return &LedgerService{
		store:    store,
		events:   events,
		strategy: strategy,
		locks:    newUserLocks(),
	}
}

// TransactionUpdate is a partial update: nil fields keep their stored value.
type TransactionUpdate struct {
	Title       *string
	Description *string
	Amount      *core.Money
	Type        *core.Type
	Category    *core.Category
	IsCompleted *bool
	Date        *core.Date
}

// CreateTransaction validates and persists a new transaction. If it is
// already completed its signed amount is added to the owner's balance in the
// same store transaction.
func (s *LedgerService) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	unlock := s.locks.Lock(t.UserID)
	defer unlock()

	err := s.store.WithinTx(ctx, func(tx StoreTx) error {
		if err := tx.InsertTransaction(ctx, &t); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return s.applyDelta(ctx, tx, t.UserID, core.CreateDelta(t))
	})
	if err != nil {
		return core.Transaction{}, err
	}

	s.publish(ctx, EventCreated, t)
	return t, nil
}

// UpdateTransaction applies a partial update to a transaction owned by
// userID. The prior signed amount and completion flag are captured from the
// stored row inside the same store transaction, before the new values are
// applied.
func (s *LedgerService) UpdateTransaction(ctx context.Context, userID, id int64, upd TransactionUpdate) (core.Transaction, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	var updated core.Transaction
	err := s.store.WithinTx(ctx, func(tx StoreTx) error {
		old, err := tx.GetTransaction(ctx, userID, id)
		if err != nil {
			return err
		}
		snap := core.SnapshotOf(old)

		updated = applyUpdate(old, upd)
		if err := updated.Validate(); err != nil {
			return err
		}
		if err := tx.UpdateTransaction(ctx, &updated); err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}

		delta, ok := core.UpdateDelta(&snap, updated)
		if !ok {
			// Prior state was not captured; converge via full recompute.
			return s.recompute(ctx, tx, userID)
		}
		return s.applyDelta(ctx, tx, userID, delta)
	})
	if err != nil {
		return core.Transaction{}, err
	}

	s.publish(ctx, EventUpdated, updated)
	return updated, nil
}

// CompleteTransaction marks a transaction as completed, adding its signed
// amount to the owner's balance. Completing an already completed transaction
// is a no-op for the balance.
func (s *LedgerService) CompleteTransaction(ctx context.Context, userID, id int64) (core.Transaction, error) {
	completed := true
	return s.UpdateTransaction(ctx, userID, id, TransactionUpdate{IsCompleted: &completed})
}

// DeleteTransaction removes a transaction owned by userID. If it was
// completed its signed amount is subtracted from the owner's balance, using
// the stored values at the time of deletion.
func (s *LedgerService) DeleteTransaction(ctx context.Context, userID, id int64) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	var deleted core.Transaction
	err := s.store.WithinTx(ctx, func(tx StoreTx) error {
		old, err := tx.GetTransaction(ctx, userID, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteTransaction(ctx, userID, id); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		deleted = old
		return s.applyDelta(ctx, tx, userID, core.DeleteDelta(old))
	})
	if err != nil {
		return err
	}

	s.publish(ctx, EventDeleted, deleted)
	return nil
}

// RecomputeBalance rebuilds the owner's cached balance from the completed
// set and returns the result. Safe to call at any time; it is the
// convergence fallback when incremental state was lost.
func (s *LedgerService) RecomputeBalance(ctx context.Context, userID int64) (core.Money, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	var balance core.Money
	err := s.store.WithinTx(ctx, func(tx StoreTx) error {
		if err := s.recompute(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		balance, err = tx.GetBalance(ctx, userID)
		return err
	})
	return balance, err
}

func (s *LedgerService) applyDelta(ctx context.Context, tx StoreTx, userID int64, delta core.Money) error {
	if s.strategy == StrategyRecompute {
		return s.recompute(ctx, tx, userID)
	}
	if delta.IsZero() {
		return nil
	}
	balance, err := tx.GetBalance(ctx, userID)
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}
	if err := tx.SetBalance(ctx, userID, balance.Add(delta)); err != nil {
		return fmt.Errorf("write balance: %w", err)
	}
	return nil
}

func (s *LedgerService) recompute(ctx context.Context, tx StoreTx, userID int64) error {
	sum, err := tx.SumCompletedSigned(ctx, userID)
	if err != nil {
		return fmt.Errorf("sum completed transactions: %w", err)
	}
	if err := tx.SetBalance(ctx, userID, sum); err != nil {
		return fmt.Errorf("write balance: %w", err)
	}
	return nil
}

func (s *LedgerService) publish(ctx context.Context, event string, t core.Transaction) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishTransactionEvent(ctx, event, t); err != nil {
		// The mutation is already committed; export falls back to the
		// pending-scan in the worker.
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			"event", event,
			"transaction_id", t.ID,
			"user_id", t.UserID,
			"error", err)
	}
}

func applyUpdate(t core.Transaction, upd TransactionUpdate) core.Transaction {
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Amount != nil {
		t.Amount = *upd.Amount
	}
	if upd.Type != nil {
		t.Type = *upd.Type
	}
	if upd.Category != nil {
		t.Category = *upd.Category
	}
	if upd.IsCompleted != nil {
		t.IsCompleted = *upd.IsCompleted
	}
	if upd.Date != nil {
		t.Date = *upd.Date
	}
	return t
}
