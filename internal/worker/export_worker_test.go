package worker

import (
	"context"
	"errors"
	"testing"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/services"
	sheetmem "fintrack/internal/sheets/memory"
	storemem "fintrack/internal/storage/memory"
)

func seedUser(t *testing.T, store *storemem.Store) int64 {
	t.Helper()
	u := core.User{Email: "worker@example.com", Name: "Worker"}
	if err := store.CreateUser(context.Background(), &u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u.ID
}

func seedTransaction(t *testing.T, store *storemem.Store, userID int64, title string, cents int64, typ core.Type, completed bool) core.Transaction {
	t.Helper()
	tr := core.Transaction{
		UserID:      userID,
		Title:       title,
		Amount:      core.Money{Cents: cents},
		Type:        typ,
		Category:    core.CategoryOther,
		IsCompleted: completed,
		Date:        core.NewDate(2026, 8, 15),
	}
	err := store.WithinTx(context.Background(), func(tx services.StoreTx) error {
		return tx.InsertTransaction(context.Background(), &tr)
	})
	if err != nil {
		t.Fatalf("insert transaction: %v", err)
	}
	return tr
}

func TestHandleEventExportsCompletedTransaction(t *testing.T) {
	store := storemem.NewStore()
	ledger := sheetmem.NewLedger()
	w := NewExportWorker(store, ledger, 10)

	userID := seedUser(t, store)
	tr := seedTransaction(t, store, userID, "Salary", 250000, core.Income, true)

	msg := amqp.NewTransactionEventMessage(services.EventCreated, tr)
	if err := w.HandleEvent(context.Background(), msg); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	entries := ledger.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(entries))
	}
	e := entries[0]
	if e.TransactionID != tr.ID || e.Signed.Cents != 250000 || e.Reversal {
		t.Errorf("unexpected entry: %+v", e)
	}

	// The row is marked exported, so the pending scan has nothing left.
	pending, err := store.PendingExports(context.Background(), 10)
	if err != nil {
		t.Fatalf("pending exports: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending rows, got %d", len(pending))
	}
}

func TestHandleEventSkipsIncompleteTransaction(t *testing.T) {
	store := storemem.NewStore()
	ledger := sheetmem.NewLedger()
	w := NewExportWorker(store, ledger, 10)

	userID := seedUser(t, store)
	tr := seedTransaction(t, store, userID, "Rent", 80000, core.Expense, false)

	msg := amqp.NewTransactionEventMessage(services.EventCreated, tr)
	if err := w.HandleEvent(context.Background(), msg); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(ledger.Entries()) != 0 {
		t.Errorf("scheduled transaction must not be exported")
	}
}

func TestHandleEventSkipsMissingTransaction(t *testing.T) {
	store := storemem.NewStore()
	ledger := sheetmem.NewLedger()
	w := NewExportWorker(store, ledger, 10)

	msg := &amqp.TransactionEventMessage{Event: services.EventUpdated, ID: 42}
	if err := w.HandleEvent(context.Background(), msg); err != nil {
		t.Fatalf("missing row must not error: %v", err)
	}
	if len(ledger.Entries()) != 0 {
		t.Errorf("missing row must not be exported")
	}
}

func TestHandleDeletedWritesReversal(t *testing.T) {
	store := storemem.NewStore()
	ledger := sheetmem.NewLedger()
	w := NewExportWorker(store, ledger, 10)

	deleted := core.Transaction{
		ID:          7,
		UserID:      1,
		Title:       "Groceries",
		Amount:      core.Money{Cents: 4350},
		Type:        core.Expense,
		Category:    core.CategoryFood,
		IsCompleted: true,
		Date:        core.NewDate(2026, 8, 10),
	}
	msg := amqp.NewTransactionEventMessage(services.EventDeleted, deleted)
	if err := w.HandleEvent(context.Background(), msg); err != nil {
		t.Fatalf("handle delete: %v", err)
	}

	entries := ledger.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 reversal entry, got %d", len(entries))
	}
	e := entries[0]
	if !e.Reversal {
		t.Errorf("entry must be a reversal")
	}
	// The expense contributed -4350, so the reversal contributes +4350.
	if e.Signed.Cents != 4350 {
		t.Errorf("reversal signed = %d, want 4350", e.Signed.Cents)
	}
}

func TestHandleDeletedSkipsNeverCompleted(t *testing.T) {
	store := storemem.NewStore()
	ledger := sheetmem.NewLedger()
	w := NewExportWorker(store, ledger, 10)

	deleted := core.Transaction{
		ID:       8,
		UserID:   1,
		Title:    "Planned trip",
		Amount:   core.Money{Cents: 12000},
		Type:     core.Expense,
		Category: core.CategoryLeisure,
		Date:     core.NewDate(2026, 9, 1),
	}
	msg := amqp.NewTransactionEventMessage(services.EventDeleted, deleted)
	if err := w.HandleEvent(context.Background(), msg); err != nil {
		t.Fatalf("handle delete: %v", err)
	}
	if len(ledger.Entries()) != 0 {
		t.Errorf("never-completed transaction must not produce a reversal")
	}
}

func TestProcessPendingRecoversLostEvents(t *testing.T) {
	store := storemem.NewStore()
	ledger := sheetmem.NewLedger()
	w := NewExportWorker(store, ledger, 10)

	userID := seedUser(t, store)
	seedTransaction(t, store, userID, "Salary", 250000, core.Income, true)
	seedTransaction(t, store, userID, "Rent", 80000, core.Expense, true)
	seedTransaction(t, store, userID, "Planned", 5000, core.Expense, false)

	if err := w.ProcessPending(context.Background()); err != nil {
		t.Fatalf("process pending: %v", err)
	}

	entries := ledger.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 exported entries, got %d", len(entries))
	}

	// A second scan finds everything already marked.
	if err := w.ProcessPending(context.Background()); err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if len(ledger.Entries()) != 2 {
		t.Errorf("second scan must not re-export")
	}
}

func TestExportFailureKeepsProcessing(t *testing.T) {
	store := storemem.NewStore()
	ledger := sheetmem.NewLedger()
	w := NewExportWorker(store, ledger, 10)

	userID := seedUser(t, store)
	tr := seedTransaction(t, store, userID, "Salary", 250000, core.Income, true)

	ledger.FailWith(errors.New("sheets unavailable"))
	msg := amqp.NewTransactionEventMessage(services.EventCreated, tr)
	if err := w.HandleEvent(context.Background(), msg); err == nil {
		t.Fatalf("expected error when ledger append fails")
	}

	// The failure is recorded and the row leaves the pending scan.
	pending, err := store.PendingExports(context.Background(), 10)
	if err != nil {
		t.Fatalf("pending exports: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("failed row must not stay pending, got %d", len(pending))
	}

	// A retried event succeeds once the ledger recovers.
	ledger.FailWith(nil)
	if err := w.HandleEvent(context.Background(), msg); err != nil {
		t.Fatalf("retried event: %v", err)
	}
	if len(ledger.Entries()) != 1 {
		t.Errorf("expected 1 entry after retry, got %d", len(ledger.Entries()))
	}
}
