// Package worker exports completed transactions to the external ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/services"
	"fintrack/internal/sheets"
)

// ExportStore is the slice of storage the worker needs.
type ExportStore interface {
	PendingExports(ctx context.Context, limit int) ([]core.Transaction, error)
	GetExportTransaction(ctx context.Context, id int64) (core.Transaction, error)
	MarkExported(ctx context.Context, id, version int64) error
	MarkExportError(ctx context.Context, id int64) error
}

// ExportWorker consumes transaction events and appends completed
// transactions to the external ledger. A periodic scan over pending rows
// backs up the queue in case events are lost.
type ExportWorker struct {
	store     ExportStore
	ledger    sheets.LedgerAppender
	batchSize int
}

func NewExportWorker(store ExportStore, ledger sheets.LedgerAppender, batchSize int) *ExportWorker {
	return &ExportWorker{
		store:     store,
		ledger:    ledger,
		batchSize: batchSize,
	}
}

// HandleEvent processes a single transaction event. Created and updated
// events re-read the row by ID so the export always reflects the current
// state; deleted events carry their own snapshot because the row is gone.
func (w *ExportWorker) HandleEvent(ctx context.Context, msg *amqp.TransactionEventMessage) error {
	slog.InfoContext(ctx, "Processing transaction event",
		"event_id", msg.EventID,
		"event", msg.Event,
		"id", msg.ID,
		"version", msg.Version)

	if msg.Event == services.EventDeleted {
		return w.handleDeleted(ctx, msg)
	}

	tr, err := w.store.GetExportTransaction(ctx, msg.ID)
	if errors.Is(err, services.ErrNotFound) {
		// Deleted between the event and now; the delete event follows.
		slog.InfoContext(ctx, "Transaction gone, skipping export", "id", msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}

	if !tr.IsCompleted {
		// Nothing to export until the transaction completes. A later
		// update event, or the pending scan, picks it up again.
		return nil
	}

	return w.exportTransaction(ctx, tr)
}

func (w *ExportWorker) handleDeleted(ctx context.Context, msg *amqp.TransactionEventMessage) error {
	if !msg.WasCompleted {
		// Never reached the ledger, so there is nothing to reverse.
		return nil
	}

	date, err := core.ParseDate(msg.Date)
	if err != nil {
		return fmt.Errorf("parse snapshot date: %w", err)
	}
	snapshot := core.Transaction{
		ID:          msg.ID,
		UserID:      msg.UserID,
		Title:       msg.Title,
		Amount:      core.Money{Cents: msg.AmountCents},
		Type:        core.Type(msg.Type),
		Category:    core.Category(msg.Category),
		IsCompleted: true,
		Date:        date,
	}

	ref, err := w.ledger.AppendEntry(ctx, sheets.ReversalFor(snapshot))
	if err != nil {
		return fmt.Errorf("append reversal: %w", err)
	}

	slog.InfoContext(ctx, "Exported reversal",
		"id", msg.ID,
		"ledger_ref", ref)
	return nil
}

// ProcessPending exports completed transactions whose queued events were
// lost. Safe to run concurrently with event handling: MarkExported's
// version guard keeps a row pending when it changed under the export.
func (w *ExportWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.store.PendingExports(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list pending exports: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "count", len(pending))

	for _, tr := range pending {
		if err := w.exportTransaction(ctx, tr); err != nil {
			slog.ErrorContext(ctx, "Failed to export transaction",
				"id", tr.ID, "error", err)
			continue
		}
	}
	return nil
}

// RunPendingScan calls ProcessPending on a fixed interval until the
// context is cancelled. One scan runs immediately on start to recover
// from worker downtime.
func (w *ExportWorker) RunPendingScan(ctx context.Context, interval time.Duration) error {
	if err := w.ProcessPending(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup pending scan failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Pending scan failed", "error", err)
			}
		}
	}
}

func (w *ExportWorker) exportTransaction(ctx context.Context, tr core.Transaction) error {
	ref, err := w.ledger.AppendEntry(ctx, sheets.EntryFor(tr))
	if err != nil {
		if markErr := w.store.MarkExportError(ctx, tr.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error",
				"id", tr.ID, "error", markErr)
		}
		return fmt.Errorf("append to ledger: %w", err)
	}

	if err := w.store.MarkExported(ctx, tr.ID, tr.Version); err != nil {
		// The entry reached the ledger; keep going and let the version
		// guard sort out a retry.
		slog.ErrorContext(ctx, "Failed to mark as exported",
			"id", tr.ID, "error", err)
	}

	slog.InfoContext(ctx, "Exported transaction",
		"id", tr.ID,
		"version", tr.Version,
		"ledger_ref", ref,
		"signed_cents", tr.SignedAmount().Cents)
	return nil
}
