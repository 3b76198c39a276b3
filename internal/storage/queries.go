package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

// monthBounds returns the first and last day of a calendar month.
func monthBounds(year, month int) (core.Date, core.Date) {
	first := core.NewDate(year, month, 1)
	last := core.NewDate(year, month+1, 0) // day 0 normalizes to the last day
	return first, last
}

// ListTransactions implements services.TransactionReader. Filters compose
// with AND; the result is ordered newest first (date, then creation time).
func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID int64, f services.TransactionFilter) ([]core.Transaction, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = ?`)
	args := []any{userID}

	if s := strings.TrimSpace(f.Search); s != "" {
		sb.WriteString(` AND title LIKE ?`)
		args = append(args, "%"+s+"%")
	}
	if !f.From.IsZero() {
		sb.WriteString(` AND date >= ?`)
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		sb.WriteString(` AND date <= ?`)
		args = append(args, f.To.String())
	}
	if len(f.Types) > 0 {
		sb.WriteString(` AND type IN (` + placeholders(len(f.Types)) + `)`)
		for _, t := range f.Types {
			args = append(args, string(t))
		}
	}
	if f.Completed != nil {
		sb.WriteString(` AND is_completed = ?`)
		args = append(args, *f.Completed)
	}
	if len(f.Categories) > 0 {
		sb.WriteString(` AND category IN (` + placeholders(len(f.Categories)) + `)`)
		for _, c := range f.Categories {
			args = append(args, string(c))
		}
	}

	sb.WriteString(` ORDER BY date DESC, created_at DESC, id DESC`)
	if f.Limit > 0 {
		sb.WriteString(` LIMIT ? OFFSET ?`)
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return collectTransactions(rows)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// MonthlyTotals implements services.DashboardStore.
func (r *SQLiteRepository) MonthlyTotals(ctx context.Context, userID int64, year, month int) (core.Money, core.Money, error) {
	first, last := monthBounds(year, month)
	var income, expense int64
	err := r.db.QueryRowContext(ctx,
		`SELECT
		   COALESCE(SUM(CASE WHEN type = 'IN' THEN amount_cents ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN type = 'OUT' THEN amount_cents ELSE 0 END), 0)
		 FROM transactions
		 WHERE user_id = ? AND is_completed = 1 AND date >= ? AND date <= ?`,
		userID, first.String(), last.String()).Scan(&income, &expense)
	if err != nil {
		return core.Money{}, core.Money{}, fmt.Errorf("monthly totals: %w", err)
	}
	return core.Money{Cents: income}, core.Money{Cents: expense}, nil
}

// SumCompletedSignedBefore implements services.DashboardStore.
func (r *SQLiteRepository) SumCompletedSignedBefore(ctx context.Context, userID int64, before core.Date) (core.Money, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN type = 'IN' THEN amount_cents ELSE -amount_cents END), 0)
		 FROM transactions
		 WHERE user_id = ? AND is_completed = 1 AND date < ?`,
		userID, before.String()).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum before %s: %w", before, err)
	}
	return core.Money{Cents: cents}, nil
}

// ListCompletedBetween implements services.DashboardStore.
func (r *SQLiteRepository) ListCompletedBetween(ctx context.Context, userID int64, from, to core.Date) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions
		 WHERE user_id = ? AND is_completed = 1 AND date >= ? AND date <= ?
		 ORDER BY date ASC, id ASC`,
		userID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("list completed between: %w", err)
	}
	return collectTransactions(rows)
}

// ExpensesByCategory implements services.DashboardStore.
func (r *SQLiteRepository) ExpensesByCategory(ctx context.Context, userID int64, year, month int) ([]core.CategoryTotal, error) {
	first, last := monthBounds(year, month)
	rows, err := r.db.QueryContext(ctx,
		`SELECT category, COALESCE(SUM(amount_cents), 0) AS total
		 FROM transactions
		 WHERE user_id = ? AND is_completed = 1 AND type = 'OUT'
		   AND date >= ? AND date <= ?
		 GROUP BY category
		 ORDER BY total DESC, category ASC`,
		userID, first.String(), last.String())
	if err != nil {
		return nil, fmt.Errorf("expenses by category: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryTotal
	for rows.Next() {
		var ct core.CategoryTotal
		var category string
		if err := rows.Scan(&category, &ct.Total.Cents); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		ct.Category = core.Category(category)
		out = append(out, ct)
	}
	return out, rows.Err()
}

// RecentCompleted implements services.DashboardStore.
func (r *SQLiteRepository) RecentCompleted(ctx context.Context, userID int64, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions
		 WHERE user_id = ? AND is_completed = 1
		 ORDER BY date DESC, created_at DESC, id DESC
		 LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent completed: %w", err)
	}
	return collectTransactions(rows)
}

// MonthActivity implements services.DashboardStore.
func (r *SQLiteRepository) MonthActivity(ctx context.Context, userID int64, year, month int) ([]core.DayActivity, error) {
	first, last := monthBounds(year, month)
	rows, err := r.db.QueryContext(ctx,
		`SELECT CAST(substr(date, 9, 2) AS INTEGER) AS day,
		   SUM(CASE WHEN is_completed = 1 THEN 1 ELSE 0 END),
		   SUM(CASE WHEN is_completed = 0 THEN 1 ELSE 0 END)
		 FROM transactions
		 WHERE user_id = ? AND date >= ? AND date <= ?
		 GROUP BY day
		 ORDER BY day ASC`,
		userID, first.String(), last.String())
	if err != nil {
		return nil, fmt.Errorf("month activity: %w", err)
	}
	defer rows.Close()

	var out []core.DayActivity
	for rows.Next() {
		var da core.DayActivity
		if err := rows.Scan(&da.Day, &da.Completed, &da.Pending); err != nil {
			return nil, fmt.Errorf("scan day activity: %w", err)
		}
		out = append(out, da)
	}
	return out, rows.Err()
}

// PendingExports returns completed transactions not yet exported. Used by
// the worker's batch fallback in case queued events were lost.
func (r *SQLiteRepository) PendingExports(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions
		 WHERE is_completed = 1 AND export_state = ?
		 ORDER BY id ASC
		 LIMIT ?`,
		ExportPending, limit)
	if err != nil {
		return nil, fmt.Errorf("pending exports: %w", err)
	}
	return collectTransactions(rows)
}

// GetExportTransaction fetches a transaction by id without owner scoping,
// for the export worker.
func (r *SQLiteRepository) GetExportTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	tr, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, services.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	return tr, nil
}

// MarkExported records a successful export. The version guard skips the mark
// when the row changed after the export snapshot was taken; the newer version
// stays pending and is exported again.
func (r *SQLiteRepository) MarkExported(ctx context.Context, id, version int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET export_state = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		ExportDone, time.Now().UTC().Format(timeLayout), id, version)
	if err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}
	return nil
}

// MarkExportError flags a row whose export failed permanently.
func (r *SQLiteRepository) MarkExportError(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET export_state = ?, updated_at = ? WHERE id = ?`,
		ExportError, time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("mark export error: %w", err)
	}
	return nil
}
