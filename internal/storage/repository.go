// Package storage persists users and transactions in SQLite. The repository
// implements the service ports; balance and transaction writes share one
// database transaction so they commit together or not at all.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/services"

	_ "modernc.org/sqlite"
)

// Fixed-width UTC layout so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Export lifecycle of a transaction row.
const (
	ExportPending = "pending"
	ExportDone    = "exported"
	ExportError   = "error"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// _txlock=immediate takes the write lock at BEGIN, serializing writers up
	// front instead of failing at the first write statement.
	dsn := "file:" + dbPath +
		"?_txlock=immediate" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// WithinTx implements services.Store.
func (r *SQLiteRepository) WithinTx(ctx context.Context, fn func(services.StoreTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CreateUser implements services.UserStore.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u *core.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, name, balance_cents, created_at, updated_at)
		 VALUES (?, ?, 0, ?, ?)`,
		u.Email, u.Name, now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
			return services.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	u.ID = id
	u.Balance = core.Money{}
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

// GetUser implements services.UserStore.
func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, balance_cents, created_at, updated_at
		 FROM users WHERE id = ?`, id)

	var u core.User
	var createdAt, updatedAt string
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Balance.Cents, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, services.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	u.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return u, nil
}

// GetTransaction implements services.TransactionReader.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, error) {
	return getTransaction(ctx, r.db, userID, id)
}

// sqliteTx is the transactional view handed to the ledger service.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, error) {
	return getTransaction(ctx, t.tx, userID, id)
}

func (t *sqliteTx) InsertTransaction(ctx context.Context, tr *core.Transaction) error {
	now := time.Now().UTC()
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO transactions
		   (user_id, title, description, amount_cents, type, category,
		    is_completed, date, export_state, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		tr.UserID, tr.Title, tr.Description, tr.Amount.Cents, string(tr.Type),
		string(tr.Category), tr.IsCompleted, tr.Date.String(), ExportPending,
		now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	tr.ID = id
	tr.Version = 1
	tr.CreatedAt = now
	tr.UpdatedAt = now
	return nil
}

func (t *sqliteTx) UpdateTransaction(ctx context.Context, tr *core.Transaction) error {
	now := time.Now().UTC()
	res, err := t.tx.ExecContext(ctx,
		`UPDATE transactions SET
		   title = ?, description = ?, amount_cents = ?, type = ?, category = ?,
		   is_completed = ?, date = ?, export_state = ?, version = version + 1,
		   updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		tr.Title, tr.Description, tr.Amount.Cents, string(tr.Type),
		string(tr.Category), tr.IsCompleted, tr.Date.String(), ExportPending,
		now.Format(timeLayout), tr.ID, tr.UserID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return services.ErrNotFound
	}
	tr.Version++
	tr.UpdatedAt = now
	return nil
}

func (t *sqliteTx) DeleteTransaction(ctx context.Context, userID, id int64) error {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (t *sqliteTx) GetBalance(ctx context.Context, userID int64) (core.Money, error) {
	var cents int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT balance_cents FROM users WHERE id = ?`, userID).Scan(&cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Money{}, services.ErrNotFound
	}
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: cents}, nil
}

func (t *sqliteTx) SetBalance(ctx context.Context, userID int64, balance core.Money) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE users SET balance_cents = ?, updated_at = ? WHERE id = ?`,
		balance.Cents, time.Now().UTC().Format(timeLayout), userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (t *sqliteTx) SumCompletedSigned(ctx context.Context, userID int64) (core.Money, error) {
	return sumCompletedSigned(ctx, t.tx, userID)
}

// querier abstracts *sql.DB and *sql.Tx for shared query helpers.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const transactionColumns = `id, user_id, title, description, amount_cents,
	type, category, is_completed, date, version, created_at, updated_at`

func getTransaction(ctx context.Context, q querier, userID, id int64) (core.Transaction, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`,
		id, userID)
	tr, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, services.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	return tr, nil
}

func sumCompletedSigned(ctx context.Context, q querier, userID int64) (core.Money, error) {
	var cents int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN type = 'IN' THEN amount_cents ELSE -amount_cents END), 0)
		 FROM transactions
		 WHERE user_id = ? AND is_completed = 1`, userID).Scan(&cents)
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: cents}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var tr core.Transaction
	var typ, category, date, createdAt, updatedAt string
	err := row.Scan(&tr.ID, &tr.UserID, &tr.Title, &tr.Description,
		&tr.Amount.Cents, &typ, &category, &tr.IsCompleted, &date,
		&tr.Version, &createdAt, &updatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	tr.Type = core.Type(typ)
	tr.Category = core.Category(category)
	if tr.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	tr.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	tr.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return tr, nil
}

func collectTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	defer rows.Close()
	var out []core.Transaction
	for rows.Next() {
		tr, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}
