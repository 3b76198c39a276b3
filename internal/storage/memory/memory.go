// Package memory is an in-process implementation of the storage ports, used
// as the default development backend and by tests. Mutations are staged on a
// copy of the state and swapped in only when the whole unit succeeds, giving
// the same commit-together-or-not-at-all contract as the SQLite backend.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

type exportState string

const (
	exportPending exportState = "pending"
	exportDone    exportState = "exported"
	exportFailed  exportState = "error"
)

type state struct {
	users      map[int64]core.User
	txns       map[int64]core.Transaction
	exports    map[int64]exportState
	nextUserID int64
	nextTxnID  int64
}

func (s *state) clone() *state {
	c := &state{
		users:      make(map[int64]core.User, len(s.users)),
		txns:       make(map[int64]core.Transaction, len(s.txns)),
		exports:    make(map[int64]exportState, len(s.exports)),
		nextUserID: s.nextUserID,
		nextTxnID:  s.nextTxnID,
	}
	for id, u := range s.users {
		c.users[id] = u
	}
	for id, t := range s.txns {
		c.txns[id] = t
	}
	for id, e := range s.exports {
		c.exports[id] = e
	}
	return c
}

type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: &state{
		users:      make(map[int64]core.User),
		txns:       make(map[int64]core.Transaction),
		exports:    make(map[int64]exportState),
		nextUserID: 1,
		nextTxnID:  1,
	}}
}

// WithinTx implements services.Store. fn operates on a staged copy; the copy
// replaces the live state only if fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(services.StoreTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.st.clone()
	if err := fn(&memTx{st: staged}); err != nil {
		return err
	}
	s.st = staged
	return nil
}

// CreateUser implements services.UserStore.
func (s *Store) CreateUser(ctx context.Context, u *core.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.st.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return services.ErrEmailTaken
		}
	}
	now := time.Now().UTC()
	u.ID = s.st.nextUserID
	s.st.nextUserID++
	u.Balance = core.Money{}
	u.CreatedAt = now
	u.UpdatedAt = now
	s.st.users[u.ID] = *u
	return nil
}

// GetUser implements services.UserStore.
func (s *Store) GetUser(ctx context.Context, id int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.st.users[id]
	if !ok {
		return core.User{}, services.ErrNotFound
	}
	return u, nil
}

// GetTransaction implements services.TransactionReader.
func (s *Store) GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.st.txns[id]
	if !ok || t.UserID != userID {
		return core.Transaction{}, services.ErrNotFound
	}
	return t, nil
}

// ListTransactions implements services.TransactionReader.
func (s *Store) ListTransactions(ctx context.Context, userID int64, f services.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Transaction
	for _, t := range s.st.txns {
		if t.UserID != userID || !matchesFilter(t, f) {
			continue
		}
		out = append(out, t)
	}
	sortNewestFirst(out)

	if f.Limit > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
		if len(out) > f.Limit {
			out = out[:f.Limit]
		}
	}
	return out, nil
}

func matchesFilter(t core.Transaction, f services.TransactionFilter) bool {
	if s := strings.TrimSpace(f.Search); s != "" &&
		!strings.Contains(strings.ToLower(t.Title), strings.ToLower(s)) {
		return false
	}
	if !f.From.IsZero() && t.Date.Before(f.From.Time) {
		return false
	}
	if !f.To.IsZero() && t.Date.After(f.To.Time) {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, t.Type) {
		return false
	}
	if f.Completed != nil && t.IsCompleted != *f.Completed {
		return false
	}
	if len(f.Categories) > 0 && !containsCategory(f.Categories, t.Category) {
		return false
	}
	return true
}

func containsType(types []core.Type, t core.Type) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

func containsCategory(cats []core.Category, c core.Category) bool {
	for _, v := range cats {
		if v == c {
			return true
		}
	}
	return false
}

func sortNewestFirst(txns []core.Transaction) {
	sort.Slice(txns, func(i, j int) bool {
		if !txns[i].Date.Equal(txns[j].Date.Time) {
			return txns[i].Date.After(txns[j].Date.Time)
		}
		if !txns[i].CreatedAt.Equal(txns[j].CreatedAt) {
			return txns[i].CreatedAt.After(txns[j].CreatedAt)
		}
		return txns[i].ID > txns[j].ID
	})
}

// MonthlyTotals implements services.DashboardStore.
func (s *Store) MonthlyTotals(ctx context.Context, userID int64, year, month int) (core.Money, core.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var income, expense core.Money
	for _, t := range s.st.txns {
		if t.UserID != userID || !t.IsCompleted ||
			t.Date.Year() != year || t.Date.Month() != month {
			continue
		}
		if t.Type == core.Income {
			income = income.Add(t.Amount)
		} else {
			expense = expense.Add(t.Amount)
		}
	}
	return income, expense, nil
}

// SumCompletedSignedBefore implements services.DashboardStore.
func (s *Store) SumCompletedSignedBefore(ctx context.Context, userID int64, before core.Date) (core.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum core.Money
	for _, t := range s.st.txns {
		if t.UserID == userID && t.IsCompleted && t.Date.Before(before.Time) {
			sum = sum.Add(t.SignedAmount())
		}
	}
	return sum, nil
}

// ListCompletedBetween implements services.DashboardStore.
func (s *Store) ListCompletedBetween(ctx context.Context, userID int64, from, to core.Date) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Transaction
	for _, t := range s.st.txns {
		if t.UserID != userID || !t.IsCompleted {
			continue
		}
		if t.Date.Before(from.Time) || t.Date.After(to.Time) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.Before(out[j].Date.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ExpensesByCategory implements services.DashboardStore.
func (s *Store) ExpensesByCategory(ctx context.Context, userID int64, year, month int) ([]core.CategoryTotal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totals := make(map[core.Category]core.Money)
	for _, t := range s.st.txns {
		if t.UserID != userID || !t.IsCompleted || t.Type != core.Expense ||
			t.Date.Year() != year || t.Date.Month() != month {
			continue
		}
		totals[t.Category] = totals[t.Category].Add(t.Amount)
	}

	out := make([]core.CategoryTotal, 0, len(totals))
	for c, total := range totals {
		out = append(out, core.CategoryTotal{Category: c, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total.Cents != out[j].Total.Cents {
			return out[i].Total.Cents > out[j].Total.Cents
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

// RecentCompleted implements services.DashboardStore.
func (s *Store) RecentCompleted(ctx context.Context, userID int64, limit int) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Transaction
	for _, t := range s.st.txns {
		if t.UserID == userID && t.IsCompleted {
			out = append(out, t)
		}
	}
	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MonthActivity implements services.DashboardStore.
func (s *Store) MonthActivity(ctx context.Context, userID int64, year, month int) ([]core.DayActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byDay := make(map[int]*core.DayActivity)
	for _, t := range s.st.txns {
		if t.UserID != userID || t.Date.Year() != year || t.Date.Month() != month {
			continue
		}
		da, ok := byDay[t.Date.Day()]
		if !ok {
			da = &core.DayActivity{Day: t.Date.Day()}
			byDay[t.Date.Day()] = da
		}
		if t.IsCompleted {
			da.Completed++
		} else {
			da.Pending++
		}
	}

	out := make([]core.DayActivity, 0, len(byDay))
	for _, da := range byDay {
		out = append(out, *da)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

// PendingExports returns completed transactions awaiting export, oldest id
// first.
func (s *Store) PendingExports(ctx context.Context, limit int) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Transaction
	for id, t := range s.st.txns {
		if t.IsCompleted && s.st.exports[id] == exportPending {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetExportTransaction fetches a transaction without owner scoping.
func (s *Store) GetExportTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.st.txns[id]
	if !ok {
		return core.Transaction{}, services.ErrNotFound
	}
	return t, nil
}

// MarkExported records a successful export, skipped when the row has moved
// past the exported version.
func (s *Store) MarkExported(ctx context.Context, id, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.st.txns[id]; ok && t.Version == version {
		s.st.exports[id] = exportDone
	}
	return nil
}

// MarkExportError flags a row whose export failed permanently.
func (s *Store) MarkExportError(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.txns[id]; ok {
		s.st.exports[id] = exportFailed
	}
	return nil
}

// memTx operates on the staged copy during WithinTx.
type memTx struct {
	st *state
}

func (m *memTx) GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, error) {
	t, ok := m.st.txns[id]
	if !ok || t.UserID != userID {
		return core.Transaction{}, services.ErrNotFound
	}
	return t, nil
}

func (m *memTx) InsertTransaction(ctx context.Context, t *core.Transaction) error {
	if _, ok := m.st.users[t.UserID]; !ok {
		// mirrors the SQLite foreign key on user_id
		return services.ErrNotFound
	}
	now := time.Now().UTC()
	t.ID = m.st.nextTxnID
	m.st.nextTxnID++
	t.Version = 1
	t.CreatedAt = now
	t.UpdatedAt = now
	m.st.txns[t.ID] = *t
	m.st.exports[t.ID] = exportPending
	return nil
}

func (m *memTx) UpdateTransaction(ctx context.Context, t *core.Transaction) error {
	old, ok := m.st.txns[t.ID]
	if !ok || old.UserID != t.UserID {
		return services.ErrNotFound
	}
	t.Version = old.Version + 1
	t.CreatedAt = old.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	m.st.txns[t.ID] = *t
	m.st.exports[t.ID] = exportPending
	return nil
}

func (m *memTx) DeleteTransaction(ctx context.Context, userID, id int64) error {
	t, ok := m.st.txns[id]
	if !ok || t.UserID != userID {
		return services.ErrNotFound
	}
	delete(m.st.txns, id)
	delete(m.st.exports, id)
	return nil
}

func (m *memTx) GetBalance(ctx context.Context, userID int64) (core.Money, error) {
	u, ok := m.st.users[userID]
	if !ok {
		return core.Money{}, services.ErrNotFound
	}
	return u.Balance, nil
}

func (m *memTx) SetBalance(ctx context.Context, userID int64, balance core.Money) error {
	u, ok := m.st.users[userID]
	if !ok {
		return services.ErrNotFound
	}
	u.Balance = balance
	u.UpdatedAt = time.Now().UTC()
	m.st.users[userID] = u
	return nil
}

func (m *memTx) SumCompletedSigned(ctx context.Context, userID int64) (core.Money, error) {
	var sum core.Money
	for _, t := range m.st.txns {
		if t.UserID == userID && t.IsCompleted {
			sum = sum.Add(t.SignedAmount())
		}
	}
	return sum, nil
}
