package services

import (
	"context"
	"fmt"
	"time"

	"fintrack/internal/core"
)

// Days covered by the dashboard balance series, today included.
const balanceSeriesDays = 30

const recentTransactionsLimit = 5

// DashboardService produces the read-only aggregates shown on the dashboard.
// It never mutates the balance.
type DashboardService struct {
	store DashboardStore
	users UserStore
	now   func() time.Time
}

func NewDashboardService(store DashboardStore, users UserStore) *DashboardService {
	return &DashboardService{
		store: store,
		users: users,
		now:   time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (s *DashboardService) WithNow(now func() time.Time) *DashboardService {
	s.now = now
	return s
}

// DailyBalance is one point of the 30-day running balance series.
type DailyBalance struct {
	Date    core.Date  `json:"date"`
	Balance core.Money `json:"balance"`
}

// Overview is the full dashboard payload for one user.
type Overview struct {
	Balance        core.Money           `json:"balance"`
	MonthlyIncome  core.Money           `json:"monthly_income"`
	MonthlyExpense core.Money           `json:"monthly_expense"`
	MonthlySavings core.Money           `json:"monthly_savings"`
	DailyBalances  []DailyBalance       `json:"daily_balances"`
	ByCategory     []core.CategoryTotal `json:"expenses_by_category"`
	Recent         []core.Transaction   `json:"recent_transactions"`
}

// Overview assembles the dashboard for a user as of today.
func (s *DashboardService) Overview(ctx context.Context, userID int64) (Overview, error) {
	today := core.DateOf(s.now())

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return Overview{}, err
	}

	income, expense, err := s.store.MonthlyTotals(ctx, userID, today.Year(), today.Month())
	if err != nil {
		return Overview{}, fmt.Errorf("monthly totals: %w", err)
	}

	series, err := s.balanceSeries(ctx, userID, today)
	if err != nil {
		return Overview{}, err
	}

	byCategory, err := s.store.ExpensesByCategory(ctx, userID, today.Year(), today.Month())
	if err != nil {
		return Overview{}, fmt.Errorf("expenses by category: %w", err)
	}

	recent, err := s.store.RecentCompleted(ctx, userID, recentTransactionsLimit)
	if err != nil {
		return Overview{}, fmt.Errorf("recent transactions: %w", err)
	}

	return Overview{
		Balance:        user.Balance,
		MonthlyIncome:  income,
		MonthlyExpense: expense,
		MonthlySavings: income.Sub(expense),
		DailyBalances:  series,
		ByCategory:     byCategory,
		Recent:         recent,
	}, nil
}

// balanceSeries computes the running balance for each of the 30 days ending
// today: the sum of completed signed amounts dated strictly before the window
// plus cumulative per-day totals inside it. Always exactly 30 values, oldest
// first.
func (s *DashboardService) balanceSeries(ctx context.Context, userID int64, today core.Date) ([]DailyBalance, error) {
	start := today.AddDays(-(balanceSeriesDays - 1))

	opening, err := s.store.SumCompletedSignedBefore(ctx, userID, start)
	if err != nil {
		return nil, fmt.Errorf("opening balance: %w", err)
	}

	inWindow, err := s.store.ListCompletedBetween(ctx, userID, start, today)
	if err != nil {
		return nil, fmt.Errorf("window transactions: %w", err)
	}

	perDay := make(map[string]core.Money, len(inWindow))
	for _, t := range inWindow {
		key := t.Date.String()
		perDay[key] = perDay[key].Add(t.SignedAmount())
	}

	series := make([]DailyBalance, 0, balanceSeriesDays)
	running := opening
	for i := 0; i < balanceSeriesDays; i++ {
		day := start.AddDays(i)
		running = running.Add(perDay[day.String()])
		series = append(series, DailyBalance{Date: day, Balance: running})
	}
	return series, nil
}

// Calendar counts completed and pending transactions per day of the given
// month.
func (s *DashboardService) Calendar(ctx context.Context, userID int64, year, month int) ([]core.DayActivity, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("invalid month %d", month)
	}
	return s.store.MonthActivity(ctx, userID, year, month)
}
