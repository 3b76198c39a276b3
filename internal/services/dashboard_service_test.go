package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/services"
	storemem "fintrack/internal/storage/memory"
)

// seedDashboard builds a fixed ledger around a pinned "today" of 2026-08-20:
//
//	2026-07-01  income  1000.00  completed  (before the 30-day window)
//	2026-07-25  expense  200.00  completed  Housing
//	2026-08-10  income    50.00  completed  Salary
//	2026-08-15  expense  500.00  pending    Leisure
//	2026-08-20  expense   30.00  completed  Food
func seedDashboard(t *testing.T) (*services.DashboardService, *storemem.Store, int64) {
	t.Helper()
	ctx := context.Background()
	store := storemem.NewStore()
	ledger := services.NewLedgerService(store, nil, services.StrategyIncremental)

	u := core.User{Email: "dash@example.com", Name: "Dash"}
	if err := store.CreateUser(ctx, &u); err != nil {
		t.Fatalf("create user: %v", err)
	}

	seed := []core.Transaction{
		{UserID: u.ID, Title: "Salary July", Amount: core.Money{Cents: 100000}, Type: core.Income, Category: core.CategorySalary, IsCompleted: true, Date: core.NewDate(2026, 7, 1)},
		{UserID: u.ID, Title: "Rent", Amount: core.Money{Cents: 20000}, Type: core.Expense, Category: core.CategoryHousing, IsCompleted: true, Date: core.NewDate(2026, 7, 25)},
		{UserID: u.ID, Title: "Refund", Amount: core.Money{Cents: 5000}, Type: core.Income, Category: core.CategorySalary, IsCompleted: true, Date: core.NewDate(2026, 8, 10)},
		{UserID: u.ID, Title: "Concert", Amount: core.Money{Cents: 50000}, Type: core.Expense, Category: core.CategoryLeisure, IsCompleted: false, Date: core.NewDate(2026, 8, 15)},
		{UserID: u.ID, Title: "Groceries", Amount: core.Money{Cents: 3000}, Type: core.Expense, Category: core.CategoryFood, IsCompleted: true, Date: core.NewDate(2026, 8, 20)},
	}
	for _, txn := range seed {
		if _, err := ledger.CreateTransaction(ctx, txn); err != nil {
			t.Fatalf("seed %q: %v", txn.Title, err)
		}
	}

	svc := services.NewDashboardService(store, store).WithNow(func() time.Time {
		return time.Date(2026, 8, 20, 14, 30, 0, 0, time.UTC)
	})
	return svc, store, u.ID
}

func TestOverviewAggregates(t *testing.T) {
	svc, _, userID := seedDashboard(t)

	ov, err := svc.Overview(context.Background(), userID)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}

	// 1000.00 - 200.00 + 50.00 - 30.00; the pending expense never counts.
	if ov.Balance.Cents != 82000 {
		t.Errorf("balance = %s, want 820.00", ov.Balance)
	}
	if ov.MonthlyIncome.Cents != 5000 {
		t.Errorf("monthly income = %s, want 50.00", ov.MonthlyIncome)
	}
	if ov.MonthlyExpense.Cents != 3000 {
		t.Errorf("monthly expense = %s, want 30.00", ov.MonthlyExpense)
	}
	if ov.MonthlySavings.Cents != 2000 {
		t.Errorf("monthly savings = %s, want 20.00", ov.MonthlySavings)
	}

	if len(ov.ByCategory) != 1 || ov.ByCategory[0].Category != core.CategoryFood || ov.ByCategory[0].Total.Cents != 3000 {
		t.Errorf("expenses by category = %+v, want [Food 30.00]", ov.ByCategory)
	}

	wantRecent := []string{"Groceries", "Refund", "Rent", "Salary July"}
	if len(ov.Recent) != len(wantRecent) {
		t.Fatalf("recent = %d entries, want %d", len(ov.Recent), len(wantRecent))
	}
	for i, title := range wantRecent {
		if ov.Recent[i].Title != title {
			t.Errorf("recent[%d] = %q, want %q", i, ov.Recent[i].Title, title)
		}
	}
}

func TestOverviewBalanceSeries(t *testing.T) {
	svc, _, userID := seedDashboard(t)

	ov, err := svc.Overview(context.Background(), userID)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}

	series := ov.DailyBalances
	if len(series) != 30 {
		t.Fatalf("series has %d points, want 30", len(series))
	}

	// Window runs 2026-07-22 .. 2026-08-20, oldest first.
	if got := series[0].Date.String(); got != "2026-07-22" {
		t.Errorf("series start = %s, want 2026-07-22", got)
	}
	if got := series[29].Date.String(); got != "2026-08-20" {
		t.Errorf("series end = %s, want 2026-08-20", got)
	}

	checkpoints := map[string]int64{
		"2026-07-22": 100000, // opening balance from July salary
		"2026-07-24": 100000,
		"2026-07-25": 80000, // rent paid
		"2026-08-09": 80000,
		"2026-08-10": 85000, // refund received
		"2026-08-15": 85000, // pending concert never moves the series
		"2026-08-20": 82000, // groceries on the final day
	}
	for _, p := range series {
		want, ok := checkpoints[p.Date.String()]
		if ok && p.Balance.Cents != want {
			t.Errorf("balance on %s = %s, want %d cents", p.Date, p.Balance, want)
		}
	}
}

func TestOverviewUnknownUser(t *testing.T) {
	svc, _, _ := seedDashboard(t)

	if _, err := svc.Overview(context.Background(), 999); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestOverviewEmptyLedger(t *testing.T) {
	store := storemem.NewStore()
	u := core.User{Email: "empty@example.com", Name: "Empty"}
	if err := store.CreateUser(context.Background(), &u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	svc := services.NewDashboardService(store, store)

	ov, err := svc.Overview(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if !ov.Balance.IsZero() || !ov.MonthlyIncome.IsZero() || !ov.MonthlyExpense.IsZero() {
		t.Errorf("empty ledger must report zero totals: %+v", ov)
	}
	if len(ov.DailyBalances) != 30 {
		t.Fatalf("series has %d points, want 30", len(ov.DailyBalances))
	}
	for _, p := range ov.DailyBalances {
		if !p.Balance.IsZero() {
			t.Errorf("balance on %s = %s, want 0.00", p.Date, p.Balance)
		}
	}
}

func TestCalendarActivity(t *testing.T) {
	svc, _, userID := seedDashboard(t)

	days, err := svc.Calendar(context.Background(), userID, 2026, 8)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}

	want := []core.DayActivity{
		{Day: 10, Completed: 1},
		{Day: 15, Pending: 1},
		{Day: 20, Completed: 1},
	}
	if len(days) != len(want) {
		t.Fatalf("calendar has %d days, want %d", len(days), len(want))
	}
	for i, w := range want {
		if days[i] != w {
			t.Errorf("day[%d] = %+v, want %+v", i, days[i], w)
		}
	}
}

func TestCalendarRejectsInvalidMonth(t *testing.T) {
	svc, _, userID := seedDashboard(t)

	for _, month := range []int{0, 13, -1} {
		if _, err := svc.Calendar(context.Background(), userID, 2026, month); err == nil {
			t.Errorf("month %d must be rejected", month)
		}
	}
}
