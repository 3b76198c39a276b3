package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/services"
	storemem "fintrack/internal/storage/memory"
)

// pinClock fixes the server clock so derived statuses and month defaults are
// deterministic.
func pinClock(t *testing.T, at time.Time) {
	t.Helper()
	prev := timeNow
	timeNow = func() time.Time { return at }
	t.Cleanup(func() { timeNow = prev })
}

func newTestServer(t *testing.T) (*Server, *storemem.Store) {
	t.Helper()
	pinClock(t, time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC))

	store := storemem.NewStore()
	ledger := services.NewLedgerService(store, nil, services.StrategyIncremental)
	dashboards := services.NewDashboardService(store, store).WithNow(timeNow)

	srv := NewServer(":0", nil, Dependencies{
		Ledger:     ledger,
		Users:      store,
		Reader:     store,
		Dashboards: dashboards,
	})
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv, store
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return out
}

func createUserViaAPI(t *testing.T, srv *Server, email string) int64 {
	t.Helper()
	w := doRequest(t, srv, http.MethodPost, "/users",
		fmt.Sprintf(`{"email":%q,"name":"Test"}`, email))
	if w.Code != http.StatusCreated {
		t.Fatalf("create user: status %d, body %s", w.Code, w.Body)
	}
	return int64(decodeBody(t, w)["id"].(float64))
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		w := doRequest(t, srv, http.MethodGet, path, "")
		if w.Code != http.StatusOK {
			t.Errorf("%s: status %d, want 200", path, w.Code)
		}
	}
}

func TestResponsesCarryRequestID(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/healthz", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Errorf("response must carry a request id")
	}

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set("X-Request-ID", "caller-supplied")
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, r)
	if got := rec.Header().Get("X-Request-ID"); got != "caller-supplied" {
		t.Errorf("inbound request id not reused: got %q", got)
	}
}

func TestCreateUser(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodPost, "/users", `{"email":"a@example.com","name":"Ada"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d, want 201; body %s", w.Code, w.Body)
	}
	body := decodeBody(t, w)
	if body["email"] != "a@example.com" || body["balance"] != "0.00" {
		t.Errorf("unexpected user payload: %v", body)
	}

	// Duplicate email conflicts.
	w = doRequest(t, srv, http.MethodPost, "/users", `{"email":"a@example.com","name":"Ada"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate email: status %d, want 409", w.Code)
	}

	// Missing email is a validation failure.
	w = doRequest(t, srv, http.MethodPost, "/users", `{"email":"","name":"Nobody"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty email: status %d, want 400", w.Code)
	}
}

func TestGetUser(t *testing.T) {
	srv, _ := newTestServer(t)
	userID := createUserViaAPI(t, srv, "get@example.com")

	w := doRequest(t, srv, http.MethodGet, fmt.Sprintf("/users/%d", userID), "")
	if w.Code != http.StatusOK {
		t.Errorf("status %d, want 200", w.Code)
	}
	if w := doRequest(t, srv, http.MethodGet, "/users/999", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown user: status %d, want 404", w.Code)
	}
	if w := doRequest(t, srv, http.MethodGet, "/users/zero", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: status %d, want 400", w.Code)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	srv, store := newTestServer(t)
	userID := createUserViaAPI(t, srv, "life@example.com")
	base := fmt.Sprintf("/users/%d/transactions", userID)

	// A completed income moves the balance and reports Paid/Received.
	w := doRequest(t, srv, http.MethodPost, base,
		`{"title":"Salary","amount":"1000.00","type":"in","category":"sal","is_completed":true,"date":"2026-08-01"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", w.Code, w.Body)
	}
	created := decodeBody(t, w)
	if created["status"] != string(core.StatusPaid) || created["amount"] != "1000.00" {
		t.Errorf("created payload: %v", created)
	}
	txID := int64(created["id"].(float64))

	u, err := store.GetUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Balance.Cents != 100000 {
		t.Errorf("balance = %s, want 1000.00", u.Balance)
	}

	// A future-dated pending expense is Scheduled and does not move the
	// balance.
	w = doRequest(t, srv, http.MethodPost, base,
		`{"title":"Concert","amount":"50.00","type":"out","category":"lsr","date":"2026-09-05"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create pending: status %d, body %s", w.Code, w.Body)
	}
	pending := decodeBody(t, w)
	if pending["status"] != string(core.StatusScheduled) {
		t.Errorf("pending status = %v, want Scheduled", pending["status"])
	}
	pendingID := int64(pending["id"].(float64))

	// Completing applies the signed amount.
	w = doRequest(t, srv, http.MethodPost, fmt.Sprintf("%s/%d/complete", base, pendingID), "")
	if w.Code != http.StatusOK {
		t.Fatalf("complete: status %d, body %s", w.Code, w.Body)
	}
	u, _ = store.GetUser(context.Background(), userID)
	if u.Balance.Cents != 95000 {
		t.Errorf("balance after complete = %s, want 950.00", u.Balance)
	}

	// Partial update changes only the named fields.
	w = doRequest(t, srv, http.MethodPut, fmt.Sprintf("%s/%d", base, txID), `{"amount":"1200.00"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update: status %d, body %s", w.Code, w.Body)
	}
	updated := decodeBody(t, w)
	if updated["amount"] != "1200.00" || updated["title"] != "Salary" {
		t.Errorf("updated payload: %v", updated)
	}
	u, _ = store.GetUser(context.Background(), userID)
	if u.Balance.Cents != 115000 {
		t.Errorf("balance after update = %s, want 1150.00", u.Balance)
	}

	// Delete removes the row and reverses its contribution.
	w = doRequest(t, srv, http.MethodDelete, fmt.Sprintf("%s/%d", base, txID), "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", w.Code)
	}
	if w = doRequest(t, srv, http.MethodGet, fmt.Sprintf("%s/%d", base, txID), ""); w.Code != http.StatusNotFound {
		t.Errorf("deleted row: status %d, want 404", w.Code)
	}
	u, _ = store.GetUser(context.Background(), userID)
	if u.Balance.Cents != -5000 {
		t.Errorf("final balance = %s, want -50.00", u.Balance)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	userID := createUserViaAPI(t, srv, "valid@example.com")
	base := fmt.Sprintf("/users/%d/transactions", userID)

	cases := []struct {
		name string
		body string
	}{
		{"negative amount", `{"title":"X","amount":"-5.00","type":"out","category":"oth","date":"2026-08-01"}`},
		{"unparseable amount", `{"title":"X","amount":"ten","type":"out","category":"oth","date":"2026-08-01"}`},
		{"bad type", `{"title":"X","amount":"5.00","type":"sideways","category":"oth","date":"2026-08-01"}`},
		{"bad category", `{"title":"X","amount":"5.00","type":"out","category":"zzz","date":"2026-08-01"}`},
		{"bad date", `{"title":"X","amount":"5.00","type":"out","category":"oth","date":"yesterday"}`},
		{"empty title", `{"title":"  ","amount":"5.00","type":"out","category":"oth","date":"2026-08-01"}`},
		{"unknown field", `{"title":"X","amount":"5.00","type":"out","category":"oth","date":"2026-08-01","extra":1}`},
		{"not json", `title=X`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(t, srv, http.MethodPost, base, tc.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status %d, want 400; body %s", w.Code, w.Body)
			}
		})
	}

	// Creating against an unknown user is a 404.
	w := doRequest(t, srv, http.MethodPost, "/users/999/transactions",
		`{"title":"X","amount":"5.00","type":"out","category":"oth","date":"2026-08-01"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown user: status %d, want 404", w.Code)
	}
}

func TestListTransactions(t *testing.T) {
	srv, _ := newTestServer(t)
	userID := createUserViaAPI(t, srv, "list@example.com")
	base := fmt.Sprintf("/users/%d/transactions", userID)

	seed := []string{
		`{"title":"Salary","amount":"2500.00","type":"in","category":"sal","is_completed":true,"date":"2026-08-01"}`,
		`{"title":"Rent","amount":"800.00","type":"out","category":"hsg","is_completed":true,"date":"2026-08-02"}`,
		`{"title":"Concert","amount":"120.00","type":"out","category":"lsr","date":"2026-09-05"}`,
	}
	for _, body := range seed {
		if w := doRequest(t, srv, http.MethodPost, base, body); w.Code != http.StatusCreated {
			t.Fatalf("seed: status %d, body %s", w.Code, w.Body)
		}
	}

	w := doRequest(t, srv, http.MethodGet, base, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: status %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["count"].(float64) != 3 {
		t.Errorf("count = %v, want 3", body["count"])
	}

	w = doRequest(t, srv, http.MethodGet, base+"?type=out&completed=true", "")
	body = decodeBody(t, w)
	if body["count"].(float64) != 1 {
		t.Errorf("filtered count = %v, want 1", body["count"])
	}
	list := body["transactions"].([]any)
	if list[0].(map[string]any)["title"] != "Rent" {
		t.Errorf("filtered row = %v, want Rent", list[0])
	}

	// Period presets window the list relative to the pinned clock
	// (2026-08-20): the last 30 days cover Salary and Rent but not the
	// September concert.
	w = doRequest(t, srv, http.MethodGet, base+"?period=30", "")
	body = decodeBody(t, w)
	if body["count"].(float64) != 2 {
		t.Errorf("period=30 count = %v, want 2", body["count"])
	}

	if w := doRequest(t, srv, http.MethodGet, base+"?type=diagonal", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad filter: status %d, want 400", w.Code)
	}
	if w := doRequest(t, srv, http.MethodGet, base+"?period=14", ""); w.Code != http.StatusBadRequest {
		t.Errorf("unknown period: status %d, want 400", w.Code)
	}
	if w := doRequest(t, srv, http.MethodGet, base+"?period=30&from=2026-08-01", ""); w.Code != http.StatusBadRequest {
		t.Errorf("period with from: status %d, want 400", w.Code)
	}
	if w := doRequest(t, srv, http.MethodGet, "/users/999/transactions", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown user: status %d, want 404", w.Code)
	}
}

func TestRecomputeBalanceEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	userID := createUserViaAPI(t, srv, "recompute@example.com")
	base := fmt.Sprintf("/users/%d/transactions", userID)

	doRequest(t, srv, http.MethodPost, base,
		`{"title":"Salary","amount":"100.00","type":"in","category":"sal","is_completed":true,"date":"2026-08-01"}`)

	// Corrupt the cached balance out of band; recompute converges it.
	err := store.WithinTx(context.Background(), func(tx services.StoreTx) error {
		return tx.SetBalance(context.Background(), userID, core.Money{Cents: 123456})
	})
	if err != nil {
		t.Fatalf("corrupt balance: %v", err)
	}

	w := doRequest(t, srv, http.MethodPost, fmt.Sprintf("/users/%d/balance/recompute", userID), "")
	if w.Code != http.StatusOK {
		t.Fatalf("recompute: status %d, body %s", w.Code, w.Body)
	}
	if got := decodeBody(t, w)["balance"]; got != "100.00" {
		t.Errorf("balance = %v, want 100.00", got)
	}

	if w := doRequest(t, srv, http.MethodPost, "/users/999/balance/recompute", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown user: status %d, want 404", w.Code)
	}
}

func TestDashboardCacheInvalidation(t *testing.T) {
	srv, _ := newTestServer(t)
	userID := createUserViaAPI(t, srv, "dash@example.com")
	base := fmt.Sprintf("/users/%d/transactions", userID)
	dashboard := fmt.Sprintf("/users/%d/dashboard", userID)

	doRequest(t, srv, http.MethodPost, base,
		`{"title":"Salary","amount":"1000.00","type":"in","category":"sal","is_completed":true,"date":"2026-08-01"}`)

	w := doRequest(t, srv, http.MethodGet, dashboard, "")
	if w.Code != http.StatusOK {
		t.Fatalf("dashboard: status %d, body %s", w.Code, w.Body)
	}
	body := decodeBody(t, w)
	if body["balance"] != "1000.00" {
		t.Errorf("balance = %v, want 1000.00", body["balance"])
	}
	if series := body["daily_balances"].([]any); len(series) != 30 {
		t.Errorf("series has %d points, want 30", len(series))
	}

	// A write invalidates the cached overview, so the next read is fresh.
	doRequest(t, srv, http.MethodPost, base,
		`{"title":"Rent","amount":"200.00","type":"out","category":"hsg","is_completed":true,"date":"2026-08-02"}`)
	w = doRequest(t, srv, http.MethodGet, dashboard, "")
	if got := decodeBody(t, w)["balance"]; got != "800.00" {
		t.Errorf("balance after write = %v, want 800.00", got)
	}

	if w := doRequest(t, srv, http.MethodGet, "/users/999/dashboard", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown user: status %d, want 404", w.Code)
	}
}

func TestCalendarEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	userID := createUserViaAPI(t, srv, "cal@example.com")
	base := fmt.Sprintf("/users/%d/transactions", userID)

	doRequest(t, srv, http.MethodPost, base,
		`{"title":"Salary","amount":"1000.00","type":"in","category":"sal","is_completed":true,"date":"2026-08-01"}`)
	doRequest(t, srv, http.MethodPost, base,
		`{"title":"Concert","amount":"50.00","type":"out","category":"lsr","date":"2026-08-15"}`)

	// The pinned clock defaults the query to August 2026.
	w := doRequest(t, srv, http.MethodGet, fmt.Sprintf("/users/%d/calendar", userID), "")
	if w.Code != http.StatusOK {
		t.Fatalf("calendar: status %d, body %s", w.Code, w.Body)
	}
	body := decodeBody(t, w)
	if body["year"].(float64) != 2026 || body["month"].(float64) != 8 {
		t.Errorf("defaulted to %v-%v, want 2026-8", body["year"], body["month"])
	}
	days := body["days"].([]any)
	if len(days) != 2 {
		t.Fatalf("got %d active days, want 2", len(days))
	}
	first := days[0].(map[string]any)
	if first["day"].(float64) != 1 || first["completed"].(float64) != 1 {
		t.Errorf("day[0] = %v, want day 1 completed 1", first)
	}

	// A month without activity returns an empty array, not null.
	w = doRequest(t, srv, http.MethodGet, fmt.Sprintf("/users/%d/calendar?year=2026&month=1", userID), "")
	if got := strings.TrimSpace(w.Body.String()); !strings.Contains(got, `"days":[]`) {
		t.Errorf("empty month body = %s, want empty days array", got)
	}

	if w := doRequest(t, srv, http.MethodGet, fmt.Sprintf("/users/%d/calendar?month=13", userID), ""); w.Code != http.StatusBadRequest {
		t.Errorf("month 13: status %d, want 400", w.Code)
	}
	if w := doRequest(t, srv, http.MethodGet, "/users/999/calendar", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown user: status %d, want 404", w.Code)
	}
}

func TestMutationRateLimit(t *testing.T) {
	srv, _ := newTestServer(t)

	var limited bool
	for i := 0; i < 130; i++ {
		w := doRequest(t, srv, http.MethodPost, "/users", `{"email":"","name":""}`)
		if w.Code == http.StatusTooManyRequests {
			limited = true
			if w.Header().Get("Retry-After") == "" {
				t.Errorf("429 must carry Retry-After")
			}
			break
		}
	}
	if !limited {
		t.Errorf("mutations were never rate limited")
	}

	// Reads stay unlimited.
	w := doRequest(t, srv, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Errorf("read after limit: status %d, want 200", w.Code)
	}
}
