package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

const maxBodyBytes = 64 << 10

// amountString accepts the amount both as a JSON string and as a bare
// number, so "10.50" and 10.50 parse the same way.
type amountString string

func (a *amountString) UnmarshalJSON(b []byte) error {
	*a = amountString(strings.Trim(string(b), `"`))
	return nil
}

type createUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type createTransactionRequest struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Amount      amountString `json:"amount"`
	Type        string       `json:"type"`
	Category    string       `json:"category"`
	IsCompleted bool         `json:"is_completed"`
	Date        string       `json:"date"`
}

// updateTransactionRequest carries a partial update: absent fields keep
// their stored values.
type updateTransactionRequest struct {
	Title       *string       `json:"title"`
	Description *string       `json:"description"`
	Amount      *amountString `json:"amount"`
	Type        *string       `json:"type"`
	Category    *string       `json:"category"`
	IsCompleted *bool         `json:"is_completed"`
	Date        *string       `json:"date"`
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (req createTransactionRequest) toTransaction(userID int64) (core.Transaction, error) {
	amount, err := core.ParseAmount(string(req.Amount))
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := core.ParseDate(req.Date)
	if err != nil {
		return core.Transaction{}, core.ErrZeroDate
	}
	return core.Transaction{
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		Amount:      amount,
		Type:        core.Type(strings.ToUpper(strings.TrimSpace(req.Type))),
		Category:    core.Category(strings.ToUpper(strings.TrimSpace(req.Category))),
		IsCompleted: req.IsCompleted,
		Date:        date,
	}, nil
}

func (req updateTransactionRequest) toUpdate() (services.TransactionUpdate, error) {
	var upd services.TransactionUpdate
	upd.Title = req.Title
	upd.Description = req.Description
	upd.IsCompleted = req.IsCompleted

	if req.Amount != nil {
		amount, err := core.ParseAmount(string(*req.Amount))
		if err != nil {
			return services.TransactionUpdate{}, err
		}
		upd.Amount = &amount
	}
	if req.Type != nil {
		t := core.Type(strings.ToUpper(strings.TrimSpace(*req.Type)))
		upd.Type = &t
	}
	if req.Category != nil {
		c := core.Category(strings.ToUpper(strings.TrimSpace(*req.Category)))
		upd.Category = &c
	}
	if req.Date != nil {
		d, err := core.ParseDate(*req.Date)
		if err != nil {
			return services.TransactionUpdate{}, core.ErrZeroDate
		}
		upd.Date = &d
	}
	return upd, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// parseTransactionFilter reads listing filters from the query string.
// Unknown values are rejected rather than silently dropped.
func parseTransactionFilter(query url.Values) (services.TransactionFilter, error) {
	var f services.TransactionFilter

	f.Search = strings.TrimSpace(query.Get("search"))

	if v := strings.TrimSpace(query.Get("period")); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || !validPeriod(days) {
			return f, fmt.Errorf("invalid period %q", v)
		}
		if query.Get("from") != "" || query.Get("to") != "" {
			return f, fmt.Errorf("period cannot be combined with from/to")
		}
		today := core.DateOf(timeNow())
		f.From = today.AddDays(-(days - 1))
		f.To = today
	}

	if v := strings.TrimSpace(query.Get("from")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return f, fmt.Errorf("invalid from date %q", v)
		}
		f.From = d
	}
	if v := strings.TrimSpace(query.Get("to")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return f, fmt.Errorf("invalid to date %q", v)
		}
		f.To = d
	}

	for _, raw := range splitList(query["type"]) {
		t := core.Type(strings.ToUpper(raw))
		if !t.Valid() {
			return f, fmt.Errorf("invalid type %q", raw)
		}
		f.Types = append(f.Types, t)
	}
	for _, raw := range splitList(query["category"]) {
		c := core.Category(strings.ToUpper(raw))
		if !c.Valid() {
			return f, fmt.Errorf("invalid category %q", raw)
		}
		f.Categories = append(f.Categories, c)
	}

	if v := strings.TrimSpace(query.Get("completed")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid completed flag %q", v)
		}
		f.Completed = &b
	}

	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = n
	}
	if v := strings.TrimSpace(query.Get("offset")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid offset %q", v)
		}
		f.Offset = n
	}

	return f, nil
}

// validPeriod limits the period preset to the offered windows.
func validPeriod(days int) bool {
	switch days {
	case 7, 15, 30, 45, 60:
		return true
	}
	return false
}

// splitList flattens repeated params and comma-separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// parseMonthParams extracts year and month from the query, defaulting to
// the current month.
func parseMonthParams(query url.Values) (year, month int, err error) {
	now := timeNow()
	year, month = now.Year(), int(now.Month())

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		year, err = strconv.Atoi(v)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid year %q", v)
		}
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		month, err = strconv.Atoi(v)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid month %q", v)
		}
	}
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("invalid month %d", month)
	}
	return year, month, nil
}
