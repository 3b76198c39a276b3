package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  Type = "IN"
	Expense Type = "OUT"
)

const (
	CategoryFood       Category = "FOD"
	CategoryTransport  Category = "TRN"
	CategoryHousing    Category = "HSG"
	CategoryHealth     Category = "HLT"
	CategoryEducation  Category = "EDU"
	CategoryLeisure    Category = "LSR"
	CategoryShopping   Category = "SHP"
	CategorySalary     Category = "SAL"
	CategoryInvestment Category = "INV"
	CategoryOther      Category = "OTH"
)

const (
	StatusPaid      Status = "Paid/Received"
	StatusScheduled Status = "Scheduled"
	StatusPending   Status = "Pending"
)

type (
	// Type is the direction of a transaction, stored as a short code.
	Type string

	// Category is a closed set of classification tags, stored as a short code.
	Category string

	// Status is derived from the completion flag and the transaction date.
	Status string

	// Date is a calendar date at UTC midnight. Transactions may be dated in
	// the past, present or future.
	Date struct {
		time.Time
	}

	// Transaction is a single income or expense record owned by one user.
	Transaction struct {
		ID          int64     `json:"id"`
		UserID      int64     `json:"user_id"`
		Title       string    `json:"title"`
		Description string    `json:"description,omitempty"`
		Amount      Money     `json:"amount"`
		Type        Type      `json:"type"`
		Category    Category  `json:"category"`
		IsCompleted bool      `json:"is_completed"`
		Date        Date      `json:"date"`
		Version     int64     `json:"version"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
	}

	// User owns transactions and carries the cached running balance. The
	// balance is mutated only by the ledger service and always equals the sum
	// of signed amounts of the user's completed transactions.
	User struct {
		ID        int64     `json:"id"`
		Email     string    `json:"email"`
		Name      string    `json:"name"`
		Balance   Money     `json:"balance"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	// CategoryTotal is an amount aggregated per category.
	CategoryTotal struct {
		Category Category `json:"category"`
		Total    Money    `json:"total"`
	}

	// DayActivity counts completed and pending transactions on one day of a
	// month.
	DayActivity struct {
		Day       int `json:"day"`
		Completed int `json:"completed"`
		Pending   int `json:"pending"`
	}
)

var (
	ErrEmptyTitle         = errors.New("empty title")
	ErrTitleTooLong       = errors.New("title too long (max 120 characters)")
	ErrDescriptionTooLong = errors.New("description too long (max 255 characters)")
	ErrInvalidType        = errors.New("invalid transaction type")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrZeroDate           = errors.New("date cannot be zero")
	ErrEmptyEmail         = errors.New("empty email")
)

var typeLabels = map[Type]string{
	Income:  "Income",
	Expense: "Expense",
}

// categoryOrder keeps Categories() output stable for display and grouping.
var categoryOrder = []Category{
	CategoryFood,
	CategoryTransport,
	CategoryHousing,
	CategoryHealth,
	CategoryEducation,
	CategoryLeisure,
	CategoryShopping,
	CategorySalary,
	CategoryInvestment,
	CategoryOther,
}

var categoryLabels = map[Category]string{
	CategoryFood:       "Food",
	CategoryTransport:  "Transport",
	CategoryHousing:    "Housing",
	CategoryHealth:     "Health",
	CategoryEducation:  "Education",
	CategoryLeisure:    "Leisure",
	CategoryShopping:   "Shopping",
	CategorySalary:     "Salary",
	CategoryInvestment: "Investment",
	CategoryOther:      "Other",
}

// Valid reports whether t is one of the two known transaction types.
func (t Type) Valid() bool {
	_, ok := typeLabels[t]
	return ok
}

// Label returns the display label for the type code.
func (t Type) Label() string {
	return typeLabels[t]
}

// Valid reports whether c is one of the known category codes.
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the display label for the category code.
func (c Category) Label() string {
	return categoryLabels[c]
}

// Categories returns all known categories in display order.
func Categories() []Category {
	out := make([]Category, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to a calendar date at UTC midnight.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses an ISO yyyy-mm-dd string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// AddDays returns the date shifted by n calendar days.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// Day returns the day of the month.
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month as an int (1-12).
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year.
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) String() string {
	return d.Time.Format("2006-01-02")
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	return nil
}

// MarshalJSON encodes the date as "yyyy-mm-dd".
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes a "yyyy-mm-dd" string.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// SignedAmount applies the transaction direction to the amount: positive for
// income, negative for expense.
func (t Transaction) SignedAmount() Money {
	if t.Type == Income {
		return t.Amount
	}
	return t.Amount.Neg()
}

// Status derives the display status from the completion flag and the date.
func (t Transaction) Status(today Date) Status {
	if t.IsCompleted {
		return StatusPaid
	}
	if t.Date.After(today.Time) {
		return StatusScheduled
	}
	return StatusPending
}

func (t Transaction) Validate() error {
	title := strings.TrimSpace(t.Title)
	if title == "" {
		return ErrEmptyTitle
	}
	if len(t.Title) > 120 {
		return ErrTitleTooLong
	}
	if len(t.Description) > 255 {
		return ErrDescriptionTooLong
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if !t.Category.Valid() {
		return ErrInvalidCategory
	}
	return t.Date.Validate()
}

func (u User) Validate() error {
	if strings.TrimSpace(u.Email) == "" {
		return ErrEmptyEmail
	}
	return nil
}
