package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyName        = errors.New("empty name")
	ErrInvalidDate      = errors.New("invalid date")
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
)

// Money is an amount in integer cents. All arithmetic stays in cents;
// floats appear only at the formatting edge.
type Money struct {
	Cents int64
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Units returns the major-unit value as a float64 for display purposes only.
func (m Money) Units() float64 {
	return float64(m.Cents) / 100.0
}

// MonthKey addresses one calendar month of one user's ledger.
type MonthKey struct {
	Year  int
	Month int
}

func MonthKeyOf(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: int(t.Month())}
}

// String renders the canonical "YYYY-MM" form used as the budgets key.
func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, k.Month)
}

func (k MonthKey) Validate() error {
	if k.Month < 1 || k.Month > 12 {
		return ErrInvalidMonth
	}
	if k.Year < 1970 || k.Year > 9999 {
		return ErrInvalidMonth
	}
	return nil
}

// Bounds returns the half-open UTC interval [start, end) covering the month.
func (k MonthKey) Bounds() (time.Time, time.Time) {
	start := time.Date(k.Year, time.Month(k.Month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// Prev returns the preceding calendar month.
func (k MonthKey) Prev() MonthKey {
	if k.Month == 1 {
		return MonthKey{Year: k.Year - 1, Month: 12}
	}
	return MonthKey{Year: k.Year, Month: k.Month - 1}
}

// Next returns the following calendar month.
func (k MonthKey) Next() MonthKey {
	if k.Month == 12 {
		return MonthKey{Year: k.Year + 1, Month: 1}
	}
	return MonthKey{Year: k.Year, Month: k.Month + 1}
}

// ParseMonthKey parses the canonical "YYYY-MM" form.
func ParseMonthKey(s string) (MonthKey, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return MonthKey{}, ErrInvalidMonth
	}
	return MonthKeyOf(t), nil
}

// User is an account. Credentials are a bcrypt hash; the application never
// stores plaintext passwords.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Category labels expenses. A nil UserID marks a system default visible to
// every user; otherwise the row belongs to exactly one user.
type Category struct {
	ID        int64
	Name      string
	Icon      string
	Color     string
	SortOrder int
	UserID    *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 60 {
		return errors.New("name too long (max 60 characters)")
	}
	return nil
}

// IsDefault reports whether the category is a shared system default.
func (c Category) IsDefault() bool {
	return c.UserID == nil
}

// Expense is a single spending record owned by one user. CategoryID may be
// nil; aggregation folds such rows into the Uncategorized pseudo-category.
type Expense struct {
	ID            int64
	UserID        int64
	CategoryID    *int64
	Amount        Money
	Currency      string
	Date          time.Time
	Description   string
	Notes         string
	PaymentMethod string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (e Expense) Validate() error {
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if len(e.Notes) > 1000 {
		return errors.New("notes too long (max 1000 characters)")
	}
	return e.Amount.Validate()
}

// Month returns the calendar month the expense falls into.
func (e Expense) Month() MonthKey {
	return MonthKeyOf(e.Date)
}

// Budget is one user's spending ceiling for one month. (UserID, Month) is
// unique; SetBudget upserts against that key.
type Budget struct {
	ID        int64
	UserID    int64
	Month     MonthKey
	Amount    Money
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (b Budget) Validate() error {
	if err := b.Month.Validate(); err != nil {
		return err
	}
	return b.Amount.Validate()
}

// ExpenseFilter narrows an expense listing. Zero values mean "no constraint".
// Search is special: it is applied after retrieval, over the already-paginated
// page (see ApplySearch).
type ExpenseFilter struct {
	Search         string
	From           time.Time
	To             time.Time
	CategoryIDs    []int64
	PaymentMethods []string
	MinCents       int64
	MaxCents       int64
	Page           int
	PageSize       int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps paging values into their allowed ranges.
func (f *ExpenseFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
}

// ExpensePage is one page of a filtered listing plus pagination bookkeeping.
// TotalCount and TotalPages reflect the server-side predicates only; when a
// text search trims the page afterwards they are approximate.
type ExpensePage struct {
	Expenses   []Expense
	TotalCount int
	Page       int
	PageSize   int
	TotalPages int
}

// MonthOverview is the aggregate view the dashboard renders for one month.
type MonthOverview struct {
	Month      MonthKey
	Total      Money
	Budget     *Budget
	ByCategory []CategoryTotal
	Recent     []Expense
}
