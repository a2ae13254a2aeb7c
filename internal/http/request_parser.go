// Form and query parsing helpers. Everything user-typed passes through
// sanitizeInput before it reaches the domain layer.
package http

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"tally/internal/core"
)

// ParseMonthParam reads a "month" value in YYYY-MM form, defaulting to the
// current month when absent or malformed.
func ParseMonthParam(values url.Values) core.MonthKey {
	if v := strings.TrimSpace(values.Get("month")); v != "" {
		if k, err := core.ParseMonthKey(v); err == nil && k.Validate() == nil {
			return k
		}
	}
	return core.MonthKeyOf(time.Now())
}

// ParseExpenseFilter builds a listing filter from query parameters. Unusable
// values fall back to the unconstrained default rather than erroring; a bad
// filter in the URL should never break the page.
func ParseExpenseFilter(values url.Values) core.ExpenseFilter {
	f := core.ExpenseFilter{
		Search: sanitizeInput(values.Get("q")),
	}

	if v := strings.TrimSpace(values.Get("from")); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			f.From = t
		}
	}
	if v := strings.TrimSpace(values.Get("to")); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			// Inclusive end date; the query uses a half-open bound.
			f.To = t.AddDate(0, 0, 1)
		}
	}
	for _, v := range values["category"] {
		if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && id > 0 {
			f.CategoryIDs = append(f.CategoryIDs, id)
		}
	}
	for _, v := range values["payment"] {
		if m := sanitizeInput(v); m != "" {
			f.PaymentMethods = append(f.PaymentMethods, m)
		}
	}
	if v := strings.TrimSpace(values.Get("min")); v != "" {
		if cents, err := core.ParseDecimalToCents(v); err == nil {
			f.MinCents = cents
		}
	}
	if v := strings.TrimSpace(values.Get("max")); v != "" {
		if cents, err := core.ParseDecimalToCents(v); err == nil {
			f.MaxCents = cents
		}
	}
	if v := strings.TrimSpace(values.Get("page")); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			f.Page = p
		}
	}
	if v := strings.TrimSpace(values.Get("page_size")); v != "" {
		if ps, err := strconv.Atoi(v); err == nil {
			f.PageSize = ps
		}
	}

	f.Normalize()
	return f
}

// ParseExpenseForm maps an expense form onto a domain expense. Validation
// happens in the domain; this only converts representations.
func ParseExpenseForm(form url.Values, userID int64) (core.Expense, error) {
	e := core.Expense{
		UserID:        userID,
		Currency:      "USD",
		Description:   sanitizeInput(form.Get("description")),
		Notes:         sanitizeInput(form.Get("notes")),
		PaymentMethod: sanitizeInput(form.Get("payment_method")),
	}

	cents, err := core.ParseDecimalToCents(form.Get("amount"))
	if err != nil {
		return core.Expense{}, err
	}
	e.Amount = core.Money{Cents: cents}

	if v := strings.TrimSpace(form.Get("date")); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return core.Expense{}, core.ErrInvalidDate
		}
		e.Date = t
	} else {
		e.Date = time.Now().UTC().Truncate(24 * time.Hour)
	}

	if v := strings.TrimSpace(form.Get("category_id")); v != "" && v != "0" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return core.Expense{}, core.ErrNotFound
		}
		e.CategoryID = &id
	}

	if v := strings.TrimSpace(form.Get("currency")); v != "" {
		e.Currency = strings.ToUpper(sanitizeInput(v))
	}

	return e, nil
}

// ParseIDList parses a comma-separated or repeated "id" parameter.
func ParseIDList(values url.Values) []int64 {
	var ids []int64
	raw := values["id"]
	if joined := values.Get("ids"); joined != "" {
		raw = append(raw, strings.Split(joined, ",")...)
	}
	for _, v := range raw {
		if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// sanitizeInput trims whitespace and strips control characters except tab,
// newline, and carriage return.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
