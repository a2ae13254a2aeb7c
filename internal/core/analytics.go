package core

import (
	"math"
	"sort"
	"strings"
)

// UncategorizedName labels the pseudo-category that collects expenses whose
// category reference is missing or dangling.
const UncategorizedName = "Uncategorized"

// CategoryTotal is one group of the per-category breakdown. CategoryID 0
// marks the Uncategorized pseudo-category.
type CategoryTotal struct {
	CategoryID int64
	Name       string
	Icon       string
	Color      string
	Total      Money
	Count      int
}

// AggregateByCategory groups expenses by category, sums cents per group, and
// returns groups sorted by descending total. The sort is stable; no other
// tie-break applies. The sum of all group totals equals the sum over the
// input set.
func AggregateByCategory(expenses []Expense, categories map[int64]Category) []CategoryTotal {
	groups := make(map[int64]*CategoryTotal)
	var order []int64

	for _, e := range expenses {
		var id int64
		if e.CategoryID != nil {
			if _, ok := categories[*e.CategoryID]; ok {
				id = *e.CategoryID
			}
		}
		g, ok := groups[id]
		if !ok {
			g = &CategoryTotal{CategoryID: id, Name: UncategorizedName}
			if c, ok := categories[id]; ok && id != 0 {
				g.Name = c.Name
				g.Icon = c.Icon
				g.Color = c.Color
			}
			groups[id] = g
			order = append(order, id)
		}
		g.Total.Cents += e.Amount.Cents
		g.Count++
	}

	out := make([]CategoryTotal, 0, len(order))
	for _, id := range order {
		out = append(out, *groups[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total.Cents > out[j].Total.Cents
	})
	return out
}

// BudgetStatus is the derived view of one month against its budget.
// Percent is never clamped; BarPercent is, for progress-bar rendering only.
type BudgetStatus struct {
	Percent    float64
	BarPercent int
	Remaining  Money
	Exceeded   bool
}

// ComputeBudgetStatus derives percentage and remaining from a month total and
// a budget amount. Remaining may be negative and is reported as-is.
func ComputeBudgetStatus(total, budget Money) BudgetStatus {
	st := BudgetStatus{Remaining: Money{Cents: budget.Cents - total.Cents}}
	if budget.Cents > 0 {
		st.Percent = float64(total.Cents) / float64(budget.Cents) * 100
	}
	bar := int(math.Round(st.Percent))
	if bar > 100 {
		bar = 100
	}
	if bar < 0 {
		bar = 0
	}
	st.BarPercent = bar
	st.Exceeded = st.Remaining.Cents < 0
	return st
}

// PageCount returns ceil(total / pageSize). Zero or negative inputs yield 0.
func PageCount(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// ApplySearch filters an already-retrieved page by a case-insensitive text
// match against description, notes, and category name. Running after
// pagination makes the page's reported totals approximate when a search term
// is present; that matches the listing contract (ExpensePage).
func ApplySearch(expenses []Expense, categories map[int64]Category, query string) []Expense {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return expenses
	}
	out := make([]Expense, 0, len(expenses))
	for _, e := range expenses {
		if strings.Contains(strings.ToLower(e.Description), q) ||
			strings.Contains(strings.ToLower(e.Notes), q) {
			out = append(out, e)
			continue
		}
		if e.CategoryID != nil {
			if c, ok := categories[*e.CategoryID]; ok &&
				strings.Contains(strings.ToLower(c.Name), q) {
				out = append(out, e)
			}
		}
	}
	return out
}
