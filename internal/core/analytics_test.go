package core

import (
	"testing"
	"time"
)

func catPtr(id int64) *int64 { return &id }

func testCategories() map[int64]Category {
	return map[int64]Category{
		1: {ID: 1, Name: "Food", Icon: "🍔", Color: "#e07a5f"},
		2: {ID: 2, Name: "Shopping", Icon: "🛍️", Color: "#3d405b"},
		3: {ID: 3, Name: "Transport", Icon: "🚌", Color: "#81b29a"},
	}
}

func TestAggregateByCategory(t *testing.T) {
	date := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	expenses := []Expense{
		{CategoryID: catPtr(1), Amount: Money{Cents: 4550}, Date: date},
		{CategoryID: catPtr(2), Amount: Money{Cents: 8900}, Date: date},
	}

	groups := AggregateByCategory(expenses, testCategories())
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Name != "Shopping" || groups[0].Total.Cents != 8900 {
		t.Fatalf("expected Shopping/8900 first, got %s/%d", groups[0].Name, groups[0].Total.Cents)
	}
	if groups[1].Name != "Food" || groups[1].Total.Cents != 4550 {
		t.Fatalf("expected Food/4550 second, got %s/%d", groups[1].Name, groups[1].Total.Cents)
	}

	var sum int64
	for _, g := range groups {
		sum += g.Total.Cents
	}
	if sum != 13450 {
		t.Fatalf("group totals sum to %d, want 13450", sum)
	}
}

func TestAggregateByCategorySumEqualsTotal(t *testing.T) {
	date := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	expenses := []Expense{
		{CategoryID: catPtr(1), Amount: Money{Cents: 1250}, Date: date},
		{CategoryID: catPtr(1), Amount: Money{Cents: 310}, Date: date},
		{CategoryID: catPtr(3), Amount: Money{Cents: 990}, Date: date},
		{CategoryID: nil, Amount: Money{Cents: 75}, Date: date},
		{CategoryID: catPtr(99), Amount: Money{Cents: 25}, Date: date}, // dangling ref
	}

	var total int64
	for _, e := range expenses {
		total += e.Amount.Cents
	}

	groups := AggregateByCategory(expenses, testCategories())
	var sum int64
	var uncategorized int64
	for _, g := range groups {
		sum += g.Total.Cents
		if g.Name == UncategorizedName {
			uncategorized = g.Total.Cents
		}
	}
	if sum != total {
		t.Fatalf("group totals sum to %d, want month total %d", sum, total)
	}
	// nil reference and dangling reference both land in Uncategorized
	if uncategorized != 100 {
		t.Fatalf("uncategorized total = %d, want 100", uncategorized)
	}
}

func TestAggregateByCategoryEmpty(t *testing.T) {
	if groups := AggregateByCategory(nil, testCategories()); len(groups) != 0 {
		t.Fatalf("expected no groups for empty input, got %d", len(groups))
	}
}

func TestComputeBudgetStatus(t *testing.T) {
	cases := []struct {
		name       string
		total      int64
		budget     int64
		percent    float64
		barPercent int
		remaining  int64
		exceeded   bool
	}{
		{"under budget", 5000, 10000, 50, 50, 5000, false},
		{"exactly on budget", 10000, 10000, 100, 100, 0, false},
		{"over budget unclamped", 13450, 10000, 134.5, 100, -3450, true},
		{"no budget", 5000, 0, 0, 0, -5000, true},
		{"no spend", 0, 10000, 0, 0, 10000, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := ComputeBudgetStatus(Money{Cents: tc.total}, Money{Cents: tc.budget})
			if st.Percent != tc.percent {
				t.Fatalf("Percent = %v, want %v", st.Percent, tc.percent)
			}
			if st.BarPercent != tc.barPercent {
				t.Fatalf("BarPercent = %d, want %d", st.BarPercent, tc.barPercent)
			}
			if st.Remaining.Cents != tc.remaining {
				t.Fatalf("Remaining = %d, want %d", st.Remaining.Cents, tc.remaining)
			}
			if st.Exceeded != tc.exceeded {
				t.Fatalf("Exceeded = %v, want %v", st.Exceeded, tc.exceeded)
			}
		})
	}
}

func TestPageCount(t *testing.T) {
	cases := []struct {
		total, pageSize, want int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{134, 25, 6},
		{10, 0, 0},
	}
	for _, tc := range cases {
		if got := PageCount(tc.total, tc.pageSize); got != tc.want {
			t.Fatalf("PageCount(%d, %d) = %d, want %d", tc.total, tc.pageSize, got, tc.want)
		}
	}
}

func TestApplySearch(t *testing.T) {
	date := time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC)
	page := []Expense{
		{ID: 1, Description: "Grocery run", CategoryID: catPtr(1), Amount: Money{Cents: 100}, Date: date},
		{ID: 2, Description: "Bus pass", CategoryID: catPtr(3), Amount: Money{Cents: 200}, Date: date},
		{ID: 3, Description: "Misc", Notes: "shopping list for trip", Amount: Money{Cents: 300}, Date: date},
	}
	cats := testCategories()

	if got := ApplySearch(page, cats, ""); len(got) != 3 {
		t.Fatalf("empty query should keep all rows, got %d", len(got))
	}
	if got := ApplySearch(page, cats, "GROCERY"); len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("description match failed: %+v", got)
	}
	if got := ApplySearch(page, cats, "transport"); len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("category-name match failed: %+v", got)
	}
	if got := ApplySearch(page, cats, "shopping"); len(got) != 1 || got[0].ID != 3 {
		t.Fatalf("notes match failed: %+v", got)
	}
	if got := ApplySearch(page, cats, "nothing-matches"); len(got) != 0 {
		t.Fatalf("expected no matches, got %d", len(got))
	}
}
