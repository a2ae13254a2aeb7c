package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"tally/internal/core"
)

type RepositorySuite struct {
	suite.Suite
	repo *Repository
	ctx  context.Context

	alice *core.User
	bob   *core.User
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupTest() {
	var err error
	s.repo, err = New(filepath.Join(s.T().TempDir(), "test.db"))
	require.NoError(s.T(), err)
	s.ctx = context.Background()

	s.alice, err = s.repo.CreateUser(s.ctx, "alice", "hash-a")
	require.NoError(s.T(), err)
	s.bob, err = s.repo.CreateUser(s.ctx, "bob", "hash-b")
	require.NoError(s.T(), err)
}

func (s *RepositorySuite) TearDownTest() {
	s.repo.Close()
}

func (s *RepositorySuite) addExpense(userID int64, cents int64, date time.Time, desc string) *core.Expense {
	e, err := s.repo.CreateExpense(s.ctx, core.Expense{
		UserID:      userID,
		Amount:      core.Money{Cents: cents},
		Currency:    "USD",
		Date:        date,
		Description: desc,
	})
	require.NoError(s.T(), err)
	return e
}

func (s *RepositorySuite) TestUsers() {
	u, err := s.repo.GetUserByUsername(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(s.alice.ID, u.ID)
	s.Equal("hash-a", u.PasswordHash)

	_, err = s.repo.GetUserByUsername(s.ctx, "nobody")
	s.ErrorIs(err, core.ErrNotFound)

	n, err := s.repo.UserCount(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
}

func (s *RepositorySuite) TestSessionLifecycle() {
	err := s.repo.CreateSession(s.ctx, "tok-1", s.alice.ID, time.Now().Add(time.Hour))
	s.Require().NoError(err)

	info, err := s.repo.ValidateSession(s.ctx, "tok-1")
	s.Require().NoError(err)
	s.Equal(s.alice.ID, info.User.ID)

	_, err = s.repo.ValidateSession(s.ctx, "no-such-token")
	s.ErrorIs(err, core.ErrUnauthorized)

	s.Require().NoError(s.repo.DeleteSession(s.ctx, "tok-1"))
	_, err = s.repo.ValidateSession(s.ctx, "tok-1")
	s.ErrorIs(err, core.ErrUnauthorized)
}

func (s *RepositorySuite) TestExpiredSessionRejectedAndCleaned() {
	err := s.repo.CreateSession(s.ctx, "tok-old", s.alice.ID, time.Now().Add(-time.Minute))
	s.Require().NoError(err)

	_, err = s.repo.ValidateSession(s.ctx, "tok-old")
	s.ErrorIs(err, core.ErrUnauthorized)

	n, err := s.repo.CleanExpiredSessions(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}

func (s *RepositorySuite) TestExpenseOwnershipIsolation() {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	mine := s.addExpense(s.alice.ID, 4550, day, "groceries")
	theirs := s.addExpense(s.bob.ID, 8900, day, "shoes")

	// Reads across the ownership boundary behave as if the row does not exist.
	_, err := s.repo.GetExpense(s.ctx, s.alice.ID, theirs.ID)
	s.ErrorIs(err, core.ErrNotFound)

	err = s.repo.DeleteExpense(s.ctx, s.alice.ID, theirs.ID)
	s.ErrorIs(err, core.ErrNotFound)

	theirs.UserID = s.alice.ID
	err = s.repo.UpdateExpense(s.ctx, *theirs)
	s.ErrorIs(err, core.ErrNotFound)

	page, err := s.repo.ListExpenses(s.ctx, s.alice.ID, core.ExpenseFilter{})
	s.Require().NoError(err)
	s.Require().Len(page.Expenses, 1)
	s.Equal(mine.ID, page.Expenses[0].ID)

	// Bob's row survived every cross-user attempt.
	got, err := s.repo.GetExpense(s.ctx, s.bob.ID, theirs.ID)
	s.Require().NoError(err)
	s.Equal(int64(8900), got.Amount.Cents)
}

func (s *RepositorySuite) TestListExpensesPagination() {
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		s.addExpense(s.alice.ID, int64(100+i), base.AddDate(0, 0, i), fmt.Sprintf("item %d", i))
	}

	page1, err := s.repo.ListExpenses(s.ctx, s.alice.ID, core.ExpenseFilter{Page: 1, PageSize: 20})
	s.Require().NoError(err)
	s.Len(page1.Expenses, 20)
	s.Equal(25, page1.TotalCount)
	s.Equal(2, page1.TotalPages)
	// Newest first.
	s.Equal("item 24", page1.Expenses[0].Description)

	page2, err := s.repo.ListExpenses(s.ctx, s.alice.ID, core.ExpenseFilter{Page: 2, PageSize: 20})
	s.Require().NoError(err)
	s.Len(page2.Expenses, 5)
	s.Equal("item 0", page2.Expenses[4].Description)

	// No row appears on both pages.
	seen := make(map[int64]bool)
	for _, e := range page1.Expenses {
		seen[e.ID] = true
	}
	for _, e := range page2.Expenses {
		s.False(seen[e.ID], "expense %d on both pages", e.ID)
	}

	// Out-of-range page is empty but keeps the totals.
	page9, err := s.repo.ListExpenses(s.ctx, s.alice.ID, core.ExpenseFilter{Page: 9, PageSize: 20})
	s.Require().NoError(err)
	s.Empty(page9.Expenses)
	s.Equal(25, page9.TotalCount)
}

func (s *RepositorySuite) TestListExpensesFilters() {
	feb := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	cat, err := s.repo.CreateCategory(s.ctx, s.alice.ID, core.Category{Name: "Travel"})
	s.Require().NoError(err)

	small := s.addExpense(s.alice.ID, 500, feb, "coffee")
	big := s.addExpense(s.alice.ID, 25000, mar, "flight")
	big.CategoryID = &cat.ID
	big.PaymentMethod = "card"
	s.Require().NoError(s.repo.UpdateExpense(s.ctx, *big))

	page, err := s.repo.ListExpenses(s.ctx, s.alice.ID, core.ExpenseFilter{
		From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	s.Require().NoError(err)
	s.Require().Len(page.Expenses, 1)
	s.Equal(big.ID, page.Expenses[0].ID)

	page, err = s.repo.ListExpenses(s.ctx, s.alice.ID, core.ExpenseFilter{CategoryIDs: []int64{cat.ID}})
	s.Require().NoError(err)
	s.Require().Len(page.Expenses, 1)
	s.Equal(big.ID, page.Expenses[0].ID)

	page, err = s.repo.ListExpenses(s.ctx, s.alice.ID, core.ExpenseFilter{PaymentMethods: []string{"card"}})
	s.Require().NoError(err)
	s.Len(page.Expenses, 1)

	page, err = s.repo.ListExpenses(s.ctx, s.alice.ID, core.ExpenseFilter{MaxCents: 1000})
	s.Require().NoError(err)
	s.Require().Len(page.Expenses, 1)
	s.Equal(small.ID, page.Expenses[0].ID)

	page, err = s.repo.ListExpenses(s.ctx, s.alice.ID, core.ExpenseFilter{MinCents: 1000, MaxCents: 30000})
	s.Require().NoError(err)
	s.Len(page.Expenses, 1)
}

func (s *RepositorySuite) TestBulkDeleteSkipsForeignRows() {
	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	a1 := s.addExpense(s.alice.ID, 100, day, "one")
	a2 := s.addExpense(s.alice.ID, 200, day, "two")
	b1 := s.addExpense(s.bob.ID, 300, day, "theirs")

	n, err := s.repo.DeleteExpenses(s.ctx, s.alice.ID, []int64{a1.ID, a2.ID, b1.ID})
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	_, err = s.repo.GetExpense(s.ctx, s.bob.ID, b1.ID)
	s.NoError(err)
}

func (s *RepositorySuite) TestCategoryVisibilityAndOwnership() {
	cats, err := s.repo.ListCategories(s.ctx, s.alice.ID)
	s.Require().NoError(err)
	s.NotEmpty(cats, "seeded defaults should be visible")
	for _, c := range cats {
		s.True(c.IsDefault())
	}

	mine, err := s.repo.CreateCategory(s.ctx, s.alice.ID, core.Category{Name: "Hobby"})
	s.Require().NoError(err)
	s.False(mine.IsDefault())

	// Bob sees defaults but not Alice's category.
	bobCats, err := s.repo.ListCategories(s.ctx, s.bob.ID)
	s.Require().NoError(err)
	s.Len(bobCats, len(cats))

	_, err = s.repo.GetCategory(s.ctx, s.bob.ID, mine.ID)
	s.ErrorIs(err, core.ErrNotFound)

	// Defaults are not mutable through the user-scoped writes.
	def := cats[0]
	def.Name = "renamed"
	s.ErrorIs(s.repo.UpdateCategory(s.ctx, s.alice.ID, def), core.ErrNotFound)
	s.ErrorIs(s.repo.DeleteCategory(s.ctx, s.alice.ID, cats[0].ID), core.ErrNotFound)
}

func (s *RepositorySuite) TestDeleteCategoryOrphansExpenses() {
	cat, err := s.repo.CreateCategory(s.ctx, s.alice.ID, core.Category{Name: "Doomed"})
	s.Require().NoError(err)

	e := s.addExpense(s.alice.ID, 1500, time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC), "labelled")
	e.CategoryID = &cat.ID
	s.Require().NoError(s.repo.UpdateExpense(s.ctx, *e))

	s.Require().NoError(s.repo.DeleteCategory(s.ctx, s.alice.ID, cat.ID))

	got, err := s.repo.GetExpense(s.ctx, s.alice.ID, e.ID)
	s.Require().NoError(err)
	s.Nil(got.CategoryID, "expense should fall back to uncategorized")
}

func (s *RepositorySuite) TestBudgetUpsertIdempotent() {
	month := core.MonthKey{Year: 2026, Month: 6}

	_, err := s.repo.GetBudget(s.ctx, s.alice.ID, month)
	s.ErrorIs(err, core.ErrNotFound)

	first, err := s.repo.SetBudget(s.ctx, s.alice.ID, month, core.Money{Cents: 10000})
	s.Require().NoError(err)
	s.Equal(int64(10000), first.Amount.Cents)

	// Re-submitting replaces the amount without growing the table.
	second, err := s.repo.SetBudget(s.ctx, s.alice.ID, month, core.Money{Cents: 12500})
	s.Require().NoError(err)
	s.Equal(int64(12500), second.Amount.Cents)
	s.Equal(first.ID, second.ID)

	// Same month for another user is an independent row.
	other, err := s.repo.SetBudget(s.ctx, s.bob.ID, month, core.Money{Cents: 9999})
	s.Require().NoError(err)
	s.NotEqual(first.ID, other.ID)

	mine, err := s.repo.GetBudget(s.ctx, s.alice.ID, month)
	s.Require().NoError(err)
	s.Equal(int64(12500), mine.Amount.Cents)
}

func (s *RepositorySuite) TestMonthTotalAndSummaries() {
	may := core.MonthKey{Year: 2026, Month: 5}
	s.addExpense(s.alice.ID, 4550, time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC), "groceries")
	s.addExpense(s.alice.ID, 8900, time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC), "shoes")
	s.addExpense(s.alice.ID, 777, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), "next month")
	s.addExpense(s.bob.ID, 5000, time.Date(2026, 5, 9, 0, 0, 0, 0, time.UTC), "other user")

	total, err := s.repo.GetMonthTotal(s.ctx, s.alice.ID, may)
	s.Require().NoError(err)
	s.Equal(int64(13450), total.Cents)

	stale, err := s.repo.ListStaleSummaries(s.ctx, 50)
	s.Require().NoError(err)
	s.Len(stale, 3, "two alice months plus one bob month lack summaries")

	for _, st := range stale {
		s.Require().NoError(s.repo.RecomputeMonthSummary(s.ctx, st.UserID, st.Month))
	}

	sum, err := s.repo.GetMonthSummary(s.ctx, s.alice.ID, may)
	s.Require().NoError(err)
	s.Equal(int64(13450), sum.Total.Cents)
	s.Equal(2, sum.ExpenseCount)

	stale, err = s.repo.ListStaleSummaries(s.ctx, 50)
	s.Require().NoError(err)
	assert.Empty(s.T(), stale)
}

func (s *RepositorySuite) TestEmptiedMonthSummaryHeals() {
	may := core.MonthKey{Year: 2026, Month: 5}
	e := s.addExpense(s.alice.ID, 4550, time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC), "groceries")
	s.Require().NoError(s.repo.RecomputeMonthSummary(s.ctx, s.alice.ID, may))

	// Delete the month's only expense without a follow-up recompute, as if
	// the change event never arrived.
	s.Require().NoError(s.repo.DeleteExpense(s.ctx, s.alice.ID, e.ID))

	stale, err := s.repo.ListStaleSummaries(s.ctx, 50)
	s.Require().NoError(err)
	s.Require().Len(stale, 1)
	s.Equal(s.alice.ID, stale[0].UserID)
	s.Equal(may, stale[0].Month)

	s.Require().NoError(s.repo.RecomputeMonthSummary(s.ctx, s.alice.ID, may))
	sum, err := s.repo.GetMonthSummary(s.ctx, s.alice.ID, may)
	s.Require().NoError(err)
	s.Zero(sum.Total.Cents)
	s.Zero(sum.ExpenseCount)

	stale, err = s.repo.ListStaleSummaries(s.ctx, 50)
	s.Require().NoError(err)
	s.Empty(stale)
}
