package http

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"

	"tally/internal/core"
)

// handleListExpenses renders the filtered, paginated expense list.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	filter := ParseExpenseFilter(r.URL.Query())

	page, err := s.svc.ListExpenses(r.Context(), user.ID, filter)
	if err != nil {
		slog.ErrorContext(r.Context(), "expense listing failed",
			"user_id", user.ID, "error", err)
		InternalServerError("Could not load expenses").Write(w)
		return
	}

	cats, err := s.repo.CategoriesByID(r.Context(), user.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "category lookup failed", "error", err)
		InternalServerError("Could not load categories").Write(w)
		return
	}

	rows := make([]expenseRow, 0, len(page.Expenses))
	for _, e := range page.Expenses {
		rows = append(rows, buildExpenseRow(e, cats))
	}

	data := map[string]any{
		"Username":   user.Username,
		"Rows":       rows,
		"Cats":       sortedCategories(cats),
		"Query":      filter.Search,
		"Page":       page.Page,
		"PageSize":   page.PageSize,
		"TotalCount": page.TotalCount,
		"TotalPages": page.TotalPages,
		"HasPrev":    page.Page > 1,
		"HasNext":    page.Page < page.TotalPages,
		"PrevPage":   page.Page - 1,
		"NextPage":   page.Page + 1,
	}

	// HTMX refreshes swap just the table.
	if r.Header.Get("HX-Request") == "true" {
		s.render(w, r, "expense_table.html", data)
		return
	}
	s.render(w, r, "expenses.html", data)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if err := r.ParseForm(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	expense, err := ParseExpenseForm(r.Form, user.ID)
	if err != nil {
		UnprocessableEntityError("Invalid amount or date").Write(w)
		return
	}

	created, err := s.svc.CreateExpense(r.Context(), expense)
	if err != nil {
		if isValidationError(err) {
			UnprocessableEntityError(err.Error()).Write(w)
			return
		}
		slog.ErrorContext(r.Context(), "expense creation failed",
			"user_id", user.ID, "error", err)
		InternalServerError("Could not save the expense").Write(w)
		return
	}

	month := created.Month()
	s.invalidateOverview(user.ID, month)

	NewHTMXResponse().
		TriggerExpenseChanged(month.String()).
		TriggerFormReset().
		TriggerSuccessNotification("Expense recorded").
		BodyHTML(`<div class="success">Saved: ` +
			template.HTMLEscapeString(created.Description) +
			` (` + core.FormatCents(created.Amount.Cents) + `)</div>`).
		Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		NotFoundError("Expense not found").Write(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	// Months to refresh: the one the expense left and the one it entered.
	old, err := s.svc.Repo().GetExpense(r.Context(), user.ID, id)
	if err != nil {
		NotFoundError("Expense not found").Write(w)
		return
	}

	expense, err := ParseExpenseForm(r.Form, user.ID)
	if err != nil {
		UnprocessableEntityError("Invalid amount or date").Write(w)
		return
	}
	expense.ID = id

	if err := s.svc.UpdateExpense(r.Context(), expense); err != nil {
		switch {
		case errors.Is(err, core.ErrNotFound):
			NotFoundError("Expense not found").Write(w)
		case isValidationError(err):
			UnprocessableEntityError(err.Error()).Write(w)
		default:
			slog.ErrorContext(r.Context(), "expense update failed",
				"user_id", user.ID, "expense_id", id, "error", err)
			InternalServerError("Could not update the expense").Write(w)
		}
		return
	}

	s.invalidateOverview(user.ID, old.Month())
	s.invalidateOverview(user.ID, expense.Month())

	NewHTMXResponse().
		TriggerExpenseChanged(expense.Month().String()).
		TriggerSuccessNotification("Expense updated").
		Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		NotFoundError("Expense not found").Write(w)
		return
	}

	old, err := s.svc.Repo().GetExpense(r.Context(), user.ID, id)
	if err != nil {
		NotFoundError("Expense not found").Write(w)
		return
	}

	if err := s.svc.DeleteExpense(r.Context(), user.ID, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			NotFoundError("Expense not found").Write(w)
			return
		}
		slog.ErrorContext(r.Context(), "expense deletion failed",
			"user_id", user.ID, "expense_id", id, "error", err)
		InternalServerError("Could not delete the expense").Write(w)
		return
	}

	month := old.Month()
	s.invalidateOverview(user.ID, month)

	NewHTMXResponse().
		TriggerExpenseChanged(month.String()).
		TriggerSuccessNotification("Expense deleted").
		Write(w)
}

func (s *Server) handleBulkDeleteExpenses(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if err := r.ParseForm(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	ids := ParseIDList(r.Form)
	if len(ids) == 0 {
		BadRequestError("No expenses selected").Write(w)
		return
	}

	// Collect affected months before the rows disappear.
	months := make(map[core.MonthKey]bool)
	for _, id := range ids {
		if e, err := s.svc.Repo().GetExpense(r.Context(), user.ID, id); err == nil {
			months[e.Month()] = true
		}
	}

	deleted, err := s.svc.DeleteExpenses(r.Context(), user.ID, ids)
	if err != nil {
		slog.ErrorContext(r.Context(), "bulk deletion failed",
			"user_id", user.ID, "count", len(ids), "error", err)
		InternalServerError("Could not delete the selected expenses").Write(w)
		return
	}

	monthList := make([]string, 0, len(months))
	for month := range months {
		s.invalidateOverview(user.ID, month)
		monthList = append(monthList, month.String())
	}

	NewHTMXResponse().
		Trigger("expense:changed", map[string]any{"months": monthList}).
		TriggerSuccessNotification(strconv.FormatInt(deleted, 10) + " expenses deleted").
		Write(w)
}

// isValidationError separates domain validation failures (rendered as 422)
// from infrastructure failures (rendered as 500). ErrNotFound counts: on a
// mutation it means the referenced category is not visible to the user.
func isValidationError(err error) bool {
	return errors.Is(err, core.ErrInvalidAmount) ||
		errors.Is(err, core.ErrInvalidMonth) ||
		errors.Is(err, core.ErrInvalidDate) ||
		errors.Is(err, core.ErrEmptyDescription) ||
		errors.Is(err, core.ErrEmptyName) ||
		errors.Is(err, core.ErrNotFound)
}
