package http

import (
	"errors"
	"log/slog"
	"net/http"

	"tally/internal/core"
)

// handleSetBudget creates or replaces the month's budget. Submitting the same
// form twice lands on the same row, so a double-click is harmless.
func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if err := r.ParseForm(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	month, err := core.ParseMonthKey(r.Form.Get("month"))
	if err != nil {
		UnprocessableEntityError("Invalid month").Write(w)
		return
	}

	cents, err := core.ParseDecimalToCents(r.Form.Get("amount"))
	if err != nil {
		UnprocessableEntityError("Invalid amount").Write(w)
		return
	}

	budget, err := s.svc.SetBudget(r.Context(), user.ID, month, core.Money{Cents: cents})
	if err != nil {
		if isValidationError(err) {
			UnprocessableEntityError(err.Error()).Write(w)
			return
		}
		slog.ErrorContext(r.Context(), "budget upsert failed",
			"user_id", user.ID, "month", month.String(), "error", err)
		InternalServerError("Could not save the budget").Write(w)
		return
	}

	s.invalidateOverview(user.ID, month)

	NewHTMXResponse().
		TriggerBudgetChanged(month.String()).
		TriggerSuccessNotification("Budget set to " + core.FormatCents(budget.Amount.Cents)).
		Write(w)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if err := r.ParseForm(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	month, err := core.ParseMonthKey(r.Form.Get("month"))
	if err != nil {
		UnprocessableEntityError("Invalid month").Write(w)
		return
	}

	if err := s.svc.DeleteBudget(r.Context(), user.ID, month); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			NotFoundError("No budget set for this month").Write(w)
			return
		}
		slog.ErrorContext(r.Context(), "budget deletion failed",
			"user_id", user.ID, "month", month.String(), "error", err)
		InternalServerError("Could not remove the budget").Write(w)
		return
	}

	s.invalidateOverview(user.ID, month)

	NewHTMXResponse().
		TriggerBudgetChanged(month.String()).
		TriggerSuccessNotification("Budget removed").
		Write(w)
}
