package http

import (
	"log/slog"
	"net/http"
)

// handleDashboard renders the full dashboard page for the requested month
// (default: current).
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	month := ParseMonthParam(r.URL.Query())

	ov, err := s.getOverview(r.Context(), user.ID, month)
	if err != nil {
		slog.ErrorContext(r.Context(), "dashboard overview failed",
			"user_id", user.ID, "month", month.String(), "error", err)
		InternalServerError("Could not load the dashboard").Write(w)
		return
	}

	cats, err := s.repo.CategoriesByID(r.Context(), user.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "category lookup failed", "error", err)
		InternalServerError("Could not load categories").Write(w)
		return
	}

	s.render(w, r, "dashboard.html", map[string]any{
		"Username": user.Username,
		"Overview": buildOverviewView(ov, cats),
		"Cats":     sortedCategories(cats),
	})
}

// handleMonthOverviewPartial renders just the overview section. The page
// re-fetches it on expense:changed and budget:changed triggers.
func (s *Server) handleMonthOverviewPartial(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	month := ParseMonthParam(r.URL.Query())

	ov, err := s.getOverview(r.Context(), user.ID, month)
	if err != nil {
		slog.ErrorContext(r.Context(), "month overview partial failed",
			"user_id", user.ID, "month", month.String(), "error", err)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<section id="month-overview" class="month-overview"><div class="placeholder">Could not load overview</div></section>`))
		return
	}

	cats, err := s.repo.CategoriesByID(r.Context(), user.ID)
	if err != nil {
		cats = nil // recent rows fall back to Uncategorized
	}

	s.render(w, r, "month_overview.html", buildOverviewView(ov, cats))
}
