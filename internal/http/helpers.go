package http

import (
	"log/slog"
	"net/http"
	"sort"

	"tally/internal/core"
)

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "templates not loaded", "template", name)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.ErrorContext(r.Context(), "template execution failed",
			"template", name, "error", err)
	}
}

// categoryRow is the template shape of one group in the breakdown. Width
// scales the bar against the largest group so the chart fills its lane.
type categoryRow struct {
	Name   string
	Icon   string
	Color  string
	Amount string
	Count  int
	Width  int
}

// budgetView is the template shape of the month-vs-budget summary.
type budgetView struct {
	Amount     string
	Percent    float64
	BarPercent int
	Remaining  string
	Exceeded   bool
}

// expenseRow is the template shape of one transaction line.
type expenseRow struct {
	ID            int64
	Date          string
	Description   string
	Notes         string
	Amount        string
	Category      string
	CategoryID    int64
	PaymentMethod string
}

// overviewView is everything the dashboard partial renders for one month.
type overviewView struct {
	Month     string
	PrevMonth string
	NextMonth string
	Total     string
	Budget    *budgetView
	Rows      []categoryRow
	Recent    []expenseRow
}

func buildOverviewView(ov core.MonthOverview, cats map[int64]core.Category) overviewView {
	view := overviewView{
		Month:     ov.Month.String(),
		PrevMonth: ov.Month.Prev().String(),
		NextMonth: ov.Month.Next().String(),
		Total:     core.FormatCents(ov.Total.Cents),
	}

	if ov.Budget != nil {
		st := core.ComputeBudgetStatus(ov.Total, ov.Budget.Amount)
		view.Budget = &budgetView{
			Amount:     core.FormatCents(ov.Budget.Amount.Cents),
			Percent:    st.Percent,
			BarPercent: st.BarPercent,
			Remaining:  core.FormatCents(st.Remaining.Cents),
			Exceeded:   st.Exceeded,
		}
	}

	var maxCents int64
	for _, g := range ov.ByCategory {
		if g.Total.Cents > maxCents {
			maxCents = g.Total.Cents
		}
	}
	for _, g := range ov.ByCategory {
		width := 0
		if maxCents > 0 && g.Total.Cents > 0 {
			width = int((g.Total.Cents*100 + maxCents/2) / maxCents)
			if width < 2 {
				width = 2 // keep tiny groups visible
			}
			if width > 100 {
				width = 100
			}
		}
		view.Rows = append(view.Rows, categoryRow{
			Name:   g.Name,
			Icon:   g.Icon,
			Color:  g.Color,
			Amount: core.FormatCents(g.Total.Cents),
			Count:  g.Count,
			Width:  width,
		})
	}

	for _, e := range ov.Recent {
		view.Recent = append(view.Recent, buildExpenseRow(e, cats))
	}
	return view
}

// sortedCategories flattens the lookup map back into display order for the
// category pickers.
func sortedCategories(cats map[int64]core.Category) []core.Category {
	out := make([]core.Category, 0, len(cats))
	for _, c := range cats {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func buildExpenseRow(e core.Expense, cats map[int64]core.Category) expenseRow {
	row := expenseRow{
		ID:            e.ID,
		Date:          e.Date.Format("2006-01-02"),
		Description:   e.Description,
		Notes:         e.Notes,
		Amount:        core.FormatCents(e.Amount.Cents),
		Category:      core.UncategorizedName,
		PaymentMethod: e.PaymentMethod,
	}
	if e.CategoryID != nil {
		if c, ok := cats[*e.CategoryID]; ok {
			row.Category = c.Name
			row.CategoryID = c.ID
		}
	}
	return row
}
