package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tally/internal/core"
)

// MonthSummary is the denormalized per-month rollup the worker maintains.
type MonthSummary struct {
	UserID       int64
	Month        core.MonthKey
	Total        core.Money
	ExpenseCount int
	ComputedAt   time.Time
}

// RecomputeMonthSummary rebuilds one user-month rollup from the expense rows.
// Recomputing from scratch keeps the summary correct regardless of which
// change event triggered it, including deletes.
func (r *Repository) RecomputeMonthSummary(ctx context.Context, userID int64, month core.MonthKey) error {
	start, end := month.Bounds()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO month_summaries (user_id, month, total_cents, expense_count, computed_at)
		SELECT ?, ?, COALESCE(SUM(amount_cents), 0), COUNT(*), CURRENT_TIMESTAMP
		FROM expenses
		WHERE user_id = ? AND expense_date >= ? AND expense_date < ?
		ON CONFLICT(user_id, month)
		DO UPDATE SET total_cents = excluded.total_cents,
			expense_count = excluded.expense_count,
			computed_at = excluded.computed_at`,
		userID, month.String(), userID, start, end,
	)
	if err != nil {
		return fmt.Errorf("recompute month summary: %w", err)
	}
	return nil
}

// GetMonthSummary returns the stored rollup for one user-month.
func (r *Repository) GetMonthSummary(ctx context.Context, userID int64, month core.MonthKey) (*MonthSummary, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, month, total_cents, expense_count, computed_at
		FROM month_summaries
		WHERE user_id = ? AND month = ?`,
		userID, month.String(),
	)
	var s MonthSummary
	var m string
	err := row.Scan(&s.UserID, &m, &s.Total.Cents, &s.ExpenseCount, &s.ComputedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get month summary: %w", err)
	}
	s.Month, err = core.ParseMonthKey(m)
	if err != nil {
		return nil, fmt.Errorf("stored summary month %q: %w", m, err)
	}
	return &s, nil
}

// StaleSummary identifies a user-month whose rollup is missing or older than
// its newest expense write.
type StaleSummary struct {
	UserID int64
	Month  core.MonthKey
}

// ListStaleSummaries finds up to limit user-months that need recomputation.
// The reconcile loop uses this to catch months whose change events were lost.
// The second branch catches summaries whose last expense was deleted: no
// expense row survives to flag them, but a non-empty rollup remains.
func (r *Repository) ListStaleSummaries(ctx context.Context, limit int) ([]StaleSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.user_id, strftime('%Y-%m', e.expense_date) AS m
		FROM expenses e
		LEFT JOIN month_summaries s
			ON s.user_id = e.user_id AND s.month = strftime('%Y-%m', e.expense_date)
		GROUP BY e.user_id, m
		HAVING s.computed_at IS NULL OR MAX(e.updated_at) > s.computed_at
		UNION
		SELECT s.user_id, s.month
		FROM month_summaries s
		WHERE s.expense_count > 0 AND NOT EXISTS (
			SELECT 1 FROM expenses e
			WHERE e.user_id = s.user_id
				AND strftime('%Y-%m', e.expense_date) = s.month)
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale summaries: %w", err)
	}
	defer rows.Close()

	var stale []StaleSummary
	for rows.Next() {
		var st StaleSummary
		var m string
		if err := rows.Scan(&st.UserID, &m); err != nil {
			return nil, fmt.Errorf("scan stale summary: %w", err)
		}
		st.Month, err = core.ParseMonthKey(m)
		if err != nil {
			return nil, fmt.Errorf("stale summary month %q: %w", m, err)
		}
		stale = append(stale, st)
	}
	return stale, rows.Err()
}
