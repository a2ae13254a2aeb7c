package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tally/internal/core"
)

// GetBudget returns the user's budget for a month, or core.ErrNotFound when
// none is set.
func (r *Repository) GetBudget(ctx context.Context, userID int64, month core.MonthKey) (*core.Budget, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, month, amount_cents, created_at, updated_at
		FROM budgets
		WHERE user_id = ? AND month = ?`,
		userID, month.String(),
	)
	var b core.Budget
	var m string
	err := row.Scan(&b.ID, &b.UserID, &m, &b.Amount.Cents, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get budget: %w", err)
	}
	b.Month, err = core.ParseMonthKey(m)
	if err != nil {
		return nil, fmt.Errorf("stored budget month %q: %w", m, err)
	}
	return &b, nil
}

// SetBudget creates or replaces the user's budget for a month. The single
// upsert statement makes repeated submissions idempotent and safe under
// concurrent writes to the same month.
func (r *Repository) SetBudget(ctx context.Context, userID int64, month core.MonthKey, amount core.Money) (*core.Budget, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budgets (user_id, month, amount_cents)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, month)
		DO UPDATE SET amount_cents = excluded.amount_cents, updated_at = CURRENT_TIMESTAMP`,
		userID, month.String(), amount.Cents,
	)
	if err != nil {
		return nil, fmt.Errorf("set budget: %w", err)
	}
	return r.GetBudget(ctx, userID, month)
}

// DeleteBudget removes the user's budget for a month.
func (r *Repository) DeleteBudget(ctx context.Context, userID int64, month core.MonthKey) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM budgets WHERE user_id = ? AND month = ?`,
		userID, month.String())
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	return requireAffected(res)
}
