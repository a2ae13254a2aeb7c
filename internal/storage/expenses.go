package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tally/internal/core"
)

const expenseColumns = `id, user_id, category_id, amount_cents, currency,
	expense_date, description, notes, payment_method, created_at, updated_at`

// CreateExpense inserts an expense owned by e.UserID and returns the stored row.
func (r *Repository) CreateExpense(ctx context.Context, e core.Expense) (*core.Expense, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO expenses (user_id, category_id, amount_cents, currency,
			expense_date, description, notes, payment_method)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, nullableID(e.CategoryID), e.Amount.Cents, e.Currency,
		e.Date.UTC(), e.Description, e.Notes, e.PaymentMethod,
	)
	if err != nil {
		return nil, fmt.Errorf("create expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("expense insert id: %w", err)
	}
	return r.GetExpense(ctx, e.UserID, id)
}

// GetExpense returns an expense if userID owns it.
func (r *Repository) GetExpense(ctx context.Context, userID, id int64) (*core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateExpense rewrites an expense the user owns.
func (r *Repository) UpdateExpense(ctx context.Context, e core.Expense) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE expenses
		SET category_id = ?, amount_cents = ?, currency = ?, expense_date = ?,
			description = ?, notes = ?, payment_method = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		nullableID(e.CategoryID), e.Amount.Cents, e.Currency, e.Date.UTC(),
		e.Description, e.Notes, e.PaymentMethod, e.ID, e.UserID,
	)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return requireAffected(res)
}

// DeleteExpense removes a single expense the user owns.
func (r *Repository) DeleteExpense(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return requireAffected(res)
}

// DeleteExpenses bulk-deletes the given IDs, constrained to the user's own
// rows, and reports how many were removed.
func (r *Repository) DeleteExpenses(ctx context.Context, userID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, userID)

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE id IN (`+placeholders+`) AND user_id = ?`, args...)
	if err != nil {
		return 0, fmt.Errorf("bulk delete expenses: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// ListExpenses returns one page of the user's expenses under the filter's
// server-side predicates, newest first. The text search is not applied here;
// core.ApplySearch runs over the returned page.
func (r *Repository) ListExpenses(ctx context.Context, userID int64, f core.ExpenseFilter) (core.ExpensePage, error) {
	f.Normalize()

	where, args := buildExpenseWhere(userID, f)

	var total int
	countQuery := `SELECT COUNT(*) FROM expenses WHERE ` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return core.ExpensePage{}, fmt.Errorf("count expenses: %w", err)
	}

	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE ` + where +
		` ORDER BY expense_date DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return core.ExpensePage{}, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return core.ExpensePage{}, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return core.ExpensePage{}, fmt.Errorf("list expenses: %w", err)
	}

	return core.ExpensePage{
		Expenses:   expenses,
		TotalCount: total,
		Page:       f.Page,
		PageSize:   f.PageSize,
		TotalPages: core.PageCount(total, f.PageSize),
	}, nil
}

// ListMonthExpenses returns every expense of the user for one calendar month,
// newest first. Feeds aggregation and the dashboard transaction list.
func (r *Repository) ListMonthExpenses(ctx context.Context, userID int64, month core.MonthKey) ([]core.Expense, error) {
	start, end := month.Bounds()
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		WHERE user_id = ? AND expense_date >= ? AND expense_date < ?
		ORDER BY expense_date DESC, id DESC`,
		userID, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("list month expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// GetMonthTotal sums the user's expenses for one month.
func (r *Repository) GetMonthTotal(ctx context.Context, userID int64, month core.MonthKey) (core.Money, error) {
	start, end := month.Bounds()
	var cents int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM expenses
		WHERE user_id = ? AND expense_date >= ? AND expense_date < ?`,
		userID, start, end,
	).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("month total: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

func buildExpenseWhere(userID int64, f core.ExpenseFilter) (string, []any) {
	where := []string{"user_id = ?"}
	args := []any{userID}

	if !f.From.IsZero() {
		where = append(where, "expense_date >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		where = append(where, "expense_date < ?")
		args = append(args, f.To.UTC())
	}
	if len(f.CategoryIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.CategoryIDs)), ",")
		where = append(where, "category_id IN ("+placeholders+")")
		for _, id := range f.CategoryIDs {
			args = append(args, id)
		}
	}
	if len(f.PaymentMethods) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.PaymentMethods)), ",")
		where = append(where, "payment_method IN ("+placeholders+")")
		for _, m := range f.PaymentMethods {
			args = append(args, m)
		}
	}
	if f.MinCents > 0 {
		where = append(where, "amount_cents >= ?")
		args = append(args, f.MinCents)
	}
	if f.MaxCents > 0 {
		where = append(where, "amount_cents <= ?")
		args = append(args, f.MaxCents)
	}

	return strings.Join(where, " AND "), args
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var e core.Expense
	var catID sql.NullInt64
	err := row.Scan(&e.ID, &e.UserID, &catID, &e.Amount.Cents, &e.Currency,
		&e.Date, &e.Description, &e.Notes, &e.PaymentMethod, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return core.Expense{}, err
	}
	if catID.Valid {
		e.CategoryID = &catID.Int64
	}
	return e, nil
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
