package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tally/internal/core"
)

// ListCategories returns the categories visible to userID: the shared
// defaults plus the user's own, ordered by sort order then name.
func (r *Repository) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, icon, color, sort_order, user_id, created_at, updated_at
		FROM categories
		WHERE user_id IS NULL OR user_id = ?
		ORDER BY sort_order, name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// CategoriesByID returns the visible categories keyed by ID, the shape the
// aggregation and search helpers in core consume.
func (r *Repository) CategoriesByID(ctx context.Context, userID int64) (map[int64]core.Category, error) {
	cats, err := r.ListCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]core.Category, len(cats))
	for _, c := range cats {
		byID[c.ID] = c
	}
	return byID, nil
}

// GetCategory returns a category if it is visible to userID.
func (r *Repository) GetCategory(ctx context.Context, userID, id int64) (*core.Category, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, icon, color, sort_order, user_id, created_at, updated_at
		FROM categories
		WHERE id = ? AND (user_id IS NULL OR user_id = ?)`,
		id, userID,
	)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCategory inserts a user-owned category.
func (r *Repository) CreateCategory(ctx context.Context, userID int64, c core.Category) (*core.Category, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (name, icon, color, sort_order, user_id)
		VALUES (?, ?, ?, ?, ?)`,
		c.Name, c.Icon, c.Color, c.SortOrder, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("category insert id: %w", err)
	}
	return r.GetCategory(ctx, userID, id)
}

// UpdateCategory updates a category the user owns. System defaults are not
// user-mutable; the user_id predicate excludes them.
func (r *Repository) UpdateCategory(ctx context.Context, userID int64, c core.Category) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE categories
		SET name = ?, icon = ?, color = ?, sort_order = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		c.Name, c.Icon, c.Color, c.SortOrder, c.ID, userID,
	)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return requireAffected(res)
}

// DeleteCategory removes a category the user owns; its expenses keep their
// rows and fall back to Uncategorized via ON DELETE SET NULL.
func (r *Repository) DeleteCategory(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM categories WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return requireAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (core.Category, error) {
	var c core.Category
	var owner sql.NullInt64
	err := row.Scan(&c.ID, &c.Name, &c.Icon, &c.Color, &c.SortOrder, &owner, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return core.Category{}, err
	}
	if owner.Valid {
		c.UserID = &owner.Int64
	}
	return c, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
