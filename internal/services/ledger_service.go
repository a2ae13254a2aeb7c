// Package services orchestrates ledger operations across the SQLite
// repository and the AMQP change-event bus. Publish failures never fail the
// request; the reconcile loop in the worker covers lost events.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/storage"
)

// ChangePublisher is the slice of the AMQP client the service uses.
type ChangePublisher interface {
	PublishChange(ctx context.Context, event *amqp.ChangeEvent) error
}

// RecentLimit caps the dashboard's recent-transactions list.
const RecentLimit = 10

type LedgerService struct {
	repo      *storage.Repository
	publisher ChangePublisher
}

// NewLedgerService creates the service. publisher may be nil; change events
// are then skipped entirely.
func NewLedgerService(repo *storage.Repository, publisher ChangePublisher) *LedgerService {
	return &LedgerService{repo: repo, publisher: publisher}
}

// Repo exposes the underlying repository for read paths that need no
// orchestration (auth, categories).
func (s *LedgerService) Repo() *storage.Repository {
	return s.repo
}

// CreateExpense validates, stores, and announces a new expense.
func (s *LedgerService) CreateExpense(ctx context.Context, e core.Expense) (*core.Expense, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkCategoryVisible(ctx, e); err != nil {
		return nil, err
	}
	created, err := s.repo.CreateExpense(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("create expense: %w", err)
	}
	s.publish(ctx, amqp.NewChangeEvent(
		amqp.EntityExpense, amqp.OpCreated, created.ID, created.UserID, created.Month().String()))
	return created, nil
}

// checkCategoryVisible rejects writes that reference a category the user
// cannot see. The FK only proves the row exists; it would happily accept
// another user's private category ID.
func (s *LedgerService) checkCategoryVisible(ctx context.Context, e core.Expense) error {
	if e.CategoryID == nil {
		return nil
	}
	if _, err := s.repo.GetCategory(ctx, e.UserID, *e.CategoryID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("category %d: %w", *e.CategoryID, core.ErrNotFound)
		}
		return fmt.Errorf("check category: %w", err)
	}
	return nil
}

// UpdateExpense rewrites an expense. When the edit moves the expense to a
// different month both months get an event, so both rollups converge.
func (s *LedgerService) UpdateExpense(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if err := s.checkCategoryVisible(ctx, e); err != nil {
		return err
	}
	old, err := s.repo.GetExpense(ctx, e.UserID, e.ID)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateExpense(ctx, e); err != nil {
		return err
	}
	s.publish(ctx, amqp.NewChangeEvent(
		amqp.EntityExpense, amqp.OpUpdated, e.ID, e.UserID, e.Month().String()))
	if old.Month() != e.Month() {
		s.publish(ctx, amqp.NewChangeEvent(
			amqp.EntityExpense, amqp.OpUpdated, e.ID, e.UserID, old.Month().String()))
	}
	return nil
}

// DeleteExpense removes one expense and announces the change.
func (s *LedgerService) DeleteExpense(ctx context.Context, userID, id int64) error {
	old, err := s.repo.GetExpense(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteExpense(ctx, userID, id); err != nil {
		return err
	}
	s.publish(ctx, amqp.NewChangeEvent(
		amqp.EntityExpense, amqp.OpDeleted, id, userID, old.Month().String()))
	return nil
}

// DeleteExpenses bulk-deletes the user's rows among ids and announces one
// event per affected month.
func (s *LedgerService) DeleteExpenses(ctx context.Context, userID int64, ids []int64) (int64, error) {
	months := make(map[core.MonthKey]bool)
	for _, id := range ids {
		e, err := s.repo.GetExpense(ctx, userID, id)
		if err != nil {
			continue // not theirs, or already gone
		}
		months[e.Month()] = true
	}

	deleted, err := s.repo.DeleteExpenses(ctx, userID, ids)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		for month := range months {
			s.publish(ctx, amqp.NewChangeEvent(
				amqp.EntityExpense, amqp.OpDeleted, 0, userID, month.String()))
		}
	}
	return deleted, nil
}

// ListExpenses returns one page under the filter. A text search runs over the
// retrieved page, after pagination, so the page's totals stay approximate
// while search is active.
func (s *LedgerService) ListExpenses(ctx context.Context, userID int64, f core.ExpenseFilter) (core.ExpensePage, error) {
	page, err := s.repo.ListExpenses(ctx, userID, f)
	if err != nil {
		return core.ExpensePage{}, err
	}
	if f.Search != "" {
		cats, err := s.repo.CategoriesByID(ctx, userID)
		if err != nil {
			return core.ExpensePage{}, err
		}
		page.Expenses = core.ApplySearch(page.Expenses, cats, f.Search)
	}
	return page, nil
}

// SetBudget upserts the month's budget and announces the change.
func (s *LedgerService) SetBudget(ctx context.Context, userID int64, month core.MonthKey, amount core.Money) (*core.Budget, error) {
	b := core.Budget{UserID: userID, Month: month, Amount: amount}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	stored, err := s.repo.SetBudget(ctx, userID, month, amount)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, amqp.NewChangeEvent(
		amqp.EntityBudget, amqp.OpUpdated, stored.ID, userID, month.String()))
	return stored, nil
}

// DeleteBudget removes the month's budget.
func (s *LedgerService) DeleteBudget(ctx context.Context, userID int64, month core.MonthKey) error {
	if err := s.repo.DeleteBudget(ctx, userID, month); err != nil {
		return err
	}
	s.publish(ctx, amqp.NewChangeEvent(
		amqp.EntityBudget, amqp.OpDeleted, 0, userID, month.String()))
	return nil
}

// MonthOverview assembles the dashboard's aggregate view for one month. The
// three reads fan out concurrently.
func (s *LedgerService) MonthOverview(ctx context.Context, userID int64, month core.MonthKey) (core.MonthOverview, error) {
	if err := month.Validate(); err != nil {
		return core.MonthOverview{}, err
	}

	var (
		expenses []core.Expense
		cats     map[int64]core.Category
		budget   *core.Budget
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		expenses, err = s.repo.ListMonthExpenses(gctx, userID, month)
		return err
	})
	g.Go(func() error {
		var err error
		cats, err = s.repo.CategoriesByID(gctx, userID)
		return err
	})
	g.Go(func() error {
		b, err := s.repo.GetBudget(gctx, userID, month)
		if errors.Is(err, core.ErrNotFound) {
			return nil // no budget set is a normal state
		}
		budget = b
		return err
	})
	if err := g.Wait(); err != nil {
		return core.MonthOverview{}, fmt.Errorf("month overview: %w", err)
	}

	var total core.Money
	for _, e := range expenses {
		total.Cents += e.Amount.Cents
	}

	recent := expenses
	if len(recent) > RecentLimit {
		recent = recent[:RecentLimit]
	}

	return core.MonthOverview{
		Month:      month,
		Total:      total,
		Budget:     budget,
		ByCategory: core.AggregateByCategory(expenses, cats),
		Recent:     recent,
	}, nil
}

func (s *LedgerService) publish(ctx context.Context, event *amqp.ChangeEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishChange(ctx, event); err != nil {
		slog.WarnContext(ctx, "change event not published",
			"entity", event.Entity, "op", event.Op,
			"id", event.ID, "month", event.Month, "error", err)
	}
}

// Close releases the repository and, when present, the publisher.
func (s *LedgerService) Close() error {
	var errs []error
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.publisher.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}
	return nil
}
