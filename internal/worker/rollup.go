// Package worker maintains the month_summaries rollups from ledger change
// events, with a periodic reconcile pass that catches months whose events
// were lost.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/storage"
)

// Store is the slice of the repository the rollup worker needs.
type Store interface {
	RecomputeMonthSummary(ctx context.Context, userID int64, month core.MonthKey) error
	ListStaleSummaries(ctx context.Context, limit int) ([]storage.StaleSummary, error)
	GetExpense(ctx context.Context, userID, id int64) (*core.Expense, error)
	CategoriesByID(ctx context.Context, userID int64) (map[int64]core.Category, error)
}

// ExpenseAppender mirrors created expenses to an external sheet. Optional.
type ExpenseAppender interface {
	AppendExpense(ctx context.Context, e core.Expense, categoryName string) error
}

type Config struct {
	// BatchSize caps how many stale months one reconcile pass recomputes.
	BatchSize int
	// ReconcileInterval is how often the reconcile pass runs.
	ReconcileInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:         50,
		ReconcileInterval: time.Minute,
	}
}

type Rollup struct {
	store    Store
	appender ExpenseAppender
	config   Config

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a rollup worker. appender may be nil to disable mirroring.
func New(store Store, appender ExpenseAppender, config Config) *Rollup {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.ReconcileInterval <= 0 {
		config.ReconcileInterval = DefaultConfig().ReconcileInterval
	}
	return &Rollup{store: store, appender: appender, config: config}
}

// Start launches the reconcile loop. Returns an error if already running.
func (w *Rollup) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("rollup worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.runLoop(ctx)

	slog.InfoContext(ctx, "rollup worker started",
		"reconcile_interval", w.config.ReconcileInterval,
		"batch_size", w.config.BatchSize)
	return nil
}

// Stop shuts the loop down and waits for it, or gives up when ctx expires.
func (w *Rollup) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)

	select {
	case <-w.doneCh:
		slog.InfoContext(ctx, "rollup worker stopped")
	case <-ctx.Done():
		slog.WarnContext(ctx, "rollup worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

func (w *Rollup) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Rollup) runLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.ReconcileInterval)
	defer ticker.Stop()

	// Catch up on whatever happened while the worker was down.
	w.reconcile(ctx)

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reconcile(ctx)
		}
	}
}

// HandleChange processes one change event: recompute the affected month and,
// for new expenses, mirror the row. Events with an unusable month are dropped
// rather than requeued; replaying them would never succeed.
func (w *Rollup) HandleChange(ctx context.Context, event *amqp.ChangeEvent) error {
	month, err := core.ParseMonthKey(event.Month)
	if err != nil {
		slog.WarnContext(ctx, "dropping change event with bad month",
			"entity", event.Entity, "id", event.ID, "month", event.Month)
		return nil
	}

	if err := w.store.RecomputeMonthSummary(ctx, event.UserID, month); err != nil {
		return fmt.Errorf("recompute %d/%s: %w", event.UserID, month, err)
	}

	slog.DebugContext(ctx, "recomputed month summary",
		"user_id", event.UserID, "month", month.String(),
		"entity", event.Entity, "op", event.Op)

	if event.Entity == amqp.EntityExpense && event.Op == amqp.OpCreated {
		w.mirrorExpense(ctx, event)
	}
	return nil
}

// mirrorExpense appends a newly created expense to the external sheet.
// Failures are logged, never propagated; the mirror is best-effort.
func (w *Rollup) mirrorExpense(ctx context.Context, event *amqp.ChangeEvent) {
	if w.appender == nil {
		return
	}

	expense, err := w.store.GetExpense(ctx, event.UserID, event.ID)
	if err != nil {
		// Deleted between event and fetch, or a stale replay.
		if !errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "mirror fetch failed", "id", event.ID, "error", err)
		}
		return
	}

	var categoryName string
	if expense.CategoryID != nil {
		cats, err := w.store.CategoriesByID(ctx, event.UserID)
		if err == nil {
			if c, ok := cats[*expense.CategoryID]; ok {
				categoryName = c.Name
			}
		}
	}

	if err := w.appender.AppendExpense(ctx, *expense, categoryName); err != nil {
		slog.WarnContext(ctx, "mirror append failed", "id", event.ID, "error", err)
		return
	}
	slog.InfoContext(ctx, "mirrored expense", "id", event.ID, "user_id", event.UserID)
}

// reconcile recomputes every stale user-month, up to the batch size.
func (w *Rollup) reconcile(ctx context.Context) {
	stale, err := w.store.ListStaleSummaries(ctx, w.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "list stale summaries failed", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	slog.DebugContext(ctx, "reconciling stale summaries", "count", len(stale))

	for _, st := range stale {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := w.store.RecomputeMonthSummary(ctx, st.UserID, st.Month); err != nil {
			slog.ErrorContext(ctx, "reconcile recompute failed",
				"user_id", st.UserID, "month", st.Month.String(), "error", err)
		}
	}
}
