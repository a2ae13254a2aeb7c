package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/storage"
)

type recomputeCall struct {
	userID int64
	month  core.MonthKey
}

type fakeStore struct {
	mu           sync.Mutex
	recomputes   []recomputeCall
	recomputeErr error
	stale        []storage.StaleSummary
	expense      *core.Expense
	expenseErr   error
	categories   map[int64]core.Category
}

func (f *fakeStore) RecomputeMonthSummary(_ context.Context, userID int64, month core.MonthKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recomputes = append(f.recomputes, recomputeCall{userID, month})
	return f.recomputeErr
}

func (f *fakeStore) recomputeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recomputes)
}

func (f *fakeStore) ListStaleSummaries(_ context.Context, _ int) ([]storage.StaleSummary, error) {
	return f.stale, nil
}

func (f *fakeStore) GetExpense(_ context.Context, _, _ int64) (*core.Expense, error) {
	if f.expenseErr != nil {
		return nil, f.expenseErr
	}
	return f.expense, nil
}

func (f *fakeStore) CategoriesByID(_ context.Context, _ int64) (map[int64]core.Category, error) {
	return f.categories, nil
}

type fakeAppender struct {
	appended  []core.Expense
	catNames  []string
	appendErr error
}

func (f *fakeAppender) AppendExpense(_ context.Context, e core.Expense, categoryName string) error {
	f.appended = append(f.appended, e)
	f.catNames = append(f.catNames, categoryName)
	return f.appendErr
}

func TestHandleChangeRecomputesMonth(t *testing.T) {
	store := &fakeStore{}
	w := New(store, nil, DefaultConfig())

	event := amqp.NewChangeEvent(amqp.EntityExpense, amqp.OpUpdated, 5, 7, "2026-03")
	require.NoError(t, w.HandleChange(context.Background(), event))

	require.Len(t, store.recomputes, 1)
	assert.Equal(t, int64(7), store.recomputes[0].userID)
	assert.Equal(t, core.MonthKey{Year: 2026, Month: 3}, store.recomputes[0].month)
}

func TestHandleChangeDropsBadMonth(t *testing.T) {
	store := &fakeStore{}
	w := New(store, nil, DefaultConfig())

	// A requeue could never succeed, so the event is acked and dropped.
	event := amqp.NewChangeEvent(amqp.EntityExpense, amqp.OpCreated, 5, 7, "not-a-month")
	assert.NoError(t, w.HandleChange(context.Background(), event))
	assert.Empty(t, store.recomputes)
}

func TestHandleChangePropagatesRecomputeError(t *testing.T) {
	store := &fakeStore{recomputeErr: errors.New("db locked")}
	w := New(store, nil, DefaultConfig())

	event := amqp.NewChangeEvent(amqp.EntityBudget, amqp.OpUpdated, 1, 7, "2026-03")
	assert.Error(t, w.HandleChange(context.Background(), event))
}

func TestHandleChangeMirrorsCreatedExpense(t *testing.T) {
	catID := int64(3)
	store := &fakeStore{
		expense: &core.Expense{
			ID:          5,
			UserID:      7,
			CategoryID:  &catID,
			Amount:      core.Money{Cents: 4550},
			Description: "groceries",
			Date:        time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		},
		categories: map[int64]core.Category{3: {ID: 3, Name: "Food"}},
	}
	appender := &fakeAppender{}
	w := New(store, appender, DefaultConfig())

	event := amqp.NewChangeEvent(amqp.EntityExpense, amqp.OpCreated, 5, 7, "2026-03")
	require.NoError(t, w.HandleChange(context.Background(), event))

	require.Len(t, appender.appended, 1)
	assert.Equal(t, "groceries", appender.appended[0].Description)
	assert.Equal(t, "Food", appender.catNames[0])
}

func TestHandleChangeMirrorSkipsDeletedExpense(t *testing.T) {
	store := &fakeStore{expenseErr: core.ErrNotFound}
	appender := &fakeAppender{}
	w := New(store, appender, DefaultConfig())

	event := amqp.NewChangeEvent(amqp.EntityExpense, amqp.OpCreated, 5, 7, "2026-03")
	require.NoError(t, w.HandleChange(context.Background(), event))
	assert.Empty(t, appender.appended)
}

func TestHandleChangeMirrorFailureIsNonFatal(t *testing.T) {
	store := &fakeStore{
		expense: &core.Expense{ID: 5, UserID: 7, Description: "x"},
	}
	appender := &fakeAppender{appendErr: errors.New("sheets quota")}
	w := New(store, appender, DefaultConfig())

	event := amqp.NewChangeEvent(amqp.EntityExpense, amqp.OpCreated, 5, 7, "2026-03")
	assert.NoError(t, w.HandleChange(context.Background(), event))
}

func TestHandleChangeDoesNotMirrorUpdatesOrDeletes(t *testing.T) {
	store := &fakeStore{expense: &core.Expense{ID: 5, UserID: 7}}
	appender := &fakeAppender{}
	w := New(store, appender, DefaultConfig())

	for _, op := range []string{amqp.OpUpdated, amqp.OpDeleted} {
		event := amqp.NewChangeEvent(amqp.EntityExpense, op, 5, 7, "2026-03")
		require.NoError(t, w.HandleChange(context.Background(), event))
	}
	assert.Empty(t, appender.appended)
}

func TestStartupReconcileAndLifecycle(t *testing.T) {
	store := &fakeStore{
		stale: []storage.StaleSummary{
			{UserID: 1, Month: core.MonthKey{Year: 2026, Month: 2}},
			{UserID: 2, Month: core.MonthKey{Year: 2026, Month: 3}},
		},
	}
	w := New(store, nil, Config{BatchSize: 10, ReconcileInterval: time.Hour})

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()), "second start should fail")
	assert.True(t, w.IsRunning())

	// The startup pass runs before the first tick.
	deadline := time.After(2 * time.Second)
	for store.recomputeCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("startup reconcile did not run")
		case <-time.After(10 * time.Millisecond):
		}
	}

	require.NoError(t, w.Stop(context.Background()))
	assert.False(t, w.IsRunning())
	assert.NoError(t, w.Stop(context.Background()), "stop is idempotent")
}
