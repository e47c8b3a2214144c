package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowtask/internal/model"
	"flowtask/internal/repository"
)

func newTestList(seed []model.Todo, cats []model.Category, opts Options) (*TaskList, *fakeTodos, *repository.MemoryCategoryRepository) {
	todos := newFakeTodos(seed)
	categories := repository.NewMemoryCategoryRepository(cats)
	return NewTaskList(todos, categories, opts), todos, categories
}

func loaded(t *testing.T, seed []model.Todo, opts Options) (*TaskList, *fakeTodos) {
	t.Helper()
	list, todos, _ := newTestList(seed, nil, opts)
	require.NoError(t, list.Load(context.Background()))
	return list, todos
}

func ids(todos []model.Todo) []string {
	out := make([]string, 0, len(todos))
	for _, todo := range todos {
		out = append(out, todo.ID)
	}
	return out
}

func seedABCD() []model.Todo {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []model.Todo{
		{ID: "a", Text: "alpha", Priority: model.PriorityMedium, Order: 0, CreatedAt: base.Add(4 * time.Hour)},
		{ID: "b", Text: "bravo", Priority: model.PriorityMedium, Order: 7, Completed: true, CreatedAt: base.Add(3 * time.Hour)},
		{ID: "c", Text: "charlie", Priority: model.PriorityMedium, Order: 1, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "d", Text: "delta", Priority: model.PriorityMedium, Order: 2, CreatedAt: base.Add(time.Hour)},
	}
}

func TestEndToEndScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	list, _ := loaded(t, nil, Options{})
	assert.Empty(t, list.Todos())

	created, err := list.Create(ctx, CreateInput{Text: "Buy milk", Priority: model.PriorityHigh})
	require.NoError(t, err)
	assert.Equal(t, model.PriorityHigh, created.Priority)

	stats := list.Snapshot(time.Now()).Stats
	assert.Equal(t, Stats{Total: 1, Active: 1, Completed: 0, Percentage: 0}, stats)

	toggled, err := list.Toggle(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Completed)
	stats = list.Snapshot(time.Now()).Stats
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 100, stats.Percentage)

	_, err = list.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, list.Todos())
}

func TestCreateWhitespaceMakesNoRepositoryCall(t *testing.T) {
	t.Parallel()
	list, todos := loaded(t, nil, Options{})
	before := todos.total()

	_, err := list.Create(context.Background(), CreateInput{Text: " \t\n "})
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Equal(t, before, todos.total())
	assert.Empty(t, list.Todos())
}

func TestCreatePrependsStoredRecord(t *testing.T) {
	t.Parallel()
	list, _ := loaded(t, seedABCD(), Options{})

	created, err := list.Create(context.Background(), CreateInput{Text: "  echo  ", Priority: "bogus", Category: " Work "})
	require.NoError(t, err)
	assert.Equal(t, "echo", created.Text)
	assert.Equal(t, model.PriorityMedium, created.Priority)
	assert.Equal(t, "Work", created.CategoryName())
	assert.False(t, created.Completed)

	all := list.Todos()
	require.Len(t, all, 5)
	assert.Equal(t, created.ID, all[0].ID)
}

func TestToggleTwiceRestoresFlag(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	list, _ := loaded(t, seedABCD(), Options{})

	first, err := list.Toggle(ctx, "a")
	require.NoError(t, err)
	second, err := list.Toggle(ctx, "a")
	require.NoError(t, err)

	assert.True(t, first.Completed)
	assert.False(t, second.Completed)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))

	_, err = list.Toggle(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotInList)
}

func TestDeleteMissingIsNotFound(t *testing.T) {
	t.Parallel()
	list, _ := loaded(t, seedABCD(), Options{})

	_, err := list.Delete(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "Failed to delete task", opErr.Notice())
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(list.Todos()))
}

func TestFailedWritesLeaveStateUntouched(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	list, todos := loaded(t, seedABCD(), Options{})
	before := list.Todos()

	for _, method := range []string{"Create", "Update", "Delete", "BulkUpdate", "DeleteCompleted"} {
		todos.failOn(method, errStore)
	}

	_, err := list.Create(ctx, CreateInput{Text: "new"})
	assert.Equal(t, "Failed to create task", Notice(err))
	_, err = list.Toggle(ctx, "a")
	assert.Equal(t, "Failed to update task", Notice(err))
	_, err = list.Delete(ctx, "a")
	assert.ErrorIs(t, err, errStore)
	_, err = list.CompleteMany(ctx, []string{"a", "c"})
	assert.ErrorIs(t, err, errStore)
	_, err = list.DeleteCompleted(ctx)
	assert.ErrorIs(t, err, errStore)

	assert.Equal(t, before, list.Todos())
}

func TestLoadFailureEmptiesState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	todos := newFakeTodos(seedABCD())
	list := NewTaskList(todos, failingCategories{repository.NewMemoryCategoryRepository(nil)}, Options{})

	_, err := list.Create(ctx, CreateInput{Text: "local"})
	require.NoError(t, err)

	err = list.Load(ctx)
	assert.Equal(t, "Failed to load tasks", Notice(err))
	assert.Empty(t, list.Todos())
	assert.Empty(t, list.Categories())
	assert.False(t, list.Loaded())
}

func TestLoadCanceledDoesNotApply(t *testing.T) {
	t.Parallel()
	todos := newFakeTodos(seedABCD())
	cats := &blockingCategories{
		MemoryCategoryRepository: repository.NewMemoryCategoryRepository(nil),
		started:                  make(chan struct{}),
	}
	list := NewTaskList(todos, cats, Options{})
	created, err := list.Create(context.Background(), CreateInput{Text: "kept"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- list.Load(ctx) }()
	<-cats.started
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("load did not return after cancel")
	}
	assert.Equal(t, []string{created.ID}, ids(list.Todos()))
}

func TestLoadTimeoutIsAFailure(t *testing.T) {
	t.Parallel()
	cats := &blockingCategories{
		MemoryCategoryRepository: repository.NewMemoryCategoryRepository(nil),
		started:                  make(chan struct{}),
	}
	list := NewTaskList(newFakeTodos(seedABCD()), cats, Options{RequestTimeout: 20 * time.Millisecond})

	err := list.Load(context.Background())
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, OpLoad, opErr.Op)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, list.Todos())
}

func TestReorderRemapsOnlyVisible(t *testing.T) {
	t.Parallel()
	list, todos := loaded(t, seedABCD(), Options{})
	list.SetFilter(FilterActive)
	require.Equal(t, []string{"a", "c", "d"}, ids(list.Visible()))
	writes := todos.total()

	require.NoError(t, list.Reorder(context.Background(), 0, 2))

	assert.Equal(t, []string{"c", "d", "a"}, ids(list.Visible()))
	orders := map[string]int{}
	for _, todo := range list.Todos() {
		orders[todo.ID] = todo.Order
	}
	assert.Equal(t, map[string]int{"c": 0, "d": 1, "a": 2, "b": 7}, orders)
	assert.Equal(t, []string{"c", "b", "d", "a"}, ids(list.Todos()))
	assert.Equal(t, writes, todos.total(), "session-local reorder must not call the repository")
}

func TestReorderEdges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	list, _ := loaded(t, seedABCD(), Options{})
	before := list.Todos()

	assert.NoError(t, list.Reorder(ctx, 1, NoDestination))
	assert.Equal(t, before, list.Todos())

	assert.ErrorIs(t, list.Reorder(ctx, 4, 0), ErrIndexOutOfRange)
	assert.ErrorIs(t, list.Reorder(ctx, 0, -2), ErrIndexOutOfRange)
	assert.Equal(t, before, list.Todos())
}

func TestReorderPersistsChangedOrders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	list, todos := loaded(t, seedABCD(), Options{PersistOrder: true})

	require.NoError(t, list.Reorder(ctx, 3, 0))
	assert.Equal(t, []string{"d", "a", "b", "c"}, ids(list.Visible()))
	assert.Equal(t, 4, todos.count("Update"))

	stored, err := todos.inner.List(ctx)
	require.NoError(t, err)
	for _, todo := range stored {
		switch todo.ID {
		case "d":
			assert.Equal(t, 0, todo.Order)
		case "c":
			assert.Equal(t, 3, todo.Order)
		}
	}

	todos.failOn("Update", errStore)
	err = list.Reorder(ctx, 0, 3)
	assert.Equal(t, "Failed to save task order", Notice(err))
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(list.Visible()))
}

func TestInlineEdit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	list, todos := loaded(t, seedABCD(), Options{})

	_, err := list.SaveEdit(ctx)
	assert.ErrorIs(t, err, ErrNoEditSession)
	assert.ErrorIs(t, list.SetEditBuffer("x"), ErrNoEditSession)
	_, err = list.StartEdit("ghost")
	assert.ErrorIs(t, err, ErrNotInList)

	session, err := list.StartEdit("a")
	require.NoError(t, err)
	assert.Equal(t, "alpha", session.Buffer)

	require.NoError(t, list.SetEditBuffer("   "))
	updates := todos.count("Update")
	saved, err := list.SaveEdit(ctx)
	require.NoError(t, err)
	assert.Nil(t, saved)
	assert.Equal(t, updates, todos.count("Update"))
	assert.False(t, list.Edit().Active())

	_, err = list.StartEdit("a")
	require.NoError(t, err)
	require.NoError(t, list.SetEditBuffer("  alpha two "))
	saved, err = list.SaveEdit(ctx)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "alpha two", saved.Text)
	assert.False(t, list.Edit().Active())
	assert.Equal(t, "alpha two", list.Todos()[0].Text)

	_, err = list.StartEdit("c")
	require.NoError(t, err)
	list.CancelEdit()
	assert.Equal(t, EditState{}, list.Edit())

	todos.failOn("Update", errStore)
	_, err = list.StartEdit("c")
	require.NoError(t, err)
	require.NoError(t, list.SetEditBuffer("never stored"))
	_, err = list.SaveEdit(ctx)
	assert.Equal(t, "Failed to update task", Notice(err))
	assert.False(t, list.Edit().Active())
	assert.Equal(t, "charlie", list.Todos()[2].Text)
}

func TestSaveEditKeepsNewerSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	list, todos := loaded(t, seedABCD(), Options{})

	_, err := list.StartEdit("a")
	require.NoError(t, err)
	require.NoError(t, list.SetEditBuffer("alpha edited"))

	todos.mu.Lock()
	todos.hold = make(chan struct{})
	todos.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := list.SaveEdit(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return todos.count("Update") == 1 }, 5*time.Second, time.Millisecond)

	_, err = list.StartEdit("c")
	require.NoError(t, err)
	close(todos.hold)
	require.NoError(t, <-done)

	assert.Equal(t, "c", list.Edit().ID)
	assert.Equal(t, "alpha edited", list.Todos()[0].Text)
}

func TestSearchAndFilterView(t *testing.T) {
	t.Parallel()
	list, _ := loaded(t, seedABCD(), Options{})

	list.SetSearch("A")
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(list.Visible()))
	list.SetSearch("LTA")
	assert.Equal(t, []string{"d"}, ids(list.Visible()))
	list.SetSearch("")
	list.SetFilter(FilterCompleted)
	assert.Equal(t, []string{"b"}, ids(list.Visible()))

	view := list.Snapshot(time.Now())
	assert.Equal(t, FilterCompleted, view.Filter)
	assert.Equal(t, 4, view.Stats.Total)
	require.Len(t, view.Items, 1)
}

func TestBulkIntents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	list, _ := loaded(t, seedABCD(), Options{})

	list.SetFilter(FilterActive)
	list.SetSearch("a")
	done, err := list.CompleteVisible(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c", "d"}, ids(done))
	assert.Equal(t, 4, list.Snapshot(time.Now()).Stats.Completed)

	removed, err := list.DeleteCompleted(ctx)
	require.NoError(t, err)
	assert.Len(t, removed, 4)
	assert.Empty(t, list.Todos())

	none, err := list.DeleteCompleted(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCategoryPolicies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	work := model.Category{Name: "Work", Color: "#3b82f6", Icon: "Briefcase"}
	seed := []model.Todo{
		{ID: "w1", Text: "report", Category: model.String("Work"), CreatedAt: time.Now()},
		{ID: "h1", Text: "laundry", Category: model.String("Home"), CreatedAt: time.Now().Add(-time.Hour)},
	}

	fallback, _, _ := newTestList(seed, []model.Category{work}, Options{})
	require.NoError(t, fallback.Load(ctx))
	items := fallback.Snapshot(time.Now()).Items
	assert.Equal(t, "#3b82f6", items[0].Color)
	assert.Equal(t, model.DefaultCategoryColor, items[1].Color)

	_, err := fallback.DeleteCategory(ctx, "Work")
	require.NoError(t, err)
	assert.Equal(t, "Work", fallback.Todos()[0].CategoryName())
	items = fallback.Snapshot(time.Now()).Items
	assert.Equal(t, model.DefaultCategoryColor, items[0].Color)
	assert.Equal(t, model.DefaultCategoryIcon, items[0].Icon)

	cascade, _, _ := newTestList(seed, []model.Category{work}, Options{CategoryPolicy: PolicyCascade})
	require.NoError(t, cascade.Load(ctx))

	renamed, err := cascade.UpdateCategory(ctx, "Work", model.CategoryPatch{Name: model.String("Office")})
	require.NoError(t, err)
	assert.Equal(t, "Office", renamed.Name)
	assert.Equal(t, "Office", cascade.Todos()[0].CategoryName())

	_, err = cascade.DeleteCategory(ctx, "Office")
	require.NoError(t, err)
	assert.Nil(t, cascade.Todos()[0].Category)
	assert.Equal(t, "Home", cascade.Todos()[1].CategoryName())
	assert.Empty(t, cascade.Categories())

	_, err = cascade.DeleteCategory(ctx, "Office")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	created, err := cascade.CreateCategory(ctx, model.CategoryDraft{Name: "Garden"})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultCategoryIcon, created.Icon)
	assert.Len(t, cascade.Categories(), 1)
}

func TestDeleteCompletedPartialFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	seed := []model.Todo{
		{ID: "x", Text: "first done", Completed: true, CreatedAt: time.Now()},
		{ID: "y", Text: "second done", Completed: true, CreatedAt: time.Now().Add(-time.Hour)},
		{ID: "z", Text: "open", CreatedAt: time.Now().Add(-2 * time.Hour)},
	}
	todos := partialDelete{newFakeTodos(seed)}
	list := NewTaskList(todos, repository.NewMemoryCategoryRepository(nil), Options{})
	require.NoError(t, list.Load(ctx))

	removed, err := list.DeleteCompleted(ctx)
	assert.ErrorIs(t, err, repository.ErrRejected)
	assert.Equal(t, "Failed to delete task", Notice(err))
	assert.Equal(t, []string{"x"}, ids(removed))

	stored, err := todos.inner.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids(stored), ids(list.Todos()))
	assert.Equal(t, []string{"y", "z"}, ids(list.Todos()))
}

func TestCascadeReachesTodosOutsideLocalState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	work := model.Category{Name: "Work"}
	list, todos, _ := newTestList(nil, []model.Category{work}, Options{CategoryPolicy: PolicyCascade})
	require.NoError(t, list.Load(ctx))

	// Written by another controller sharing the store.
	other, err := todos.inner.Create(ctx, model.TodoDraft{Text: "from elsewhere", Category: model.String("Work")})
	require.NoError(t, err)
	assert.Empty(t, list.Todos())

	_, err = list.UpdateCategory(ctx, "Work", model.CategoryPatch{Name: model.String("Office")})
	require.NoError(t, err)
	got, err := todos.inner.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "Office", got.CategoryName())

	_, err = list.DeleteCategory(ctx, "Office")
	require.NoError(t, err)
	got, err = todos.inner.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Category)
}

func TestCascadeListFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	list, todos, _ := newTestList(nil, []model.Category{{Name: "Work"}}, Options{CategoryPolicy: PolicyCascade})
	require.NoError(t, list.Load(ctx))

	todos.failOn("List", errStore)
	_, err := list.DeleteCategory(ctx, "Work")
	assert.ErrorIs(t, err, errStore)
	assert.Equal(t, "Failed to update categories", Notice(err))
	assert.Empty(t, list.Categories())
}
