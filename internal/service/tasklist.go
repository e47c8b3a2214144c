package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"flowtask/internal/model"
)

// TodoRepository is the todo store the controller persists through.
type TodoRepository interface {
	List(ctx context.Context) ([]model.Todo, error)
	Get(ctx context.Context, id string) (*model.Todo, error)
	Create(ctx context.Context, draft model.TodoDraft) (model.Todo, error)
	Update(ctx context.Context, id string, patch model.TodoPatch) (model.Todo, error)
	Delete(ctx context.Context, id string) (model.Todo, error)
	BulkUpdate(ctx context.Context, ids []string, patch model.TodoPatch) ([]model.Todo, error)
	// DeleteCompleted may return the records it did delete alongside an error.
	DeleteCompleted(ctx context.Context) ([]model.Todo, error)
}

// CategoryRepository is the category store, keyed by name.
type CategoryRepository interface {
	List(ctx context.Context) ([]model.Category, error)
	Get(ctx context.Context, name string) (*model.Category, error)
	Create(ctx context.Context, draft model.CategoryDraft) (model.Category, error)
	Update(ctx context.Context, name string, patch model.CategoryPatch) (model.Category, error)
	Delete(ctx context.Context, name string) (model.Category, error)
}

// CategoryPolicy decides what happens to todos whose category is deleted or renamed.
type CategoryPolicy string

const (
	// PolicyFallback leaves dangling names; they render with the default style.
	PolicyFallback CategoryPolicy = "fallback"
	// PolicyCascade rewrites referencing todos after a confirmed delete or rename.
	PolicyCascade CategoryPolicy = "cascade"
)

const orderWorkers = 4

type Options struct {
	PersistOrder   bool
	CategoryPolicy CategoryPolicy
	RequestTimeout time.Duration
	Logger         zerolog.Logger
}

// EditState is the inline edit session. The zero value means idle.
type EditState struct {
	ID     string
	Buffer string
	seq    uint64
}

func (e EditState) Active() bool { return e.ID != "" }

// TaskList owns one user's todo collection and the view state around it.
// Local state changes only after the repository confirms a write.
type TaskList struct {
	todos      TodoRepository
	categories CategoryRepository
	opts       Options
	log        zerolog.Logger

	mu       sync.Mutex
	items    []model.Todo
	cats     []model.Category
	filter   Filter
	search   string
	edit     EditState
	editSeq  uint64
	loadedAt time.Time
}

func NewTaskList(todos TodoRepository, categories CategoryRepository, opts Options) *TaskList {
	if opts.CategoryPolicy == "" {
		opts.CategoryPolicy = PolicyFallback
	}
	return &TaskList{
		todos:      todos,
		categories: categories,
		opts:       opts,
		log:        opts.Logger.With().Str("component", "tasklist").Logger(),
		items:      []model.Todo{},
		cats:       []model.Category{},
		filter:     FilterAll,
	}
}

func (t *TaskList) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.opts.RequestTimeout > 0 {
		return context.WithTimeout(ctx, t.opts.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// Load fetches todos and categories concurrently and replaces both
// collections. On failure both are emptied. Nothing is applied when ctx ended
// while the fetches were in flight.
func (t *TaskList) Load(ctx context.Context) error {
	callCtx, cancel := t.scoped(ctx)
	defer cancel()

	var (
		todos []model.Todo
		cats  []model.Category
	)
	g, gctx := errgroup.WithContext(callCtx)
	g.Go(func() error {
		var err error
		todos, err = t.todos.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		cats, err = t.categories.List(gctx)
		return err
	})
	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.items = []model.Todo{}
		t.cats = []model.Category{}
		t.log.Warn().Err(err).Msg("load failed")
		return &OpError{Op: OpLoad, Err: err}
	}
	if todos == nil {
		todos = []model.Todo{}
	}
	if cats == nil {
		cats = []model.Category{}
	}
	t.items = todos
	t.cats = cats
	t.loadedAt = time.Now()
	t.log.Debug().Int("todos", len(todos)).Int("categories", len(cats)).Msg("loaded")
	return nil
}

// Loaded reports whether a Load has succeeded.
func (t *TaskList) Loaded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.loadedAt.IsZero()
}

// CreateInput is the add-task form.
type CreateInput struct {
	Text     string
	Priority model.Priority
	Category string
	DueDate  *time.Time
}

// Create persists a new todo and prepends the stored record.
func (t *TaskList) Create(ctx context.Context, in CreateInput) (model.Todo, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return model.Todo{}, ErrEmptyText
	}
	draft := model.TodoDraft{
		Text:     text,
		Priority: in.Priority.Normalize(),
		DueDate:  in.DueDate,
	}
	if name := strings.TrimSpace(in.Category); name != "" {
		draft.Category = &name
	}

	callCtx, cancel := t.scoped(ctx)
	defer cancel()
	created, err := t.todos.Create(callCtx, draft)
	if err != nil {
		t.log.Warn().Err(err).Msg("create failed")
		return model.Todo{}, &OpError{Op: OpCreate, Err: err}
	}

	t.mu.Lock()
	t.items = append([]model.Todo{created}, t.items...)
	t.mu.Unlock()
	t.log.Debug().Str("id", created.ID).Msg("created")
	return created, nil
}

// Toggle flips completion of a todo already in the list.
func (t *TaskList) Toggle(ctx context.Context, id string) (model.Todo, error) {
	current, ok := t.find(id)
	if !ok {
		return model.Todo{}, ErrNotInList
	}
	updated, err := t.update(ctx, OpToggle, id, model.TodoPatch{Completed: model.Bool(!current.Completed)})
	if err != nil {
		return model.Todo{}, err
	}
	return updated, nil
}

// Update applies patch to one todo and swaps in the stored record.
func (t *TaskList) Update(ctx context.Context, id string, patch model.TodoPatch) (model.Todo, error) {
	if patch.Text != nil {
		text := strings.TrimSpace(*patch.Text)
		if text == "" {
			return model.Todo{}, ErrEmptyText
		}
		patch.Text = &text
	}
	return t.update(ctx, OpUpdate, id, patch)
}

func (t *TaskList) update(ctx context.Context, op Op, id string, patch model.TodoPatch) (model.Todo, error) {
	callCtx, cancel := t.scoped(ctx)
	defer cancel()
	updated, err := t.todos.Update(callCtx, id, patch)
	if err != nil {
		t.log.Warn().Err(err).Str("id", id).Str("op", string(op)).Msg("update failed")
		return model.Todo{}, &OpError{Op: op, Err: err}
	}
	t.mu.Lock()
	t.replaceLocked(updated)
	t.mu.Unlock()
	return updated, nil
}

// Delete removes a todo from the store, then from the list.
func (t *TaskList) Delete(ctx context.Context, id string) (model.Todo, error) {
	callCtx, cancel := t.scoped(ctx)
	defer cancel()
	removed, err := t.todos.Delete(callCtx, id)
	if err != nil {
		t.log.Warn().Err(err).Str("id", id).Msg("delete failed")
		return model.Todo{}, &OpError{Op: OpDelete, Err: err}
	}

	t.mu.Lock()
	t.removeLocked(map[string]bool{id: true})
	if t.edit.ID == id {
		t.edit = EditState{}
	}
	t.mu.Unlock()
	return removed, nil
}

// BulkUpdate patches every listed todo the store still knows.
func (t *TaskList) BulkUpdate(ctx context.Context, ids []string, patch model.TodoPatch) ([]model.Todo, error) {
	if len(ids) == 0 {
		return []model.Todo{}, nil
	}
	callCtx, cancel := t.scoped(ctx)
	defer cancel()
	updated, err := t.todos.BulkUpdate(callCtx, ids, patch)
	if err != nil {
		t.log.Warn().Err(err).Int("ids", len(ids)).Msg("bulk update failed")
		return nil, &OpError{Op: OpBulkUpdate, Err: err}
	}

	t.mu.Lock()
	for _, todo := range updated {
		t.replaceLocked(todo)
	}
	t.mu.Unlock()
	return updated, nil
}

// CompleteMany marks the given todos completed.
func (t *TaskList) CompleteMany(ctx context.Context, ids []string) ([]model.Todo, error) {
	return t.BulkUpdate(ctx, ids, model.TodoPatch{Completed: model.Bool(true)})
}

// CompleteVisible completes every active todo in the current view.
func (t *TaskList) CompleteVisible(ctx context.Context) ([]model.Todo, error) {
	ids := make([]string, 0)
	for _, todo := range t.Visible() {
		if !todo.Completed {
			ids = append(ids, todo.ID)
		}
	}
	return t.CompleteMany(ctx, ids)
}

// DeleteCompleted removes every completed todo. Records the store confirms
// are dropped locally even when others were rejected.
func (t *TaskList) DeleteCompleted(ctx context.Context) ([]model.Todo, error) {
	callCtx, cancel := t.scoped(ctx)
	defer cancel()
	removed, err := t.todos.DeleteCompleted(callCtx)

	gone := make(map[string]bool, len(removed))
	for _, todo := range removed {
		gone[todo.ID] = true
	}
	if len(gone) > 0 {
		t.mu.Lock()
		t.removeLocked(gone)
		if gone[t.edit.ID] {
			t.edit = EditState{}
		}
		t.mu.Unlock()
	}
	if err != nil {
		t.log.Warn().Err(err).Int("removed", len(removed)).Msg("delete completed failed")
		return removed, &OpError{Op: OpDeleteComplete, Err: err}
	}
	return removed, nil
}

// StartEdit opens an edit session on id with its current text. Any previous
// session is replaced.
func (t *TaskList) StartEdit(id string) (EditState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexLocked(id)
	if i < 0 {
		return EditState{}, ErrNotInList
	}
	t.editSeq++
	t.edit = EditState{ID: id, Buffer: t.items[i].Text, seq: t.editSeq}
	return t.edit, nil
}

// SetEditBuffer replaces the in-progress text.
func (t *TaskList) SetEditBuffer(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.edit.Active() {
		return ErrNoEditSession
	}
	t.edit.Buffer = text
	return nil
}

// SaveEdit persists the buffer. An empty buffer cancels without a repository
// call and returns nil. The session ends whether or not the update succeeds.
func (t *TaskList) SaveEdit(ctx context.Context) (*model.Todo, error) {
	t.mu.Lock()
	session := t.edit
	if !session.Active() {
		t.mu.Unlock()
		return nil, ErrNoEditSession
	}
	text := strings.TrimSpace(session.Buffer)
	if text == "" {
		t.edit = EditState{}
		t.mu.Unlock()
		return nil, nil
	}
	t.mu.Unlock()

	callCtx, cancel := t.scoped(ctx)
	defer cancel()
	updated, err := t.todos.Update(callCtx, session.ID, model.TodoPatch{Text: &text})

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.edit.seq == session.seq {
		t.edit = EditState{}
	}
	if err != nil {
		t.log.Warn().Err(err).Str("id", session.ID).Msg("edit failed")
		return nil, &OpError{Op: OpEdit, Err: err}
	}
	t.replaceLocked(updated)
	return &updated, nil
}

// CancelEdit drops the session and its buffer.
func (t *TaskList) CancelEdit() {
	t.mu.Lock()
	t.edit = EditState{}
	t.mu.Unlock()
}

func (t *TaskList) Edit() EditState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.edit
}

// Reorder moves the item at from to to within the current view. Only visible
// items get a new order. With PersistOrder the changed orders are written
// back; local state keeps the new order even if that fails.
func (t *TaskList) Reorder(ctx context.Context, from, to int) error {
	if to == NoDestination {
		return nil
	}

	t.mu.Lock()
	visible := FilterTodos(t.items, t.filter, t.search)
	if from < 0 || from >= len(visible) || to < 0 || to >= len(visible) {
		t.mu.Unlock()
		return ErrIndexOutOfRange
	}
	next, changed := reorderVisible(t.items, visible, from, to)
	t.items = next
	t.mu.Unlock()

	t.log.Debug().Int("from", from).Int("to", to).Int("changed", len(changed)).Msg("reordered")
	if !t.opts.PersistOrder || len(changed) == 0 {
		return nil
	}
	return t.persistOrder(ctx, changed)
}

func (t *TaskList) persistOrder(ctx context.Context, changed []model.Todo) error {
	callCtx, cancel := t.scoped(ctx)
	defer cancel()

	results := make([]model.Todo, len(changed))
	g, gctx := errgroup.WithContext(callCtx)
	g.SetLimit(orderWorkers)
	for i, todo := range changed {
		g.Go(func() error {
			updated, err := t.todos.Update(gctx, todo.ID, model.TodoPatch{Order: model.Int(todo.Order)})
			if err != nil {
				return err
			}
			results[i] = updated
			return nil
		})
	}
	err := g.Wait()

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, updated := range results {
		if updated.ID == "" {
			continue
		}
		if i := t.indexLocked(updated.ID); i >= 0 && t.items[i].Order == updated.Order {
			t.items[i] = updated
		}
	}
	if err != nil {
		t.log.Warn().Err(err).Msg("persist order failed")
		return &OpError{Op: OpReorder, Err: err}
	}
	return nil
}

func (t *TaskList) SetFilter(f Filter) {
	t.mu.Lock()
	t.filter = f
	t.mu.Unlock()
}

func (t *TaskList) SetSearch(text string) {
	t.mu.Lock()
	t.search = text
	t.mu.Unlock()
}

// Todos returns a copy of the full collection.
func (t *TaskList) Todos() []model.Todo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Todo, len(t.items))
	copy(out, t.items)
	return out
}

// Visible returns the filtered and searched view.
func (t *TaskList) Visible() []model.Todo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return FilterTodos(t.items, t.filter, t.search)
}

func (t *TaskList) Categories() []model.Category {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Category, len(t.cats))
	copy(out, t.cats)
	return out
}

func (t *TaskList) CreateCategory(ctx context.Context, draft model.CategoryDraft) (model.Category, error) {
	callCtx, cancel := t.scoped(ctx)
	defer cancel()
	created, err := t.categories.Create(callCtx, draft)
	if err != nil {
		return model.Category{}, &OpError{Op: OpCategory, Err: err}
	}
	t.mu.Lock()
	t.cats = append(t.cats, created)
	t.mu.Unlock()
	return created, nil
}

// UpdateCategory changes color, icon or name. Under PolicyCascade a rename is
// carried over to referencing todos.
func (t *TaskList) UpdateCategory(ctx context.Context, name string, patch model.CategoryPatch) (model.Category, error) {
	callCtx, cancel := t.scoped(ctx)
	defer cancel()
	updated, err := t.categories.Update(callCtx, name, patch)
	if err != nil {
		return model.Category{}, &OpError{Op: OpCategory, Err: err}
	}

	t.mu.Lock()
	for i := range t.cats {
		if t.cats[i].Name == name {
			t.cats[i] = updated
			break
		}
	}
	t.mu.Unlock()

	if updated.Name != name && t.opts.CategoryPolicy == PolicyCascade {
		newName := updated.Name
		if err := t.cascade(ctx, name, model.TodoPatch{Category: &newName}); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

// DeleteCategory removes a category. Under PolicyCascade referencing todos
// have their category cleared.
func (t *TaskList) DeleteCategory(ctx context.Context, name string) (model.Category, error) {
	callCtx, cancel := t.scoped(ctx)
	defer cancel()
	removed, err := t.categories.Delete(callCtx, name)
	if err != nil {
		return model.Category{}, &OpError{Op: OpCategory, Err: err}
	}

	t.mu.Lock()
	kept := t.cats[:0]
	for _, c := range t.cats {
		if c.Name != name {
			kept = append(kept, c)
		}
	}
	t.cats = kept
	t.mu.Unlock()

	if t.opts.CategoryPolicy == PolicyCascade {
		if err := t.cascade(ctx, name, model.TodoPatch{ClearCategory: true}); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// cascade patches every stored todo referencing name, including ones this
// controller has not loaded.
func (t *TaskList) cascade(ctx context.Context, name string, patch model.TodoPatch) error {
	callCtx, cancel := t.scoped(ctx)
	stored, err := t.todos.List(callCtx)
	cancel()
	if err != nil {
		t.log.Warn().Err(err).Str("category", name).Msg("cascade list failed")
		return &OpError{Op: OpCascade, Err: err}
	}
	ids := make([]string, 0)
	for _, todo := range stored {
		if todo.CategoryName() == name {
			ids = append(ids, todo.ID)
		}
	}
	if _, err := t.BulkUpdate(ctx, ids, patch); err != nil {
		var opErr *OpError
		if errors.As(err, &opErr) {
			opErr.Op = OpCascade
		}
		return err
	}
	return nil
}

// Item is one row of the rendered view.
type Item struct {
	Todo    model.Todo
	Due     DueBadge
	Color   string
	Icon    string
	Editing bool
}

// View is everything the presentation layer renders, computed at now.
type View struct {
	Items      []Item
	Stats      Stats
	Filter     Filter
	Search     string
	Edit       EditState
	Categories []model.Category
}

func (t *TaskList) Snapshot(now time.Time) View {
	t.mu.Lock()
	defer t.mu.Unlock()

	visible := FilterTodos(t.items, t.filter, t.search)
	items := make([]Item, 0, len(visible))
	for _, todo := range visible {
		color, icon := CategoryStyle(t.cats, todo.CategoryName())
		items = append(items, Item{
			Todo:    todo,
			Due:     ClassifyDue(todo.DueDate, now),
			Color:   color,
			Icon:    icon,
			Editing: t.edit.ID == todo.ID,
		})
	}
	cats := make([]model.Category, len(t.cats))
	copy(cats, t.cats)
	return View{
		Items:      items,
		Stats:      ComputeStats(t.items),
		Filter:     t.filter,
		Search:     t.search,
		Edit:       t.edit,
		Categories: cats,
	}
}

func (t *TaskList) find(id string) (model.Todo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.indexLocked(id); i >= 0 {
		return t.items[i], true
	}
	return model.Todo{}, false
}

func (t *TaskList) indexLocked(id string) int {
	for i := range t.items {
		if t.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (t *TaskList) replaceLocked(todo model.Todo) {
	if i := t.indexLocked(todo.ID); i >= 0 {
		t.items[i] = todo
	}
}

func (t *TaskList) removeLocked(ids map[string]bool) {
	kept := make([]model.Todo, 0, len(t.items))
	for _, todo := range t.items {
		if !ids[todo.ID] {
			kept = append(kept, todo)
		}
	}
	t.items = kept
}
