package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"flowtask/internal/model"
)

// MemoryOption configures the in-memory repositories.
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	delay time.Duration
	now   Clock
	newID func() string
}

// WithDelay adds artificial latency to every call.
func WithDelay(d time.Duration) MemoryOption {
	return func(c *memoryConfig) { c.delay = d }
}

// WithClock pins the clock used for timestamps.
func WithClock(now Clock) MemoryOption {
	return func(c *memoryConfig) { c.now = now }
}

// WithIDGenerator replaces uuid-based id assignment.
func WithIDGenerator(fn func() string) MemoryOption {
	return func(c *memoryConfig) { c.newID = fn }
}

func newMemoryConfig(opts []MemoryOption) memoryConfig {
	cfg := memoryConfig{
		now:   systemClock,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// wait simulates latency and returns early when ctx is done.
func (c memoryConfig) wait(ctx context.Context) error {
	if c.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(c.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MemoryTodoRepository keeps todos in process memory, mutated in place.
type MemoryTodoRepository struct {
	cfg   memoryConfig
	mu    sync.Mutex
	todos []model.Todo
}

// NewMemoryTodoRepository starts from a copy of seed.
func NewMemoryTodoRepository(seed []model.Todo, opts ...MemoryOption) *MemoryTodoRepository {
	todos := make([]model.Todo, len(seed))
	copy(todos, seed)
	return &MemoryTodoRepository{cfg: newMemoryConfig(opts), todos: todos}
}

// List returns every todo, newest first.
func (r *MemoryTodoRepository) List(ctx context.Context) ([]model.Todo, error) {
	if err := r.cfg.wait(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Todo, len(r.todos))
	copy(out, r.todos)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Get returns the todo or nil when id is unknown.
func (r *MemoryTodoRepository) Get(ctx context.Context, id string) (*model.Todo, error) {
	if err := r.cfg.wait(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexOf(id); i >= 0 {
		todo := r.todos[i]
		return &todo, nil
	}
	return nil, nil
}

func (r *MemoryTodoRepository) Create(ctx context.Context, draft model.TodoDraft) (model.Todo, error) {
	if err := r.cfg.wait(ctx); err != nil {
		return model.Todo{}, err
	}
	if strings.TrimSpace(draft.Text) == "" {
		return model.Todo{}, fmt.Errorf("create todo: %w: empty text", ErrRejected)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.cfg.now()
	todo := model.Todo{
		ID:        r.cfg.newID(),
		Text:      draft.Text,
		Completed: false,
		Priority:  draft.Priority.Normalize(),
		Order:     draft.Order,
		CreatedAt: now,
		UpdatedAt: now,
	}
	model.TodoPatch{Category: draft.Category, DueDate: draft.DueDate}.Apply(&todo)
	r.todos = append(r.todos, todo)
	return todo, nil
}

func (r *MemoryTodoRepository) Update(ctx context.Context, id string, patch model.TodoPatch) (model.Todo, error) {
	if err := r.cfg.wait(ctx); err != nil {
		return model.Todo{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return model.Todo{}, fmt.Errorf("update todo %s: %w", id, ErrNotFound)
	}
	return r.applyLocked(i, patch), nil
}

func (r *MemoryTodoRepository) Delete(ctx context.Context, id string) (model.Todo, error) {
	if err := r.cfg.wait(ctx); err != nil {
		return model.Todo{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return model.Todo{}, fmt.Errorf("delete todo %s: %w", id, ErrNotFound)
	}
	removed := r.todos[i]
	r.todos = append(r.todos[:i], r.todos[i+1:]...)
	return removed, nil
}

// BulkUpdate patches every known id, skipping unknown ones, in input order.
func (r *MemoryTodoRepository) BulkUpdate(ctx context.Context, ids []string, patch model.TodoPatch) ([]model.Todo, error) {
	if err := r.cfg.wait(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	updated := make([]model.Todo, 0, len(ids))
	for _, id := range ids {
		if i := r.indexOf(id); i >= 0 {
			updated = append(updated, r.applyLocked(i, patch))
		}
	}
	return updated, nil
}

// DeleteCompleted removes and returns every completed todo.
func (r *MemoryTodoRepository) DeleteCompleted(ctx context.Context) ([]model.Todo, error) {
	if err := r.cfg.wait(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := make([]model.Todo, 0)
	kept := r.todos[:0]
	for _, todo := range r.todos {
		if todo.Completed {
			removed = append(removed, todo)
			continue
		}
		kept = append(kept, todo)
	}
	r.todos = kept
	return removed, nil
}

func (r *MemoryTodoRepository) applyLocked(i int, patch model.TodoPatch) model.Todo {
	todo := r.todos[i]
	patch.Apply(&todo)
	todo.UpdatedAt = touch(r.cfg.now, todo.UpdatedAt)
	r.todos[i] = todo
	return todo
}

func (r *MemoryTodoRepository) indexOf(id string) int {
	for i := range r.todos {
		if r.todos[i].ID == id {
			return i
		}
	}
	return -1
}
