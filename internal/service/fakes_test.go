package service

import (
	"context"
	"errors"
	"sync"

	"flowtask/internal/model"
	"flowtask/internal/repository"
)

var errStore = errors.New("store unavailable")

// fakeTodos wraps the memory repository, counting calls and failing the
// methods named in fail.
type fakeTodos struct {
	inner *repository.MemoryTodoRepository

	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
	hold  chan struct{}
}

func newFakeTodos(seed []model.Todo) *fakeTodos {
	return &fakeTodos{
		inner: repository.NewMemoryTodoRepository(seed),
		calls: map[string]int{},
		fail:  map[string]error{},
	}
}

func (f *fakeTodos) enter(ctx context.Context, method string) error {
	f.mu.Lock()
	f.calls[method]++
	err := f.fail[method]
	hold := f.hold
	f.mu.Unlock()
	if hold != nil && method == "Update" {
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeTodos) failOn(method string, err error) {
	f.mu.Lock()
	f.fail[method] = err
	f.mu.Unlock()
}

func (f *fakeTodos) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeTodos) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeTodos) List(ctx context.Context) ([]model.Todo, error) {
	if err := f.enter(ctx, "List"); err != nil {
		return nil, err
	}
	return f.inner.List(ctx)
}

func (f *fakeTodos) Get(ctx context.Context, id string) (*model.Todo, error) {
	if err := f.enter(ctx, "Get"); err != nil {
		return nil, err
	}
	return f.inner.Get(ctx, id)
}

func (f *fakeTodos) Create(ctx context.Context, draft model.TodoDraft) (model.Todo, error) {
	if err := f.enter(ctx, "Create"); err != nil {
		return model.Todo{}, err
	}
	return f.inner.Create(ctx, draft)
}

func (f *fakeTodos) Update(ctx context.Context, id string, patch model.TodoPatch) (model.Todo, error) {
	if err := f.enter(ctx, "Update"); err != nil {
		return model.Todo{}, err
	}
	return f.inner.Update(ctx, id, patch)
}

func (f *fakeTodos) Delete(ctx context.Context, id string) (model.Todo, error) {
	if err := f.enter(ctx, "Delete"); err != nil {
		return model.Todo{}, err
	}
	return f.inner.Delete(ctx, id)
}

func (f *fakeTodos) BulkUpdate(ctx context.Context, ids []string, patch model.TodoPatch) ([]model.Todo, error) {
	if err := f.enter(ctx, "BulkUpdate"); err != nil {
		return nil, err
	}
	return f.inner.BulkUpdate(ctx, ids, patch)
}

func (f *fakeTodos) DeleteCompleted(ctx context.Context) ([]model.Todo, error) {
	if err := f.enter(ctx, "DeleteCompleted"); err != nil {
		return nil, err
	}
	return f.inner.DeleteCompleted(ctx)
}

// blockingCategories never answers List until ctx ends.
type blockingCategories struct {
	*repository.MemoryCategoryRepository
	started chan struct{}
}

func (b *blockingCategories) List(ctx context.Context) ([]model.Category, error) {
	close(b.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

type failingCategories struct {
	*repository.MemoryCategoryRepository
}

func (failingCategories) List(context.Context) ([]model.Category, error) {
	return nil, errStore
}

// partialDelete deletes the first completed todo only and rejects the rest.
type partialDelete struct {
	*fakeTodos
}

func (p partialDelete) DeleteCompleted(ctx context.Context) ([]model.Todo, error) {
	all, err := p.inner.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, todo := range all {
		if todo.Completed {
			removed, err := p.inner.Delete(ctx, todo.ID)
			if err != nil {
				return nil, err
			}
			return []model.Todo{removed}, repository.ErrRejected
		}
	}
	return []model.Todo{}, nil
}
