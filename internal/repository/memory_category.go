package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"flowtask/internal/model"
)

// MemoryCategoryRepository keeps categories in process memory, keyed by name.
type MemoryCategoryRepository struct {
	cfg        memoryConfig
	mu         sync.Mutex
	categories []model.Category
}

func NewMemoryCategoryRepository(seed []model.Category, opts ...MemoryOption) *MemoryCategoryRepository {
	categories := make([]model.Category, len(seed))
	copy(categories, seed)
	return &MemoryCategoryRepository{cfg: newMemoryConfig(opts), categories: categories}
}

// List returns categories in insertion order.
func (r *MemoryCategoryRepository) List(ctx context.Context) ([]model.Category, error) {
	if err := r.cfg.wait(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Category, len(r.categories))
	copy(out, r.categories)
	return out, nil
}

func (r *MemoryCategoryRepository) Get(ctx context.Context, name string) (*model.Category, error) {
	if err := r.cfg.wait(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexOf(name); i >= 0 {
		category := r.categories[i]
		return &category, nil
	}
	return nil, nil
}

func (r *MemoryCategoryRepository) Create(ctx context.Context, draft model.CategoryDraft) (model.Category, error) {
	if err := r.cfg.wait(ctx); err != nil {
		return model.Category{}, err
	}
	name := strings.TrimSpace(draft.Name)
	if name == "" {
		return model.Category{}, fmt.Errorf("create category: %w: empty name", ErrRejected)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(name) >= 0 {
		return model.Category{}, fmt.Errorf("create category %q: %w", name, ErrDuplicate)
	}
	category := model.Category{
		Name:      name,
		Color:     draft.Color,
		Icon:      draft.Icon,
		CreatedAt: r.cfg.now(),
	}.WithDefaults()
	r.categories = append(r.categories, category)
	return category, nil
}

// Update merges patch into the named category. A rename drops the old entry and
// appends a fresh one under the new name.
func (r *MemoryCategoryRepository) Update(ctx context.Context, name string, patch model.CategoryPatch) (model.Category, error) {
	if err := r.cfg.wait(ctx); err != nil {
		return model.Category{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(name)
	if i < 0 {
		return model.Category{}, fmt.Errorf("update category %q: %w", name, ErrNotFound)
	}
	category := r.categories[i]
	if patch.Color != nil {
		category.Color = *patch.Color
	}
	if patch.Icon != nil {
		category.Icon = *patch.Icon
	}
	category = category.WithDefaults()

	if patch.Name == nil || strings.TrimSpace(*patch.Name) == name {
		r.categories[i] = category
		return category, nil
	}

	renamed := strings.TrimSpace(*patch.Name)
	if renamed == "" {
		return model.Category{}, fmt.Errorf("update category %q: %w: empty name", name, ErrRejected)
	}
	if r.indexOf(renamed) >= 0 {
		return model.Category{}, fmt.Errorf("rename category %q to %q: %w", name, renamed, ErrDuplicate)
	}
	category.Name = renamed
	category.CreatedAt = r.cfg.now()
	r.categories = append(r.categories[:i], r.categories[i+1:]...)
	r.categories = append(r.categories, category)
	return category, nil
}

func (r *MemoryCategoryRepository) Delete(ctx context.Context, name string) (model.Category, error) {
	if err := r.cfg.wait(ctx); err != nil {
		return model.Category{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(name)
	if i < 0 {
		return model.Category{}, fmt.Errorf("delete category %q: %w", name, ErrNotFound)
	}
	removed := r.categories[i]
	r.categories = append(r.categories[:i], r.categories[i+1:]...)
	return removed, nil
}

func (r *MemoryCategoryRepository) indexOf(name string) int {
	for i := range r.categories {
		if r.categories[i].Name == name {
			return i
		}
	}
	return -1
}
