package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"flowtask/internal/model"
)

// SQLTodoRepository stores todos in the gorm database.
type SQLTodoRepository struct {
	db  *gorm.DB
	now Clock
}

func NewSQLTodoRepository(db *gorm.DB) *SQLTodoRepository {
	return &SQLTodoRepository{db: db, now: systemClock}
}

func (r *SQLTodoRepository) List(ctx context.Context) ([]model.Todo, error) {
	todos := make([]model.Todo, 0)
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&todos).Error; err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	return todos, nil
}

func (r *SQLTodoRepository) Get(ctx context.Context, id string) (*model.Todo, error) {
	var todo model.Todo
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&todo).Error
	switch {
	case err == nil:
		return &todo, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("get todo %s: %w", id, err)
	}
}

func (r *SQLTodoRepository) Create(ctx context.Context, draft model.TodoDraft) (model.Todo, error) {
	if strings.TrimSpace(draft.Text) == "" {
		return model.Todo{}, fmt.Errorf("create todo: %w: empty text", ErrRejected)
	}
	now := r.now()
	todo := model.Todo{
		ID:        uuid.New().String(),
		Text:      draft.Text,
		Priority:  draft.Priority.Normalize(),
		Order:     draft.Order,
		CreatedAt: now,
		UpdatedAt: now,
	}
	model.TodoPatch{Category: draft.Category, DueDate: draft.DueDate}.Apply(&todo)
	if err := r.db.WithContext(ctx).Create(&todo).Error; err != nil {
		return model.Todo{}, fmt.Errorf("create todo: %w", err)
	}
	return todo, nil
}

func (r *SQLTodoRepository) Update(ctx context.Context, id string, patch model.TodoPatch) (model.Todo, error) {
	var updated model.Todo
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		updated, err = r.updateTx(tx, id, patch)
		return err
	})
	if err != nil {
		return model.Todo{}, fmt.Errorf("update todo %s: %w", id, err)
	}
	return updated, nil
}

func (r *SQLTodoRepository) Delete(ctx context.Context, id string) (model.Todo, error) {
	var removed model.Todo
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&removed).Error; err != nil {
			return notFound(err)
		}
		return tx.Where("id = ?", id).Delete(&model.Todo{}).Error
	})
	if err != nil {
		return model.Todo{}, fmt.Errorf("delete todo %s: %w", id, err)
	}
	return removed, nil
}

// BulkUpdate applies patch to every existing id inside one transaction.
func (r *SQLTodoRepository) BulkUpdate(ctx context.Context, ids []string, patch model.TodoPatch) ([]model.Todo, error) {
	updated := make([]model.Todo, 0, len(ids))
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			todo, err := r.updateTx(tx, id, patch)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			updated = append(updated, todo)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bulk update todos: %w", err)
	}
	return updated, nil
}

func (r *SQLTodoRepository) DeleteCompleted(ctx context.Context) ([]model.Todo, error) {
	removed := make([]model.Todo, 0)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("completed = ?", true).Order("created_at DESC").Find(&removed).Error; err != nil {
			return err
		}
		if len(removed) == 0 {
			return nil
		}
		return tx.Where("completed = ?", true).Delete(&model.Todo{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("delete completed todos: %w", err)
	}
	return removed, nil
}

// updateTx writes only the patched columns. updated_at is set explicitly so
// the repository clock, not gorm's, decides it.
func (r *SQLTodoRepository) updateTx(tx *gorm.DB, id string, patch model.TodoPatch) (model.Todo, error) {
	var todo model.Todo
	if err := tx.Where("id = ?", id).First(&todo).Error; err != nil {
		return model.Todo{}, notFound(err)
	}
	patch.Apply(&todo)
	todo.UpdatedAt = touch(r.now, todo.UpdatedAt)

	columns := todoColumns(patch, todo)
	if err := tx.Model(&model.Todo{}).Where("id = ?", id).UpdateColumns(columns).Error; err != nil {
		return model.Todo{}, err
	}
	return todo, nil
}

func todoColumns(patch model.TodoPatch, todo model.Todo) map[string]any {
	columns := map[string]any{"updated_at": todo.UpdatedAt}
	if patch.Text != nil {
		columns["text"] = todo.Text
	}
	if patch.Completed != nil {
		columns["completed"] = todo.Completed
	}
	if patch.Priority != nil {
		columns["priority"] = todo.Priority
	}
	if patch.ClearCategory || patch.Category != nil {
		columns["category"] = todo.Category
	}
	if patch.ClearDueDate || patch.DueDate != nil {
		columns["due_date"] = todo.DueDate
	}
	if patch.Order != nil {
		columns["sort_order"] = todo.Order
	}
	return columns
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
