package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"flowtask/internal/model"
)

// SQLCategoryRepository stores categories in the gorm database, keyed by name.
type SQLCategoryRepository struct {
	db  *gorm.DB
	now Clock
}

func NewSQLCategoryRepository(db *gorm.DB) *SQLCategoryRepository {
	return &SQLCategoryRepository{db: db, now: systemClock}
}

func (r *SQLCategoryRepository) List(ctx context.Context) ([]model.Category, error) {
	categories := make([]model.Category, 0)
	if err := r.db.WithContext(ctx).Order("created_at ASC, name ASC").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (r *SQLCategoryRepository) Get(ctx context.Context, name string) (*model.Category, error) {
	var category model.Category
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&category).Error
	switch {
	case err == nil:
		return &category, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("get category %q: %w", name, err)
	}
}

func (r *SQLCategoryRepository) Create(ctx context.Context, draft model.CategoryDraft) (model.Category, error) {
	name := strings.TrimSpace(draft.Name)
	if name == "" {
		return model.Category{}, fmt.Errorf("create category: %w: empty name", ErrRejected)
	}
	category := model.Category{
		Name:      name,
		Color:     draft.Color,
		Icon:      draft.Icon,
		CreatedAt: r.now(),
	}.WithDefaults()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureNameFree(tx, name); err != nil {
			return err
		}
		return tx.Create(&category).Error
	})
	if err != nil {
		return model.Category{}, fmt.Errorf("create category %q: %w", name, err)
	}
	return category, nil
}

// Update merges patch into the named category. A rename replaces the row.
func (r *SQLCategoryRepository) Update(ctx context.Context, name string, patch model.CategoryPatch) (model.Category, error) {
	var category model.Category
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("name = ?", name).First(&category).Error; err != nil {
			return notFound(err)
		}
		if patch.Color != nil {
			category.Color = *patch.Color
		}
		if patch.Icon != nil {
			category.Icon = *patch.Icon
		}
		category = category.WithDefaults()

		if patch.Name == nil || strings.TrimSpace(*patch.Name) == name {
			return tx.Model(&model.Category{}).Where("name = ?", name).
				UpdateColumns(map[string]any{"color": category.Color, "icon": category.Icon}).Error
		}

		renamed := strings.TrimSpace(*patch.Name)
		if renamed == "" {
			return fmt.Errorf("%w: empty name", ErrRejected)
		}
		if err := ensureNameFree(tx, renamed); err != nil {
			return err
		}
		if err := tx.Where("name = ?", name).Delete(&model.Category{}).Error; err != nil {
			return err
		}
		category.Name = renamed
		category.CreatedAt = r.now()
		return tx.Create(&category).Error
	})
	if err != nil {
		return model.Category{}, fmt.Errorf("update category %q: %w", name, err)
	}
	return category, nil
}

func (r *SQLCategoryRepository) Delete(ctx context.Context, name string) (model.Category, error) {
	var removed model.Category
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("name = ?", name).First(&removed).Error; err != nil {
			return notFound(err)
		}
		return tx.Where("name = ?", name).Delete(&model.Category{}).Error
	})
	if err != nil {
		return model.Category{}, fmt.Errorf("delete category %q: %w", name, err)
	}
	return removed, nil
}

func ensureNameFree(tx *gorm.DB, name string) error {
	var count int64
	if err := tx.Model(&model.Category{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicate
	}
	return nil
}
