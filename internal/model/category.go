package model

import "time"

// Defaults applied when a category has no color or icon, or when a todo points
// at a category that no longer exists.
const (
	DefaultCategoryColor = "#64748b"
	DefaultCategoryIcon  = "Tag"
)

// Category groups todos by area. Name is the key; todos reference it by name.
type Category struct {
	Name      string    `gorm:"primaryKey" json:"name"`
	Color     string    `json:"color"`
	Icon      string    `json:"icon"`
	CreatedAt time.Time `json:"createdAt"`
}

// CategoryDraft carries the fields of a new category.
type CategoryDraft struct {
	Name  string
	Color string
	Icon  string
}

// CategoryPatch is a partial category update. A non-nil Name renames.
type CategoryPatch struct {
	Name  *string
	Color *string
	Icon  *string
}

// WithDefaults fills empty color and icon.
func (c Category) WithDefaults() Category {
	if c.Color == "" {
		c.Color = DefaultCategoryColor
	}
	if c.Icon == "" {
		c.Icon = DefaultCategoryIcon
	}
	return c
}
