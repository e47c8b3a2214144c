package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParsePriority(t *testing.T) {
	t.Parallel()
	p, ok := ParsePriority(" HIGH ")
	assert.True(t, ok)
	assert.Equal(t, PriorityHigh, p)

	p, ok = ParsePriority("urgent")
	assert.False(t, ok)
	assert.Equal(t, PriorityMedium, p)
	assert.Equal(t, PriorityMedium, Priority("").Normalize())
}

func TestTodoPatchApply(t *testing.T) {
	t.Parallel()
	due := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	todo := Todo{ID: "a", Text: "old", Priority: PriorityLow, Category: String("Work"), DueDate: &due}

	assert.True(t, TodoPatch{}.IsEmpty())
	TodoPatch{}.Apply(&todo)
	assert.Equal(t, "old", todo.Text)

	patch := TodoPatch{
		Text:          String("new"),
		Completed:     Bool(true),
		Priority:      PriorityOf("bogus"),
		ClearCategory: true,
		ClearDueDate:  true,
		Order:         Int(3),
	}
	assert.False(t, patch.IsEmpty())
	patch.Apply(&todo)

	assert.Equal(t, "new", todo.Text)
	assert.True(t, todo.Completed)
	assert.Equal(t, PriorityMedium, todo.Priority)
	assert.Nil(t, todo.Category)
	assert.Nil(t, todo.DueDate)
	assert.Equal(t, 3, todo.Order)
	assert.Equal(t, "", todo.CategoryName())
}

func TestTodoPatchCopiesPointers(t *testing.T) {
	t.Parallel()
	name := "Home"
	var todo Todo
	TodoPatch{Category: &name}.Apply(&todo)
	name = "Changed"
	assert.Equal(t, "Home", todo.CategoryName())
}

func TestCategoryWithDefaults(t *testing.T) {
	t.Parallel()
	c := Category{Name: "Bare"}.WithDefaults()
	assert.Equal(t, DefaultCategoryColor, c.Color)
	assert.Equal(t, DefaultCategoryIcon, c.Icon)

	c = Category{Name: "Set", Color: "#fff", Icon: "Star"}.WithDefaults()
	assert.Equal(t, "#fff", c.Color)
	assert.Equal(t, "Star", c.Icon)
}
