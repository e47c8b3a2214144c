package model

import (
	"strings"
	"time"
)

// Priority ranks a todo. Unknown values normalize to PriorityMedium.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority maps free-form input onto a Priority.
func ParsePriority(raw string) (Priority, bool) {
	switch Priority(strings.ToLower(strings.TrimSpace(raw))) {
	case PriorityLow:
		return PriorityLow, true
	case PriorityMedium:
		return PriorityMedium, true
	case PriorityHigh:
		return PriorityHigh, true
	default:
		return PriorityMedium, false
	}
}

// Normalize returns p, or PriorityMedium when p is not a known level.
func (p Priority) Normalize() Priority {
	normalized, _ := ParsePriority(string(p))
	return normalized
}

// Todo is a single task record. ID never changes once assigned.
type Todo struct {
	ID        string     `gorm:"primaryKey" json:"id"`
	Text      string     `gorm:"not null" json:"text"`
	Completed bool       `gorm:"default:false;index" json:"completed"`
	Priority  Priority   `gorm:"not null" json:"priority"`
	Category  *string    `gorm:"index" json:"category"`
	DueDate   *time.Time `json:"dueDate"`
	Order     int        `gorm:"column:sort_order;default:0" json:"order"`
	CreatedAt time.Time  `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// CategoryName returns the referenced category name or "".
func (t Todo) CategoryName() string {
	if t.Category == nil {
		return ""
	}
	return *t.Category
}

// TodoDraft carries the caller-provided fields of a new todo.
type TodoDraft struct {
	Text     string
	Priority Priority
	Category *string
	DueDate  *time.Time
	Order    int
}

// TodoPatch is a partial update. Nil fields are left untouched; the Clear flags
// reset nullable fields to null.
type TodoPatch struct {
	Text          *string
	Completed     *bool
	Priority      *Priority
	Category      *string
	ClearCategory bool
	DueDate       *time.Time
	ClearDueDate  bool
	Order         *int
}

// IsEmpty reports whether the patch changes nothing.
func (p TodoPatch) IsEmpty() bool {
	return p.Text == nil && p.Completed == nil && p.Priority == nil &&
		p.Category == nil && !p.ClearCategory &&
		p.DueDate == nil && !p.ClearDueDate && p.Order == nil
}

// Apply merges the patch into t. UpdatedAt is left to the caller.
func (p TodoPatch) Apply(t *Todo) {
	if p.Text != nil {
		t.Text = *p.Text
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Priority != nil {
		t.Priority = p.Priority.Normalize()
	}
	switch {
	case p.ClearCategory:
		t.Category = nil
	case p.Category != nil:
		name := *p.Category
		t.Category = &name
	}
	switch {
	case p.ClearDueDate:
		t.DueDate = nil
	case p.DueDate != nil:
		due := *p.DueDate
		t.DueDate = &due
	}
	if p.Order != nil {
		t.Order = *p.Order
	}
}

// Helpers for building patches inline.
func Bool(v bool) *bool { return &v }

func String(v string) *string { return &v }

func Int(v int) *int { return &v }

func PriorityOf(v Priority) *Priority { return &v }
