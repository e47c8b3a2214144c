package service

import (
	"fmt"
	"math"
	"strings"
	"time"

	"flowtask/internal/model"
)

// Filter selects todos by completion.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterActive    Filter = "active"
	FilterCompleted Filter = "completed"
)

func ParseFilter(raw string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(raw))); f {
	case FilterAll, FilterActive, FilterCompleted:
		return f, nil
	default:
		return "", fmt.Errorf("%w %q", ErrInvalidFilter, raw)
	}
}

func (f Filter) matches(todo model.Todo) bool {
	switch f {
	case FilterActive:
		return !todo.Completed
	case FilterCompleted:
		return todo.Completed
	default:
		return true
	}
}

// FilterTodos returns the visible subsequence in input order. Search is a
// case-insensitive substring match on text; todos without an id are skipped.
func FilterTodos(todos []model.Todo, filter Filter, search string) []model.Todo {
	needle := strings.ToLower(search)
	out := make([]model.Todo, 0, len(todos))
	for _, todo := range todos {
		if todo.ID == "" || !filter.matches(todo) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(todo.Text), needle) {
			continue
		}
		out = append(out, todo)
	}
	return out
}

// Stats summarizes completion over the full collection.
type Stats struct {
	Total      int
	Completed  int
	Active     int
	Percentage int
}

func ComputeStats(todos []model.Todo) Stats {
	s := Stats{Total: len(todos)}
	for _, todo := range todos {
		if todo.Completed {
			s.Completed++
		}
	}
	s.Active = s.Total - s.Completed
	if s.Total > 0 {
		s.Percentage = int(math.Round(100 * float64(s.Completed) / float64(s.Total)))
	}
	return s
}

// DueStatus classifies a due date relative to now.
type DueStatus string

const (
	DueNone     DueStatus = ""
	DueOverdue  DueStatus = "overdue"
	DueToday    DueStatus = "today"
	DueTomorrow DueStatus = "tomorrow"
	DueFuture   DueStatus = "future"
)

type DueBadge struct {
	Status DueStatus
	Days   int
	Label  string
}

// ClassifyDue rounds the distance to the due date up to whole days.
func ClassifyDue(due *time.Time, now time.Time) DueBadge {
	if due == nil {
		return DueBadge{}
	}
	days := int(math.Ceil(due.Sub(now).Hours() / 24))
	switch {
	case days < 0:
		return DueBadge{Status: DueOverdue, Days: days, Label: "Overdue"}
	case days == 0:
		return DueBadge{Status: DueToday, Label: "Today"}
	case days == 1:
		return DueBadge{Status: DueTomorrow, Days: 1, Label: "Tomorrow"}
	default:
		return DueBadge{Status: DueFuture, Days: days, Label: fmt.Sprintf("%d days", days)}
	}
}

// CategoryStyle returns the color and icon of the named category, or the
// defaults when the name is empty or dangling.
func CategoryStyle(categories []model.Category, name string) (color, icon string) {
	for _, c := range categories {
		if c.Name == name && name != "" {
			c = c.WithDefaults()
			return c.Color, c.Icon
		}
	}
	return model.DefaultCategoryColor, model.DefaultCategoryIcon
}
