package service

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"flowtask/internal/model"
)

// DigestService builds the due-soon summary sent to subscribers.
type DigestService struct {
	todos      TodoRepository
	categories CategoryRepository
}

func NewDigestService(todos TodoRepository, categories CategoryRepository) *DigestService {
	return &DigestService{todos: todos, categories: categories}
}

// DigestEntry is an active todo due no later than tomorrow.
type DigestEntry struct {
	Todo  model.Todo
	Badge DueBadge
	Icon  string
}

// DueEntries picks active todos that are overdue, due today or due tomorrow,
// earliest first.
func DueEntries(todos []model.Todo, categories []model.Category, now time.Time) []DigestEntry {
	entries := make([]DigestEntry, 0)
	for _, todo := range todos {
		if todo.Completed || todo.DueDate == nil {
			continue
		}
		badge := ClassifyDue(todo.DueDate, now)
		switch badge.Status {
		case DueOverdue, DueToday, DueTomorrow:
		default:
			continue
		}
		_, icon := CategoryStyle(categories, todo.CategoryName())
		entries = append(entries, DigestEntry{Todo: todo, Badge: badge, Icon: icon})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Todo.DueDate.Before(*entries[j].Todo.DueDate)
	})
	return entries
}

// Summary renders the digest as Telegram HTML. The second result is false when
// nothing is due.
func (s *DigestService) Summary(ctx context.Context, now time.Time) (string, bool, error) {
	todos, err := s.todos.List(ctx)
	if err != nil {
		return "", false, fmt.Errorf("list todos: %w", err)
	}
	categories, err := s.categories.List(ctx)
	if err != nil {
		return "", false, fmt.Errorf("list categories: %w", err)
	}

	entries := DueEntries(todos, categories, now)
	var builder strings.Builder
	builder.WriteString("📋 <b>Due digest</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("2006-01-02")))
	if len(entries) == 0 {
		builder.WriteString("🎉 nothing due today or tomorrow\n")
		return strings.TrimSpace(builder.String()), false, nil
	}
	for _, entry := range entries {
		builder.WriteString(formatDigestEntry(entry))
	}
	return strings.TrimSpace(builder.String()), true, nil
}

func formatDigestEntry(entry DigestEntry) string {
	var sb strings.Builder

	icon := "⏳"
	if entry.Badge.Status == DueOverdue {
		icon = "⚠️"
	}
	sb.WriteString(fmt.Sprintf("%s %s", icon, html.EscapeString(strings.TrimSpace(entry.Todo.Text))))

	if name := strings.TrimSpace(entry.Todo.CategoryName()); name != "" {
		sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(name)))
	}
	if entry.Todo.Priority == model.PriorityHigh {
		sb.WriteString(" ‼️")
	}
	sb.WriteString(fmt.Sprintf("\n   ⏰ %s · <b>%s</b>", entry.Todo.DueDate.Format("2006-01-02"), entry.Badge.Label))

	sb.WriteByte('\n')
	return sb.String()
}
