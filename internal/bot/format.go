package bot

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"flowtask/internal/model"
	"flowtask/internal/service"
)

const dueDateLayout = "2006-01-02"

const helpText = `<b>Commands</b>
/tasks - show the list
/add &lt;text&gt; [!high|!low] [#category] [due:YYYY-MM-DD] - add a task
/done N - complete or reopen task N
/delete N - delete task N
/edit N - edit task N, then send the new text
/cancel - stop editing
/move N M - move task N to position M
/filter all|active|completed - choose what to show
/search &lt;text&gt; - search tasks, empty to reset
/completeall - complete every shown task
/clear - delete completed tasks
/stats - progress numbers
/categories - list categories
/category add &lt;name&gt; [#hex] [icon] - add a category
/category delete &lt;name&gt; - delete a category
/digest [on|off] - show or toggle the due digest
/reload - reload from the store`

var errNoPosition = errors.New("no position")

func escape(s string) string {
	return html.EscapeString(s)
}

// parseAddArgs reads "/add" arguments. Tokens starting with "!" set the
// priority, "#" the category and "due:" the due date; everything else is text.
func parseAddArgs(args string, loc *time.Location) (service.CreateInput, error) {
	var (
		input service.CreateInput
		words []string
	)
	for _, token := range strings.Fields(args) {
		switch {
		case strings.HasPrefix(token, "!") && len(token) > 1:
			p, ok := model.ParsePriority(token[1:])
			if !ok {
				return service.CreateInput{}, fmt.Errorf("unknown priority %q, use !low, !medium or !high", token[1:])
			}
			input.Priority = p
		case strings.HasPrefix(token, "#") && len(token) > 1:
			input.Category = token[1:]
		case strings.HasPrefix(strings.ToLower(token), "due:"):
			raw := token[len("due:"):]
			due, err := time.ParseInLocation(dueDateLayout, raw, loc)
			if err != nil {
				return service.CreateInput{}, fmt.Errorf("due date %q must look like 2024-01-31", raw)
			}
			input.DueDate = &due
		default:
			words = append(words, token)
		}
	}
	input.Text = strings.Join(words, " ")
	return input, nil
}

// todoAt resolves a 1-based position in the visible list.
func todoAt(list *service.TaskList, args string) (model.Todo, error) {
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return model.Todo{}, errNoPosition
	}
	visible := list.Visible()
	if n < 1 || n > len(visible) {
		return model.Todo{}, errNoPosition
	}
	return visible[n-1], nil
}

func formatTaskList(view service.View) string {
	var sb strings.Builder
	sb.WriteString("📋 <b>Tasks</b>")
	if view.Filter != service.FilterAll {
		sb.WriteString(fmt.Sprintf(" · %s", view.Filter))
	}
	if view.Search != "" {
		sb.WriteString(fmt.Sprintf(" · 🔎 <i>%s</i>", escape(view.Search)))
	}
	sb.WriteString("\n")

	if len(view.Items) == 0 {
		if view.Stats.Total == 0 {
			sb.WriteString("\nNo tasks yet. Add one with /add.")
		} else {
			sb.WriteString("\nNothing matches.")
		}
		return sb.String()
	}

	for i, item := range view.Items {
		sb.WriteString("\n")
		sb.WriteString(formatItem(i+1, item))
	}
	sb.WriteString("\n\n")
	sb.WriteString(formatStatsLine(view.Stats))
	return sb.String()
}

func formatItem(pos int, item service.Item) string {
	mark := "⬜"
	if item.Todo.Completed {
		mark = "✅"
	}
	text := escape(item.Todo.Text)
	if item.Todo.Completed {
		text = "<s>" + text + "</s>"
	}
	line := fmt.Sprintf("%d. %s %s", pos, mark, text)
	if item.Editing {
		line += " ✏️"
	}
	if item.Todo.Priority == model.PriorityHigh {
		line += " ‼️"
	}
	if name := item.Todo.CategoryName(); name != "" {
		line += fmt.Sprintf(" <i>#%s</i>", escape(name))
	}
	if item.Due.Status != service.DueNone && !item.Todo.Completed {
		line += fmt.Sprintf(" · ⏰ <b>%s</b>", item.Due.Label)
	}
	return line
}

func formatStatsLine(s service.Stats) string {
	return fmt.Sprintf("%d total · %d active · %d done (%d%%)", s.Total, s.Active, s.Completed, s.Percentage)
}

func formatStats(s service.Stats) string {
	return fmt.Sprintf("📊 <b>Progress</b>\nTotal: %d\nActive: %d\nCompleted: %d\nDone: %d%%", s.Total, s.Active, s.Completed, s.Percentage)
}

func formatCategories(categories []model.Category) string {
	if len(categories) == 0 {
		return "📂 No categories yet. Add one with /category add &lt;name&gt;."
	}
	var sb strings.Builder
	sb.WriteString("📂 <b>Categories</b>")
	for _, c := range categories {
		c = c.WithDefaults()
		sb.WriteString(fmt.Sprintf("\n• <b>%s</b> %s %s", escape(c.Name), escape(c.Color), escape(c.Icon)))
	}
	return sb.String()
}

// taskKeyboard builds one row of toggle and delete buttons per shown task.
func taskKeyboard(view service.View) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(view.Items) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(view.Items))
	for i, item := range view.Items {
		label := "✅ "
		if item.Todo.Completed {
			label = "↩️ "
		}
		label += fmt.Sprintf("%d. %s", i+1, shortTitle(item.Todo.Text, 24))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbTogglePrefix+item.Todo.ID),
			tgbotapi.NewInlineKeyboardButtonData("🗑", cbDeletePrefix+item.Todo.ID),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

func shortTitle(s string, limit int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= limit {
		return string(r)
	}
	return string(r[:limit-1]) + "…"
}
