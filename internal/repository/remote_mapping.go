package repository

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"flowtask/internal/model"
	"flowtask/internal/recordstore"
)

const (
	todoTable     = "todo"
	categoryTable = "category"
)

var (
	todoFields = []string{
		"Name", "text", "completed", "priority", "due_date", "order", "category_id",
		"Tags", "Owner", "CreatedOn", "CreatedBy", "ModifiedOn", "ModifiedBy",
	}
	categoryFields = []string{
		"Name", "color", "icon", "Tags", "Owner",
		"CreatedOn", "CreatedBy", "ModifiedOn", "ModifiedBy",
	}
)

// todoRecord is a todo as the record store returns it. Every field may be absent.
type todoRecord struct {
	ID         *int64  `json:"Id"`
	Name       *string `json:"Name"`
	Text       *string `json:"text"`
	Completed  *bool   `json:"completed"`
	Priority   *string `json:"priority"`
	DueDate    *string `json:"due_date"`
	Order      *int    `json:"order"`
	CategoryID *lookup `json:"category_id"`
	CreatedOn  *string `json:"CreatedOn"`
	ModifiedOn *string `json:"ModifiedOn"`
}

type categoryRecord struct {
	ID        *int64  `json:"Id"`
	Name      *string `json:"Name"`
	Color     *string `json:"color"`
	Icon      *string `json:"icon"`
	CreatedOn *string `json:"CreatedOn"`
}

// lookup is a reference field. The store returns {"Id":..,"displayValue":..};
// a bare string or number is accepted too.
type lookup struct {
	ID           int64  `json:"Id"`
	DisplayValue string `json:"displayValue"`
}

func (l *lookup) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || string(data) == "null":
		return nil
	case data[0] == '"':
		return json.Unmarshal(data, &l.DisplayValue)
	case data[0] == '{':
		type plain lookup
		return json.Unmarshal(data, (*plain)(l))
	default:
		id, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return err
		}
		l.ID = id
		return nil
	}
}

func decodeTodo(raw json.RawMessage, now time.Time) (model.Todo, error) {
	var rec todoRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.Todo{}, err
	}
	return rec.toModel(now), nil
}

func (r todoRecord) toModel(now time.Time) model.Todo {
	todo := model.Todo{
		Priority:  model.PriorityMedium,
		CreatedAt: parseTimestamp(r.CreatedOn, now),
		UpdatedAt: parseTimestamp(r.ModifiedOn, now),
	}
	if r.ID != nil {
		todo.ID = strconv.FormatInt(*r.ID, 10)
	}
	switch {
	case r.Text != nil && *r.Text != "":
		todo.Text = *r.Text
	case r.Name != nil:
		todo.Text = *r.Name
	}
	if r.Completed != nil {
		todo.Completed = *r.Completed
	}
	if r.Priority != nil {
		todo.Priority = model.Priority(*r.Priority).Normalize()
	}
	if r.Order != nil {
		todo.Order = *r.Order
	}
	if r.CategoryID != nil && r.CategoryID.DisplayValue != "" {
		name := r.CategoryID.DisplayValue
		todo.Category = &name
	}
	if r.DueDate != nil {
		if due, ok := parseDate(*r.DueDate); ok {
			todo.DueDate = &due
		}
	}
	return todo
}

func decodeCategory(raw json.RawMessage, now time.Time) (model.Category, int64, error) {
	var rec categoryRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.Category{}, 0, err
	}
	category := model.Category{CreatedAt: parseTimestamp(rec.CreatedOn, now)}
	if rec.Name != nil {
		category.Name = *rec.Name
	}
	if rec.Color != nil {
		category.Color = *rec.Color
	}
	if rec.Icon != nil {
		category.Icon = *rec.Icon
	}
	var id int64
	if rec.ID != nil {
		id = *rec.ID
	}
	return category.WithDefaults(), id, nil
}

func draftFields(draft model.TodoDraft) recordstore.Fields {
	fields := recordstore.Fields{
		"Name":        draft.Text,
		"text":        draft.Text,
		"completed":   false,
		"priority":    string(draft.Priority.Normalize()),
		"due_date":    nil,
		"order":       draft.Order,
		"category_id": nil,
	}
	if draft.DueDate != nil {
		fields["due_date"] = draft.DueDate.UTC().Format(time.RFC3339)
	}
	if draft.Category != nil && *draft.Category != "" {
		fields["category_id"] = *draft.Category
	}
	return fields
}

// patchFields maps only the fields present in the patch.
func patchFields(id int64, patch model.TodoPatch) recordstore.Fields {
	fields := recordstore.Fields{"Id": id}
	if patch.Text != nil {
		fields["Name"] = *patch.Text
		fields["text"] = *patch.Text
	}
	if patch.Completed != nil {
		fields["completed"] = *patch.Completed
	}
	if patch.Priority != nil {
		fields["priority"] = string(patch.Priority.Normalize())
	}
	switch {
	case patch.ClearDueDate:
		fields["due_date"] = nil
	case patch.DueDate != nil:
		fields["due_date"] = patch.DueDate.UTC().Format(time.RFC3339)
	}
	if patch.Order != nil {
		fields["order"] = *patch.Order
	}
	switch {
	case patch.ClearCategory:
		fields["category_id"] = nil
	case patch.Category != nil:
		fields["category_id"] = *patch.Category
	}
	return fields
}

func parseRecordID(id string) (int64, bool) {
	value, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}

func parseTimestamp(raw *string, fallback time.Time) time.Time {
	if raw == nil {
		return fallback
	}
	if t, ok := parseDate(*raw); ok {
		return t
	}
	return fallback
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isNotFound(err error) bool {
	var statusErr *recordstore.StatusError
	return errors.As(err, &statusErr) && statusErr.NotFound()
}
