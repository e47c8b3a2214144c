package repository

import (
	"context"
	"fmt"
	"strings"

	"flowtask/internal/model"
	"flowtask/internal/recordstore"
)

// RemoteTodoRepository passes todo operations through to the record store.
type RemoteTodoRepository struct {
	client   recordstore.Client
	pageSize int
	now      Clock
}

func NewRemoteTodoRepository(client recordstore.Client, pageSize int) *RemoteTodoRepository {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &RemoteTodoRepository{client: client, pageSize: pageSize, now: systemClock}
}

// List pages through the todo table, newest first as ordered by the store.
func (r *RemoteTodoRepository) List(ctx context.Context) ([]model.Todo, error) {
	return r.fetchAll(ctx, "list todos", nil)
}

// fetchAll pages through the todo records matching where until a short page.
func (r *RemoteTodoRepository) fetchAll(ctx context.Context, op string, where []recordstore.Condition) ([]model.Todo, error) {
	todos := make([]model.Todo, 0)
	for offset := 0; ; offset += r.pageSize {
		resp, err := r.client.FetchRecords(ctx, todoTable, recordstore.FetchParams{
			Fields:     todoFields,
			Where:      where,
			OrderBy:    []recordstore.OrderBy{{FieldName: "CreatedOn", SortType: recordstore.SortDesc}},
			PagingInfo: &recordstore.Paging{Limit: r.pageSize, Offset: offset},
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if !resp.Success {
			return nil, fmt.Errorf("%s: %w: %s", op, ErrRejected, resp.Message)
		}
		now := r.now()
		for _, raw := range resp.Data {
			todo, err := decodeTodo(raw, now)
			if err != nil || todo.ID == "" {
				continue
			}
			todos = append(todos, todo)
		}
		if len(resp.Data) < r.pageSize {
			return todos, nil
		}
	}
}

// Get returns nil for unknown or malformed ids.
func (r *RemoteTodoRepository) Get(ctx context.Context, id string) (*model.Todo, error) {
	recordID, ok := parseRecordID(id)
	if !ok {
		return nil, nil
	}
	resp, err := r.client.GetRecordByID(ctx, todoTable, recordID, recordstore.FetchParams{Fields: todoFields})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get todo %s: %w", id, err)
	}
	if !resp.Found() {
		return nil, nil
	}
	todo, err := decodeTodo(resp.Data, r.now())
	if err != nil {
		return nil, fmt.Errorf("decode todo %s: %w", id, err)
	}
	return &todo, nil
}

func (r *RemoteTodoRepository) Create(ctx context.Context, draft model.TodoDraft) (model.Todo, error) {
	resp, err := r.client.CreateRecords(ctx, todoTable, []recordstore.Fields{draftFields(draft)})
	if err != nil {
		return model.Todo{}, fmt.Errorf("create todo: %w", err)
	}
	return r.firstTodo("create todo", resp)
}

func (r *RemoteTodoRepository) Update(ctx context.Context, id string, patch model.TodoPatch) (model.Todo, error) {
	recordID, ok := parseRecordID(id)
	if !ok {
		return model.Todo{}, fmt.Errorf("update todo %s: %w", id, ErrNotFound)
	}
	resp, err := r.client.UpdateRecords(ctx, todoTable, []recordstore.Fields{patchFields(recordID, patch)})
	if err != nil {
		if isNotFound(err) {
			return model.Todo{}, fmt.Errorf("update todo %s: %w", id, ErrNotFound)
		}
		return model.Todo{}, fmt.Errorf("update todo %s: %w", id, err)
	}
	return r.firstTodo("update todo "+id, resp)
}

// Delete fetches the record first so it can report not-found and return it.
func (r *RemoteTodoRepository) Delete(ctx context.Context, id string) (model.Todo, error) {
	existing, err := r.Get(ctx, id)
	if err != nil {
		return model.Todo{}, err
	}
	if existing == nil {
		return model.Todo{}, fmt.Errorf("delete todo %s: %w", id, ErrNotFound)
	}
	recordID, _ := parseRecordID(id)
	resp, err := r.client.DeleteRecords(ctx, todoTable, []int64{recordID})
	if err != nil {
		return model.Todo{}, fmt.Errorf("delete todo %s: %w", id, err)
	}
	if _, err := resp.First(); err != nil {
		return model.Todo{}, fmt.Errorf("delete todo %s: %w: %v", id, ErrRejected, err)
	}
	return *existing, nil
}

// BulkUpdate sends one update carrying every parseable id. Records the store
// rejects are left out of the result.
func (r *RemoteTodoRepository) BulkUpdate(ctx context.Context, ids []string, patch model.TodoPatch) ([]model.Todo, error) {
	records := make([]recordstore.Fields, 0, len(ids))
	for _, id := range ids {
		if recordID, ok := parseRecordID(id); ok {
			records = append(records, patchFields(recordID, patch))
		}
	}
	if len(records) == 0 {
		return []model.Todo{}, nil
	}

	resp, err := r.client.UpdateRecords(ctx, todoTable, records)
	if err != nil {
		return nil, fmt.Errorf("bulk update todos: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("bulk update todos: %w: %s", ErrRejected, resp.Message)
	}

	now := r.now()
	updated := make([]model.Todo, 0, len(records))
	for _, res := range resp.Succeeded() {
		todo, err := decodeTodo(res.Data, now)
		if err != nil || todo.ID == "" {
			continue
		}
		updated = append(updated, todo)
	}
	return updated, nil
}

// DeleteCompleted queries every completed todo, then deletes them in one call.
// Only records the store confirms are returned; when some are rejected the
// confirmed ones come back together with ErrRejected.
func (r *RemoteTodoRepository) DeleteCompleted(ctx context.Context) ([]model.Todo, error) {
	completed, err := r.fetchAll(ctx, "fetch completed todos", []recordstore.Condition{{
		FieldName: "completed",
		Operator:  recordstore.OperatorExactMatch,
		Values:    []any{true},
	}})
	if err != nil {
		return nil, err
	}

	candidates := make([]model.Todo, 0, len(completed))
	ids := make([]int64, 0, len(completed))
	for _, todo := range completed {
		recordID, ok := parseRecordID(todo.ID)
		if !ok {
			continue
		}
		ids = append(ids, recordID)
		candidates = append(candidates, todo)
	}
	if len(ids) == 0 {
		return []model.Todo{}, nil
	}

	del, err := r.client.DeleteRecords(ctx, todoTable, ids)
	if err != nil {
		return nil, fmt.Errorf("delete completed todos: %w", err)
	}
	if !del.Success {
		return nil, fmt.Errorf("delete completed todos: %w: %s", ErrRejected, del.Message)
	}

	removed := make([]model.Todo, 0, len(candidates))
	rejected := make([]string, 0)
	for i, todo := range candidates {
		if i < len(del.Results) && del.Results[i].Success {
			removed = append(removed, todo)
			continue
		}
		rejected = append(rejected, todo.ID)
	}
	if len(rejected) > 0 {
		return removed, fmt.Errorf("delete completed todos %s: %w", strings.Join(rejected, ", "), ErrRejected)
	}
	return removed, nil
}

func (r *RemoteTodoRepository) firstTodo(op string, resp *recordstore.MutationResponse) (model.Todo, error) {
	first, err := resp.First()
	if err != nil {
		return model.Todo{}, fmt.Errorf("%s: %w: %v", op, ErrRejected, err)
	}
	todo, err := decodeTodo(first.Data, r.now())
	if err != nil {
		return model.Todo{}, fmt.Errorf("%s: decode: %w", op, err)
	}
	return todo, nil
}
