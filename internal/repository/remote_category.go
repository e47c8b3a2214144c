package repository

import (
	"context"
	"fmt"
	"strings"

	"flowtask/internal/model"
	"flowtask/internal/recordstore"
)

// RemoteCategoryRepository stores categories in the record store. The store
// keys records by numeric id; names are resolved with an exact-match query.
type RemoteCategoryRepository struct {
	client   recordstore.Client
	pageSize int
	now      Clock
}

func NewRemoteCategoryRepository(client recordstore.Client, pageSize int) *RemoteCategoryRepository {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &RemoteCategoryRepository{client: client, pageSize: pageSize, now: systemClock}
}

// List returns categories sorted by name.
func (r *RemoteCategoryRepository) List(ctx context.Context) ([]model.Category, error) {
	categories := make([]model.Category, 0)
	for offset := 0; ; offset += r.pageSize {
		resp, err := r.client.FetchRecords(ctx, categoryTable, recordstore.FetchParams{
			Fields:     categoryFields,
			OrderBy:    []recordstore.OrderBy{{FieldName: "Name", SortType: recordstore.SortAsc}},
			PagingInfo: &recordstore.Paging{Limit: r.pageSize, Offset: offset},
		})
		if err != nil {
			return nil, fmt.Errorf("list categories: %w", err)
		}
		if !resp.Success {
			return nil, fmt.Errorf("list categories: %w: %s", ErrRejected, resp.Message)
		}
		now := r.now()
		for _, raw := range resp.Data {
			category, _, err := decodeCategory(raw, now)
			if err != nil || category.Name == "" {
				continue
			}
			categories = append(categories, category)
		}
		if len(resp.Data) < r.pageSize {
			return categories, nil
		}
	}
}

func (r *RemoteCategoryRepository) Get(ctx context.Context, name string) (*model.Category, error) {
	category, _, err := r.resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	return category, nil
}

func (r *RemoteCategoryRepository) Create(ctx context.Context, draft model.CategoryDraft) (model.Category, error) {
	name := strings.TrimSpace(draft.Name)
	if name == "" {
		return model.Category{}, fmt.Errorf("create category: %w: empty name", ErrRejected)
	}
	existing, _, err := r.resolve(ctx, name)
	if err != nil {
		return model.Category{}, err
	}
	if existing != nil {
		return model.Category{}, fmt.Errorf("create category %q: %w", name, ErrDuplicate)
	}
	defaults := model.Category{Name: name, Color: draft.Color, Icon: draft.Icon}.WithDefaults()
	resp, err := r.client.CreateRecords(ctx, categoryTable, []recordstore.Fields{{
		"Name":  defaults.Name,
		"color": defaults.Color,
		"icon":  defaults.Icon,
	}})
	if err != nil {
		return model.Category{}, fmt.Errorf("create category: %w", err)
	}
	return r.firstCategory("create category", resp)
}

func (r *RemoteCategoryRepository) Update(ctx context.Context, name string, patch model.CategoryPatch) (model.Category, error) {
	existing, id, err := r.resolve(ctx, name)
	if err != nil {
		return model.Category{}, err
	}
	if existing == nil {
		return model.Category{}, fmt.Errorf("update category %q: %w", name, ErrNotFound)
	}

	fields := recordstore.Fields{"Id": id}
	if patch.Name != nil {
		newName := strings.TrimSpace(*patch.Name)
		if newName == "" {
			return model.Category{}, fmt.Errorf("rename category %q: %w: empty name", name, ErrRejected)
		}
		if newName != name {
			taken, _, err := r.resolve(ctx, newName)
			if err != nil {
				return model.Category{}, err
			}
			if taken != nil {
				return model.Category{}, fmt.Errorf("rename category %q to %q: %w", name, newName, ErrDuplicate)
			}
		}
		fields["Name"] = newName
	}
	if patch.Color != nil {
		fields["color"] = *patch.Color
	}
	if patch.Icon != nil {
		fields["icon"] = *patch.Icon
	}
	resp, err := r.client.UpdateRecords(ctx, categoryTable, []recordstore.Fields{fields})
	if err != nil {
		return model.Category{}, fmt.Errorf("update category %q: %w", name, err)
	}
	return r.firstCategory(fmt.Sprintf("update category %q", name), resp)
}

func (r *RemoteCategoryRepository) Delete(ctx context.Context, name string) (model.Category, error) {
	existing, id, err := r.resolve(ctx, name)
	if err != nil {
		return model.Category{}, err
	}
	if existing == nil {
		return model.Category{}, fmt.Errorf("delete category %q: %w", name, ErrNotFound)
	}
	resp, err := r.client.DeleteRecords(ctx, categoryTable, []int64{id})
	if err != nil {
		return model.Category{}, fmt.Errorf("delete category %q: %w", name, err)
	}
	if _, err := resp.First(); err != nil {
		return model.Category{}, fmt.Errorf("delete category %q: %w: %v", name, ErrRejected, err)
	}
	return *existing, nil
}

// resolve finds the category named name and its store id; nil when absent.
// A failed query is an error, never an absence.
func (r *RemoteCategoryRepository) resolve(ctx context.Context, name string) (*model.Category, int64, error) {
	resp, err := r.client.FetchRecords(ctx, categoryTable, recordstore.FetchParams{
		Fields: categoryFields,
		Where: []recordstore.Condition{{
			FieldName: "Name",
			Operator:  recordstore.OperatorExactMatch,
			Values:    []any{name},
		}},
		PagingInfo: &recordstore.Paging{Limit: 1},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("find category %q: %w", name, err)
	}
	if !resp.Success {
		return nil, 0, fmt.Errorf("find category %q: %w: %s", name, ErrRejected, resp.Message)
	}
	if len(resp.Data) == 0 {
		return nil, 0, nil
	}
	category, id, err := decodeCategory(resp.Data[0], r.now())
	if err != nil {
		return nil, 0, fmt.Errorf("decode category %q: %w", name, err)
	}
	return &category, id, nil
}

func (r *RemoteCategoryRepository) firstCategory(op string, resp *recordstore.MutationResponse) (model.Category, error) {
	first, err := resp.First()
	if err != nil {
		return model.Category{}, fmt.Errorf("%s: %w: %v", op, ErrRejected, err)
	}
	category, _, err := decodeCategory(first.Data, r.now())
	if err != nil {
		return model.Category{}, fmt.Errorf("%s: decode: %w", op, err)
	}
	return category, nil
}
