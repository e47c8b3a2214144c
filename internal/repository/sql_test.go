package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"flowtask/internal/model"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "nested", "flowtask.db"), zerolog.Nop())
	require.NoError(t, err)
	return db
}

func TestSQLTodoRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewSQLTodoRepository(openTestDB(t))
	repo.now = func() time.Time { return fixedNow }

	_, err := repo.Create(ctx, model.TodoDraft{Text: " "})
	require.ErrorIs(t, err, ErrRejected)

	due := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)
	created, err := repo.Create(ctx, model.TodoDraft{Text: "Buy milk", Priority: model.PriorityHigh, DueDate: &due})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.Completed)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Buy milk", got.Text)
	assert.Equal(t, model.PriorityHigh, got.Priority)
	require.NotNil(t, got.DueDate)
	assert.True(t, due.Equal(*got.DueDate))

	toggled, err := repo.Update(ctx, created.ID, model.TodoPatch{Completed: model.Bool(true), Category: model.String("Shopping")})
	require.NoError(t, err)
	assert.True(t, toggled.Completed)
	assert.True(t, toggled.UpdatedAt.After(created.UpdatedAt))

	back, err := repo.Update(ctx, created.ID, model.TodoPatch{Completed: model.Bool(false), ClearDueDate: true})
	require.NoError(t, err)
	assert.False(t, back.Completed)
	assert.Nil(t, back.DueDate)
	assert.True(t, back.UpdatedAt.After(toggled.UpdatedAt))

	stored, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Nil(t, stored.DueDate)
	assert.Equal(t, "Shopping", stored.CategoryName())
	assert.True(t, back.UpdatedAt.Equal(stored.UpdatedAt))

	_, err = repo.Update(ctx, "ghost", model.TodoPatch{Text: model.String("x")})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.Delete(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	missing, err := repo.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)

	removed, err := repo.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, removed.ID)

	todos, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, todos)
}

func TestSQLTodoBulkAndDeleteCompleted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewSQLTodoRepository(openTestDB(t))

	clock := fixedNow
	repo.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	a, err := repo.Create(ctx, model.TodoDraft{Text: "a"})
	require.NoError(t, err)
	b, err := repo.Create(ctx, model.TodoDraft{Text: "b"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, model.TodoDraft{Text: "c"})
	require.NoError(t, err)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].Text)
	assert.Equal(t, "a", list[2].Text)

	none, err := repo.DeleteCompleted(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)

	updated, err := repo.BulkUpdate(ctx, []string{b.ID, "ghost", a.ID}, model.TodoPatch{Completed: model.Bool(true)})
	require.NoError(t, err)
	require.Len(t, updated, 2)
	assert.Equal(t, b.ID, updated[0].ID)
	assert.Equal(t, a.ID, updated[1].ID)

	removed, err := repo.DeleteCompleted(ctx)
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	left, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "c", left[0].Text)
}

func TestSQLCategoryRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewSQLCategoryRepository(openTestDB(t))

	work, err := repo.Create(ctx, model.CategoryDraft{Name: "Work"})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultCategoryColor, work.Color)

	_, err = repo.Create(ctx, model.CategoryDraft{Name: "Work"})
	assert.ErrorIs(t, err, ErrDuplicate)

	updated, err := repo.Update(ctx, "Work", model.CategoryPatch{Icon: model.String("Briefcase")})
	require.NoError(t, err)
	assert.Equal(t, "Briefcase", updated.Icon)

	renamed, err := repo.Update(ctx, "Work", model.CategoryPatch{Name: model.String("Office")})
	require.NoError(t, err)
	assert.Equal(t, "Office", renamed.Name)
	assert.Equal(t, "Briefcase", renamed.Icon)

	old, err := repo.Get(ctx, "Work")
	require.NoError(t, err)
	assert.Nil(t, old)

	office, err := repo.Get(ctx, "Office")
	require.NoError(t, err)
	require.NotNil(t, office)
	assert.Equal(t, "Briefcase", office.Icon)

	_, err = repo.Delete(ctx, "Work")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.Update(ctx, "Work", model.CategoryPatch{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Delete(ctx, "Office")
	require.NoError(t, err)
	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSubscriberRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewSubscriberRepository(openTestDB(t))

	sub, err := repo.UpsertFromTelegram(ctx, 42, "Ada", "", "ada")
	require.NoError(t, err)
	assert.True(t, sub.DigestEnabled)

	again, err := repo.UpsertFromTelegram(ctx, 42, "Ada", "Lovelace", "ada")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, again.ID)
	assert.Equal(t, "Lovelace", again.LastName)

	_, err = repo.UpsertFromTelegram(ctx, 7, "Bob", "", "")
	require.NoError(t, err)
	require.NoError(t, repo.SetDigest(ctx, 7, false))

	enabled, err := repo.ListDigestEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, int64(42), enabled[0].ChatID)

	found, err := repo.FindByChatID(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.False(t, found.DigestEnabled)

	missing, err := repo.FindByChatID(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.ErrorIs(t, repo.SetDigest(ctx, 1, true), ErrNotFound)
}
