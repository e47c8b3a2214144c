package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowtask/internal/model"
	"flowtask/internal/repository"
)

func TestDueEntries(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	todos := []model.Todo{
		{ID: "later", Text: "later", DueDate: day(2024, 1, 20)},
		{ID: "tomorrow", Text: "tomorrow", DueDate: day(2024, 1, 11)},
		{ID: "done", Text: "done", DueDate: day(2024, 1, 9), Completed: true},
		{ID: "late", Text: "late", DueDate: day(2024, 1, 8)},
		{ID: "none", Text: "none"},
		{ID: "today", Text: "today", DueDate: day(2024, 1, 10)},
	}

	entries := DueEntries(todos, nil, now)
	got := make([]string, 0, len(entries))
	for _, e := range entries {
		got = append(got, e.Todo.ID)
	}
	assert.Equal(t, []string{"late", "today", "tomorrow"}, got)
	assert.Equal(t, DueOverdue, entries[0].Badge.Status)
}

func TestDigestSummary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	todos := repository.NewMemoryTodoRepository([]model.Todo{
		{ID: "1", Text: "Pay <rent>", Priority: model.PriorityHigh, Category: model.String("Home"), DueDate: day(2024, 1, 10)},
		{ID: "2", Text: "Plan trip", DueDate: day(2024, 3, 1)},
	})
	svc := NewDigestService(todos, repository.NewMemoryCategoryRepository(nil))

	text, due, err := svc.Summary(ctx, now)
	require.NoError(t, err)
	assert.True(t, due)
	assert.Contains(t, text, "Pay &lt;rent&gt;")
	assert.Contains(t, text, "<i>(Home)</i>")
	assert.Contains(t, text, "Today")
	assert.NotContains(t, text, "Plan trip")

	empty := NewDigestService(repository.NewMemoryTodoRepository(nil), repository.NewMemoryCategoryRepository(nil))
	text, due, err = empty.Summary(ctx, now)
	require.NoError(t, err)
	assert.False(t, due)
	assert.Contains(t, text, "nothing due")
}

func TestBuildDailySpec(t *testing.T) {
	t.Parallel()
	spec, err := buildDailySpec("09:30")
	require.NoError(t, err)
	assert.Equal(t, "0 30 9 * * *", spec)

	_, err = buildDailySpec("9.30")
	assert.Error(t, err)
}

func TestSchedulerService(t *testing.T) {
	t.Parallel()
	s := NewSchedulerService(time.UTC, zerolog.Nop())
	_, err := s.ScheduleInterval(0, func() {})
	assert.Error(t, err)

	_, err = s.ScheduleInterval(time.Hour, func() {})
	require.NoError(t, err)
	_, err = s.ScheduleDaily("07:00", func() {})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Entries())

	s.Start()
	s.Stop()
}
