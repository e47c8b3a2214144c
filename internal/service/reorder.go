package service

import "flowtask/internal/model"

// NoDestination marks a drop outside any target.
const NoDestination = -1

// reorderVisible moves the visible item at from to position to. Visible items
// keep the slots they already occupy in all and get order equal to their new
// position; hidden items are untouched. It returns the new collection and the
// records whose order changed.
func reorderVisible(all []model.Todo, visible []model.Todo, from, to int) ([]model.Todo, []model.Todo) {
	slots := make([]int, 0, len(visible))
	index := make(map[string]int, len(all))
	for i, todo := range all {
		index[todo.ID] = i
	}
	for _, todo := range visible {
		if i, ok := index[todo.ID]; ok {
			slots = append(slots, i)
		}
	}

	moved := make([]model.Todo, len(visible))
	copy(moved, visible)
	item := moved[from]
	moved = append(moved[:from], moved[from+1:]...)
	moved = append(moved[:to], append([]model.Todo{item}, moved[to:]...)...)

	next := make([]model.Todo, len(all))
	copy(next, all)
	changed := make([]model.Todo, 0)
	for pos, todo := range moved {
		if pos >= len(slots) {
			break
		}
		prev := todo.Order
		todo.Order = pos
		next[slots[pos]] = todo
		if prev != pos {
			changed = append(changed, todo)
		}
	}
	return next, changed
}
