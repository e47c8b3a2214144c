package repository

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"flowtask/internal/model"
)

//go:embed seed/todos.json
var seedTodosJSON []byte

//go:embed seed/categories.json
var seedCategoriesJSON []byte

// SeedTodos returns the collection the memory repository starts with when seeding is on.
func SeedTodos() ([]model.Todo, error) {
	var todos []model.Todo
	if err := json.Unmarshal(seedTodosJSON, &todos); err != nil {
		return nil, fmt.Errorf("decode seed todos: %w", err)
	}
	for i := range todos {
		todos[i].Priority = todos[i].Priority.Normalize()
	}
	return todos, nil
}

// SeedCategories returns the seeded category collection.
func SeedCategories() ([]model.Category, error) {
	var categories []model.Category
	if err := json.Unmarshal(seedCategoriesJSON, &categories); err != nil {
		return nil, fmt.Errorf("decode seed categories: %w", err)
	}
	for i := range categories {
		categories[i] = categories[i].WithDefaults()
	}
	return categories, nil
}
