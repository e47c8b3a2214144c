package service

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyText       = errors.New("task text is empty")
	ErrNotInList       = errors.New("task is not in the list")
	ErrIndexOutOfRange = errors.New("position is out of range")
	ErrInvalidFilter   = errors.New("unknown filter")
	ErrNoEditSession   = errors.New("no task is being edited")
)

// Op names an intent that reached a repository.
type Op string

const (
	OpLoad           Op = "load"
	OpCreate         Op = "create"
	OpToggle         Op = "toggle"
	OpUpdate         Op = "update"
	OpEdit           Op = "edit"
	OpDelete         Op = "delete"
	OpBulkUpdate     Op = "bulk update"
	OpDeleteComplete Op = "delete completed"
	OpReorder        Op = "reorder"
	OpCategory       Op = "category"
	OpCascade        Op = "cascade"
)

// Success notices shown after a confirmed write.
const (
	NoticeCreated   = "Task created successfully!"
	NoticeCompleted = "Task completed!"
	NoticeReopened  = "Task reopened"
	NoticeDeleted   = "Task deleted"
	NoticeUpdated   = "Task updated!"
)

// OpError is a repository failure surfaced by the controller. Local state is
// left as it was before the intent.
type OpError struct {
	Op  Op
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Notice is the short user-facing message for the failure.
func (e *OpError) Notice() string {
	switch e.Op {
	case OpLoad:
		return "Failed to load tasks"
	case OpCreate:
		return "Failed to create task"
	case OpToggle, OpUpdate, OpEdit, OpBulkUpdate:
		return "Failed to update task"
	case OpDelete, OpDeleteComplete:
		return "Failed to delete task"
	case OpReorder:
		return "Failed to save task order"
	case OpCategory, OpCascade:
		return "Failed to update categories"
	default:
		return "Something went wrong"
	}
}

// Notice maps any controller error to a user-facing message.
func Notice(err error) string {
	var opErr *OpError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &opErr):
		return opErr.Notice()
	case errors.Is(err, ErrEmptyText):
		return "Task text cannot be empty"
	case errors.Is(err, ErrNotInList):
		return "That task is no longer in the list"
	case errors.Is(err, ErrIndexOutOfRange):
		return "No task at that position"
	case errors.Is(err, ErrInvalidFilter):
		return "Filter must be all, active or completed"
	case errors.Is(err, ErrNoEditSession):
		return "Nothing is being edited"
	default:
		return "Something went wrong"
	}
}
