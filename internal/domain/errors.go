package domain

import "errors"

var (
	// ErrNotFound is returned when a row does not exist or belongs to another user.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateStatement is returned when a statement with the same
	// source task id was already committed for the user.
	ErrDuplicateStatement = errors.New("statement already committed for this task")

	// ErrUnknownCategory is returned when an expense references a category
	// the user does not own.
	ErrUnknownCategory = errors.New("unknown category")
)
