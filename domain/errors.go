package domain

import "errors"

var (
	// ErrNotFound is returned when a publication or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned on unique constraint violations.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidStatus is returned for values outside the workflow.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidTransition is returned when a move breaks the workflow rules.
	ErrInvalidTransition = errors.New("status transition not allowed")
	// ErrInvalidDate is returned for dates not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("invalid date")
)
