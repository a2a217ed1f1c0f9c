package entity

import "errors"

var (
	// ErrInvalid is returned when an entity fails validation
	ErrInvalid = errors.New("invalid")

	// ErrNotFound is returned when a referenced entity does not exist
	ErrNotFound = errors.New("not found")
)
