package service

import (
	"errors"

	"github.com/garyjia/cost-reconciler/internal/domain/entity"
)

var (
	// ErrNotFound is returned when a referenced project, invoice or line item does not exist
	ErrNotFound = entity.ErrNotFound

	// ErrValidation is returned when input fails validation
	ErrValidation = entity.ErrInvalid

	// ErrBatchCancelled is reported when a batch run is aborted by its caller
	ErrBatchCancelled = errors.New("batch cancelled")
)
