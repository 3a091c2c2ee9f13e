package contract

import "errors"

var (
	ErrNotFound        = errors.New("referenced entity not found")
	ErrSlotUnavailable = errors.New("slot unavailable")
	ErrValidation      = errors.New("validation failed")
	ErrCollaborator    = errors.New("collaborator call failed")
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
)
