package models

import "errors"

var (
	ErrValidation       = errors.New("validation error")
	ErrProvider         = errors.New("provider error")
	ErrStoreUnavailable = errors.New("vector store unavailable")
	ErrGeneration       = errors.New("generation error")
	ErrConfig           = errors.New("config error")
)

// ValidationError carries a message meant for the end user.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
