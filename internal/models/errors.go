package models

import (
	"errors"
	"fmt"
)

var ErrTaskNotFound = errors.New("task not found")

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}
