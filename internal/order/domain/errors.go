package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidEmail           = errors.New("invalid customer email")
	ErrOrderNotPending        = errors.New("order is not pending")
	ErrEmptyOrder             = errors.New("cannot confirm order without items")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrItemNotFound           = errors.New("order item not found")
)

// TransitionError is returned when the lifecycle table has no entry for a request.
type TransitionError struct {
	From   Status
	Action Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s order with status %s", e.Action, e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}
