package lifecycle

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidState   = errors.New("invalid state")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrAlreadySettled = errors.New("already settled")
	ErrNotDeletable   = errors.New("not deletable")
	ErrInvalidInput   = errors.New("invalid input")
)

// StateError is returned by every rejected transition and names the state
// the entity was in when the operation was attempted.
type StateError struct {
	Entity string
	State  string
	Op     string
	Err    error
}

func (e *StateError) Error() string {
	switch {
	case errors.Is(e.Err, ErrAlreadySettled):
		return fmt.Sprintf("%s is %s and already settled: cannot %s", e.Entity, e.State, e.Op)
	case errors.Is(e.Err, ErrNotDeletable):
		return fmt.Sprintf("%s is %s and cannot be deleted", e.Entity, e.State)
	default:
		return fmt.Sprintf("%s is %s and not modifiable: cannot %s", e.Entity, e.State, e.Op)
	}
}

func (e *StateError) Unwrap() error {
	return e.Err
}

func stateError(entity string, state string, op string, err error) error {
	return &StateError{Entity: entity, State: state, Op: op, Err: err}
}
