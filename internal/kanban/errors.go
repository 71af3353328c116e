package kanban

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is matched by every InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrConflict is matched by every ConflictError.
	ErrConflict = errors.New("status conflict")
)

// InvalidTransitionError is returned when the state machine rejects a move.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("transition %s → %s is not allowed", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ConflictError is returned when the card's status changed under the caller.
// The caller should re-fetch and retry.
type ConflictError struct {
	CardID   string
	Expected Status
	Actual   Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("card %s: expected status %s, found %s", e.CardID, e.Expected, e.Actual)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }
