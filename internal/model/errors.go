package model

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("not found")

// ValidationError wraps a user-facing validation message.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// NotFoundError is returned when a campaign or card is missing.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) succeed.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ExternalServiceError wraps a failure from a job source or the
// content-generation service. It is always retryable.
type ExternalServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Retryable is always true; callers use it through an interface check.
func (e *ExternalServiceError) Retryable() bool { return true }

// FatalSchedulerError is an unexpected fault during one campaign's tick.
// It is isolated to that campaign.
type FatalSchedulerError struct {
	CampaignID string
	Cause      error
}

func (e *FatalSchedulerError) Error() string {
	return fmt.Sprintf("campaign %s: fatal scheduler error: %v", e.CampaignID, e.Cause)
}

func (e *FatalSchedulerError) Unwrap() error { return e.Cause }
