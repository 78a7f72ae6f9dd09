package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrNoBusID       = errors.New("no bus id")
	ErrNoPosition    = errors.New("no position data")
	ErrNoCoordinates = errors.New("no coordinates")
	ErrPlanParse     = errors.New("plan parse failed")

	ErrBlankQuery    = errors.New("blank query")
	ErrOutOfDomain   = errors.New("out of domain")
	ErrUnknownEntity = errors.New("unknown entity")
	ErrLowRelevance  = errors.New("low relevance")
)

// AbstainError is a guardrail refusal. Message is safe to show to the user.
type AbstainError struct {
	Check   string
	Value   string
	Message string
	Wrapped error
}

func (e *AbstainError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("abstain: %s: %s", e.Check, e.Wrapped)
	}
	return fmt.Sprintf("abstain: %s: %s (value=%q)", e.Check, e.Wrapped, e.Value)
}

func (e *AbstainError) Unwrap() error { return e.Wrapped }

// NewAbstainError creates an AbstainError.
func NewAbstainError(check, value, message string, wrapped error) *AbstainError {
	return &AbstainError{Check: check, Value: value, Message: message, Wrapped: wrapped}
}
