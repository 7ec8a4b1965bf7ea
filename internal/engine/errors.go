package engine

import "fmt"

// ValidationError indicates a missing or malformed field, an unknown enum
// value, or a target of the wrong role.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// InvalidStateError indicates an operation that violates the current state
// of the entity, e.g. assigning an unverified problem.
type InvalidStateError struct {
	Reason string
}

func (e InvalidStateError) Error() string {
	return e.Reason
}
