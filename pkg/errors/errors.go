// Package errors defines the sentinel and structured errors shared across
// the compiler and the execution runtime.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidGraph indicates the graph failed structural resolution.
	ErrInvalidGraph = errors.New("invalid workflow graph")

	// ErrCyclicGraph indicates a data-dependency cycle outside scope boundaries.
	ErrCyclicGraph = errors.New("cyclic dependency")

	// ErrConflictingBranches indicates a node whose predecessors lie in
	// mutually exclusive branches.
	ErrConflictingBranches = errors.New("predecessors in mutually exclusive branches")

	// ErrInternalDefect indicates a generation-time invariant violation.
	// It is a compiler defect, not a user error.
	ErrInternalDefect = errors.New("internal compiler defect")

	// ErrVariableNotFound indicates a getVariable on a key that was never set.
	ErrVariableNotFound = errors.New("variable not found")

	// ErrDuplicateVariable indicates a second setVariable on the same key.
	ErrDuplicateVariable = errors.New("variable already set")

	// ErrNoPullExecutor indicates a pull on an instance with no registered executor.
	ErrNoPullExecutor = errors.New("no pull executor registered")

	// ErrArtifactNotFound indicates a missing entry in an artifact store.
	ErrArtifactNotFound = errors.New("artifact not found")
)

// Error is a structured error carrying a machine-readable code.
type Error struct {
	// Code is a machine-readable error code.
	Code string

	// Message is a human-readable error message.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new structured error.
func New(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsStructural checks if an error originates from graph structure.
func IsStructural(err error) bool {
	return errors.Is(err, ErrInvalidGraph) ||
		errors.Is(err, ErrCyclicGraph) ||
		errors.Is(err, ErrConflictingBranches)
}

// IsInternalDefect checks if an error is a generation-time invariant violation.
func IsInternalDefect(err error) bool {
	return errors.Is(err, ErrInternalDefect)
}
