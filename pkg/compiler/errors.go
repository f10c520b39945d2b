package compiler

import (
	"fmt"
	"strings"

	fwerrors "github.com/synergenius-fw/flow-weaver-sub000/pkg/errors"
	"github.com/synergenius-fw/flow-weaver-sub000/pkg/workflow"
)

// StructuralError aggregates the structural issues that made a graph
// uncompilable. The compiler never attempts to generate code for a graph
// that produced one of these.
type StructuralError struct {
	Workflow string
	Issues   []workflow.Issue
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "workflow %q has %d structural error(s)", e.Workflow, len(e.Issues))
	for _, issue := range e.Issues {
		b.WriteString("\n  ")
		b.WriteString(issue.Error())
	}
	return b.String()
}

// Unwrap ties structural errors to the shared sentinel.
func (e *StructuralError) Unwrap() error {
	for _, issue := range e.Issues {
		switch issue.Code {
		case workflow.IssueCyclicDependency:
			return fwerrors.ErrCyclicGraph
		case workflow.IssueConflictingBranches:
			return fwerrors.ErrConflictingBranches
		}
	}
	return fwerrors.ErrInvalidGraph
}

// defect reports a generation-time invariant violation. These are compiler
// defects, never user errors, and abort compilation instead of emitting
// silently-incorrect code.
func defect(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", fwerrors.ErrInternalDefect, fmt.Sprintf(format, args...))
}
