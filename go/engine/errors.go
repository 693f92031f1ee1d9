package engine

import (
	"errors"
	"fmt"
)

// MalformedGraphError indicates a structural problem with the graph itself:
// it has no vertices, or no terminal vertex to use as a traversal root (which
// implies a dependency cycle). It is fatal; the engine does not retry.
type MalformedGraphError struct {
	Reason string
}

func (e *MalformedGraphError) Error() string {
	return fmt.Sprintf("malformed task graph: %s", e.Reason)
}

// IsMalformedGraph returns true iff the error is a MalformedGraphError.
func IsMalformedGraph(err error) bool {
	target := &MalformedGraphError{}
	return errors.As(err, &target)
}

// InvalidDependencyError indicates that an edge references a vertex ID which
// is not present in the graph's vertex set.
type InvalidDependencyError struct {
	FromID string
	ToID   string

	// UnknownID is whichever of the two endpoints was not found.
	UnknownID string
}

func (e *InvalidDependencyError) Error() string {
	return fmt.Sprintf("dependency %q -> %q references unknown task %q", e.FromID, e.ToID, e.UnknownID)
}

// IsInvalidDependency returns true iff the error is an InvalidDependencyError.
func IsInvalidDependency(err error) bool {
	target := &InvalidDependencyError{}
	return errors.As(err, &target)
}

// TooManyIterationsError indicates that an evaluation run exceeded its step
// budget, counting both executed actions and traversal stack steps. It
// usually means some evaluator keeps producing actions which never change
// persisted state, so the run can never reach a fixpoint.
type TooManyIterationsError struct {
	Budget int
}

func (e *TooManyIterationsError) Error() string {
	return fmt.Sprintf("task graph evaluation exceeded its budget of %d steps", e.Budget)
}

// IsTooManyIterations returns true iff the error is a TooManyIterationsError.
func IsTooManyIterations(err error) bool {
	target := &TooManyIterationsError{}
	return errors.As(err, &target)
}
