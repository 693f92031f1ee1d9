// Package db defines the persistent task store which task graph evaluation
// runs against. The engine re-reads the graph from the store on every pass,
// and the actions produced by evaluators write state transitions back to it,
// so the store's conditional-update semantics are what make concurrent
// evaluation runs of the same job safe.
package db

import (
	"context"
	"errors"
	"fmt"

	"go.skia.org/infra/go/skerr"

	"go.skia.org/taskgraph/go/engine"
	"go.skia.org/taskgraph/go/types"
)

// ErrNotFound is returned when a referenced task does not exist in the store.
var ErrNotFound = errors.New("task with given ID does not exist")

// IsNotFound returns true iff the error indicates a missing task.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// InvalidTransitionError is returned by UpdateTask when the requested state
// change is not a legal transition.
type InvalidTransitionError struct {
	TaskID string
	From   types.TaskState
	To     types.TaskState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for task %q: %q -> %q", e.TaskID, e.From, e.To)
}

// IsInvalidTransition returns true iff the error is an
// InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	target := &InvalidTransitionError{}
	return errors.As(err, &target)
}

// InvalidAmendmentError is returned by ExtendTaskGraph when an added vertex
// collides with a task which already exists in the job's graph.
type InvalidAmendmentError struct {
	TaskID string
}

func (e *InvalidAmendmentError) Error() string {
	return fmt.Sprintf("invalid amendment: task %q already exists in the graph", e.TaskID)
}

// IsInvalidAmendment returns true iff the error is an InvalidAmendmentError.
func IsInvalidAmendment(err error) bool {
	target := &InvalidAmendmentError{}
	return errors.As(err, &target)
}

// DB stores task graphs, keyed by job ID. Implementations must make
// UpdateTask and ExtendTaskGraph atomic: two concurrent evaluation runs of
// the same job may both attempt the same transition, and the loser has to
// fail rather than silently overwrite.
type DB interface {
	// PopulateTaskGraph stores the given graph under the given job ID,
	// replacing any graph previously stored for that job. All edge endpoints
	// must name vertices present in the graph.
	PopulateTaskGraph(ctx context.Context, jobID string, graph *types.TaskGraph) error

	// GetTaskGraph returns a fresh snapshot of the job's graph. A job with
	// no tasks yields an empty graph, not an error.
	GetTaskGraph(ctx context.Context, jobID string) (*types.TaskGraph, error)

	// UpdateTask transitions the given task to newState, which must be a
	// legal transition from the task's current state. A non-nil payload
	// replaces the task's payload in the same write.
	UpdateTask(ctx context.Context, jobID, taskID string, newState types.TaskState, payload types.Payload) error

	// ExtendTaskGraph adds vertices and dependencies to the job's graph.
	// Added vertices must not collide with existing tasks, and every
	// dependency endpoint must exist once the new vertices are in place.
	ExtendTaskGraph(ctx context.Context, jobID string, vertices []*types.TaskVertex, dependencies []types.Dependency) error
}

// Loader adapts a job's graph in the DB to the engine's loader callback.
func Loader(d DB, jobID string) engine.GraphLoader {
	return func(ctx context.Context) (*types.TaskGraph, error) {
		return d.GetTaskGraph(ctx, jobID)
	}
}

// UpdateTaskAction returns an engine.Action which transitions the given task
// when executed. This is the usual shape of the actions returned by
// per-vertex evaluators.
func UpdateTaskAction(d DB, jobID, taskID string, newState types.TaskState) engine.Action {
	return func(ctx context.Context, _ engine.Accumulator) error {
		return skerr.Wrap(d.UpdateTask(ctx, jobID, taskID, newState, nil))
	}
}
