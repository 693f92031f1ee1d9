package combinators

import (
	"context"

	"go.skia.org/infra/go/util"

	"go.skia.org/taskgraph/go/engine"
	"go.skia.org/taskgraph/go/event"
	"go.skia.org/taskgraph/go/types"
)

// Lifted is the per-task value which TaskPayloadLifting stores into the
// accumulator, keyed by task ID.
type Lifted struct {
	State   types.TaskState
	Payload types.Payload
}

// TaskPayloadLifting copies the current task's state and payload into the
// accumulator under the task's ID, so dependents and the final caller can see
// them. The zero value lifts every task on every event.
//
// Only the event-type filters are consulted when deciding whether to lift;
// the key filters are recorded but not applied, matching the behaviour this
// evaluator has always had.
type TaskPayloadLifting struct {
	ExcludeKeys       util.StringSet
	IncludeKeys       util.StringSet
	ExcludeEventTypes util.StringSet
	IncludeEventTypes util.StringSet
}

// Evaluate implements engine.Evaluator.
func (l *TaskPayloadLifting) Evaluate(ctx context.Context, task *types.NormalizedTask, ev *event.Event, acc engine.Accumulator) ([]engine.Action, error) {
	if l.ExcludeEventTypes[ev.Type] {
		return nil, nil
	}
	if len(l.IncludeEventTypes) > 0 && !l.IncludeEventTypes[ev.Type] {
		return nil, nil
	}
	acc[task.ID] = &Lifted{
		State:   task.State,
		Payload: task.Payload,
	}
	return nil, nil
}
