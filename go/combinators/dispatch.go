package combinators

import (
	"context"

	"go.skia.org/infra/go/skerr"

	"go.skia.org/taskgraph/go/engine"
	"go.skia.org/taskgraph/go/event"
	"go.skia.org/taskgraph/go/types"
)

// dispatch looks up a sub-evaluator in a map by a key derived from the
// evaluation call, falling back to a default for unmapped keys. A missing
// key with no default is an error.
type dispatch[K comparable] struct {
	key          func(task *types.NormalizedTask, ev *event.Event) K
	evaluatorMap map[K]engine.Evaluator
	defaultEval  engine.Evaluator
}

// Evaluate implements engine.Evaluator.
func (d *dispatch[K]) Evaluate(ctx context.Context, task *types.NormalizedTask, ev *event.Event, acc engine.Accumulator) ([]engine.Action, error) {
	key := d.key(task, ev)
	e, ok := d.evaluatorMap[key]
	if !ok {
		if d.defaultEval == nil {
			return nil, skerr.Fmt("no evaluator registered for %v and no default given", key)
		}
		e = d.defaultEval
	}
	return e.Evaluate(ctx, task, ev, acc)
}

// NewDispatchByEventType returns an evaluator which dispatches on the type of
// the incoming event. defaultEval may be nil, in which case an unmapped
// event type is an error.
func NewDispatchByEventType(evaluatorMap map[string]engine.Evaluator, defaultEval engine.Evaluator) engine.Evaluator {
	return &dispatch[string]{
		key: func(_ *types.NormalizedTask, ev *event.Event) string {
			return ev.Type
		},
		evaluatorMap: evaluatorMap,
		defaultEval:  defaultEval,
	}
}

// NewDispatchByTaskState returns an evaluator which dispatches on the current
// state of the task being evaluated.
func NewDispatchByTaskState(evaluatorMap map[types.TaskState]engine.Evaluator, defaultEval engine.Evaluator) engine.Evaluator {
	return &dispatch[types.TaskState]{
		key: func(task *types.NormalizedTask, _ *event.Event) types.TaskState {
			return task.State
		},
		evaluatorMap: evaluatorMap,
		defaultEval:  defaultEval,
	}
}

// NewDispatchByTaskType returns an evaluator which dispatches on the type of
// the task being evaluated.
func NewDispatchByTaskType(evaluatorMap map[string]engine.Evaluator, defaultEval engine.Evaluator) engine.Evaluator {
	return &dispatch[string]{
		key: func(task *types.NormalizedTask, _ *event.Event) string {
			return task.TaskType
		},
		evaluatorMap: evaluatorMap,
		defaultEval:  defaultEval,
	}
}
