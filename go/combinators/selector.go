package combinators

import (
	"go.skia.org/infra/go/skerr"

	"go.skia.org/taskgraph/go/engine"
	"go.skia.org/taskgraph/go/event"
	"go.skia.org/taskgraph/go/types"
)

// SelectorOptions configures NewSelector. At least one matcher must be set.
type SelectorOptions struct {
	// TaskType matches tasks of this type.
	TaskType string

	// EventType matches evaluations driven by events of this type.
	EventType string

	// Predicate matches whatever it likes.
	Predicate Predicate

	// Lifting overrides the lifting evaluator applied to matching tasks.
	Lifting *TaskPayloadLifting
}

// NewSelector returns an evaluator which lifts the state and payload of
// matching tasks into the accumulator. The matchers are a logical
// disjunction: a task is selected if ANY of the configured matchers matches,
// not all of them.
func NewSelector(opts SelectorOptions) (engine.Evaluator, error) {
	if opts.TaskType == "" && opts.EventType == "" && opts.Predicate == nil {
		return nil, skerr.Fmt("a Selector needs at least one of TaskType, EventType or Predicate")
	}
	lifting := opts.Lifting
	if lifting == nil {
		lifting = &TaskPayloadLifting{}
	}
	matches := func(task *types.NormalizedTask, ev *event.Event, acc engine.Accumulator) bool {
		if opts.TaskType != "" && task.TaskType == opts.TaskType {
			return true
		}
		if opts.EventType != "" && ev.Type == opts.EventType {
			return true
		}
		if opts.Predicate != nil && opts.Predicate(task, ev, acc) {
			return true
		}
		return false
	}
	return NewFiltering(matches, lifting, nil)
}
