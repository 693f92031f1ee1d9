// Package combinators builds per-vertex evaluators out of smaller ones, so
// that the evaluator handed to the engine can be a composition of
// single-concern pieces instead of a monolith.
package combinators

import (
	"context"

	"go.skia.org/infra/go/skerr"

	"go.skia.org/taskgraph/go/engine"
	"go.skia.org/taskgraph/go/event"
	"go.skia.org/taskgraph/go/types"
)

// Noop is an evaluator which produces no actions.
var Noop = engine.EvaluatorFunc(func(ctx context.Context, task *types.NormalizedTask, ev *event.Event, acc engine.Accumulator) ([]engine.Action, error) {
	return nil, nil
})

// Predicate decides whether a Filtering evaluator delegates for a given
// evaluation call.
type Predicate func(task *types.NormalizedTask, ev *event.Event, acc engine.Accumulator) bool

// Sequence invokes a list of sub-evaluators in order with the same arguments
// and concatenates the actions they return.
type Sequence struct {
	evaluators []engine.Evaluator
}

// NewSequence returns a Sequence over the given sub-evaluators, of which
// there must be at least one.
func NewSequence(evaluators ...engine.Evaluator) (*Sequence, error) {
	if len(evaluators) == 0 {
		return nil, skerr.Fmt("a Sequence needs at least one evaluator")
	}
	return &Sequence{evaluators: evaluators}, nil
}

// Evaluate implements engine.Evaluator.
func (s *Sequence) Evaluate(ctx context.Context, task *types.NormalizedTask, ev *event.Event, acc engine.Accumulator) ([]engine.Action, error) {
	var actions []engine.Action
	for _, e := range s.evaluators {
		newActions, err := e.Evaluate(ctx, task, ev, acc)
		if err != nil {
			return nil, err
		}
		actions = append(actions, newActions...)
	}
	return actions, nil
}

// Filtering delegates to one evaluator when its predicate holds and to an
// alternative otherwise. Exactly one of the two is invoked per call.
type Filtering struct {
	predicate   Predicate
	delegate    engine.Evaluator
	alternative engine.Evaluator
}

// NewFiltering returns a Filtering evaluator. alternative may be nil, in
// which case non-matching calls are no-ops.
func NewFiltering(predicate Predicate, delegate engine.Evaluator, alternative engine.Evaluator) (*Filtering, error) {
	if predicate == nil {
		return nil, skerr.Fmt("a Filtering evaluator needs a predicate")
	}
	if delegate == nil {
		return nil, skerr.Fmt("a Filtering evaluator needs a delegate")
	}
	if alternative == nil {
		alternative = Noop
	}
	return &Filtering{
		predicate:   predicate,
		delegate:    delegate,
		alternative: alternative,
	}, nil
}

// Evaluate implements engine.Evaluator.
func (f *Filtering) Evaluate(ctx context.Context, task *types.NormalizedTask, ev *event.Event, acc engine.Accumulator) ([]engine.Action, error) {
	if f.predicate(task, ev, acc) {
		return f.delegate.Evaluate(ctx, task, ev, acc)
	}
	return f.alternative.Evaluate(ctx, task, ev, acc)
}
