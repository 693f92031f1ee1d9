// Package engine evaluates task graphs. It repeatedly loads a snapshot of a
// graph from a caller-supplied loader, walks it in dependency order invoking
// a caller-supplied per-vertex evaluator, then runs the actions the
// evaluators produced, until a pass over the graph produces no actions.
//
// The engine itself is synchronous and stateless: all persistence lives
// behind the GraphLoader and whatever the actions write to, which makes an
// evaluation run safe to restart from scratch at any point.
package engine

import (
	"context"

	"go.skia.org/infra/go/skerr"
	"go.skia.org/infra/go/sklog"

	"go.skia.org/taskgraph/go/event"
	"go.skia.org/taskgraph/go/types"
)

// DefaultMaxIterations is the step budget used by Evaluate. Steps are counted
// across executed actions and traversal stack operations, not full passes.
const DefaultMaxIterations = 10000

// Accumulator is the mutable scratch mapping shared by per-vertex evaluators
// and actions during one pass over the graph. It is reset at the start of
// every pass; the final pass's accumulator is returned to the caller.
type Accumulator map[string]interface{}

// Action is a unit of deferred, side-effecting work produced by an Evaluator
// during a pass and executed once the pass finishes, eg. a state-transition
// write to the task store.
type Action func(ctx context.Context, acc Accumulator) error

// GraphLoader returns a fresh snapshot of the task graph, typically re-read
// from the task store so that each pass observes the durable effects of the
// previous pass's actions.
type GraphLoader func(ctx context.Context) (*types.TaskGraph, error)

// Evaluator is the per-vertex plug-in point: it is invoked exactly once per
// vertex per pass, after all of the vertex's dependencies have been
// evaluated. Implementations must not retain or mutate anything reachable
// from the graph snapshot other than the passed-in task view, which is theirs
// to scribble on.
type Evaluator interface {
	Evaluate(ctx context.Context, task *types.NormalizedTask, ev *event.Event, acc Accumulator) ([]Action, error)
}

// EvaluatorFunc adapts a plain function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, task *types.NormalizedTask, ev *event.Event, acc Accumulator) ([]Action, error)

// Evaluate implements Evaluator.
func (f EvaluatorFunc) Evaluate(ctx context.Context, task *types.NormalizedTask, ev *event.Event, acc Accumulator) ([]Action, error) {
	return f(ctx, task, ev, acc)
}

// Evaluate runs evaluation passes over the graph returned by load until a
// pass produces no actions, then returns that pass's accumulator. See
// EvaluateWithBudget for details.
func Evaluate(ctx context.Context, ev *event.Event, evaluator Evaluator, load GraphLoader) (Accumulator, error) {
	return EvaluateWithBudget(ctx, ev, evaluator, load, DefaultMaxIterations)
}

// EvaluateWithBudget is Evaluate with an explicit step budget. Each executed
// action and each traversal stack step consumes one unit of budget;
// exhausting it returns a TooManyIterationsError, which usually signals an
// evaluator producing actions which never change any persisted state.
//
// If load returns a graph with no vertices at all the run ends immediately
// with an empty accumulator; an evaluation can legitimately outlive its
// tasks. A non-empty graph with no terminal vertex, or with an edge naming
// an unknown vertex, is an error.
//
// Errors from load, the evaluator or an action abort the run. Actions
// already collected but not yet executed are discarded; no partial progress
// is committed by the engine itself.
func EvaluateWithBudget(ctx context.Context, ev *event.Event, evaluator Evaluator, load GraphLoader, maxIterations int) (Accumulator, error) {
	budget := &stepBudget{max: maxIterations}
	acc := Accumulator{}
	// Seed with a no-op so the first pass always runs.
	actions := []Action{func(context.Context, Accumulator) error { return nil }}
	for len(actions) > 0 {
		for _, a := range actions {
			if err := budget.step(); err != nil {
				return nil, err
			}
			if err := a(ctx, acc); err != nil {
				return nil, skerr.Wrapf(err, "running action")
			}
		}
		acc = Accumulator{}

		graph, err := load(ctx)
		if err != nil {
			return nil, skerr.Wrapf(err, "loading task graph")
		}
		if len(graph.Vertices) == 0 {
			sklog.Infof("Task graph is empty; nothing to evaluate.")
			return acc, nil
		}
		terminals, adjacency, err := buildAdjacency(graph)
		if err != nil {
			return nil, err
		}
		w := &walker{
			evaluator: evaluator,
			event:     ev,
			acc:       acc,
			adjacency: adjacency,
			terminals: terminals,
			budget:    budget,
		}
		actions, err = w.run(ctx)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// stepBudget is the shared step counter for one evaluation run.
type stepBudget struct {
	steps int
	max   int
}

func (b *stepBudget) step() error {
	b.steps++
	if b.steps > b.max {
		return &TooManyIterationsError{Budget: b.max}
	}
	return nil
}
