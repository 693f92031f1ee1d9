package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"go.skia.org/taskgraph/go/engine"
	"go.skia.org/taskgraph/go/event"
	"go.skia.org/taskgraph/go/types"
)

// transitionEvent asks the evaluation to move target from currentState to
// newState, mirroring how external updates drive a task graph forward.
func transitionEvent(target string, currentState, newState types.TaskState) *event.Event {
	return event.New("update", target, types.Payload{
		"current_state": currentState,
		"new_state":     newState,
	})
}

// transitionEvaluator applies the event's requested transition to its target
// task and propagates readiness through the rest of the graph: a task with an
// ongoing dependency becomes ongoing, a task whose dependencies have all
// completed becomes completed. It also lifts every task's state into the
// accumulator so each Evaluate call reports the resulting graph state.
func transitionEvaluator(d DB, jobID string) engine.Evaluator {
	return engine.EvaluatorFunc(func(ctx context.Context, task *types.NormalizedTask, ev *event.Event, acc engine.Accumulator) ([]engine.Action, error) {
		acc[task.ID] = task.State
		if task.ID != ev.TargetTask {
			anyOngoing := false
			allCompleted := len(task.Dependencies) > 0
			for _, dep := range task.Dependencies {
				if acc[dep] == types.TASK_STATE_ONGOING {
					anyOngoing = true
				}
				if acc[dep] != types.TASK_STATE_COMPLETED {
					allCompleted = false
				}
			}
			if anyOngoing && task.State != types.TASK_STATE_ONGOING {
				return []engine.Action{UpdateTaskAction(d, jobID, task.ID, types.TASK_STATE_ONGOING)}, nil
			}
			if allCompleted && task.State != types.TASK_STATE_COMPLETED {
				return []engine.Action{UpdateTaskAction(d, jobID, task.ID, types.TASK_STATE_COMPLETED)}, nil
			}
			return nil, nil
		}
		if task.State == ev.Payload["current_state"] {
			return []engine.Action{UpdateTaskAction(d, jobID, task.ID, ev.Payload["new_state"].(types.TaskState))}, nil
		}
		return nil, nil
	})
}

func setupGraph(t *testing.T) DB {
	d := NewInMemoryDB()
	require.NoError(t, d.PopulateTaskGraph(context.Background(), testJob, diamondGraph()))
	return d
}

func TestEvaluateStateTransitionProgressions(t *testing.T) {
	d := setupGraph(t)
	ctx := context.Background()
	evaluator := transitionEvaluator(d, testJob)
	load := Loader(d, testJob)

	steps := []struct {
		event  *event.Event
		expect engine.Accumulator
	}{
		{
			event: transitionEvent("task_0", types.TASK_STATE_PENDING, types.TASK_STATE_ONGOING),
			expect: engine.Accumulator{
				"task_0": types.TASK_STATE_ONGOING,
				"task_1": types.TASK_STATE_PENDING,
				"task_2": types.TASK_STATE_ONGOING,
			},
		},
		{
			event: transitionEvent("task_1", types.TASK_STATE_PENDING, types.TASK_STATE_ONGOING),
			expect: engine.Accumulator{
				"task_0": types.TASK_STATE_ONGOING,
				"task_1": types.TASK_STATE_ONGOING,
				"task_2": types.TASK_STATE_ONGOING,
			},
		},
		{
			event: transitionEvent("task_0", types.TASK_STATE_ONGOING, types.TASK_STATE_COMPLETED),
			expect: engine.Accumulator{
				"task_0": types.TASK_STATE_COMPLETED,
				"task_1": types.TASK_STATE_ONGOING,
				"task_2": types.TASK_STATE_ONGOING,
			},
		},
		{
			event: transitionEvent("task_1", types.TASK_STATE_ONGOING, types.TASK_STATE_COMPLETED),
			expect: engine.Accumulator{
				"task_0": types.TASK_STATE_COMPLETED,
				"task_1": types.TASK_STATE_COMPLETED,
				"task_2": types.TASK_STATE_COMPLETED,
			},
		},
	}
	for _, step := range steps {
		acc, err := engine.Evaluate(ctx, step.event, evaluator, load)
		require.NoError(t, err)
		require.Equal(t, step.expect, acc)
	}
}

func TestEvaluateInvalidTransition(t *testing.T) {
	d := setupGraph(t)
	// pending -> failed is not a legal transition; the action's write fails
	// and aborts the evaluation.
	_, err := engine.Evaluate(
		context.Background(),
		transitionEvent("task_0", types.TASK_STATE_PENDING, types.TASK_STATE_FAILED),
		transitionEvaluator(d, testJob),
		Loader(d, testJob),
	)
	require.Error(t, err)
	require.True(t, IsInvalidTransition(err))
}

func TestEvaluateInvalidAmendmentExistingTask(t *testing.T) {
	d := setupGraph(t)
	ctx := context.Background()
	// An evaluator whose action tries to re-add its own task to the graph.
	extender := engine.EvaluatorFunc(func(ctx context.Context, task *types.NormalizedTask, ev *event.Event, acc engine.Accumulator) ([]engine.Action, error) {
		if task.ID != ev.TargetTask {
			return nil, nil
		}
		return []engine.Action{func(ctx context.Context, _ engine.Accumulator) error {
			return d.ExtendTaskGraph(ctx, testJob, []*types.TaskVertex{
				{ID: task.ID, VertexType: "duplicate"},
			}, []types.Dependency{
				{FromID: "task_2", ToID: task.ID},
			})
		}}, nil
	})
	_, err := engine.Evaluate(ctx, event.New("extend", "task_0", nil), extender, Loader(d, testJob))
	require.Error(t, err)
	require.True(t, IsInvalidAmendment(err))
}

func TestEvaluateInvalidAmendmentBrokenDependency(t *testing.T) {
	d := setupGraph(t)
	ctx := context.Background()
	extender := engine.EvaluatorFunc(func(ctx context.Context, task *types.NormalizedTask, ev *event.Event, acc engine.Accumulator) ([]engine.Action, error) {
		if task.ID != ev.TargetTask {
			return nil, nil
		}
		return []engine.Action{func(ctx context.Context, _ engine.Accumulator) error {
			return d.ExtendTaskGraph(ctx, testJob, nil, []types.Dependency{
				{FromID: "unknown", ToID: task.ID},
			})
		}}, nil
	})
	_, err := engine.Evaluate(ctx, event.New("extend", "task_0", nil), extender, Loader(d, testJob))
	require.Error(t, err)
	require.True(t, IsNotFound(err))
}

// TestEvaluateGrowingGraph extends the graph from inside an evaluation and
// relies on the fixpoint loop to pick the new task up on the next pass.
func TestEvaluateGrowingGraph(t *testing.T) {
	d := NewInMemoryDB()
	ctx := context.Background()
	require.NoError(t, d.PopulateTaskGraph(ctx, testJob, &types.TaskGraph{
		Vertices: []*types.TaskVertex{
			{ID: "rev_0", VertexType: "revision"},
			{ID: "rev_100", VertexType: "revision"},
			{ID: "bisection", VertexType: "bisection"},
		},
		Edges: []types.Dependency{
			{FromID: "bisection", ToID: "rev_0"},
			{FromID: "bisection", ToID: "rev_100"},
		},
	}))
	grown := false
	grower := engine.EvaluatorFunc(func(ctx context.Context, task *types.NormalizedTask, ev *event.Event, acc engine.Accumulator) ([]engine.Action, error) {
		acc[task.ID] = task.State
		if task.TaskType == "bisection" && len(task.Dependencies) == 2 && !grown {
			grown = true
			return []engine.Action{func(ctx context.Context, _ engine.Accumulator) error {
				return d.ExtendTaskGraph(ctx, testJob, []*types.TaskVertex{
					{ID: "rev_50", VertexType: "revision"},
				}, []types.Dependency{
					{FromID: "bisection", ToID: "rev_50"},
				})
			}}, nil
		}
		return nil, nil
	})
	acc, err := engine.Evaluate(ctx, event.Select(), grower, Loader(d, testJob))
	require.NoError(t, err)
	require.Contains(t, acc, "rev_50")
	graph, err := d.GetTaskGraph(ctx, testJob)
	require.NoError(t, err)
	require.Len(t, graph.Vertices, 4)
}
