package dsstore

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.skia.org/infra/go/deepequal/assertdeep"
	"go.skia.org/infra/go/ds"

	"go.skia.org/taskgraph/go/db"
	"go.skia.org/taskgraph/go/engine"
	"go.skia.org/taskgraph/go/event"
	"go.skia.org/taskgraph/go/types"
)

func setup(t *testing.T) (*Store, string) {
	if os.Getenv("DATASTORE_EMULATOR_HOST") == "" {
		t.Skip("Manual test; requires a running Cloud Datastore emulator (DATASTORE_EMULATOR_HOST).")
	}
	require.NoError(t, ds.InitForTesting("test-project", "taskgraph-test"))
	store, err := New(ds.DS)
	require.NoError(t, err)
	// A fresh job per test keeps runs independent without cleanup.
	return store, uuid.New().String()
}

func testGraph() *types.TaskGraph {
	return &types.TaskGraph{
		Vertices: []*types.TaskVertex{
			{ID: "find_isolate", VertexType: "find_isolate", Payload: types.Payload{"revision": "abc123"}, State: types.TASK_STATE_PENDING},
			{ID: "read_value", VertexType: "read_value", State: types.TASK_STATE_PENDING},
			{ID: "run_test", VertexType: "run_test", State: types.TASK_STATE_PENDING},
		},
		Edges: []types.Dependency{
			{FromID: "read_value", ToID: "run_test"},
			{FromID: "run_test", ToID: "find_isolate"},
		},
	}
}

func TestPopulateAndGetTaskGraph(t *testing.T) {
	store, jobID := setup(t)
	ctx := context.Background()
	require.NoError(t, store.PopulateTaskGraph(ctx, jobID, testGraph()))

	graph, err := store.GetTaskGraph(ctx, jobID)
	require.NoError(t, err)

	// GetTaskGraph returns vertices sorted by ID.
	require.Len(t, graph.Vertices, 3)
	require.Equal(t, "find_isolate", graph.Vertices[0].ID)
	assertdeep.Equal(t, types.Payload{"revision": "abc123"}, graph.Vertices[0].Payload)
	require.Contains(t, graph.Edges, types.Dependency{FromID: "run_test", ToID: "find_isolate"})
	require.Contains(t, graph.Edges, types.Dependency{FromID: "read_value", ToID: "run_test"})
}

func TestPopulateReplacesPriorGraph(t *testing.T) {
	store, jobID := setup(t)
	ctx := context.Background()
	require.NoError(t, store.PopulateTaskGraph(ctx, jobID, testGraph()))

	replacement := &types.TaskGraph{
		Vertices: []*types.TaskVertex{
			{ID: "bisect", VertexType: "bisect", State: types.TASK_STATE_PENDING},
		},
	}
	require.NoError(t, store.PopulateTaskGraph(ctx, jobID, replacement))

	graph, err := store.GetTaskGraph(ctx, jobID)
	require.NoError(t, err)
	assertdeep.Equal(t, replacement, graph)
}

func TestUpdateTask(t *testing.T) {
	store, jobID := setup(t)
	ctx := context.Background()
	require.NoError(t, store.PopulateTaskGraph(ctx, jobID, testGraph()))

	require.NoError(t, store.UpdateTask(ctx, jobID, "find_isolate", types.TASK_STATE_ONGOING, types.Payload{"isolate_hash": "deadbeef"}))
	graph, err := store.GetTaskGraph(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, types.TASK_STATE_ONGOING, graph.Vertices[0].State)
	require.Equal(t, "deadbeef", graph.Vertices[0].Payload["isolate_hash"])

	err = store.UpdateTask(ctx, jobID, "run_test", types.TASK_STATE_COMPLETED, nil)
	require.Error(t, err)
	require.True(t, db.IsInvalidTransition(err))

	err = store.UpdateTask(ctx, jobID, "no-such-task", types.TASK_STATE_ONGOING, nil)
	require.Error(t, err)
	require.True(t, db.IsNotFound(err))
}

func TestExtendTaskGraph(t *testing.T) {
	store, jobID := setup(t)
	ctx := context.Background()
	require.NoError(t, store.PopulateTaskGraph(ctx, jobID, testGraph()))

	require.NoError(t, store.ExtendTaskGraph(ctx, jobID, []*types.TaskVertex{
		{ID: "read_value_1", VertexType: "read_value"},
	}, []types.Dependency{
		{FromID: "read_value_1", ToID: "run_test"},
	}))
	graph, err := store.GetTaskGraph(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, graph.Vertices, 4)

	err = store.ExtendTaskGraph(ctx, jobID, []*types.TaskVertex{
		{ID: "run_test", VertexType: "duplicate"},
	}, nil)
	require.Error(t, err)
	require.True(t, db.IsInvalidAmendment(err))

	err = store.ExtendTaskGraph(ctx, jobID, nil, []types.Dependency{
		{FromID: "unknown", ToID: "run_test"},
	})
	require.Error(t, err)
	require.True(t, db.IsNotFound(err))
}

func TestEvaluateAgainstDatastore(t *testing.T) {
	store, jobID := setup(t)
	ctx := context.Background()
	require.NoError(t, store.PopulateTaskGraph(ctx, jobID, testGraph()))

	// Start the leaf task when it is still pending; the second pass sees the
	// durable transition and converges.
	starter := engine.EvaluatorFunc(func(ctx context.Context, task *types.NormalizedTask, ev *event.Event, acc engine.Accumulator) ([]engine.Action, error) {
		acc[task.ID] = task.State
		if task.ID == "find_isolate" && task.State == types.TASK_STATE_PENDING {
			return []engine.Action{db.UpdateTaskAction(store, jobID, task.ID, types.TASK_STATE_ONGOING)}, nil
		}
		return nil, nil
	})
	acc, err := engine.Evaluate(ctx, event.Select(), starter, db.Loader(store, jobID))
	require.NoError(t, err)
	require.Equal(t, types.TASK_STATE_ONGOING, acc["find_isolate"])
}
