package engine

import (
	"context"

	"go.skia.org/infra/go/skerr"

	"go.skia.org/taskgraph/go/event"
	"go.skia.org/taskgraph/go/types"
)

// adjacencyEntry pairs a vertex with the IDs of the vertices it depends on.
type adjacencyEntry struct {
	vertex       *types.TaskVertex
	dependencies []string
}

func (e *adjacencyEntry) normalize() *types.NormalizedTask {
	return &types.NormalizedTask{
		ID:           e.vertex.ID,
		TaskType:     e.vertex.VertexType,
		Payload:      e.vertex.Payload.Copy(),
		State:        e.vertex.State,
		Dependencies: append([]string{}, e.dependencies...),
	}
}

// buildAdjacency validates the graph and converts it to an adjacency map,
// returning the terminal vertex IDs (vertices which are nobody's dependency,
// used as traversal roots) and the map. Duplicate edges collapse to one.
func buildAdjacency(graph *types.TaskGraph) ([]string, map[string]*adjacencyEntry, error) {
	if len(graph.Vertices) == 0 {
		return nil, nil, &MalformedGraphError{Reason: "graph has no vertices"}
	}
	adjacency := make(map[string]*adjacencyEntry, len(graph.Vertices))
	for _, v := range graph.Vertices {
		adjacency[v.ID] = &adjacencyEntry{vertex: v}
	}
	hasDependents := make(map[string]bool, len(graph.Vertices))
	seen := make(map[types.Dependency]bool, len(graph.Edges))
	for _, edge := range graph.Edges {
		from, ok := adjacency[edge.FromID]
		if !ok {
			return nil, nil, &InvalidDependencyError{FromID: edge.FromID, ToID: edge.ToID, UnknownID: edge.FromID}
		}
		if _, ok := adjacency[edge.ToID]; !ok {
			return nil, nil, &InvalidDependencyError{FromID: edge.FromID, ToID: edge.ToID, UnknownID: edge.ToID}
		}
		if seen[edge] {
			continue
		}
		seen[edge] = true
		from.dependencies = append(from.dependencies, edge.ToID)
		hasDependents[edge.ToID] = true
	}
	terminals := make([]string, 0, len(graph.Vertices))
	for _, v := range graph.Vertices {
		if !hasDependents[v.ID] {
			terminals = append(terminals, v.ID)
		}
	}
	if len(terminals) == 0 {
		return nil, nil, &MalformedGraphError{Reason: "every vertex is a dependency of another; the graph has no terminal vertex to start from"}
	}
	return terminals, adjacency, nil
}

// visitState tracks traversal progress for one vertex within one pass.
type visitState int

const (
	notEvaluated visitState = iota
	childrenPending
	evaluationDone
)

// walker performs one post-order depth-first pass over the graph, invoking
// the evaluator once per vertex after the vertex's dependencies have been
// evaluated, and collecting the actions returned.
//
// The stack is explicit rather than the call stack so that traversal depth
// is bounded only by the step budget, not by goroutine stack growth.
type walker struct {
	evaluator Evaluator
	event     *event.Event
	acc       Accumulator
	adjacency map[string]*adjacencyEntry
	terminals []string
	budget    *stepBudget
}

func (w *walker) run(ctx context.Context) ([]Action, error) {
	var actions []Action
	states := make(map[string]visitState, len(w.adjacency))
	stack := append(make([]string, 0, len(w.adjacency)), w.terminals...)
	for len(stack) > 0 {
		if err := w.budget.step(); err != nil {
			return nil, err
		}
		id := stack[len(stack)-1]
		switch states[id] {
		case notEvaluated:
			// Leave the vertex on the stack; we come back to it once its
			// dependencies have been evaluated.
			states[id] = childrenPending
			for _, dep := range w.adjacency[id].dependencies {
				if states[dep] == notEvaluated {
					stack = append(stack, dep)
				}
			}
		case childrenPending:
			newActions, err := w.evaluator.Evaluate(ctx, w.adjacency[id].normalize(), w.event, w.acc)
			if err != nil {
				return nil, skerr.Wrapf(err, "evaluating task %q", id)
			}
			actions = append(actions, newActions...)
			states[id] = evaluationDone
		case evaluationDone:
			stack = stack[:len(stack)-1]
		}
	}
	return actions, nil
}
