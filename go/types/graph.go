package types

// Payload is the opaque data carried by a task vertex. Values are scalars,
// nested map[string]interface{} (or Payload), or []interface{}; anything else
// is copied by reference and should not be mutated by evaluators.
type Payload map[string]interface{}

// Copy returns a deep copy of the Payload.
func (p Payload) Copy() Payload {
	if p == nil {
		return nil
	}
	rv := make(Payload, len(p))
	for k, v := range p {
		rv[k] = copyValue(v)
	}
	return rv
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case Payload:
		return t.Copy()
	case map[string]interface{}:
		rv := make(map[string]interface{}, len(t))
		for k, v := range t {
			rv[k] = copyValue(v)
		}
		return rv
	case []interface{}:
		rv := make([]interface{}, 0, len(t))
		for _, e := range t {
			rv = append(rv, copyValue(e))
		}
		return rv
	case []string:
		return append([]string{}, t...)
	default:
		return v
	}
}

// TaskVertex is a single unit of work in a task graph. The evaluation engine
// never mutates a vertex; state and payload only change through actions
// writing to the task store.
type TaskVertex struct {
	// ID is unique within a graph.
	ID string

	// VertexType identifies which task-specific evaluator understands this
	// vertex.
	VertexType string

	Payload Payload
	State   TaskState
}

// Copy returns a deep copy of the TaskVertex.
func (v *TaskVertex) Copy() *TaskVertex {
	rv := new(TaskVertex)
	*rv = *v
	rv.Payload = v.Payload.Copy()
	return rv
}

// Dependency is a directed edge: FromID depends on ToID, ie. ToID must be
// evaluated before FromID. Duplicate (FromID, ToID) pairs collapse to a
// single edge.
type Dependency struct {
	FromID string
	ToID   string
}

// TaskGraph is the unit handed to the evaluation engine on each iteration.
// The engine treats it as an immutable snapshot.
type TaskGraph struct {
	Vertices []*TaskVertex
	Edges    []Dependency
}

// Copy returns a deep copy of the TaskGraph.
func (g *TaskGraph) Copy() *TaskGraph {
	vertices := make([]*TaskVertex, 0, len(g.Vertices))
	for _, v := range g.Vertices {
		vertices = append(vertices, v.Copy())
	}
	return &TaskGraph{
		Vertices: vertices,
		Edges:    append([]Dependency{}, g.Edges...),
	}
}

// NormalizedTask is the read-only view of a vertex passed to per-vertex
// evaluators. Payload and Dependencies are copies; mutating them does not
// affect the graph snapshot being traversed.
type NormalizedTask struct {
	ID           string
	TaskType     string
	Payload      Payload
	State        TaskState
	Dependencies []string
}
