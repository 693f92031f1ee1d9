package db

import (
	"context"
	"sort"
	"sync"

	"go.skia.org/infra/go/skerr"
	"go.skia.org/infra/go/util"

	"go.skia.org/taskgraph/go/types"
)

// taskRecord is the stored form of one task: its vertex plus the IDs of the
// tasks it depends on.
type taskRecord struct {
	vertex       *types.TaskVertex
	dependencies []string
}

func (r *taskRecord) copy() *taskRecord {
	return &taskRecord{
		vertex:       r.vertex.Copy(),
		dependencies: append([]string{}, r.dependencies...),
	}
}

type inMemoryDB struct {
	mtx  sync.RWMutex
	jobs map[string]map[string]*taskRecord
}

// NewInMemoryDB returns an in-memory DB implementation, used by tests and as
// the reference implementation of the DB semantics.
func NewInMemoryDB() DB {
	return &inMemoryDB{
		jobs: map[string]map[string]*taskRecord{},
	}
}

// See docs for DB interface.
func (d *inMemoryDB) PopulateTaskGraph(ctx context.Context, jobID string, graph *types.TaskGraph) error {
	records, err := recordsFromGraph(graph)
	if err != nil {
		return err
	}
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.jobs[jobID] = records
	return nil
}

// See docs for DB interface.
func (d *inMemoryDB) GetTaskGraph(ctx context.Context, jobID string) (*types.TaskGraph, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()
	tasks := d.jobs[jobID]
	ids := make([]string, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	graph := &types.TaskGraph{}
	for _, id := range ids {
		record := tasks[id]
		graph.Vertices = append(graph.Vertices, record.vertex.Copy())
		for _, dep := range record.dependencies {
			graph.Edges = append(graph.Edges, types.Dependency{FromID: id, ToID: dep})
		}
	}
	return graph, nil
}

// See docs for DB interface.
func (d *inMemoryDB) UpdateTask(ctx context.Context, jobID, taskID string, newState types.TaskState, payload types.Payload) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	record, ok := d.jobs[jobID][taskID]
	if !ok {
		return skerr.Wrapf(ErrNotFound, "job %q task %q", jobID, taskID)
	}
	if !record.vertex.State.CanTransitionTo(newState) {
		return &InvalidTransitionError{TaskID: taskID, From: record.vertex.State, To: newState}
	}
	record.vertex.State = newState
	if payload != nil {
		record.vertex.Payload = payload.Copy()
	}
	return nil
}

// See docs for DB interface.
func (d *inMemoryDB) ExtendTaskGraph(ctx context.Context, jobID string, vertices []*types.TaskVertex, dependencies []types.Dependency) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	tasks := d.jobs[jobID]
	added := make(map[string]*taskRecord, len(vertices))
	for _, v := range vertices {
		if _, ok := tasks[v.ID]; ok {
			return &InvalidAmendmentError{TaskID: v.ID}
		}
		if _, ok := added[v.ID]; ok {
			return &InvalidAmendmentError{TaskID: v.ID}
		}
		added[v.ID] = &taskRecord{vertex: v.Copy()}
	}
	find := func(id string) *taskRecord {
		if record, ok := added[id]; ok {
			return record
		}
		return tasks[id]
	}
	// Validate every dependency before touching any stored record, so that a
	// failed amendment leaves the job unchanged.
	type edge struct {
		from *taskRecord
		toID string
	}
	staged := make([]edge, 0, len(dependencies))
	for _, dep := range dependencies {
		from := find(dep.FromID)
		if from == nil {
			return skerr.Wrapf(ErrNotFound, "dependency from unknown task %q", dep.FromID)
		}
		if find(dep.ToID) == nil {
			return skerr.Wrapf(ErrNotFound, "dependency on unknown task %q", dep.ToID)
		}
		staged = append(staged, edge{from: from, toID: dep.ToID})
	}
	if tasks == nil {
		tasks = map[string]*taskRecord{}
		d.jobs[jobID] = tasks
	}
	for id, record := range added {
		tasks[id] = record
	}
	for _, e := range staged {
		if !util.In(e.toID, e.from.dependencies) {
			e.from.dependencies = append(e.from.dependencies, e.toID)
		}
	}
	return nil
}

// recordsFromGraph converts a TaskGraph to stored form, validating edge
// endpoints and collapsing duplicate vertices and edges.
func recordsFromGraph(graph *types.TaskGraph) (map[string]*taskRecord, error) {
	records := make(map[string]*taskRecord, len(graph.Vertices))
	for _, v := range graph.Vertices {
		if _, ok := records[v.ID]; ok {
			return nil, skerr.Fmt("duplicate task %q in graph", v.ID)
		}
		vertex := v.Copy()
		if vertex.State == "" {
			vertex.State = types.TASK_STATE_PENDING
		}
		records[v.ID] = &taskRecord{vertex: vertex}
	}
	for _, dep := range graph.Edges {
		from, ok := records[dep.FromID]
		if !ok {
			return nil, skerr.Fmt("edge from unknown task %q", dep.FromID)
		}
		if _, ok := records[dep.ToID]; !ok {
			return nil, skerr.Fmt("edge to unknown task %q", dep.ToID)
		}
		if !util.In(dep.ToID, from.dependencies) {
			from.dependencies = append(from.dependencies, dep.ToID)
		}
	}
	return records, nil
}
