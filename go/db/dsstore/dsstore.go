// Package dsstore implements db.DB on Cloud Datastore. Tasks are stored as
// entities under a per-job ancestor key, and the conditional updates the
// evaluation engine relies on are datastore transactions.
package dsstore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"cloud.google.com/go/datastore"
	"go.skia.org/infra/go/skerr"
	"go.skia.org/infra/go/util"

	"go.skia.org/taskgraph/go/db"
	"go.skia.org/taskgraph/go/types"
)

const (
	// Datastore kinds for jobs and their tasks.
	JOB_KIND  = "TaskGraphJob"
	TASK_KIND = "TaskGraphTask"

	// Datastore limits batched mutations to 500 entities.
	putBatchSize = 500
)

// Store implements db.DB backed by Cloud Datastore.
type Store struct {
	client *datastore.Client
}

// New returns a Store using the given datastore client.
func New(client *datastore.Client) (*Store, error) {
	if client == nil {
		return nil, skerr.Fmt("Received nil for datastore client.")
	}
	return &Store{client: client}, nil
}

// taskEntity is how tasks are stored in Datastore. The payload is kept as a
// JSON blob rather than datastore properties so that it stays opaque to the
// store.
type taskEntity struct {
	ID           string
	TaskType     string
	State        string
	Payload      []byte `datastore:",noindex"`
	Dependencies []string
}

func fromVertex(v *types.TaskVertex, dependencies []string) (*taskEntity, error) {
	var payload []byte
	if v.Payload != nil {
		var err error
		payload, err = json.Marshal(v.Payload)
		if err != nil {
			return nil, skerr.Wrapf(err, "encoding payload of task %q", v.ID)
		}
	}
	state := v.State
	if state == "" {
		state = types.TASK_STATE_PENDING
	}
	return &taskEntity{
		ID:           v.ID,
		TaskType:     v.VertexType,
		State:        string(state),
		Payload:      payload,
		Dependencies: dependencies,
	}, nil
}

func (e *taskEntity) toVertex() (*types.TaskVertex, error) {
	var payload types.Payload
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &payload); err != nil {
			return nil, skerr.Wrapf(err, "decoding payload of task %q", e.ID)
		}
	}
	return &types.TaskVertex{
		ID:         e.ID,
		VertexType: e.TaskType,
		Payload:    payload,
		State:      types.TaskState(e.State),
	}, nil
}

func jobKey(jobID string) *datastore.Key {
	return datastore.NameKey(JOB_KIND, jobID, nil)
}

func taskKey(jobID, taskID string) *datastore.Key {
	return datastore.NameKey(TASK_KIND, taskID, jobKey(jobID))
}

// See docs for db.DB interface.
func (s *Store) PopulateTaskGraph(ctx context.Context, jobID string, graph *types.TaskGraph) error {
	dependencies := make(map[string][]string, len(graph.Vertices))
	known := make(map[string]bool, len(graph.Vertices))
	for _, v := range graph.Vertices {
		if known[v.ID] {
			return skerr.Fmt("duplicate task %q in graph", v.ID)
		}
		known[v.ID] = true
	}
	for _, dep := range graph.Edges {
		if !known[dep.FromID] {
			return skerr.Fmt("edge from unknown task %q", dep.FromID)
		}
		if !known[dep.ToID] {
			return skerr.Fmt("edge to unknown task %q", dep.ToID)
		}
		if !util.In(dep.ToID, dependencies[dep.FromID]) {
			dependencies[dep.FromID] = append(dependencies[dep.FromID], dep.ToID)
		}
	}
	// Populate replaces whatever graph was previously stored for the job, so
	// delete tasks which are not part of the new graph.
	q := datastore.NewQuery(TASK_KIND).Ancestor(jobKey(jobID)).KeysOnly()
	existing, err := s.client.GetAll(ctx, q, nil)
	if err != nil {
		return skerr.Wrapf(err, "listing existing tasks for job %q", jobID)
	}
	stale := make([]*datastore.Key, 0, len(existing))
	for _, key := range existing {
		if !known[key.Name] {
			stale = append(stale, key)
		}
	}
	if err := util.ChunkIter(len(stale), putBatchSize, func(start, end int) error {
		return s.client.DeleteMulti(ctx, stale[start:end])
	}); err != nil {
		return skerr.Wrapf(err, "deleting stale tasks for job %q", jobID)
	}
	keys := make([]*datastore.Key, 0, len(graph.Vertices))
	entities := make([]*taskEntity, 0, len(graph.Vertices))
	for _, v := range graph.Vertices {
		entity, err := fromVertex(v, dependencies[v.ID])
		if err != nil {
			return err
		}
		keys = append(keys, taskKey(jobID, v.ID))
		entities = append(entities, entity)
	}
	return skerr.Wrap(util.ChunkIter(len(keys), putBatchSize, func(start, end int) error {
		_, err := s.client.PutMulti(ctx, keys[start:end], entities[start:end])
		return err
	}))
}

// See docs for db.DB interface.
func (s *Store) GetTaskGraph(ctx context.Context, jobID string) (*types.TaskGraph, error) {
	var entities []*taskEntity
	q := datastore.NewQuery(TASK_KIND).Ancestor(jobKey(jobID))
	if _, err := s.client.GetAll(ctx, q, &entities); err != nil {
		return nil, skerr.Wrapf(err, "loading task graph for job %q", jobID)
	}
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].ID < entities[j].ID
	})
	graph := &types.TaskGraph{}
	for _, entity := range entities {
		vertex, err := entity.toVertex()
		if err != nil {
			return nil, err
		}
		graph.Vertices = append(graph.Vertices, vertex)
		for _, dep := range entity.Dependencies {
			graph.Edges = append(graph.Edges, types.Dependency{FromID: entity.ID, ToID: dep})
		}
	}
	return graph, nil
}

// See docs for db.DB interface.
func (s *Store) UpdateTask(ctx context.Context, jobID, taskID string, newState types.TaskState, payload types.Payload) error {
	updateFn := func(tx *datastore.Transaction) error {
		var entity taskEntity
		key := taskKey(jobID, taskID)
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return skerr.Wrapf(db.ErrNotFound, "job %q task %q", jobID, taskID)
			}
			return skerr.Wrap(err)
		}
		if !types.TaskState(entity.State).CanTransitionTo(newState) {
			return &db.InvalidTransitionError{TaskID: taskID, From: types.TaskState(entity.State), To: newState}
		}
		entity.State = string(newState)
		if payload != nil {
			encoded, err := json.Marshal(payload)
			if err != nil {
				return skerr.Wrapf(err, "encoding payload of task %q", taskID)
			}
			entity.Payload = encoded
		}
		_, err := tx.Put(key, &entity)
		return skerr.Wrap(err)
	}
	_, err := s.client.RunInTransaction(ctx, updateFn)
	return err
}

// See docs for db.DB interface.
func (s *Store) ExtendTaskGraph(ctx context.Context, jobID string, vertices []*types.TaskVertex, dependencies []types.Dependency) error {
	extendFn := func(tx *datastore.Transaction) error {
		added := make(map[string]*taskEntity, len(vertices))
		for _, v := range vertices {
			if _, ok := added[v.ID]; ok {
				return &db.InvalidAmendmentError{TaskID: v.ID}
			}
			var existing taskEntity
			err := tx.Get(taskKey(jobID, v.ID), &existing)
			if err == nil {
				return &db.InvalidAmendmentError{TaskID: v.ID}
			}
			if !errors.Is(err, datastore.ErrNoSuchEntity) {
				return skerr.Wrap(err)
			}
			entity, err := fromVertex(v, nil)
			if err != nil {
				return err
			}
			added[v.ID] = entity
		}
		// Entities already in the store which gain new dependencies.
		amended := map[string]*taskEntity{}
		get := func(id string) (*taskEntity, error) {
			if entity, ok := added[id]; ok {
				return entity, nil
			}
			if entity, ok := amended[id]; ok {
				return entity, nil
			}
			var entity taskEntity
			if err := tx.Get(taskKey(jobID, id), &entity); err != nil {
				if errors.Is(err, datastore.ErrNoSuchEntity) {
					return nil, skerr.Wrapf(db.ErrNotFound, "dependency references unknown task %q", id)
				}
				return nil, skerr.Wrap(err)
			}
			amended[id] = &entity
			return &entity, nil
		}
		for _, dep := range dependencies {
			from, err := get(dep.FromID)
			if err != nil {
				return err
			}
			if _, err := get(dep.ToID); err != nil {
				return err
			}
			if !util.In(dep.ToID, from.Dependencies) {
				from.Dependencies = append(from.Dependencies, dep.ToID)
			}
		}
		for id, entity := range added {
			if _, err := tx.Put(taskKey(jobID, id), entity); err != nil {
				return skerr.Wrap(err)
			}
		}
		for id, entity := range amended {
			if _, err := tx.Put(taskKey(jobID, id), entity); err != nil {
				return skerr.Wrap(err)
			}
		}
		return nil
	}
	_, err := s.client.RunInTransaction(ctx, extendFn)
	return err
}

// Assert that Store implements db.DB.
var _ db.DB = &Store{}
