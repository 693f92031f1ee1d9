// Package event defines the events which drive task graph evaluation. An
// event is forwarded, unchanged, to every per-vertex evaluation call made
// during one evaluation run.
package event

import (
	"github.com/google/uuid"

	"go.skia.org/taskgraph/go/types"
)

// TYPE_SELECT is the event type used to select tasks out of a graph without
// driving any state transition.
const TYPE_SELECT = "select"

// Event describes why a task graph is being evaluated, eg. an external
// update arriving for one of its tasks.
type Event struct {
	ID string

	// Type determines which evaluators react to the event.
	Type string

	// TargetTask is the ID of the task the event is about, or empty if the
	// event concerns the whole graph.
	TargetTask string

	Payload types.Payload
}

// New returns an Event with a freshly-assigned unique ID.
func New(eventType, targetTask string, payload types.Payload) *Event {
	return &Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		TargetTask: targetTask,
		Payload:    payload,
	}
}

// Select returns an Event which selects tasks without modifying them.
func Select() *Event {
	return New(TYPE_SELECT, "", nil)
}
