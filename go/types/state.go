package types

const (
	// TASK_STATE_PENDING indicates that the task has been created but no
	// work has started on it.
	TASK_STATE_PENDING TaskState = "pending"

	// TASK_STATE_ONGOING indicates that work on the task has started and
	// has not yet finished.
	TASK_STATE_ONGOING TaskState = "ongoing"

	// TASK_STATE_COMPLETED indicates that the task finished successfully.
	TASK_STATE_COMPLETED TaskState = "completed"

	// TASK_STATE_FAILED indicates that the task finished unsuccessfully.
	TASK_STATE_FAILED TaskState = "failed"

	// TASK_STATE_CANCELLED indicates that the task was abandoned before it
	// finished.
	TASK_STATE_CANCELLED TaskState = "cancelled"
)

var (
	VALID_TASK_STATES = []TaskState{
		TASK_STATE_PENDING,
		TASK_STATE_ONGOING,
		TASK_STATE_COMPLETED,
		TASK_STATE_FAILED,
		TASK_STATE_CANCELLED,
	}

	// VALID_TASK_STATE_TRANSITIONS enumerates the legal state transitions,
	// keyed by the current state. States absent from the map are final.
	VALID_TASK_STATE_TRANSITIONS = map[TaskState][]TaskState{
		TASK_STATE_PENDING: {
			TASK_STATE_ONGOING,
			TASK_STATE_CANCELLED,
		},
		TASK_STATE_ONGOING: {
			TASK_STATE_COMPLETED,
			TASK_STATE_FAILED,
			TASK_STATE_CANCELLED,
		},
	}
)

// TaskState represents the lifecycle state of a task vertex.
type TaskState string

// Finished returns true iff the state is final, ie. no further transitions
// out of it are legal.
func (s TaskState) Finished() bool {
	return len(VALID_TASK_STATE_TRANSITIONS[s]) == 0
}

// CanTransitionTo returns true iff moving from this state to next is a legal
// transition.
func (s TaskState) CanTransitionTo(next TaskState) bool {
	for _, t := range VALID_TASK_STATE_TRANSITIONS[s] {
		if t == next {
			return true
		}
	}
	return false
}
