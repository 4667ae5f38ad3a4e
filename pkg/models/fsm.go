package models

import (
	"fmt"
)

// validTransitions maps a controller state to the states it may move to
var validTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusIdle: {
		JobStatusProcessing: true, // Idle → Processing (file or recording submitted)
		JobStatusCompleted:  true, // Idle → Completed (loaded from history)
	},
	JobStatusProcessing: {
		JobStatusProcessing: true, // poll self-loop
		JobStatusCompleted:  true,
		JobStatusError:      true,
		JobStatusIdle:       true, // reset while polling
	},
	JobStatusCompleted: {
		JobStatusIdle: true,
	},
	JobStatusError: {
		JobStatusIdle: true,
	},
}

// ValidateTransition checks if a controller state transition is valid
func ValidateTransition(from, to JobStatus) error {
	from = normalizeState(from)
	to = normalizeState(to)

	allowedStates, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source state: %s", from)
	}

	if !allowedStates[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}

	return nil
}

// normalizeState folds service-side states onto the controller's four states
func normalizeState(state JobStatus) JobStatus {
	switch state {
	case JobStatusPending:
		return JobStatusProcessing
	case "":
		return JobStatusIdle
	default:
		return state
	}
}

// ControllerState maps a status reported by the service onto the controller's states
func ControllerState(state JobStatus) JobStatus {
	return normalizeState(state)
}

// IsTerminalState returns true for completed and error
func IsTerminalState(state JobStatus) bool {
	state = normalizeState(state)
	return state == JobStatusCompleted || state == JobStatusError
}

// IsActiveState returns true while the service is still working on the job
func IsActiveState(state JobStatus) bool {
	return normalizeState(state) == JobStatusProcessing
}
