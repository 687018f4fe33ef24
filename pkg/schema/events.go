package schema

// Event type constants published on the status stream.
const (
	EventRequestStarted   = "request_started"
	EventDetectionDone    = "detection_completed"
	EventActionStarted    = "action_started"
	EventActionExtracted  = "action_extracted"
	EventActionSucceeded  = "action_succeeded"
	EventActionFailed     = "action_failed"
	EventActionAuthNeeded = "action_auth_required"
	EventCredentialSaved  = "credential_refreshed"
	EventSummaryReady     = "summary_ready"
	EventRequestCompleted = "request_completed"

	EventCircuitBreakerOpen   = "circuit_breaker_open"
	EventCircuitBreakerClosed = "circuit_breaker_closed"
)

// ActionState represents the lifecycle state of one action within a request.
type ActionState string

const (
	ActionNotStarted   ActionState = "not_started"
	ActionExecuting    ActionState = "executing"
	ActionSucceeded    ActionState = "success"
	ActionFailed       ActionState = "error"
	ActionAuthRequired ActionState = "auth_required"
)

// IsTerminal reports whether no further transition can leave s.
func (s ActionState) IsTerminal() bool {
	switch s {
	case ActionSucceeded, ActionFailed, ActionAuthRequired:
		return true
	}
	return false
}

// StateForOutcome maps an outcome status to its terminal action state.
func StateForOutcome(status OutcomeStatus) ActionState {
	switch status {
	case OutcomeSuccess:
		return ActionSucceeded
	case OutcomeAuthRequired:
		return ActionAuthRequired
	default:
		return ActionFailed
	}
}
