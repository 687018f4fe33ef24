package coordinator

import (
	"slices"
	"sync"

	"github.com/rendis/actiondesk/pkg/schema"
)

// ValidActionTransitions defines the allowed state transitions for one
// action within a request.
var ValidActionTransitions = map[schema.ActionState][]schema.ActionState{
	schema.ActionNotStarted:   {schema.ActionExecuting, schema.ActionAuthRequired, schema.ActionFailed},
	schema.ActionExecuting:    {schema.ActionSucceeded, schema.ActionFailed, schema.ActionAuthRequired},
	schema.ActionSucceeded:    {},
	schema.ActionFailed:       {},
	schema.ActionAuthRequired: {},
}

// TransitionHook is called after a successful transition.
type TransitionHook func(kind schema.ActionKind, from, to schema.ActionState)

// ActionFSM tracks the state of each action in one request and rejects
// transitions the table does not allow.
type ActionFSM struct {
	mu     sync.Mutex
	states map[schema.ActionKind]schema.ActionState
	after  []TransitionHook
}

// NewActionFSM starts every kind in kinds at NotStarted.
func NewActionFSM(kinds []schema.ActionKind) *ActionFSM {
	f := &ActionFSM{states: make(map[schema.ActionKind]schema.ActionState, len(kinds))}
	for _, k := range kinds {
		f.states[k] = schema.ActionNotStarted
	}
	return f
}

// OnAfter registers a hook called after every transition.
func (f *ActionFSM) OnAfter(hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.after = append(f.after, hook)
}

// Transition moves kind to the given state.
func (f *ActionFSM) Transition(kind schema.ActionKind, to schema.ActionState) error {
	f.mu.Lock()
	from, ok := f.states[kind]
	if !ok {
		from = schema.ActionNotStarted
	}
	if !isValidActionTransition(from, to) {
		f.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid action transition: %s -> %s", from, to).
			WithKind(kind).
			WithDetails(map[string]any{"from": string(from), "to": string(to)})
	}
	f.states[kind] = to
	hooks := slices.Clone(f.after)
	f.mu.Unlock()

	for _, h := range hooks {
		h(kind, from, to)
	}
	return nil
}

// Snapshot returns a copy of every tracked state.
func (f *ActionFSM) Snapshot() map[schema.ActionKind]schema.ActionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[schema.ActionKind]schema.ActionState, len(f.states))
	for k, v := range f.states {
		out[k] = v
	}
	return out
}

func isValidActionTransition(from, to schema.ActionState) bool {
	return slices.Contains(ValidActionTransitions[from], to)
}

// actionEventType maps a target state to the status event it emits.
func actionEventType(to schema.ActionState) string {
	switch to {
	case schema.ActionExecuting:
		return schema.EventActionStarted
	case schema.ActionSucceeded:
		return schema.EventActionSucceeded
	case schema.ActionFailed:
		return schema.EventActionFailed
	case schema.ActionAuthRequired:
		return schema.EventActionAuthNeeded
	default:
		return ""
	}
}
