package actions

import (
	"sort"
	"sync"

	"github.com/rendis/actiondesk/pkg/schema"
)

// Registry maps each action kind to its executor. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	executors map[schema.ActionKind]Executor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[schema.ActionKind]Executor),
	}
}

// Register adds an executor. Returns error on nil, unknown kind or duplicate.
func (r *Registry) Register(e Executor) error {
	if e == nil {
		return schema.NewError(schema.ErrCodeValidation, "executor is nil")
	}
	kind := e.Kind()
	if !kind.Valid() {
		return schema.NewErrorf(schema.ErrCodeValidation, "executor kind %q is not executable", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[kind]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "executor for %q already registered", kind).WithKind(kind)
	}
	r.executors[kind] = e
	return nil
}

// Get returns the executor for kind or an ActionUnavailable error.
func (r *Registry) Get(kind schema.ActionKind) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.executors[kind]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeActionUnavailable, "no executor for %q", kind).WithKind(kind)
	}
	return e, nil
}

// Has reports whether an executor for kind is registered.
func (r *Registry) Has(kind schema.ActionKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.executors[kind]
	return ok
}

// Count returns the number of registered executors.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.executors)
}

// List returns executor summaries in precedence order.
func (r *Registry) List() []ExecutorInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ExecutorInfo, 0, len(r.executors))
	for kind, e := range r.executors {
		info, _ := kind.Info()
		out = append(out, ExecutorInfo{
			Kind:        kind,
			AgentLabel:  info.AgentLabel,
			Icon:        info.Icon,
			Description: e.Schema().Description,
			Provider:    info.Provider,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		pi, _ := out[i].Kind.Info()
		pj, _ := out[j].Kind.Info()
		return pi.Precedence < pj.Precedence
	})
	return out
}

// Complete returns an error naming the first kind in the lookup table
// that has no executor.
func (r *Registry) Complete() error {
	for _, info := range schema.ActionKinds {
		if !r.Has(info.Kind) {
			return schema.NewErrorf(schema.ErrCodeActionUnavailable, "no executor registered for %q", info.Kind).
				WithKind(info.Kind)
		}
	}
	return nil
}
