package streaming

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rendis/actiondesk/pkg/schema"
)

// defaultChannelBuffer is how many updates a watcher may lag behind before
// the hub starts dropping for it. A full request rarely emits more than a
// dozen updates.
const defaultChannelBuffer = 64

type watcher struct {
	updates chan schema.StatusUpdate
	filter  EventFilter
}

// wants reports whether u belongs to this watcher.
func (w *watcher) wants(u schema.StatusUpdate) bool {
	return matchFilter(w.filter, u)
}

// MemoryHub fans status updates out to in-process watchers (SSE streams,
// MCP sessions). Delivery is best effort; the event log is the record.
type MemoryHub struct {
	mu       sync.RWMutex
	watchers map[uint64]*watcher
	nextID   atomic.Uint64
	dropped  atomic.Uint64
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{watchers: make(map[uint64]*watcher)}
}

// Publish never blocks on a watcher. An update that does not fit in a
// watcher's buffer is counted in Dropped and skipped for that watcher only.
func (h *MemoryHub) Publish(ctx context.Context, u schema.StatusUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, w := range h.watchers {
		if !w.wants(u) {
			continue
		}
		select {
		case w.updates <- u:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe registers a watcher. The returned stop func may be called more
// than once; the channel is left open so in-flight selects never see a
// zero update.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan schema.StatusUpdate, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	id := h.nextID.Add(1)
	w := &watcher{updates: make(chan schema.StatusUpdate, defaultChannelBuffer), filter: filter}

	h.mu.Lock()
	h.watchers[id] = w
	h.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.watchers, id)
			h.mu.Unlock()
		})
	}
	return w.updates, stop, nil
}

func (h *MemoryHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers)
}

// Dropped counts deliveries skipped because a watcher was full.
func (h *MemoryHub) Dropped() uint64 {
	return h.dropped.Load()
}

func matchFilter(f EventFilter, u schema.StatusUpdate) bool {
	if f.RequestID != "" && f.RequestID != u.RequestID {
		return false
	}
	return len(f.EventTypes) == 0 || slices.Contains(f.EventTypes, u.Event)
}

var _ EventHub = (*MemoryHub)(nil)
