package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rendis/actiondesk/internal/logging"
	"github.com/rendis/actiondesk/internal/streaming"
	"github.com/rendis/actiondesk/pkg/schema"
)

// handleStatus streams a request's status updates via Server-Sent Events.
// Recorded updates after Last-Event-ID are replayed first, then live ones
// follow until the request completes or the client goes away.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("requestId")
	ctx := logging.WithRequestID(r.Context(), requestID)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Subscribe before replaying so nothing falls between the two.
	ch, cancel, err := s.deps.Hub.Subscribe(ctx, streaming.EventFilter{RequestID: requestID})
	if err != nil {
		logging.LogWith(ctx, s.deps.Logger).Error("SSE subscribe failed", "error", err)
		writeError(w, http.StatusInternalServerError, "subscribe failed")
		return
	}
	defer cancel()

	var backlog []schema.StatusUpdate
	if s.deps.Events != nil {
		backlog, err = s.deps.Events.Updates(ctx, requestID, lastEventID(r))
		if err != nil {
			logging.LogWith(ctx, s.deps.Logger).Error("SSE replay failed", "error", err)
			writeError(w, statusForError(err), "could not load status updates")
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	last := lastEventID(r)
	for _, u := range backlog {
		writeEvent(w, u)
		last = u.Sequence
		if u.Event == schema.EventRequestCompleted {
			flusher.Flush()
			return
		}
	}
	flusher.Flush()

	ping := time.NewTicker(s.deps.Keepalive)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case u, ok := <-ch:
			if !ok {
				return
			}
			if u.Sequence <= last {
				continue
			}
			writeEvent(w, u)
			flusher.Flush()
			last = u.Sequence
			if u.Event == schema.EventRequestCompleted {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, u schema.StatusUpdate) {
	data, err := json.Marshal(u)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", u.Sequence, u.Event, data)
}
