package api

import (
	"net/http"

	"github.com/kalambet/optilead/internal/events"
)

// handleCallEvents streams call events to the dashboard as Server-Sent Events
// until the client disconnects or the hub shuts down.
func handleCallEvents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "Cache-Control")
		w.WriteHeader(http.StatusOK)

		sub := deps.Hub.Subscribe()
		defer deps.Hub.Unsubscribe(sub)

		deps.Logger.Info("call-events client connected", "subscribers", deps.Hub.Len())

		if err := events.Write(w, deps.Hub.NewEvent(events.TypeConnected, nil)); err != nil {
			return
		}
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				deps.Logger.Info("call-events client disconnected")
				return
			case e, ok := <-sub.Events():
				if !ok {
					return
				}
				if err := events.Write(w, e); err != nil {
					deps.Logger.Warn("writing call event failed", "error", err)
					return
				}
				flusher.Flush()
			}
		}
	}
}

// handlePublishCallEvent accepts a call_ended notification from the calling
// service and fans it out to every connected stream.
func handlePublishCallEvent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c events.CallEnded
		if err := decodeBody(w, r, &c); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		n := deps.Hub.BroadcastCallEnded(c)
		writeJSON(w, http.StatusOK, map[string]int{"delivered": n})
	}
}

func handleCallEventsPreflight(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Cache-Control, Content-Type, X-API-Key")
	w.WriteHeader(http.StatusNoContent)
}
