// ABOUTME: Server-Sent Events stream of interactions for live monitoring
// ABOUTME: Follows one user with ?user= or every user without it

package admin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// feedKeepalive is how often an idle stream gets a comment line.
var feedKeepalive = 15 * time.Second

// StreamFeed streams interactions as "interaction" events until the client
// goes away.
func (h *Handler) StreamFeed(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		Error(w, http.StatusServiceUnavailable, "feed not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	userID := r.URL.Query().Get("user")
	events, _ := h.feed.Subscribe(r.Context(), userID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	h.writeSSEEvent(w, "ready", map[string]string{"user": userID})
	flusher.Flush()

	ticker := time.NewTicker(feedKeepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case in, ok := <-events:
			if !ok {
				return
			}
			h.writeSSEEvent(w, "interaction", in)
			flusher.Flush()
		}
	}
}

func (h *Handler) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
