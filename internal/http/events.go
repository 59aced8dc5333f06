package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"clinical-intake/pkg"
)

// Hub fans story events out to stream subscribers. A subscriber that falls
// behind misses events rather than blocking the others.
type Hub struct {
	mu   sync.Mutex
	subs map[chan string]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[chan string]struct{}{}}
}

// Subscribe registers a subscriber. The returned func unregisters it.
func (h *Hub) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

func (h *Hub) Broadcast(recordID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- recordID:
		default:
		}
	}
}

// Pump broadcasts every ID received on src until src closes or ctx ends.
func (h *Hub) Pump(ctx context.Context, src <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-src:
			if !ok {
				return
			}
			h.Broadcast(id)
		}
	}
}

// handleStoryStream streams story_ready events using SSE until the client
// goes away.
func (s *Server) handleStoryStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	events, unsubscribe := s.Hub.Subscribe()
	defer unsubscribe()

	keepAlive := time.NewTicker(30 * time.Second)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case id := <-events:
			data, err := json.Marshal(pkg.StoryEvent{RecordID: id})
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: story_ready\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
