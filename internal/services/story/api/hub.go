package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/emberleaf/emberleaf/internal/services/story/engine"
)

// EventsHub fans engine events out to connected SSE clients. Slow clients
// drop messages instead of blocking the command path.
type EventsHub struct {
	mu      sync.Mutex
	clients map[chan []byte]string
}

// NewEventsHub creates an empty hub.
func NewEventsHub() *EventsHub {
	return &EventsHub{clients: make(map[chan []byte]string)}
}

// wireEvent is the SSE payload shape.
type wireEvent struct {
	Kind          string `json:"kind"`
	StoryID       string `json:"story_id,omitempty"`
	AchievementID string `json:"achievement_id,omitempty"`
	ChoiceID      string `json:"choice_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Amount        int    `json:"amount,omitempty"`
	Balance       int    `json:"balance,omitempty"`
	Timestamp     int64  `json:"timestamp"`
}

// Broadcast delivers one engine event to that user's subscribers.
func (h *EventsHub) Broadcast(evt engine.Event) {
	wire := wireEvent{
		Kind:          string(evt.Kind),
		StoryID:       evt.StoryID,
		AchievementID: evt.AchievementID,
		ChoiceID:      evt.ChoiceID,
		Reason:        evt.Reason,
		Timestamp:     evt.At.Unix(),
	}
	if evt.Transaction != nil {
		wire.Amount = evt.Transaction.Amount
		wire.Balance = evt.Transaction.BalanceAfter
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch, userID := range h.clients {
		if userID != evt.UserID {
			continue
		}
		select {
		case ch <- data:
		default:
			// Client too slow, drop the message.
		}
	}
}

// Subscribe registers a client for one user's events. The returned func
// unsubscribes and closes the channel.
func (h *EventsHub) Subscribe(userID string) (chan []byte, func()) {
	ch := make(chan []byte, 32)
	h.mu.Lock()
	h.clients[ch] = userID
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
		close(ch)
	}
}

// ClientCount returns the number of connected clients.
func (h *EventsHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// handleEvents serves the live event feed via Server-Sent Events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing session")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch, unsub := s.hub.Subscribe(session.UserID)
	defer unsub()

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-ch:
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(data)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
