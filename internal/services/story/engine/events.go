package engine

import (
	"time"

	"github.com/emberleaf/emberleaf/internal/services/story/domain/credit"
)

// EventKind names one in-process engine event.
type EventKind string

const (
	EventTransactionCommitted EventKind = "transaction.committed"
	EventAchievementUnlocked  EventKind = "achievement.unlocked"
	EventEndingReached        EventKind = "ending.reached"
	EventChoiceRejected       EventKind = "choice.rejected"
)

// Event is one engine occurrence fanned out to subscribers. Fields beyond
// Kind, UserID, and At are set per kind.
type Event struct {
	Kind          EventKind
	UserID        string
	StoryID       string
	AchievementID string
	ChoiceID      string
	// Reason carries the rejection code for choice.rejected events.
	Reason      string
	Transaction *credit.Transaction
	At          time.Time
}

// Listener receives engine events. Listeners run synchronously on the
// command path and must not block.
type Listener func(Event)

// Subscribe registers a listener for all subsequent events.
func (e *Engine) Subscribe(listener Listener) {
	if listener == nil {
		return
	}
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners = append(e.listeners, listener)
}

func (e *Engine) emit(evt Event) {
	e.listenersMu.RLock()
	listeners := make([]Listener, len(e.listeners))
	copy(listeners, e.listeners)
	e.listenersMu.RUnlock()
	for _, l := range listeners {
		l(evt)
	}
}
