// Package audit contains durable in-product audit writes for story service
// operations.
//
// For distributed tracing, this service still uses package
// `internal/platform/otel`.
package audit

import (
	"context"
	"time"

	"github.com/emberleaf/emberleaf/internal/services/story/storage"
)

// Severity describes the audit severity level.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Canonical audit event names.
const (
	EventTransactionCommitted = "ledger.transaction.committed"
	EventRefillApplied        = "ledger.refill.applied"
	EventAchievementUnlocked  = "achievement.unlocked"
	EventEndingReached        = "playback.ending.reached"
	EventChoiceRejected       = "playback.choice.rejected"
)

// Emitter records operational audit events.
type Emitter struct {
	store storage.AuditEventStore
	clock func() time.Time
}

// NewEmitter creates a new audit event emitter.
func NewEmitter(store storage.AuditEventStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records an audit event. It is a no-op when the store is nil.
func (e *Emitter) Emit(ctx context.Context, evt storage.AuditEvent) error {
	if e == nil || e.store == nil {
		return nil
	}
	if evt.Severity == "" {
		evt.Severity = string(SeverityInfo)
	}
	if evt.CreatedAt.IsZero() {
		if e.clock == nil {
			evt.CreatedAt = time.Now().UTC()
		} else {
			evt.CreatedAt = e.clock().UTC()
		}
	}
	return e.store.AppendAuditEvent(ctx, evt)
}
