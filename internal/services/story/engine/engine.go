// Package engine serializes credit, achievement, and playback commands per
// user and commits their results through storage.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/emberleaf/emberleaf/internal/platform/id"
	"github.com/emberleaf/emberleaf/internal/platform/timeouts"
	"github.com/emberleaf/emberleaf/internal/services/story/catalog"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/account"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/credit"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/refill"
	"github.com/emberleaf/emberleaf/internal/services/story/observability/audit"
	"github.com/emberleaf/emberleaf/internal/services/story/observability/metrics"
	"github.com/emberleaf/emberleaf/internal/services/story/storage"
)

const (
	defaultRefillInterval = 5 * time.Minute
	// defaultRatingBonus is the one-time credit grant for a story's first
	// rating by a user.
	defaultRatingBonus = 2
)

// Preloader warms assets for an upcoming node. Implementations run
// concurrently with the transition fade-out; the engine waits for them to
// finish or time out before committing the transition.
type Preloader interface {
	Preload(ctx context.Context, assets []string) error
}

type noopPreloader struct{}

func (noopPreloader) Preload(ctx context.Context, assets []string) error { return nil }

// Config assembles an Engine. Catalog and Store are required; everything
// else has production defaults.
type Config struct {
	Catalog        *catalog.Catalog
	Store          storage.Store
	Limits         credit.Limits
	RefillInterval time.Duration
	RatingBonus    int
	Preloader      Preloader
	PreloadTimeout time.Duration
	Audit          *audit.Emitter
	Clock          func() time.Time
	NewID          func() string
}

// Engine is the single serialization point for per-user state. Every
// command locks the user, applies pure domain functions, and commits the
// result before releasing the lock.
type Engine struct {
	catalog        *catalog.Catalog
	store          storage.Store
	limits         credit.Limits
	refillInterval time.Duration
	ratingBonus    int
	preloader      Preloader
	preloadTimeout time.Duration
	audit          *audit.Emitter
	clock          func() time.Time
	newID          func() string
	tracer         trace.Tracer

	listenersMu sync.RWMutex
	listeners   []Listener

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New builds an Engine from the config.
func New(cfg Config) (*Engine, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	e := &Engine{
		catalog:        cfg.Catalog,
		store:          cfg.Store,
		limits:         cfg.Limits,
		refillInterval: cfg.RefillInterval,
		ratingBonus:    cfg.RatingBonus,
		preloader:      cfg.Preloader,
		preloadTimeout: cfg.PreloadTimeout,
		audit:          cfg.Audit,
		clock:          cfg.Clock,
		newID:          cfg.NewID,
		tracer:         otel.Tracer("emberleaf/story-engine"),
		locks:          make(map[string]*sync.Mutex),
	}
	if e.limits == (credit.Limits{}) {
		e.limits = credit.DefaultLimits()
	}
	if e.refillInterval <= 0 {
		e.refillInterval = defaultRefillInterval
	}
	if e.ratingBonus <= 0 {
		e.ratingBonus = defaultRatingBonus
	}
	if e.preloader == nil {
		e.preloader = noopPreloader{}
	}
	if e.preloadTimeout <= 0 {
		e.preloadTimeout = timeouts.Preload
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.newID == nil {
		e.newID = id.NewID
	}
	return e, nil
}

// Catalog exposes the loaded content for read-only listing.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// userLock returns the mutex serializing one user's commands.
func (e *Engine) userLock(userID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	mu, ok := e.locks[userID]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[userID] = mu
	}
	return mu
}

// loadAccount fetches the account and applies any pending lazy refill. The
// caller must hold the user lock. The refill is committed before the
// account is returned so every command sees the regenerated balance.
func (e *Engine) loadAccount(ctx context.Context, userID string) (account.Account, error) {
	acct, err := e.store.GetAccount(ctx, userID)
	if err != nil {
		return account.Account{}, err
	}
	return e.syncRefill(ctx, acct)
}

// syncRefill folds elapsed regeneration ticks into the balance. A refill
// that grants credits is committed as a ledger row; a timestamp-only
// touch-up is persisted without one.
func (e *Engine) syncRefill(ctx context.Context, acct account.Account) (account.Account, error) {
	now := e.clock()
	plan := refill.Compute(acct.Credits, acct.MaxCredits, acct.LastRefill, now, e.refillInterval)
	if !plan.Changed {
		return acct, nil
	}
	if plan.CreditsToAdd <= 0 {
		acct.LastRefill = plan.LastRefill
		acct.UpdatedAt = now.UTC()
		if err := e.store.PutAccount(ctx, acct); err != nil {
			return account.Account{}, err
		}
		return acct, nil
	}

	before := acct.Credits
	acct.Credits = plan.Credits
	acct.LastRefill = plan.LastRefill
	acct.UpdatedAt = now.UTC()
	txn := credit.Transaction{
		ID:            e.newID(),
		UserID:        acct.ID,
		Type:          credit.TypeEarn,
		Source:        credit.SourceRefill,
		Amount:        plan.CreditsToAdd,
		BalanceBefore: before,
		BalanceAfter:  acct.Credits,
		CreatedAt:     now.UTC(),
	}
	if err := e.store.CommitTransaction(ctx, acct, txn); err != nil {
		return account.Account{}, err
	}
	metrics.RefillCreditsGranted.Add(float64(plan.CreditsToAdd))
	metrics.TransactionsCommitted.WithLabelValues(string(txn.Type), txn.Source).Inc()
	if err := e.audit.Emit(ctx, storage.AuditEvent{
		EventName: audit.EventRefillApplied,
		UserID:    acct.ID,
		Detail:    map[string]string{"credits": fmt.Sprint(plan.CreditsToAdd)},
	}); err != nil {
		log.Printf("audit refill: %v", err)
	}
	e.emit(Event{Kind: EventTransactionCommitted, UserID: acct.ID, Transaction: &txn, At: now.UTC()})
	return acct, nil
}

// commit writes the account and ledger row, then fans out observability.
// A zero-credited saturating result updates the account without appending
// a ledger row.
func (e *Engine) commit(ctx context.Context, acct account.Account, txn credit.Transaction) (credit.Transaction, error) {
	if txn.Amount == 0 {
		if err := e.store.PutAccount(ctx, acct); err != nil {
			return credit.Transaction{}, err
		}
		return txn, nil
	}
	txn.ID = e.newID()
	if err := e.store.CommitTransaction(ctx, acct, txn); err != nil {
		return credit.Transaction{}, err
	}
	metrics.TransactionsCommitted.WithLabelValues(string(txn.Type), txn.Source).Inc()
	if err := e.audit.Emit(ctx, storage.AuditEvent{
		EventName: audit.EventTransactionCommitted,
		UserID:    acct.ID,
		Detail: map[string]string{
			"type":   string(txn.Type),
			"source": txn.Source,
			"amount": fmt.Sprint(txn.Amount),
		},
	}); err != nil {
		log.Printf("audit transaction: %v", err)
	}
	e.emit(Event{Kind: EventTransactionCommitted, UserID: acct.ID, Transaction: &txn, At: txn.CreatedAt})
	return txn, nil
}
