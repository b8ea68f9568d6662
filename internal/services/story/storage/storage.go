// Package storage defines persistence contracts for story service state.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/emberleaf/emberleaf/internal/services/story/domain/account"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/credit"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/playback"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// TransactionPage stores one page of a user's ledger history.
type TransactionPage struct {
	Transactions  []credit.Transaction
	NextPageToken string
}

// Unlock records one achievement grant for one user.
type Unlock struct {
	UserID        string
	AchievementID string
	Source        string
	UnlockedAt    time.Time
}

// AuditEvent records one domain occurrence for offline inspection.
type AuditEvent struct {
	EventName string
	Severity  string
	UserID    string
	StoryID   string
	Detail    map[string]string
	CreatedAt time.Time
}

// AccountStore persists user accounts and their ledger rows.
type AccountStore interface {
	PutAccount(ctx context.Context, acct account.Account) error
	GetAccount(ctx context.Context, userID string) (account.Account, error)
	DeleteAccount(ctx context.Context, userID string) error
	// CommitTransaction writes the updated account and appends the ledger
	// row in one transaction. The row's per-user sequence number is
	// assigned by the store.
	CommitTransaction(ctx context.Context, acct account.Account, txn credit.Transaction) error
}

// TransactionStore reads a user's append-only ledger.
type TransactionStore interface {
	ListTransactions(ctx context.Context, userID string, pageSize int, pageToken string) (TransactionPage, error)
}

// PlaythroughStore persists one resumable playback state per user and story.
type PlaythroughStore interface {
	PutPlaythrough(ctx context.Context, userID string, state playback.State) error
	GetPlaythrough(ctx context.Context, userID string, storyID string) (playback.State, error)
	DeletePlaythrough(ctx context.Context, userID string, storyID string) error
}

// UnlockStore persists achievement unlock records.
type UnlockStore interface {
	PutUnlock(ctx context.Context, unlock Unlock) error
	ListUnlocks(ctx context.Context, userID string) ([]Unlock, error)
}

// AuditEventStore appends audit events.
type AuditEventStore interface {
	AppendAuditEvent(ctx context.Context, event AuditEvent) error
}

// Store aggregates every persistence contract the story service uses.
type Store interface {
	AccountStore
	TransactionStore
	PlaythroughStore
	UnlockStore
	AuditEventStore
	Close() error
}
