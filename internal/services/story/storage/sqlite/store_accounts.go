package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/emberleaf/emberleaf/internal/services/story/domain/account"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/credit"
	"github.com/emberleaf/emberleaf/internal/services/story/storage"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const upsertAccountSQL = `INSERT INTO accounts (
   user_id, is_guest, credits, max_credits, last_refill_at,
   achievements, rated_bonus, played, favorites, avatars,
   reviews_written, credits_spent, playtime_min, login_streak, last_login_at,
   completed_by_genre, completed_stories, created_at, updated_at)
 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
 ON CONFLICT(user_id) DO UPDATE SET
   is_guest = excluded.is_guest,
   credits = excluded.credits,
   max_credits = excluded.max_credits,
   last_refill_at = excluded.last_refill_at,
   achievements = excluded.achievements,
   rated_bonus = excluded.rated_bonus,
   played = excluded.played,
   favorites = excluded.favorites,
   avatars = excluded.avatars,
   reviews_written = excluded.reviews_written,
   credits_spent = excluded.credits_spent,
   playtime_min = excluded.playtime_min,
   login_streak = excluded.login_streak,
   last_login_at = excluded.last_login_at,
   completed_by_genre = excluded.completed_by_genre,
   completed_stories = excluded.completed_stories,
   updated_at = excluded.updated_at`

func upsertAccount(ctx context.Context, db execer, acct account.Account) error {
	userID := strings.TrimSpace(acct.ID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	acct = acct.Normalize()

	achievements, err := encodeJSON(acct.Achievements)
	if err != nil {
		return fmt.Errorf("encode achievements: %w", err)
	}
	ratedBonus, err := encodeJSON(acct.RatedBonus)
	if err != nil {
		return fmt.Errorf("encode rated bonus: %w", err)
	}
	played, err := encodeJSON(acct.Played)
	if err != nil {
		return fmt.Errorf("encode played: %w", err)
	}
	favorites, err := encodeJSON(acct.Favorites)
	if err != nil {
		return fmt.Errorf("encode favorites: %w", err)
	}
	avatars, err := encodeJSON(acct.Avatars)
	if err != nil {
		return fmt.Errorf("encode avatars: %w", err)
	}
	completedByGenre, err := encodeJSON(acct.CompletedByGenre)
	if err != nil {
		return fmt.Errorf("encode completed by genre: %w", err)
	}
	completedStories, err := encodeJSON(acct.CompletedStories)
	if err != nil {
		return fmt.Errorf("encode completed stories: %w", err)
	}
	lastLogin := int64(0)
	if !acct.LastLoginAt.IsZero() {
		lastLogin = toMillis(acct.LastLoginAt)
	}

	_, err = db.ExecContext(
		ctx,
		upsertAccountSQL,
		userID,
		acct.Guest,
		acct.Credits,
		acct.MaxCredits,
		toMillis(acct.LastRefill),
		achievements,
		ratedBonus,
		played,
		favorites,
		avatars,
		acct.ReviewsWritten,
		acct.CreditsSpent,
		acct.TotalPlaytimeMin,
		acct.LoginStreak,
		lastLogin,
		completedByGenre,
		completedStories,
		toMillis(acct.CreatedAt),
		toMillis(acct.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// PutAccount upserts one account row.
func (s *Store) PutAccount(ctx context.Context, acct account.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return upsertAccount(ctx, s.sqlDB, acct)
}

// GetAccount returns one account by user id.
func (s *Store) GetAccount(ctx context.Context, userID string) (account.Account, error) {
	if err := ctx.Err(); err != nil {
		return account.Account{}, err
	}
	if s == nil || s.sqlDB == nil {
		return account.Account{}, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return account.Account{}, fmt.Errorf("user id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT user_id, is_guest, credits, max_credits, last_refill_at,
		        achievements, rated_bonus, played, favorites, avatars,
		        reviews_written, credits_spent, playtime_min, login_streak,
		        last_login_at, completed_by_genre, completed_stories,
		        created_at, updated_at
		 FROM accounts
		 WHERE user_id = ?`,
		userID,
	)
	var (
		acct             account.Account
		lastRefill       int64
		lastLogin        int64
		achievements     string
		ratedBonus       string
		played           string
		favorites        string
		avatars          string
		completedByGenre string
		completedStories string
		createdAt        int64
		updatedAt        int64
	)
	err := row.Scan(
		&acct.ID,
		&acct.Guest,
		&acct.Credits,
		&acct.MaxCredits,
		&lastRefill,
		&achievements,
		&ratedBonus,
		&played,
		&favorites,
		&avatars,
		&acct.ReviewsWritten,
		&acct.CreditsSpent,
		&acct.TotalPlaytimeMin,
		&acct.LoginStreak,
		&lastLogin,
		&completedByGenre,
		&completedStories,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Account{}, storage.ErrNotFound
		}
		return account.Account{}, fmt.Errorf("get account: %w", err)
	}
	acct.LastRefill = fromMillis(lastRefill)
	if lastLogin != 0 {
		acct.LastLoginAt = fromMillis(lastLogin)
	}
	acct.CreatedAt = fromMillis(createdAt)
	acct.UpdatedAt = fromMillis(updatedAt)
	for _, field := range []struct {
		raw    string
		target any
	}{
		{achievements, &acct.Achievements},
		{ratedBonus, &acct.RatedBonus},
		{played, &acct.Played},
		{favorites, &acct.Favorites},
		{avatars, &acct.Avatars},
		{completedByGenre, &acct.CompletedByGenre},
		{completedStories, &acct.CompletedStories},
	} {
		if err := json.Unmarshal([]byte(field.raw), field.target); err != nil {
			return account.Account{}, fmt.Errorf("decode account: %w", err)
		}
	}
	return acct.Normalize(), nil
}

// DeleteAccount removes one account row. Ledger rows are retained.
func (s *Store) DeleteAccount(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM accounts WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

// CommitTransaction writes the updated account and appends its ledger row in
// one SQLite transaction. The per-user sequence number is assigned here.
func (s *Store) CommitTransaction(ctx context.Context, acct account.Account, txn credit.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(txn.ID) == "" {
		return fmt.Errorf("transaction id is required")
	}
	if strings.TrimSpace(txn.UserID) == "" {
		return fmt.Errorf("transaction user id is required")
	}
	if txn.UserID != acct.ID {
		return fmt.Errorf("transaction user id must match account id")
	}
	metadata, err := encodeJSON(txn.Metadata)
	if err != nil {
		return fmt.Errorf("encode transaction metadata: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertAccount(ctx, tx, acct); err != nil {
		return err
	}
	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO transactions (
		   id, user_id, seq, type, source, amount,
		   balance_before, balance_after, metadata, created_at)
		 VALUES (?, ?,
		   (SELECT COALESCE(MAX(seq), 0) + 1 FROM transactions WHERE user_id = ?),
		   ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.UserID,
		txn.UserID,
		string(txn.Type),
		txn.Source,
		txn.Amount,
		txn.BalanceBefore,
		txn.BalanceAfter,
		metadata,
		toMillis(txn.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
