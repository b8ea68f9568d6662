package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/emberleaf/emberleaf/internal/services/story/storage"
)

// PutUnlock records one achievement unlock. Re-recording an unlock keeps the
// original timestamp.
func (s *Store) PutUnlock(ctx context.Context, unlock storage.Unlock) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	userID := strings.TrimSpace(unlock.UserID)
	achievementID := strings.TrimSpace(unlock.AchievementID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if achievementID == "" {
		return fmt.Errorf("achievement id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO unlocks (user_id, achievement_id, source, unlocked_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, achievement_id) DO NOTHING`,
		userID,
		achievementID,
		unlock.Source,
		toMillis(unlock.UnlockedAt),
	)
	if err != nil {
		return fmt.Errorf("put unlock: %w", err)
	}
	return nil
}

// ListUnlocks returns every unlock for one user in unlock order.
func (s *Store) ListUnlocks(ctx context.Context, userID string) ([]storage.Unlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT user_id, achievement_id, source, unlocked_at
		 FROM unlocks
		 WHERE user_id = ?
		 ORDER BY unlocked_at ASC, achievement_id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}
	defer rows.Close()

	var unlocks []storage.Unlock
	for rows.Next() {
		var (
			unlock     storage.Unlock
			unlockedAt int64
		)
		if err := rows.Scan(&unlock.UserID, &unlock.AchievementID, &unlock.Source, &unlockedAt); err != nil {
			return nil, fmt.Errorf("list unlocks: %w", err)
		}
		unlock.UnlockedAt = fromMillis(unlockedAt)
		unlocks = append(unlocks, unlock)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}
	return unlocks, nil
}

// AppendAuditEvent appends one audit event row.
func (s *Store) AppendAuditEvent(ctx context.Context, event storage.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(event.EventName) == "" {
		return fmt.Errorf("event name is required")
	}
	detail := "{}"
	if len(event.Detail) > 0 {
		encoded, err := json.Marshal(event.Detail)
		if err != nil {
			return fmt.Errorf("encode audit detail: %w", err)
		}
		detail = string(encoded)
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO audit_events (event_name, severity, user_id, story_id, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.EventName,
		event.Severity,
		event.UserID,
		event.StoryID,
		detail,
		toMillis(event.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}
