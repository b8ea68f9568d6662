package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emberleaf/emberleaf/internal/services/story/domain/playback"
	"github.com/emberleaf/emberleaf/internal/services/story/storage"
)

// PutPlaythrough upserts one user's playback state for a story.
func (s *Store) PutPlaythrough(ctx context.Context, userID string, state playback.State) error {
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
	if strings.TrimSpace(state.StoryID) == "" {
		return fmt.Errorf("story id is required")
	}
	encoded, err := encodeJSON(state)
	if err != nil {
		return fmt.Errorf("encode playback state: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO playthroughs (user_id, story_id, state, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, story_id) DO UPDATE SET
		   state = excluded.state,
		   updated_at = excluded.updated_at`,
		userID,
		state.StoryID,
		encoded,
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("put playthrough: %w", err)
	}
	return nil
}

// GetPlaythrough returns one user's saved playback state for a story.
func (s *Store) GetPlaythrough(ctx context.Context, userID string, storyID string) (playback.State, error) {
	if err := ctx.Err(); err != nil {
		return playback.State{}, err
	}
	if s == nil || s.sqlDB == nil {
		return playback.State{}, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	storyID = strings.TrimSpace(storyID)
	if userID == "" {
		return playback.State{}, fmt.Errorf("user id is required")
	}
	if storyID == "" {
		return playback.State{}, fmt.Errorf("story id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT state FROM playthroughs WHERE user_id = ? AND story_id = ?`,
		userID,
		storyID,
	)
	var encoded string
	if err := row.Scan(&encoded); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return playback.State{}, storage.ErrNotFound
		}
		return playback.State{}, fmt.Errorf("get playthrough: %w", err)
	}
	var state playback.State
	if err := json.Unmarshal([]byte(encoded), &state); err != nil {
		return playback.State{}, fmt.Errorf("decode playback state: %w", err)
	}
	return state, nil
}

// DeletePlaythrough removes one user's saved playback state for a story.
func (s *Store) DeletePlaythrough(ctx context.Context, userID string, storyID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	storyID = strings.TrimSpace(storyID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if storyID == "" {
		return fmt.Errorf("story id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM playthroughs WHERE user_id = ? AND story_id = ?`,
		userID,
		storyID,
	)
	if err != nil {
		return fmt.Errorf("delete playthrough: %w", err)
	}
	return nil
}
