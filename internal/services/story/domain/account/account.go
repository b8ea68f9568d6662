// Package account defines the user account aggregate.
//
// An Account composes the credit balance, unlocked achievements, cosmetic
// unlocks, and the story sets (played, favorites, rated-for-bonus) that the
// rest of the domain consults. Accounts are mutated only through named
// engine commands; the aggregate itself stays a plain value type.
package account

import (
	"time"

	apperrors "github.com/emberleaf/emberleaf/internal/errors"
)

// ErrEmptyID indicates an account was requested without a user id.
var ErrEmptyID = apperrors.New(apperrors.CodeAccountEmptyID, "user id is required")

// Account is the per-user aggregate root and unit of concurrency control.
type Account struct {
	ID         string
	Guest      bool
	Credits    int
	MaxCredits int
	// LastRefill anchors lazy credit regeneration. It is reset when a spend
	// takes the balance below a previously full cap.
	LastRefill time.Time

	Achievements Set
	// RatedBonus marks story ids whose one-time rating bonus was granted.
	RatedBonus Set
	Played     Set
	Favorites  Set
	Avatars    Set

	// Aggregate stats consulted by achievement evaluation.
	ReviewsWritten   int
	CreditsSpent     int
	TotalPlaytimeMin int
	LoginStreak      int
	// LastLoginAt anchors streak computation to calendar days.
	LastLoginAt      time.Time
	CompletedByGenre map[string]int
	CompletedStories Set

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New returns an account with all sets initialised.
func New(userID string, guest bool, credits, maxCredits int, now time.Time) (Account, error) {
	if userID == "" {
		return Account{}, ErrEmptyID
	}
	return Account{
		ID:               userID,
		Guest:            guest,
		Credits:          credits,
		MaxCredits:       maxCredits,
		LastRefill:       now,
		Achievements:     NewSet(),
		RatedBonus:       NewSet(),
		Played:           NewSet(),
		Favorites:        NewSet(),
		Avatars:          NewSet(),
		CompletedByGenre: map[string]int{},
		CompletedStories: NewSet(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// Normalize ensures all set and map fields are non-nil. Stored rows decoded
// from JSON may carry nil collections.
func (a Account) Normalize() Account {
	if a.Achievements == nil {
		a.Achievements = NewSet()
	}
	if a.RatedBonus == nil {
		a.RatedBonus = NewSet()
	}
	if a.Played == nil {
		a.Played = NewSet()
	}
	if a.Favorites == nil {
		a.Favorites = NewSet()
	}
	if a.Avatars == nil {
		a.Avatars = NewSet()
	}
	if a.CompletedByGenre == nil {
		a.CompletedByGenre = map[string]int{}
	}
	if a.CompletedStories == nil {
		a.CompletedStories = NewSet()
	}
	return a
}

// RecordLogin advances the login streak. Same-day logins keep the streak,
// a next-day login extends it, and any gap resets it to one.
func (a Account) RecordLogin(now time.Time) Account {
	today := now.UTC().Truncate(24 * time.Hour)
	lastDay := a.LastLoginAt.UTC().Truncate(24 * time.Hour)
	switch {
	case a.LastLoginAt.IsZero():
		a.LoginStreak = 1
	case today.Equal(lastDay):
		// Already counted today.
	case today.Equal(lastDay.Add(24 * time.Hour)):
		a.LoginStreak++
	default:
		a.LoginStreak = 1
	}
	a.LastLoginAt = now.UTC()
	return a
}

// RecordCompletion marks a story as completed once and updates genre counts.
// Completing the same story again does not inflate the counters.
func (a Account) RecordCompletion(storyID, genre string) Account {
	a = a.Normalize()
	if a.CompletedStories.Has(storyID) {
		return a
	}
	a.CompletedStories = a.CompletedStories.With(storyID)
	a.Played = a.Played.With(storyID)
	if genre != "" {
		counts := make(map[string]int, len(a.CompletedByGenre)+1)
		for k, v := range a.CompletedByGenre {
			counts[k] = v
		}
		counts[genre]++
		a.CompletedByGenre = counts
	}
	return a
}

// StoriesCompleted returns the number of distinct completed stories.
func (a Account) StoriesCompleted() int {
	return a.CompletedStories.Len()
}
