package engine

import (
	"context"
	"log"

	apperrors "github.com/emberleaf/emberleaf/internal/errors"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/account"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/achievement"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/credit"
	"github.com/emberleaf/emberleaf/internal/services/story/observability/audit"
	"github.com/emberleaf/emberleaf/internal/services/story/observability/metrics"
	"github.com/emberleaf/emberleaf/internal/services/story/storage"
)

// AchievementStatus pairs a catalog entry with the user's progress.
type AchievementStatus struct {
	Achievement achievement.Achievement
	Evaluation  achievement.Evaluation
	Unlocked    bool
}

func statsFor(acct account.Account) achievement.Stats {
	completed := make(map[string]bool, acct.CompletedStories.Len())
	for _, id := range acct.CompletedStories.Sorted() {
		completed[id] = true
	}
	return achievement.Stats{
		StoriesCompleted: acct.StoriesCompleted(),
		CompletedByGenre: acct.CompletedByGenre,
		CompletedStories: completed,
		ReviewsWritten:   acct.ReviewsWritten,
		TotalPlaytimeMin: acct.TotalPlaytimeMin,
		CreditsSpent:     acct.CreditsSpent,
		LoginStreak:      acct.LoginStreak,
	}
}

// ListAchievements returns every catalog achievement with the user's
// progress. Guests see the catalog with zero progress.
func (e *Engine) ListAchievements(ctx context.Context, userID string) ([]AchievementStatus, error) {
	ctx, span := e.tracer.Start(ctx, "engine.ListAchievements")
	defer span.End()

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	acct, err := e.loadAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := statsFor(acct)
	all := e.catalog.Achievements()
	out := make([]AchievementStatus, 0, len(all))
	for _, ach := range all {
		status := AchievementStatus{
			Achievement: ach,
			Unlocked:    acct.Achievements.Has(ach.ID),
		}
		if !acct.Guest {
			status.Evaluation = achievement.Evaluate(stats, ach)
		}
		out = append(out, status)
	}
	return out, nil
}

// UnlockAchievement grants one achievement directly. Guests are never
// eligible; an already-unlocked achievement is a no-op.
func (e *Engine) UnlockAchievement(ctx context.Context, userID, achievementID, source string) (account.Account, error) {
	ctx, span := e.tracer.Start(ctx, "engine.UnlockAchievement")
	defer span.End()

	ach, err := e.catalog.Achievement(achievementID)
	if err != nil {
		return account.Account{}, err
	}

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	acct, err := e.loadAccount(ctx, userID)
	if err != nil {
		return account.Account{}, err
	}
	if acct.Guest {
		return account.Account{}, apperrors.New(apperrors.CodeAchievementGuestLocked, "guest accounts cannot unlock achievements")
	}
	if acct.Achievements.Has(achievementID) {
		return acct, nil
	}
	return e.unlock(ctx, acct, ach, source)
}

// sweepAchievements evaluates every locked achievement against the current
// stats and unlocks the completed ones. Guests never evaluate. The caller
// must hold the user lock; the returned account reflects all unlocks.
func (e *Engine) sweepAchievements(ctx context.Context, acct account.Account) (account.Account, error) {
	if acct.Guest {
		return acct, nil
	}
	stats := statsFor(acct)
	for _, ach := range e.catalog.Achievements() {
		if acct.Achievements.Has(ach.ID) {
			continue
		}
		eval := achievement.Evaluate(stats, ach)
		if !eval.Completed {
			continue
		}
		updated, err := e.unlock(ctx, acct, ach, "sweep")
		if err != nil {
			return account.Account{}, err
		}
		acct = updated
	}
	return acct, nil
}

// unlock applies one achievement's rewards and records the grant: the set
// membership, the recomputed cap, avatar unlocks, the unlock row, and the
// one-time saturating credit bonus as its own ledger row.
func (e *Engine) unlock(ctx context.Context, acct account.Account, ach achievement.Achievement, source string) (account.Account, error) {
	now := e.clock()
	acct.Achievements = acct.Achievements.With(ach.ID)
	unlockedSet := make(map[string]struct{}, acct.Achievements.Len())
	for _, id := range acct.Achievements.Sorted() {
		unlockedSet[id] = struct{}{}
	}
	acct = credit.RecalculateCap(acct, e.limits, e.catalog.TotalCapIncrease(unlockedSet))
	for _, avatar := range ach.Rewards.AvatarUnlocks {
		acct.Avatars = acct.Avatars.With(avatar)
	}
	acct.UpdatedAt = now.UTC()

	if ach.Rewards.CreditBonus > 0 {
		updated, txn, err := credit.ApplyBonus(acct, ach.Rewards.CreditBonus, credit.SourceAchievement, now, e.limits)
		if err != nil {
			return account.Account{}, err
		}
		txn.Metadata = map[string]string{"achievement": ach.ID}
		if _, err := e.commit(ctx, updated, txn); err != nil {
			return account.Account{}, err
		}
		acct = updated
	} else {
		if err := e.store.PutAccount(ctx, acct); err != nil {
			return account.Account{}, err
		}
	}

	if err := e.store.PutUnlock(ctx, storage.Unlock{
		UserID:        acct.ID,
		AchievementID: ach.ID,
		Source:        source,
		UnlockedAt:    now.UTC(),
	}); err != nil {
		return account.Account{}, err
	}
	metrics.AchievementsUnlocked.WithLabelValues(ach.ID).Inc()
	if err := e.audit.Emit(ctx, storage.AuditEvent{
		EventName: audit.EventAchievementUnlocked,
		UserID:    acct.ID,
		Detail:    map[string]string{"achievement": ach.ID, "source": source},
	}); err != nil {
		log.Printf("audit unlock: %v", err)
	}
	e.emit(Event{Kind: EventAchievementUnlocked, UserID: acct.ID, AchievementID: ach.ID, At: now.UTC()})
	return acct, nil
}
