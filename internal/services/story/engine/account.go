package engine

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/emberleaf/emberleaf/internal/errors"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/account"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/credit"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/refill"
	"github.com/emberleaf/emberleaf/internal/services/story/storage"
)

// Wallet is the balance snapshot returned to clients.
type Wallet struct {
	Credits       int
	MaxCredits    int
	NextRefillETA time.Duration
}

// EnsureAccount returns the account for userID, creating it at full
// capacity if it does not exist yet. A new account gets the guest cap or
// the base cap depending on the guest flag.
func (e *Engine) EnsureAccount(ctx context.Context, userID string, guest bool) (account.Account, error) {
	ctx, span := e.tracer.Start(ctx, "engine.EnsureAccount")
	defer span.End()

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	acct, err := e.loadAccount(ctx, userID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return account.Account{}, err
	}

	capacity := e.limits.BaseCap
	if guest {
		capacity = e.limits.GuestCap
	}
	now := e.clock().UTC()
	acct, err = account.New(userID, guest, capacity, capacity, now)
	if err != nil {
		return account.Account{}, err
	}
	if err := e.store.PutAccount(ctx, acct); err != nil {
		return account.Account{}, err
	}
	return acct, nil
}

// GetAccount returns the account with any pending refill applied.
func (e *Engine) GetAccount(ctx context.Context, userID string) (account.Account, error) {
	ctx, span := e.tracer.Start(ctx, "engine.GetAccount")
	defer span.End()

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()
	return e.loadAccount(ctx, userID)
}

// GetWallet returns the current balance, cap, and time until the next
// regeneration tick. Reading the wallet commits any pending refill.
func (e *Engine) GetWallet(ctx context.Context, userID string) (Wallet, error) {
	ctx, span := e.tracer.Start(ctx, "engine.GetWallet")
	defer span.End()

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	acct, err := e.loadAccount(ctx, userID)
	if err != nil {
		return Wallet{}, err
	}
	return Wallet{
		Credits:       acct.Credits,
		MaxCredits:    acct.MaxCredits,
		NextRefillETA: refill.NextETA(acct.Credits, acct.MaxCredits, acct.LastRefill, e.clock(), e.refillInterval),
	}, nil
}

// RecordLogin advances the login streak and sweeps streak achievements.
func (e *Engine) RecordLogin(ctx context.Context, userID string) (account.Account, error) {
	ctx, span := e.tracer.Start(ctx, "engine.RecordLogin")
	defer span.End()

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	acct, err := e.loadAccount(ctx, userID)
	if err != nil {
		return account.Account{}, err
	}
	acct = acct.RecordLogin(e.clock())
	acct.UpdatedAt = e.clock().UTC()
	if err := e.store.PutAccount(ctx, acct); err != nil {
		return account.Account{}, err
	}
	return e.sweepAchievements(ctx, acct)
}

// ToggleFavorite flips a story's membership in the user's favorites.
func (e *Engine) ToggleFavorite(ctx context.Context, userID, storyID string) (account.Account, error) {
	ctx, span := e.tracer.Start(ctx, "engine.ToggleFavorite")
	defer span.End()

	if _, err := e.catalog.Story(storyID); err != nil {
		return account.Account{}, err
	}

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	acct, err := e.loadAccount(ctx, userID)
	if err != nil {
		return account.Account{}, err
	}
	if acct.Favorites.Has(storyID) {
		acct.Favorites = acct.Favorites.Without(storyID)
	} else {
		acct.Favorites = acct.Favorites.With(storyID)
	}
	acct.UpdatedAt = e.clock().UTC()
	if err := e.store.PutAccount(ctx, acct); err != nil {
		return account.Account{}, err
	}
	return acct, nil
}

// ListTransactions returns one page of the user's ledger history.
func (e *Engine) ListTransactions(ctx context.Context, userID string, pageSize int, pageToken string) (storage.TransactionPage, error) {
	ctx, span := e.tracer.Start(ctx, "engine.ListTransactions")
	defer span.End()
	return e.store.ListTransactions(ctx, userID, pageSize, pageToken)
}

// Earn credits the balance, rejecting earns beyond the validated ceiling.
func (e *Engine) Earn(ctx context.Context, userID string, amount int, source string) (credit.Transaction, error) {
	return e.applyLedger(ctx, "engine.Earn", userID, amount, source, credit.ApplyEarn)
}

// Bonus credits the balance, saturating at the cap.
func (e *Engine) Bonus(ctx context.Context, userID string, amount int, source string) (credit.Transaction, error) {
	return e.applyLedger(ctx, "engine.Bonus", userID, amount, source, credit.ApplyBonus)
}

// Refund returns previously spent credits, saturating at the cap.
func (e *Engine) Refund(ctx context.Context, userID string, amount int, source string) (credit.Transaction, error) {
	return e.applyLedger(ctx, "engine.Refund", userID, amount, source, credit.ApplyRefund)
}

// Spend debits the balance outside the choice path.
func (e *Engine) Spend(ctx context.Context, userID string, amount int, source string) (credit.Transaction, error) {
	return e.applyLedger(ctx, "engine.Spend", userID, amount, source, credit.ApplySpend)
}

type applyFunc func(account.Account, int, string, time.Time, credit.Limits) (account.Account, credit.Transaction, error)

func (e *Engine) applyLedger(ctx context.Context, spanName, userID string, amount int, source string, apply applyFunc) (credit.Transaction, error) {
	ctx, span := e.tracer.Start(ctx, spanName)
	defer span.End()

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	acct, err := e.loadAccount(ctx, userID)
	if err != nil {
		return credit.Transaction{}, err
	}
	updated, txn, err := apply(acct, amount, source, e.clock(), e.limits)
	if err != nil {
		return credit.Transaction{}, err
	}
	return e.commit(ctx, updated, txn)
}

// GrantRatingBonusOnce grants the one-time rating bonus for a story. The
// grant is idempotent: a story already marked in the rated-bonus set
// returns the zero transaction with no ledger write.
func (e *Engine) GrantRatingBonusOnce(ctx context.Context, userID, storyID string) (credit.Transaction, bool, error) {
	ctx, span := e.tracer.Start(ctx, "engine.GrantRatingBonusOnce")
	defer span.End()

	if _, err := e.catalog.Story(storyID); err != nil {
		return credit.Transaction{}, false, err
	}

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	acct, err := e.loadAccount(ctx, userID)
	if err != nil {
		return credit.Transaction{}, false, err
	}
	if acct.RatedBonus.Has(storyID) {
		return credit.Transaction{}, false, nil
	}
	updated, txn, err := credit.ApplyBonus(acct, e.ratingBonus, credit.SourceReview, e.clock(), e.limits)
	if err != nil {
		return credit.Transaction{}, false, err
	}
	updated.RatedBonus = updated.RatedBonus.With(storyID)
	txn.Metadata = map[string]string{"story": storyID}
	committed, err := e.commit(ctx, updated, txn)
	if err != nil {
		return credit.Transaction{}, false, err
	}
	return committed, true, nil
}

// RateStory records a 1-5 rating: it increments the review counter, grants
// the one-time rating bonus, and sweeps achievements.
func (e *Engine) RateStory(ctx context.Context, userID, storyID string, rating int) (account.Account, error) {
	ctx, span := e.tracer.Start(ctx, "engine.RateStory")
	defer span.End()

	if rating < 1 || rating > 5 {
		return account.Account{}, apperrors.WithMetadata(apperrors.CodeRatingOutOfRange, "rating must be between 1 and 5", map[string]string{
			"Min": "1",
			"Max": "5",
		})
	}
	if _, err := e.catalog.Story(storyID); err != nil {
		return account.Account{}, err
	}

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	acct, err := e.loadAccount(ctx, userID)
	if err != nil {
		return account.Account{}, err
	}
	acct.ReviewsWritten++
	now := e.clock()
	acct.UpdatedAt = now.UTC()

	if acct.RatedBonus.Has(storyID) {
		if err := e.store.PutAccount(ctx, acct); err != nil {
			return account.Account{}, err
		}
	} else {
		updated, txn, err := credit.ApplyBonus(acct, e.ratingBonus, credit.SourceReview, now, e.limits)
		if err != nil {
			return account.Account{}, err
		}
		updated.RatedBonus = updated.RatedBonus.With(storyID)
		txn.Metadata = map[string]string{"story": storyID}
		if _, err := e.commit(ctx, updated, txn); err != nil {
			return account.Account{}, err
		}
		acct = updated
	}

	return e.sweepAchievements(ctx, acct)
}
