// Package credit implements the credit ledger's pure balance operations.
//
// Each operation validates amounts, computes the new account state, and
// returns the transaction to append. Nothing here touches storage; the
// engine commits the returned state and transaction atomically per user.
package credit

import (
	"strconv"
	"time"

	apperrors "github.com/emberleaf/emberleaf/internal/errors"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/account"
)

// Type is the business reason for a ledger mutation.
type Type string

const (
	TypeSpend  Type = "spend"
	TypeEarn   Type = "earn"
	TypeRefund Type = "refund"
	TypeBonus  Type = "bonus"
)

// Well-known transaction sources.
const (
	SourceChoice      = "choice"
	SourceReview      = "review"
	SourceAchievement = "achievement"
	SourceRefill      = "refill"
)

var (
	// ErrInvalidAmount indicates a non-positive or over-limit amount.
	ErrInvalidAmount = apperrors.New(apperrors.CodeCreditInvalidAmount, "credit amount must be between 1 and the transaction limit")
	// ErrInsufficient indicates a spend larger than the current balance.
	ErrInsufficient = apperrors.New(apperrors.CodeCreditInsufficient, "credit balance is insufficient")
	// ErrExceedsCap indicates an earn beyond the validated ceiling.
	ErrExceedsCap = apperrors.New(apperrors.CodeCreditExceedsCap, "credit balance would exceed cap")
)

// Transaction is one immutable row in the append-only ledger.
type Transaction struct {
	ID            string
	UserID        string
	Type          Type
	Source        string
	Amount        int
	BalanceBefore int
	BalanceAfter  int
	Metadata      map[string]string
	CreatedAt     time.Time
}

// Limits carries the ledger's validation constants.
type Limits struct {
	// BaseCap is the registered-user capacity before achievement increases.
	BaseCap int
	// GuestCap is the fixed capacity for guest accounts.
	GuestCap int
	// EarnBuffer is the headroom above BaseCap that generic earns may reach.
	EarnBuffer int
	// MaxTxnAmount bounds any single transaction.
	MaxTxnAmount int
}

// DefaultLimits returns the production ledger constants.
func DefaultLimits() Limits {
	return Limits{
		BaseCap:      20,
		GuestCap:     10,
		EarnBuffer:   30,
		MaxTxnAmount: 1000,
	}
}

func validAmount(amount int, limits Limits) error {
	if amount <= 0 || amount > limits.MaxTxnAmount {
		return apperrors.WithMetadata(apperrors.CodeCreditInvalidAmount, "credit amount out of range", map[string]string{
			"Amount": strconv.Itoa(amount),
			"Max":    strconv.Itoa(limits.MaxTxnAmount),
		})
	}
	return nil
}

func transaction(acct account.Account, txnType Type, source string, amount, before, after int, now time.Time) Transaction {
	return Transaction{
		UserID:        acct.ID,
		Type:          txnType,
		Source:        source,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		CreatedAt:     now.UTC(),
	}
}

// ApplySpend decrements the balance. A spend from a full balance starts a
// fresh regeneration cycle by resetting LastRefill to now.
func ApplySpend(acct account.Account, amount int, source string, now time.Time, limits Limits) (account.Account, Transaction, error) {
	if err := validAmount(amount, limits); err != nil {
		return account.Account{}, Transaction{}, err
	}
	before := acct.Credits
	if before < amount {
		return account.Account{}, Transaction{}, apperrors.WithMetadata(apperrors.CodeCreditInsufficient, "spend exceeds balance", map[string]string{
			"Required": strconv.Itoa(amount),
			"Balance":  strconv.Itoa(before),
		})
	}
	wasFull := before == acct.MaxCredits
	acct.Credits = before - amount
	acct.CreditsSpent += amount
	if wasFull {
		acct.LastRefill = now.UTC()
	}
	acct.UpdatedAt = now.UTC()
	return acct, transaction(acct, TypeSpend, source, amount, before, acct.Credits, now), nil
}

// ApplyEarn increments the balance, rejecting earns beyond the validated
// ceiling: the account cap, or BaseCap+EarnBuffer, whichever is lower.
func ApplyEarn(acct account.Account, amount int, source string, now time.Time, limits Limits) (account.Account, Transaction, error) {
	if err := validAmount(amount, limits); err != nil {
		return account.Account{}, Transaction{}, err
	}
	before := acct.Credits
	after := before + amount
	ceiling := acct.MaxCredits
	if validated := limits.BaseCap + limits.EarnBuffer; validated < ceiling {
		ceiling = validated
	}
	if after > ceiling {
		return account.Account{}, Transaction{}, apperrors.WithMetadata(apperrors.CodeCreditExceedsCap, "earn exceeds cap", map[string]string{
			"Balance": strconv.Itoa(before),
			"Ceiling": strconv.Itoa(ceiling),
		})
	}
	acct.Credits = after
	acct.UpdatedAt = now.UTC()
	return acct, transaction(acct, TypeEarn, source, amount, before, after, now), nil
}

// ApplyBonus increments the balance, saturating at MaxCredits. The returned
// transaction's Amount is the credited portion and may be zero when the
// balance is already full; zero-amount results are not logged by the engine.
func ApplyBonus(acct account.Account, amount int, source string, now time.Time, limits Limits) (account.Account, Transaction, error) {
	return applySaturating(acct, TypeBonus, amount, source, now, limits)
}

// ApplyRefund returns previously spent credits with the same saturating
// semantics as ApplyBonus.
func ApplyRefund(acct account.Account, amount int, source string, now time.Time, limits Limits) (account.Account, Transaction, error) {
	return applySaturating(acct, TypeRefund, amount, source, now, limits)
}

func applySaturating(acct account.Account, txnType Type, amount int, source string, now time.Time, limits Limits) (account.Account, Transaction, error) {
	if err := validAmount(amount, limits); err != nil {
		return account.Account{}, Transaction{}, err
	}
	before := acct.Credits
	credited := amount
	if room := acct.MaxCredits - before; credited > room {
		credited = room
	}
	if credited < 0 {
		credited = 0
	}
	acct.Credits = before + credited
	acct.UpdatedAt = now.UTC()
	return acct, transaction(acct, txnType, source, credited, before, acct.Credits, now), nil
}

// RecalculateCap recomputes MaxCredits from the unlock-derived increase.
// Guests keep the fixed guest cap regardless of unlocks.
func RecalculateCap(acct account.Account, limits Limits, capIncrease int) account.Account {
	if acct.Guest {
		acct.MaxCredits = limits.GuestCap
	} else {
		acct.MaxCredits = limits.BaseCap + capIncrease
	}
	if acct.Credits > acct.MaxCredits {
		acct.Credits = acct.MaxCredits
	}
	return acct
}
