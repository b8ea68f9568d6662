// Package refill computes lazy, time-based credit regeneration.
//
// The scheduler is a pure function of the stored anchor timestamp: it never
// keeps a running counter, so the result is correct no matter how long the
// consuming process was suspended between reads. Callers commit the
// returned plan through the same serialized ledger path as any other
// credit mutation.
package refill

import "time"

// Plan is a proposed regeneration outcome. Nothing is committed until the
// caller writes it back through the ledger's serialization point.
type Plan struct {
	// CreditsToAdd is the number of whole regeneration ticks to credit.
	CreditsToAdd int
	// Credits is the resulting balance.
	Credits int
	// LastRefill is the new anchor. The sub-interval remainder is preserved
	// so partial progress toward the next tick survives recomputation.
	LastRefill time.Time
	// Changed reports whether the plan differs from stored state.
	Changed bool
}

// Compute returns the regeneration plan for the given balance and anchor.
//
// A full balance yields a timestamp touch-up only, so the countdown starts
// clean on the next spend. A negative elapsed duration (clock skew) yields
// an unchanged plan.
func Compute(credits, maxCredits int, lastRefill, now time.Time, interval time.Duration) Plan {
	unchanged := Plan{Credits: credits, LastRefill: lastRefill}
	if interval <= 0 {
		return unchanged
	}
	if credits >= maxCredits {
		return Plan{Credits: credits, LastRefill: now, Changed: !now.Equal(lastRefill)}
	}

	elapsed := now.Sub(lastRefill)
	if elapsed < interval {
		return unchanged
	}

	ticks := int(elapsed / interval)
	add := ticks
	if room := maxCredits - credits; add > room {
		add = room
	}
	remainder := elapsed % interval

	return Plan{
		CreditsToAdd: add,
		Credits:      credits + add,
		LastRefill:   now.Add(-remainder),
		Changed:      true,
	}
}

// NextETA returns the wall-clock duration until the next credit regenerates,
// assuming the plan from Compute has been committed. A full balance has no
// pending regeneration and returns zero.
func NextETA(credits, maxCredits int, lastRefill, now time.Time, interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	plan := Compute(credits, maxCredits, lastRefill, now, interval)
	if plan.Credits >= maxCredits {
		return 0
	}
	eta := interval - now.Sub(plan.LastRefill)
	if eta < 0 {
		return 0
	}
	return eta
}
