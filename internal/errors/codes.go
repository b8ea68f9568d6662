// Package errors provides structured error handling with i18n support.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Credit ledger errors
	CodeCreditInvalidAmount Code = "CREDIT_INVALID_AMOUNT"
	CodeCreditInsufficient  Code = "CREDIT_INSUFFICIENT"
	CodeCreditExceedsCap    Code = "CREDIT_EXCEEDS_CAP"

	// Achievement errors
	CodeAchievementUnknown     Code = "ACHIEVEMENT_UNKNOWN"
	CodeAchievementGuestLocked Code = "ACHIEVEMENT_GUEST_LOCKED"

	// Playback errors
	CodeChoiceLocked     Code = "CHOICE_LOCKED"
	CodeChoiceUnknown    Code = "CHOICE_UNKNOWN"
	CodePlaybackNoChoice Code = "PLAYBACK_NOT_AT_CHOICE"
	CodePlaybackEnded    Code = "PLAYBACK_ENDED"
	CodeGraphIntegrity   Code = "GRAPH_INTEGRITY"

	// Account errors
	CodeAccountEmptyID Code = "ACCOUNT_EMPTY_ID"

	// Content errors
	CodeStoryUnknown Code = "STORY_UNKNOWN"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"

	// Rating errors
	CodeRatingOutOfRange Code = "RATING_OUT_OF_RANGE"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeCreditInvalidAmount, CodeRatingOutOfRange, CodeAccountEmptyID:
		return http.StatusBadRequest
	case CodeCreditInsufficient:
		return http.StatusPaymentRequired
	case CodeCreditExceedsCap, CodeChoiceLocked, CodePlaybackNoChoice, CodePlaybackEnded, CodeAchievementGuestLocked:
		return http.StatusConflict
	case CodeNotFound, CodeStoryUnknown, CodeChoiceUnknown, CodeAchievementUnknown:
		return http.StatusNotFound
	case CodeGraphIntegrity:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
